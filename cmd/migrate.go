package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"keystone/bootstrap"
	"keystone/domain"
	"keystone/logging"
	"keystone/storage"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// MigrationStatus is one row of `migrate status`.
type MigrationStatus struct {
	Version   string `json:"version" yaml:"version"`
	Name      string `json:"name" yaml:"name"`
	Domain    string `json:"domain,omitempty" yaml:"domain,omitempty"`
	Applied   bool   `json:"applied" yaml:"applied"`
	AppliedAt string `json:"applied_at,omitempty" yaml:"applied_at,omitempty"`
}

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(newMigrateUpCmd(flags))
	cmd.AddCommand(newMigrateStatusCmd(flags))
	return cmd
}

func newMigrateUpCmd(flags *rootFlags) *cobra.Command {
	var showProgress bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending domain migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			return withDatabase(ctx, flags, func(env *cliEnv) error {
				var s *spinner.Spinner
				if showProgress && !flags.structured() && !flags.quiet {
					s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
					s.Suffix = " Applying migrations..."
					s.Start()
				}

				n, err := bootstrap.Migrate(ctx, env.db, domain.Default(), env.logger.SugaredLogger)

				if s != nil {
					s.Stop()
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if flags.structured() {
					return flags.writeStructured(out, map[string]int{"applied": n})
				}
				if n == 0 {
					infoColor.Fprintln(out, "Schema is up to date")
					return nil
				}
				successColor.Fprintf(out, "Applied %d migration(s)\n", n)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress indicator")
	return cmd
}

func newMigrateStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List registered migrations as applied or pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			return withDatabase(ctx, flags, func(env *cliEnv) error {
				statuses, err := migrationStatus(ctx, env.db, domain.Default(), env)
				if err != nil {
					return err
				}
				if flags.structured() {
					return flags.writeStructured(cmd.OutOrStdout(), statuses)
				}
				renderMigrationTable(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	}
}

func migrationStatus(ctx context.Context, db *storage.DB, registry *domain.Registry, env *cliEnv) ([]MigrationStatus, error) {
	runner, err := bootstrap.NewMigrationRunner(ctx, db, registry, env.logger.SugaredLogger)
	if err != nil {
		return nil, err
	}
	applied, err := runner.Applied(ctx)
	if err != nil {
		return nil, err
	}

	appliedAt := make(map[string]time.Time, len(applied))
	for _, rec := range applied {
		appliedAt[rec.Version] = rec.AppliedAt
	}

	migrations := registry.Migrations()
	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		st := MigrationStatus{Version: m.Version, Name: m.Name, Domain: m.Domain}
		if at, ok := appliedAt[m.Version]; ok {
			st.Applied = true
			if !at.IsZero() {
				st.AppliedAt = at.Format(time.RFC3339)
			}
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// cliEnv is what a one-shot command needs from the bootstrap.
type cliEnv struct {
	logger *logging.Logger
	db     *storage.DB
}

func withDatabase(ctx context.Context, flags *rootFlags, fn func(*cliEnv) error) error {
	settings, err := bootstrap.LoadSettings(flags.appOptions()...)
	if err != nil {
		return err
	}

	logger, err := logging.New(settings)
	if err != nil {
		return err
	}
	defer logger.Close(context.Background())

	db, err := bootstrap.OpenDatabase(ctx, settings, logger.SugaredLogger)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(&cliEnv{logger: logger, db: db})
}

func renderMigrationTable(w io.Writer, statuses []MigrationStatus) {
	if len(statuses) == 0 {
		warningColor.Fprintln(w, "No migrations registered")
		return
	}

	headerColor.Fprintln(w, "MIGRATIONS")
	headerColor.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%-10s %-30s %-12s %-10s %s\n", "Version", "Name", "Domain", "Status", "Applied At")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, st := range statuses {
		status := warningColor.Sprintf("%-10s", "pending")
		if st.Applied {
			status = successColor.Sprintf("%-10s", "applied")
		}
		name := st.Name
		if len(name) > 29 {
			name = name[:26] + "..."
		}
		fmt.Fprintf(w, "%-10s %-30s %-12s %s %s\n", st.Version, name, st.Domain, status, st.AppliedAt)
	}

	fmt.Fprintln(w, strings.Repeat("=", 80))
}
