// Package cmd provides the keystone command line.
package cmd

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"keystone/bootstrap"
	_ "keystone/domains"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

const defaultTimeout = 5 * time.Minute

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	environment string
	workDir     string
	domainsRoot string
	outputJSON  bool
	outputYAML  bool
	noColor     bool
	quiet       bool
}

// structured reports whether output goes through a machine-readable
// encoder instead of colored text.
func (f *rootFlags) structured() bool {
	return f.outputJSON || f.outputYAML
}

// writeStructured encodes data in the format selected by --json or --yaml.
// YAML wins when both are set.
func (f *rootFlags) writeStructured(w io.Writer, data any) error {
	if f.outputYAML {
		return outputAsYAML(w, data)
	}
	return outputAsJSON(w, data)
}

func (f *rootFlags) appOptions() []bootstrap.Option {
	opts := []bootstrap.Option{bootstrap.WithWorkDir(f.workDir)}
	if f.environment != "" {
		opts = append(opts, bootstrap.WithEnvironment(f.environment))
	}
	if f.domainsRoot != "" {
		opts = append(opts, bootstrap.WithDomainsRoot(f.domainsRoot))
	}
	return opts
}

// NewRootCmd builds the keystone command tree. Running it without a
// subcommand serves the API.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "keystone",
		Short: "Keystone API server",
		Long: `Keystone serves the HTTP API for every compiled-in domain found under
DOMAINS_ROOT, with settings chosen by the ENVIRONMENT profile.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				color.NoColor = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.environment, "env", "", "Environment profile (development, production, test); defaults to ENVIRONMENT")
	pf.StringVar(&flags.workDir, "workdir", ".", "Directory holding .env files")
	pf.StringVar(&flags.domainsRoot, "domains-root", "", "Override DOMAINS_ROOT")
	pf.BoolVar(&flags.outputJSON, "json", false, "Output in JSON format")
	pf.BoolVar(&flags.outputYAML, "yaml", false, "Output in YAML format")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")
	pf.BoolVar(&flags.quiet, "quiet", false, "Suppress non-essential output")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newMigrateCmd(flags))
	root.AddCommand(newVersionCmd(flags))

	return root
}

// Execute runs the command line and returns the first error.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext is Execute with a caller-supplied context.
func ExecuteContext(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// outputAsJSON writes data as indented JSON.
func outputAsJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// outputAsYAML writes data as YAML with two-space indentation.
func outputAsYAML(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return err
	}
	return encoder.Close()
}
