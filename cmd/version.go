package cmd

import (
	"fmt"

	"keystone/version"

	"github.com/spf13/cobra"
)

func newVersionCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the resolved application version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := version.Resolve()
			if flags.structured() {
				return flags.writeStructured(cmd.OutOrStdout(), map[string]string{"version": v})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "keystone %s\n", v)
			return err
		},
	}
}
