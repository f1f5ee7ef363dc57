package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/toolhost/application/schema"
)

// NewSchemaCmd creates the "schema" subcommand.
func NewSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the host configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := schema.HostConfigSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
