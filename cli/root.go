// Package cli implements the toolhost command line: loading plugin modules
// from a host configuration file and listing, inspecting and executing the
// tools they register.
package cli

import (
	"github.com/spf13/cobra"
)

// DefaultConfigPath is read when --config is not given and the file exists.
const DefaultConfigPath = "toolhost.yaml"

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "toolhost",
		Short: "Load WebAssembly tool plugins and invoke their tools",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", DefaultConfigPath, "Host configuration file")
	flags.StringArrayP("module", "m", nil, "Additional module to load (repeatable)")
	flags.String("log-level", "", "Log level: debug | info | warn | error (default from config)")
	flags.String("log-format", "text", "Log format: text | json")

	root.AddCommand(NewListCmd())
	root.AddCommand(NewExecCmd())
	root.AddCommand(NewInspectCmd())
	root.AddCommand(NewSchemaCmd())
	root.AddCommand(NewValidateCmd())

	return root
}
