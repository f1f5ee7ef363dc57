package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the host configuration file without loading modules",
		Args:  cobra.NoArgs,
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if _, err := newLogger(cmd, cfg); err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("config")
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d modules)\n", path, len(cfg.Modules))
	return nil
}
