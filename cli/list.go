package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/toolhost/domain/entities"
	"github.com/reglet-dev/toolhost/domain/ports"
)

// NewListCmd creates the "list" subcommand.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tools registered by the loaded modules",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	return withSession(cmd, func(s *session) error {
		return writeTools(cmd.OutOrStdout(), s.host, s.loadErr, asJSON)
	})
}

// toolListing is the --json output of list.
type toolListing struct {
	Tools      []entities.ToolInfo     `json:"tools"`
	LoadErrors []*entities.ErrorDetail `json:"load_errors,omitempty"`
}

func writeTools(out io.Writer, catalog ports.ToolCatalog, loadErr error, asJSON bool) error {
	tools := catalog.ListTools()

	if asJSON {
		return writeJSON(out, toolListing{Tools: tools, LoadErrors: errorDetails(loadErr)})
	}

	if len(tools) == 0 {
		fmt.Fprintln(out, "No tools registered.")
		return nil
	}
	writer := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tPLUGIN\tDESCRIPTION")
	for _, t := range tools {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", t.Name, t.Plugin, t.Description)
	}
	return writer.Flush()
}
