package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/toolhost/domain/entities"
	"github.com/reglet-dev/toolhost/host"
)

// pluginReport is the inspect view of one loaded module.
type pluginReport struct {
	ID            string          `json:"id"`
	Path          string          `json:"path"`
	Version       string          `json:"version"`
	HostVersion   string          `json:"host_version"`
	Compatibility string          `json:"compatibility"`
	LoadedAt      time.Time       `json:"loaded_at"`
	Entries       []string        `json:"optional_entries,omitempty"`
	Tools         []string        `json:"tools"`
	ConfigSchema  json.RawMessage `json:"config_schema,omitempty"`
}

// NewInspectCmd creates the "inspect" subcommand.
func NewInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show version, compatibility and tools of each loaded module",
		Args:  cobra.NoArgs,
		RunE:  runInspect,
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runInspect(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	return withSession(cmd, func(s *session) error {
		reports := make([]pluginReport, 0, len(s.handles))
		for _, hd := range s.host.Handles() {
			r, err := inspectHandle(cmd, s, hd)
			if err != nil {
				return err
			}
			reports = append(reports, r)
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		}
		printReports(out, reports)
		return nil
	})
}

func inspectHandle(cmd *cobra.Command, s *session, hd *host.PluginHandle) (pluginReport, error) {
	desc := hd.Descriptor()
	r := pluginReport{
		ID:            hd.ID(),
		Path:          hd.Path(),
		Version:       hd.Version().String(),
		HostVersion:   s.host.HostVersion().String(),
		Compatibility: hd.Compatibility().String(),
		LoadedAt:      hd.LoadedAt(),
		Tools:         s.host.Registry().ToolsOf(hd),
	}
	if desc.Configure != nil {
		r.Entries = append(r.Entries, "configure")
	}
	if desc.Init != nil {
		r.Entries = append(r.Entries, "init")
	}
	if desc.ConfigSchema != nil {
		r.Entries = append(r.Entries, "config_schema")
		schema, err := s.host.ConfigSchema(cmd.Context(), hd.ID())
		if err != nil {
			return pluginReport{}, exitError(exitRuntime, "reading config schema of %s: %v", hd.Path(), err)
		}
		if json.Valid(schema) {
			r.ConfigSchema = schema
		} else {
			s.logger.WarnContext(cmd.Context(), "module returned a config schema that is not JSON", "plugin", hd.Path())
		}
	}
	return r, nil
}

func printReports(w io.Writer, reports []pluginReport) {
	if len(reports) == 0 {
		fmt.Fprintln(w, "No modules loaded.")
		return
	}
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Plugin:         %s\n", r.Path)
		fmt.Fprintf(w, "ID:             %s\n", r.ID)
		fmt.Fprintf(w, "Version:        %s (host %s)\n", r.Version, r.HostVersion)
		compat := r.Compatibility
		if compat == entities.MajorMismatch.String() {
			compat += " (loaded anyway)"
		}
		fmt.Fprintf(w, "Compatibility:  %s\n", compat)
		if len(r.Entries) > 0 {
			fmt.Fprintf(w, "Entries:        %s\n", strings.Join(r.Entries, ", "))
		}
		fmt.Fprintf(w, "Tools:          %s\n", strings.Join(r.Tools, ", "))
		if len(r.ConfigSchema) > 0 {
			fmt.Fprintf(w, "Config schema:  %s\n", r.ConfigSchema)
		}
	}
}
