package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/toolhost/application/validation"
	"github.com/reglet-dev/toolhost/domain/entities"
	domainerrors "github.com/reglet-dev/toolhost/domain/errors"
)

// NewExecCmd creates the "exec" subcommand.
func NewExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <tool> [args]",
		Short: "Invoke a tool and print its result",
		Long: "Invoke a tool with the given argument bytes (usually JSON) and print the result.\n" +
			"Arguments default to {}; use - to read them from stdin.",
		Args: cobra.RangeArgs(1, 2),
		RunE: runExec,
	}
	cmd.Flags().String("args-file", "", "Read arguments from a file")
	cmd.Flags().Bool("validate", false, "Check arguments against the tool's parameters schema first")
	cmd.Flags().Bool("json", false, "Print the result or the structured error as JSON")
	return cmd
}

// execResult is the --json output of exec.
type execResult struct {
	Result *string               `json:"result,omitempty"`
	Error  *entities.ErrorDetail `json:"error,omitempty"`
}

func runExec(cmd *cobra.Command, args []string) error {
	name := args[0]
	input, err := readArgs(cmd, args[1:])
	if err != nil {
		return err
	}
	check, _ := cmd.Flags().GetBool("validate")
	asJSON, _ := cmd.Flags().GetBool("json")

	return withSession(cmd, func(s *session) error {
		if check {
			if err := validateArgs(s, name, input); err != nil {
				return err
			}
		}

		w := cmd.OutOrStdout()
		out, err := s.host.Execute(cmd.Context(), name, input)
		if err != nil {
			code := exitToolFailed
			var toolErr *domainerrors.ToolError
			if errors.As(err, &toolErr) && toolErr.Kind == domainerrors.NotFound {
				code = exitValidation
			}
			if asJSON {
				if werr := writeJSON(w, execResult{Error: domainerrors.ToErrorDetail(err)}); werr != nil {
					return werr
				}
			}
			return exitError(code, "%v", err)
		}

		if asJSON {
			result := string(out)
			return writeJSON(w, execResult{Result: &result})
		}
		if _, err := w.Write(out); err != nil {
			return err
		}
		fmt.Fprintln(w)
		return nil
	})
}

// readArgs returns the invocation arguments from the positional argument,
// stdin ("-") or --args-file.
func readArgs(cmd *cobra.Command, rest []string) ([]byte, error) {
	file, _ := cmd.Flags().GetString("args-file")
	switch {
	case file != "" && len(rest) > 0:
		return nil, exitError(exitValidation, "pass arguments either inline or with --args-file, not both")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, exitError(exitValidation, "reading arguments: %v", err)
		}
		return data, nil
	case len(rest) == 0:
		return []byte("{}"), nil
	case rest[0] == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	default:
		return []byte(rest[0]), nil
	}
}

func validateArgs(s *session, name string, input []byte) error {
	tool, ok := s.host.Registry().Lookup(name)
	if !ok {
		return exitError(exitValidation, "%v", &domainerrors.ToolError{Kind: domainerrors.NotFound, Tool: name})
	}

	res, err := validation.NewArgsValidator().Validate(tool.Info(), input)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	if err := res.Err(); err != nil {
		return exitError(exitValidation, "invalid arguments for %s: %v", name, err)
	}
	return nil
}
