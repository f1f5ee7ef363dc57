package cli

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/reglet-dev/toolhost/domain/entities"
	domainerrors "github.com/reglet-dev/toolhost/domain/errors"
)

// errorDetails splits a joined error and converts each part.
func errorDetails(err error) []*entities.ErrorDetail {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return []*entities.ErrorDetail{domainerrors.ToErrorDetail(err)}
	}
	var details []*entities.ErrorDetail
	for _, e := range joined.Unwrap() {
		details = append(details, errorDetails(e)...)
	}
	return details
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
