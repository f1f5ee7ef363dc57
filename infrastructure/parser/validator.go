package parser

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/reglet-dev/toolhost/domain/entities"
	domainerrors "github.com/reglet-dev/toolhost/domain/errors"
	"github.com/reglet-dev/toolhost/domain/ports"
)

// validate is a package-level singleton; validators cache struct metadata.
var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML key.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// StructValidator implements ConfigValidator with struct tags.
type StructValidator struct{}

// NewStructValidator creates a new StructValidator.
func NewStructValidator() ports.ConfigValidator {
	return &StructValidator{}
}

// Validate checks cfg and reports the first violation as a
// *errors.ConfigError naming the offending field.
func (v *StructValidator) Validate(cfg *entities.HostConfig) error {
	if cfg == nil {
		return &domainerrors.ConfigError{Err: errors.New("config is nil")}
	}

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		return &domainerrors.ConfigError{Field: field, Err: fieldError(fe)}
	}
	return &domainerrors.ConfigError{Err: err}
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return errors.New("is required")
	case "oneof":
		return errors.New("must be one of: " + fe.Param())
	default:
		return errors.New("failed on the '" + fe.Tag() + "' rule")
	}
}
