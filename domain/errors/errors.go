// Package errors provides the typed error taxonomy of the tool host.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/reglet-dev/toolhost/abi"
	"github.com/reglet-dev/toolhost/domain/entities"
)

var (
	// ErrNotQuiescent is returned when a module cannot be unloaded because
	// invocations against its tools are still in flight.
	ErrNotQuiescent = stdErrors.New("plugin has in-flight invocations")

	// ErrUnloadInProgress is returned when another Unload of the same
	// module has already started.
	ErrUnloadInProgress = stdErrors.New("plugin unload already in progress")

	// ErrHandleNotFound is returned for an unknown plugin handle ID.
	ErrHandleNotFound = stdErrors.New("plugin handle not found")

	// ErrClosed is returned by a host that has been closed.
	ErrClosed = stdErrors.New("host is closed")
)

// DetailedError is implemented by errors that can describe themselves as an
// entities.ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to our structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return entities.NewErrorDetail("internal", err.Error())
}

// LoadErrorKind enumerates why a module failed to load.
type LoadErrorKind int

const (
	// OpenFailed means the module could not be opened.
	OpenFailed LoadErrorKind = iota + 1
	// MissingEntryPoint means a required symbol is absent or has the wrong type.
	MissingEntryPoint
	// RegistrationFailed means the module's registration entry reported failure.
	RegistrationFailed
	// ConfigureFailed means the optional configure entry reported failure.
	ConfigureFailed
	// InitFailed means the optional init entry reported failure.
	InitFailed
)

func (k LoadErrorKind) String() string {
	switch k {
	case OpenFailed:
		return "open_failed"
	case MissingEntryPoint:
		return "missing_entry_point"
	case RegistrationFailed:
		return "registration_failed"
	case ConfigureFailed:
		return "configure_failed"
	case InitFailed:
		return "init_failed"
	default:
		return "unknown"
	}
}

// LoadError reports a failed module load. A failed load never affects
// modules that are already loaded.
type LoadError struct {
	Err    error
	Path   string
	Symbol string // set for MissingEntryPoint
	// Message is a module-supplied description, e.g. from the init entry.
	Message string
	Kind    LoadErrorKind
	Status  abi.Status
}

func (e *LoadError) Error() string {
	msg := e.summary()
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// summary is Error without the wrapped error.
func (e *LoadError) summary() string {
	msg := fmt.Sprintf("load %s: %s", e.Path, e.Kind)
	if e.Symbol != "" {
		msg += fmt.Sprintf(" %q", e.Symbol)
	}
	if e.Status != abi.StatusOK {
		msg += fmt.Sprintf(" (status %d)", int32(e.Status))
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is matches another *LoadError of the same Kind, so callers can write
// errors.Is(err, &LoadError{Kind: RegistrationFailed}).
func (e *LoadError) Is(target error) bool {
	t, ok := target.(*LoadError)
	return ok && t.Kind == e.Kind
}

// ToErrorDetail implements DetailedError.
func (e *LoadError) ToErrorDetail() *entities.ErrorDetail {
	var de DetailedError
	if stdErrors.As(e.Err, &de) {
		d := entities.NewErrorDetail("load", e.summary()).WithCode(e.Kind.String())
		d.Status = int32(e.Status)
		d.Wrapped = de.ToErrorDetail()
		return d
	}
	d := entities.NewErrorDetail("load", e.Error()).WithCode(e.Kind.String())
	d.Status = int32(e.Status)
	return d
}

// RegistrationErrorKind enumerates why a single tool declaration was rejected.
type RegistrationErrorKind int

const (
	// DuplicateName means the tool name is already present in the registry.
	DuplicateName RegistrationErrorKind = iota + 1
	// InvalidDeclaration means a required declaration field is empty.
	InvalidDeclaration
)

func (k RegistrationErrorKind) String() string {
	switch k {
	case DuplicateName:
		return "duplicate_name"
	case InvalidDeclaration:
		return "invalid_declaration"
	default:
		return "unknown"
	}
}

// Status maps the kind to the status code Registrar.Register returns.
func (k RegistrationErrorKind) Status() abi.Status {
	switch k {
	case DuplicateName:
		return abi.StatusDuplicateName
	case InvalidDeclaration:
		return abi.StatusInvalidDeclaration
	default:
		return abi.StatusFailed
	}
}

// RegistrationError reports a rejected tool declaration. It surfaces wrapped
// inside a LoadError of kind RegistrationFailed.
type RegistrationError struct {
	Name   string
	Reason string
	Kind   RegistrationErrorKind
}

func (e *RegistrationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("register tool %q: %s: %s", e.Name, e.Kind, e.Reason)
	}
	return fmt.Sprintf("register tool %q: %s", e.Name, e.Kind)
}

// Is matches another *RegistrationError of the same Kind.
func (e *RegistrationError) Is(target error) bool {
	t, ok := target.(*RegistrationError)
	return ok && t.Kind == e.Kind
}

// ToErrorDetail implements DetailedError.
func (e *RegistrationError) ToErrorDetail() *entities.ErrorDetail {
	return entities.NewErrorDetail("registration", e.Error()).WithCode(e.Kind.String())
}

// ToolErrorKind enumerates invocation failures.
type ToolErrorKind int

const (
	// NotFound means no tool with that name is registered.
	NotFound ToolErrorKind = iota + 1
	// ExecutionFailed means the tool returned a nonzero status.
	ExecutionFailed
	// MalformedResult means the tool reported success but produced an
	// unusable result buffer.
	MalformedResult
)

func (k ToolErrorKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case ExecutionFailed:
		return "execution_failed"
	case MalformedResult:
		return "malformed_result"
	default:
		return "unknown"
	}
}

// ToolError is the typed result of a failed invocation.
type ToolError struct {
	Tool   string
	Reason string
	Kind   ToolErrorKind
	Status abi.Status // set for ExecutionFailed
}

func (e *ToolError) Error() string {
	switch {
	case e.Kind == ExecutionFailed:
		return fmt.Sprintf("tool %q: %s with status %d", e.Tool, e.Kind, int32(e.Status))
	case e.Reason != "":
		return fmt.Sprintf("tool %q: %s: %s", e.Tool, e.Kind, e.Reason)
	default:
		return fmt.Sprintf("tool %q: %s", e.Tool, e.Kind)
	}
}

// Is matches another *ToolError of the same Kind.
func (e *ToolError) Is(target error) bool {
	t, ok := target.(*ToolError)
	return ok && t.Kind == e.Kind
}

// ToErrorDetail implements DetailedError.
func (e *ToolError) ToErrorDetail() *entities.ErrorDetail {
	d := entities.NewErrorDetail("tool", e.Error()).WithCode(e.Kind.String())
	d.Status = int32(e.Status)
	return d
}

// ConfigError represents a host configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return entities.NewErrorDetail("config", e.Error()).WithCode(e.Field)
}
