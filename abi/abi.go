// Package abi defines the boundary contract between the tool host and a
// plugin module: status codes, the plain-data buffer descriptor, the fixed
// entry-point names and the function-reference types a module exposes.
//
// Every byte sequence a module hands to the host is described by a Buffer
// (pointer and length into the module's own memory) and must be returned to
// the module through the ReleaseFunc that module supplied. The host never
// frees module memory by any other means.
package abi

import (
	"context"
	"fmt"

	"github.com/reglet-dev/toolhost/domain/entities"
)

// HostVersion is the API version this host build implements.
var HostVersion = entities.Version{Major: 0, Minor: 1, Patch: 5}

// Fixed entry-point names resolved by the loader.
const (
	// SymbolVersion resolves to the module's embedded entities.Version.
	SymbolVersion = "mcp_plugin_version"
	// SymbolRegister resolves to the module's RegisterFunc.
	SymbolRegister = "mcp_plugin_register"
	// SymbolRelease resolves to the module's default ReleaseFunc.
	SymbolRelease = "mcp_plugin_release"

	// SymbolConfigure optionally resolves to a ConfigureFunc.
	SymbolConfigure = "mcp_plugin_configure"
	// SymbolInit optionally resolves to an InitFunc.
	SymbolInit = "mcp_plugin_init"
	// SymbolConfigSchema optionally resolves to a ConfigSchemaFunc.
	SymbolConfigSchema = "mcp_plugin_config_schema"
)

// Status is the return code of every module entry point.
// Zero is success; any other value is a module-defined failure.
type Status int32

const (
	// StatusOK reports success.
	StatusOK Status = 0
	// StatusFailed is the generic failure status used by the host's own
	// Registrar and by adapters that have no more specific code.
	StatusFailed Status = 1
	// StatusDuplicateName is returned by Registrar.Register when the tool
	// name is already taken anywhere in the registry.
	StatusDuplicateName Status = 2
	// StatusInvalidDeclaration is returned by Registrar.Register for an
	// empty name, an empty schema or a missing execute entry.
	StatusInvalidDeclaration Status = 3
	// StatusPanic is reported when an in-process module panicked.
	StatusPanic Status = -1
	// StatusTrap is reported when a wasm module trapped.
	StatusTrap Status = -2
)

// OK reports whether s is StatusOK.
func (s Status) OK() bool { return s == StatusOK }

func (s Status) String() string {
	return fmt.Sprintf("status(%d)", int32(s))
}

// Pointer is an address in a module's memory. Modules are 32-bit address
// spaces; zero is the null pointer.
type Pointer uint32

// Null is the null pointer.
const Null Pointer = 0

// Buffer describes a byte sequence that lives in a module's memory.
// It carries no ownership: whoever receives one from a module must hand the
// exact same pair back to that module's ReleaseFunc once.
type Buffer struct {
	Ptr Pointer
	Len uint32
}

// IsNull reports whether the buffer has a null pointer.
func (b Buffer) IsNull() bool { return b.Ptr == Null }

// RegisterFunc is the module's registration entry. It declares tools through
// r and returns StatusOK, or a failure status to abort the whole load.
type RegisterFunc func(ctx context.Context, r Registrar) Status

// ReleaseFunc returns a buffer to the allocator that produced it.
type ReleaseFunc func(ctx context.Context, ptr Pointer, length uint32)

// ExecuteFunc runs a tool. args is a read-only view that is valid only for
// the duration of the call. On success the callee stores a non-null result
// location in out and returns StatusOK. On failure it returns a nonzero
// status and must leave out untouched.
type ExecuteFunc func(ctx context.Context, args []byte, out *Buffer) Status

// ConfigureFunc hands the module its JSON configuration.
type ConfigureFunc func(ctx context.Context, config []byte) Status

// InitFunc lets the module set up resources after configuration. On failure
// it may store an error message buffer in out, released with the default
// ReleaseFunc.
type InitFunc func(ctx context.Context, out *Buffer) Status

// ConfigSchemaFunc stores the module's configuration JSON Schema in out.
type ConfigSchemaFunc func(ctx context.Context, out *Buffer) Status

// Registrar is the single-operation capability handed to RegisterFunc.
type Registrar interface {
	Register(ctx context.Context, decl ToolDeclaration) Status
}

// ToolDeclaration is what a module declares for each tool. The host copies
// the strings and retains the function references.
type ToolDeclaration struct {
	Name        string
	Description string
	// ParametersSchema is JSON Schema text; the host does not interpret it.
	ParametersSchema string
	Execute          ExecuteFunc
	// Release frees buffers produced by Execute. Nil selects the module's
	// default release entry.
	Release ReleaseFunc
}
