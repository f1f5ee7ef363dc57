package ports

import (
	"context"
	"errors"
)

// ErrSymbolNotFound is returned by Module.Lookup for an unknown symbol.
var ErrSymbolNotFound = errors.New("symbol not found")

// Symbol is a resolved module export: a function reference from package abi
// or an entities.Version for the version constant.
type Symbol any

// Memory is a read view of a module's address space.
type Memory interface {
	// Read returns byteCount bytes at offset, or false if the range is out
	// of bounds. The returned slice may alias module memory and is only
	// valid until the next call into the module.
	Read(offset, byteCount uint32) ([]byte, bool)
}

// Module is an opened plugin module.
type Module interface {
	// Name identifies the module, usually its path.
	Name() string

	// Lookup resolves an exported symbol by its fixed name.
	Lookup(name string) (Symbol, error)

	// Memory returns the module's memory, where buffers it produces live.
	Memory() Memory

	// Close unloads the module. Symbols must not be used afterwards.
	Close(ctx context.Context) error
}

// ModuleOpener opens modules by path.
type ModuleOpener interface {
	Open(ctx context.Context, path string) (Module, error)
}
