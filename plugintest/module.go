package plugintest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/reglet-dev/toolhost/abi"
	"github.com/reglet-dev/toolhost/domain/entities"
	"github.com/reglet-dev/toolhost/domain/ports"
)

// HandlerFunc computes a tool result. A non-nil error makes the tool return
// StatusFailed without producing a buffer.
type HandlerFunc func(ctx context.Context, args []byte) ([]byte, error)

// Tool describes a tool the module declares during registration.
type Tool struct {
	Name        string
	Description string
	Schema      string
	Handler     HandlerFunc

	// Execute, when set, replaces the Handler-based execute entry entirely.
	Execute abi.ExecuteFunc

	// OwnRelease makes the tool declare its own release entry instead of
	// relying on the module default.
	OwnRelease bool
}

// Release records one call to a release entry.
type Release struct {
	Ptr abi.Pointer
	Len uint32
	// Via is "default" or the name of the tool whose release was used.
	Via string
}

// Module is an in-process plugin module with an instrumented allocator.
// It implements ports.Module.
type Module struct {
	name     string
	version  entities.Version
	arena    *Arena
	tools    []Tool
	register abi.RegisterFunc
	omit     map[string]bool

	configure    abi.ConfigureFunc
	init         abi.InitFunc
	configSchema string

	mu         sync.Mutex
	releases   []Release
	mismatches []error
	configs    [][]byte

	executeCalls  atomic.Int64
	registerCalls atomic.Int64
	closeCalls    atomic.Int64
}

// ModuleOption configures a Module.
type ModuleOption func(*Module)

// WithVersion sets the embedded API version.
func WithVersion(v entities.Version) ModuleOption {
	return func(m *Module) {
		m.version = v
	}
}

// WithTool adds a tool declared by the default register entry.
func WithTool(t Tool) ModuleOption {
	return func(m *Module) {
		m.tools = append(m.tools, t)
	}
}

// WithRegister replaces the default register entry.
func WithRegister(fn abi.RegisterFunc) ModuleOption {
	return func(m *Module) {
		m.register = fn
	}
}

// WithoutSymbol hides an exported symbol from Lookup.
func WithoutSymbol(name string) ModuleOption {
	return func(m *Module) {
		m.omit[name] = true
	}
}

// WithConfigure exports a configure entry.
func WithConfigure(fn abi.ConfigureFunc) ModuleOption {
	return func(m *Module) {
		m.configure = fn
	}
}

// WithInit exports an init entry.
func WithInit(fn abi.InitFunc) ModuleOption {
	return func(m *Module) {
		m.init = fn
	}
}

// WithConfigSchema exports a config schema entry returning schema.
func WithConfigSchema(schema string) ModuleOption {
	return func(m *Module) {
		m.configSchema = schema
	}
}

// NewModule creates a module named name (the path an Opener serves it at).
// Its version defaults to abi.HostVersion.
func NewModule(name string, opts ...ModuleOption) *Module {
	m := &Module{
		name:    name,
		version: abi.HostVersion,
		arena:   NewArena(),
		omit:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements ports.Module.
func (m *Module) Name() string { return m.name }

// Memory implements ports.Module.
func (m *Module) Memory() ports.Memory { return m.arena }

// Arena returns the module's allocator.
func (m *Module) Arena() *Arena { return m.arena }

// Close implements ports.Module.
func (m *Module) Close(context.Context) error {
	m.closeCalls.Add(1)
	return nil
}

// Lookup implements ports.Module. Function symbols carry the exact abi
// function types the loader asserts on.
func (m *Module) Lookup(name string) (ports.Symbol, error) {
	if m.omit[name] {
		return nil, fmt.Errorf("%s: %w", name, ports.ErrSymbolNotFound)
	}

	switch name {
	case abi.SymbolVersion:
		return m.version, nil
	case abi.SymbolRegister:
		return abi.RegisterFunc(m.registerEntry), nil
	case abi.SymbolRelease:
		return abi.ReleaseFunc(m.releaser("default")), nil
	case abi.SymbolConfigure:
		if m.configure != nil {
			return abi.ConfigureFunc(m.configureEntry), nil
		}
	case abi.SymbolInit:
		if m.init != nil {
			return m.init, nil
		}
	case abi.SymbolConfigSchema:
		if m.configSchema != "" {
			return abi.ConfigSchemaFunc(m.configSchemaEntry), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ports.ErrSymbolNotFound)
}

func (m *Module) registerEntry(ctx context.Context, r abi.Registrar) abi.Status {
	m.registerCalls.Add(1)
	if m.register != nil {
		return m.register(ctx, r)
	}
	for _, t := range m.tools {
		if status := r.Register(ctx, m.Declaration(t)); !status.OK() {
			return status
		}
	}
	return abi.StatusOK
}

// Declaration builds the declaration the default register entry submits for
// t. Custom register entries use it to declare tools by hand.
func (m *Module) Declaration(t Tool) abi.ToolDeclaration {
	decl := abi.ToolDeclaration{
		Name:             t.Name,
		Description:      t.Description,
		ParametersSchema: t.Schema,
		Execute:          t.Execute,
	}
	if decl.Execute == nil && t.Handler != nil {
		decl.Execute = m.executor(t.Handler)
	}
	if t.OwnRelease {
		decl.Release = m.releaser(t.Name)
	}
	return decl
}

func (m *Module) executor(handler HandlerFunc) abi.ExecuteFunc {
	return func(ctx context.Context, args []byte, out *abi.Buffer) abi.Status {
		m.executeCalls.Add(1)
		result, err := handler(ctx, args)
		if err != nil {
			return abi.StatusFailed
		}
		*out = m.arena.Alloc(result)
		return abi.StatusOK
	}
}

func (m *Module) releaser(via string) func(context.Context, abi.Pointer, uint32) {
	return func(_ context.Context, ptr abi.Pointer, length uint32) {
		err := m.arena.Free(ptr, length)

		m.mu.Lock()
		defer m.mu.Unlock()
		m.releases = append(m.releases, Release{Ptr: ptr, Len: length, Via: via})
		if err != nil {
			m.mismatches = append(m.mismatches, err)
		}
	}
}

func (m *Module) configureEntry(ctx context.Context, config []byte) abi.Status {
	m.mu.Lock()
	m.configs = append(m.configs, append([]byte(nil), config...))
	m.mu.Unlock()
	return m.configure(ctx, config)
}

func (m *Module) configSchemaEntry(_ context.Context, out *abi.Buffer) abi.Status {
	*out = m.arena.Alloc([]byte(m.configSchema))
	return abi.StatusOK
}

// Fail stores msg in module memory as an init error message and returns
// StatusFailed. It is meant to be called from a WithInit entry.
func (m *Module) Fail(out *abi.Buffer, msg string) abi.Status {
	*out = m.arena.Alloc([]byte(msg))
	return abi.StatusFailed
}

// Releases returns every release call so far.
func (m *Module) Releases() []Release {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Release(nil), m.releases...)
}

// ReleaseErr joins every release that did not match a live allocation.
func (m *Module) ReleaseErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return errors.Join(m.mismatches...)
}

// Configs returns every configuration the module received.
func (m *Module) Configs() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.configs...)
}

// ExecuteCalls returns how many times a Handler-based execute entry ran.
func (m *Module) ExecuteCalls() int64 { return m.executeCalls.Load() }

// RegisterCalls returns how many times the register entry ran.
func (m *Module) RegisterCalls() int64 { return m.registerCalls.Load() }

// CloseCalls returns how many times the module was closed.
func (m *Module) CloseCalls() int64 { return m.closeCalls.Load() }
