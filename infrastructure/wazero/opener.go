package wazero

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/reglet-dev/toolhost/domain/ports"
)

// DefaultHostModuleName is the import module guests link against.
const DefaultHostModuleName = "mcp_host"

// DefaultMaxStringSize bounds strings and log payloads read from guest memory.
const DefaultMaxStringSize = 1 << 20

// OpenerConfig holds configuration for the Opener.
type OpenerConfig struct {
	// HostModuleName is the import module name (default: "mcp_host").
	HostModuleName string

	// MaxStringSize limits strings read from guest memory during
	// registration and logging. Default is 1MB.
	MaxStringSize uint32

	// Logger receives guest log messages and adapter diagnostics.
	Logger *slog.Logger

	// WASI instantiates wasi_snapshot_preview1 so guests built for wasip1
	// can link. Enabled by default.
	WASI bool
}

// OpenerOption configures the Opener.
type OpenerOption func(*OpenerConfig)

// WithHostModuleName sets the import module name (default: "mcp_host").
func WithHostModuleName(name string) OpenerOption {
	return func(c *OpenerConfig) {
		c.HostModuleName = name
	}
}

// WithMaxStringSize sets the maximum size of strings read from guest memory.
func WithMaxStringSize(size uint32) OpenerOption {
	return func(c *OpenerConfig) {
		c.MaxStringSize = size
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) OpenerOption {
	return func(c *OpenerConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithoutWASI skips instantiating wasi_snapshot_preview1.
func WithoutWASI() OpenerOption {
	return func(c *OpenerConfig) {
		c.WASI = false
	}
}

func defaultOpenerConfig() OpenerConfig {
	return OpenerConfig{
		HostModuleName: DefaultHostModuleName,
		MaxStringSize:  DefaultMaxStringSize,
		Logger:         slog.Default(),
		WASI:           true,
	}
}

// Opener compiles and instantiates .wasm files on a shared runtime.
// It implements ports.ModuleOpener.
type Opener struct {
	config     OpenerConfig
	runtime    wazero.Runtime
	registrars *registrarTable
	seq        atomic.Uint64
}

// NewOpener creates a runtime, instantiates the host import module on it and
// returns an Opener. Close releases the runtime and every module opened
// through it.
func NewOpener(ctx context.Context, opts ...OpenerOption) (*Opener, error) {
	cfg := defaultOpenerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	o := &Opener{
		config:     cfg,
		runtime:    wazero.NewRuntime(ctx),
		registrars: newRegistrarTable(),
	}

	if cfg.WASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, o.runtime); err != nil {
			_ = o.runtime.Close(ctx)
			return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
		}
	}

	if err := o.instantiateHostModule(ctx); err != nil {
		_ = o.runtime.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}
	return o, nil
}

// Open reads, compiles and instantiates the module at path.
func (o *Opener) Open(ctx context.Context, path string) (ports.Module, error) {
	binary, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return o.OpenBytes(ctx, path, binary)
}

// OpenBytes compiles and instantiates binary, naming the result path.
func (o *Opener) OpenBytes(ctx context.Context, path string, binary []byte) (*Module, error) {
	compiled, err := o.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}

	// Instance names must be unique per runtime; the same file may be
	// opened more than once.
	name := fmt.Sprintf("%s#%d", filepath.Base(path), o.seq.Add(1))
	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions("_initialize")

	mod, err := o.runtime.InstantiateModule(withPluginPath(ctx, path), compiled, cfg)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}

	return newModule(path, mod, compiled, o), nil
}

// Close releases the runtime.
func (o *Opener) Close(ctx context.Context) error {
	return o.runtime.Close(ctx)
}
