package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reglet-dev/toolhost/abi"
	"github.com/reglet-dev/toolhost/domain/entities"
	domainerrors "github.com/reglet-dev/toolhost/domain/errors"
	"github.com/reglet-dev/toolhost/domain/ports"
	"github.com/reglet-dev/toolhost/host/registry"
)

// Host wires one Registry to a Loader and a Bridge and tracks the handles of
// loaded modules. Create it with New and release it with Close.
type Host struct {
	config   config
	registry *registry.Registry
	loader   *Loader
	bridge   *Bridge
	logger   *slog.Logger

	mu      sync.Mutex
	handles map[string]*PluginHandle
	order   []string
	closed  bool
}

// New creates a Host. WithOpener is required.
func New(opts ...Option) (*Host, error) {
	cfg := newConfig(opts)
	if cfg.opener == nil {
		return nil, errors.New("host: no module opener configured")
	}
	if cfg.registry == nil {
		cfg.registry = registry.New(registry.WithLogger(cfg.logger))
	}

	// Loader and Bridge share the already-resolved config.
	return &Host{
		config:   cfg,
		registry: cfg.registry,
		loader:   &Loader{opener: cfg.opener, registry: cfg.registry, config: cfg},
		bridge: &Bridge{
			registry:      cfg.registry,
			logger:        cfg.logger,
			observer:      cfg.observer,
			maxResultSize: cfg.maxResultSize,
		},
		logger:  cfg.logger,
		handles: make(map[string]*PluginHandle),
	}, nil
}

// Registry returns the host's tool registry.
func (h *Host) Registry() *registry.Registry { return h.registry }

// HostVersion returns the API version modules are evaluated against.
func (h *Host) HostVersion() entities.Version { return h.config.hostVersion }

// Load loads one module and registers its tools.
func (h *Host) Load(ctx context.Context, path string, opts ...LoadOption) (*PluginHandle, error) {
	if h.isClosed() {
		return nil, domainerrors.ErrClosed
	}

	handle, err := h.loader.Load(ctx, path, opts...)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		h.registry.RemoveOwner(handle)
		_ = handle.close(ctx)
		return nil, domainerrors.ErrClosed
	}
	h.handles[handle.ID()] = handle
	h.order = append(h.order, handle.ID())
	return handle, nil
}

// LoadAll loads the configured modules concurrently, at most
// WithLoadConcurrency at a time. Each failure is reported in the joined
// error; modules that loaded successfully stay loaded. Once ctx is done,
// modules not yet started are skipped.
func (h *Host) LoadAll(ctx context.Context, modules []entities.ModuleConfig) ([]*PluginHandle, error) {
	handles := make([]*PluginHandle, len(modules))
	errs := make([]error, len(modules))

	var g errgroup.Group
	g.SetLimit(h.config.loadConcurrency)
	for i, m := range modules {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var opts []LoadOption
			if m.Config != nil {
				raw, err := json.Marshal(m.Config)
				if err != nil {
					errs[i] = &domainerrors.ConfigError{Field: fmt.Sprintf("modules[%d].config", i), Err: err}
					return nil
				}
				opts = append(opts, WithModuleConfig(raw))
			}
			handles[i], errs[i] = h.Load(ctx, m.Path, opts...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, fmt.Errorf("load all: %w", err))
	}

	loaded := make([]*PluginHandle, 0, len(modules))
	for _, hd := range handles {
		if hd != nil {
			loaded = append(loaded, hd)
		}
	}
	return loaded, errors.Join(errs...)
}

// Execute invokes a registered tool. See Bridge.Execute.
func (h *Host) Execute(ctx context.Context, name string, args []byte) ([]byte, error) {
	return h.bridge.Execute(ctx, name, args)
}

var _ ports.ToolCatalog = (*Host)(nil)

// ListTools returns the registered tools in registration order.
func (h *Host) ListTools() []entities.ToolInfo {
	return h.registry.List()
}

// Handle returns a loaded module's handle by ID.
func (h *Host) Handle(id string) (*PluginHandle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hd, ok := h.handles[id]
	return hd, ok
}

// Handles returns the loaded modules in load order.
func (h *Host) Handles() []*PluginHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*PluginHandle, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.handles[id])
	}
	return out
}

// ConfigSchema asks a module for its configuration JSON Schema. It returns
// nil when the module does not export the optional entry.
func (h *Host) ConfigSchema(ctx context.Context, id string) ([]byte, error) {
	hd, ok := h.Handle(id)
	if !ok {
		return nil, domainerrors.ErrHandleNotFound
	}
	entry := hd.descriptor.ConfigSchema
	if entry == nil {
		return nil, nil
	}
	if !hd.acquire() {
		return nil, domainerrors.ErrHandleNotFound
	}
	defer hd.done()

	var out abi.Buffer
	status := guard(ctx, h.logger, hd.path, abi.SymbolConfigSchema, func() abi.Status {
		return entry(ctx, &out)
	})
	if !status.OK() {
		return nil, fmt.Errorf("%s returned status %d", abi.SymbolConfigSchema, int32(status))
	}
	return takeBuffer(ctx, h.logger, hd.Memory(), hd.descriptor.Release, out, h.config.maxResultSize)
}

// Unload removes a module's tools and closes it. It does not wait: if any
// invocation is in flight it returns errors.ErrNotQuiescent and the module
// stays loaded; callers poll PluginHandle.InFlight and retry.
func (h *Host) Unload(ctx context.Context, id string) error {
	h.mu.Lock()
	hd, ok := h.handles[id]
	h.mu.Unlock()
	if !ok {
		return domainerrors.ErrHandleNotFound
	}

	switch hd.beginClose() {
	case closeStarted:
	case closeBusy:
		return fmt.Errorf("unload %s: %w (%d in flight)", hd.path, domainerrors.ErrNotQuiescent, hd.InFlight())
	default:
		if hd.Closed() {
			return domainerrors.ErrHandleNotFound
		}
		return fmt.Errorf("unload %s: %w", hd.path, domainerrors.ErrUnloadInProgress)
	}

	removed := h.registry.RemoveOwner(hd)

	h.mu.Lock()
	delete(h.handles, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.mu.Unlock()

	h.logger.InfoContext(ctx, "plugin unloaded", "plugin", hd.path, "id", id, "tools", removed)
	return hd.close(ctx)
}

// Close unloads every module that is quiescent and marks the host closed.
// Modules with invocations in flight are reported in the returned error.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	ids := make([]string, len(h.order))
	copy(ids, h.order)
	h.mu.Unlock()

	var errs []error
	for _, id := range ids {
		err := h.Unload(ctx, id)
		if err != nil && !errors.Is(err, domainerrors.ErrHandleNotFound) && !errors.Is(err, domainerrors.ErrUnloadInProgress) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Host) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
