package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/reglet-dev/toolhost/abi"
	"github.com/reglet-dev/toolhost/domain/entities"
	domainerrors "github.com/reglet-dev/toolhost/domain/errors"
	"github.com/reglet-dev/toolhost/domain/ports"
	"github.com/reglet-dev/toolhost/host/registry"
)

// Loader opens modules, resolves their entry points, evaluates their version
// and drives their registration into the shared registry. Distinct modules
// may be loaded concurrently.
type Loader struct {
	opener   ports.ModuleOpener
	registry *registry.Registry
	config   config
}

// NewLoader creates a Loader that opens modules with opener and registers
// their tools into reg.
func NewLoader(opener ports.ModuleOpener, reg *registry.Registry, opts ...Option) *Loader {
	return &Loader{
		opener:   opener,
		registry: reg,
		config:   newConfig(opts),
	}
}

// Load opens the module at path and registers its tools. On any failure the
// module is closed, none of its tools remain registered, and a
// *errors.LoadError is returned. A major version mismatch is logged as a
// warning and does not fail the load.
func (l *Loader) Load(ctx context.Context, path string, opts ...LoadOption) (*PluginHandle, error) {
	var req loadRequest
	for _, opt := range opts {
		opt(&req)
	}

	mod, err := l.opener.Open(ctx, path)
	if err != nil {
		l.config.observer.pluginLoaded(ctx, "open_failed")
		return nil, &domainerrors.LoadError{Kind: domainerrors.OpenFailed, Path: path, Err: err}
	}

	h, err := l.load(ctx, path, mod, req)
	if err != nil {
		if closeErr := mod.Close(ctx); closeErr != nil {
			l.config.logger.WarnContext(ctx, "failed to close rejected module", "plugin", path, "error", closeErr)
		}
		var loadErr *domainerrors.LoadError
		if errors.As(err, &loadErr) {
			l.config.observer.pluginLoaded(ctx, loadErr.Kind.String())
		}
		l.config.logger.ErrorContext(ctx, "plugin load failed", "plugin", path, "error", err)
		return nil, err
	}

	l.config.observer.pluginLoaded(ctx, "loaded")
	return h, nil
}

func (l *Loader) load(ctx context.Context, path string, mod ports.Module, req loadRequest) (*PluginHandle, error) {
	desc, err := resolveDescriptor(mod)
	if err != nil {
		var loadErr *domainerrors.LoadError
		if errors.As(err, &loadErr) {
			loadErr.Path = path
		}
		return nil, err
	}

	compat := entities.Evaluate(l.config.hostVersion, desc.Version)
	if compat == entities.MajorMismatch {
		l.config.logger.WarnContext(ctx, "plugin major version differs from host; loading anyway",
			"plugin", path,
			"plugin_version", desc.Version.String(),
			"host_version", l.config.hostVersion.String(),
		)
	}

	h := newPluginHandle(path, mod, desc, compat)

	if err := l.configure(ctx, h, req.moduleConfig); err != nil {
		return nil, err
	}
	if err := l.initialize(ctx, h); err != nil {
		return nil, err
	}

	registrar := l.registry.NewRegistrar(h)
	status := guard(ctx, l.config.logger, path, abi.SymbolRegister, func() abi.Status {
		return desc.Register(ctx, registrar)
	})
	if !status.OK() {
		removed := registrar.Rollback()
		if len(removed) > 0 {
			l.config.logger.InfoContext(ctx, "rolled back tools of failed registration", "plugin", path, "tools", removed)
		}
		return nil, &domainerrors.LoadError{
			Kind:   domainerrors.RegistrationFailed,
			Path:   path,
			Status: status,
			Err:    registrar.Err(),
		}
	}
	registrar.Commit()

	l.config.logger.InfoContext(ctx, "plugin loaded",
		"plugin", path,
		"id", h.ID(),
		"version", desc.Version.String(),
		"compatibility", compat.String(),
		"tools", registrar.Names(),
	)
	return h, nil
}

func (l *Loader) configure(ctx context.Context, h *PluginHandle, raw []byte) error {
	if raw == nil {
		return nil
	}
	if h.descriptor.Configure == nil {
		l.config.logger.WarnContext(ctx, "module has no configure entry; configuration ignored", "plugin", h.path)
		return nil
	}
	status := guard(ctx, l.config.logger, h.path, abi.SymbolConfigure, func() abi.Status {
		return h.descriptor.Configure(ctx, raw)
	})
	if !status.OK() {
		return &domainerrors.LoadError{Kind: domainerrors.ConfigureFailed, Path: h.path, Status: status}
	}
	return nil
}

func (l *Loader) initialize(ctx context.Context, h *PluginHandle) error {
	if h.descriptor.Init == nil {
		return nil
	}

	var out abi.Buffer
	status := guard(ctx, l.config.logger, h.path, abi.SymbolInit, func() abi.Status {
		return h.descriptor.Init(ctx, &out)
	})
	if status.OK() {
		if !out.IsNull() {
			callRelease(ctx, l.config.logger, h.descriptor.Release, out)
		}
		return nil
	}

	loadErr := &domainerrors.LoadError{Kind: domainerrors.InitFailed, Path: h.path, Status: status}
	if !out.IsNull() {
		msg, err := takeBuffer(ctx, l.config.logger, h.Memory(), h.descriptor.Release, out, l.config.maxResultSize)
		if err == nil {
			loadErr.Message = string(msg)
		}
	}
	return loadErr
}

// guard runs a module entry, converting a panic from an in-process module
// into StatusPanic.
func guard(ctx context.Context, logger *slog.Logger, path, entry string, fn func() abi.Status) (status abi.Status) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "module entry panicked", "plugin", path, "entry", entry, "panic", r)
			status = abi.StatusPanic
		}
	}()
	return fn()
}

// resolveDescriptor looks up the three required entry points and the
// optional ones.
func resolveDescriptor(mod ports.Module) (Descriptor, error) {
	var desc Descriptor
	var err error

	if desc.Version, err = resolveVersion(mod); err != nil {
		return Descriptor{}, err
	}
	if desc.Register, err = resolve[abi.RegisterFunc](mod, abi.SymbolRegister); err != nil {
		return Descriptor{}, err
	}
	if desc.Release, err = resolve[abi.ReleaseFunc](mod, abi.SymbolRelease); err != nil {
		return Descriptor{}, err
	}

	if desc.Configure, err = resolveOptional[abi.ConfigureFunc](mod, abi.SymbolConfigure); err != nil {
		return Descriptor{}, err
	}
	if desc.Init, err = resolveOptional[abi.InitFunc](mod, abi.SymbolInit); err != nil {
		return Descriptor{}, err
	}
	if desc.ConfigSchema, err = resolveOptional[abi.ConfigSchemaFunc](mod, abi.SymbolConfigSchema); err != nil {
		return Descriptor{}, err
	}
	return desc, nil
}

func missing(name string, err error) error {
	return &domainerrors.LoadError{Kind: domainerrors.MissingEntryPoint, Symbol: name, Err: err}
}

func resolveVersion(mod ports.Module) (entities.Version, error) {
	sym, err := mod.Lookup(abi.SymbolVersion)
	if err != nil {
		return entities.Version{}, missing(abi.SymbolVersion, err)
	}
	switch v := sym.(type) {
	case entities.Version:
		return v, nil
	case *entities.Version:
		if v != nil {
			return *v, nil
		}
	}
	return entities.Version{}, missing(abi.SymbolVersion, fmt.Errorf("unexpected symbol type %T", sym))
}

// resolve looks up a required function entry of type F.
func resolve[F any](mod ports.Module, name string) (F, error) {
	var zero F
	sym, err := mod.Lookup(name)
	if err != nil {
		return zero, missing(name, err)
	}
	return assertEntry[F](name, sym)
}

// resolveOptional is resolve for entries a module may omit. An absent entry
// yields the zero value; a present entry of the wrong type is an error.
func resolveOptional[F any](mod ports.Module, name string) (F, error) {
	var zero F
	sym, err := mod.Lookup(name)
	if errors.Is(err, ports.ErrSymbolNotFound) {
		return zero, nil
	}
	if err != nil {
		return zero, missing(name, err)
	}
	return assertEntry[F](name, sym)
}

func assertEntry[F any](name string, sym ports.Symbol) (F, error) {
	var zero F
	fn, ok := sym.(F)
	if !ok {
		return zero, missing(name, fmt.Errorf("unexpected symbol type %T", sym))
	}
	if v := reflect.ValueOf(fn); v.Kind() == reflect.Func && v.IsNil() {
		return zero, missing(name, errors.New("symbol is nil"))
	}
	return fn, nil
}
