package host

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/reglet-dev/toolhost/abi"
	"github.com/reglet-dev/toolhost/domain/entities"
	"github.com/reglet-dev/toolhost/domain/ports"
)

// Descriptor is the set of entry points resolved from a module at load time.
// It is immutable once constructed.
type Descriptor struct {
	Version  entities.Version
	Register abi.RegisterFunc
	Release  abi.ReleaseFunc

	// Optional entries; nil when the module does not export them.
	Configure    abi.ConfigureFunc
	Init         abi.InitFunc
	ConfigSchema abi.ConfigSchemaFunc
}

// PluginHandle owns a loaded module. Tools registered from it refer back to
// the handle, and the handle counts invocations in flight against them.
type PluginHandle struct {
	id         string
	path       string
	module     ports.Module
	descriptor Descriptor
	compat     entities.Compatibility
	loadedAt   time.Time

	inflight atomic.Int64
	closing  atomic.Bool
	closed   atomic.Bool
}

func newPluginHandle(path string, mod ports.Module, desc Descriptor, compat entities.Compatibility) *PluginHandle {
	return &PluginHandle{
		id:         uuid.NewString(),
		path:       path,
		module:     mod,
		descriptor: desc,
		compat:     compat,
		loadedAt:   time.Now(),
	}
}

// ID returns the handle's unique identifier.
func (h *PluginHandle) ID() string { return h.id }

// Path returns the path the module was loaded from.
func (h *PluginHandle) Path() string { return h.path }

// Version returns the module's embedded API version.
func (h *PluginHandle) Version() entities.Version { return h.descriptor.Version }

// Compatibility returns the result of the load-time version evaluation.
func (h *PluginHandle) Compatibility() entities.Compatibility { return h.compat }

// Descriptor returns the module's resolved entry points.
func (h *PluginHandle) Descriptor() Descriptor { return h.descriptor }

// LoadedAt returns when the module finished loading.
func (h *PluginHandle) LoadedAt() time.Time { return h.loadedAt }

// Memory returns the module's memory.
func (h *PluginHandle) Memory() ports.Memory { return h.module.Memory() }

// DefaultRelease returns the module's default buffer-release entry.
func (h *PluginHandle) DefaultRelease() abi.ReleaseFunc { return h.descriptor.Release }

// InFlight returns the number of invocations currently running against the
// module's tools. A lifecycle manager polls this to establish quiescence
// before unloading.
func (h *PluginHandle) InFlight() int64 { return h.inflight.Load() }

// Closed reports whether the module has been unloaded.
func (h *PluginHandle) Closed() bool { return h.closed.Load() }

// acquire records a dispatch. It fails once the handle is being unloaded.
// The increment happens before the closing check and unload sets closing
// before reading the counter, so the two can never both proceed.
func (h *PluginHandle) acquire() bool {
	h.inflight.Add(1)
	if h.closing.Load() {
		h.inflight.Add(-1)
		return false
	}
	return true
}

func (h *PluginHandle) done() {
	h.inflight.Add(-1)
}

// closeResult says whether beginClose claimed the handle and, if not, why.
type closeResult int

const (
	closeStarted closeResult = iota
	// closeBusy means invocations are in flight.
	closeBusy
	// closeContended means another unload already holds the closing flag.
	closeContended
)

// beginClose marks the handle as closing if nothing is in flight.
func (h *PluginHandle) beginClose() closeResult {
	if !h.closing.CompareAndSwap(false, true) {
		return closeContended
	}
	if h.inflight.Load() != 0 {
		h.closing.Store(false)
		return closeBusy
	}
	return closeStarted
}

func (h *PluginHandle) close(ctx context.Context) error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	return h.module.Close(ctx)
}
