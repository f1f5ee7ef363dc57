// Package registry holds the tool registry shared by the loader (writer) and
// the invocation bridge (reader), and the Registrar capability through which
// a module declares its tools.
package registry

import (
	"log/slog"
	"sync"

	"github.com/reglet-dev/toolhost/abi"
	"github.com/reglet-dev/toolhost/domain/entities"
	"github.com/reglet-dev/toolhost/domain/ports"
)

// Owner is the loaded module a tool came from. Tools keep it as a
// non-owning back-reference; the owner stays loaded while it reports
// in-flight invocations.
type Owner interface {
	ID() string
	Path() string
	Memory() ports.Memory
	DefaultRelease() abi.ReleaseFunc
}

// Tool is a registered, callable tool.
type Tool struct {
	Name             string
	Description      string
	ParametersSchema string
	Execute          abi.ExecuteFunc
	Release          abi.ReleaseFunc
	Owner            Owner
}

// Info returns the listing view of the tool.
func (t *Tool) Info() entities.ToolInfo {
	info := entities.ToolInfo{
		Name:             t.Name,
		Description:      t.Description,
		ParametersSchema: t.ParametersSchema,
	}
	if t.Owner != nil {
		info.Plugin = t.Owner.Path()
	}
	return info
}

// ReleaseFunc returns the tool's release entry, falling back to the owning
// module's default release.
func (t *Tool) ReleaseFunc() abi.ReleaseFunc {
	if t.Release != nil {
		return t.Release
	}
	if t.Owner != nil {
		return t.Owner.DefaultRelease()
	}
	return nil
}

type entry struct {
	tool      *Tool
	registrar *Registrar
	committed bool
}

// registryConfig holds configuration for the Registry.
type registryConfig struct {
	logger *slog.Logger
}

func defaultRegistryConfig() registryConfig {
	return registryConfig{logger: slog.Default()}
}

// Option configures a Registry instance.
type Option func(*registryConfig)

// WithLogger sets the logger used for rejected declarations.
func WithLogger(l *slog.Logger) Option {
	return func(c *registryConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Registry maps tool names to tools. It is insertion-ordered and read-mostly:
// lookups take a shared lock, registration and removal take the exclusive
// lock only for the map and slice mutation itself.
//
// Entries inserted during a module's registration are staged: they reserve
// their name but are invisible to Lookup and List until the registrar
// commits them.
type Registry struct {
	config  registryConfig
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	cfg := defaultRegistryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{
		config:  cfg,
		entries: make(map[string]*entry),
	}
}

// Lookup returns the committed tool registered under name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok || !e.committed {
		return nil, false
	}
	return e.tool, true
}

// List returns committed tools in first-registered order.
func (r *Registry) List() []entities.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entities.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		if e := r.entries[name]; e.committed {
			out = append(out, e.tool.Info())
		}
	}
	return out
}

// ListTools implements ports.ToolCatalog.
func (r *Registry) ListTools() []entities.ToolInfo {
	return r.List()
}

// Len returns the number of committed tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.committed {
			n++
		}
	}
	return n
}

// ToolsOf returns the names of committed tools registered by owner.
func (r *Registry) ToolsOf(owner Owner) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, name := range r.order {
		if e := r.entries[name]; e.committed && e.tool.Owner == owner {
			names = append(names, name)
		}
	}
	return names
}

// RemoveOwner removes every tool, staged or committed, registered by owner
// and returns their names.
func (r *Registry) RemoveOwner(owner Owner) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(func(e *entry) bool { return e.tool.Owner == owner })
}

// removeLocked drops matching entries, keeping the order of the rest.
func (r *Registry) removeLocked(match func(*entry) bool) []string {
	var removed []string
	kept := r.order[:0]
	for _, name := range r.order {
		if e := r.entries[name]; match(e) {
			delete(r.entries, name)
			removed = append(removed, name)
			continue
		}
		kept = append(kept, name)
	}
	// Clear the tail so removed names are not retained by the backing array.
	for i := len(kept); i < len(r.order); i++ {
		r.order[i] = ""
	}
	r.order = kept
	return removed
}
