package plugintest

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/reglet-dev/toolhost/domain/ports"
)

// Opener serves Modules by name. It implements ports.ModuleOpener.
type Opener struct {
	mu      sync.Mutex
	modules map[string]*Module
}

// NewOpener creates an Opener serving mods.
func NewOpener(mods ...*Module) *Opener {
	o := &Opener{modules: make(map[string]*Module)}
	for _, m := range mods {
		o.Add(m)
	}
	return o
}

// Add makes m available at m.Name().
func (o *Opener) Add(m *Module) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.modules[m.Name()] = m
}

// Open implements ports.ModuleOpener.
func (o *Opener) Open(_ context.Context, path string) (ports.Module, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	m, ok := o.modules[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}
	return m, nil
}
