package registry

import (
	"context"
	"sync"

	"github.com/reglet-dev/toolhost/abi"
	domainerrors "github.com/reglet-dev/toolhost/domain/errors"
)

// Registrar is bound to one module load. It implements abi.Registrar and
// remembers every tool it inserted so the load can be committed or rolled
// back as a unit.
type Registrar struct {
	registry *Registry
	owner    Owner

	mu       sync.Mutex
	names    []string
	rejected []*domainerrors.RegistrationError
	closed   bool
}

// NewRegistrar creates a Registrar that inserts tools on behalf of owner.
func (r *Registry) NewRegistrar(owner Owner) *Registrar {
	return &Registrar{registry: r, owner: owner}
}

// Register validates decl and stages it in the registry.
func (g *Registrar) Register(ctx context.Context, decl abi.ToolDeclaration) abi.Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return g.reject(ctx, &domainerrors.RegistrationError{
			Kind:   domainerrors.InvalidDeclaration,
			Name:   decl.Name,
			Reason: "registration is closed",
		})
	}

	if regErr := validateDeclaration(decl); regErr != nil {
		return g.reject(ctx, regErr)
	}

	tool := &Tool{
		Name:             decl.Name,
		Description:      decl.Description,
		ParametersSchema: decl.ParametersSchema,
		Execute:          decl.Execute,
		Release:          decl.Release,
		Owner:            g.owner,
	}

	reg := g.registry
	reg.mu.Lock()
	if _, exists := reg.entries[decl.Name]; exists {
		reg.mu.Unlock()
		return g.reject(ctx, &domainerrors.RegistrationError{
			Kind: domainerrors.DuplicateName,
			Name: decl.Name,
		})
	}
	reg.entries[decl.Name] = &entry{tool: tool, registrar: g}
	reg.order = append(reg.order, decl.Name)
	reg.mu.Unlock()

	g.names = append(g.names, decl.Name)
	return abi.StatusOK
}

func validateDeclaration(decl abi.ToolDeclaration) *domainerrors.RegistrationError {
	invalid := func(reason string) *domainerrors.RegistrationError {
		return &domainerrors.RegistrationError{
			Kind:   domainerrors.InvalidDeclaration,
			Name:   decl.Name,
			Reason: reason,
		}
	}
	switch {
	case decl.Name == "":
		return invalid("name is empty")
	case decl.ParametersSchema == "":
		return invalid("parameters schema is empty")
	case decl.Execute == nil:
		return invalid("execute entry is nil")
	}
	return nil
}

func (g *Registrar) reject(ctx context.Context, err *domainerrors.RegistrationError) abi.Status {
	g.rejected = append(g.rejected, err)
	path := ""
	if g.owner != nil {
		path = g.owner.Path()
	}
	g.registry.config.logger.WarnContext(ctx, "tool declaration rejected",
		"plugin", path,
		"tool", err.Name,
		"reason", err.Kind.String(),
	)
	return err.Kind.Status()
}

// Names returns the tools this registrar inserted, in order.
func (g *Registrar) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Rejected returns the declarations this registrar refused.
func (g *Registrar) Rejected() []*domainerrors.RegistrationError {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*domainerrors.RegistrationError, len(g.rejected))
	copy(out, g.rejected)
	return out
}

// Err returns the first rejection, or nil.
func (g *Registrar) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.rejected) == 0 {
		return nil
	}
	return g.rejected[0]
}

// Commit makes every staged tool visible at once and closes the registrar.
func (g *Registrar) Commit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true

	reg := g.registry
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, name := range g.names {
		if e, ok := reg.entries[name]; ok && e.registrar == g {
			e.committed = true
		}
	}
}

// Rollback removes every tool this registrar inserted, leaving entries from
// other modules untouched, and closes the registrar.
func (g *Registrar) Rollback() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true

	reg := g.registry
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.removeLocked(func(e *entry) bool { return e.registrar == g })
}
