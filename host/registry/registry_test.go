package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/toolhost/abi"
	domainerrors "github.com/reglet-dev/toolhost/domain/errors"
	"github.com/reglet-dev/toolhost/domain/ports"
)

type stubOwner struct {
	id   string
	path string
}

func (o *stubOwner) ID() string                      { return o.id }
func (o *stubOwner) Path() string                    { return o.path }
func (o *stubOwner) Memory() ports.Memory            { return nil }
func (o *stubOwner) DefaultRelease() abi.ReleaseFunc { return func(context.Context, abi.Pointer, uint32) {} }

func noopExecute(context.Context, []byte, *abi.Buffer) abi.Status { return abi.StatusOK }

func decl(name string) abi.ToolDeclaration {
	return abi.ToolDeclaration{
		Name:             name,
		Description:      "tool " + name,
		ParametersSchema: `{"type":"object"}`,
		Execute:          noopExecute,
	}
}

func TestRegistrar_StagedToolsInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	reg := New()
	g := reg.NewRegistrar(&stubOwner{id: "1", path: "a.wasm"})

	require.Equal(t, abi.StatusOK, g.Register(ctx, decl("alpha")))
	require.Equal(t, abi.StatusOK, g.Register(ctx, decl("beta")))

	_, ok := reg.Lookup("alpha")
	assert.False(t, ok, "staged tool must not be visible")
	assert.Empty(t, reg.List())
	assert.Equal(t, 0, reg.Len())

	g.Commit()

	tool, ok := reg.Lookup("alpha")
	require.True(t, ok)
	assert.Equal(t, "tool alpha", tool.Description)
	assert.Equal(t, 2, reg.Len())

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "beta", list[1].Name)
	assert.Equal(t, "a.wasm", list[0].Plugin)
}

func TestRegistrar_DuplicateWithinOneLoad(t *testing.T) {
	ctx := context.Background()
	reg := New()
	g := reg.NewRegistrar(&stubOwner{id: "1", path: "a.wasm"})

	assert.Equal(t, abi.StatusOK, g.Register(ctx, decl("x")))
	assert.Equal(t, abi.StatusDuplicateName, g.Register(ctx, decl("x")))

	assert.Equal(t, []string{"x"}, g.Names())
	require.Len(t, g.Rejected(), 1)
	assert.Equal(t, domainerrors.DuplicateName, g.Rejected()[0].Kind)
	assert.True(t, errors.Is(g.Err(), &domainerrors.RegistrationError{Kind: domainerrors.DuplicateName}))

	g.Commit()
	assert.Equal(t, 1, reg.Len())
}

func TestRegistrar_DuplicateAcrossModules(t *testing.T) {
	ctx := context.Background()
	reg := New()

	first := reg.NewRegistrar(&stubOwner{id: "1", path: "a.wasm"})
	require.Equal(t, abi.StatusOK, first.Register(ctx, decl("shared")))
	first.Commit()

	second := reg.NewRegistrar(&stubOwner{id: "2", path: "b.wasm"})
	assert.Equal(t, abi.StatusDuplicateName, second.Register(ctx, decl("shared")))

	tool, ok := reg.Lookup("shared")
	require.True(t, ok)
	assert.Equal(t, "a.wasm", tool.Owner.Path())
}

func TestRegistrar_StagedNameIsReserved(t *testing.T) {
	ctx := context.Background()
	reg := New()

	first := reg.NewRegistrar(&stubOwner{id: "1"})
	second := reg.NewRegistrar(&stubOwner{id: "2"})

	require.Equal(t, abi.StatusOK, first.Register(ctx, decl("t")))
	assert.Equal(t, abi.StatusDuplicateName, second.Register(ctx, decl("t")))
}

func TestRegistrar_InvalidDeclarations(t *testing.T) {
	tests := []struct {
		name string
		decl abi.ToolDeclaration
	}{
		{name: "empty name", decl: abi.ToolDeclaration{ParametersSchema: "{}", Execute: noopExecute}},
		{name: "empty schema", decl: abi.ToolDeclaration{Name: "t", Execute: noopExecute}},
		{name: "nil execute", decl: abi.ToolDeclaration{Name: "t", ParametersSchema: "{}"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := New()
			g := reg.NewRegistrar(&stubOwner{id: "1"})

			assert.Equal(t, abi.StatusInvalidDeclaration, g.Register(context.Background(), tt.decl))
			assert.Empty(t, g.Names())
			g.Commit()
			assert.Equal(t, 0, reg.Len())
		})
	}
}

func TestRegistrar_RollbackLeavesOtherModules(t *testing.T) {
	ctx := context.Background()
	reg := New()

	loaded := reg.NewRegistrar(&stubOwner{id: "1", path: "loaded.wasm"})
	require.Equal(t, abi.StatusOK, loaded.Register(ctx, decl("keep-1")))
	require.Equal(t, abi.StatusOK, loaded.Register(ctx, decl("keep-2")))
	loaded.Commit()

	failing := reg.NewRegistrar(&stubOwner{id: "2", path: "failing.wasm"})
	for i := 0; i < 3; i++ {
		require.Equal(t, abi.StatusOK, failing.Register(ctx, decl(fmt.Sprintf("drop-%d", i))))
	}

	removed := failing.Rollback()
	assert.ElementsMatch(t, []string{"drop-0", "drop-1", "drop-2"}, removed)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "keep-1", list[0].Name)
	assert.Equal(t, "keep-2", list[1].Name)

	// The name is free again after rollback.
	again := reg.NewRegistrar(&stubOwner{id: "3"})
	assert.Equal(t, abi.StatusOK, again.Register(ctx, decl("drop-0")))
}

func TestRegistrar_ClosedAfterCommit(t *testing.T) {
	ctx := context.Background()
	reg := New()
	g := reg.NewRegistrar(&stubOwner{id: "1"})
	g.Commit()

	assert.Equal(t, abi.StatusInvalidDeclaration, g.Register(ctx, decl("late")))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_RemoveOwner(t *testing.T) {
	ctx := context.Background()
	reg := New()
	a := &stubOwner{id: "a"}
	b := &stubOwner{id: "b"}

	ga := reg.NewRegistrar(a)
	require.Equal(t, abi.StatusOK, ga.Register(ctx, decl("a1")))
	ga.Commit()
	gb := reg.NewRegistrar(b)
	require.Equal(t, abi.StatusOK, gb.Register(ctx, decl("b1")))
	require.Equal(t, abi.StatusOK, gb.Register(ctx, decl("b2")))
	gb.Commit()

	assert.Equal(t, []string{"b1", "b2"}, reg.ToolsOf(b))
	assert.Equal(t, []string{"b1", "b2"}, reg.RemoveOwner(b))
	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Lookup("a1")
	assert.True(t, ok)
}

func TestTool_ReleaseFuncFallsBackToOwner(t *testing.T) {
	own := func(context.Context, abi.Pointer, uint32) {}
	withOwn := &Tool{Release: own, Owner: &stubOwner{}}
	assert.NotNil(t, withOwn.ReleaseFunc())

	fallback := &Tool{Owner: &stubOwner{}}
	assert.NotNil(t, fallback.ReleaseFunc())

	assert.Nil(t, (&Tool{}).ReleaseFunc())
}

func TestRegistry_ConcurrentReadersAndWriters(t *testing.T) {
	ctx := context.Background()
	reg := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			g := reg.NewRegistrar(&stubOwner{id: fmt.Sprint(i)})
			g.Register(ctx, decl(fmt.Sprintf("tool-%d", i)))
			if i%2 == 0 {
				g.Commit()
			} else {
				g.Rollback()
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			reg.Lookup(fmt.Sprintf("tool-%d", i))
			reg.List()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, reg.Len())
}
