package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/toolhost/abi"
	domainerrors "github.com/reglet-dev/toolhost/domain/errors"
	"github.com/reglet-dev/toolhost/plugintest"
)

func TestBridge_NotFoundMakesNoNativeCall(t *testing.T) {
	mod := plugintest.NewModule("m.wasm", plugintest.WithTool(processTool()))
	h := newTestHost(t, []*plugintest.Module{mod})
	_, err := h.Load(context.Background(), "m.wasm")
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), "nonexistent", []byte(`{}`))

	var toolErr *domainerrors.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, domainerrors.NotFound, toolErr.Kind)
	assert.Equal(t, "nonexistent", toolErr.Tool)
	assert.Equal(t, int64(0), mod.ExecuteCalls())
	assert.Empty(t, mod.Releases())
}

func TestBridge_SuccessReleasesExactPairOnce(t *testing.T) {
	var produced abi.Buffer
	var mod *plugintest.Module
	mod = plugintest.NewModule("m.wasm", plugintest.WithTool(plugintest.Tool{
		Name:   "t",
		Schema: "{}",
		Execute: func(_ context.Context, args []byte, out *abi.Buffer) abi.Status {
			produced = mod.Arena().Alloc(append([]byte("echo:"), args...))
			*out = produced
			return abi.StatusOK
		},
	}))
	h := newTestHost(t, []*plugintest.Module{mod})
	_, err := h.Load(context.Background(), "m.wasm")
	require.NoError(t, err)

	got, err := h.Execute(context.Background(), "t", []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "echo:abc", string(got))

	assert.Equal(t, []plugintest.Release{{Ptr: produced.Ptr, Len: produced.Len, Via: "default"}}, mod.Releases())
	assert.NoError(t, mod.ReleaseErr())
	assert.Equal(t, 0, mod.Arena().Live())
}

func TestBridge_ToolReleaseOverridesDefault(t *testing.T) {
	tool := namedTool("own")
	tool.OwnRelease = true
	mod := plugintest.NewModule("m.wasm", plugintest.WithTool(tool))
	h := newTestHost(t, []*plugintest.Module{mod})
	_, err := h.Load(context.Background(), "m.wasm")
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), "own", []byte("1"))
	require.NoError(t, err)

	releases := mod.Releases()
	require.Len(t, releases, 1)
	assert.Equal(t, "own", releases[0].Via)
}

func TestBridge_Failures(t *testing.T) {
	tests := []struct {
		name         string
		execute      func(m *plugintest.Module) abi.ExecuteFunc
		maxSize      uint32
		wantKind     domainerrors.ToolErrorKind
		wantStatus   abi.Status
		wantReleases int
	}{
		{
			name: "nonzero status",
			execute: func(*plugintest.Module) abi.ExecuteFunc {
				return func(context.Context, []byte, *abi.Buffer) abi.Status { return abi.Status(42) }
			},
			wantKind:   domainerrors.ExecutionFailed,
			wantStatus: abi.Status(42),
		},
		{
			name: "nonzero status with buffer is not read",
			execute: func(*plugintest.Module) abi.ExecuteFunc {
				return func(_ context.Context, _ []byte, out *abi.Buffer) abi.Status {
					*out = abi.Buffer{Ptr: 0x10, Len: 3}
					return abi.StatusFailed
				}
			},
			wantKind:   domainerrors.ExecutionFailed,
			wantStatus: abi.StatusFailed,
		},
		{
			name: "null result",
			execute: func(*plugintest.Module) abi.ExecuteFunc {
				return func(_ context.Context, _ []byte, out *abi.Buffer) abi.Status {
					out.Len = 12
					return abi.StatusOK
				}
			},
			wantKind: domainerrors.MalformedResult,
		},
		{
			name: "out of bounds result is still released",
			execute: func(*plugintest.Module) abi.ExecuteFunc {
				return func(_ context.Context, _ []byte, out *abi.Buffer) abi.Status {
					*out = abi.Buffer{Ptr: 0xdead0000, Len: 4}
					return abi.StatusOK
				}
			},
			wantKind:     domainerrors.MalformedResult,
			wantReleases: 1,
		},
		{
			name: "oversized result is still released",
			execute: func(m *plugintest.Module) abi.ExecuteFunc {
				return func(_ context.Context, _ []byte, out *abi.Buffer) abi.Status {
					*out = m.Arena().Alloc(make([]byte, 64))
					return abi.StatusOK
				}
			},
			maxSize:      16,
			wantKind:     domainerrors.MalformedResult,
			wantReleases: 1,
		},
		{
			name: "panic",
			execute: func(*plugintest.Module) abi.ExecuteFunc {
				return func(context.Context, []byte, *abi.Buffer) abi.Status { panic("tool crashed") }
			},
			wantKind:   domainerrors.ExecutionFailed,
			wantStatus: abi.StatusPanic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mod *plugintest.Module
			mod = plugintest.NewModule("m.wasm", plugintest.WithTool(plugintest.Tool{
				Name:   "t",
				Schema: "{}",
				Execute: func(ctx context.Context, args []byte, out *abi.Buffer) abi.Status {
					return tt.execute(mod)(ctx, args, out)
				},
			}))
			var opts []Option
			if tt.maxSize > 0 {
				opts = append(opts, WithMaxResultSize(tt.maxSize))
			}
			h := newTestHost(t, []*plugintest.Module{mod}, opts...)
			handle, err := h.Load(context.Background(), "m.wasm")
			require.NoError(t, err)

			_, err = h.Execute(context.Background(), "t", []byte("{}"))

			var toolErr *domainerrors.ToolError
			require.ErrorAs(t, err, &toolErr)
			assert.Equal(t, tt.wantKind, toolErr.Kind)
			assert.Equal(t, tt.wantStatus, toolErr.Status)
			assert.Len(t, mod.Releases(), tt.wantReleases)
			assert.Equal(t, int64(0), handle.InFlight())
		})
	}
}

func TestBridge_HandlerError(t *testing.T) {
	mod := plugintest.NewModule("m.wasm", plugintest.WithTool(plugintest.Tool{
		Name:   "t",
		Schema: "{}",
		Handler: func(context.Context, []byte) ([]byte, error) {
			return nil, errors.New("bad input")
		},
	}))
	h := newTestHost(t, []*plugintest.Module{mod})
	_, err := h.Load(context.Background(), "m.wasm")
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), "t", nil)
	assert.ErrorIs(t, err, &domainerrors.ToolError{Kind: domainerrors.ExecutionFailed})
	assert.EqualError(t, err, `tool "t": execution_failed with status 1`)
	assert.Empty(t, mod.Releases())
}

func TestBridge_ConcurrentInvocations(t *testing.T) {
	const n = 100
	mod := plugintest.NewModule("m.wasm", plugintest.WithTool(processTool()))
	h := newTestHost(t, []*plugintest.Module{mod})
	handle, err := h.Load(context.Background(), "m.wasm")
	require.NoError(t, err)

	results := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := h.Execute(context.Background(), "my_tool", []byte(fmt.Sprintf(`{"input":"req-%d"}`, i)))
			results[i], errs[i] = string(out), err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.JSONEq(t, fmt.Sprintf(`{"output":"Processed: req-%d"}`, i), results[i])
	}
	assert.Len(t, mod.Releases(), n)
	assert.NoError(t, mod.ReleaseErr())
	assert.Equal(t, 0, mod.Arena().Live())
	assert.Equal(t, int64(n), mod.ExecuteCalls())
	assert.Equal(t, int64(0), handle.InFlight())
}

func TestTakeBuffer(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	arena := plugintest.NewArena()

	var released []abi.Buffer
	release := func(_ context.Context, p abi.Pointer, l uint32) {
		released = append(released, abi.Buffer{Ptr: p, Len: l})
	}

	t.Run("null is not released", func(t *testing.T) {
		released = nil
		_, err := takeBuffer(ctx, logger, arena, release, abi.Buffer{}, 0)
		assert.ErrorIs(t, err, errNullBuffer)
		assert.Empty(t, released)
	})

	t.Run("zero length", func(t *testing.T) {
		released = nil
		buf := arena.Alloc(nil)
		data, err := takeBuffer(ctx, logger, arena, release, buf, 0)
		require.NoError(t, err)
		assert.Empty(t, data)
		assert.Equal(t, []abi.Buffer{buf}, released)
	})

	t.Run("no release", func(t *testing.T) {
		_, err := takeBuffer(ctx, logger, arena, nil, abi.Buffer{Ptr: 1, Len: 1}, 0)
		assert.ErrorIs(t, err, errNoRelease)
	})

	t.Run("panicking release is contained", func(t *testing.T) {
		buf := arena.Alloc([]byte("x"))
		data, err := takeBuffer(ctx, logger, arena, func(context.Context, abi.Pointer, uint32) { panic("free") }, buf, 0)
		require.NoError(t, err)
		assert.Equal(t, "x", string(data))
	})
}
