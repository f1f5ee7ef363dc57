package wazero

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/toolhost/abi"
)

func TestDefaultOpenerConfig(t *testing.T) {
	cfg := defaultOpenerConfig()

	assert.Equal(t, "mcp_host", cfg.HostModuleName)
	assert.Equal(t, uint32(DefaultMaxStringSize), cfg.MaxStringSize)
	assert.True(t, cfg.WASI)
	assert.NotNil(t, cfg.Logger)
}

func TestOpenerOptions(t *testing.T) {
	cfg := defaultOpenerConfig()
	WithHostModuleName("custom_host")(&cfg)
	WithMaxStringSize(64)(&cfg)
	WithoutWASI()(&cfg)
	WithLogger(nil)(&cfg)

	assert.Equal(t, "custom_host", cfg.HostModuleName)
	assert.Equal(t, uint32(64), cfg.MaxStringSize)
	assert.False(t, cfg.WASI)
	assert.NotNil(t, cfg.Logger, "nil logger is ignored")
}

type nopRegistrar struct{}

func (nopRegistrar) Register(context.Context, abi.ToolDeclaration) abi.Status { return abi.StatusOK }

func TestRegistrarTable(t *testing.T) {
	table := newRegistrarTable()

	a := table.add(nopRegistrar{}, nil)
	b := table.add(nopRegistrar{}, nil)
	assert.NotZero(t, a)
	assert.NotEqual(t, a, b)

	_, ok := table.get(a)
	assert.True(t, ok)

	table.remove(a)
	_, ok = table.get(a)
	assert.False(t, ok)
	_, ok = table.get(b)
	assert.True(t, ok)
}

type namedModule struct {
	api.Module
	name string
}

func (m namedModule) Name() string { return m.name }

func TestPluginName(t *testing.T) {
	mod := namedModule{name: "guest"}
	assert.Equal(t, "guest", pluginName(context.Background(), mod))
	assert.Equal(t, "plugins/a.wasm", pluginName(withPluginPath(context.Background(), "plugins/a.wasm"), mod))
}

// sliceMemory serves Size and Read from a byte slice.
type sliceMemory struct {
	api.Memory
	buf []byte
}

func (m sliceMemory) Size() uint32 { return uint32(len(m.buf)) }

func (m sliceMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(m.buf)) {
		return nil, false
	}
	return m.buf[offset:end], true
}

func TestReadCString(t *testing.T) {
	mem := sliceMemory{buf: []byte("xxhello\x00tail")}

	tests := []struct {
		name  string
		ptr   uint32
		limit uint32
		want  string
		ok    bool
	}{
		{name: "within limit", ptr: 2, limit: 16, want: "hello", ok: true},
		{name: "exact limit", ptr: 2, limit: 5, want: "hello", ok: true},
		{name: "over limit", ptr: 2, limit: 4},
		{name: "max uint32 limit", ptr: 2, limit: math.MaxUint32, want: "hello", ok: true},
		{name: "unterminated", ptr: 8, limit: math.MaxUint32},
		{name: "out of bounds", ptr: 64, limit: 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := readCString(mem, tt.ptr, tt.limit)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
