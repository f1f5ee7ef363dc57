package wazero

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/toolhost/abi"
	"github.com/reglet-dev/toolhost/domain/entities"
	"github.com/reglet-dev/toolhost/domain/ports"
)

// slotSize is the scratch area for an (out_ptr, out_len) pair.
const slotSize = 8

var errNoAllocate = errors.New("guest does not export 'allocate'")

// Module is an instantiated wasm plugin. It implements ports.Module.
type Module struct {
	path     string
	mod      api.Module
	compiled wazero.CompiledModule
	opener   *Opener

	// mu serializes every call into the instance and every read of its
	// memory.
	mu sync.Mutex
}

func newModule(path string, mod api.Module, compiled wazero.CompiledModule, o *Opener) *Module {
	return &Module{path: path, mod: mod, compiled: compiled, opener: o}
}

// Name implements ports.Module.
func (m *Module) Name() string { return m.path }

// Memory implements ports.Module.
func (m *Module) Memory() ports.Memory { return memoryView{m: m} }

// Close implements ports.Module.
func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.mod.Close(ctx)
	return errors.Join(err, m.compiled.Close(ctx))
}

// Lookup implements ports.Module.
func (m *Module) Lookup(name string) (ports.Symbol, error) {
	switch name {
	case abi.SymbolVersion:
		return m.version()
	case abi.SymbolRegister:
		fn := m.mod.ExportedFunction(name)
		if fn == nil {
			break
		}
		return abi.RegisterFunc(func(ctx context.Context, r abi.Registrar) abi.Status {
			return m.register(ctx, fn, r)
		}), nil
	case abi.SymbolRelease:
		if rel := m.releaser(name); rel != nil {
			return rel, nil
		}
	case abi.SymbolConfigure:
		fn := m.mod.ExportedFunction(name)
		if fn == nil {
			break
		}
		return abi.ConfigureFunc(func(ctx context.Context, config []byte) abi.Status {
			return m.configure(ctx, fn, config)
		}), nil
	case abi.SymbolInit:
		fn := m.mod.ExportedFunction(name)
		if fn == nil {
			break
		}
		return abi.InitFunc(func(ctx context.Context, out *abi.Buffer) abi.Status {
			return m.callWithSlot(ctx, abi.SymbolInit, fn, out)
		}), nil
	case abi.SymbolConfigSchema:
		fn := m.mod.ExportedFunction(name)
		if fn == nil {
			break
		}
		return abi.ConfigSchemaFunc(func(ctx context.Context, out *abi.Buffer) abi.Status {
			return m.callWithSlot(ctx, abi.SymbolConfigSchema, fn, out)
		}), nil
	}
	return nil, fmt.Errorf("%s: %w", name, ports.ErrSymbolNotFound)
}

// version reads the three u32 the version global points at.
func (m *Module) version() (ports.Symbol, error) {
	g := m.mod.ExportedGlobal(abi.SymbolVersion)
	if g == nil {
		return nil, fmt.Errorf("%s: %w", abi.SymbolVersion, ports.ErrSymbolNotFound)
	}
	addr := uint32(g.Get()) //nolint:gosec // G115: wasm32 addresses are 32-bit

	m.mu.Lock()
	defer m.mu.Unlock()

	mem := m.mod.Memory()
	var parts [3]uint32
	for i := range parts {
		v, ok := mem.ReadUint32Le(addr + uint32(i)*4) //nolint:gosec // G115: i < 3
		if !ok {
			return nil, fmt.Errorf("version at %#x outside guest memory", addr)
		}
		parts[i] = v
	}
	return entities.Version{Major: parts[0], Minor: parts[1], Patch: parts[2]}, nil
}

func (m *Module) register(ctx context.Context, fn api.Function, r abi.Registrar) abi.Status {
	id := m.opener.registrars.add(r, m)
	defer m.opener.registrars.remove(id)

	m.mu.Lock()
	defer m.mu.Unlock()

	results, err := fn.Call(m.ctx(ctx), uint64(id))
	return m.status(ctx, abi.SymbolRegister, results, err)
}

func (m *Module) configure(ctx context.Context, fn api.Function, config []byte) abi.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx = m.ctx(ctx)
	args, err := m.copyIn(ctx, config)
	if err != nil {
		m.logCallError(ctx, abi.SymbolConfigure, err)
		return abi.StatusFailed
	}
	defer m.releaseLocked(ctx, args)

	results, err := fn.Call(ctx, uint64(args.Ptr), uint64(args.Len))
	return m.status(ctx, abi.SymbolConfigure, results, err)
}

// executor wraps a tool's execute export. It returns nil when the export
// does not exist.
func (m *Module) executor(export string) abi.ExecuteFunc {
	fn := m.mod.ExportedFunction(export)
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, args []byte, out *abi.Buffer) abi.Status {
		m.mu.Lock()
		defer m.mu.Unlock()

		ctx = m.ctx(ctx)
		in, err := m.copyIn(ctx, args)
		if err != nil {
			m.logCallError(ctx, export, err)
			return abi.StatusFailed
		}
		defer m.releaseLocked(ctx, in)

		slot, err := m.allocateSlot(ctx)
		if err != nil {
			m.logCallError(ctx, export, err)
			return abi.StatusFailed
		}
		defer m.releaseLocked(ctx, slot)

		results, err := fn.Call(ctx, uint64(in.Ptr), uint64(in.Len), uint64(slot.Ptr), uint64(slot.Ptr)+4)
		status := m.status(ctx, export, results, err)
		if status.OK() {
			*out = m.readSlot(slot)
		}
		return status
	}
}

// releaser wraps a release export. It returns nil when the export does not
// exist.
func (m *Module) releaser(export string) abi.ReleaseFunc {
	fn := m.mod.ExportedFunction(export)
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, ptr abi.Pointer, length uint32) {
		m.mu.Lock()
		defer m.mu.Unlock()

		ctx = m.ctx(ctx)
		if _, err := fn.Call(ctx, uint64(ptr), uint64(length)); err != nil {
			m.logCallError(ctx, export, err)
		}
	}
}

// callWithSlot calls fn(out_slot) and copies the stored buffer into out.
func (m *Module) callWithSlot(ctx context.Context, name string, fn api.Function, out *abi.Buffer) abi.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx = m.ctx(ctx)
	slot, err := m.allocateSlot(ctx)
	if err != nil {
		m.logCallError(ctx, name, err)
		return abi.StatusFailed
	}
	defer m.releaseLocked(ctx, slot)

	results, err := fn.Call(ctx, uint64(slot.Ptr))
	status := m.status(ctx, name, results, err)
	// init may return an error message alongside a failure status.
	*out = m.readSlot(slot)
	return status
}

// copyIn allocates guest memory for data and writes it. Empty data is passed
// as the null buffer.
func (m *Module) copyIn(ctx context.Context, data []byte) (abi.Buffer, error) {
	if len(data) == 0 {
		return abi.Buffer{}, nil
	}
	buf, err := m.allocate(ctx, uint32(len(data))) //nolint:gosec // G115: bounded by guest memory
	if err != nil {
		return abi.Buffer{}, err
	}
	if !m.mod.Memory().Write(uint32(buf.Ptr), data) {
		m.releaseLocked(ctx, buf)
		return abi.Buffer{}, fmt.Errorf("failed to write %d bytes to guest memory", len(data))
	}
	return buf, nil
}

func (m *Module) allocate(ctx context.Context, size uint32) (abi.Buffer, error) {
	fn := m.mod.ExportedFunction("allocate")
	if fn == nil {
		return abi.Buffer{}, errNoAllocate
	}
	results, err := fn.Call(ctx, uint64(size))
	if err != nil {
		return abi.Buffer{}, fmt.Errorf("failed to call guest allocate: %w", err)
	}
	if len(results) == 0 || results[0] == 0 {
		return abi.Buffer{}, fmt.Errorf("guest allocate(%d) returned null", size)
	}
	return abi.Buffer{Ptr: abi.Pointer(results[0]), Len: size}, nil //nolint:gosec // G115: wasm32 pointers are 32-bit
}

// releaseLocked returns a host-allocated buffer through the default release.
func (m *Module) releaseLocked(ctx context.Context, buf abi.Buffer) {
	if buf.IsNull() {
		return
	}
	fn := m.mod.ExportedFunction(abi.SymbolRelease)
	if fn == nil {
		return
	}
	if _, err := fn.Call(ctx, uint64(buf.Ptr), uint64(buf.Len)); err != nil {
		m.logCallError(ctx, abi.SymbolRelease, err)
	}
}

// allocateSlot allocates a zeroed output slot, so a guest that never writes
// it yields the null buffer.
func (m *Module) allocateSlot(ctx context.Context) (abi.Buffer, error) {
	slot, err := m.allocate(ctx, slotSize)
	if err != nil {
		return abi.Buffer{}, err
	}
	if !m.mod.Memory().Write(uint32(slot.Ptr), make([]byte, slotSize)) {
		m.releaseLocked(ctx, slot)
		return abi.Buffer{}, fmt.Errorf("output slot at %#x outside guest memory", uint32(slot.Ptr))
	}
	return slot, nil
}

func (m *Module) readSlot(slot abi.Buffer) abi.Buffer {
	mem := m.mod.Memory()
	ptr, ok1 := mem.ReadUint32Le(uint32(slot.Ptr))
	length, ok2 := mem.ReadUint32Le(uint32(slot.Ptr) + 4)
	if !ok1 || !ok2 {
		return abi.Buffer{}
	}
	return abi.Buffer{Ptr: abi.Pointer(ptr), Len: length}
}

// status converts a call outcome into a Status. A trap becomes StatusTrap.
func (m *Module) status(ctx context.Context, export string, results []uint64, err error) abi.Status {
	if err != nil {
		m.logCallError(ctx, export, err)
		return abi.StatusTrap
	}
	if len(results) == 0 {
		return abi.StatusOK
	}
	return abi.Status(int32(uint32(results[0]))) //nolint:gosec // G115: i32 result
}

func (m *Module) logCallError(ctx context.Context, export string, err error) {
	m.opener.config.Logger.ErrorContext(ctx, "wazero: guest call failed", "plugin", m.path, "export", export, "error", err)
}

func (m *Module) ctx(ctx context.Context) context.Context {
	return withPluginPath(ctx, m.path)
}

// memoryView reads guest memory under the module lock and returns a copy, so
// the bytes survive later calls that may grow or reuse the memory.
type memoryView struct {
	m *Module
}

func (v memoryView) Read(offset, byteCount uint32) ([]byte, bool) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	data, ok := v.m.mod.Memory().Read(offset, byteCount)
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}
