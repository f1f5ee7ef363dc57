package wazero

import (
	"sync"

	"github.com/reglet-dev/toolhost/abi"
)

// registrarTable hands guests an opaque i32 in place of the host's
// Registrar, valid for the duration of one register call.
type registrarTable struct {
	mu      sync.Mutex
	next    uint32
	entries map[uint32]registration
}

type registration struct {
	registrar abi.Registrar
	module    *Module
}

func newRegistrarTable() *registrarTable {
	return &registrarTable{entries: make(map[uint32]registration)}
}

func (t *registrarTable) add(r abi.Registrar, m *Module) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	if t.next == 0 {
		t.next = 1
	}
	t.entries[t.next] = registration{registrar: r, module: m}
	return t.next
}

func (t *registrarTable) get(id uint32) (registration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	reg, ok := t.entries[id]
	return reg, ok
}

func (t *registrarTable) remove(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}
