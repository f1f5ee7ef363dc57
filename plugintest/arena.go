package plugintest

import (
	"fmt"
	"sync"

	"github.com/reglet-dev/toolhost/abi"
)

// Arena is a module-private allocator. Addresses it hands out are only
// meaningful to the Arena itself, the way a native module's heap addresses are
// only meaningful to that module's allocator.
type Arena struct {
	mu     sync.Mutex
	next   abi.Pointer
	blocks map[abi.Pointer][]byte
	allocs int
	frees  int
}

// NewArena creates an empty arena. The first address is non-null.
func NewArena() *Arena {
	return &Arena{next: 0x1000, blocks: make(map[abi.Pointer][]byte)}
}

// Alloc copies data into a fresh block and returns its location.
func (a *Arena) Alloc(data []byte) abi.Buffer {
	a.mu.Lock()
	defer a.mu.Unlock()

	ptr := a.next
	// Keep blocks apart so a wrong pointer never lands inside another one.
	a.next += abi.Pointer(len(data)) + 16
	block := make([]byte, len(data))
	copy(block, data)
	a.blocks[ptr] = block
	a.allocs++
	return abi.Buffer{Ptr: ptr, Len: uint32(len(data))}
}

// Free releases the block at ptr. The length must match the allocation.
func (a *Arena) Free(ptr abi.Pointer, length uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	block, ok := a.blocks[ptr]
	if !ok {
		return fmt.Errorf("free of unknown pointer %#x", uint32(ptr))
	}
	if uint32(len(block)) != length {
		return fmt.Errorf("free of %#x with length %d, allocated %d", uint32(ptr), length, len(block))
	}
	delete(a.blocks, ptr)
	a.frees++
	return nil
}

// Read implements ports.Memory. Only ranges inside a live block are readable.
func (a *Arena) Read(offset, byteCount uint32) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for ptr, block := range a.blocks {
		start := uint32(ptr)
		end := start + uint32(len(block))
		if offset >= start && offset <= end && uint64(offset)+uint64(byteCount) <= uint64(end) {
			return block[offset-start : offset-start+byteCount], true
		}
	}
	return nil, false
}

// Live returns the number of allocated, unreleased blocks.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.blocks)
}

// Stats returns the number of allocations and frees so far.
func (a *Arena) Stats() (allocs, frees int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocs, a.frees
}
