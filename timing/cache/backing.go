package cache

import (
	"github.com/sarchlab/difftest/emu"
)

// MemoryBacking wraps emu.Memory as a BackingStore.
type MemoryBacking struct {
	memory *emu.Memory
}

// NewMemoryBacking creates a new MemoryBacking adapter.
func NewMemoryBacking(memory *emu.Memory) *MemoryBacking {
	return &MemoryBacking{memory: memory}
}

// Read fetches data from the backing memory. Bytes outside the memory
// window read as zero.
func (m *MemoryBacking) Read(addr uint64, size int) []byte {
	data, err := m.memory.Read(addr, uint64(size))
	if err != nil {
		return make([]byte, size)
	}
	return data
}

// Write stores data to the backing memory. Writes outside the memory
// window are dropped.
func (m *MemoryBacking) Write(addr uint64, data []byte) {
	_ = m.memory.Write(addr, data)
}
