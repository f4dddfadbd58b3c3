// Package goldenmem keeps the golden memory image: the memory contents the
// DUT has made globally visible, as confirmed by store-buffer drains and
// atomic responses. Refill and page-table-walk responses are checked
// against it.
package goldenmem

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sarchlab/akita/v4/mem/mem"
)

// ErrOutOfRange is returned for accesses outside the memory window.
var ErrOutOfRange = errors.New("golden memory address out of range")

// Memory is a physical memory window [Base, Base+Size) backed by akita
// storage.
type Memory struct {
	base    uint64
	size    uint64
	storage *mem.Storage
}

// New creates a golden memory of size bytes starting at base.
func New(base, size uint64) *Memory {
	return &Memory{
		base:    base,
		size:    size,
		storage: mem.NewStorage(size),
	}
}

// Base returns the first address of the window.
func (m *Memory) Base() uint64 {
	return m.base
}

// Size returns the size of the window in bytes.
func (m *Memory) Size() uint64 {
	return m.size
}

// Contains reports whether [addr, addr+n) lies inside the window.
func (m *Memory) Contains(addr, n uint64) bool {
	if addr < m.base || n > m.size {
		return false
	}
	return addr-m.base <= m.size-n
}

// Read returns n bytes starting at addr.
func (m *Memory) Read(addr, n uint64) ([]byte, error) {
	if !m.Contains(addr, n) {
		return nil, fmt.Errorf("read 0x%x+%d: %w", addr, n, ErrOutOfRange)
	}
	return m.storage.Read(addr-m.base, n)
}

// Write stores data starting at addr.
func (m *Memory) Write(addr uint64, data []byte) error {
	if !m.Contains(addr, uint64(len(data))) {
		return fmt.Errorf("write 0x%x+%d: %w", addr, len(data), ErrOutOfRange)
	}
	return m.storage.Write(addr-m.base, data)
}

// Load reads a size-byte little-endian value at addr, zero-extended.
func (m *Memory) Load(addr uint64, size int) (uint64, error) {
	data, err := m.Read(addr, uint64(size))
	if err != nil {
		return 0, err
	}

	var buf [8]byte
	copy(buf[:], data)
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadWords reads n consecutive 64-bit words starting at addr.
func (m *Memory) ReadWords(addr uint64, n int) ([]uint64, error) {
	data, err := m.Read(addr, uint64(8*n))
	if err != nil {
		return nil, err
	}

	words := make([]uint64, n)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(data[8*i:])
	}
	return words, nil
}

// Update writes the bytes of data selected by mask, bit i of mask covering
// data[i]. data holds at most 64 bytes.
func (m *Memory) Update(addr uint64, data []byte, mask uint64) error {
	if len(data) > 64 {
		return fmt.Errorf("masked update of %d bytes exceeds 64", len(data))
	}

	cur, err := m.Read(addr, uint64(len(data)))
	if err != nil {
		return err
	}

	merged := make([]byte, len(data))
	copy(merged, cur)
	for i := range data {
		if mask&(1<<uint(i)) != 0 {
			merged[i] = data[i]
		}
	}

	return m.storage.Write(addr-m.base, merged)
}

// UpdateWord writes the bytes of value selected by the 8-bit mask into the
// doubleword at addr.
func (m *Memory) UpdateWord(addr uint64, value uint64, mask uint8) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return m.Update(addr, buf[:], uint64(mask))
}
