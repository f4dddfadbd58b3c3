package emu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sarchlab/akita/v4/mem/mem"
)

// Default physical memory window of an emulator.
const (
	DefaultMemoryBase uint64 = 0x80000000
	DefaultMemorySize uint64 = 256 * mem.MB
)

// ErrOutOfRange is returned for accesses outside the memory window.
var ErrOutOfRange = errors.New("address out of range")

type journalEntry struct {
	addr uint64
	old  []byte
}

// Memory is a little-endian physical memory window [Base, Base+Size)
// backed by akita storage. While a snapshot is outstanding every write is
// journaled so that it can be rolled back.
type Memory struct {
	base    uint64
	size    uint64
	storage *mem.Storage

	journal    []journalEntry
	journaling int
}

// NewMemory creates a memory window of size bytes starting at base.
func NewMemory(base, size uint64) *Memory {
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
	n := uint64(len(data))
	if !m.Contains(addr, n) {
		return fmt.Errorf("write 0x%x+%d: %w", addr, n, ErrOutOfRange)
	}

	if m.journaling > 0 {
		old, err := m.storage.Read(addr-m.base, n)
		if err != nil {
			return err
		}
		m.journal = append(m.journal, journalEntry{addr: addr, old: old})
	}

	return m.storage.Write(addr-m.base, data)
}

// Load reads a size-byte little-endian value at addr, zero-extended.
func (m *Memory) Load(addr uint64, size uint8) (uint64, error) {
	data, err := m.Read(addr, uint64(size))
	if err != nil {
		return 0, err
	}

	var buf [8]byte
	copy(buf[:], data)
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Store writes the low size bytes of value at addr.
func (m *Memory) Store(addr uint64, size uint8, value uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return m.Write(addr, buf[:size])
}

// Read8 reads a byte. Out-of-range reads return 0.
func (m *Memory) Read8(addr uint64) uint8 {
	v, _ := m.Load(addr, 1)
	return uint8(v)
}

// Read32 reads a 32-bit word. Out-of-range reads return 0.
func (m *Memory) Read32(addr uint64) uint32 {
	v, _ := m.Load(addr, 4)
	return uint32(v)
}

// Read64 reads a 64-bit word. Out-of-range reads return 0.
func (m *Memory) Read64(addr uint64) uint64 {
	v, _ := m.Load(addr, 8)
	return v
}

// LoadProgram copies a program image into memory at addr.
func (m *Memory) LoadProgram(addr uint64, program []byte) error {
	return m.Write(addr, program)
}

// beginJournal starts journaling writes and returns the journal position to
// roll back to.
func (m *Memory) beginJournal() int {
	m.journaling++
	return len(m.journal)
}

// rollback undoes every journaled write after mark.
func (m *Memory) rollback(mark int) {
	for i := len(m.journal) - 1; i >= mark; i-- {
		e := m.journal[i]
		_ = m.storage.Write(e.addr-m.base, e.old)
	}
	m.journal = m.journal[:mark]
}

// endJournal stops one level of journaling. The journal is dropped once no
// snapshot needs it.
func (m *Memory) endJournal() {
	if m.journaling > 0 {
		m.journaling--
	}
	if m.journaling == 0 {
		m.journal = m.journal[:0]
	}
}
