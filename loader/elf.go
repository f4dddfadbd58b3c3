// Package loader reads RISC-V programs, either ELF64 executables or raw
// memory images, and places them into the memories of a differential run.
package loader

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/difftest/refproxy"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment represents a loadable segment.
type Segment struct {
	// Addr is the physical address where this segment is loaded.
	Addr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint64
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program represents a loaded program ready to be placed into memory.
type Program struct {
	// EntryPoint is the address where execution begins.
	EntryPoint uint64
	// Segments contains all loadable segments.
	Segments []Segment
}

// Memory is a byte-addressed memory a program can be written into. The
// emulator memory and the golden memory both satisfy it.
type Memory interface {
	Write(addr uint64, data []byte) error
}

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// Open loads path as an ELF executable when it starts with the ELF magic
// and as a raw image placed at base otherwise.
func Open(path string, base uint64) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open program: %w", err)
	}
	defer func() { _ = f.Close() }()

	magic := make([]byte, len(elfMagic))
	n, err := io.ReadFull(f, magic)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}

	if n == len(elfMagic) && bytes.Equal(magic, elfMagic) {
		return Load(path)
	}
	return LoadImage(path, base)
}

// LoadImage reads a raw memory image and places it at base, which is also
// the entry point.
func LoadImage(path string, base uint64) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image %s", path)
	}

	return &Program{
		EntryPoint: base,
		Segments: []Segment{{
			Addr:    base,
			Data:    data,
			MemSize: uint64(len(data)),
			Flags:   SegmentFlagRead | SegmentFlagWrite | SegmentFlagExecute,
		}},
	}, nil
}

// Load parses a RISC-V ELF64 executable. Segments are placed at their
// physical addresses.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("not a 64-bit ELF file")
	}

	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("not a RISC-V ELF file (machine type: %v)", f.Machine)
	}

	prog := &Program{EntryPoint: f.Entry}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Paddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Paddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			Addr:    phdr.Paddr,
			Data:    data,
			MemSize: phdr.Memsz,
			Flags:   flags,
		})
	}

	return prog, nil
}

// image returns the bytes of seg as they appear in memory, with the BSS
// part zeroed.
func (seg *Segment) image() []byte {
	if seg.MemSize <= uint64(len(seg.Data)) {
		return seg.Data
	}
	buf := make([]byte, seg.MemSize)
	copy(buf, seg.Data)
	return buf
}

// LoadInto writes every segment into each of mems.
func (p *Program) LoadInto(mems ...Memory) error {
	for i := range p.Segments {
		seg := &p.Segments[i]
		img := seg.image()
		for _, m := range mems {
			if err := m.Write(seg.Addr, img); err != nil {
				return fmt.Errorf("failed to load segment at 0x%x: %w", seg.Addr, err)
			}
		}
	}
	return nil
}

// CopyToReference writes every segment into the memory of a reference
// through its proxy.
func (p *Program) CopyToReference(ref refproxy.Proxy) error {
	for i := range p.Segments {
		seg := &p.Segments[i]
		if err := ref.MemCopy(seg.Addr, seg.image(), refproxy.DUTToREF); err != nil {
			return fmt.Errorf("failed to copy segment at 0x%x: %w", seg.Addr, err)
		}
	}
	return nil
}

// Size returns the number of bytes the program occupies in memory.
func (p *Program) Size() uint64 {
	var n uint64
	for _, seg := range p.Segments {
		n += max(seg.MemSize, uint64(len(seg.Data)))
	}
	return n
}
