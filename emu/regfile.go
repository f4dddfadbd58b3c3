// Package emu provides functional RV64 emulation. It serves as the
// reference model of the differential-testing engine and as the execution
// core of the in-process DUT model.
package emu

// RegFile represents the RV64 register file.
// It contains 32 integer registers (x0-x31), 32 floating-point registers
// (f0-f31) and the program counter (PC).
type RegFile struct {
	// X holds the integer registers. X[0] always reads as 0.
	X [32]uint64

	// F holds the floating-point registers as raw bit patterns.
	F [32]uint64

	// PC is the program counter.
	PC uint64
}

// ReadReg reads an integer register. Register 0 returns 0.
func (r *RegFile) ReadReg(reg uint8) uint64 {
	if reg == 0 || reg >= 32 {
		return 0
	}
	return r.X[reg]
}

// WriteReg writes an integer register. Writes to register 0 are ignored.
func (r *RegFile) WriteReg(reg uint8, value uint64) {
	if reg == 0 || reg >= 32 {
		return
	}
	r.X[reg] = value
}

// ReadFReg reads a floating-point register.
func (r *RegFile) ReadFReg(reg uint8) uint64 {
	return r.F[reg&0x1f]
}

// WriteFReg writes a floating-point register.
func (r *RegFile) WriteFReg(reg uint8, value uint64) {
	r.F[reg&0x1f] = value
}

// ReadReg32 reads the lower 32 bits of an integer register.
func (r *RegFile) ReadReg32(reg uint8) uint32 {
	return uint32(r.ReadReg(reg))
}

// WriteReg32 writes a 32-bit result sign-extended to 64 bits, as the RV64
// W-suffixed instructions do.
func (r *RegFile) WriteReg32(reg uint8, value uint32) {
	r.WriteReg(reg, uint64(int64(int32(value))))
}
