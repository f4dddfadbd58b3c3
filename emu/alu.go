package emu

import (
	"math/bits"

	"github.com/sarchlab/difftest/insts"
)

// ALU implements RV64 integer arithmetic, logic and the M extension.
type ALU struct {
	regFile *RegFile
}

// NewALU creates a new ALU connected to the given register file.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

// Execute computes a register-immediate or register-register instruction
// and writes the result to Rd.
func (a *ALU) Execute(inst *insts.Instruction) {
	op1 := a.regFile.ReadReg(inst.Rs1)
	op2 := uint64(inst.Imm)
	if inst.Format == insts.FormatR {
		op2 = a.regFile.ReadReg(inst.Rs2)
	}

	switch inst.Op {
	case insts.OpADDIW, insts.OpSLLIW, insts.OpSRLIW, insts.OpSRAIW,
		insts.OpADDW, insts.OpSUBW, insts.OpSLLW, insts.OpSRLW, insts.OpSRAW,
		insts.OpMULW, insts.OpDIVW, insts.OpDIVUW, insts.OpREMW, insts.OpREMUW:
		a.regFile.WriteReg32(inst.Rd, a.compute32(inst.Op, uint32(op1), uint32(op2)))
	default:
		a.regFile.WriteReg(inst.Rd, a.compute64(inst.Op, op1, op2))
	}
}

func (a *ALU) compute64(op insts.Op, x, y uint64) uint64 {
	switch op {
	case insts.OpADD, insts.OpADDI:
		return x + y
	case insts.OpSUB:
		return x - y
	case insts.OpSLL, insts.OpSLLI:
		return x << (y & 0x3f)
	case insts.OpSRL, insts.OpSRLI:
		return x >> (y & 0x3f)
	case insts.OpSRA, insts.OpSRAI:
		return uint64(int64(x) >> (y & 0x3f))
	case insts.OpSLT, insts.OpSLTI:
		return boolToU64(int64(x) < int64(y))
	case insts.OpSLTU, insts.OpSLTIU:
		return boolToU64(x < y)
	case insts.OpXOR, insts.OpXORI:
		return x ^ y
	case insts.OpOR, insts.OpORI:
		return x | y
	case insts.OpAND, insts.OpANDI:
		return x & y
	case insts.OpMUL:
		return x * y
	case insts.OpMULH:
		return mulh(int64(x), int64(y))
	case insts.OpMULHSU:
		return mulhsu(int64(x), y)
	case insts.OpMULHU:
		hi, _ := bits.Mul64(x, y)
		return hi
	case insts.OpDIV:
		return uint64(div64(int64(x), int64(y)))
	case insts.OpDIVU:
		if y == 0 {
			return ^uint64(0)
		}
		return x / y
	case insts.OpREM:
		return uint64(rem64(int64(x), int64(y)))
	case insts.OpREMU:
		if y == 0 {
			return x
		}
		return x % y
	}
	return 0
}

func (a *ALU) compute32(op insts.Op, x, y uint32) uint32 {
	switch op {
	case insts.OpADDW, insts.OpADDIW:
		return x + y
	case insts.OpSUBW:
		return x - y
	case insts.OpSLLW, insts.OpSLLIW:
		return x << (y & 0x1f)
	case insts.OpSRLW, insts.OpSRLIW:
		return x >> (y & 0x1f)
	case insts.OpSRAW, insts.OpSRAIW:
		return uint32(int32(x) >> (y & 0x1f))
	case insts.OpMULW:
		return x * y
	case insts.OpDIVW:
		return uint32(div32(int32(x), int32(y)))
	case insts.OpDIVUW:
		if y == 0 {
			return ^uint32(0)
		}
		return x / y
	case insts.OpREMW:
		return uint32(rem32(int32(x), int32(y)))
	case insts.OpREMUW:
		if y == 0 {
			return x
		}
		return x % y
	}
	return 0
}

// Division by zero and signed overflow follow the RISC-V definitions: no
// trap, all-ones quotient and dividend remainder for /0, dividend quotient
// and zero remainder for overflow.
func div64(x, y int64) int64 {
	switch {
	case y == 0:
		return -1
	case x == -1<<63 && y == -1:
		return x
	}
	return x / y
}

func rem64(x, y int64) int64 {
	switch {
	case y == 0:
		return x
	case x == -1<<63 && y == -1:
		return 0
	}
	return x % y
}

func div32(x, y int32) int32 {
	switch {
	case y == 0:
		return -1
	case x == -1<<31 && y == -1:
		return x
	}
	return x / y
}

func rem32(x, y int32) int32 {
	switch {
	case y == 0:
		return x
	case x == -1<<31 && y == -1:
		return 0
	}
	return x % y
}

func mulh(x, y int64) uint64 {
	hi, _ := bits.Mul64(uint64(x), uint64(y))
	if x < 0 {
		hi -= uint64(y)
	}
	if y < 0 {
		hi -= uint64(x)
	}
	return hi
}

func mulhsu(x int64, y uint64) uint64 {
	hi, _ := bits.Mul64(uint64(x), y)
	if x < 0 {
		hi -= y
	}
	return hi
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
