package emu

import "github.com/sarchlab/difftest/insts"

// BranchUnit implements RV64 jumps and conditional branches.
type BranchUnit struct {
	regFile *RegFile
}

// NewBranchUnit creates a new BranchUnit connected to the given register file.
func NewBranchUnit(regFile *RegFile) *BranchUnit {
	return &BranchUnit{regFile: regFile}
}

// JAL saves the return address to Rd and jumps PC-relative.
func (b *BranchUnit) JAL(rd uint8, offset int64) {
	pc := b.regFile.PC
	b.regFile.WriteReg(rd, pc+4)
	b.regFile.PC = uint64(int64(pc) + offset)
}

// JALR saves the return address to Rd and jumps to (Rs1 + offset) with the
// low bit cleared. Rs1 is read before Rd is written.
func (b *BranchUnit) JALR(rd, rs1 uint8, offset int64) {
	target := uint64(int64(b.regFile.ReadReg(rs1))+offset) &^ 1
	b.regFile.WriteReg(rd, b.regFile.PC+4)
	b.regFile.PC = target
}

// Branch evaluates a conditional branch and updates the PC. It returns
// whether the branch was taken.
func (b *BranchUnit) Branch(inst *insts.Instruction) bool {
	taken := b.CheckCondition(inst.Op,
		b.regFile.ReadReg(inst.Rs1), b.regFile.ReadReg(inst.Rs2))

	if taken {
		b.regFile.PC = uint64(int64(b.regFile.PC) + inst.Imm)
	} else {
		b.regFile.PC += 4
	}
	return taken
}

// CheckCondition evaluates the comparison of a conditional branch.
func (b *BranchUnit) CheckCondition(op insts.Op, x, y uint64) bool {
	switch op {
	case insts.OpBEQ:
		return x == y
	case insts.OpBNE:
		return x != y
	case insts.OpBLT:
		return int64(x) < int64(y)
	case insts.OpBGE:
		return int64(x) >= int64(y)
	case insts.OpBLTU:
		return x < y
	case insts.OpBGEU:
		return x >= y
	}
	return false
}
