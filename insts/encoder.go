package insts

import "encoding/binary"

// EncodeR encodes an R-type instruction.
func EncodeR(opcode uint32, funct3, funct7 uint32, rd, rs1, rs2 uint8) uint32 {
	return funct7<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 |
		uint32(rd)<<7 | opcode
}

// EncodeI encodes an I-type instruction.
func EncodeI(opcode uint32, funct3 uint32, rd, rs1 uint8, imm int32) uint32 {
	return uint32(imm&0xfff)<<20 | uint32(rs1)<<15 | funct3<<12 |
		uint32(rd)<<7 | opcode
}

// EncodeS encodes an S-type instruction.
func EncodeS(opcode uint32, funct3 uint32, rs1, rs2 uint8, imm int32) uint32 {
	u := uint32(imm & 0xfff)
	return (u>>5)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 |
		(u&0x1f)<<7 | opcode
}

// EncodeB encodes a B-type instruction. offset is in bytes.
func EncodeB(funct3 uint32, rs1, rs2 uint8, offset int32) uint32 {
	u := uint32(offset & 0x1fff)
	return ((u>>12)&1)<<31 | ((u>>5)&0x3f)<<25 | uint32(rs2)<<20 |
		uint32(rs1)<<15 | funct3<<12 | ((u>>1)&0xf)<<8 | ((u>>11)&1)<<7 |
		OpcodeBranch
}

// EncodeU encodes a U-type instruction. imm holds the upper 20 bits in
// place.
func EncodeU(opcode uint32, rd uint8, imm int32) uint32 {
	return uint32(imm)&0xfffff000 | uint32(rd)<<7 | opcode
}

// EncodeJ encodes JAL. offset is in bytes.
func EncodeJ(rd uint8, offset int32) uint32 {
	u := uint32(offset & 0x1fffff)
	return ((u>>20)&1)<<31 | ((u>>1)&0x3ff)<<21 | ((u>>11)&1)<<20 |
		((u>>12)&0xff)<<12 | uint32(rd)<<7 | OpcodeJAL
}

// NOP encodes addi x0, x0, 0.
func NOP() uint32 { return ADDI(0, 0, 0) }

// ADDI encodes addi rd, rs1, imm.
func ADDI(rd, rs1 uint8, imm int32) uint32 { return EncodeI(OpcodeOpImm, 0, rd, rs1, imm) }

// ADD encodes add rd, rs1, rs2.
func ADD(rd, rs1, rs2 uint8) uint32 { return EncodeR(OpcodeOp, 0, 0x00, rd, rs1, rs2) }

// SUB encodes sub rd, rs1, rs2.
func SUB(rd, rs1, rs2 uint8) uint32 { return EncodeR(OpcodeOp, 0, 0x20, rd, rs1, rs2) }

// MUL encodes mul rd, rs1, rs2.
func MUL(rd, rs1, rs2 uint8) uint32 { return EncodeR(OpcodeOp, 0, 0x01, rd, rs1, rs2) }

// LUI encodes lui rd, imm.
func LUI(rd uint8, imm int32) uint32 { return EncodeU(OpcodeLUI, rd, imm) }

// AUIPC encodes auipc rd, imm.
func AUIPC(rd uint8, imm int32) uint32 { return EncodeU(OpcodeAUIPC, rd, imm) }

// JAL encodes jal rd, offset.
func JAL(rd uint8, offset int32) uint32 { return EncodeJ(rd, offset) }

// JALR encodes jalr rd, imm(rs1).
func JALR(rd, rs1 uint8, imm int32) uint32 { return EncodeI(OpcodeJALR, 0, rd, rs1, imm) }

// BEQ encodes beq rs1, rs2, offset.
func BEQ(rs1, rs2 uint8, offset int32) uint32 { return EncodeB(0, rs1, rs2, offset) }

// BNE encodes bne rs1, rs2, offset.
func BNE(rs1, rs2 uint8, offset int32) uint32 { return EncodeB(1, rs1, rs2, offset) }

// LD encodes ld rd, imm(rs1).
func LD(rd, rs1 uint8, imm int32) uint32 { return EncodeI(OpcodeLoad, 3, rd, rs1, imm) }

// LW encodes lw rd, imm(rs1).
func LW(rd, rs1 uint8, imm int32) uint32 { return EncodeI(OpcodeLoad, 2, rd, rs1, imm) }

// SD encodes sd rs2, imm(rs1).
func SD(rs2, rs1 uint8, imm int32) uint32 { return EncodeS(OpcodeStore, 3, rs1, rs2, imm) }

// SW encodes sw rs2, imm(rs1).
func SW(rs2, rs1 uint8, imm int32) uint32 { return EncodeS(OpcodeStore, 2, rs1, rs2, imm) }

// FLD encodes fld rd, imm(rs1).
func FLD(rd, rs1 uint8, imm int32) uint32 { return EncodeI(OpcodeLoadFP, 3, rd, rs1, imm) }

// FMVDX encodes fmv.d.x rd, rs1.
func FMVDX(rd, rs1 uint8) uint32 { return EncodeR(OpcodeOpFP, 0, 0x79, rd, rs1, 0) }

// CSRRW encodes csrrw rd, csr, rs1.
func CSRRW(rd uint8, csr uint16, rs1 uint8) uint32 {
	return EncodeI(OpcodeSystem, 1, rd, rs1, int32(csr))
}

// CSRRS encodes csrrs rd, csr, rs1.
func CSRRS(rd uint8, csr uint16, rs1 uint8) uint32 {
	return EncodeI(OpcodeSystem, 2, rd, rs1, int32(csr))
}

// AMO encodes an A-extension instruction. funct5 selects the operation,
// double the .d variant.
func AMO(funct5 uint32, double bool, rd, rs1, rs2 uint8) uint32 {
	funct3 := uint32(2)
	if double {
		funct3 = 3
	}
	return EncodeR(OpcodeAMO, funct3, funct5<<2, rd, rs1, rs2)
}

// A-extension funct5 values.
const (
	AMOFunct5ADD  uint32 = 0x00
	AMOFunct5SWAP uint32 = 0x01
	AMOFunct5LR   uint32 = 0x02
	AMOFunct5SC   uint32 = 0x03
	AMOFunct5XOR  uint32 = 0x04
	AMOFunct5OR   uint32 = 0x08
	AMOFunct5AND  uint32 = 0x0c
	AMOFunct5MIN  uint32 = 0x10
	AMOFunct5MAX  uint32 = 0x14
	AMOFunct5MINU uint32 = 0x18
	AMOFunct5MAXU uint32 = 0x1c
)

// ECALL encodes ecall.
func ECALL() uint32 { return 0x00000073 }

// MRET encodes mret.
func MRET() uint32 { return 0x30200073 }

// Trap encodes the simulation trap instruction. The exit code is taken
// from a0.
func Trap() uint32 { return OpcodeTrap }

// Program returns the little-endian image of a sequence of instructions.
func Program(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return buf
}
