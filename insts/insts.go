// Package insts provides RV64 instruction definitions, decoding and the
// opcode classifiers used by the differential-testing policies.
//
// It supports:
//   - RV64I base integer instructions and the M extension
//   - A extension: LR/SC and AMOs (word and doubleword)
//   - Zicsr, FENCE/FENCE.I, ECALL/EBREAK, MRET/SRET/WFI/SFENCE.VMA
//   - FP loads/stores and FMV moves between register files
//   - the simulation trap instruction (opcode 0x6b)
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x02a00513) // addi a0, zero, 42
//	fmt.Printf("Op: %v, Rd: %d, Imm: %d\n", inst.Op, inst.Rd, inst.Imm)
package insts

// Major opcodes (bits [6:0]).
const (
	OpcodeLoad    uint32 = 0x03
	OpcodeLoadFP  uint32 = 0x07
	OpcodeMiscMem uint32 = 0x0f
	OpcodeOpImm   uint32 = 0x13
	OpcodeAUIPC   uint32 = 0x17
	OpcodeOpImm32 uint32 = 0x1b
	OpcodeStore   uint32 = 0x23
	OpcodeStoreFP uint32 = 0x27
	OpcodeAMO     uint32 = 0x2f
	OpcodeOp      uint32 = 0x33
	OpcodeLUI     uint32 = 0x37
	OpcodeOp32    uint32 = 0x3b
	OpcodeOpFP    uint32 = 0x53
	OpcodeBranch  uint32 = 0x63
	OpcodeJALR    uint32 = 0x67
	OpcodeTrap    uint32 = 0x6b
	OpcodeJAL     uint32 = 0x6f
	OpcodeSystem  uint32 = 0x73
)

// Opcode returns bits [6:0] of a raw instruction.
func Opcode(raw uint32) uint32 {
	return raw & 0x7f
}

// CSRAddr returns the CSR address field (bits [31:20]) of a raw instruction.
func CSRAddr(raw uint32) uint16 {
	return uint16(raw >> 20)
}

// IsRVC reports whether raw is a 16-bit compressed instruction.
func IsRVC(raw uint32) bool {
	return raw&0x3 != 0x3
}

// IsLoadStore reports whether raw is an integer load or store.
func IsLoadStore(raw uint32) bool {
	op := Opcode(raw)
	return op == OpcodeLoad || op == OpcodeStore
}

// IsTriggerCSR reports whether raw is a SYSTEM instruction addressing a
// trigger CSR (0x7a0-0x7af).
func IsTriggerCSR(raw uint32) bool {
	return Opcode(raw) == OpcodeSystem && CSRAddr(raw)&0xff0 == 0x7a0
}

// IsDebugCSR reports whether raw is a SYSTEM instruction addressing dcsr or
// dpc (0x7b0-0x7b1).
func IsDebugCSR(raw uint32) bool {
	return Opcode(raw) == OpcodeSystem && CSRAddr(raw)&0xffe == 0x7b0
}
