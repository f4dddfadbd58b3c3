package insts

// Op represents an RV64 operation.
type Op uint16

// RV64 operations.
const (
	OpUnknown Op = iota

	// Upper immediate and jumps
	OpLUI
	OpAUIPC
	OpJAL
	OpJALR

	// Conditional branches
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU

	// Loads and stores
	OpLB
	OpLH
	OpLW
	OpLD
	OpLBU
	OpLHU
	OpLWU
	OpSB
	OpSH
	OpSW
	OpSD

	// Register-immediate
	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI
	OpADDIW
	OpSLLIW
	OpSRLIW
	OpSRAIW

	// Register-register
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND
	OpADDW
	OpSUBW
	OpSLLW
	OpSRLW
	OpSRAW

	// M extension
	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU
	OpMULW
	OpDIVW
	OpDIVUW
	OpREMW
	OpREMUW

	// Memory ordering and system
	OpFENCE
	OpFENCEI
	OpECALL
	OpEBREAK
	OpMRET
	OpSRET
	OpWFI
	OpSFENCEVMA
	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpCSRRWI
	OpCSRRSI
	OpCSRRCI

	// A extension
	OpLR
	OpSC
	OpAMOSWAP
	OpAMOADD
	OpAMOXOR
	OpAMOAND
	OpAMOOR
	OpAMOMIN
	OpAMOMAX
	OpAMOMINU
	OpAMOMAXU

	// FP memory and moves
	OpFLW
	OpFLD
	OpFSW
	OpFSD
	OpFMVXW
	OpFMVWX
	OpFMVXD
	OpFMVDX

	// Simulation trap (a0 holds the exit code)
	OpTrap
)

// Format represents an instruction encoding class.
type Format uint8

// Instruction formats.
const (
	FormatUnknown Format = iota
	FormatU           // LUI, AUIPC
	FormatJ           // JAL
	FormatI           // register-immediate, loads, JALR
	FormatS           // stores
	FormatB           // conditional branches
	FormatR           // register-register
	FormatAtomic      // LR/SC/AMO
	FormatSystem      // CSR access, environment calls, xRET
	FormatFP          // FP loads, stores and moves
)

// Instruction represents a decoded RV64 instruction.
type Instruction struct {
	Op     Op     // Operation
	Format Format // Encoding class

	Rd     uint8 // Destination register
	Rs1    uint8 // First source register
	Rs2    uint8 // Second source register
	Funct3 uint8
	Funct7 uint8

	Imm int64  // Sign-extended immediate
	CSR uint16 // CSR address for Zicsr instructions

	// Memory access
	Size     uint8 // Access size in bytes
	Unsigned bool  // Zero-extending load

	// Atomic ordering bits
	Aq bool
	Rl bool

	Raw uint32 // Raw encoding
}

// IsLoad reports whether the instruction reads memory.
func (i *Instruction) IsLoad() bool {
	switch i.Op {
	case OpLB, OpLH, OpLW, OpLD, OpLBU, OpLHU, OpLWU, OpFLW, OpFLD:
		return true
	}
	return false
}

// IsStore reports whether the instruction writes memory without reading it.
func (i *Instruction) IsStore() bool {
	switch i.Op {
	case OpSB, OpSH, OpSW, OpSD, OpFSW, OpFSD:
		return true
	}
	return false
}

// IsAMO reports whether the instruction is an A-extension operation.
func (i *Instruction) IsAMO() bool {
	return i.Format == FormatAtomic
}

// IsBranch reports whether the instruction may redirect control flow.
func (i *Instruction) IsBranch() bool {
	return i.Format == FormatB || i.Op == OpJAL || i.Op == OpJALR
}

// WritesGPR reports whether the instruction writes integer register Rd.
// Writes to x0 are discarded and do not count.
func (i *Instruction) WritesGPR() bool {
	if i.Rd == 0 {
		return false
	}

	switch i.Format {
	case FormatU, FormatJ, FormatR, FormatAtomic:
		return true
	case FormatI:
		return i.Op != OpFENCE && i.Op != OpFENCEI
	case FormatSystem:
		switch i.Op {
		case OpCSRRW, OpCSRRS, OpCSRRC, OpCSRRWI, OpCSRRSI, OpCSRRCI:
			return true
		}
	case FormatFP:
		return i.Op == OpFMVXW || i.Op == OpFMVXD
	}
	return false
}

// WritesFPR reports whether the destination is a floating-point register.
func (i *Instruction) WritesFPR() bool {
	return i.Op == OpFLW || i.Op == OpFLD || i.Op == OpFMVWX || i.Op == OpFMVDX
}

// Decoder decodes RV64 machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new RV64 instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit RV64 instruction word. Compressed encodings and
// unsupported instructions decode to OpUnknown.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{
		Op:     OpUnknown,
		Format: FormatUnknown,
		Raw:    word,
		Rd:     uint8((word >> 7) & 0x1f),  // bits [11:7]
		Funct3: uint8((word >> 12) & 0x7),  // bits [14:12]
		Rs1:    uint8((word >> 15) & 0x1f), // bits [19:15]
		Rs2:    uint8((word >> 20) & 0x1f), // bits [24:20]
		Funct7: uint8(word >> 25),          // bits [31:25]
	}

	if IsRVC(word) {
		return inst
	}

	switch Opcode(word) {
	case OpcodeLUI:
		inst.Format = FormatU
		inst.Op = OpLUI
		inst.Imm = immU(word)
	case OpcodeAUIPC:
		inst.Format = FormatU
		inst.Op = OpAUIPC
		inst.Imm = immU(word)
	case OpcodeJAL:
		inst.Format = FormatJ
		inst.Op = OpJAL
		inst.Imm = immJ(word)
	case OpcodeJALR:
		if inst.Funct3 == 0 {
			inst.Format = FormatI
			inst.Op = OpJALR
			inst.Imm = immI(word)
		}
	case OpcodeBranch:
		d.decodeBranch(word, inst)
	case OpcodeLoad:
		d.decodeLoad(word, inst)
	case OpcodeStore:
		d.decodeStore(word, inst)
	case OpcodeOpImm:
		d.decodeOpImm(word, inst)
	case OpcodeOpImm32:
		d.decodeOpImm32(word, inst)
	case OpcodeOp:
		d.decodeOp(inst)
	case OpcodeOp32:
		d.decodeOp32(inst)
	case OpcodeMiscMem:
		d.decodeMiscMem(inst)
	case OpcodeSystem:
		d.decodeSystem(word, inst)
	case OpcodeAMO:
		d.decodeAMO(word, inst)
	case OpcodeLoadFP, OpcodeStoreFP, OpcodeOpFP:
		d.decodeFP(word, inst)
	case OpcodeTrap:
		inst.Format = FormatSystem
		inst.Op = OpTrap
	}

	return inst
}

func immI(word uint32) int64 {
	return int64(int32(word) >> 20)
}

func immS(word uint32) int64 {
	return int64(int32(word&0xfe000000)>>20) | int64((word>>7)&0x1f)
}

func immB(word uint32) int64 {
	imm := int64(int32(word&0x80000000)>>19) // imm[12]
	imm |= int64((word >> 20) & 0x7e0)        // imm[10:5]
	imm |= int64((word >> 7) & 0x1e)          // imm[4:1]
	imm |= int64((word << 4) & 0x800)         // imm[11]
	return imm
}

func immU(word uint32) int64 {
	return int64(int32(word & 0xfffff000))
}

func immJ(word uint32) int64 {
	imm := int64(int32(word&0x80000000) >> 11) // imm[20]
	imm |= int64(word & 0xff000)               // imm[19:12]
	imm |= int64((word >> 9) & 0x800)          // imm[11]
	imm |= int64((word >> 20) & 0x7fe)         // imm[10:1]
	return imm
}

// decodeBranch decodes conditional branches.
// Format: imm[12|10:5] | rs2 | rs1 | funct3 | imm[4:1|11] | 1100011
func (d *Decoder) decodeBranch(word uint32, inst *Instruction) {
	ops := [8]Op{OpBEQ, OpBNE, OpUnknown, OpUnknown, OpBLT, OpBGE, OpBLTU, OpBGEU}
	if ops[inst.Funct3] == OpUnknown {
		return
	}

	inst.Format = FormatB
	inst.Op = ops[inst.Funct3]
	inst.Imm = immB(word)
}

// decodeLoad decodes integer loads.
// Format: imm[11:0] | rs1 | funct3 | rd | 0000011
func (d *Decoder) decodeLoad(word uint32, inst *Instruction) {
	switch inst.Funct3 {
	case 0:
		inst.Op, inst.Size = OpLB, 1
	case 1:
		inst.Op, inst.Size = OpLH, 2
	case 2:
		inst.Op, inst.Size = OpLW, 4
	case 3:
		inst.Op, inst.Size = OpLD, 8
	case 4:
		inst.Op, inst.Size, inst.Unsigned = OpLBU, 1, true
	case 5:
		inst.Op, inst.Size, inst.Unsigned = OpLHU, 2, true
	case 6:
		inst.Op, inst.Size, inst.Unsigned = OpLWU, 4, true
	default:
		return
	}

	inst.Format = FormatI
	inst.Imm = immI(word)
}

// decodeStore decodes integer stores.
// Format: imm[11:5] | rs2 | rs1 | funct3 | imm[4:0] | 0100011
func (d *Decoder) decodeStore(word uint32, inst *Instruction) {
	switch inst.Funct3 {
	case 0:
		inst.Op, inst.Size = OpSB, 1
	case 1:
		inst.Op, inst.Size = OpSH, 2
	case 2:
		inst.Op, inst.Size = OpSW, 4
	case 3:
		inst.Op, inst.Size = OpSD, 8
	default:
		return
	}

	inst.Format = FormatS
	inst.Imm = immS(word)
}

// decodeOpImm decodes 64-bit register-immediate operations. RV64 shifts
// use a 6-bit shamt in bits [25:20].
func (d *Decoder) decodeOpImm(word uint32, inst *Instruction) {
	inst.Format = FormatI
	inst.Imm = immI(word)

	switch inst.Funct3 {
	case 0:
		inst.Op = OpADDI
	case 2:
		inst.Op = OpSLTI
	case 3:
		inst.Op = OpSLTIU
	case 4:
		inst.Op = OpXORI
	case 6:
		inst.Op = OpORI
	case 7:
		inst.Op = OpANDI
	case 1:
		if word>>26 != 0 {
			inst.Format = FormatUnknown
			return
		}
		inst.Op = OpSLLI
		inst.Imm = int64((word >> 20) & 0x3f)
	case 5:
		switch word >> 26 {
		case 0x00:
			inst.Op = OpSRLI
		case 0x10:
			inst.Op = OpSRAI
		default:
			inst.Format = FormatUnknown
			return
		}
		inst.Imm = int64((word >> 20) & 0x3f)
	}
}

// decodeOpImm32 decodes the W-suffixed register-immediate operations.
func (d *Decoder) decodeOpImm32(word uint32, inst *Instruction) {
	switch {
	case inst.Funct3 == 0:
		inst.Op = OpADDIW
		inst.Imm = immI(word)
	case inst.Funct3 == 1 && inst.Funct7 == 0x00:
		inst.Op = OpSLLIW
		inst.Imm = int64(inst.Rs2)
	case inst.Funct3 == 5 && inst.Funct7 == 0x00:
		inst.Op = OpSRLIW
		inst.Imm = int64(inst.Rs2)
	case inst.Funct3 == 5 && inst.Funct7 == 0x20:
		inst.Op = OpSRAIW
		inst.Imm = int64(inst.Rs2)
	default:
		return
	}

	inst.Format = FormatI
}

// decodeOp decodes register-register operations including the M extension.
// Format: funct7 | rs2 | rs1 | funct3 | rd | 0110011
func (d *Decoder) decodeOp(inst *Instruction) {
	var ops [8]Op

	switch inst.Funct7 {
	case 0x00:
		ops = [8]Op{OpADD, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpOR, OpAND}
	case 0x20:
		ops = [8]Op{OpSUB, OpUnknown, OpUnknown, OpUnknown, OpUnknown, OpSRA, OpUnknown, OpUnknown}
	case 0x01:
		ops = [8]Op{OpMUL, OpMULH, OpMULHSU, OpMULHU, OpDIV, OpDIVU, OpREM, OpREMU}
	default:
		return
	}

	if ops[inst.Funct3] == OpUnknown {
		return
	}

	inst.Format = FormatR
	inst.Op = ops[inst.Funct3]
}

// decodeOp32 decodes the W-suffixed register-register operations.
func (d *Decoder) decodeOp32(inst *Instruction) {
	var ops [8]Op

	switch inst.Funct7 {
	case 0x00:
		ops = [8]Op{OpADDW, OpSLLW, OpUnknown, OpUnknown, OpUnknown, OpSRLW, OpUnknown, OpUnknown}
	case 0x20:
		ops = [8]Op{OpSUBW, OpUnknown, OpUnknown, OpUnknown, OpUnknown, OpSRAW, OpUnknown, OpUnknown}
	case 0x01:
		ops = [8]Op{OpMULW, OpUnknown, OpUnknown, OpUnknown, OpDIVW, OpDIVUW, OpREMW, OpREMUW}
	default:
		return
	}

	if ops[inst.Funct3] == OpUnknown {
		return
	}

	inst.Format = FormatR
	inst.Op = ops[inst.Funct3]
}

func (d *Decoder) decodeMiscMem(inst *Instruction) {
	switch inst.Funct3 {
	case 0:
		inst.Op = OpFENCE
	case 1:
		inst.Op = OpFENCEI
	default:
		return
	}

	inst.Format = FormatI
}

// decodeSystem decodes Zicsr and privileged instructions.
// Format: csr | rs1/uimm | funct3 | rd | 1110011
func (d *Decoder) decodeSystem(word uint32, inst *Instruction) {
	inst.Format = FormatSystem
	inst.CSR = CSRAddr(word)

	switch inst.Funct3 {
	case 0:
		d.decodePrivileged(word, inst)
	case 1:
		inst.Op = OpCSRRW
	case 2:
		inst.Op = OpCSRRS
	case 3:
		inst.Op = OpCSRRC
	case 5:
		inst.Op = OpCSRRWI
	case 6:
		inst.Op = OpCSRRSI
	case 7:
		inst.Op = OpCSRRCI
	default:
		inst.Format = FormatUnknown
	}
}

func (d *Decoder) decodePrivileged(word uint32, inst *Instruction) {
	if inst.Funct7 == 0x09 {
		inst.Op = OpSFENCEVMA
		return
	}

	switch word >> 20 {
	case 0x000:
		inst.Op = OpECALL
	case 0x001:
		inst.Op = OpEBREAK
	case 0x102:
		inst.Op = OpSRET
	case 0x302:
		inst.Op = OpMRET
	case 0x105:
		inst.Op = OpWFI
	default:
		inst.Format = FormatUnknown
	}
}

// decodeAMO decodes the A extension.
// Format: funct5 | aq | rl | rs2 | rs1 | funct3 | rd | 0101111
func (d *Decoder) decodeAMO(word uint32, inst *Instruction) {
	switch inst.Funct3 {
	case 2:
		inst.Size = 4
	case 3:
		inst.Size = 8
	default:
		return
	}

	inst.Aq = (word>>26)&0x1 == 1
	inst.Rl = (word>>25)&0x1 == 1

	switch word >> 27 {
	case 0x02:
		inst.Op = OpLR
	case 0x03:
		inst.Op = OpSC
	case 0x01:
		inst.Op = OpAMOSWAP
	case 0x00:
		inst.Op = OpAMOADD
	case 0x04:
		inst.Op = OpAMOXOR
	case 0x0c:
		inst.Op = OpAMOAND
	case 0x08:
		inst.Op = OpAMOOR
	case 0x10:
		inst.Op = OpAMOMIN
	case 0x14:
		inst.Op = OpAMOMAX
	case 0x18:
		inst.Op = OpAMOMINU
	case 0x1c:
		inst.Op = OpAMOMAXU
	default:
		inst.Size = 0
		return
	}

	inst.Format = FormatAtomic
}

// decodeFP decodes FP loads, stores and register-file moves. Arithmetic FP
// operations are not modeled.
func (d *Decoder) decodeFP(word uint32, inst *Instruction) {
	switch Opcode(word) {
	case OpcodeLoadFP:
		switch inst.Funct3 {
		case 2:
			inst.Op, inst.Size = OpFLW, 4
		case 3:
			inst.Op, inst.Size = OpFLD, 8
		default:
			return
		}
		inst.Imm = immI(word)
	case OpcodeStoreFP:
		switch inst.Funct3 {
		case 2:
			inst.Op, inst.Size = OpFSW, 4
		case 3:
			inst.Op, inst.Size = OpFSD, 8
		default:
			return
		}
		inst.Imm = immS(word)
	case OpcodeOpFP:
		if inst.Funct3 != 0 || inst.Rs2 != 0 {
			return
		}
		switch inst.Funct7 {
		case 0x70:
			inst.Op = OpFMVXW
		case 0x78:
			inst.Op = OpFMVWX
		case 0x71:
			inst.Op = OpFMVXD
		case 0x79:
			inst.Op = OpFMVDX
		default:
			return
		}
	}

	inst.Format = FormatFP
}
