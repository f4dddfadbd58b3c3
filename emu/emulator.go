package emu

import (
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/difftest/insts"
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Exited is true if the program terminated through the trap instruction.
	Exited bool

	// ExitCode is the value of a0 at the trap instruction if Exited is true.
	ExitCode int64

	// Err is set if the emulator could not execute an instruction.
	Err error

	// PC and Inst identify the executed instruction.
	PC   uint64
	Inst uint32

	// Exception is set when the instruction raised a synchronous exception
	// and control was transferred to the trap handler.
	Exception *Exception

	// WroteGPR/WroteFPR report a register write-back to Rd.
	WroteGPR bool
	WroteFPR bool
	Rd       uint8

	// Mem describes the memory access of the instruction.
	Mem MemAccess

	// Branch reports a control-transfer instruction.
	Branch bool
}

// Emulator executes RV64 instructions functionally.
type Emulator struct {
	regFile *RegFile
	csr     *CSRFile
	memory  *Memory
	decoder *insts.Decoder

	// Execution units
	alu        *ALU
	lsu        *LoadStoreUnit
	branchUnit *BranchUnit

	stderr io.Writer

	hartID           uint64
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit

	halted   bool
	exitCode int64

	recordStores bool

	snapshots []*Snapshot
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithStderr sets a custom stderr writer.
func WithStderr(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stderr = w
	}
}

// WithMemory sets the physical memory of the emulator.
func WithMemory(m *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = m
	}
}

// WithHartID sets the value of mhartid.
func WithHartID(id uint64) EmulatorOption {
	return func(e *Emulator) {
		e.hartID = id
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithStoreQueue enables recording of committed stores.
func WithStoreQueue() EmulatorOption {
	return func(e *Emulator) {
		e.recordStores = true
	}
}

// NewEmulator creates a new RV64 emulator in machine mode.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{},
		decoder: insts.NewDecoder(),
		stderr:  os.Stderr,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.memory == nil {
		e.memory = NewMemory(DefaultMemoryBase, DefaultMemorySize)
	}

	// Create execution units
	e.csr = NewCSRFile(e.hartID, &e.instructionCount)
	e.alu = NewALU(e.regFile)
	e.branchUnit = NewBranchUnit(e.regFile)
	e.lsu = NewLoadStoreUnit(e.regFile, e.memory)
	e.lsu.EnableStoreQueue(e.recordStores)

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// CSR returns the emulator's CSR file.
func (e *Emulator) CSR() *CSRFile {
	return e.csr
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// LSU returns the emulator's load-store unit.
func (e *Emulator) LSU() *LoadStoreUnit {
	return e.lsu
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Halted reports whether the trap instruction has been executed.
func (e *Emulator) Halted() bool {
	return e.halted
}

// LoadProgram copies program into memory at entry and sets the PC.
func (e *Emulator) LoadProgram(entry uint64, program []byte) error {
	if err := e.memory.LoadProgram(entry, program); err != nil {
		return err
	}
	e.regFile.PC = entry
	return nil
}

// Step executes a single instruction.
// Returns a StepResult indicating whether execution should continue.
func (e *Emulator) Step() StepResult {
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: fmt.Errorf("max instructions reached")}
	}

	if e.halted {
		return StepResult{Exited: true, ExitCode: e.exitCode, PC: e.regFile.PC}
	}

	result := StepResult{PC: e.regFile.PC}

	// 1. Fetch
	word, err := e.memory.Load(result.PC, 4)
	if err != nil {
		exc := &Exception{Cause: CauseFetchAccessFault, TVal: result.PC}
		e.takeTrap(exc.Cause, exc.TVal, false)
		result.Exception = exc
		e.instructionCount++
		return result
	}
	result.Inst = uint32(word)

	// 2. Decode
	inst := e.decoder.Decode(result.Inst)

	// 3. Execute
	if exc := e.execute(inst, &result); exc != nil {
		e.takeTrap(exc.Cause, exc.TVal, false)
		result.Exception = exc
	} else {
		result.Rd = inst.Rd
		result.WroteGPR = inst.WritesGPR()
		result.WroteFPR = inst.WritesFPR()
		result.Branch = inst.IsBranch()
	}

	e.instructionCount++

	return result
}

// Run executes instructions until the program exits or an error occurs.
// Returns the exit code (-1 if error).
func (e *Emulator) Run() int64 {
	for {
		result := e.Step()
		if result.Exited {
			return result.ExitCode
		}
		if result.Err != nil {
			_, _ = fmt.Fprintf(e.stderr, "Emulation error: %v\n", result.Err)
			return -1
		}
	}
}

// RaiseInterrupt takes interrupt cause at the current PC.
func (e *Emulator) RaiseInterrupt(cause uint64) {
	e.takeTrap(cause&^InterruptBit, 0, true)
}

// ForceException takes exception cause at the current PC without executing
// the instruction there.
func (e *Emulator) ForceException(cause, tval uint64) {
	e.takeTrap(cause, tval, false)
	e.instructionCount++
}

// execute dispatches and executes a decoded instruction.
func (e *Emulator) execute(inst *insts.Instruction, result *StepResult) *Exception {
	illegal := &Exception{Cause: CauseIllegalInst, TVal: uint64(inst.Raw)}

	switch inst.Format {
	case insts.FormatU:
		e.executeUpper(inst)
	case insts.FormatJ:
		e.branchUnit.JAL(inst.Rd, inst.Imm)
		return nil // PC already updated
	case insts.FormatB:
		e.branchUnit.Branch(inst)
		return nil // PC already updated
	case insts.FormatI, insts.FormatR, insts.FormatS:
		return e.executeIntOrMem(inst, result)
	case insts.FormatAtomic:
		acc, exc := e.lsu.Atomic(inst)
		if exc != nil {
			return exc
		}
		result.Mem = acc
	case insts.FormatFP:
		return e.executeFP(inst, result)
	case insts.FormatSystem:
		return e.executeSystem(inst, result)
	default:
		return illegal
	}

	// Advance PC by 4 (for non-branch instructions)
	e.regFile.PC += 4

	return nil
}

func (e *Emulator) executeUpper(inst *insts.Instruction) {
	if inst.Op == insts.OpLUI {
		e.regFile.WriteReg(inst.Rd, uint64(inst.Imm))
		return
	}
	e.regFile.WriteReg(inst.Rd, uint64(int64(e.regFile.PC)+inst.Imm))
}

func (e *Emulator) executeIntOrMem(inst *insts.Instruction, result *StepResult) *Exception {
	var (
		acc MemAccess
		exc *Exception
	)

	switch {
	case inst.Op == insts.OpJALR:
		e.branchUnit.JALR(inst.Rd, inst.Rs1, inst.Imm)
		return nil // PC already updated
	case inst.Op == insts.OpFENCE || inst.Op == insts.OpFENCEI:
	case inst.IsLoad():
		acc, exc = e.lsu.Load(inst)
	case inst.IsStore():
		acc, exc = e.lsu.Store(inst)
	default:
		e.alu.Execute(inst)
	}

	if exc != nil {
		return exc
	}

	result.Mem = acc
	e.regFile.PC += 4
	return nil
}

func (e *Emulator) executeFP(inst *insts.Instruction, result *StepResult) *Exception {
	var (
		acc MemAccess
		exc *Exception
	)

	switch inst.Op {
	case insts.OpFLW, insts.OpFLD:
		acc, exc = e.lsu.Load(inst)
	case insts.OpFSW, insts.OpFSD:
		acc, exc = e.lsu.Store(inst)
	case insts.OpFMVXW:
		e.regFile.WriteReg32(inst.Rd, uint32(e.regFile.ReadFReg(inst.Rs1)))
	case insts.OpFMVWX:
		e.regFile.WriteFReg(inst.Rd, nanBox(e.regFile.ReadReg(inst.Rs1)))
	case insts.OpFMVXD:
		e.regFile.WriteReg(inst.Rd, e.regFile.ReadFReg(inst.Rs1))
	case insts.OpFMVDX:
		e.regFile.WriteFReg(inst.Rd, e.regFile.ReadReg(inst.Rs1))
	}

	if exc != nil {
		return exc
	}

	result.Mem = acc
	e.regFile.PC += 4
	return nil
}

func (e *Emulator) executeSystem(inst *insts.Instruction, result *StepResult) *Exception {
	illegal := &Exception{Cause: CauseIllegalInst, TVal: uint64(inst.Raw)}

	switch inst.Op {
	case insts.OpTrap:
		e.halted = true
		e.exitCode = int64(e.regFile.ReadReg(10))
		result.Exited = true
		result.ExitCode = e.exitCode
	case insts.OpECALL:
		switch e.csr.Priv {
		case PrivU:
			return &Exception{Cause: CauseEcallU}
		case PrivS:
			return &Exception{Cause: CauseEcallS}
		default:
			return &Exception{Cause: CauseEcallM}
		}
	case insts.OpEBREAK:
		return &Exception{Cause: CauseBreakpoint, TVal: e.regFile.PC}
	case insts.OpMRET:
		if e.csr.Priv != PrivM {
			return illegal
		}
		e.mret()
		return nil // PC already updated
	case insts.OpSRET:
		if e.csr.Priv < PrivS {
			return illegal
		}
		e.sret()
		return nil // PC already updated
	case insts.OpWFI, insts.OpSFENCEVMA:
		if e.csr.Priv == PrivU {
			return illegal
		}
	default:
		if exc := e.executeCSR(inst); exc != nil {
			return exc
		}
	}

	e.regFile.PC += 4
	return nil
}

// executeCSR executes the Zicsr instructions. CSRRW/CSRRWI with rd=x0 do
// not read the CSR; the set/clear forms with a zero source do not write it.
func (e *Emulator) executeCSR(inst *insts.Instruction) *Exception {
	src := e.regFile.ReadReg(inst.Rs1)
	if inst.Op == insts.OpCSRRWI || inst.Op == insts.OpCSRRSI || inst.Op == insts.OpCSRRCI {
		src = uint64(inst.Rs1)
	}

	write := true
	switch inst.Op {
	case insts.OpCSRRS, insts.OpCSRRC, insts.OpCSRRSI, insts.OpCSRRCI:
		write = inst.Rs1 != 0
	}

	if !e.csr.Accessible(inst.CSR, write) {
		return &Exception{Cause: CauseIllegalInst, TVal: uint64(inst.Raw)}
	}

	old := e.csr.Read(inst.CSR)

	if write {
		switch inst.Op {
		case insts.OpCSRRW, insts.OpCSRRWI:
			e.csr.Write(inst.CSR, src)
		case insts.OpCSRRS, insts.OpCSRRSI:
			e.csr.Write(inst.CSR, old|src)
		case insts.OpCSRRC, insts.OpCSRRCI:
			e.csr.Write(inst.CSR, old&^src)
		}
	}

	e.regFile.WriteReg(inst.Rd, old)
	return nil
}
