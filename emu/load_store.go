package emu

import (
	"github.com/sarchlab/difftest/insts"
)

// MemAccessKind classifies the memory access of a retired instruction.
type MemAccessKind uint8

// Memory access kinds.
const (
	MemNone MemAccessKind = iota
	MemLoad
	MemStore
	MemLR
	MemSC
	MemAMO
)

// MemAccess describes the memory access performed by one instruction.
type MemAccess struct {
	Kind MemAccessKind
	Addr uint64
	Size uint8

	// Value is the value loaded (zero-extended) for loads and LR, the value
	// stored for stores and SC, and the source operand for AMOs.
	Value uint64

	// Old is the memory value read by an AMO before it was updated.
	Old uint64

	// Success is the outcome of an SC.
	Success bool
}

// StoreRecord is one committed store as observed by the store-commit check:
// the 8-byte aligned address, the data shifted to its byte lane and the
// byte mask.
type StoreRecord struct {
	Addr uint64
	Data uint64
	Mask uint8
}

// LoadStoreUnit implements RV64 loads, stores and the A extension.
type LoadStoreUnit struct {
	regFile *RegFile
	memory  *Memory

	resValid bool
	resAddr  uint64

	recordStores bool
	storeQueue   []StoreRecord
}

// NewLoadStoreUnit creates a new LoadStoreUnit connected to the given
// register file and memory.
func NewLoadStoreUnit(regFile *RegFile, memory *Memory) *LoadStoreUnit {
	return &LoadStoreUnit{
		regFile: regFile,
		memory:  memory,
	}
}

// Load executes an integer or floating-point load.
func (lsu *LoadStoreUnit) Load(inst *insts.Instruction) (MemAccess, *Exception) {
	addr := uint64(int64(lsu.regFile.ReadReg(inst.Rs1)) + inst.Imm)
	acc := MemAccess{Kind: MemLoad, Addr: addr, Size: inst.Size}

	value, err := lsu.memory.Load(addr, inst.Size)
	if err != nil {
		return acc, &Exception{Cause: CauseLoadAccessFault, TVal: addr}
	}
	acc.Value = value

	switch inst.Op {
	case insts.OpFLW:
		lsu.regFile.WriteFReg(inst.Rd, nanBox(value))
	case insts.OpFLD:
		lsu.regFile.WriteFReg(inst.Rd, value)
	default:
		if !inst.Unsigned {
			value = signExtend(value, inst.Size)
		}
		lsu.regFile.WriteReg(inst.Rd, value)
	}

	return acc, nil
}

// Store executes an integer or floating-point store.
func (lsu *LoadStoreUnit) Store(inst *insts.Instruction) (MemAccess, *Exception) {
	addr := uint64(int64(lsu.regFile.ReadReg(inst.Rs1)) + inst.Imm)

	value := lsu.regFile.ReadReg(inst.Rs2)
	if inst.Op == insts.OpFSW || inst.Op == insts.OpFSD {
		value = lsu.regFile.ReadFReg(inst.Rs2)
	}
	value &= sizeMask(inst.Size)

	acc := MemAccess{Kind: MemStore, Addr: addr, Size: inst.Size, Value: value}

	if err := lsu.memory.Store(addr, inst.Size, value); err != nil {
		return acc, &Exception{Cause: CauseStoreAccessFault, TVal: addr}
	}

	if lsu.recordStores {
		lsu.storeQueue = append(lsu.storeQueue, makeStoreRecord(addr, inst.Size, value))
	}

	return acc, nil
}

func makeStoreRecord(addr uint64, size uint8, value uint64) StoreRecord {
	offset := addr & 0x7
	return StoreRecord{
		Addr: addr &^ 0x7,
		Data: value << (8 * offset),
		Mask: uint8(((1 << size) - 1) << offset),
	}
}

// Atomic executes LR, SC and the AMO instructions.
func (lsu *LoadStoreUnit) Atomic(inst *insts.Instruction) (MemAccess, *Exception) {
	addr := lsu.regFile.ReadReg(inst.Rs1)
	src := lsu.regFile.ReadReg(inst.Rs2) & sizeMask(inst.Size)

	acc := MemAccess{Addr: addr, Size: inst.Size, Value: src}

	faultCause, misalignedCause := CauseStoreAccessFault, CauseStoreMisaligned
	if inst.Op == insts.OpLR {
		faultCause, misalignedCause = CauseLoadAccessFault, CauseLoadMisaligned
	}
	if addr%uint64(inst.Size) != 0 {
		return acc, &Exception{Cause: misalignedCause, TVal: addr}
	}
	fault := &Exception{Cause: faultCause, TVal: addr}
	if !lsu.memory.Contains(addr, uint64(inst.Size)) {
		return acc, fault
	}

	var err error
	switch inst.Op {
	case insts.OpLR:
		acc.Kind = MemLR
		if acc.Value, err = lsu.memory.Load(addr, inst.Size); err != nil {
			return acc, fault
		}
		lsu.regFile.WriteReg(inst.Rd, signExtend(acc.Value, inst.Size))
		lsu.resValid = true
		lsu.resAddr = addr
	case insts.OpSC:
		acc.Kind = MemSC
		acc.Success = lsu.resValid && lsu.resAddr == addr
		lsu.resValid = false
		if !acc.Success {
			lsu.regFile.WriteReg(inst.Rd, 1)
			break
		}
		if err = lsu.memory.Store(addr, inst.Size, src); err != nil {
			return acc, fault
		}
		lsu.regFile.WriteReg(inst.Rd, 0)
	default:
		acc.Kind = MemAMO
		if acc.Old, err = lsu.memory.Load(addr, inst.Size); err != nil {
			return acc, fault
		}
		result := AMOResult(inst.Op, inst.Size, acc.Old, src)
		if err = lsu.memory.Store(addr, inst.Size, result); err != nil {
			return acc, fault
		}
		lsu.regFile.WriteReg(inst.Rd, signExtend(acc.Old, inst.Size))
	}

	return acc, nil
}

// AMOResult computes the value an AMO writes back to memory from the old
// memory value and the source operand. size is 4 or 8.
func AMOResult(op insts.Op, size uint8, old, src uint64) uint64 {
	if size == 4 {
		return uint64(amo32(op, uint32(old), uint32(src)))
	}
	return amo64(op, old, src)
}

func amo64(op insts.Op, t, rs uint64) uint64 {
	switch op {
	case insts.OpAMOSWAP:
		return rs
	case insts.OpAMOADD:
		return t + rs
	case insts.OpAMOXOR:
		return t ^ rs
	case insts.OpAMOAND:
		return t & rs
	case insts.OpAMOOR:
		return t | rs
	case insts.OpAMOMIN:
		return pick(int64(t) < int64(rs), t, rs)
	case insts.OpAMOMAX:
		return pick(int64(t) > int64(rs), t, rs)
	case insts.OpAMOMINU:
		return pick(t < rs, t, rs)
	case insts.OpAMOMAXU:
		return pick(t > rs, t, rs)
	}
	return t
}

func amo32(op insts.Op, t, rs uint32) uint32 {
	switch op {
	case insts.OpAMOSWAP:
		return rs
	case insts.OpAMOADD:
		return t + rs
	case insts.OpAMOXOR:
		return t ^ rs
	case insts.OpAMOAND:
		return t & rs
	case insts.OpAMOOR:
		return t | rs
	case insts.OpAMOMIN:
		return pick(int32(t) < int32(rs), t, rs)
	case insts.OpAMOMAX:
		return pick(int32(t) > int32(rs), t, rs)
	case insts.OpAMOMINU:
		return pick(t < rs, t, rs)
	case insts.OpAMOMAXU:
		return pick(t > rs, t, rs)
	}
	return t
}

func pick[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}

// Reservation returns the LR reservation address and whether it is valid.
func (lsu *LoadStoreUnit) Reservation() (uint64, bool) {
	return lsu.resAddr, lsu.resValid
}

// SetReservationValid overrides the validity of the LR reservation.
func (lsu *LoadStoreUnit) SetReservationValid(valid bool) {
	lsu.resValid = valid
}

// EnableStoreQueue turns recording of committed stores on or off. Turning
// it off drops recorded stores.
func (lsu *LoadStoreUnit) EnableStoreQueue(enabled bool) {
	lsu.recordStores = enabled
	if !enabled {
		lsu.storeQueue = nil
	}
}

// PopStore removes and returns the oldest recorded store.
func (lsu *LoadStoreUnit) PopStore() (StoreRecord, bool) {
	if len(lsu.storeQueue) == 0 {
		return StoreRecord{}, false
	}
	rec := lsu.storeQueue[0]
	lsu.storeQueue = lsu.storeQueue[1:]
	return rec, true
}

// PendingStores returns the number of recorded stores not yet popped.
func (lsu *LoadStoreUnit) PendingStores() int {
	return len(lsu.storeQueue)
}

func signExtend(v uint64, size uint8) uint64 {
	if size >= 8 {
		return v
	}
	shift := 64 - 8*uint(size)
	return uint64(int64(v<<shift) >> shift)
}

func sizeMask(size uint8) uint64 {
	if size >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*uint(size)) - 1
}

func nanBox(v uint64) uint64 {
	return 0xffffffff00000000 | v&0xffffffff
}
