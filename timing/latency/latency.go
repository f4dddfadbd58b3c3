// Package latency provides the instruction timing of the DUT model.
//
// Latencies are configured per instruction class through TimingConfig.
package latency

import (
	"github.com/sarchlab/difftest/insts"
)

// Class is an instruction class with its own latency.
type Class int

// Instruction classes.
const (
	ClassALU Class = iota
	ClassBranch
	ClassLoad
	ClassStore
	ClassAtomic
	ClassMultiply
	ClassDivide
	ClassFP
	ClassSystem
)

// Table provides instruction latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with the default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// ClassOf returns the class of inst.
func ClassOf(inst *insts.Instruction) Class {
	switch {
	case inst.IsAMO():
		return ClassAtomic
	case inst.IsLoad():
		return ClassLoad
	case inst.IsStore():
		return ClassStore
	case inst.IsBranch():
		return ClassBranch
	}

	switch inst.Op {
	case insts.OpMUL, insts.OpMULH, insts.OpMULHSU, insts.OpMULHU, insts.OpMULW:
		return ClassMultiply
	case insts.OpDIV, insts.OpDIVU, insts.OpDIVW, insts.OpDIVUW,
		insts.OpREM, insts.OpREMU, insts.OpREMW, insts.OpREMUW:
		return ClassDivide
	case insts.OpFENCE, insts.OpFENCEI:
		return ClassSystem
	}

	switch inst.Format {
	case insts.FormatFP:
		return ClassFP
	case insts.FormatSystem:
		return ClassSystem
	}
	return ClassALU
}

// GetLatency returns the execution latency in cycles for the given instruction.
func (t *Table) GetLatency(inst *insts.Instruction) uint64 {
	if inst == nil {
		return 1
	}

	switch ClassOf(inst) {
	case ClassBranch:
		return t.config.BranchLatency
	case ClassLoad:
		return t.config.LoadLatency
	case ClassStore:
		return t.config.StoreLatency
	case ClassAtomic:
		return t.config.AtomicLatency
	case ClassMultiply:
		return t.config.MultiplyLatency
	case ClassDivide:
		return t.config.DivideLatency
	case ClassFP:
		return t.config.FPLatency
	case ClassSystem:
		return t.config.SystemLatency
	default:
		return t.config.ALULatency
	}
}

// IsMemoryOp returns true if the instruction accesses memory.
func (t *Table) IsMemoryOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	switch ClassOf(inst) {
	case ClassLoad, ClassStore, ClassAtomic:
		return true
	}
	return false
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
