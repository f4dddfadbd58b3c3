package difftest

import (
	"fmt"

	"github.com/sarchlab/difftest/state"
)

// The collectors below return the DUT-side records the harness populates
// in place for the current tick. An index outside the configured width is
// a contract violation and panics.

func checkIndex(what string, i, n int) {
	if i < 0 || i >= n {
		panic(fmt.Sprintf("difftest: %s index %d out of range [0, %d)", what, i, n))
	}
}

// TrapEvent returns the trap record.
func (c *Controller) TrapEvent() *state.TrapEvent {
	return &c.dut.Trap
}

// ArchEvent returns the interrupt/exception record.
func (c *Controller) ArchEvent() *state.ArchEvent {
	return &c.dut.Event
}

// InstrCommit returns commit slot i.
func (c *Controller) InstrCommit(i int) *state.InstrCommit {
	checkIndex("commit", i, len(c.dut.Commit))
	return &c.dut.Commit[i]
}

// CSRState returns the CSR bank.
func (c *Controller) CSRState() *state.CSRState {
	return &c.dut.CSR
}

// ArchRegState returns the architectural register bank.
func (c *Controller) ArchRegState() *state.ArchRegState {
	return &c.dut.Regs
}

// PhysRegState returns the physical register bank.
func (c *Controller) PhysRegState() *state.PhysRegState {
	return &c.dut.PhysRegs
}

// DebugModeState returns the debug-mode bank. It panics when debug-mode
// checking is disabled.
func (c *Controller) DebugModeState() *state.DebugModeState {
	if c.dut.DebugMode == nil {
		panic("difftest: debug-mode bank requested with debug_mode_diff disabled")
	}
	return c.dut.DebugMode
}

// SbufferEvent returns store-buffer drain response i.
func (c *Controller) SbufferEvent(i int) *state.SbufferState {
	checkIndex("sbuffer", i, len(c.dut.Sbuffer))
	return &c.dut.Sbuffer[i]
}

// StoreEvent returns committed store i.
func (c *Controller) StoreEvent(i int) *state.StoreEvent {
	checkIndex("store", i, len(c.dut.Store))
	return &c.dut.Store[i]
}

// LoadEvent returns the load record of commit slot i.
func (c *Controller) LoadEvent(i int) *state.LoadEvent {
	checkIndex("load", i, len(c.dut.Load))
	return &c.dut.Load[i]
}

// AtomicEvent returns the atomic response record.
func (c *Controller) AtomicEvent() *state.AtomicEvent {
	return &c.dut.Atomic
}

// PTWEvent returns the page-table-walk response record.
func (c *Controller) PTWEvent() *state.PTWEvent {
	return &c.dut.PTW
}

// RefillEvent returns the refill record of a cache.
func (c *Controller) RefillEvent(id state.CacheID) *state.RefillEvent {
	if id != state.ICache && id != state.DCache {
		panic(fmt.Sprintf("difftest: unknown cache %d", id))
	}
	return c.dut.Refill(id)
}

// LRSCEvent returns the store-conditional outcome record.
func (c *Controller) LRSCEvent() *state.LRSCEvent {
	return &c.dut.LRSC
}

// RunaheadEvent returns run-ahead record i.
func (c *Controller) RunaheadEvent(i int) *state.RunaheadEvent {
	checkIndex("runahead", i, len(c.dut.Runahead))
	return &c.dut.Runahead[i]
}

// RunaheadCommitEvent returns run-ahead confirmation i.
func (c *Controller) RunaheadCommitEvent(i int) *state.RunaheadCommitEvent {
	checkIndex("runahead commit", i, len(c.dut.RunaheadCommit))
	return &c.dut.RunaheadCommit[i]
}

// RunaheadRedirectEvent returns the run-ahead redirect record.
func (c *Controller) RunaheadRedirectEvent() *state.RunaheadRedirectEvent {
	return &c.dut.RunaheadRedirect
}

// RunaheadMemdepPred returns memory-dependency prediction i.
func (c *Controller) RunaheadMemdepPred(i int) *state.RunaheadMemdepPred {
	checkIndex("runahead memdep", i, len(c.dut.RunaheadMemdep))
	return &c.dut.RunaheadMemdep[i]
}
