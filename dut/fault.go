package dut

import "github.com/sarchlab/difftest/state"

// FaultKind selects what a Fault corrupts.
type FaultKind int

const (
	// FaultWriteback flips bit 0 of a value written to the physical
	// register file.
	FaultWriteback FaultKind = iota
	// FaultRegister flips bit 0 of architectural register Reg in the
	// reported register bank.
	FaultRegister
	// FaultStore flips bit 0 of the data of a committed store.
	FaultStore
	// FaultRefill flips bit 0 of the first word of a cache refill.
	FaultRefill
	// FaultStall stops the core from retiring.
	FaultStall
)

func (k FaultKind) String() string {
	switch k {
	case FaultWriteback:
		return "writeback"
	case FaultRegister:
		return "register"
	case FaultStore:
		return "store"
	case FaultRefill:
		return "refill"
	case FaultStall:
		return "stall"
	}
	return "unknown"
}

// Fault is a bug planted in the model. It fires once, at the first
// opportunity after the core has retired At instructions.
type Fault struct {
	Kind FaultKind
	At   uint64
	Reg  int
}

type armedFault struct {
	Fault
	fired bool
}

// arm returns the first unfired fault of kind k that is due.
func (m *Model) arm(k FaultKind) *armedFault {
	count := m.emu.InstructionCount()
	for _, f := range m.faults {
		if f.Kind == k && !f.fired && count >= f.At {
			return f
		}
	}
	return nil
}

func (m *Model) fire(f *armedFault) {
	f.fired = true
	m.logger.Info("fault injected", "kind", f.Kind.String(), "cycle", m.cycle)
}

// stalled reports whether a stall fault holds the core. A stall never
// releases.
func (m *Model) stalled() bool {
	for _, f := range m.faults {
		if f.fired && f.Kind == FaultStall {
			return true
		}
	}

	f := m.arm(FaultStall)
	if f == nil {
		return false
	}
	m.fire(f)
	return true
}

func (m *Model) corruptBank() {
	if !m.ctrl.InstrCommit(0).Valid {
		return
	}

	f := m.arm(FaultRegister)
	if f == nil {
		return
	}
	m.ctrl.ArchRegState().GPR[f.Reg%state.NumArchRegs] ^= 1
	m.fire(f)
}

func (m *Model) injectWriteback(cm *state.InstrCommit) {
	if !cm.RFWen && !cm.FPWen {
		return
	}

	f := m.arm(FaultWriteback)
	if f == nil {
		return
	}

	phys := m.ctrl.PhysRegState()
	if cm.FPWen {
		phys.FPR[cm.WPDest] ^= 1
	} else {
		phys.GPR[cm.WPDest] ^= 1
	}
	m.fire(f)
}

func (m *Model) injectStore(st *state.StoreEvent) {
	if f := m.arm(FaultStore); f != nil {
		st.Data ^= 1
		m.fire(f)
	}
}

func (m *Model) injectRefill(id state.CacheID) {
	if f := m.arm(FaultRefill); f != nil {
		m.ctrl.RefillEvent(id).Data[0] ^= 1
		m.fire(f)
	}
}
