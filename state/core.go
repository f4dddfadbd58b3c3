// Package state defines the per-tick architectural snapshot compared by the
// differential-testing engine.
//
// One CoreState type serves both roles: the DUT copy is populated by the
// harness through the engine's collectors, the REF copy is filled by the
// engine from the reference proxy. Every event record carries an explicit
// validity flag; records whose flag is clear are never consumed.
package state

import "github.com/sarchlab/difftest/config"

// CoreState is one synchronization tick's worth of architectural state and
// side-effect events.
type CoreState struct {
	Trap  TrapEvent
	Event ArchEvent

	// Commit holds the commit slots in program order.
	Commit []InstrCommit

	Regs ArchRegState
	CSR  CSRState

	// DebugMode is nil unless debug-mode differential checking is enabled.
	DebugMode *DebugModeState

	Sbuffer []SbufferState
	Store   []StoreEvent
	Load    []LoadEvent
	Atomic  AtomicEvent
	PTW     PTWEvent
	DRefill RefillEvent
	IRefill RefillEvent
	LRSC    LRSCEvent

	Runahead         []RunaheadEvent
	RunaheadCommit   []RunaheadCommitEvent
	RunaheadRedirect RunaheadRedirectEvent
	RunaheadMemdep   []RunaheadMemdepPred

	PhysRegs PhysRegState
}

// NewCoreState allocates a CoreState whose per-tick arrays have the widths
// given by cfg.
func NewCoreState(cfg *config.Config) *CoreState {
	s := &CoreState{
		Commit:         make([]InstrCommit, cfg.CommitWidth),
		Sbuffer:        make([]SbufferState, cfg.SbufferRespWidth),
		Store:          make([]StoreEvent, cfg.StoreWidth),
		Load:           make([]LoadEvent, cfg.CommitWidth),
		Runahead:       make([]RunaheadEvent, cfg.RunaheadWidth),
		RunaheadCommit: make([]RunaheadCommitEvent, cfg.RunaheadWidth),
		RunaheadMemdep: make([]RunaheadMemdepPred, cfg.RunaheadWidth),
		PhysRegs:       NewPhysRegState(cfg.PhysRegSize),
	}
	if cfg.DebugModeDiff {
		s.DebugMode = &DebugModeState{}
	}
	return s
}

// Layout returns the bank layout matching the presence of the debug-mode
// bank.
func (s *CoreState) Layout() Layout {
	return Layout{DebugMode: s.DebugMode != nil}
}

// Refill returns the refill record of the given cache.
func (s *CoreState) Refill(id CacheID) *RefillEvent {
	if id == DCache {
		return &s.DRefill
	}
	return &s.IRefill
}

// CommitData returns the write-back value of commit slot i: the physical
// floating-point register at the slot's physical destination when the slot
// writes a floating-point register, the physical integer register
// otherwise.
func (s *CoreState) CommitData(i int) uint64 {
	c := &s.Commit[i]
	if c.FPWen {
		return s.PhysRegs.FPR[c.WPDest]
	}
	return s.PhysRegs.GPR[c.WPDest]
}

// NumValidCommits returns the number of leading valid commit slots.
func (s *CoreState) NumValidCommits() int {
	n := 0
	for n < len(s.Commit) && s.Commit[n].Valid {
		n++
	}
	return n
}

// ClearStep invalidates every per-tick event record. The trap record and
// the register banks are left untouched.
func (s *CoreState) ClearStep() {
	s.Event.Valid = false
	for i := range s.Commit {
		s.Commit[i].Valid = false
	}
	for i := range s.Sbuffer {
		s.Sbuffer[i].Resp = false
	}
	for i := range s.Store {
		s.Store[i].Valid = false
	}
	for i := range s.Load {
		s.Load[i].Valid = false
	}
	s.Atomic.Resp = false
	s.PTW.Resp = false
	s.DRefill.Valid = false
	s.IRefill.Valid = false
	s.LRSC.Valid = false
	for i := range s.Runahead {
		s.Runahead[i].Valid = false
	}
	for i := range s.RunaheadCommit {
		s.RunaheadCommit[i].Valid = false
	}
	s.RunaheadRedirect.Valid = false
	for i := range s.RunaheadMemdep {
		s.RunaheadMemdep[i].Valid = false
	}
}
