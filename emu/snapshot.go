package emu

import "errors"

// ErrUnknownSnapshot is returned when restoring a snapshot that was released
// or discarded.
var ErrUnknownSnapshot = errors.New("unknown snapshot")

// Snapshot is a restorable copy of the architectural state of an emulator.
// Memory is restored by rolling back the writes journaled since the
// snapshot was taken.
type Snapshot struct {
	regs     RegFile
	csr      *CSRFile
	resValid bool
	resAddr  uint64

	instructionCount uint64
	halted           bool
	exitCode         int64

	mark int
}

// Snapshot captures the current state. Memory writes are journaled until
// the snapshot is released.
func (e *Emulator) Snapshot() *Snapshot {
	s := &Snapshot{
		regs:             *e.regFile,
		csr:              e.csr.clone(),
		resValid:         e.lsu.resValid,
		resAddr:          e.lsu.resAddr,
		instructionCount: e.instructionCount,
		halted:           e.halted,
		exitCode:         e.exitCode,
		mark:             e.memory.beginJournal(),
	}
	e.snapshots = append(e.snapshots, s)
	return s
}

// Restore returns the emulator to the state captured by s. Snapshots taken
// after s are discarded; s itself stays valid.
func (e *Emulator) Restore(s *Snapshot) error {
	idx := e.snapshotIndex(s)
	if idx < 0 {
		return ErrUnknownSnapshot
	}

	for range e.snapshots[idx+1:] {
		e.memory.endJournal()
	}
	e.snapshots = e.snapshots[:idx+1]

	e.memory.rollback(s.mark)

	*e.regFile = s.regs
	e.csr = s.csr.clone()
	e.lsu.resValid = s.resValid
	e.lsu.resAddr = s.resAddr
	e.instructionCount = s.instructionCount
	e.halted = s.halted
	e.exitCode = s.exitCode

	return nil
}

// Release drops s. Its state can no longer be restored.
func (e *Emulator) Release(s *Snapshot) {
	idx := e.snapshotIndex(s)
	if idx < 0 {
		return
	}

	e.snapshots = append(e.snapshots[:idx], e.snapshots[idx+1:]...)
	e.memory.endJournal()
}

// OutstandingSnapshots returns the number of snapshots not yet released.
func (e *Emulator) OutstandingSnapshots() int {
	return len(e.snapshots)
}

func (e *Emulator) snapshotIndex(s *Snapshot) int {
	for i, o := range e.snapshots {
		if o == s {
			return i
		}
	}
	return -1
}
