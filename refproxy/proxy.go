// Package refproxy defines the capability the differential-testing engine
// consumes from a reference simulator, and an implementation backed by the
// functional emulator.
package refproxy

// Direction is the direction of a bulk copy.
type Direction int

// Copy directions.
const (
	DUTToREF Direction = iota
	REFToDUT
)

func (d Direction) String() string {
	if d == REFToDUT {
		return "REF->DUT"
	}
	return "DUT->REF"
}

// StoreCommit is one store committed by the reference, in the form the
// DUT reports stores: the 8-byte aligned address, the data shifted to its
// byte lane and the byte mask.
type StoreCommit struct {
	Addr uint64
	Data uint64
	Mask uint8
}

// Proxy is the reference simulator as seen by the engine.
//
// The register bank (integer registers, floating-point registers, CSR bank
// and, when present, the debug-mode bank) is exchanged as one contiguous
// sequence of 64-bit words in the order given by state.Layout. Both sides
// must agree on LayoutVersion.
type Proxy interface {
	// LayoutVersion returns the register-bank layout the proxy exchanges.
	LayoutVersion() int

	// RegCopy exchanges the register bank. With DUTToREF the reference is
	// overwritten with words; with REFToDUT words is filled from the
	// reference.
	RegCopy(words []uint64, dir Direction) error

	// MemCopy exchanges bytes between buf and reference memory at addr.
	MemCopy(addr uint64, buf []byte, dir Direction) error

	// Exec executes n instructions.
	Exec(n uint64) error

	// GuidedExec takes exception cause with trap value tval at the current
	// PC, for exceptions the reference cannot raise by itself.
	GuidedExec(cause, tval uint64) error

	// RaiseIntr takes the interrupt no. The interrupt bit may be set.
	RaiseIntr(no uint64)

	// StoreCommit removes and returns the oldest store committed by the
	// reference.
	StoreCommit() (StoreCommit, bool)

	// Reservation reports whether the reference holds a valid LR
	// reservation.
	Reservation() bool

	// SetReservation overrides the validity of the reference's LR
	// reservation.
	SetReservation(valid bool)

	// DebugMemSync writes bytes produced by an external debug agent into
	// reference memory.
	DebugMemSync(addr uint64, data []byte) error

	// PC returns the address of the next instruction the reference will
	// execute.
	PC() uint64
}

// SnapshotID identifies a speculator snapshot.
type SnapshotID uint64

// MemAccess is the memory access of the last instruction executed by a
// speculator.
type MemAccess struct {
	Valid   bool
	Addr    uint64
	IsStore bool
}

// Speculator is a Proxy that can checkpoint and roll back its state. It
// backs the run-ahead validator.
type Speculator interface {
	Proxy

	// Snapshot checkpoints the current state.
	Snapshot() SnapshotID

	// Restore returns to a checkpoint. Checkpoints taken after id are
	// discarded.
	Restore(id SnapshotID) error

	// Release drops a checkpoint.
	Release(id SnapshotID)

	// LastMemAccess returns the memory access of the last executed
	// instruction.
	LastMemAccess() MemAccess
}
