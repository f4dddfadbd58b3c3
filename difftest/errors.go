package difftest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sarchlab/difftest/state"
)

// Trap codes reported in the trap record. TrapGood and TrapBad come from
// the DUT; the others are raised by the engine.
const (
	TrapGood          uint8 = 0
	TrapBad           uint8 = 1
	TrapAbort         uint8 = 2
	TrapLimitExceeded uint8 = 3
	TrapSideChannel   uint8 = 4
	TrapHang          uint8 = 5
)

// Running is the aggregate state of a registry none of whose cores has
// trapped.
const Running = -1

// Sentinel errors matched by errors.Is against the failures returned by
// Step.
var (
	ErrStateMismatch = errors.New("state mismatch")
	ErrSideChannel   = errors.New("side-channel check failure")
	ErrHang          = errors.New("hang")
)

// MismatchKind classifies a MismatchError.
type MismatchKind int

// Mismatch kinds.
const (
	StateMismatch MismatchKind = iota
	SideChannelCheckFailure
)

func (k MismatchKind) String() string {
	if k == SideChannelCheckFailure {
		return "side-channel check failure"
	}
	return "state mismatch"
}

// MismatchError is a divergence between the DUT and the reference.
type MismatchError struct {
	Kind MismatchKind

	// Channel names the check that failed: "commit", "regs", "store",
	// "sbuffer", "atomic", "ptw", "icache-refill", "dcache-refill", "lrsc"
	// or "runahead".
	Channel string

	Core  int
	PC    uint64
	Inst  uint32
	Diffs []state.FieldDiff
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "core %d: %v in %s at pc 0x%x inst 0x%08x",
		e.Core, e.Kind, e.Channel, e.PC, e.Inst)
	for _, d := range e.Diffs {
		fmt.Fprintf(&b, "; %s different: DUT 0x%016x REF 0x%016x", d.Name, d.DUT, d.REF)
	}
	return b.String()
}

// Is matches ErrStateMismatch or ErrSideChannel according to Kind.
func (e *MismatchError) Is(target error) bool {
	switch target {
	case ErrStateMismatch:
		return e.Kind == StateMismatch
	case ErrSideChannel:
		return e.Kind == SideChannelCheckFailure
	}
	return false
}

// TrapCode returns the trap code the failure is reported with.
func (e *MismatchError) TrapCode() uint8 {
	if e.Kind == SideChannelCheckFailure {
		return TrapSideChannel
	}
	return TrapAbort
}

// HangError reports a core that stopped committing.
type HangError struct {
	Core int

	// FirstCommit is set when the core never committed.
	FirstCommit bool

	Ticks      uint64
	LastCommit uint64
	Limit      uint64
}

func (e *HangError) Error() string {
	if e.FirstCommit {
		return fmt.Sprintf("core %d: no instruction committed in %d ticks after reset",
			e.Core, e.Limit)
	}
	return fmt.Sprintf("core %d: no instruction committed in %d ticks since tick %d",
		e.Core, e.Limit, e.LastCommit)
}

// Is matches ErrHang.
func (e *HangError) Is(target error) bool {
	return target == ErrHang
}

func sideChannel(channel string, diffs ...state.FieldDiff) *MismatchError {
	return &MismatchError{Kind: SideChannelCheckFailure, Channel: channel, Diffs: diffs}
}

func fieldDiff(name string, dut, ref uint64) state.FieldDiff {
	return state.FieldDiff{Index: -1, Name: name, DUT: dut, REF: ref}
}
