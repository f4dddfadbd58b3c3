package state

// TrapEvent is the terminal signal of a run. It is raised either by the DUT
// (good/bad trap instruction) or by the engine on a fatal failure.
type TrapEvent struct {
	Valid    bool
	Code     uint8
	PC       uint64
	CycleCnt uint64
	InstrCnt uint64
	HasWFI   bool
}

// ArchEvent is an interrupt or exception whose priority is higher than the
// ordinary commits of the same tick. A valid event with a non-zero
// Interrupt is an interrupt; otherwise it is an exception with cause
// Exception.
type ArchEvent struct {
	Valid         bool
	Interrupt     uint32
	Exception     uint32
	ExceptionPC   uint64
	ExceptionInst uint32
}

// IsInterrupt reports whether the event is an interrupt.
func (e *ArchEvent) IsInterrupt() bool {
	return e.Valid && e.Interrupt != 0
}

// IsException reports whether the event is an exception.
func (e *ArchEvent) IsException() bool {
	return e.Valid && e.Interrupt == 0
}

// InstrCommit is one commit slot. Slot order inside a tick is program order.
type InstrCommit struct {
	Valid  bool
	PC     uint64
	Inst   uint32
	Skip   bool
	IsRVC  bool
	Fused  bool
	RFWen  bool
	FPWen  bool
	WPDest uint32
	WDest  uint8
}

// Wen reports whether the slot writes a register.
func (c *InstrCommit) Wen() bool {
	return c.RFWen || c.FPWen
}

// SbufferLineSize is the size in bytes of a drained store-buffer line.
const SbufferLineSize = 64

// SbufferState is a store-buffer drain response. Bit i of Mask covers
// Data[i].
type SbufferState struct {
	Resp bool
	Addr uint64
	Data [SbufferLineSize]byte
	Mask uint64
}

// StoreEvent is one committed store.
type StoreEvent struct {
	Valid bool
	Addr  uint64
	Data  uint64
	Mask  uint8
}

// Functional-unit types reported by a LoadEvent.
const (
	FuTypeLoad uint8 = 0xC
	FuTypeMou  uint8 = 0xF
)

// LoadEvent is one committed load, indexed like the commit slot it belongs
// to.
type LoadEvent struct {
	Valid  bool
	PAddr  uint64
	FuType uint8
	OpType uint8
}

// AtomicEvent is an atomic memory operation response. Out is the value the
// operation returned to the core.
type AtomicEvent struct {
	Resp bool
	Addr uint64
	Data uint64
	Mask uint8
	Fuop uint8
	Out  uint64
}

// PTWWords is the number of page-table entries carried by a PTWEvent.
const PTWWords = 4

// PTWEvent is a page-table-walk response.
type PTWEvent struct {
	Resp bool
	Addr uint64
	Data [PTWWords]uint64
}

// RefillWords is the number of 64-bit words in a refilled cache line.
const RefillWords = 8

// RefillLineSize is the size in bytes of a refilled cache line.
const RefillLineSize = RefillWords * 8

// CacheID selects the instruction or data cache refill record.
type CacheID int

// Cache identifiers.
const (
	ICache CacheID = iota
	DCache
)

func (id CacheID) String() string {
	if id == DCache {
		return "DCache"
	}
	return "ICache"
}

// RefillEvent is a cache line refill.
type RefillEvent struct {
	Valid bool
	Addr  uint64
	Data  [RefillWords]uint64
}

// LRSCEvent is the outcome of a store-conditional.
type LRSCEvent struct {
	Valid   bool
	Success bool
}
