package state

// NumArchRegs is the number of architectural registers per register class.
const NumArchRegs = 32

// ArchRegState is the architectural integer and floating-point register
// file.
type ArchRegState struct {
	GPR [NumArchRegs]uint64
	FPR [NumArchRegs]uint64
}

// PhysRegState is the physical register file, indexed by the physical
// destination of a commit slot.
type PhysRegState struct {
	GPR []uint64
	FPR []uint64
}

// NewPhysRegState allocates a physical register file with size entries per
// class.
func NewPhysRegState(size int) PhysRegState {
	return PhysRegState{
		GPR: make([]uint64, size),
		FPR: make([]uint64, size),
	}
}

// DebugModeState is the debug-mode register bank. It is present only when
// debug-mode differential checking is enabled.
type DebugModeState struct {
	DebugMode uint64
	DCSR      uint64
	DPC       uint64
	DScratch0 uint64
	DScratch1 uint64
}

func (d *DebugModeState) words() []*uint64 {
	return []*uint64{&d.DebugMode, &d.DCSR, &d.DPC, &d.DScratch0, &d.DScratch1}
}

var debugModeNames = []string{"debugMode", "dcsr", "dpc", "dscratch0", "dscratch1"}

var gprNames = [NumArchRegs]string{
	"$0", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var fprNames = [NumArchRegs]string{
	"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7",
	"fs0", "fs1", "fa0", "fa1", "fa2", "fa3", "fa4", "fa5",
	"fa6", "fa7", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7",
	"fs8", "fs9", "fs10", "fs11", "ft8", "ft9", "ft10", "ft11",
}

// GPRName returns the ABI name of integer register i.
func GPRName(i int) string {
	return gprNames[i]
}

// FPRName returns the ABI name of floating-point register i.
func FPRName(i int) string {
	return fprNames[i]
}
