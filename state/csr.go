package state

import "fmt"

// NumDLBounds is the number of DASICS library bound registers.
const NumDLBounds = 32

// CSRState is the control/status register bank. Field order is the wire
// order of the bank (see Layout) and must not be changed without bumping
// LayoutVersion.
type CSRState struct {
	ThisPC        uint64
	MStatus       uint64
	MCause        uint64
	MEPC          uint64
	SStatus       uint64
	SCause        uint64
	SEPC          uint64
	SATP          uint64
	MIP           uint64
	MIE           uint64
	MScratch      uint64
	SScratch      uint64
	MIDeleg       uint64
	MEDeleg       uint64
	MTVal         uint64
	STVal         uint64
	MTVec         uint64
	STVec         uint64
	PrivilegeMode uint64

	// User-level interrupt (N) extension.
	UStatus  uint64
	UCause   uint64
	UEPC     uint64
	UScratch uint64
	UTVal    uint64
	UTVec    uint64
	SEDeleg  uint64
	SIDeleg  uint64

	// DASICS isolation extension.
	DSMCfg    uint64
	DSMBound0 uint64
	DSMBound1 uint64
	DUMCfg    uint64
	DUMBound0 uint64
	DUMBound1 uint64
	DLCfg0    uint64
	DLCfg1    uint64
	DLBound   [NumDLBounds]uint64
	DMainCall uint64
	DRetPC    uint64
	DRetPCFZ  uint64
}

func (c *CSRState) words() []*uint64 {
	w := []*uint64{
		&c.ThisPC, &c.MStatus, &c.MCause, &c.MEPC,
		&c.SStatus, &c.SCause, &c.SEPC, &c.SATP,
		&c.MIP, &c.MIE, &c.MScratch, &c.SScratch,
		&c.MIDeleg, &c.MEDeleg, &c.MTVal, &c.STVal,
		&c.MTVec, &c.STVec, &c.PrivilegeMode,
		&c.UStatus, &c.UCause, &c.UEPC, &c.UScratch,
		&c.UTVal, &c.UTVec, &c.SEDeleg, &c.SIDeleg,
		&c.DSMCfg, &c.DSMBound0, &c.DSMBound1,
		&c.DUMCfg, &c.DUMBound0, &c.DUMBound1,
		&c.DLCfg0, &c.DLCfg1,
	}
	for i := range c.DLBound {
		w = append(w, &c.DLBound[i])
	}
	return append(w, &c.DMainCall, &c.DRetPC, &c.DRetPCFZ)
}

var csrNames = func() []string {
	names := []string{
		"this_pc", "mstatus", "mcause", "mepc",
		"sstatus", "scause", "sepc", "satp",
		"mip", "mie", "mscratch", "sscratch",
		"mideleg", "medeleg", "mtval", "stval",
		"mtvec", "stvec", "mode",
		"ustatus", "ucause", "uepc", "uscratch",
		"utval", "utvec", "sedeleg", "sideleg",
		"dsmcfg", "dsmbound0", "dsmbound1",
		"dumcfg", "dumbound0", "dumbound1",
		"dlcfg0", "dlcfg1",
	}
	for i := 0; i < NumDLBounds; i++ {
		names = append(names, fmt.Sprintf("dlbound%d", i))
	}
	return append(names, "dmaincall", "dretpc", "dretpcfz")
}()

// NumCSRWords is the number of 64-bit words in a CSRState.
var NumCSRWords = len(csrNames)
