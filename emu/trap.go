package emu

import "fmt"

// Exception causes.
const (
	CauseFetchMisaligned  uint64 = 0
	CauseFetchAccessFault uint64 = 1
	CauseIllegalInst      uint64 = 2
	CauseBreakpoint       uint64 = 3
	CauseLoadMisaligned   uint64 = 4
	CauseLoadAccessFault  uint64 = 5
	CauseStoreMisaligned  uint64 = 6
	CauseStoreAccessFault uint64 = 7
	CauseEcallU           uint64 = 8
	CauseEcallS           uint64 = 9
	CauseEcallM           uint64 = 11
	CauseFetchPageFault   uint64 = 12
	CauseLoadPageFault    uint64 = 13
	CauseStorePageFault   uint64 = 15
)

// InterruptBit marks an interrupt in mcause/scause.
const InterruptBit uint64 = 1 << 63

// Exception is a synchronous exception raised by an instruction.
type Exception struct {
	Cause uint64
	TVal  uint64
}

func (e *Exception) Error() string {
	return fmt.Sprintf("exception cause %d tval 0x%x", e.Cause, e.TVal)
}

// takeTrap transfers control to the trap handler selected by the
// delegation registers. cause excludes the interrupt bit.
func (e *Emulator) takeTrap(cause, tval uint64, interrupt bool) {
	c := e.csr
	pc := e.regFile.PC

	deleg := c.Read(CSRMEDeleg)
	xcause := cause
	if interrupt {
		deleg = c.Read(CSRMIDeleg)
		xcause |= InterruptBit
	}

	status := c.Read(CSRMStatus)

	if c.Priv <= PrivS && cause < 64 && (deleg>>cause)&1 == 1 {
		c.Write(CSRSCause, xcause)
		c.Write(CSRSEPC, pc)
		c.Write(CSRSTVal, tval)

		status = setBit(status, mstatusSPIE, status&mstatusSIE != 0)
		status &^= mstatusSIE
		status = setBit(status, mstatusSPP, c.Priv == PrivS)
		c.Write(CSRMStatus, status)

		c.Priv = PrivS
		e.regFile.PC = trapVector(c.Read(CSRSTVec), cause, interrupt)
		return
	}

	c.Write(CSRMCause, xcause)
	c.Write(CSRMEPC, pc)
	c.Write(CSRMTVal, tval)

	status = setBit(status, mstatusMPIE, status&mstatusMIE != 0)
	status &^= mstatusMIE
	status = status&^mstatusMPP | uint64(c.Priv)<<mstatusMPPShift
	c.Write(CSRMStatus, status)

	c.Priv = PrivM
	e.regFile.PC = trapVector(c.Read(CSRMTVec), cause, interrupt)
}

// mret returns from a machine-mode trap.
func (e *Emulator) mret() {
	c := e.csr
	status := c.Read(CSRMStatus)

	prev := Privilege((status & mstatusMPP) >> mstatusMPPShift)
	status = setBit(status, mstatusMIE, status&mstatusMPIE != 0)
	status |= mstatusMPIE
	status &^= mstatusMPP
	if prev != PrivM {
		status &^= mstatusMPRV
	}
	c.Write(CSRMStatus, status)

	c.Priv = prev
	e.regFile.PC = c.Read(CSRMEPC)
}

// sret returns from a supervisor-mode trap.
func (e *Emulator) sret() {
	c := e.csr
	status := c.Read(CSRMStatus)

	prev := PrivU
	if status&mstatusSPP != 0 {
		prev = PrivS
	}
	status = setBit(status, mstatusSIE, status&mstatusSPIE != 0)
	status |= mstatusSPIE
	status &^= mstatusSPP
	status &^= mstatusMPRV
	c.Write(CSRMStatus, status)

	c.Priv = prev
	e.regFile.PC = c.Read(CSRSEPC)
}

func trapVector(tvec, cause uint64, interrupt bool) uint64 {
	base := tvec &^ 0x3
	if interrupt && tvec&0x3 == 1 {
		return base + 4*cause
	}
	return base
}

func setBit(v, mask uint64, set bool) uint64 {
	if set {
		return v | mask
	}
	return v &^ mask
}
