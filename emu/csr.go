package emu

import "maps"

// Privilege is a RISC-V privilege level.
type Privilege uint64

// Privilege levels.
const (
	PrivU Privilege = 0
	PrivS Privilege = 1
	PrivM Privilege = 3
)

// CSR addresses modeled by the emulator.
const (
	CSRUStatus  uint16 = 0x000
	CSRUTVec    uint16 = 0x005
	CSRUScratch uint16 = 0x040
	CSRUEPC     uint16 = 0x041
	CSRUCause   uint16 = 0x042
	CSRUTVal    uint16 = 0x043

	CSRSStatus  uint16 = 0x100
	CSRSEDeleg  uint16 = 0x102
	CSRSIDeleg  uint16 = 0x103
	CSRSIE      uint16 = 0x104
	CSRSTVec    uint16 = 0x105
	CSRSScratch uint16 = 0x140
	CSRSEPC     uint16 = 0x141
	CSRSCause   uint16 = 0x142
	CSRSTVal    uint16 = 0x143
	CSRSIP      uint16 = 0x144
	CSRSATP     uint16 = 0x180

	CSRMStatus  uint16 = 0x300
	CSRMISA     uint16 = 0x301
	CSRMEDeleg  uint16 = 0x302
	CSRMIDeleg  uint16 = 0x303
	CSRMIE      uint16 = 0x304
	CSRMTVec    uint16 = 0x305
	CSRMScratch uint16 = 0x340
	CSRMEPC     uint16 = 0x341
	CSRMCause   uint16 = 0x342
	CSRMTVal    uint16 = 0x343
	CSRMIP      uint16 = 0x344

	CSRDCSR      uint16 = 0x7b0
	CSRDPC       uint16 = 0x7b1
	CSRDScratch0 uint16 = 0x7b2
	CSRDScratch1 uint16 = 0x7b3

	CSRMCycle   uint16 = 0xb00
	CSRMInstret uint16 = 0xb02
	CSRCycle    uint16 = 0xc00
	CSRTime     uint16 = 0xc01
	CSRInstret  uint16 = 0xc02
	CSRMHartID  uint16 = 0xf14
)

// mstatus fields.
const (
	mstatusSIE  uint64 = 1 << 1
	mstatusMIE  uint64 = 1 << 3
	mstatusSPIE uint64 = 1 << 5
	mstatusMPIE uint64 = 1 << 7
	mstatusSPP  uint64 = 1 << 8
	mstatusMPP  uint64 = 3 << 11
	mstatusMPRV uint64 = 1 << 17

	mstatusMPPShift = 11

	// sstatusMask selects the mstatus bits visible through sstatus.
	sstatusMask uint64 = 0x80000003000de122
)

// misaRV64IMAFDSU is the misa value reported by the emulator.
const misaRV64IMAFDSU uint64 = 2<<62 | 1<<0 | 1<<3 | 1<<5 | 1<<8 | 1<<12 | 1<<18 | 1<<20

// CSRFile holds the control and status registers and the current privilege
// level.
type CSRFile struct {
	Priv Privilege

	hartID  uint64
	regs    map[uint16]uint64
	instret *uint64
}

// NewCSRFile creates a CSR file in machine mode. instret is read by the
// cycle and instret counters.
func NewCSRFile(hartID uint64, instret *uint64) *CSRFile {
	return &CSRFile{
		Priv:    PrivM,
		hartID:  hartID,
		regs:    make(map[uint16]uint64),
		instret: instret,
	}
}

// Read returns the value of a CSR. Unmodeled addresses read as the last
// value written.
func (c *CSRFile) Read(addr uint16) uint64 {
	switch addr {
	case CSRSStatus:
		return c.regs[CSRMStatus] & sstatusMask
	case CSRSIE:
		return c.regs[CSRMIE] & c.regs[CSRMIDeleg]
	case CSRSIP:
		return c.regs[CSRMIP] & c.regs[CSRMIDeleg]
	case CSRMISA:
		return misaRV64IMAFDSU
	case CSRMHartID:
		return c.hartID
	case CSRMCycle, CSRMInstret, CSRCycle, CSRTime, CSRInstret:
		return *c.instret
	}
	return c.regs[addr]
}

// Write sets the value of a CSR. Read-only counters and identification
// registers ignore writes.
func (c *CSRFile) Write(addr uint16, value uint64) {
	switch addr {
	case CSRSStatus:
		c.regs[CSRMStatus] = c.regs[CSRMStatus]&^sstatusMask | value&sstatusMask
	case CSRSIE:
		mask := c.regs[CSRMIDeleg]
		c.regs[CSRMIE] = c.regs[CSRMIE]&^mask | value&mask
	case CSRSIP:
		mask := c.regs[CSRMIDeleg]
		c.regs[CSRMIP] = c.regs[CSRMIP]&^mask | value&mask
	case CSRMISA, CSRMHartID, CSRMCycle, CSRMInstret, CSRCycle, CSRTime, CSRInstret:
	default:
		c.regs[addr] = value
	}
}

// Accessible reports whether the CSR at addr can be accessed at the current
// privilege level, and written when write is set.
func (c *CSRFile) Accessible(addr uint16, write bool) bool {
	minPriv := Privilege((addr >> 8) & 0x3)
	if c.Priv < minPriv {
		return false
	}
	readOnly := (addr>>10)&0x3 == 0x3
	return !(write && readOnly)
}

func (c *CSRFile) clone() *CSRFile {
	cp := *c
	cp.regs = maps.Clone(c.regs)
	return &cp
}
