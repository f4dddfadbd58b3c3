package refproxy

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/difftest/emu"
	"github.com/sarchlab/difftest/state"
)

// csrAddrs maps register-bank field names to emulator CSR addresses.
var csrAddrs = func() map[string]uint16 {
	m := map[string]uint16{
		"mstatus":  emu.CSRMStatus,
		"mcause":   emu.CSRMCause,
		"mepc":     emu.CSRMEPC,
		"sstatus":  emu.CSRSStatus,
		"scause":   emu.CSRSCause,
		"sepc":     emu.CSRSEPC,
		"satp":     emu.CSRSATP,
		"mip":      emu.CSRMIP,
		"mie":      emu.CSRMIE,
		"mscratch": emu.CSRMScratch,
		"sscratch": emu.CSRSScratch,
		"mideleg":  emu.CSRMIDeleg,
		"medeleg":  emu.CSRMEDeleg,
		"mtval":    emu.CSRMTVal,
		"stval":    emu.CSRSTVal,
		"mtvec":    emu.CSRMTVec,
		"stvec":    emu.CSRSTVec,

		"ustatus":  emu.CSRUStatus,
		"ucause":   emu.CSRUCause,
		"uepc":     emu.CSRUEPC,
		"uscratch": emu.CSRUScratch,
		"utval":    emu.CSRUTVal,
		"utvec":    emu.CSRUTVec,
		"sedeleg":  emu.CSRSEDeleg,
		"sideleg":  emu.CSRSIDeleg,

		"dsmcfg":    0xbc0,
		"dsmbound0": 0xbc2,
		"dsmbound1": 0xbc3,
		"dumcfg":    0x9e0,
		"dumbound0": 0x9e2,
		"dumbound1": 0x9e3,
		"dlcfg0":    0x881,
		"dlcfg1":    0x882,
		"dmaincall": 0x8a3,
		"dretpc":    0x8a4,
		"dretpcfz":  0x8a5,

		"dcsr":      emu.CSRDCSR,
		"dpc":       emu.CSRDPC,
		"dscratch0": emu.CSRDScratch0,
		"dscratch1": emu.CSRDScratch1,
	}
	for i := 0; i < state.NumDLBounds; i++ {
		m[fmt.Sprintf("dlbound%d", i)] = uint16(0x883 + i)
	}
	return m
}()

// derivedCSRs are views of other CSRs; they are read back but never written
// on a DUT-to-REF copy.
var derivedCSRs = map[string]bool{"sstatus": true}

// EmuProxy is a Proxy backed by an emu.Emulator. It also implements
// Speculator.
type EmuProxy struct {
	emu    *emu.Emulator
	layout state.Layout
	logger logr.Logger

	debugMode uint64
	last      MemAccess

	nextSnapshot SnapshotID
	snapshots    map[SnapshotID]*emu.Snapshot
}

// Option configures an EmuProxy.
type Option func(*EmuProxy)

// WithLogger sets the logger of the proxy.
func WithLogger(l logr.Logger) Option {
	return func(p *EmuProxy) {
		p.logger = l
	}
}

// WithStoreCommit makes the emulator record committed stores for
// StoreCommit.
func WithStoreCommit() Option {
	return func(p *EmuProxy) {
		p.emu.LSU().EnableStoreQueue(true)
	}
}

// NewEmuProxy wraps e. layout selects whether the debug-mode bank is part
// of the exchanged register bank.
func NewEmuProxy(e *emu.Emulator, layout state.Layout, opts ...Option) *EmuProxy {
	p := &EmuProxy{
		emu:       e,
		layout:    layout,
		logger:    logr.Discard(),
		snapshots: make(map[SnapshotID]*emu.Snapshot),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Emulator returns the wrapped emulator.
func (p *EmuProxy) Emulator() *emu.Emulator {
	return p.emu
}

// LayoutVersion returns state.LayoutVersion.
func (p *EmuProxy) LayoutVersion() int {
	return state.LayoutVersion
}

// RegCopy exchanges the register bank with the emulator.
func (p *EmuProxy) RegCopy(words []uint64, dir Direction) error {
	if len(words) != p.layout.Size() {
		return fmt.Errorf("%v register copy: expected %d words, got %d",
			dir, p.layout.Size(), len(words))
	}

	regs := p.emu.RegFile()
	csr := p.emu.CSR()

	if dir == REFToDUT {
		copy(words[:state.NumArchRegs], regs.X[:])
		copy(words[state.NumArchRegs:2*state.NumArchRegs], regs.F[:])
	} else {
		copy(regs.X[1:], words[1:state.NumArchRegs])
		copy(regs.F[:], words[state.NumArchRegs:2*state.NumArchRegs])
	}

	for i := p.layout.CSROffset(); i < len(words); i++ {
		name := p.layout.FieldName(i)
		if dir == REFToDUT {
			words[i] = p.readField(name, regs, csr)
		} else {
			p.writeField(name, words[i], regs, csr)
		}
	}

	return nil
}

func (p *EmuProxy) readField(name string, regs *emu.RegFile, csr *emu.CSRFile) uint64 {
	switch name {
	case "this_pc":
		return regs.PC
	case "mode":
		return uint64(csr.Priv)
	case "debugMode":
		return p.debugMode
	}
	return csr.Read(csrAddrs[name])
}

func (p *EmuProxy) writeField(name string, v uint64, regs *emu.RegFile, csr *emu.CSRFile) {
	switch {
	case name == "this_pc":
		regs.PC = v
	case name == "mode":
		csr.Priv = emu.Privilege(v)
	case name == "debugMode":
		p.debugMode = v
	case derivedCSRs[name]:
	default:
		csr.Write(csrAddrs[name], v)
	}
}

// MemCopy exchanges bytes with emulator memory.
func (p *EmuProxy) MemCopy(addr uint64, buf []byte, dir Direction) error {
	if dir == DUTToREF {
		return p.emu.Memory().Write(addr, buf)
	}

	data, err := p.emu.Memory().Read(addr, uint64(len(buf)))
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

// Exec executes n instructions.
func (p *EmuProxy) Exec(n uint64) error {
	for i := uint64(0); i < n; i++ {
		result := p.emu.Step()
		if result.Err != nil {
			return fmt.Errorf("reference exec at 0x%x: %w", result.PC, result.Err)
		}

		p.last = MemAccess{}
		switch result.Mem.Kind {
		case emu.MemLoad, emu.MemLR:
			p.last = MemAccess{Valid: true, Addr: result.Mem.Addr}
		case emu.MemStore, emu.MemSC, emu.MemAMO:
			p.last = MemAccess{Valid: true, Addr: result.Mem.Addr, IsStore: true}
		}
	}
	return nil
}

// GuidedExec forces exception cause with trap value tval.
func (p *EmuProxy) GuidedExec(cause, tval uint64) error {
	p.emu.ForceException(cause, tval)
	p.last = MemAccess{}
	return nil
}

// RaiseIntr takes interrupt no.
func (p *EmuProxy) RaiseIntr(no uint64) {
	p.emu.RaiseInterrupt(no &^ emu.InterruptBit)
}

// StoreCommit pops the oldest store recorded by the emulator.
func (p *EmuProxy) StoreCommit() (StoreCommit, bool) {
	rec, ok := p.emu.LSU().PopStore()
	if !ok {
		return StoreCommit{}, false
	}
	return StoreCommit{Addr: rec.Addr, Data: rec.Data, Mask: rec.Mask}, true
}

// Reservation reports whether the emulator holds a valid LR reservation.
func (p *EmuProxy) Reservation() bool {
	_, valid := p.emu.LSU().Reservation()
	return valid
}

// SetReservation overrides the validity of the LR reservation.
func (p *EmuProxy) SetReservation(valid bool) {
	p.emu.LSU().SetReservationValid(valid)
}

// DebugMemSync writes debug-agent bytes into emulator memory.
func (p *EmuProxy) DebugMemSync(addr uint64, data []byte) error {
	p.logger.V(1).Info("debug memory sync", "addr", fmt.Sprintf("0x%x", addr), "len", len(data))
	return p.emu.Memory().Write(addr, data)
}

// PC returns the emulator's PC.
func (p *EmuProxy) PC() uint64 {
	return p.emu.RegFile().PC
}

// Snapshot checkpoints the emulator.
func (p *EmuProxy) Snapshot() SnapshotID {
	p.nextSnapshot++
	p.snapshots[p.nextSnapshot] = p.emu.Snapshot()
	return p.nextSnapshot
}

// Restore returns the emulator to snapshot id. Snapshots taken after id
// are discarded.
func (p *EmuProxy) Restore(id SnapshotID) error {
	s, ok := p.snapshots[id]
	if !ok {
		return fmt.Errorf("restore %d: %w", id, emu.ErrUnknownSnapshot)
	}

	if err := p.emu.Restore(s); err != nil {
		return fmt.Errorf("restore %d: %w", id, err)
	}

	for other := range p.snapshots {
		if other > id {
			delete(p.snapshots, other)
		}
	}
	p.last = MemAccess{}
	return nil
}

// Release drops snapshot id.
func (p *EmuProxy) Release(id SnapshotID) {
	if s, ok := p.snapshots[id]; ok {
		p.emu.Release(s)
		delete(p.snapshots, id)
	}
}

// LastMemAccess returns the memory access of the last executed
// instruction.
func (p *EmuProxy) LastMemAccess() MemAccess {
	return p.last
}
