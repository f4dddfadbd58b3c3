package dut

import (
	"fmt"

	"github.com/sarchlab/difftest/difftest"
	"github.com/sarchlab/difftest/emu"
	"github.com/sarchlab/difftest/insts"
	"github.com/sarchlab/difftest/state"
)

// group collects what one cycle retired.
type group struct {
	commits int
	event   bool
	stores  int
	latency uint64
	end     bool
}

// retire executes instructions until the group is full or a structural
// limit ends it. Group-ending limits: one event record, one refill per
// cache, one store-buffer drain and one atomic response per cycle.
func (m *Model) retire() error {
	var g group

	if intr, ok := m.dueInterrupt(); ok && !m.emu.Halted() {
		m.raise(intr, &g)
	}

	for g.commits < m.cfg.CommitWidth && !g.end {
		if m.emu.Halted() {
			break
		}

		ok, err := m.retireOne(&g)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}

	if g.latency > 0 {
		m.stall = g.latency - 1
	}
	return nil
}

func (m *Model) dueInterrupt() (Interrupt, bool) {
	count := m.emu.InstructionCount()
	for i, intr := range m.interrupts {
		if count >= intr.At {
			m.interrupts = append(m.interrupts[:i], m.interrupts[i+1:]...)
			return intr, true
		}
	}
	return Interrupt{}, false
}

func (m *Model) raise(intr Interrupt, g *group) {
	pc := m.emu.RegFile().PC
	inst := m.emu.Memory().Read32(pc)

	m.emu.RaiseInterrupt(intr.Cause)
	*m.ctrl.ArchEvent() = state.ArchEvent{
		Valid:         true,
		Interrupt:     uint32(intr.Cause),
		ExceptionPC:   pc,
		ExceptionInst: inst,
	}
	g.event = true
	m.stopRunahead()

	m.logger.V(1).Info("interrupt raised", "cause", intr.Cause, "pc", fmt.Sprintf("0x%x", pc))
}

// retireOne executes the next instruction. It returns false when the
// instruction was rolled back to the next cycle.
func (m *Model) retireOne(g *group) (bool, error) {
	pc := m.emu.RegFile().PC
	inst := m.decoder.Decode(m.emu.Memory().Read32(pc))

	m.fetch(pc, g)
	addr, hasAddr := m.effectiveAddr(inst)
	if hasAddr {
		m.probe(addr, g)
	}

	var snap *emu.Snapshot
	if g.commits > 0 || g.event {
		snap = m.emu.Snapshot()
	}

	res := m.emu.Step()
	if res.Err != nil {
		if snap != nil {
			m.emu.Release(snap)
		}
		return false, fmt.Errorf("DUT step at 0x%x: %w", pc, res.Err)
	}

	if res.Exception != nil {
		if snap != nil {
			// Only the first record of a cycle can be an exception.
			if err := m.emu.Restore(snap); err != nil {
				return false, err
			}
			m.emu.Release(snap)
			return false, nil
		}

		*m.ctrl.ArchEvent() = state.ArchEvent{
			Valid:         true,
			Exception:     uint32(res.Exception.Cause),
			ExceptionPC:   res.PC,
			ExceptionInst: res.Inst,
		}
		g.event = true
		m.stopRunahead()
		return true, nil
	}

	if snap != nil {
		m.emu.Release(snap)
	}

	m.commit(g, &res, addr)
	g.latency = max(g.latency, m.timing.GetLatency(inst))

	if res.Exited {
		m.exit(&res)
		g.end = true
	}
	return true, nil
}

func (m *Model) fetch(pc uint64, g *group) {
	r := m.icache.Read(pc, 4)
	if r.Hit {
		return
	}

	*m.ctrl.RefillEvent(state.ICache) = r.Refill
	m.injectRefill(state.ICache)
	g.latency = max(g.latency, r.Latency)
	g.end = true
}

// probe looks the data address up before the instruction executes, so a
// refill carries the memory image the instruction saw.
func (m *Model) probe(addr uint64, g *group) {
	if !m.emu.Memory().Contains(addr, 1) {
		return
	}

	r := m.dcache.Read(addr, 1)
	if r.Hit {
		return
	}

	*m.ctrl.RefillEvent(state.DCache) = r.Refill
	m.injectRefill(state.DCache)
	g.latency = max(g.latency, r.Latency)
	g.end = true
}

func (m *Model) effectiveAddr(inst *insts.Instruction) (uint64, bool) {
	switch {
	case inst.IsLoad(), inst.IsStore():
		return m.emu.RegFile().ReadReg(inst.Rs1) + uint64(inst.Imm), true
	case inst.IsAMO():
		return m.emu.RegFile().ReadReg(inst.Rs1), true
	}
	return 0, false
}

func (m *Model) allocPhys() uint32 {
	p := m.nextPhys
	m.nextPhys = (m.nextPhys + 1) % uint32(m.cfg.PhysRegSize)
	return p
}

func (m *Model) commit(g *group, res *emu.StepResult, addr uint64) {
	slot := g.commits
	g.commits++

	cm := m.ctrl.InstrCommit(slot)
	*cm = state.InstrCommit{
		Valid:  true,
		PC:     res.PC,
		Inst:   res.Inst,
		IsRVC:  insts.IsRVC(res.Inst),
		RFWen:  res.WroteGPR && res.Rd != 0,
		FPWen:  res.WroteFPR,
		WDest:  res.Rd,
		WPDest: m.allocPhys(),
	}

	phys := m.ctrl.PhysRegState()
	switch {
	case cm.FPWen:
		phys.FPR[cm.WPDest] = m.emu.RegFile().ReadFReg(res.Rd)
	case cm.RFWen:
		phys.GPR[cm.WPDest] = m.emu.RegFile().ReadReg(res.Rd)
	}
	m.injectWriteback(cm)

	m.memoryEvents(g, slot, res, addr)

	if m.runahead != nil {
		m.runahead.record(res, m.emu.RegFile().PC)
	}
}

func (m *Model) memoryEvents(g *group, slot int, res *emu.StepResult, addr uint64) {
	acc := &res.Mem

	switch acc.Kind {
	case emu.MemLoad:
		*m.ctrl.LoadEvent(slot) = state.LoadEvent{
			Valid:  true,
			PAddr:  acc.Addr,
			FuType: state.FuTypeLoad,
			OpType: uint8(res.Inst>>12) & 0x7,
		}
	case emu.MemStore:
		m.drainStores(g)
	case emu.MemLR:
		*m.ctrl.LoadEvent(slot) = state.LoadEvent{
			Valid:  true,
			PAddr:  acc.Addr,
			FuType: state.FuTypeMou,
			OpType: m.fuopOf(res.Inst, acc.Size),
		}
	case emu.MemSC:
		*m.ctrl.LRSCEvent() = state.LRSCEvent{Valid: true, Success: acc.Success}
		if acc.Success {
			m.atomic(acc, m.fuopOf(res.Inst, acc.Size), 0)
		}
		g.end = true
	case emu.MemAMO:
		fuop := m.fuopOf(res.Inst, acc.Size)
		*m.ctrl.LoadEvent(slot) = state.LoadEvent{
			Valid:  true,
			PAddr:  acc.Addr,
			FuType: state.FuTypeMou,
			OpType: fuop,
		}
		m.atomic(acc, fuop, acc.Old)
		g.end = true
	}

	if acc.Kind == emu.MemStore || acc.Kind == emu.MemAMO || (acc.Kind == emu.MemSC && acc.Success) {
		line := addr &^ 7
		m.dcache.Write(line, 8, m.emu.Memory().Read64(line))
	}
}

// drainStores reports the stores of the instruction as committed and
// drains them from the store buffer in the same cycle.
func (m *Model) drainStores(g *group) {
	for {
		rec, ok := m.emu.LSU().PopStore()
		if !ok {
			break
		}

		st := m.ctrl.StoreEvent(g.stores)
		*st = state.StoreEvent{Valid: true, Addr: rec.Addr, Data: rec.Data, Mask: rec.Mask}

		sb := m.ctrl.SbufferEvent(g.stores)
		line := rec.Addr &^ (state.SbufferLineSize - 1)
		off := rec.Addr - line
		*sb = state.SbufferState{Resp: true, Addr: line}
		for b := uint64(0); b < 8; b++ {
			if rec.Mask&(1<<b) != 0 {
				sb.Data[off+b] = byte(rec.Data >> (8 * b))
				sb.Mask |= 1 << (off + b)
			}
		}

		m.injectStore(st)
		g.stores++
	}
	g.end = true
}

func (m *Model) atomic(acc *emu.MemAccess, fuop uint8, out uint64) {
	mask := uint8(0xff)
	if acc.Size == 4 {
		mask = 0x0f
		if acc.Addr&4 != 0 {
			mask = 0xf0
		}
	}

	*m.ctrl.AtomicEvent() = state.AtomicEvent{
		Resp: true,
		Addr: acc.Addr,
		Data: acc.Value,
		Mask: mask,
		Fuop: fuop,
		Out:  out,
	}
}

func (m *Model) exit(res *emu.StepResult) {
	code := difftest.TrapGood
	if res.ExitCode != 0 {
		code = difftest.TrapBad
	}

	*m.ctrl.TrapEvent() = state.TrapEvent{
		Valid:    true,
		Code:     code,
		PC:       res.PC,
		CycleCnt: m.cycle,
		InstrCnt: m.emu.InstructionCount(),
	}
	m.logger.Info("DUT reached the trap instruction", "code", res.ExitCode, "cycle", m.cycle)
}

var fuops = map[insts.Op]uint8{
	insts.OpLR:      state.FuopLR,
	insts.OpSC:      state.FuopSC,
	insts.OpAMOSWAP: state.FuopSwap,
	insts.OpAMOADD:  state.FuopAdd,
	insts.OpAMOXOR:  state.FuopXor,
	insts.OpAMOAND:  state.FuopAnd,
	insts.OpAMOOR:   state.FuopOr,
	insts.OpAMOMIN:  state.FuopMin,
	insts.OpAMOMAX:  state.FuopMax,
	insts.OpAMOMINU: state.FuopMinU,
	insts.OpAMOMAXU: state.FuopMaxU,
}

func (m *Model) fuopOf(raw uint32, size uint8) uint8 {
	fuop := fuops[m.decoder.Decode(raw).Op]
	if size == 8 {
		fuop |= state.FuopDouble
	}
	return fuop
}
