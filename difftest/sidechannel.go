package difftest

import (
	"errors"
	"fmt"

	"github.com/sarchlab/difftest/goldenmem"
	"github.com/sarchlab/difftest/state"
)

func (c *Controller) checkSideChannels() error {
	checks := []func() error{
		c.checkStores,
		c.checkSbuffer,
		c.checkAtomic,
		c.checkPTW,
		func() error { return c.checkRefill(state.ICache) },
		func() error { return c.checkRefill(state.DCache) },
	}

	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// checkStores matches every committed DUT store against the oldest store
// committed by the reference.
func (c *Controller) checkStores() error {
	for i := range c.dut.Store {
		st := &c.dut.Store[i]
		if !st.Valid {
			continue
		}

		ref, ok := c.proxy.StoreCommit()
		if !ok {
			return sideChannel("store", fieldDiff("addr", st.Addr, 0))
		}

		var diffs []state.FieldDiff
		if ref.Addr != st.Addr {
			diffs = append(diffs, fieldDiff("addr", st.Addr, ref.Addr))
		}
		if ref.Data != st.Data {
			diffs = append(diffs, fieldDiff("data", st.Data, ref.Data))
		}
		if ref.Mask != st.Mask {
			diffs = append(diffs, fieldDiff("mask", uint64(st.Mask), uint64(ref.Mask)))
		}
		if len(diffs) > 0 {
			return sideChannel("store", diffs...)
		}

		for b := 0; b < 8; b++ {
			if st.Mask&(1<<b) != 0 {
				c.confirmed[st.Addr+uint64(b)] = byte(st.Data >> (8 * b))
			}
		}
	}
	return nil
}

// checkSbuffer compares drained store-buffer bytes against the latest
// confirmed store to the same byte. A drained byte without a confirmed
// store was stored before checking was enabled, since ticks before the
// first instruction replay nothing; golden memory takes it as drained.
func (c *Controller) checkSbuffer() error {
	for i := range c.dut.Sbuffer {
		sb := &c.dut.Sbuffer[i]
		if !sb.Resp {
			continue
		}

		for b := 0; b < state.SbufferLineSize; b++ {
			if sb.Mask&(1<<b) == 0 {
				continue
			}
			addr := sb.Addr + uint64(b)
			want, ok := c.confirmed[addr]
			if ok && want != sb.Data[b] {
				return sideChannel("sbuffer",
					fieldDiff(fmt.Sprintf("byte 0x%x", addr), uint64(sb.Data[b]), uint64(want)))
			}
		}
	}
	return nil
}

func (c *Controller) checkAtomic() error {
	a := &c.dut.Atomic
	if !a.Resp {
		return nil
	}

	golden, ok, err := c.golden.CheckAtomic(a)
	switch {
	case errors.Is(err, goldenmem.ErrAtomicMask):
		return sideChannel("atomic", fieldDiff("mask", uint64(a.Mask), 0))
	case err != nil:
		return sideChannel("atomic", fieldDiff("addr", a.Addr, 0))
	}
	if !ok {
		return sideChannel("atomic", fieldDiff("out", a.Out, golden))
	}
	return nil
}

func (c *Controller) checkPTW() error {
	p := &c.dut.PTW
	if !p.Resp {
		return nil
	}

	words, err := c.golden.ReadWords(p.Addr, state.PTWWords)
	if err != nil {
		return sideChannel("ptw", fieldDiff("addr", p.Addr, 0))
	}

	var diffs []state.FieldDiff
	for i, w := range words {
		if w != p.Data[i] {
			diffs = append(diffs, fieldDiff(fmt.Sprintf("pte%d", i), p.Data[i], w))
		}
	}
	if len(diffs) > 0 {
		return sideChannel("ptw", diffs...)
	}
	return nil
}

func (c *Controller) checkRefill(id state.CacheID) error {
	r := c.dut.Refill(id)
	if !r.Valid {
		return nil
	}

	channel := "icache-refill"
	if id == state.DCache {
		channel = "dcache-refill"
	}

	if r.Addr%state.RefillLineSize != 0 {
		return sideChannel(channel, fieldDiff("addr", r.Addr, r.Addr&^(state.RefillLineSize-1)))
	}

	c.trackRefill(channel, r.Addr)

	last := &c.lastRefill[id]
	if !c.cfg.InPMEM(r.Addr) || (last.valid && last.addr == r.Addr) {
		return nil
	}

	words, err := c.golden.ReadWords(r.Addr, state.RefillWords)
	if err != nil {
		return sideChannel(channel, fieldDiff("addr", r.Addr, 0))
	}

	var diffs []state.FieldDiff
	for i, w := range words {
		if w != r.Data[i] {
			diffs = append(diffs, fieldDiff(fmt.Sprintf("word%d", i), r.Data[i], w))
		}
	}
	if len(diffs) > 0 {
		return sideChannel(channel, diffs...)
	}

	*last = refillMark{valid: true, addr: r.Addr}
	return nil
}

func (c *Controller) trackRefill(what string, line uint64) {
	if !c.cfg.DebugRefill || !c.trackedValid {
		return
	}
	if c.trackedInst&^(state.RefillLineSize-1) != line&^(state.RefillLineSize-1) {
		return
	}

	c.logger.Info("tracked instruction line touched",
		"core", c.id, "by", what, "line", hex(line), "inst", hex(c.trackedInst), "tick", c.ticks)
}

// updateGoldenMemory applies the memory effects confirmed in this tick.
func (c *Controller) updateGoldenMemory() error {
	for i := range c.dut.Sbuffer {
		sb := &c.dut.Sbuffer[i]
		if !sb.Resp {
			continue
		}

		if err := c.golden.Update(sb.Addr, sb.Data[:], sb.Mask); err != nil {
			return fmt.Errorf("core %d: store-buffer drain at 0x%x: %w", c.id, sb.Addr, err)
		}
		for b := 0; b < state.SbufferLineSize; b++ {
			if sb.Mask&(1<<b) != 0 {
				delete(c.confirmed, sb.Addr+uint64(b))
			}
		}
		c.trackRefill("sbuffer", sb.Addr)
	}

	if c.dut.Atomic.Resp {
		if err := c.golden.ApplyAtomic(&c.dut.Atomic); err != nil {
			return fmt.Errorf("core %d: atomic at 0x%x: %w", c.id, c.dut.Atomic.Addr, err)
		}
	}

	for _, w := range c.debugWrites {
		if err := c.proxy.DebugMemSync(w.addr, w.data); err != nil {
			return fmt.Errorf("core %d: debug memory sync at 0x%x: %w", c.id, w.addr, err)
		}
		if c.golden.Contains(w.addr, uint64(len(w.data))) {
			if err := c.golden.Write(w.addr, w.data); err != nil {
				return err
			}
		}
		c.logger.V(1).Info("debug memory synced", "core", c.id, "addr", hex(w.addr), "len", len(w.data))
	}
	c.debugWrites = c.debugWrites[:0]

	return nil
}
