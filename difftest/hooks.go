package difftest

import (
	"fmt"
	"io"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/difftest/state"
)

// Hook positions invoked by a Controller.
var (
	// HookPosCommit is invoked for every commit slot confirmed against the
	// reference. Item is the *state.InstrCommit, Detail the CommitDetail.
	HookPosCommit = &sim.HookPos{Name: "Difftest Commit"}

	// HookPosMismatch is invoked once when a check fails. Item is the
	// error returned by Step.
	HookPosMismatch = &sim.HookPos{Name: "Difftest Mismatch"}

	// HookPosTrap is invoked when the run terminates. Item is the trap
	// record.
	HookPosTrap = &sim.HookPos{Name: "Difftest Trap"}
)

// CommitDetail accompanies a HookPosCommit invocation.
type CommitDetail struct {
	Core  int
	Tick  uint64
	Slot  int
	WData uint64
}

func (c *Controller) invoke(pos *sim.HookPos, item, detail interface{}) {
	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}

// CommitTracer is a hook that writes one line per confirmed commit, failure
// and trap.
type CommitTracer struct {
	w io.Writer
}

// NewCommitTracer creates a CommitTracer writing to w.
func NewCommitTracer(w io.Writer) *CommitTracer {
	return &CommitTracer{w: w}
}

// Func implements sim.Hook.
func (t *CommitTracer) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case HookPosCommit:
		cm, ok := ctx.Item.(*state.InstrCommit)
		if !ok {
			return
		}
		d, _ := ctx.Detail.(CommitDetail)
		_, _ = fmt.Fprintf(t.w, "core %d tick %d slot %d: pc %010x inst %08x",
			d.Core, d.Tick, d.Slot, cm.PC, cm.Inst)
		switch {
		case cm.FPWen:
			_, _ = fmt.Fprintf(t.w, " f%d <- %016x", cm.WDest, d.WData)
		case cm.RFWen:
			_, _ = fmt.Fprintf(t.w, " x%d <- %016x", cm.WDest, d.WData)
		}
		if cm.Skip {
			_, _ = fmt.Fprint(t.w, " (skip)")
		}
		_, _ = fmt.Fprintln(t.w)
	case HookPosMismatch:
		_, _ = fmt.Fprintf(t.w, "mismatch: %v\n", ctx.Item)
	case HookPosTrap:
		if trap, ok := ctx.Item.(state.TrapEvent); ok {
			_, _ = fmt.Fprintf(t.w, "trap: code %d pc %010x cycles %d instrs %d\n",
				trap.Code, trap.PC, trap.CycleCnt, trap.InstrCnt)
		}
	}
}
