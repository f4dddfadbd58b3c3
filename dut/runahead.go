package dut

import (
	"github.com/sarchlab/difftest/difftest"
	"github.com/sarchlab/difftest/emu"
	"github.com/sarchlab/difftest/state"
	"github.com/sarchlab/difftest/timing/predictor"
)

type raInst struct {
	pc     uint64
	next   uint64
	branch bool
	taken  bool
	cond   bool
	load   bool
	store  bool
}

// speculation replays the retired stream as run-ahead records one cycle
// ahead of their confirmation. With a predictor, a conditional branch
// whose prediction disagrees with the retired path is followed by one
// wrong-path record and redirected the next cycle.
type speculation struct {
	width     int
	start     uint64
	predictor *predictor.Predictor

	started bool
	stopped bool

	backlog  []raInst
	issued   []raInst
	redirect *state.RunaheadRedirectEvent
	nextCP   uint64
}

func (s *speculation) record(res *emu.StepResult, next uint64) {
	if s.stopped {
		return
	}
	if !s.started {
		if res.PC != s.start {
			return
		}
		s.started = true
	}

	// Conditional branches are the only B-type opcode.
	cond := res.Inst&0x7f == 0x63
	s.backlog = append(s.backlog, raInst{
		pc:     res.PC,
		next:   next,
		branch: res.Branch,
		taken:  next != res.PC+4,
		cond:   cond,
		load:   res.Mem.Kind == emu.MemLoad,
		store:  res.Mem.Kind == emu.MemStore,
	})
}

func (s *speculation) emit(ctrl *difftest.Controller) {
	if s.redirect != nil {
		*ctrl.RunaheadRedirectEvent() = *s.redirect
		s.redirect = nil
	}

	for i, in := range s.issued {
		if i == s.width {
			break
		}
		*ctrl.RunaheadCommitEvent(i) = state.RunaheadCommitEvent{
			Valid:  true,
			Branch: in.branch,
			PC:     in.pc,
		}
	}
	s.issued = s.issued[min(len(s.issued), s.width):]

	slot, pred := 0, 0
	for len(s.backlog) > 0 && slot < s.width {
		in := s.backlog[0]
		s.backlog = s.backlog[1:]

		ev := state.RunaheadEvent{Valid: true, Branch: in.branch, PC: in.pc}
		if in.branch {
			s.nextCP++
			ev.CheckpointID = s.nextCP
		}
		*ctrl.RunaheadEvent(slot) = ev
		slot++
		s.issued = append(s.issued, in)

		if in.load || in.store {
			*ctrl.RunaheadMemdepPred(pred) = state.RunaheadMemdepPred{
				Valid:  true,
				IsLoad: in.load,
				PC:     in.pc,
			}
			pred++
		}

		if wrong, ok := s.mispredicted(in); ok && slot < s.width {
			*ctrl.RunaheadEvent(slot) = state.RunaheadEvent{
				Valid:        true,
				PC:           wrong,
				CheckpointID: ev.CheckpointID,
			}
			s.redirect = &state.RunaheadRedirectEvent{
				Valid:        true,
				PC:           in.pc,
				TargetPC:     in.next,
				CheckpointID: ev.CheckpointID,
			}
			break
		}
	}
}

// mispredicted consults and trains the predictor for a conditional
// branch. It returns the predicted fetch address when it is wrong.
func (s *speculation) mispredicted(in raInst) (uint64, bool) {
	if s.predictor == nil || !in.cond {
		return 0, false
	}

	next := s.predictor.Predict(in.pc).Next(in.pc)
	s.predictor.Update(in.pc, in.taken, in.next)
	return next, next != in.next
}

// stopRunahead ends speculation. Records already collected are still
// issued and confirmed.
func (m *Model) stopRunahead() {
	if m.runahead != nil {
		m.runahead.stopped = true
	}
}
