package difftest

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/difftest/refproxy"
	"github.com/sarchlab/difftest/state"
)

// RunaheadStats counts run-ahead activity. None of it is fatal.
type RunaheadStats struct {
	Executed  uint64
	Confirmed uint64
	Discarded uint64
	Redirects uint64
	Replays   uint64

	MemdepPredictions uint64
	MemdepCorrect     uint64
	MemdepFalseWait   uint64
	MemdepMissedWait  uint64
}

type runaheadEntry struct {
	seq       uint64
	pc        uint64
	branch    bool
	wrongPath bool
	access    refproxy.MemAccess
}

type runaheadCheckpoint struct {
	id        uint64
	seq       uint64
	pc        uint64
	wrongPath bool
	snap      refproxy.SnapshotID
}

// RunaheadValidator follows the speculative execution reported by the DUT
// on its own speculator. Every branch opens a checkpoint; a redirect rolls
// the speculator back to the checkpoint and drops everything issued after
// the branch.
type RunaheadValidator struct {
	spec   refproxy.Speculator
	logger logr.Logger
	core   int

	pending     []runaheadEntry
	checkpoints []runaheadCheckpoint
	nextSeq     uint64
	wrongPath   bool

	stats RunaheadStats
}

// NewRunaheadValidator creates a validator driving s.
func NewRunaheadValidator(s refproxy.Speculator) *RunaheadValidator {
	return &RunaheadValidator{
		spec:   s,
		logger: logr.Discard(),
	}
}

// Stats returns the run-ahead counters.
func (v *RunaheadValidator) Stats() RunaheadStats {
	return v.stats
}

// Pending returns the number of speculative instructions not yet
// confirmed.
func (v *RunaheadValidator) Pending() int {
	return len(v.pending)
}

// Checkpoints returns the number of open checkpoints.
func (v *RunaheadValidator) Checkpoints() int {
	return len(v.checkpoints)
}

// WrongPath reports whether the DUT is speculating down a path the
// speculator did not take.
func (v *RunaheadValidator) WrongPath() bool {
	return v.wrongPath
}

// sync drops all speculative state and loads the register bank into the
// speculator.
func (v *RunaheadValidator) sync(words []uint64) error {
	for _, cp := range v.checkpoints {
		if !cp.wrongPath {
			v.spec.Release(cp.snap)
		}
	}
	v.pending = v.pending[:0]
	v.checkpoints = v.checkpoints[:0]
	v.wrongPath = false

	return v.spec.RegCopy(words, refproxy.DUTToREF)
}

// Step consumes the run-ahead records of one tick: the redirect first,
// then the confirmations, the new speculative instructions and the
// memory-dependency predictions.
func (v *RunaheadValidator) Step(s *state.CoreState) error {
	if s.RunaheadRedirect.Valid {
		if err := v.redirect(&s.RunaheadRedirect); err != nil {
			return err
		}
	}

	for i := range s.RunaheadCommit {
		if s.RunaheadCommit[i].Valid {
			if err := v.confirm(&s.RunaheadCommit[i]); err != nil {
				return err
			}
		}
	}

	for i := range s.Runahead {
		if s.Runahead[i].Valid {
			if err := v.execute(&s.Runahead[i]); err != nil {
				return err
			}
		}
	}

	for i := range s.RunaheadMemdep {
		if s.RunaheadMemdep[i].Valid {
			v.memdep(&s.RunaheadMemdep[i])
		}
	}

	return nil
}

func runaheadMismatch(pc uint64, diffs ...state.FieldDiff) *MismatchError {
	return &MismatchError{Kind: StateMismatch, Channel: "runahead", PC: pc, Diffs: diffs}
}

func (v *RunaheadValidator) execute(ev *state.RunaheadEvent) error {
	entry := runaheadEntry{seq: v.nextSeq, pc: ev.PC, branch: ev.Branch}

	if !v.wrongPath {
		if pc := v.spec.PC(); pc != ev.PC {
			switch {
			case v.afterBranch():
				v.wrongPath = true
				v.logger.V(1).Info("run-ahead left the reference path",
					"core", v.core, "pc", hex(ev.PC), "ref", hex(pc))
			case ev.MayReplay:
				v.stats.Replays++
				return nil
			default:
				return runaheadMismatch(ev.PC, fieldDiff("pc", ev.PC, pc))
			}
		}
	}

	v.nextSeq++
	entry.wrongPath = v.wrongPath

	if ev.Branch {
		cp := runaheadCheckpoint{
			id:        ev.CheckpointID,
			seq:       entry.seq,
			pc:        ev.PC,
			wrongPath: v.wrongPath,
		}
		if !v.wrongPath {
			cp.snap = v.spec.Snapshot()
		}
		v.checkpoints = append(v.checkpoints, cp)
	}

	if !v.wrongPath {
		if err := v.spec.Exec(1); err != nil {
			return fmt.Errorf("core %d: run-ahead exec at 0x%x: %w", v.core, ev.PC, err)
		}
		entry.access = v.spec.LastMemAccess()
		v.stats.Executed++
	}

	v.pending = append(v.pending, entry)
	return nil
}

func (v *RunaheadValidator) afterBranch() bool {
	n := len(v.pending)
	return n > 0 && v.pending[n-1].branch && !v.pending[n-1].wrongPath
}

func (v *RunaheadValidator) findCheckpoint(id uint64) int {
	for i := len(v.checkpoints) - 1; i >= 0; i-- {
		if v.checkpoints[i].id == id {
			return i
		}
	}
	return -1
}

func (v *RunaheadValidator) redirect(r *state.RunaheadRedirectEvent) error {
	idx := v.findCheckpoint(r.CheckpointID)
	if idx < 0 {
		return runaheadMismatch(r.PC, fieldDiff("checkpoint", r.CheckpointID, 0))
	}

	cp := v.checkpoints[idx]
	if cp.pc != r.PC {
		return runaheadMismatch(r.PC, fieldDiff("pc", r.PC, cp.pc))
	}

	kept := v.pending[:0]
	for _, e := range v.pending {
		if e.seq <= cp.seq {
			kept = append(kept, e)
		}
	}
	discarded := len(v.pending) - len(kept)
	v.pending = kept

	for _, young := range v.checkpoints[idx+1:] {
		if !young.wrongPath {
			v.spec.Release(young.snap)
		}
	}
	v.checkpoints = v.checkpoints[:idx+1]

	v.stats.Discarded += uint64(discarded)
	v.stats.Redirects++
	v.logger.V(1).Info("run-ahead redirect",
		"core", v.core, "checkpoint", r.CheckpointID, "target", hex(r.TargetPC), "discarded", discarded)

	if cp.wrongPath {
		return nil
	}

	if err := v.spec.Restore(cp.snap); err != nil {
		return fmt.Errorf("core %d: run-ahead restore %d: %w", v.core, r.CheckpointID, err)
	}
	if err := v.spec.Exec(1); err != nil {
		return fmt.Errorf("core %d: run-ahead branch at 0x%x: %w", v.core, r.PC, err)
	}
	if pc := v.spec.PC(); pc != r.TargetPC {
		return runaheadMismatch(r.PC, fieldDiff("target", r.TargetPC, pc))
	}

	v.wrongPath = false
	return nil
}

func (v *RunaheadValidator) confirm(ev *state.RunaheadCommitEvent) error {
	if len(v.pending) == 0 {
		return runaheadMismatch(ev.PC, fieldDiff("pc", ev.PC, 0))
	}

	e := v.pending[0]
	if e.wrongPath || e.pc != ev.PC {
		return runaheadMismatch(ev.PC, fieldDiff("pc", ev.PC, e.pc))
	}
	v.pending = v.pending[1:]

	if e.branch {
		for i, cp := range v.checkpoints {
			if cp.seq == e.seq {
				if !cp.wrongPath {
					v.spec.Release(cp.snap)
				}
				v.checkpoints = append(v.checkpoints[:i], v.checkpoints[i+1:]...)
				break
			}
		}
	}

	v.stats.Confirmed++
	return nil
}

// memdep fills the oracle address of a prediction and scores it: a load
// truly depends on an older unconfirmed store to the same doubleword.
func (v *RunaheadValidator) memdep(p *state.RunaheadMemdepPred) {
	idx := -1
	for i := len(v.pending) - 1; i >= 0; i-- {
		e := &v.pending[i]
		if e.pc == p.PC && e.access.Valid && !e.wrongPath {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	access := v.pending[idx].access
	p.OracleVAddr = access.Addr
	v.stats.MemdepPredictions++

	depends := false
	if p.IsLoad {
		for _, older := range v.pending[:idx] {
			if older.access.Valid && older.access.IsStore &&
				older.access.Addr&^7 == access.Addr&^7 {
				depends = true
				break
			}
		}
	}

	switch {
	case depends == p.NeedWait:
		v.stats.MemdepCorrect++
	case p.NeedWait:
		v.stats.MemdepFalseWait++
	default:
		v.stats.MemdepMissedWait++
	}
}
