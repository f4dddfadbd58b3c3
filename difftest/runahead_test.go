package difftest_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/difftest/config"
	"github.com/sarchlab/difftest/difftest"
	"github.com/sarchlab/difftest/emu"
	"github.com/sarchlab/difftest/insts"
	"github.com/sarchlab/difftest/refproxy"
	"github.com/sarchlab/difftest/state"
)

var _ = Describe("RunaheadValidator", func() {
	var (
		spec *emu.Emulator
		v    *difftest.RunaheadValidator
		s    *state.CoreState
	)

	load := func(program ...uint32) {
		spec = emu.NewEmulator()
		Expect(spec.LoadProgram(base, insts.Program(program...))).To(Succeed())
		v = difftest.NewRunaheadValidator(refproxy.NewEmuProxy(spec, state.Layout{}))
		s = state.NewCoreState(config.Default())
	}

	issue := func(events ...state.RunaheadEvent) error {
		s.ClearStep()
		for i, ev := range events {
			ev.Valid = true
			s.Runahead[i] = ev
		}
		return v.Step(s)
	}

	retire := func(pcs ...uint64) error {
		s.ClearStep()
		for i, pc := range pcs {
			s.RunaheadCommit[i] = state.RunaheadCommitEvent{Valid: true, PC: pc}
		}
		return v.Step(s)
	}

	Context("across a mispredicted branch", func() {
		BeforeEach(func() {
			load(
				insts.ADDI(1, 0, 1),
				insts.BNE(1, 0, 12),
				insts.ADDI(2, 0, 2),
				insts.ADDI(3, 0, 3),
				insts.ADDI(4, 0, 4),
				insts.ADDI(5, 0, 5),
			)

			Expect(issue(
				state.RunaheadEvent{PC: base},
				state.RunaheadEvent{PC: base + 4, Branch: true, CheckpointID: 1},
				state.RunaheadEvent{PC: base + 8, CheckpointID: 1},
				state.RunaheadEvent{PC: base + 12, Branch: true, CheckpointID: 2},
			)).To(Succeed())
		})

		It("should follow the DUT down the wrong path", func() {
			Expect(v.WrongPath()).To(BeTrue())
			Expect(v.Pending()).To(Equal(4))
			Expect(v.Checkpoints()).To(Equal(2))
			Expect(v.Stats().Executed).To(Equal(uint64(2)))
			Expect(spec.RegFile().X[2]).To(BeZero())
		})

		It("should discard the wrong path on redirect", func() {
			s.ClearStep()
			s.RunaheadRedirect = state.RunaheadRedirectEvent{
				Valid: true, PC: base + 4, TargetPC: base + 16, CheckpointID: 1,
			}
			s.Runahead[0] = state.RunaheadEvent{Valid: true, PC: base + 16, CheckpointID: 1}
			s.Runahead[1] = state.RunaheadEvent{Valid: true, PC: base + 20, CheckpointID: 1}

			Expect(v.Step(s)).To(Succeed())
			Expect(v.WrongPath()).To(BeFalse())
			Expect(v.Pending()).To(Equal(4))
			Expect(v.Checkpoints()).To(Equal(1))
			Expect(v.Stats().Discarded).To(Equal(uint64(2)))
			Expect(v.Stats().Redirects).To(Equal(uint64(1)))
			Expect(spec.RegFile().X[5]).To(Equal(uint64(5)))

			Expect(retire(base, base+4, base+16, base+20)).To(Succeed())
			Expect(v.Pending()).To(BeZero())
			Expect(v.Checkpoints()).To(BeZero())
			Expect(v.Stats().Confirmed).To(Equal(uint64(4)))
			Expect(spec.OutstandingSnapshots()).To(BeZero())
		})

		It("should reject a redirect to an unknown checkpoint", func() {
			s.ClearStep()
			s.RunaheadRedirect = state.RunaheadRedirectEvent{
				Valid: true, PC: base + 4, TargetPC: base + 16, CheckpointID: 7,
			}

			Expect(v.Step(s)).To(MatchError(difftest.ErrStateMismatch))
		})

		It("should reject a redirect to the wrong target", func() {
			s.ClearStep()
			s.RunaheadRedirect = state.RunaheadRedirectEvent{
				Valid: true, PC: base + 4, TargetPC: base + 8, CheckpointID: 1,
			}

			err := v.Step(s)
			Expect(err).To(HaveOccurred())
			Expect(asMismatch(err).Diffs[0].Name).To(Equal("target"))
		})

		It("should reject retiring a wrong-path instruction", func() {
			Expect(retire(base, base+4)).To(Succeed())
			Expect(retire(base + 8)).To(MatchError(difftest.ErrStateMismatch))
		})
	})

	Context("on straight-line code", func() {
		BeforeEach(func() {
			load(insts.SD(2, 1, 0), insts.LD(3, 1, 0), insts.ADDI(4, 0, 4))
			spec.RegFile().WriteReg(1, data)
		})

		It("should reject an instruction the reference would not run", func() {
			err := issue(state.RunaheadEvent{PC: base}, state.RunaheadEvent{PC: base + 8})

			m := asMismatch(err)
			Expect(m.Channel).To(Equal("runahead"))
			Expect(m.PC).To(Equal(base + 8))
		})

		It("should drop replayed instructions", func() {
			Expect(issue(
				state.RunaheadEvent{PC: base},
				state.RunaheadEvent{PC: base, MayReplay: true},
			)).To(Succeed())

			Expect(v.Pending()).To(Equal(1))
			Expect(v.Stats().Replays).To(Equal(uint64(1)))
		})

		It("should reject retiring out of order", func() {
			Expect(issue(state.RunaheadEvent{PC: base})).To(Succeed())
			Expect(retire(base + 4)).To(MatchError(difftest.ErrStateMismatch))
		})

		It("should score memory-dependency predictions", func() {
			s.ClearStep()
			s.Runahead[0] = state.RunaheadEvent{Valid: true, PC: base}
			s.Runahead[1] = state.RunaheadEvent{Valid: true, PC: base + 4}
			s.RunaheadMemdep[0] = state.RunaheadMemdepPred{
				Valid: true, IsLoad: true, NeedWait: true, PC: base + 4,
			}
			s.RunaheadMemdep[1] = state.RunaheadMemdepPred{
				Valid: true, NeedWait: true, PC: base,
			}

			Expect(v.Step(s)).To(Succeed())

			Expect(s.RunaheadMemdep[0].OracleVAddr).To(Equal(data))
			Expect(s.RunaheadMemdep[1].OracleVAddr).To(Equal(data))
			stats := v.Stats()
			Expect(stats.MemdepPredictions).To(Equal(uint64(2)))
			Expect(stats.MemdepCorrect).To(Equal(uint64(1)))
			Expect(stats.MemdepFalseWait).To(Equal(uint64(1)))
		})

		It("should count a missed dependency", func() {
			s.ClearStep()
			s.Runahead[0] = state.RunaheadEvent{Valid: true, PC: base}
			s.Runahead[1] = state.RunaheadEvent{Valid: true, PC: base + 4}
			s.RunaheadMemdep[0] = state.RunaheadMemdepPred{
				Valid: true, IsLoad: true, PC: base + 4,
			}

			Expect(v.Step(s)).To(Succeed())
			Expect(v.Stats().MemdepMissedWait).To(Equal(uint64(1)))
		})
	})

	It("should run inside a controller", func() {
		cfg := config.Default()
		program := aluProgram()

		spec = emu.NewEmulator()
		Expect(spec.LoadProgram(base, insts.Program(program...))).To(Succeed())
		h := newHarness(cfg, program,
			difftest.WithSpeculator(refproxy.NewEmuProxy(spec, state.Layout{})))
		h.reset()
		Expect(h.tick(1).Err).NotTo(HaveOccurred())

		ra := h.ctrl.Runahead()
		Expect(ra).NotTo(BeNil())

		*h.ctrl.RunaheadEvent(0) = state.RunaheadEvent{Valid: true, PC: base}
		*h.ctrl.RunaheadEvent(1) = state.RunaheadEvent{Valid: true, PC: base + 4}
		Expect(h.ctrl.Step().Err).NotTo(HaveOccurred())
		Expect(ra.Pending()).To(Equal(2))

		*h.ctrl.RunaheadCommitEvent(0) = state.RunaheadCommitEvent{Valid: true, PC: base}
		*h.ctrl.RunaheadEvent(0) = state.RunaheadEvent{Valid: true, PC: base + 12}
		res := h.ctrl.Step()
		Expect(res.Err).To(MatchError(difftest.ErrStateMismatch))
		Expect(asMismatch(res.Err).Channel).To(Equal("runahead"))
	})
})
