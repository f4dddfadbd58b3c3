package state_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/difftest/config"
	"github.com/sarchlab/difftest/state"
)

var _ = Describe("CoreState", func() {
	var (
		cfg *config.Config
		s   *state.CoreState
	)

	BeforeEach(func() {
		cfg = config.Default()
		s = state.NewCoreState(cfg)
	})

	It("should size the per-tick arrays from the config", func() {
		Expect(s.Commit).To(HaveLen(cfg.CommitWidth))
		Expect(s.Load).To(HaveLen(cfg.CommitWidth))
		Expect(s.Store).To(HaveLen(cfg.StoreWidth))
		Expect(s.Sbuffer).To(HaveLen(cfg.SbufferRespWidth))
		Expect(s.Runahead).To(HaveLen(cfg.RunaheadWidth))
		Expect(s.PhysRegs.GPR).To(HaveLen(cfg.PhysRegSize))
		Expect(s.PhysRegs.FPR).To(HaveLen(cfg.PhysRegSize))
	})

	It("should only carry a debug-mode bank when enabled", func() {
		Expect(s.DebugMode).To(BeNil())

		cfg.DebugModeDiff = true
		Expect(state.NewCoreState(cfg).DebugMode).NotTo(BeNil())
	})

	Describe("CommitData", func() {
		BeforeEach(func() {
			s.PhysRegs.GPR[40] = 0x1111
			s.PhysRegs.FPR[40] = 0x2222
			s.Commit[0] = state.InstrCommit{Valid: true, WPDest: 40, WDest: 5}
		})

		It("should read the integer physical register by default", func() {
			s.Commit[0].RFWen = true
			Expect(s.CommitData(0)).To(Equal(uint64(0x1111)))
		})

		It("should read the floating-point physical register when fpwen is set", func() {
			s.Commit[0].FPWen = true
			Expect(s.CommitData(0)).To(Equal(uint64(0x2222)))
		})
	})

	It("should count leading valid commits", func() {
		s.Commit[0].Valid = true
		s.Commit[1].Valid = true
		s.Commit[3].Valid = true
		Expect(s.NumValidCommits()).To(Equal(2))
	})

	It("should select refill records by cache", func() {
		s.Refill(state.DCache).Addr = 0x40
		s.Refill(state.ICache).Addr = 0x80
		Expect(s.DRefill.Addr).To(Equal(uint64(0x40)))
		Expect(s.IRefill.Addr).To(Equal(uint64(0x80)))
	})

	Describe("ClearStep", func() {
		It("should invalidate every event but keep the trap and banks", func() {
			s.Trap = state.TrapEvent{Valid: true, Code: 1}
			s.Regs.GPR[3] = 7
			s.Event.Valid = true
			s.Commit[2].Valid = true
			s.Sbuffer[1].Resp = true
			s.Store[0].Valid = true
			s.Load[4].Valid = true
			s.Atomic.Resp = true
			s.PTW.Resp = true
			s.DRefill.Valid = true
			s.IRefill.Valid = true
			s.LRSC.Valid = true
			s.Runahead[0].Valid = true
			s.RunaheadCommit[0].Valid = true
			s.RunaheadRedirect.Valid = true
			s.RunaheadMemdep[0].Valid = true

			s.ClearStep()

			Expect(s.Event.Valid).To(BeFalse())
			Expect(s.NumValidCommits()).To(BeZero())
			Expect(s.Commit[2].Valid).To(BeFalse())
			Expect(s.Sbuffer[1].Resp).To(BeFalse())
			Expect(s.Store[0].Valid).To(BeFalse())
			Expect(s.Load[4].Valid).To(BeFalse())
			Expect(s.Atomic.Resp).To(BeFalse())
			Expect(s.PTW.Resp).To(BeFalse())
			Expect(s.DRefill.Valid).To(BeFalse())
			Expect(s.IRefill.Valid).To(BeFalse())
			Expect(s.LRSC.Valid).To(BeFalse())
			Expect(s.Runahead[0].Valid).To(BeFalse())
			Expect(s.RunaheadCommit[0].Valid).To(BeFalse())
			Expect(s.RunaheadRedirect.Valid).To(BeFalse())
			Expect(s.RunaheadMemdep[0].Valid).To(BeFalse())

			Expect(s.Trap.Valid).To(BeTrue())
			Expect(s.Regs.GPR[3]).To(Equal(uint64(7)))
		})
	})

	Describe("ArchEvent", func() {
		It("should classify interrupts and exceptions", func() {
			e := state.ArchEvent{Valid: true, Interrupt: 7}
			Expect(e.IsInterrupt()).To(BeTrue())
			Expect(e.IsException()).To(BeFalse())

			e = state.ArchEvent{Valid: true, Exception: 0}
			Expect(e.IsException()).To(BeTrue())

			e = state.ArchEvent{Interrupt: 7}
			Expect(e.IsInterrupt()).To(BeFalse())
		})
	})
})
