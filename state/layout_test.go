package state_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/difftest/config"
	"github.com/sarchlab/difftest/state"
)

var _ = Describe("Layout", func() {
	var s *state.CoreState

	BeforeEach(func() {
		s = state.NewCoreState(config.Default())
	})

	It("should hold 64 registers and 70 CSRs", func() {
		Expect(state.NumCSRWords).To(Equal(70))
		Expect(state.Layout{}.Size()).To(Equal(134))
		Expect(state.Layout{DebugMode: true}.Size()).To(Equal(139))
	})

	It("should place words in wire order", func() {
		s.Regs.GPR[1] = 0xA1
		s.Regs.FPR[0] = 0xF0
		s.CSR.ThisPC = 0x80000000
		s.CSR.MStatus = 0xA00000000
		s.CSR.PrivilegeMode = 3
		s.CSR.UStatus = 0x11
		s.CSR.DLBound[0] = 0xD0
		s.CSR.DRetPCFZ = 0xFF

		words := state.Layout{}.Encode(nil, s)

		Expect(words[1]).To(Equal(uint64(0xA1)))
		Expect(words[32]).To(Equal(uint64(0xF0)))
		Expect(words[64]).To(Equal(uint64(0x80000000)))
		Expect(words[65]).To(Equal(uint64(0xA00000000)))
		Expect(words[64+18]).To(Equal(uint64(3)))
		Expect(words[64+19]).To(Equal(uint64(0x11)))
		Expect(words[64+35]).To(Equal(uint64(0xD0)))
		Expect(words[133]).To(Equal(uint64(0xFF)))
	})

	It("should name every word", func() {
		l := state.Layout{DebugMode: true}
		Expect(l.FieldName(0)).To(Equal("$0"))
		Expect(l.FieldName(10)).To(Equal("a0"))
		Expect(l.FieldName(32)).To(Equal("ft0"))
		Expect(l.FieldName(l.ThisPCIndex())).To(Equal("this_pc"))
		Expect(l.FieldName(64 + 18)).To(Equal("mode"))
		Expect(l.FieldName(64 + 36)).To(Equal("dlbound1"))
		Expect(l.FieldName(134)).To(Equal("debugMode"))
		Expect(l.FieldName(138)).To(Equal("dscratch1"))
	})

	It("should decode what it encodes", func() {
		cfg := config.Default()
		cfg.DebugModeDiff = true
		src := state.NewCoreState(cfg)
		src.Regs.GPR[31] = 31
		src.CSR.SATP = 0x8000000000080000
		src.DebugMode.DPC = 0x38020000

		l := src.Layout()
		words := l.Encode(nil, src)

		dst := state.NewCoreState(config.Default())
		Expect(l.Decode(words, dst)).To(Succeed())
		Expect(dst.Regs.GPR[31]).To(Equal(uint64(31)))
		Expect(dst.CSR.SATP).To(Equal(uint64(0x8000000000080000)))
		Expect(dst.DebugMode).NotTo(BeNil())
		Expect(dst.DebugMode.DPC).To(Equal(uint64(0x38020000)))
	})

	It("should reject a bank of the wrong length", func() {
		err := state.Layout{}.Decode(make([]uint64, 10), s)
		Expect(err).To(HaveOccurred())
	})

	It("should report differing words by name", func() {
		ref := state.NewCoreState(config.Default())
		s.Regs.GPR[10] = 1
		ref.Regs.GPR[10] = 2
		s.CSR.MEPC = 0x100

		diffs := state.Layout{}.Diff(s, ref)

		Expect(diffs).To(HaveLen(2))
		Expect(diffs[0].Name).To(Equal("a0"))
		Expect(diffs[0].DUT).To(Equal(uint64(1)))
		Expect(diffs[0].REF).To(Equal(uint64(2)))
		Expect(diffs[1].Name).To(Equal("mepc"))
	})
})
