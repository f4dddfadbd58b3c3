package goldenmem_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/difftest/goldenmem"
	"github.com/sarchlab/difftest/state"
)

const base = uint64(0x80000000)

var _ = Describe("Memory", func() {
	var m *goldenmem.Memory

	BeforeEach(func() {
		m = goldenmem.New(base, 0x10000)
	})

	It("should apply masked line updates", func() {
		Expect(m.Write(base, []byte{1, 2, 3, 4, 5, 6, 7, 8})).To(Succeed())

		line := make([]byte, 8)
		for i := range line {
			line[i] = 0xee
		}
		Expect(m.Update(base, line, 0b10100101)).To(Succeed())

		got, err := m.Read(base, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]byte{0xee, 2, 0xee, 4, 5, 0xee, 7, 0xee}))
	})

	It("should update a doubleword by byte mask", func() {
		Expect(m.UpdateWord(base+8, 0x1122334455667788, 0x0f)).To(Succeed())

		v, err := m.Load(base+8, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(0x55667788)))
	})

	It("should read consecutive words", func() {
		Expect(m.UpdateWord(base+0x40, 1, 0xff)).To(Succeed())
		Expect(m.UpdateWord(base+0x48, 2, 0xff)).To(Succeed())

		words, err := m.ReadWords(base+0x40, state.RefillWords)
		Expect(err).NotTo(HaveOccurred())
		Expect(words).To(HaveLen(8))
		Expect(words[:2]).To(Equal([]uint64{1, 2}))
	})

	It("should reject accesses outside the window", func() {
		_, err := m.Read(base-8, 8)
		Expect(err).To(MatchError(goldenmem.ErrOutOfRange))
		Expect(m.UpdateWord(base+0x10000, 1, 0xff)).To(MatchError(goldenmem.ErrOutOfRange))
	})
})

var _ = Describe("Atomic responses", func() {
	var m *goldenmem.Memory

	BeforeEach(func() {
		m = goldenmem.New(base, 0x10000)
		Expect(m.UpdateWord(base, 0x0000000500000007, 0xff)).To(Succeed())
	})

	It("should check and apply a doubleword add", func() {
		ev := &state.AtomicEvent{
			Resp: true, Addr: base, Mask: 0xff,
			Fuop: state.FuopAdd | state.FuopDouble,
			Data: 3, Out: 0x0000000500000007,
		}

		golden, ok, err := m.CheckAtomic(ev)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(golden).To(Equal(uint64(0x0000000500000007)))

		Expect(m.ApplyAtomic(ev)).To(Succeed())
		v, _ := m.Load(base, 8)
		Expect(v).To(Equal(uint64(0x000000050000000a)))
	})

	It("should operate on the upper word for mask 0xf0", func() {
		ev := &state.AtomicEvent{
			Resp: true, Addr: base + 4, Mask: 0xf0,
			Fuop: state.FuopSwap, Data: 9, Out: 5,
		}

		_, ok, err := m.CheckAtomic(ev)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		Expect(m.ApplyAtomic(ev)).To(Succeed())
		v, _ := m.Load(base, 8)
		Expect(v).To(Equal(uint64(0x0000000900000007)))
	})

	It("should compare word minimums as signed", func() {
		Expect(m.UpdateWord(base, 0xfffffffe, 0x0f)).To(Succeed())
		ev := &state.AtomicEvent{
			Resp: true, Addr: base, Mask: 0x0f,
			Fuop: state.FuopMin, Data: 1, Out: 0xfffffffffffffffe,
		}

		_, ok, err := m.CheckAtomic(ev)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		Expect(m.ApplyAtomic(ev)).To(Succeed())
		v, _ := m.Load(base, 4)
		Expect(v).To(Equal(uint64(0xfffffffe)))
	})

	It("should report a returned value that differs from golden memory", func() {
		ev := &state.AtomicEvent{
			Resp: true, Addr: base, Mask: 0xff,
			Fuop: state.FuopOr | state.FuopDouble, Data: 1, Out: 42,
		}

		golden, ok, err := m.CheckAtomic(ev)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(golden).To(Equal(uint64(0x0000000500000007)))
	})

	It("should not compare LR/SC responses", func() {
		ev := &state.AtomicEvent{
			Resp: true, Addr: base, Mask: 0xff,
			Fuop: state.FuopSC | state.FuopDouble, Data: 1, Out: 42,
		}

		_, ok, err := m.CheckAtomic(ev)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		Expect(m.ApplyAtomic(ev)).To(Succeed())
		v, _ := m.Load(base, 8)
		Expect(v).To(Equal(uint64(1)))
	})

	It("should reject unsupported masks and fuops", func() {
		_, _, err := m.CheckAtomic(&state.AtomicEvent{Addr: base, Mask: 0x03})
		Expect(err).To(MatchError(goldenmem.ErrAtomicMask))

		err = m.ApplyAtomic(&state.AtomicEvent{Addr: base, Mask: 0xff, Fuop: 0o77})
		Expect(err).To(MatchError(goldenmem.ErrAtomicFuop))
	})
})
