package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/difftest/emu"
)

var _ = Describe("Memory", func() {
	var m *emu.Memory

	BeforeEach(func() {
		m = emu.NewMemory(0x1000, 0x100)
	})

	It("should report its window", func() {
		Expect(m.Contains(0x1000, 8)).To(BeTrue())
		Expect(m.Contains(0x10f8, 8)).To(BeTrue())
		Expect(m.Contains(0x10f9, 8)).To(BeFalse())
		Expect(m.Contains(0xfff, 1)).To(BeFalse())
		Expect(m.Contains(0x1000, 0x101)).To(BeFalse())
	})

	It("should store and load little-endian values", func() {
		Expect(m.Store(0x1010, 4, 0xaabbccdd)).To(Succeed())

		Expect(m.Read8(0x1010)).To(Equal(uint8(0xdd)))
		Expect(m.Read8(0x1013)).To(Equal(uint8(0xaa)))

		v, err := m.Load(0x1010, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(0xccdd)))
	})

	It("should only write the low bytes of a value", func() {
		Expect(m.Store(0x1020, 8, 0)).To(Succeed())
		Expect(m.Store(0x1020, 1, 0x1234)).To(Succeed())

		Expect(m.Read64(0x1020)).To(Equal(uint64(0x34)))
	})

	It("should reject out-of-range accesses", func() {
		_, err := m.Read(0x2000, 4)
		Expect(err).To(MatchError(emu.ErrOutOfRange))

		Expect(m.Write(0x10fe, []byte{1, 2, 3, 4})).To(MatchError(emu.ErrOutOfRange))
		Expect(m.Read64(0x2000)).To(Equal(uint64(0)))
	})
})
