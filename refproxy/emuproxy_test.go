package refproxy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/difftest/emu"
	"github.com/sarchlab/difftest/insts"
	"github.com/sarchlab/difftest/refproxy"
	"github.com/sarchlab/difftest/state"
)

const (
	base = emu.DefaultMemoryBase
	data = base + 0x1000
)

var _ = Describe("EmuProxy", func() {
	var (
		e      *emu.Emulator
		proxy  *refproxy.EmuProxy
		layout state.Layout
	)

	load := func(words ...uint32) {
		Expect(e.LoadProgram(base, insts.Program(words...))).To(Succeed())
	}

	bank := func() []uint64 {
		words := make([]uint64, layout.Size())
		Expect(proxy.RegCopy(words, refproxy.REFToDUT)).To(Succeed())
		return words
	}

	indexOf := func(name string) int {
		for i := 0; i < layout.Size(); i++ {
			if layout.FieldName(i) == name {
				return i
			}
		}
		Fail("no field " + name)
		return -1
	}

	BeforeEach(func() {
		e = emu.NewEmulator()
		layout = state.Layout{}
		proxy = refproxy.NewEmuProxy(e, layout,
			refproxy.WithLogger(GinkgoLogr), refproxy.WithStoreCommit())
	})

	It("should satisfy the speculator interface", func() {
		var s refproxy.Speculator = proxy
		Expect(s.LayoutVersion()).To(Equal(state.LayoutVersion))
	})

	Describe("RegCopy", func() {
		It("should reject a bank of the wrong size", func() {
			Expect(proxy.RegCopy(make([]uint64, 3), refproxy.DUTToREF)).
				NotTo(Succeed())
		})

		It("should read registers, PC and privilege", func() {
			load(insts.ADDI(5, 0, 9))
			e.RegFile().F[2] = 0x1234

			words := bank()
			Expect(words[5]).To(BeZero())
			Expect(words[layout.FPROffset()+2]).To(Equal(uint64(0x1234)))
			Expect(words[layout.ThisPCIndex()]).To(Equal(base))
			Expect(words[indexOf("mode")]).To(Equal(uint64(emu.PrivM)))
		})

		It("should write the bank into the emulator", func() {
			words := bank()
			words[0] = 77
			words[10] = 42
			words[layout.ThisPCIndex()] = base + 0x40
			words[indexOf("mtvec")] = base + 0x100
			words[indexOf("mode")] = uint64(emu.PrivS)
			words[indexOf("dlbound3")] = 0xabc

			Expect(proxy.RegCopy(words, refproxy.DUTToREF)).To(Succeed())

			Expect(e.RegFile().X[0]).To(BeZero())
			Expect(e.RegFile().X[10]).To(Equal(uint64(42)))
			Expect(proxy.PC()).To(Equal(base + 0x40))
			Expect(e.CSR().Read(emu.CSRMTVec)).To(Equal(base + 0x100))
			Expect(e.CSR().Priv).To(Equal(emu.PrivS))
			Expect(bank()[indexOf("dlbound3")]).To(Equal(uint64(0xabc)))
		})

		It("should round-trip the bank", func() {
			words := bank()
			words[3] = 3
			words[indexOf("mstatus")] = 0x1800
			words[indexOf("sepc")] = base + 8

			Expect(proxy.RegCopy(words, refproxy.DUTToREF)).To(Succeed())
			Expect(bank()).To(Equal(words))
		})

		It("should exchange the debug-mode bank", func() {
			layout = state.Layout{DebugMode: true}
			proxy = refproxy.NewEmuProxy(e, layout)

			words := bank()
			words[indexOf("debugMode")] = 1
			words[indexOf("dpc")] = base + 4
			Expect(proxy.RegCopy(words, refproxy.DUTToREF)).To(Succeed())

			Expect(e.CSR().Read(emu.CSRDPC)).To(Equal(base + 4))
			Expect(bank()[indexOf("debugMode")]).To(Equal(uint64(1)))
		})
	})

	Describe("MemCopy", func() {
		It("should write and read memory", func() {
			Expect(proxy.MemCopy(data, []byte{1, 2, 3}, refproxy.DUTToREF)).To(Succeed())

			buf := make([]byte, 3)
			Expect(proxy.MemCopy(data, buf, refproxy.REFToDUT)).To(Succeed())
			Expect(buf).To(Equal([]byte{1, 2, 3}))
		})

		It("should fail outside memory", func() {
			Expect(proxy.MemCopy(0x10, make([]byte, 4), refproxy.REFToDUT)).
				To(MatchError(emu.ErrOutOfRange))
		})
	})

	Describe("Exec", func() {
		It("should execute instructions and track memory accesses", func() {
			e.RegFile().WriteReg(1, data)
			load(
				insts.ADDI(2, 0, 5),
				insts.SD(2, 1, 0),
				insts.LD(3, 1, 0),
			)

			Expect(proxy.Exec(1)).To(Succeed())
			Expect(proxy.LastMemAccess().Valid).To(BeFalse())

			Expect(proxy.Exec(1)).To(Succeed())
			Expect(proxy.LastMemAccess()).To(Equal(refproxy.MemAccess{
				Valid: true, Addr: data, IsStore: true,
			}))

			Expect(proxy.Exec(1)).To(Succeed())
			Expect(proxy.LastMemAccess()).To(Equal(refproxy.MemAccess{
				Valid: true, Addr: data,
			}))
			Expect(e.RegFile().X[3]).To(Equal(uint64(5)))
		})

		It("should return the emulator error", func() {
			e = emu.NewEmulator(emu.WithMaxInstructions(1))
			proxy = refproxy.NewEmuProxy(e, layout)
			load(insts.NOP(), insts.NOP())

			Expect(proxy.Exec(2)).NotTo(Succeed())
		})
	})

	Describe("traps", func() {
		BeforeEach(func() {
			load(insts.NOP())
			e.CSR().Write(emu.CSRMTVec, base+0x200)
		})

		It("should take a guided page fault", func() {
			Expect(proxy.GuidedExec(emu.CauseLoadPageFault, 0x1234)).To(Succeed())

			Expect(proxy.PC()).To(Equal(base + 0x200))
			Expect(e.CSR().Read(emu.CSRMCause)).To(Equal(emu.CauseLoadPageFault))
			Expect(e.CSR().Read(emu.CSRMTVal)).To(Equal(uint64(0x1234)))
			Expect(e.CSR().Read(emu.CSRMEPC)).To(Equal(base))
		})

		It("should raise an interrupt with the interrupt bit set", func() {
			proxy.RaiseIntr(7 | emu.InterruptBit)

			Expect(proxy.PC()).To(Equal(base + 0x200))
			Expect(e.CSR().Read(emu.CSRMCause)).To(Equal(7 | emu.InterruptBit))
		})
	})

	Describe("StoreCommit", func() {
		It("should report committed stores in order", func() {
			e.RegFile().WriteReg(1, data)
			load(
				insts.ADDI(2, 0, 0x11),
				insts.SW(2, 1, 4),
				insts.SD(2, 1, 8),
			)
			Expect(proxy.Exec(3)).To(Succeed())

			sc, ok := proxy.StoreCommit()
			Expect(ok).To(BeTrue())
			Expect(sc).To(Equal(refproxy.StoreCommit{
				Addr: data, Data: 0x11 << 32, Mask: 0xf0,
			}))

			sc, ok = proxy.StoreCommit()
			Expect(ok).To(BeTrue())
			Expect(sc.Addr).To(Equal(data + 8))
			Expect(sc.Mask).To(Equal(uint8(0xff)))

			_, ok = proxy.StoreCommit()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Reservation", func() {
		It("should follow LR and the override", func() {
			e.RegFile().WriteReg(1, data)
			load(insts.AMO(insts.AMOFunct5LR, true, 2, 1, 0))
			Expect(proxy.Reservation()).To(BeFalse())

			Expect(proxy.Exec(1)).To(Succeed())
			Expect(proxy.Reservation()).To(BeTrue())

			proxy.SetReservation(false)
			Expect(proxy.Reservation()).To(BeFalse())
		})
	})

	It("should sync debug memory", func() {
		Expect(proxy.DebugMemSync(data, []byte{0xaa})).To(Succeed())
		Expect(e.Memory().Read8(data)).To(Equal(uint8(0xaa)))
	})

	Describe("snapshots", func() {
		BeforeEach(func() {
			load(
				insts.ADDI(1, 0, 1),
				insts.ADDI(1, 1, 1),
				insts.ADDI(1, 1, 1),
			)
		})

		It("should restore and discard newer snapshots", func() {
			first := proxy.Snapshot()
			Expect(proxy.Exec(1)).To(Succeed())
			second := proxy.Snapshot()
			Expect(proxy.Exec(2)).To(Succeed())
			Expect(e.RegFile().X[1]).To(Equal(uint64(3)))

			Expect(proxy.Restore(first)).To(Succeed())
			Expect(proxy.PC()).To(Equal(base))
			Expect(e.RegFile().X[1]).To(BeZero())

			Expect(proxy.Restore(second)).To(MatchError(emu.ErrUnknownSnapshot))
		})

		It("should forget released snapshots", func() {
			id := proxy.Snapshot()
			proxy.Release(id)

			Expect(e.OutstandingSnapshots()).To(BeZero())
			Expect(proxy.Restore(id)).To(MatchError(emu.ErrUnknownSnapshot))
		})
	})
})
