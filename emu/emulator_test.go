package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/difftest/emu"
	"github.com/sarchlab/difftest/insts"
)

const (
	base = emu.DefaultMemoryBase
	data = base + 0x1000
)

var _ = Describe("Emulator", func() {
	var e *emu.Emulator

	load := func(words ...uint32) {
		Expect(e.LoadProgram(base, insts.Program(words...))).To(Succeed())
	}

	BeforeEach(func() {
		e = emu.NewEmulator()
	})

	Describe("NewEmulator", func() {
		It("should create an emulator in machine mode", func() {
			Expect(e.RegFile()).NotTo(BeNil())
			Expect(e.Memory()).NotTo(BeNil())
			Expect(e.Memory().Base()).To(Equal(base))
			Expect(e.CSR().Priv).To(Equal(emu.PrivM))
		})

		It("should report the hart id", func() {
			e = emu.NewEmulator(emu.WithHartID(3))
			Expect(e.CSR().Read(emu.CSRMHartID)).To(Equal(uint64(3)))
		})
	})

	Describe("LoadProgram", func() {
		It("should set the PC and copy the image", func() {
			load(0x00100513)

			Expect(e.RegFile().PC).To(Equal(base))
			Expect(e.Memory().Read8(base)).To(Equal(uint8(0x13)))
			Expect(e.Memory().Read32(base)).To(Equal(uint32(0x00100513)))
		})

		It("should reject images outside memory", func() {
			Expect(e.LoadProgram(0x1000, insts.Program(insts.NOP()))).
				To(MatchError(emu.ErrOutOfRange))
		})
	})

	Describe("Step", func() {
		Context("ALU instructions", func() {
			It("should execute ADDI and report the write-back", func() {
				load(insts.ADDI(10, 0, 42))

				result := e.Step()

				Expect(result.Err).To(BeNil())
				Expect(result.Exception).To(BeNil())
				Expect(result.PC).To(Equal(base))
				Expect(result.WroteGPR).To(BeTrue())
				Expect(result.Rd).To(Equal(uint8(10)))
				Expect(e.RegFile().ReadReg(10)).To(Equal(uint64(42)))
				Expect(e.RegFile().PC).To(Equal(base + 4))
			})

			It("should keep x0 hardwired to zero", func() {
				load(insts.ADDI(0, 0, 7))

				result := e.Step()

				Expect(result.WroteGPR).To(BeFalse())
				Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(0)))
			})

			It("should execute SUB and MUL", func() {
				load(insts.SUB(10, 11, 12), insts.MUL(13, 11, 12))
				e.RegFile().WriteReg(11, 10)
				e.RegFile().WriteReg(12, 3)

				e.Step()
				e.Step()

				Expect(e.RegFile().ReadReg(10)).To(Equal(uint64(7)))
				Expect(e.RegFile().ReadReg(13)).To(Equal(uint64(30)))
			})

			It("should sign-extend ADDIW results", func() {
				load(insts.EncodeI(insts.OpcodeOpImm32, 0, 2, 1, 1))
				e.RegFile().WriteReg(1, 0x7fffffff)

				e.Step()

				Expect(e.RegFile().ReadReg(2)).To(Equal(uint64(0xffffffff80000000)))
			})

			It("should not trap on division by zero", func() {
				load(insts.EncodeR(insts.OpcodeOp, 4, 0x01, 3, 1, 2))
				e.RegFile().WriteReg(1, 100)

				result := e.Step()

				Expect(result.Exception).To(BeNil())
				Expect(e.RegFile().ReadReg(3)).To(Equal(^uint64(0)))
			})

			It("should compute the signed high product", func() {
				load(insts.EncodeR(insts.OpcodeOp, 1, 0x01, 3, 1, 2))
				e.RegFile().WriteReg(1, ^uint64(0))
				e.RegFile().WriteReg(2, ^uint64(0))

				e.Step()

				Expect(e.RegFile().ReadReg(3)).To(Equal(uint64(0)))
			})
		})

		Context("Load/Store instructions", func() {
			It("should store and load a doubleword", func() {
				load(insts.SD(12, 11, 8), insts.LD(10, 11, 8))
				e.RegFile().WriteReg(11, data)
				e.RegFile().WriteReg(12, 0x123456789abcdef0)

				result := e.Step()
				Expect(result.Mem.Kind).To(Equal(emu.MemStore))
				Expect(result.Mem.Addr).To(Equal(data + 8))

				result = e.Step()
				Expect(result.Mem.Kind).To(Equal(emu.MemLoad))
				Expect(e.RegFile().ReadReg(10)).To(Equal(uint64(0x123456789abcdef0)))
				Expect(e.Memory().Read64(data + 8)).To(Equal(uint64(0x123456789abcdef0)))
			})

			It("should sign-extend LW", func() {
				load(insts.LW(10, 11, 0))
				e.RegFile().WriteReg(11, data)
				Expect(e.Memory().Store(data, 4, 0x80000000)).To(Succeed())

				e.Step()

				Expect(e.RegFile().ReadReg(10)).To(Equal(uint64(0xffffffff80000000)))
			})

			It("should raise a load access fault outside memory", func() {
				load(insts.LD(10, 11, 0))
				e.RegFile().WriteReg(11, 0x1000)

				result := e.Step()

				Expect(result.Exception).NotTo(BeNil())
				Expect(result.Exception.Cause).To(Equal(emu.CauseLoadAccessFault))
				Expect(result.Exception.TVal).To(Equal(uint64(0x1000)))
				Expect(result.WroteGPR).To(BeFalse())
				Expect(e.CSR().Read(emu.CSRMEPC)).To(Equal(base))
				Expect(e.CSR().Read(emu.CSRMTVal)).To(Equal(uint64(0x1000)))
			})

			It("should record committed stores by byte lane", func() {
				e = emu.NewEmulator(emu.WithStoreQueue())
				load(insts.SW(12, 11, 4))
				e.RegFile().WriteReg(11, data)
				e.RegFile().WriteReg(12, 0xdeadbeef)

				e.Step()

				rec, ok := e.LSU().PopStore()
				Expect(ok).To(BeTrue())
				Expect(rec).To(Equal(emu.StoreRecord{
					Addr: data,
					Data: 0xdeadbeef << 32,
					Mask: 0xf0,
				}))

				_, ok = e.LSU().PopStore()
				Expect(ok).To(BeFalse())
			})

			It("should not record stores unless enabled", func() {
				load(insts.SD(12, 11, 0))
				e.RegFile().WriteReg(11, data)

				e.Step()

				Expect(e.LSU().PendingStores()).To(Equal(0))
			})
		})

		Context("Floating-point moves", func() {
			It("should load a double into an FP register", func() {
				load(insts.FLD(10, 11, 0), insts.FMVDX(11, 12))
				e.RegFile().WriteReg(11, data)
				e.RegFile().WriteReg(12, 0x3ff0000000000000)
				Expect(e.Memory().Store(data, 8, 0x400921fb54442d18)).To(Succeed())

				result := e.Step()
				Expect(result.WroteFPR).To(BeTrue())
				Expect(result.WroteGPR).To(BeFalse())
				Expect(e.RegFile().ReadFReg(10)).To(Equal(uint64(0x400921fb54442d18)))

				e.Step()
				Expect(e.RegFile().ReadFReg(11)).To(Equal(uint64(0x3ff0000000000000)))
			})
		})

		Context("Branch instructions", func() {
			It("should take BEQ when equal", func() {
				load(insts.BEQ(10, 11, 16))

				result := e.Step()

				Expect(result.Branch).To(BeTrue())
				Expect(e.RegFile().PC).To(Equal(base + 16))
			})

			It("should fall through BNE when equal", func() {
				load(insts.BNE(10, 11, 16))

				e.Step()

				Expect(e.RegFile().PC).To(Equal(base + 4))
			})

			It("should link and jump with JAL and JALR", func() {
				load(insts.JAL(1, 8), insts.NOP(), insts.JALR(0, 1, 0))

				e.Step()
				Expect(e.RegFile().ReadReg(1)).To(Equal(base + 4))
				Expect(e.RegFile().PC).To(Equal(base + 8))

				e.Step()
				Expect(e.RegFile().PC).To(Equal(base + 4))
			})
		})

		Context("Atomic instructions", func() {
			BeforeEach(func() {
				e.RegFile().WriteReg(11, data)
				e.RegFile().WriteReg(12, 9)
				Expect(e.Memory().Store(data, 8, 5)).To(Succeed())
			})

			It("should succeed SC after LR to the same address", func() {
				load(
					insts.AMO(insts.AMOFunct5LR, true, 10, 11, 0),
					insts.AMO(insts.AMOFunct5SC, true, 13, 11, 12),
				)

				result := e.Step()
				Expect(result.Mem.Kind).To(Equal(emu.MemLR))
				Expect(e.RegFile().ReadReg(10)).To(Equal(uint64(5)))

				result = e.Step()
				Expect(result.Mem.Kind).To(Equal(emu.MemSC))
				Expect(result.Mem.Success).To(BeTrue())
				Expect(e.RegFile().ReadReg(13)).To(Equal(uint64(0)))
				Expect(e.Memory().Read64(data)).To(Equal(uint64(9)))
			})

			It("should fail SC without a reservation", func() {
				load(insts.AMO(insts.AMOFunct5SC, true, 13, 11, 12))

				result := e.Step()

				Expect(result.Mem.Success).To(BeFalse())
				Expect(e.RegFile().ReadReg(13)).To(Equal(uint64(1)))
				Expect(e.Memory().Read64(data)).To(Equal(uint64(5)))
			})

			It("should honor an overridden reservation", func() {
				load(
					insts.AMO(insts.AMOFunct5LR, true, 10, 11, 0),
					insts.AMO(insts.AMOFunct5SC, true, 13, 11, 12),
				)

				e.Step()
				addr, valid := e.LSU().Reservation()
				Expect(valid).To(BeTrue())
				Expect(addr).To(Equal(data))

				e.LSU().SetReservationValid(false)
				e.Step()

				Expect(e.RegFile().ReadReg(13)).To(Equal(uint64(1)))
			})

			It("should execute AMOADD.D", func() {
				load(insts.AMO(insts.AMOFunct5ADD, true, 10, 11, 12))

				result := e.Step()

				Expect(result.Mem.Kind).To(Equal(emu.MemAMO))
				Expect(result.Mem.Old).To(Equal(uint64(5)))
				Expect(result.Mem.Value).To(Equal(uint64(9)))
				Expect(e.RegFile().ReadReg(10)).To(Equal(uint64(5)))
				Expect(e.Memory().Read64(data)).To(Equal(uint64(14)))
			})

			It("should sign-extend AMOMAX.W results", func() {
				Expect(e.Memory().Store(data, 4, 0xfffffffe)).To(Succeed())
				e.RegFile().WriteReg(12, 1)
				load(insts.AMO(insts.AMOFunct5MAX, false, 10, 11, 12))

				e.Step()

				Expect(e.RegFile().ReadReg(10)).To(Equal(uint64(0xfffffffffffffffe)))
				Expect(e.Memory().Read32(data)).To(Equal(uint32(1)))
			})

			It("should raise access faults outside memory without writing rd", func() {
				e.RegFile().WriteReg(11, 0x1000)
				e.RegFile().WriteReg(10, 77)
				load(insts.AMO(insts.AMOFunct5ADD, true, 10, 11, 12))

				result := e.Step()

				Expect(result.Exception).NotTo(BeNil())
				Expect(result.Exception.Cause).To(Equal(emu.CauseStoreAccessFault))
				Expect(result.Exception.TVal).To(Equal(uint64(0x1000)))
				Expect(e.RegFile().ReadReg(10)).To(Equal(uint64(77)))
			})

			It("should raise a load access fault for LR outside memory", func() {
				e.RegFile().WriteReg(11, 0x1000)
				load(insts.AMO(insts.AMOFunct5LR, true, 10, 11, 0))

				result := e.Step()

				Expect(result.Exception).NotTo(BeNil())
				Expect(result.Exception.Cause).To(Equal(emu.CauseLoadAccessFault))
				_, valid := e.LSU().Reservation()
				Expect(valid).To(BeFalse())
			})

			It("should raise a misaligned exception", func() {
				e.RegFile().WriteReg(11, data+4)
				load(insts.AMO(insts.AMOFunct5ADD, true, 10, 11, 12))

				result := e.Step()

				Expect(result.Exception).NotTo(BeNil())
				Expect(result.Exception.Cause).To(Equal(emu.CauseStoreMisaligned))
			})
		})

		Context("System instructions", func() {
			It("should swap a CSR with CSRRW", func() {
				load(insts.CSRRW(5, emu.CSRMScratch, 10))
				e.RegFile().WriteReg(10, 0xabcd)
				e.CSR().Write(emu.CSRMScratch, 0x1234)

				e.Step()

				Expect(e.RegFile().ReadReg(5)).To(Equal(uint64(0x1234)))
				Expect(e.CSR().Read(emu.CSRMScratch)).To(Equal(uint64(0xabcd)))
			})

			It("should expose sstatus as a view of mstatus", func() {
				e.CSR().Write(emu.CSRMStatus, 0x1822)

				Expect(e.CSR().Read(emu.CSRSStatus)).To(Equal(uint64(0x22)))
			})

			It("should trap ECALL to machine mode and return with MRET", func() {
				load(
					insts.ECALL(), insts.NOP(), insts.NOP(), insts.NOP(),
					insts.CSRRS(5, emu.CSRMEPC, 0),
					insts.ADDI(5, 5, 4),
					insts.CSRRW(0, emu.CSRMEPC, 5),
					insts.MRET(),
				)
				e.CSR().Write(emu.CSRMTVec, base+0x10)

				result := e.Step()
				Expect(result.Exception.Cause).To(Equal(emu.CauseEcallM))
				Expect(e.RegFile().PC).To(Equal(base + 0x10))
				Expect(e.CSR().Read(emu.CSRMCause)).To(Equal(emu.CauseEcallM))
				Expect(e.CSR().Read(emu.CSRMEPC)).To(Equal(base))

				for i := 0; i < 4; i++ {
					e.Step()
				}
				Expect(e.RegFile().PC).To(Equal(base + 4))
				Expect(e.CSR().Priv).To(Equal(emu.PrivM))
			})

			It("should delegate exceptions to supervisor mode", func() {
				load(insts.ECALL())
				e.CSR().Write(emu.CSRMEDeleg, 1<<emu.CauseEcallS)
				e.CSR().Write(emu.CSRSTVec, base+0x40)
				e.CSR().Priv = emu.PrivS

				e.Step()

				Expect(e.CSR().Priv).To(Equal(emu.PrivS))
				Expect(e.CSR().Read(emu.CSRSCause)).To(Equal(emu.CauseEcallS))
				Expect(e.CSR().Read(emu.CSRSEPC)).To(Equal(base))
				Expect(e.CSR().Read(emu.CSRMStatus) & (1 << 8)).NotTo(BeZero())
				Expect(e.RegFile().PC).To(Equal(base + 0x40))
			})

			It("should reject machine CSRs from user mode", func() {
				word := insts.CSRRW(0, emu.CSRMScratch, 10)
				load(word)
				e.CSR().Priv = emu.PrivU

				result := e.Step()

				Expect(result.Exception.Cause).To(Equal(emu.CauseIllegalInst))
				Expect(e.CSR().Read(emu.CSRMTVal)).To(Equal(uint64(word)))
				Expect(e.CSR().Priv).To(Equal(emu.PrivM))
			})

			It("should treat undecodable words as illegal instructions", func() {
				load(0xffffffff)

				result := e.Step()

				Expect(result.Exception.Cause).To(Equal(emu.CauseIllegalInst))
				Expect(result.Exception.TVal).To(Equal(uint64(0xffffffff)))
			})

			It("should raise a fetch access fault outside memory", func() {
				e.RegFile().PC = 0x10

				result := e.Step()

				Expect(result.Exception.Cause).To(Equal(emu.CauseFetchAccessFault))
			})
		})

		Context("Trap instruction", func() {
			It("should halt with the exit code in a0", func() {
				load(insts.Trap())
				e.RegFile().WriteReg(10, 3)

				result := e.Step()

				Expect(result.Exited).To(BeTrue())
				Expect(result.ExitCode).To(Equal(int64(3)))
				Expect(e.Halted()).To(BeTrue())

				result = e.Step()
				Expect(result.Exited).To(BeTrue())
			})

			It("should run to completion", func() {
				load(insts.ADDI(10, 0, 7), insts.Trap())

				Expect(e.Run()).To(Equal(int64(7)))
				Expect(e.InstructionCount()).To(Equal(uint64(2)))
			})
		})

		It("should stop at the instruction limit", func() {
			e = emu.NewEmulator(emu.WithMaxInstructions(1))
			load(insts.NOP(), insts.NOP())

			Expect(e.Step().Err).To(BeNil())
			Expect(e.Step().Err).To(HaveOccurred())
		})
	})

	Describe("Trap injection", func() {
		It("should take a vectored interrupt", func() {
			load(insts.NOP())
			e.CSR().Write(emu.CSRMTVec, (base+0x100)|1)
			e.CSR().Write(emu.CSRMStatus, 1<<3)

			e.RaiseInterrupt(7)

			Expect(e.RegFile().PC).To(Equal(base + 0x100 + 28))
			Expect(e.CSR().Read(emu.CSRMCause)).To(Equal(7 | emu.InterruptBit))
			Expect(e.CSR().Read(emu.CSRMEPC)).To(Equal(base))
			status := e.CSR().Read(emu.CSRMStatus)
			Expect(status & (1 << 3)).To(BeZero())
			Expect(status & (1 << 7)).NotTo(BeZero())
		})

		It("should force a page fault with the given tval", func() {
			load(insts.LD(10, 11, 0))
			e.CSR().Write(emu.CSRMTVec, base+0x80)

			e.ForceException(emu.CauseLoadPageFault, 0xdead000)

			Expect(e.RegFile().PC).To(Equal(base + 0x80))
			Expect(e.CSR().Read(emu.CSRMCause)).To(Equal(emu.CauseLoadPageFault))
			Expect(e.CSR().Read(emu.CSRMTVal)).To(Equal(uint64(0xdead000)))
			Expect(e.RegFile().ReadReg(10)).To(Equal(uint64(0)))
		})
	})
})
