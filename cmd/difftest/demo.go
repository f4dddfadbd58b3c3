package main

import (
	"github.com/sarchlab/difftest/emu"
	"github.com/sarchlab/difftest/insts"
)

// demoProgram sums 10..1 into data+8*hartid, reads the sum back, bumps it
// atomically and exits with a0 = 0 when the read-back matched.
func demoProgram() []byte {
	return insts.Program(
		insts.AUIPC(1, 0x1000),
		insts.CSRRS(2, emu.CSRMHartID, 0),
		insts.ADDI(3, 0, 8),
		insts.MUL(4, 2, 3),
		insts.ADD(4, 4, 1),
		insts.ADDI(5, 0, 10),
		insts.ADDI(6, 0, 0),
		insts.ADD(6, 6, 5),
		insts.ADDI(5, 5, -1),
		insts.BNE(5, 0, -8),
		insts.SD(6, 4, 0),
		insts.LD(7, 4, 0),
		insts.ADDI(8, 0, 1),
		insts.AMO(insts.AMOFunct5ADD, true, 9, 4, 8),
		insts.SUB(10, 7, 6),
		insts.Trap(),
	)
}
