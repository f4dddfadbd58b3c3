package goldenmem

import (
	"errors"
	"fmt"

	"github.com/sarchlab/difftest/state"
)

// Atomic response errors.
var (
	ErrAtomicMask = errors.New("unsupported atomic mask")
	ErrAtomicFuop = errors.New("unknown atomic fuop")
)

// atomicView locates the operand of an atomic response: the doubleword to
// access and, for word operations, which half holds the operand.
type atomicView struct {
	addr  uint64
	word  bool
	upper bool
}

func viewOf(ev *state.AtomicEvent) (atomicView, error) {
	switch ev.Mask {
	case 0xff:
		return atomicView{addr: ev.Addr}, nil
	case 0x0f:
		return atomicView{addr: ev.Addr &^ 0x7, word: true}, nil
	case 0xf0:
		return atomicView{addr: ev.Addr &^ 0x7, word: true, upper: true}, nil
	}
	return atomicView{}, fmt.Errorf("%w 0x%x at 0x%x", ErrAtomicMask, ev.Mask, ev.Addr)
}

// CheckAtomic compares the value the atomic operation returned to the core
// against golden memory. LR/SC responses always match. It returns the
// golden operand and whether it matches ev.Out.
func (m *Memory) CheckAtomic(ev *state.AtomicEvent) (uint64, bool, error) {
	v, err := viewOf(ev)
	if err != nil {
		return 0, false, err
	}

	raw, err := m.Load(v.addr, 8)
	if err != nil {
		return 0, false, err
	}

	golden, out := raw, ev.Out
	if v.word {
		golden = raw & 0xffffffff
		if v.upper {
			golden = raw >> 32
		}
		out &= 0xffffffff
	}

	return golden, golden == out || state.IsLRSCFuop(ev.Fuop), nil
}

// ApplyAtomic writes the result of an atomic operation into golden memory.
// The result is computed from the returned value ev.Out and the source
// operand ev.Data.
func (m *Memory) ApplyAtomic(ev *state.AtomicEvent) error {
	v, err := viewOf(ev)
	if err != nil {
		return err
	}

	if !v.word {
		ret, err := atomicResult(ev.Fuop, ev.Out, ev.Data, 64)
		if err != nil {
			return err
		}
		return m.UpdateWord(v.addr, ret, ev.Mask)
	}

	ret, err := atomicResult(ev.Fuop, ev.Out&0xffffffff, ev.Data&0xffffffff, 32)
	if err != nil {
		return err
	}
	if v.upper {
		ret <<= 32
	}
	return m.UpdateWord(v.addr, ret, ev.Mask)
}

func atomicResult(fuop uint8, t, rs uint64, width uint) (uint64, error) {
	signed := func(x uint64) int64 {
		shift := 64 - width
		return int64(x<<shift) >> shift
	}

	var ret uint64
	switch fuop &^ state.FuopDouble {
	case state.FuopLR:
		ret = t
	case state.FuopSC, state.FuopSwap:
		ret = rs
	case state.FuopAdd:
		ret = t + rs
	case state.FuopXor:
		ret = t ^ rs
	case state.FuopAnd:
		ret = t & rs
	case state.FuopOr:
		ret = t | rs
	case state.FuopMin:
		ret = choose(signed(t) < signed(rs), t, rs)
	case state.FuopMax:
		ret = choose(signed(t) > signed(rs), t, rs)
	case state.FuopMinU:
		ret = choose(t < rs, t, rs)
	case state.FuopMaxU:
		ret = choose(t > rs, t, rs)
	default:
		return 0, fmt.Errorf("%w 0o%o", ErrAtomicFuop, fuop)
	}

	if width == 32 {
		ret &= 0xffffffff
	}
	return ret, nil
}

func choose(cond bool, a, b uint64) uint64 {
	if cond {
		return a
	}
	return b
}
