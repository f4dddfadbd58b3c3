package state

import "fmt"

// LayoutVersion identifies the word order of the register bank exchanged
// with a reference proxy. Both sides of the exchange must agree on it.
//
// Version 1 order: 32 GPRs, 32 FPRs, the CSRState fields in declaration
// order, then (debug mode only) the DebugModeState fields.
const LayoutVersion = 1

// Layout describes the register bank exchanged with a reference proxy as one
// contiguous sequence of 64-bit words.
type Layout struct {
	DebugMode bool
}

// Size returns the number of words in the bank.
func (l Layout) Size() int {
	n := 2*NumArchRegs + NumCSRWords
	if l.DebugMode {
		n += len(debugModeNames)
	}
	return n
}

// CSROffset returns the index of the first CSR word.
func (l Layout) CSROffset() int {
	return 2 * NumArchRegs
}

// FPROffset returns the index of the first floating-point register word.
func (l Layout) FPROffset() int {
	return NumArchRegs
}

// ThisPCIndex returns the index of CSRState.ThisPC.
func (l Layout) ThisPCIndex() int {
	return l.CSROffset()
}

// FieldName returns the name of word i.
func (l Layout) FieldName(i int) string {
	switch {
	case i < NumArchRegs:
		return gprNames[i]
	case i < 2*NumArchRegs:
		return fprNames[i-NumArchRegs]
	case i < 2*NumArchRegs+NumCSRWords:
		return csrNames[i-2*NumArchRegs]
	case i < l.Size():
		return debugModeNames[i-2*NumArchRegs-NumCSRWords]
	}
	return fmt.Sprintf("word%d", i)
}

// Encode appends the bank of s to dst and returns the extended slice.
func (l Layout) Encode(dst []uint64, s *CoreState) []uint64 {
	dst = append(dst, s.Regs.GPR[:]...)
	dst = append(dst, s.Regs.FPR[:]...)
	for _, w := range s.CSR.words() {
		dst = append(dst, *w)
	}
	if l.DebugMode {
		dm := s.DebugMode
		if dm == nil {
			dm = &DebugModeState{}
		}
		for _, w := range dm.words() {
			dst = append(dst, *w)
		}
	}
	return dst
}

// Decode overwrites the bank of s with words.
func (l Layout) Decode(words []uint64, s *CoreState) error {
	if len(words) != l.Size() {
		return fmt.Errorf("register bank layout v%d expects %d words, got %d",
			LayoutVersion, l.Size(), len(words))
	}

	copy(s.Regs.GPR[:], words[:NumArchRegs])
	copy(s.Regs.FPR[:], words[NumArchRegs:2*NumArchRegs])
	rest := words[2*NumArchRegs:]
	for i, w := range s.CSR.words() {
		*w = rest[i]
	}
	if l.DebugMode {
		if s.DebugMode == nil {
			s.DebugMode = &DebugModeState{}
		}
		rest = rest[NumCSRWords:]
		for i, w := range s.DebugMode.words() {
			*w = rest[i]
		}
	}
	return nil
}

// FieldDiff is one word that differs between two banks.
type FieldDiff struct {
	Index int
	Name  string
	DUT   uint64
	REF   uint64
}

// Diff compares the banks of dut and ref word by word.
func (l Layout) Diff(dut, ref *CoreState) []FieldDiff {
	d := l.Encode(make([]uint64, 0, l.Size()), dut)
	r := l.Encode(make([]uint64, 0, l.Size()), ref)

	var diffs []FieldDiff
	for i := range d {
		if d[i] != r[i] {
			diffs = append(diffs, FieldDiff{
				Index: i,
				Name:  l.FieldName(i),
				DUT:   d[i],
				REF:   r[i],
			})
		}
	}
	return diffs
}
