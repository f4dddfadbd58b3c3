// Package trace records the most recent retirement groups and instructions
// of a core in fixed-capacity ring buffers. The buffers are only read when a
// run fails; they never influence comparison.
package trace

import (
	"fmt"
	"io"
)

// RetireKind classifies an instruction record.
type RetireKind uint8

// Retirement kinds. Abnormal records (interrupt, exception) carry the cause
// in the WData field.
const (
	RetNormal RetireKind = iota
	RetInterrupt
	RetException
)

func (k RetireKind) String() string {
	switch k {
	case RetInterrupt:
		return "interrupt"
	case RetException:
		return "exception"
	default:
		return "normal"
	}
}

// GroupRecord is one retirement group: the PC of its first instruction and
// the number of instructions it retired.
type GroupRecord struct {
	PC    uint64
	Count uint32
}

// InstRecord is one retired or abnormally terminated instruction.
type InstRecord struct {
	PC    uint64
	Inst  uint32
	WEn   bool
	WDest uint8
	WData uint64
	Skip  bool
	Kind  RetireKind
}

// Buffers holds the group and instruction ring buffers of one core.
type Buffers struct {
	groups   []GroupRecord
	groupPtr int

	insts   []InstRecord
	instPtr int
}

// New creates ring buffers with the given capacities.
func New(groupSize, instSize int) *Buffers {
	return &Buffers{
		groups: make([]GroupRecord, groupSize),
		insts:  make([]InstRecord, instSize),
	}
}

// RecordGroup appends a retirement group, overwriting the oldest one when
// the buffer is full.
func (b *Buffers) RecordGroup(pc uint64, count uint32) {
	b.groups[b.groupPtr] = GroupRecord{PC: pc, Count: count}
	b.groupPtr = (b.groupPtr + 1) % len(b.groups)
}

// RecordInst appends a normally retired instruction.
func (b *Buffers) RecordInst(pc uint64, inst uint32, wen bool, wdest uint8, wdata uint64, skip bool) {
	b.push(InstRecord{
		PC:    pc,
		Inst:  inst,
		WEn:   wen,
		WDest: wdest,
		WData: wdata,
		Skip:  skip,
		Kind:  RetNormal,
	})
}

// RecordAbnormalInst appends an interrupted or faulting instruction. The
// cause is stored in place of the write-back data.
func (b *Buffers) RecordAbnormalInst(pc uint64, inst uint32, kind RetireKind, cause uint64) {
	b.push(InstRecord{
		PC:    pc,
		Inst:  inst,
		WData: cause,
		Kind:  kind,
	})
}

func (b *Buffers) push(r InstRecord) {
	b.insts[b.instPtr] = r
	b.instPtr = (b.instPtr + 1) % len(b.insts)
}

// Groups returns the group records from oldest to newest. Slots never
// written are returned as zero records.
func (b *Buffers) Groups() []GroupRecord {
	out := make([]GroupRecord, 0, len(b.groups))
	out = append(out, b.groups[b.groupPtr:]...)
	return append(out, b.groups[:b.groupPtr]...)
}

// Insts returns the instruction records from oldest to newest.
func (b *Buffers) Insts() []InstRecord {
	out := make([]InstRecord, 0, len(b.insts))
	out = append(out, b.insts[b.instPtr:]...)
	return append(out, b.insts[:b.instPtr]...)
}

// Display writes both buffers in storage order, marking the most recent
// entry of each.
func (b *Buffers) Display(w io.Writer, coreID int) {
	_, _ = fmt.Fprintf(w, "\n============== Commit Group Trace (Core %d) ==============\n", coreID)
	last := (b.groupPtr + len(b.groups) - 1) % len(b.groups)
	for i, g := range b.groups {
		_, _ = fmt.Fprintf(w, "commit group [%02d]: pc %010x cmtcnt %d%s\n",
			i, g.PC, g.Count, marker(i == last))
	}

	_, _ = fmt.Fprintf(w, "\n============== Commit Instr Trace ==============\n")
	last = (b.instPtr + len(b.insts) - 1) % len(b.insts)
	for i, r := range b.insts {
		switch r.Kind {
		case RetNormal:
			wen := 0
			if r.WEn {
				wen = 1
			}
			skip := ""
			if r.Skip {
				skip = " (skip)"
			}
			_, _ = fmt.Fprintf(w, "commit inst [%02d]: pc %010x inst %08x wen %x dst %08x data %016x%s%s\n",
				i, r.PC, r.Inst, wen, r.WDest, r.WData, skip, marker(i == last))
		default:
			_, _ = fmt.Fprintf(w, "commit inst [%02d]: pc %010x inst %08x %s %016x%s\n",
				i, r.PC, r.Inst, r.Kind, r.WData, marker(i == last))
		}
	}
}

func marker(last bool) string {
	if last {
		return " <--"
	}
	return ""
}
