package state

// Atomic operation encodings carried in AtomicEvent.Fuop. The low bit
// selects the doubleword variant.
const (
	FuopLR   uint8 = 0o02
	FuopSC   uint8 = 0o06
	FuopSwap uint8 = 0o12
	FuopAdd  uint8 = 0o16
	FuopXor  uint8 = 0o22
	FuopAnd  uint8 = 0o26
	FuopOr   uint8 = 0o32
	FuopMin  uint8 = 0o36
	FuopMax  uint8 = 0o42
	FuopMinU uint8 = 0o46
	FuopMaxU uint8 = 0o52

	FuopDouble uint8 = 0o01
)

// IsLRSCFuop reports whether fuop is a load-reserved or store-conditional.
func IsLRSCFuop(fuop uint8) bool {
	base := fuop &^ FuopDouble
	return base == FuopLR || base == FuopSC
}

// Load operation types carried in LoadEvent.OpType when FuType is
// FuTypeLoad. They follow the funct3 encoding of the load instructions.
const (
	LoadOpLB  uint8 = 0
	LoadOpLH  uint8 = 1
	LoadOpLW  uint8 = 2
	LoadOpLD  uint8 = 3
	LoadOpLBU uint8 = 4
	LoadOpLHU uint8 = 5
	LoadOpLWU uint8 = 6
)

// LoadSize returns the access size in bytes of a load event and whether the
// loaded value is sign-extended to 64 bits. It returns 0 for an unknown
// functional-unit or operation type.
func (l *LoadEvent) LoadSize() (size int, signed bool) {
	switch l.FuType {
	case FuTypeLoad:
		switch l.OpType {
		case LoadOpLB:
			return 1, true
		case LoadOpLH:
			return 2, true
		case LoadOpLW:
			return 4, true
		case LoadOpLD:
			return 8, false
		case LoadOpLBU:
			return 1, false
		case LoadOpLHU:
			return 2, false
		case LoadOpLWU:
			return 4, false
		}
	case FuTypeMou:
		if l.OpType%2 == 0 {
			return 4, true
		}
		return 8, false
	}
	return 0, false
}
