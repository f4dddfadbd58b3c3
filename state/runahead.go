package state

// RunaheadEvent is one speculatively executed instruction. Branch events
// open a new checkpoint identified by CheckpointID.
type RunaheadEvent struct {
	Valid        bool
	Branch       bool
	MayReplay    bool
	PC           uint64
	CheckpointID uint64
}

// RunaheadCommitEvent confirms that a speculatively executed instruction
// retired.
type RunaheadCommitEvent struct {
	Valid  bool
	Branch bool
	PC     uint64
}

// RunaheadRedirectEvent steers speculation back to the checkpoint
// CheckpointID, whose branch at PC resolved to TargetPC.
type RunaheadRedirectEvent struct {
	Valid        bool
	PC           uint64
	TargetPC     uint64
	CheckpointID uint64
}

// RunaheadMemdepPred is a memory-dependency prediction for the load or
// store at PC. OracleVAddr is filled by the engine.
type RunaheadMemdepPred struct {
	Valid       bool
	IsLoad      bool
	NeedWait    bool
	PC          uint64
	OracleVAddr uint64
}
