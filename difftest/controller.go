// Package difftest compares the committed architectural state of a
// processor under test (the DUT) against a reference simulator (REF), one
// synchronization tick at a time.
//
// The harness deposits one tick of DUT events through the collectors of a
// Controller and then calls Step. Step replays the tick on the reference
// proxy, compares the resulting states and the side-channel events, and
// reports the first divergence as a fatal failure.
package difftest

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/difftest/config"
	"github.com/sarchlab/difftest/goldenmem"
	"github.com/sarchlab/difftest/insts"
	"github.com/sarchlab/difftest/refproxy"
	"github.com/sarchlab/difftest/state"
	"github.com/sarchlab/difftest/trace"
)

const interruptBit uint64 = 1 << 63

// StepResult is the outcome of one tick.
type StepResult struct {
	// Terminated is set once the run is over, either because the DUT
	// trapped or because a check failed.
	Terminated bool

	// Trap is the trap record of a terminated run.
	Trap state.TrapEvent

	// Err is the failure that terminated the run. It is nil when the DUT
	// trapped on its own.
	Err error

	// Commits is the number of instructions confirmed in the tick.
	Commits int
}

type refillMark struct {
	valid bool
	addr  uint64
}

type debugWrite struct {
	addr uint64
	data []byte
}

// Controller synchronizes one DUT core with its reference proxy.
type Controller struct {
	sim.HookableBase

	id      int
	cfg     *config.Config
	layout  state.Layout
	proxy   refproxy.Proxy
	golden  *goldenmem.Memory
	decoder *insts.Decoder
	logger  logr.Logger
	out     io.Writer

	dut      *state.CoreState
	ref      *state.CoreState
	trace    *trace.Buffers
	runahead *RunaheadValidator

	enabled    bool
	committed  bool
	ticks      uint64
	lastCommit uint64
	instrCnt   uint64
	refThisPC  uint64

	progress  bool
	numCommit int
	accounted bool

	bootBank []uint64
	words    []uint64

	confirmed   map[uint64]byte
	lastRefill  [2]refillMark
	debugWrites []debugWrite

	trackedInst  uint64
	trackedValid bool

	trap state.TrapEvent
	err  error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the operational logger.
func WithLogger(l logr.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithOutput sets the writer failure dumps are written to. Defaults to
// os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Controller) {
		c.out = w
	}
}

// WithGoldenMemory shares a golden memory image. By default every
// controller owns one covering the physical memory range of the config.
func WithGoldenMemory(m *goldenmem.Memory) Option {
	return func(c *Controller) {
		c.golden = m
	}
}

// WithSpeculator enables run-ahead validation against s.
func WithSpeculator(s refproxy.Speculator) Option {
	return func(c *Controller) {
		c.runahead = NewRunaheadValidator(s)
	}
}

// NewController creates the controller of core id. The config is cloned.
func NewController(
	id int,
	cfg *config.Config,
	proxy refproxy.Proxy,
	opts ...Option,
) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid difftest config: %w", err)
	}

	c := &Controller{
		id:        id,
		cfg:       cfg.Clone(),
		layout:    state.Layout{DebugMode: cfg.DebugModeDiff},
		decoder:   insts.NewDecoder(),
		logger:    logr.Discard(),
		out:       os.Stdout,
		dut:       state.NewCoreState(cfg),
		ref:       state.NewCoreState(cfg),
		trace:     trace.New(cfg.GroupTraceSize, cfg.InstTraceSize),
		confirmed: make(map[uint64]byte),
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.SetProxy(proxy); err != nil {
		return nil, err
	}
	if c.golden == nil {
		c.golden = goldenmem.New(cfg.PMEMBase, cfg.PMEMSize)
	}
	if c.runahead != nil {
		c.runahead.core = id
		c.runahead.logger = c.logger
	}

	c.words = make([]uint64, c.layout.Size())
	c.bootBank = c.layout.Encode(nil, c.dut)

	return c, nil
}

// SetProxy replaces the reference proxy. Comparison is disabled until the
// next commit of the first instruction.
func (c *Controller) SetProxy(proxy refproxy.Proxy) error {
	if v := proxy.LayoutVersion(); v != state.LayoutVersion {
		return fmt.Errorf("reference proxy exchanges layout v%d, engine uses v%d",
			v, state.LayoutVersion)
	}

	c.proxy = proxy
	c.enabled = false
	return nil
}

// ID returns the core index.
func (c *Controller) ID() int {
	return c.id
}

// DUT returns the DUT-side snapshot.
func (c *Controller) DUT() *state.CoreState {
	return c.dut
}

// REF returns the REF-side snapshot as of the last compared tick.
func (c *Controller) REF() *state.CoreState {
	return c.ref
}

// Trace returns the diagnostic trace buffers.
func (c *Controller) Trace() *trace.Buffers {
	return c.trace
}

// GoldenMemory returns the golden memory image.
func (c *Controller) GoldenMemory() *goldenmem.Memory {
	return c.golden
}

// Runahead returns the run-ahead validator, or nil when run-ahead
// validation is disabled.
func (c *Controller) Runahead() *RunaheadValidator {
	return c.runahead
}

// Enabled reports whether the first instruction has committed.
func (c *Controller) Enabled() bool {
	return c.enabled
}

// Ticks returns the number of ticks stepped since reset.
func (c *Controller) Ticks() uint64 {
	return c.ticks
}

// InstrCount returns the number of instructions confirmed since reset.
func (c *Controller) InstrCount() uint64 {
	return c.instrCnt
}

// Trap returns the trap record. It is valid once the run terminated.
func (c *Controller) Trap() state.TrapEvent {
	return c.trap
}

// Err returns the failure that terminated the run, if any.
func (c *Controller) Err() error {
	return c.err
}

// TrackRefill reports every refill and store-buffer drain touching the
// line of pc. It has effect only when DebugRefill is enabled.
func (c *Controller) TrackRefill(pc uint64) {
	c.trackedInst = pc
	c.trackedValid = true
}

// DebugModeCopy queues bytes written by an external debug agent. They are
// written into the reference and the golden memory once the current tick
// passes its checks.
func (c *Controller) DebugModeCopy(addr uint64, data []byte) {
	c.debugWrites = append(c.debugWrites, debugWrite{
		addr: addr,
		data: append([]byte(nil), data...),
	})
}

// Step processes the tick deposited by the harness.
func (c *Controller) Step() StepResult {
	if c.trap.Valid {
		return c.result()
	}

	c.ticks++
	c.progress = false
	c.numCommit = 0
	c.accounted = false

	if err := c.checkTimeout(); err != nil {
		return c.fail(err)
	}

	if !c.enabled {
		if !c.firstInstCommitted() {
			c.bootBank = c.layout.Encode(c.bootBank[:0], c.dut)
			return c.finishTick()
		}
		if err := c.enable(); err != nil {
			return c.fail(err)
		}
	}

	if err := c.replay(); err != nil {
		return c.fail(err)
	}

	return c.finishTick()
}

func (c *Controller) firstInstCommitted() bool {
	first := &c.dut.Commit[0]
	return first.Valid && first.PC == c.cfg.FirstInstAddress
}

// enable copies the bank deposited on the tick before the first commit into
// the reference, with this_pc at the first instruction.
func (c *Controller) enable() error {
	copy(c.words, c.bootBank)
	c.words[c.layout.ThisPCIndex()] = c.cfg.FirstInstAddress

	if err := c.proxy.RegCopy(c.words, refproxy.DUTToREF); err != nil {
		return fmt.Errorf("core %d: enable difftest: %w", c.id, err)
	}
	if c.runahead != nil {
		if err := c.runahead.sync(c.words); err != nil {
			return fmt.Errorf("core %d: enable run-ahead: %w", c.id, err)
		}
	}

	c.refThisPC = c.cfg.FirstInstAddress
	c.enabled = true
	c.logger.Info("first instruction committed, difftest enabled",
		"core", c.id, "pc", hex(c.cfg.FirstInstAddress), "tick", c.ticks)
	return nil
}

func (c *Controller) checkTimeout() error {
	if !c.committed {
		if c.ticks > c.cfg.FirstCommitLimit {
			return &HangError{
				Core:        c.id,
				FirstCommit: true,
				Ticks:       c.ticks,
				Limit:       c.cfg.FirstCommitLimit,
			}
		}
		return nil
	}

	// A core waiting for an interrupt gets StuckLimit ticks after it
	// wakes up.
	if c.dut.Trap.HasWFI {
		c.lastCommit = c.ticks
	}

	if c.ticks > c.lastCommit+c.cfg.StuckLimit {
		// One more reference instruction shows where the reference would
		// have gone next.
		if err := c.proxy.Exec(1); err != nil {
			c.logger.Error(err, "reference exec after hang", "core", c.id)
		}
		return &HangError{
			Core:       c.id,
			Ticks:      c.ticks,
			LastCommit: c.lastCommit,
			Limit:      c.cfg.StuckLimit,
		}
	}
	return nil
}

func (c *Controller) replay() error {
	if c.dut.Event.Valid {
		c.dut.CSR.ThisPC = c.dut.Event.ExceptionPC
		if err := c.archEvent(); err != nil {
			return err
		}
	} else if c.dut.Commit[0].Valid {
		c.dut.CSR.ThisPC = c.dut.Commit[0].PC
	}

	for i := 0; i < len(c.dut.Commit) && c.dut.Commit[i].Valid; i++ {
		if err := c.commitSlot(i); err != nil {
			return err
		}
	}

	if err := c.checkSideChannels(); err != nil {
		return err
	}

	if c.runahead != nil {
		if err := c.runahead.Step(c.dut); err != nil {
			return err
		}
	}

	if c.progress {
		if err := c.compare(); err != nil {
			return err
		}
	}

	// Memory effects of a tick reach golden memory and the reference only
	// once every check of the tick has passed.
	return c.updateGoldenMemory()
}

func (c *Controller) archEvent() error {
	ev := &c.dut.Event

	if pc := c.proxy.PC(); pc != ev.ExceptionPC {
		return &MismatchError{
			Kind:    StateMismatch,
			Channel: "event",
			PC:      ev.ExceptionPC,
			Inst:    ev.ExceptionInst,
			Diffs:   []state.FieldDiff{fieldDiff("pc", ev.ExceptionPC, pc)},
		}
	}

	if ev.IsInterrupt() {
		c.proxy.RaiseIntr(uint64(ev.Interrupt) | interruptBit)
		c.trace.RecordAbnormalInst(ev.ExceptionPC, ev.ExceptionInst,
			trace.RetInterrupt, uint64(ev.Interrupt))
		c.progress = true
		return nil
	}

	cause := uint64(ev.Exception)
	var err error
	switch cause {
	case 12, 13, 15:
		tval := c.dut.CSR.MTVal
		if c.dut.CSR.PrivilegeMode == 1 {
			tval = c.dut.CSR.STVal
		}
		err = c.proxy.GuidedExec(cause, tval)
	default:
		err = c.proxy.Exec(1)
	}
	if err != nil {
		return fmt.Errorf("core %d: replay exception %d at 0x%x: %w",
			c.id, cause, ev.ExceptionPC, err)
	}

	c.trace.RecordAbnormalInst(ev.ExceptionPC, ev.ExceptionInst, trace.RetException, cause)
	c.progress = true
	return nil
}

func (c *Controller) commitSlot(i int) error {
	cm := &c.dut.Commit[i]
	wdata := c.dut.CommitData(i)

	if cm.Skip {
		if err := c.skipSlot(i, wdata); err != nil {
			return err
		}
	} else if err := c.execSlot(i, wdata); err != nil {
		return err
	}

	c.invoke(HookPosCommit, cm, CommitDetail{
		Core:  c.id,
		Tick:  c.ticks,
		Slot:  i,
		WData: wdata,
	})
	return nil
}

// skipSlot moves the reference past an instruction whose effects are not
// checked, taking the write-back value from the DUT.
func (c *Controller) skipSlot(i int, wdata uint64) error {
	cm := &c.dut.Commit[i]

	if err := c.proxy.RegCopy(c.words, refproxy.REFToDUT); err != nil {
		return fmt.Errorf("core %d: skip at 0x%x: %w", c.id, cm.PC, err)
	}

	next := cm.PC + 4
	if cm.IsRVC {
		next = cm.PC + 2
	}
	c.words[c.layout.ThisPCIndex()] = next
	if idx, ok := c.destIndex(cm); ok {
		c.words[idx] = wdata
	}

	if err := c.proxy.RegCopy(c.words, refproxy.DUTToREF); err != nil {
		return fmt.Errorf("core %d: skip at 0x%x: %w", c.id, cm.PC, err)
	}

	c.trace.RecordInst(cm.PC, cm.Inst, cm.Wen(), cm.WDest, wdata, true)
	c.numCommit++
	c.progress = true
	return nil
}

func (c *Controller) execSlot(i int, wdata uint64) error {
	cm := &c.dut.Commit[i]

	if pc := c.proxy.PC(); pc != cm.PC {
		return &MismatchError{
			Kind:    StateMismatch,
			Channel: "commit",
			PC:      cm.PC,
			Inst:    cm.Inst,
			Diffs:   []state.FieldDiff{fieldDiff("pc", cm.PC, pc)},
		}
	}

	if err := c.syncLRSC(cm); err != nil {
		return err
	}

	n := 1
	if cm.Fused {
		n = 2
	}
	if err := c.proxy.Exec(uint64(n)); err != nil {
		return fmt.Errorf("core %d: reference exec at 0x%x: %w", c.id, cm.PC, err)
	}

	c.trace.RecordInst(cm.PC, cm.Inst, cm.Wen(), cm.WDest, wdata, false)
	c.progress = true

	if err := c.checkWriteback(i, wdata); err != nil {
		return err
	}
	c.numCommit += n
	return nil
}

// destIndex returns the bank index of the register a slot writes.
func (c *Controller) destIndex(cm *state.InstrCommit) (int, bool) {
	switch {
	case cm.FPWen:
		return c.layout.FPROffset() + int(cm.WDest), true
	case cm.RFWen && cm.WDest != 0:
		return int(cm.WDest), true
	}
	return 0, false
}

func (c *Controller) checkWriteback(i int, wdata uint64) error {
	cm := &c.dut.Commit[i]
	idx, ok := c.destIndex(cm)
	if !ok {
		return nil
	}

	if err := c.proxy.RegCopy(c.words, refproxy.REFToDUT); err != nil {
		return fmt.Errorf("core %d: read reference registers: %w", c.id, err)
	}

	refData := c.words[idx]
	if refData != wdata {
		patched, err := c.resolveWriteback(i, idx, wdata, refData)
		if err != nil {
			return err
		}
		if !patched {
			return &MismatchError{
				Kind:    StateMismatch,
				Channel: "commit",
				PC:      cm.PC,
				Inst:    cm.Inst,
				Diffs:   []state.FieldDiff{{Index: idx, Name: c.layout.FieldName(idx), DUT: wdata, REF: refData}},
			}
		}
		refData = wdata
	}

	if cm.FPWen {
		c.ref.PhysRegs.FPR[cm.WPDest] = refData
	} else {
		c.ref.PhysRegs.GPR[cm.WPDest] = refData
	}
	return nil
}

// resolveWriteback decides whether a write-back difference is tolerated.
// Tolerated differences are patched into the reference.
func (c *Controller) resolveWriteback(i, idx int, wdata, refData uint64) (bool, error) {
	cm := &c.dut.Commit[i]

	switch {
	case c.debugExempt(i):
		c.logger.V(1).Info("debug memory access, reference patched",
			"core", c.id, "pc", hex(cm.PC), "dut", hex(wdata), "ref", hex(refData))
	case c.cfg.NumCores > 1:
		ok, err := c.rectifyLoad(i, wdata)
		if err != nil || !ok {
			return false, err
		}
	default:
		return false, nil
	}

	c.words[idx] = wdata
	if err := c.proxy.RegCopy(c.words, refproxy.DUTToREF); err != nil {
		return false, fmt.Errorf("core %d: patch reference at 0x%x: %w", c.id, cm.PC, err)
	}
	return true, nil
}

// debugExempt reports whether slot i accesses the debug-memory window.
func (c *Controller) debugExempt(i int) bool {
	if !c.cfg.DebugModeDiff {
		return false
	}

	cm := &c.dut.Commit[i]
	if !insts.IsLoadStore(cm.Inst) && !insts.IsTriggerCSR(cm.Inst) && !insts.IsDebugCSR(cm.Inst) {
		return false
	}

	if c.cfg.InDebugMem(cm.PC) {
		return true
	}
	ld := &c.dut.Load[i]
	return ld.Valid && c.cfg.InDebugMem(ld.PAddr)
}

// rectifyLoad accepts a load whose value was changed by another core: the
// DUT value must equal golden memory, which is then copied into the
// reference.
func (c *Controller) rectifyLoad(i int, wdata uint64) (bool, error) {
	ld := &c.dut.Load[i]
	if !ld.Valid || (ld.FuType != state.FuTypeLoad && ld.FuType != state.FuTypeMou) {
		return false, nil
	}

	size, signed := ld.LoadSize()
	if size == 0 || !c.golden.Contains(ld.PAddr, uint64(size)) {
		return false, nil
	}

	raw, err := c.golden.Read(ld.PAddr, uint64(size))
	if err != nil {
		return false, err
	}

	var golden uint64
	for j := size - 1; j >= 0; j-- {
		golden = golden<<8 | uint64(raw[j])
	}
	if signed {
		shift := 64 - 8*uint(size)
		golden = uint64(int64(golden<<shift) >> shift)
	}
	if golden != wdata {
		return false, nil
	}

	if err := c.proxy.MemCopy(ld.PAddr, raw, refproxy.DUTToREF); err != nil {
		return false, fmt.Errorf("core %d: rectify load at 0x%x: %w", c.id, ld.PAddr, err)
	}
	c.logger.V(1).Info("load rectified from golden memory",
		"core", c.id, "pc", hex(c.dut.Commit[i].PC), "paddr", hex(ld.PAddr))
	return true, nil
}

func (c *Controller) syncLRSC(cm *state.InstrCommit) error {
	lrsc := &c.dut.LRSC
	if !lrsc.Valid || c.decoder.Decode(cm.Inst).Op != insts.OpSC {
		return nil
	}

	if lrsc.Success && !c.proxy.Reservation() {
		return &MismatchError{
			Kind:    SideChannelCheckFailure,
			Channel: "lrsc",
			PC:      cm.PC,
			Inst:    cm.Inst,
			Diffs:   []state.FieldDiff{fieldDiff("reservation", 1, 0)},
		}
	}

	c.proxy.SetReservation(lrsc.Success)
	return nil
}

// compare fetches the reference bank and compares it against the DUT
// bank.
func (c *Controller) compare() error {
	if err := c.proxy.RegCopy(c.words, refproxy.REFToDUT); err != nil {
		return fmt.Errorf("core %d: read reference registers: %w", c.id, err)
	}
	if err := c.layout.Decode(c.words, c.ref); err != nil {
		return err
	}

	next := c.ref.CSR.ThisPC
	c.ref.CSR.ThisPC = c.refThisPC
	c.refThisPC = next

	c.account()

	diffs := c.layout.Diff(c.dut, c.ref)
	if len(diffs) == 0 {
		return nil
	}

	return &MismatchError{
		Kind:    StateMismatch,
		Channel: "regs",
		PC:      c.dut.CSR.ThisPC,
		Inst:    c.dut.Commit[0].Inst,
		Diffs:   diffs,
	}
}

// account records the commits of this tick as progress.
func (c *Controller) account() {
	if c.accounted {
		return
	}
	c.accounted = true

	c.committed = true
	c.lastCommit = c.ticks
	c.instrCnt += uint64(c.numCommit)
	if c.numCommit > 0 {
		c.trace.RecordGroup(c.dut.CSR.ThisPC, uint32(c.numCommit))
	}
}

func (c *Controller) finishTick() StepResult {
	commits := c.numCommit

	if c.dut.Trap.Valid {
		c.trap = c.dut.Trap
		c.logger.Info("DUT trapped", "core", c.id, "code", c.trap.Code, "pc", hex(c.trap.PC))
		c.invoke(HookPosTrap, c.trap, nil)
		r := c.result()
		r.Commits = commits
		return r
	}

	c.dut.ClearStep()
	return StepResult{Commits: commits}
}

func (c *Controller) fail(err error) StepResult {
	var (
		mismatch *MismatchError
		hang     *HangError
	)

	code, pc := TrapAbort, c.dut.CSR.ThisPC
	switch {
	case errors.As(err, &mismatch):
		mismatch.Core = c.id
		if mismatch.PC == 0 {
			mismatch.PC = pc
		}
		code, pc = mismatch.TrapCode(), mismatch.PC
	case errors.As(err, &hang):
		code = TrapHang
	}

	// Slots before a failing one are confirmed.
	if c.numCommit > 0 {
		c.account()
	}

	c.err = err
	c.trap = state.TrapEvent{
		Valid:    true,
		Code:     code,
		PC:       pc,
		CycleCnt: c.ticks,
		InstrCnt: c.instrCnt,
	}

	c.logger.Error(err, "difftest failed", "core", c.id, "tick", c.ticks)
	c.invoke(HookPosMismatch, err, nil)
	c.invoke(HookPosTrap, c.trap, nil)
	c.Display()

	return c.result()
}

func (c *Controller) result() StepResult {
	return StepResult{Terminated: true, Trap: c.trap, Err: c.err}
}

func hex(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}
