// Package dut provides an in-process design under test: an in-order core
// built on the functional emulator and the L1 cache models. Every cycle it
// retires a group of instructions, deposits their events into a difftest
// controller and steps the controller.
package dut

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/difftest/config"
	"github.com/sarchlab/difftest/difftest"
	"github.com/sarchlab/difftest/emu"
	"github.com/sarchlab/difftest/insts"
	"github.com/sarchlab/difftest/refproxy"
	"github.com/sarchlab/difftest/state"
	"github.com/sarchlab/difftest/timing/cache"
	"github.com/sarchlab/difftest/timing/latency"
	"github.com/sarchlab/difftest/timing/predictor"
)

// Interrupt is an external interrupt delivered once the core has retired
// At instructions.
type Interrupt struct {
	At    uint64
	Cause uint64
}

// Model is one DUT core.
type Model struct {
	cfg     *config.Config
	layout  state.Layout
	emu     *emu.Emulator
	view    *refproxy.EmuProxy
	ctrl    *difftest.Controller
	decoder *insts.Decoder
	logger  logr.Logger

	icacheCfg cache.Config
	dcacheCfg cache.Config
	icache    *cache.Cache
	dcache    *cache.Cache
	timingCfg *latency.TimingConfig
	timing    *latency.Table

	cycle     uint64
	booted    bool
	stall     uint64
	maxCycles uint64
	nextPhys  uint32

	faults     []*armedFault
	interrupts []Interrupt
	runahead   *speculation

	words []uint64
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithLogger sets the logger of the model.
func WithLogger(l logr.Logger) ModelOption {
	return func(m *Model) {
		m.logger = l
	}
}

// WithICache sets the geometry of the instruction cache.
func WithICache(c cache.Config) ModelOption {
	return func(m *Model) {
		m.icacheCfg = c
	}
}

// WithDCache sets the geometry of the data cache.
func WithDCache(c cache.Config) ModelOption {
	return func(m *Model) {
		m.dcacheCfg = c
	}
}

// WithLatency sets the execution latency of each instruction class.
func WithLatency(c *latency.TimingConfig) ModelOption {
	return func(m *Model) {
		m.timingCfg = c.Clone()
	}
}

// WithMaxCycles ends the run with TrapLimitExceeded after n cycles. A value
// of 0 means no limit.
func WithMaxCycles(n uint64) ModelOption {
	return func(m *Model) {
		m.maxCycles = n
	}
}

// WithInterrupt schedules an external interrupt.
func WithInterrupt(i Interrupt) ModelOption {
	return func(m *Model) {
		m.interrupts = append(m.interrupts, i)
	}
}

// WithFault injects a fault.
func WithFault(f Fault) ModelOption {
	return func(m *Model) {
		m.faults = append(m.faults, &armedFault{Fault: f})
	}
}

// WithRunahead reports every retired instruction as run-ahead execution
// as well. The stream follows the retired path exactly.
func WithRunahead() ModelOption {
	return func(m *Model) {
		m.runahead = &speculation{}
	}
}

// WithBranchPrediction reports run-ahead execution that follows a branch
// predictor. Every mispredicted conditional branch is first followed down
// the predicted path and redirected one cycle later.
func WithBranchPrediction(c predictor.Config) ModelOption {
	return func(m *Model) {
		m.runahead = &speculation{predictor: predictor.New(c)}
	}
}

// NewModel creates a core executing on e and reporting to ctrl. The
// emulator must hold the program with its PC at the entry point.
func NewModel(
	cfg *config.Config,
	e *emu.Emulator,
	ctrl *difftest.Controller,
	opts ...ModelOption,
) (*Model, error) {
	m := &Model{
		cfg:       cfg.Clone(),
		layout:    state.Layout{DebugMode: cfg.DebugModeDiff},
		emu:       e,
		ctrl:      ctrl,
		decoder:   insts.NewDecoder(),
		logger:    logr.Discard(),
		icacheCfg: cache.DefaultL1IConfig(),
		dcacheCfg: cache.DefaultL1DConfig(),
		timingCfg: latency.DefaultTimingConfig(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if err := m.icacheCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid icache config: %w", err)
	}
	if err := m.dcacheCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dcache config: %w", err)
	}
	if err := m.timingCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid timing config: %w", err)
	}
	m.timing = latency.NewTableWithConfig(m.timingCfg)

	backing := cache.NewMemoryBacking(e.Memory())
	m.icache = cache.New(m.icacheCfg, backing)
	m.dcache = cache.New(m.dcacheCfg, backing)
	m.view = refproxy.NewEmuProxy(e, m.layout)
	m.words = make([]uint64, m.layout.Size())

	if m.runahead != nil {
		m.runahead.width = cfg.RunaheadWidth
		m.runahead.start = cfg.FirstInstAddress
	}

	return m, nil
}

// Emulator returns the emulator the core executes on.
func (m *Model) Emulator() *emu.Emulator {
	return m.emu
}

// Controller returns the controller the core reports to.
func (m *Model) Controller() *difftest.Controller {
	return m.ctrl
}

// Cycle returns the number of cycles run.
func (m *Model) Cycle() uint64 {
	return m.cycle
}

// ICache returns the instruction cache.
func (m *Model) ICache() *cache.Cache {
	return m.icache
}

// DCache returns the data cache.
func (m *Model) DCache() *cache.Cache {
	return m.dcache
}

// BranchStats returns the run-ahead branch predictor statistics. It
// reports false when the model runs without a predictor.
func (m *Model) BranchStats() (predictor.Stats, bool) {
	if m.runahead == nil || m.runahead.predictor == nil {
		return predictor.Stats{}, false
	}
	return m.runahead.predictor.Stats(), true
}

// Tick runs one cycle and steps the controller. The first cycle only
// reports the reset state.
func (m *Model) Tick() (difftest.StepResult, error) {
	m.cycle++

	if m.maxCycles > 0 && m.cycle > m.maxCycles {
		*m.ctrl.TrapEvent() = state.TrapEvent{
			Valid:    true,
			Code:     difftest.TrapLimitExceeded,
			PC:       m.emu.RegFile().PC,
			CycleCnt: m.cycle,
			InstrCnt: m.emu.InstructionCount(),
		}
		return m.ctrl.Step(), nil
	}

	switch {
	case !m.booted:
		m.booted = true
	case m.stall > 0:
		m.stall--
	case m.stalled():
	default:
		if err := m.retire(); err != nil {
			return difftest.StepResult{}, err
		}
	}

	if err := m.deposit(); err != nil {
		return difftest.StepResult{}, err
	}
	m.corruptBank()

	if m.runahead != nil {
		m.runahead.emit(m.ctrl)
	}

	return m.ctrl.Step(), nil
}

// Run ticks until the run terminates.
func (m *Model) Run() (difftest.StepResult, error) {
	for {
		res, err := m.Tick()
		if err != nil || res.Terminated {
			return res, err
		}
	}
}

func (m *Model) deposit() error {
	if err := m.view.RegCopy(m.words, refproxy.REFToDUT); err != nil {
		return fmt.Errorf("read DUT registers: %w", err)
	}
	return m.layout.Decode(m.words, m.ctrl.DUT())
}
