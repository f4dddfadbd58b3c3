// Package main provides the difftest command. It runs a RISC-V program on
// the in-process DUT model of every core and checks each core against its
// own reference emulator.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/sarchlab/difftest/config"
	"github.com/sarchlab/difftest/difftest"
	"github.com/sarchlab/difftest/dut"
	"github.com/sarchlab/difftest/emu"
	"github.com/sarchlab/difftest/loader"
	"github.com/sarchlab/difftest/refproxy"
	"github.com/sarchlab/difftest/state"
	"github.com/sarchlab/difftest/timing/latency"
	"github.com/sarchlab/difftest/timing/predictor"
)

type options struct {
	configPath string
	timingPath string
	program    string
	cores      int
	maxCycles  uint64
	runahead   bool
	predict    bool
	trace      bool
	verbosity  int
	faults     faultList
	interrupts interruptList
}

// faultList collects -fault flags of the form kind@at[:reg].
type faultList []dut.Fault

var faultKinds = map[string]dut.FaultKind{
	"writeback": dut.FaultWriteback,
	"register":  dut.FaultRegister,
	"store":     dut.FaultStore,
	"refill":    dut.FaultRefill,
	"stall":     dut.FaultStall,
}

func (l *faultList) String() string {
	parts := make([]string, 0, len(*l))
	for _, f := range *l {
		parts = append(parts, fmt.Sprintf("%s@%d", f.Kind, f.At))
	}
	return strings.Join(parts, ",")
}

func (l *faultList) Set(s string) error {
	name, rest, ok := strings.Cut(s, "@")
	if !ok {
		return fmt.Errorf("fault %q: want kind@instructions", s)
	}
	kind, ok := faultKinds[name]
	if !ok {
		return fmt.Errorf("unknown fault kind %q", name)
	}

	at, reg, _ := strings.Cut(rest, ":")
	f := dut.Fault{Kind: kind}

	var err error
	if f.At, err = strconv.ParseUint(at, 0, 64); err != nil {
		return fmt.Errorf("fault %q: %w", s, err)
	}
	if reg != "" {
		if f.Reg, err = strconv.Atoi(reg); err != nil {
			return fmt.Errorf("fault %q: %w", s, err)
		}
	}

	*l = append(*l, f)
	return nil
}

// interruptList collects -interrupt flags of the form cause@instructions.
type interruptList []dut.Interrupt

func (l *interruptList) String() string {
	parts := make([]string, 0, len(*l))
	for _, i := range *l {
		parts = append(parts, fmt.Sprintf("%d@%d", i.Cause, i.At))
	}
	return strings.Join(parts, ",")
}

func (l *interruptList) Set(s string) error {
	cause, at, ok := strings.Cut(s, "@")
	if !ok {
		return fmt.Errorf("interrupt %q: want cause@instructions", s)
	}

	var (
		i   dut.Interrupt
		err error
	)
	if i.Cause, err = strconv.ParseUint(cause, 0, 64); err != nil || i.Cause == 0 {
		return fmt.Errorf("interrupt %q: bad cause", s)
	}
	if i.At, err = strconv.ParseUint(at, 0, 64); err != nil {
		return fmt.Errorf("interrupt %q: %w", s, err)
	}

	*l = append(*l, i)
	return nil
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("difftest", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "Path to difftest configuration JSON file")
	fs.StringVar(&opts.timingPath, "timing", "", "Path to DUT timing configuration JSON file")
	fs.IntVar(&opts.cores, "cores", 0, "Number of cores (overrides the configuration)")
	fs.Uint64Var(&opts.maxCycles, "max-cycles", 0, "End the run after this many cycles (0: no limit)")
	fs.BoolVar(&opts.runahead, "runahead", false, "Validate run-ahead execution on a speculator")
	fs.BoolVar(&opts.predict, "predict", false, "Follow a branch predictor during run-ahead")
	fs.BoolVar(&opts.trace, "trace", false, "Print every confirmed commit")
	fs.IntVar(&opts.verbosity, "v", 0, "Log verbosity")
	fs.Var(&opts.faults, "fault", "Plant a DUT fault, kind@instructions[:reg] (repeatable)")
	fs.Var(&opts.interrupts, "interrupt", "Deliver an interrupt, cause@instructions (repeatable)")

	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: difftest [options] [program.elf|image.bin]\n")
		_, _ = fmt.Fprintf(stderr, "\nWithout a program a built-in demo is run.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return nil, errors.New("too many arguments")
	}
	opts.program = fs.Arg(0)

	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	os.Exit(run(opts, os.Stdout, os.Stderr))
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	}
	if opts.cores > 0 {
		cfg.NumCores = opts.cores
	}
	return cfg, nil
}

func loadProgram(opts *options, cfg *config.Config) (*loader.Program, error) {
	if opts.program == "" {
		image := demoProgram()
		return &loader.Program{
			EntryPoint: cfg.PMEMBase,
			Segments: []loader.Segment{{
				Addr:    cfg.PMEMBase,
				Data:    image,
				MemSize: uint64(len(image)),
				Flags:   loader.SegmentFlagRead | loader.SegmentFlagExecute,
			}},
		}, nil
	}
	return loader.Open(opts.program, cfg.PMEMBase)
}

func newLogger(w io.Writer, verbosity int) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			_, _ = fmt.Fprintf(w, "%s: %s\n", prefix, args)
			return
		}
		_, _ = fmt.Fprintln(w, args)
	}, funcr.Options{Verbosity: verbosity})
}

// run executes the program and returns the process exit code: 0 when
// every core reached a good trap, 1 when a core failed and 2 when the run
// could not be set up.
func run(opts *options, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 2
	}

	timing := latency.DefaultTimingConfig()
	if opts.timingPath != "" {
		if timing, err = latency.LoadConfig(opts.timingPath); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error loading timing config: %v\n", err)
			return 2
		}
	}

	prog, err := loadProgram(opts, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error loading program: %v\n", err)
		return 2
	}
	if opts.configPath == "" {
		cfg.FirstInstAddress = prog.EntryPoint
	}

	logger := newLogger(stderr, opts.verbosity)
	s, err := newSystem(cfg, timing, prog, opts, stdout, stderr, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	results, err := s.run()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	return s.report(stdout, results)
}

// system is one differential run: the DUT cores over a shared memory and
// their controllers.
type system struct {
	registry *difftest.Registry
	models   []*dut.Model
}

func newSystem(
	cfg *config.Config,
	timing *latency.TimingConfig,
	prog *loader.Program,
	opts *options,
	stdout, stderr io.Writer,
	logger logr.Logger,
) (*system, error) {
	layout := state.Layout{DebugMode: cfg.DebugModeDiff}

	newEmulator := func(id int, mem *emu.Memory, extra ...emu.EmulatorOption) *emu.Emulator {
		all := append([]emu.EmulatorOption{
			emu.WithMemory(mem),
			emu.WithHartID(uint64(id)),
			emu.WithStderr(stderr),
		}, extra...)
		e := emu.NewEmulator(all...)
		e.RegFile().PC = prog.EntryPoint
		return e
	}

	refFactory := func(id int) (refproxy.Proxy, error) {
		ref := newEmulator(id, emu.NewMemory(cfg.PMEMBase, cfg.PMEMSize))
		proxy := refproxy.NewEmuProxy(ref, layout,
			refproxy.WithStoreCommit(),
			refproxy.WithLogger(logger.WithName("ref")))
		if err := prog.CopyToReference(proxy); err != nil {
			return nil, err
		}
		return proxy, nil
	}

	regOpts := []difftest.RegistryOption{
		difftest.WithRegistryLogger(logger),
		difftest.WithCoreOptions(difftest.WithOutput(stderr)),
	}
	if opts.runahead {
		regOpts = append(regOpts, difftest.WithSpeculatorFactory(
			func(id int) (refproxy.Speculator, error) {
				spec := newEmulator(id, emu.NewMemory(cfg.PMEMBase, cfg.PMEMSize))
				if err := prog.LoadInto(spec.Memory()); err != nil {
					return nil, err
				}
				return refproxy.NewEmuProxy(spec, layout), nil
			}))
	}

	r, err := difftest.NewRegistry(cfg, refFactory, regOpts...)
	if err != nil {
		return nil, err
	}

	shared := emu.NewMemory(cfg.PMEMBase, cfg.PMEMSize)
	if err := prog.LoadInto(shared, r.GoldenMemory()); err != nil {
		return nil, err
	}

	s := &system{registry: r}
	for id := 0; id < cfg.NumCores; id++ {
		ctrl := r.Core(id)
		if opts.trace {
			ctrl.AcceptHook(difftest.NewCommitTracer(stdout))
		}

		modelOpts := []dut.ModelOption{
			dut.WithLogger(logger.WithName("dut").WithValues("core", id)),
			dut.WithMaxCycles(opts.maxCycles),
			dut.WithLatency(timing),
		}
		switch {
		case opts.runahead && opts.predict:
			modelOpts = append(modelOpts, dut.WithBranchPrediction(predictor.DefaultConfig()))
		case opts.runahead:
			modelOpts = append(modelOpts, dut.WithRunahead())
		}
		for _, f := range opts.faults {
			modelOpts = append(modelOpts, dut.WithFault(f))
		}
		for _, i := range opts.interrupts {
			modelOpts = append(modelOpts, dut.WithInterrupt(i))
		}

		e := newEmulator(id, shared, emu.WithStoreQueue())
		m, err := dut.NewModel(cfg, e, ctrl, modelOpts...)
		if err != nil {
			return nil, fmt.Errorf("core %d: %w", id, err)
		}
		s.models = append(s.models, m)
	}

	return s, nil
}

// run ticks every core in turn until all of them terminated.
func (s *system) run() ([]difftest.StepResult, error) {
	results := make([]difftest.StepResult, len(s.models))
	live := len(s.models)

	for live > 0 {
		for id, m := range s.models {
			if results[id].Terminated {
				continue
			}

			res, err := m.Tick()
			if err != nil {
				return nil, fmt.Errorf("core %d: %w", id, err)
			}
			results[id] = res
			if res.Terminated {
				live--
			}
		}
	}

	return results, nil
}

func trapName(code uint8) string {
	switch code {
	case difftest.TrapGood:
		return "HIT GOOD TRAP"
	case difftest.TrapBad:
		return "HIT BAD TRAP"
	case difftest.TrapAbort:
		return "ABORT"
	case difftest.TrapLimitExceeded:
		return "EXCEEDING CYCLE LIMIT"
	case difftest.TrapSideChannel:
		return "SIDE-CHANNEL CHECK FAILURE"
	case difftest.TrapHang:
		return "HANG"
	}
	return fmt.Sprintf("TRAP %d", code)
}

func (s *system) report(w io.Writer, results []difftest.StepResult) int {
	exitCode := 0

	for id, res := range results {
		m := s.models[id]
		ctrl := s.registry.Core(id)

		instrs := ctrl.InstrCount()
		cycles := m.Cycle()
		ipc := 0.0
		if cycles > 0 {
			ipc = float64(instrs) / float64(cycles)
		}

		_, _ = fmt.Fprintf(w, "core %d: %s at pc 0x%x\n", id, trapName(res.Trap.Code), res.Trap.PC)
		_, _ = fmt.Fprintf(w, "  instructions: %d  cycles: %d  IPC: %.2f\n", instrs, cycles, ipc)

		ic, dc := m.ICache().Stats(), m.DCache().Stats()
		_, _ = fmt.Fprintf(w, "  icache: %d hits %d misses  dcache: %d hits %d misses\n",
			ic.Hits, ic.Misses, dc.Hits, dc.Misses)

		if ra := ctrl.Runahead(); ra != nil {
			st := ra.Stats()
			_, _ = fmt.Fprintf(w, "  run-ahead: %d executed %d confirmed %d redirects %d discarded\n",
				st.Executed, st.Confirmed, st.Redirects, st.Discarded)
			_, _ = fmt.Fprintf(w, "  memdep: %d predictions %d correct %d false waits %d missed waits\n",
				st.MemdepPredictions, st.MemdepCorrect, st.MemdepFalseWait, st.MemdepMissedWait)
		}
		if bp, ok := m.BranchStats(); ok {
			_, _ = fmt.Fprintf(w, "  branches: %d predictions %d mispredictions (%.1f%% accurate)\n",
				bp.Predictions, bp.Mispredictions, bp.Accuracy())
		}

		if res.Err != nil {
			_, _ = fmt.Fprintf(w, "  error: %v\n", res.Err)
		}
		if res.Err != nil || res.Trap.Code != difftest.TrapGood {
			exitCode = 1
		}
	}

	return exitCode
}
