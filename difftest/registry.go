package difftest

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/difftest/config"
	"github.com/sarchlab/difftest/goldenmem"
	"github.com/sarchlab/difftest/refproxy"
)

// ProxyFactory creates the reference proxy of a core.
type ProxyFactory func(core int) (refproxy.Proxy, error)

// SpeculatorFactory creates the run-ahead speculator of a core.
type SpeculatorFactory func(core int) (refproxy.Speculator, error)

// Registry owns the controllers of all cores of one run. The cores share
// one golden memory image.
type Registry struct {
	cfg         *config.Config
	factory     ProxyFactory
	specFactory SpeculatorFactory
	golden      *goldenmem.Memory
	logger      logr.Logger
	coreOpts    []Option

	cores []*Controller
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCoreOptions applies opts to every controller.
func WithCoreOptions(opts ...Option) RegistryOption {
	return func(r *Registry) {
		r.coreOpts = append(r.coreOpts, opts...)
	}
}

// WithSpeculatorFactory enables run-ahead validation on every core.
func WithSpeculatorFactory(f SpeculatorFactory) RegistryOption {
	return func(r *Registry) {
		r.specFactory = f
	}
}

// WithRegistryLogger sets the logger of the registry and, unless
// overridden by WithCoreOptions, of its controllers.
func WithRegistryLogger(l logr.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates and initializes one controller per configured core.
func NewRegistry(
	cfg *config.Config,
	factory ProxyFactory,
	opts ...RegistryOption,
) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid difftest config: %w", err)
	}

	r := &Registry{
		cfg:     cfg.Clone(),
		factory: factory,
		golden:  goldenmem.New(cfg.PMEMBase, cfg.PMEMSize),
		logger:  logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := 0; i < cfg.NumCores; i++ {
		c, err := r.newController(i)
		if err != nil {
			return nil, err
		}
		r.cores = append(r.cores, c)
	}

	r.logger.Info("difftest initialized", "cores", cfg.NumCores)
	return r, nil
}

func (r *Registry) newController(i int) (*Controller, error) {
	proxy, err := r.factory(i)
	if err != nil {
		return nil, fmt.Errorf("core %d: create reference proxy: %w", i, err)
	}

	opts := []Option{
		WithLogger(r.logger.WithValues("core", i)),
		WithGoldenMemory(r.golden),
	}
	if r.specFactory != nil {
		spec, err := r.specFactory(i)
		if err != nil {
			return nil, fmt.Errorf("core %d: create speculator: %w", i, err)
		}
		opts = append(opts, WithSpeculator(spec))
	}
	opts = append(opts, r.coreOpts...)

	return NewController(i, r.cfg, proxy, opts...)
}

// NumCores returns the number of cores.
func (r *Registry) NumCores() int {
	return len(r.cores)
}

// Core returns the controller of core i.
func (r *Registry) Core(i int) *Controller {
	checkIndex("core", i, len(r.cores))
	return r.cores[i]
}

// GoldenMemory returns the golden memory shared by all cores.
func (r *Registry) GoldenMemory() *goldenmem.Memory {
	return r.golden
}

// InitProxy re-creates the reference proxy of core i.
func (r *Registry) InitProxy(i int) error {
	c := r.Core(i)

	proxy, err := r.factory(i)
	if err != nil {
		return fmt.Errorf("core %d: create reference proxy: %w", i, err)
	}
	if err := c.SetProxy(proxy); err != nil {
		return fmt.Errorf("core %d: %w", i, err)
	}

	r.logger.Info("reference proxy initialized", "core", i)
	return nil
}

// Step steps core i.
func (r *Registry) Step(i int) StepResult {
	return r.Core(i).Step()
}

// StepAll steps every core that has not terminated. It returns the
// aggregate state and the first failure among the cores.
func (r *Registry) StepAll() (int, error) {
	var first error
	for _, c := range r.cores {
		if c.Trap().Valid {
			continue
		}
		if res := c.Step(); res.Err != nil && first == nil {
			first = res.Err
		}
	}
	return r.State(), first
}

// State returns the trap code of the first core that trapped, or Running.
func (r *Registry) State() int {
	for _, c := range r.cores {
		if t := c.Trap(); t.Valid {
			return int(t.Code)
		}
	}
	return Running
}
