package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// TimingConfig holds the execution latency of each instruction class of
// the DUT model, in cycles.
type TimingConfig struct {
	// ALULatency is the execution latency for integer ALU operations.
	// Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency"`

	// BranchLatency is the execution latency for jumps and branches.
	// Default: 1 cycle.
	BranchLatency uint64 `json:"branch_latency"`

	// LoadLatency is the latency of a load that hits in the data cache.
	// Default: 2 cycles.
	LoadLatency uint64 `json:"load_latency"`

	// StoreLatency is the latency for store operations.
	// Default: 1 cycle.
	StoreLatency uint64 `json:"store_latency"`

	// AtomicLatency is the latency of LR, SC and AMO operations.
	// Default: 4 cycles.
	AtomicLatency uint64 `json:"atomic_latency"`

	// MultiplyLatency is the latency for integer multiply operations.
	// Default: 3 cycles.
	MultiplyLatency uint64 `json:"multiply_latency"`

	// DivideLatency is the latency for integer divide and remainder
	// operations. Default: 12 cycles.
	DivideLatency uint64 `json:"divide_latency"`

	// FPLatency is the latency for floating-point operations and moves.
	// Default: 3 cycles.
	FPLatency uint64 `json:"fp_latency"`

	// SystemLatency is the latency for CSR accesses, fences and trap
	// returns. Default: 1 cycle.
	SystemLatency uint64 `json:"system_latency"`
}

// DefaultTimingConfig returns a TimingConfig with the default latencies.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		ALULatency:      1,
		BranchLatency:   1,
		LoadLatency:     2,
		StoreLatency:    1,
		AtomicLatency:   4,
		MultiplyLatency: 3,
		DivideLatency:   12,
		FPLatency:       3,
		SystemLatency:   1,
	}
}

// LoadConfig loads a TimingConfig from a JSON file. Fields missing from
// the file keep their default values.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON file.
func (c *TimingConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that all latency values are valid (> 0).
func (c *TimingConfig) Validate() error {
	fields := []struct {
		name  string
		value uint64
	}{
		{"alu_latency", c.ALULatency},
		{"branch_latency", c.BranchLatency},
		{"load_latency", c.LoadLatency},
		{"store_latency", c.StoreLatency},
		{"atomic_latency", c.AtomicLatency},
		{"multiply_latency", c.MultiplyLatency},
		{"divide_latency", c.DivideLatency},
		{"fp_latency", c.FPLatency},
		{"system_latency", c.SystemLatency},
	}
	for _, f := range fields {
		if f.value == 0 {
			return fmt.Errorf("%s must be > 0", f.name)
		}
	}
	return nil
}

// Clone returns a copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}
