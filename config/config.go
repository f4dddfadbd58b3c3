// Package config holds the runtime configuration of the differential-testing
// engine. A Config is decided once at startup and treated as immutable
// afterwards: every controller keeps its own clone.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// DebugMemWindow is the size of the debug-memory window starting at
// Config.DebugMemBase.
const DebugMemWindow = 0x1000

// MaxCores bounds the number of core contexts a registry may hold.
const MaxCores = 64

// Config holds the structural widths, timeout limits and feature flags of
// the engine.
type Config struct {
	// NumCores is the number of core contexts compared in lockstep.
	// Default: 1.
	NumCores int `json:"num_cores"`

	// CommitWidth is the number of commit slots per tick. Default: 6.
	CommitWidth int `json:"commit_width"`

	// StoreWidth is the number of committed-store records per tick.
	// Default: 2.
	StoreWidth int `json:"store_width"`

	// SbufferRespWidth is the number of store-buffer drain responses per
	// tick. Default: 2.
	SbufferRespWidth int `json:"sbuffer_resp_width"`

	// RunaheadWidth is the number of run-ahead records of each kind per
	// tick. Default: 6.
	RunaheadWidth int `json:"runahead_width"`

	// PhysRegSize is the number of entries in each physical register file.
	// Default: 192.
	PhysRegSize int `json:"phys_reg_size"`

	// FirstCommitLimit is the number of ticks allowed between reset and the
	// first commit. Default: 15000.
	FirstCommitLimit uint64 `json:"first_commit_limit"`

	// StuckLimit is the number of ticks allowed between two commits once
	// the core has committed. Default: 15000.
	StuckLimit uint64 `json:"stuck_limit"`

	// FirstInstAddress is the PC whose commit enables comparison.
	// Default: 0x80000000.
	FirstInstAddress uint64 `json:"first_inst_address"`

	// PMEMBase is the start of physical memory. Default: 0x80000000.
	PMEMBase uint64 `json:"pmem_base"`

	// PMEMSize is the size of physical memory in bytes. Default: 256MB.
	PMEMSize uint64 `json:"pmem_size"`

	// DebugModeDiff enables the debug-mode register bank and the
	// debug-memory mismatch exemption.
	DebugModeDiff bool `json:"debug_mode_diff"`

	// DebugMemBase is the start of the debug-memory window.
	// Default: 0x38020000.
	DebugMemBase uint64 `json:"debug_mem_base"`

	// DebugRefill enables refill tracking of one instruction address.
	DebugRefill bool `json:"debug_refill"`

	// GroupTraceSize is the capacity of the retirement-group trace.
	// Default: 16.
	GroupTraceSize int `json:"group_trace_size"`

	// InstTraceSize is the capacity of the instruction trace. Default: 32.
	InstTraceSize int `json:"inst_trace_size"`
}

// Default returns a Config with the default widths and limits.
func Default() *Config {
	return &Config{
		NumCores:         1,
		CommitWidth:      6,
		StoreWidth:       2,
		SbufferRespWidth: 2,
		RunaheadWidth:    6,
		PhysRegSize:      192,
		FirstCommitLimit: 15000,
		StuckLimit:       15000,
		FirstInstAddress: 0x80000000,
		PMEMBase:         0x80000000,
		PMEMSize:         256 * 1024 * 1024,
		DebugModeDiff:    false,
		DebugMemBase:     0x38020000,
		DebugRefill:      false,
		GroupTraceSize:   16,
		InstTraceSize:    32,
	}
}

// Load reads a Config from a JSON file. Fields missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read difftest config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse difftest config: %w", err)
	}

	return cfg, nil
}

// Save writes the Config to a JSON file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize difftest config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write difftest config file: %w", err)
	}

	return nil
}

// Validate checks the structural assumptions the engine relies on.
func (c *Config) Validate() error {
	if c.NumCores <= 0 || c.NumCores > MaxCores {
		return fmt.Errorf("num_cores must be in [1, %d]", MaxCores)
	}
	if c.CommitWidth <= 0 {
		return fmt.Errorf("commit_width must be > 0")
	}
	if c.StoreWidth <= 0 {
		return fmt.Errorf("store_width must be > 0")
	}
	if c.SbufferRespWidth <= 0 {
		return fmt.Errorf("sbuffer_resp_width must be > 0")
	}
	if c.RunaheadWidth <= 0 {
		return fmt.Errorf("runahead_width must be > 0")
	}
	if c.PhysRegSize < 32 {
		return fmt.Errorf("phys_reg_size must be >= 32")
	}
	if c.FirstCommitLimit == 0 {
		return fmt.Errorf("first_commit_limit must be > 0")
	}
	if c.StuckLimit == 0 {
		return fmt.Errorf("stuck_limit must be > 0")
	}
	if c.PMEMSize == 0 {
		return fmt.Errorf("pmem_size must be > 0")
	}
	if c.PMEMBase+c.PMEMSize < c.PMEMBase {
		return fmt.Errorf("pmem range overflows the address space")
	}
	if c.GroupTraceSize <= 0 {
		return fmt.Errorf("group_trace_size must be > 0")
	}
	if c.InstTraceSize <= 0 {
		return fmt.Errorf("inst_trace_size must be > 0")
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// InPMEM reports whether addr lies inside physical memory.
func (c *Config) InPMEM(addr uint64) bool {
	return addr >= c.PMEMBase && addr-c.PMEMBase < c.PMEMSize
}

// InDebugMem reports whether addr lies inside the debug-memory window.
func (c *Config) InDebugMem(addr uint64) bool {
	return addr >= c.DebugMemBase && addr-c.DebugMemBase < DebugMemWindow
}
