package heap

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// StressConfig describes a stress-run profile for the engine, loaded
// from a TOML file. It drives the heapstress harness: how many mutator
// goroutines to spawn, how hard each one churns, and how the
// collector is scheduled.
type StressConfig struct {
	Mutators         int           `toml:"mutators"`
	OpsPerMutator    int           `toml:"ops-per-mutator"`
	PayloadBytes     int           `toml:"payload-bytes"`
	SlotCapacity     int           `toml:"slot-capacity"`
	CollectInterval  time.Duration `toml:"collect-interval"`
	PauseBudget      time.Duration `toml:"pause-budget"`
	ReportPath       string        `toml:"report-path"`
	CollectInline    bool          `toml:"collect-inline"`
	WeakRefsPerCycle int           `toml:"weak-refs-per-cycle"`
}

// DefaultStressConfig returns the profile used when no file is given:
// a load comfortably above what a laptop handles in a few seconds.
func DefaultStressConfig() *StressConfig {
	return &StressConfig{
		Mutators:        8,
		OpsPerMutator:   10000,
		PayloadBytes:    64,
		SlotCapacity:    32,
		CollectInterval: DefaultCollectInterval,
		PauseBudget:     10 * time.Millisecond,
	}
}

// LoadStressConfig parses a stress profile from the given TOML file
// and fills in defaults for unset fields.
func LoadStressConfig(path string) (*StressConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var cfg StressConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *StressConfig) applyDefaults() {
	d := DefaultStressConfig()
	if c.Mutators == 0 {
		c.Mutators = d.Mutators
	}
	if c.OpsPerMutator == 0 {
		c.OpsPerMutator = d.OpsPerMutator
	}
	if c.PayloadBytes == 0 {
		c.PayloadBytes = d.PayloadBytes
	}
	if c.SlotCapacity == 0 {
		c.SlotCapacity = d.SlotCapacity
	}
	if c.CollectInterval == 0 {
		c.CollectInterval = d.CollectInterval
	}
	if c.PauseBudget == 0 {
		c.PauseBudget = d.PauseBudget
	}
}

// Validate rejects profiles the engine cannot honor, such as more
// mutators than thread slots.
func (c *StressConfig) Validate() error {
	if c.Mutators < 1 {
		return fmt.Errorf("mutators must be >= 1, got %d", c.Mutators)
	}
	if c.OpsPerMutator < 1 {
		return fmt.Errorf("ops-per-mutator must be >= 1, got %d", c.OpsPerMutator)
	}
	if c.SlotCapacity < c.Mutators {
		return fmt.Errorf("slot-capacity %d cannot seat %d mutators", c.SlotCapacity, c.Mutators)
	}
	if c.PayloadBytes < 0 {
		return fmt.Errorf("payload-bytes must be >= 0, got %d", c.PayloadBytes)
	}
	if c.WeakRefsPerCycle < 0 {
		return fmt.Errorf("weak-refs-per-cycle must be >= 0, got %d", c.WeakRefsPerCycle)
	}
	return nil
}
