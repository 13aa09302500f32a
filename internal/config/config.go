// Package config loads the TOML driver configuration for the fastdiagp
// command: the solver binary to shell out to, how many workers to run, and
// a timeout. The command applies that timeout as one deadline over its
// whole run; no single oracle call has a timeout of its own. Load starts
// from the defaults and overlays the decoded file; there is no separate
// validation step.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the decoded shape of a fastdiagp TOML configuration file.
type Config struct {
	Solver    SolverConfig    `toml:"solver"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Logging   LoggingConfig   `toml:"logging"`
}

// SolverConfig describes the external oracle binary.
type SolverConfig struct {
	Path    string   `toml:"path"`
	Args    []string `toml:"args"`
	Timeout Duration `toml:"timeout"`
}

// SchedulerConfig tunes worker count and look-ahead budget.
type SchedulerConfig struct {
	Workers          int  `toml:"workers"`
	LookaheadBudget  int  `toml:"lookahead_budget"`
	ReservedCores    int  `toml:"reserved_cores"`
	DisableLookahead bool `toml:"disable_lookahead"`
}

// LoggingConfig controls the zerolog console writer.
type LoggingConfig struct {
	Level string `toml:"level"`
	Pretty bool  `toml:"pretty"`
}

// Duration wraps time.Duration so it can be decoded from a TOML string like
// "30s", since BurntSushi/toml has no native duration type.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler, which toml.Decode
// uses for any field backed by a quoted string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration used when no file is supplied: no
// solver path (the caller must set one, typically from a CLI flag),
// workers sized by ReservedCores logic, look-ahead enabled, info logging.
func Default() Config {
	return Config{
		Scheduler: SchedulerConfig{
			ReservedCores: 2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads and decodes a TOML file at path, starting from Default and
// overlaying whatever the file sets.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// WorkerCount resolves the effective worker pool size: an explicit
// Scheduler.Workers override if set, otherwise logical cores minus
// ReservedCores, floored at 1.
func (c Config) WorkerCount() int {
	if c.Scheduler.Workers > 0 {
		return c.Scheduler.Workers
	}
	return DefaultWorkerCount(c.Scheduler.ReservedCores)
}

// DefaultWorkerCount returns runtime.NumCPU() minus reserved, floored at 1
// — the "leave a couple of cores for the OS and the solver subprocess"
// heuristic the original benchmark driver used.
func DefaultWorkerCount(reserved int) int {
	n := runtime.NumCPU() - reserved
	if n < 1 {
		return 1
	}
	return n
}
