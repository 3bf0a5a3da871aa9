// Package config provides configuration management for go-stan-swarm.
package config

import (
	"runtime"
	"time"
)

// Config holds all configuration options for a chain run.
type Config struct {
	// Model / engine
	ModelExe string `yaml:"model_exe"`
	DataFile string `yaml:"data_file"`
	Seed     int64  `yaml:"seed"` // 0 = derive from clock

	// Sampling
	Chains       int           `yaml:"chains"`
	Parallel     int           `yaml:"parallel"` // 0 = number of CPUs
	NumSamples   int           `yaml:"num_samples"`
	NumWarmup    int           `yaml:"num_warmup"`
	SaveWarmup   bool          `yaml:"save_warmup"`
	Metric       string        `yaml:"metric"`        // unit_e, diag_e, dense_e
	ChainTimeout time.Duration `yaml:"chain_timeout"` // 0 = none

	// Output
	OutputDir string `yaml:"output_dir"`
	RunName   string `yaml:"run_name"` // "" = derived from model name

	// Observability
	MetricsAddr    string `yaml:"metrics_addr"`
	Verbose        bool   `yaml:"verbose"`
	LogFormat      string `yaml:"log_format"` // json, text
	TUIEnabled     bool   `yaml:"tui"`
	PipelineBuffer int    `yaml:"pipeline_buffer"` // 0 = default

	// Diagnostic modes
	PrintCmd      bool `yaml:"print_cmd"`
	SkipPreflight bool `yaml:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Sampling
		Chains:     4,
		Parallel:   0, // NumCPU at run time
		NumSamples: 1000,
		NumWarmup:  1000,
		SaveWarmup: false,
		Metric:     "diag_e",

		// Output
		OutputDir: ".",

		// Observability
		MetricsAddr: "0.0.0.0:17092",
		Verbose:     false,
		LogFormat:   "json",
	}
}

// EffectiveParallel returns the concurrency limit for chain processes.
// A limit of 0 means one slot per CPU; the limit never exceeds the
// number of chains.
func (c *Config) EffectiveParallel() int {
	limit := c.Parallel
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	if limit > c.Chains {
		limit = c.Chains
	}
	return limit
}
