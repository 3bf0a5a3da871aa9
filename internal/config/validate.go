package config

import (
	"fmt"
	"os"
)

// validMetrics are the HMC metric types CmdStan accepts.
var validMetrics = map[string]bool{
	"unit_e":  true,
	"diag_e":  true,
	"dense_e": true,
}

// Validate checks the configuration for errors.
func Validate(cfg *Config) error {
	if cfg.ModelExe == "" {
		return fmt.Errorf("model executable is required")
	}

	if cfg.Chains < 1 {
		return fmt.Errorf("chains must be >= 1, got %d", cfg.Chains)
	}

	if cfg.Parallel < 0 {
		return fmt.Errorf("parallel must be >= 0, got %d", cfg.Parallel)
	}

	if cfg.NumSamples < 1 {
		return fmt.Errorf("samples must be >= 1, got %d", cfg.NumSamples)
	}

	if cfg.NumWarmup < 0 {
		return fmt.Errorf("warmup must be >= 0, got %d", cfg.NumWarmup)
	}

	if !validMetrics[cfg.Metric] {
		return fmt.Errorf("metric must be unit_e, diag_e, or dense_e, got %q", cfg.Metric)
	}

	if cfg.ChainTimeout < 0 {
		return fmt.Errorf("chain-timeout must be >= 0, got %s", cfg.ChainTimeout)
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log-format must be json or text, got %q", cfg.LogFormat)
	}

	if cfg.DataFile != "" {
		if _, err := os.Stat(cfg.DataFile); err != nil {
			return fmt.Errorf("data file: %w", err)
		}
	}

	return nil
}
