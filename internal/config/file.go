package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML config file.
// Only keys present in the file are meaningful; the caller decides how
// to merge them with flag values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// mergeFile overlays file values onto cfg for every setting whose flag
// was not given explicitly on the command line. Zero values in the file
// are treated as unset.
func mergeFile(cfg, file *Config, explicit map[string]bool) {
	if !explicit["chains"] && file.Chains > 0 {
		cfg.Chains = file.Chains
	}
	if !explicit["parallel"] && file.Parallel > 0 {
		cfg.Parallel = file.Parallel
	}
	if !explicit["samples"] && file.NumSamples > 0 {
		cfg.NumSamples = file.NumSamples
	}
	if !explicit["warmup"] && file.NumWarmup > 0 {
		cfg.NumWarmup = file.NumWarmup
	}
	if !explicit["save-warmup"] && file.SaveWarmup {
		cfg.SaveWarmup = true
	}
	if !explicit["metric"] && file.Metric != "" {
		cfg.Metric = file.Metric
	}
	if !explicit["seed"] && file.Seed != 0 {
		cfg.Seed = file.Seed
	}
	if !explicit["chain-timeout"] && file.ChainTimeout > 0 {
		cfg.ChainTimeout = file.ChainTimeout
	}
	if !explicit["data"] && file.DataFile != "" {
		cfg.DataFile = file.DataFile
	}
	if !explicit["output-dir"] && file.OutputDir != "" {
		cfg.OutputDir = file.OutputDir
	}
	if !explicit["run-name"] && file.RunName != "" {
		cfg.RunName = file.RunName
	}
	if !explicit["metrics"] && file.MetricsAddr != "" {
		cfg.MetricsAddr = file.MetricsAddr
	}
	if !explicit["log-format"] && file.LogFormat != "" {
		cfg.LogFormat = file.LogFormat
	}
	if !explicit["tui"] && file.TUIEnabled {
		cfg.TUIEnabled = true
	}
	if !explicit["pipeline-buffer"] && file.PipelineBuffer > 0 {
		cfg.PipelineBuffer = file.PipelineBuffer
	}
	if file.ModelExe != "" {
		cfg.ModelExe = file.ModelExe
	}
}
