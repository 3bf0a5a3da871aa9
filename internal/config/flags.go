package config

import (
	"flag"
	"fmt"
	"os"
)

// ParseFlags parses command-line flags and returns a Config.
// The positional argument is the compiled model executable.
// A -config file is loaded first; flags set explicitly override it.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `go-stan-swarm - CmdStan chain orchestration and Stan CSV assembly

Usage:
  go-stan-swarm [flags] <MODEL_EXE>

Sampling Flags:
`)
		printFlagCategory([]string{"chains", "parallel", "samples", "warmup", "save-warmup", "metric", "seed", "chain-timeout"})

		fmt.Fprintf(os.Stderr, "\nModel / Data:\n")
		printFlagCategory([]string{"data", "output-dir", "run-name"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory([]string{"metrics", "v", "log-format", "tui", "pipeline-buffer"})

		fmt.Fprintf(os.Stderr, "\nSafety & Diagnostics:\n")
		printFlagCategory([]string{"print-cmd", "skip-preflight", "config"})

		fmt.Fprintf(os.Stderr, `
Examples:
  # Four chains, defaults
  go-stan-swarm -data bernoulli.data.json ./bernoulli

  # Eight chains, two at a time, keep warmup draws
  go-stan-swarm -chains 8 -parallel 2 -save-warmup -data d.json ./model
`)
	}

	var configFile string
	flag.StringVar(&configFile, "config", "", "YAML config file (flags override)")

	flag.IntVar(&cfg.Chains, "chains", cfg.Chains, "number of chains to run")
	flag.IntVar(&cfg.Parallel, "parallel", cfg.Parallel, "max chains running at once (0 = number of CPUs)")
	flag.IntVar(&cfg.NumSamples, "samples", cfg.NumSamples, "sampling iterations per chain")
	flag.IntVar(&cfg.NumWarmup, "warmup", cfg.NumWarmup, "warmup iterations per chain")
	flag.BoolVar(&cfg.SaveWarmup, "save-warmup", cfg.SaveWarmup, "write warmup draws to the output CSV")
	flag.StringVar(&cfg.Metric, "metric", cfg.Metric, "HMC metric: unit_e, diag_e, dense_e")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed (0 = derive from clock)")
	flag.DurationVar(&cfg.ChainTimeout, "chain-timeout", cfg.ChainTimeout, "per-chain timeout (0 = none)")

	flag.StringVar(&cfg.DataFile, "data", cfg.DataFile, "input data file (JSON)")
	flag.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "directory for output CSV and console logs")
	flag.StringVar(&cfg.RunName, "run-name", cfg.RunName, "run name (default: derived from model name)")

	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics listen address")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose (debug) logging")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json or text")
	flag.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "live chain dashboard")
	flag.IntVar(&cfg.PipelineBuffer, "pipeline-buffer", cfg.PipelineBuffer, "console parse buffer in lines per chain (0 = default)")

	flag.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "print the per-chain command and exit")
	flag.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "skip startup checks")

	flag.Parse()

	// Config file values apply under explicitly-set flags.
	if configFile != "" {
		fileCfg, err := LoadFile(configFile)
		if err != nil {
			return nil, err
		}
		explicit := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		mergeFile(cfg, fileCfg, explicit)
	}

	if flag.NArg() > 0 {
		cfg.ModelExe = flag.Arg(0)
	}

	if cfg.ModelExe == "" {
		flag.Usage()
		return nil, fmt.Errorf("model executable is required")
	}

	return cfg, nil
}

// printFlagCategory prints usage for a named group of flags.
func printFlagCategory(names []string) {
	for _, name := range names {
		f := flag.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(os.Stderr, "  -%-16s %s", f.Name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
			fmt.Fprintf(os.Stderr, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(os.Stderr)
	}
}
