// Package main provides the go-stan-swarm CLI entry point.
//
// go-stan-swarm orchestrates a set of CmdStan chain processes, watches
// their progress, and assembles their output CSVs into one posterior
// sample.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-stan-swarm/internal/config"
	"github.com/randomizedcoder/go-stan-swarm/internal/logging"
	"github.com/randomizedcoder/go-stan-swarm/internal/metrics"
	"github.com/randomizedcoder/go-stan-swarm/internal/orchestrator"
	"github.com/randomizedcoder/go-stan-swarm/internal/parser"
	"github.com/randomizedcoder/go-stan-swarm/internal/preflight"
	"github.com/randomizedcoder/go-stan-swarm/internal/process"
	"github.com/randomizedcoder/go-stan-swarm/internal/runfiles"
	"github.com/randomizedcoder/go-stan-swarm/internal/sample"
	"github.com/randomizedcoder/go-stan-swarm/internal/stats"
	"github.com/randomizedcoder/go-stan-swarm/internal/supervisor"
	"github.com/randomizedcoder/go-stan-swarm/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-stan-swarm
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-stan-swarm %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// When the TUI is enabled, suppress logs so they don't fight the
	// dashboard for the terminal.
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	modelName := strippedModelName(cfg.ModelExe)
	locator, err := runfiles.New(cfg.OutputDir, modelName, cfg.RunName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Output directory error: %v\n", err)
		return 1
	}

	builder := process.NewCmdStanRunner(&process.CmdStanConfig{
		ExePath:    cfg.ModelExe,
		DataFile:   cfg.DataFile,
		Seed:       cfg.Seed,
		NumSamples: cfg.NumSamples,
		NumWarmup:  cfg.NumWarmup,
		SaveWarmup: cfg.SaveWarmup,
		Metric:     cfg.Metric,
	}, locator)

	if cfg.PrintCmd {
		fmt.Println(builder.CommandString())
		return 0
	}

	if !cfg.SkipPreflight {
		result := preflight.RunAll(cfg.Chains, cfg.EffectiveParallel(),
			cfg.ModelExe, cfg.DataFile, cfg.OutputDir)
		if !cfg.TUIEnabled {
			preflight.PrintResults(result)
		}
		if !result.Passed {
			fmt.Fprintln(os.Stderr, "Preflight checks failed (use --skip-preflight to override)")
			return 1
		}
	}

	logger.Info("starting",
		"version", version,
		"model", cfg.ModelExe,
		"chains", cfg.Chains,
		"parallel", cfg.EffectiveParallel(),
		"run_name", locator.RunName(),
		"metrics_addr", cfg.MetricsAddr,
	)
	if !cfg.TUIEnabled {
		printBanner(cfg, locator)
	}

	collector := metrics.NewCollector(metrics.CollectorConfig{
		Version: version,
		Model:   modelName,
		RunName: locator.RunName(),
		Chains:  cfg.Chains,
	})
	server := metrics.NewServer(cfg.MetricsAddr, metrics.RunInfo{
		RunName: locator.RunName(),
		Model:   modelName,
		Chains:  cfg.Chains,
	}, logger)
	if err := server.Start(); err != nil {
		logger.Error("metrics_server_failed", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	recorder := stats.NewRecorder()
	tracker := newRunTracker(collector, recorder)

	orch, err := orchestrator.New(orchestrator.Config{
		Builder:  builder,
		Locator:  locator,
		Logger:   logger,
		Chains:   cfg.Chains,
		Parallel: cfg.EffectiveParallel(),
		Timeout:  cfg.ChainTimeout,
		Callbacks: supervisor.Callbacks{
			OnStateChange: tracker.onStateChange,
			OnStart:       tracker.onStart,
			OnExit:        tracker.onExit,
		},
		NewConsoleParser: tracker.newConsoleParser,
		PipelineBuffer:   cfg.PipelineBuffer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup error: %v\n", err)
		return 1
	}
	tracker.setRunSet(orch.RunSet())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var program *tea.Program
	var tuiDone chan struct{}
	if cfg.TUIEnabled {
		model := tui.New(tui.Config{
			RunName:     locator.RunName(),
			ModelName:   modelName,
			Chains:      cfg.Chains,
			MetricsAddr: cfg.MetricsAddr,
			Source:      tracker,
		})
		program = tea.NewProgram(model, tea.WithAltScreen())
		tuiDone = make(chan struct{})
		go func() {
			defer close(tuiDone)
			if _, err := program.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			}
		}()
	}

	runErr := orch.Run(ctx)

	read, dropped, _ := orch.PipelineStats()
	collector.RecordPipelineStats(read, dropped)
	collector.Tick()

	if program != nil {
		tui.SendQuit(program)
		<-tuiDone
	}

	exitCode := 0
	var drawsAssembled, chainsParsed int

	switch {
	case runErr == nil:
		drawsAssembled, chainsParsed, exitCode = assembleSample(cfg, orch, collector, logger)

	case errors.Is(runErr, context.Canceled):
		logger.Warn("run_cancelled")
		exitCode = 130

	default:
		fmt.Fprintln(os.Stderr, runErr)
		exitCode = 1
	}

	succeeded, failed, cancelled := orch.RunSet().Counts()
	fmt.Print(stats.FormatExitSummary(recorder, stats.SummaryConfig{
		RunName:        locator.RunName(),
		ModelExe:       cfg.ModelExe,
		OutputDir:      locator.Dir(),
		Chains:         cfg.Chains,
		Parallel:       cfg.EffectiveParallel(),
		Succeeded:      succeeded,
		Failed:         failed,
		Cancelled:      cancelled,
		DrawsAssembled: drawsAssembled,
		ChainsParsed:   chainsParsed,
		LinesRead:      read,
		LinesDropped:   dropped,
		Degraded:       read > 0 && float64(dropped)/float64(read) > 0.1,
		MetricsAddr:    cfg.MetricsAddr,
	}))

	return exitCode
}

// assembleSample parses every chain's output CSV into one posterior
// sample and reports its shape. Returns (draws per chain, chains
// parsed, exit code).
func assembleSample(cfg *config.Config, orch *orchestrator.Orchestrator,
	collector *metrics.Collector, logger *slog.Logger) (int, int, int) {

	fit := sample.NewMCMC(orch.RunSet().Sources(), sample.Config{
		WarmupRows: cfg.NumWarmup,
		DrawRows:   cfg.NumSamples,
		SaveWarmup: cfg.SaveWarmup,
	}, logger)

	draws, err := fit.Draws(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sample assembly failed: %v\n", err)
		return 0, 0, 1
	}
	collector.RecordDrawsParsed(draws.NumDraws() * draws.NumChains())

	meta, _ := fit.Metadata()
	logger.Info("sample_assembled",
		"draws", draws.NumDraws(),
		"chains", draws.NumChains(),
		"columns", draws.NumColumns(),
		"model_variables", len(meta.StanOrder),
	)

	if sizes, err := fit.StepSizes(); err == nil && len(sizes) > 0 {
		logger.Info("adaptation_recovered", "step_sizes", sizes)
	}

	return draws.NumDraws(), draws.NumChains(), 0
}

// runTracker fans supervisor and parser callbacks out to the metrics
// collector, the duration recorder, and the TUI snapshot source.
type runTracker struct {
	collector *metrics.Collector
	recorder  *stats.Recorder

	mu      sync.Mutex
	updates map[int]parser.IterationUpdate
	states  map[int]supervisor.State
	exits   map[int]int
}

func newRunTracker(collector *metrics.Collector, recorder *stats.Recorder) *runTracker {
	return &runTracker{
		collector: collector,
		recorder:  recorder,
		updates:   make(map[int]parser.IterationUpdate),
		states:    make(map[int]supervisor.State),
		exits:     make(map[int]int),
	}
}

func (t *runTracker) setRunSet(rs *orchestrator.RunSet) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, run := range rs.Runs() {
		t.states[run.ID] = run.State()
	}
}

func (t *runTracker) onStart(chainID, pid int) {
	t.collector.ChainStarted()
}

func (t *runTracker) onExit(chainID, exitCode int, d time.Duration) {
	t.recorder.RecordChainExit(chainID, exitCode, d)
	t.mu.Lock()
	t.exits[chainID] = exitCode
	t.mu.Unlock()
}

func (t *runTracker) onStateChange(chainID int, oldState, newState supervisor.State) {
	t.mu.Lock()
	t.states[chainID] = newState
	code := t.exits[chainID]
	t.mu.Unlock()

	if newState.IsTerminal() {
		// OnExit fires before the state flips terminal, so the
		// duration and exit code are already recorded for chains
		// that ran.
		d, hasExit := t.recorder.ChainDuration(chainID)
		t.collector.ChainSettled(newState.String(), code, hasExit, d)
	}
}

func (t *runTracker) newConsoleParser(chainID int) parser.LineParser {
	return parser.NewIterationParser(func(u parser.IterationUpdate) {
		t.mu.Lock()
		t.updates[chainID] = u
		t.mu.Unlock()
		t.collector.RecordIteration(chainID, u.Current, u.Total)
	})
}

// Snapshots implements tui.SnapshotSource.
func (t *runTracker) Snapshots() []tui.ChainSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]int, 0, len(t.states))
	for id := range t.states {
		ids = append(ids, id)
	}
	// Chain counts are small; insertion sort keeps this dependency
	// free.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}

	out := make([]tui.ChainSnapshot, 0, len(ids))
	for _, id := range ids {
		u := t.updates[id]
		phase := ""
		switch u.Phase {
		case parser.PhaseWarmup:
			phase = "Warmup"
		case parser.PhaseSampling:
			phase = "Sampling"
		}
		out = append(out, tui.ChainSnapshot{
			ID:        id,
			State:     t.states[id].String(),
			Phase:     phase,
			Iteration: u.Current,
			Total:     u.Total,
		})
	}
	return out
}

// strippedModelName returns the executable's base name without a
// trailing extension.
func strippedModelName(exe string) string {
	base := filepath.Base(exe)
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	return base
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config, locator *runfiles.Locator) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          go-stan-swarm                            ║")
	fmt.Println("║        Concurrent CmdStan Chain Orchestration and Parsing         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Model:       %s\n", cfg.ModelExe)
	if cfg.DataFile != "" {
		fmt.Printf("  Data:        %s\n", cfg.DataFile)
	}
	fmt.Printf("  Chains:      %d (%d in parallel)\n", cfg.Chains, cfg.EffectiveParallel())
	fmt.Printf("  Iterations:  %d warmup + %d sampling\n", cfg.NumWarmup, cfg.NumSamples)
	fmt.Printf("  Output:      %s (run %s)\n", cfg.OutputDir, locator.RunName())
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
