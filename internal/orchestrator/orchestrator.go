// Package orchestrator runs a set of chain processes with bounded
// parallelism and reports their collective outcome.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-stan-swarm/internal/logging"
	"github.com/randomizedcoder/go-stan-swarm/internal/parser"
	"github.com/randomizedcoder/go-stan-swarm/internal/process"
	"github.com/randomizedcoder/go-stan-swarm/internal/runfiles"
	"github.com/randomizedcoder/go-stan-swarm/internal/supervisor"
)

// Config holds configuration for creating an Orchestrator.
type Config struct {
	Builder process.CommandBuilder
	Locator *runfiles.Locator
	Logger  *slog.Logger

	// Chains is the number of chains to run, ids 1..Chains.
	Chains int

	// Parallel bounds how many chains run at once. Must be at least 1.
	Parallel int

	// Timeout bounds each chain's wall time. 0 = none.
	Timeout time.Duration

	// GraceTimeout is passed through to each chain's supervisor.
	GraceTimeout time.Duration

	Callbacks supervisor.Callbacks

	// NewConsoleParser, when set, supplies a per-chain console line
	// parser for live progress.
	NewConsoleParser func(chainID int) parser.LineParser

	PipelineBuffer int
}

// Orchestrator owns one run set and the supervisors that drive it.
// A failed chain never interrupts its siblings; failures are
// aggregated after every chain settles.
type Orchestrator struct {
	cfg         Config
	runSet      *RunSet
	supervisors map[int]*supervisor.Supervisor
}

// New creates an Orchestrator and its pending run set.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Chains < 1 {
		return nil, fmt.Errorf("chains must be at least 1, got %d", cfg.Chains)
	}
	if cfg.Parallel < 1 {
		return nil, fmt.Errorf("parallel must be at least 1, got %d", cfg.Parallel)
	}
	if cfg.Builder == nil {
		return nil, fmt.Errorf("command builder is required")
	}
	if cfg.Locator == nil {
		return nil, fmt.Errorf("run file locator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	runs := make([]*supervisor.ChainRun, 0, cfg.Chains)
	for id := 1; id <= cfg.Chains; id++ {
		runs = append(runs, supervisor.NewChainRun(
			id,
			cfg.Builder.Args(id),
			cfg.Locator.OutputPath(id),
			cfg.Locator.ConsolePath(id),
		))
	}
	runSet, err := NewRunSet(runs)
	if err != nil {
		return nil, err
	}

	supervisors := make(map[int]*supervisor.Supervisor, cfg.Chains)
	for _, run := range runs {
		var consoleParser parser.LineParser
		if cfg.NewConsoleParser != nil {
			consoleParser = cfg.NewConsoleParser(run.ID)
		}
		supervisors[run.ID] = supervisor.New(supervisor.Config{
			Run:            run,
			Builder:        cfg.Builder,
			Logger:         logging.ForChain(cfg.Logger, run.ID),
			Callbacks:      cfg.Callbacks,
			Timeout:        cfg.Timeout,
			GraceTimeout:   cfg.GraceTimeout,
			ConsoleParser:  consoleParser,
			PipelineBuffer: cfg.PipelineBuffer,
		})
	}

	return &Orchestrator{
		cfg:         cfg,
		runSet:      runSet,
		supervisors: supervisors,
	}, nil
}

// RunSet returns the orchestrator's run set. Safe to read while the
// run is in flight.
func (o *Orchestrator) RunSet() *RunSet {
	return o.runSet
}

// Run drives every chain to a terminal state and blocks until the
// whole set has settled. At most Parallel chains run at once.
//
// One chain failing does not stop the others: each supervisor records
// its chain's outcome in the ChainRun, and Run reports all failures
// together afterwards. The returned error is ctx.Err() when the run
// was cancelled, a *RunFailureError when any chain failed, nil when
// every chain succeeded.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.cfg.Logger.Info("run_set_start",
		"chains", o.runSet.Len(),
		"parallel", o.cfg.Parallel,
	)
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(o.cfg.Parallel)

	for _, run := range o.runSet.Runs() {
		sup := o.supervisors[run.ID]
		g.Go(func() error {
			// Outcomes live in the ChainRun; returning the error here
			// would make errgroup treat the first failure as the
			// run's, which is not the semantics we want.
			_ = sup.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	succeeded, failed, cancelled := o.runSet.Counts()
	o.cfg.Logger.Info("run_set_done",
		"succeeded", succeeded,
		"failed", failed,
		"cancelled", cancelled,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if err := ctx.Err(); err != nil {
		return err
	}
	return o.failureError()
}

// failureError builds the aggregate error for a settled run set, nil
// when every chain succeeded.
func (o *Orchestrator) failureError() error {
	var failures []ChainFailure
	for _, run := range o.runSet.Runs() {
		if run.State() != supervisor.StateFailed {
			continue
		}
		code, hasExit := run.ExitCode()
		failures = append(failures, ChainFailure{
			ChainID:     run.ID,
			ExitCode:    code,
			HasExit:     hasExit,
			Err:         run.Err(),
			StderrTail:  run.StderrTail(),
			ConsolePath: run.ConsolePath,
		})
	}
	if len(failures) == 0 {
		return nil
	}
	return &RunFailureError{Total: o.runSet.Len(), Failures: failures}
}

// PipelineStats sums the console pipeline counters across chains.
func (o *Orchestrator) PipelineStats() (read, dropped, parsed int64) {
	for _, sup := range o.supervisors {
		r, d, p := sup.PipelineStats()
		read += r
		dropped += d
		parsed += p
	}
	return read, dropped, parsed
}
