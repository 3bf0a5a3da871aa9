package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-stan-swarm/internal/parser"
	"github.com/randomizedcoder/go-stan-swarm/internal/process"
)

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnStateChange is called when the chain state changes.
	OnStateChange func(chainID int, oldState, newState State)

	// OnStart is called when a chain process starts.
	OnStart func(chainID int, pid int)

	// OnExit is called when a chain process exits.
	OnExit func(chainID int, exitCode int, duration time.Duration)
}

// Supervisor runs a single chain process to completion.
//
// Unlike a service supervisor there is no restart loop: a chain that
// fails stays failed, and starting a fresh run set is the caller's
// decision.
type Supervisor struct {
	run       *ChainRun
	builder   process.CommandBuilder
	logger    *slog.Logger
	callbacks Callbacks

	timeout time.Duration
	grace   time.Duration

	consoleParser  parser.LineParser
	pipelineBuffer int
	pipeline       *parser.Pipeline

	cmd   *exec.Cmd
	cmdMu sync.Mutex

	startTime time.Time
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Run       *ChainRun
	Builder   process.CommandBuilder
	Logger    *slog.Logger
	Callbacks Callbacks

	// Timeout bounds the chain's wall time. 0 = none.
	Timeout time.Duration

	// GraceTimeout is how long a terminated process gets between
	// SIGTERM and SIGKILL. Defaults to 3s.
	GraceTimeout time.Duration

	// ConsoleParser, when set, receives each console (stdout) line
	// through a lossy pipeline. Used for live progress display.
	ConsoleParser parser.LineParser

	// PipelineBuffer is the console pipeline's channel size.
	PipelineBuffer int
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	grace := cfg.GraceTimeout
	if grace <= 0 {
		grace = 3 * time.Second
	}

	bufferSize := cfg.PipelineBuffer
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	return &Supervisor{
		run:            cfg.Run,
		builder:        cfg.Builder,
		logger:         cfg.Logger,
		callbacks:      cfg.Callbacks,
		timeout:        cfg.Timeout,
		grace:          grace,
		consoleParser:  cfg.ConsoleParser,
		pipelineBuffer: bufferSize,
	}
}

// Run starts the chain process and blocks until it reaches a terminal
// state. The returned error is the failure cause for failed chains,
// ctx.Err() for cancelled ones, and nil on success.
func (s *Supervisor) Run(ctx context.Context) error {
	run := s.run

	// A chain still queued when the run is cancelled never starts.
	if ctx.Err() != nil {
		s.finish(StateCancelled, 0, false, nil)
		return ctx.Err()
	}

	s.setState(StateStarting)

	chainCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		chainCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	console, err := os.Create(run.ConsolePath)
	if err != nil {
		return s.fail(fmt.Errorf("create console log: %w", err))
	}
	defer console.Close()

	cmd, err := s.builder.BuildCommand(chainCtx, run.ID)
	if err != nil {
		return s.fail(fmt.Errorf("build command: %w", err))
	}

	// Each chain gets its own process group so that termination
	// reaches any children the engine spawns.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	// On cancellation, SIGTERM the group and give it grace before
	// the exec package escalates to SIGKILL.
	cmd.Cancel = func() error { return s.terminate() }
	cmd.WaitDelay = s.grace

	// Console output goes to the chain's own log file. Stderr is
	// additionally tailed for failure reports; stdout is optionally
	// teed into the progress pipeline.
	var parseWg sync.WaitGroup
	var pw *io.PipeWriter
	var stdout io.Writer = console
	if s.consoleParser != nil {
		var pr *io.PipeReader
		pr, pw = io.Pipe()
		s.pipeline = parser.NewPipeline(run.ID, "console", s.pipelineBuffer, 0)
		go s.pipeline.RunReader(pr)
		parseWg.Add(1)
		go func() {
			defer parseWg.Done()
			s.pipeline.RunParser(s.consoleParser)
		}()
		stdout = io.MultiWriter(console, pw)
	}
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(console, run.tail)

	s.cmdMu.Lock()
	s.cmd = cmd
	s.cmdMu.Unlock()

	s.startTime = time.Now()
	if err := cmd.Start(); err != nil {
		if pw != nil {
			pw.Close()
		}
		if ctx.Err() != nil {
			s.finish(StateCancelled, 0, false, nil)
			return ctx.Err()
		}
		return s.fail(fmt.Errorf("start process: %w", err))
	}

	pid := cmd.Process.Pid
	s.setState(StateRunning)

	s.logger.Info("chain_started",
		"chain_id", run.ID,
		"pid", pid,
		"output", run.OutputPath,
	)

	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(run.ID, pid)
	}

	waitErr := cmd.Wait()
	duration := time.Since(s.startTime)
	exitCode := extractExitCode(waitErr)
	run.tail.Flush()

	if pw != nil {
		pw.Close()
		s.drainParser(&parseWg)
	}

	s.cmdMu.Lock()
	s.cmd = nil
	s.cmdMu.Unlock()

	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(run.ID, exitCode, duration)
	}

	switch {
	case ctx.Err() != nil:
		// Caller-requested cancellation, not a chain fault.
		s.finish(StateCancelled, exitCode, true, nil)
		s.logger.Info("chain_cancelled",
			"chain_id", run.ID,
			"duration", duration.String(),
		)
		return ctx.Err()

	case chainCtx.Err() == context.DeadlineExceeded:
		err := fmt.Errorf("chain timed out after %s", s.timeout)
		s.finish(StateFailed, exitCode, true, err)
		s.logger.Warn("chain_timeout",
			"chain_id", run.ID,
			"timeout", s.timeout.String(),
		)
		return err

	case exitCode == 0:
		s.finish(StateSucceeded, 0, true, nil)
		s.logger.Info("chain_finished",
			"chain_id", run.ID,
			"duration", duration.String(),
		)
		return nil

	default:
		err := fmt.Errorf("chain %d exited with code %d", run.ID, exitCode)
		s.finish(StateFailed, exitCode, true, err)
		s.logger.Warn("chain_failed",
			"chain_id", run.ID,
			"exit_code", exitCode,
			"duration", duration.String(),
		)
		return err
	}
}

// terminate sends SIGTERM to the chain's process group.
func (s *Supervisor) terminate() error {
	s.cmdMu.Lock()
	cmd := s.cmd
	s.cmdMu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err == nil {
		return syscall.Kill(-pgid, syscall.SIGTERM)
	}
	return cmd.Process.Signal(syscall.SIGTERM)
}

// drainParser waits for the console pipeline to finish, with a timeout.
func (s *Supervisor) drainParser(parseWg *sync.WaitGroup) {
	const drainTimeout = 5 * time.Second

	done := make(chan struct{})
	go func() {
		parseWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		s.logger.Warn("parser_drain_timeout",
			"chain_id", s.run.ID,
			"timeout", drainTimeout.String(),
		)
	}
}

// fail records a pre-exit failure (the process never ran to completion).
func (s *Supervisor) fail(err error) error {
	s.finish(StateFailed, 0, false, err)
	s.logger.Error("chain_start_failed",
		"chain_id", s.run.ID,
		"error", err,
	)
	return err
}

// setState updates the run state and fires the callback.
func (s *Supervisor) setState(newState State) {
	oldState := s.run.setState(newState)
	if s.callbacks.OnStateChange != nil && oldState != newState {
		s.callbacks.OnStateChange(s.run.ID, oldState, newState)
	}
}

// finish records the terminal state and fires the callback.
func (s *Supervisor) finish(newState State, exitCode int, hasExit bool, cause error) {
	s.run.mu.Lock()
	oldState := s.run.state
	s.run.mu.Unlock()

	if s.run.finish(newState, exitCode, hasExit, cause) {
		if s.callbacks.OnStateChange != nil && oldState != newState {
			s.callbacks.OnStateChange(s.run.ID, oldState, newState)
		}
	}
}

// PipelineStats returns (read, dropped, parsed) console line counts.
// Zeros when no console parser was attached.
func (s *Supervisor) PipelineStats() (read, dropped, parsed int64) {
	if s.pipeline == nil {
		return 0, 0, 0
	}
	return s.pipeline.Stats()
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
