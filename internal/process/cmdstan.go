// Package process provides abstractions for running external inference
// engine processes.
package process

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/randomizedcoder/go-stan-swarm/internal/runfiles"
)

// CommandBuilder creates executable commands for chains.
// This interface keeps the orchestrator decoupled from CmdStan
// specifics; tests substitute their own builders.
type CommandBuilder interface {
	// BuildCommand returns a ready-to-start command for the given chain.
	// The command must NOT be started yet.
	BuildCommand(ctx context.Context, chainID int) (*exec.Cmd, error)

	// Args returns the argument list for the given chain, exe first.
	Args(chainID int) []string

	// Name returns a human-readable name for this process type.
	Name() string
}

// CmdStanConfig holds the per-run settings a CmdStan invocation needs.
// Chains of one run differ only in chain id and output path; everything
// else here is shared.
type CmdStanConfig struct {
	ExePath    string
	DataFile   string
	Seed       int64
	NumSamples int
	NumWarmup  int
	SaveWarmup bool
	Metric     string // unit_e, diag_e, dense_e
}

// CmdStanRunner builds CmdStan sample commands, one per chain.
type CmdStanRunner struct {
	cfg     *CmdStanConfig
	locator *runfiles.Locator
}

// NewCmdStanRunner creates a runner for the given configuration.
// A zero seed is replaced with a clock-derived one so that every chain
// of the run shares the same seed.
func NewCmdStanRunner(cfg *CmdStanConfig, locator *runfiles.Locator) *CmdStanRunner {
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano() % 2147483647
	}
	return &CmdStanRunner{cfg: cfg, locator: locator}
}

// BuildCommand implements CommandBuilder.
func (r *CmdStanRunner) BuildCommand(ctx context.Context, chainID int) (*exec.Cmd, error) {
	if chainID < 1 {
		return nil, fmt.Errorf("chain id must be >= 1, got %d", chainID)
	}
	args := r.Args(chainID)
	return exec.CommandContext(ctx, args[0], args[1:]...), nil
}

// Args implements CommandBuilder. The argument list follows CmdStan's
// hierarchical CLI syntax.
func (r *CmdStanRunner) Args(chainID int) []string {
	c := r.cfg
	args := []string{
		c.ExePath,
		fmt.Sprintf("id=%d", chainID),
		"random", fmt.Sprintf("seed=%d", c.Seed),
	}

	if c.DataFile != "" {
		args = append(args, "data", fmt.Sprintf("file=%s", c.DataFile))
	}

	args = append(args,
		"output", fmt.Sprintf("file=%s", r.locator.OutputPath(chainID)),
		"method=sample",
		fmt.Sprintf("num_samples=%d", c.NumSamples),
		fmt.Sprintf("num_warmup=%d", c.NumWarmup),
		fmt.Sprintf("save_warmup=%d", boolArg(c.SaveWarmup)),
		"algorithm=hmc",
		fmt.Sprintf("metric=%s", c.Metric),
	)

	return args
}

// Name implements CommandBuilder.
func (r *CmdStanRunner) Name() string {
	base := filepath.Base(r.cfg.ExePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CommandString returns the chain-1 command as a shell-pasteable string.
func (r *CmdStanRunner) CommandString() string {
	return strings.Join(r.Args(1), " ")
}

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}
