package supervisor

import (
	"sync"
	"time"

	"github.com/randomizedcoder/go-stan-swarm/internal/logging"
)

// ChainRun is the record of one chain process invocation. The
// supervisor mutates it exactly once, when the process reaches a
// terminal state; after that it is frozen and safe to share.
type ChainRun struct {
	// ID is the chain id, positive and unique within its run set.
	ID int

	// Args is the full argument list, exe first.
	Args []string

	// OutputPath is the Stan CSV this chain writes.
	OutputPath string

	// ConsolePath is where this chain's console output is captured.
	ConsolePath string

	mu          sync.Mutex
	state       State
	exitCode    int
	hasExit     bool
	completedAt time.Time
	failErr     error
	tail        *logging.Tail
}

// NewChainRun creates a pending ChainRun.
func NewChainRun(id int, args []string, outputPath, consolePath string) *ChainRun {
	return &ChainRun{
		ID:          id,
		Args:        args,
		OutputPath:  outputPath,
		ConsolePath: consolePath,
		state:       StatePending,
		tail:        logging.NewTail(logging.DefaultTailLines),
	}
}

// State returns the chain's current state.
func (c *ChainRun) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ExitCode returns the recorded exit code. ok is false until the
// process has exited.
func (c *ChainRun) ExitCode() (code int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode, c.hasExit
}

// CompletedAt returns when the chain reached a terminal state.
func (c *ChainRun) CompletedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completedAt
}

// Succeeded reports whether the chain exited cleanly.
func (c *ChainRun) Succeeded() bool {
	return c.State() == StateSucceeded
}

// Err returns the failure cause, nil for succeeded or cancelled chains.
func (c *ChainRun) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failErr
}

// StderrTail returns the last captured stderr lines, oldest first.
func (c *ChainRun) StderrTail() string {
	return c.tail.String()
}

// setState moves the chain to a non-terminal state. Terminal states go
// through finish. Returns the previous state.
func (c *ChainRun) setState(s State) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.state
	if !old.IsTerminal() {
		c.state = s
	}
	return old
}

// finish records the terminal state exactly once. Later calls are
// ignored, which keeps the frozen-after-exit invariant even if both a
// kill path and the wait path try to record an outcome.
func (c *ChainRun) finish(s State, exitCode int, hasExit bool, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsTerminal() {
		return false
	}
	c.state = s
	c.exitCode = exitCode
	c.hasExit = hasExit
	c.completedAt = time.Now()
	c.failErr = err
	return true
}
