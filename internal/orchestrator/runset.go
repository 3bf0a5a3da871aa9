package orchestrator

import (
	"fmt"

	"github.com/randomizedcoder/go-stan-swarm/internal/sample"
	"github.com/randomizedcoder/go-stan-swarm/internal/supervisor"
)

// RunSet is the ordered collection of chain runs in one invocation.
// Chain order is fixed at construction; per-chain results land in the
// ChainRun records as the chains settle.
type RunSet struct {
	runs []*supervisor.ChainRun
	byID map[int]*supervisor.ChainRun
}

// NewRunSet wraps the given chain runs. Chain ids must be positive and
// unique within the set.
func NewRunSet(runs []*supervisor.ChainRun) (*RunSet, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("run set needs at least one chain")
	}

	byID := make(map[int]*supervisor.ChainRun, len(runs))
	for _, r := range runs {
		if r.ID < 1 {
			return nil, fmt.Errorf("chain id %d is not positive", r.ID)
		}
		if _, dup := byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate chain id %d", r.ID)
		}
		byID[r.ID] = r
	}

	return &RunSet{runs: runs, byID: byID}, nil
}

// Len returns the number of chains in the set.
func (rs *RunSet) Len() int {
	return len(rs.runs)
}

// Runs returns the chain runs in construction order.
func (rs *RunSet) Runs() []*supervisor.ChainRun {
	return rs.runs
}

// Chain returns the run with the given id, nil when absent.
func (rs *RunSet) Chain(id int) *supervisor.ChainRun {
	return rs.byID[id]
}

// Complete reports whether every chain has reached a terminal state.
func (rs *RunSet) Complete() bool {
	for _, r := range rs.runs {
		if !r.State().IsTerminal() {
			return false
		}
	}
	return true
}

// Counts returns how many chains ended in each terminal state.
func (rs *RunSet) Counts() (succeeded, failed, cancelled int) {
	for _, r := range rs.runs {
		switch r.State() {
		case supervisor.StateSucceeded:
			succeeded++
		case supervisor.StateFailed:
			failed++
		case supervisor.StateCancelled:
			cancelled++
		}
	}
	return succeeded, failed, cancelled
}

// Sources returns each chain's output file as a parse source, in
// chain order.
func (rs *RunSet) Sources() []sample.Source {
	out := make([]sample.Source, 0, len(rs.runs))
	for _, r := range rs.runs {
		out = append(out, sample.Source{ChainID: r.ID, Path: r.OutputPath})
	}
	return out
}
