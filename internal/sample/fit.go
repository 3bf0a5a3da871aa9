package sample

import (
	"fmt"
	"log/slog"

	"github.com/randomizedcoder/go-stan-swarm/internal/stancsv"
)

// Kind identifies what an engine run produced.
type Kind int

const (
	// KindSample is a posterior sample from the HMC/NUTS sampler.
	KindSample Kind = iota

	// KindOptimize is a penalized maximum likelihood point estimate.
	KindOptimize

	// KindVariational is a draw set from the variational approximation.
	KindVariational

	// KindGenerateQuantities is generated quantities over an existing
	// sample.
	KindGenerateQuantities
)

// String returns the CmdStan method name for the kind.
func (k Kind) String() string {
	switch k {
	case KindSample:
		return "sample"
	case KindOptimize:
		return "optimize"
	case KindVariational:
		return "variational"
	case KindGenerateQuantities:
		return "generate_quantities"
	default:
		return "unknown"
	}
}

// Fit is the capability every result kind shares: the lazily parsed
// run. The kinds differ only in which extra diagnostics they recover
// from the files' comment blocks.
type Fit interface {
	Kind() Kind
	Metadata() (*Metadata, error)
	Draws(incWarmup bool) (*Draws, error)
	Variable(name string) (*Variable, error)
}

// MCMC is a posterior sample across one or more chains. It recovers
// per-chain adaptation diagnostics (step size and metric).
type MCMC struct {
	*Run
}

// NewMCMC creates the result object for a sampler run.
func NewMCMC(sources []Source, cfg Config, logger *slog.Logger) *MCMC {
	return &MCMC{Run: newRun(sources, cfg, logger)}
}

// Kind implements Fit.
func (m *MCMC) Kind() Kind { return KindSample }

// Adaptation returns the recovered warmup diagnostics for a chain,
// nil when the chain's file carried none.
func (m *MCMC) Adaptation(chainID int) (*stancsv.Adaptation, error) {
	if err := m.ensure(); err != nil {
		return nil, err
	}
	return m.adaptations[chainID], nil
}

// StepSizes returns each chain's adapted step size, keyed by chain id.
func (m *MCMC) StepSizes() (map[int]float64, error) {
	if err := m.ensure(); err != nil {
		return nil, err
	}
	out := make(map[int]float64, len(m.adaptations))
	for id, a := range m.adaptations {
		if a != nil {
			out[id] = a.StepSize
		}
	}
	return out, nil
}

// MLE is a point estimate: a single optimizer row per run.
type MLE struct {
	*Run
}

// NewMLE creates the result object for an optimizer run.
func NewMLE(source Source, logger *slog.Logger) *MLE {
	cfg := Config{DrawRows: 1}
	return &MLE{Run: newRun([]Source{source}, cfg, logger)}
}

// Kind implements Fit.
func (m *MLE) Kind() Kind { return KindOptimize }

// OptimizedParams returns the point estimate as a column-name-to-value
// map.
func (m *MLE) OptimizedParams() (map[string]float64, error) {
	if err := m.ensure(); err != nil {
		return nil, err
	}
	d, err := m.Draws(false)
	if err != nil {
		return nil, err
	}
	if d.NumDraws() != 1 {
		return nil, fmt.Errorf("point estimate has %d rows, expected 1", d.NumDraws())
	}
	out := make(map[string]float64, len(m.layout.Columns))
	for i, name := range m.layout.Columns {
		out[name] = d.At(0, 0, i)
	}
	return out, nil
}

// Variational is a draw set from the variational approximation. The
// file's first data row is the approximation's mean, not a draw.
type Variational struct {
	*Run
}

// NewVariational creates the result object for a variational run.
func NewVariational(source Source, drawRows int, logger *slog.Logger) *Variational {
	cfg := Config{DrawRows: drawRows}
	r := newRun([]Source{source}, cfg, logger)
	r.leadingMeanRow = true
	return &Variational{Run: r}
}

// Kind implements Fit.
func (v *Variational) Kind() Kind { return KindVariational }

// Mean returns the variational mean row, one value per column.
func (v *Variational) Mean() ([]float64, error) {
	if err := v.ensure(); err != nil {
		return nil, err
	}
	return v.mean, nil
}

// GQ is a generated-quantities draw set computed over an existing
// sample.
type GQ struct {
	*Run
}

// NewGQ creates the result object for a generate_quantities run.
func NewGQ(sources []Source, cfg Config, logger *slog.Logger) *GQ {
	return &GQ{Run: newRun(sources, cfg, logger)}
}

// Kind implements Fit.
func (g *GQ) Kind() Kind { return KindGenerateQuantities }
