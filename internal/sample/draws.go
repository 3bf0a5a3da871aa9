// Package sample assembles parsed per-chain Stan CSV files into one
// in-memory draws structure and exposes variable-level views of it.
package sample

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/randomizedcoder/go-stan-swarm/internal/stancsv"
)

// Source is one chain's output file.
type Source struct {
	ChainID int
	Path    string
}

// Config is what the run configuration promises about every file.
type Config struct {
	// WarmupRows is the number of warmup draws per chain. They are
	// present in the file only when SaveWarmup is set.
	WarmupRows int

	// DrawRows is the number of sampling draws per chain.
	DrawRows int

	// SaveWarmup declares whether warmup rows were written.
	SaveWarmup bool
}

// Draws is the assembled 3-D structure keyed (draw, chain, column).
// Immutable once built; safe for concurrent readers.
type Draws struct {
	data [][][]float64 // [draw][chain][column]
}

// NumDraws returns the number of draws per chain.
func (d *Draws) NumDraws() int {
	return len(d.data)
}

// NumChains returns the number of chains.
func (d *Draws) NumChains() int {
	if len(d.data) == 0 {
		return 0
	}
	return len(d.data[0])
}

// NumColumns returns the number of columns per draw.
func (d *Draws) NumColumns() int {
	if len(d.data) == 0 || len(d.data[0]) == 0 {
		return 0
	}
	return len(d.data[0][0])
}

// At returns the value at (draw, chain, column).
func (d *Draws) At(draw, chain, column int) float64 {
	return d.data[draw][chain][column]
}

// View is a column-subset of a Draws, sharing its backing data.
type View struct {
	draws *Draws
	cols  []int
}

// At returns the value at (draw, chain, i) where i indexes the view's
// column subset.
func (v *View) At(draw, chain, i int) float64 {
	return v.draws.At(draw, chain, v.cols[i])
}

// Dims returns (draws, chains, columns) of the view.
func (v *View) Dims() (nDraws, nChains, nCols int) {
	return v.draws.NumDraws(), v.draws.NumChains(), len(v.cols)
}

// Run is the shared parsed-run core behind every result kind. The
// expensive parse happens on first access, exactly once, even under
// concurrent callers; the result is cached for the Run's lifetime.
type Run struct {
	sources []Source
	cfg     Config
	logger  *slog.Logger

	// leadingMeanRow marks the first data row as a point summary
	// rather than a draw (variational output).
	leadingMeanRow bool

	once sync.Once

	// Everything below is written once inside assemble.
	layout      *stancsv.ColumnLayout
	meta        *Metadata
	all         *Draws // warmup + sampling rows
	warmupRows  int    // rows of all that are warmup
	mean        []float64
	adaptations map[int]*stancsv.Adaptation
	err         error

	assembleCount atomic.Int64 // observability for tests and logs
}

// newRun creates an unassembled Run.
func newRun(sources []Source, cfg Config, logger *slog.Logger) *Run {
	if logger == nil {
		logger = slog.Default()
	}
	return &Run{sources: sources, cfg: cfg, logger: logger}
}

// ensure runs the parse exactly once and caches the outcome, error
// included: a corrupt file stays an error on every later call rather
// than being retried.
func (r *Run) ensure() error {
	r.once.Do(func() {
		r.err = r.assemble()
	})
	return r.err
}

// assemble parses every chain file and builds the draws array.
func (r *Run) assemble() error {
	r.assembleCount.Add(1)

	if len(r.sources) == 0 {
		return fmt.Errorf("no chain files to assemble")
	}

	fileRows := r.cfg.DrawRows
	warmupRows := 0
	if r.cfg.SaveWarmup {
		warmupRows = r.cfg.WarmupRows
		fileRows += warmupRows
	}
	if r.leadingMeanRow {
		fileRows++
	}

	nChains := len(r.sources)
	var rows [][][]float64 // [chain][row][col]
	r.adaptations = make(map[int]*stancsv.Adaptation, nChains)

	for i, src := range r.sources {
		layout, err := stancsv.ParseHeader(src.Path)
		if err != nil {
			return err
		}

		if r.layout == nil {
			r.layout = layout
		} else {
			if err := r.layout.EnsureMatches(layout, src.Path); err != nil {
				return err
			}
			if layout.Meta.SaveWarmup() != r.layout.Meta.SaveWarmup() {
				return &stancsv.ConsistencyError{
					File: src.Path,
					Msg:  "chains disagree on whether warmup draws were saved",
				}
			}
		}

		chainRows, adaptation, err := stancsv.ReadDraws(src.Path, layout, 0, fileRows)
		if err != nil {
			return err
		}
		if rows == nil {
			rows = make([][][]float64, nChains)
		}
		rows[i] = chainRows
		r.adaptations[src.ChainID] = adaptation
	}

	if r.leadingMeanRow {
		// Variational output: the first row is the posterior mean,
		// not a draw.
		r.mean = rows[0][0]
		for i := range rows {
			rows[i] = rows[i][1:]
		}
		fileRows--
	}

	// Transpose to (draw, chain, column).
	data := make([][][]float64, fileRows)
	for d := 0; d < fileRows; d++ {
		data[d] = make([][]float64, nChains)
		for c := 0; c < nChains; c++ {
			data[d][c] = rows[c][d]
		}
	}

	r.all = &Draws{data: data}
	r.warmupRows = warmupRows
	r.meta = newMetadata(r.layout)

	r.logger.Debug("draws_assembled",
		"chains", nChains,
		"draws", fileRows,
		"columns", len(r.layout.Columns),
	)

	return nil
}

// Layout returns the representative column layout.
func (r *Run) Layout() (*stancsv.ColumnLayout, error) {
	if err := r.ensure(); err != nil {
		return nil, err
	}
	return r.layout, nil
}

// Metadata returns the derived-once column and shape metadata.
func (r *Run) Metadata() (*Metadata, error) {
	if err := r.ensure(); err != nil {
		return nil, err
	}
	return r.meta, nil
}

// Draws returns the assembled draws. With incWarmup, saved warmup rows
// lead; requesting warmup that was never saved logs a warning and
// returns the sampling draws only.
func (r *Run) Draws(incWarmup bool) (*Draws, error) {
	if err := r.ensure(); err != nil {
		return nil, err
	}

	if incWarmup {
		if !r.cfg.SaveWarmup {
			r.logger.Warn("warmup_draws_not_saved",
				"hint", "rerun the sampler with save_warmup enabled",
			)
			return &Draws{data: r.all.data[r.warmupRows:]}, nil
		}
		return r.all, nil
	}

	return &Draws{data: r.all.data[r.warmupRows:]}, nil
}

// MethodDraws returns the sampler diagnostic columns of the sampling
// draws.
func (r *Run) MethodDraws() (*View, error) {
	if err := r.ensure(); err != nil {
		return nil, err
	}
	d, _ := r.Draws(false)
	return &View{draws: d, cols: r.layout.MethodColumns()}, nil
}

// ModelDraws returns the model columns of the sampling draws.
func (r *Run) ModelDraws() (*View, error) {
	if err := r.ensure(); err != nil {
		return nil, err
	}
	d, _ := r.Draws(false)
	return &View{draws: d, cols: r.layout.ModelColumns()}, nil
}

// Variable returns a shaped view of one model or sampler variable.
func (r *Run) Variable(name string) (*Variable, error) {
	if err := r.ensure(); err != nil {
		return nil, err
	}

	span, ok := r.layout.ModelVars[name]
	if !ok {
		span, ok = r.layout.MethodVars[name]
	}
	if !ok {
		return nil, fmt.Errorf("unknown variable %q", name)
	}

	d, _ := r.Draws(false)
	return newVariable(name, span, d), nil
}

// AssembleCount returns how many times the parse has actually run.
// It is 0 before first access and 1 ever after.
func (r *Run) AssembleCount() int64 {
	return r.assembleCount.Load()
}
