// Package runfiles names and places the per-chain artifacts of a run.
//
// Each run owns a directory-unique run name; each chain of the run gets
// exactly one output CSV and one console log under that name. No two
// runs of the same model collide, even when started within the same
// second, because the run name carries a random suffix.
package runfiles

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Locator produces the output and console-log paths for every chain of
// a single run. Immutable after New.
type Locator struct {
	dir     string
	runName string
}

// New creates a Locator for a run of the named model, creating dir if
// needed. If runName is empty, one is derived from the model name, the
// current time, and a random suffix.
func New(dir, modelName, runName string) (*Locator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	if runName == "" {
		runName = fmt.Sprintf("%s-%s-%s",
			modelName,
			time.Now().Format("20060102150405"),
			uuid.NewString()[:8],
		)
	}

	return &Locator{dir: dir, runName: runName}, nil
}

// RunName returns the run name shared by all of this run's artifacts.
func (l *Locator) RunName() string {
	return l.runName
}

// Dir returns the directory holding this run's artifacts.
func (l *Locator) Dir() string {
	return l.dir
}

// OutputPath returns the Stan CSV path for a chain.
func (l *Locator) OutputPath(chainID int) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s_%d.csv", l.runName, chainID))
}

// ConsolePath returns the console log path for a chain.
func (l *Locator) ConsolePath(chainID int) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s_%d-console.txt", l.runName, chainID))
}
