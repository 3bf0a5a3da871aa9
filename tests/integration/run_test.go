//go:build integration

// Package integration contains end-to-end tests that exercise the full
// chain-run path with a stand-in model binary. Run with:
// go test -tags=integration ./tests/integration/...
package integration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/randomizedcoder/go-stan-swarm/internal/orchestrator"
	"github.com/randomizedcoder/go-stan-swarm/internal/parser"
	"github.com/randomizedcoder/go-stan-swarm/internal/process"
	"github.com/randomizedcoder/go-stan-swarm/internal/runfiles"
	"github.com/randomizedcoder/go-stan-swarm/internal/sample"
)

// fakeModel is a shell stand-in for a compiled CmdStan model. It
// accepts CmdStan's hierarchical arguments, prints progress lines,
// and writes a small valid output CSV.
const fakeModel = `#!/bin/sh
out=""
id=0
prev=""
for a in "$@"; do
  case "$a" in
    id=*) id=${a#id=} ;;
    file=*) [ "$prev" = "output" ] && out=${a#file=} ;;
  esac
  prev="$a"
done

[ -n "$out" ] || { echo "no output file argument" >&2; exit 2; }

echo "Iteration:    1 / 5 [ 20%]  (Warmup)"
echo "Iteration:    5 / 5 [100%]  (Sampling)"

cat > "$out" <<EOF
# method = sample (Default)
#   num_samples = 3
#   num_warmup = 2
#   save_warmup = 0
#   metric = diag_e
lp__,accept_stat__,theta
-7.$id,0.90,0.25
-7.$id,0.85,0.30
-7.$id,0.95,0.28
# Step size = 0.8
# Diagonal elements of inverse mass matrix:
# 0.5
EOF
`

func writeFakeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bernoulli")
	if err := os.WriteFile(path, []byte(fakeModel), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFullRunAndAssembly(t *testing.T) {
	exe := writeFakeModel(t)
	outDir := t.TempDir()

	locator, err := runfiles.New(outDir, "bernoulli", "")
	if err != nil {
		t.Fatal(err)
	}

	builder := process.NewCmdStanRunner(&process.CmdStanConfig{
		ExePath:    exe,
		Seed:       42,
		NumSamples: 3,
		NumWarmup:  2,
		Metric:     "diag_e",
	}, locator)

	var mu sync.Mutex
	progress := make(map[int]parser.IterationUpdate)

	orch, err := orchestrator.New(orchestrator.Config{
		Builder:  builder,
		Locator:  locator,
		Logger:   discardLogger(),
		Chains:   2,
		Parallel: 2,
		NewConsoleParser: func(chainID int) parser.LineParser {
			return parser.NewIterationParser(func(u parser.IterationUpdate) {
				mu.Lock()
				progress[chainID] = u
				mu.Unlock()
			})
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := orch.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Every chain wrote its CSV and console log.
	for _, run := range orch.RunSet().Runs() {
		if _, err := os.Stat(run.OutputPath); err != nil {
			t.Errorf("chain %d output missing: %v", run.ID, err)
		}
		if _, err := os.Stat(run.ConsolePath); err != nil {
			t.Errorf("chain %d console log missing: %v", run.ID, err)
		}
	}

	// Progress lines made it through the pipeline.
	mu.Lock()
	for id := 1; id <= 2; id++ {
		u, ok := progress[id]
		if !ok {
			t.Errorf("chain %d reported no progress", id)
			continue
		}
		if u.Current != 5 || u.Phase != parser.PhaseSampling {
			t.Errorf("chain %d final update %+v", id, u)
		}
	}
	mu.Unlock()

	// Assemble and check the posterior sample.
	fit := sample.NewMCMC(orch.RunSet().Sources(), sample.Config{
		WarmupRows: 2,
		DrawRows:   3,
	}, discardLogger())

	draws, err := fit.Draws(false)
	if err != nil {
		t.Fatalf("Draws: %v", err)
	}
	if draws.NumDraws() != 3 || draws.NumChains() != 2 || draws.NumColumns() != 3 {
		t.Fatalf("shape (%d, %d, %d), want (3, 2, 3)",
			draws.NumDraws(), draws.NumChains(), draws.NumColumns())
	}

	v, err := fit.Variable("theta")
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.At(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0.30 {
		t.Errorf("theta draw 1 = %g, want 0.30", got)
	}

	sizes, err := fit.StepSizes()
	if err != nil {
		t.Fatal(err)
	}
	if len(sizes) != 2 || sizes[1] != 0.8 || sizes[2] != 0.8 {
		t.Errorf("step sizes = %v", sizes)
	}
}

func TestFailedChainReportedWithTail(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "broken")
	script := "#!/bin/sh\necho 'Exception: model blew up' >&2\nexit 1\n"
	if err := os.WriteFile(exe, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	locator, err := runfiles.New(t.TempDir(), "broken", "")
	if err != nil {
		t.Fatal(err)
	}

	builder := process.NewCmdStanRunner(&process.CmdStanConfig{
		ExePath:    exe,
		Seed:       1,
		NumSamples: 1,
		NumWarmup:  1,
		Metric:     "diag_e",
	}, locator)

	orch, err := orchestrator.New(orchestrator.Config{
		Builder:  builder,
		Locator:  locator,
		Logger:   discardLogger(),
		Chains:   2,
		Parallel: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	runErr := orch.Run(context.Background())
	if runErr == nil {
		t.Fatal("expected a run failure")
	}

	var rfe *orchestrator.RunFailureError
	if !errors.As(runErr, &rfe) {
		t.Fatalf("got %T, want RunFailureError", runErr)
	}
	if len(rfe.Failures) != 2 {
		t.Fatalf("%d failures, want 2", len(rfe.Failures))
	}
	for _, f := range rfe.Failures {
		if f.ExitCode != 1 {
			t.Errorf("chain %d exit code %d", f.ChainID, f.ExitCode)
		}
	}
}
