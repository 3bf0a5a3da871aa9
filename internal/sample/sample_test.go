package sample

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/randomizedcoder/go-stan-swarm/internal/stancsv"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// chainCSV builds a sampler file with columns
// lp__,accept_stat__,theta,mu[1],mu[2]. base offsets the values so
// chains are distinguishable.
func chainCSV(base float64, rows int, saveWarmup bool, warmupRows int) string {
	var b strings.Builder
	b.WriteString("# method = sample (Default)\n")
	b.WriteString("#   save_warmup = ")
	if saveWarmup {
		b.WriteString("1\n")
	} else {
		b.WriteString("0\n")
	}
	b.WriteString("#   metric = diag_e\n")
	b.WriteString("lp__,accept_stat__,theta,mu[1],mu[2]\n")
	total := rows
	if saveWarmup {
		total += warmupRows
	}
	for i := 0; i < total; i++ {
		fmt.Fprintf(&b, "%g,%g,%g,%g,%g\n",
			base-float64(i), 0.9, base+float64(i)*0.01,
			base+10+float64(i), base+20+float64(i))
	}
	b.WriteString("# Adaptation terminated\n")
	b.WriteString("# Step size = 0.75\n")
	b.WriteString("# Diagonal elements of inverse mass matrix:\n")
	b.WriteString("# 0.4, 0.5, 0.6\n")
	return b.String()
}

func writeChain(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func twoChainMCMC(t *testing.T, rows int) *MCMC {
	t.Helper()
	dir := t.TempDir()
	sources := []Source{
		{ChainID: 1, Path: writeChain(t, dir, "run_1.csv", chainCSV(100, rows, false, 0))},
		{ChainID: 2, Path: writeChain(t, dir, "run_2.csv", chainCSV(200, rows, false, 0))},
	}
	return NewMCMC(sources, Config{DrawRows: rows}, discardLogger())
}

func TestMCMCDrawsShape(t *testing.T) {
	fit := twoChainMCMC(t, 4)

	d, err := fit.Draws(false)
	if err != nil {
		t.Fatalf("Draws: %v", err)
	}
	if d.NumDraws() != 4 || d.NumChains() != 2 || d.NumColumns() != 5 {
		t.Fatalf("shape (%d, %d, %d), want (4, 2, 5)",
			d.NumDraws(), d.NumChains(), d.NumColumns())
	}
	// Draw 0 of chain 2 carries that chain's base lp__.
	if got := d.At(0, 1, 0); got != 200 {
		t.Errorf("chain 2 lp__ = %g, want 200", got)
	}
	if got := d.At(3, 0, 0); got != 97 {
		t.Errorf("chain 1 draw 3 lp__ = %g, want 97", got)
	}
}

func TestAssembleOnce(t *testing.T) {
	fit := twoChainMCMC(t, 3)

	if fit.AssembleCount() != 0 {
		t.Fatalf("assembled before first access")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := fit.Draws(false); err != nil {
				t.Errorf("Draws: %v", err)
			}
			if _, err := fit.Metadata(); err != nil {
				t.Errorf("Metadata: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := fit.AssembleCount(); got != 1 {
		t.Errorf("assemble ran %d times, want 1", got)
	}
}

func TestAssembleErrorSticks(t *testing.T) {
	dir := t.TempDir()
	fit := NewMCMC([]Source{
		{ChainID: 1, Path: filepath.Join(dir, "missing.csv")},
	}, Config{DrawRows: 3}, discardLogger())

	_, err1 := fit.Draws(false)
	if err1 == nil {
		t.Fatal("expected error for missing file")
	}
	_, err2 := fit.Metadata()
	if err2 == nil {
		t.Fatal("expected the cached error on second access")
	}
	if fit.AssembleCount() != 1 {
		t.Errorf("assemble ran %d times, want 1", fit.AssembleCount())
	}
}

func TestMismatchedChainsConsistencyError(t *testing.T) {
	dir := t.TempDir()
	other := strings.Replace(chainCSV(200, 3, false, 0), "theta", "sigma", 1)
	fit := NewMCMC([]Source{
		{ChainID: 1, Path: writeChain(t, dir, "run_1.csv", chainCSV(100, 3, false, 0))},
		{ChainID: 2, Path: writeChain(t, dir, "run_2.csv", other)},
	}, Config{DrawRows: 3}, discardLogger())

	_, err := fit.Draws(false)
	var ce *stancsv.ConsistencyError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want ConsistencyError", err)
	}
	if !strings.Contains(ce.File, "run_2.csv") {
		t.Errorf("error names %q, want the second file", ce.File)
	}
}

func TestSaveWarmupDisagreementConsistencyError(t *testing.T) {
	dir := t.TempDir()
	fit := NewMCMC([]Source{
		{ChainID: 1, Path: writeChain(t, dir, "run_1.csv", chainCSV(100, 3, true, 2))},
		{ChainID: 2, Path: writeChain(t, dir, "run_2.csv", chainCSV(200, 3, false, 0))},
	}, Config{DrawRows: 3, WarmupRows: 2, SaveWarmup: true}, discardLogger())

	_, err := fit.Draws(false)
	var ce *stancsv.ConsistencyError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want ConsistencyError", err)
	}
}

func TestWarmupSlicing(t *testing.T) {
	dir := t.TempDir()
	fit := NewMCMC([]Source{
		{ChainID: 1, Path: writeChain(t, dir, "run_1.csv", chainCSV(100, 3, true, 2))},
	}, Config{DrawRows: 3, WarmupRows: 2, SaveWarmup: true}, discardLogger())

	all, err := fit.Draws(true)
	if err != nil {
		t.Fatalf("Draws(true): %v", err)
	}
	if all.NumDraws() != 5 {
		t.Fatalf("with warmup got %d draws, want 5", all.NumDraws())
	}
	post, err := fit.Draws(false)
	if err != nil {
		t.Fatalf("Draws(false): %v", err)
	}
	if post.NumDraws() != 3 {
		t.Fatalf("without warmup got %d draws, want 3", post.NumDraws())
	}
	// The first post-warmup draw is row 2 of the file.
	if post.At(0, 0, 0) != all.At(2, 0, 0) {
		t.Error("sampling draws do not start after the warmup rows")
	}
}

func TestWarmupNotSavedFallsBack(t *testing.T) {
	fit := twoChainMCMC(t, 3)

	d, err := fit.Draws(true)
	if err != nil {
		t.Fatalf("Draws(true): %v", err)
	}
	if d.NumDraws() != 3 {
		t.Errorf("got %d draws, want the 3 sampling draws", d.NumDraws())
	}
}

func TestMethodAndModelViews(t *testing.T) {
	fit := twoChainMCMC(t, 2)

	method, err := fit.MethodDraws()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, cols := method.Dims(); cols != 2 {
		t.Errorf("method columns = %d, want 2", cols)
	}
	model, err := fit.ModelDraws()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, cols := model.Dims(); cols != 3 {
		t.Errorf("model columns = %d, want 3", cols)
	}
	// Model view column 0 is theta, file column 2.
	full, _ := fit.Draws(false)
	if model.At(1, 1, 0) != full.At(1, 1, 2) {
		t.Error("model view does not track the underlying column")
	}
}

func TestVariableReshape(t *testing.T) {
	fit := twoChainMCMC(t, 3)

	v, err := fit.Variable("mu")
	if err != nil {
		t.Fatal(err)
	}
	wantDims := []int{3, 2, 2}
	dims := v.Dims()
	if len(dims) != len(wantDims) {
		t.Fatalf("dims %v, want %v", dims, wantDims)
	}
	for i := range dims {
		if dims[i] != wantDims[i] {
			t.Fatalf("dims %v, want %v", dims, wantDims)
		}
	}

	// mu[2] of chain 1, draw 0 is base+20 = 120.
	got, err := v.At(0, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got != 120 {
		t.Errorf("mu[2] = %g, want 120", got)
	}

	if _, err := v.At(0, 0, 3); err == nil {
		t.Error("index 3 of a length-2 variable should error")
	}
	if _, err := v.At(0, 0, 1, 1); err == nil {
		t.Error("two indices into a vector should error")
	}

	if _, err := fit.Variable("nope"); err == nil {
		t.Error("unknown variable should error")
	}
}

func TestScalarVariable(t *testing.T) {
	fit := twoChainMCMC(t, 2)

	v, err := fit.Variable("lp__")
	if err != nil {
		t.Fatal(err)
	}
	dims := v.Dims()
	if len(dims) != 2 || dims[0] != 2 || dims[1] != 2 {
		t.Fatalf("scalar dims %v, want [2 2]", dims)
	}
	got, err := v.At(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 199 {
		t.Errorf("lp__ draw 1 chain 2 = %g, want 199", got)
	}
}

func TestMetadataShapes(t *testing.T) {
	fit := twoChainMCMC(t, 2)

	meta, err := fit.Metadata()
	if err != nil {
		t.Fatal(err)
	}
	if shape, ok := meta.Shape("mu"); !ok || len(shape) != 1 || shape[0] != 2 {
		t.Errorf("mu shape = %v, want [2]", shape)
	}
	if shape, ok := meta.Shape("theta"); !ok || shape != nil {
		t.Errorf("theta shape = %v, want scalar", shape)
	}
	if _, ok := meta.Shape("nope"); ok {
		t.Error("unknown variable reported a shape")
	}
}

func TestMCMCAdaptation(t *testing.T) {
	fit := twoChainMCMC(t, 2)

	a, err := fit.Adaptation(1)
	if err != nil {
		t.Fatal(err)
	}
	if a == nil {
		t.Fatal("chain 1 adaptation missing")
	}
	if a.StepSize != 0.75 {
		t.Errorf("step size = %g, want 0.75", a.StepSize)
	}
	if len(a.Diagonal) != 3 || a.Diagonal[1] != 0.5 {
		t.Errorf("diagonal = %v", a.Diagonal)
	}

	sizes, err := fit.StepSizes()
	if err != nil {
		t.Fatal(err)
	}
	if len(sizes) != 2 || sizes[2] != 0.75 {
		t.Errorf("step sizes = %v", sizes)
	}

	if fit.Kind() != KindSample {
		t.Errorf("kind = %v", fit.Kind())
	}
}

func TestMLEPointEstimate(t *testing.T) {
	var b strings.Builder
	b.WriteString("# method = optimize\n")
	b.WriteString("lp__,theta,mu[1],mu[2]\n")
	b.WriteString("-5.25,0.31,1.5,2.5\n")
	path := writeChain(t, t.TempDir(), "mle.csv", b.String())

	fit := NewMLE(Source{ChainID: 1, Path: path}, discardLogger())
	if fit.Kind() != KindOptimize {
		t.Errorf("kind = %v", fit.Kind())
	}

	params, err := fit.OptimizedParams()
	if err != nil {
		t.Fatalf("OptimizedParams: %v", err)
	}
	if params["lp__"] != -5.25 || params["theta"] != 0.31 {
		t.Errorf("params = %v", params)
	}
	if params["mu[2]"] != 2.5 {
		t.Errorf("mu[2] = %g, want 2.5", params["mu[2]"])
	}
}

func TestVariationalMeanRow(t *testing.T) {
	var b strings.Builder
	b.WriteString("# method = variational\n")
	b.WriteString("lp__,log_p__,log_g__,theta\n")
	b.WriteString("0,0,0,0.5\n") // mean row
	b.WriteString("0,-1.1,-0.2,0.48\n")
	b.WriteString("0,-1.2,-0.3,0.52\n")
	path := writeChain(t, t.TempDir(), "vb.csv", b.String())

	fit := NewVariational(Source{ChainID: 1, Path: path}, 2, discardLogger())
	if fit.Kind() != KindVariational {
		t.Errorf("kind = %v", fit.Kind())
	}

	d, err := fit.Draws(false)
	if err != nil {
		t.Fatalf("Draws: %v", err)
	}
	if d.NumDraws() != 2 {
		t.Fatalf("got %d draws, want 2 (mean row excluded)", d.NumDraws())
	}
	if d.At(0, 0, 3) != 0.48 {
		t.Errorf("first draw theta = %g, want 0.48", d.At(0, 0, 3))
	}

	mean, err := fit.Mean()
	if err != nil {
		t.Fatal(err)
	}
	if len(mean) != 4 || mean[3] != 0.5 {
		t.Errorf("mean = %v", mean)
	}
}

func TestGQDraws(t *testing.T) {
	var b strings.Builder
	b.WriteString("# method = generate_quantities\n")
	b.WriteString("y_rep[1],y_rep[2]\n")
	b.WriteString("1.5,2.5\n")
	b.WriteString("1.6,2.6\n")
	path := writeChain(t, t.TempDir(), "gq.csv", b.String())

	fit := NewGQ([]Source{{ChainID: 1, Path: path}},
		Config{DrawRows: 2}, discardLogger())
	if fit.Kind() != KindGenerateQuantities {
		t.Errorf("kind = %v", fit.Kind())
	}

	v, err := fit.Variable("y_rep")
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.At(1, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2.6 {
		t.Errorf("y_rep[2] draw 1 = %g, want 2.6", got)
	}
}

func TestNoSources(t *testing.T) {
	fit := NewMCMC(nil, Config{DrawRows: 1}, discardLogger())
	if _, err := fit.Draws(false); err == nil {
		t.Fatal("expected error for empty source list")
	}
}

func TestKindStrings(t *testing.T) {
	cases := []struct {
		kind Kind
		want string
	}{
		{KindSample, "sample"},
		{KindOptimize, "optimize"},
		{KindVariational, "variational"},
		{KindGenerateQuantities, "generate_quantities"},
		{Kind(99), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestSpecialValuesSurvive(t *testing.T) {
	var b strings.Builder
	b.WriteString("# method = sample\n")
	b.WriteString("lp__,theta\n")
	b.WriteString("nan,inf\n")
	b.WriteString("-inf,0.5\n")
	path := writeChain(t, t.TempDir(), "special.csv", b.String())

	fit := NewMCMC([]Source{{ChainID: 1, Path: path}},
		Config{DrawRows: 2}, discardLogger())
	d, err := fit.Draws(false)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(d.At(0, 0, 0)) {
		t.Error("nan not preserved")
	}
	if !math.IsInf(d.At(0, 0, 1), 1) || !math.IsInf(d.At(1, 0, 0), -1) {
		t.Error("inf values not preserved")
	}
}
