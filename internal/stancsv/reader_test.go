package stancsv

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

// sampleCSV builds a small two-parameter sampler file.
func sampleCSV(metric string, rows []string, trailing ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# method = sample (Default)\n")
	fmt.Fprintf(&b, "#   metric = %s\n", metric)
	b.WriteString("lp__,accept_stat__,theta,mu\n")
	for _, r := range rows {
		b.WriteString(r + "\n")
	}
	for _, c := range trailing {
		b.WriteString(c + "\n")
	}
	return b.String()
}

func mustLayout(t *testing.T, path string) *ColumnLayout {
	t.Helper()
	layout, err := ParseHeader(path)
	if err != nil {
		t.Fatal(err)
	}
	return layout
}

func TestReadDrawsRoundTrip(t *testing.T) {
	rows := []string{
		"-7.2,0.9,0.25,1.5",
		"-7.3,0.8,0.30,1.6",
		"-7.1,0.95,0.28,1.4",
	}
	path := writeCSV(t, sampleCSV("diag_e", rows))
	layout := mustLayout(t, path)

	draws, adaptation, err := ReadDraws(path, layout, 0, 3)
	if err != nil {
		t.Fatalf("ReadDraws: %v", err)
	}
	if adaptation != nil {
		t.Error("no adaptation block, expected nil")
	}
	if len(draws) != 3 {
		t.Fatalf("got %d rows", len(draws))
	}
	if draws[0][0] != -7.2 || draws[1][2] != 0.30 || draws[2][3] != 1.4 {
		t.Errorf("values not round-tripped: %v", draws)
	}
}

func TestReadDrawsSkipsWarmup(t *testing.T) {
	rows := []string{
		"-9.0,0.5,0.1,1.0", // warmup
		"-8.0,0.6,0.2,1.1", // warmup
		"-7.0,0.9,0.3,1.2",
		"-7.1,0.9,0.4,1.3",
	}
	path := writeCSV(t, sampleCSV("diag_e", rows))
	layout := mustLayout(t, path)

	draws, _, err := ReadDraws(path, layout, 2, 2)
	if err != nil {
		t.Fatalf("ReadDraws: %v", err)
	}
	if len(draws) != 2 {
		t.Fatalf("got %d rows, want 2", len(draws))
	}
	if draws[0][0] != -7.0 {
		t.Errorf("first sampling draw = %v, warmup not skipped", draws[0])
	}
}

func TestReadDrawsSpecialTokens(t *testing.T) {
	rows := []string{"nan,inf,-inf,1.0"}
	path := writeCSV(t, sampleCSV("diag_e", rows))
	layout := mustLayout(t, path)

	draws, _, err := ReadDraws(path, layout, 0, 1)
	if err != nil {
		t.Fatalf("special tokens must not error: %v", err)
	}
	row := draws[0]
	if !math.IsNaN(row[0]) {
		t.Errorf("row[0] = %v, want NaN", row[0])
	}
	if !math.IsInf(row[1], 1) || !math.IsInf(row[2], -1) {
		t.Errorf("row[1], row[2] = %v, %v", row[1], row[2])
	}
}

func TestReadDrawsShortFile(t *testing.T) {
	rows := []string{"-7.2,0.9,0.25,1.5"}
	path := writeCSV(t, sampleCSV("diag_e", rows))
	layout := mustLayout(t, path)

	_, _, err := ReadDraws(path, layout, 0, 5)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %T: %v", err, err)
	}
	if perr.File != path {
		t.Errorf("error does not name file: %v", perr)
	}
}

func TestReadDrawsBadField(t *testing.T) {
	rows := []string{"-7.2,0.9,oops,1.5"}
	path := writeCSV(t, sampleCSV("diag_e", rows))
	layout := mustLayout(t, path)

	_, _, err := ReadDraws(path, layout, 0, 1)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %T: %v", err, err)
	}
	if perr.Line != 4 || perr.Column != 3 {
		t.Errorf("fault location = line %d col %d, want line 4 col 3", perr.Line, perr.Column)
	}
}

func TestReadDrawsWrongFieldCount(t *testing.T) {
	rows := []string{"-7.2,0.9,0.25"}
	path := writeCSV(t, sampleCSV("diag_e", rows))
	layout := mustLayout(t, path)

	if _, _, err := ReadDraws(path, layout, 0, 1); err == nil {
		t.Error("expected error for short row")
	}
}

func TestReadDrawsExcessRows(t *testing.T) {
	rows := []string{"-7.2,0.9,0.25,1.5", "-7.3,0.8,0.3,1.6"}
	path := writeCSV(t, sampleCSV("diag_e", rows))
	layout := mustLayout(t, path)

	if _, _, err := ReadDraws(path, layout, 0, 1); err == nil {
		t.Error("expected error for extra data rows")
	}
}

func TestReadDrawsDiagonalAdaptation(t *testing.T) {
	rows := []string{"-7.2,0.9,0.25,1.5"}
	path := writeCSV(t, sampleCSV("diag_e", rows,
		"# Adaptation terminated",
		"# Step size = 0.809818",
		"# Diagonal elements of inverse mass matrix:",
		"# 0.448, 0.554",
		"#  Elapsed Time: 0.012 seconds (Warm-up)",
	))
	layout := mustLayout(t, path)

	_, a, err := ReadDraws(path, layout, 0, 1)
	if err != nil {
		t.Fatalf("ReadDraws: %v", err)
	}
	if a == nil {
		t.Fatal("expected adaptation info")
	}
	if a.StepSize != 0.809818 {
		t.Errorf("StepSize = %v", a.StepSize)
	}
	if a.MetricType != "diag_e" {
		t.Errorf("MetricType = %q", a.MetricType)
	}
	if len(a.Diagonal) != 2 || a.Diagonal[0] != 0.448 || a.Diagonal[1] != 0.554 {
		t.Errorf("Diagonal = %v", a.Diagonal)
	}
}

func TestReadDrawsDenseAdaptation(t *testing.T) {
	rows := []string{"-7.2,0.9,0.25,1.5"}
	path := writeCSV(t, sampleCSV("dense_e", rows,
		"# Adaptation terminated",
		"# Step size = 0.5",
		"# Elements of inverse mass matrix:",
		"# 1.0, 0.1",
		"# 0.1, 2.0",
	))
	layout := mustLayout(t, path)

	_, a, err := ReadDraws(path, layout, 0, 1)
	if err != nil {
		t.Fatalf("ReadDraws: %v", err)
	}
	if a == nil {
		t.Fatal("expected adaptation info")
	}
	if len(a.Dense) != 2 || len(a.Dense[0]) != 2 {
		t.Fatalf("Dense = %v", a.Dense)
	}
	if a.Dense[1][0] != 0.1 || a.Dense[1][1] != 2.0 {
		t.Errorf("Dense = %v", a.Dense)
	}
}

func TestReadDrawsUnitMetric(t *testing.T) {
	rows := []string{"-7.2,0.9,0.25,1.5"}
	path := writeCSV(t, sampleCSV("unit_e", rows,
		"# Adaptation terminated",
		"# Step size = 1.2",
	))
	layout := mustLayout(t, path)

	_, a, err := ReadDraws(path, layout, 0, 1)
	if err != nil {
		t.Fatalf("ReadDraws: %v", err)
	}
	if a == nil {
		t.Fatal("expected adaptation info")
	}
	// unit metric: implicit all-ones vector per model column
	if len(a.Diagonal) != 2 || a.Diagonal[0] != 1 || a.Diagonal[1] != 1 {
		t.Errorf("Diagonal = %v", a.Diagonal)
	}
}

func TestReadDrawsMetricSizeMismatch(t *testing.T) {
	rows := []string{"-7.2,0.9,0.25,1.5"}
	path := writeCSV(t, sampleCSV("diag_e", rows,
		"# Step size = 0.8",
		"# Diagonal elements of inverse mass matrix:",
		"# 0.448, 0.554, 0.9",
	))
	layout := mustLayout(t, path)

	if _, _, err := ReadDraws(path, layout, 0, 1); err == nil {
		t.Error("expected error for oversized diagonal metric")
	}
}
