package stancsv

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Adaptation holds the step size and metric a chain settled on during
// warmup, recovered from the file's diagnostic comments.
type Adaptation struct {
	StepSize float64

	// MetricType is unit_e, diag_e, or dense_e.
	MetricType string

	// Diagonal holds the metric for unit_e (all ones) and diag_e.
	Diagonal []float64

	// Dense holds the square metric matrix for dense_e.
	Dense [][]float64
}

// ReadDraws reads a file's numeric rows and trailing diagnostics.
//
// skipRows data rows (saved warmup) are discarded, then exactly
// drawRows rows are returned. Special float literals (nan, inf, -inf)
// parse to their IEEE values. The returned Adaptation is nil when the
// file carries no adaptation block, which is normal for non-sampling
// methods.
func ReadDraws(path string, layout *ColumnLayout, skipRows, drawRows int) ([][]float64, *Adaptation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open stan csv: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	wantCols := len(layout.Columns)
	wantRows := skipRows + drawRows
	draws := make([][]float64, 0, drawRows)

	var comments []string
	lineNo := 0
	headerSeen := false
	dataRows := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, CommentPrefix) {
			if headerSeen {
				comments = append(comments, line)
			}
			continue
		}
		if !headerSeen {
			// The header row itself.
			headerSeen = true
			continue
		}

		if dataRows >= wantRows {
			return nil, nil, &ParseError{
				File: path, Line: lineNo,
				Msg: fmt.Sprintf("unexpected data row after %d expected rows", wantRows),
			}
		}

		dataRows++
		if dataRows <= skipRows {
			continue
		}

		row, err := parseRow(line, wantCols, path, lineNo)
		if err != nil {
			return nil, nil, err
		}
		draws = append(draws, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read stan csv: %w", err)
	}

	if dataRows < wantRows {
		return nil, nil, &ParseError{
			File: path, Line: lineNo,
			Msg: fmt.Sprintf("file ended after %d data rows, expected %d", dataRows, wantRows),
		}
	}

	adaptation, err := parseAdaptation(comments, layout, path)
	if err != nil {
		return nil, nil, err
	}

	return draws, adaptation, nil
}

// parseRow converts one data line into floats.
func parseRow(line string, wantCols int, path string, lineNo int) ([]float64, error) {
	fields := strings.Split(line, ",")
	if len(fields) != wantCols {
		return nil, &ParseError{
			File: path, Line: lineNo,
			Msg: fmt.Sprintf("row has %d fields, expected %d", len(fields), wantCols),
		}
	}

	row := make([]float64, wantCols)
	for i, field := range fields {
		// ParseFloat handles the special tokens CmdStan emits:
		// nan, inf, -inf and their case variants.
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, &ParseError{
				File: path, Line: lineNo, Column: i + 1,
				Msg: fmt.Sprintf("bad numeric field %q", strings.TrimSpace(field)),
			}
		}
		row[i] = v
	}
	return row, nil
}

// Metric block markers in the adaptation comments.
const (
	stepSizeMarker    = "Step size ="
	diagMetricMarker  = "Diagonal elements of inverse mass matrix"
	denseMetricMarker = "Elements of inverse mass matrix"
)

// parseAdaptation recovers step size and metric from the diagnostic
// comments collected after the header. Returns nil when no step size
// is present.
func parseAdaptation(comments []string, layout *ColumnLayout, path string) (*Adaptation, error) {
	a := &Adaptation{MetricType: layout.Meta.Metric()}
	paramCount := len(layout.ModelColumns())

	found := false
	for i := 0; i < len(comments); i++ {
		body := strings.TrimSpace(strings.TrimPrefix(comments[i], CommentPrefix))

		if rest, ok := strings.CutPrefix(body, stepSizeMarker); ok {
			v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
			if err != nil {
				return nil, &ParseError{File: path, Msg: fmt.Sprintf("bad step size %q", strings.TrimSpace(rest))}
			}
			a.StepSize = v
			found = true
			continue
		}

		if strings.HasPrefix(body, diagMetricMarker) {
			if i+1 >= len(comments) {
				return nil, &ParseError{File: path, Msg: "metric block truncated"}
			}
			diag, err := parseMetricRow(comments[i+1], path)
			if err != nil {
				return nil, err
			}
			if paramCount > 0 && len(diag) != paramCount {
				return nil, &ParseError{
					File: path,
					Msg:  fmt.Sprintf("diagonal metric has %d elements, expected %d", len(diag), paramCount),
				}
			}
			a.Diagonal = diag
			i++
			continue
		}

		if strings.HasPrefix(body, denseMetricMarker) {
			dense, consumed, err := parseDenseMetric(comments[i+1:], paramCount, path)
			if err != nil {
				return nil, err
			}
			a.Dense = dense
			i += consumed
			continue
		}
	}

	if !found {
		return nil, nil
	}

	// unit_e carries no metric lines; the metric is implicitly ones.
	if a.MetricType == "unit_e" && a.Diagonal == nil {
		a.Diagonal = make([]float64, paramCount)
		for i := range a.Diagonal {
			a.Diagonal[i] = 1
		}
	}

	return a, nil
}

// parseMetricRow parses one comment line of comma-separated floats.
func parseMetricRow(comment, path string) ([]float64, error) {
	body := strings.TrimSpace(strings.TrimPrefix(comment, CommentPrefix))
	parts := strings.Split(body, ",")
	row := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, &ParseError{File: path, Msg: fmt.Sprintf("bad metric value %q", strings.TrimSpace(p))}
		}
		row[i] = v
	}
	return row, nil
}

// parseDenseMetric reads the square matrix following the dense marker.
// Returns the number of comment lines consumed.
func parseDenseMetric(comments []string, paramCount int, path string) ([][]float64, int, error) {
	if len(comments) == 0 {
		return nil, 0, &ParseError{File: path, Msg: "metric block truncated"}
	}

	first, err := parseMetricRow(comments[0], path)
	if err != nil {
		return nil, 0, err
	}
	n := len(first)
	if paramCount > 0 && n != paramCount {
		return nil, 0, &ParseError{
			File: path,
			Msg:  fmt.Sprintf("dense metric is %dx%d, expected %dx%d", n, n, paramCount, paramCount),
		}
	}
	if len(comments) < n {
		return nil, 0, &ParseError{File: path, Msg: "dense metric truncated"}
	}

	dense := make([][]float64, n)
	dense[0] = first
	for r := 1; r < n; r++ {
		row, err := parseMetricRow(comments[r], path)
		if err != nil {
			return nil, 0, err
		}
		if len(row) != n {
			return nil, 0, &ParseError{
				File: path,
				Msg:  fmt.Sprintf("dense metric row %d has %d values, expected %d", r+1, len(row), n),
			}
		}
		dense[r] = row
	}
	return dense, n, nil
}
