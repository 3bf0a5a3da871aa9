// Package stancsv parses the Stan CSV files CmdStan writes.
//
// A Stan CSV file looks like:
//
//	# stan_version_major = 2
//	# method = sample (Default)
//	#   num_samples = 1000
//	lp__,accept_stat__,stepsize__,theta,mu[1],mu[2]
//	-7.28,0.98,0.84,0.25,1.1,2.2
//	...
//	# Adaptation terminated
//	# Step size = 0.809818
//	# Diagonal elements of inverse mass matrix:
//	# 0.448, 0.554
//	# Elapsed Time: 0.012 seconds (Warm-up)
//
// Column names ending in the reserved "__" suffix are sampler
// diagnostics; the rest belong to the user's model. Multi-dimensional
// model variables are flattened one column per element, named
// base[i,j,...] with 1-based indices in column-major order.
package stancsv

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// CommentPrefix marks configuration and diagnostic lines.
	CommentPrefix = "#"

	// SamplerSuffix is the reserved suffix of sampler diagnostic columns.
	SamplerSuffix = "__"
)

// VarSpan describes the contiguous column range of one variable.
type VarSpan struct {
	// Start and End bound the variable's columns: [Start, End).
	Start int
	End   int

	// Shape is the variable's declared shape, nil for scalars.
	Shape []int
}

// Size returns the number of columns the variable occupies.
func (v VarSpan) Size() int {
	return v.End - v.Start
}

// ColumnLayout is the per-file header metadata: ordered column names,
// the sampler/model split, and the variable-to-columns mapping.
// Immutable once built.
type ColumnLayout struct {
	// Columns holds every column name in file order.
	Columns []string

	// MethodOrder and ModelOrder list variable names in column order.
	MethodOrder []string
	ModelOrder  []string

	// MethodVars and ModelVars map base variable names to their spans.
	MethodVars map[string]VarSpan
	ModelVars  map[string]VarSpan

	// Meta holds the key = value pairs from the leading comments.
	Meta FileMeta
}

// MethodColumns returns the indices of sampler diagnostic columns.
func (l *ColumnLayout) MethodColumns() []int {
	return l.columnsOf(l.MethodOrder, l.MethodVars)
}

// ModelColumns returns the indices of model columns.
func (l *ColumnLayout) ModelColumns() []int {
	return l.columnsOf(l.ModelOrder, l.ModelVars)
}

func (l *ColumnLayout) columnsOf(order []string, vars map[string]VarSpan) []int {
	var cols []int
	for _, name := range order {
		span := vars[name]
		for c := span.Start; c < span.End; c++ {
			cols = append(cols, c)
		}
	}
	return cols
}

// EnsureMatches verifies that another file's layout is identical in
// column count, names, and order. file names the other file in errors.
func (l *ColumnLayout) EnsureMatches(other *ColumnLayout, file string) error {
	if len(l.Columns) != len(other.Columns) {
		return &ConsistencyError{
			File: file,
			Msg: fmt.Sprintf("column count mismatch: %d vs %d",
				len(other.Columns), len(l.Columns)),
		}
	}
	for i := range l.Columns {
		if l.Columns[i] != other.Columns[i] {
			return &ConsistencyError{
				File: file,
				Msg: fmt.Sprintf("column %d is %q, expected %q",
					i+1, other.Columns[i], l.Columns[i]),
			}
		}
	}
	return nil
}

// FileMeta holds the configuration echo from a file's leading comments.
type FileMeta map[string]string

// lookup returns the raw value for key, "" when absent.
func (m FileMeta) lookup(key string) string {
	return m[key]
}

// Metric returns the declared metric type, defaulting to diag_e.
func (m FileMeta) Metric() string {
	if v := m.lookup("metric"); v != "" {
		return v
	}
	return "diag_e"
}

// NumSamples returns the declared sampling iteration count, 0 if absent.
func (m FileMeta) NumSamples() int {
	return m.intValue("num_samples")
}

// NumWarmup returns the declared warmup iteration count, 0 if absent.
func (m FileMeta) NumWarmup() int {
	return m.intValue("num_warmup")
}

// SaveWarmup reports whether the file declares saved warmup draws.
func (m FileMeta) SaveWarmup() bool {
	v := m.lookup("save_warmup")
	return v == "1" || v == "true"
}

// Method returns the declared method (sample, optimize, variational,
// generate_quantities), "" if absent.
func (m FileMeta) Method() string {
	return m.lookup("method")
}

func (m FileMeta) intValue(key string) int {
	n, err := strconv.Atoi(m.lookup(key))
	if err != nil {
		return 0
	}
	return n
}

// ParseHeader reads a file's leading comment block and header row and
// builds its ColumnLayout. Data rows are not touched.
func ParseHeader(path string) (*ColumnLayout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stan csv: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	meta := make(FileMeta)
	lineNo := 0
	var headerLine string
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, CommentPrefix) {
			parseMetaLine(meta, line)
			continue
		}
		headerLine = line
		break
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stan csv: %w", err)
	}
	if headerLine == "" {
		return nil, &ParseError{File: path, Line: lineNo, Msg: "no header row found"}
	}

	columns := splitHeader(headerLine)

	layout, err := buildLayout(columns, path, lineNo)
	if err != nil {
		return nil, err
	}
	layout.Meta = meta
	return layout, nil
}

// parseMetaLine records a "# key = value" comment; other comments are
// ignored. Defaulted values like "sample (Default)" keep only the value.
func parseMetaLine(meta FileMeta, line string) {
	body := strings.TrimSpace(strings.TrimPrefix(line, CommentPrefix))
	key, value, ok := strings.Cut(body, "=")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	value = strings.TrimSpace(strings.TrimSuffix(value, "(Default)"))
	if key == "" || value == "" {
		return
	}
	meta[key] = value
}

// buildLayout classifies and groups the header's column names.
func buildLayout(columns []string, path string, headerLine int) (*ColumnLayout, error) {
	layout := &ColumnLayout{
		Columns:    columns,
		MethodVars: make(map[string]VarSpan),
		ModelVars:  make(map[string]VarSpan),
	}

	perr := func(format string, args ...any) error {
		return &ParseError{File: path, Line: headerLine, Msg: fmt.Sprintf(format, args...)}
	}

	seen := make(map[string]bool, len(columns))
	for _, name := range columns {
		if name == "" {
			return nil, perr("empty column name")
		}
		if seen[name] {
			return nil, perr("duplicate column %q", name)
		}
		seen[name] = true
	}

	grouped := make(map[string]bool)
	for i := 0; i < len(columns); {
		name := columns[i]

		if strings.HasSuffix(name, SamplerSuffix) {
			layout.MethodVars[name] = VarSpan{Start: i, End: i + 1}
			layout.MethodOrder = append(layout.MethodOrder, name)
			i++
			continue
		}

		base, indexed := splitIndexed(name)
		if grouped[base] {
			return nil, perr("variable %q has non-contiguous columns", base)
		}
		grouped[base] = true

		if !indexed {
			layout.ModelVars[base] = VarSpan{Start: i, End: i + 1}
			layout.ModelOrder = append(layout.ModelOrder, base)
			i++
			continue
		}

		// Gather the whole run of columns flattened from this variable.
		end := i
		var members [][]int
		for end < len(columns) {
			b, idx := splitIndexed(columns[end])
			if b != base || !idx {
				break
			}
			indices, err := parseIndices(columns[end])
			if err != nil {
				return nil, perr("%v", err)
			}
			members = append(members, indices)
			end++
		}

		shape, err := deriveShape(base, members)
		if err != nil {
			return nil, perr("%v", err)
		}

		layout.ModelVars[base] = VarSpan{Start: i, End: end, Shape: shape}
		layout.ModelOrder = append(layout.ModelOrder, base)
		i = end
	}

	return layout, nil
}

// splitHeader splits the header row on commas, keeping commas inside
// a bracket suffix attached to their column: "Sigma[1,2]" is one name.
func splitHeader(line string) []string {
	var columns []string
	depth := 0
	start := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				columns = append(columns, strings.TrimSpace(line[start:i]))
				start = i + 1
			}
		}
	}
	columns = append(columns, strings.TrimSpace(line[start:]))
	return columns
}

// splitIndexed splits "mu[1,2]" into base "mu" and whether a bracket
// suffix is present.
func splitIndexed(name string) (base string, indexed bool) {
	idx := strings.IndexByte(name, '[')
	if idx < 0 {
		return name, false
	}
	return name[:idx], true
}

// parseIndices parses the bracket suffix of a flattened column name
// into its 1-based index list.
func parseIndices(name string) ([]int, error) {
	open := strings.IndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return nil, fmt.Errorf("malformed indexed column %q", name)
	}
	parts := strings.Split(name[open+1:len(name)-1], ",")
	indices := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("bad index in column %q", name)
		}
		indices[i] = n
	}
	return indices, nil
}

// deriveShape computes a variable's shape as the per-position maximum
// across its flattened members, then verifies the member count and
// column-major ordering against that shape.
func deriveShape(base string, members [][]int) ([]int, error) {
	ndim := len(members[0])
	shape := make([]int, ndim)
	for _, m := range members {
		if len(m) != ndim {
			return nil, fmt.Errorf("variable %q mixes index arity", base)
		}
		for d, v := range m {
			if v > shape[d] {
				shape[d] = v
			}
		}
	}

	size := 1
	for _, d := range shape {
		size *= d
	}
	if size != len(members) {
		return nil, fmt.Errorf("variable %q has %d columns but shape %v needs %d",
			base, len(members), shape, size)
	}

	// Flattened members must appear in column-major order: first
	// index varies fastest.
	for flat, m := range members {
		rem := flat
		for d := 0; d < ndim; d++ {
			want := rem%shape[d] + 1
			rem /= shape[d]
			if m[d] != want {
				return nil, fmt.Errorf("variable %q index %v out of order at position %d",
					base, m, flat)
			}
		}
	}

	return shape, nil
}
