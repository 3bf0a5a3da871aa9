package sample

import "github.com/randomizedcoder/go-stan-swarm/internal/stancsv"

// Metadata is the immutable, derived-once summary of a run's column
// layout and variable shapes, shared by the assembler and downstream
// consumers.
type Metadata struct {
	// Columns holds every column name in file order.
	Columns []string

	// MethodVars maps sampler diagnostic names to their column spans.
	MethodVars map[string]stancsv.VarSpan

	// StanVars maps model variable names to their column spans and
	// shapes.
	StanVars map[string]stancsv.VarSpan

	// MethodOrder and StanOrder list names in column order.
	MethodOrder []string
	StanOrder   []string
}

// newMetadata derives Metadata from a layout. Maps are copied so the
// result stays immutable regardless of what the caller does with it.
func newMetadata(layout *stancsv.ColumnLayout) *Metadata {
	m := &Metadata{
		Columns:     append([]string(nil), layout.Columns...),
		MethodVars:  make(map[string]stancsv.VarSpan, len(layout.MethodVars)),
		StanVars:    make(map[string]stancsv.VarSpan, len(layout.ModelVars)),
		MethodOrder: append([]string(nil), layout.MethodOrder...),
		StanOrder:   append([]string(nil), layout.ModelOrder...),
	}
	for name, span := range layout.MethodVars {
		m.MethodVars[name] = span
	}
	for name, span := range layout.ModelVars {
		m.StanVars[name] = span
	}
	return m
}

// Shape returns the declared shape of a model variable, nil for
// scalars. ok is false for unknown names.
func (m *Metadata) Shape(name string) (shape []int, ok bool) {
	span, ok := m.StanVars[name]
	if !ok {
		return nil, false
	}
	return span.Shape, true
}
