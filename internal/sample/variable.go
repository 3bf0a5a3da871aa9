package sample

import (
	"fmt"

	"github.com/randomizedcoder/go-stan-swarm/internal/stancsv"
)

// Variable is a reshaped view of one variable's columns: draws and
// chains lead, the variable's declared shape trails. The view shares
// the assembled draws and performs no copies.
type Variable struct {
	// Name is the base variable name.
	Name string

	// Shape is the declared shape, nil for scalars.
	Shape []int

	draws *Draws
	span  stancsv.VarSpan

	// strides[d] is the flattened distance between neighbours along
	// dimension d under column-major traversal.
	strides []int
}

func newVariable(name string, span stancsv.VarSpan, draws *Draws) *Variable {
	strides := make([]int, len(span.Shape))
	stride := 1
	for d, size := range span.Shape {
		strides[d] = stride
		stride *= size
	}
	return &Variable{
		Name:    name,
		Shape:   span.Shape,
		draws:   draws,
		span:    span,
		strides: strides,
	}
}

// Dims returns the view's full dimensions: draws, chains, then the
// variable's declared shape.
func (v *Variable) Dims() []int {
	dims := []int{v.draws.NumDraws(), v.draws.NumChains()}
	return append(dims, v.Shape...)
}

// At returns the value at (draw, chain) for the element addressed by
// 1-based indices, one per declared dimension. Scalars take no
// indices.
func (v *Variable) At(draw, chain int, idx ...int) (float64, error) {
	if len(idx) != len(v.Shape) {
		return 0, fmt.Errorf("variable %q has %d dimensions, got %d indices",
			v.Name, len(v.Shape), len(idx))
	}

	offset := 0
	for d, i := range idx {
		if i < 1 || i > v.Shape[d] {
			return 0, fmt.Errorf("variable %q index %d out of range [1, %d] in dimension %d",
				v.Name, i, v.Shape[d], d+1)
		}
		offset += (i - 1) * v.strides[d]
	}

	return v.draws.At(draw, chain, v.span.Start+offset), nil
}

// Flat returns the value at (draw, chain, flat) where flat indexes the
// variable's columns in file order (column-major element order).
func (v *Variable) Flat(draw, chain, flat int) float64 {
	return v.draws.At(draw, chain, v.span.Start+flat)
}

// Size returns the number of elements per draw.
func (v *Variable) Size() int {
	return v.span.Size()
}
