package layers

import (
	"gonum.org/v1/gonum/mat"
)

// Param is a named learnable tensor together with the gradient accumulated
// by the last backward pass.
type Param struct {
	Name string
	W    *mat.Dense
	Grad *mat.Dense
}

func newParam(name string, rows, cols int, data []float64) *Param {
	return &Param{
		Name: name,
		W:    mat.NewDense(rows, cols, data),
		Grad: mat.NewDense(rows, cols, nil),
	}
}

func (p *Param) ZeroGrad() {
	p.Grad.Zero()
}
