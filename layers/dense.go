package layers

import (
	"math/rand"

	"github.com/ldsec/pertNet/utils"
	"gonum.org/v1/gonum/mat"
)

// Dense is a gene-wise fully connected layer. Input is one ngenes x in
// matrix per cell; the same weight matrix is applied to every gene row.
type Dense struct {
	name       string
	activation bool // relu when true, identity otherwise
	w          *Param
	lastInput  []*mat.Dense // per-cell ngenes x in
	u          []*mat.Dense // per-cell pre-activation
}

func NewDense(name string, in, out int, relu bool, rnd *rand.Rand) *Dense {
	return &Dense{
		name:       name,
		activation: relu,
		w:          newParam(name+".weight", in, out, utils.WeightsInit(in*out, float64(in), rnd)),
	}
}

// Forward computes input * W per cell and remembers the inputs for backward.
func (d *Dense) Forward(input []*mat.Dense) []*mat.Dense {
	d.lastInput = make([]*mat.Dense, len(input))
	copy(d.lastInput, input)
	d.u = make([]*mat.Dense, len(input))

	output := make([]*mat.Dense, len(input))
	for i := range input {
		ngenes, _ := input[i].Dims()
		_, out := d.w.W.Dims()
		d.u[i] = mat.NewDense(ngenes, out, nil)
		d.u[i].Mul(input[i], d.w.W)
		if d.activation {
			output[i] = mat.NewDense(ngenes, out, nil)
			output[i].Apply(utils.ToApply(utils.Relu), d.u[i])
		} else {
			output[i] = d.u[i]
		}
	}
	return output
}

// Backward accumulates the weight gradient from the given output deltas and
// returns the deltas with respect to the layer input.
func (d *Dense) Backward(delta []*mat.Dense) []*mat.Dense {
	in, out := d.w.W.Dims()
	temp := mat.NewDense(in, out, nil)

	dInput := make([]*mat.Dense, len(delta))
	for i := range delta {
		if d.activation {
			var mask mat.Dense
			mask.Apply(utils.ToApply(utils.ReluD), d.u[i])
			delta[i].MulElem(delta[i], &mask)
		}
		temp.Mul(d.lastInput[i].T(), delta[i])
		d.w.Grad.Add(d.w.Grad, temp)

		ngenes, _ := delta[i].Dims()
		dInput[i] = mat.NewDense(ngenes, in, nil)
		dInput[i].Mul(delta[i], d.w.W.T())
	}
	return dInput
}

func (d *Dense) Params() []*Param {
	return []*Param{d.w}
}
