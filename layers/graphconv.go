package layers

import (
	"math/rand"

	"github.com/ldsec/pertNet/utils"
	"gonum.org/v1/gonum/mat"
)

// GraphConv propagates per-gene features over a fixed gene-gene similarity
// graph: out = relu(A * H * W), with A the row-normalized adjacency.
type GraphConv struct {
	name     string
	adj      *mat.Dense // ngenes x ngenes, fixed
	w        *Param
	lastProp []*mat.Dense // per-cell A * H
	u        []*mat.Dense // per-cell pre-activation
}

func NewGraphConv(name string, adj *mat.Dense, hidden int, rnd *rand.Rand) *GraphConv {
	return &GraphConv{
		name: name,
		adj:  adj,
		w:    newParam(name+".weight", hidden, hidden, utils.WeightsInit(hidden*hidden, float64(hidden), rnd)),
	}
}

func (gc *GraphConv) Forward(input []*mat.Dense) []*mat.Dense {
	gc.lastProp = make([]*mat.Dense, len(input))
	gc.u = make([]*mat.Dense, len(input))

	ngenes, _ := gc.adj.Dims()
	_, hidden := gc.w.W.Dims()

	output := make([]*mat.Dense, len(input))
	for i := range input {
		gc.lastProp[i] = mat.NewDense(ngenes, hidden, nil)
		gc.lastProp[i].Mul(gc.adj, input[i])
		gc.u[i] = mat.NewDense(ngenes, hidden, nil)
		gc.u[i].Mul(gc.lastProp[i], gc.w.W)
		output[i] = mat.NewDense(ngenes, hidden, nil)
		output[i].Apply(utils.ToApply(utils.Relu), gc.u[i])
	}
	return output
}

func (gc *GraphConv) Backward(delta []*mat.Dense) []*mat.Dense {
	hidden, _ := gc.w.W.Dims()
	ngenes, _ := gc.adj.Dims()
	temp := mat.NewDense(hidden, hidden, nil)

	dInput := make([]*mat.Dense, len(delta))
	for i := range delta {
		var mask mat.Dense
		mask.Apply(utils.ToApply(utils.ReluD), gc.u[i])
		delta[i].MulElem(delta[i], &mask)

		temp.Mul(gc.lastProp[i].T(), delta[i])
		gc.w.Grad.Add(gc.w.Grad, temp)

		dProp := mat.NewDense(ngenes, hidden, nil)
		dProp.Mul(delta[i], gc.w.W.T())
		dInput[i] = mat.NewDense(ngenes, hidden, nil)
		dInput[i].Mul(gc.adj.T(), dProp)
	}
	return dInput
}

func (gc *GraphConv) Params() []*Param {
	return []*Param{gc.w}
}
