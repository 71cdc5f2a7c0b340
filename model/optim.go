package model

import (
	"math"

	"github.com/ldsec/pertNet/layers"
	"gonum.org/v1/gonum/mat"
)

// Adam with classic L2 weight decay folded into the gradient.
type Adam struct {
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	t           int
	m           map[string]*mat.Dense
	v           map[string]*mat.Dense
}

func NewAdam(params []*layers.Param, lr, weightDecay float64) *Adam {
	a := &Adam{
		lr:          lr,
		beta1:       0.9,
		beta2:       0.999,
		eps:         1e-8,
		weightDecay: weightDecay,
		m:           make(map[string]*mat.Dense, len(params)),
		v:           make(map[string]*mat.Dense, len(params)),
	}
	for _, p := range params {
		r, c := p.W.Dims()
		a.m[p.Name] = mat.NewDense(r, c, nil)
		a.v[p.Name] = mat.NewDense(r, c, nil)
	}
	return a
}

func (a *Adam) LR() float64 {
	return a.lr
}

func (a *Adam) Step(params []*layers.Param) {
	a.t++
	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))

	for _, p := range params {
		m := a.m[p.Name]
		v := a.v[p.Name]
		rows, cols := p.W.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				g := p.Grad.At(i, j) + a.weightDecay*p.W.At(i, j)
				mij := a.beta1*m.At(i, j) + (1-a.beta1)*g
				vij := a.beta2*v.At(i, j) + (1-a.beta2)*g*g
				m.Set(i, j, mij)
				v.Set(i, j, vij)
				update := a.lr * (mij / bc1) / (math.Sqrt(vij/bc2) + a.eps)
				p.W.Set(i, j, p.W.At(i, j)-update)
			}
		}
	}
}

// StepLR decays the optimizer learning rate by a fixed factor once per epoch.
type StepLR struct {
	opt   *Adam
	gamma float64
}

func NewStepLR(opt *Adam, gamma float64) *StepLR {
	return &StepLR{opt: opt, gamma: gamma}
}

func (s *StepLR) Step() {
	s.opt.lr *= s.gamma
}

// ClipGradValue clamps every gradient component to [-clip, clip] before the
// optimizer consumes it.
func ClipGradValue(params []*layers.Param, clip float64) {
	for _, p := range params {
		rows, cols := p.Grad.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				g := p.Grad.At(i, j)
				if g > clip {
					p.Grad.Set(i, j, clip)
				} else if g < -clip {
					p.Grad.Set(i, j, -clip)
				}
			}
		}
	}
}
