package layers

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// scalar objective: sum of all output entries
func sumOutputs(out []*mat.Dense) float64 {
	total := 0.0
	for _, o := range out {
		r, c := o.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				total += o.At(i, j)
			}
		}
	}
	return total
}

func onesLike(out []*mat.Dense) []*mat.Dense {
	delta := make([]*mat.Dense, len(out))
	for i, o := range out {
		r, c := o.Dims()
		d := mat.NewDense(r, c, nil)
		for a := 0; a < r; a++ {
			for b := 0; b < c; b++ {
				d.Set(a, b, 1)
			}
		}
		delta[i] = d
	}
	return delta
}

func TestDenseGradientMatchesFiniteDifference(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	layer := NewDense("dense", 3, 2, false, rnd)

	input := []*mat.Dense{
		mat.NewDense(4, 3, []float64{0.2, 0.5, 0.1, 0.8, 0.3, 0.9, 0.4, 0.6, 0.2, 0.7, 0.1, 0.5}),
		mat.NewDense(4, 3, []float64{0.3, 0.2, 0.6, 0.1, 0.9, 0.4, 0.5, 0.5, 0.3, 0.2, 0.8, 0.7}),
	}

	out := layer.Forward(input)
	layer.Backward(onesLike(out))
	grad := mat.DenseCopyOf(layer.Params()[0].Grad)

	const h = 1e-6
	w := layer.Params()[0].W
	rows, cols := w.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			orig := w.At(i, j)
			w.Set(i, j, orig+h)
			plus := sumOutputs(layer.Forward(input))
			w.Set(i, j, orig-h)
			minus := sumOutputs(layer.Forward(input))
			w.Set(i, j, orig)

			require.InDelta(t, (plus-minus)/(2*h), grad.At(i, j), 1e-4)
		}
	}
}

func TestGraphConvGradientMatchesFiniteDifference(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))

	adj := mat.NewDense(3, 3, []float64{
		0.5, 0.5, 0,
		0, 1, 0,
		0.2, 0.3, 0.5,
	})
	layer := NewGraphConv("conv", adj, 2, rnd)

	// positive weights and inputs keep the relu in its linear region
	w := layer.Params()[0].W
	w.Apply(func(_, _ int, v float64) float64 {
		if v < 0 {
			return -v
		}
		return v
	}, w)

	input := []*mat.Dense{
		mat.NewDense(3, 2, []float64{0.4, 0.7, 0.2, 0.5, 0.9, 0.1}),
	}

	out := layer.Forward(input)
	layer.Backward(onesLike(out))
	grad := mat.DenseCopyOf(layer.Params()[0].Grad)

	const h = 1e-6
	rows, cols := w.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			orig := w.At(i, j)
			w.Set(i, j, orig+h)
			plus := sumOutputs(layer.Forward(input))
			w.Set(i, j, orig-h)
			minus := sumOutputs(layer.Forward(input))
			w.Set(i, j, orig)

			require.InDelta(t, (plus-minus)/(2*h), grad.At(i, j), 1e-4)
		}
	}
}

func TestDenseBackwardReturnsInputDeltas(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	layer := NewDense("dense", 3, 2, true, rnd)

	input := []*mat.Dense{mat.NewDense(5, 3, nil)}
	out := layer.Forward(input)
	dIn := layer.Backward(onesLike(out))

	require.Len(t, dIn, 1)
	r, c := dIn[0].Dims()
	require.Equal(t, 5, r)
	require.Equal(t, 3, c)
}
