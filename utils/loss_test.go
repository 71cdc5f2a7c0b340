package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLossZeroOnPerfectPrediction(t *testing.T) {
	y := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	pred := mat.DenseCopyOf(y)
	ctrl := []float64{1, 1, 1}

	loss, grad := LossFct(pred, y, []string{"A", "A"}, ctrl, nil, 0.1)
	require.Zero(t, loss)
	require.True(t, mat.Equal(grad, mat.NewDense(2, 3, nil)))
}

func TestLossUsesDictFilterSubset(t *testing.T) {
	ctrl := []float64{1, 1, 1}
	y := mat.NewDense(1, 3, []float64{2, 2, 2})
	pred := mat.NewDense(1, 3, []float64{2, 2, 5}) // error only on gene 2

	filter := map[string][]int{"A": {0, 1}}
	loss, _ := LossFct(pred, y, []string{"A"}, ctrl, filter, 0)
	require.Zero(t, loss)

	// unmapped perturbation degrades to full-gene MSE
	loss, _ = LossFct(pred, y, []string{"B"}, ctrl, filter, 0)
	require.InDelta(t, 9.0/3.0, loss, 1e-12)
}

func TestDirectionPenaltyOnSignMismatch(t *testing.T) {
	ctrl := []float64{1, 1}
	y := mat.NewDense(1, 2, []float64{2, 2})      // both genes go up
	pred := mat.NewDense(1, 2, []float64{0.5, 2}) // first gene predicted down

	base, _ := LossFct(pred, y, []string{"A"}, ctrl, nil, 0)
	penalized, _ := LossFct(pred, y, []string{"A"}, ctrl, nil, 0.5)
	require.Greater(t, penalized, base)
	require.InDelta(t, base+0.5*(1.5*1.5)/2, penalized, 1e-12)
}

func TestLossAveragesAcrossGroups(t *testing.T) {
	ctrl := []float64{0, 0}
	y := mat.NewDense(3, 2, []float64{1, 1, 1, 1, 1, 1})
	pred := mat.NewDense(3, 2, []float64{2, 2, 1, 1, 1, 1})

	// group A (one cell): mse 1, group B (two cells): mse 0 -> mean 0.5
	loss, _ := LossFct(pred, y, []string{"A", "B", "B"}, ctrl, nil, 0)
	require.InDelta(t, 0.5, loss, 1e-12)
}

func TestLossGradientMatchesFiniteDifference(t *testing.T) {
	ctrl := []float64{1, 1, 1}
	y := mat.NewDense(2, 3, []float64{2, 0.5, 1.8, 0.3, 1.6, 0.9})
	pred := mat.NewDense(2, 3, []float64{1.7, 0.8, 0.4, 1.5, 1.2, 1.3})
	perts := []string{"A", "B"}
	filter := map[string][]int{"A": {0, 2}}

	_, grad := LossFct(pred, y, perts, ctrl, filter, 0.3)

	const h = 1e-7
	rows, cols := pred.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			orig := pred.At(i, j)
			pred.Set(i, j, orig+h)
			plus, _ := LossFct(pred, y, perts, ctrl, filter, 0.3)
			pred.Set(i, j, orig-h)
			minus, _ := LossFct(pred, y, perts, ctrl, filter, 0.3)
			pred.Set(i, j, orig)

			require.InDelta(t, (plus-minus)/(2*h), grad.At(i, j), 1e-5)
		}
	}
}

func TestUncertaintyLossReducesToMSEAtZeroLogvar(t *testing.T) {
	ctrl := []float64{0, 0}
	y := mat.NewDense(1, 2, []float64{1, 2})
	pred := mat.NewDense(1, 2, []float64{1.5, 2.5})
	logvar := mat.NewDense(1, 2, nil)

	plain, _ := LossFct(pred, y, []string{"A"}, ctrl, nil, 0)
	unc, _, _ := UncertaintyLossFct(pred, logvar, y, []string{"A"}, 0, ctrl, nil, 0)
	require.InDelta(t, plain, unc, 1e-12)
}

func TestUncertaintyLossGradients(t *testing.T) {
	ctrl := []float64{1, 1}
	y := mat.NewDense(1, 2, []float64{2, 0.4})
	pred := mat.NewDense(1, 2, []float64{1.6, 0.9})
	logvar := mat.NewDense(1, 2, []float64{0.3, -0.2})
	perts := []string{"A"}

	_, dPred, dLogvar := UncertaintyLossFct(pred, logvar, y, perts, 0.5, ctrl, nil, 0.2)

	const h = 1e-7
	for j := 0; j < 2; j++ {
		orig := pred.At(0, j)
		pred.Set(0, j, orig+h)
		plus, _, _ := UncertaintyLossFct(pred, logvar, y, perts, 0.5, ctrl, nil, 0.2)
		pred.Set(0, j, orig-h)
		minus, _, _ := UncertaintyLossFct(pred, logvar, y, perts, 0.5, ctrl, nil, 0.2)
		pred.Set(0, j, orig)
		require.InDelta(t, (plus-minus)/(2*h), dPred.At(0, j), 1e-5)

		orig = logvar.At(0, j)
		logvar.Set(0, j, orig+h)
		plus, _, _ = UncertaintyLossFct(pred, logvar, y, perts, 0.5, ctrl, nil, 0.2)
		logvar.Set(0, j, orig-h)
		minus, _, _ = UncertaintyLossFct(pred, logvar, y, perts, 0.5, ctrl, nil, 0.2)
		logvar.Set(0, j, orig)
		require.InDelta(t, (plus-minus)/(2*h), dLogvar.At(0, j), 1e-5)
	}
}
