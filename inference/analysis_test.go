package inference

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ldsec/pertNet/common"
)

func analysisTestData() *common.PertData {
	return &common.PertData{
		GeneNames: []string{"A", "B", "C", "D"},
		NodeMap:   map[string]int{"A": 0, "B": 1, "C": 2, "D": 3},
		CtrlCells: mat.NewDense(2, 4, []float64{
			1, 1, 1, 1,
			1, 1, 1, 1,
		}),
		TruthMean: map[string][]float64{
			"A": {2, 0.5, 1, 1},
		},
		TruthStd: map[string][]float64{
			"A": {0.1, 0.1, 0.1, 0.1},
		},
		TopNonDropoutDE: map[string][]int{
			"A": {0, 1},
		},
	}
}

func TestDeeperAnalysisPerfectDelta(t *testing.T) {
	pd := analysisTestData()
	res := &EvalResult{
		Perts: []string{"A"},
		Pred:  mat.NewDense(1, 4, []float64{2, 0.5, 1, 1}),
		Truth: mat.NewDense(1, 4, []float64{2, 0.5, 1, 1}),
	}

	out := DeeperAnalysis(pd, res)
	require.Contains(t, out, "A")
	require.InDelta(t, 1.0, out["A"]["pearson_delta"], 1e-12)
}

func TestDeeperAnalysisSkipsCtrl(t *testing.T) {
	pd := analysisTestData()
	res := &EvalResult{
		Perts: []string{"ctrl"},
		Pred:  mat.NewDense(1, 4, []float64{1, 1, 1, 1}),
		Truth: mat.NewDense(1, 4, []float64{1, 1, 1, 1}),
	}

	out := DeeperAnalysis(pd, res)
	require.NotContains(t, out, "ctrl")
}

func TestNonDropoutAnalysisDirectionAndCalibration(t *testing.T) {
	pd := analysisTestData()

	// gene 0: truth goes up (1 -> 2), prediction goes down; gene 1: both down
	res := &EvalResult{
		Perts: []string{"A"},
		Pred:  mat.NewDense(1, 4, []float64{0.5, 0.45, 1, 1}),
		Truth: mat.NewDense(1, 4, []float64{2, 0.5, 1, 1}),
	}

	out := NonDropoutAnalysis(pd, res)
	require.Contains(t, out, "A")

	m := out["A"]
	require.InDelta(t, 0.5, m["frac_opposite_direction_top20_non_dropout"], 1e-12)
	// gene 0 off by 1.5 sigma-wise far beyond 1, gene 1 within half a sigma
	require.InDelta(t, 0.5, m["frac_sigma_below_1_non_dropout"], 1e-12)
	require.InDelta(t, (1.5*1.5+0.05*0.05)/2, m["mse_top20_de_non_dropout"], 1e-12)
}
