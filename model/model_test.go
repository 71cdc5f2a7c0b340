package model

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ldsec/pertNet/common"
)

func testConfig(uncertainty bool) *Config {
	return &Config{
		HiddenSize:        8,
		NumGOGNNLayers:    1,
		NumGeneGNNLayers:  1,
		DecoderHiddenSize: 4,
		Uncertainty:       uncertainty,
		UncertaintyReg:    1,
		DirectionLambda:   0.1,
		GGO:               &common.EdgeList{Src: []int{0, 1}, Dst: []int{1, 2}, Weight: []float64{0.8, 0.6}},
		GCoexpress:        &common.EdgeList{Src: []int{2}, Dst: []int{0}, Weight: []float64{0.9}},
		Device:            "cpu",
		NumGenes:          5,
	}
}

func testBatch() *common.Batch {
	x := mat.NewDense(3, 5, []float64{
		1, 0.5, 0.2, 0.8, 0.1,
		0.9, 0.4, 0.3, 0.7, 0.2,
		1.1, 0.6, 0.1, 0.9, 0.15,
	})
	y := mat.NewDense(3, 5, nil)
	y.Copy(x)
	nodeMap := map[string]int{"A": 0, "B": 1, "C": 2, "D": 3, "E": 4}
	return common.NewBatch(x, y, []string{"A", "A_B", "ctrl"}, nodeMap)
}

func TestForwardShapes(t *testing.T) {
	m := NewModel(testConfig(true))
	pred, logvar := m.Forward(testBatch())

	r, c := pred.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 5, c)
	require.NotNil(t, logvar)
	r, c = logvar.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 5, c)
}

func TestForwardDeterministic(t *testing.T) {
	m := NewModel(testConfig(false))
	b := testBatch()

	pred1, _ := m.Forward(b)
	pred2, _ := m.Forward(b)
	require.True(t, mat.Equal(pred1, pred2))
}

func TestCloneIsIndependent(t *testing.T) {
	m := NewModel(testConfig(false))
	clone := m.Clone()

	before := clone.StateDict()
	for _, p := range m.Params() {
		p.W.Set(0, 0, p.W.At(0, 0)+42)
	}
	after := clone.StateDict()

	for name := range before {
		require.True(t, mat.Equal(before[name], after[name]), "clone parameter %s changed with the original", name)
	}
}

func TestStateDictRoundTrip(t *testing.T) {
	m := NewModel(testConfig(true))

	encoded, err := EncodeStateDict(m.StateDict())
	require.NoError(t, err)
	decoded, err := DecodeStateDict(encoded)
	require.NoError(t, err)

	m2 := NewModel(testConfig(true))
	require.NoError(t, m2.LoadStateDict(decoded))

	sd1 := m.StateDict()
	sd2 := m2.StateDict()
	require.Equal(t, len(sd1), len(sd2))
	for name := range sd1 {
		require.True(t, mat.Equal(sd1[name], sd2[name]), "parameter %s differs after round trip", name)
	}
}

func TestLoadStateDictRejectsMismatch(t *testing.T) {
	m := NewModel(testConfig(false))

	sd := m.StateDict()
	sd["bogus"] = mat.NewDense(1, 1, nil)
	require.Error(t, m.LoadStateDict(sd))

	sd = m.StateDict()
	delete(sd, "embed.weight")
	require.Error(t, m.LoadStateDict(sd))

	sd = m.StateDict()
	sd["embed.weight"] = mat.NewDense(1, 1, nil)
	require.Error(t, m.LoadStateDict(sd))
}

func TestClipGradValue(t *testing.T) {
	m := NewModel(testConfig(false))
	for _, p := range m.Params() {
		rows, cols := p.Grad.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				p.Grad.Set(i, j, float64(i*cols+j)-7.5)
			}
		}
	}

	ClipGradValue(m.Params(), 1.0)

	for _, p := range m.Params() {
		rows, cols := p.Grad.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				require.LessOrEqual(t, p.Grad.At(i, j), 1.0)
				require.GreaterOrEqual(t, p.Grad.At(i, j), -1.0)
			}
		}
	}
}

func TestAdamStepMovesWeights(t *testing.T) {
	m := NewModel(testConfig(false))
	opt := NewAdam(m.Params(), 1e-2, 0)

	before := m.StateDict()
	for _, p := range m.Params() {
		rows, cols := p.Grad.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				p.Grad.Set(i, j, 0.5)
			}
		}
	}
	opt.Step(m.Params())

	moved := false
	after := m.StateDict()
	for name := range before {
		if !mat.Equal(before[name], after[name]) {
			moved = true
		}
	}
	require.True(t, moved)
}

func TestStepLRDecays(t *testing.T) {
	m := NewModel(testConfig(false))
	opt := NewAdam(m.Params(), 1e-3, 0)
	sched := NewStepLR(opt, 0.5)

	sched.Step()
	require.InDelta(t, 5e-4, opt.LR(), 1e-12)
	sched.Step()
	require.InDelta(t, 2.5e-4, opt.LR(), 1e-12)
}
