package model

import (
	"fmt"
	"math/rand"

	"github.com/ldsec/pertNet/common"
	"github.com/ldsec/pertNet/layers"
	"gonum.org/v1/gonum/mat"
)

// fixed seed, weight initialization is deterministic per process
var rng = rand.New(rand.NewSource(0))

// Model is the differentiable perturbation predictor: a gene-wise embedding
// of (baseline expression, perturbation flag), propagation over the
// co-expression and ontology similarity graphs, and a per-gene decoder that
// outputs the expression delta added back onto the baseline. With
// Uncertainty enabled a second head outputs a per-gene log-variance.
type Model struct {
	cfg *Config

	embed     *layers.Dense
	geneConvs []*layers.GraphConv
	goConvs   []*layers.GraphConv
	dec1      *layers.Dense
	dec2      *layers.Dense
	logvar    *layers.Dense

	params []*layers.Param
}

func NewModel(cfg *Config) *Model {
	m := &Model{cfg: cfg}
	m.embed = layers.NewDense("embed", 2, cfg.HiddenSize, true, rng)
	for i := 0; i < cfg.NumGeneGNNLayers; i++ {
		adj := buildAdjacency(cfg.GCoexpress, cfg.NumGenes)
		m.geneConvs = append(m.geneConvs, layers.NewGraphConv(fmt.Sprintf("gene_conv.%d", i), adj, cfg.HiddenSize, rng))
	}
	for i := 0; i < cfg.NumGOGNNLayers; i++ {
		adj := buildAdjacency(cfg.GGO, cfg.NumGenes)
		m.goConvs = append(m.goConvs, layers.NewGraphConv(fmt.Sprintf("go_conv.%d", i), adj, cfg.HiddenSize, rng))
	}
	m.dec1 = layers.NewDense("decoder.0", cfg.HiddenSize, cfg.DecoderHiddenSize, true, rng)
	m.dec2 = layers.NewDense("decoder.1", cfg.DecoderHiddenSize, 1, false, rng)

	m.params = append(m.params, m.embed.Params()...)
	for _, c := range m.geneConvs {
		m.params = append(m.params, c.Params()...)
	}
	for _, c := range m.goConvs {
		m.params = append(m.params, c.Params()...)
	}
	m.params = append(m.params, m.dec1.Params()...)
	m.params = append(m.params, m.dec2.Params()...)

	if cfg.Uncertainty {
		m.logvar = layers.NewDense("logvar", cfg.DecoderHiddenSize, 1, false, rng)
		m.params = append(m.params, m.logvar.Params()...)
	}
	return m
}

func (m *Model) Config() *Config {
	return m.cfg
}

// Forward runs the whole batch through the network and returns the predicted
// expression (ncells x ngenes) and, with uncertainty enabled, the per-gene
// log-variance of the same shape (nil otherwise).
func (m *Model) Forward(b *common.Batch) (*mat.Dense, *mat.Dense) {
	ncells, ngenes := b.X.Dims()

	input := make([]*mat.Dense, ncells)
	for c := 0; c < ncells; c++ {
		cell := mat.NewDense(ngenes, 2, nil)
		for g := 0; g < ngenes; g++ {
			cell.Set(g, 0, b.X.At(c, g))
			cell.Set(g, 1, b.Flags.At(c, g))
		}
		input[c] = cell
	}

	h := m.embed.Forward(input)
	for _, conv := range m.geneConvs {
		h = conv.Forward(h)
	}
	for _, conv := range m.goConvs {
		h = conv.Forward(h)
	}
	d := m.dec1.Forward(h)
	out := m.dec2.Forward(d)

	pred := mat.NewDense(ncells, ngenes, nil)
	for c := 0; c < ncells; c++ {
		for g := 0; g < ngenes; g++ {
			pred.Set(c, g, b.X.At(c, g)+out[c].At(g, 0))
		}
	}

	if m.logvar == nil {
		return pred, nil
	}
	lv := m.logvar.Forward(d)
	logvar := mat.NewDense(ncells, ngenes, nil)
	for c := 0; c < ncells; c++ {
		for g := 0; g < ngenes; g++ {
			logvar.Set(c, g, lv[c].At(g, 0))
		}
	}
	return pred, logvar
}

// Backward accumulates parameter gradients from the loss gradients with
// respect to the prediction and, when present, the log-variance head.
func (m *Model) Backward(dPred, dLogvar *mat.Dense) {
	ncells, ngenes := dPred.Dims()

	deltaOut := make([]*mat.Dense, ncells)
	for c := 0; c < ncells; c++ {
		col := mat.NewDense(ngenes, 1, nil)
		for g := 0; g < ngenes; g++ {
			col.Set(g, 0, dPred.At(c, g))
		}
		deltaOut[c] = col
	}
	dDec := m.dec2.Backward(deltaOut)

	if dLogvar != nil && m.logvar != nil {
		deltaLv := make([]*mat.Dense, ncells)
		for c := 0; c < ncells; c++ {
			col := mat.NewDense(ngenes, 1, nil)
			for g := 0; g < ngenes; g++ {
				col.Set(g, 0, dLogvar.At(c, g))
			}
			deltaLv[c] = col
		}
		dDecLv := m.logvar.Backward(deltaLv)
		for c := range dDec {
			dDec[c].Add(dDec[c], dDecLv[c])
		}
	}

	delta := m.dec1.Backward(dDec)
	for i := len(m.goConvs) - 1; i >= 0; i-- {
		delta = m.goConvs[i].Backward(delta)
	}
	for i := len(m.geneConvs) - 1; i >= 0; i-- {
		delta = m.geneConvs[i].Backward(delta)
	}
	m.embed.Backward(delta)
}

func (m *Model) Params() []*layers.Param {
	return m.params
}

func (m *Model) ZeroGrad() {
	for _, p := range m.params {
		p.ZeroGrad()
	}
}

// StateDict returns an independent copy of every learnable tensor, keyed by
// parameter name.
func (m *Model) StateDict() map[string]*mat.Dense {
	sd := make(map[string]*mat.Dense, len(m.params))
	for _, p := range m.params {
		sd[p.Name] = mat.DenseCopyOf(p.W)
	}
	return sd
}

// LoadStateDict copies the given tensors into the model parameters. Names
// and shapes must match the model exactly.
func (m *Model) LoadStateDict(sd map[string]*mat.Dense) error {
	byName := make(map[string]*layers.Param, len(m.params))
	for _, p := range m.params {
		byName[p.Name] = p
	}
	for name := range sd {
		if _, ok := byName[name]; !ok {
			return fmt.Errorf("unexpected parameter %q in state dict", name)
		}
	}
	for _, p := range m.params {
		w, ok := sd[p.Name]
		if !ok {
			return fmt.Errorf("state dict is missing parameter %q", p.Name)
		}
		pr, pc := p.W.Dims()
		wr, wc := w.Dims()
		if pr != wr || pc != wc {
			return fmt.Errorf("parameter %q has shape %dx%d, expected %dx%d", p.Name, wr, wc, pr, pc)
		}
		p.W.Copy(w)
	}
	return nil
}

// Clone returns a fully independent deep copy: later training steps on the
// receiver cannot touch the clone.
func (m *Model) Clone() *Model {
	clone := NewModel(m.cfg)
	if err := clone.LoadStateDict(m.StateDict()); err != nil {
		// same config implies same parameter set
		panic(err)
	}
	return clone
}

// buildAdjacency densifies an edge list into a row-normalized adjacency
// with self loops. Genes without qualifying edges stay isolated.
func buildAdjacency(el *common.EdgeList, ngenes int) *mat.Dense {
	adj := mat.NewDense(ngenes, ngenes, nil)
	for g := 0; g < ngenes; g++ {
		adj.Set(g, g, 1)
	}
	for i := 0; i < el.Len(); i++ {
		adj.Set(el.Dst[i], el.Src[i], adj.At(el.Dst[i], el.Src[i])+el.Weight[i])
	}
	for g := 0; g < ngenes; g++ {
		sum := 0.0
		for j := 0; j < ngenes; j++ {
			sum += adj.At(g, j)
		}
		if sum > 0 {
			for j := 0; j < ngenes; j++ {
				adj.Set(g, j, adj.At(g, j)/sum)
			}
		}
	}
	return adj
}
