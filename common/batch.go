package common

import (
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Batch groups cells sharing one forward pass: baseline expression, observed
// post-perturbation expression and one perturbation label per cell.
type Batch struct {
	X     *mat.Dense // ncells x ngenes, baseline (control) expression
	Y     *mat.Dense // ncells x ngenes, observed expression; nil for inference-only batches
	Perts []string   // per-cell perturbation label, "ctrl" or genes joined by "_"
	Flags *mat.Dense // ncells x ngenes, 1 on perturbed genes
}

// NewBatch builds a batch and derives the per-cell perturbation indicator
// from the labels. Genes absent from nodeMap are ignored, so "ctrl" rows
// keep an all-zero indicator.
func NewBatch(x, y *mat.Dense, perts []string, nodeMap map[string]int) *Batch {
	ncells, ngenes := x.Dims()
	flags := mat.NewDense(ncells, ngenes, nil)
	for c, label := range perts {
		if label == CtrlCondition {
			continue
		}
		for _, gene := range strings.Split(label, "_") {
			if idx, ok := nodeMap[gene]; ok {
				flags.Set(c, idx, 1)
			}
		}
	}
	return &Batch{X: x, Y: y, Perts: perts, Flags: flags}
}

func (b *Batch) NumCells() int {
	n, _ := b.X.Dims()
	return n
}

// Loader yields batches in a fixed order, one full pass per epoch.
type Loader struct {
	Name    string
	batches []*Batch
}

func NewLoader(name string, batches ...*Batch) *Loader {
	return &Loader{Name: name, batches: batches}
}

func (l *Loader) Append(b *Batch) {
	l.batches = append(l.batches, b)
}

func (l *Loader) Batches() []*Batch {
	return l.batches
}

func (l *Loader) NumBatches() int {
	return len(l.batches)
}
