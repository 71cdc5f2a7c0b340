package pertnet

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/ldsec/pertNet/common"
)

// Predict returns the mean predicted expression profile for every requested
// perturbation (a list of 1-2 gene names each), keyed by the genes joined
// with "_". Every gene must belong to the gene universe. With uncertainty
// enabled, a parallel map carries a scalar confidence score per
// perturbation, exp(-mean(logvar)). The best model is used; training state
// is untouched.
func (p *PertNet) Predict(pertList [][]string) (map[string][]float64, map[string]float64, error) {
	if p.config == nil {
		return nil, nil, ErrNoModelInitialized
	}
	for _, pert := range pertList {
		for _, gene := range pert {
			if _, ok := p.pd.NodeMap[gene]; !ok {
				return nil, nil, fmt.Errorf("gene %q is not in the perturbation graph, select from the gene list", gene)
			}
		}
	}

	nctrl, ngenes := p.pd.CtrlCells.Dims()
	ncells := nctrl
	if ncells > common.PredictBatchSize {
		ncells = common.PredictBatchSize
	}

	resultsPred := make(map[string][]float64, len(pertList))
	var resultsLogvar map[string]float64
	if p.config.Uncertainty {
		resultsLogvar = make(map[string]float64, len(pertList))
	}

	for _, pert := range pertList {
		label := strings.Join(pert, "_")

		// synthetic replicate cells from the control subset
		x := mat.NewDense(ncells, ngenes, nil)
		for c := 0; c < ncells; c++ {
			for g := 0; g < ngenes; g++ {
				x.Set(c, g, p.pd.CtrlCells.At(c, g))
			}
		}
		batch := common.NewBatch(x, nil, repeatLabel(label, ncells), p.pd.NodeMap)

		pred, logvar := p.bestModel.Forward(batch)

		mean := make([]float64, ngenes)
		for g := 0; g < ngenes; g++ {
			sum := 0.0
			for c := 0; c < ncells; c++ {
				sum += pred.At(c, g)
			}
			mean[g] = sum / float64(ncells)
		}
		resultsPred[label] = mean

		if p.config.Uncertainty && logvar != nil {
			sum := 0.0
			for c := 0; c < ncells; c++ {
				for g := 0; g < ngenes; g++ {
					sum += logvar.At(c, g)
				}
			}
			resultsLogvar[label] = math.Exp(-sum / float64(ncells*ngenes))
		}
	}
	return resultsPred, resultsLogvar, nil
}

func repeatLabel(label string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = label
	}
	return out
}
