package inference

import (
	"sort"

	"github.com/ldsec/pertNet/common"
	"github.com/ldsec/pertNet/model"
	"gonum.org/v1/gonum/mat"
)

// EvalResult holds aligned per-cell predictions and ground truth for one
// pass over a data split, keyed back to perturbations through Perts.
type EvalResult struct {
	Perts  []string
	Pred   *mat.Dense
	Truth  *mat.Dense
	Logvar *mat.Dense // nil unless the model runs in uncertainty mode
}

// Evaluate runs the model over every batch of the loader in inference mode
// (no gradients are accumulated or consumed) and concatenates the results.
func Evaluate(loader *common.Loader, m *model.Model, uncertainty bool) *EvalResult {
	res := &EvalResult{}

	var predRows, truthRows, lvRows [][]float64
	for _, b := range loader.Batches() {
		pred, logvar := m.Forward(b)
		ncells, ngenes := pred.Dims()
		for c := 0; c < ncells; c++ {
			res.Perts = append(res.Perts, b.Perts[c])
			predRows = append(predRows, rowCopy(pred, c, ngenes))
			truthRows = append(truthRows, rowCopy(b.Y, c, ngenes))
			if uncertainty && logvar != nil {
				lvRows = append(lvRows, rowCopy(logvar, c, ngenes))
			}
		}
	}

	res.Pred = fromRows(predRows)
	res.Truth = fromRows(truthRows)
	if uncertainty {
		res.Logvar = fromRows(lvRows)
	}
	return res
}

// groups returns the distinct perturbation labels in sorted order with the
// row indices belonging to each.
func (r *EvalResult) groups() ([]string, map[string][]int) {
	rows := map[string][]int{}
	for i, p := range r.Perts {
		rows[p] = append(rows[p], i)
	}
	labels := make([]string, 0, len(rows))
	for p := range rows {
		labels = append(labels, p)
	}
	sort.Strings(labels)
	return labels, rows
}

// meanProfile averages the given rows of m into one per-gene vector.
func meanProfile(m *mat.Dense, rows []int) []float64 {
	_, ngenes := m.Dims()
	mean := make([]float64, ngenes)
	for _, r := range rows {
		for g := 0; g < ngenes; g++ {
			mean[g] += m.At(r, g)
		}
	}
	for g := range mean {
		mean[g] /= float64(len(rows))
	}
	return mean
}

func rowCopy(m *mat.Dense, row, ngenes int) []float64 {
	out := make([]float64, ngenes)
	for g := 0; g < ngenes; g++ {
		out[g] = m.At(row, g)
	}
	return out
}

func fromRows(rows [][]float64) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	out := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		out.SetRow(i, r)
	}
	return out
}
