package utils

import (
	"math"

	"github.com/ldsec/pertNet/common"
	"gonum.org/v1/gonum/mat"
)

// Loss semantics: cells are grouped by perturbation label and each group is
// reduced to a mean over (cells x retained genes), restricted to the
// perturbation's dict-filter gene subset when one exists. The batch loss is
// the unweighted mean of the group losses. The alternative pooled batch-level
// mean is a one-line change in the final division.
//
// The direction penalty adds direction_lambda * (pred-y)^2 on entries whose
// sign of change versus control disagrees with the ground truth's sign of
// change. The sign comparison itself has zero derivative, so the mismatch
// mask is treated as a constant when the gradient is formed.

type lossGroup struct {
	label string
	rows  []int
}

func groupByPert(perts []string) []lossGroup {
	order := []string{}
	rows := map[string][]int{}
	for i, p := range perts {
		if _, seen := rows[p]; !seen {
			order = append(order, p)
		}
		rows[p] = append(rows[p], i)
	}
	groups := make([]lossGroup, len(order))
	for i, label := range order {
		groups[i] = lossGroup{label: label, rows: rows[label]}
	}
	return groups
}

func retainedGenes(label string, ngenes int, dictFilter map[string][]int) []int {
	if label != common.CtrlCondition && dictFilter != nil {
		if idx, ok := dictFilter[label]; ok {
			return idx
		}
	}
	all := make([]int, ngenes)
	for i := range all {
		all[i] = i
	}
	return all
}

// LossFct computes the direction-aware regression loss and its gradient with
// respect to the prediction.
func LossFct(pred, y *mat.Dense, perts []string, ctrl []float64, dictFilter map[string][]int, directionLambda float64) (float64, *mat.Dense) {
	ncells, ngenes := pred.Dims()
	grad := mat.NewDense(ncells, ngenes, nil)

	groups := groupByPert(perts)
	total := 0.0
	for _, group := range groups {
		retained := retainedGenes(group.label, ngenes, dictFilter)
		norm := 1.0 / float64(len(group.rows)*len(retained))
		scale := norm / float64(len(groups))

		groupLoss := 0.0
		for _, c := range group.rows {
			for _, g := range retained {
				e := pred.At(c, g) - y.At(c, g)
				w := 1.0
				if Sign(pred.At(c, g)-ctrl[g]) != Sign(y.At(c, g)-ctrl[g]) {
					w += directionLambda
				}
				groupLoss += w * e * e
				grad.Set(c, g, 2*w*e*scale)
			}
		}
		total += groupLoss * norm
	}
	return total / float64(len(groups)), grad
}

// UncertaintyLossFct is the heteroscedastic variant: the squared error is
// down-weighted by exp(logvar) and a reg * logvar complexity penalty is
// added, with the same direction term. Returns the loss and the gradients
// with respect to prediction and log-variance.
func UncertaintyLossFct(pred, logvar, y *mat.Dense, perts []string, reg float64, ctrl []float64, dictFilter map[string][]int, directionLambda float64) (float64, *mat.Dense, *mat.Dense) {
	ncells, ngenes := pred.Dims()
	dPred := mat.NewDense(ncells, ngenes, nil)
	dLogvar := mat.NewDense(ncells, ngenes, nil)

	groups := groupByPert(perts)
	total := 0.0
	for _, group := range groups {
		retained := retainedGenes(group.label, ngenes, dictFilter)
		norm := 1.0 / float64(len(group.rows)*len(retained))
		scale := norm / float64(len(groups))

		groupLoss := 0.0
		for _, c := range group.rows {
			for _, g := range retained {
				e := pred.At(c, g) - y.At(c, g)
				lv := logvar.At(c, g)
				precision := math.Exp(-lv)

				dir := 0.0
				if Sign(pred.At(c, g)-ctrl[g]) != Sign(y.At(c, g)-ctrl[g]) {
					dir = directionLambda
				}

				groupLoss += precision*e*e + reg*lv + dir*e*e
				dPred.Set(c, g, 2*e*(precision+dir)*scale)
				dLogvar.Set(c, g, (reg-precision*e*e)*scale)
			}
		}
		total += groupLoss * norm
	}
	return total / float64(len(groups)), dPred, dLogvar
}
