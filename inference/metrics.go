package inference

import (
	"github.com/montanaflynn/stats"

	"github.com/ldsec/pertNet/common"
	"github.com/ldsec/pertNet/utils"
)

// ComputeMetrics reduces an evaluation pass to scalar quality metrics:
// mean-squared error and Pearson correlation of the per-perturbation mean
// profiles, overall and restricted to each perturbation's top
// differentially expressed genes. Returns the aggregate metrics and the
// per-perturbation breakdown.
func ComputeMetrics(res *EvalResult, topDE map[string][]int) (map[string]float64, map[string]map[string]float64) {
	labels, rows := res.groups()

	pertMetrics := map[string]map[string]float64{}
	for _, label := range labels {
		meanPred := meanProfile(res.Pred, rows[label])
		meanTruth := meanProfile(res.Truth, rows[label])

		m := map[string]float64{
			"mse": mse(meanPred, meanTruth),
		}
		if r, err := stats.Pearson(meanPred, meanTruth); err == nil {
			m["pearson"] = r
		}

		if idx, ok := topDE[label]; ok && label != common.CtrlCondition && len(idx) > 0 {
			predDE := subset(meanPred, idx)
			truthDE := subset(meanTruth, idx)
			m["mse_de"] = mse(predDE, truthDE)
			if r, err := stats.Pearson(predDE, truthDE); err == nil {
				m["pearson_de"] = r
			}
		}
		pertMetrics[label] = m
	}

	overall := map[string]float64{}
	for _, name := range []string{"mse", "pearson", "mse_de", "pearson_de"} {
		vals := []float64{}
		for _, label := range labels {
			if v, ok := pertMetrics[label][name]; ok {
				vals = append(vals, v)
			}
		}
		if len(vals) > 0 {
			overall[name] = utils.Mean(vals)
		}
	}
	return overall, pertMetrics
}

func mse(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum / float64(len(a))
}

func subset(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}
