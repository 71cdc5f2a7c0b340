package inference

import (
	"github.com/montanaflynn/stats"

	"github.com/ldsec/pertNet/common"
	"github.com/ldsec/pertNet/utils"
)

// DeeperAnalysis computes perturbation-level diagnostics against the
// dataset's pre/post-perturbation statistics. Currently: pearson_delta, the
// correlation of predicted and measured expression change from control.
func DeeperAnalysis(pd *common.PertData, res *EvalResult) map[string]map[string]float64 {
	ctrl := pd.CtrlMean()
	labels, rows := res.groups()

	out := map[string]map[string]float64{}
	for _, label := range labels {
		if label == common.CtrlCondition {
			continue
		}
		meanPred := meanProfile(res.Pred, rows[label])
		truthMean, ok := pd.TruthMean[label]
		if !ok {
			truthMean = meanProfile(res.Truth, rows[label])
		}

		m := map[string]float64{}
		if r, err := stats.Pearson(utils.Sub(meanPred, ctrl), utils.Sub(truthMean, ctrl)); err == nil {
			m["pearson_delta"] = r
		}
		out[label] = m
	}
	return out
}

// NonDropoutAnalysis scores each perturbation on its top non-dropout
// differentially expressed genes: direction agreement with the measured
// change, calibration against the measured spread, and magnitude error.
func NonDropoutAnalysis(pd *common.PertData, res *EvalResult) map[string]map[string]float64 {
	const eps = 1e-6

	ctrl := pd.CtrlMean()
	labels, rows := res.groups()

	out := map[string]map[string]float64{}
	for _, label := range labels {
		if label == common.CtrlCondition {
			continue
		}
		idx, ok := pd.TopNonDropoutDE[label]
		if !ok || len(idx) == 0 {
			continue
		}
		truthMean, ok := pd.TruthMean[label]
		if !ok {
			truthMean = meanProfile(res.Truth, rows[label])
		}
		truthStd := pd.TruthStd[label]
		meanPred := meanProfile(res.Pred, rows[label])

		opposite := 0.0
		calibrated := 0.0
		for _, g := range idx {
			if utils.Sign(meanPred[g]-ctrl[g]) != utils.Sign(truthMean[g]-ctrl[g]) {
				opposite++
			}
			if truthStd != nil {
				z := (meanPred[g] - truthMean[g]) / (truthStd[g] + eps)
				if z < 1 && z > -1 {
					calibrated++
				}
			}
		}

		m := map[string]float64{
			"frac_opposite_direction_top20_non_dropout": opposite / float64(len(idx)),
			"mse_top20_de_non_dropout":                  mse(subset(meanPred, idx), subset(truthMean, idx)),
		}
		if truthStd != nil {
			m["frac_sigma_below_1_non_dropout"] = calibrated / float64(len(idx))
		}
		out[label] = m
	}
	return out
}
