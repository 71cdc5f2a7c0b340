package pertnet

import (
	"math"
	"sort"

	"go.dedis.ch/onet/v3/log"
	"gonum.org/v1/gonum/mat"

	"github.com/ldsec/pertNet/inference"
	"github.com/ldsec/pertNet/model"
	"github.com/ldsec/pertNet/utils"
)

const (
	progressEvery = 50
	lrDecayGamma  = 0.5
	gradClipValue = 1.0
)

var (
	deeperMetrics     = []string{"pearson_delta"}
	nonDropoutMetrics = []string{
		"frac_opposite_direction_top20_non_dropout",
		"frac_sigma_below_1_non_dropout",
		"mse_top20_de_non_dropout",
	}
)

// TrainResult is the final test-set report: aggregate and per-perturbation
// metrics, the diagnostic analyses, and the subgroup breakdowns when the
// split is the out-of-distribution simulation type.
type TrainResult struct {
	EpochLoss []float64

	TestMetrics     map[string]float64
	TestPertMetrics map[string]map[string]float64
	DeeperAnalysis  map[string]map[string]float64
	NonDropout      map[string]map[string]float64

	SubgroupMetrics map[string]map[string]float64
	SubgroupDeeper  map[string]map[string]float64
}

// Train runs the full training loop: per-batch loss and backpropagation
// with element-wise gradient clipping, learning-rate decay after every
// epoch, validation-driven best-model selection, and the terminal test
// evaluation using the retained best model. Any failure aborts the run; no
// partial checkpoint is written.
func (p *PertNet) Train(epochs int, lr, weightDecay float64) (*TrainResult, error) {
	if p.config == nil {
		return nil, ErrNoModelInitialized
	}

	trainLoader := p.pd.TrainLoader
	valLoader := p.pd.ValLoader
	testLoader := p.pd.TestLoader

	opt := model.NewAdam(p.model.Params(), lr, weightDecay)
	sched := model.NewStepLR(opt, lrDecayGamma)

	minVal := math.Inf(1)
	result := &TrainResult{}

	log.Lvl1("Start Training...")
	for epoch := 0; epoch < epochs; epoch++ {
		epochLoss := 0.0
		steps := 0

		for step, batch := range trainLoader.Batches() {
			p.model.ZeroGrad()

			var loss float64
			if p.config.Uncertainty {
				pred, logvar := p.model.Forward(batch)
				var dPred, dLogvar *mat.Dense
				loss, dPred, dLogvar = utils.UncertaintyLossFct(pred, logvar, batch.Y, batch.Perts,
					p.config.UncertaintyReg, p.ctrlExpression, p.dictFilter, p.config.DirectionLambda)
				p.model.Backward(dPred, dLogvar)
			} else {
				pred, _ := p.model.Forward(batch)
				var dPred *mat.Dense
				loss, dPred = utils.LossFct(pred, batch.Y, batch.Perts,
					p.ctrlExpression, p.dictFilter, p.config.DirectionLambda)
				p.model.Backward(dPred, nil)
			}

			model.ClipGradValue(p.model.Params(), gradClipValue)
			opt.Step(p.model.Params())

			p.recorder.Log("training_loss", loss)
			if step%progressEvery == 0 {
				log.Lvlf2("Epoch %d Step %d Train Loss: %.4f", epoch+1, step+1, loss)
			}
			epochLoss += loss
			steps++
		}
		sched.Step()
		if steps > 0 {
			result.EpochLoss = append(result.EpochLoss, epochLoss/float64(steps))
		}

		trainRes := inference.Evaluate(trainLoader, p.model, p.config.Uncertainty)
		valRes := inference.Evaluate(valLoader, p.model, p.config.Uncertainty)
		trainMetrics, _ := inference.ComputeMetrics(trainRes, p.pd.TopDEIdx)
		valMetrics, _ := inference.ComputeMetrics(valRes, p.pd.TopDEIdx)

		log.Lvlf1("Epoch %d: Train Overall MSE: %.4f Validation Overall MSE: %.4f.",
			epoch+1, trainMetrics["mse"], valMetrics["mse"])
		log.Lvlf1("Train Top 20 DE MSE: %.4f Validation Top 20 DE MSE: %.4f.",
			trainMetrics["mse_de"], valMetrics["mse_de"])

		for _, m := range []string{"mse", "pearson"} {
			p.recorder.Log("train_"+m, trainMetrics[m])
			p.recorder.Log("val_"+m, valMetrics[m])
			p.recorder.Log("train_de_"+m, trainMetrics[m+"_de"])
			p.recorder.Log("val_de_"+m, valMetrics[m+"_de"])
		}

		if mseDE, ok := valMetrics["mse_de"]; ok {
			p.promoteIfBetter(mseDE, &minVal)
		}
	}
	log.Lvl1("Done!")

	log.Lvl1("Start Testing...")
	testRes := inference.Evaluate(testLoader, p.bestModel, p.config.Uncertainty)
	testMetrics, testPertRes := inference.ComputeMetrics(testRes, p.pd.TopDEIdx)
	log.Lvlf1("Best performing model: Test Top 20 DE MSE: %.4f", testMetrics["mse_de"])

	for _, m := range []string{"mse", "pearson"} {
		p.recorder.Log("test_"+m, testMetrics[m])
		p.recorder.Log("test_de_"+m, testMetrics[m+"_de"])
	}

	out := inference.DeeperAnalysis(p.pd, testRes)
	outNonDropout := inference.NonDropoutAnalysis(p.pd, testRes)

	for _, m := range deeperMetrics {
		p.recorder.Log("test_"+m, metricMean(out, m))
	}
	for _, m := range nonDropoutMetrics {
		p.recorder.Log("test_"+m, metricMean(outNonDropout, m))
	}

	result.TestMetrics = testMetrics
	result.TestPertMetrics = testPertRes
	result.DeeperAnalysis = out
	result.NonDropout = outNonDropout

	if p.pd.Split == "simulation" && p.pd.Subgroup != nil {
		log.Lvl1("Start doing subgroup analysis for simulation split...")

		result.SubgroupMetrics = p.subgroupAnalysis(testPertRes, metricNames(testPertRes))

		combined := map[string]map[string]float64{}
		for pert, m := range out {
			combined[pert] = map[string]float64{}
			for k, v := range m {
				combined[pert][k] = v
			}
		}
		for pert, m := range outNonDropout {
			if combined[pert] == nil {
				combined[pert] = map[string]float64{}
			}
			for k, v := range m {
				combined[pert][k] = v
			}
		}
		result.SubgroupDeeper = p.subgroupAnalysis(combined, append(append([]string{}, deeperMetrics...), nonDropoutMetrics...))
	}
	log.Lvl1("Done!")
	return result, nil
}

// promoteIfBetter snapshots the current model when the validation top-DE
// error strictly improves on the best seen so far; ties keep the earlier
// snapshot.
func (p *PertNet) promoteIfBetter(mseDE float64, minVal *float64) {
	if mseDE < *minVal {
		*minVal = mseDE
		p.bestModel = p.model.Clone()
	}
}

// subgroupAnalysis averages each metric across all perturbations of every
// named test subgroup.
func (p *PertNet) subgroupAnalysis(perPert map[string]map[string]float64, metrics []string) map[string]map[string]float64 {
	analysis := map[string]map[string]float64{}
	for name, pertList := range p.pd.Subgroup.TestSubgroup {
		values := map[string][]float64{}
		for _, pert := range pertList {
			res, ok := perPert[pert]
			if !ok {
				continue
			}
			for _, m := range metrics {
				if v, found := res[m]; found {
					values[m] = append(values[m], v)
				}
			}
		}
		analysis[name] = map[string]float64{}
		for _, m := range metrics {
			if len(values[m]) == 0 {
				continue
			}
			mean := utils.Mean(values[m])
			analysis[name][m] = mean
			p.recorder.Log("test_"+name+"_"+m, mean)
			log.Lvlf1("test_%s_%s: %v", name, m, mean)
		}
	}
	return analysis
}

func metricNames(perPert map[string]map[string]float64) []string {
	seen := map[string]bool{}
	for _, m := range perPert {
		for name := range m {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func metricMean(perPert map[string]map[string]float64, metric string) float64 {
	vals := []float64{}
	for _, m := range perPert {
		if v, ok := m[metric]; ok {
			vals = append(vals, v)
		}
	}
	return utils.Mean(vals)
}
