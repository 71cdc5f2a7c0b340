package common

import (
	"math"
	"math/rand"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Synthetic builds a deterministic in-memory dataset for the given gene
// universe and perturbation list. Each perturbation knocks its target genes
// down and shifts a pseudo-random set of downstream genes, so differential
// expression is concentrated on a known subset. Used by the simulation
// entrypoint and the tests; real datasets come from an external loader.
func Synthetic(geneNames []string, ncellsPerPert int, perts [][]string, split string, seed int64) *PertData {
	rnd := rand.New(rand.NewSource(seed))
	ngenes := len(geneNames)

	nodeMap := make(map[string]int, ngenes)
	for i, g := range geneNames {
		nodeMap[g] = i
	}

	// baseline profile, with a few dropout genes at zero
	base := make([]float64, ngenes)
	for g := range base {
		if ngenes > 6 && g%7 == 6 {
			continue
		}
		base[g] = math.Abs(rnd.NormFloat64()*0.3 + 1)
	}

	drawCells := func(profile []float64) *mat.Dense {
		cells := mat.NewDense(ncellsPerPert, ngenes, nil)
		for c := 0; c < ncellsPerPert; c++ {
			for g := 0; g < ngenes; g++ {
				v := profile[g] + rnd.NormFloat64()*0.05
				if v < 0 {
					v = 0
				}
				cells.Set(c, g, v)
			}
		}
		return cells
	}

	effect := func(pert []string) []float64 {
		profile := make([]float64, ngenes)
		copy(profile, base)
		for _, gene := range pert {
			idx := nodeMap[gene]
			profile[idx] = 0.2 * base[idx]
			// downstream targets, fixed per source gene
			targets := rand.New(rand.NewSource(seed + int64(idx)))
			for t := 0; t < 5 && t < ngenes; t++ {
				j := targets.Intn(ngenes)
				shift := 0.3
				if targets.Float64() < 0.5 {
					shift = -0.3
				}
				v := profile[j] + shift*base[j]
				if v < 0 {
					v = 0
				}
				profile[j] = v
			}
		}
		return profile
	}

	ctrlCells := drawCells(base)
	ctrlMean := meanColumns(ctrlCells)

	nonZeros := []int{}
	for g, v := range base {
		if v > 0 {
			nonZeros = append(nonZeros, g)
		}
	}

	pool := []string{"GO:0001", "GO:0002", "GO:0003", "GO:0004", "GO:0005",
		"GO:0006", "GO:0007", "GO:0008", "GO:0009", "GO:0010"}
	geneSets := make(map[string][]string, ngenes)
	for _, g := range geneNames {
		terms := make([]string, 0, 3)
		for len(terms) < 3 {
			t := pool[rnd.Intn(len(pool))]
			if !containsString(terms, t) {
				terms = append(terms, t)
			}
		}
		geneSets[g] = terms
	}

	pd := &PertData{
		DatasetName:      "synthetic",
		Split:            split,
		Seed:             seed,
		TrainGeneSetSize: 0.75,
		GeneNames:        geneNames,
		NodeMap:          nodeMap,
		CtrlCells:        ctrlCells,
		Set2Conditions:   map[string][]string{},
		NonZerosGeneIdx:  map[string][]int{},
		TopDEIdx:         map[string][]int{},
		TopNonDropoutDE:  map[string][]int{},
		TruthMean:        map[string][]float64{},
		TruthStd:         map[string][]float64{},
		GeneSets:         geneSets,
	}

	pd.TrainLoader = NewLoader("train_loader")
	pd.ValLoader = NewLoader("val_loader")
	pd.TestLoader = NewLoader("test_loader")

	// control batch, train only
	ctrlBatch := NewBatch(drawCells(base), drawCells(base), repeat(CtrlCondition, ncellsPerPert), nodeMap)
	pd.TrainLoader.Append(ctrlBatch)
	pd.Set2Conditions["train"] = []string{CtrlCondition}

	testConditions := []string{}
	for i, pert := range perts {
		label := strings.Join(pert, "_")
		profile := effect(pert)
		truth := drawCells(profile)
		batch := NewBatch(drawCells(base), truth, repeat(label, ncellsPerPert), nodeMap)

		pd.NonZerosGeneIdx[label] = nonZeros
		tm, ts := meanStdColumns(truth)
		pd.TruthMean[label] = tm
		pd.TruthStd[label] = ts
		pd.TopDEIdx[label] = topDelta(tm, ctrlMean, nil, TopDECount)
		pd.TopNonDropoutDE[label] = topDelta(tm, ctrlMean, nonZeros, TopDECount)

		switch {
		case len(perts) >= 5 && i%5 == 3:
			pd.ValLoader.Append(batch)
			pd.Set2Conditions["val"] = append(pd.Set2Conditions["val"], label)
		case len(perts) >= 5 && i%5 == 4:
			pd.TestLoader.Append(batch)
			testConditions = append(testConditions, label)
			pd.Set2Conditions["test"] = append(pd.Set2Conditions["test"], label)
		default:
			pd.TrainLoader.Append(batch)
			pd.Set2Conditions["train"] = append(pd.Set2Conditions["train"], label)
		}
	}

	// small perturbation lists: evaluate every condition in every split
	if pd.ValLoader.NumBatches() == 0 {
		for _, b := range pd.TrainLoader.Batches()[1:] {
			pd.ValLoader.Append(b)
		}
	}
	if pd.TestLoader.NumBatches() == 0 {
		for _, b := range pd.TrainLoader.Batches()[1:] {
			pd.TestLoader.Append(b)
			testConditions = append(testConditions, b.Perts[0])
		}
	}

	if split == "simulation" {
		sub := &Subgroup{TestSubgroup: map[string][]string{}}
		for _, label := range testConditions {
			name := "unseen_single"
			if strings.Contains(label, "_") {
				name = "combo_seen_0"
			}
			sub.TestSubgroup[name] = append(sub.TestSubgroup[name], label)
		}
		pd.Subgroup = sub
	}

	return pd
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func meanColumns(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	mean := make([]float64, cols)
	for g := 0; g < cols; g++ {
		sum := 0.0
		for c := 0; c < rows; c++ {
			sum += m.At(c, g)
		}
		mean[g] = sum / float64(rows)
	}
	return mean
}

func meanStdColumns(m *mat.Dense) ([]float64, []float64) {
	rows, cols := m.Dims()
	mean := meanColumns(m)
	std := make([]float64, cols)
	for g := 0; g < cols; g++ {
		sum := 0.0
		for c := 0; c < rows; c++ {
			d := m.At(c, g) - mean[g]
			sum += d * d
		}
		std[g] = math.Sqrt(sum / float64(rows))
	}
	return mean, std
}

// topDelta ranks genes by absolute mean change from control, optionally
// restricted to a candidate index set, and keeps the strongest k.
func topDelta(truthMean, ctrlMean []float64, candidates []int, k int) []int {
	if candidates == nil {
		candidates = make([]int, len(truthMean))
		for i := range candidates {
			candidates[i] = i
		}
	}
	ranked := make([]int, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(a, b int) bool {
		da := math.Abs(truthMean[ranked[a]] - ctrlMean[ranked[a]])
		db := math.Abs(truthMean[ranked[b]] - ctrlMean[ranked[b]])
		return da > db
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]int, len(ranked))
	copy(out, ranked)
	sort.Ints(out)
	return out
}
