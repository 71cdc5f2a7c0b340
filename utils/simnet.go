package utils

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/ldsec/pertNet/common"
	"go.dedis.ch/onet/v3/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// GetSimilarityNetwork derives a sparse weighted gene-gene graph of the
// requested kind: co-expression similarity (Pearson over the control cells)
// or ontology similarity (Jaccard overlap of annotation sets). Per gene, at
// most k neighbors above the threshold are kept. The result is cached under
// the dataset identity fingerprint when the dataset has a data path; genes
// without a qualifying neighbor simply stay isolated.
func GetSimilarityNetwork(networkType string, pd *common.PertData, threshold float64, k int) (*common.EdgeList, error) {
	fingerprint := fmt.Sprintf("%s|%s|%s|%d|%.4f|k=%d|t=%.4f",
		networkType, pd.DatasetName, pd.Split, pd.Seed, pd.TrainGeneSetSize, k, threshold)

	var cache *SimCache
	if pd.DataPath != "" {
		var err error
		cache, err = OpenSimCache(filepath.Join(pd.DataPath, "simnetworks.db"))
		if err != nil {
			return nil, err
		}
		defer cache.Close()

		if el, ok, err := cache.Get(fingerprint); err != nil {
			return nil, err
		} else if ok {
			log.Lvl2("similarity network cache hit:", fingerprint)
			return el, nil
		}
	}

	var el *common.EdgeList
	switch networkType {
	case common.NetworkCoExpress:
		el = coExpressNetwork(pd, threshold, k)
	case common.NetworkGO:
		el = goNetwork(pd, threshold, k)
	default:
		return nil, fmt.Errorf("unknown similarity network type %q", networkType)
	}

	if cache != nil {
		if err := cache.Put(fingerprint, el); err != nil {
			return nil, err
		}
	}
	return el, nil
}

type neighbor struct {
	idx    int
	weight float64
}

// topNeighbors keeps the k strongest candidates, ties broken by gene index
// so the graph is reproducible for a fixed dataset.
func topNeighbors(candidates []neighbor, k int) []neighbor {
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].weight != candidates[b].weight {
			return candidates[a].weight > candidates[b].weight
		}
		return candidates[a].idx < candidates[b].idx
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

func coExpressNetwork(pd *common.PertData, threshold float64, k int) *common.EdgeList {
	ngenes := pd.NumGenes()
	ncells, _ := pd.CtrlCells.Dims()

	cols := make([][]float64, ngenes)
	for g := 0; g < ngenes; g++ {
		cols[g] = make([]float64, ncells)
		mat.Col(cols[g], g, pd.CtrlCells)
	}

	el := &common.EdgeList{}
	for i := 0; i < ngenes; i++ {
		candidates := []neighbor{}
		for j := 0; j < ngenes; j++ {
			if j == i {
				continue
			}
			corr := stat.Correlation(cols[i], cols[j], nil)
			if corr > threshold {
				candidates = append(candidates, neighbor{idx: j, weight: corr})
			}
		}
		for _, n := range topNeighbors(candidates, k) {
			el.Add(n.idx, i, n.weight)
		}
	}
	return el
}

func goNetwork(pd *common.PertData, threshold float64, k int) *common.EdgeList {
	ngenes := pd.NumGenes()

	sets := make([]map[string]bool, ngenes)
	for g, name := range pd.GeneNames {
		sets[g] = map[string]bool{}
		for _, term := range pd.GeneSets[name] {
			sets[g][term] = true
		}
	}

	el := &common.EdgeList{}
	for i := 0; i < ngenes; i++ {
		candidates := []neighbor{}
		for j := 0; j < ngenes; j++ {
			if j == i {
				continue
			}
			sim := jaccard(sets[i], sets[j])
			if sim > threshold {
				candidates = append(candidates, neighbor{idx: j, weight: sim})
			}
		}
		for _, n := range topNeighbors(candidates, k) {
			el.Add(n.idx, i, n.weight)
		}
	}
	return el
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
