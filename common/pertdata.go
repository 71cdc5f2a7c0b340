package common

import (
	"gonum.org/v1/gonum/mat"
)

// Subgroup names partitions of the test perturbations, used for the
// out-of-distribution "simulation" split analysis.
type Subgroup struct {
	TestSubgroup map[string][]string
}

// PertData is the dataset collaborator: the fixed gene universe, the three
// split loaders and the per-condition statistics the trainer and analyzers
// consume. It is assembled by an external loading step (or Synthetic) and
// treated as read-only afterwards.
type PertData struct {
	DatasetName      string
	Split            string
	Seed             int64
	TrainGeneSetSize float64
	DataPath         string

	GeneNames []string
	NodeMap   map[string]int

	// CtrlCells holds the unperturbed cells, one row per cell.
	CtrlCells *mat.Dense

	TrainLoader *Loader
	ValLoader   *Loader
	TestLoader  *Loader

	Set2Conditions map[string][]string
	Subgroup       *Subgroup

	// NonZerosGeneIdx maps a condition to the gene indices with non-zero
	// baseline expression (the dict filter source).
	NonZerosGeneIdx map[string][]int

	// TopDEIdx / TopNonDropoutDE map a condition to its top differentially
	// expressed gene indices, with and without dropout-prone genes.
	TopDEIdx        map[string][]int
	TopNonDropoutDE map[string][]int

	// TruthMean / TruthStd are the per-gene post-perturbation statistics of
	// each condition, from the measured cells.
	TruthMean map[string][]float64
	TruthStd  map[string][]float64

	// GeneSets maps a gene to its ontology annotation terms.
	GeneSets map[string][]string
}

func (pd *PertData) NumGenes() int {
	return len(pd.GeneNames)
}

// CtrlMean returns the mean expression across all control cells.
func (pd *PertData) CtrlMean() []float64 {
	ncells, ngenes := pd.CtrlCells.Dims()
	mean := make([]float64, ngenes)
	for g := 0; g < ngenes; g++ {
		sum := 0.0
		for c := 0; c < ncells; c++ {
			sum += pd.CtrlCells.At(c, g)
		}
		mean[g] = sum / float64(ncells)
	}
	return mean
}
