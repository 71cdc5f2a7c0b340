package common

// EdgeList is a sparse weighted gene-gene graph: parallel slices of source
// and target gene indices with an edge weight per pair.
type EdgeList struct {
	Src    []int     `toml:"src" json:"src"`
	Dst    []int     `toml:"dst" json:"dst"`
	Weight []float64 `toml:"weight" json:"weight"`
}

func (e *EdgeList) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Src)
}

func (e *EdgeList) Add(src, dst int, weight float64) {
	e.Src = append(e.Src, src)
	e.Dst = append(e.Dst, dst)
	e.Weight = append(e.Weight, weight)
}
