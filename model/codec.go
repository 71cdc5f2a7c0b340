package model

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

type tensorRecord struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// EncodeStateDict serializes a parameter state dictionary to JSON.
func EncodeStateDict(sd map[string]*mat.Dense) ([]byte, error) {
	records := make(map[string]tensorRecord, len(sd))
	for name, w := range sd {
		rows, cols := w.Dims()
		data := make([]float64, 0, rows*cols)
		for i := 0; i < rows; i++ {
			data = append(data, w.RawRowView(i)...)
		}
		records[name] = tensorRecord{Rows: rows, Cols: cols, Data: data}
	}
	return json.MarshalIndent(records, "", " ")
}

// DecodeStateDict reads a parameter state dictionary back from JSON.
func DecodeStateDict(data []byte) (map[string]*mat.Dense, error) {
	records := map[string]tensorRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	sd := make(map[string]*mat.Dense, len(records))
	for name, rec := range records {
		if len(rec.Data) != rec.Rows*rec.Cols {
			return nil, fmt.Errorf("parameter %q has %d values, expected %dx%d", name, len(rec.Data), rec.Rows, rec.Cols)
		}
		sd[name] = mat.NewDense(rec.Rows, rec.Cols, rec.Data)
	}
	return sd, nil
}
