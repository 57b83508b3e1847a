package tower

import "fmt"

// Matrix is a dense row-major float32 matrix. Embedding tables, projection
// weights and bias vectors (1 x n) all use it.
type Matrix struct {
	Rows, Cols int
	Data       []float32
}

// NewMatrix allocates a zeroed rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// Row returns row r as a shared slice. Out-of-range rows (a vocabulary
// drifted from the weights) alias row 0, the unknown row.
func (m *Matrix) Row(r int32) []float32 {
	if r < 0 || int(r) >= m.Rows {
		r = 0
	}

	start := int(r) * m.Cols

	return m.Data[start : start+m.Cols]
}

func (m *Matrix) shape() string {
	return fmt.Sprintf("%dx%d", m.Rows, m.Cols)
}
