package domain

// Matrix is a dense row-major float32 matrix of item embeddings.
type Matrix struct {
	Rows int
	Dim  int
	Data []float32
}

// NewMatrix builds a matrix from rows of equal length.
func NewMatrix(rows [][]float32) (*Matrix, error) {
	m := &Matrix{}
	for _, r := range rows {
		if err := m.AppendRow(r); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Row returns row i without copying.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.Dim : (i+1)*m.Dim]
}

// Empty reports whether the matrix holds no rows.
func (m *Matrix) Empty() bool {
	return m == nil || m.Rows == 0
}

// AppendRow stacks one row. The first row fixes the dimension.
func (m *Matrix) AppendRow(row []float32) error {
	if m.Rows == 0 {
		m.Dim = len(row)
	}
	if len(row) != m.Dim || len(row) == 0 {
		return &DimensionMismatchError{Expected: m.Dim, Actual: len(row)}
	}
	m.Data = append(m.Data, row...)
	m.Rows++
	return nil
}

// Head returns a matrix holding the first n rows, sharing storage.
func (m *Matrix) Head(n int) *Matrix {
	if n >= m.Rows {
		return m
	}
	if n <= 0 {
		return &Matrix{Dim: m.Dim}
	}
	return &Matrix{Rows: n, Dim: m.Dim, Data: m.Data[:n*m.Dim]}
}
