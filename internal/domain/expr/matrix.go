// Package expr holds the in-memory model for an annotated expression matrix:
// cells × genes values plus the per-cell observation table. Domain logic
// (matching, region filtering) operates on these types only — file formats
// live in adapters.
package expr

import "math"

// Matrix is a cells × genes expression matrix. Implementations are Dense and
// CSR; both are mutated in place by the preprocessing transforms.
type Matrix interface {
	// Dims returns (cells, genes).
	Dims() (cells, genes int)

	// RowTo copies row i into dst (len(dst) >= genes) and returns dst[:genes].
	RowTo(dst []float64, i int) []float64

	// ColTo copies column j into dst (len(dst) >= cells) and returns dst[:cells].
	ColTo(dst []float64, j int) []float64

	// RowSum returns the sum of row i.
	RowSum(i int) float64

	// ScaleRow multiplies every value in row i by f.
	ScaleRow(i int, f float64)

	// Log1p applies ln(1+x) to every stored value.
	Log1p()

	// SelectRows returns a new matrix containing only the given rows, in order.
	SelectRows(keep []int) Matrix
}

// Dense is a row-major dense matrix.
type Dense struct {
	Cells int
	Genes int
	Data  []float64 // len = Cells*Genes
}

// NewDense allocates a zeroed dense matrix.
func NewDense(cells, genes int) *Dense {
	return &Dense{Cells: cells, Genes: genes, Data: make([]float64, cells*genes)}
}

func (m *Dense) Dims() (int, int) { return m.Cells, m.Genes }

func (m *Dense) row(i int) []float64 { return m.Data[i*m.Genes : (i+1)*m.Genes] }

func (m *Dense) RowTo(dst []float64, i int) []float64 {
	dst = dst[:m.Genes]
	copy(dst, m.row(i))
	return dst
}

func (m *Dense) ColTo(dst []float64, j int) []float64 {
	dst = dst[:m.Cells]
	for i := 0; i < m.Cells; i++ {
		dst[i] = m.Data[i*m.Genes+j]
	}
	return dst
}

func (m *Dense) RowSum(i int) float64 {
	var s float64
	for _, v := range m.row(i) {
		s += v
	}
	return s
}

func (m *Dense) ScaleRow(i int, f float64) {
	r := m.row(i)
	for k := range r {
		r[k] *= f
	}
}

func (m *Dense) Log1p() {
	for k, v := range m.Data {
		m.Data[k] = math.Log1p(v)
	}
}

func (m *Dense) SelectRows(keep []int) Matrix {
	out := NewDense(len(keep), m.Genes)
	for k, i := range keep {
		copy(out.row(k), m.row(i))
	}
	return out
}

// CSR is a compressed sparse row matrix, matching the on-disk layout of a
// sparse h5ad X group (data / indices / indptr).
type CSR struct {
	Cells   int
	Genes   int
	Data    []float64
	Indices []int32 // column index per stored value
	Indptr  []int64 // row start offsets, len = Cells+1
}

func (m *CSR) Dims() (int, int) { return m.Cells, m.Genes }

func (m *CSR) RowTo(dst []float64, i int) []float64 {
	dst = dst[:m.Genes]
	for k := range dst {
		dst[k] = 0
	}
	for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
		dst[m.Indices[k]] = m.Data[k]
	}
	return dst
}

func (m *CSR) ColTo(dst []float64, j int) []float64 {
	dst = dst[:m.Cells]
	for k := range dst {
		dst[k] = 0
	}
	for i := 0; i < m.Cells; i++ {
		for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
			if int(m.Indices[k]) == j {
				dst[i] = m.Data[k]
				break
			}
		}
	}
	return dst
}

func (m *CSR) RowSum(i int) float64 {
	var s float64
	for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
		s += m.Data[k]
	}
	return s
}

func (m *CSR) ScaleRow(i int, f float64) {
	for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
		m.Data[k] *= f
	}
}

// Log1p on CSR only touches stored values; log1p(0) = 0, so implicit zeros
// stay correct.
func (m *CSR) Log1p() {
	for k, v := range m.Data {
		m.Data[k] = math.Log1p(v)
	}
}

func (m *CSR) SelectRows(keep []int) Matrix {
	out := &CSR{Cells: len(keep), Genes: m.Genes, Indptr: make([]int64, len(keep)+1)}
	nnz := int64(0)
	for _, i := range keep {
		nnz += m.Indptr[i+1] - m.Indptr[i]
	}
	out.Data = make([]float64, 0, nnz)
	out.Indices = make([]int32, 0, nnz)
	for k, i := range keep {
		out.Data = append(out.Data, m.Data[m.Indptr[i]:m.Indptr[i+1]]...)
		out.Indices = append(out.Indices, m.Indices[m.Indptr[i]:m.Indptr[i+1]]...)
		out.Indptr[k+1] = int64(len(out.Data))
	}
	return out
}
