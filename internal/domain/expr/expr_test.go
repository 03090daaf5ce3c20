package expr

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeDense builds a 3-cell × 4-gene dense test matrix.
func makeDense() *Dense {
	return &Dense{
		Cells: 3,
		Genes: 4,
		Data: []float64{
			1, 0, 2, 1, // cell 0
			0, 0, 0, 0, // cell 1 (empty)
			4, 4, 0, 2, // cell 2
		},
	}
}

// makeCSR builds the same matrix in sparse form.
func makeCSR() *CSR {
	return &CSR{
		Cells:   3,
		Genes:   4,
		Data:    []float64{1, 2, 1, 4, 4, 2},
		Indices: []int32{0, 2, 3, 0, 1, 3},
		Indptr:  []int64{0, 3, 3, 6},
	}
}

func TestMatrixRowColAccess(t *testing.T) {
	for name, m := range map[string]Matrix{"dense": makeDense(), "csr": makeCSR()} {
		t.Run(name, func(t *testing.T) {
			cells, genes := m.Dims()
			require.Equal(t, 3, cells)
			require.Equal(t, 4, genes)

			row := m.RowTo(make([]float64, genes), 0)
			assert.Equal(t, []float64{1, 0, 2, 1}, row)

			row = m.RowTo(make([]float64, genes), 1)
			assert.Equal(t, []float64{0, 0, 0, 0}, row)

			col := m.ColTo(make([]float64, cells), 3)
			assert.Equal(t, []float64{1, 0, 2}, col)

			assert.Equal(t, 4.0, m.RowSum(0))
			assert.Equal(t, 0.0, m.RowSum(1))
			assert.Equal(t, 10.0, m.RowSum(2))
		})
	}
}

func TestMatrixSelectRows(t *testing.T) {
	for name, m := range map[string]Matrix{"dense": makeDense(), "csr": makeCSR()} {
		t.Run(name, func(t *testing.T) {
			sub := m.SelectRows([]int{2, 0})
			cells, genes := sub.Dims()
			require.Equal(t, 2, cells)
			require.Equal(t, 4, genes)
			assert.Equal(t, []float64{4, 4, 0, 2}, sub.RowTo(make([]float64, 4), 0))
			assert.Equal(t, []float64{1, 0, 2, 1}, sub.RowTo(make([]float64, 4), 1))
		})
	}
}

func TestNormalizeTotalAndLog1p(t *testing.T) {
	for name, m := range map[string]Matrix{"dense": makeDense(), "csr": makeCSR()} {
		t.Run(name, func(t *testing.T) {
			ds := &Dataset{X: m, Genes: []string{"a", "b", "c", "d"}}
			ds.NormalizeTotal(100)

			assert.InDelta(t, 100.0, m.RowSum(0), 1e-9)
			assert.InDelta(t, 100.0, m.RowSum(2), 1e-9)
			// Empty cell stays empty rather than producing NaN.
			assert.Equal(t, 0.0, m.RowSum(1))

			ds.Log1p()
			row := m.RowTo(make([]float64, 4), 0)
			assert.InDelta(t, math.Log1p(25), row[0], 1e-9)
			assert.Equal(t, 0.0, row[1])
		})
	}
}

func TestColumnLabels(t *testing.T) {
	cat := &Column{
		Name:       "cell_type",
		Kind:       ColCategorical,
		Categories: []string{"rod", "cone"},
		Codes:      []int32{1, 0, -1},
	}
	assert.Equal(t, []string{"cone", "rod", ""}, cat.Labels())
	assert.Equal(t, 3, cat.Len())

	num := &Column{Name: "phenograph", Kind: ColNumeric, Numeric: []float64{1, 2, 17}}
	assert.Equal(t, []string{"1", "2", "17"}, num.Labels())

	str := &Column{Name: "sample", Kind: ColString, Values: []string{"a", "b"}}
	assert.Equal(t, []string{"a", "b"}, str.Labels())
}

func TestDatasetColumnLookup(t *testing.T) {
	ds := &Dataset{
		X: makeDense(),
		Obs: []*Column{
			{Name: "cell_type", Kind: ColString, Values: []string{"x", "y", "z"}},
		},
	}

	c, err := ds.Column("cell_type")
	require.NoError(t, err)
	assert.Equal(t, ColString, c.Kind)
	assert.True(t, ds.HasColumn("cell_type"))

	_, err = ds.Column("ClusterName")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnNotFound))
	assert.Contains(t, err.Error(), "ClusterName")
	assert.False(t, ds.HasColumn("ClusterName"))
}

func TestDatasetGene(t *testing.T) {
	ds := &Dataset{X: makeDense(), Genes: []string{"Rho", "Opn1mw", "Opn1sw", "Gnat1"}}

	v, err := ds.Gene("Opn1sw")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0, 0}, v)

	_, err = ds.Gene("Nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeneNotFound))
}

func TestFilterCells(t *testing.T) {
	ds := &Dataset{
		X:       makeCSR(),
		CellIDs: []string{"c0", "c1", "c2"},
		Genes:   []string{"a", "b", "c", "d"},
		Obs: []*Column{
			{Name: "phenograph", Kind: ColCategorical, Categories: []string{"6", "17"}, Codes: []int32{0, 1, 0}},
			{Name: "depth", Kind: ColNumeric, Numeric: []float64{10, 20, 30}},
		},
		Spatial: [][2]float64{{0, 0}, {1, 1}, {2, 2}},
	}

	sub := ds.FilterCells([]int{0, 2})
	require.Equal(t, 2, sub.NCells())
	require.Equal(t, 4, sub.NGenes())
	assert.Equal(t, []string{"c0", "c2"}, sub.CellIDs)
	assert.Equal(t, [][2]float64{{0, 0}, {2, 2}}, sub.Spatial)

	labels, err := sub.Labels("phenograph")
	require.NoError(t, err)
	assert.Equal(t, []string{"6", "6"}, labels)

	depth, err := sub.Column("depth")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 30}, depth.Numeric)

	// Original untouched.
	assert.Equal(t, 3, ds.NCells())
}
