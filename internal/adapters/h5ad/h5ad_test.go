package h5ad

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/emalab/eyelocater/internal/domain/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTemp dumps file bytes to a temp path.
func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.h5ad")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestOpenRejectsNonHDF5(t *testing.T) {
	path := writeTemp(t, []byte("cell_id,cluster\nc0,1\nc1,2\n"))

	_, err := Open(path)
	require.Error(t, err)

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, path, fe.Path)
	assert.True(t, errors.Is(err, ErrNotHDF5))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.h5ad"))
	require.Error(t, err)
	// Plain I/O errors are not format errors.
	var fe *FormatError
	assert.False(t, errors.As(err, &fe))
}

// buildDenseFile assembles a complete little AnnData file:
// 3 cells × 2 genes, string + numeric + categorical obs columns, spatial.
func buildDenseFile() []byte {
	b := newBuilder()

	x := b.floats2D(3, 2, []float64{
		1, 0,
		0, 2,
		3, 4,
	})

	cellIdx := b.strings1D([]string{"c0", "c1", "c2"}, 4)
	cellType := b.strings1D([]string{"rod", "cone", "rod"}, 8)
	phenograph := b.ints1D([]int64{6, 17, 6}, 4)

	catCats := b.strings1D([]string{"low", "high"}, 8)
	catCodes := b.ints1D([]int64{0, 1, -1}, 1)
	quality := b.group(
		map[string]uint64{"categories": catCats, "codes": catCodes},
		strAttr("encoding-type", "categorical"),
	)

	obs := b.group(
		map[string]uint64{
			"_index":     cellIdx,
			"cell_type":  cellType,
			"phenograph": phenograph,
			"quality":    quality,
		},
		strAttr("_index", "_index"),
		strAttr("encoding-type", "dataframe"),
	)

	varIdx := b.strings1D([]string{"Rho", "Opn1mw"}, 8)
	varGrp := b.group(map[string]uint64{"_index": varIdx}, strAttr("_index", "_index"))

	spatial := b.floats2D(3, 2, []float64{10, 20, 11, 21, 12, 22})
	obsm := b.group(map[string]uint64{"spatial": spatial})

	root := b.group(map[string]uint64{"X": x, "obs": obs, "var": varGrp, "obsm": obsm})
	return b.finishV2(root)
}

func TestLoadDense(t *testing.T) {
	ds, err := Load(writeTemp(t, buildDenseFile()))
	require.NoError(t, err)

	require.Equal(t, 3, ds.NCells())
	require.Equal(t, 2, ds.NGenes())
	assert.Equal(t, []string{"c0", "c1", "c2"}, ds.CellIDs)
	assert.Equal(t, []string{"Rho", "Opn1mw"}, ds.Genes)

	rho, err := ds.Gene("Rho")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 3}, rho)

	ct, err := ds.Column("cell_type")
	require.NoError(t, err)
	assert.Equal(t, expr.ColString, ct.Kind)
	assert.Equal(t, []string{"rod", "cone", "rod"}, ct.Values)

	ph, err := ds.Labels("phenograph")
	require.NoError(t, err)
	assert.Equal(t, []string{"6", "17", "6"}, ph)

	q, err := ds.Column("quality")
	require.NoError(t, err)
	assert.Equal(t, expr.ColCategorical, q.Kind)
	assert.Equal(t, []string{"low", "high"}, q.Categories)
	assert.Equal(t, []int32{0, 1, -1}, q.Codes)

	require.Len(t, ds.Spatial, 3)
	assert.Equal(t, [2]float64{10, 20}, ds.Spatial[0])

	// A missing obs column surfaces from the loaded dataset.
	_, err = ds.Column("ClusterName")
	assert.True(t, errors.Is(err, expr.ErrColumnNotFound))
}

func TestLoadCSR(t *testing.T) {
	b := newBuilder()

	// 2×3 CSR: row0 = [5 0 1], row1 = [0 2 0]
	data := b.floats1D([]float64{5, 1, 2})
	indices := b.ints1D([]int64{0, 2, 1}, 4)
	indptr := b.ints1D([]int64{0, 2, 3}, 8)
	x := b.group(
		map[string]uint64{"data": data, "indices": indices, "indptr": indptr},
		strAttr("encoding-type", "csr_matrix"),
		int64ArrayAttr("shape", 2, 3),
	)

	cellIdx := b.strings1D([]string{"c0", "c1"}, 4)
	obs := b.group(map[string]uint64{"_index": cellIdx}, strAttr("_index", "_index"))
	varIdx := b.strings1D([]string{"g0", "g1", "g2"}, 4)
	varGrp := b.group(map[string]uint64{"_index": varIdx}, strAttr("_index", "_index"))

	root := b.group(map[string]uint64{"X": x, "obs": obs, "var": varGrp})

	ds, err := Load(writeTemp(t, b.finishV2(root)))
	require.NoError(t, err)

	require.Equal(t, 2, ds.NCells())
	require.Equal(t, 3, ds.NGenes())

	csr, ok := ds.X.(*expr.CSR)
	require.True(t, ok)
	assert.Equal(t, []float64{5, 0, 1}, csr.RowTo(make([]float64, 3), 0))
	assert.Equal(t, []float64{0, 2, 0}, csr.RowTo(make([]float64, 3), 1))
}

func TestLoadCSRRejectsBadIndptr(t *testing.T) {
	// Same 2×3 layout as TestLoadCSR, but with row offsets that point past
	// the stored values, run backwards, or start off zero. All must fail at
	// load time, not on the first row read.
	build := func(ptr []int64) string {
		b := newBuilder()
		data := b.floats1D([]float64{5, 1, 2})
		indices := b.ints1D([]int64{0, 2, 1}, 4)
		indptr := b.ints1D(ptr, 8)
		x := b.group(
			map[string]uint64{"data": data, "indices": indices, "indptr": indptr},
			strAttr("encoding-type", "csr_matrix"),
			int64ArrayAttr("shape", 2, 3),
		)

		cellIdx := b.strings1D([]string{"c0", "c1"}, 4)
		obs := b.group(map[string]uint64{"_index": cellIdx}, strAttr("_index", "_index"))
		varIdx := b.strings1D([]string{"g0", "g1", "g2"}, 4)
		varGrp := b.group(map[string]uint64{"_index": varIdx}, strAttr("_index", "_index"))

		root := b.group(map[string]uint64{"X": x, "obs": obs, "var": varGrp})
		return writeTemp(t, b.finishV2(root))
	}

	for _, ptr := range [][]int64{
		{0, 2, 9}, // past the stored values
		{0, 3, 2}, // decreasing
		{1, 2, 3}, // does not start at 0
	} {
		_, err := Load(build(ptr))
		require.Error(t, err, "indptr %v", ptr)
		var fe *FormatError
		assert.True(t, errors.As(err, &fe), "indptr %v", ptr)
		assert.Contains(t, err.Error(), "indptr")
	}
}

func TestLoadMissingXIsFormatError(t *testing.T) {
	b := newBuilder()
	obs := b.group(map[string]uint64{})
	root := b.group(map[string]uint64{"obs": obs})

	_, err := Load(writeTemp(t, b.finishV2(root)))
	require.Error(t, err)
	var fe *FormatError
	assert.True(t, errors.As(err, &fe))
	assert.Contains(t, err.Error(), "X")
}

func TestChunkedDeflate(t *testing.T) {
	b := newBuilder()
	vals := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	ds := b.chunkedFloats1D(vals, 4) // last chunk clipped
	root := b.group(map[string]uint64{"x": ds})

	f, err := Open(writeTemp(t, b.finishV2(root)))
	require.NoError(t, err)
	defer f.Close()

	rootObj, err := f.Root()
	require.NoError(t, err)
	x, err := rootObj.Child("x")
	require.NoError(t, err)

	got, err := x.ReadFloats()
	require.NoError(t, err)
	assert.Equal(t, vals, got)
}

func TestVlenStrings(t *testing.T) {
	b := newBuilder()
	want := []string{"amacrine", "bipolar cell", "x"}
	ds := b.vlenStrings1D(want)
	root := b.group(map[string]uint64{"names": ds})

	f, err := Open(writeTemp(t, b.finishV2(root)))
	require.NoError(t, err)
	defer f.Close()

	rootObj, err := f.Root()
	require.NoError(t, err)
	names, err := rootObj.Child("names")
	require.NoError(t, err)

	got, err := names.ReadStrings()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestSuperblockV0 exercises the old-style path: v0 superblock, v1 object
// header, symbol-table B-tree, and local heap.
func TestSuperblockV0(t *testing.T) {
	b := newBuilder()
	x := b.floats1D([]float64{1, 2, 3})

	heapData := make([]byte, 16)
	copy(heapData[8:], "x\x00")
	heapDataAddr := b.alloc(heapData)
	heapAddr := b.alloc(cat(
		[]byte("HEAP"), []byte{0, 0, 0, 0},
		u64b(16), u64b(undefAddr), u64b(heapDataAddr),
	))

	snodAddr := b.alloc(cat(
		[]byte("SNOD"), []byte{1, 0}, u16b(1),
		u64b(8), u64b(x), u32b(1), u32b(0), make([]byte, 16),
	))

	btreeAddr := b.alloc(cat(
		[]byte("TREE"), []byte{0, 0}, u16b(1),
		u64b(undefAddr), u64b(undefAddr),
		u64b(0), u64b(snodAddr), u64b(8),
	))

	// Version-1 object header: 16-byte prefix, one symbol table message.
	stBody := cat(u64b(btreeAddr), u64b(heapAddr))
	root := b.alloc(cat(
		[]byte{1, 0}, u16b(1), u32b(1), u32b(24), u32b(0),
		u16b(msgSymbolTable), u16b(16), []byte{0, 0, 0, 0},
		stBody,
	))

	f, err := Open(writeTemp(t, b.finishV0(root)))
	require.NoError(t, err)
	defer f.Close()

	rootObj, err := f.Root()
	require.NoError(t, err)
	require.True(t, rootObj.IsGroup())

	children, err := rootObj.Children()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, children)

	ds, err := rootObj.Child("x")
	require.NoError(t, err)
	got, err := ds.ReadFloats()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)
}

func TestUnshuffle(t *testing.T) {
	// 3 elements of 2 bytes: shuffled layout groups first bytes then second.
	in := []byte{0x01, 0x02, 0x03, 0x11, 0x12, 0x13}
	assert.Equal(t, []byte{0x01, 0x11, 0x02, 0x12, 0x03, 0x13}, unshuffle(in, 2))
	// Odd lengths pass through untouched.
	odd := []byte{1, 2, 3}
	assert.Equal(t, odd, unshuffle(odd, 2))
}

func TestScatterChunkClipsEdges(t *testing.T) {
	dst := make([]byte, 5)
	// 1-D: chunk of 4 at offset 3 into a 5-element space keeps 2.
	err := scatterChunk([]byte{7, 8, 9, 10}, []uint64{3}, []uint64{4}, []uint64{5}, 1, dst)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 7, 8}, dst)

	// 2-D: 2×2 chunk at (1,1) into a 2×2 space keeps one value.
	dst2 := make([]byte, 4)
	err = scatterChunk([]byte{5, 6, 7, 8}, []uint64{1, 1}, []uint64{2, 2}, []uint64{2, 2}, 1, dst2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 5}, dst2)
}
