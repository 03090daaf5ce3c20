package h5ad

import (
	"fmt"

	"github.com/emalab/eyelocater/internal/domain/expr"
)

// Load reads a whole h5ad file into the in-memory dataset model. Any
// structural problem — wrong container, missing X/obs/var, shape mismatch —
// comes back as a *FormatError.
func Load(path string) (*expr.Dataset, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ds, err := f.Dataset()
	if err != nil {
		return nil, formatErr(path, err)
	}
	return ds, nil
}

// Dataset maps the open file's AnnData layout onto expr.Dataset.
func (f *File) Dataset() (*expr.Dataset, error) {
	root, err := f.Root()
	if err != nil {
		return nil, err
	}

	xObj, err := root.Child("X")
	if err != nil {
		return nil, fmt.Errorf("no X matrix: %w", err)
	}
	x, err := loadMatrix(xObj)
	if err != nil {
		return nil, fmt.Errorf("X: %w", err)
	}
	cells, genes := x.Dims()

	obsObj, err := root.Child("obs")
	if err != nil {
		return nil, fmt.Errorf("no obs table: %w", err)
	}
	cellIDs, obsCols, err := loadDataFrame(obsObj, cells)
	if err != nil {
		return nil, fmt.Errorf("obs: %w", err)
	}

	varObj, err := root.Child("var")
	if err != nil {
		return nil, fmt.Errorf("no var table: %w", err)
	}
	geneNames, _, err := loadDataFrame(varObj, genes)
	if err != nil {
		return nil, fmt.Errorf("var: %w", err)
	}

	ds := &expr.Dataset{X: x, CellIDs: cellIDs, Genes: geneNames, Obs: obsCols}

	if root.HasChild("obsm") {
		obsm, err := root.Child("obsm")
		if err == nil && obsm.HasChild("spatial") {
			sp, err := obsm.Child("spatial")
			if err != nil {
				return nil, fmt.Errorf("obsm/spatial: %w", err)
			}
			coords, err := loadSpatial(sp, cells)
			if err != nil {
				return nil, fmt.Errorf("obsm/spatial: %w", err)
			}
			ds.Spatial = coords
		}
	}
	return ds, nil
}

// loadMatrix reads X: a dense dataset, or a csr_matrix group.
func loadMatrix(o *Object) (expr.Matrix, error) {
	if o.IsDataset() {
		dims, err := o.Dims()
		if err != nil {
			return nil, err
		}
		if len(dims) != 2 {
			return nil, fmt.Errorf("expected a 2-D matrix, got rank %d", len(dims))
		}
		data, err := o.ReadFloats()
		if err != nil {
			return nil, err
		}
		return &expr.Dense{Cells: int(dims[0]), Genes: int(dims[1]), Data: data}, nil
	}

	enc, _ := o.AttrString("encoding-type")
	shape, ok := o.AttrInts("shape")
	if !ok {
		shape, ok = o.AttrInts("h5sparse_shape") // pre-0.7 anndata
	}
	if !ok || len(shape) != 2 {
		return nil, fmt.Errorf("sparse matrix group without a shape attribute")
	}
	if enc != "" && enc != "csr_matrix" {
		return nil, fmt.Errorf("%w: %s encoding (only dense and csr_matrix)", ErrUnsupported, enc)
	}

	data, err := readChildFloats(o, "data")
	if err != nil {
		return nil, err
	}
	indices, err := readChildInts(o, "indices")
	if err != nil {
		return nil, err
	}
	indptr, err := readChildInts(o, "indptr")
	if err != nil {
		return nil, err
	}
	if len(indptr) != int(shape[0])+1 {
		return nil, fmt.Errorf("indptr length %d does not match %d rows", len(indptr), shape[0])
	}
	if len(indices) != len(data) {
		return nil, fmt.Errorf("%d indices for %d stored values", len(indices), len(data))
	}
	// Row offsets must walk 0..nnz without going backwards, or row reads
	// index past the stored values.
	nnz := int64(len(data))
	prev := int64(0)
	for i, v := range indptr {
		if v < prev || v > nnz {
			return nil, fmt.Errorf("indptr[%d] = %d outside the %d stored values", i, v, nnz)
		}
		prev = v
	}
	if indptr[0] != 0 || indptr[len(indptr)-1] != nnz {
		return nil, fmt.Errorf("indptr spans [%d, %d], expected [0, %d]", indptr[0], indptr[len(indptr)-1], nnz)
	}

	idx32 := make([]int32, len(indices))
	for i, v := range indices {
		if v < 0 || v >= shape[1] {
			return nil, fmt.Errorf("column index %d out of range", v)
		}
		idx32[i] = int32(v)
	}
	return &expr.CSR{
		Cells:   int(shape[0]),
		Genes:   int(shape[1]),
		Data:    data,
		Indices: idx32,
		Indptr:  indptr,
	}, nil
}

// loadDataFrame reads an obs/var group: the index plus every column.
// want is the expected row count from the matrix shape.
func loadDataFrame(o *Object, want int) (index []string, cols []*expr.Column, err error) {
	if !o.IsGroup() {
		return nil, nil, fmt.Errorf("%w: dataframe stored as a compound dataset (written by anndata < 0.7)", ErrUnsupported)
	}

	indexName, _ := o.AttrString("_index")
	if indexName == "" {
		indexName = "_index"
	}
	if o.HasChild(indexName) {
		idxObj, err := o.Child(indexName)
		if err != nil {
			return nil, nil, err
		}
		index, err = readLabels(idxObj)
		if err != nil {
			return nil, nil, fmt.Errorf("index %q: %w", indexName, err)
		}
		if len(index) != want {
			return nil, nil, fmt.Errorf("index has %d rows, matrix has %d", len(index), want)
		}
	}

	names, ok := o.AttrStrings("column-order")
	if !ok {
		all, err := o.Children()
		if err != nil {
			return nil, nil, err
		}
		names = all
	}

	for _, name := range names {
		if name == indexName || name == "__categories" || !o.HasChild(name) {
			continue
		}
		child, err := o.Child(name)
		if err != nil {
			return nil, nil, err
		}
		col, err := loadColumn(o, child, name)
		if err != nil {
			return nil, nil, fmt.Errorf("column %q: %w", name, err)
		}
		if col == nil {
			continue
		}
		if col.Len() != want {
			return nil, nil, fmt.Errorf("column %q has %d rows, matrix has %d", name, col.Len(), want)
		}
		cols = append(cols, col)
	}
	return index, cols, nil
}

// loadColumn maps one obs child onto an expr.Column.
func loadColumn(parent, o *Object, name string) (*expr.Column, error) {
	if o.IsDataset() {
		dt, err := o.datatype()
		if err != nil {
			return nil, err
		}
		if dt.Class == classString || dt.Class == classVlen {
			vals, err := o.ReadStrings()
			if err != nil {
				return nil, err
			}
			return &expr.Column{Name: name, Kind: expr.ColString, Values: vals}, nil
		}

		// Integer codes next to a __categories group is the anndata 0.7
		// categorical layout.
		if parent.HasChild("__categories") {
			catGroup, err := parent.Child("__categories")
			if err == nil && catGroup.HasChild(name) {
				catObj, err := catGroup.Child(name)
				if err != nil {
					return nil, err
				}
				cats, err := readLabels(catObj)
				if err != nil {
					return nil, err
				}
				codes, err := o.ReadInts()
				if err != nil {
					return nil, err
				}
				return categoricalColumn(name, cats, codes)
			}
		}

		vals, err := o.ReadFloats()
		if err != nil {
			return nil, err
		}
		return &expr.Column{Name: name, Kind: expr.ColNumeric, Numeric: vals}, nil
	}

	// Group-encoded column.
	enc, _ := o.AttrString("encoding-type")
	switch enc {
	case "categorical":
		catObj, err := o.Child("categories")
		if err != nil {
			return nil, err
		}
		cats, err := readLabels(catObj)
		if err != nil {
			return nil, err
		}
		codes, err := readChildInts(o, "codes")
		if err != nil {
			return nil, err
		}
		return categoricalColumn(name, cats, codes)
	case "nullable-integer", "nullable-boolean":
		vals, err := readChildFloats(o, "values")
		if err != nil {
			return nil, err
		}
		return &expr.Column{Name: name, Kind: expr.ColNumeric, Numeric: vals}, nil
	}
	// Unrecognised sub-group (nested dataframe etc.) — skip rather than fail
	// the whole load.
	return nil, nil
}

func categoricalColumn(name string, cats []string, codes []int64) (*expr.Column, error) {
	c32 := make([]int32, len(codes))
	for i, v := range codes {
		if v >= int64(len(cats)) {
			return nil, fmt.Errorf("category code %d out of range (%d categories)", v, len(cats))
		}
		if v < 0 {
			v = -1 // NA
		}
		c32[i] = int32(v)
	}
	return &expr.Column{
		Name:       name,
		Kind:       expr.ColCategorical,
		Categories: cats,
		Codes:      c32,
	}, nil
}

// readLabels reads a dataset as strings, formatting numeric values with %g
// so integer cluster IDs come out as "1", "2", ...
func readLabels(o *Object) ([]string, error) {
	dt, err := o.datatype()
	if err != nil {
		return nil, err
	}
	if dt.Class == classString || dt.Class == classVlen {
		return o.ReadStrings()
	}
	fs, err := o.ReadFloats()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(fs))
	for i, v := range fs {
		out[i] = fmt.Sprintf("%g", v)
	}
	return out, nil
}

func loadSpatial(o *Object, cells int) ([][2]float64, error) {
	dims, err := o.Dims()
	if err != nil {
		return nil, err
	}
	if len(dims) != 2 || int(dims[0]) != cells || dims[1] < 2 {
		return nil, fmt.Errorf("expected %d×2+ coordinates, got %v", cells, dims)
	}
	vals, err := o.ReadFloats()
	if err != nil {
		return nil, err
	}
	w := int(dims[1])
	out := make([][2]float64, cells)
	for i := 0; i < cells; i++ {
		out[i] = [2]float64{vals[i*w], vals[i*w+1]}
	}
	return out, nil
}

func readChildFloats(o *Object, name string) ([]float64, error) {
	c, err := o.Child(name)
	if err != nil {
		return nil, err
	}
	return c.ReadFloats()
}

func readChildInts(o *Object, name string) ([]int64, error) {
	c, err := o.Child(name)
	if err != nil {
		return nil, err
	}
	return c.ReadInts()
}
