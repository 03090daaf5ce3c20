package expr

import (
	"errors"
	"fmt"
)

// ErrColumnNotFound reports a reference column missing from the obs table.
// Callers wrap it with the column name via fmt.Errorf("%q: %w", ...).
var ErrColumnNotFound = errors.New("column not found in obs")

// ErrGeneNotFound reports a gene name absent from the var table.
var ErrGeneNotFound = errors.New("gene not found in dataset")

// ColumnKind discriminates the storage form of an obs column.
type ColumnKind int

const (
	ColNumeric ColumnKind = iota
	ColString
	ColCategorical
)

func (k ColumnKind) String() string {
	switch k {
	case ColNumeric:
		return "numeric"
	case ColString:
		return "string"
	case ColCategorical:
		return "categorical"
	}
	return "unknown"
}

// Column is one per-cell annotation column. Exactly one of the value slices
// is populated, according to Kind.
type Column struct {
	Name string
	Kind ColumnKind

	Numeric    []float64 // ColNumeric: one value per cell
	Values     []string  // ColString: one value per cell
	Categories []string  // ColCategorical: category dictionary
	Codes      []int32   // ColCategorical: index into Categories, -1 = NA
}

// Labels decodes the column to one string per cell. Numeric columns are
// formatted with %g so integer-coded cluster IDs round-trip as "1", "2", ...
func (c *Column) Labels() []string {
	switch c.Kind {
	case ColString:
		out := make([]string, len(c.Values))
		copy(out, c.Values)
		return out
	case ColCategorical:
		out := make([]string, len(c.Codes))
		for i, code := range c.Codes {
			if code < 0 || int(code) >= len(c.Categories) {
				out[i] = ""
				continue
			}
			out[i] = c.Categories[code]
		}
		return out
	case ColNumeric:
		out := make([]string, len(c.Numeric))
		for i, v := range c.Numeric {
			out[i] = fmt.Sprintf("%g", v)
		}
		return out
	}
	return nil
}

// Len returns the number of cells the column covers.
func (c *Column) Len() int {
	switch c.Kind {
	case ColNumeric:
		return len(c.Numeric)
	case ColString:
		return len(c.Values)
	case ColCategorical:
		return len(c.Codes)
	}
	return 0
}

// selectRows returns a copy of the column restricted to the given cells.
func (c *Column) selectRows(keep []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case ColNumeric:
		out.Numeric = make([]float64, len(keep))
		for k, i := range keep {
			out.Numeric[k] = c.Numeric[i]
		}
	case ColString:
		out.Values = make([]string, len(keep))
		for k, i := range keep {
			out.Values[k] = c.Values[i]
		}
	case ColCategorical:
		out.Categories = append([]string(nil), c.Categories...)
		out.Codes = make([]int32, len(keep))
		for k, i := range keep {
			out.Codes[k] = c.Codes[i]
		}
	}
	return out
}

// Dataset is an annotated expression matrix: X plus the obs table, var
// (gene) names, and optional spatial coordinates.
type Dataset struct {
	X       Matrix
	CellIDs []string
	Genes   []string
	Obs     []*Column
	Spatial [][2]float64 // nil when the file carries no obsm/spatial

	geneIdx map[string]int
	obsIdx  map[string]int
}

// NCells returns the number of cells (matrix rows).
func (d *Dataset) NCells() int {
	n, _ := d.X.Dims()
	return n
}

// NGenes returns the number of genes (matrix columns).
func (d *Dataset) NGenes() int {
	_, g := d.X.Dims()
	return g
}

// Column returns the named obs column, or ErrColumnNotFound.
func (d *Dataset) Column(name string) (*Column, error) {
	if d.obsIdx == nil {
		d.obsIdx = make(map[string]int, len(d.Obs))
		for i, c := range d.Obs {
			d.obsIdx[c.Name] = i
		}
	}
	i, ok := d.obsIdx[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrColumnNotFound)
	}
	return d.Obs[i], nil
}

// HasColumn reports whether the obs table carries the named column.
func (d *Dataset) HasColumn(name string) bool {
	_, err := d.Column(name)
	return err == nil
}

// Labels returns the named column decoded to one string per cell.
func (d *Dataset) Labels(name string) ([]string, error) {
	c, err := d.Column(name)
	if err != nil {
		return nil, err
	}
	return c.Labels(), nil
}

// GeneIndex returns the gene name → column index map, built on first use.
func (d *Dataset) GeneIndex() map[string]int {
	if d.geneIdx == nil {
		d.geneIdx = make(map[string]int, len(d.Genes))
		for i, g := range d.Genes {
			d.geneIdx[g] = i
		}
	}
	return d.geneIdx
}

// Gene returns the expression vector (one value per cell) for a gene name.
func (d *Dataset) Gene(name string) ([]float64, error) {
	j, ok := d.GeneIndex()[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrGeneNotFound)
	}
	out := make([]float64, d.NCells())
	return d.X.ColTo(out, j), nil
}

// FilterCells returns a new dataset restricted to the given cell indices,
// in order. Obs columns, cell IDs, and spatial coordinates follow the subset.
func (d *Dataset) FilterCells(keep []int) *Dataset {
	out := &Dataset{
		X:     d.X.SelectRows(keep),
		Genes: append([]string(nil), d.Genes...),
		Obs:   make([]*Column, len(d.Obs)),
	}
	if d.CellIDs != nil {
		out.CellIDs = make([]string, len(keep))
		for k, i := range keep {
			out.CellIDs[k] = d.CellIDs[i]
		}
	}
	for k, c := range d.Obs {
		out.Obs[k] = c.selectRows(keep)
	}
	if d.Spatial != nil {
		out.Spatial = make([][2]float64, len(keep))
		for k, i := range keep {
			out.Spatial[k] = d.Spatial[i]
		}
	}
	return out
}
