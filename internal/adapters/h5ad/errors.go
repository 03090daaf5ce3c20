package h5ad

import (
	"errors"
	"fmt"
)

// ErrNotHDF5 reports a file without the HDF5 container signature.
var ErrNotHDF5 = errors.New("HDF5 signature not found")

// ErrUnsupported reports an HDF5 feature outside the subset this reader
// implements (the subset covers everything h5py/anndata write by default).
var ErrUnsupported = errors.New("unsupported HDF5 feature")

// FormatError wraps any failure to parse a file as h5ad. It is the
// user-facing "not a valid h5ad file" condition.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: not a readable h5ad file: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// formatErr wraps err for a path unless it is already a FormatError.
func formatErr(path string, err error) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		return err
	}
	return &FormatError{Path: path, Err: err}
}
