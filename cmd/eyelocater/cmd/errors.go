package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/emalab/eyelocater/internal/adapters/h5ad"
	"github.com/emalab/eyelocater/internal/domain/anatomy"
	"github.com/emalab/eyelocater/internal/domain/expr"
	"github.com/emalab/eyelocater/internal/domain/singler"
)

// RenderError prints a one-line diagnosis for the error classes users
// actually hit, with a hint where one exists. Everything else prints as-is.
func RenderError(err error) {
	var fe *h5ad.FormatError
	switch {
	case errors.As(err, &fe):
		fmt.Fprintf(os.Stderr, "error: %s is not a readable h5ad file: %v\n", fe.Path, fe.Err)
		fmt.Fprintln(os.Stderr, "  → eyelocater reads AnnData .h5ad files written by scanpy/anndata")

	case errors.Is(err, expr.ErrColumnNotFound):
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprintln(os.Stderr, "  → inspect the file to list its obs columns:  eyelocater inspect <file>")

	case errors.Is(err, anatomy.ErrInvalidRegion):
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

	case errors.Is(err, anatomy.ErrNoClusterColumn),
		errors.Is(err, anatomy.ErrEmptyRegion),
		errors.Is(err, singler.ErrTooFewLabels),
		errors.Is(err, singler.ErrNoSharedGenes):
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}

// isDBLockError returns true if the error chain contains a bbolt lock
// timeout. bbolt reports "timeout" when it cannot acquire the file lock
// within the configured deadline.
func isDBLockError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "timeout")
}

// diagnoseDBLock returns actionable guidance when the result store cannot
// be opened because another eyelocater process holds the lock.
func diagnoseDBLock() string {
	return "result store is locked by another process\n" +
		"  → a watch session may be running in another terminal\n" +
		"  → find the process:  ps aux | grep eyelocater\n" +
		"  → then retry your command"
}
