// Package ports defines the interfaces (contracts) that adapters must implement.
// These are the boundaries of the hexagonal architecture. Domain logic depends
// only on these interfaces, never on concrete implementations.
package ports

// ResultStore persists completed localisation runs. The backing store
// (bbolt) is project-scoped: each projectID gets its own namespace.
// Concurrent reads are safe; writes are serialized by the adapter.
//
// Crash safety: SaveRun must be transactional. A crash mid-write must not
// corrupt previously committed runs.
type ResultStore interface {
	// SaveRun persists one completed run and indexes it by cache key.
	// A later run with the same cache key shadows the earlier one for
	// FindByKey lookups.
	SaveRun(projectID string, run *Run) error

	// LoadRun retrieves a run by its ID.
	// Returns nil, nil if no such run exists.
	LoadRun(projectID, runID string) (*Run, error)

	// FindByKey retrieves the run most recently saved under cacheKey.
	// Returns nil, nil on a cache miss.
	FindByKey(projectID, cacheKey string) (*Run, error)

	// ListRuns returns summaries of all stored runs, newest first.
	ListRuns(projectID string) ([]RunSummary, error)

	// DeleteProject removes all stored runs for a project.
	// Idempotent: deleting a nonexistent project is not an error.
	DeleteProject(projectID string) error
}

// Run is one completed localisation run: the inputs that produced it, the
// per-cell assignments, and the artifacts written.
type Run struct {
	ID        string `json:"id"`
	CacheKey  string `json:"cache_key"`
	StartedAt int64  `json:"started_at"` // unix seconds
	ElapsedMs int64  `json:"elapsed_ms"`

	DataPath   string `json:"data_path"`
	DataDigest string `json:"data_digest"` // sha256 of the dataset file
	RefPath    string `json:"ref_path"`
	RefDigest  string `json:"ref_digest"`
	RefColumn  string `json:"ref_column"`
	Region     string `json:"region"`

	CellIDs []string  `json:"cell_ids"`
	Labels  []string  `json:"labels"` // assigned label per cell, parallel to CellIDs
	Scores  []float64 `json:"scores"`

	LabelCounts map[string]int `json:"label_counts"`
	PlotFiles   []string       `json:"plot_files,omitempty"`
}

// RunSummary is the listing view of a stored run.
type RunSummary struct {
	ID        string `json:"id"`
	StartedAt int64  `json:"started_at"`
	DataPath  string `json:"data_path"`
	RefColumn string `json:"ref_column"`
	Region    string `json:"region"`
	CellCount int    `json:"cell_count"`
}
