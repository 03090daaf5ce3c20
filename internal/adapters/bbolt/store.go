// Package bbolt implements the ports.ResultStore interface using bbolt
// (embedded B+ tree). Each project gets its own top-level bucket. Within that
// bucket, "runs" holds JSON run records, "cells" holds the binary per-cell
// assignment blobs, and "bykey" maps cache keys to run IDs. Writes are
// transactional — a crash mid-write cannot corrupt previously committed runs.
package bbolt

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/emalab/eyelocater/internal/ports"
	bolt "go.etcd.io/bbolt"
)

// Bucket keys
var (
	bucketRuns  = []byte("runs")
	bucketCells = []byte("cells")
	bucketByKey = []byte("bykey")
)

// Store implements ports.ResultStore backed by bbolt.
type Store struct {
	db *bolt.DB
}

// NewStore opens (or creates) a bbolt database at the given path.
func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMeta is the JSON-serialized portion of a run. The per-cell arrays are
// stored separately as one binary blob (they dominate the record size).
type runMeta struct {
	ID          string         `json:"id"`
	CacheKey    string         `json:"cache_key"`
	StartedAt   int64          `json:"started_at"`
	ElapsedMs   int64          `json:"elapsed_ms"`
	DataPath    string         `json:"data_path"`
	DataDigest  string         `json:"data_digest"`
	RefPath     string         `json:"ref_path"`
	RefDigest   string         `json:"ref_digest"`
	RefColumn   string         `json:"ref_column"`
	Region      string         `json:"region"`
	CellCount   int            `json:"cell_count"`
	LabelCounts map[string]int `json:"label_counts"`
	PlotFiles   []string       `json:"plot_files,omitempty"`
}

// SaveRun persists one completed run and indexes it by cache key.
func (s *Store) SaveRun(projectID string, run *ports.Run) error {
	if run == nil {
		return fmt.Errorf("nil run")
	}
	if run.ID == "" {
		return fmt.Errorf("run has no ID")
	}
	if len(run.Labels) != len(run.CellIDs) || len(run.Scores) != len(run.CellIDs) {
		return fmt.Errorf("run %s: %d cells, %d labels, %d scores",
			run.ID, len(run.CellIDs), len(run.Labels), len(run.Scores))
	}

	meta := runMeta{
		ID:          run.ID,
		CacheKey:    run.CacheKey,
		StartedAt:   run.StartedAt,
		ElapsedMs:   run.ElapsedMs,
		DataPath:    run.DataPath,
		DataDigest:  run.DataDigest,
		RefPath:     run.RefPath,
		RefDigest:   run.RefDigest,
		RefColumn:   run.RefColumn,
		Region:      run.Region,
		CellCount:   len(run.CellIDs),
		LabelCounts: run.LabelCounts,
		PlotFiles:   run.PlotFiles,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	blob, err := encodeAssignments(run.CellIDs, run.Labels, run.Scores)
	if err != nil {
		return fmt.Errorf("encode assignments: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		proj, err := tx.CreateBucketIfNotExists([]byte(projectID))
		if err != nil {
			return err
		}
		rb, err := proj.CreateBucketIfNotExists(bucketRuns)
		if err != nil {
			return err
		}
		if err := rb.Put([]byte(run.ID), metaJSON); err != nil {
			return err
		}
		cb, err := proj.CreateBucketIfNotExists(bucketCells)
		if err != nil {
			return err
		}
		if err := cb.Put([]byte(run.ID), blob); err != nil {
			return err
		}
		if run.CacheKey == "" {
			return nil
		}
		kb, err := proj.CreateBucketIfNotExists(bucketByKey)
		if err != nil {
			return err
		}
		return kb.Put([]byte(run.CacheKey), []byte(run.ID))
	})
}

// LoadRun retrieves a run by its ID.
// Returns nil, nil if no such run exists.
func (s *Store) LoadRun(projectID, runID string) (*ports.Run, error) {
	var metaJSON, blob []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		proj := tx.Bucket([]byte(projectID))
		if proj == nil {
			return nil
		}
		// Copy bytes out of the transaction (bbolt slices are only valid within tx)
		if rb := proj.Bucket(bucketRuns); rb != nil {
			if v := rb.Get([]byte(runID)); v != nil {
				metaJSON = make([]byte, len(v))
				copy(metaJSON, v)
			}
		}
		if cb := proj.Bucket(bucketCells); cb != nil {
			if v := cb.Get([]byte(runID)); v != nil {
				blob = make([]byte, len(v))
				copy(blob, v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if metaJSON == nil {
		return nil, nil
	}

	var meta runMeta
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", runID, err)
	}
	run := &ports.Run{
		ID:          meta.ID,
		CacheKey:    meta.CacheKey,
		StartedAt:   meta.StartedAt,
		ElapsedMs:   meta.ElapsedMs,
		DataPath:    meta.DataPath,
		DataDigest:  meta.DataDigest,
		RefPath:     meta.RefPath,
		RefDigest:   meta.RefDigest,
		RefColumn:   meta.RefColumn,
		Region:      meta.Region,
		LabelCounts: meta.LabelCounts,
		PlotFiles:   meta.PlotFiles,
	}
	if blob != nil {
		ids, labels, scores, err := decodeAssignments(blob)
		if err != nil {
			return nil, fmt.Errorf("decode assignments for %s: %w", runID, err)
		}
		run.CellIDs, run.Labels, run.Scores = ids, labels, scores
	}
	return run, nil
}

// FindByKey retrieves the run most recently saved under cacheKey.
// Returns nil, nil on a cache miss.
func (s *Store) FindByKey(projectID, cacheKey string) (*ports.Run, error) {
	var runID string
	err := s.db.View(func(tx *bolt.Tx) error {
		proj := tx.Bucket([]byte(projectID))
		if proj == nil {
			return nil
		}
		kb := proj.Bucket(bucketByKey)
		if kb == nil {
			return nil
		}
		if v := kb.Get([]byte(cacheKey)); v != nil {
			runID = string(v)
		}
		return nil
	})
	if err != nil || runID == "" {
		return nil, err
	}
	return s.LoadRun(projectID, runID)
}

// ListRuns returns summaries of all stored runs, newest first.
func (s *Store) ListRuns(projectID string) ([]ports.RunSummary, error) {
	var out []ports.RunSummary

	err := s.db.View(func(tx *bolt.Tx) error {
		proj := tx.Bucket([]byte(projectID))
		if proj == nil {
			return nil
		}
		rb := proj.Bucket(bucketRuns)
		if rb == nil {
			return nil
		}
		return rb.ForEach(func(k, v []byte) error {
			var meta runMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return fmt.Errorf("unmarshal run %s: %w", k, err)
			}
			out = append(out, ports.RunSummary{
				ID:        meta.ID,
				StartedAt: meta.StartedAt,
				DataPath:  meta.DataPath,
				RefColumn: meta.RefColumn,
				Region:    meta.Region,
				CellCount: meta.CellCount,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt > out[j].StartedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteProject removes all stored runs for a project.
// Idempotent: deleting a nonexistent project is not an error.
func (s *Store) DeleteProject(projectID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(projectID)); err == bolt.ErrBucketNotFound {
			return nil // idempotent
		} else {
			return err
		}
	})
}
