// Package app wires together adapters and domain logic: it loads datasets,
// runs the localisation pipeline, renders figures, and persists runs.
package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emalab/eyelocater/internal/adapters/h5ad"
	"github.com/emalab/eyelocater/internal/adapters/plot"
	"github.com/emalab/eyelocater/internal/domain/anatomy"
	"github.com/emalab/eyelocater/internal/domain/expr"
	"github.com/emalab/eyelocater/internal/domain/singler"
	"github.com/emalab/eyelocater/internal/ports"
)

// DefaultProjectID scopes runs in the result store when no project is named.
const DefaultProjectID = "default"

// Loader reads an annotated dataset from disk. The production loader is
// h5ad.Load; tests swap in stubs.
type Loader func(path string) (*expr.Dataset, error)

// Pipeline runs the full localisation flow: load, region filter, reference
// preprocessing, label transfer, figures, persistence. Zero-value fields
// fall back to production defaults.
type Pipeline struct {
	Log       *zap.Logger
	Store     ports.ResultStore // nil disables persistence and caching
	Load      Loader            // nil means h5ad.Load
	Renderer  *plot.Renderer    // nil means default dot size
	ProjectID string            // "" means DefaultProjectID
}

// Request describes one localisation run.
type Request struct {
	DataPath  string
	RefPath   string
	RefColumn string
	Region    anatomy.Region

	ClusterColumn string   // obs column for region selection; "" means the default
	Genes         []string // genes to render as expression scatters

	PlotCells      bool
	OutPath        string // cluster scatter destination
	GeneOutPattern string // per-gene destination, '*' replaced by the gene

	Workers    int
	TopMarkers int
	Margin     float64
	NoFineTune bool
	NoCache    bool
}

// Outcome is what a run produced. Cached means the run was served from the
// result store without recomputation.
type Outcome struct {
	Run          *ports.Run
	Cached       bool
	UnknownGenes []string
}

func (p *Pipeline) log() *zap.Logger {
	if p.Log != nil {
		return p.Log
	}
	return zap.NewNop()
}

func (p *Pipeline) load(path string) (*expr.Dataset, error) {
	if p.Load != nil {
		return p.Load(path)
	}
	return h5ad.Load(path)
}

func (p *Pipeline) renderer() *plot.Renderer {
	if p.Renderer != nil {
		return p.Renderer
	}
	return &plot.Renderer{}
}

func (p *Pipeline) projectID() string {
	if p.ProjectID != "" {
		return p.ProjectID
	}
	return DefaultProjectID
}

// Run executes one localisation request end to end.
//
// Repeated runs over unchanged inputs are deterministic, so identical
// requests are answered from the result store unless NoCache is set. The
// cache key covers both file digests and every request field that changes
// the assignments.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	log := p.log()
	started := time.Now()

	dataDigest, err := fileDigest(req.DataPath)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", req.DataPath, err)
	}
	refDigest, err := fileDigest(req.RefPath)
	if err != nil {
		return nil, fmt.Errorf("reference %s: %w", req.RefPath, err)
	}
	cacheKey := req.cacheKey(dataDigest, refDigest)

	if p.Store != nil && !req.NoCache {
		hit, err := p.Store.FindByKey(p.projectID(), cacheKey)
		if err != nil {
			return nil, fmt.Errorf("cache lookup: %w", err)
		}
		if hit != nil {
			log.Info("cache hit",
				zap.String("run_id", hit.ID),
				zap.String("region", req.Region.String()))
			return &Outcome{Run: hit, Cached: true}, nil
		}
	}

	log.Info("loading dataset", zap.String("path", req.DataPath))
	test, err := p.load(req.DataPath)
	if err != nil {
		return nil, err
	}
	log.Info("dataset loaded",
		zap.Int("cells", test.NCells()),
		zap.Int("genes", test.NGenes()))

	region, err := anatomy.Filter(test, req.Region, req.ClusterColumn)
	if err != nil {
		return nil, err
	}
	if region.NCells() < test.NCells() {
		log.Info("region selected",
			zap.String("region", req.Region.String()),
			zap.Int("kept", region.NCells()),
			zap.Int("total", test.NCells()))
	}

	log.Info("loading reference", zap.String("path", req.RefPath))
	ref, err := p.load(req.RefPath)
	if err != nil {
		return nil, err
	}
	// Match the atlas preprocessing: library-size normalization then log1p.
	ref.NormalizeTotal(expr.DefaultNormalizeTarget)
	ref.Log1p()

	res, err := singler.Annotate(ctx, region, ref, req.RefColumn, singler.Options{
		TopMarkers: req.TopMarkers,
		Margin:     req.Margin,
		NoFineTune: req.NoFineTune,
		Workers:    req.Workers,
	})
	if err != nil {
		return nil, err
	}

	run := &ports.Run{
		ID:         uuid.NewString(),
		CacheKey:   cacheKey,
		StartedAt:  started.Unix(),
		DataPath:   req.DataPath,
		DataDigest: dataDigest,
		RefPath:    req.RefPath,
		RefDigest:  refDigest,
		RefColumn:  req.RefColumn,
		Region:     req.Region.String(),

		CellIDs:     region.CellIDs,
		Labels:      make([]string, len(res.Assignments)),
		Scores:      make([]float64, len(res.Assignments)),
		LabelCounts: res.Counts(),
	}
	for i, a := range res.Assignments {
		run.Labels[i] = a.Label
		run.Scores[i] = a.Score
	}

	out := &Outcome{Run: run}
	if err := p.renderFigures(req, region, run, out, log); err != nil {
		return nil, err
	}

	run.ElapsedMs = time.Since(started).Milliseconds()

	if p.Store != nil {
		if err := p.Store.SaveRun(p.projectID(), run); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
	}
	log.Info("run complete",
		zap.String("run_id", run.ID),
		zap.Int("cells", len(run.CellIDs)),
		zap.Int64("elapsed_ms", run.ElapsedMs))
	return out, nil
}

// renderFigures writes the requested scatters and records them on the run.
func (p *Pipeline) renderFigures(req Request, ds *expr.Dataset, run *ports.Run, out *Outcome, log *zap.Logger) error {
	wantGenes := len(req.Genes) > 0
	if !req.PlotCells && !wantGenes {
		return nil
	}
	if len(ds.Spatial) == 0 {
		return fmt.Errorf("dataset %s has no obsm/spatial coordinates; cannot render scatters", req.DataPath)
	}
	r := p.renderer()

	if req.PlotCells {
		if err := r.ClusterScatter(ds.Spatial, run.Labels, req.Region.String(), req.OutPath); err != nil {
			return err
		}
		run.PlotFiles = append(run.PlotFiles, req.OutPath)
		log.Info("wrote cluster scatter", zap.String("path", req.OutPath))
	}

	if wantGenes {
		valid, unknown := ValidateGenes(ds, req.Genes)
		out.UnknownGenes = unknown
		for _, g := range unknown {
			log.Warn("gene not in dataset", zap.String("gene", g))
		}
		if len(valid) == 0 {
			return fmt.Errorf("none of the requested genes are in the dataset: %v", unknown)
		}
		for _, g := range valid {
			values, err := ds.Gene(g)
			if err != nil {
				return err
			}
			dest := plot.GeneOutName(req.GeneOutPattern, g)
			if err := r.GeneScatter(ds.Spatial, values, g, dest); err != nil {
				return err
			}
			run.PlotFiles = append(run.PlotFiles, dest)
			log.Info("wrote gene scatter", zap.String("gene", g), zap.String("path", dest))
		}
	}
	return nil
}

// WatchAndRun runs the request once, then re-runs it each time the watcher
// reports a settled change to the dataset, until ctx is cancelled. Failures
// of individual re-runs are reported via onResult and do not stop the loop.
func (p *Pipeline) WatchAndRun(ctx context.Context, w ports.Watcher, req Request, onResult func(*Outcome, error)) error {
	req.NoCache = true // a changed file always recomputes

	onResult(p.Run(ctx, req))

	changes := make(chan struct{}, 1)
	if err := w.Watch(req.DataPath, func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}); err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
			p.log().Info("dataset changed, re-running", zap.String("path", req.DataPath))
			onResult(p.Run(ctx, req))
		}
	}
}

// cacheKey identifies a run by its inputs and every knob that shapes the
// assignments. Zero-value fields are keyed as the defaults they resolve to,
// so spelling a default out does not defeat the cache.
func (req Request) cacheKey(dataDigest, refDigest string) string {
	clusterCol := req.ClusterColumn
	if clusterCol == "" {
		clusterCol = anatomy.DefaultClusterColumn
	}
	topMarkers := req.TopMarkers
	if topMarkers == 0 {
		topMarkers = singler.DefaultTopMarkers
	}
	margin := req.Margin
	if margin == 0 {
		margin = singler.DefaultMargin
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%d|%g|%t",
		dataDigest, refDigest, req.RefColumn, req.Region,
		clusterCol, topMarkers, margin, req.NoFineTune)
}

// fileDigest returns the hex sha256 of a file's contents.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
