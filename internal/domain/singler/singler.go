// Package singler assigns a reference label to every cell of a test dataset
// by correlation-based label transfer: per-label median profiles over the
// reference, pairwise marker gene selection, Spearman scoring, and an
// optional fine-tuning pass that re-scores among near-tied labels.
//
// The whole pipeline is deterministic: no sampling anywhere, and score ties
// break toward the lexicographically smaller label.
package singler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/emalab/eyelocater/internal/domain/expr"
)

// Options tunes the matcher. The zero value selects the defaults.
type Options struct {
	TopMarkers int     // markers kept per ordered label pair (default 10)
	NoFineTune bool    // skip the fine-tuning pass
	Margin     float64 // fine-tune keeps labels within Margin of the best score (default 0.05)
	Workers    int     // concurrent cell scorers (default GOMAXPROCS)
}

// Defaults applied when the corresponding Options field is zero.
const (
	DefaultTopMarkers = 10
	DefaultMargin     = 0.05
)

// Assignment is the localisation result for one test cell.
type Assignment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Result holds per-cell assignments plus the reference label universe.
type Result struct {
	Labels      []string     // distinct reference labels, sorted
	Assignments []Assignment // one per test cell, in dataset order
}

// Counts returns the number of cells assigned to each label.
func (r *Result) Counts() map[string]int {
	out := make(map[string]int, len(r.Labels))
	for _, a := range r.Assignments {
		out[a.Label]++
	}
	return out
}

// ErrTooFewLabels reports a reference column with fewer than two distinct
// labels — there is nothing to discriminate between.
var ErrTooFewLabels = errors.New("reference column has fewer than two distinct labels")

// ErrNoSharedGenes reports test and reference datasets with no usable gene
// overlap.
var ErrNoSharedGenes = errors.New("test and reference share too few genes")

// Annotate scores every test cell against per-label reference profiles and
// returns the best label per cell. refCol names the reference obs column
// carrying the labels; a missing column surfaces expr.ErrColumnNotFound.
func Annotate(ctx context.Context, test, ref *expr.Dataset, refCol string, opt Options) (*Result, error) {
	if opt.TopMarkers <= 0 {
		opt.TopMarkers = DefaultTopMarkers
	}
	if opt.Margin <= 0 {
		opt.Margin = DefaultMargin
	}
	if opt.Workers <= 0 {
		opt.Workers = runtime.GOMAXPROCS(0)
	}

	refLabels, err := ref.Labels(refCol)
	if err != nil {
		return nil, err
	}

	tr, err := newTrainer(test, ref, refLabels, opt)
	if err != nil {
		return nil, err
	}

	n := test.NCells()
	assignments := make([]Assignment, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opt.Workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			assignments[i] = tr.classify(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{Labels: tr.labels, Assignments: assignments}, nil
}

// trainer holds everything precomputed from the reference: the shared gene
// space, per-label median profiles, and a marker cache keyed by label subset.
type trainer struct {
	test *expr.Dataset
	opt  Options

	labels    []string    // sorted distinct labels
	testGene  []int       // shared gene → column in test
	profiles  [][]float64 // label → profile over shared genes
	nShared   int

	mu      sync.Mutex
	markers map[string][]int // label-subset key → marker gene indices (shared space)
}

func newTrainer(test, ref *expr.Dataset, refLabels []string, opt Options) (*trainer, error) {
	// Shared gene space, in test gene order.
	refIdx := ref.GeneIndex()
	var testGene, refGene []int
	for j, name := range test.Genes {
		if rj, ok := refIdx[name]; ok {
			testGene = append(testGene, j)
			refGene = append(refGene, rj)
		}
	}
	if len(testGene) < 2 {
		return nil, fmt.Errorf("%w: %d shared", ErrNoSharedGenes, len(testGene))
	}

	// Cells per label.
	byLabel := make(map[string][]int)
	for i, l := range refLabels {
		byLabel[l] = append(byLabel[l], i)
	}
	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	if len(labels) < 2 {
		return nil, ErrTooFewLabels
	}

	// Per-label median profile over the shared gene space.
	nShared := len(testGene)
	_, refGenes := ref.X.Dims()
	rowBuf := make([]float64, refGenes)
	profiles := make([][]float64, len(labels))
	for li, label := range labels {
		cells := byLabel[label]
		vals := make([][]float64, nShared)
		for k := range vals {
			vals[k] = make([]float64, 0, len(cells))
		}
		for _, ci := range cells {
			row := ref.X.RowTo(rowBuf, ci)
			for k, rj := range refGene {
				vals[k] = append(vals[k], row[rj])
			}
		}
		prof := make([]float64, nShared)
		for k := range prof {
			prof[k] = median(vals[k])
		}
		profiles[li] = prof
	}

	return &trainer{
		test:     test,
		opt:      opt,
		labels:   labels,
		testGene: testGene,
		profiles: profiles,
		nShared:  nShared,
		markers:  make(map[string][]int),
	}, nil
}

// markersFor returns the union of pairwise top-N marker genes among the
// given label indices, computed once and cached.
func (t *trainer) markersFor(active []int) []int {
	key := subsetKey(t.labels, active)

	t.mu.Lock()
	if m, ok := t.markers[key]; ok {
		t.mu.Unlock()
		return m
	}
	t.mu.Unlock()

	in := make(map[int]bool)
	diff := make([]float64, t.nShared)
	order := make([]int, t.nShared)
	for _, a := range active {
		for _, b := range active {
			if a == b {
				continue
			}
			for k := range diff {
				diff[k] = t.profiles[a][k] - t.profiles[b][k]
				order[k] = k
			}
			sort.Slice(order, func(x, y int) bool {
				if diff[order[x]] != diff[order[y]] {
					return diff[order[x]] > diff[order[y]]
				}
				return order[x] < order[y] // stable for determinism
			})
			taken := 0
			for _, k := range order {
				if taken >= t.opt.TopMarkers || diff[k] <= 0 {
					break
				}
				in[k] = true
				taken++
			}
		}
	}

	m := make([]int, 0, len(in))
	for k := range in {
		m = append(m, k)
	}
	sort.Ints(m)

	// Degenerate profiles (e.g. identical labels) yield no positive
	// differences; score over the full shared space instead.
	if len(m) < 2 {
		m = make([]int, t.nShared)
		for k := range m {
			m[k] = k
		}
	}

	t.mu.Lock()
	t.markers[key] = m
	t.mu.Unlock()
	return m
}

// classify runs the scoring plus fine-tuning loop for one test cell.
func (t *trainer) classify(cell int) Assignment {
	_, testGenes := t.test.X.Dims()
	row := t.test.X.RowTo(make([]float64, testGenes), cell)

	active := make([]int, len(t.labels))
	for i := range active {
		active[i] = i
	}

	var best int
	var bestScore float64
	for {
		markers := t.markersFor(active)
		scores := t.score(row, active, markers)

		best, bestScore = active[0], scores[0]
		for i := 1; i < len(active); i++ {
			if scores[i] > bestScore {
				best, bestScore = active[i], scores[i]
			}
		}

		if t.opt.NoFineTune || len(active) <= 2 {
			break
		}

		var next []int
		for i, li := range active {
			if scores[i] >= bestScore-t.opt.Margin {
				next = append(next, li)
			}
		}
		if len(next) == len(active) || len(next) <= 1 {
			break
		}
		active = next
	}

	return Assignment{Label: t.labels[best], Score: bestScore}
}

// score returns the Spearman correlation of the cell against each active
// label profile over the marker genes.
func (t *trainer) score(row []float64, active, markers []int) []float64 {
	x := make([]float64, len(markers))
	for k, g := range markers {
		x[k] = row[t.testGene[g]]
	}
	xr := ranks(x)

	y := make([]float64, len(markers))
	scores := make([]float64, len(active))
	for i, li := range active {
		for k, g := range markers {
			y[k] = t.profiles[li][g]
		}
		scores[i] = spearman(xr, ranks(y))
	}
	return scores
}

// spearman is Pearson correlation on pre-computed ranks. A constant vector
// has no defined correlation; such labels score -1 so anything informative
// beats them.
func spearman(xr, yr []float64) float64 {
	c := stat.Correlation(xr, yr, nil)
	if c != c { // NaN
		return -1
	}
	return c
}

// ranks returns average ranks (1-based) with ties sharing their mean rank.
func ranks(x []float64) []float64 {
	n := len(x)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return x[order[a]] < x[order[b]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && x[order[j+1]] == x[order[i]] {
			j++
		}
		mean := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[order[k]] = mean
		}
		i = j + 1
	}
	return out
}

// median of an unsorted slice; sorts a copy.
func median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func subsetKey(labels []string, active []int) string {
	parts := make([]string, len(active))
	for i, li := range active {
		parts[i] = labels[li]
	}
	return strings.Join(parts, "\x00")
}
