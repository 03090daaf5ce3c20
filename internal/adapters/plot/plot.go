// Package plot renders spatial scatter figures with gonum/plot.
// Two figure kinds: cluster scatters (one color per assigned label, with a
// legend) and gene scatters (points shaded by expression on a blue-to-red
// ramp). Output format follows the file extension; .pdf is the default.
package plot

import (
	"fmt"
	"image/color"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// DefaultDotSize is the glyph radius in points for spatial scatters.
// Stereo-seq sections carry tens of thousands of bins; bigger dots smear.
const DefaultDotSize = 2

// Renderer draws scatter figures. The zero value uses DefaultDotSize.
type Renderer struct {
	DotSize float64 // glyph radius in points; 0 means DefaultDotSize
}

func (r *Renderer) dotSize() vg.Length {
	if r.DotSize > 0 {
		return vg.Points(r.DotSize)
	}
	return vg.Points(DefaultDotSize)
}

// ClusterScatter writes a spatial scatter with one series per label.
// coords and labels are parallel per-cell arrays; labels appear in the
// legend in sorted order.
func (r *Renderer) ClusterScatter(coords [][2]float64, labels []string, title, outPath string) error {
	if len(coords) != len(labels) {
		return fmt.Errorf("%d coordinates, %d labels", len(coords), len(labels))
	}
	if len(coords) == 0 {
		return fmt.Errorf("nothing to plot")
	}

	byLabel := make(map[string]plotter.XYs)
	for i, c := range coords {
		byLabel[labels[i]] = append(byLabel[labels[i]], plotter.XY{X: c[0], Y: c[1]})
	}
	names := make([]string, 0, len(byLabel))
	for name := range byLabel {
		names = append(names, name)
	}
	sort.Strings(names)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	p.Legend.Top = true
	p.Legend.Left = false

	for i, name := range names {
		s, err := plotter.NewScatter(byLabel[name])
		if err != nil {
			return fmt.Errorf("series %q: %w", name, err)
		}
		s.GlyphStyle.Color = plotutil.Color(i)
		s.GlyphStyle.Radius = r.dotSize()
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add(name, s)
	}

	if err := p.Save(8*vg.Inch, 8*vg.Inch, outPath); err != nil {
		return fmt.Errorf("save %s: %w", outPath, err)
	}
	return nil
}

// GeneScatter writes a spatial scatter shaded by per-cell expression.
// Values map onto a blue-to-red ramp; a flat gene renders all-blue.
func (r *Renderer) GeneScatter(coords [][2]float64, values []float64, gene, outPath string) error {
	if len(coords) != len(values) {
		return fmt.Errorf("%d coordinates, %d values", len(coords), len(values))
	}
	if len(coords) == 0 {
		return fmt.Errorf("nothing to plot")
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	xys := make(plotter.XYs, len(coords))
	for i, c := range coords {
		xys[i] = plotter.XY{X: c[0], Y: c[1]}
	}

	p := plot.New()
	p.Title.Text = gene
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	s, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	radius := r.dotSize()
	s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		t := 0.0
		if hi > lo {
			t = (values[i] - lo) / (hi - lo)
		}
		return draw.GlyphStyle{
			Color:  rampColor(t),
			Radius: radius,
			Shape:  draw.CircleGlyph{},
		}
	}
	p.Add(s)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, outPath); err != nil {
		return fmt.Errorf("save %s: %w", outPath, err)
	}
	return nil
}

// rampColor interpolates blue (t=0) to red (t=1).
func rampColor(t float64) color.Color {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return color.RGBA{
		R: uint8(255 * t),
		B: uint8(255 * (1 - t)),
		A: 255,
	}
}

// GeneOutName derives the output path for one gene's figure. A '*' in the
// pattern is replaced by the gene name; without one the gene is appended
// before the extension.
func GeneOutName(pattern, gene string) string {
	if strings.Contains(pattern, "*") {
		return strings.Replace(pattern, "*", gene, 1)
	}
	ext := filepath.Ext(pattern)
	return strings.TrimSuffix(pattern, ext) + "_" + gene + ext
}
