package plot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCoords() [][2]float64 {
	return [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0.5, 0.5}}
}

func TestClusterScatter_WritesPDF(t *testing.T) {
	out := filepath.Join(t.TempDir(), "clusters.pdf")
	r := &Renderer{}

	err := r.ClusterScatter(testCoords(),
		[]string{"rod", "cone", "rod", "amacrine cell", "cone"},
		"retina", out)
	require.NoError(t, err)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestClusterScatter_LengthMismatch(t *testing.T) {
	r := &Renderer{}
	err := r.ClusterScatter(testCoords(), []string{"rod"}, "t",
		filepath.Join(t.TempDir(), "bad.pdf"))
	assert.Error(t, err)
}

func TestClusterScatter_Empty(t *testing.T) {
	r := &Renderer{}
	err := r.ClusterScatter(nil, nil, "t", filepath.Join(t.TempDir(), "empty.pdf"))
	assert.Error(t, err)
}

func TestGeneScatter_WritesPDF(t *testing.T) {
	out := filepath.Join(t.TempDir(), "rho.pdf")
	r := &Renderer{DotSize: 3}

	err := r.GeneScatter(testCoords(), []float64{0, 1, 2, 3, 4}, "Rho", out)
	require.NoError(t, err)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestGeneScatter_FlatValues(t *testing.T) {
	// A gene with identical expression everywhere must not divide by zero.
	out := filepath.Join(t.TempDir(), "flat.pdf")
	r := &Renderer{}
	err := r.GeneScatter(testCoords(), []float64{2, 2, 2, 2, 2}, "Gapdh", out)
	require.NoError(t, err)
}

func TestRampColor_Endpoints(t *testing.T) {
	r0, _, b0, _ := rampColor(0).RGBA()
	assert.Zero(t, r0)
	assert.NotZero(t, b0)

	r1, _, b1, _ := rampColor(1).RGBA()
	assert.NotZero(t, r1)
	assert.Zero(t, b1)

	// Out-of-range inputs clamp.
	assert.Equal(t, rampColor(0), rampColor(-3))
	assert.Equal(t, rampColor(1), rampColor(7))
}

func TestGeneOutName(t *testing.T) {
	assert.Equal(t, "spatial_scatter_Rho.pdf", GeneOutName("spatial_scatter_*.pdf", "Rho"))
	assert.Equal(t, "out_Rho.pdf", GeneOutName("out.pdf", "Rho"))
	assert.Equal(t, "plots/Opn1mw.png", GeneOutName("plots/*.png", "Opn1mw"))
}
