// Package anatomy scopes a dataset to an anatomical region of the mouse eye.
// Regions are resolved through a fixed table mapping phenograph cluster IDs
// to anatomical locations; the table was curated against the reference atlas
// and is part of the tool's contract.
package anatomy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/emalab/eyelocater/internal/domain/expr"
)

// Region selects which atlas subset the matcher targets.
type Region int

const (
	RegionEye Region = iota // whole eye, no filtering
	RegionRetina
	RegionCornea
)

var regionNames = map[Region]string{
	RegionEye:    "eye",
	RegionRetina: "retina",
	RegionCornea: "cornea",
}

func (r Region) String() string { return regionNames[r] }

// ErrInvalidRegion reports a region string outside eye|retina|cornea.
var ErrInvalidRegion = errors.New("invalid region")

// ErrNoClusterColumn reports a dataset without phenograph clustering results,
// which region filtering depends on.
var ErrNoClusterColumn = errors.New("no clustering column in dataset")

// ErrEmptyRegion reports a region filter that matched no cells.
var ErrEmptyRegion = errors.New("no cells in region")

// ParseRegion parses a user-supplied region name.
func ParseRegion(s string) (Region, error) {
	switch s {
	case "eye":
		return RegionEye, nil
	case "retina":
		return RegionRetina, nil
	case "cornea":
		return RegionCornea, nil
	}
	return 0, fmt.Errorf("%w %q: expected one of eye, retina, cornea", ErrInvalidRegion, s)
}

// Regions returns all selectable regions in display order.
func Regions() []Region {
	return []Region{RegionEye, RegionRetina, RegionCornea}
}

// ClusterLocations maps phenograph cluster IDs to anatomical locations.
// Curated against the mouse-eye atlas; clusters without a confident location
// are "unknown" and never match a region filter.
var ClusterLocations = map[string]string{
	"1":  "lens",
	"2":  "lens",
	"3":  "lens",
	"4":  "lens",
	"5":  "unknown",
	"6":  "retina",
	"7":  "lens",
	"8":  "sclera & choroid",
	"9":  "lens",
	"10": "retina",
	"11": "retina",
	"12": "iris & ciliary",
	"13": "sclera & choroid",
	"14": "iris & ciliary",
	"15": "retina",
	"16": "retina",
	"17": "cornea",
	"18": "cornea",
	"19": "cornea",
	"20": "retina",
	"21": "cornea",
	"22": "retina",
	"23": "sclera & choroid",
	"24": "sclera & choroid",
	"25": "retina",
	"26": "iris & ciliary",
	"27": "lens",
	"28": "retina",
	"29": "retina",
	"30": "unknown",
	"31": "optic nerve",
	"32": "retina",
	"33": "retina",
	"34": "unknown",
	"35": "lens",
	"36": "iris & ciliary",
	"37": "iris & ciliary",
	"38": "iris & ciliary",
	"39": "unknown",
	"40": "unknown",
	"41": "unknown",
	"42": "sclera & choroid",
	"43": "retina",
	"44": "unknown",
	"45": "unknown",
	"46": "unknown",
	"47": "unknown",
	"48": "unknown",
	"49": "unknown",
	"50": "unknown",
}

// Locations returns the distinct anatomical locations in the cluster table,
// sorted for stable display.
func Locations() []string {
	seen := make(map[string]bool)
	for _, loc := range ClusterLocations {
		seen[loc] = true
	}
	out := make([]string, 0, len(seen))
	for loc := range seen {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

// DefaultClusterColumn is the obs column holding phenograph cluster IDs.
const DefaultClusterColumn = "phenograph"

// SelectCells returns the indices of cells belonging to the region, using
// the cluster column to resolve each cell's location.
//
// RegionEye keeps every cell without consulting the cluster column. For
// retina/cornea a missing cluster column is ErrNoClusterColumn, and a filter
// that keeps nothing is ErrEmptyRegion — an empty subset always means a
// mismatched dataset, never a valid result.
func SelectCells(ds *expr.Dataset, region Region, clusterCol string) ([]int, error) {
	if clusterCol == "" {
		clusterCol = DefaultClusterColumn
	}

	if region == RegionEye {
		keep := make([]int, ds.NCells())
		for i := range keep {
			keep[i] = i
		}
		return keep, nil
	}

	if region != RegionRetina && region != RegionCornea {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRegion, region)
	}

	clusters, err := ds.Labels(clusterCol)
	if err != nil {
		if errors.Is(err, expr.ErrColumnNotFound) {
			return nil, fmt.Errorf("%w: obs column %q is missing — run phenograph clustering first", ErrNoClusterColumn, clusterCol)
		}
		return nil, err
	}

	want := region.String()
	var keep []int
	for i, cluster := range clusters {
		if ClusterLocations[cluster] == want {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("%w %q: none of the dataset's clusters map to it", ErrEmptyRegion, want)
	}
	return keep, nil
}

// Filter returns the dataset restricted to the region.
func Filter(ds *expr.Dataset, region Region, clusterCol string) (*expr.Dataset, error) {
	keep, err := SelectCells(ds, region, clusterCol)
	if err != nil {
		return nil, err
	}
	if region == RegionEye {
		return ds, nil
	}
	return ds.FilterCells(keep), nil
}
