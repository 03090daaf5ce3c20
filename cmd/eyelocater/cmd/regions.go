package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emalab/eyelocater/internal/domain/anatomy"
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List selectable regions",
	Long:  "Lists the regions accepted by --region and the cluster-to-location table behind them.",
	RunE:  runRegions,
}

func runRegions(cmd *cobra.Command, args []string) error {
	fmt.Printf("%s⚡ regions%s\n", colorBold, colorReset)
	for _, r := range anatomy.Regions() {
		note := ""
		if r == anatomy.RegionEye {
			note = "  (whole section, no filtering)"
		}
		fmt.Printf("  %s%s%s%s\n", colorCyan, r, colorReset, note)
	}

	fmt.Printf("\n%scluster to location%s\n", colorBold, colorReset)
	ids := make([]int, 0, len(anatomy.ClusterLocations))
	for id := range anatomy.ClusterLocations {
		n, err := strconv.Atoi(id)
		if err != nil {
			continue
		}
		ids = append(ids, n)
	}
	sort.Ints(ids)
	for _, n := range ids {
		id := strconv.Itoa(n)
		fmt.Printf("  %2s  %s%s%s\n", id, colorMagenta, anatomy.ClusterLocations[id], colorReset)
	}
	return nil
}
