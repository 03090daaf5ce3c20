package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emalab/eyelocater/internal/adapters/h5ad"
	"github.com/emalab/eyelocater/internal/domain/expr"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.h5ad>",
	Short: "Show what a dataset contains",
	Long:  "Loads an .h5ad file and prints its shape, obs columns, and whether it carries spatial coordinates.",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	ds, err := h5ad.Load(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s⚡ %s%s\n", colorBold, args[0], colorReset)
	fmt.Printf("  Cells:    %d\n", ds.NCells())
	fmt.Printf("  Genes:    %d\n", ds.NGenes())
	spatial := "no"
	if len(ds.Spatial) > 0 {
		spatial = "yes"
	}
	fmt.Printf("  Spatial:  %s\n", spatial)

	fmt.Printf("  Obs columns:\n")
	for _, col := range ds.Obs {
		kind := "numeric"
		detail := ""
		switch col.Kind {
		case expr.ColString:
			kind = "string"
		case expr.ColCategorical:
			kind = "categorical"
			detail = fmt.Sprintf("  (%d categories)", len(col.Categories))
		}
		fmt.Printf("    %s%s%s  %s%s%s%s\n",
			colorCyan, col.Name, colorReset,
			colorGray, kind, detail, colorReset)
	}
	return nil
}
