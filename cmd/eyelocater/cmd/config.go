package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configWrite bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective configuration",
	Long:  "Shows project paths and the effective config (file values over defaults). --write saves the effective config to .eyelocater/config.yaml for editing.",
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configWrite, "write", false, "Write the effective config to the config file")
}

func runConfig(cmd *cobra.Command, args []string) error {
	root := projectRoot()
	paths, cfg, err := loadProject()
	if err != nil {
		return err
	}

	fmt.Printf("%s⚡ eyelocater config%s\n", colorBold, colorReset)
	fmt.Printf("  Project:   %s\n", projectID(root))
	fmt.Printf("  Root:      %s\n", root)
	fmt.Printf("  DB:        %s\n", paths.DB)
	fmt.Printf("  Config:    %s", paths.ConfigFile)
	if _, err := os.Stat(paths.ConfigFile); os.IsNotExist(err) {
		fmt.Printf("  %s(not written, defaults in effect)%s", colorYellow, colorReset)
	}
	fmt.Println()
	fmt.Printf("  Log:       %s\n", paths.RunLog)
	fmt.Println()
	fmt.Printf("  data_path:        %s\n", cfg.DataPath)
	fmt.Printf("  ref_path:         %s\n", orUnset(cfg.RefPath))
	fmt.Printf("  ref_column:       %s\n", orUnset(cfg.RefColumn))
	fmt.Printf("  region:           %s\n", cfg.Region)
	fmt.Printf("  cluster_column:   %s\n", cfg.ClusterColumn)
	fmt.Printf("  workers:          %d\n", cfg.Workers)
	fmt.Printf("  margin:           %g\n", cfg.Margin)
	fmt.Printf("  top_markers:      %d\n", cfg.TopMarkers)
	fmt.Printf("  dot_size:         %g\n", cfg.DotSize)
	fmt.Printf("  out_path:         %s\n", cfg.OutPath)
	fmt.Printf("  gene_out_pattern: %s\n", cfg.GeneOutPattern)

	if configWrite {
		if err := paths.EnsureDirs(); err != nil {
			return err
		}
		if err := cfg.Save(paths.ConfigFile); err != nil {
			return err
		}
		fmt.Printf("\n%swrote%s %s\n", colorGreen, colorReset, paths.ConfigFile)
	}
	return nil
}

func orUnset(s string) string {
	if s == "" {
		return colorGray + "(unset)" + colorReset
	}
	return s
}
