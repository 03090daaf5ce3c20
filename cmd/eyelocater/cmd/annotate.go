package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emalab/eyelocater/internal/app"
	"github.com/emalab/eyelocater/internal/domain/anatomy"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Localise every cell of a section against the atlas",
	Long: "Loads an annotated stereo-seq section, assigns each cell the best-matching " +
		"atlas identity within the chosen region, renders spatial figures, and stores the run.",
	RunE: runAnnotate,
}

// Flags shared by annotate and watch. Empty string/zero means "use the
// config file value".
var (
	flagData    string
	flagRef     string
	flagRefCol  string
	flagRegion  string
	flagOut     string
	flagGenes   string
	flagGeneOut string
	flagPlot    string
	flagWorkers int
	flagNoCache bool
	flagNoPlot  bool
)

func addRunFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVar(&flagData, "data", "", "Section .h5ad file (default from config)")
	f.StringVar(&flagRef, "ref", "", "Reference atlas .h5ad file")
	f.StringVar(&flagRefCol, "ref-col", "", "Reference obs column carrying cell identities")
	f.StringVar(&flagRegion, "region", "", "Region to localise within: eye, retina, or cornea")
	f.StringVar(&flagOut, "out", "", "Cluster scatter output file")
	f.StringVar(&flagGenes, "gene", "", "Comma- or semicolon-separated genes to render as expression scatters (--plot-type gene or both)")
	f.StringVar(&flagGeneOut, "gene-out", "", "Per-gene output pattern; '*' stands in for the gene name")
	f.StringVar(&flagPlot, "plot-type", "cell", "Figures to render: cell, gene, or both")
	f.IntVar(&flagWorkers, "workers", 0, "Concurrent cell scorers (default all CPUs)")
	f.BoolVar(&flagNoCache, "no-cache", false, "Recompute even if an identical run is stored")
	f.BoolVar(&flagNoPlot, "no-plot", false, "Skip all figures")
}

func init() {
	addRunFlags(annotateCmd)
}

// buildRequest merges flags over the project config into a pipeline request.
func buildRequest(cfg *app.Config) (app.Request, error) {
	pick := func(flag, cfgVal string) string {
		if flag != "" {
			return flag
		}
		return cfgVal
	}

	req := app.Request{
		DataPath:       pick(flagData, cfg.DataPath),
		RefPath:        pick(flagRef, cfg.RefPath),
		RefColumn:      pick(flagRefCol, cfg.RefColumn),
		ClusterColumn:  cfg.ClusterColumn,
		OutPath:        pick(flagOut, cfg.OutPath),
		GeneOutPattern: pick(flagGeneOut, cfg.GeneOutPattern),
		TopMarkers:     cfg.TopMarkers,
		Margin:         cfg.Margin,
		Workers:        flagWorkers,
		NoCache:        flagNoCache,
	}
	if req.Workers == 0 {
		req.Workers = cfg.Workers
	}
	if req.RefPath == "" {
		return req, fmt.Errorf("no reference atlas: pass --ref or set ref_path in the config")
	}
	if req.RefColumn == "" {
		return req, fmt.Errorf("no reference column: pass --ref-col or set ref_column in the config")
	}

	region, err := anatomy.ParseRegion(pick(flagRegion, cfg.Region))
	if err != nil {
		return req, err
	}
	req.Region = region

	// The plot type decides what renders: "cell" ignores --gene entirely.
	switch flagPlot {
	case "cell":
		req.PlotCells = true
	case "both":
		req.PlotCells = true
		req.Genes = app.ParseGeneList(flagGenes)
	case "gene":
		req.Genes = app.ParseGeneList(flagGenes)
	default:
		return req, fmt.Errorf("invalid --plot-type %q: expected cell, gene, or both", flagPlot)
	}
	if flagNoPlot {
		req.PlotCells = false
		req.Genes = nil
	}
	if len(req.Genes) == 0 && flagPlot == "gene" && !flagNoPlot {
		return req, fmt.Errorf("--plot-type gene needs --gene")
	}
	return req, nil
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	paths, cfg, err := loadProject()
	if err != nil {
		return err
	}
	req, err := buildRequest(cfg)
	if err != nil {
		return err
	}
	p, closer, err := newPipeline(paths, cfg)
	if err != nil {
		return err
	}
	defer closer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := p.Run(ctx, req)
	if err != nil {
		return err
	}
	for _, g := range out.UnknownGenes {
		fmt.Printf("%swarning:%s gene %q is not in the dataset, skipped\n", colorYellow, colorReset, g)
	}
	fmt.Print(formatRun(out.Run, out.Cached))
	return nil
}
