package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emalab/eyelocater/internal/adapters/bbolt"
	"github.com/emalab/eyelocater/internal/app"
)

var resultsCmd = &cobra.Command{
	Use:   "results [show <run-id>]",
	Short: "List stored runs, or show one in full",
	Long: "Without arguments, lists every stored run newest first. " +
		"'results show <run-id>' (or just 'results <run-id>') shows that run's " +
		"inputs and per-label counts.",
	Args: cobra.MaximumNArgs(2),
	RunE: runResults,
}

var resultsCells bool

func init() {
	resultsCmd.Flags().BoolVar(&resultsCells, "cells", false, "With a run ID, also print every per-cell assignment")
}

// openStore opens the result store read-side for results/wipe.
func openStore(paths *app.Paths) (*bbolt.Store, error) {
	store, err := bbolt.NewStore(paths.DB)
	if err != nil && isDBLockError(err) {
		return nil, fmt.Errorf("%w\n%s", err, diagnoseDBLock())
	}
	return store, err
}

// shortDigest abbreviates a digest for display. Stored records are not
// trusted to carry a full sha256 hex string.
func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func runResults(cmd *cobra.Command, args []string) error {
	root := projectRoot()
	paths := app.NewPaths(root)
	store, err := openStore(paths)
	if err != nil {
		return err
	}
	defer store.Close()

	// Accept both "results <id>" and "results show <id>".
	if len(args) == 2 {
		if args[0] != "show" {
			return fmt.Errorf("unknown results subcommand %q", args[0])
		}
		args = args[1:]
	} else if len(args) == 1 && args[0] == "show" {
		return fmt.Errorf("results show needs a run ID")
	}

	if len(args) == 0 {
		runs, err := store.ListRuns(projectID(root))
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no stored runs — run 'eyelocater annotate' first")
			return nil
		}
		fmt.Print(formatSummaries(runs))
		return nil
	}

	run, err := store.LoadRun(projectID(root), args[0])
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("no run %s — 'eyelocater results' lists stored IDs", args[0])
	}

	fmt.Printf("%s⚡ run %s%s\n", colorBold, run.ID, colorReset)
	fmt.Printf("  Data:      %s  %s%s%s\n", run.DataPath, colorGray, shortDigest(run.DataDigest), colorReset)
	fmt.Printf("  Reference: %s  %s%s%s\n", run.RefPath, colorGray, shortDigest(run.RefDigest), colorReset)
	fmt.Printf("  Column:    %s\n", run.RefColumn)
	fmt.Printf("  Region:    %s%s%s\n", colorMagenta, run.Region, colorReset)
	fmt.Printf("  Cells:     %d\n", len(run.CellIDs))
	fmt.Print(formatCounts(run.LabelCounts, len(run.CellIDs)))
	for _, f := range run.PlotFiles {
		fmt.Printf("  %splot%s %s\n", colorGreen, colorReset, f)
	}

	if resultsCells {
		for i, id := range run.CellIDs {
			fmt.Printf("  %s%s%s  %s  %.4f\n", colorCyan, id, colorReset, run.Labels[i], run.Scores[i])
		}
	}
	return nil
}
