package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/emalab/eyelocater/internal/adapters/bbolt"
	"github.com/emalab/eyelocater/internal/adapters/plot"
	"github.com/emalab/eyelocater/internal/app"
)

var rootCmd = &cobra.Command{
	Use:           "eyelocater",
	Short:         "eyelocater — spatial cell localisation for the mouse eye",
	Long:          "Assigns an atlas identity to every cell of an annotated stereo-seq section and renders spatial figures.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var verbose bool

// projectRoot returns the project root (cwd by default).
func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return dir
}

// projectID scopes runs in the result store to this project directory.
func projectID(root string) string {
	return filepath.Base(root)
}

// loadProject resolves paths and config for the current project.
func loadProject() (*app.Paths, *app.Config, error) {
	paths := app.NewPaths(projectRoot())
	cfg, err := app.LoadConfig(paths.ConfigFile)
	if err != nil {
		return nil, nil, err
	}
	return paths, cfg, nil
}

// newPipeline assembles the full pipeline: dirs, logger, store, renderer.
// The returned closer flushes the log and releases the store lock.
func newPipeline(paths *app.Paths, cfg *app.Config) (*app.Pipeline, func(), error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, nil, err
	}
	log, err := app.NewLogger(paths.RunLog, verbose)
	if err != nil {
		return nil, nil, err
	}
	store, err := bbolt.NewStore(paths.DB)
	if err != nil {
		if isDBLockError(err) {
			return nil, nil, fmt.Errorf("%w\n%s", err, diagnoseDBLock())
		}
		return nil, nil, err
	}
	p := &app.Pipeline{
		Log:       log,
		Store:     store,
		Renderer:  &plot.Renderer{DotSize: cfg.DotSize},
		ProjectID: projectID(projectRoot()),
	}
	closer := func() {
		log.Sync()
		store.Close()
	}
	return p, closer, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Mirror pipeline logs to stderr")

	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(regionsCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(wipeCmd)
}
