package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	fsw "github.com/emalab/eyelocater/internal/adapters/fsnotify"
	"github.com/emalab/eyelocater/internal/app"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-annotate whenever the section file changes",
	Long: "Runs one annotation, then keeps watching the section file and re-runs " +
		"after every settled change. Stop with Ctrl-C.",
	RunE: runWatch,
}

func init() {
	addRunFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	w, err := fsw.NewWatcher()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("%s⚡ watching%s %s  (Ctrl-C to stop)\n", colorBold, colorReset, req.DataPath)
	err = p.WatchAndRun(ctx, w, req, func(out *app.Outcome, err error) {
		if err != nil {
			RenderError(err)
			return
		}
		fmt.Print(formatRun(out.Run, out.Cached))
	})
	if errors.Is(err, context.Canceled) {
		fmt.Println("stopped")
		return nil
	}
	return err
}
