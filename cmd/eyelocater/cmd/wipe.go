package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emalab/eyelocater/internal/app"
)

var wipeForce bool

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete all stored runs for this project",
	Long:  "Removes every stored run from the result store. Figures already written to disk are untouched.",
	RunE:  runWipe,
}

func init() {
	wipeCmd.Flags().BoolVar(&wipeForce, "force", false, "Skip confirmation prompt")
}

func runWipe(cmd *cobra.Command, args []string) error {
	root := projectRoot()
	paths := app.NewPaths(root)

	if _, err := os.Stat(paths.DB); os.IsNotExist(err) {
		fmt.Println("no stored runs")
		return nil
	}

	if !wipeForce {
		fmt.Printf("This deletes all stored runs for %s. Continue? [y/N] ", projectID(root))
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("cancelled")
			return nil
		}
	}

	store, err := openStore(paths)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteProject(projectID(root)); err != nil {
		return err
	}
	fmt.Println("stored runs deleted")
	return nil
}
