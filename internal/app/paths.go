package app

import (
	"os"
	"path/filepath"
)

// Paths holds all resolved filesystem paths for the .eyelocater/ project
// directory. All fields are pre-computed strings.
type Paths struct {
	Root       string // .eyelocater/
	DB         string // .eyelocater/eyelocater.db
	ConfigFile string // .eyelocater/config.yaml

	LogDir string // .eyelocater/log/
	RunLog string // .eyelocater/log/eyelocater.log

	PlotDir string // .eyelocater/plots/
}

// NewPaths constructs all resolved paths from a project root directory.
func NewPaths(projectRoot string) *Paths {
	root := filepath.Join(projectRoot, ".eyelocater")
	return &Paths{
		Root:       root,
		DB:         filepath.Join(root, "eyelocater.db"),
		ConfigFile: filepath.Join(root, "config.yaml"),

		LogDir: filepath.Join(root, "log"),
		RunLog: filepath.Join(root, "log", "eyelocater.log"),

		PlotDir: filepath.Join(root, "plots"),
	}
}

// EnsureDirs creates all subdirectories under .eyelocater/. Idempotent.
func (p *Paths) EnsureDirs() error {
	dirs := []string{
		p.Root,
		p.LogDir,
		p.PlotDir,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}
