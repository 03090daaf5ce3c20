// Eyelocater localises single cells against a mouse-eye atlas.
// Single binary, zero config — load a stereo-seq section, pick a region,
// get per-cell identities and spatial figures.
package main

import (
	"os"

	"github.com/emalab/eyelocater/cmd/eyelocater/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		cmd.RenderError(err)
		os.Exit(1)
	}
}
