package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/emalab/eyelocater/internal/domain/anatomy"
	"github.com/emalab/eyelocater/internal/domain/singler"
)

// Config holds project-level defaults, persisted to .eyelocater/config.yaml.
// Command-line flags override whatever is stored here.
type Config struct {
	DataPath  string `yaml:"data_path"`
	RefPath   string `yaml:"ref_path"`
	RefColumn string `yaml:"ref_column"`
	Region    string `yaml:"region"`

	Workers    int     `yaml:"workers"`     // 0 means GOMAXPROCS
	Margin     float64 `yaml:"margin"`      // fine-tune retention margin
	TopMarkers int     `yaml:"top_markers"` // markers kept per label pair

	ClusterColumn string  `yaml:"cluster_column"` // obs column for region selection
	DotSize       float64 `yaml:"dot_size"`       // scatter glyph radius, points

	OutPath        string `yaml:"out_path"`
	GeneOutPattern string `yaml:"gene_out_pattern"` // '*' stands in for the gene name
}

// DefaultConfig returns the defaults used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		DataPath:       "data/DR_only_stereo.h5ad",
		Region:         anatomy.RegionEye.String(),
		Margin:         singler.DefaultMargin,
		TopMarkers:     singler.DefaultTopMarkers,
		ClusterColumn:  anatomy.DefaultClusterColumn,
		DotSize:        2,
		OutPath:        "cluster_scatter_output.pdf",
		GeneOutPattern: "spatial_scatter_*.pdf",
	}
}

// LoadConfig reads the config file, filling unset fields with defaults.
// A missing file yields the defaults without error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config back to disk.
func (c *Config) Save(path string) error {
	if err := c.validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) validate() error {
	if c.Region != "" {
		if _, err := anatomy.ParseRegion(c.Region); err != nil {
			return err
		}
	}
	if c.Margin < 0 {
		return fmt.Errorf("margin must be >= 0, got %g", c.Margin)
	}
	if c.TopMarkers < 0 {
		return fmt.Errorf("top_markers must be >= 0, got %d", c.TopMarkers)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.DotSize < 0 {
		return fmt.Errorf("dot_size must be >= 0, got %g", c.DotSize)
	}
	return nil
}
