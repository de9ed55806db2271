// Package config loads offscan.yaml. Command-line flags override file
// values after Load.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zboralski/offscan/internal/arm64"
	"github.com/zboralski/offscan/internal/constants"
	"github.com/zboralski/offscan/internal/engine"
	"github.com/zboralski/offscan/internal/finder"
	"github.com/zboralski/offscan/internal/layout"
	"github.com/zboralski/offscan/internal/pattern"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "offscan.yaml"

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config is the on-disk configuration.
type Config struct {
	Output        string        `yaml:"output"`
	Format        string        `yaml:"format"`
	MinConfidence float64       `yaml:"min_confidence"`
	Threads       int           `yaml:"threads"`
	Timeout       time.Duration `yaml:"timeout"`
	Exhaustive    bool          `yaml:"exhaustive"`

	Strategies Strategies `yaml:"strategies"`
	Catalog    Catalog    `yaml:"catalog"`
	Locator    Locator    `yaml:"locator"`
	Scanner    Scanner    `yaml:"scanner"`

	Targets    []string `yaml:"targets"`
	Categories []string `yaml:"categories"`
}

// Strategies toggles the optional resolution steps. Patterns always run.
type Strategies struct {
	Symbol    bool `yaml:"symbol"`
	XRef      bool `yaml:"xref"`
	Heuristic bool `yaml:"heuristic"`
}

// Catalog toggles the structure offset and constant catalogs resolved
// alongside functions.
type Catalog struct {
	Structures bool `yaml:"structures"`
	Constants  bool `yaml:"constants"`
}

type Locator struct {
	MaxSteps int `yaml:"max_steps"`
}

type Scanner struct {
	ChunkSize int `yaml:"chunk_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Output:        "offsets.json",
		Format:        FormatJSON,
		MinConfidence: finder.ConfidenceHeuristic,
		Threads:       8,
		Timeout:       5 * time.Minute,
		Strategies:    Strategies{Symbol: true, XRef: true, Heuristic: true},
		Catalog:       Catalog{Structures: true, Constants: true},
		Locator:       Locator{MaxSteps: arm64.DefaultMaxSteps},
		Scanner:       Scanner{ChunkSize: pattern.DefaultChunkSize},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence %v outside [0,1]", c.MinConfidence)
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", c.Threads)
	}
	if c.Locator.MaxSteps < 1 {
		return fmt.Errorf("locator.max_steps must be at least 1, got %d", c.Locator.MaxSteps)
	}
	if c.Scanner.ChunkSize < 0 {
		return fmt.Errorf("scanner.chunk_size must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	switch c.Format {
	case FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("unknown format %q, must be %q or %q", c.Format, FormatJSON, FormatYAML)
	}
	return nil
}

// Engine maps the config onto engine options.
func (c *Config) Engine() engine.Options {
	opts := engine.DefaultOptions()
	opts.Threads = c.Threads
	opts.Exhaustive = c.Exhaustive
	opts.MinConfidence = c.MinConfidence
	opts.MaxSteps = c.Locator.MaxSteps
	opts.ChunkSize = c.Scanner.ChunkSize
	opts.Strategies = finder.Options{
		DisableSymbol:    !c.Strategies.Symbol,
		DisableXRef:      !c.Strategies.XRef,
		DisableHeuristic: !c.Strategies.Heuristic,
		Threads:          c.Threads,
	}
	return opts
}

// Select picks the registered targets, fields and constants matching the
// configured names and categories.
func (c *Config) Select() engine.Catalog {
	cat := engine.Catalog{Targets: finder.DefaultRegistry.Select(c.Targets, c.Categories)}
	if c.Catalog.Structures {
		cat.Fields = layout.DefaultRegistry.Select(c.Targets, c.Categories)
	}
	if c.Catalog.Constants {
		cat.Constants = constants.DefaultRegistry.Select(c.Targets, c.Categories)
	}
	return cat
}
