// Package config handles rewrite.toml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/chazu/rewrite/dump"
	"github.com/chazu/rewrite/emit"
	"github.com/chazu/rewrite/index"
	"github.com/chazu/rewrite/pipeline"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "rewrite.toml"

// Config represents a parsed rewrite.toml file.
type Config struct {
	Pipeline  Pipeline          `toml:"pipeline"`
	Index     Index             `toml:"index"`
	Dump      Dump              `toml:"dump"`
	Log       Log               `toml:"log"`
	Constfold Constfold         `toml:"constfold"`
	Hierarchy map[string]string `toml:"hierarchy"`

	// Dir is the directory containing rewrite.toml (set after loading).
	Dir string `toml:"-"`
}

// Pipeline holds dispatcher settings.
type Pipeline struct {
	Disabled      []string `toml:"disabled"`
	CheckMetadata bool     `toml:"check-metadata"`
	Workers       int      `toml:"workers"`
}

// Index holds constant-pool index settings.
type Index struct {
	Literals bool `toml:"literals"`
}

// Dump holds the debug dump switch.
type Dump struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// Log holds logging settings.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Constfold selects the function tables the constant folder knows.
type Constfold struct {
	Arithmetic bool     `toml:"arithmetic"`
	Funcs      []string `toml:"funcs"` // "math", "strings"
}

// Default returns the configuration used when no rewrite.toml exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Dump.Dir == "" {
		c.Dump.Dir = dump.DefaultDir
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 4
	}
	if c.Constfold.Funcs == nil {
		c.Constfold.Funcs = []string{"math", "strings"}
	}
	c.Index.Literals = c.Index.Literals || c.Constfold.Arithmetic
}

// Load reads and parses rewrite.toml from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}
	c.Dir = absDir
	c.applyDefaults()
	return &c, nil
}

// FindAndLoad walks up from startDir looking for rewrite.toml.
// Returns nil, nil if no configuration is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// ApplyEnv lets REWRITE_DUMP and REWRITE_DUMP_DIR override the [dump]
// section.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(dump.EnvDump); ok {
		c.Dump.Enabled = dump.Enabled(v)
	}
	if v := os.Getenv(dump.EnvDir); v != "" {
		c.Dump.Dir = v
	}
}

// DumpDir returns the dump root, resolved against Dir when relative.
func (c *Config) DumpDir() string {
	if filepath.IsAbs(c.Dump.Dir) || c.Dir == "" {
		return c.Dump.Dir
	}
	return filepath.Join(c.Dir, c.Dump.Dir)
}

// PassEnabled reports whether the named pass is not listed in
// [pipeline] disabled.
func (c *Config) PassEnabled(name string) bool {
	return !slices.Contains(c.Pipeline.Disabled, name)
}

// ClassHierarchy returns the built-in hierarchy extended with the
// [hierarchy] table.
func (c *Config) ClassHierarchy() emit.StaticHierarchy {
	h := emit.DefaultHierarchy()
	for class, super := range c.Hierarchy {
		h[class] = super
	}
	return h
}

// Sink returns the dump sink selected by the [dump] section, or nil when
// dumping is off or its directory cannot be prepared.
func (c *Config) Sink() dump.Sink {
	if !c.Dump.Enabled {
		return nil
	}
	return dump.Open(c.DumpDir())
}

// PipelineOptions builds dispatcher options from the configuration.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Index:         index.Options{Literals: c.Index.Literals},
		Hierarchy:     c.ClassHierarchy(),
		CheckMetadata: c.Pipeline.CheckMetadata,
		Sink:          c.Sink(),
	}
}
