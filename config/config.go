// Package config handles embedrun.toml / embedrun.yaml host configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileNames are the configuration files FindAndLoad looks for, in order.
var FileNames = []string{"embedrun.toml", "embedrun.yaml", "embedrun.yml"}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the host configuration for the driver.
type Config struct {
	Run     Run     `toml:"run" yaml:"run" json:"run"`
	Modules Modules `toml:"modules" yaml:"modules" json:"modules"`
	Log     Log     `toml:"log" yaml:"log" json:"log"`
	Server  Server  `toml:"server" yaml:"server" json:"server"`
	Journal Journal `toml:"journal" yaml:"journal" json:"journal"`

	// Dir is the directory containing the config file (set at load time).
	Dir string `toml:"-" yaml:"-" json:"-"`
}

// Run configures how programs are run.
type Run struct {
	PrintLevel  int    `toml:"print-level" yaml:"print-level" json:"print-level"`
	LoadingMode int    `toml:"loading-mode" yaml:"loading-mode" json:"loading-mode"`
	Image       string `toml:"image" yaml:"image" json:"image,omitempty"`
}

// Modules configures load statements.
type Modules struct {
	// Require overrides the build-time default when set.
	Require *bool    `toml:"require" yaml:"require" json:"require,omitempty"`
	Paths   []string `toml:"paths" yaml:"paths" json:"paths,omitempty"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity" json:"verbosity"`
	File      string `toml:"file" yaml:"file" json:"file,omitempty"`
}

// Server configures the remote run service.
type Server struct {
	Addr string `toml:"addr" yaml:"addr" json:"addr"`
}

// Journal configures the run journal. An empty path disables it.
type Journal struct {
	Path string `toml:"path" yaml:"path" json:"path,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Run: Run{
			PrintLevel:  1,
			LoadingMode: 2,
		},
		Server: Server{Addr: ":4567"},
	}
}

// Load parses and validates the configuration file at path. Fields the
// file leaves out keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = toml.Unmarshal(data, c)
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a configuration file and
// loads it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return Load(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// RequireEnabled resolves the module loading switch against the
// build-time default.
func (c *Config) RequireEnabled(buildDefault bool) bool {
	if c.Modules.Require == nil {
		return buildDefault
	}
	return *c.Modules.Require
}

// ModulePaths returns absolute module search paths.
func (c *Config) ModulePaths() []string {
	var paths []string
	for _, p := range c.Modules.Paths {
		paths = append(paths, c.resolve(p))
	}
	return paths
}

// ImagePath returns the absolute path of the configured image, or "".
func (c *Config) ImagePath() string {
	return c.resolve(c.Run.Image)
}

// JournalPath returns the absolute journal path, or "".
func (c *Config) JournalPath() string {
	return c.resolve(c.Journal.Path)
}

// LogFile returns the absolute log file path, or "" for stderr.
func (c *Config) LogFile() string {
	return c.resolve(c.Log.File)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}
