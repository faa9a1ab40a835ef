// Package config loads build and server settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultExclude lists the directory globs skipped during package discovery.
var DefaultExclude = []string{
	"**/__pycache__",
	"**/node_modules",
	"**/.venv",
	"**/venv",
	"**/.tox",
}

// Config holds every tunable of a build.
type Config struct {
	// Root is the directory of the root package.
	Root string `yaml:"root"`
	// Workers bounds the parallel extraction pool. Zero means runtime.NumCPU().
	Workers int `yaml:"workers"`
	// Exclude holds doublestar globs, relative to Root, of entries to skip.
	Exclude []string `yaml:"exclude"`
	// RespectGitignore makes discovery honour .gitignore files.
	RespectGitignore bool `yaml:"respect_gitignore"`
	// ExcludeTypeChecking drops imports guarded by `if TYPE_CHECKING:`.
	ExcludeTypeChecking bool `yaml:"exclude_type_checking"`
	// ExcludeExternal drops references to code outside the package.
	ExcludeExternal bool `yaml:"exclude_external"`
	// QueryCacheSize is the number of memoised reachability results.
	QueryCacheSize int `yaml:"query_cache_size"`

	Cache CacheConfig `yaml:"cache"`
	Watch WatchConfig `yaml:"watch"`
}

// CacheConfig controls the on-disk parse cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// WatchConfig controls rebuilding on file changes when serving.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Root:             ".",
		Exclude:          append([]string(nil), DefaultExclude...),
		RespectGitignore: true,
		QueryCacheSize:   1024,
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
	}
}

// Load reads a YAML file on top of the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// applyEnv overrides fields from PYIMPORTS_* variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("PYIMPORTS_ROOT"); v != "" {
		c.Root = v
	}
	if v := os.Getenv("PYIMPORTS_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PYIMPORTS_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("PYIMPORTS_CACHE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PYIMPORTS_CACHE: %w", err)
		}
		c.Cache.Enabled = b
	}
	return nil
}

// Validate rejects settings that cannot work.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("config: root must not be empty")
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be >= 0, got %d", c.Workers)
	}
	if c.QueryCacheSize < 0 {
		return fmt.Errorf("config: query_cache_size must be >= 0, got %d", c.QueryCacheSize)
	}
	return nil
}

// WorkerCount resolves the effective number of extraction workers.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}
