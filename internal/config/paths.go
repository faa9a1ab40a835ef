package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// CacheDBName is the file name of the parse cache inside the cache directory.
const CacheDBName = "imports.db"

// GetCacheDir returns the directory used for the parse cache.
// Priority: $PYIMPORTS_CACHE_DIR -> $XDG_CACHE_HOME/pyimports -> ~/.cache/pyimports (Unix) / %LOCALAPPDATA%\pyimports (Windows)
func GetCacheDir() (string, error) {
	if dir := os.Getenv("PYIMPORTS_CACHE_DIR"); dir != "" {
		return dir, nil
	}

	if runtime.GOOS != "windows" {
		if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
			return filepath.Join(xdgCache, "pyimports"), nil
		}
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(userHome, "AppData", "Local", "pyimports"), nil
	default:
		return filepath.Join(userHome, ".cache", "pyimports"), nil
	}
}

// CacheDBPath returns the path of the parse cache database for the config,
// creating the cache directory if needed.
func (c *Config) CacheDBPath() (string, error) {
	dir := c.Cache.Dir
	if dir == "" {
		var err error
		dir, err = GetCacheDir()
		if err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	return filepath.Join(dir, CacheDBName), nil
}
