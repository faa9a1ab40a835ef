package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PYIMPORTS_ROOT", "")
	t.Setenv("PYIMPORTS_WORKERS", "")
	t.Setenv("PYIMPORTS_CACHE", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Root)
	assert.True(t, cfg.RespectGitignore)
	assert.Equal(t, DefaultExclude, cfg.Exclude)
	assert.Equal(t, 1024, cfg.QueryCacheSize)
	assert.False(t, cfg.Cache.Enabled)
	assert.Positive(t, cfg.WorkerCount())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pyimports.yaml")
	content := `
root: /src/mypkg
workers: 3
exclude_type_checking: true
exclude:
  - "**/tests"
cache:
  enabled: false
watch:
  enabled: true
  debounce: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("PYIMPORTS_ROOT", "")
	t.Setenv("PYIMPORTS_WORKERS", "")
	t.Setenv("PYIMPORTS_CACHE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/src/mypkg", cfg.Root)
	assert.Equal(t, 3, cfg.WorkerCount())
	assert.True(t, cfg.ExcludeTypeChecking)
	assert.Equal(t, []string{"**/tests"}, cfg.Exclude)
	assert.True(t, cfg.Cache.Enabled)
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("PYIMPORTS_ROOT", "")
	t.Setenv("PYIMPORTS_CACHE", "")
	t.Setenv("PYIMPORTS_WORKERS", "many")

	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("PYIMPORTS_WORKERS", "-1")
	_, err = Load("")
	assert.Error(t, err)
}

func TestCacheDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PYIMPORTS_CACHE_DIR", dir)

	got, err := GetCacheDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	cfg := Default()
	dbPath, err := cfg.CacheDBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, CacheDBName), dbPath)

	cfg.Cache.Dir = filepath.Join(dir, "custom")
	dbPath, err = cfg.CacheDBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "custom", CacheDBName), dbPath)
	assert.DirExists(t, filepath.Join(dir, "custom"))
}
