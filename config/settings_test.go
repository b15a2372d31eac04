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
	// No config file anywhere nearby
	t.Chdir(t.TempDir())

	p, err := Load("", nil)
	require.NoError(t, err)

	s := p.Settings()
	assert.Equal(t, int64(512), s.MaxCacheMiB)
	assert.Equal(t, 30*time.Second, s.FetchTimeout)
	assert.Equal(t, time.Hour, s.SweepInterval)
	assert.False(t, s.Compress)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache_dir: /var/cache/docs
max_cache_mib: 64
fetch_timeout: 10s
sweep_interval: 5m
compress: true
metrics_addr: ":9090"
`), 0o600))

	p, err := Load(path, nil)
	require.NoError(t, err)

	s := p.Settings()
	assert.Equal(t, "/var/cache/docs", s.CacheDir)
	assert.Equal(t, int64(64), s.MaxCacheMiB)
	assert.Equal(t, 10*time.Second, s.FetchTimeout)
	assert.Equal(t, 5*time.Minute, s.SweepInterval)
	assert.True(t, s.Compress)
	assert.Equal(t, ":9090", s.MetricsAddr)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestCacheBudgetBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_cache_mib: 2\n"), 0o600))

	p, err := Load(path, nil)
	require.NoError(t, err)

	// Budget is expressed in raw bytes by the time the engine consumes it.
	assert.Equal(t, int64(2*1024*1024), p.CacheBudgetBytes())
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_cache_mib: [not a number\n"), 0o600))

	_, err := Load(path, nil)
	require.Error(t, err)
}
