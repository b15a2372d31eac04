// Package config loads and watches the viewer cache settings.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Settings holds the runtime configuration for the cache.
type Settings struct {
	// CacheDir is the directory holding the cache database.
	CacheDir string `mapstructure:"cache_dir"`

	// MaxCacheMiB is the cache byte budget, in mebibytes.
	MaxCacheMiB int64 `mapstructure:"max_cache_mib"`

	// FetchTimeout bounds a single upstream fetch.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`

	// SweepInterval is how often the background sweeper prunes.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// Compress enables zstd compression of cached content at rest.
	Compress bool `mapstructure:"compress"`

	// MetricsAddr is the optional listen address for the metrics endpoint.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Default returns the default settings.
func Default() Settings {
	return Settings{
		CacheDir:      ".",
		MaxCacheMiB:   512,
		FetchTimeout:  30 * time.Second,
		SweepInterval: 1 * time.Hour,
	}
}

// Provider loads settings from a file and keeps them current while the file
// changes, so budget updates take effect at the next prune pass.
type Provider struct {
	logger *slog.Logger

	mu      sync.RWMutex
	current Settings
}

// Load reads settings from path. An empty path searches for a "doc-cache"
// config file in the working directory; a missing file falls back to
// defaults. The returned provider watches the file for changes.
func Load(path string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	v := viper.New()
	defaults := Default()
	v.SetDefault("cache_dir", defaults.CacheDir)
	v.SetDefault("max_cache_mib", defaults.MaxCacheMiB)
	v.SetDefault("fetch_timeout", defaults.FetchTimeout)
	v.SetDefault("sweep_interval", defaults.SweepInterval)
	v.SetDefault("compress", defaults.Compress)
	v.SetDefault("metrics_addr", defaults.MetricsAddr)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("doc-cache")
		v.AddConfigPath(".")
	}

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			// No file anywhere, run on defaults.
			watch = false
		} else {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	p := &Provider{logger: logger}

	settings, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	p.current = settings

	if watch {
		v.OnConfigChange(func(_ fsnotify.Event) {
			updated, err := unmarshal(v)
			if err != nil {
				logger.Warn("ignoring config change", "error", err)
				return
			}
			p.mu.Lock()
			p.current = updated
			p.mu.Unlock()
			logger.Info("settings reloaded",
				"file", v.ConfigFileUsed(),
				"max_cache_mib", updated.MaxCacheMiB)
		})
		v.WatchConfig()
		logger.Debug("watching settings", "file", v.ConfigFileUsed())
	}

	return p, nil
}

func unmarshal(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	return s, nil
}

// Settings returns a copy of the current settings.
func (p *Provider) Settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// CacheBudgetBytes returns the configured budget converted to raw bytes.
func (p *Provider) CacheBudgetBytes() int64 {
	return p.Settings().MaxCacheMiB << 20
}
