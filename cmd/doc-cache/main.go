// Command doc-cache manages the local document viewer cache.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"
	"github.com/wolfeidau/doc-cache/cache"
	"github.com/wolfeidau/doc-cache/config"
	"github.com/wolfeidau/doc-cache/fetch"
	"github.com/wolfeidau/doc-cache/telemetry"
)

var version = "dev"

// CLI is the kong command tree.
type CLI struct {
	Config   string `help:"Path to the settings file." short:"c" type:"path"`
	LogLevel string `help:"Log level." default:"info" enum:"debug,info,warn,error"`

	Preload PreloadCmd `cmd:"" help:"Fetch a document into the cache."`
	Get     GetCmd     `cmd:"" help:"Write cached document bytes to stdout."`
	Prune   PruneCmd   `cmd:"" help:"Run a single eviction pass."`
	Stats   StatsCmd   `cmd:"" help:"Show cache statistics."`
	Sweep   SweepCmd   `cmd:"" help:"Run the background sweeper until interrupted."`

	Version kong.VersionFlag `help:"Show version."`
}

// App carries the constructed dependencies into command Run methods.
type App struct {
	ctx      context.Context
	logger   *slog.Logger
	engine   *cache.Engine
	provider *config.Provider
	tel      *telemetry.Telemetry
}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("doc-cache"),
		kong.Description("Local byte cache for the document viewer."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	app, cleanup, err := newApp(&cli)
	kctx.FatalIfErrorf(err)
	defer cleanup()

	kctx.FatalIfErrorf(kctx.Run(app))
}

func newApp(cli *CLI) (*App, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cli.LogLevel)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
	slog.SetDefault(logger)

	provider, err := config.Load(cli.Config, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}
	settings := provider.Settings()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	tel, err := telemetry.New(telemetry.Config{
		ServiceName:      "doc-cache",
		ServiceVersion:   version,
		EnablePrometheus: settings.MetricsAddr != "",
	})
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("setting up telemetry: %w", err)
	}

	source := fetch.NewHTTPSource(fetch.WithTimeout(settings.FetchTimeout))

	engine := cache.New(
		filepath.Join(settings.CacheDir, "doc-cache.db"),
		source,
		provider,
		cache.WithLogger(logger),
		cache.WithCompression(settings.Compress),
		cache.WithMetrics(tel.Meter()),
	)
	if err := engine.Initialize(ctx); err != nil {
		stop()
		return nil, nil, fmt.Errorf("initializing cache: %w", err)
	}

	app := &App{
		ctx:      ctx,
		logger:   logger,
		engine:   engine,
		provider: provider,
		tel:      tel,
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
		_ = engine.Close()
		stop()
	}
	return app, cleanup, nil
}

// PreloadCmd fetches a document into the cache if it is not already there.
type PreloadCmd struct {
	URL string `arg:"" help:"Document URL to cache."`
}

func (c *PreloadCmd) Run(app *App) error {
	if err := app.engine.Preload(app.ctx, c.URL); err != nil {
		return err
	}
	app.logger.Info("preloaded", "url", c.URL)
	return nil
}

// GetCmd writes cached bytes to stdout.
type GetCmd struct {
	URL string `arg:"" help:"Document URL to read."`
}

func (c *GetCmd) Run(app *App) error {
	data := app.engine.GetCache(app.ctx, c.URL)
	if data == nil {
		return fmt.Errorf("not cached: %s", c.URL)
	}
	_, err := os.Stdout.Write(data)
	return err
}

// PruneCmd runs one eviction pass.
type PruneCmd struct{}

func (c *PruneCmd) Run(app *App) error {
	if err := app.engine.Prune(app.ctx); err != nil {
		return err
	}
	return printStats(app)
}

// StatsCmd prints aggregate cache statistics.
type StatsCmd struct{}

func (c *StatsCmd) Run(app *App) error {
	return printStats(app)
}

func printStats(app *App) error {
	stats, err := app.engine.Stats(app.ctx)
	if err != nil {
		return err
	}

	fmt.Printf("entries:       %d\n", stats.Entries)
	fmt.Printf("total bytes:   %d\n", stats.TotalBytes)
	fmt.Printf("byte budget:   %d\n", app.provider.CacheBudgetBytes())
	if !stats.OldestAccess.IsZero() {
		fmt.Printf("oldest access: %s\n", stats.OldestAccess.Format(time.RFC3339))
		fmt.Printf("newest access: %s\n", stats.NewestAccess.Format(time.RFC3339))
	}
	return nil
}

// SweepCmd runs periodic prune passes until interrupted, optionally serving
// metrics.
type SweepCmd struct{}

func (c *SweepCmd) Run(app *App) error {
	settings := app.provider.Settings()

	sweeper := cache.NewSweeper(app.engine, cache.SweeperConfig{
		CheckInterval: settings.SweepInterval,
		Logger:        app.logger,
	})
	sweeper.Start(app.ctx)
	defer sweeper.Stop()

	var srv *http.Server
	if settings.MetricsAddr != "" && app.tel.Handler() != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", app.tel.Handler())
		srv = &http.Server{
			Addr:              settings.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			app.logger.Info("metrics listening", "addr", settings.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	app.logger.Info("sweeper running", "check_interval", settings.SweepInterval)
	<-app.ctx.Done()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return nil
}
