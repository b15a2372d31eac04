package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SweeperConfig holds background prune configuration.
type SweeperConfig struct {
	// CheckInterval is how often to run a prune pass. Default is 1 hour.
	CheckInterval time.Duration

	// Logger for sweep events.
	Logger *slog.Logger
}

// Sweeper runs periodic prune passes so the byte budget is enforced even
// when no writes are happening, for example after the budget is lowered at
// runtime.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSweeper creates a sweeper for the given engine.
func NewSweeper(engine *Engine, cfg SweeperConfig) *Sweeper {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 1 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Sweeper{
		engine:   engine,
		interval: cfg.CheckInterval,
		logger:   cfg.Logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins background prune passes. Calling Start on a running or
// stopped sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop stops background prune passes and waits for the current pass to
// finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
}

// RunOnce performs a single prune pass immediately.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	return s.engine.Prune(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	s.logger.Debug("sweeper starting", "check_interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.engine.Prune(ctx); err != nil {
		s.logger.Error("prune pass failed", "error", err)
	}
}
