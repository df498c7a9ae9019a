package access

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs Sweep on a fixed interval until its context is cancelled.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(engine *Engine, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{engine: engine, interval: interval, logger: logger}
}

// Run blocks until ctx is done. A non-positive interval disables sweeping.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.engine.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "sweep failed", "error", err)
			}
		}
	}
}
