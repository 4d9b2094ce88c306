package sync

import (
	"context"
	"errors"
	"time"
)

// Default sweep schedule.
const (
	DefaultSweepInterval = 30 * time.Second
	DefaultCacheMaxAge   = 60 * time.Second
)

// Sweeper periodically evicts old items from an engine's recent-item cache. The
// engine never schedules this itself; whoever owns the engine must run a Sweeper
// (or call Engine.Sweep on its own schedule) or the cache grows without bound.
type Sweeper struct {
	Engine   Engine
	Logger   Logger
	Interval time.Duration
	MaxAge   time.Duration
}

// Run sweeps every Interval until ctx is cancelled, then returns ctx.Err().
func (s *Sweeper) Run(ctx context.Context) error {
	if s.Engine == nil {
		return errors.New("sweeper requires an engine")
	}

	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	maxAge := s.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultCacheMaxAge
	}
	logger := s.Logger
	if logger == nil {
		logger = &noopLogger{}
	}

	logger.Debug("cache sweeper starting", "interval", interval, "max_age", maxAge)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.Engine.Sweep(maxAge); removed > 0 {
				logger.Debug("cache sweep", "removed", removed)
			}
		case <-ctx.Done():
			logger.Debug("cache sweeper stopping")
			return ctx.Err()
		}
	}
}
