// Package sweeper periodically removes expired refresh token records.
package sweeper

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// Cleaner deletes expired records and reports how many went.
type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

type Sweeper struct {
	cleaner  Cleaner
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger
}

func New(c Cleaner, interval time.Duration, l logging.Logger) *Sweeper {
	return &Sweeper{
		cleaner:  c,
		interval: interval,
		timeout:  time.Minute,
		logger:   l.With("module", "sweeper"),
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// A non-positive interval disables the sweeper and Run returns at once.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Warn(ctx, "Refresh token sweeper disabled", "interval", s.interval)
		return
	}

	s.logger.Info(ctx, "Starting refresh token sweeper", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping refresh token sweeper")
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.cleaner.Cleanup(ctx); err != nil {
		s.logger.Error(ctx, "refresh token sweep failed", "error", err)
	}
}
