package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Satya1612t/ela/internal/core/port"
)

const defaultSweepInterval = time.Hour

// TokenSweeper periodically purges expired refresh token records.
type TokenSweeper struct {
	tokens   port.RefreshTokenStore
	interval time.Duration
	logger   *zap.Logger
}

// NewTokenSweeper constructs a sweeper; a non-positive interval falls back to one hour.
func NewTokenSweeper(tokens port.RefreshTokenStore, interval time.Duration, log *zap.Logger) *TokenSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenSweeper{tokens: tokens, interval: interval, logger: log}
}

// Sweep runs one purge pass and returns the number of removed records.
func (s *TokenSweeper) Sweep(ctx context.Context) (int64, error) {
	removed, err := s.tokens.PurgeExpired(ctx)
	if err != nil {
		s.logger.Warn("refresh token sweep failed", zap.Error(err))
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("expired refresh tokens purged", zap.Int64("removed", removed))
	}
	return removed, nil
}

// Run sweeps once immediately and then on every interval until ctx is cancelled.
func (s *TokenSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		_, _ = s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
