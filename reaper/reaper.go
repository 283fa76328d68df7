package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-service/ledger"
)

// Reaper periodically deletes expired refresh-token and session mirror rows
// from the ledger. It never touches the ephemeral store; TTLs handle that
// store's own expiry. Failures are logged and left for the next run.
type Reaper struct {
	ledger   ledger.Repo
	interval time.Duration
	nowTime  func() time.Time
}

type ReaperOption func(*Reaper)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ReaperOption {
	return func(r *Reaper) {
		r.nowTime = nowFunc
	}
}

func New(repo ledger.Repo, interval time.Duration, options ...ReaperOption) *Reaper {
	r := &Reaper{
		ledger:   repo,
		interval: interval,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Run sweeps immediately and then on every interval tick until ctx is
// cancelled. It is independent of request traffic and never blocks it.
func (r *Reaper) Run(ctx context.Context) {
	log.Info().Dur("interval", r.interval).Msg("reaper started")

	r.CleanupExpired(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reaper stopped")
			return
		case <-ticker.C:
			r.CleanupExpired(ctx)
		}
	}
}

// CleanupExpired deletes durable rows whose expiry has passed. Each of the
// two sweeps fails independently; a failure is logged, not retried, since
// the next scheduled run catches the backlog.
func (r *Reaper) CleanupExpired(ctx context.Context) {
	now := r.nowTime()

	tokens, err := r.ledger.DeleteExpiredBefore(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("expired token sweep failed")
	}

	records, err := r.ledger.DeleteExpiredSessionsBefore(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("expired session sweep failed")
	}

	if tokens > 0 || records > 0 {
		log.Info().
			Int64("tokens", tokens).
			Int64("sessions", records).
			Msg("reaper sweep complete")
	}
}
