package jobs

import (
	"context"
	"log/slog"
	"time"

	"webhooks.cc/backend/internal/store"
)

const (
	periodResetInterval  = 5 * time.Minute
	periodResetBatchSize = 100
)

// PeriodReset rolls elapsed billing periods for pro users. Users who
// cancelled are downgraded to the free plan instead; free users never
// appear here because their periods roll lazily on capture.
type PeriodReset struct {
	users     *store.UserStore
	periodMS  int64
	freeLimit int64
	logger    *slog.Logger
}

func NewPeriodReset(users *store.UserStore, periodMS, freeLimit int64, logger *slog.Logger) *PeriodReset {
	return &PeriodReset{users: users, periodMS: periodMS, freeLimit: freeLimit, logger: logger}
}

func (p *PeriodReset) RunForever(ctx context.Context) {
	ticker := time.NewTicker(periodResetInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.logger.Error("period reset pass failed", "error", err)
			}
		}
	}
}

func (p *PeriodReset) RunOnce(ctx context.Context) error {
	now := time.Now().UnixMilli()
	users, err := p.users.ListPeriodExpired(now, periodResetBatchSize)
	if err != nil {
		return err
	}

	for _, u := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if u.CancelAtPeriodEnd {
			if err := p.users.Downgrade(u.ID, p.freeLimit); err != nil {
				p.logger.Error("period reset: downgrade", "user", u.ID, "error", err)
				continue
			}
			p.logger.Info("period reset: downgraded cancelled user", "user", u.ID)
			continue
		}

		// Roll forward from the old boundary, not from now, so periods
		// stay anchored. A user idle for several periods catches up in
		// one step.
		newStart := *u.PeriodEnd
		newEnd := newStart + p.periodMS
		for newEnd <= now {
			newStart = newEnd
			newEnd += p.periodMS
		}
		if err := p.users.StartPeriod(u.ID, newStart, newEnd); err != nil {
			p.logger.Error("period reset: start period", "user", u.ID, "error", err)
			continue
		}
		p.logger.Info("period reset: rolled period", "user", u.ID, "periodEnd", newEnd)
	}
	return nil
}
