// Package usage applies deferred usage increments. The capture path
// never touches the owner counter directly: it enqueues a command here
// after its insert commits, and a per-owner consumer applies the
// increment. Serializing per owner keeps concurrent bursts across an
// owner's endpoints from contending on one row.
package usage

import (
	"log/slog"
	"sync"
	"time"

	"webhooks.cc/backend/internal/model"
	"webhooks.cc/backend/internal/store"
)

const queueDepth = 1024

// Scheduler owns one consumer goroutine per active owner.
type Scheduler struct {
	mu       sync.Mutex
	queues   map[string]chan int64
	wg       sync.WaitGroup
	closed   bool
	users    *store.UserStore
	periodMS int64
	logger   *slog.Logger
}

func NewScheduler(users *store.UserStore, periodMS int64, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		queues:   make(map[string]chan int64),
		users:    users,
		periodMS: periodMS,
		logger:   logger,
	}
}

// Enqueue schedules incrementUsage(ownerID, count). It never blocks
// the caller: if the owner's queue is full the command is dropped and
// logged, bounding memory instead of the capture path's latency.
func (s *Scheduler) Enqueue(ownerID string, count int64) {
	if count <= 0 {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("usage increment after shutdown dropped", "owner", ownerID, "count", count)
		return
	}
	q, ok := s.queues[ownerID]
	if !ok {
		q = make(chan int64, queueDepth)
		s.queues[ownerID] = q
		s.wg.Add(1)
		go s.consume(ownerID, q)
	}
	s.mu.Unlock()

	select {
	case q <- count:
	default:
		s.logger.Warn("usage queue full, increment dropped", "owner", ownerID, "count", count)
	}
}

func (s *Scheduler) consume(ownerID string, q <-chan int64) {
	defer s.wg.Done()
	for count := range q {
		s.apply(ownerID, count)
	}
}

// apply performs the read-modify-write for one command, rolling a
// fresh period first for owners with no active one (lazy activation
// for the free plan and first-ever captures).
func (s *Scheduler) apply(ownerID string, count int64) {
	u, err := s.users.GetByID(ownerID)
	if err != nil {
		s.logger.Error("usage increment: load owner", "owner", ownerID, "error", err)
		return
	}
	if u == nil {
		s.logger.Warn("usage increment for unknown owner", "owner", ownerID)
		return
	}

	now := time.Now().UnixMilli()
	needsPeriod := u.PeriodStart == nil ||
		(u.Plan == model.PlanFree && u.PeriodEnd != nil && *u.PeriodEnd < now)
	if needsPeriod {
		if err := s.users.StartPeriod(ownerID, now, now+s.periodMS); err != nil {
			s.logger.Error("usage increment: start period", "owner", ownerID, "error", err)
			return
		}
	}

	if err := s.users.IncrementUsage(ownerID, count); err != nil {
		s.logger.Error("usage increment failed", "owner", ownerID, "count", count, "error", err)
	}
}

// Close stops accepting commands, drains every queue, and waits for
// the consumers to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, q := range s.queues {
		close(q)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
