package jobs

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"webhooks.cc/backend/internal/database"
	"webhooks.cc/backend/internal/model"
	"webhooks.cc/backend/internal/store"
	"webhooks.cc/backend/internal/wire"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func insertRequests(t *testing.T, requests *store.RequestStore, endpointID string, n int) {
	t.Helper()
	batch := make([]wire.BufferedRequest, n)
	for i := range batch {
		batch[i] = wire.BufferedRequest{
			Method:      "GET",
			Path:        "/",
			Headers:     map[string]string{},
			QueryParams: map[string]string{},
			ReceivedAt:  time.Now().UnixMilli(),
		}
	}
	if _, err := requests.InsertBatch(endpointID, batch); err != nil {
		t.Fatalf("insert requests: %v", err)
	}
}

func TestCleaner_RemovesExpiredEndpoint(t *testing.T) {
	db := testDB(t)
	endpoints := store.NewEndpointStore(db)
	requests := store.NewRequestStore(db)

	past := time.Now().Add(-time.Hour).UnixMilli()
	ep, err := endpoints.Create(&model.Endpoint{Slug: "stale-hook", IsEphemeral: true, ExpiresAt: &past})
	if err != nil {
		t.Fatal(err)
	}
	insertRequests(t, requests, ep.ID, 3)

	c := NewCleaner(endpoints, requests, discardLogger())
	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, err := endpoints.GetBySlug("stale-hook")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("expired endpoint should be gone after cleanup")
	}
	count, err := requests.CountByEndpoint(ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected all requests removed, got %d", count)
	}
}

func TestCleaner_PartialDrainKeepsEndpoint(t *testing.T) {
	db := testDB(t)
	endpoints := store.NewEndpointStore(db)
	requests := store.NewRequestStore(db)

	past := time.Now().Add(-time.Hour).UnixMilli()
	ep, err := endpoints.Create(&model.Endpoint{Slug: "deep-backlog", IsEphemeral: true, ExpiresAt: &past})
	if err != nil {
		t.Fatal(err)
	}
	// More rows than one pass deletes.
	insertRequests(t, requests, ep.ID, cleanupBatchSize+20)

	c := NewCleaner(endpoints, requests, discardLogger())

	// First pass deletes a full batch and must keep the endpoint.
	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	got, err := endpoints.GetBySlug("deep-backlog")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("endpoint with remaining backlog must survive the pass")
	}
	count, err := requests.CountByEndpoint(ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 20 {
		t.Errorf("expected 20 rows after first pass, got %d", count)
	}

	// Second pass drains the rest and removes the endpoint.
	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	got, err = endpoints.GetBySlug("deep-backlog")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("drained endpoint should be removed on the second pass")
	}
}

func TestCleaner_LeavesLiveEndpoints(t *testing.T) {
	db := testDB(t)
	endpoints := store.NewEndpointStore(db)
	requests := store.NewRequestStore(db)

	future := time.Now().Add(time.Hour).UnixMilli()
	if _, err := endpoints.Create(&model.Endpoint{Slug: "live-hook", IsEphemeral: true, ExpiresAt: &future}); err != nil {
		t.Fatal(err)
	}
	if _, err := endpoints.Create(&model.Endpoint{Slug: "permanent-hook"}); err != nil {
		t.Fatal(err)
	}

	c := NewCleaner(endpoints, requests, discardLogger())
	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	for _, slug := range []string{"live-hook", "permanent-hook"} {
		got, err := endpoints.GetBySlug(slug)
		if err != nil {
			t.Fatal(err)
		}
		if got == nil {
			t.Errorf("endpoint %s should not be cleaned up", slug)
		}
	}
}

func TestPeriodReset_RollsElapsedProPeriod(t *testing.T) {
	users := store.NewUserStore(testDB(t))
	periodMS := int64(30 * 24 * 60 * 60 * 1000)
	now := time.Now().UnixMilli()

	u, err := users.Create("pro@example.com", model.PlanPro, 500000)
	if err != nil {
		t.Fatal(err)
	}
	oldEnd := now - 1000
	if err := users.StartPeriod(u.ID, oldEnd-periodMS, oldEnd); err != nil {
		t.Fatal(err)
	}
	if err := users.IncrementUsage(u.ID, 1234); err != nil {
		t.Fatal(err)
	}

	p := NewPeriodReset(users, periodMS, 500, discardLogger())
	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, err := users.GetByID(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RequestsUsed != 0 {
		t.Errorf("expected zeroed usage, got %d", got.RequestsUsed)
	}
	if got.PeriodStart == nil || *got.PeriodStart != oldEnd {
		t.Errorf("new period must start at the old boundary, got %v", got.PeriodStart)
	}
	if got.PeriodEnd == nil || *got.PeriodEnd != oldEnd+periodMS {
		t.Errorf("expected periodEnd=%d, got %v", oldEnd+periodMS, got.PeriodEnd)
	}
}

func TestPeriodReset_CatchesUpIdleUser(t *testing.T) {
	users := store.NewUserStore(testDB(t))
	periodMS := int64(1000 * 60) // short period to force catch-up
	now := time.Now().UnixMilli()

	u, err := users.Create("idle@example.com", model.PlanPro, 500000)
	if err != nil {
		t.Fatal(err)
	}
	// Period ended five periods ago.
	oldEnd := now - 5*periodMS
	if err := users.StartPeriod(u.ID, oldEnd-periodMS, oldEnd); err != nil {
		t.Fatal(err)
	}

	p := NewPeriodReset(users, periodMS, 500, discardLogger())
	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, err := users.GetByID(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PeriodEnd == nil || *got.PeriodEnd <= now {
		t.Errorf("expected catch-up to a future boundary, got %v", got.PeriodEnd)
	}
	// Boundaries stay anchored to the original schedule.
	if (*got.PeriodEnd-oldEnd)%periodMS != 0 {
		t.Errorf("periodEnd %d not aligned to schedule from %d", *got.PeriodEnd, oldEnd)
	}
}

func TestPeriodReset_DowngradesCancelledUser(t *testing.T) {
	users := store.NewUserStore(testDB(t))
	periodMS := int64(30 * 24 * 60 * 60 * 1000)
	now := time.Now().UnixMilli()

	u, err := users.Create("cancel@example.com", model.PlanPro, 500000)
	if err != nil {
		t.Fatal(err)
	}
	if err := users.StartPeriod(u.ID, now-periodMS, now-1000); err != nil {
		t.Fatal(err)
	}
	if err := users.SetPlan(u.ID, model.PlanPro, 500000, true); err != nil {
		t.Fatal(err)
	}

	p := NewPeriodReset(users, periodMS, 500, discardLogger())
	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, err := users.GetByID(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Plan != model.PlanFree {
		t.Errorf("expected downgrade to free, got %s", got.Plan)
	}
	if got.RequestLimit != 500 {
		t.Errorf("expected free limit 500, got %d", got.RequestLimit)
	}
	if got.PeriodEnd != nil {
		t.Errorf("expected cleared period, got %v", got.PeriodEnd)
	}
}

func TestPeriodReset_IgnoresActivePeriods(t *testing.T) {
	users := store.NewUserStore(testDB(t))
	periodMS := int64(30 * 24 * 60 * 60 * 1000)
	now := time.Now().UnixMilli()

	u, err := users.Create("active@example.com", model.PlanPro, 500000)
	if err != nil {
		t.Fatal(err)
	}
	futureEnd := now + periodMS
	if err := users.StartPeriod(u.ID, now, futureEnd); err != nil {
		t.Fatal(err)
	}
	if err := users.IncrementUsage(u.ID, 7); err != nil {
		t.Fatal(err)
	}

	p := NewPeriodReset(users, periodMS, 500, discardLogger())
	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, err := users.GetByID(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RequestsUsed != 7 || got.PeriodEnd == nil || *got.PeriodEnd != futureEnd {
		t.Errorf("active period must be untouched, got %+v", got)
	}
}
