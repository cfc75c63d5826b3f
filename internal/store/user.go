package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"webhooks.cc/backend/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userCols = `id, email, plan, request_limit, requests_used, period_start, period_end, cancel_at_period_end, subscription_status, billing_id`

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var periodStart, periodEnd sql.NullInt64
	var subscriptionStatus, billingID sql.NullString

	err := scanner.Scan(
		&u.ID, &u.Email, &u.Plan, &u.RequestLimit, &u.RequestsUsed,
		&periodStart, &periodEnd, &u.CancelAtPeriodEnd, &subscriptionStatus, &billingID,
	)
	if err != nil {
		return nil, err
	}

	if periodStart.Valid {
		u.PeriodStart = &periodStart.Int64
	}
	if periodEnd.Valid {
		u.PeriodEnd = &periodEnd.Int64
	}
	u.SubscriptionStatus = subscriptionStatus.String
	u.BillingID = billingID.String
	return &u, nil
}

func (s *UserStore) Create(email, plan string, requestLimit int64) (*model.User, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO users (id, email, plan, request_limit) VALUES (?, ?, ?, ?)`,
		id, email, plan, requestLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// IncrementUsage atomically advances requests_used. No cap is applied;
// capping is the receiver's job via its quota cache.
func (s *UserStore) IncrementUsage(id string, count int64) error {
	_, err := s.db.Exec(
		`UPDATE users SET requests_used = requests_used + ? WHERE id = ?`,
		count, id,
	)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// StartPeriod begins a fresh billing period and zeroes usage.
func (s *UserStore) StartPeriod(id string, start, end int64) error {
	_, err := s.db.Exec(
		`UPDATE users SET period_start = ?, period_end = ?, requests_used = 0 WHERE id = ?`,
		start, end, id,
	)
	if err != nil {
		return fmt.Errorf("start period: %w", err)
	}
	return nil
}

// Downgrade drops a user to the free plan: period cleared, usage
// zeroed, limit reset.
func (s *UserStore) Downgrade(id string, freeLimit int64) error {
	_, err := s.db.Exec(
		`UPDATE users SET plan = ?, request_limit = ?, requests_used = 0,
		 period_start = NULL, period_end = NULL, cancel_at_period_end = 0,
		 subscription_status = NULL
		 WHERE id = ?`,
		model.PlanFree, freeLimit, id,
	)
	if err != nil {
		return fmt.Errorf("downgrade user: %w", err)
	}
	return nil
}

// ListPeriodExpired returns up to limit pro users whose billing period
// has elapsed. Free users are excluded: their period rolls lazily on
// the next capture.
func (s *UserStore) ListPeriodExpired(now int64, limit int) ([]*model.User, error) {
	rows, err := s.db.Query(
		`SELECT `+userCols+` FROM users WHERE plan = ? AND period_end IS NOT NULL AND period_end < ? LIMIT ?`,
		model.PlanPro, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list period expired: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetPlan updates plan fields; used by tests and billing upgrades.
func (s *UserStore) SetPlan(id, plan string, requestLimit int64, cancelAtPeriodEnd bool) error {
	_, err := s.db.Exec(
		`UPDATE users SET plan = ?, request_limit = ?, cancel_at_period_end = ? WHERE id = ?`,
		plan, requestLimit, cancelAtPeriodEnd, id,
	)
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	return nil
}
