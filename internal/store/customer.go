package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"support-router/internal/domain"
)

const customerSchema = `
CREATE TABLE IF NOT EXISTS users (
	user_id    TEXT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	full_name  TEXT NOT NULL DEFAULT '',
	is_blocked BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
	subscription_id TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL REFERENCES users(user_id),
	status          TEXT NOT NULL,
	tier            TEXT NOT NULL DEFAULT '',
	monthly_quota   INTEGER NOT NULL DEFAULT 0,
	started_at      DATETIME NOT NULL,
	ended_at        DATETIME
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id);

CREATE TABLE IF NOT EXISTS experiences (
	experience_id TEXT PRIMARY KEY,
	title         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reservations (
	reservation_id TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL REFERENCES users(user_id),
	experience_id  TEXT NOT NULL,
	status         TEXT NOT NULL,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reservations_user ON reservations(user_id);

CREATE TABLE IF NOT EXISTS refunds (
	refund_id      TEXT PRIMARY KEY,
	reservation_id TEXT NOT NULL UNIQUE,
	reason         TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL
);
`

// CustomerStore is the SQLite-backed customer domain store.
type CustomerStore struct {
	db *sql.DB
}

// OpenCustomerStore opens (and creates if needed) the customer database.
func OpenCustomerStore(path string) (*CustomerStore, error) {
	db, err := openDB(path, customerSchema)
	if err != nil {
		return nil, fmt.Errorf("store: open customer db %s: %w", path, err)
	}
	return &CustomerStore{db: db}, nil
}

func (s *CustomerStore) Close() error {
	return s.db.Close()
}

const reservationColumns = `r.reservation_id, r.user_id, r.experience_id, COALESCE(e.title, 'Unknown'), r.status, r.created_at, r.updated_at`

// UserByEmail looks a user up by email, case-insensitively.
func (s *CustomerStore) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.User{}, fmt.Errorf("store: UserByEmail: %w: email is required", domain.ErrInvalidArgument)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, email, full_name, is_blocked, created_at FROM users WHERE lower(email) = ?`, email)
	return scanUser(row, "UserByEmail")
}

func (s *CustomerStore) User(ctx context.Context, userID string) (domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, email, full_name, is_blocked, created_at FROM users WHERE user_id = ?`, userID)
	return scanUser(row, "User")
}

func scanUser(row *sql.Row, op string) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.UserID, &u.Email, &u.FullName, &u.IsBlocked, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("store: %s: user %w", op, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, persistErr(op, err)
	}
	return u, nil
}

// SubscriptionByUser returns the user's most recent subscription.
func (s *CustomerStore) SubscriptionByUser(ctx context.Context, userID string) (domain.Subscription, error) {
	return subscriptionByUser(ctx, s.db, userID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func subscriptionByUser(ctx context.Context, q querier, userID string) (domain.Subscription, error) {
	var (
		sub   domain.Subscription
		ended sql.NullTime
	)
	err := q.QueryRowContext(ctx,
		`SELECT subscription_id, user_id, status, tier, monthly_quota, started_at, ended_at
		 FROM subscriptions WHERE user_id = ? ORDER BY started_at DESC LIMIT 1`, userID,
	).Scan(&sub.SubscriptionID, &sub.UserID, &sub.Status, &sub.Tier, &sub.MonthlyQuota, &sub.StartedAt, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Subscription{}, fmt.Errorf("store: SubscriptionByUser: subscription %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Subscription{}, persistErr("SubscriptionByUser", err)
	}
	if ended.Valid {
		t := ended.Time
		sub.EndedAt = &t
	}
	return sub, nil
}

// ReservationsByUser lists a user's reservations, newest first. The list may
// be empty.
func (s *CustomerStore) ReservationsByUser(ctx context.Context, userID string) ([]domain.Reservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations r LEFT JOIN experiences e ON e.experience_id = r.experience_id
		 WHERE r.user_id = ? ORDER BY r.created_at DESC, r.reservation_id`, userID)
	if err != nil {
		return nil, persistErr("ReservationsByUser", err)
	}
	defer rows.Close()

	out := []domain.Reservation{}
	for rows.Next() {
		var r domain.Reservation
		if err := rows.Scan(&r.ReservationID, &r.UserID, &r.ExperienceID, &r.ExperienceTitle, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, persistErr("ReservationsByUser", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("ReservationsByUser", err)
	}
	return out, nil
}

func (s *CustomerStore) Reservation(ctx context.Context, reservationID string) (domain.Reservation, error) {
	return reservationByID(ctx, s.db, reservationID)
}

func reservationByID(ctx context.Context, q querier, reservationID string) (domain.Reservation, error) {
	var r domain.Reservation
	err := q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations r LEFT JOIN experiences e ON e.experience_id = r.experience_id
		 WHERE r.reservation_id = ?`, reservationID,
	).Scan(&r.ReservationID, &r.UserID, &r.ExperienceID, &r.ExperienceTitle, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reservation{}, fmt.Errorf("store: reservation %q %w", reservationID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Reservation{}, persistErr("Reservation", err)
	}
	return r, nil
}

// CancelReservation moves a reserved reservation to cancelled. A reservation
// that is already cancelled fails with ErrAlreadyCancelled; a refunded one
// fails with ErrInvalidState.
func (s *CustomerStore) CancelReservation(ctx context.Context, reservationID string) (domain.Reservation, error) {
	var out domain.Reservation
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := reservationByID(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		switch res.Status {
		case domain.ReservationCancelled:
			return fmt.Errorf("store: reservation %q %w", reservationID, domain.ErrAlreadyCancelled)
		case domain.ReservationRefunded:
			return fmt.Errorf("store: reservation %q is refunded: %w", reservationID, domain.ErrInvalidState)
		}

		ts := now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE reservations SET status = ?, updated_at = ? WHERE reservation_id = ?`,
			domain.ReservationCancelled, ts, reservationID); err != nil {
			return persistErr("CancelReservation", err)
		}
		res.Status = domain.ReservationCancelled
		res.UpdatedAt = ts
		out = res
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return out, nil
}

// RefundReservation refunds a cancelled reservation and records a refund
// reference. Any other status fails with ErrInvalidState.
func (s *CustomerStore) RefundReservation(ctx context.Context, reservationID, reason string) (domain.Refund, error) {
	var out domain.Refund
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := reservationByID(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if res.Status != domain.ReservationCancelled {
			return fmt.Errorf("store: reservation %q must be cancelled before refund, status is %s: %w",
				reservationID, res.Status, domain.ErrInvalidState)
		}

		ts := now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE reservations SET status = ?, updated_at = ? WHERE reservation_id = ?`,
			domain.ReservationRefunded, ts, reservationID); err != nil {
			return persistErr("RefundReservation", err)
		}
		refundID := newRefundID()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO refunds (refund_id, reservation_id, reason, created_at) VALUES (?, ?, ?, ?)`,
			refundID, reservationID, reason, ts); err != nil {
			return persistErr("RefundReservation", err)
		}
		out = domain.Refund{ReservationID: reservationID, RefundID: refundID, Reason: reason}
		return nil
	})
	if err != nil {
		return domain.Refund{}, err
	}
	return out, nil
}

func newRefundID() string {
	return "REF-" + strings.ToUpper(newID()[:8])
}

// UpdateSubscriptionStatus applies a pause or cancel to the user's current
// subscription. The action is validated before the store is touched. A
// cancelled subscription is terminal: pausing it fails with ErrInvalidState.
func (s *CustomerStore) UpdateSubscriptionStatus(ctx context.Context, userID string, action domain.SubscriptionAction) (domain.Subscription, error) {
	if _, err := domain.ParseSubscriptionAction(string(action)); err != nil {
		return domain.Subscription{}, fmt.Errorf("store: UpdateSubscriptionStatus %q: %w", action, err)
	}
	target := action.Target()

	var out domain.Subscription
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		sub, err := subscriptionByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if sub.Status == target {
			return fmt.Errorf("store: subscription is %s: %w", target, domain.ErrAlreadyInState)
		}
		if sub.Status == domain.SubscriptionCancelled {
			return fmt.Errorf("store: cannot %s a cancelled subscription: %w", action, domain.ErrInvalidState)
		}

		var ended *time.Time
		if action == domain.ActionCancel {
			ts := now()
			ended = &ts
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE subscriptions SET status = ?, ended_at = ? WHERE subscription_id = ?`,
			target, ended, sub.SubscriptionID); err != nil {
			return persistErr("UpdateSubscriptionStatus", err)
		}
		sub.Status = target
		sub.EndedAt = ended
		out = sub
		return nil
	})
	if err != nil {
		return domain.Subscription{}, err
	}
	return out, nil
}

func (s *CustomerStore) InsertUser(ctx context.Context, u domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, email, full_name, is_blocked, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET email = excluded.email, full_name = excluded.full_name, is_blocked = excluded.is_blocked`,
		u.UserID, strings.ToLower(u.Email), u.FullName, u.IsBlocked, u.CreatedAt)
	if err != nil {
		return persistErr("InsertUser", err)
	}
	return nil
}

func (s *CustomerStore) InsertSubscription(ctx context.Context, sub domain.Subscription) error {
	if sub.StartedAt.IsZero() {
		sub.StartedAt = now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (subscription_id, user_id, status, tier, monthly_quota, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(subscription_id) DO UPDATE SET status = excluded.status, tier = excluded.tier,
		   monthly_quota = excluded.monthly_quota, ended_at = excluded.ended_at`,
		sub.SubscriptionID, sub.UserID, sub.Status, sub.Tier, sub.MonthlyQuota, sub.StartedAt, sub.EndedAt)
	if err != nil {
		return persistErr("InsertSubscription", err)
	}
	return nil
}

func (s *CustomerStore) InsertExperience(ctx context.Context, e domain.Experience) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiences (experience_id, title) VALUES (?, ?)
		 ON CONFLICT(experience_id) DO UPDATE SET title = excluded.title`,
		e.ExperienceID, e.Title)
	if err != nil {
		return persistErr("InsertExperience", err)
	}
	return nil
}

func (s *CustomerStore) InsertReservation(ctx context.Context, r domain.Reservation) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reservations (reservation_id, user_id, experience_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(reservation_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		r.ReservationID, r.UserID, r.ExperienceID, r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return persistErr("InsertReservation", err)
	}
	return nil
}
