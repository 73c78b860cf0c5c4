package domain

import (
	"strings"
	"time"
)

// AccountID is the tenant the customer records belong to.
const AccountID = "cultpass"

type User struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	IsBlocked bool      `json:"is_blocked"`
	CreatedAt time.Time `json:"created_at"`
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type Subscription struct {
	SubscriptionID string             `json:"subscription_id"`
	UserID         string             `json:"user_id"`
	Status         SubscriptionStatus `json:"status"`
	Tier           string             `json:"tier"`
	MonthlyQuota   int                `json:"monthly_quota"`
	StartedAt      time.Time          `json:"started_at"`
	EndedAt        *time.Time         `json:"ended_at,omitempty"`
}

// SubscriptionAction is a requested subscription state change.
type SubscriptionAction string

const (
	ActionPause  SubscriptionAction = "pause"
	ActionCancel SubscriptionAction = "cancel"
)

func ParseSubscriptionAction(s string) (SubscriptionAction, error) {
	switch a := SubscriptionAction(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionPause, ActionCancel:
		return a, nil
	}
	return "", ErrInvalidAction
}

// Target is the subscription status the action moves to.
func (a SubscriptionAction) Target() SubscriptionStatus {
	if a == ActionPause {
		return SubscriptionPaused
	}
	return SubscriptionCancelled
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationRefunded  ReservationStatus = "refunded"
)

type Reservation struct {
	ReservationID   string            `json:"reservation_id"`
	UserID          string            `json:"user_id"`
	ExperienceID    string            `json:"experience_id"`
	ExperienceTitle string            `json:"experience_title"`
	Status          ReservationStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Active reports whether the reservation still holds a spot.
func (r Reservation) Active() bool {
	return r.Status == ReservationReserved
}

type Experience struct {
	ExperienceID string `json:"experience_id"`
	Title        string `json:"title"`
}

// Refund is the outcome of a processed refund.
type Refund struct {
	ReservationID string `json:"reservation_id"`
	RefundID      string `json:"refund_id"`
	Reason        string `json:"reason"`
}
