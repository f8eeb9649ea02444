package repository

import (
	"context"
	"errors"
	"fraudguard/internal/domain"
	"time"
)

// ProfileStore persists per-user behavior profiles. Fetch returns
// ErrNotFound for a user without history; callers fall back to a zero
// profile rather than failing the transaction.
type ProfileStore interface {
	Fetch(ctx context.Context, userID string) (*domain.UserBehaviorProfile, error)
	Commit(ctx context.Context, userID string, profile *domain.UserBehaviorProfile) error
}

// RecentTransactionLookup answers velocity questions over a trailing
// window. CountSince counts transactions recorded for the user with
// timestamps at or after since; Record appends one observation.
type RecentTransactionLookup interface {
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
	Record(ctx context.Context, userID string, timestamp time.Time) error
}

// AlertStore persists fraud alerts. Store rejects a second alert for the
// same transaction with ErrDuplicate.
type AlertStore interface {
	Store(ctx context.Context, alert *domain.FraudAlert) error
	GetByID(ctx context.Context, id string) (*domain.FraudAlert, error)
	GetByUserID(ctx context.Context, userID string, limit int) ([]*domain.FraudAlert, error)
	GetByStatus(ctx context.Context, status domain.AlertStatus) ([]*domain.FraudAlert, error)
	UpdateStatus(ctx context.Context, id string, status domain.AlertStatus) error
}

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("duplicate entry")
	ErrUnavailable = errors.New("store unavailable")
)
