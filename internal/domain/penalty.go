package domain

import (
	"context"
	"time"
)

// Penalty is an accumulated mark against a user that delays their effective
// pool activation time. Penalties expire after a fixed duration; freeze
// windows (configured calendar ranges) do not count toward the countdown.
type Penalty struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Weight    int       `json:"weight"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPenalty returns a new Penalty. ID is typically set by the repository on create.
func NewPenalty(userID string, weight int, reason string, createdAt time.Time) *Penalty {
	return &Penalty{
		UserID:    userID,
		Weight:    weight,
		Reason:    reason,
		CreatedAt: createdAt,
	}
}

// FreezeWindow is a calendar range excluded from penalty countdowns.
type FreezeWindow struct {
	Start time.Time
	End   time.Time
}

// PenaltyRepository defines storage operations for penalties. Expiry is
// computed by the penalty clock, not in storage, so freeze windows stay in
// one place.
type PenaltyRepository interface {
	Create(ctx context.Context, p *Penalty) error
	ListByUserID(ctx context.Context, userID string) ([]*Penalty, error)
}
