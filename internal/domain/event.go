package domain

import (
	"context"
	"time"
)

// Event is a time-boxed happening users register for. Its slots are
// partitioned into Pools; after MergeTime (if set) all pools behave as a
// single unified pool with event-wide capacity.
type Event struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	MergeTime     *time.Time `json:"merge_time"`
	PriceCents    int64      `json:"price_cents"`
	HeedPenalties bool       `json:"heed_penalties"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewEvent returns a new Event. ID is typically set by the repository on create.
func NewEvent(name string, start, end time.Time, priceCents int64, heedPenalties bool, createdAt time.Time) *Event {
	return &Event{
		Name:          name,
		StartTime:     start,
		EndTime:       end,
		PriceCents:    priceCents,
		HeedPenalties: heedPenalties,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

// Merged reports whether the event's pools have merged into one unified pool.
func (e *Event) Merged(now time.Time) bool {
	return e.MergeTime != nil && !now.Before(*e.MergeTime)
}

// RegistrationOpen reports whether registrations may still be mutated.
// The window closes when the event ends.
func (e *Event) RegistrationOpen(now time.Time) bool {
	return now.Before(e.EndTime)
}

// Priced reports whether admission requires payment.
func (e *Event) Priced() bool {
	return e.PriceCents > 0
}

// Pool is a capacity partition of an event, gated by an activation time and
// a set of eligible groups. Capacity 0 means unlimited. Counter must always
// equal the number of admitted registrations referencing the pool; the
// periodic audit raises a consistency error when it does not.
type Pool struct {
	ID             string    `json:"id"`
	EventID        string    `json:"event_id"`
	Name           string    `json:"name"`
	Capacity       int       `json:"capacity"`
	ActivationDate time.Time `json:"activation_date"`
	EligibleGroups []string  `json:"eligible_groups"`
	Counter        int       `json:"counter"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewPool returns a new Pool for the given event.
func NewPool(eventID, name string, capacity int, activation time.Time, groups []string, createdAt time.Time) *Pool {
	return &Pool{
		EventID:        eventID,
		Name:           name,
		Capacity:       capacity,
		ActivationDate: activation,
		EligibleGroups: groups,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

// Unlimited reports whether the pool has no capacity bound.
func (p *Pool) Unlimited() bool {
	return p.Capacity == 0
}

// Activated reports whether the pool's unadjusted activation time has passed.
func (p *Pool) Activated(now time.Time) bool {
	return !now.Before(p.ActivationDate)
}

// AdmitsGroup reports whether any of the given group ids is eligible for
// the pool.
func (p *Pool) AdmitsGroup(groupIDs []string) bool {
	for _, g := range groupIDs {
		for _, eg := range p.EligibleGroups {
			if g == eg {
				return true
			}
		}
	}
	return false
}

// EventRepository defines the interface for event storage.
type EventRepository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	ListOpenIDs(ctx context.Context, now time.Time) ([]string, error)
}

// PoolRepository defines the interface for pool storage. Capacity changes
// and creations feed the bump-on-pool-change path.
type PoolRepository interface {
	Create(ctx context.Context, pool *Pool) error
	GetByID(ctx context.Context, id string) (*Pool, error)
	ListByEventID(ctx context.Context, eventID string) ([]*Pool, error)
	UpdateCapacity(ctx context.Context, poolID string, capacity int) (*Pool, error)
	// Delete removes an empty pool. Pools holding registrations cannot be
	// deleted; ErrPoolNotEmpty is returned instead.
	Delete(ctx context.Context, poolID string) error
}
