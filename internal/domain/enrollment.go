package domain

import (
	"context"
	"sort"
	"time"
)

// EventState is the aggregate the registration engine operates on: the
// event, its pools, and every registration row (active or not), loaded under
// an exclusive per-event lock. Mutations issued through the EnrollmentTx
// also update the in-memory state so later steps of the same transaction
// (bump after unregister, rebalance after bump) observe them.
type EventState struct {
	Event         *Event
	Pools         []*Pool
	Registrations []*Registration
}

// Unified reports whether placement should treat all pools as one pool:
// after the merge instant, or when the event has exactly one pool.
func (s *EventState) Unified(now time.Time) bool {
	return s.Event.Merged(now) || len(s.Pools) == 1
}

// PoolByID returns the pool with the given id, or nil.
func (s *EventState) PoolByID(id string) *Pool {
	for _, p := range s.Pools {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ByUser returns the registration row for the user, active or not, or nil.
func (s *EventState) ByUser(userID string) *Registration {
	for _, r := range s.Registrations {
		if r.UserID == userID {
			return r
		}
	}
	return nil
}

// AdmittedCount returns the number of admitted registrations bound to the pool.
func (s *EventState) AdmittedCount(poolID string) int {
	n := 0
	for _, r := range s.Registrations {
		if r.Admitted() && *r.PoolID == poolID {
			n++
		}
	}
	return n
}

// AdmittedTotal returns the number of admitted registrations across all pools.
func (s *EventState) AdmittedTotal() int {
	n := 0
	for _, r := range s.Registrations {
		if r.Admitted() {
			n++
		}
	}
	return n
}

// AdmittedIn returns every admitted registration bound to the pool.
func (s *EventState) AdmittedIn(poolID string) []*Registration {
	var out []*Registration
	for _, r := range s.Registrations {
		if r.Admitted() && *r.PoolID == poolID {
			out = append(out, r)
		}
	}
	return out
}

// EventCapacity returns the summed capacity of activated pools. The second
// return is false when any activated pool is unlimited, which makes the
// event-wide capacity unlimited too.
func (s *EventState) EventCapacity(now time.Time) (int, bool) {
	total := 0
	for _, p := range s.Pools {
		if !p.Activated(now) {
			continue
		}
		if p.Unlimited() {
			return 0, false
		}
		total += p.Capacity
	}
	return total, true
}

// HasEventCapacity reports whether the event-wide admitted count is below
// the event-wide capacity.
func (s *EventState) HasEventCapacity(now time.Time) bool {
	capacity, bounded := s.EventCapacity(now)
	if !bounded {
		return true
	}
	return s.AdmittedTotal() < capacity
}

// WaitingList returns active unbound registrations ordered by registration
// date, oldest first. This ordering is the engine's FIFO fairness contract.
func (s *EventState) WaitingList() []*Registration {
	var out []*Registration
	for _, r := range s.Registrations {
		if r.Waiting() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RegistrationDate.Before(out[j].RegistrationDate)
	})
	return out
}

// EnrollmentTx is the mutation surface available while an event aggregate is
// locked. Implementations persist each call within the surrounding
// transaction and mirror it onto the EventState.
type EnrollmentTx interface {
	State() *EventState
	InsertRegistration(ctx context.Context, reg *Registration) error
	UpdateRegistration(ctx context.Context, reg *Registration) error
	AdjustPoolCounter(ctx context.Context, poolID string, delta int) error
}

// EnrollmentStore loads an event aggregate under an exclusive per-event lock
// and runs fn inside one atomic transaction. When fn returns an error the
// transaction rolls back and no mutation survives.
type EnrollmentStore interface {
	WithEvent(ctx context.Context, eventID string, fn func(ctx context.Context, tx EnrollmentTx) error) error
}
