package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eventsignup/internal/domain"
)

// Shared in-memory fakes for the service tests. The store applies
// mutations directly to the aggregate, which is what the engine assumes of
// a real transaction anyway: later steps of the same call observe earlier
// writes.

type memTx struct {
	state  *domain.EventState
	nextID int
}

func (t *memTx) State() *domain.EventState { return t.state }

func (t *memTx) InsertRegistration(_ context.Context, reg *domain.Registration) error {
	if reg.ID == "" {
		t.nextID++
		reg.ID = fmt.Sprintf("reg-%d", t.nextID)
	}
	t.state.Registrations = append(t.state.Registrations, reg)
	return nil
}

func (t *memTx) UpdateRegistration(_ context.Context, reg *domain.Registration) error {
	for _, r := range t.state.Registrations {
		if r.ID == reg.ID {
			return nil
		}
	}
	return domain.ErrNotFound
}

func (t *memTx) AdjustPoolCounter(_ context.Context, poolID string, delta int) error {
	pool := t.state.PoolByID(poolID)
	if pool == nil {
		return domain.ErrNotFound
	}
	pool.Counter += delta
	return nil
}

type memStore struct {
	state *domain.EventState
	seq   int
}

func (s *memStore) WithEvent(ctx context.Context, eventID string, fn func(context.Context, domain.EnrollmentTx) error) error {
	if s.state == nil || s.state.Event.ID != eventID {
		return domain.ErrNotFound
	}
	s.seq += 1000
	return fn(ctx, &memTx{state: s.state, nextID: s.seq})
}

type memGroups struct {
	byUser map[string][]string
	counts map[string]int
}

func (g *memGroups) AllGroups(_ context.Context, userID string) ([]string, error) {
	return g.byUser[userID], nil
}

func (g *memGroups) DistinctMemberCount(_ context.Context, groupIDs []string) (int, error) {
	return g.counts[strings.Join(groupIDs, "|")], nil
}

type memPenalties struct {
	byUser map[string][]*domain.Penalty
}

func (p *memPenalties) Create(_ context.Context, penalty *domain.Penalty) error {
	if p.byUser == nil {
		p.byUser = map[string][]*domain.Penalty{}
	}
	p.byUser[penalty.UserID] = append(p.byUser[penalty.UserID], penalty)
	return nil
}

func (p *memPenalties) ListByUserID(_ context.Context, userID string) ([]*domain.Penalty, error) {
	return p.byUser[userID], nil
}

type memNotifier struct {
	sent []domain.Notification
}

func (n *memNotifier) Notify(_ context.Context, notification domain.Notification) error {
	n.sent = append(n.sent, notification)
	return nil
}

func (n *memNotifier) kinds() []string {
	var out []string
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

type memQueue struct {
	enqueued []string
}

func (q *memQueue) Enqueue(_ context.Context, name string, _ map[string]string, _ *time.Time) (string, error) {
	q.enqueued = append(q.enqueued, name)
	return fmt.Sprintf("task-%d", len(q.enqueued)), nil
}

func (q *memQueue) Claim(context.Context, time.Time, int) ([]*domain.Task, error) { return nil, nil }
func (q *memQueue) Complete(context.Context, string) error                        { return nil }
func (q *memQueue) Retry(context.Context, string, time.Time, error) error         { return nil }
func (q *memQueue) Fail(context.Context, string, error) error                     { return nil }

// memRegs serves the lookups the engine does outside an event transaction.
type memRegs struct {
	state *domain.EventState
}

func (r *memRegs) GetByID(_ context.Context, id string) (*domain.Registration, error) {
	for _, reg := range r.state.Registrations {
		if reg.ID == id {
			return reg, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memRegs) GetByEventAndUser(_ context.Context, eventID, userID string) (*domain.Registration, error) {
	for _, reg := range r.state.Registrations {
		if reg.EventID == eventID && reg.UserID == userID {
			return reg, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memRegs) UpdateStatus(_ context.Context, id string, status domain.RegistrationStatus) error {
	for _, reg := range r.state.Registrations {
		if reg.ID == id {
			reg.Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memRegs) UpdatePayment(_ context.Context, id string, intentID *string, amount int64, status domain.PaymentStatus) error {
	for _, reg := range r.state.Registrations {
		if reg.ID == id {
			reg.PaymentIntentID = intentID
			reg.PaymentAmountCents = amount
			reg.PaymentStatus = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memRegs) ListPendingPayments(context.Context, int) ([]*domain.Registration, error) {
	var out []*domain.Registration
	for _, reg := range r.state.Registrations {
		if reg.PaymentStatus == domain.PaymentPending {
			out = append(out, reg)
		}
	}
	return out, nil
}

var testLogger = slog.New(slog.DiscardHandler)
