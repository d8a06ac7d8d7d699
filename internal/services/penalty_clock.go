package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"eventsignup/internal/domain"
)

// Penalty delay steps. Three or more active penalties block pool admission
// entirely; the user may only join the waiting list.
const (
	delayOneWeight = 3 * time.Hour
	delayTwoWeight = 12 * time.Hour
	blockThreshold = 3
)

// PenaltyClock computes how much a user's accumulated penalty weight delays
// their effective pool activation time, and when individual penalties
// expire. Freeze windows pause the expiry countdown.
type PenaltyClock struct {
	penalties domain.PenaltyRepository
	expiry    time.Duration
	freezes   []domain.FreezeWindow
}

// NewPenaltyClock returns a PenaltyClock. Freeze windows may overlap; they
// are normalized once up front.
func NewPenaltyClock(penalties domain.PenaltyRepository, expiry time.Duration, freezes []domain.FreezeWindow) *PenaltyClock {
	return &PenaltyClock{
		penalties: penalties,
		expiry:    expiry,
		freezes:   normalizeWindows(freezes),
	}
}

// ActiveWeight sums the weights of the user's non-expired penalties.
func (c *PenaltyClock) ActiveWeight(ctx context.Context, userID string, now time.Time) (int, error) {
	all, err := c.penalties.ListByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list penalties: %w", err)
	}
	weight := 0
	for _, p := range all {
		if c.ExpiresAt(p.CreatedAt).After(now) {
			weight += p.Weight
		}
	}
	return weight, nil
}

// ExpiresAt returns when a penalty created at the given instant stops
// counting. Time spent inside a freeze window does not consume the expiry
// duration: a window overlapping the countdown pauses it, pushing the
// expiry out past the window's end.
func (c *PenaltyClock) ExpiresAt(createdAt time.Time) time.Time {
	expires := createdAt.Add(c.expiry)
	for _, w := range c.freezes {
		if !w.End.After(createdAt) {
			continue
		}
		if !w.Start.Before(expires) {
			break
		}
		start := w.Start
		if start.Before(createdAt) {
			start = createdAt
		}
		expires = expires.Add(w.End.Sub(start))
	}
	return expires
}

// Delay returns the registration delay for the given active weight and
// whether the weight blocks pool admission outright.
func (c *PenaltyClock) Delay(weight int) (time.Duration, bool) {
	switch {
	case weight <= 0:
		return 0, false
	case weight == 1:
		return delayOneWeight, false
	case weight == 2:
		return delayTwoWeight, false
	default:
		return 0, true
	}
}

// EarliestRegistration returns the later of the pool's activation date and
// the reference instant (the user's registration attempt) plus the penalty
// delay.
func (c *PenaltyClock) EarliestRegistration(activation time.Time, weight int, ref time.Time) time.Time {
	delay, blocked := c.Delay(weight)
	if blocked {
		// Callers check Delay's blocked flag before admission; the earliest
		// time is meaningless here but must not precede activation.
		return activation
	}
	delayed := ref.Add(delay)
	if delayed.After(activation) {
		return delayed
	}
	return activation
}

// normalizeWindows sorts windows and merges overlaps so ExpiresAt can walk
// them in a single forward pass.
func normalizeWindows(in []domain.FreezeWindow) []domain.FreezeWindow {
	if len(in) == 0 {
		return nil
	}
	windows := make([]domain.FreezeWindow, len(in))
	copy(windows, in)
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start.Before(windows[j].Start) })
	out := windows[:1]
	for _, w := range windows[1:] {
		last := &out[len(out)-1]
		if !w.Start.After(last.End) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		out = append(out, w)
	}
	return out
}
