package services

import (
	"context"
	"fmt"
	"time"

	"eventsignup/internal/domain"
)

// Eligibility is the resolver's verdict for one (user, event) pair at one
// instant. GroupMatched distinguishes "no pool admits the user's groups"
// (terminal) from "every matching pool is gated or full right now" (waiting
// list).
type Eligibility struct {
	// Pools the user may be admitted into right now, in stable pool order.
	Pools []*domain.Pool
	// GroupMatched is true when at least one pool admits the user's groups,
	// ignoring activation times and penalties.
	GroupMatched bool
	// Blocked is true when the user's penalty weight forbids admission
	// outright (waiting list only).
	Blocked bool
	// Groups is the user's transitive group set, resolved once and reused
	// for the rest of the operation.
	Groups []string
}

// EligibilityResolver computes which pools a user may join. A pool
// qualifies when its penalty-adjusted activation date has passed and the
// user belongs to one of its eligible groups. A user already admitted to
// the event is never eligible again.
type EligibilityResolver struct {
	groups domain.GroupDirectory
	clock  *PenaltyClock
}

// NewEligibilityResolver returns an EligibilityResolver.
func NewEligibilityResolver(groups domain.GroupDirectory, clock *PenaltyClock) *EligibilityResolver {
	return &EligibilityResolver{groups: groups, clock: clock}
}

// Resolve computes the user's eligibility against the loaded event state.
func (r *EligibilityResolver) Resolve(ctx context.Context, state *domain.EventState, userID string, now time.Time) (*Eligibility, error) {
	userGroups, err := r.groups.AllGroups(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve groups: %w", err)
	}
	out := &Eligibility{Groups: userGroups}

	if reg := state.ByUser(userID); reg != nil && reg.Admitted() {
		// No double admission; the group match is still reported so callers
		// don't misread this as a terminal eligibility failure.
		out.GroupMatched = matchesAnyPool(state.Pools, userGroups)
		return out, nil
	}

	weight := 0
	if state.Event.HeedPenalties {
		weight, err = r.clock.ActiveWeight(ctx, userID, now)
		if err != nil {
			return nil, err
		}
	}
	_, out.Blocked = r.clock.Delay(weight)

	// The penalty delay runs from the moment the user asked to register:
	// now for a first attempt, the stored registration date for a waiting
	// registrant. Anchoring the delay to the attempt is what lets it elapse
	// while the user waits, so the promotion sweep can eventually bump them.
	ref := now
	if reg := state.ByUser(userID); reg != nil && reg.Waiting() {
		ref = reg.RegistrationDate
	}

	for _, pool := range state.Pools {
		if !pool.AdmitsGroup(userGroups) {
			continue
		}
		out.GroupMatched = true
		if out.Blocked {
			continue
		}
		if r.clock.EarliestRegistration(pool.ActivationDate, weight, ref).After(now) {
			continue
		}
		out.Pools = append(out.Pools, pool)
	}
	return out, nil
}

// PartitionFull splits candidate pools into full (admitted count at
// capacity, bounded pools only) and open. Admitted counts come from live
// registrations, not the persisted counter, so a counter bug cannot hide
// an overfull pool.
func PartitionFull(state *domain.EventState, candidates []*domain.Pool) (full, open []*domain.Pool) {
	for _, p := range candidates {
		if !p.Unlimited() && state.AdmittedCount(p.ID) >= p.Capacity {
			full = append(full, p)
		} else {
			open = append(open, p)
		}
	}
	return full, open
}

func matchesAnyPool(pools []*domain.Pool, groups []string) bool {
	for _, p := range pools {
		if p.AdmitsGroup(groups) {
			return true
		}
	}
	return false
}
