package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventsignup/internal/domain"
)

// EnrollmentService is the registration engine. It owns the invariants
// across pools and registrations: pool counters match admitted counts, no
// bounded pool is overfull pre-merge, waiting-list promotion is FIFO, and
// every (event, user) pair holds at most one registration row.
//
// All placement decisions run inside one EnrollmentStore transaction, which
// holds an exclusive lock on the event aggregate. Notifications are
// collected during the transaction and emitted only after it commits.
type EnrollmentService struct {
	store    domain.EnrollmentStore
	regs     domain.RegistrationRepository
	resolver *EligibilityResolver
	groups   domain.GroupDirectory
	notifier domain.Notifier
	queue    domain.TaskQueue
	logger   *slog.Logger
	now      func() time.Time
}

// NewEnrollmentService creates the registration engine.
func NewEnrollmentService(
	store domain.EnrollmentStore,
	regs domain.RegistrationRepository,
	resolver *EligibilityResolver,
	groups domain.GroupDirectory,
	notifier domain.Notifier,
	queue domain.TaskQueue,
	logger *slog.Logger,
) *EnrollmentService {
	return &EnrollmentService{
		store:    store,
		regs:     regs,
		resolver: resolver,
		groups:   groups,
		notifier: notifier,
		queue:    queue,
		logger:   logger,
		now:      time.Now,
	}
}

// outcome accumulates post-commit side effects of one transaction.
type outcome struct {
	reg           *domain.Registration
	notifications []domain.Notification
	startPayment  bool
	cancelPayment bool
}

func (o *outcome) notify(kind string, reg *domain.Registration, payload map[string]string) {
	o.notifications = append(o.notifications, domain.Notification{
		Kind:    kind,
		UserID:  reg.UserID,
		EventID: reg.EventID,
		Payload: payload,
	})
}

// Register registers the user for the event, admitting them into a pool or
// appending them to the waiting list. It is idempotent on (event, user): an
// active registration is returned unchanged and an inactive one is
// reactivated rather than duplicated.
func (s *EnrollmentService) Register(ctx context.Context, eventID, userID string) (*domain.Registration, error) {
	out := &outcome{}
	err := s.store.WithEvent(ctx, eventID, func(ctx context.Context, tx domain.EnrollmentTx) error {
		return s.register(ctx, tx, userID, out)
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, out)
	return out.reg, nil
}

func (s *EnrollmentService) register(ctx context.Context, tx domain.EnrollmentTx, userID string, out *outcome) error {
	state := tx.State()
	now := s.now()
	if !state.Event.RegistrationOpen(now) {
		return domain.ErrRegistrationClosed
	}

	if reg := state.ByUser(userID); reg != nil && reg.Active() {
		out.reg = reg
		return nil
	}

	elig, err := s.resolver.Resolve(ctx, state, userID, now)
	if err != nil {
		return err
	}
	if !elig.GroupMatched {
		return domain.ErrNoAvailablePools
	}

	reg, err := s.upsert(ctx, tx, userID, now)
	if err != nil {
		return err
	}
	out.reg = reg

	pool, err := s.placement(ctx, state, elig, now)
	if err != nil {
		return err
	}
	if pool == nil {
		reg.Status = domain.StatusSuccessRegister
		if err := tx.UpdateRegistration(ctx, reg); err != nil {
			return fmt.Errorf("update registration: %w", err)
		}
		out.notify(domain.NotifyWaitingList, reg, nil)
		return nil
	}
	if err := s.admit(ctx, tx, reg, pool); err != nil {
		return err
	}
	out.notify(domain.NotifyRegistered, reg, map[string]string{"pool": pool.Name})
	out.startPayment = state.Event.Priced()
	return nil
}

// upsert returns the user's registration row, creating it or reactivating a
// soft-deleted one. RegistrationDate is otherwise immutable, but reactivation
// resets it: a returning registrant must never rank better than a brand-new
// one, so they queue behind everyone who registered while they were out.
func (s *EnrollmentService) upsert(ctx context.Context, tx domain.EnrollmentTx, userID string, now time.Time) (*domain.Registration, error) {
	state := tx.State()
	if reg := state.ByUser(userID); reg != nil {
		reg.UnregistrationDate = nil
		reg.PoolID = nil
		reg.RegistrationDate = now
		reg.Status = domain.StatusPendingRegister
		if err := tx.UpdateRegistration(ctx, reg); err != nil {
			return nil, fmt.Errorf("reactivate registration: %w", err)
		}
		return reg, nil
	}
	reg := domain.NewRegistration(state.Event.ID, userID, now)
	if err := tx.InsertRegistration(ctx, reg); err != nil {
		return nil, fmt.Errorf("insert registration: %w", err)
	}
	return reg, nil
}

// placement picks the target pool for a new registrant, or nil for the
// waiting list.
func (s *EnrollmentService) placement(ctx context.Context, state *domain.EventState, elig *Eligibility, now time.Time) (*domain.Pool, error) {
	if len(elig.Pools) == 0 {
		return nil, nil
	}
	if state.Unified(now) {
		if !state.HasEventCapacity(now) {
			return nil, nil
		}
		return elig.Pools[0], nil
	}
	_, open := PartitionFull(state, elig.Pools)
	switch len(open) {
	case 0:
		return nil, nil
	case 1:
		return open[0], nil
	default:
		return s.mostExclusive(ctx, open)
	}
}

// mostExclusive returns the open pool with the fewest distinct members
// across its eligible groups, breaking ties toward the highest capacity.
// Narrow-access registrants keep a chance at their dedicated pools until
// the merge instant; broad-access users land in the biggest pool available
// to them.
func (s *EnrollmentService) mostExclusive(ctx context.Context, open []*domain.Pool) (*domain.Pool, error) {
	best := open[0]
	bestCount, err := s.groups.DistinctMemberCount(ctx, best.EligibleGroups)
	if err != nil {
		return nil, fmt.Errorf("member count: %w", err)
	}
	for _, p := range open[1:] {
		count, err := s.groups.DistinctMemberCount(ctx, p.EligibleGroups)
		if err != nil {
			return nil, fmt.Errorf("member count: %w", err)
		}
		if count < bestCount || (count == bestCount && p.Capacity > best.Capacity) {
			best, bestCount = p, count
		}
	}
	return best, nil
}

// admit binds the registration to the pool and increments its counter. A
// pool from another event is a consistency violation, never a retriable
// condition.
func (s *EnrollmentService) admit(ctx context.Context, tx domain.EnrollmentTx, reg *domain.Registration, pool *domain.Pool) error {
	if pool.EventID != reg.EventID {
		return domain.Consistencyf("admit", "pool %s belongs to event %s, registration %s to event %s",
			pool.ID, pool.EventID, reg.ID, reg.EventID)
	}
	reg.PoolID = &pool.ID
	reg.Status = domain.StatusSuccessRegister
	if err := tx.UpdateRegistration(ctx, reg); err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if err := tx.AdjustPoolCounter(ctx, pool.ID, +1); err != nil {
		return fmt.Errorf("increment pool counter: %w", err)
	}
	return nil
}

// Unregister releases the user's claim: the registration is soft-marked and
// its pool slot, if any, is handed to the waiting list via bump/rebalance.
// Unregistering an already-inactive registration is a no-op.
func (s *EnrollmentService) Unregister(ctx context.Context, registrationID string) (*domain.Registration, error) {
	existing, err := s.regs.GetByID(ctx, registrationID)
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	out := &outcome{}
	err = s.store.WithEvent(ctx, existing.EventID, func(ctx context.Context, tx domain.EnrollmentTx) error {
		return s.unregister(ctx, tx, registrationID, out)
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, out)
	return out.reg, nil
}

func (s *EnrollmentService) unregister(ctx context.Context, tx domain.EnrollmentTx, registrationID string, out *outcome) error {
	state := tx.State()
	var reg *domain.Registration
	for _, r := range state.Registrations {
		if r.ID == registrationID {
			reg = r
			break
		}
	}
	if reg == nil {
		return domain.ErrNotFound
	}
	out.reg = reg
	if !reg.Active() {
		return nil
	}

	now := s.now()
	var vacated *domain.Pool
	if reg.PoolID != nil {
		vacated = state.PoolByID(*reg.PoolID)
		if vacated == nil {
			return domain.Consistencyf("unregister", "registration %s references unknown pool %s", reg.ID, *reg.PoolID)
		}
	}

	reg.PoolID = nil
	reg.UnregistrationDate = &now
	reg.Status = domain.StatusSuccessUnregister
	if err := tx.UpdateRegistration(ctx, reg); err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	out.notify(domain.NotifyUnregistered, reg, nil)
	out.cancelPayment = reg.PaymentStatus == domain.PaymentPending

	if vacated == nil {
		return nil
	}
	if err := tx.AdjustPoolCounter(ctx, vacated.ID, -1); err != nil {
		return fmt.Errorf("decrement pool counter: %w", err)
	}
	return s.bumpOrRebalance(ctx, tx, vacated, now, out)
}

// bumpOrRebalance fills the slot vacated in pool: first by bumping the
// FIFO-first waiting registrant eligible for it, then by the greedy
// rebalance move described below.
func (s *EnrollmentService) bumpOrRebalance(ctx context.Context, tx domain.EnrollmentTx, vacated *domain.Pool, now time.Time, out *outcome) error {
	state := tx.State()
	if !state.HasEventCapacity(now) {
		return nil
	}
	target := vacated
	if state.Unified(now) {
		target = nil
	}
	waiting, pool, err := s.popFromWaitingList(ctx, tx, target, now)
	if err != nil {
		return err
	}
	if waiting != nil {
		if err := s.admit(ctx, tx, waiting, pool); err != nil {
			return err
		}
		out.notify(domain.NotifyBumped, waiting, map[string]string{"pool": pool.Name})
		return nil
	}
	if target == nil {
		return nil
	}
	return s.rebalance(ctx, tx, vacated, now, out)
}

// popFromWaitingList returns the earliest waiting registration eligible for
// toPool, along with the pool to admit it into. A nil toPool (post-merge or
// single-pool events) matches the globally earliest registrant eligible for
// any pool. Returns (nil, nil, nil) when nobody qualifies.
func (s *EnrollmentService) popFromWaitingList(ctx context.Context, tx domain.EnrollmentTx, toPool *domain.Pool, now time.Time) (*domain.Registration, *domain.Pool, error) {
	state := tx.State()
	for _, waiting := range state.WaitingList() {
		elig, err := s.resolver.Resolve(ctx, state, waiting.UserID, now)
		if err != nil {
			return nil, nil, err
		}
		if toPool == nil {
			if len(elig.Pools) > 0 {
				return waiting, elig.Pools[0], nil
			}
			continue
		}
		for _, p := range elig.Pools {
			if p.ID == toPool.ID {
				return waiting, toPool, nil
			}
		}
	}
	return nil, nil, nil
}

// rebalance frees a slot for a waiting registrant who cannot use the
// vacated pool directly: scan the waiting list in FIFO order; for each
// waiting registrant, for each full pool they are eligible for, look for an
// admitted member of that pool who could move into the vacated pool
// instead. The first successful move wins and the scan stops. The scan is
// greedy and first-match, bounded by waiting registrants times pools; a
// longer chain of moves is never attempted.
func (s *EnrollmentService) rebalance(ctx context.Context, tx domain.EnrollmentTx, vacated *domain.Pool, now time.Time, out *outcome) error {
	state := tx.State()
	full, _ := PartitionFull(state, state.Pools)
	if len(full) == 0 {
		return nil
	}
	for _, waiting := range state.WaitingList() {
		elig, err := s.resolver.Resolve(ctx, state, waiting.UserID, now)
		if err != nil {
			return err
		}
		for _, fullPool := range full {
			if !poolIn(elig.Pools, fullPool.ID) {
				continue
			}
			mover := s.findMover(ctx, state, fullPool, vacated)
			if mover == nil {
				continue
			}
			if err := s.move(ctx, tx, mover, fullPool, vacated); err != nil {
				return err
			}
			if err := s.admit(ctx, tx, waiting, fullPool); err != nil {
				return err
			}
			out.notify(domain.NotifyBumped, waiting, map[string]string{"pool": fullPool.Name})
			return nil
		}
	}
	return nil
}

// findMover returns an admitted member of from whose groups also qualify
// for to, or nil.
func (s *EnrollmentService) findMover(ctx context.Context, state *domain.EventState, from, to *domain.Pool) *domain.Registration {
	for _, admitted := range state.AdmittedIn(from.ID) {
		groups, err := s.groups.AllGroups(ctx, admitted.UserID)
		if err != nil {
			s.logger.Warn("rebalance: resolve groups", "user_id", admitted.UserID, "error", err)
			continue
		}
		if to.AdmitsGroup(groups) {
			return admitted
		}
	}
	return nil
}

// move rebinds an admitted registration from one pool to another.
func (s *EnrollmentService) move(ctx context.Context, tx domain.EnrollmentTx, reg *domain.Registration, from, to *domain.Pool) error {
	reg.PoolID = &to.ID
	if err := tx.UpdateRegistration(ctx, reg); err != nil {
		return fmt.Errorf("move registration: %w", err)
	}
	if err := tx.AdjustPoolCounter(ctx, from.ID, -1); err != nil {
		return fmt.Errorf("decrement pool counter: %w", err)
	}
	if err := tx.AdjustPoolCounter(ctx, to.ID, +1); err != nil {
		return fmt.Errorf("increment pool counter: %w", err)
	}
	return nil
}

// BumpOnPoolChange promotes waiting registrants after a pool was created or
// its capacity grew. It keeps bumping until a full pass admits nobody, so
// running it again with no further capacity change is a no-op.
func (s *EnrollmentService) BumpOnPoolChange(ctx context.Context, eventID string) error {
	out := &outcome{}
	err := s.store.WithEvent(ctx, eventID, func(ctx context.Context, tx domain.EnrollmentTx) error {
		now := s.now()
		state := tx.State()
		for {
			if !state.HasEventCapacity(now) {
				return nil
			}
			var target *domain.Pool
			if !state.Unified(now) {
				_, open := PartitionFull(state, state.Pools)
				target = s.firstBumpable(ctx, tx, open, now)
				if target == nil {
					return nil
				}
			}
			waiting, pool, err := s.popFromWaitingList(ctx, tx, target, now)
			if err != nil {
				return err
			}
			if waiting == nil {
				return nil
			}
			if err := s.admit(ctx, tx, waiting, pool); err != nil {
				return err
			}
			out.notify(domain.NotifyBumped, waiting, map[string]string{"pool": pool.Name})
		}
	})
	if err != nil {
		return err
	}
	s.flush(ctx, out)
	return nil
}

// firstBumpable returns the first open pool some waiting registrant is
// eligible for, or nil.
func (s *EnrollmentService) firstBumpable(ctx context.Context, tx domain.EnrollmentTx, open []*domain.Pool, now time.Time) *domain.Pool {
	for _, p := range open {
		waiting, _, err := s.popFromWaitingList(ctx, tx, p, now)
		if err != nil {
			s.logger.Warn("bump scan", "pool_id", p.ID, "error", err)
			return nil
		}
		if waiting != nil {
			return p
		}
	}
	return nil
}

// samePlacement reports whether the registration already sits where poolID
// asks it to be, nil meaning the waiting list.
func samePlacement(reg *domain.Registration, poolID *string) bool {
	if reg.PoolID == nil || poolID == nil {
		return reg.PoolID == nil && poolID == nil
	}
	return *reg.PoolID == *poolID
}

// AdminRegister places a user directly, bypassing activation times and
// penalties. The pool, when given, must belong to the event and have a free
// slot; a nil pool id appends the user to the waiting list. A user who is
// already registered elsewhere on the event is moved: their current pool is
// vacated and the requested placement applied. The acting requester is
// recorded in the log line only.
func (s *EnrollmentService) AdminRegister(ctx context.Context, requesterID, eventID, userID string, poolID *string, reason string) (*domain.Registration, error) {
	out := &outcome{}
	err := s.store.WithEvent(ctx, eventID, func(ctx context.Context, tx domain.EnrollmentTx) error {
		state := tx.State()
		now := s.now()
		reg := state.ByUser(userID)
		if reg != nil && reg.Active() && samePlacement(reg, poolID) {
			out.reg = reg
			return nil
		}
		var pool *domain.Pool
		if poolID != nil {
			pool = state.PoolByID(*poolID)
			if pool == nil {
				return domain.Consistencyf("admin_register", "pool %s does not belong to event %s", *poolID, eventID)
			}
			if !pool.Unlimited() && state.AdmittedCount(pool.ID) >= pool.Capacity {
				return domain.ErrEventFull
			}
		}
		if reg != nil && reg.Active() {
			if reg.PoolID != nil {
				if err := tx.AdjustPoolCounter(ctx, *reg.PoolID, -1); err != nil {
					return fmt.Errorf("decrement pool counter: %w", err)
				}
				reg.PoolID = nil
			}
		} else {
			var err error
			reg, err = s.upsert(ctx, tx, userID, now)
			if err != nil {
				return err
			}
		}
		out.reg = reg
		if pool == nil {
			reg.Status = domain.StatusSuccessRegister
			if err := tx.UpdateRegistration(ctx, reg); err != nil {
				return fmt.Errorf("update registration: %w", err)
			}
			out.notify(domain.NotifyWaitingList, reg, nil)
			return nil
		}
		if err := s.admit(ctx, tx, reg, pool); err != nil {
			return err
		}
		out.notify(domain.NotifyRegistered, reg, map[string]string{"pool": pool.Name})
		out.startPayment = state.Event.Priced()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin register",
		"requester_id", requesterID,
		"event_id", eventID,
		"user_id", userID,
		"reason", reason,
	)
	s.flush(ctx, out)
	return out.reg, nil
}

// CheckPoolCountersConsistent verifies that every pool's persisted counter
// equals its live admitted count. A mismatch indicates a concurrency bug;
// it is reported as a consistency error and never auto-corrected.
func (s *EnrollmentService) CheckPoolCountersConsistent(ctx context.Context, eventID string) (bool, error) {
	var mismatch error
	err := s.store.WithEvent(ctx, eventID, func(ctx context.Context, tx domain.EnrollmentTx) error {
		state := tx.State()
		for _, pool := range state.Pools {
			admitted := state.AdmittedCount(pool.ID)
			if pool.Counter != admitted {
				mismatch = domain.Consistencyf("audit",
					"pool %s counter %d != admitted %d", pool.ID, pool.Counter, admitted)
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if mismatch != nil {
		s.logger.Error("pool counter audit failed", "event_id", eventID, "error", mismatch)
		return false, mismatch
	}
	return true, nil
}

// flush emits post-commit side effects: notifications and, for priced
// admissions, the payment kickoff task. Failures here are logged, never
// propagated; the committed registration state wins.
func (s *EnrollmentService) flush(ctx context.Context, out *outcome) {
	for _, n := range out.notifications {
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("notify", "kind", n.Kind, "user_id", n.UserID, "error", err)
		}
	}
	if out.reg == nil {
		return
	}
	args := map[string]string{domain.TaskArgRegistrationID: out.reg.ID}
	if out.startPayment {
		if _, err := s.queue.Enqueue(ctx, domain.TaskPaymentStart, args, nil); err != nil {
			s.logger.Error("enqueue payment start", "registration_id", out.reg.ID, "error", err)
		}
	}
	if out.cancelPayment {
		if _, err := s.queue.Enqueue(ctx, domain.TaskPaymentCancel, args, nil); err != nil {
			s.logger.Error("enqueue payment cancel", "registration_id", out.reg.ID, "error", err)
		}
	}
}

func poolIn(pools []*domain.Pool, id string) bool {
	for _, p := range pools {
		if p.ID == id {
			return true
		}
	}
	return false
}

// ErrTerminal reports whether a registration error should not be retried.
func ErrTerminal(err error) bool {
	return errors.Is(err, domain.ErrNoAvailablePools) ||
		errors.Is(err, domain.ErrRegistrationClosed) ||
		errors.Is(err, domain.ErrNotFound) ||
		domain.IsConsistency(err)
}
