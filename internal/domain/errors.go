package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Sentinel errors. Capacity signals (full event, no matching pool) route a
// registrant to the waiting list and are expected control flow for callers
// that can wait; eligibility errors are terminal and never retried.
var (
	ErrNotFound           = errors.New("not found")
	ErrNoAvailablePools   = errors.New("no pool admits the user's groups")
	ErrEventFull          = errors.New("event is full")
	ErrRegistrationClosed = errors.New("registration window is closed")
	ErrPoolNotEmpty       = errors.New("pool still holds registrations")
	ErrPaymentNotPending  = errors.New("payment is not pending")
)

// ConsistencyError marks a state that can only arise from a bug, never from
// contention: a pool counter diverging from its live registration count, a
// registration bound to a pool of a different event, or a gateway webhook
// with no matching registration. It must surface loudly and is never
// retried or silently corrected.
type ConsistencyError struct {
	Op     string
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation in %s: %s", e.Op, e.Detail)
}

// Consistencyf builds a ConsistencyError with a formatted detail.
func Consistencyf(op, format string, args ...any) error {
	return &ConsistencyError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// IsConsistency reports whether err is a consistency violation.
func IsConsistency(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// Postgres error codes treated as contention rather than failure.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqUniqueViolation      = "23505"
)

// IsTransient reports whether err is worth retrying: lock contention,
// serialization conflicts, duplicate-insert races on the (event, user)
// uniqueness constraint, and timeouts. Consistency violations are never
// transient, whatever wrapped them.
func IsTransient(err error) bool {
	if err == nil || IsConsistency(err) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable, pqUniqueViolation:
			return true
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	return false
}
