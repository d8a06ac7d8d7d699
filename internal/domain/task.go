package domain

import (
	"context"
	"time"
)

// Task names the orchestrator dispatches on.
const (
	TaskRegister         = "registration.register"
	TaskUnregister       = "registration.unregister"
	TaskBump             = "registration.bump"
	TaskPaymentStart     = "payment.start"
	TaskPaymentReconcile = "payment.reconcile"
	TaskPaymentCancel    = "payment.cancel"
	TaskAudit            = "registration.audit"
)

// Task argument keys.
const (
	TaskArgEventID        = "event_id"
	TaskArgUserID         = "user_id"
	TaskArgRegistrationID = "registration_id"
)

// Task is one retryable unit of work. Delivery is at least once; handlers
// must be idempotent.
type Task struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Args     map[string]string `json:"args"`
	RunAt    time.Time         `json:"run_at"`
	Attempts int               `json:"attempts"`
}

// TaskQueue is the persistent work queue behind the orchestrator.
type TaskQueue interface {
	// Enqueue schedules a task. A nil eta means run as soon as possible.
	Enqueue(ctx context.Context, name string, args map[string]string, eta *time.Time) (string, error)
	// Claim marks up to limit due tasks as running and returns them. Claimed
	// tasks are invisible to other workers until completed or failed, or
	// until their lease lapses and another worker reclaims them.
	Claim(ctx context.Context, now time.Time, limit int) ([]*Task, error)
	Complete(ctx context.Context, taskID string) error
	// Retry re-schedules a claimed task after a transient failure.
	Retry(ctx context.Context, taskID string, runAt time.Time, taskErr error) error
	// Fail marks a claimed task terminally failed.
	Fail(ctx context.Context, taskID string, taskErr error) error
}
