package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"eventsignup/internal/domain"
	"eventsignup/internal/services"
)

// Orchestrator runs the registration and payment operations as short,
// retryable tasks pulled from the persistent queue. Per-event ordering
// comes from the enrollment store's row locks, not from the workers;
// any worker may run any task.
//
// Transient failures re-enqueue the task with a fixed backoff until the
// attempt limit runs out; exhaustion or a terminal error forces the
// registration into its FAILURE_* status and emits a failure notification.
type Orchestrator struct {
	queue       domain.TaskQueue
	regs        domain.RegistrationRepository
	enrollment  *services.EnrollmentService
	payments    *services.PaymentService
	notifier    domain.Notifier
	logger      *slog.Logger
	workers     int
	pollEvery   time.Duration
	maxAttempts int
	backoff     time.Duration
}

// NewOrchestrator wires the task handlers.
func NewOrchestrator(
	queue domain.TaskQueue,
	regs domain.RegistrationRepository,
	enrollment *services.EnrollmentService,
	payments *services.PaymentService,
	notifier domain.Notifier,
	logger *slog.Logger,
	workers int,
	pollEvery time.Duration,
	maxAttempts int,
	backoff time.Duration,
) *Orchestrator {
	return &Orchestrator{
		queue:       queue,
		regs:        regs,
		enrollment:  enrollment,
		payments:    payments,
		notifier:    notifier,
		logger:      logger,
		workers:     workers,
		pollEvery:   pollEvery,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Run polls for due tasks and executes them on a bounded worker pool until
// the context is canceled.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		tasks, err := o.queue.Claim(ctx, time.Now(), o.workers)
		if err != nil {
			o.logger.Error("claim tasks", "error", err)
			continue
		}
		if len(tasks) == 0 {
			continue
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.workers)
		for _, task := range tasks {
			g.Go(func() error {
				o.dispatch(gctx, task)
				return nil
			})
		}
		_ = g.Wait()
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, task *domain.Task) {
	err := o.handle(ctx, task)
	if err == nil {
		if cerr := o.queue.Complete(ctx, task.ID); cerr != nil {
			o.logger.Error("complete task", "task_id", task.ID, "error", cerr)
		}
		return
	}

	switch {
	case domain.IsTransient(err) && task.Attempts < o.maxAttempts:
		o.logger.Warn("task retry",
			"task_id", task.ID, "name", task.Name, "attempt", task.Attempts, "error", err)
		if rerr := o.queue.Retry(ctx, task.ID, time.Now().Add(o.backoff), err); rerr != nil {
			o.logger.Error("re-enqueue task", "task_id", task.ID, "error", rerr)
		}
	default:
		o.logger.Error("task failed terminally",
			"task_id", task.ID, "name", task.Name, "attempt", task.Attempts, "error", err)
		if ferr := o.queue.Fail(ctx, task.ID, err); ferr != nil {
			o.logger.Error("mark task failed", "task_id", task.ID, "error", ferr)
		}
		o.reportFailure(ctx, task)
	}
}

func (o *Orchestrator) handle(ctx context.Context, task *domain.Task) error {
	switch task.Name {
	case domain.TaskRegister:
		_, err := o.enrollment.Register(ctx, task.Args[domain.TaskArgEventID], task.Args[domain.TaskArgUserID])
		return err
	case domain.TaskUnregister:
		_, err := o.enrollment.Unregister(ctx, task.Args[domain.TaskArgRegistrationID])
		return err
	case domain.TaskBump:
		return o.enrollment.BumpOnPoolChange(ctx, task.Args[domain.TaskArgEventID])
	case domain.TaskPaymentStart:
		return o.payments.Start(ctx, task.Args[domain.TaskArgRegistrationID])
	case domain.TaskPaymentReconcile:
		return o.payments.Reconcile(ctx, task.Args[domain.TaskArgRegistrationID])
	case domain.TaskPaymentCancel:
		return o.payments.Cancel(ctx, task.Args[domain.TaskArgRegistrationID])
	case domain.TaskAudit:
		_, err := o.enrollment.CheckPoolCountersConsistent(ctx, task.Args[domain.TaskArgEventID])
		return err
	default:
		return fmt.Errorf("unknown task %q", task.Name)
	}
}

// reportFailure forces the affected registration into its FAILURE_* status
// and tells the user. Failed bumps, audits, and payment tasks leave the
// registration alone; its committed placement still stands.
func (o *Orchestrator) reportFailure(ctx context.Context, task *domain.Task) {
	var reg *domain.Registration
	var err error
	var status domain.RegistrationStatus

	switch task.Name {
	case domain.TaskRegister:
		status = domain.StatusFailureRegister
		reg, err = o.regs.GetByEventAndUser(ctx, task.Args[domain.TaskArgEventID], task.Args[domain.TaskArgUserID])
	case domain.TaskUnregister:
		status = domain.StatusFailureUnregister
		reg, err = o.regs.GetByID(ctx, task.Args[domain.TaskArgRegistrationID])
	default:
		return
	}
	if err != nil {
		o.logger.Error("load registration for failure report", "task_id", task.ID, "error", err)
		return
	}
	if uerr := o.regs.UpdateStatus(ctx, reg.ID, status); uerr != nil {
		o.logger.Error("force failure status", "registration_id", reg.ID, "error", uerr)
		return
	}
	n := domain.Notification{
		Kind:    domain.NotifyRegisterFailed,
		UserID:  reg.UserID,
		EventID: reg.EventID,
		Payload: map[string]string{"task": task.Name},
	}
	if nerr := o.notifier.Notify(ctx, n); nerr != nil {
		o.logger.Warn("notify failure", "registration_id", reg.ID, "error", nerr)
	}
}

// Retry runs fn up to attempts times, sleeping a fixed backoff between
// tries, and gives up early on non-transient errors. Synchronous entry
// points share the orchestrator's retry semantics through it.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !domain.IsTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
