package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"eventsignup/internal/domain"
)

// Scheduler owns the periodic jobs: the pool-counter audit and the
// promotion sweep. The sweep re-runs bump/rebalance for every open event,
// which is what eventually promotes a registrant whose penalty delay has
// elapsed, and the reconcile pass that backs up missing payment webhooks.
type Scheduler struct {
	events  domain.EventRepository
	regs    domain.RegistrationRepository
	queue   domain.TaskQueue
	logger  *slog.Logger
	sched   gocron.Scheduler
	audit   time.Duration
	promote time.Duration
}

// NewScheduler builds the gocron scheduler; Start launches it.
func NewScheduler(
	events domain.EventRepository,
	regs domain.RegistrationRepository,
	queue domain.TaskQueue,
	logger *slog.Logger,
	auditEvery, promoteEvery time.Duration,
) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		events:  events,
		regs:    regs,
		queue:   queue,
		logger:  logger,
		sched:   sched,
		audit:   auditEvery,
		promote: promoteEvery,
	}, nil
}

// Start registers the jobs and launches the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.sched.NewJob(
		gocron.DurationJob(s.audit),
		gocron.NewTask(func() { s.enqueuePerEvent(ctx, domain.TaskAudit) }),
	); err != nil {
		return err
	}
	if _, err := s.sched.NewJob(
		gocron.DurationJob(s.promote),
		gocron.NewTask(func() { s.enqueuePerEvent(ctx, domain.TaskBump) }),
	); err != nil {
		return err
	}
	if _, err := s.sched.NewJob(
		gocron.DurationJob(s.promote),
		gocron.NewTask(func() { s.enqueuePaymentReconciles(ctx) }),
	); err != nil {
		return err
	}
	s.sched.Start()
	return nil
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}

func (s *Scheduler) enqueuePerEvent(ctx context.Context, taskName string) {
	ids, err := s.events.ListOpenIDs(ctx, time.Now())
	if err != nil {
		s.logger.Error("list open events", "task", taskName, "error", err)
		return
	}
	for _, id := range ids {
		args := map[string]string{domain.TaskArgEventID: id}
		if _, err := s.queue.Enqueue(ctx, taskName, args, nil); err != nil {
			s.logger.Error("enqueue periodic task", "task", taskName, "event_id", id, "error", err)
		}
	}
}

func (s *Scheduler) enqueuePaymentReconciles(ctx context.Context) {
	regs, err := s.regs.ListPendingPayments(ctx, 100)
	if err != nil {
		s.logger.Error("list pending payments", "error", err)
		return
	}
	for _, reg := range regs {
		args := map[string]string{domain.TaskArgRegistrationID: reg.ID}
		if _, err := s.queue.Enqueue(ctx, domain.TaskPaymentReconcile, args, nil); err != nil {
			s.logger.Error("enqueue payment reconcile", "registration_id", reg.ID, "error", err)
		}
	}
}
