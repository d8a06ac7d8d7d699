package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"eventsignup/internal/domain"
)

// PaymentService drives a registration's payment sub-state from the
// external gateway: intent creation, polling reconciliation, and inbound
// webhook events. Local state only ever moves NONE → PENDING →
// {SUCCESS, FAILURE, CANCELED}.
type PaymentService struct {
	regs     domain.RegistrationRepository
	events   domain.EventRepository
	gateway  domain.PaymentGateway
	notifier domain.Notifier
	currency string
	logger   *slog.Logger
}

// NewPaymentService creates the payment tracker.
func NewPaymentService(
	regs domain.RegistrationRepository,
	events domain.EventRepository,
	gateway domain.PaymentGateway,
	notifier domain.Notifier,
	currency string,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		regs:     regs,
		events:   events,
		gateway:  gateway,
		notifier: notifier,
		currency: currency,
		logger:   logger,
	}
}

// Start opens a payment intent for the registration. The idempotency key is
// derived from the registration id, so re-invocation after a crash or task
// retry reuses the gateway-side intent instead of charging twice. Free
// events and registrations already past PENDING are no-ops.
func (s *PaymentService) Start(ctx context.Context, registrationID string) error {
	reg, err := s.regs.GetByID(ctx, registrationID)
	if err != nil {
		return fmt.Errorf("get registration: %w", err)
	}
	if reg.PaymentStatus != domain.PaymentNone {
		return nil
	}
	event, err := s.events.GetByID(ctx, reg.EventID)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}
	if !event.Priced() {
		return nil
	}

	intent, err := s.gateway.CreateIntent(ctx, domain.CreateIntentRequest{
		IdempotencyKey: "reg-" + reg.ID,
		AmountCents:    event.PriceCents,
		Currency:       s.currency,
		Metadata: map[string]string{
			domain.IntentMetaEventID: reg.EventID,
			domain.IntentMetaUserID:  reg.UserID,
		},
	})
	if err != nil {
		return fmt.Errorf("create intent: %w", err)
	}
	if err := s.regs.UpdatePayment(ctx, reg.ID, &intent.ID, event.PriceCents, domain.PaymentPending); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	s.logger.Info("payment intent created",
		"registration_id", reg.ID, "intent_id", intent.ID, "amount_cents", event.PriceCents)
	return nil
}

// Reconcile pulls the gateway's view of a pending intent and applies it
// locally. It backs the polling path for webhooks that never arrived.
func (s *PaymentService) Reconcile(ctx context.Context, registrationID string) error {
	reg, err := s.regs.GetByID(ctx, registrationID)
	if err != nil {
		return fmt.Errorf("get registration: %w", err)
	}
	if reg.PaymentStatus != domain.PaymentPending || reg.PaymentIntentID == nil {
		return nil
	}
	intent, err := s.gateway.RetrieveIntent(ctx, *reg.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("retrieve intent: %w", err)
	}
	return s.apply(ctx, reg, intent.Status)
}

// Cancel voids a pending intent, typically after an unregistration.
func (s *PaymentService) Cancel(ctx context.Context, registrationID string) error {
	reg, err := s.regs.GetByID(ctx, registrationID)
	if err != nil {
		return fmt.Errorf("get registration: %w", err)
	}
	if reg.PaymentStatus != domain.PaymentPending || reg.PaymentIntentID == nil {
		return domain.ErrPaymentNotPending
	}
	if _, err := s.gateway.CancelIntent(ctx, *reg.PaymentIntentID); err != nil {
		return fmt.Errorf("cancel intent: %w", err)
	}
	return s.apply(ctx, reg, domain.IntentCanceled)
}

// HandleWebhook applies an asynchronous gateway event. The registration is
// matched through the event and user ids embedded in the intent's metadata;
// there is no other reliable key at this boundary. An event that matches no
// registration means the two systems have drifted apart and is reported as
// a consistency violation, never dropped.
func (s *PaymentService) HandleWebhook(ctx context.Context, ev domain.WebhookEvent) error {
	eventID := ev.Intent.Metadata[domain.IntentMetaEventID]
	userID := ev.Intent.Metadata[domain.IntentMetaUserID]
	if eventID == "" || userID == "" {
		return domain.Consistencyf("webhook", "event %s (%s) carries no registration metadata", ev.ID, ev.Type)
	}
	reg, err := s.regs.GetByEventAndUser(ctx, eventID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Consistencyf("webhook",
				"event %s (%s) matches no registration for event %s user %s", ev.ID, ev.Type, eventID, userID)
		}
		return fmt.Errorf("match registration: %w", err)
	}

	switch ev.Type {
	case domain.WebhookIntentSucceeded:
		return s.apply(ctx, reg, domain.IntentSucceeded)
	case domain.WebhookIntentFailed:
		return s.apply(ctx, reg, domain.IntentFailed)
	case domain.WebhookIntentCanceled:
		return s.apply(ctx, reg, domain.IntentCanceled)
	default:
		s.logger.Debug("ignoring webhook event", "id", ev.ID, "type", ev.Type)
		return nil
	}
}

// apply maps a gateway intent status onto the local sub-state and notifies
// the user on settlement. Already-settled registrations are left alone so a
// replayed webhook or a late poll cannot regress the state machine.
func (s *PaymentService) apply(ctx context.Context, reg *domain.Registration, intentStatus string) error {
	if reg.PaymentStatus != domain.PaymentPending {
		return nil
	}
	var status domain.PaymentStatus
	var kind string
	switch intentStatus {
	case domain.IntentSucceeded:
		status, kind = domain.PaymentSuccess, domain.NotifyPaymentSuccess
	case domain.IntentFailed:
		status, kind = domain.PaymentFailure, domain.NotifyPaymentFailure
	case domain.IntentCanceled:
		status = domain.PaymentCanceled
	case domain.IntentPending:
		return nil
	default:
		return fmt.Errorf("unknown gateway intent status %q", intentStatus)
	}
	if err := s.regs.UpdatePayment(ctx, reg.ID, reg.PaymentIntentID, reg.PaymentAmountCents, status); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if kind != "" {
		n := domain.Notification{Kind: kind, UserID: reg.UserID, EventID: reg.EventID}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("notify", "kind", kind, "user_id", reg.UserID, "error", err)
		}
	}
	return nil
}
