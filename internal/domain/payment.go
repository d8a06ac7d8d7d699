package domain

import "context"

// Gateway-side intent statuses the tracker understands.
const (
	IntentPending   = "pending"
	IntentSucceeded = "succeeded"
	IntentFailed    = "failed"
	IntentCanceled  = "canceled"
)

// Webhook event types emitted by the gateway.
const (
	WebhookIntentSucceeded = "payment_intent.succeeded"
	WebhookIntentFailed    = "payment_intent.payment_failed"
	WebhookIntentCanceled  = "payment_intent.canceled"
)

// Intent metadata keys. Event and user ids embedded at intent creation are
// the only reliable way to match a webhook back to a registration.
const (
	IntentMetaEventID = "event_id"
	IntentMetaUserID  = "user_id"
)

// PaymentIntent is the gateway's view of one payment attempt.
type PaymentIntent struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	AmountCents int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

// CreateIntentRequest carries everything needed to open an intent. The
// idempotency key is derived from the registration id so a retried creation
// never double-charges.
type CreateIntentRequest struct {
	IdempotencyKey string
	AmountCents    int64
	Currency       string
	Metadata       map[string]string
}

// PaymentGateway is the external payment processor boundary.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*PaymentIntent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
	CancelIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
}

// WebhookEvent is an asynchronous gateway notification.
type WebhookEvent struct {
	ID     string        `json:"id"`
	Type   string        `json:"type"`
	Intent PaymentIntent `json:"intent"`
}
