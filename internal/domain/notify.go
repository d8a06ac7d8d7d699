package domain

import "context"

// Notification kinds emitted by the registration engine and payment tracker.
const (
	NotifyRegistered     = "registration.confirmed"
	NotifyWaitingList    = "registration.waiting_list"
	NotifyBumped         = "registration.bumped"
	NotifyRegisterFailed = "registration.failed"
	NotifyUnregistered   = "unregistration.confirmed"
	NotifyPaymentSuccess = "payment.succeeded"
	NotifyPaymentFailure = "payment.failed"
)

// Notification is a fire-and-forget message for a user. The core requires
// no delivery guarantee from the sink.
type Notification struct {
	Kind    string            `json:"kind"`
	UserID  string            `json:"user_id"`
	EventID string            `json:"event_id"`
	Payload map[string]string `json:"payload"`
}

// Notifier delivers notifications. Implementations must tolerate being
// called repeatedly for the same logical message.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
