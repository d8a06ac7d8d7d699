package domain

import (
	"context"
	"time"
)

// RegistrationStatus tracks the register/unregister state machine.
type RegistrationStatus string

const (
	StatusPendingRegister   RegistrationStatus = "PENDING_REGISTER"
	StatusSuccessRegister   RegistrationStatus = "SUCCESS_REGISTER"
	StatusFailureRegister   RegistrationStatus = "FAILURE_REGISTER"
	StatusPendingUnregister RegistrationStatus = "PENDING_UNREGISTER"
	StatusSuccessUnregister RegistrationStatus = "SUCCESS_UNREGISTER"
	StatusFailureUnregister RegistrationStatus = "FAILURE_UNREGISTER"
)

// PaymentStatus tracks the payment sub-state of a registration.
type PaymentStatus string

const (
	PaymentNone     PaymentStatus = "NONE"
	PaymentPending  PaymentStatus = "PENDING"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentFailure  PaymentStatus = "FAILURE"
	PaymentCanceled PaymentStatus = "CANCELED"
)

// Registration is a user's claim on an event: bound to a pool when admitted,
// unbound (PoolID nil) while on the waiting list. There is at most one row
// per (event, user); unregistering soft-marks the row via UnregistrationDate
// and a later register reactivates it. RegistrationDate is immutable and
// defines waiting-list order.
type Registration struct {
	ID                 string             `json:"id"`
	EventID            string             `json:"event_id"`
	UserID             string             `json:"user_id"`
	PoolID             *string            `json:"pool_id"`
	RegistrationDate   time.Time          `json:"registration_date"`
	UnregistrationDate *time.Time         `json:"unregistration_date"`
	Status             RegistrationStatus `json:"status"`
	PaymentIntentID    *string            `json:"payment_intent_id"`
	PaymentAmountCents int64              `json:"payment_amount_cents"`
	PaymentStatus      PaymentStatus      `json:"payment_status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewRegistration creates a new pending registration. ID is typically set by
// the repository on create.
func NewRegistration(eventID, userID string, registeredAt time.Time) *Registration {
	return &Registration{
		EventID:          eventID,
		UserID:           userID,
		RegistrationDate: registeredAt,
		Status:           StatusPendingRegister,
		PaymentStatus:    PaymentNone,
		CreatedAt:        registeredAt,
		UpdatedAt:        registeredAt,
	}
}

// Active reports whether the registration has not been unregistered.
func (r *Registration) Active() bool {
	return r.UnregistrationDate == nil
}

// Admitted reports whether the registration holds a pool slot.
func (r *Registration) Admitted() bool {
	return r.Active() && r.PoolID != nil
}

// Waiting reports whether the registration sits on the waiting list.
func (r *Registration) Waiting() bool {
	return r.Active() && r.PoolID == nil
}

// RegistrationRepository defines storage operations for registrations that
// are needed outside an event transaction. All placement mutations go
// through the EnrollmentStore instead.
type RegistrationRepository interface {
	GetByID(ctx context.Context, id string) (*Registration, error)
	GetByEventAndUser(ctx context.Context, eventID, userID string) (*Registration, error)
	UpdateStatus(ctx context.Context, id string, status RegistrationStatus) error
	UpdatePayment(ctx context.Context, id string, intentID *string, amountCents int64, status PaymentStatus) error
	ListPendingPayments(ctx context.Context, limit int) ([]*Registration, error)
}
