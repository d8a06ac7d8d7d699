package postgres

import (
	"context"
	"database/sql"
	"errors"

	"eventsignup/internal/domain"
)

const registrationColumns = `id, event_id, user_id, pool_id, registration_date, unregistration_date,
	status, payment_intent_id, payment_amount_cents, payment_status, created_at, updated_at`

type registrationRepository struct {
	DB *sql.DB
}

// NewRegistrationRepository returns the read/status side of registration
// storage. Placement mutations go through the enrollment store.
func NewRegistrationRepository(db *sql.DB) domain.RegistrationRepository {
	return &registrationRepository{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*domain.Registration, error) {
	reg := &domain.Registration{}
	var poolNull, intentNull sql.NullString
	var unregNull sql.NullTime
	err := row.Scan(
		&reg.ID, &reg.EventID, &reg.UserID, &poolNull, &reg.RegistrationDate, &unregNull,
		&reg.Status, &intentNull, &reg.PaymentAmountCents, &reg.PaymentStatus,
		&reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if poolNull.Valid {
		reg.PoolID = &poolNull.String
	}
	if unregNull.Valid {
		reg.UnregistrationDate = &unregNull.Time
	}
	if intentNull.Valid {
		reg.PaymentIntentID = &intentNull.String
	}
	return reg, nil
}

func (r *registrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	reg, err := scanRegistration(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (r *registrationRepository) GetByEventAndUser(ctx context.Context, eventID, userID string) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE event_id = $1 AND user_id = $2`
	reg, err := scanRegistration(r.DB.QueryRowContext(ctx, query, eventID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (r *registrationRepository) UpdateStatus(ctx context.Context, id string, status domain.RegistrationStatus) error {
	query := `UPDATE registrations SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.DB.ExecContext(ctx, query, id, status)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *registrationRepository) UpdatePayment(ctx context.Context, id string, intentID *string, amountCents int64, status domain.PaymentStatus) error {
	query := `
		UPDATE registrations
		SET payment_intent_id = $2, payment_amount_cents = $3, payment_status = $4, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.DB.ExecContext(ctx, query, id, intentID, amountCents, status)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *registrationRepository) ListPendingPayments(ctx context.Context, limit int) ([]*domain.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE payment_status = $1
		ORDER BY updated_at
		LIMIT $2
	`
	rows, err := r.DB.QueryContext(ctx, query, domain.PaymentPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var regs []*domain.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if regs == nil {
		regs = []*domain.Registration{}
	}
	return regs, nil
}
