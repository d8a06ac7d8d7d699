package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"eventsignup/internal/domain"
)

type enrollmentStore struct {
	DB *sql.DB
}

// NewEnrollmentStore returns the EnrollmentStore backing the registration
// engine. Each WithEvent call runs one transaction holding `SELECT ... FOR
// UPDATE` on the event row, which serializes all mutations of one event's
// aggregate; pools are locked too so bump/rebalance scans cannot interleave
// with capacity changes.
func NewEnrollmentStore(db *sql.DB) domain.EnrollmentStore {
	return &enrollmentStore{DB: db}
}

func (s *enrollmentStore) WithEvent(ctx context.Context, eventID string, fn func(ctx context.Context, tx domain.EnrollmentTx) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	state, err := loadEventState(ctx, tx, eventID)
	if err != nil {
		return err
	}
	etx := &enrollmentTx{tx: tx, state: state}
	if err = fn(ctx, etx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func loadEventState(ctx context.Context, tx *sql.Tx, eventID string) (*domain.EventState, error) {
	event, err := lockEvent(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	pools, err := lockPools(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	regs, err := loadRegistrations(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	return &domain.EventState{Event: event, Pools: pools, Registrations: regs}, nil
}

func lockEvent(ctx context.Context, tx *sql.Tx, eventID string) (*domain.Event, error) {
	query := `
		SELECT id, name, start_time, end_time, merge_time, price_cents, heed_penalties, created_at, updated_at
		FROM events
		WHERE id = $1
		FOR UPDATE
	`
	e := &domain.Event{}
	var mergeNull sql.NullTime
	err := tx.QueryRowContext(ctx, query, eventID).Scan(
		&e.ID, &e.Name, &e.StartTime, &e.EndTime, &mergeNull,
		&e.PriceCents, &e.HeedPenalties, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	if mergeNull.Valid {
		e.MergeTime = &mergeNull.Time
	}
	return e, nil
}

func lockPools(ctx context.Context, tx *sql.Tx, eventID string) ([]*domain.Pool, error) {
	query := `
		SELECT id, event_id, name, capacity, activation_date, eligible_groups, counter, created_at, updated_at
		FROM pools
		WHERE event_id = $1
		ORDER BY activation_date, id
		FOR UPDATE
	`
	rows, err := tx.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("lock pools: %w", err)
	}
	defer rows.Close()
	var pools []*domain.Pool
	for rows.Next() {
		p := &domain.Pool{}
		if err := rows.Scan(&p.ID, &p.EventID, &p.Name, &p.Capacity, &p.ActivationDate,
			pq.Array(&p.EligibleGroups), &p.Counter, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

func loadRegistrations(ctx context.Context, tx *sql.Tx, eventID string) ([]*domain.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE event_id = $1
		ORDER BY registration_date, id
	`
	rows, err := tx.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("load registrations: %w", err)
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
	return regs, rows.Err()
}

// enrollmentTx persists mutations within the surrounding transaction. The
// engine mutates the in-memory aggregate itself; this type only mirrors
// counter adjustments back onto the loaded pools.
type enrollmentTx struct {
	tx    *sql.Tx
	state *domain.EventState
}

func (t *enrollmentTx) State() *domain.EventState {
	return t.state
}

func (t *enrollmentTx) InsertRegistration(ctx context.Context, reg *domain.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.New().String()
	}
	query := `
		INSERT INTO registrations
			(id, event_id, user_id, pool_id, registration_date, unregistration_date,
			 status, payment_intent_id, payment_amount_cents, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := t.tx.ExecContext(ctx, query,
		reg.ID, reg.EventID, reg.UserID, reg.PoolID, reg.RegistrationDate, reg.UnregistrationDate,
		reg.Status, reg.PaymentIntentID, reg.PaymentAmountCents, reg.PaymentStatus,
		reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		return err
	}
	t.state.Registrations = append(t.state.Registrations, reg)
	return nil
}

func (t *enrollmentTx) UpdateRegistration(ctx context.Context, reg *domain.Registration) error {
	// registration_date is immutable except on reactivation, where the stored
	// row still carries its unregistration mark. The CASE reads the old column
	// values, so an active row keeps its date no matter what the caller sends.
	query := `
		UPDATE registrations
		SET pool_id = $2,
		    registration_date = CASE WHEN unregistration_date IS NULL THEN registration_date ELSE $3 END,
		    unregistration_date = $4,
		    status = $5, payment_intent_id = $6, payment_amount_cents = $7,
		    payment_status = $8, updated_at = NOW()
		WHERE id = $1
	`
	result, err := t.tx.ExecContext(ctx, query,
		reg.ID, reg.PoolID, reg.RegistrationDate, reg.UnregistrationDate,
		reg.Status, reg.PaymentIntentID, reg.PaymentAmountCents, reg.PaymentStatus,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *enrollmentTx) AdjustPoolCounter(ctx context.Context, poolID string, delta int) error {
	query := `UPDATE pools SET counter = counter + $2, updated_at = NOW() WHERE id = $1`
	result, err := t.tx.ExecContext(ctx, query, poolID, delta)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	if pool := t.state.PoolByID(poolID); pool != nil {
		pool.Counter += delta
		pool.UpdatedAt = time.Now()
	}
	return nil
}
