package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"eventsignup/internal/domain"
)

const poolColumns = `id, event_id, name, capacity, activation_date, eligible_groups, counter, created_at, updated_at`

type poolRepository struct {
	DB *sql.DB
}

func NewPoolRepository(db *sql.DB) domain.PoolRepository {
	return &poolRepository{DB: db}
}

func scanPool(row rowScanner) (*domain.Pool, error) {
	p := &domain.Pool{}
	err := row.Scan(&p.ID, &p.EventID, &p.Name, &p.Capacity, &p.ActivationDate,
		pq.Array(&p.EligibleGroups), &p.Counter, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *poolRepository) Create(ctx context.Context, p *domain.Pool) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	query := `
		INSERT INTO pools (id, event_id, name, capacity, activation_date, eligible_groups, counter, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
	`
	_, err := r.DB.ExecContext(ctx, query,
		p.ID, p.EventID, p.Name, p.Capacity, p.ActivationDate, pq.Array(p.EligibleGroups), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *poolRepository) GetByID(ctx context.Context, id string) (*domain.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM pools WHERE id = $1`
	p, err := scanPool(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *poolRepository) ListByEventID(ctx context.Context, eventID string) ([]*domain.Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM pools WHERE event_id = $1 ORDER BY activation_date, id`
	rows, err := r.DB.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	pools := make([]*domain.Pool, 0)
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

func (r *poolRepository) UpdateCapacity(ctx context.Context, poolID string, capacity int) (*domain.Pool, error) {
	query := `
		UPDATE pools SET capacity = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + poolColumns
	p, err := scanPool(r.DB.QueryRowContext(ctx, query, poolID, capacity))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Delete removes a pool only while no registration, active or historical,
// references it.
func (r *poolRepository) Delete(ctx context.Context, poolID string) error {
	var n int
	if err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registrations WHERE pool_id = $1`, poolID).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrPoolNotEmpty
	}
	result, err := r.DB.ExecContext(ctx, `DELETE FROM pools WHERE id = $1`, poolID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
