package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"eventsignup/internal/domain"
)

type eventRepository struct {
	DB *sql.DB
}

func NewEventRepository(db *sql.DB) domain.EventRepository {
	return &eventRepository{DB: db}
}

func (r *eventRepository) Create(ctx context.Context, e *domain.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	query := `
		INSERT INTO events (id, name, start_time, end_time, merge_time, price_cents, heed_penalties, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.DB.ExecContext(ctx, query,
		e.ID, e.Name, e.StartTime, e.EndTime, e.MergeTime, e.PriceCents, e.HeedPenalties, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `
		SELECT id, name, start_time, end_time, merge_time, price_cents, heed_penalties, created_at, updated_at
		FROM events
		WHERE id = $1
	`
	e := &domain.Event{}
	var mergeNull sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.Name, &e.StartTime, &e.EndTime, &mergeNull,
		&e.PriceCents, &e.HeedPenalties, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if mergeNull.Valid {
		e.MergeTime = &mergeNull.Time
	}
	return e, nil
}

// ListOpenIDs returns ids of events whose registration window is still
// open. The periodic audit and promotion sweeps iterate these.
func (r *eventRepository) ListOpenIDs(ctx context.Context, now time.Time) ([]string, error) {
	query := `SELECT id FROM events WHERE end_time > $1 ORDER BY start_time`
	rows, err := r.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
