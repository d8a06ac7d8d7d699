package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"eventsignup/internal/domain"
)

type penaltyRepository struct {
	DB *sql.DB
}

func NewPenaltyRepository(db *sql.DB) domain.PenaltyRepository {
	return &penaltyRepository{DB: db}
}

func (r *penaltyRepository) Create(ctx context.Context, p *domain.Penalty) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	query := `
		INSERT INTO penalties (id, user_id, weight, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.DB.ExecContext(ctx, query, p.ID, p.UserID, p.Weight, p.Reason, p.CreatedAt)
	return err
}

func (r *penaltyRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.Penalty, error) {
	query := `
		SELECT id, user_id, weight, reason, created_at
		FROM penalties
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	penalties := make([]*domain.Penalty, 0)
	for rows.Next() {
		p := &domain.Penalty{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.Weight, &p.Reason, &p.CreatedAt); err != nil {
			return nil, err
		}
		penalties = append(penalties, p)
	}
	return penalties, rows.Err()
}
