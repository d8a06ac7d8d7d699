package postgres

import (
	"context"
	"database/sql"
	"errors"

	"eventsignup/internal/adapters/notify"
	"eventsignup/internal/domain"
)

type userDirectory struct {
	DB *sql.DB
}

// NewUserDirectory resolves user ids to email addresses for the notifier.
// User records themselves are owned by an external system; this is a
// read-only view.
func NewUserDirectory(db *sql.DB) notify.UserDirectory {
	return &userDirectory{DB: db}
}

func (d *userDirectory) EmailFor(ctx context.Context, userID string) (string, error) {
	var email string
	err := d.DB.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return email, nil
}
