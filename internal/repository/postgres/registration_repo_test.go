package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"eventsignup/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var regCols = []string{
	"id", "event_id", "user_id", "pool_id", "registration_date", "unregistration_date",
	"status", "payment_intent_id", "payment_amount_cents", "payment_status", "created_at", "updated_at",
}

func TestRegistrationRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		check   func(t *testing.T, reg *domain.Registration)
		wantErr error
	}{
		{
			name: "admitted registration",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT (.+) FROM registrations WHERE id = \$1`).
					WithArgs("reg-1").
					WillReturnRows(sqlmock.NewRows(regCols).AddRow(
						"reg-1", "evt-1", "user-1", "pool-a", now, nil,
						"SUCCESS_REGISTER", "in_1", int64(2500), "PENDING", now, now,
					))
			},
			check: func(t *testing.T, reg *domain.Registration) {
				require.Equal(t, "reg-1", reg.ID)
				require.NotNil(t, reg.PoolID)
				require.Equal(t, "pool-a", *reg.PoolID)
				require.Nil(t, reg.UnregistrationDate)
				require.NotNil(t, reg.PaymentIntentID)
				require.Equal(t, domain.PaymentPending, reg.PaymentStatus)
			},
		},
		{
			name: "waiting registration has nil pool",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT (.+) FROM registrations WHERE id = \$1`).
					WithArgs("reg-1").
					WillReturnRows(sqlmock.NewRows(regCols).AddRow(
						"reg-1", "evt-1", "user-1", nil, now, nil,
						"SUCCESS_REGISTER", nil, int64(0), "NONE", now, now,
					))
			},
			check: func(t *testing.T, reg *domain.Registration) {
				require.Nil(t, reg.PoolID)
				require.Nil(t, reg.PaymentIntentID)
				require.True(t, reg.Waiting())
			},
		},
		{
			name: "not found",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT (.+) FROM registrations WHERE id = \$1`).
					WithArgs("reg-1").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: domain.ErrNotFound,
		},
		{
			name: "db error",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT (.+) FROM registrations WHERE id = \$1`).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: sql.ErrConnDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			repo := NewRegistrationRepository(db)
			reg, err := repo.GetByID(ctx, "reg-1")
			if tt.wantErr != nil {
				require.Error(t, err)
				require.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			tt.check(t, reg)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRegistrationRepository_GetByEventAndUser(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM registrations WHERE event_id = \$1 AND user_id = \$2`).
		WithArgs("evt-1", "user-1").
		WillReturnRows(sqlmock.NewRows(regCols).AddRow(
			"reg-1", "evt-1", "user-1", nil, now, nil,
			"SUCCESS_REGISTER", nil, int64(0), "NONE", now, now,
		))

	repo := NewRegistrationRepository(db)
	reg, err := repo.GetByEventAndUser(ctx, "evt-1", "user-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", reg.UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "success",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE registrations SET status = \$2`).
					WithArgs("reg-1", string(domain.StatusFailureRegister)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "not found",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE registrations SET status = \$2`).
					WithArgs("reg-1", string(domain.StatusFailureRegister)).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			repo := NewRegistrationRepository(db)
			err = repo.UpdateStatus(ctx, "reg-1", domain.StatusFailureRegister)
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRegistrationRepository_UpdatePayment(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	intentID := "in_1"
	mock.ExpectExec(`UPDATE registrations`).
		WithArgs("reg-1", "in_1", int64(2500), string(domain.PaymentPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRegistrationRepository(db)
	err = repo.UpdatePayment(ctx, "reg-1", &intentID, 2500, domain.PaymentPending)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepository_ListPendingPayments(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM registrations\s+WHERE payment_status = \$1`).
		WithArgs(string(domain.PaymentPending), 50).
		WillReturnRows(sqlmock.NewRows(regCols).
			AddRow("reg-1", "evt-1", "u1", "pool-a", now, nil,
				"SUCCESS_REGISTER", "in_1", int64(2500), "PENDING", now, now).
			AddRow("reg-2", "evt-1", "u2", "pool-b", now, nil,
				"SUCCESS_REGISTER", "in_2", int64(2500), "PENDING", now, now))

	repo := NewRegistrationRepository(db)
	regs, err := repo.ListPendingPayments(ctx, 50)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	require.Equal(t, "reg-2", regs[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
