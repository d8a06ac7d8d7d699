package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestGroupDirectory_AllGroups(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`WITH RECURSIVE ancestry AS`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow("choir").
			AddRow("music").
			AddRow("club"))

	dir := NewGroupDirectory(db)
	groups, err := dir.AllGroups(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, []string{"choir", "music", "club"}, groups)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupDirectory_AllGroupsEmpty(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`WITH RECURSIVE ancestry AS`).
		WithArgs("loner").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	dir := NewGroupDirectory(db)
	groups, err := dir.AllGroups(ctx, "loner")
	require.NoError(t, err)
	require.Empty(t, groups)
	require.NotNil(t, groups)
}

func TestGroupDirectory_DistinctMemberCount(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`WITH RECURSIVE subtree AS`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	dir := NewGroupDirectory(db)
	n, err := dir.DistinctMemberCount(ctx, []string{"music", "club"})
	require.NoError(t, err)
	require.Equal(t, 42, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupDirectory_DistinctMemberCountNoGroups(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := NewGroupDirectory(db)
	n, err := dir.DistinctMemberCount(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
