package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"eventsignup/internal/domain"
)

type groupDirectory struct {
	DB *sql.DB
}

// NewGroupDirectory resolves group membership over the groups table's
// parent adjacency. Both lookups walk the hierarchy with a recursive CTE
// rather than carrying a precomputed closure, which keeps group edits
// trivially consistent.
func NewGroupDirectory(db *sql.DB) domain.GroupDirectory {
	return &groupDirectory{DB: db}
}

// AllGroups returns the user's direct groups plus every ancestor: being a
// member of a subgroup counts as membership in the groups above it.
func (d *groupDirectory) AllGroups(ctx context.Context, userID string) ([]string, error) {
	query := `
		WITH RECURSIVE ancestry AS (
			SELECT g.id, g.parent_id
			FROM groups g
			JOIN group_members m ON m.group_id = g.id
			WHERE m.user_id = $1
			UNION
			SELECT g.id, g.parent_id
			FROM groups g
			JOIN ancestry a ON a.parent_id = g.id
		)
		SELECT DISTINCT id FROM ancestry
	`
	rows, err := d.DB.QueryContext(ctx, query, userID)
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

// DistinctMemberCount counts distinct users across the groups' subtrees:
// everyone whose transitive group set would match a pool gated on these
// groups.
func (d *groupDirectory) DistinctMemberCount(ctx context.Context, groupIDs []string) (int, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	query := `
		WITH RECURSIVE subtree AS (
			SELECT id FROM groups WHERE id = ANY($1)
			UNION
			SELECT g.id
			FROM groups g
			JOIN subtree s ON g.parent_id = s.id
		)
		SELECT COUNT(DISTINCT m.user_id)
		FROM group_members m
		JOIN subtree s ON m.group_id = s.id
	`
	var n int
	if err := d.DB.QueryRowContext(ctx, query, pq.Array(groupIDs)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
