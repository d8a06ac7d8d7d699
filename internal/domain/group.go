package domain

import "context"

// GroupDirectory resolves group membership. Groups form a hierarchy through
// a parent adjacency; membership in a group implies membership in all of its
// ancestors, and a pool gated on a group admits members of the group's whole
// subtree.
type GroupDirectory interface {
	// AllGroups returns every group id the user belongs to, transitively
	// through the hierarchy. Callers resolve this once per operation and
	// reuse the result for the operation's duration.
	AllGroups(ctx context.Context, userID string) ([]string, error)
	// DistinctMemberCount returns the number of distinct users belonging to
	// any of the given groups or their descendants. The registration engine
	// uses it to rank pools by exclusivity.
	DistinctMemberCount(ctx context.Context, groupIDs []string) (int, error)
}
