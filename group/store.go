package group

import (
	"context"

	"github.com/warp/split-engine/ledger"
)

// Store handles group persistence. Membership updates are versioned:
// UpdateMembers compares the expected version against the stored one
// and fails with ledger.ErrConcurrentModification on a mismatch, which
// gives the coordinator its optimistic gate-then-mutate re-check.
type Store interface {
	// CreateGroup persists a new group. The group's ID and CreatedAt
	// are assigned by the store when unset.
	CreateGroup(ctx context.Context, g *Group) error

	// GetGroup retrieves a group. Returns a NotFoundError if absent.
	GetGroup(ctx context.Context, id ledger.GroupID) (*Group, error)

	// ListGroupsByMember returns all groups the user belongs to.
	ListGroupsByMember(ctx context.Context, userID ledger.UserID) ([]*Group, error)

	// UpdateMembers replaces the member set if the stored version
	// still equals expectedVersion, then increments the version.
	UpdateMembers(ctx context.Context, id ledger.GroupID, expectedVersion int, memberIDs []ledger.UserID) error

	// DeleteGroup removes the group record. Succeeds silently if the
	// group is already gone.
	DeleteGroup(ctx context.Context, id ledger.GroupID) error
}
