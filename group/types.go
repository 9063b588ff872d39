/*
Package group provides the membership layer on top of the ledger engine.

PURPOSE:
  Wraps the ledger core with group-specific business rules. The
  critical invariant: membership never changes while balances are
  outstanding.

INVARIANTS:
  1. The creator is always a member. Removing the creator is rejected;
     the only way out is deleting the whole group.
  2. Every membership mutation (add, remove, delete group) passes the
     settlement gate first.
  3. Membership mutations are serialized per group and use an
     optimistic version check against the store.

MEMBERSHIP MODEL:
  MemberIDs is the single authoritative membership relation. The
  display form (name, initial, color) is a derived view resolved
  through the Directory on read - it is never stored next to the id
  set where the two could drift apart. Internally a member is always
  the fully-resolved form; boundary inputs arrive as bare ids and are
  normalized immediately.

SEE ALSO:
  - coordinator.go: The gated state machine for membership operations
  - ledger/gate.go: The clear/blocked decision
*/
package group

import (
	"time"

	"github.com/warp/split-engine/ledger"
)

// DisplayInfo is the directory-resolved presentation of a user.
type DisplayInfo struct {
	DisplayName string
	Initial     string
	Color       string
}

// Member is a fully-resolved group member: id plus display view.
type Member struct {
	ID ledger.UserID
	DisplayInfo
}

// Group is a set of users sharing expenses under one ledger.
type Group struct {
	ID        ledger.GroupID
	Name      string
	Currency  ledger.Currency
	CreatedBy ledger.UserID

	// MemberIDs is authoritative for membership queries. Ordered by
	// join time; CreatedBy is always present.
	MemberIDs []ledger.UserID

	// Version increments on every membership change. Used for the
	// optimistic re-check during gate-then-mutate sequences.
	Version int

	CreatedAt time.Time
}

// IsMember reports whether the user belongs to the group.
func (g *Group) IsMember(id ledger.UserID) bool {
	for _, m := range g.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user administers the group. Only the
// creator holds that role.
func (g *Group) IsAdmin(id ledger.UserID) bool {
	return id == g.CreatedBy
}
