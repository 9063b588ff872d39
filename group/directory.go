/*
directory.go - External collaborator interfaces

PURPOSE:
  Narrow interfaces for the services the coordinator consumes but does
  not own: the identity service, the member directory, and the
  notification sink. Each component receives an explicit handle via
  its constructor - no package-level singletons.

CORRECTNESS BOUNDARY:
  Directory and Notifier sit outside ledger correctness. A directory
  miss degrades to a placeholder display entry; a notification failure
  is logged and dropped. Neither ever blocks or fails a ledger
  operation.
*/
package group

import (
	"context"
	"strings"

	"github.com/warp/split-engine/ledger"
)

// Identity resolves the current principal.
type Identity interface {
	// CurrentUserID returns the stable user id of the caller, or an
	// error wrapping ledger.ErrUnauthorized when there is none.
	CurrentUserID(ctx context.Context) (ledger.UserID, error)
}

// Directory resolves a user id to its display view.
type Directory interface {
	// ResolveDisplayInfo returns a NotFoundError for unknown users.
	ResolveDisplayInfo(ctx context.Context, id ledger.UserID) (DisplayInfo, error)
}

// Notification types emitted by the coordinator.
const (
	NotifyMemberAdded     = "member_added"
	NotifyMemberRemoved   = "member_removed"
	NotifyGroupDeleted    = "group_deleted"
	NotifyExpenseRecorded = "expense_recorded"
	NotifySettlement      = "settlement_recorded"
)

// Notifier delivers fire-and-forget messages. Implementations must be
// safe for concurrent use; delivery failures are the caller's to log
// and ignore.
type Notifier interface {
	Notify(ctx context.Context, recipientID ledger.UserID, notificationType, message string) error
}

// StaticDirectory is a map-backed Directory for deployments without a
// real membership-directory service, and for tests.
type StaticDirectory map[ledger.UserID]DisplayInfo

var _ Directory = StaticDirectory{}

func (d StaticDirectory) ResolveDisplayInfo(_ context.Context, id ledger.UserID) (DisplayInfo, error) {
	info, ok := d[id]
	if !ok {
		return DisplayInfo{}, &ledger.NotFoundError{Kind: "user", ID: string(id)}
	}
	return info, nil
}

// placeholderDisplay builds a display entry from a bare user id when
// the directory has no record. Reads never fail on a directory miss.
func placeholderDisplay(id ledger.UserID) DisplayInfo {
	name := string(id)
	initial := "?"
	if name != "" {
		initial = strings.ToUpper(name[:1])
	}
	return DisplayInfo{DisplayName: name, Initial: initial, Color: "#9e9e9e"}
}
