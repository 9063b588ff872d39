/*
coordinator.go - Membership coordinator

PURPOSE:
  Orchestrates every operation that touches a group: membership
  changes, expense writes, balance queries, and settlement. It is the
  only component allowed to mutate membership, and it never does so
  without passing the settlement gate.

STATE MACHINE (per operation, never persisted):
  Idle → Gating → {Blocked, Clear} → Mutating → Done

  Blocked surfaces an OutstandingBalanceError carrying the full
  per-member breakdown. Settlement is opt-in: a blocked caller decides
  whether to invoke Settle and retry - the coordinator never generates
  ledger entries behind the user's back.

CONCURRENCY:
  Membership mutations take a per-group mutex, and the member write
  itself is versioned: if the store reports a stale version the whole
  gate-then-mutate sequence is retried once before the concurrency
  error reaches the caller.

NOTIFICATIONS:
  Delivered after the mutation commits, fanned out to the member set
  concurrently. Failures are logged and dropped - notifications are
  not part of ledger correctness.
*/
package group

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/warp/split-engine/ledger"
)

// deleteConcurrency bounds the expense-deletion fan-out in DeleteGroup.
const deleteConcurrency = 4

// Coordinator wires the ledger engine to group membership state.
type Coordinator struct {
	groups    Store
	expenses  ledger.Store
	gate      *ledger.Gate
	engine    *ledger.Engine
	directory Directory
	notifier  Notifier
	locks     *groupLocks
}

func NewCoordinator(groups Store, expenses ledger.Store, directory Directory, notifier Notifier) *Coordinator {
	return &Coordinator{
		groups:    groups,
		expenses:  expenses,
		gate:      ledger.NewGate(expenses),
		engine:    ledger.NewEngine(expenses),
		directory: directory,
		notifier:  notifier,
		locks:     newGroupLocks(),
	}
}

// =============================================================================
// GROUP LIFECYCLE
// =============================================================================

// CreateGroup creates a group with the creator as its sole member.
func (c *Coordinator) CreateGroup(ctx context.Context, name string, currency ledger.Currency, creatorID ledger.UserID) (*Group, error) {
	if name == "" {
		return nil, &ledger.ValidationError{Field: "name", Message: "required"}
	}
	if currency == "" {
		return nil, &ledger.ValidationError{Field: "currency", Message: "required"}
	}
	if creatorID == "" {
		return nil, &ledger.ValidationError{Field: "created_by", Message: "required"}
	}

	g := &Group{
		Name:      name,
		Currency:  currency,
		CreatedBy: creatorID,
		MemberIDs: []ledger.UserID{creatorID},
	}
	if err := c.groups.CreateGroup(ctx, g); err != nil {
		return nil, err
	}
	slog.Info("group created", "group_id", g.ID, "created_by", creatorID)
	return g, nil
}

// Get returns the group by id.
func (c *Coordinator) Get(ctx context.Context, groupID ledger.GroupID) (*Group, error) {
	return c.groups.GetGroup(ctx, groupID)
}

// ListForUser returns the groups the user belongs to.
func (c *Coordinator) ListForUser(ctx context.Context, userID ledger.UserID) ([]*Group, error) {
	return c.groups.ListGroupsByMember(ctx, userID)
}

// ResolveMembers materializes the display view of the member set.
// Directory misses degrade to a placeholder entry; they never fail
// the read.
func (c *Coordinator) ResolveMembers(ctx context.Context, g *Group) []Member {
	members := make([]Member, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		info, err := c.directory.ResolveDisplayInfo(ctx, id)
		if err != nil {
			info = placeholderDisplay(id)
		}
		members = append(members, Member{ID: id, DisplayInfo: info})
	}
	return members
}

// DeleteGroup removes the group and every expense that references it,
// so no orphaned ledger entries remain. Creator only, and gated: a
// group with outstanding balances cannot be deleted.
func (c *Coordinator) DeleteGroup(ctx context.Context, groupID ledger.GroupID, actingUserID ledger.UserID) error {
	unlock := c.locks.Lock(groupID)
	defer unlock()

	g, err := c.groups.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.IsAdmin(actingUserID) {
		return &ledger.AuthorizationError{ActorID: actingUserID, Operation: "delete the group"}
	}
	if err := c.gate.Require(ctx, groupID, g.MemberIDs, g.Currency); err != nil {
		return err
	}

	expenses, err := c.expenses.ListExpenses(ctx, groupID)
	if err != nil {
		return err
	}

	// Deletes are idempotent, so a failed cascade is safe to re-run.
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(deleteConcurrency)
	for _, e := range expenses {
		id := e.ID
		eg.Go(func() error {
			return c.expenses.DeleteExpense(egCtx, id)
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("delete group expenses: %w", err)
	}

	if err := c.groups.DeleteGroup(ctx, groupID); err != nil {
		return err
	}
	slog.Info("group deleted", "group_id", groupID, "expenses_removed", len(expenses))
	c.notifyMembers(ctx, g.MemberIDs, NotifyGroupDeleted,
		fmt.Sprintf("Group %q was deleted", g.Name))
	return nil
}

// =============================================================================
// MEMBERSHIP MUTATIONS (gated)
// =============================================================================

// AddMember appends a user to the group. Admin-only, gated on clear
// balances, idempotent when the user is already a member. The no-op
// short-circuits before the gate, so re-adding an existing member
// succeeds even while balances are outstanding.
func (c *Coordinator) AddMember(ctx context.Context, groupID ledger.GroupID, userID, actingUserID ledger.UserID) error {
	if userID == "" {
		return &ledger.ValidationError{Field: "user_id", Message: "required"}
	}

	unlock := c.locks.Lock(groupID)
	defer unlock()

	mutate := func() (bool, error) {
		g, err := c.groups.GetGroup(ctx, groupID)
		if err != nil {
			return false, err
		}
		if !g.IsAdmin(actingUserID) {
			return false, &ledger.AuthorizationError{ActorID: actingUserID, Operation: "add members"}
		}
		if g.IsMember(userID) {
			return false, nil // no-op success
		}
		if err := c.gate.Require(ctx, groupID, g.MemberIDs, g.Currency); err != nil {
			return false, err
		}
		members := append(append([]ledger.UserID(nil), g.MemberIDs...), userID)
		return true, c.groups.UpdateMembers(ctx, groupID, g.Version, members)
	}

	changed, err := mutate()
	if ledger.IsRetryable(err) {
		slog.Warn("membership write raced, retrying once", "group_id", groupID, "user_id", userID)
		changed, err = mutate()
	}
	if err != nil {
		return err
	}
	if changed {
		slog.Info("member added", "group_id", groupID, "user_id", userID, "acting_user", actingUserID)
		c.notifyMember(ctx, userID, NotifyMemberAdded, "You were added to a group")
	}
	return nil
}

// RemoveMember removes a user. Allowed for the admin or for the member
// removing themselves; the creator can never be removed. Gated, but as
// with AddMember the non-member no-op short-circuits before the gate.
func (c *Coordinator) RemoveMember(ctx context.Context, groupID ledger.GroupID, userID, actingUserID ledger.UserID) error {
	if userID == "" {
		return &ledger.ValidationError{Field: "user_id", Message: "required"}
	}

	unlock := c.locks.Lock(groupID)
	defer unlock()

	mutate := func() (bool, error) {
		g, err := c.groups.GetGroup(ctx, groupID)
		if err != nil {
			return false, err
		}
		if !g.IsAdmin(actingUserID) && actingUserID != userID {
			return false, &ledger.AuthorizationError{ActorID: actingUserID, Operation: "remove members"}
		}
		if userID == g.CreatedBy {
			return false, &ledger.ValidationError{
				Field:   "user_id",
				Message: "the group creator cannot be removed; delete the group instead",
			}
		}
		if !g.IsMember(userID) {
			return false, nil // no-op success, mirrors add idempotence
		}
		if err := c.gate.Require(ctx, groupID, g.MemberIDs, g.Currency); err != nil {
			return false, err
		}
		members := make([]ledger.UserID, 0, len(g.MemberIDs)-1)
		for _, m := range g.MemberIDs {
			if m != userID {
				members = append(members, m)
			}
		}
		return true, c.groups.UpdateMembers(ctx, groupID, g.Version, members)
	}

	changed, err := mutate()
	if ledger.IsRetryable(err) {
		slog.Warn("membership write raced, retrying once", "group_id", groupID, "user_id", userID)
		changed, err = mutate()
	}
	if err != nil {
		return err
	}
	if changed {
		slog.Info("member removed", "group_id", groupID, "user_id", userID, "acting_user", actingUserID)
		c.notifyMember(ctx, userID, NotifyMemberRemoved, "You were removed from a group")
	}
	return nil
}

// =============================================================================
// LEDGER SURFACE (per-group)
// =============================================================================

// Balances recomputes the group's balance sheet from its full expense
// history. Member-only, like every other per-group read.
func (c *Coordinator) Balances(ctx context.Context, groupID ledger.GroupID, actingUserID ledger.UserID) (ledger.BalanceSheet, error) {
	g, err := c.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.IsMember(actingUserID) {
		return nil, &ledger.AuthorizationError{ActorID: actingUserID, Operation: "read the group's balances"}
	}
	expenses, err := c.expenses.ListExpenses(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return ledger.ComputeBalances(expenses, g.MemberIDs, g.Currency)
}

// CheckClear runs the settlement gate without mutating anything.
// Member-only.
func (c *Coordinator) CheckClear(ctx context.Context, groupID ledger.GroupID, actingUserID ledger.UserID) (ledger.Clearance, error) {
	g, err := c.groups.GetGroup(ctx, groupID)
	if err != nil {
		return ledger.Clearance{}, err
	}
	if !g.IsMember(actingUserID) {
		return ledger.Clearance{}, &ledger.AuthorizationError{ActorID: actingUserID, Operation: "read the group's clearance"}
	}
	return c.gate.CheckClear(ctx, groupID, g.MemberIDs, g.Currency)
}

// Settle zeroes out the group's balances. Any member may trigger it;
// settlement is always explicit, never a side effect of a blocked
// membership change.
func (c *Coordinator) Settle(ctx context.Context, groupID ledger.GroupID, actingUserID ledger.UserID) (ledger.SettlementResult, error) {
	g, err := c.groups.GetGroup(ctx, groupID)
	if err != nil {
		return ledger.SettlementResult{}, err
	}
	if !g.IsMember(actingUserID) {
		return ledger.SettlementResult{}, &ledger.AuthorizationError{ActorID: actingUserID, Operation: "settle the group"}
	}

	result, err := c.engine.SettleGroup(ctx, groupID, g.MemberIDs, g.Currency)
	if err != nil {
		// Partial writes stand; the caller re-runs CheckClear and
		// retries. See ledger/settle.go.
		return result, err
	}
	if result.AppliedCount > 0 {
		slog.Info("group settled", "group_id", groupID, "transfers", result.AppliedCount)
		c.notifyMembers(ctx, g.MemberIDs, NotifySettlement,
			fmt.Sprintf("%d settlement transfers were recorded in %q", result.AppliedCount, g.Name))
	}
	return result, nil
}

// =============================================================================
// EXPENSE OPERATIONS
// =============================================================================

// RecordExpense validates membership and persists the expense in the
// group's currency.
func (c *Coordinator) RecordExpense(ctx context.Context, e *ledger.Expense, actingUserID ledger.UserID) (ledger.ExpenseID, error) {
	g, err := c.groups.GetGroup(ctx, e.GroupID)
	if err != nil {
		return "", err
	}
	if !g.IsMember(actingUserID) {
		return "", &ledger.AuthorizationError{ActorID: actingUserID, Operation: "record expenses in the group"}
	}
	if !g.IsMember(e.PayerID) {
		return "", &ledger.ValidationError{Field: "payer_id", Message: "payer is not a group member"}
	}
	e.Amount.Currency = g.Currency
	// Settlement entries are written only by the settlement engine.
	e.IsSettlement = false
	e.PayeeID = ""

	id, err := c.expenses.RecordExpense(ctx, e)
	if err != nil {
		return "", err
	}
	slog.Info("expense recorded", "group_id", e.GroupID, "expense_id", id,
		"payer_id", e.PayerID, "amount", e.Amount.Value.StringFixed(2))
	c.notifyMembers(ctx, g.MemberIDs, NotifyExpenseRecorded,
		fmt.Sprintf("%s added %q (%s %s)", e.PayerID, e.Title, e.Amount.Value.StringFixed(2), g.Currency))
	return id, nil
}

// ReplaceExpense is the edit operation: a full replace of an existing
// organic expense under the same id. Settlement entries are immutable.
func (c *Coordinator) ReplaceExpense(ctx context.Context, e *ledger.Expense, actingUserID ledger.UserID) error {
	if e.ID == "" {
		return &ledger.ValidationError{Field: "id", Message: "required"}
	}
	existing, err := c.expenses.GetExpense(ctx, e.ID)
	if err != nil {
		return err
	}
	if existing.IsSettlement {
		return &ledger.ValidationError{Field: "id", Message: "settlement entries cannot be edited"}
	}
	if existing.GroupID != e.GroupID {
		return &ledger.ValidationError{Field: "group_id", Message: "expense belongs to a different group"}
	}

	g, err := c.groups.GetGroup(ctx, e.GroupID)
	if err != nil {
		return err
	}
	if !g.IsMember(actingUserID) {
		return &ledger.AuthorizationError{ActorID: actingUserID, Operation: "edit expenses in the group"}
	}
	if !g.IsMember(e.PayerID) {
		return &ledger.ValidationError{Field: "payer_id", Message: "payer is not a group member"}
	}
	if err := ledger.ValidateExpense(e); err != nil {
		return err
	}
	e.Amount.Currency = g.Currency
	e.IsSettlement = false
	e.PayeeID = ""
	e.CreatedAt = existing.CreatedAt

	if err := c.expenses.DeleteExpense(ctx, e.ID); err != nil {
		return err
	}
	if _, err := c.expenses.RecordExpense(ctx, e); err != nil {
		// Put the original back so a failed replace never loses the
		// expense or shifts the group's balances.
		if _, restoreErr := c.expenses.RecordExpense(ctx, existing); restoreErr != nil {
			slog.Error("failed to restore expense after replace failure",
				"group_id", e.GroupID, "expense_id", e.ID, "error", restoreErr)
			return fmt.Errorf("re-record replaced expense %s (restore also failed): %w", e.ID, err)
		}
		return fmt.Errorf("re-record replaced expense %s: %w", e.ID, err)
	}
	slog.Info("expense replaced", "group_id", e.GroupID, "expense_id", e.ID)
	return nil
}

// DeleteExpense hard-deletes an expense. Balances are always derived,
// so the very next computation reflects the deletion - nothing stales.
// Idempotent: deleting an absent expense succeeds.
func (c *Coordinator) DeleteExpense(ctx context.Context, expenseID ledger.ExpenseID, actingUserID ledger.UserID) error {
	existing, err := c.expenses.GetExpense(ctx, expenseID)
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil
		}
		return err
	}
	if existing.IsSettlement {
		return &ledger.ValidationError{Field: "id", Message: "settlement entries cannot be deleted"}
	}

	g, err := c.groups.GetGroup(ctx, existing.GroupID)
	if err != nil {
		return err
	}
	if !g.IsMember(actingUserID) {
		return &ledger.AuthorizationError{ActorID: actingUserID, Operation: "delete expenses in the group"}
	}
	if err := c.expenses.DeleteExpense(ctx, expenseID); err != nil {
		return err
	}
	slog.Info("expense deleted", "group_id", existing.GroupID, "expense_id", expenseID)
	return nil
}

// ListExpenses returns the group's expenses for a member.
func (c *Coordinator) ListExpenses(ctx context.Context, groupID ledger.GroupID, actingUserID ledger.UserID) ([]ledger.Expense, error) {
	g, err := c.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.IsMember(actingUserID) {
		return nil, &ledger.AuthorizationError{ActorID: actingUserID, Operation: "list expenses in the group"}
	}
	return c.expenses.ListExpenses(ctx, groupID)
}

// =============================================================================
// NOTIFICATION FAN-OUT (fire-and-forget)
// =============================================================================

func (c *Coordinator) notifyMember(ctx context.Context, userID ledger.UserID, notificationType, message string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, userID, notificationType, message); err != nil {
		slog.Error("notification delivery failed", "recipient", userID,
			"type", notificationType, "error", err)
	}
}

func (c *Coordinator) notifyMembers(ctx context.Context, memberIDs []ledger.UserID, notificationType, message string) {
	if c.notifier == nil {
		return
	}
	var eg errgroup.Group
	for _, id := range memberIDs {
		recipient := id
		eg.Go(func() error {
			if err := c.notifier.Notify(ctx, recipient, notificationType, message); err != nil {
				slog.Error("notification delivery failed", "recipient", recipient,
					"type", notificationType, "error", err)
			}
			return nil
		})
	}
	_ = eg.Wait() // deliveries never surface errors to the ledger path
}
