/*
gate.go - Settlement gate

PURPOSE:
  The single invariant-preserving checkpoint in the system. Every
  membership-mutating operation (add member, remove member, delete
  group) asks the gate first and aborts if any balance is non-zero.
  Every other component trusts that membership never changes while
  debts are outstanding.

DECISION RULE:
  clear == true  iff every |balance| <= 0.01 (Epsilon)

  The gate never mutates state. It reads the expense set, recomputes
  balances, and reports. Callers that get Blocked receive the full
  balance breakdown so the user can decide whether to settle first.
*/
package ledger

import "context"

// Clearance is the gate's verdict plus the balances it was based on.
type Clearance struct {
	Clear    bool
	Balances BalanceSheet
}

// Gate decides whether a group's balances permit membership changes.
type Gate struct {
	Expenses Store
}

func NewGate(expenses Store) *Gate {
	return &Gate{Expenses: expenses}
}

// CheckClear recomputes balances for the group and reports whether
// every member is within Epsilon of zero. Read-only.
func (g *Gate) CheckClear(ctx context.Context, groupID GroupID, memberIDs []UserID, currency Currency) (Clearance, error) {
	expenses, err := g.Expenses.ListExpenses(ctx, groupID)
	if err != nil {
		return Clearance{}, err
	}
	balances, err := ComputeBalances(expenses, memberIDs, currency)
	if err != nil {
		return Clearance{}, err
	}
	return Clearance{Clear: balances.IsSettled(), Balances: balances}, nil
}

// Require returns nil when the group is clear and an
// OutstandingBalanceError carrying the breakdown when it is not.
func (g *Gate) Require(ctx context.Context, groupID GroupID, memberIDs []UserID, currency Currency) error {
	clearance, err := g.CheckClear(ctx, groupID, memberIDs, currency)
	if err != nil {
		return err
	}
	if !clearance.Clear {
		return &OutstandingBalanceError{GroupID: groupID, Balances: clearance.Balances.Rounded()}
	}
	return nil
}
