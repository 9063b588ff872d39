/*
settle.go - Settlement engine

PURPOSE:
  Turns non-zero balances into a small set of transfers and records
  each transfer as a settlement expense, so the very next balance
  computation sees the group as clear.

MATCHING:
  Greedy largest-to-largest: repeatedly transfer
  min(|largest debt|, largest credit) from the largest debtor to the
  largest creditor until both sides are exhausted within Epsilon.
  This keeps the transaction count low, but it is NOT guaranteed
  globally minimal for every balance distribution. That is an accepted
  trade-off, not a defect.

IDEMPOTENCE:
  An already-clear group produces an empty plan, so running the engine
  twice in a row with no intervening expense activity is a no-op the
  second time.

PARTIAL FAILURE:
  Transfers are persisted one by one. If a write fails partway, the
  transfers already written stand - each is a valid, already-true
  ledger entry - and the remaining imbalance is smaller than before.
  A second pass over the partially-settled group converges. Callers
  must re-run the gate after a failed settlement rather than assume
  anything was rolled back.
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// Transfer is one planned settlement payment.
type Transfer struct {
	From   UserID
	To     UserID
	Amount Amount
}

// SettlementResult reports the planned transfers and how many of them
// were actually persisted. On full success the two counts agree.
type SettlementResult struct {
	Transfers    []Transfer
	AppliedCount int
}

// PlanTransfers derives the transfer list from a balance sheet.
// Pure function: it mutates nothing and touches no store.
//
// Transfer amounts are rounded to 2 decimal places because they become
// ledger entries; the sub-cent residue this can leave behind is below
// Epsilon and the gate treats it as zero.
func PlanTransfers(balances BalanceSheet) []Transfer {
	creditors := balances.Creditors()
	debtors := balances.Debtors()

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		owed := debtors[i].Net.Neg()
		due := creditors[j].Net

		amount := owed.Min(due).Rounded()
		if amount.Value.GreaterThanOrEqual(Epsilon) {
			transfers = append(transfers, Transfer{
				From:   debtors[i].UserID,
				To:     creditors[j].UserID,
				Amount: amount,
			})
		}

		debtors[i].Net = debtors[i].Net.Add(amount)
		creditors[j].Net = creditors[j].Net.Sub(amount)

		if debtors[i].Net.Neg().Value.LessThanOrEqual(Epsilon) {
			i++
		}
		if creditors[j].Net.Value.LessThanOrEqual(Epsilon) {
			j++
		}
	}
	return transfers
}

// Engine plans settlements and writes them back through the store.
type Engine struct {
	Expenses Store

	// now is swappable for tests; defaults to time.Now.
	now func() time.Time
}

func NewEngine(expenses Store) *Engine {
	return &Engine{Expenses: expenses, now: time.Now}
}

// SettleGroup zeroes out the group's balances by recording one
// settlement expense per planned transfer.
//
// Returns the planned transfers together with how many of them were
// persisted. When persistence fails partway through, AppliedCount is
// smaller than the plan and the error is returned alongside; see the
// partial-failure notes in the file header.
func (e *Engine) SettleGroup(ctx context.Context, groupID GroupID, memberIDs []UserID, currency Currency) (SettlementResult, error) {
	expenses, err := e.Expenses.ListExpenses(ctx, groupID)
	if err != nil {
		return SettlementResult{}, err
	}
	balances, err := ComputeBalances(expenses, memberIDs, currency)
	if err != nil {
		return SettlementResult{}, err
	}
	if balances.IsSettled() {
		return SettlementResult{}, nil
	}

	transfers := PlanTransfers(balances)
	result := SettlementResult{Transfers: transfers}

	now := e.now()
	for _, t := range transfers {
		settlement := Expense{
			GroupID:      groupID,
			PayerID:      t.From,
			PayeeID:      t.To,
			Amount:       t.Amount,
			Category:     ExpenseCategorySettlement,
			Title:        fmt.Sprintf("Settlement: %s → %s", t.From, t.To),
			IncurredAt:   now,
			IsSettlement: true,
		}
		if _, err := e.Expenses.RecordExpense(ctx, &settlement); err != nil {
			return result, fmt.Errorf("persist settlement %s → %s: %w", t.From, t.To, err)
		}
		result.AppliedCount++
	}
	return result, nil
}
