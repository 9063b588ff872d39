/*
balance.go - Equal-split balance calculation

PURPOSE:
  Computes every member's net position from a group's full expense
  history. This is the central calculation that answers "who has paid
  more than their fair share, and who owes?"

ALGORITHM (equal split):
  total = sum of organic expense amounts
  share = total / member count
  balance[member] = (amount paid by member) - share
                  + (settlements paid) - (settlements received)

  Settlement entries MUST be included: they are the engine's own
  corrective transfers, and excluding them would make every settled
  group look permanently unbalanced. They are direct payer-to-payee
  transfers, so the full amount accrues to the recipient instead of
  being split - splitting a settlement across the group would leave
  the group unbalanced after every settlement pass.

ZERO-SUM PROPERTY:
  When every payer is a member, the balances sum to zero up to
  division precision: sum(paid) == total and the shares sum back to
  total, except that a non-terminating share (100/3) is truncated at
  the decimal library's division precision, leaving a residue far
  below Epsilon. Treat the sum as zero within Epsilon, never as an
  exact zero.

ROUNDING:
  Accumulation is exact decimal arithmetic. The only division is
  total / memberCount, carried at full decimal precision. Round to
  2 decimals at display/comparison time only, so rounding error never
  compounds across large expense sets.

SEE ALSO:
  - gate.go: Uses these balances for the clear/blocked decision
  - settle.go: Turns non-zero balances into transfers
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

// ComputeBalances derives the per-member balance sheet from a group's
// expenses. Pure function: no I/O, no side effects.
//
// An empty member set is a programming error - a group with zero
// members cannot exist - so it fails with an InvariantError rather
// than returning an empty sheet the caller might mistake for settled.
func ComputeBalances(expenses []Expense, memberIDs []UserID, currency Currency) (BalanceSheet, error) {
	if len(memberIDs) == 0 {
		return nil, &InvariantError{Message: "balance calculation over zero members"}
	}

	total := decimal.Zero
	net := make(map[UserID]decimal.Decimal, len(memberIDs))
	for _, id := range memberIDs {
		net[id] = decimal.Zero
	}

	for _, e := range expenses {
		if e.IsSettlement {
			// Direct transfer: payer's position improves by the full
			// amount, the recipient's drops by the same.
			if sum, ok := net[e.PayerID]; ok {
				net[e.PayerID] = sum.Add(e.Amount.Value)
			}
			if sum, ok := net[e.PayeeID]; ok {
				net[e.PayeeID] = sum.Sub(e.Amount.Value)
			}
			continue
		}
		total = total.Add(e.Amount.Value)
		if sum, ok := net[e.PayerID]; ok {
			net[e.PayerID] = sum.Add(e.Amount.Value)
		}
	}

	share := total.Div(decimal.NewFromInt(int64(len(memberIDs))))

	sheet := make(BalanceSheet, len(memberIDs))
	for _, id := range memberIDs {
		sheet[id] = NewAmountFromDecimal(net[id].Sub(share), currency)
	}
	return sheet, nil
}
