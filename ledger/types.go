/*
Package ledger provides the core group-ledger engine.

PURPOSE:
  This package contains the domain-agnostic core of the shared-expense
  system: expense records, per-member balance calculation, the
  settlement gate, and the settlement engine. It holds no group
  membership state of its own - callers supply the member set and the
  package answers "who owes whom, and is this group clear?"

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A monetary quantity with an ISO currency code
  - Expense: An immutable ledger entry (organic expense or settlement)
  - BalanceSheet: Per-member net positions derived from expenses
  - UserID/GroupID/ExpenseID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors.
     Rounding happens only at display/comparison, never while summing.
  2. Derivation: Balances are never stored. They are recomputed from
     the full expense history on every read.
  3. Type Safety: Strong typing for IDs prevents mixing user/group IDs.

SEE ALSO:
  - balance.go: Balance calculation from expenses
  - gate.go: Clear/blocked decision for membership changes
  - settle.go: Transfer planning and settlement persistence
  - store.go: Expense persistence interface
*/
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Monetary quantity with currency
// =============================================================================

// Currency is an ISO 4217 code such as "USD" or "EUR".
type Currency string

type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

func NewAmount(value float64, currency Currency) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Currency: currency}
}

func NewAmountFromDecimal(value decimal.Decimal, currency Currency) Amount {
	return Amount{Value: value, Currency: currency}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount { return Amount{Value: decimal.Zero, Currency: a.Currency} }

func (a Amount) Add(b Amount) Amount { return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency} }
func (a Amount) Sub(b Amount) Amount { return Amount{Value: a.Value.Sub(b.Value), Currency: a.Currency} }

func (a Amount) Div(s decimal.Decimal) Amount {
	return Amount{Value: a.Value.Div(s), Currency: a.Currency}
}

func (a Amount) Neg() Amount { return Amount{Value: a.Value.Neg(), Currency: a.Currency} }
func (a Amount) Abs() Amount { return Amount{Value: a.Value.Abs(), Currency: a.Currency} }

func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Rounded returns the amount rounded to 2 decimal places. Display and
// comparison only - never round while accumulating.
func (a Amount) Rounded() Amount {
	return Amount{Value: a.Value.Round(2), Currency: a.Currency}
}

// Epsilon is the noise tolerance for balance comparisons. Any balance
// whose absolute value is at or below this is treated as exactly zero.
var Epsilon = decimal.RequireFromString("0.01")

// IsSettledAmount reports whether the amount is zero within Epsilon.
func (a Amount) IsSettledAmount() bool {
	return a.Value.Abs().LessThanOrEqual(Epsilon)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type GroupID string
type ExpenseID string

// =============================================================================
// EXPENSE - Immutable ledger entry
// =============================================================================

// ExpenseCategorySettlement marks entries written by the settlement
// engine. They are ordinary ledger entries and participate in every
// future balance computation, but are never mutated after creation.
const ExpenseCategorySettlement = "Settlement"

type Expense struct {
	ID          ExpenseID
	GroupID     GroupID
	PayerID     UserID
	Amount      Amount
	Category    string
	Title       string
	Description string
	IncurredAt  time.Time

	// Settlement entries carry the recipient. The full amount accrues
	// to PayeeID instead of being split across the group; that is what
	// lets a settlement zero out balances. Empty on organic expenses.
	IsSettlement bool
	PayeeID      UserID

	CreatedAt time.Time
}

// =============================================================================
// BALANCE SHEET - Derived per-member positions
// =============================================================================

// MemberBalance is one member's net position. Positive means the group
// owes this member; negative means this member owes the group.
type MemberBalance struct {
	UserID UserID
	Net    Amount
}

// BalanceSheet maps each member to their net position. It is always a
// derived value - compute it with ComputeBalances, never persist it.
type BalanceSheet map[UserID]Amount

// Total returns the sum of all net positions. When every payer is a
// member this is zero within Epsilon; non-terminating shares leave a
// residue at division precision, so callers must not expect exact zero.
func (bs BalanceSheet) Total() decimal.Decimal {
	total := decimal.Zero
	for _, amt := range bs {
		total = total.Add(amt.Value)
	}
	return total
}

// IsSettled reports whether every balance is zero within Epsilon.
func (bs BalanceSheet) IsSettled() bool {
	for _, amt := range bs {
		if !amt.IsSettledAmount() {
			return false
		}
	}
	return true
}

// Creditors returns members owed money (net > Epsilon), largest first.
// Ties break on UserID so transfer planning is deterministic.
func (bs BalanceSheet) Creditors() []MemberBalance {
	var out []MemberBalance
	for id, amt := range bs {
		if amt.Value.GreaterThan(Epsilon) {
			out = append(out, MemberBalance{UserID: id, Net: amt})
		}
	}
	SortByMagnitude(out)
	return out
}

// Debtors returns members owing money (net < -Epsilon), largest debt
// first, with the same deterministic ordering as Creditors.
func (bs BalanceSheet) Debtors() []MemberBalance {
	var out []MemberBalance
	for id, amt := range bs {
		if amt.Value.LessThan(Epsilon.Neg()) {
			out = append(out, MemberBalance{UserID: id, Net: amt})
		}
	}
	SortByMagnitude(out)
	return out
}

// Rounded returns a copy with every balance rounded to 2 decimals,
// for display.
func (bs BalanceSheet) Rounded() BalanceSheet {
	out := make(BalanceSheet, len(bs))
	for id, amt := range bs {
		out[id] = amt.Rounded()
	}
	return out
}

// SortByMagnitude orders balances by absolute value descending, with
// UserID as the tie-break, so downstream iteration is deterministic.
func SortByMagnitude(mbs []MemberBalance) {
	sort.Slice(mbs, func(i, j int) bool {
		a, b := mbs[i].Net.Value.Abs(), mbs[j].Net.Value.Abs()
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return mbs[i].UserID < mbs[j].UserID
	})
}
