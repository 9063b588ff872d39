/*
store.go - Expense persistence interface

PURPOSE:
  Defines the contract between the ledger engine and the document
  store. Implementations persist expense records scoped to a group;
  they enforce per-record validation but no cross-record invariant -
  ordering and aggregation are the balance calculator's concern.

CONTRACT:
  ListExpenses:  All non-deleted expenses for a group, any order.
  RecordExpense: Rejects amount <= 0 or missing group/payer with a
                 ValidationError; never persists an invalid record.
  DeleteExpense: No-op success when the record is already absent, so
                 deletion is idempotent and safe to retry.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite store
  - ledger/store: In-memory store for testing/dev

SEE ALSO:
  - store/sqlite/sqlite.go: Concrete implementation
  - group/coordinator.go: Orchestrates writes through this interface
*/
package ledger

import "context"

// Store handles persistence of expense records.
type Store interface {
	// ListExpenses returns all expenses for a group in no guaranteed
	// order.
	ListExpenses(ctx context.Context, groupID GroupID) ([]Expense, error)

	// GetExpense retrieves a single expense. Returns a NotFoundError
	// if absent.
	GetExpense(ctx context.Context, id ExpenseID) (*Expense, error)

	// RecordExpense validates and persists an expense, assigning an ID
	// and CreatedAt if unset. Returns the assigned ID.
	RecordExpense(ctx context.Context, e *Expense) (ExpenseID, error)

	// DeleteExpense removes an expense. Succeeds silently if the
	// expense is already gone.
	DeleteExpense(ctx context.Context, id ExpenseID) error
}

// ValidateExpense applies the write-time rules shared by every Store
// implementation: a positive amount and a resolvable group and payer.
func ValidateExpense(e *Expense) error {
	if e.GroupID == "" {
		return &ValidationError{Field: "group_id", Message: "required"}
	}
	if e.PayerID == "" {
		return &ValidationError{Field: "payer_id", Message: "required"}
	}
	if !e.Amount.Value.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	// Amounts are currency-scaled: at most 2 fractional digits.
	if !e.Amount.Value.Equal(e.Amount.Value.Round(2)) {
		return &ValidationError{Field: "amount", Message: "more than 2 decimal places"}
	}
	if e.IsSettlement && e.PayeeID == "" {
		return &ValidationError{Field: "payee_id", Message: "required on settlement entries"}
	}
	if !e.IsSettlement && e.PayeeID != "" {
		return &ValidationError{Field: "payee_id", Message: "only settlement entries carry a payee"}
	}
	return nil
}
