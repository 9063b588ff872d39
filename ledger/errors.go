/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error categories in one place for consistency and discoverability.
  Domain packages and the API layer wrap or map these rather than
  defining their own taxonomies.

ERROR CATEGORIES:
  1. Validation errors    - Bad input (non-positive amount, missing field,
                            removing the group creator)
  2. Authorization errors - Non-admin attempting an admin-only operation
  3. Outstanding balance  - The settlement gate blocked a membership change
  4. Not found            - Group/expense/user absent
  5. Invariant violation  - Programming error (zero-member group reached
                            the balance calculator); fatal, logged loudly
  6. Concurrency          - Optimistic membership check detected a stale
                            read; retried once before surfacing

USAGE:
  if errors.Is(err, ledger.ErrOutstandingBalance) {
      var obe *ledger.OutstandingBalanceError
      errors.As(err, &obe) // obe.Balances has the per-member breakdown
  }
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for rejected input: non-positive amounts,
	// missing required fields, or an attempt to remove the group creator.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized is returned when the acting user may not perform
	// the operation (admin-only membership changes, non-member writes).
	ErrUnauthorized = errors.New("not authorized")

	// ErrOutstandingBalance is returned when the settlement gate blocks
	// a membership change because balances are non-zero.
	ErrOutstandingBalance = errors.New("outstanding balances")

	// ErrNotFound is returned when a group, expense, or user is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation signals a programming error, not a normal
	// runtime path. Never expected in correct operation.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrConcurrentModification is returned when the optimistic version
	// check detects a stale read during a membership mutation.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes why input was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// AuthorizationError identifies the actor and the refused operation.
type AuthorizationError struct {
	ActorID   UserID
	Operation string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %s is not authorized to %s", e.ActorID, e.Operation)
}

func (e *AuthorizationError) Unwrap() error { return ErrUnauthorized }

// OutstandingBalanceError carries the full balance breakdown so callers
// can show the user exactly who still owes what.
type OutstandingBalanceError struct {
	GroupID  GroupID
	Balances BalanceSheet
}

func (e *OutstandingBalanceError) Error() string {
	var parts []string
	for _, mb := range append(e.Balances.Creditors(), e.Balances.Debtors()...) {
		parts = append(parts, fmt.Sprintf("%s: %s", mb.UserID, mb.Net.Rounded().Value.StringFixed(2)))
	}
	return fmt.Sprintf("group %s has outstanding balances (%s)", e.GroupID, strings.Join(parts, ", "))
}

func (e *OutstandingBalanceError) Unwrap() error { return ErrOutstandingBalance }

// NotFoundError names the missing resource.
type NotFoundError struct {
	Kind string // "group", "expense", "user"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvariantError marks a violated precondition. Treat as fatal.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Message)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is an expected outcome
// surfaced to the caller rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrOutstandingBalance) ||
		errors.Is(err, ErrNotFound)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
