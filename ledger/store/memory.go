// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/split-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	expenses map[ledger.ExpenseID]ledger.Expense

	// FailAfter makes RecordExpense fail once this many writes have
	// succeeded. Used to exercise partial-settlement behavior; zero
	// disables it.
	FailAfter int
	writes    int
}

var _ ledger.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{expenses: make(map[ledger.ExpenseID]ledger.Expense)}
}

func (m *Memory) ListExpenses(_ context.Context, groupID ledger.GroupID) ([]ledger.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Expense
	for _, e := range m.expenses {
		if e.GroupID == groupID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) GetExpense(_ context.Context, id ledger.ExpenseID) (*ledger.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.expenses[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "expense", ID: string(id)}
	}
	return &e, nil
}

func (m *Memory) RecordExpense(_ context.Context, e *ledger.Expense) (ledger.ExpenseID, error) {
	if err := ledger.ValidateExpense(e); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAfter > 0 && m.writes >= m.FailAfter {
		return "", context.DeadlineExceeded
	}

	if e.ID == "" {
		e.ID = ledger.ExpenseID(uuid.New().String())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.expenses[e.ID] = *e
	m.writes++
	return e.ID, nil
}

func (m *Memory) DeleteExpense(_ context.Context, id ledger.ExpenseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotent: deleting an absent expense is a success.
	delete(m.expenses, id)
	return nil
}
