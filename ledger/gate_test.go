package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/split-engine/ledger"
	"github.com/warp/split-engine/ledger/store"
)

func TestGate_CheckClear_CleanGroup(t *testing.T) {
	// GIVEN: A group with no expenses
	// WHEN: Running the gate
	// THEN: Clear, with an all-zero breakdown

	gate := ledger.NewGate(store.NewMemory())

	clearance, err := gate.CheckClear(context.Background(), "g1", members("A", "B"), "USD")
	require.NoError(t, err)

	assert.True(t, clearance.Clear)
	assert.Len(t, clearance.Balances, 2)
}

func TestGate_Require_Blocked_CarriesBreakdown(t *testing.T) {
	// GIVEN: A paid 90 for [A, B, C], nothing settled
	// WHEN: Requiring clearance
	// THEN: An OutstandingBalanceError with the per-member breakdown

	expenses := store.NewMemory()
	e := expense("g1", "A", "90")
	_, err := expenses.RecordExpense(context.Background(), &e)
	require.NoError(t, err)

	gate := ledger.NewGate(expenses)
	err = gate.Require(context.Background(), "g1", members("A", "B", "C"), "USD")

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrOutstandingBalance)

	var obe *ledger.OutstandingBalanceError
	require.True(t, errors.As(err, &obe))
	assert.Equal(t, ledger.GroupID("g1"), obe.GroupID)
	assert.Equal(t, "60.00", obe.Balances["A"].Value.StringFixed(2))
	assert.Equal(t, "-30.00", obe.Balances["B"].Value.StringFixed(2))
}

func TestGate_Require_SubCentResidue_Clear(t *testing.T) {
	// GIVEN: A 100 expense split three ways, then settled with
	//        two-decimal transfers (sub-cent residue remains)
	// WHEN: Requiring clearance
	// THEN: The residue is within tolerance and the gate passes

	expenses := store.NewMemory()
	ctx := context.Background()
	for _, e := range []ledger.Expense{
		expense("g1", "A", "100"),
		settlement("g1", "B", "A", "33.33"),
		settlement("g1", "C", "A", "33.33"),
	} {
		e := e
		_, err := expenses.RecordExpense(ctx, &e)
		require.NoError(t, err)
	}

	gate := ledger.NewGate(expenses)
	assert.NoError(t, gate.Require(ctx, "g1", members("A", "B", "C"), "USD"))
}
