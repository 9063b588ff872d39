package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/split-engine/api"
	"github.com/warp/split-engine/auth"
	"github.com/warp/split-engine/group"
	"github.com/warp/split-engine/ledger"
	"github.com/warp/split-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// nopNotifier drops deliveries; the API tests don't assert on fan-out.
type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, ledger.UserID, string, string) error { return nil }

type testAPI struct {
	t      *testing.T
	router http.Handler
	tokens map[string]string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	jwt := auth.NewJWTManager("test-secret", time.Hour)
	directory := group.StaticDirectory{
		"alice": {DisplayName: "Alice", Initial: "A", Color: "#e74c3c"},
		"bob":   {DisplayName: "Bob", Initial: "B", Color: "#3498db"},
	}
	c := group.NewCoordinator(group.NewMemoryStore(), store.NewMemory(), directory, nopNotifier{})
	h := api.NewHandler(c, jwt, directory, jwt)
	return &testAPI{t: t, router: api.NewRouter(h), tokens: make(map[string]string)}
}

// do performs a request as the given user, minting a token on first use.
func (a *testAPI) do(user, method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(user))
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) token(user string) string {
	a.t.Helper()
	if tok, ok := a.tokens[user]; ok {
		return tok
	}
	rec := httptest.NewRecorder()
	body, _ := json.Marshal(map[string]string{"user_id": user})
	req := httptest.NewRequest(http.MethodPost, "/api/token", bytes.NewReader(body))
	a.router.ServeHTTP(rec, req)
	require.Equal(a.t, http.StatusOK, rec.Code, "token minting failed: %s", rec.Body.String())

	var resp api.TokenResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	a.tokens[user] = resp.Token
	return resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func (a *testAPI) createGroup(user, name string) api.GroupDTO {
	a.t.Helper()
	rec := a.do(user, http.MethodPost, "/api/groups", api.CreateGroupRequest{Name: name, Currency: "USD"})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.GroupDTO](a.t, rec)
}

func (a *testAPI) addMember(actor, groupID, user string) *httptest.ResponseRecorder {
	a.t.Helper()
	return a.do(actor, http.MethodPost, "/api/groups/"+groupID+"/members", api.AddMemberRequest{UserID: user})
}

func (a *testAPI) recordExpense(user, groupID, amount string) *httptest.ResponseRecorder {
	a.t.Helper()
	return a.do(user, http.MethodPost, "/api/groups/"+groupID+"/expenses", api.RecordExpenseRequest{
		PayerID: user,
		Amount:  amount,
		Title:   "dinner",
	})
}

// =============================================================================
// AUTH & PLUMBING
// =============================================================================

func TestAPI_Healthz_Open(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do("", http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_Groups_RequireAuth(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do("", http.MethodGet, "/api/groups", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_IssueToken_RequiresUserID(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do("", http.MethodPost, "/api/token", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// GROUP LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_CreateGroup_ResolvesMembers(t *testing.T) {
	a := newTestAPI(t)

	g := a.createGroup("alice", "ski trip")

	assert.Equal(t, "ski trip", g.Name)
	assert.Equal(t, "alice", g.CreatedBy)
	require.Len(t, g.Members, 1)
	assert.Equal(t, "Alice", g.Members[0].DisplayName)
}

func TestAPI_ListGroups_OnlyOwn(t *testing.T) {
	a := newTestAPI(t)
	a.createGroup("alice", "ski trip")
	a.createGroup("bob", "flat share")

	rec := a.do("alice", http.MethodGet, "/api/groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	groups := decode[[]api.GroupDTO](t, rec)
	require.Len(t, groups, 1)
	assert.Equal(t, "ski trip", groups[0].Name)
}

func TestAPI_GetGroup_NotFound(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do("alice", http.MethodGet, "/api/groups/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// THE FULL LEDGER FLOW
// =============================================================================

func TestAPI_ExpenseToSettlementFlow(t *testing.T) {
	// GIVEN: alice and bob share a group; alice paid 90
	// WHEN: Walking the full flow over HTTP
	// THEN: Balances show the debt, membership changes are blocked
	//       with 409 + breakdown, settlement clears the gate, and the
	//       previously blocked change then succeeds

	a := newTestAPI(t)
	g := a.createGroup("alice", "ski trip")
	require.Equal(t, http.StatusNoContent, a.addMember("alice", g.ID, "bob").Code)

	rec := a.recordExpense("alice", g.ID, "90.00")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.ExpenseDTO](t, rec)
	assert.Equal(t, "90.00", created.Amount)
	assert.Equal(t, "USD", created.Currency)

	// Balances show the split.
	rec = a.do("alice", http.MethodGet, "/api/groups/"+g.ID+"/balances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balances := decode[api.BalancesDTO](t, rec)
	assert.False(t, balances.Clear)
	require.Len(t, balances.Balances, 2)
	assert.Equal(t, "45.00", balances.Balances[0].Net)
	assert.Equal(t, "Alice", balances.Balances[0].DisplayName)
	assert.Equal(t, "-45.00", balances.Balances[1].Net)

	// Membership change is blocked while the debt is outstanding.
	rec = a.addMember("alice", g.ID, "carol")
	require.Equal(t, http.StatusConflict, rec.Code)
	blocked := decode[map[string]any](t, rec)
	assert.Contains(t, blocked, "balances")

	// Settle explicitly.
	rec = a.do("bob", http.MethodPost, "/api/groups/"+g.ID+"/settle", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[api.SettlementResultDTO](t, rec)
	require.Len(t, result.Transfers, 1)
	assert.Equal(t, api.TransferDTO{From: "bob", To: "alice", Amount: "45.00"}, result.Transfers[0])
	assert.Equal(t, 1, result.AppliedCount)

	// The gate now passes and the blocked change goes through.
	rec = a.do("alice", http.MethodGet, "/api/groups/"+g.ID+"/clearance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[api.BalancesDTO](t, rec).Clear)

	require.Equal(t, http.StatusNoContent, a.addMember("alice", g.ID, "carol").Code)
}

func TestAPI_Settle_Idempotent(t *testing.T) {
	a := newTestAPI(t)
	g := a.createGroup("alice", "ski trip")
	require.Equal(t, http.StatusNoContent, a.addMember("alice", g.ID, "bob").Code)
	require.Equal(t, http.StatusCreated, a.recordExpense("alice", g.ID, "90.00").Code)

	rec := a.do("alice", http.MethodPost, "/api/groups/"+g.ID+"/settle", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do("alice", http.MethodPost, "/api/groups/"+g.ID+"/settle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[api.SettlementResultDTO](t, rec).Transfers)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_RecordExpense_InvalidAmount(t *testing.T) {
	a := newTestAPI(t)
	g := a.createGroup("alice", "ski trip")

	rec := a.do("alice", http.MethodPost, "/api/groups/"+g.ID+"/expenses", api.RecordExpenseRequest{
		PayerID: "alice", Amount: "not-a-number", Title: "dinner",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do("alice", http.MethodPost, "/api/groups/"+g.ID+"/expenses", api.RecordExpenseRequest{
		PayerID: "alice", Amount: "-5", Title: "dinner",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_AddMember_NonAdmin_Forbidden(t *testing.T) {
	a := newTestAPI(t)
	g := a.createGroup("alice", "ski trip")
	require.Equal(t, http.StatusNoContent, a.addMember("alice", g.ID, "bob").Code)

	rec := a.addMember("bob", g.ID, "carol")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_GroupReads_NonMember_Forbidden(t *testing.T) {
	// GIVEN: A group carol does not belong to
	// WHEN: She requests its details, balances, and clearance
	// THEN: Every read is rejected; group data never leaks to outsiders

	a := newTestAPI(t)
	g := a.createGroup("alice", "ski trip")
	require.Equal(t, http.StatusNoContent, a.addMember("alice", g.ID, "bob").Code)

	for _, path := range []string{
		"/api/groups/" + g.ID,
		"/api/groups/" + g.ID + "/balances",
		"/api/groups/" + g.ID + "/clearance",
	} {
		rec := a.do("carol", http.MethodGet, path, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, "GET %s", path)
	}

	rec := a.do("bob", http.MethodGet, "/api/groups/"+g.ID+"/balances", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "members still read balances")
}

func TestAPI_RemoveCreator_BadRequest(t *testing.T) {
	a := newTestAPI(t)
	g := a.createGroup("alice", "ski trip")

	rec := a.do("alice", http.MethodDelete, "/api/groups/"+g.ID+"/members/alice", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_DeleteGroup_BlockedConflict(t *testing.T) {
	a := newTestAPI(t)
	g := a.createGroup("alice", "ski trip")
	require.Equal(t, http.StatusNoContent, a.addMember("alice", g.ID, "bob").Code)
	require.Equal(t, http.StatusCreated, a.recordExpense("alice", g.ID, "90.00").Code)

	rec := a.do("alice", http.MethodDelete, "/api/groups/"+g.ID, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_DeleteExpense_SettlementImmutable(t *testing.T) {
	a := newTestAPI(t)
	g := a.createGroup("alice", "ski trip")
	require.Equal(t, http.StatusNoContent, a.addMember("alice", g.ID, "bob").Code)
	require.Equal(t, http.StatusCreated, a.recordExpense("alice", g.ID, "90.00").Code)
	require.Equal(t, http.StatusOK, a.do("alice", http.MethodPost, "/api/groups/"+g.ID+"/settle", nil).Code)

	rec := a.do("alice", http.MethodGet, "/api/groups/"+g.ID+"/expenses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var settlementID string
	for _, e := range decode[[]api.ExpenseDTO](t, rec) {
		if e.IsSettlement {
			settlementID = e.ID
		}
	}
	require.NotEmpty(t, settlementID)

	rec = a.do("alice", http.MethodDelete, "/api/expenses/"+settlementID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
