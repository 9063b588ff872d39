/*
handlers.go - HTTP API handlers for the group ledger

PURPOSE:
  Exposes the ledger engine and membership coordinator via REST.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Groups:
    POST   /api/groups                       Create group
    GET    /api/groups                       List own groups
    GET    /api/groups/{id}                  Get group with members
    DELETE /api/groups/{id}                  Delete group (gated)

  Membership:
    POST   /api/groups/{id}/members          Add member (gated)
    DELETE /api/groups/{id}/members/{userID} Remove member (gated)

  Ledger:
    GET    /api/groups/{id}/expenses         List expenses
    POST   /api/groups/{id}/expenses         Record expense
    PUT    /api/groups/{id}/expenses/{expID} Replace expense
    DELETE /api/expenses/{id}                Delete expense
    GET    /api/groups/{id}/balances         Balance sheet
    GET    /api/groups/{id}/clearance        Settlement gate verdict
    POST   /api/groups/{id}/settle           Run the settlement engine

  Auth:
    POST   /api/token                        Issue a session token

ERROR HANDLING:
  Errors map to JSON with the appropriate HTTP status:
  - 400: validation errors, invalid input
  - 403: authorization errors
  - 404: resource not found
  - 409: outstanding balances (body carries the breakdown) or a
         membership write conflict
  - 500: internal errors and invariant violations (logged loudly)
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/split-engine/auth"
	"github.com/warp/split-engine/group"
	"github.com/warp/split-engine/ledger"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Coordinator *group.Coordinator
	Identity    group.Identity
	Directory   group.Directory
	JWT         *auth.JWTManager
}

func NewHandler(coordinator *group.Coordinator, identity group.Identity, directory group.Directory, jwt *auth.JWTManager) *Handler {
	return &Handler{Coordinator: coordinator, Identity: identity, Directory: directory, JWT: jwt}
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Identity.CurrentUserID(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	g, err := h.Coordinator.CreateGroup(r.Context(), req.Name, ledger.Currency(req.Currency), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	members := h.Coordinator.ResolveMembers(r.Context(), g)
	writeJSON(w, http.StatusCreated, toGroupDTO(g, members))
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Identity.CurrentUserID(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	groups, err := h.Coordinator.ListForUser(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]GroupDTO, len(groups))
	for i, g := range groups {
		dtos[i] = toGroupDTO(g, h.Coordinator.ResolveMembers(r.Context(), g))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Identity.CurrentUserID(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	g, err := h.Coordinator.Get(r.Context(), ledger.GroupID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !g.IsMember(actor) {
		writeDomainError(w, &ledger.AuthorizationError{ActorID: actor, Operation: "read the group"})
		return
	}
	members := h.Coordinator.ResolveMembers(r.Context(), g)
	writeJSON(w, http.StatusOK, toGroupDTO(g, members))
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Identity.CurrentUserID(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Coordinator.DeleteGroup(r.Context(), ledger.GroupID(chi.URLParam(r, "id")), actor); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// MEMBERSHIP HANDLERS
// =============================================================================

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Identity.CurrentUserID(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	groupID := ledger.GroupID(chi.URLParam(r, "id"))
	if err := h.Coordinator.AddMember(r.Context(), groupID, ledger.UserID(req.UserID), actor); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Identity.CurrentUserID(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	groupID := ledger.GroupID(chi.URLParam(r, "id"))
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	if err := h.Coordinator.RemoveMember(r.Context(), groupID, userID, actor); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BALANCE & SETTLEMENT HANDLERS
// =============================================================================

func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Identity.CurrentUserID(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	groupID := ledger.GroupID(chi.URLParam(r, "id"))
	clearance, err := h.Coordinator.CheckClear(r.Context(), groupID, actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toBalancesDTO(r, groupID, clearance))
}

func (h *Handler) CheckClear(w http.ResponseWriter, r *http.Request) {
	// Same payload as balances; kept as its own route so clients can
	// ask the gate question directly.
	h.GetBalances(w, r)
}

func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Identity.CurrentUserID(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	groupID := ledger.GroupID(chi.URLParam(r, "id"))
	result, err := h.Coordinator.Settle(r.Context(), groupID, actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	settlementTransfers.Add(float64(result.AppliedCount))

	dto := SettlementResultDTO{
		Transfers:    make([]TransferDTO, len(result.Transfers)),
		AppliedCount: result.AppliedCount,
	}
	for i, t := range result.Transfers {
		dto.Transfers[i] = TransferDTO{
			From:   string(t.From),
			To:     string(t.To),
			Amount: t.Amount.Value.StringFixed(2),
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Identity.CurrentUserID(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	expenses, err := h.Coordinator.ListExpenses(r.Context(), ledger.GroupID(chi.URLParam(r, "id")), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Identity.CurrentUserID(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	expense, ok := h.decodeExpense(w, r, ledger.GroupID(chi.URLParam(r, "id")))
	if !ok {
		return
	}
	id, err := h.Coordinator.RecordExpense(r.Context(), expense, actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	expense.ID = id
	writeJSON(w, http.StatusCreated, toExpenseDTO(*expense))
}

func (h *Handler) ReplaceExpense(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Identity.CurrentUserID(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	expense, ok := h.decodeExpense(w, r, ledger.GroupID(chi.URLParam(r, "id")))
	if !ok {
		return
	}
	expense.ID = ledger.ExpenseID(chi.URLParam(r, "expID"))
	if err := h.Coordinator.ReplaceExpense(r.Context(), expense, actor); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(*expense))
}

func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Identity.CurrentUserID(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Coordinator.DeleteExpense(r.Context(), ledger.ExpenseID(chi.URLParam(r, "id")), actor); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// AUTH HANDLER
// =============================================================================

// IssueToken mints a session token for a user id. Stands in for the
// external identity provider in dev and test deployments.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	token, err := h.JWT.Generate(ledger.UserID(req.UserID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decodeExpense(w http.ResponseWriter, r *http.Request, groupID ledger.GroupID) (*ledger.Expense, bool) {
	var req RecordExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return nil, false
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return nil, false
	}

	incurredAt := time.Now().UTC()
	if req.IncurredAt != "" {
		if incurredAt, err = time.Parse(time.RFC3339, req.IncurredAt); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid incurred_at (use RFC 3339)", err)
			return nil, false
		}
	}

	return &ledger.Expense{
		GroupID:     groupID,
		PayerID:     ledger.UserID(req.PayerID),
		Amount:      ledger.NewAmountFromDecimal(amount, ""),
		Category:    req.Category,
		Title:       req.Title,
		Description: req.Description,
		IncurredAt:  incurredAt,
	}, true
}

func (h *Handler) toBalancesDTO(r *http.Request, groupID ledger.GroupID, clearance ledger.Clearance) BalancesDTO {
	dto := BalancesDTO{GroupID: string(groupID), Clear: clearance.Clear}
	for _, mb := range balanceEntries(clearance.Balances) {
		name := string(mb.UserID)
		if info, err := h.Directory.ResolveDisplayInfo(r.Context(), mb.UserID); err == nil {
			name = info.DisplayName
		}
		dto.Balances = append(dto.Balances, MemberBalanceDTO{
			UserID:      string(mb.UserID),
			DisplayName: name,
			Net:         mb.Net.Rounded().Value.StringFixed(2),
		})
	}
	return dto
}

// balanceEntries flattens a sheet into a stable order: creditors
// first, then debtors, then the settled members.
func balanceEntries(balances ledger.BalanceSheet) []ledger.MemberBalance {
	entries := append(balances.Creditors(), balances.Debtors()...)
	seen := make(map[ledger.UserID]bool, len(entries))
	for _, e := range entries {
		seen[e.UserID] = true
	}
	var settled []ledger.MemberBalance
	for id, amt := range balances {
		if !seen[id] {
			settled = append(settled, ledger.MemberBalance{UserID: id, Net: amt})
		}
	}
	ledger.SortByMagnitude(settled)
	return append(entries, settled...)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := map[string]any{"error": message}
	if err != nil {
		resp["detail"] = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the ledger error taxonomy onto HTTP statuses.
// An outstanding-balance rejection carries the per-member breakdown so
// the user can decide whether to settle first.
func writeDomainError(w http.ResponseWriter, err error) {
	var obe *ledger.OutstandingBalanceError
	if errors.As(err, &obe) {
		balances := make(map[string]string, len(obe.Balances))
		for id, amt := range obe.Balances {
			balances[string(id)] = amt.Rounded().Value.StringFixed(2)
		}
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    "outstanding balances",
			"group_id": string(obe.GroupID),
			"balances": balances,
		})
		return
	}

	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "Not authorized", err)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "Concurrent modification, retry", err)
	case errors.Is(err, ledger.ErrInvariantViolation):
		slog.Error("invariant violation reached the API layer", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
