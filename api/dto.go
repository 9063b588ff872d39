/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication. These decouple the internal
  domain model from the external contract. Amounts travel as strings
  ("12.34") so clients never see binary floating point.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs.
  DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/warp/split-engine/group"
	"github.com/warp/split-engine/ledger"
)

// =============================================================================
// GROUPS
// =============================================================================

type MemberDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Initial     string `json:"initial"`
	Color       string `json:"color"`
}

type GroupDTO struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Currency  string      `json:"currency"`
	CreatedBy string      `json:"created_by"`
	Members   []MemberDTO `json:"members"`
	CreatedAt string      `json:"created_at"`
}

type CreateGroupRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id"`
}

// =============================================================================
// EXPENSES
// =============================================================================

type ExpenseDTO struct {
	ID           string `json:"id"`
	GroupID      string `json:"group_id"`
	PayerID      string `json:"payer_id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Category     string `json:"category"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	IncurredAt   string `json:"incurred_at"`
	IsSettlement bool   `json:"is_settlement"`
	PayeeID      string `json:"payee_id,omitempty"`
}

type RecordExpenseRequest struct {
	PayerID     string `json:"payer_id"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	IncurredAt  string `json:"incurred_at,omitempty"` // RFC 3339
}

// =============================================================================
// BALANCES & SETTLEMENT
// =============================================================================

type MemberBalanceDTO struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Net         string `json:"net"`
}

type BalancesDTO struct {
	GroupID  string             `json:"group_id"`
	Clear    bool               `json:"clear"`
	Balances []MemberBalanceDTO `json:"balances"`
}

type TransferDTO struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type SettlementResultDTO struct {
	Transfers    []TransferDTO `json:"transfers"`
	AppliedCount int           `json:"applied_count"`
}

// =============================================================================
// AUTH
// =============================================================================

type TokenRequest struct {
	UserID string `json:"user_id"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toGroupDTO(g *group.Group, members []group.Member) GroupDTO {
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = MemberDTO{
			ID:          string(m.ID),
			DisplayName: m.DisplayName,
			Initial:     m.Initial,
			Color:       m.Color,
		}
	}
	return GroupDTO{
		ID:        string(g.ID),
		Name:      g.Name,
		Currency:  string(g.Currency),
		CreatedBy: string(g.CreatedBy),
		Members:   dtos,
		CreatedAt: g.CreatedAt.Format(time.RFC3339),
	}
}

func toExpenseDTO(e ledger.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:           string(e.ID),
		GroupID:      string(e.GroupID),
		PayerID:      string(e.PayerID),
		Amount:       e.Amount.Value.StringFixed(2),
		Currency:     string(e.Amount.Currency),
		Category:     e.Category,
		Title:        e.Title,
		Description:  e.Description,
		IncurredAt:   e.IncurredAt.Format(time.RFC3339),
		IsSettlement: e.IsSettlement,
		PayeeID:      string(e.PayeeID),
	}
}
