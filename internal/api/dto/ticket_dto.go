package dto

import (
	"time"

	"github.com/superpool/dispute-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Category    domain.TicketCategory `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
	Description string                `json:"description"`
	CustomerID  string                `json:"customer_id"`
	MerchantID  string                `json:"merchant_id"`
	InsurerID   string                `json:"insurer_id"`
	PolicyID    *string               `json:"policy_id"`
	ClaimID     *string               `json:"claim_id"`
}

// UpdateTicketRequest payload. Omitted fields stay unchanged.
type UpdateTicketRequest struct {
	Description *string                `json:"description"`
	Priority    *domain.TicketPriority `json:"priority"`
}

// AssignTicketRequest payload. An empty agent id requests auto-assignment.
type AssignTicketRequest struct {
	AgentID string `json:"agent_id"`
}

// EscalateTicketRequest payload.
type EscalateTicketRequest struct {
	Reason string `json:"reason"`
}

// TicketSummary response.
type TicketSummary struct {
	ID               string                `json:"id"`
	ExternalKey      string                `json:"external_key"`
	Category         domain.TicketCategory `json:"category"`
	Priority         domain.TicketPriority `json:"priority"`
	Status           domain.TicketStatus   `json:"status"`
	MerchantID       string                `json:"merchant_id"`
	CustomerID       string                `json:"customer_id"`
	AssigneeID       *string               `json:"assignee_id"`
	LastTransitionAt time.Time             `json:"last_transition_at"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description string                  `json:"description"`
	InsurerID   string                  `json:"insurer_id"`
	PolicyID    *string                 `json:"policy_id"`
	ClaimID     *string                 `json:"claim_id"`
	Version     int                     `json:"version"`
	History     []TicketHistoryResponse `json:"history"`
}

// TicketHistoryResponse is one audit log entry.
type TicketHistoryResponse struct {
	Seq       int                  `json:"seq"`
	Timestamp time.Time            `json:"timestamp"`
	Action    domain.HistoryAction `json:"action"`
	ActorID   string               `json:"actor_id"`
	Note      string               `json:"note,omitempty"`
}

// NewTicketSummary maps a ticket to its list representation.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:               t.ID,
		ExternalKey:      t.ExternalKey,
		Category:         t.Category,
		Priority:         t.Priority,
		Status:           t.Status,
		MerchantID:       t.MerchantID,
		CustomerID:       t.CustomerID,
		AssigneeID:       t.AssigneeID,
		LastTransitionAt: t.LastTransitionAt,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

// NewTicketDetail maps a ticket and its history.
func NewTicketDetail(t *domain.Ticket) TicketDetailResponse {
	history := make([]TicketHistoryResponse, 0, len(t.History))
	for _, h := range t.History {
		history = append(history, TicketHistoryResponse{
			Seq:       h.Seq,
			Timestamp: h.Timestamp,
			Action:    h.Action,
			ActorID:   h.ActorID,
			Note:      h.Note,
		})
	}
	return TicketDetailResponse{
		TicketSummary: NewTicketSummary(t),
		Description:   t.Description,
		InsurerID:     t.InsurerID,
		PolicyID:      t.PolicyID,
		ClaimID:       t.ClaimID,
		Version:       t.Version,
		History:       history,
	}
}
