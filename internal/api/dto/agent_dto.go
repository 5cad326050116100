package dto

import (
	"time"

	"github.com/superpool/dispute-service/internal/domain"
)

// UpsertAgentRequest payload for PUT /agents/:id.
type UpsertAgentRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Available *bool  `json:"available"`
}

// AvailabilityRequest payload.
type AvailabilityRequest struct {
	Available *bool `json:"available"`
}

// AgentResponse describes an agent in the directory.
type AgentResponse struct {
	UserID         string     `json:"user_id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Workload       int        `json:"workload"`
	Available      bool       `json:"available"`
	LastAssignedAt *time.Time `json:"last_assigned_at"`
}

// NewAgentResponse maps an agent.
func NewAgentResponse(a *domain.Agent) AgentResponse {
	return AgentResponse{
		UserID:         a.UserID,
		Name:           a.Name,
		Email:          a.Email,
		Workload:       a.Workload,
		Available:      a.Available,
		LastAssignedAt: a.LastAssignedAt,
	}
}
