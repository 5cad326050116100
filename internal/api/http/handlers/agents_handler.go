package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/superpool/dispute-service/internal/api/dto"
	"github.com/superpool/dispute-service/internal/auth"
	"github.com/superpool/dispute-service/internal/repository"
	"github.com/superpool/dispute-service/internal/service"
	"github.com/superpool/dispute-service/pkg/util"
)

// AgentsHandler manages the agent directory.
type AgentsHandler struct {
	assignment *service.AssignmentService
}

// NewAgentsHandler constructs handler.
func NewAgentsHandler(assignment *service.AssignmentService) *AgentsHandler {
	return &AgentsHandler{assignment: assignment}
}

// ListAgents GET /agents.
func (h *AgentsHandler) ListAgents(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return util.NewUnauthorized("authentication required")
	}
	filter := repository.AgentFilter{Limit: maxPageSize}
	if raw := c.Query("available"); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			return util.NewValidationError("invalid query", map[string]any{"available": "must be a boolean"})
		}
		filter.Available = &available
	}
	agents, err := h.assignment.ListAgents(c.UserContext(), principal, filter)
	if err != nil {
		return err
	}
	items := make([]dto.AgentResponse, 0, len(agents))
	for i := range agents {
		items = append(items, dto.NewAgentResponse(&agents[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpsertAgent PUT /agents/:id.
func (h *AgentsHandler) UpsertAgent(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return util.NewUnauthorized("authentication required")
	}
	var req dto.UpsertAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	available := true
	if req.Available != nil {
		available = *req.Available
	}
	agent, err := h.assignment.UpsertAgent(c.UserContext(), principal, service.AgentInput{
		UserID:    c.Params("id"),
		Name:      req.Name,
		Email:     req.Email,
		Available: available,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentResponse(agent)})
}

// SetAvailability POST /agents/:id/availability.
func (h *AgentsHandler) SetAvailability(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return util.NewUnauthorized("authentication required")
	}
	var req dto.AvailabilityRequest
	if err := c.BodyParser(&req); err != nil || req.Available == nil {
		return util.NewValidationError("invalid payload", map[string]any{"available": "required"})
	}
	agent, err := h.assignment.SetAvailability(c.UserContext(), principal, c.Params("id"), *req.Available)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentResponse(agent)})
}
