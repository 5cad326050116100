package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/superpool/dispute-service/internal/domain"
	"github.com/superpool/dispute-service/internal/lifecycle"
	"github.com/superpool/dispute-service/internal/repository"
)

// maxClaimAttempts bounds retries when another assignment changes the
// chosen agent's workload between selection and claim.
const maxClaimAttempts = 3

// AssignmentService handles ticket assignment and the agent directory.
type AssignmentService struct {
	manager             *lifecycle.Manager
	agents              repository.AgentRepository
	guard               *ticketGuard
	escalateWhenNoAgent bool
	now                 func() time.Time
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Ticket              TicketDependencies
	EscalateWhenNoAgent bool
	Now                 func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	s := &AssignmentService{
		manager:             deps.Ticket.Manager,
		agents:              deps.Ticket.Agents,
		guard:               newTicketGuard(deps.Ticket),
		escalateWhenNoAgent: deps.EscalateWhenNoAgent,
		now:                 deps.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// AssignTicket assigns the ticket to agentID, or picks an agent with the
// assignment policy when agentID is empty. Agents may only take tickets
// for themselves.
func (s *AssignmentService) AssignTicket(ctx context.Context, actor domain.Principal, ticketID, agentID string) (*domain.Ticket, error) {
	agentID = strings.TrimSpace(agentID)
	if !actor.IsStaff() && actor.Type != domain.SubjectTypeSystem {
		return nil, domain.ErrForbidden
	}
	if actor.Role == domain.StaffRoleAgent && agentID != actor.ID {
		return nil, fmt.Errorf("agents may only assign tickets to themselves: %w", domain.ErrForbidden)
	}

	var previous *string
	saved, err := s.guard.mutate(ctx, ticketID, func(ticket *domain.Ticket) (*domain.Ticket, error) {
		if !lifecycle.CanTransition("assign", ticket.Status) {
			return nil, &domain.TransitionError{Op: "assign", From: ticket.Status}
		}
		previous = ticket.AssigneeID
		if agentID == "" {
			return s.autoAssign(ctx, ticket, actor.ID)
		}
		return s.assignTo(ctx, ticket, agentID, actor.ID)
	})
	if err != nil {
		return nil, err
	}
	if previous != nil && saved.AssigneeID != nil && *previous != *saved.AssigneeID {
		s.guard.releaseAgent(ctx, s.agents, *previous)
	}
	return saved, nil
}

func (s *AssignmentService) assignTo(ctx context.Context, ticket *domain.Ticket, agentID, actorID string) (*domain.Ticket, error) {
	for attempt := 1; ; attempt++ {
		agent, err := s.agents.GetByID(ctx, agentID)
		if err != nil {
			return nil, err
		}
		if holdsTicket(ticket, agent.UserID) {
			return s.manager.Assign(ctx, ticket, *agent, actorID)
		}
		err = s.agents.ClaimAssignment(ctx, *agent, s.now())
		if err == nil {
			return s.commit(ctx, ticket, *agent, actorID)
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) || attempt >= maxClaimAttempts {
			return nil, err
		}
	}
}

func (s *AssignmentService) autoAssign(ctx context.Context, ticket *domain.Ticket, actorID string) (*domain.Ticket, error) {
	for attempt := 1; ; attempt++ {
		agent, err := s.manager.SelectAvailableAgent(ctx)
		if errors.Is(err, domain.ErrNoAgentAvailable) {
			return s.noAgent(ctx, ticket, actorID)
		}
		if err != nil {
			return nil, err
		}
		if holdsTicket(ticket, agent.UserID) {
			return s.manager.Assign(ctx, ticket, agent, actorID)
		}
		err = s.agents.ClaimAssignment(ctx, agent, s.now())
		if err == nil {
			return s.commit(ctx, ticket, agent, actorID)
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) || attempt >= maxClaimAttempts {
			return nil, err
		}
		s.guard.logger.Debug("agent claim lost, reselecting",
			zap.String("ticket_id", ticket.ID),
			zap.String("agent_id", agent.UserID),
			zap.Int("attempt", attempt))
	}
}

// noAgent escalates an unassignable open ticket when configured to.
func (s *AssignmentService) noAgent(ctx context.Context, ticket *domain.Ticket, actorID string) (*domain.Ticket, error) {
	if !s.escalateWhenNoAgent || !lifecycle.CanTransition("escalate", ticket.Status) {
		return nil, domain.ErrNoAgentAvailable
	}
	s.guard.logger.Warn("no agent available, escalating", zap.String("ticket_id", ticket.ID))
	return s.manager.Escalate(ctx, ticket, actorID, "no agent available for assignment")
}

// holdsTicket reports whether the agent's workload already counts ticket.
func holdsTicket(ticket *domain.Ticket, agentID string) bool {
	return ticket.AssigneeID != nil && *ticket.AssigneeID == agentID
}

func (s *AssignmentService) commit(ctx context.Context, ticket *domain.Ticket, agent domain.Agent, actorID string) (*domain.Ticket, error) {
	saved, err := s.manager.Assign(ctx, ticket, agent, actorID)
	if err != nil {
		s.guard.releaseAgent(ctx, s.agents, agent.UserID)
		return nil, err
	}
	return saved, nil
}

// AgentInput registers or updates an agent.
type AgentInput struct {
	UserID    string
	Name      string
	Email     string
	Available bool
}

// UpsertAgent registers an agent in the directory. Admin only.
func (s *AssignmentService) UpsertAgent(ctx context.Context, actor domain.Principal, input AgentInput) (*domain.Agent, error) {
	if !actor.HasRole(domain.StaffRoleAdmin) {
		return nil, domain.ErrForbidden
	}
	if strings.TrimSpace(input.UserID) == "" {
		return nil, &domain.ValidationError{Fields: map[string]string{"user_id": "required"}}
	}
	agent := &domain.Agent{
		UserID:    strings.TrimSpace(input.UserID),
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.TrimSpace(input.Email),
		Available: input.Available,
	}
	if err := s.agents.Upsert(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// SetAvailability toggles whether auto-assignment may pick the agent.
func (s *AssignmentService) SetAvailability(ctx context.Context, actor domain.Principal, agentID string, available bool) (*domain.Agent, error) {
	if !actor.HasRole(domain.StaffRoleAdmin) && !(actor.IsStaff() && actor.ID == agentID) {
		return nil, domain.ErrForbidden
	}
	if err := s.agents.SetAvailability(ctx, agentID, available); err != nil {
		return nil, err
	}
	return s.agents.GetByID(ctx, agentID)
}

// ListAgents returns the agent directory.
func (s *AssignmentService) ListAgents(ctx context.Context, actor domain.Principal, filter repository.AgentFilter) ([]domain.Agent, error) {
	if !actor.IsStaff() {
		return nil, domain.ErrForbidden
	}
	return s.agents.List(ctx, filter)
}
