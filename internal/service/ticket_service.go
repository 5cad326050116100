package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/superpool/dispute-service/internal/domain"
	"github.com/superpool/dispute-service/internal/lifecycle"
	"github.com/superpool/dispute-service/internal/observability"
	"github.com/superpool/dispute-service/internal/repository"
)

const defaultLockTTL = 30 * time.Second

// TicketService coordinates ticket workflows. Every mutation of an
// existing ticket runs under a per-ticket lock around load, transition
// and save.
type TicketService struct {
	manager *lifecycle.Manager
	agents  repository.AgentRepository
	guard   *ticketGuard
}

// TicketDependencies bundles collaborators for the ticket services.
type TicketDependencies struct {
	Manager *lifecycle.Manager
	Agents  repository.AgentRepository
	Locker  Locker
	Metrics *observability.Metrics
	Logger  *zap.Logger
	LockTTL time.Duration
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Category    domain.TicketCategory
	Priority    domain.TicketPriority
	Description string
	CustomerID  string
	MerchantID  string
	InsurerID   string
	PolicyID    *string
	ClaimID     *string
}

// TicketListFilter describes listing filters accepted from callers.
type TicketListFilter struct {
	MerchantID *string
	CustomerID *string
	AssigneeID *string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Categories []domain.TicketCategory
	Limit      int
	Offset     int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		manager: deps.Manager,
		agents:  deps.Agents,
		guard:   newTicketGuard(deps),
	}
}

// CreateTicket opens a dispute. Merchants always file under their own id.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	merchantID := input.MerchantID
	switch actor.Type {
	case domain.SubjectTypeMerchant:
		if merchantID != "" && merchantID != actor.MerchantID {
			return nil, fmt.Errorf("merchant %s cannot file for %s: %w", actor.MerchantID, merchantID, domain.ErrForbidden)
		}
		merchantID = actor.MerchantID
	case domain.SubjectTypeStaff, domain.SubjectTypeSystem:
	default:
		return nil, domain.ErrForbidden
	}

	ticket, err := s.manager.Create(ctx, lifecycle.CreateInput{
		Category:    input.Category,
		Priority:    input.Priority,
		Description: input.Description,
		CustomerID:  input.CustomerID,
		MerchantID:  merchantID,
		InsurerID:   input.InsurerID,
		PolicyID:    input.PolicyID,
		ClaimID:     input.ClaimID,
		ActorID:     actor.ID,
	})
	if err != nil {
		return nil, err
	}
	s.guard.recordTransition(ticket)
	s.guard.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("external_key", ticket.ExternalKey),
		zap.String("priority", string(ticket.Priority)),
		zap.String("merchant_id", ticket.MerchantID))
	return ticket, nil
}

// GetTicket returns a ticket with its history.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Principal, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.manager.Load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessMerchant(ticket.MerchantID) {
		// Foreign tickets are reported as missing.
		return nil, fmt.Errorf("ticket %s: %w", ticketID, domain.ErrNotFound)
	}
	return ticket, nil
}

// ListTickets returns tickets visible to actor.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Principal, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := domain.TicketFilter{
		MerchantID: filter.MerchantID,
		CustomerID: filter.CustomerID,
		AssigneeID: filter.AssigneeID,
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Categories: filter.Categories,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	switch actor.Type {
	case domain.SubjectTypeMerchant:
		merchantID := actor.MerchantID
		repoFilter.MerchantID = &merchantID
	case domain.SubjectTypeStaff, domain.SubjectTypeSystem:
	default:
		return nil, domain.ErrForbidden
	}
	tickets, err := s.manager.Find(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		tickets[i].History = nil
	}
	return tickets, nil
}

// UpdateTicket changes description and/or priority.
func (s *TicketService) UpdateTicket(ctx context.Context, actor domain.Principal, ticketID string, input lifecycle.UpdateInput) (*domain.Ticket, error) {
	if !actor.IsStaff() {
		return nil, domain.ErrForbidden
	}
	return s.guard.mutate(ctx, ticketID, func(ticket *domain.Ticket) (*domain.Ticket, error) {
		return s.manager.Update(ctx, ticket, input, actor.ID)
	})
}

// ResolveTicket resolves the dispute. Agents may only resolve tickets
// assigned to them.
func (s *TicketService) ResolveTicket(ctx context.Context, actor domain.Principal, ticketID string) (*domain.Ticket, error) {
	if !actor.IsStaff() {
		return nil, domain.ErrForbidden
	}
	saved, err := s.guard.mutate(ctx, ticketID, func(ticket *domain.Ticket) (*domain.Ticket, error) {
		if actor.Role == domain.StaffRoleAgent && (ticket.AssigneeID == nil || *ticket.AssigneeID != actor.ID) {
			return nil, fmt.Errorf("ticket %s is not assigned to %s: %w", ticket.ID, actor.ID, domain.ErrForbidden)
		}
		return s.manager.Resolve(ctx, ticket, actor.ID)
	})
	if err != nil {
		return nil, err
	}
	if saved.AssigneeID != nil {
		s.guard.releaseAgent(ctx, s.agents, *saved.AssigneeID)
	}
	return saved, nil
}

// CloseTicket closes a resolved ticket.
func (s *TicketService) CloseTicket(ctx context.Context, actor domain.Principal, ticketID string) (*domain.Ticket, error) {
	if !actor.HasRole(domain.StaffRoleSupport, domain.StaffRoleAdmin) {
		return nil, domain.ErrForbidden
	}
	return s.guard.mutate(ctx, ticketID, func(ticket *domain.Ticket) (*domain.Ticket, error) {
		return s.manager.Close(ctx, ticket, actor.ID)
	})
}

// EscalateTicket escalates on request of staff. Repeating it is harmless.
func (s *TicketService) EscalateTicket(ctx context.Context, actor domain.Principal, ticketID, reason string) (*domain.Ticket, error) {
	if !actor.IsStaff() {
		return nil, domain.ErrForbidden
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "escalated manually"
	}
	return s.guard.mutate(ctx, ticketID, func(ticket *domain.Ticket) (*domain.Ticket, error) {
		return s.manager.Escalate(ctx, ticket, actor.ID, reason)
	})
}

// ticketGuard runs load-transition-save sequences under the ticket lock.
type ticketGuard struct {
	locker  Locker
	metrics *observability.Metrics
	logger  *zap.Logger
	manager *lifecycle.Manager
	ttl     time.Duration
}

func newTicketGuard(deps TicketDependencies) *ticketGuard {
	g := &ticketGuard{
		locker:  deps.Locker,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		manager: deps.Manager,
		ttl:     deps.LockTTL,
	}
	if g.locker == nil {
		g.locker = NewLocalLocker()
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.ttl <= 0 {
		g.ttl = defaultLockTTL
	}
	return g
}

func (g *ticketGuard) lock(ctx context.Context, ticketID string, try bool) (Unlock, error) {
	key := "ticket:" + ticketID
	if try {
		return g.locker.TryAcquire(ctx, key, g.ttl)
	}
	return g.locker.Acquire(ctx, key, g.ttl)
}

func (g *ticketGuard) mutate(ctx context.Context, ticketID string, fn func(*domain.Ticket) (*domain.Ticket, error)) (*domain.Ticket, error) {
	unlock, err := g.lock(ctx, ticketID, false)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return g.apply(ctx, ticketID, fn)
}

// apply assumes the caller holds the ticket lock.
func (g *ticketGuard) apply(ctx context.Context, ticketID string, fn func(*domain.Ticket) (*domain.Ticket, error)) (*domain.Ticket, error) {
	ticket, err := g.manager.Load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	saved, err := fn(ticket)
	if err != nil {
		g.logger.Debug("ticket operation rejected",
			zap.String("ticket_id", ticketID),
			zap.String("status", string(ticket.Status)),
			zap.Error(err))
		return nil, err
	}
	if saved.Version != ticket.Version {
		g.recordTransition(saved)
	}
	return saved, nil
}

func (g *ticketGuard) recordTransition(ticket *domain.Ticket) {
	last, ok := ticket.LastHistory()
	if !ok {
		return
	}
	g.metrics.RecordTransition(string(last.Action), string(ticket.Status))
	g.logger.Info("ticket transition",
		zap.String("ticket_id", ticket.ID),
		zap.String("action", string(last.Action)),
		zap.String("status", string(ticket.Status)),
		zap.String("actor_id", last.ActorID))
}

func (g *ticketGuard) releaseAgent(ctx context.Context, agents repository.AgentRepository, agentID string) {
	if agents == nil {
		return
	}
	if err := agents.ReleaseAssignment(ctx, agentID); err != nil {
		g.logger.Warn("release agent workload failed", zap.String("agent_id", agentID), zap.Error(err))
	}
}
