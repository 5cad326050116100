// Package lifecycle implements the dispute ticket state machine, the
// agent assignment policy and the escalation timer policy.
//
// The Manager holds no mutable state between calls and takes no locks.
// Callers serialize transitions per ticket; the Store rejects stale
// writes with domain.ErrConcurrencyConflict.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/superpool/dispute-service/internal/domain"
)

// Store persists tickets. Save writes the ticket and any newly appended
// history entries in one atomic step and returns the stored copy.
type Store interface {
	Load(ctx context.Context, id string) (*domain.Ticket, error)
	Save(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	Find(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error)
}

// AgentDirectory exposes a snapshot of agent availability.
type AgentDirectory interface {
	ListAvailableAgents(ctx context.Context) ([]domain.Agent, error)
}

// Notifier dispatches state change alerts. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, kind domain.HistoryAction, ticket *domain.Ticket, recipients []string)
}

// Recipients lists who is alerted about escalations.
type Recipients struct {
	Admins        []string
	ManagerAdmins []string
}

func (r Recipients) escalation() []string {
	out := make([]string, 0, len(r.Admins)+len(r.ManagerAdmins))
	seen := make(map[string]struct{}, cap(out))
	for _, addr := range append(append([]string{}, r.Admins...), r.ManagerAdmins...) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// Dependencies bundles collaborators for the Manager.
type Dependencies struct {
	Store      Store
	Agents     AgentDirectory
	Notifier   Notifier
	Recipients Recipients
	Now        func() time.Time
	NewID      func() string
}

// Manager applies lifecycle transitions to tickets.
type Manager struct {
	store      Store
	agents     AgentDirectory
	notifier   Notifier
	recipients Recipients
	now        func() time.Time
	newID      func() string
}

// NewManager constructs the manager.
func NewManager(deps Dependencies) *Manager {
	m := &Manager{
		store:      deps.Store,
		agents:     deps.Agents,
		notifier:   deps.Notifier,
		recipients: deps.Recipients,
		now:        deps.Now,
		newID:      deps.NewID,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m
}

// CreateInput describes a new dispute.
type CreateInput struct {
	Category    domain.TicketCategory
	Priority    domain.TicketPriority
	Description string
	CustomerID  string
	MerchantID  string
	InsurerID   string
	PolicyID    *string
	ClaimID     *string
	ActorID     string
}

func (in CreateInput) validate() error {
	fields := map[string]string{}
	if in.Category == "" {
		fields["category"] = "required"
	} else if !in.Category.Valid() {
		fields["category"] = "unknown category"
	}
	if in.Priority == "" {
		fields["priority"] = "required"
	} else if !in.Priority.Valid() {
		fields["priority"] = "unknown priority"
	}
	if strings.TrimSpace(in.Description) == "" {
		fields["description"] = "required"
	}
	if strings.TrimSpace(in.CustomerID) == "" {
		fields["customer_id"] = "required"
	}
	if strings.TrimSpace(in.MerchantID) == "" {
		fields["merchant_id"] = "required"
	}
	if strings.TrimSpace(in.InsurerID) == "" {
		fields["insurer_id"] = "required"
	}
	if strings.TrimSpace(in.ActorID) == "" {
		fields["actor_id"] = "required"
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

// UpdateInput lists the mutable ticket fields. Nil means unchanged.
type UpdateInput struct {
	Description *string
	Priority    *domain.TicketPriority
}

func (in UpdateInput) validate() error {
	fields := map[string]string{}
	if in.Description == nil && in.Priority == nil {
		fields["fields"] = "at least one of description, priority is required"
	}
	if in.Description != nil && strings.TrimSpace(*in.Description) == "" {
		fields["description"] = "must not be empty"
	}
	if in.Priority != nil && !in.Priority.Valid() {
		fields["priority"] = "unknown priority"
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

// Create builds an open ticket with a Created history entry and persists it.
func (m *Manager) Create(ctx context.Context, input CreateInput) (*domain.Ticket, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	now := m.now()
	ticket := &domain.Ticket{
		ID:               m.newID(),
		ExternalKey:      generateTicketKey(),
		Category:         input.Category,
		Description:      strings.TrimSpace(input.Description),
		Priority:         input.Priority,
		Status:           domain.TicketStatusOpen,
		CustomerID:       strings.TrimSpace(input.CustomerID),
		MerchantID:       strings.TrimSpace(input.MerchantID),
		InsurerID:        strings.TrimSpace(input.InsurerID),
		PolicyID:         trimmedOrNil(input.PolicyID),
		ClaimID:          trimmedOrNil(input.ClaimID),
		LastTransitionAt: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	appendHistory(ticket, now, domain.HistoryActionCreated, input.ActorID, "")

	saved, err := m.store.Save(ctx, ticket)
	if err != nil {
		return nil, err
	}
	m.notify(ctx, domain.HistoryActionCreated, saved, nil)
	return saved, nil
}

// Assign hands the ticket to agent and moves it to in progress.
func (m *Manager) Assign(ctx context.Context, ticket *domain.Ticket, agent domain.Agent, actorID string) (*domain.Ticket, error) {
	if strings.TrimSpace(agent.UserID) == "" {
		return nil, &domain.ValidationError{Fields: map[string]string{"agent_id": "required"}}
	}
	saved, err := m.transition(ctx, ticket, opAssign, domain.HistoryActionAssigned, actorID, "assigned to "+agent.UserID,
		func(t *domain.Ticket, at time.Time) {
			assignee := agent.UserID
			t.AssigneeID = &assignee
			t.Status = domain.TicketStatusInProgress
			t.LastTransitionAt = at
		})
	if err != nil {
		return nil, err
	}
	recipient := agent.Email
	if recipient == "" {
		recipient = agent.UserID
	}
	m.notify(ctx, domain.HistoryActionAssigned, saved, []string{recipient})
	return saved, nil
}

// Update changes description and/or priority. The escalation clock keeps
// running from the last status transition.
func (m *Manager) Update(ctx context.Context, ticket *domain.Ticket, input UpdateInput, actorID string) (*domain.Ticket, error) {
	if ticket != nil && !isAllowed(opUpdate, ticket.Status) {
		return nil, &domain.TransitionError{Op: string(opUpdate), From: ticket.Status}
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	var changes []string
	saved, err := m.transition(ctx, ticket, opUpdate, domain.HistoryActionUpdated, actorID, "",
		func(t *domain.Ticket, _ time.Time) {
			if input.Description != nil {
				t.Description = strings.TrimSpace(*input.Description)
				changes = append(changes, "description")
			}
			if input.Priority != nil {
				changes = append(changes, fmt.Sprintf("priority %s -> %s", t.Priority, *input.Priority))
				t.Priority = *input.Priority
			}
			t.History[len(t.History)-1].Note = strings.Join(changes, ", ")
		})
	if err != nil {
		return nil, err
	}
	m.notify(ctx, domain.HistoryActionUpdated, saved, nil)
	return saved, nil
}

// Resolve marks the dispute as resolved by resolverID.
func (m *Manager) Resolve(ctx context.Context, ticket *domain.Ticket, resolverID string) (*domain.Ticket, error) {
	saved, err := m.transition(ctx, ticket, opResolve, domain.HistoryActionResolved, resolverID, "",
		func(t *domain.Ticket, at time.Time) {
			t.Status = domain.TicketStatusResolved
			t.LastTransitionAt = at
		})
	if err != nil {
		return nil, err
	}
	m.notify(ctx, domain.HistoryActionResolved, saved, nil)
	return saved, nil
}

// Close moves a resolved ticket into the terminal Closed status.
func (m *Manager) Close(ctx context.Context, ticket *domain.Ticket, actorID string) (*domain.Ticket, error) {
	saved, err := m.transition(ctx, ticket, opClose, domain.HistoryActionClosed, actorID, "",
		func(t *domain.Ticket, at time.Time) {
			t.Status = domain.TicketStatusClosed
			t.LastTransitionAt = at
		})
	if err != nil {
		return nil, err
	}
	m.notify(ctx, domain.HistoryActionClosed, saved, nil)
	return saved, nil
}

// Escalate flags the ticket for priority handling and alerts the
// administrators. Escalating an escalated ticket returns it unchanged.
func (m *Manager) Escalate(ctx context.Context, ticket *domain.Ticket, actorID, reason string) (*domain.Ticket, error) {
	if ticket != nil && ticket.Status == domain.TicketStatusEscalated {
		return ticket, nil
	}
	saved, err := m.transition(ctx, ticket, opEscalate, domain.HistoryActionEscalated, actorID, reason,
		func(t *domain.Ticket, at time.Time) {
			t.Status = domain.TicketStatusEscalated
			t.LastTransitionAt = at
		})
	if err != nil {
		return nil, err
	}
	m.notify(ctx, domain.HistoryActionEscalated, saved, m.recipients.escalation())
	return saved, nil
}

// SelectAvailableAgent applies SelectAgent to the directory snapshot and
// returns domain.ErrNoAgentAvailable when nobody can take the ticket.
func (m *Manager) SelectAvailableAgent(ctx context.Context) (domain.Agent, error) {
	if m.agents == nil {
		return domain.Agent{}, domain.ErrNoAgentAvailable
	}
	candidates, err := m.agents.ListAvailableAgents(ctx)
	if err != nil {
		return domain.Agent{}, err
	}
	agent, ok := SelectAgent(candidates)
	if !ok {
		return domain.Agent{}, domain.ErrNoAgentAvailable
	}
	return agent, nil
}

// Load reads a ticket through the store.
func (m *Manager) Load(ctx context.Context, id string) (*domain.Ticket, error) {
	return m.store.Load(ctx, id)
}

// Find lists tickets through the store.
func (m *Manager) Find(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error) {
	return m.store.Find(ctx, filter)
}

func (m *Manager) transition(ctx context.Context, ticket *domain.Ticket, op operation, action domain.HistoryAction, actorID, note string, mutate func(*domain.Ticket, time.Time)) (*domain.Ticket, error) {
	if ticket == nil {
		return nil, &domain.ValidationError{Fields: map[string]string{"ticket": "required"}}
	}
	if strings.TrimSpace(actorID) == "" {
		return nil, &domain.ValidationError{Fields: map[string]string{"actor_id": "required"}}
	}
	if !isAllowed(op, ticket.Status) {
		return nil, &domain.TransitionError{Op: string(op), From: ticket.Status}
	}

	next := ticket.Clone()
	at := m.stamp(next)
	appendHistory(next, at, action, actorID, note)
	mutate(next, at)
	next.UpdatedAt = at

	return m.store.Save(ctx, next)
}

// stamp returns the current time, never earlier than the ticket's last
// history entry so the log stays chronologically ordered.
func (m *Manager) stamp(ticket *domain.Ticket) time.Time {
	now := m.now()
	if last, ok := ticket.LastHistory(); ok && now.Before(last.Timestamp) {
		return last.Timestamp
	}
	return now
}

func (m *Manager) notify(ctx context.Context, kind domain.HistoryAction, ticket *domain.Ticket, recipients []string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, kind, ticket, recipients)
}

func appendHistory(ticket *domain.Ticket, at time.Time, action domain.HistoryAction, actorID, note string) {
	ticket.History = append(ticket.History, domain.TicketHistory{
		Seq:       len(ticket.History) + 1,
		Timestamp: at,
		Action:    action,
		ActorID:   strings.TrimSpace(actorID),
		Note:      note,
	})
}

func generateTicketKey() string {
	return "DSP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
