package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/superpool/dispute-service/internal/domain"
)

type memoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
}

// NewMemoryTicketRepository returns a process-local TicketRepository with
// the same versioning rules as the Postgres implementation.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{tickets: make(map[string]*domain.Ticket)}
}

func (r *memoryTicketRepository) Load(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
	}
	return ticket.Clone(), nil
}

func (r *memoryTicketRepository) Save(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	if ticket == nil || ticket.ID == "" {
		return nil, &domain.ValidationError{Fields: map[string]string{"id": "required"}}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.tickets[ticket.ID]
	switch {
	case ticket.Version == 0 && ok:
		return nil, fmt.Errorf("ticket %s already exists: %w", ticket.ID, domain.ErrConcurrencyConflict)
	case ticket.Version > 0 && !ok:
		return nil, fmt.Errorf("ticket %s: %w", ticket.ID, domain.ErrNotFound)
	case ok && existing.Version != ticket.Version:
		return nil, fmt.Errorf("ticket %s version %d is stale (current %d): %w",
			ticket.ID, ticket.Version, existing.Version, domain.ErrConcurrencyConflict)
	case ok && len(ticket.History) < len(existing.History):
		return nil, fmt.Errorf("ticket %s history would shrink: %w", ticket.ID, domain.ErrConcurrencyConflict)
	}

	stored := ticket.Clone()
	stored.Version = ticket.Version + 1
	r.tickets[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *memoryTicketRepository) Find(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	matched := make([]domain.Ticket, 0, len(r.tickets))
	for _, ticket := range r.tickets {
		if matchesFilter(ticket, filter) {
			matched = append(matched, *ticket.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	if offset >= len(matched) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func matchesFilter(ticket *domain.Ticket, filter domain.TicketFilter) bool {
	if filter.MerchantID != nil && ticket.MerchantID != *filter.MerchantID {
		return false
	}
	if filter.CustomerID != nil && ticket.CustomerID != *filter.CustomerID {
		return false
	}
	if filter.AssigneeID != nil && (ticket.AssigneeID == nil || *ticket.AssigneeID != *filter.AssigneeID) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsValue(filter.Statuses, ticket.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !containsValue(filter.Priorities, ticket.Priority) {
		return false
	}
	if len(filter.Categories) > 0 && !containsValue(filter.Categories, ticket.Category) {
		return false
	}
	if filter.TransitionAtOrBefore != nil && ticket.LastTransitionAt.After(*filter.TransitionAtOrBefore) {
		return false
	}
	return true
}

func containsValue[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
