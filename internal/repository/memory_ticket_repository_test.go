package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superpool/dispute-service/internal/domain"
)

func newTicket(id string, status domain.TicketStatus, updated time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:               id,
		Category:         domain.TicketCategoryPolicy,
		Priority:         domain.TicketPriorityMedium,
		Status:           status,
		CustomerID:       "cust-" + id,
		MerchantID:       "merch-1",
		InsurerID:        "ins-1",
		LastTransitionAt: updated,
		CreatedAt:        updated,
		UpdatedAt:        updated,
		History: []domain.TicketHistory{
			{Seq: 1, Timestamp: updated, Action: domain.HistoryActionCreated, ActorID: "cust-" + id},
		},
	}
}

func TestMemoryTicketRepositorySaveVersions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	base := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	saved, err := repo.Save(ctx, newTicket("t1", domain.TicketStatusOpen, base))
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)

	_, err = repo.Save(ctx, newTicket("t1", domain.TicketStatusOpen, base))
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict, "duplicate insert")

	next := saved.Clone()
	next.Status = domain.TicketStatusEscalated
	next.History = append(next.History, domain.TicketHistory{Seq: 2, Timestamp: base, Action: domain.HistoryActionEscalated, ActorID: "system"})
	updated, err := repo.Save(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	_, err = repo.Save(ctx, next)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict, "stale version")

	shrunk := updated.Clone()
	shrunk.History = shrunk.History[:1]
	_, err = repo.Save(ctx, shrunk)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict, "history shrink")

	ghost := newTicket("missing", domain.TicketStatusOpen, base)
	ghost.Version = 3
	_, err = repo.Save(ctx, ghost)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	loaded, err := repo.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, loaded.Status)
	assert.Len(t, loaded.History, 2)
}

func TestMemoryTicketRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	saved, err := repo.Save(ctx, newTicket("t1", domain.TicketStatusOpen, time.Now()))
	require.NoError(t, err)

	saved.Status = domain.TicketStatusClosed
	saved.History[0].Note = "tampered"

	loaded, err := repo.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, loaded.Status)
	assert.Empty(t, loaded.History[0].Note)

	_, err = repo.Load(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryTicketRepositoryFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	base := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	open := newTicket("a", domain.TicketStatusOpen, base)
	progress := newTicket("b", domain.TicketStatusInProgress, base.Add(time.Hour))
	agent := "agent-1"
	progress.AssigneeID = &agent
	progress.Priority = domain.TicketPriorityCritical
	resolved := newTicket("c", domain.TicketStatusResolved, base.Add(2*time.Hour))
	resolved.MerchantID = "merch-2"
	for _, ticket := range []*domain.Ticket{open, progress, resolved} {
		_, err := repo.Save(ctx, ticket)
		require.NoError(t, err)
	}

	all, err := repo.Find(ctx, domain.TicketFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all))

	active, err := repo.Find(ctx, domain.TicketFilter{
		Statuses: []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(active))

	cutoff := base.Add(30 * time.Minute)
	stale, err := repo.Find(ctx, domain.TicketFilter{TransitionAtOrBefore: &cutoff})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(stale))

	atCutoff := base.Add(time.Hour)
	stale, err = repo.Find(ctx, domain.TicketFilter{TransitionAtOrBefore: &atCutoff})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(stale))

	merchant := "merch-2"
	byMerchant, err := repo.Find(ctx, domain.TicketFilter{MerchantID: &merchant})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(byMerchant))

	assigned, err := repo.Find(ctx, domain.TicketFilter{AssigneeID: &agent, Priorities: []domain.TicketPriority{domain.TicketPriorityCritical}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(assigned))

	page, err := repo.Find(ctx, domain.TicketFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(page))

	beyond, err := repo.Find(ctx, domain.TicketFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func ids(tickets []domain.Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, ticket := range tickets {
		out = append(out, ticket.ID)
	}
	return out
}
