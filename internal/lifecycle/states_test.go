package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/superpool/dispute-service/internal/domain"
)

func TestCanTransition(t *testing.T) {
	statuses := []domain.TicketStatus{
		domain.TicketStatusOpen,
		domain.TicketStatusInProgress,
		domain.TicketStatusEscalated,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
	}
	want := map[string][]domain.TicketStatus{
		"assign":   {domain.TicketStatusOpen, domain.TicketStatusEscalated},
		"update":   {domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusEscalated, domain.TicketStatusResolved},
		"resolve":  {domain.TicketStatusInProgress, domain.TicketStatusEscalated},
		"close":    {domain.TicketStatusResolved},
		"escalate": {domain.TicketStatusOpen, domain.TicketStatusInProgress},
	}

	for op, allowed := range want {
		for _, status := range statuses {
			assert.Equal(t, containsStatus(allowed, status), CanTransition(op, status), "%s from %s", op, status)
		}
	}
	for _, status := range statuses {
		assert.False(t, CanTransition("reopen", status))
	}
}

func containsStatus(list []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}
