package lifecycle

import (
	"fmt"
	"time"

	"github.com/superpool/dispute-service/internal/domain"
)

// Thresholds maps each priority to the time a ticket may sit without a
// status transition before it is escalated.
type Thresholds map[domain.TicketPriority]time.Duration

// Validate requires a positive threshold for every priority, with more
// urgent priorities escalating strictly sooner.
func (t Thresholds) Validate() error {
	var prev time.Duration
	for i, priority := range domain.Priorities {
		d, ok := t[priority]
		if !ok {
			return fmt.Errorf("escalation threshold for %s is not configured", priority)
		}
		if d <= 0 {
			return fmt.Errorf("escalation threshold for %s must be positive", priority)
		}
		if i > 0 && d <= prev {
			return fmt.Errorf("escalation threshold for %s (%s) must be greater than %s (%s)",
				priority, d, domain.Priorities[i-1], prev)
		}
		prev = d
	}
	return nil
}

// ShouldEscalate reports whether an open or in-progress ticket has gone
// at least its priority's threshold without a status transition.
func ShouldEscalate(ticket *domain.Ticket, now time.Time, thresholds Thresholds) bool {
	if ticket == nil {
		return false
	}
	if ticket.Status != domain.TicketStatusOpen && ticket.Status != domain.TicketStatusInProgress {
		return false
	}
	threshold, ok := thresholds[ticket.Priority]
	if !ok || threshold <= 0 {
		return false
	}
	return now.Sub(ticket.LastTransitionAt) >= threshold
}
