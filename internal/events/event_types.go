package events

import (
	"time"

	"github.com/superpool/dispute-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventTicketUpdated   EventType = "ticket_updated"
	EventTicketAssigned  EventType = "ticket_assigned"
	EventTicketEscalated EventType = "ticket_escalated"
	EventTicketResolved  EventType = "ticket_resolved"
	EventTicketClosed    EventType = "ticket_closed"
)

var actionEvents = map[domain.HistoryAction]EventType{
	domain.HistoryActionCreated:   EventTicketCreated,
	domain.HistoryActionUpdated:   EventTicketUpdated,
	domain.HistoryActionAssigned:  EventTicketAssigned,
	domain.HistoryActionEscalated: EventTicketEscalated,
	domain.HistoryActionResolved:  EventTicketResolved,
	domain.HistoryActionClosed:    EventTicketClosed,
}

// AllEventTypes lists every event type in lifecycle order.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketUpdated,
	EventTicketAssigned,
	EventTicketEscalated,
	EventTicketResolved,
	EventTicketClosed,
}

// TypeForAction maps a history action to its event type.
func TypeForAction(action domain.HistoryAction) (EventType, bool) {
	t, ok := actionEvents[action]
	return t, ok
}

// Event represents a ticket state change.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	TicketID   string         `json:"ticket_id"`
	ActorID    string         `json:"actor_id"`
	Recipients []string       `json:"recipients,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Payload    TicketSnapshot `json:"payload"`
}

// TicketSnapshot is the ticket state carried by an event.
type TicketSnapshot struct {
	ExternalKey string                `json:"external_key"`
	Category    domain.TicketCategory `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
	Status      domain.TicketStatus   `json:"status"`
	MerchantID  string                `json:"merchant_id"`
	CustomerID  string                `json:"customer_id"`
	AssigneeID  *string               `json:"assignee_id,omitempty"`
	Note        string                `json:"note,omitempty"`
}

// NewTicketEvent builds an event from the ticket's latest history entry.
func NewTicketEvent(id string, eventType EventType, ticket *domain.Ticket, recipients []string, at time.Time) Event {
	event := Event{
		ID:         id,
		Type:       eventType,
		TicketID:   ticket.ID,
		Recipients: append([]string(nil), recipients...),
		Timestamp:  at,
		Payload: TicketSnapshot{
			ExternalKey: ticket.ExternalKey,
			Category:    ticket.Category,
			Priority:    ticket.Priority,
			Status:      ticket.Status,
			MerchantID:  ticket.MerchantID,
			CustomerID:  ticket.CustomerID,
		},
	}
	if ticket.AssigneeID != nil {
		assignee := *ticket.AssigneeID
		event.Payload.AssigneeID = &assignee
	}
	if last, ok := ticket.LastHistory(); ok {
		event.ActorID = last.ActorID
		event.Payload.Note = last.Note
		event.Timestamp = last.Timestamp
	}
	return event
}
