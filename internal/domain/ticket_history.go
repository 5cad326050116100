package domain

import "time"

// HistoryAction captures what happened in a history entry.
type HistoryAction string

const (
	HistoryActionCreated   HistoryAction = "CREATED"
	HistoryActionUpdated   HistoryAction = "UPDATED"
	HistoryActionAssigned  HistoryAction = "ASSIGNED"
	HistoryActionEscalated HistoryAction = "ESCALATED"
	HistoryActionResolved  HistoryAction = "RESOLVED"
	HistoryActionClosed    HistoryAction = "CLOSED"
)

// TicketHistory is an immutable audit trail entry. Seq is the 1-based
// position in the ticket's history.
type TicketHistory struct {
	Seq       int
	Timestamp time.Time
	Action    HistoryAction
	ActorID   string
	Note      string
}
