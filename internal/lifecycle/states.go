package lifecycle

import "github.com/superpool/dispute-service/internal/domain"

type operation string

const (
	opAssign   operation = "assign"
	opUpdate   operation = "update"
	opResolve  operation = "resolve"
	opClose    operation = "close"
	opEscalate operation = "escalate"
)

// allowedFrom lists the statuses each operation may start from. Closed
// appears nowhere, which makes it terminal.
var allowedFrom = map[operation][]domain.TicketStatus{
	opAssign:   {domain.TicketStatusOpen, domain.TicketStatusEscalated},
	opUpdate:   {domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusEscalated, domain.TicketStatusResolved},
	opResolve:  {domain.TicketStatusInProgress, domain.TicketStatusEscalated},
	opClose:    {domain.TicketStatusResolved},
	opEscalate: {domain.TicketStatusOpen, domain.TicketStatusInProgress},
}

func isAllowed(op operation, current domain.TicketStatus) bool {
	for _, candidate := range allowedFrom[op] {
		if candidate == current {
			return true
		}
	}
	return false
}

// CanTransition reports whether the named operation is permitted from
// status. Unknown operations are never permitted.
func CanTransition(op string, status domain.TicketStatus) bool {
	return isAllowed(operation(op), status)
}
