package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusEscalated  TicketStatus = "ESCALATED"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusEscalated, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed
}

// TicketPriority enumerates dispute urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// Priorities lists every priority from most to least urgent.
var Priorities = []TicketPriority{
	TicketPriorityCritical,
	TicketPriorityHigh,
	TicketPriorityMedium,
	TicketPriorityLow,
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// TicketCategory is the subject of a dispute.
type TicketCategory string

const (
	TicketCategoryPolicy   TicketCategory = "POLICY"
	TicketCategoryClaim    TicketCategory = "CLAIM"
	TicketCategoryPlatform TicketCategory = "PLATFORM"
	TicketCategoryOther    TicketCategory = "OTHER"
)

// Valid reports whether c is a known category.
func (c TicketCategory) Valid() bool {
	switch c {
	case TicketCategoryPolicy, TicketCategoryClaim, TicketCategoryPlatform, TicketCategoryOther:
		return true
	}
	return false
}

// Ticket is the aggregate for merchant and customer disputes.
type Ticket struct {
	ID          string
	ExternalKey string
	Category    TicketCategory
	Description string
	Priority    TicketPriority
	Status      TicketStatus
	CustomerID  string
	MerchantID  string
	InsurerID   string
	PolicyID    *string
	ClaimID     *string
	AssigneeID  *string
	// LastTransitionAt is the time of the last status-relevant transition.
	// Description and priority edits leave it untouched.
	LastTransitionAt time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	// Version is bumped by the store on every successful save.
	Version int
	History []TicketHistory
}

// Clone returns a deep copy so transitions can be applied without
// touching the caller's value.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	cp.PolicyID = cloneString(t.PolicyID)
	cp.ClaimID = cloneString(t.ClaimID)
	cp.AssigneeID = cloneString(t.AssigneeID)
	cp.History = append([]TicketHistory(nil), t.History...)
	return &cp
}

// LastHistory returns the most recent history entry, if any.
func (t *Ticket) LastHistory() (TicketHistory, bool) {
	if len(t.History) == 0 {
		return TicketHistory{}, false
	}
	return t.History[len(t.History)-1], true
}

// TicketFilter captures search parameters for ticket listing.
type TicketFilter struct {
	MerchantID *string
	CustomerID *string
	AssigneeID *string
	Statuses   []TicketStatus
	Priorities []TicketPriority
	Categories []TicketCategory
	// TransitionAtOrBefore matches tickets whose last transition happened
	// at or before the given time.
	TransitionAtOrBefore *time.Time
	Limit                int
	Offset               int
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}
