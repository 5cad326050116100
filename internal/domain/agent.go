package domain

import "time"

// Agent is a support staff member that can own tickets.
type Agent struct {
	UserID         string
	Name           string
	Email          string
	Workload       int
	Available      bool
	LastAssignedAt *time.Time
	UpdatedAt      time.Time
}
