package lifecycle

import "github.com/superpool/dispute-service/internal/domain"

// SelectAgent picks the available agent with the lowest workload. Ties go
// to the least recently assigned agent (never assigned counts as oldest),
// then to the smallest user id. The boolean is false when no candidate is
// available.
func SelectAgent(candidates []domain.Agent) (domain.Agent, bool) {
	var (
		best  domain.Agent
		found bool
	)
	for _, agent := range candidates {
		if !agent.Available {
			continue
		}
		if !found || preferAgent(agent, best) {
			best = agent
			found = true
		}
	}
	return best, found
}

func preferAgent(a, b domain.Agent) bool {
	if a.Workload != b.Workload {
		return a.Workload < b.Workload
	}
	switch {
	case a.LastAssignedAt == nil && b.LastAssignedAt != nil:
		return true
	case a.LastAssignedAt != nil && b.LastAssignedAt == nil:
		return false
	case a.LastAssignedAt != nil && b.LastAssignedAt != nil && !a.LastAssignedAt.Equal(*b.LastAssignedAt):
		return a.LastAssignedAt.Before(*b.LastAssignedAt)
	}
	return a.UserID < b.UserID
}
