package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/superpool/dispute-service/internal/domain"
)

type memoryAgentRepository struct {
	mu     sync.RWMutex
	agents map[string]domain.Agent
	now    func() time.Time
}

// NewMemoryAgentRepository returns a process-local AgentRepository.
func NewMemoryAgentRepository() AgentRepository {
	return &memoryAgentRepository{agents: make(map[string]domain.Agent), now: time.Now}
}

func (r *memoryAgentRepository) Upsert(ctx context.Context, agent *domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.agents[agent.UserID]; ok {
		agent.Workload = existing.Workload
		agent.LastAssignedAt = existing.LastAssignedAt
	}
	agent.UpdatedAt = r.now()
	r.agents[agent.UserID] = *agent
	return nil
}

func (r *memoryAgentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return &agent, nil
}

func (r *memoryAgentRepository) List(ctx context.Context, filter AgentFilter) ([]domain.Agent, error) {
	r.mu.RLock()
	result := make([]domain.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		if filter.Available != nil && agent.Available != *filter.Available {
			continue
		}
		result = append(result, agent)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 || offset >= len(result) {
		return []domain.Agent{}, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (r *memoryAgentRepository) ListAvailableAgents(ctx context.Context) ([]domain.Agent, error) {
	available := true
	return r.List(ctx, AgentFilter{Available: &available, Limit: 1000})
}

func (r *memoryAgentRepository) SetAvailability(ctx context.Context, id string, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	agent.Available = available
	agent.UpdatedAt = r.now()
	r.agents[id] = agent
	return nil
}

func (r *memoryAgentRepository) ClaimAssignment(ctx context.Context, snapshot domain.Agent, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[snapshot.UserID]
	if !ok {
		return fmt.Errorf("agent %s: %w", snapshot.UserID, domain.ErrNotFound)
	}
	if agent.Workload != snapshot.Workload {
		return fmt.Errorf("agent %s workload changed since snapshot: %w", snapshot.UserID, domain.ErrConcurrencyConflict)
	}
	agent.Workload++
	agent.LastAssignedAt = &at
	agent.UpdatedAt = r.now()
	r.agents[agent.UserID] = agent
	return nil
}

func (r *memoryAgentRepository) ReleaseAssignment(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	if agent.Workload > 0 {
		agent.Workload--
	}
	agent.UpdatedAt = r.now()
	r.agents[id] = agent
	return nil
}
