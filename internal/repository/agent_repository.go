package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/superpool/dispute-service/internal/domain"
)

// AgentRepository handles persistence for support agents. Workload
// changes use optimistic checks so concurrent assignments cannot both
// claim the same snapshot.
type AgentRepository interface {
	Upsert(ctx context.Context, agent *domain.Agent) error
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	List(ctx context.Context, filter AgentFilter) ([]domain.Agent, error)
	ListAvailableAgents(ctx context.Context) ([]domain.Agent, error)
	SetAvailability(ctx context.Context, id string, available bool) error
	ClaimAssignment(ctx context.Context, agent domain.Agent, at time.Time) error
	ReleaseAssignment(ctx context.Context, id string) error
}

// AgentFilter defines query params for agent listing.
type AgentFilter struct {
	Available *bool
	Limit     int
	Offset    int
}

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository instantiates the repository.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

const agentColumns = `user_id, name, email, workload, available, last_assigned_at, updated_at`

func (r *agentRepository) Upsert(ctx context.Context, agent *domain.Agent) error {
	const query = `
        INSERT INTO agents (user_id, name, email, workload, available, last_assigned_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,NOW())
        ON CONFLICT (user_id) DO UPDATE
        SET name=EXCLUDED.name, email=EXCLUDED.email, available=EXCLUDED.available, updated_at=NOW()
        RETURNING workload, last_assigned_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		agent.UserID,
		agent.Name,
		agent.Email,
		agent.Workload,
		agent.Available,
		agent.LastAssignedAt,
	).Scan(&agent.Workload, &agent.LastAssignedAt, &agent.UpdatedAt)
}

func (r *agentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE user_id=$1`
	agent, err := scanAgent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return agent, nil
}

func (r *agentRepository) List(ctx context.Context, filter AgentFilter) ([]domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	args := []any{}
	clauses := []string{}

	if filter.Available != nil {
		args = append(args, *filter.Available)
		clauses = append(clauses, fmt.Sprintf("available=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY workload ASC, last_assigned_at ASC NULLS FIRST, user_id ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *agent)
	}
	return result, rows.Err()
}

func (r *agentRepository) ListAvailableAgents(ctx context.Context) ([]domain.Agent, error) {
	available := true
	return r.List(ctx, AgentFilter{Available: &available, Limit: 1000})
}

func (r *agentRepository) SetAvailability(ctx context.Context, id string, available bool) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE agents SET available=$1, updated_at=NOW() WHERE user_id=$2`, available, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *agentRepository) ClaimAssignment(ctx context.Context, agent domain.Agent, at time.Time) error {
	const query = `
        UPDATE agents SET workload=workload+1, last_assigned_at=$1, updated_at=NOW()
        WHERE user_id=$2 AND workload=$3`
	cmd, err := r.pool.Exec(ctx, query, at, agent.UserID, agent.Workload)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("agent %s workload changed since snapshot: %w", agent.UserID, domain.ErrConcurrencyConflict)
	}
	return nil
}

func (r *agentRepository) ReleaseAssignment(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE agents SET workload=GREATEST(workload-1, 0), updated_at=NOW() WHERE user_id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var agent domain.Agent
	if err := row.Scan(
		&agent.UserID,
		&agent.Name,
		&agent.Email,
		&agent.Workload,
		&agent.Available,
		&agent.LastAssignedAt,
		&agent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &agent, nil
}
