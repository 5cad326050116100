package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/superpool/dispute-service/internal/domain"
)

const defaultPageSize = 20

// TicketRepository encapsulates ticket persistence. Save inserts when
// Version is zero and otherwise updates only if the stored version still
// matches, appending history entries in the same transaction.
type TicketRepository interface {
	Load(ctx context.Context, id string) (*domain.Ticket, error)
	Save(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	Find(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, external_key, category, description, priority, status,
               customer_id, merchant_id, insurer_id, policy_id, claim_id, assignee_id,
               last_transition_at, created_at, updated_at, version`

func (r *ticketRepository) Load(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	history, err := r.listHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	ticket.History = history
	return ticket, nil
}

func (r *ticketRepository) Save(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	if ticket == nil || ticket.ID == "" {
		return nil, &domain.ValidationError{Fields: map[string]string{"id": "required"}}
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	persisted := 0
	if ticket.Version == 0 {
		if err := insertTicket(ctx, tx, ticket); err != nil {
			return nil, err
		}
	} else {
		if err := updateTicket(ctx, tx, ticket); err != nil {
			return nil, err
		}
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM ticket_history WHERE ticket_id=$1`, ticket.ID,
		).Scan(&persisted); err != nil {
			return nil, err
		}
	}
	if len(ticket.History) < persisted {
		return nil, fmt.Errorf("ticket %s history would shrink: %w", ticket.ID, domain.ErrConcurrencyConflict)
	}

	const historyInsert = `
        INSERT INTO ticket_history (ticket_id, seq, occurred_at, action, actor_id, note)
        VALUES ($1,$2,$3,$4,$5,$6)`
	for _, entry := range ticket.History[persisted:] {
		if _, err := tx.Exec(ctx, historyInsert,
			ticket.ID,
			entry.Seq,
			entry.Timestamp,
			entry.Action,
			entry.ActorID,
			entry.Note,
		); err != nil {
			return nil, fmt.Errorf("append history: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	stored := ticket.Clone()
	stored.Version = ticket.Version + 1
	return stored, nil
}

func insertTicket(ctx context.Context, tx pgx.Tx, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, external_key, category, description, priority, status,
            customer_id, merchant_id, insurer_id, policy_id, claim_id, assignee_id,
            last_transition_at, created_at, updated_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,1)
        ON CONFLICT (id) DO NOTHING`
	cmd, err := tx.Exec(ctx, query,
		ticket.ID,
		ticket.ExternalKey,
		ticket.Category,
		ticket.Description,
		ticket.Priority,
		ticket.Status,
		ticket.CustomerID,
		ticket.MerchantID,
		ticket.InsurerID,
		ticket.PolicyID,
		ticket.ClaimID,
		ticket.AssigneeID,
		ticket.LastTransitionAt,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("ticket %s already exists: %w", ticket.ID, domain.ErrConcurrencyConflict)
	}
	return nil
}

func updateTicket(ctx context.Context, tx pgx.Tx, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET description=$1, priority=$2, status=$3, assignee_id=$4,
            last_transition_at=$5, updated_at=$6, version=version+1
        WHERE id=$7 AND version=$8`
	cmd, err := tx.Exec(ctx, query,
		ticket.Description,
		ticket.Priority,
		ticket.Status,
		ticket.AssigneeID,
		ticket.LastTransitionAt,
		ticket.UpdatedAt,
		ticket.ID,
		ticket.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("ticket %s: %w", ticket.ID, domain.ErrNotFound)
	}
	return fmt.Errorf("ticket %s version %d is stale: %w", ticket.ID, ticket.Version, domain.ErrConcurrencyConflict)
}

func (r *ticketRepository) Find(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.MerchantID != nil {
		args = append(args, *filter.MerchantID)
		clauses = append(clauses, fmt.Sprintf("merchant_id=$%d", len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, category := range filter.Categories {
			args = append(args, category)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("category IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.TransitionAtOrBefore != nil {
		args = append(args, *filter.TransitionAtOrBefore)
		clauses = append(clauses, fmt.Sprintf("last_transition_at <= $%d", len(args)))
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC, id LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) listHistory(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	const query = `
        SELECT seq, occurred_at, action, actor_id, note
        FROM ticket_history WHERE ticket_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var entry domain.TicketHistory
		if err := rows.Scan(
			&entry.Seq,
			&entry.Timestamp,
			&entry.Action,
			&entry.ActorID,
			&entry.Note,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.Category,
		&ticket.Description,
		&ticket.Priority,
		&ticket.Status,
		&ticket.CustomerID,
		&ticket.MerchantID,
		&ticket.InsurerID,
		&ticket.PolicyID,
		&ticket.ClaimID,
		&ticket.AssigneeID,
		&ticket.LastTransitionAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.Version,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
