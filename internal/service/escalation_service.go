package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/superpool/dispute-service/internal/domain"
	"github.com/superpool/dispute-service/internal/lifecycle"
)

// EscalationService finds stale open and in-progress tickets and
// escalates them.
type EscalationService struct {
	manager    *lifecycle.Manager
	guard      *ticketGuard
	thresholds lifecycle.Thresholds
	batchSize  int
}

// EscalationDependencies bundles collaborators.
type EscalationDependencies struct {
	Ticket     TicketDependencies
	Thresholds lifecycle.Thresholds
	BatchSize  int
}

// ScanResult summarizes one scan pass.
type ScanResult struct {
	Checked   int
	Escalated []domain.Ticket
	Skipped   int
}

// NewEscalationService validates thresholds and creates the service.
func NewEscalationService(deps EscalationDependencies) (*EscalationService, error) {
	if err := deps.Thresholds.Validate(); err != nil {
		return nil, err
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &EscalationService{
		manager:    deps.Ticket.Manager,
		guard:      newTicketGuard(deps.Ticket),
		thresholds: deps.Thresholds,
		batchSize:  batch,
	}, nil
}

// Scan escalates every ticket that ShouldEscalate at now. A ticket locked
// by a concurrent request is skipped and picked up by the next pass.
// Per-ticket failures do not stop the scan and are returned joined.
func (s *EscalationService) Scan(ctx context.Context, now time.Time) (ScanResult, error) {
	var result ScanResult
	candidates, err := s.candidates(ctx, now)
	if err != nil {
		return result, err
	}
	result.Checked = len(candidates)

	var errs []error
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		saved, err := s.escalateOne(ctx, id, now)
		switch {
		case err == nil && saved != nil:
			result.Escalated = append(result.Escalated, *saved)
		case err == nil, errors.Is(err, ErrLockHeld):
			result.Skipped++
		case errors.Is(err, domain.ErrConcurrencyConflict), errors.Is(err, domain.ErrInvalidTransition):
			result.Skipped++
			s.guard.logger.Debug("ticket changed during scan", zap.String("ticket_id", id), zap.Error(err))
		default:
			errs = append(errs, fmt.Errorf("escalate %s: %w", id, err))
		}
	}
	return result, errors.Join(errs...)
}

// candidates collects ids of tickets at or past the shortest threshold. The
// full id list is gathered before any escalation so paging is stable.
func (s *EscalationService) candidates(ctx context.Context, now time.Time) ([]string, error) {
	cutoff := now.Add(-s.thresholds[domain.TicketPriorityCritical])
	filter := domain.TicketFilter{
		Statuses:             []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress},
		TransitionAtOrBefore: &cutoff,
		Limit:                s.batchSize,
	}
	var ids []string
	for {
		page, err := s.manager.Find(ctx, filter)
		if err != nil {
			return nil, err
		}
		for i := range page {
			if lifecycle.ShouldEscalate(&page[i], now, s.thresholds) {
				ids = append(ids, page[i].ID)
			}
		}
		if len(page) < filter.Limit {
			return ids, nil
		}
		filter.Offset += filter.Limit
	}
}

// escalateOne re-checks the policy under the lock against fresh state.
// It returns a nil ticket when nothing was done.
func (s *EscalationService) escalateOne(ctx context.Context, ticketID string, now time.Time) (*domain.Ticket, error) {
	unlock, err := s.guard.lock(ctx, ticketID, true)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var escalated bool
	saved, err := s.guard.apply(ctx, ticketID, func(ticket *domain.Ticket) (*domain.Ticket, error) {
		if !lifecycle.ShouldEscalate(ticket, now, s.thresholds) {
			return ticket, nil
		}
		idle := now.Sub(ticket.LastTransitionAt).Truncate(time.Second)
		reason := fmt.Sprintf("no status change for %s (%s threshold %s)",
			idle, ticket.Priority, s.thresholds[ticket.Priority])
		escalated = true
		return s.manager.Escalate(ctx, ticket, domain.SystemActorID, reason)
	})
	if err != nil || !escalated {
		return nil, err
	}
	s.guard.logger.Info("ticket escalated by scan",
		zap.String("ticket_id", saved.ID),
		zap.String("priority", string(saved.Priority)))
	return saved, nil
}
