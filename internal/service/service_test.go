package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/superpool/dispute-service/internal/domain"
	"github.com/superpool/dispute-service/internal/lifecycle"
	"github.com/superpool/dispute-service/internal/observability"
	"github.com/superpool/dispute-service/internal/repository"
)

type capturedNotice struct {
	kind       domain.HistoryAction
	recipients []string
}

type captureNotifier struct {
	mu      sync.Mutex
	notices []capturedNotice
}

func (c *captureNotifier) Notify(_ context.Context, kind domain.HistoryAction, _ *domain.Ticket, recipients []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, capturedNotice{kind: kind, recipients: recipients})
}

func (c *captureNotifier) count(kind domain.HistoryAction) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, notice := range c.notices {
		if notice.kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	ctx        context.Context
	clock      *testClock
	tickets    repository.TicketRepository
	agents     repository.AgentRepository
	notifier   *captureNotifier
	metrics    *observability.Metrics
	manager    *lifecycle.Manager
	deps       TicketDependencies
	ticketSvc  *TicketService
	assignSvc  *AssignmentService
	thresholds lifecycle.Thresholds
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	admin    = domain.Principal{Type: domain.SubjectTypeStaff, ID: "admin-1", Role: domain.StaffRoleAdmin}
	support  = domain.Principal{Type: domain.SubjectTypeStaff, ID: "support-1", Role: domain.StaffRoleSupport}
	merchant = domain.Principal{Type: domain.SubjectTypeMerchant, ID: "merch-1", MerchantID: "merch-1"}
)

func agentPrincipal(id string) domain.Principal {
	return domain.Principal{Type: domain.SubjectTypeStaff, ID: id, Role: domain.StaffRoleAgent}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:      context.Background(),
		clock:    &testClock{now: time.Date(2024, 7, 28, 9, 0, 0, 0, time.UTC)},
		tickets:  repository.NewMemoryTicketRepository(),
		agents:   repository.NewMemoryAgentRepository(),
		notifier: &captureNotifier{},
		metrics:  observability.NewMetrics(),
		thresholds: lifecycle.Thresholds{
			domain.TicketPriorityCritical: time.Hour,
			domain.TicketPriorityHigh:     4 * time.Hour,
			domain.TicketPriorityMedium:   24 * time.Hour,
			domain.TicketPriorityLow:      72 * time.Hour,
		},
	}
	f.manager = lifecycle.NewManager(lifecycle.Dependencies{
		Store:      f.tickets,
		Agents:     f.agents,
		Notifier:   f.notifier,
		Recipients: lifecycle.Recipients{Admins: []string{"ops@superpool.test"}},
		Now:        f.clock.Now,
	})
	f.deps = TicketDependencies{
		Manager: f.manager,
		Agents:  f.agents,
		Locker:  NewLocalLocker(),
		Metrics: f.metrics,
		Logger:  zap.NewNop(),
	}
	f.ticketSvc = NewTicketService(f.deps)
	f.assignSvc = NewAssignmentService(AssignmentDependencies{Ticket: f.deps, Now: f.clock.Now})
	return f
}

func (f *fixture) createTicket(t *testing.T, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	ticket, err := f.ticketSvc.CreateTicket(f.ctx, merchant, TicketCreateInput{
		Category:    domain.TicketCategoryClaim,
		Priority:    priority,
		Description: "claim not paid",
		CustomerID:  "cust-1",
		InsurerID:   "ins-1",
	})
	require.NoError(t, err)
	return ticket
}

func (f *fixture) addAgent(t *testing.T, id string, available bool) {
	t.Helper()
	_, err := f.assignSvc.UpsertAgent(f.ctx, admin, AgentInput{UserID: id, Email: id + "@superpool.test", Available: available})
	require.NoError(t, err)
}
