package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/superpool/dispute-service/internal/config"
	"github.com/superpool/dispute-service/internal/domain"
	"github.com/superpool/dispute-service/internal/events"
	"github.com/superpool/dispute-service/internal/observability"
)

const webhookTimeout = 5 * time.Second

// NotificationService turns ticket transitions into events and delivers
// them by email and webhook. Notify never blocks the caller: events go
// through a bounded queue and are dropped when it is full.
type NotificationService struct {
	dispatcher events.Dispatcher
	queue      *events.Queue
	mailer     Mailer
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        config.NotificationConfig
	now        func() time.Time
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	Queue      *events.Queue
	Mailer     Mailer
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Config     config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	n := &NotificationService{
		dispatcher: deps.Dispatcher,
		queue:      deps.Queue,
		mailer:     deps.Mailer,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		cfg:        deps.Config,
		now:        time.Now,
	}
	if n.logger == nil {
		n.logger = zap.NewNop()
	}
	if n.queue == nil {
		n.queue = events.NewQueue(deps.Config.QueueSize)
	}
	if n.mailer == nil {
		n.mailer = NewMailer(deps.Config, n.logger)
	}
	return n
}

// Queue exposes the pending event queue for the delivery worker.
func (n *NotificationService) Queue() *events.Queue { return n.queue }

// Notify implements lifecycle.Notifier.
func (n *NotificationService) Notify(ctx context.Context, kind domain.HistoryAction, ticket *domain.Ticket, recipients []string) {
	eventType, ok := events.TypeForAction(kind)
	if !ok || ticket == nil {
		return
	}
	event := events.NewTicketEvent(uuid.NewString(), eventType, ticket, recipients, n.now())
	if !n.queue.Offer(event) {
		n.metrics.RecordNotificationDropped()
		n.logger.Warn("notification queue full, dropping event",
			zap.String("ticket_id", ticket.ID),
			zap.String("event_type", string(eventType)))
	}
}

// RegisterHandlers subscribes delivery handlers to every ticket event.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		n.dispatcher.Subscribe(eventType, n.handleEmail)
		n.dispatcher.Subscribe(eventType, n.handleWebhook)
	}
}

func (n *NotificationService) handleEmail(ctx context.Context, event events.Event) error {
	if len(event.Recipients) == 0 {
		return nil
	}
	subject, body := renderEmail(event)
	if err := n.mailer.Send(ctx, event.Recipients, subject, body); err != nil {
		return fmt.Errorf("email %s: %w", event.Type, err)
	}
	n.logger.Info("notification emailed",
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)),
		zap.Int("recipients", len(event.Recipients)))
	return nil
}

func (n *NotificationService) handleWebhook(ctx context.Context, event events.Event) error {
	url := strings.TrimSpace(n.cfg.WebhookURL)
	if url == "" {
		return nil
	}
	agent := fiber.Post(url).Timeout(webhookTimeout).JSON(event)
	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook %s: %w", event.Type, errs[0])
	}
	if code >= fiber.StatusBadRequest {
		return fmt.Errorf("webhook %s: unexpected status %d", event.Type, code)
	}
	n.logger.Debug("webhook delivered",
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)),
		zap.Int("status", code))
	return nil
}

var eventTitles = map[events.EventType]string{
	events.EventTicketCreated:   "New dispute filed",
	events.EventTicketUpdated:   "Dispute updated",
	events.EventTicketAssigned:  "Dispute assigned to you",
	events.EventTicketEscalated: "Dispute escalated",
	events.EventTicketResolved:  "Dispute resolved",
	events.EventTicketClosed:    "Dispute closed",
}

func renderEmail(event events.Event) (string, string) {
	title := eventTitles[event.Type]
	if title == "" {
		title = string(event.Type)
	}
	p := event.Payload
	subject := fmt.Sprintf("[%s] %s", p.ExternalKey, title)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", title)
	fmt.Fprintf(&b, "Ticket:   %s (%s)\n", p.ExternalKey, event.TicketID)
	fmt.Fprintf(&b, "Category: %s\n", p.Category)
	fmt.Fprintf(&b, "Priority: %s\n", p.Priority)
	fmt.Fprintf(&b, "Status:   %s\n", p.Status)
	fmt.Fprintf(&b, "Merchant: %s\n", p.MerchantID)
	if p.AssigneeID != nil {
		fmt.Fprintf(&b, "Assignee: %s\n", *p.AssigneeID)
	}
	if p.Note != "" {
		fmt.Fprintf(&b, "\n%s\n", p.Note)
	}
	fmt.Fprintf(&b, "\nBy %s at %s\n", event.ActorID, event.Timestamp.UTC().Format(time.RFC3339))
	return subject, b.String()
}
