package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/superpool/dispute-service/internal/config"
	"github.com/superpool/dispute-service/internal/events"
	"github.com/superpool/dispute-service/internal/lifecycle"
	"github.com/superpool/dispute-service/internal/observability"
	"github.com/superpool/dispute-service/internal/persistence"
	"github.com/superpool/dispute-service/internal/repository"
	"github.com/superpool/dispute-service/internal/service"
)

// Runtime holds the wired services shared by the API server and ticketctl.
type Runtime struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	Postgres      *persistence.Postgres
	Redis         *persistence.Redis
	Locker        service.Locker
	Dispatcher    events.Dispatcher
	Notifications *service.NotificationService
	Tickets       *service.TicketService
	Assignment    *service.AssignmentService
	// Escalation is nil when escalation is disabled.
	Escalation *service.EscalationService
}

// Build connects the configured backends and wires the services. Without
// a Postgres DSN the stores are in-memory; without a Redis address locks
// are process-local.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	var (
		tickets repository.TicketRepository
		agents  repository.AgentRepository
	)
	if cfg.Postgres.DSN != "" {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.Postgres = pg
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				rt.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		tickets = repository.NewTicketRepository(pg.PoolHandle())
		agents = repository.NewAgentRepository(pg.PoolHandle())
	} else {
		logger.Warn("POSTGRES_DSN not set, using in-memory stores")
		tickets = repository.NewMemoryTicketRepository()
		agents = repository.NewMemoryAgentRepository()
	}

	if cfg.Redis.Addr != "" {
		redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rt.Redis = redis
		rt.Locker = persistence.NewRedisLocker(redis, logger)
	} else {
		rt.Locker = service.NewLocalLocker()
	}

	rt.Dispatcher = events.NewInMemoryDispatcher(logger)
	rt.Notifications = service.NewNotificationService(service.NotificationDependencies{
		Dispatcher: rt.Dispatcher,
		Queue:      events.NewQueue(cfg.Notification.QueueSize),
		Logger:     logger,
		Metrics:    rt.Metrics,
		Config:     cfg.Notification,
	})

	manager := lifecycle.NewManager(lifecycle.Dependencies{
		Store:    tickets,
		Agents:   agents,
		Notifier: rt.Notifications,
		Recipients: lifecycle.Recipients{
			Admins:        cfg.Notification.Admins,
			ManagerAdmins: cfg.Notification.ManagerAdmins,
		},
	})
	deps := service.TicketDependencies{
		Manager: manager,
		Agents:  agents,
		Locker:  rt.Locker,
		Metrics: rt.Metrics,
		Logger:  logger,
		LockTTL: cfg.Locks.TicketTTL,
	}
	rt.Tickets = service.NewTicketService(deps)
	rt.Assignment = service.NewAssignmentService(service.AssignmentDependencies{
		Ticket:              deps,
		EscalateWhenNoAgent: cfg.Assignment.EscalateWhenNoAgent,
	})

	if cfg.Escalation.Enabled {
		escalation, err := service.NewEscalationService(service.EscalationDependencies{
			Ticket:     deps,
			Thresholds: cfg.Escalation.Thresholds,
			BatchSize:  cfg.Escalation.BatchSize,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Escalation = escalation
	}
	return rt, nil
}

// Close releases backend connections.
func (rt *Runtime) Close() {
	if rt.Redis != nil {
		rt.Redis.Close()
	}
	if rt.Postgres != nil {
		rt.Postgres.Close()
	}
}
