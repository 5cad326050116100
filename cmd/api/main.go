package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/superpool/dispute-service/internal/api/http"
	"github.com/superpool/dispute-service/internal/api/http/handlers"
	"github.com/superpool/dispute-service/internal/app"
	"github.com/superpool/dispute-service/internal/auth"
	"github.com/superpool/dispute-service/internal/config"
	"github.com/superpool/dispute-service/internal/events"
	"github.com/superpool/dispute-service/internal/observability"
	"github.com/superpool/dispute-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to wire services", zap.Error(err))
	}
	defer rt.Close()

	dependencies := map[string]handlers.Pinger{}
	if rt.Postgres != nil {
		dependencies["postgres"] = rt.Postgres
	}
	if rt.Redis != nil {
		dependencies["redis"] = rt.Redis
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, auth.NewAPIKeyVerifier(cfg.Auth.MerchantKeys))

	server := httptransport.NewApp(httptransport.ServerConfig{
		AppName:        cfg.App.Name,
		RequestTimeout: cfg.App.RequestTimeout(),
		Logger:         logger,
		Metrics:        rt.Metrics,
		Routes: httptransport.RouteConfig{
			Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies, rt.Metrics),
			Tickets:        handlers.NewTicketsHandler(rt.Tickets, rt.Assignment),
			Agents:         handlers.NewAgentsHandler(rt.Assignment),
			AuthMiddleware: authMiddleware,
		},
	})

	notifyDone := worker.StartNotificationWorker(ctx, rt.Notifications, rt.Dispatcher, logger)
	var scanDone <-chan struct{}
	if rt.Escalation != nil {
		scanDone = worker.NewEscalationWorker(rt.Escalation, worker.EscalationWorkerConfig{
			Interval: cfg.Escalation.ScanInterval,
			LockTTL:  cfg.Escalation.LockTTL,
			Locker:   rt.Locker,
			Metrics:  rt.Metrics,
			Logger:   logger,
		}).Start(ctx)
	} else {
		logger.Info("escalation scan disabled")
	}

	go func() {
		if err := server.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	select {
	case <-notifyDone:
	case <-time.After(events.DefaultFlushTimeout + 5*time.Second):
		logger.Warn("notification worker did not stop in time")
	}
	if scanDone != nil {
		<-scanDone
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
