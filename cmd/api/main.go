package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/deskops/helpdesk-sla/internal/api/http"
	"github.com/deskops/helpdesk-sla/internal/api/http/handlers"
	"github.com/deskops/helpdesk-sla/internal/auth"
	"github.com/deskops/helpdesk-sla/internal/cache"
	"github.com/deskops/helpdesk-sla/internal/calendar"
	"github.com/deskops/helpdesk-sla/internal/clock"
	"github.com/deskops/helpdesk-sla/internal/config"
	"github.com/deskops/helpdesk-sla/internal/entitlement"
	"github.com/deskops/helpdesk-sla/internal/events"
	"github.com/deskops/helpdesk-sla/internal/observability"
	"github.com/deskops/helpdesk-sla/internal/persistence"
	"github.com/deskops/helpdesk-sla/internal/repository"
	"github.com/deskops/helpdesk-sla/internal/service"
	"github.com/deskops/helpdesk-sla/internal/sla"
	"github.com/deskops/helpdesk-sla/internal/worker"
)

const (
	shutdownTimeout = 15 * time.Second
	scanTimeout     = 5 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := observability.SetupTracing(ctx, cfg.Tracing, cfg.App, logger)
	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	clk := clock.Real()
	redisConn := persistence.NewRedis(cfg.Redis, logger)
	var (
		store       cache.Store
		redisPinger handlers.Pinger
	)
	if redisConn != nil {
		defer redisConn.Close()
		store = cache.NewRedis(redisConn.Client, cfg.Redis.KeyPrefix)
		redisPinger = redisConn
	} else {
		store = cache.NewMemory(clk)
	}

	pool := pg.PoolHandle()
	staffRepo := repository.NewStaffRepository(pool)
	teamRepo := repository.NewTeamRepository(pool)
	stageRepo := repository.NewStageRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	policyRepo := repository.NewSLAPolicyRepository(pool)
	statusRepo := repository.NewSLAStatusRepository(pool)
	escalationRepo := repository.NewEscalationRepository(pool)
	calendarRepo := repository.NewCalendarRepository(pool)
	entitlementRepo := repository.NewEntitlementRepository(pool)

	resolver := calendar.NewResolver(calendar.ResolverDependencies{
		Teams:     teamRepo,
		Store:     calendarRepo,
		Cache:     store,
		DefaultID: cfg.SLA.DefaultCalendarID,
		TTL:       cfg.SLA.CalendarCacheTTL(),
		Logger:    logger,
	})
	gate := entitlement.NewGate(entitlement.GateDependencies{
		Store:  entitlementRepo,
		Cache:  store,
		TTL:    cfg.Entitlement.CacheTTL(),
		Clock:  clk,
		Logger: logger,
	})

	dispatcher := events.NewInMemoryDispatcher(logger)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notificationService.RegisterHandlers()

	engine := sla.NewEngine(sla.EngineDependencies{
		Policies:  policyRepo,
		Stages:    stageRepo,
		Statuses:  statusRepo,
		History:   historyRepo,
		Calendars: resolver,
		Clock:     clk,
		Logger:    logger,
		Metrics:   metrics,
	})
	scanner := sla.NewScanner(sla.ScannerDependencies{
		Statuses:    statusRepo,
		Policies:    policyRepo,
		Tickets:     ticketRepo,
		Escalations: escalationRepo,
		Notifier:    service.NewBreachPublisher(dispatcher, clk),
		Clock:       clk,
		Logger:      logger,
		Metrics:     metrics,
		BatchSize:   cfg.SLA.ScanBatchSize,
	})

	authService := service.NewAuthService(*cfg, service.AuthDependencies{StaffRepo: staffRepo})
	orgService := service.NewStaffService(*cfg, service.OrgDependencies{
		TeamRepo:  teamRepo,
		StageRepo: stageRepo,
		StaffRepo: staffRepo,
		Calendars: resolver,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:    ticketRepo,
		TeamRepo:      teamRepo,
		StageRepo:     stageRepo,
		HistoryRepo:   historyRepo,
		SLAStatusRepo: statusRepo,
		Engine:        engine,
		Dispatcher:    dispatcher,
		Clock:         clk,
		Logger:        logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo:  ticketRepo,
		StaffRepo:   staffRepo,
		HistoryRepo: historyRepo,
		Dispatcher:  dispatcher,
		Clock:       clk,
	})
	policyService := service.NewSLAPolicyService(service.SLAPolicyDependencies{
		PolicyRepo:    policyRepo,
		SLAStatusRepo: statusRepo,
		TicketRepo:    ticketRepo,
		TeamRepo:      teamRepo,
		StageRepo:     stageRepo,
		StaffRepo:     staffRepo,
		Engine:        engine,
		Clock:         clk,
		Logger:        logger,
	})
	calendarService := service.NewCalendarService(service.CalendarDependencies{
		CalendarRepo: calendarRepo,
		Cache:        resolver,
	})
	escalationService := service.NewEscalationService(service.EscalationDependencies{
		EscalationRepo: escalationRepo,
		Scanner:        scanner,
		Clock:          clk,
		Logger:         logger,
	})

	breachWorker, err := worker.NewBreachWorker(cfg.SLA.ScanSchedule, scanner, scanTimeout, logger)
	if err != nil {
		logger.Fatal("failed to schedule breach scanner", zap.Error(err))
	}
	breachWorker.Start()

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), staffRepo)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redisPinger),
		Staff:          handlers.NewStaffHandler(authService, orgService),
		Tickets:        handlers.NewTicketsHandler(ticketService, assignmentService),
		SLA:            handlers.NewSLAHandler(policyService),
		Calendars:      handlers.NewCalendarHandler(calendarService),
		Escalations:    handlers.NewEscalationHandler(escalationService),
		Entitlements:   handlers.NewEntitlementHandler(gate, cfg.Entitlement.WebhookSecret),
		AuthMiddleware: authMiddleware.Handle,
		Gate:           gate,
		TenantID:       cfg.Entitlement.TenantID,
		Metrics:        metrics,
		Logger:         logger,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	breachWorker.Stop(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
