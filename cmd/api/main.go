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

	httptransport "github.com/spec-kit/intake-desk/internal/api/http"
	"github.com/spec-kit/intake-desk/internal/api/http/handlers"
	"github.com/spec-kit/intake-desk/internal/auth"
	"github.com/spec-kit/intake-desk/internal/config"
	"github.com/spec-kit/intake-desk/internal/dedup"
	"github.com/spec-kit/intake-desk/internal/events"
	"github.com/spec-kit/intake-desk/internal/observability"
	"github.com/spec-kit/intake-desk/internal/persistence"
	"github.com/spec-kit/intake-desk/internal/repository"
	"github.com/spec-kit/intake-desk/internal/repository/memory"
	"github.com/spec-kit/intake-desk/internal/service"
	"github.com/spec-kit/intake-desk/internal/whatsapp"
	"github.com/spec-kit/intake-desk/internal/worker"
)

type stores struct {
	conversations repository.ConversationRepository
	tickets       repository.TicketRepository
	sequences     repository.SequenceRepository
	staff         repository.StaffRepository
}

type channel interface {
	service.Notifier
	service.ReadMarker
}

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

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	repos := buildStores(pg, logger)
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	var guard dedup.Guard = dedup.NewMemoryGuard(cfg.Desk.DedupTTL())
	if redis != nil {
		guard = dedup.NewRedisGuard(redis.Client, cfg.Desk.DedupTTL())
	}

	var wa channel = whatsapp.NewLogNotifier(logger)
	if cfg.WhatsApp.Enabled() {
		wa = whatsapp.NewClient(cfg.WhatsApp)
	} else {
		logger.Warn("WhatsApp credentials not provided; outbound messages are only logged")
	}

	store := service.NewConversationStore(repos.conversations)
	messenger := service.NewMessenger(wa, store, metrics, logger, nil)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   repos.tickets,
		SequenceRepo: repos.sequences,
		StaffRepo:    repos.staff,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})
	queueService := service.NewQueueService(service.QueueDependencies{
		Store:      store,
		TicketRepo: repos.tickets,
		Logger:     logger,
	})
	lockService := service.NewLockService(service.LockDependencies{
		TicketRepo: repos.tickets,
		StaffRepo:  repos.staff,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		TTL:        cfg.Desk.LockTTL(),
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		Locks:      lockService,
		Store:      store,
		TicketRepo: repos.tickets,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	conversationService := service.NewConversationService(store, messenger, logger, nil)
	intakeService := service.NewIntakeService(service.IntakeDependencies{
		Store:      store,
		Tickets:    ticketService,
		Queue:      queueService,
		StaffRepo:  repos.staff,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	inboundService := service.NewInboundService(service.InboundDependencies{
		Guard:         guard,
		Intake:        intakeService,
		Tickets:       ticketService,
		Conversations: conversationService,
		Store:         store,
		Messenger:     messenger,
		Reader:        wa,
		Dispatcher:    dispatcher,
		Metrics:       metrics,
		Logger:        logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(*cfg, repos.staff, tokens)
	staffService := service.NewStaffService(*cfg, repos.staff, logger)
	if err := staffService.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminName, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPass); err != nil {
		logger.Fatal("failed to bootstrap admin", zap.Error(err))
	}

	notificationService := service.NewNotificationService(dispatcher, messenger, logger, cfg.Desk.NotifyQueueSize)
	waitWorkers := worker.StartNotificationWorker(ctx, notificationService, cfg.Desk.NotifyWorkers)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.App.RequestTimeout(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:   cfg.App.RequestTimeout(),
		RateLimit: cfg.RateLimit,
	})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Webhook:        handlers.NewWebhookHandler(inboundService, cfg.WhatsApp.VerifyToken, logger),
		Queue:          handlers.NewQueueHandler(queueService, assignmentService, nil),
		Tickets:        handlers.NewTicketsHandler(ticketService, lockService, assignmentService),
		Conversations:  handlers.NewConversationsHandler(conversationService),
		Staff:          handlers.NewStaffHandler(authService, staffService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, repos.staff),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	waitWorkers()
}

func buildStores(pg *persistence.Postgres, logger *zap.Logger) stores {
	if !pg.Enabled() {
		logger.Warn("running on in-memory repositories; data is lost on restart")
		return stores{
			conversations: memory.NewConversations(),
			tickets:       memory.NewTickets(),
			sequences:     memory.NewSequences(),
			staff:         memory.NewStaff(),
		}
	}
	pool := pg.PoolHandle()
	return stores{
		conversations: repository.NewConversationRepository(pool),
		tickets:       repository.NewTicketRepository(pool),
		sequences:     repository.NewSequenceRepository(pool),
		staff:         repository.NewStaffRepository(pool),
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
