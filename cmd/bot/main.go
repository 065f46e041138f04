package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-bot/internal/api/http"
	"github.com/spec-kit/ticket-bot/internal/api/http/handlers"
	"github.com/spec-kit/ticket-bot/internal/app"
	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/gateway/discord"
	"github.com/spec-kit/ticket-bot/internal/interaction"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/persistence"
	"github.com/spec-kit/ticket-bot/internal/presentation"
	"github.com/spec-kit/ticket-bot/internal/repository"
	"github.com/spec-kit/ticket-bot/internal/service"
	"github.com/spec-kit/ticket-bot/internal/worker"
	"github.com/spec-kit/ticket-bot/pkg/util/retry"
)

type stores struct {
	counters repository.CounterRepository
	tickets  repository.TicketRepository
	history  repository.TicketHistoryRepository
	pingers  map[string]handlers.Pinger
	redis    *persistence.Redis
	closers  []func()
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

	if cfg.Discord.Token == "" {
		logger.Fatal("DISCORD_BOT_TOKEN is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open stores", zap.Error(err))
	}
	defer func() {
		for i := len(st.closers) - 1; i >= 0; i-- {
			st.closers[i]()
		}
	}()

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Fatal("failed to create discord session", zap.Error(err))
	}
	api := discord.NewSessionAPI(session)

	metrics := observability.NewMetrics()
	bus := events.NewInMemoryBus()
	roles := auth.ChainLookup{
		auth.OperatorLookup{},
		auth.NewMemberRoleLookup(discord.NewMemberRoles(api, cfg.Discord.GuildID), cfg.Discord.AdminRoleID, cfg.Sponsors),
	}

	counters := service.NewCounterStore(st.counters, cfg.Storage.Timeout, logger)
	registry := service.NewTicketRegistry(service.RegistryDependencies{
		TicketRepo:  st.tickets,
		HistoryRepo: st.history,
		Timeout:     cfg.Storage.Timeout,
		Logger:      logger,
	})
	engine := service.NewLifecycleEngine(service.EngineDependencies{
		Counters:                counters,
		Registry:                registry,
		Roles:                   roles,
		Bus:                     bus,
		Tickets:                 cfg.Tickets,
		ArchiveGroupID:          cfg.Discord.ArchiveCategoryID,
		TranscriptDestinationID: cfg.Discord.TranscriptChannelID,
		Logger:                  logger,
	})

	var publisher service.EventPublisher
	if st.redis != nil && st.redis.Client != nil {
		publisher = st.redis.Client
	}
	worker.StartNotificationWorker(service.NewNotificationService(bus, logger, publisher, cfg.Redis.EventChannel))
	worker.StartMetricsWorker(bus, metrics)

	provisioner := discord.NewProvisioner(api, engine, presentation.Renderer{Tiers: cfg.Sponsors}, discord.ProvisionerConfig{
		GuildID:        cfg.Discord.GuildID,
		AdminRoleID:    cfg.Discord.AdminRoleID,
		EditsPerSecond: cfg.Discord.EditsPerSecond,
	}, logger)

	var gateway *discord.Gateway
	lifecycle := app.NewLifecycle(logger,
		app.StartupStep{Name: "counters", Run: func(ctx context.Context) error {
			return counters.Init(ctx, domain.Categories)
		}},
		app.StartupStep{Name: "commands", Run: func(ctx context.Context) error {
			return discord.RegisterCommands(api, gateway.AppID(), cfg.Discord.GuildID, logger)
		}},
	)

	var deduper interaction.Deduper = interaction.NewMemoryDeduper()
	if cfg.Dispatcher.DedupBackend == config.BackendRedis {
		if st.redis == nil {
			st.redis = persistence.NewRedis(cfg.Redis, logger)
			st.closers = append(st.closers, st.redis.Close)
		}
		deduper = interaction.NewRedisDeduper(st.redis.Client, st.redis.Key("dedup"))
		st.pingers["redis"] = st.redis
	}
	dispatcher := interaction.NewDispatcher(interaction.DispatcherDependencies{
		Deduper: deduper,
		Window:  cfg.Dispatcher.DedupWindow,
		Retry: retry.Policy{
			Attempts:     cfg.Dispatcher.RetryAttempts,
			InitialDelay: cfg.Dispatcher.RetryInitialDelay,
			MaxDelay:     cfg.Dispatcher.RetryMaxDelay,
		},
		Roles:   roles,
		Ready:   lifecycle,
		Metrics: metrics,
		Logger:  logger,
	})
	dispatcher.Register(interaction.TicketControls(engine)...)

	gateway = discord.NewGateway(discord.GatewayDependencies{
		API:         api,
		Dispatcher:  dispatcher,
		Provisioner: provisioner,
		Lifecycle:   lifecycle,
		Logger:      logger,
	})
	gateway.Attach(session)
	if err := session.Open(); err != nil {
		logger.Fatal("failed to open discord gateway", zap.Error(err))
	}
	defer session.Close() //nolint:errcheck

	var server *fiber.App
	if cfg.App.HTTPEnabled {
		server = fiber.New(fiber.Config{DisableStartupMessage: true})
		httptransport.RegisterMiddlewares(server, logger, metrics, cfg.App.RequestTimeout())

		tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
		httptransport.RegisterRoutes(server, httptransport.RouteConfig{
			Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, lifecycle, st.pingers),
			Operators:      handlers.NewOperatorHandler(auth.NewOperatorAuthenticator(cfg.Auth.OperatorUsername, cfg.Auth.OperatorPasswordHash), tokens),
			Tickets:        handlers.NewTicketsHandler(engine, provisioner, logger),
			Metrics:        handlers.NewMetricsHandler(metrics),
			AuthMiddleware: auth.NewAuthMiddleware(tokens),
		})

		go func() {
			if err := server.Listen(cfg.App.Addr()); err != nil {
				logger.Fatal("fiber listen", zap.Error(err))
			}
		}()
	}

	waitForShutdown(logger)

	if server != nil {
		_ = server.Shutdown()
	}
}

// openStores connects the configured counter and registry backends.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	st := &stores{pingers: map[string]handlers.Pinger{}}
	backends := map[string]bool{cfg.Storage.CounterBackend: true, cfg.Storage.RegistryBackend: true}

	var (
		pg     *persistence.Postgres
		local  *persistence.Local
		memory *repository.MemoryStore
	)
	if backends[config.BackendPostgres] {
		var err error
		pg, err = persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pg.Close)
		st.pingers["postgres"] = pg
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				return nil, err
			}
		}
	}
	if backends[config.BackendLocal] {
		var err error
		local, err = persistence.NewLocal(cfg.Local, logger)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, local.Close)
		st.pingers["local"] = local
		if err := repository.MigrateLocal(local.DB); err != nil {
			return nil, err
		}
	}
	if backends[config.BackendRedis] {
		st.redis = persistence.NewRedis(cfg.Redis, logger)
		st.closers = append(st.closers, st.redis.Close)
		st.pingers["redis"] = st.redis
	} else if cfg.Redis.EventChannel != "" {
		st.redis = persistence.NewRedis(cfg.Redis, logger)
		st.closers = append(st.closers, st.redis.Close)
	}
	if backends[config.BackendMemory] {
		logger.Warn("memory backend selected; tickets and counters are lost on restart")
		memory = repository.NewMemoryStore()
	}

	switch cfg.Storage.CounterBackend {
	case config.BackendPostgres:
		st.counters = repository.NewCounterRepository(pg.PoolHandle())
	case config.BackendRedis:
		st.counters = repository.NewRedisCounterRepository(st.redis.Client, st.redis.Prefix)
	case config.BackendLocal:
		st.counters = repository.NewLocalStore(local.DB)
	default:
		st.counters = memory
	}

	switch cfg.Storage.RegistryBackend {
	case config.BackendPostgres:
		st.tickets = repository.NewTicketRepository(pg.PoolHandle())
		st.history = repository.NewTicketHistoryRepository(pg.PoolHandle())
	case config.BackendLocal:
		store := repository.NewLocalStore(local.DB)
		st.tickets, st.history = store, store
	default:
		st.tickets, st.history = memory, memory
	}
	return st, nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
