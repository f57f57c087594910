package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"training-gate-service/internal/app"
	"training-gate-service/internal/config"
	"training-gate-service/internal/domain"
	"training-gate-service/internal/infra/memory"
	pgstore "training-gate-service/internal/infra/postgres"
	infraredis "training-gate-service/internal/infra/redis"
	transport "training-gate-service/internal/transport/http"
	"training-gate-service/pkg/logger"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the training service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(&cfg.Log, logger.DefaultServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	deps, cleanup, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	service := app.NewTrainingService(deps)
	handler := transport.NewHandler(service, log.Named("http"))

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     handler.Routes(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the status feed holds websocket connections open.
	}

	go func() {
		log.Info("starting training service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildDeps picks backends by configuration: postgres when a URL is set, otherwise redis for
// access records and the test cache when an address is set, otherwise memory with sample data.
func buildDeps(ctx context.Context, cfg config.Config, log *zap.Logger) (app.Deps, func(), error) {
	ttl := config.TTLDuration(cfg.Cache.TTL, 10*time.Minute)
	baseURL := cfg.Server.CertificateBaseURL
	if baseURL == "" {
		baseURL = "/certificates"
	}
	deps := app.Deps{
		Hub:                  app.NewStatusHub(),
		Logger:               log.Named("training"),
		DefaultPassThreshold: cfg.Training.DefaultPassThreshold,
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	var loader memory.TestLoader
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup()
			return app.Deps{}, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		catalog := pgstore.NewCatalog(pool)
		loader = catalog
		deps.Sessions = catalog
		deps.Programs = catalog
		deps.Access = pgstore.NewAccessStore(pool)
		deps.Results = pgstore.NewResultStore(pool)
		deps.Renderer = pgstore.NewCertificateLedger(pool, baseURL)
		log.Info("using postgres stores")
	} else {
		catalog := sampleCatalog()
		loader = catalog
		deps.Sessions = catalog
		deps.Programs = catalog
		deps.Results = memory.NewResultStore()
		deps.Renderer = memory.NewCertificateLedger(baseURL)
		if redisClient != nil {
			deps.Access = infraredis.NewAccessStore(redisClient)
			log.Info("using redis access store with sample catalog")
		} else {
			deps.Access = memory.NewAccessStore()
			log.Info("using in-memory stores with sample catalog")
		}
	}

	if redisClient != nil {
		deps.Tests = infraredis.NewTestRepository(redisClient, loader, ttl)
	} else {
		deps.Tests = memory.NewTestRepository(loader, ttl)
	}
	return deps, cleanup, nil
}

// sampleCatalog provides one session to explore the API with; production data lives in postgres.
func sampleCatalog() *memory.Catalog {
	threshold := 70.0
	c := memory.NewCatalog()
	c.PutProgram(domain.Program{ID: "prog-1", Name: "Defensive Driving", PassThreshold: &threshold})
	c.PutSession(domain.Session{
		ID:             "session-1",
		Name:           "Defensive Driving - Spring intake",
		ProgramID:      "prog-1",
		ParticipantIDs: []string{"p1", "p2", "p3", "p4", "p5", "p6"},
		TrainerAssignments: []domain.TrainerAssignment{
			{TrainerID: "chief-1", Role: domain.TrainerChief},
			{TrainerID: "trainer-1", Role: domain.TrainerRegular},
			{TrainerID: "trainer-2", Role: domain.TrainerRegular},
		},
	})
	questions := []domain.Question{
		{Text: "What is the safe following distance in dry conditions?", Options: []string{"1 second", "2 seconds", "3 seconds"}, CorrectOptionIndex: 2},
		{Text: "When should you check your mirrors?", Options: []string{"Only when reversing", "Every 5-8 seconds", "Never"}, CorrectOptionIndex: 1},
		{Text: "What does a flashing amber light mean?", Options: []string{"Proceed with caution", "Stop", "Speed up"}, CorrectOptionIndex: 0},
	}
	c.PutTest(domain.Test{ID: "pre-1", ProgramID: "prog-1", Type: domain.TestPre, Questions: questions})
	c.PutTest(domain.Test{ID: "post-1", ProgramID: "prog-1", Type: domain.TestPost, Questions: questions})
	return c
}
