package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tixdesk/server/internal/api"
	"github.com/tixdesk/server/internal/api/handlers"
	"github.com/tixdesk/server/internal/audit"
	"github.com/tixdesk/server/internal/auth"
	"github.com/tixdesk/server/internal/config"
	"github.com/tixdesk/server/internal/domain/users"
	"github.com/tixdesk/server/internal/email"
	"github.com/tixdesk/server/internal/jobs"
	"github.com/tixdesk/server/internal/metrics"
	"github.com/tixdesk/server/internal/notify"
	"github.com/tixdesk/server/internal/storage/postgres"
	"github.com/tixdesk/server/internal/telemetry"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// serveOptions override the configured listen address.
type serveOptions struct {
	host string
	port int
}

func newServeCommand(global *globalOptions) *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Tixdesk HTTP server",
		Long: `Start the Tixdesk HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (or --config file if provided)
- Apply database and job queue migrations when DATABASE_AUTO_MIGRATE=true
- Start the background workers that deliver signup events and welcome emails
- Bootstrap an admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  tixdesk serve

  # Start on a specific host and port
  tixdesk serve --host 127.0.0.1 --port 9090

  # Start with custom config file
  tixdesk serve --config /etc/tixdesk/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), global, opts)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "server port (default: 8080)")
	return cmd
}

func runServer(ctx context.Context, global *globalOptions, opts serveOptions) error {
	cfg, err := global.loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := config.NewLogger(cfg.Logging)
	slogger := config.NewSlogLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting tixdesk server")

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing setup failed: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	startCtx, startCancel := context.WithTimeout(ctx, startupTimeout)
	defer startCancel()

	pool, err := postgres.NewPool(startCtx, cfg.Database.URL, int32(cfg.Database.MaxConnections))
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.MigrateUp(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return err
		}
		applied, err := postgres.MigrateRiver(startCtx, pool)
		if err != nil {
			return err
		}
		logger.Info().Int("river_versions_applied", applied).Msg("migrations applied")
	}

	mailer, err := email.NewService(cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("email setup failed: %w", err)
	}
	publisher := notify.New(cfg.Events.BaseURL, cfg.Events.Key, logger)
	workers := jobs.NewWorkers(publisher, mailer, slogger)

	riverClient, err := jobs.NewClient(pool, workers, slogger, []rivertype.Hook{metrics.NewRiverMetricsHook()})
	if err != nil {
		return fmt.Errorf("river client setup failed: %w", err)
	}
	// Workers get their own context so in-flight jobs finish during Stop
	// instead of being cancelled by the signal.
	if err := riverClient.Start(context.Background()); err != nil {
		return fmt.Errorf("river workers failed to start: %w", err)
	}
	logger.Info().Msg("river background job workers started")
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := riverClient.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("river workers shutdown error")
			return
		}
		logger.Info().Msg("river workers stopped")
	}()

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)
	accounts := users.NewService(
		postgres.NewUserRepository(pool),
		auth.NewPasswordHasher(),
		tokens,
		jobs.NewSignupOutbox(riverClient, cfg.Email.Enabled),
		audit.NewLoggerWithZerolog(logger),
		logger,
		users.WithEmailRedaction(cfg.IsProduction()),
	)

	if err := bootstrapAdmin(startCtx, cfg, accounts, logger); err != nil {
		logger.Error().Err(err).Msg("admin bootstrap failed")
	}

	health := handlers.NewHealthChecker(Version, GitCommit)
	health.Register("database", handlers.DatabaseCheck(pool))
	health.Register("migrations", handlers.MigrationsCheck(pool))
	health.Register("job_queue", handlers.JobQueueCheck(pool))

	dbCollector := metrics.NewDBCollector(pool)
	go dbCollector.Start(ctx, 15*time.Second)
	defer dbCollector.Stop()

	server := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.NewRouter(api.Deps{
			Config:   cfg,
			Logger:   logger,
			Accounts: accounts,
			Tokens:   tokens,
			Health:   health,
			Build:    api.BuildInfo{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate},
		}),
		ReadTimeout:       10 * time.Second, // Total time to read request
		WriteTimeout:      30 * time.Second, // bcrypt plus a slow database still fits
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	case <-ctx.Done():
	}

	return gracefulShutdown(server, logger)
}

// bootstrapAdmin creates the configured admin account on first start.
func bootstrapAdmin(ctx context.Context, cfg config.Config, accounts *users.Service, logger zerolog.Logger) error {
	bootstrap := cfg.AdminBootstrap
	if bootstrap.Email == "" || bootstrap.Password == "" {
		logger.Debug().Msg("admin bootstrap env vars not set; skipping")
		return nil
	}

	created, err := accounts.BootstrapAdmin(ctx, bootstrap.Email, bootstrap.Password)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	// Redact email in production to avoid PII in logs
	if cfg.IsProduction() {
		logger.Info().Msg("bootstrapped admin user")
	} else {
		logger.Info().Str("email", users.NormalizeEmail(bootstrap.Email)).Msg("bootstrapped admin user")
	}
	return nil
}

func gracefulShutdown(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
