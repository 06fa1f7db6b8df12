package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shoeshop/shoeshop/cmd/shoeshop/cli"
	"github.com/shoeshop/shoeshop/internal/app"
	"github.com/shoeshop/shoeshop/internal/auth"
	"github.com/shoeshop/shoeshop/internal/observability"
	"github.com/shoeshop/shoeshop/internal/platform/cache"
	"github.com/shoeshop/shoeshop/internal/platform/db"
	"github.com/shoeshop/shoeshop/internal/rbac"
	"github.com/shoeshop/shoeshop/internal/roles"
	"github.com/shoeshop/shoeshop/internal/shared"
	"github.com/shoeshop/shoeshop/internal/users"
	"github.com/shoeshop/shoeshop/jobs"
)

const usage = `usage: shoeshop [command] [flags]

commands:
  serve       run the HTTP API (default)
  migrate     apply pending database migrations
  createuser  create a login account
  jobs        trigger or inspect background jobs (trigger|stats|scheduled)
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	command, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	var code int
	switch command {
	case "serve":
		code = serve(ctx, stop, cfg, logger)
	case "migrate":
		code = migrate(ctx, cfg, logger)
	case "createuser":
		code = createUser(ctx, cfg, logger, args)
	case "jobs":
		code = jobsCommand(ctx, cfg, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		code = 2
	}
	stop()
	os.Exit(code)
}

func redisOpt(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

func connect(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*pgxpool.Pool, bool) {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return nil, false
	}
	return pool, true
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, ok := connect(ctx, cfg, logger)
	if !ok {
		return 1
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}
	logger.Info("migrations applied")
	return 0
}

func createUser(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("createuser", flag.ContinueOnError)
	var account auth.NewAccount
	fs.StringVar(&account.Username, "username", "", "username for the new account (required)")
	fs.StringVar(&account.Email, "email", "", "email address")
	fs.StringVar(&account.Password, "password", "", "password, at least 8 characters (required)")
	fs.StringVar(&account.FirstName, "first-name", "", "first name")
	fs.StringVar(&account.LastName, "last-name", "", "last name")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, ok := connect(ctx, cfg, logger)
	if !ok {
		return 1
	}
	defer pool.Close()
	service := auth.NewService(auth.NewRepository(pool))
	return cli.CreateUserCommand(ctx, service, cli.CreateUserOptions{Account: account})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	opts := cli.JobsOptions{}
	fs.StringVar(&opts.Job, "job", jobs.TaskSessionPurge, "job to trigger")
	fs.DurationVar(&opts.Grace, "grace", cfg.SessionPurgeGrace, "session purge grace period")
	fs.IntVar(&opts.Size, "size", 10, "number of scheduled tasks to list")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print stats as JSON")
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		opts.Action, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	c := cli.NewJobsCLI(redisOpt(cfg))
	defer func() { _ = c.Close() }()
	return c.JobsCommand(ctx, opts)
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) int {
	dbpool, ok := connect(ctx, cfg, logger)
	if !ok {
		return 1
	}
	defer dbpool.Close()

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, dbpool); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			return 1
		}
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	var metrics *observability.Metrics
	serviceCfg := users.ServiceConfig{
		BootstrapUserID: cfg.BootstrapUserID,
		Logger:          logger,
		Audit:           shared.NewAuditLogger(dbpool),
	}
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
		serviceCfg.Metrics = metrics
	}
	if cfg.NotifyEnabled {
		jobClient, err := jobs.NewClient(redisOpt(cfg))
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			return 1
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		serviceCfg.Notifier = jobClient
	}

	registry := roles.NewRegistry()
	usersService := users.NewService(users.NewRepository(dbpool, registry), registry, serviceCfg)

	rbacService := rbac.NewService(usersService, registry)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware)

	inspector := asynq.NewInspector(redisOpt(cfg))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobHandler,
		RBACMiddleware:     rbacMiddleware,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}
