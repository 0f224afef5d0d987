package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/featureflags"
	"github.com/aryan0dhankhar/payhub/internal/handler"
	"github.com/aryan0dhankhar/payhub/internal/infrastructure/inproc"
	"github.com/aryan0dhankhar/payhub/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/payhub/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/payhub/internal/infrastructure/storage"
	"github.com/aryan0dhankhar/payhub/internal/observability/metrics"
	"github.com/aryan0dhankhar/payhub/internal/observability/tracing"
	"github.com/aryan0dhankhar/payhub/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/payhub/internal/repository"
	"github.com/aryan0dhankhar/payhub/internal/repository/memory"
	"github.com/aryan0dhankhar/payhub/internal/security"
	"github.com/aryan0dhankhar/payhub/internal/security/audit"
	"github.com/aryan0dhankhar/payhub/internal/security/auth"
	"github.com/aryan0dhankhar/payhub/internal/security/middleware"
	"github.com/aryan0dhankhar/payhub/internal/security/ratelimit"
	"github.com/aryan0dhankhar/payhub/internal/service"
	"github.com/aryan0dhankhar/payhub/internal/worker"
	"github.com/aryan0dhankhar/payhub/pkg/cache"
	"github.com/aryan0dhankhar/payhub/pkg/config"
	"github.com/aryan0dhankhar/payhub/pkg/database"
)

const serviceName = "payhub"

// repositories is the storage backend selected by STORAGE_DRIVER.
type repositories struct {
	users         domain.UserRepository
	institutions  domain.InstitutionRepository
	staff         domain.StaffRepository
	payslips      domain.PayslipRepository
	subscriptions domain.SubscriptionRepository
	payments      domain.PaymentRepository
	audit         domain.AuditRepository
	ping          handler.Pinger
	close         func() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "payhub: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting PayHub server", slog.String("environment", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// 3. Storage
	repos, err := openRepositories(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = repos.close() }()

	files, err := storage.NewLocalStore(cfg.UploadPath, log)
	if err != nil {
		return fmt.Errorf("open upload store: %w", err)
	}

	// 4. Job queue and status fan-out
	checks := map[string]handler.Pinger{"store": repos.ping}
	var (
		queue  domain.JobQueue
		events domain.StatusBroadcaster
	)
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		queue = redis.NewJobQueue(redisClient)
		events = redis.NewStatusBroadcaster(redisClient)
		checks["redis"] = redisClient.Ping
	} else {
		log.Warn("REDIS_URL not set: using in-process payslip queue")
		queue = inproc.NewJobQueue(256)
		events = inproc.NewBroadcaster()
	}

	breaker := circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		metrics.SetBreakerState("payslip_queue", int(to))
		log.Warn("payslip queue breaker changed state",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	// 5. Security components
	institutionCache, err := cache.New[bool](10_000)
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}
	defer institutionCache.Close()

	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	tokens := auth.NewTokenManager(cfg.JWTSecret, serviceName, cfg.JWTExpiresIn)
	gate := service.NewInstitutionGate(repos.institutions, institutionCache)
	auditLog := audit.NewLogger(repos.audit, log)
	authz := security.NewAuthorizationService(log)
	tenants := security.NewTenantScoper(log)
	guard := service.NewGuard(authz, tenants)
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	defer rateLimiter.Stop()
	clientIPs, err := middleware.NewIPResolver(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}

	plans, err := service.LoadPlans(cfg.PlansFile)
	if err != nil {
		return err
	}

	// 6. Services
	authService := service.NewAuthService(repos.users, repos.institutions, gate, hasher, tokens, auditLog, log)
	sessions := service.NewSessionAuthenticator(tokens, repos.users, gate, log)
	institutionService := service.NewInstitutionService(
		repos.institutions, repos.users, repos.staff, repos.payslips, repos.subscriptions,
		hasher, gate, authz, tenants, auditLog, log,
	)
	staffService := service.NewStaffService(repos.staff, repos.payslips, files, guard, auditLog, log)
	payslipService := service.NewPayslipService(
		repos.payslips, repos.staff, repos.users, files, queue, events, breaker, guard, auditLog, log,
	)
	subscriptionService := service.NewSubscriptionService(repos.subscriptions, repos.payments, plans, guard, auditLog, log)
	paymentService := service.NewPaymentService(repos.payments, repos.subscriptions, guard, auditLog, log)

	// 7. Handlers and routes
	mux := handler.NewRouter(handler.Handlers{
		Auth:          handler.NewAuthHandler(authService, featureflags.EnabledOr(featureflags.SuperAdminBootstrap, true), log),
		Institutions:  handler.NewInstitutionHandler(institutionService, log),
		Staff:         handler.NewStaffHandler(staffService, cfg.MaxFileSize, log),
		Payslips:      handler.NewPayslipHandler(payslipService, cfg.MaxFileSize, log),
		PayslipEvents: handler.NewPayslipEventsHandler(payslipService, cfg.CORSAllowedOrigins, log),
		Billing:       handler.NewBillingHandler(subscriptionService, paymentService, log),
		Health:        handler.NewHealthHandler(cfg.Environment, checks, log),
	}, middleware.Authenticate(sessions, log))

	// Chain middleware: request ID -> CORS -> path check -> rate limit -> audit -> content type
	root := tracing.Middleware(serviceName,
		middleware.RequestID(log)(
			middleware.CORS(cfg.CORSAllowedOrigins)(
				middleware.SanitizePath(log)(
					middleware.RateLimitMiddleware(rateLimiter, clientIPs, log)(
						middleware.AuditMiddleware(clientIPs)(
							middleware.ValidateContentType(log)(mux),
						),
					),
				),
			),
		),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// 8. Background workers
	processor := worker.NewPayslipProcessor(queue, repos.payslips, files, events, log, cfg.PayslipWorkers)
	sweeper := worker.NewStaleSweeper(repos.payslips, events, log, cfg.SweepInterval, cfg.PayslipStaleAfter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		processor.Start(gctx)
		return nil
	})
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("server starting",
			slog.Int("port", cfg.ServerPort),
			slog.String("storage", cfg.StorageDriver),
			slog.Int("rate_limit", cfg.RateLimitMax),
			slog.Duration("rate_limit_window", cfg.RateLimitWindow),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}

func openRepositories(ctx context.Context, cfg *config.Config, log *slog.Logger) (*repositories, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		log.Warn("using in-memory storage: data is lost on restart")
		store := memory.NewStore()
		return &repositories{
			users:         store.Users(),
			institutions:  store.Institutions(),
			staff:         store.Staff(),
			payslips:      store.Payslips(),
			subscriptions: store.Subscriptions(),
			payments:      store.Payments(),
			audit:         store.Audit(),
			ping:          func(context.Context) error { return nil },
			close:         func() error { return nil },
		}, nil
	}

	if err := database.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	pool, err := database.NewConnectionPool(ctx, &database.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: 30 * time.Minute,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	db := pool.GetDB()
	return &repositories{
		users:         repository.NewPostgresUserRepository(db, log),
		institutions:  repository.NewPostgresInstitutionRepository(db, log),
		staff:         repository.NewPostgresStaffRepository(db, log),
		payslips:      repository.NewPostgresPayslipRepository(db, log),
		subscriptions: repository.NewPostgresSubscriptionRepository(db, log),
		payments:      repository.NewPostgresPaymentRepository(db, log),
		audit:         repository.NewPostgresAuditRepository(db, log),
		ping:          pool.Health,
		close:         pool.Close,
	}, nil
}
