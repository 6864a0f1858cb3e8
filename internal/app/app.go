package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/luxuryfashion/storefront/internal/auth"
	"github.com/luxuryfashion/storefront/internal/config"
	"github.com/luxuryfashion/storefront/internal/event"
	handler "github.com/luxuryfashion/storefront/internal/handler/http"
	"github.com/luxuryfashion/storefront/internal/limiter"
	"github.com/luxuryfashion/storefront/internal/oauth"
	"github.com/luxuryfashion/storefront/internal/repository/postgres"
	"github.com/luxuryfashion/storefront/internal/service"
	"github.com/luxuryfashion/storefront/migrations"
	"github.com/luxuryfashion/storefront/pkg/database"
	"github.com/luxuryfashion/storefront/pkg/health"
	"github.com/luxuryfashion/storefront/pkg/httpclient"
	pkgkafka "github.com/luxuryfashion/storefront/pkg/kafka"
	"github.com/luxuryfashion/storefront/pkg/tracing"
)

// Version is reported to the tracing backend.
const Version = "0.1.0"

// App wires together all dependencies and runs the storefront auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
	stopBackground context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	policy, err := cfg.AccessPolicy()
	if err != nil {
		return nil, fmt.Errorf("build access policy: %w", err)
	}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.TracingConfig(Version))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := cfg.PostgresConfig()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if cfg.MigrationsOnStartup {
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")
	}

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}

	// Redis only backs the failed-login counter, which fails open, so an
	// unreachable Redis degrades startup instead of aborting it.
	rdb, err := database.NewRedisClient(ctx, cfg.RedisConfig(), logger)
	if err != nil {
		logger.Warn("redis unavailable at startup, login lockout degraded",
			slog.String("addr", cfg.RedisConfig().Addr()),
			slog.String("error", err.Error()),
		)
		rc := cfg.RedisConfig()
		rdb = redis.NewClient(&redis.Options{
			Addr:         rc.Addr(),
			Password:     rc.Password,
			DB:           rc.DB,
			DialTimeout:  rc.DialTimeout,
			ReadTimeout:  rc.ReadTimeout,
			WriteTimeout: rc.WriteTimeout,
		})
	}

	database.RegisterPoolMetrics(prometheus.DefaultRegisterer, cfg.ServiceName, pool, rdb)

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	codec := auth.NewTokenCodec([]byte(cfg.JWTSecret), cfg.JWTExpiration)
	accountRepo := postgres.NewAccountRepository(pool)
	events := event.NewProducer(producer, logger)
	credentials := service.NewCredentialStore(accountRepo, cfg.BcryptCost, events, logger)
	logins := service.NewLoginService(credentials, codec, limiter.New(rdb, cfg.LimiterConfig()), events, logger)
	authenticator := auth.NewAuthenticator(policy, codec, credentials, cfg.FrontendURL, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	routerCfg := handler.RouterConfig{
		ServiceName:       cfg.ServiceName,
		Authenticator:     authenticator,
		Logins:            logins,
		OAuthLogins:       logins,
		Accounts:          credentials,
		Health:            healthHandler,
		Logger:            logger,
		FrontendURL:       cfg.FrontendURL,
		CORS:              cfg.CORSConfig(),
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
		TrustedProxyCIDRs: cfg.TrustedProxyCIDRs,
		LoginRateRPS:      cfg.LoginRateRPS,
		LoginRateBurst:    cfg.LoginRateBurst,
	}
	if oauthCfg := cfg.OAuthConfig(); oauthCfg.Enabled() {
		client := httpclient.New(httpclient.DefaultConfig(), httpclient.DefaultCircuitBreakerConfig("google-oauth"), logger)
		routerCfg.Provider = oauth.NewGoogleProvider(oauthCfg, client)
		logger.Info("google sign-in enabled", slog.String("redirect_url", oauthCfg.RedirectURL))
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	router := handler.NewRouter(bgCtx, routerCfg)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          rdb,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
		stopBackground: stopBackground,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Redis client
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.stopBackground()

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close Redis client.
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
