package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/Satya1612t/ela/internal/core/port"
	"github.com/Satya1612t/ela/internal/infra/config"
	"github.com/Satya1612t/ela/internal/infra/database"
	"github.com/Satya1612t/ela/internal/infra/identity"
	kafkainfra "github.com/Satya1612t/ela/internal/infra/kafka"
	"github.com/Satya1612t/ela/internal/infra/logger"
	"github.com/Satya1612t/ela/internal/infra/mail"
	"github.com/Satya1612t/ela/internal/infra/payment/phonepe"
	redisinfra "github.com/Satya1612t/ela/internal/infra/redis"
	"github.com/Satya1612t/ela/internal/infra/security"
	"github.com/Satya1612t/ela/internal/infra/telemetry"
	postgresrepo "github.com/Satya1612t/ela/internal/repository/postgres"
	redisrepo "github.com/Satya1612t/ela/internal/repository/redis"
	transportgrpc "github.com/Satya1612t/ela/internal/transport/grpc"
	grpcinterceptors "github.com/Satya1612t/ela/internal/transport/grpc/interceptors"
	"github.com/Satya1612t/ela/internal/transport/http/middleware"
	"github.com/Satya1612t/ela/internal/transport/http/routes"
	"github.com/Satya1612t/ela/internal/usecase"
)

const grpcHealthInterval = 15 * time.Second

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	tracer     *telemetry.TracerProvider
	sweeper    *usecase.TokenSweeper
	grpcServer *transportgrpc.Server
	grpcAddr   string
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env, cfg.App.Name)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
	} else {
		log.Info("otlp endpoint not configured, tracing disabled")
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	a := &Application{
		cfg:      cfg,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		tracer:   tracer,
		grpcAddr: fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port),
	}
	if err := a.wire(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) wire(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	envelope, err := security.LoadEnvelope(cfg.Encryption.KeysPath)
	if err != nil {
		return fmt.Errorf("init envelope: %w", err)
	}

	codec, err := security.NewSessionTokenCodec(envelope, security.SessionTokenOptions{
		AccessSecret:    cfg.JWT.Secret,
		RefreshSecret:   cfg.JWT.RefreshSecret,
		AccessTokenTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTokenTTL: cfg.JWT.RefreshTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("init session token codec: %w", err)
	}

	firebase, err := identity.NewFirebaseProvider(ctx, cfg.Firebase, log)
	if err != nil {
		return fmt.Errorf("init firebase: %w", err)
	}

	gateway, err := phonepe.NewFromConfig(cfg.PhonePe, log)
	if err != nil {
		return fmt.Errorf("init phonepe: %w", err)
	}

	mailer, err := mail.New(cfg.Mail, log)
	if err != nil {
		return fmt.Errorf("init mailer: %w", err)
	}

	// Initialize Kafka event publisher
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			a.producer = producer
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		a.redis.PoolCollector(),
	)

	domainMetrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}
	grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: registry})
	if err != nil {
		return fmt.Errorf("init grpc metrics: %w", err)
	}

	repos := postgresrepo.NewRepositories(a.pool)

	verifiers := usecase.VerifierChain{
		usecase.NewFederatedVerifier(firebase),
		usecase.NewLocalTokenVerifier(codec),
	}

	authService := usecase.NewAuthService(repos.Accounts, repos.Tokens, repos.Store, codec, verifiers, eventPublisher, log).
		WithMetrics(domainMetrics)
	registrationService := usecase.NewRegistrationService(firebase, repos.Accounts, authService, eventPublisher, mailer, log)
	if strings.TrimSpace(cfg.Admin.Phone) != "" {
		admin, err := registrationService.EnsureAdmin(ctx, usecase.AdminProfile{
			Phone: cfg.Admin.Phone,
			Email: cfg.Admin.Email,
			Name:  cfg.Admin.Name,
		})
		if err != nil {
			return fmt.Errorf("provision admin account: %w", err)
		}
		log.Info("admin account ready", zap.String("account_id", admin.ID))
	}
	paymentService := usecase.NewPaymentService(repos.Payments, repos.Applications, repos.Store, gateway, eventPublisher, cfg.PhonePe.RedirectURL, log).
		WithMetrics(domainMetrics)

	a.sweeper = usecase.NewTokenSweeper(repos.Tokens, cfg.Tokens.SweepInterval, log)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(a.redis.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	grpcSrv, err := transportgrpc.NewServer(transportgrpc.ServerDependencies{
		Codec:   codec,
		Logger:  log,
		Metrics: grpcMetrics,
		Tracing: grpcinterceptors.NewTracingInterceptor(grpcinterceptors.TracingOptions{
			TracerProvider: otel.GetTracerProvider(),
			Propagators:    otel.GetTextMapPropagator(),
			SkipPrefixes:   []string{grpcinterceptors.HealthServicePrefix},
		}),
		HealthChecks: map[string]transportgrpc.HealthCheck{
			"database": a.pool.Ping,
			"cache":    a.redis.HealthCheck,
		},
	})
	if err != nil {
		return fmt.Errorf("init grpc server: %w", err)
	}
	a.grpcServer = grpcSrv

	a.engine = routes.Register(routes.Dependencies{
		Config:         cfg,
		Logger:         log,
		RateLimiter:    rateLimiter,
		HTTPMetrics:    httpMetrics,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Codec:          codec,
		Database:       a.pool,
		Cache:          a.redis,
		Services: routes.ServiceSet{
			Auth:         authService,
			Registration: registrationService,
			Payments:     paymentService,
		},
	})

	return nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close(context.Background())

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	go a.sweeper.Run(workerCtx)

	grpcErrCh := make(chan error, 1)
	var grpcListener net.Listener
	if a.grpcServer != nil && a.grpcAddr != "" {
		lis, err := net.Listen("tcp", a.grpcAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		grpcListener = lis
		a.logger.Info("starting gRPC server",
			zap.String("address", a.grpcAddr),
		)
		go a.grpcServer.WatchHealth(workerCtx, grpcHealthInterval)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("gRPC server panicked", zap.Any("panic", r))
					grpcErrCh <- fmt.Errorf("grpc server panicked: %v", r)
				}
			}()
			if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				a.logger.Error("gRPC server error", zap.Error(err))
				grpcErrCh <- fmt.Errorf("run grpc server: %w", err)
			} else {
				a.logger.Info("gRPC server stopped gracefully")
			}
		}()
	}
	defer func() {
		if a.grpcServer != nil {
			a.grpcServer.Shutdown()
		}
		if grpcListener != nil {
			_ = grpcListener.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting Nexa API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		stopWorkers()
		if a.grpcServer != nil {
			a.grpcServer.Shutdown()
			a.grpcServer = nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	case err := <-grpcErrCh:
		return err
	}
}

// close releases infrastructure in reverse order of construction.
func (a *Application) close(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
