package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nisum/oppenheimer/internal/core/port"
	"github.com/nisum/oppenheimer/internal/infra/config"
	"github.com/nisum/oppenheimer/internal/infra/database"
	kafkainfra "github.com/nisum/oppenheimer/internal/infra/kafka"
	"github.com/nisum/oppenheimer/internal/infra/logger"
	redisinfra "github.com/nisum/oppenheimer/internal/infra/redis"
	"github.com/nisum/oppenheimer/internal/infra/security"
	"github.com/nisum/oppenheimer/internal/infra/telemetry"
	postgresrepo "github.com/nisum/oppenheimer/internal/repository/postgres"
	redisrepo "github.com/nisum/oppenheimer/internal/repository/redis"
	transportgrpc "github.com/nisum/oppenheimer/internal/transport/grpc"
	grpcinterceptors "github.com/nisum/oppenheimer/internal/transport/grpc/interceptors"
	"github.com/nisum/oppenheimer/internal/transport/http/middleware"
	"github.com/nisum/oppenheimer/internal/transport/http/routes"
	"github.com/nisum/oppenheimer/internal/usecase"
)

const defaultShutdownTimeout = 10 * time.Second

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	tracer     *telemetry.TracerProvider
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	grpcServer *transportgrpc.Server
}

// credentials bundles the password and token primitives shared by the use cases.
type credentials struct {
	hasher *security.Argon2Hasher
	policy *security.PasswordPolicy
	tokens *security.TokenService
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	location, err := cfg.App.Location()
	if err != nil {
		return nil, err
	}

	keys, err := security.NewKeyProvider(security.SigningKeySource{
		Secret: cfg.Token.SigningKey,
		File:   cfg.Token.SigningKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("init key provider: %w", err)
	}

	creds, err := newCredentials(cfg, keys)
	if err != nil {
		return nil, err
	}

	hashParams := creds.hasher.Parameters()
	log.Info("credential primitives configured",
		zap.Uint32("argon2_memory_kib", hashParams.Memory),
		zap.Uint32("argon2_iterations", hashParams.Iterations),
		zap.Uint8("argon2_parallelism", hashParams.Parallelism),
		zap.Duration("token_validity", creds.tokens.Validity()),
	)

	a := &Application{cfg: cfg, logger: log}

	a.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	a.pool, err = database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		a.release(ctx)
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	identities := postgresrepo.NewIdentityRepository(a.pool)
	if cfg.Postgres.AutoMigrate {
		if err := identities.EnsureSchema(ctx); err != nil {
			a.release(ctx)
			return nil, err
		}
		log.Info("identity schema ensured")
	}

	a.redis, err = redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		a.release(ctx)
		return nil, fmt.Errorf("init redis: %w", err)
	}

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(a.redis.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})

	var events port.EventPublisher
	events, a.producer = newEventPublisher(cfg, log)

	authMetrics, err := telemetry.NewAuthMetrics(prometheus.DefaultRegisterer, telemetry.DefaultNamespace)
	if err != nil {
		a.release(ctx)
		return nil, fmt.Errorf("init auth metrics: %w", err)
	}

	registrationService := usecase.NewRegistrationService(identities, creds.policy, creds.hasher, creds.tokens, events).
		WithLogger(log).
		WithMetrics(authMetrics).
		WithLocation(location)
	tokenService := usecase.NewTokenService(creds.tokens, log).
		WithMetrics(authMetrics)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		a.release(ctx)
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:         cfg,
		Logger:         log,
		RateLimiter:    middleware.NewRateLimiter(rateLimitStore, log),
		Metrics:        httpMetrics,
		Gatherer:       prometheus.DefaultGatherer,
		TracerProvider: a.tracer.Provider(),
		Database:       a.pool,
		Cache:          a.redis,
		Services: routes.ServiceSet{
			Registration: registrationService,
			Tokens:       tokenService,
		},
	})

	if cfg.GRPC.Enabled {
		grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{
			Registerer: prometheus.DefaultRegisterer,
		})
		if err != nil {
			a.release(ctx)
			return nil, fmt.Errorf("init grpc metrics: %w", err)
		}

		a.grpcServer = transportgrpc.NewServer(transportgrpc.ServerDependencies{
			Logger:         log,
			Metrics:        grpcMetrics,
			TracerProvider: a.tracer.Provider(),
			Probe:          a.pool.Ping,
		})
	}

	return a, nil
}

func newCredentials(cfg *config.AppConfig, keys security.KeyProvider) (credentials, error) {
	signingKey, err := keys.SigningKey()
	if err != nil {
		return credentials{}, fmt.Errorf("load signing key: %w", err)
	}

	tokens, err := security.NewTokenService(security.TokenConfig{
		SigningKey: signingKey,
		Validity:   cfg.Token.Validity,
		Issuer:     cfg.Token.Issuer,
		Audience:   cfg.Token.Audience,
	})
	if err != nil {
		return credentials{}, fmt.Errorf("init token service: %w", err)
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return credentials{}, fmt.Errorf("configure argon2: %w", err)
	}

	policy := security.NewPasswordPolicy(security.PasswordPolicyConfig{
		MinLength:        cfg.Password.MinLength,
		RequireUpper:     cfg.Password.RequireUpper,
		RequireLower:     cfg.Password.RequireLower,
		RequireDigit:     cfg.Password.RequireDigit,
		RequireSymbol:    cfg.Password.RequireSymbol,
		Symbols:          cfg.Password.Symbols,
		MinStrengthScore: cfg.Password.MinStrengthScore,
	})

	return credentials{hasher: hasher, policy: policy, tokens: tokens}, nil
}

// newEventPublisher falls back to the logging stub when Kafka is disabled or unreachable.
// The returned producer is nil whenever the stub is in use.
func newEventPublisher(cfg *config.AppConfig, log *zap.Logger) (port.EventPublisher, *kafkainfra.Producer) {
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka disabled, using stub publisher")
		return kafkainfra.NewStubPublisher(log), nil
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log), nil
	}

	log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, cfg.App, log), producer
}

func (a *Application) Run(ctx context.Context) error {
	defer a.release(context.Background())

	grpcErrCh := make(chan error, 1)
	grpcDone := make(chan struct{})
	grpcCtx, stopGRPC := context.WithCancel(context.Background())
	defer stopGRPC()

	if a.grpcServer != nil {
		addr := net.JoinHostPort(a.cfg.GRPC.Host, strconv.Itoa(a.cfg.GRPC.Port))
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		go func() {
			defer close(grpcDone)
			if err := a.grpcServer.Serve(grpcCtx, lis); err != nil {
				a.logger.Error("gRPC server error", zap.Error(err))
				grpcErrCh <- err
			}
		}()
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.App.Host, strconv.Itoa(a.cfg.App.Port)),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting registration API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-serverErrCh:
	case runErr = <-grpcErrCh:
	}

	timeout := a.cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stopGRPC()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown server: %w", err)
	}

	if a.grpcServer != nil {
		select {
		case <-grpcDone:
		case <-shutdownCtx.Done():
			a.grpcServer.Stop()
			<-grpcDone
		}
	}

	return runErr
}

// release closes whatever New managed to open, newest first.
func (a *Application) release(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
