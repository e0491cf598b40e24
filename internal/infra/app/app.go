package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/infra/config"
	"github.com/arklim/exam-bank-service/internal/infra/database"
	kafkainfra "github.com/arklim/exam-bank-service/internal/infra/kafka"
	"github.com/arklim/exam-bank-service/internal/infra/logger"
	"github.com/arklim/exam-bank-service/internal/infra/mail"
	redisinfra "github.com/arklim/exam-bank-service/internal/infra/redis"
	"github.com/arklim/exam-bank-service/internal/infra/security"
	"github.com/arklim/exam-bank-service/internal/infra/telemetry"
	"github.com/arklim/exam-bank-service/internal/repository/memory"
	postgresrepo "github.com/arklim/exam-bank-service/internal/repository/postgres"
	redisrepo "github.com/arklim/exam-bank-service/internal/repository/redis"
	"github.com/arklim/exam-bank-service/internal/transport/http/middleware"
	"github.com/arklim/exam-bank-service/internal/transport/http/routes"
	"github.com/arklim/exam-bank-service/internal/usecase"
)

type Application struct {
	cfg     *config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	pool    *pgxpool.Pool
	redis   *redisinfra.Client
	otp     *usecase.OTPService
	tracing *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracing *telemetry.TracerProvider
	if cfg.Telemetry.Enabled {
		tracing, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	var redisClient *redisinfra.Client
	var rateLimitStore middleware.RateLimitStore

	if cfg.Redis.Enabled {
		redisClient, err = redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}

		rateLimitWindow := cfg.RateLimit.WindowDuration
		if rateLimitWindow <= 0 {
			rateLimitWindow = time.Minute
		}
		rateLimitStore = redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: "exambank:rate-limit",
			TTL:       rateLimitWindow * 2,
		})
	} else {
		log.Info("redis disabled, using in-memory rate limit store")
		rateLimitStore = memory.NewRateLimitStore()
	}

	// The OTP manager owns its issuance accounting. It always runs on its own
	// in-memory store: the Redis store's key TTL tracks the short HTTP window
	// and would drop issuance slots before the 15-minute send window closes.
	otpRateLimits := memory.NewRateLimitStore()

	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var sender port.NotificationSender
	if cfg.SMTP.Host != "" {
		sender = mail.NewSMTPSender(cfg.SMTP, log)
	} else {
		log.Info("smtp not configured, verification codes will be logged")
		sender = mail.NewLoggingSender(log)
	}

	verificationTTL := cfg.OTP.VerificationTTL
	if verificationTTL <= 0 {
		verificationTTL = 10 * time.Minute
	}
	verifications := memory.NewVerificationStore(verificationTTL)

	otpService := usecase.NewOTPService(
		cfg.OTP,
		memory.NewOTPStore(),
		otpRateLimits,
		verifications,
		sender,
		eventPublisher,
		log,
	)

	authService := usecase.NewAuthService(cfg, repos.Users, log)
	registrationService := usecase.NewRegistrationService(
		repos.Users,
		verifications,
		eventPublisher,
		security.DefaultPasswordValidator(),
		log,
	)
	questionService := usecase.NewQuestionService(repos.Questions, eventPublisher, log)

	if err := registrationService.EnsureDefaultAdmin(ctx, cfg.Admin); err != nil {
		return nil, fmt.Errorf("seed default admin: %w", err)
	}

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Services: routes.ServiceSet{
			Auth:         authService,
			Registration: registrationService,
			OTP:          otpService,
			Questions:    questionService,
		},
		Users:    repos.Users,
		Database: pool,
	}
	if redisClient != nil {
		deps.Cache = redisClient
	}

	engine := routes.Register(deps)

	return &Application{
		cfg:     cfg,
		engine:  engine,
		logger:  log,
		pool:    pool,
		redis:   redisClient,
		otp:     otpService,
		tracing: tracing,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.tracing != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = a.tracing.Shutdown(shutdownCtx)
		}
	}()

	a.otp.Start(ctx)
	defer a.otp.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting exam bank API",
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
