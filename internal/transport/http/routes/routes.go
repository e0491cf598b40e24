package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/exam-bank-service/internal/core/domain"
	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/infra/config"
	"github.com/arklim/exam-bank-service/internal/transport/http/handlers"
	"github.com/arklim/exam-bank-service/internal/transport/http/middleware"
	"github.com/arklim/exam-bank-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	OTP          *usecase.OTPService
	Questions    *usecase.QuestionService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
	Users       port.UserRepository
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.CORS.AllowedOrigins))
	r.Use(deps.Metrics.Handler())

	authMiddleware := middleware.RequireAuth(deps.Services.Auth)
	adminOnly := middleware.RequireRole(domain.RoleAdmin)

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		otpHandler := handlers.NewOTPHandler(deps.Services.OTP, deps.Users, deps.Logger)

		otpGroup := api.Group("/otp")
		otpMiddlewares := buildOTPMiddlewares(deps)
		if len(otpMiddlewares) > 0 {
			otpGroup.Use(otpMiddlewares...)
		}
		otpGroup.POST("/send", otpHandler.Send)
		otpGroup.POST("/verify", otpHandler.Verify)

		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Registration, deps.Logger)

		authGroup := api.Group("/auth")
		authGroup.POST("/register", authHandler.Register)

		loginHandlers := append(buildLoginMiddlewares(deps), authHandler.Login)
		authGroup.POST("/login", loginHandlers...)

		authGroup.GET("/me", authMiddleware, authHandler.Me)

		questionHandler := handlers.NewQuestionHandler(deps.Services.Questions, deps.Logger)

		questionGroup := api.Group("/questions")
		questionGroup.Use(authMiddleware)
		questionGroup.GET("", questionHandler.List)
		questionGroup.GET("/:id", questionHandler.Get)
		questionGroup.POST("", adminOnly, questionHandler.Create)
		questionGroup.PUT("/:id", adminOnly, questionHandler.Update)
		questionGroup.DELETE("/:id", adminOnly, questionHandler.Delete)
	}

	return r
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       "auth_login_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}

// buildOTPMiddlewares protects code issuance endpoints with an IP-scoped
// limit on top of the per-email accounting inside the OTP service.
func buildOTPMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       "otp_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
