package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/core/port"
	"github.com/Satya1612t/ela/internal/infra/config"
	"github.com/Satya1612t/ela/internal/transport/http/handlers"
	"github.com/Satya1612t/ela/internal/transport/http/middleware"
	"github.com/Satya1612t/ela/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	Payments     *usecase.PaymentService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config         *config.AppConfig
	Logger         *zap.Logger
	RateLimiter    *middleware.RateLimiter
	HTTPMetrics    *middleware.HTTPMetrics
	MetricsHandler http.Handler
	Services       ServiceSet
	Codec          port.SessionTokenCodec
	Database       DatabaseChecker
	Cache          CacheChecker
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
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if err := handlers.RegisterValidators(); err != nil {
		deps.Logger.Error("register request validators", zap.Error(err))
	}

	r := gin.New()
	r.SetHTMLTemplate(handlers.Templates())
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.Logger(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.CORS(deps.Config.CORS.AllowedOrigins))

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
	// Legacy liveness probe path.
	r.GET("/api/appCheck", healthHandler.Status)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))

	api := r.Group("/api/v1")
	if deps.Codec != nil {
		authenticated := middleware.Authenticate(deps.Codec)
		cookies := handlers.CookieOptions{
			Domain:     deps.Config.Cookie.Domain,
			Secure:     deps.Config.Cookie.Secure,
			AccessTTL:  deps.Config.JWT.AccessTokenTTL,
			RefreshTTL: deps.Config.JWT.RefreshTokenTTL,
		}

		if deps.Services.Auth != nil {
			authHandler := handlers.NewAuthHandler(deps.Services.Auth, handlers.WithCookieOptions(cookies))
			authGroup := api.Group("/auth")

			login := rateLimited(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts, middleware.ClientIPIdentifier())
			authGroup.POST("/admin/login", append(login, authHandler.AdminLogin)...)
			authGroup.POST("/user/login", append(login, authHandler.UserLogin)...)

			refresh := rateLimited(deps, "auth_refresh_token", deps.Config.RateLimit.RefreshMaxAttempts, middleware.CookieIdentifier(handlers.RefreshTokenCookie))
			refresh = append(refresh, rateLimited(deps, "auth_refresh_ip", deps.Config.RateLimit.RefreshMaxAttempts, middleware.ClientIPIdentifier())...)
			authGroup.POST("/refresh", append(refresh, authHandler.Refresh)...)

			authGroup.POST("/logout", authHandler.Logout)
			authGroup.GET("/session", authenticated, authHandler.Session)

			if deps.Services.Registration != nil {
				registrationHandler := handlers.NewRegistrationHandler(deps.Services.Registration, cookies)
				register := rateLimited(deps, "auth_register_ip", deps.Config.RateLimit.RegisterMaxAttempts, middleware.ClientIPIdentifier())
				authGroup.POST("/user/register", append(register, registrationHandler.RegisterUser)...)
				authGroup.POST("/coadmin/register", authenticated, middleware.RequireRole(domain.RoleAdmin), registrationHandler.RegisterCoAdmin)
			}
		}

		if deps.Services.Payments != nil {
			paymentHandler := handlers.NewPaymentHandler(deps.Services.Payments)
			admins := middleware.RequireRole(domain.AdminRoles...)

			callback := rateLimited(deps, "payment_callback_ip", deps.Config.RateLimit.CallbackMaxAttempts, middleware.ClientIPIdentifier())
			callback = append(callback, paymentHandler.Callback)
			api.POST("/payments/callback", callback...)
			api.POST("/phonepe/callback", callback...)

			payments := api.Group("/payments", authenticated)
			payments.POST("/initiate", middleware.RequireRole(domain.UserRoles...), paymentHandler.Initiate)
			payments.GET("/user", paymentHandler.ListMine)
			payments.GET("/all", admins, paymentHandler.ListAll)
			payments.GET("/:id", paymentHandler.Get)
			payments.GET("/:id/status", paymentHandler.Status)
			payments.POST("/:id/refund", admins, paymentHandler.Refund)

			// Legacy routes retained for backwards compatibility with existing clients.
			payments.GET("/allpayments", admins, paymentHandler.ListAll)
			api.GET("/payment/:id", authenticated, paymentHandler.Get)
		}
	}

	if deps.Config.App.Env != "production" {
		handlers.RegisterSwagger(r)
	}

	return r
}

// rateLimited returns the limiter middleware for one rule, or nothing when limiting is disabled.
// A fresh slice is returned so callers can append handlers without aliasing.
func rateLimited(deps Dependencies, name string, limit int, identifier middleware.IdentifierFunc) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return []gin.HandlerFunc{}
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: identifier,
	}
	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
