package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"serpgap/internal/api/handler"
	"serpgap/internal/api/middleware"
	"serpgap/internal/logger"
	"serpgap/internal/service"
)

// Services bundles the service layer for route wiring.
type Services struct {
	Auth       *service.AuthService
	Analysis   *service.AnalysisService
	Credential *service.CredentialService
}

// SetupRouter configures the Gin router with all routes.
// Parameters:
//   - services: service layer.
//   - limiter: webhook rate limiter; nil disables rate limiting.
//   - log: base logger.
//   - mode: gin mode (debug/release/test).
//   - cors: CORS configuration for the dashboard endpoints.
// Returns:
//   - *gin.Engine: configured router.
func SetupRouter(
	services Services,
	limiter middleware.RateLimiter,
	log *logger.Logger,
	mode string,
	cors middleware.CORSConfig,
) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	registerValidations()

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(cors))

	healthHandler := handler.NewHealthHandler()
	analyzeHandler := handler.NewAnalyzeHandler(services.Analysis)
	authHandler := handler.NewAuthHandler(services.Auth)
	credentialHandler := handler.NewCredentialHandler(services.Credential)
	analysisHandler := handler.NewAnalysisHandler(services.Analysis)

	// Health check
	r.GET("/health", healthHandler.Health)

	// Webhook entry point: opaque token auth plus per-IP rate limiting
	webhook := r.Group("/")
	webhook.Use(middleware.WebhookAuth(services.Auth))
	if limiter != nil {
		webhook.Use(middleware.RateLimit(limiter))
	}
	webhook.POST("/analyze", analyzeHandler.Analyze)

	// Dashboard API
	v1 := r.Group("/api/v1")
	{
		v1.POST("/auth/register", authHandler.Register)
		v1.POST("/auth/login", authHandler.Login)

		authed := v1.Group("/")
		authed.Use(middleware.JWTAuth(services.Auth))
		{
			authed.GET("/credentials", credentialHandler.List)
			authed.POST("/credentials", credentialHandler.Create)
			authed.DELETE("/credentials/:id", credentialHandler.Delete)
			authed.POST("/credentials/:id/reactivate", credentialHandler.Reactivate)

			authed.GET("/analyses", analysisHandler.List)
			authed.GET("/analyses/:id", analysisHandler.Get)

			authed.GET("/webhook-token", authHandler.WebhookTokenStatus)
			authed.POST("/webhook-token/rotate", authHandler.RotateWebhookToken)
		}
	}

	return r
}

// registerValidations installs custom binding rules. "notblank" rejects
// whitespace-only strings that pass a plain min length check.
func registerValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	}
}
