package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	"github.com/yungbote/undercurrent-backend/internal/http"
	httpH "github.com/yungbote/undercurrent-backend/internal/http/handlers"
	httpMW "github.com/yungbote/undercurrent-backend/internal/http/middleware"
	"github.com/yungbote/undercurrent-backend/internal/observability"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health    *httpH.HealthHandler
	Auth      *httpH.AuthHandler
	User      *httpH.UserHandler
	Interview *httpH.InterviewHandler
	Voice     *httpH.VoiceHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, cat *catalog.Catalog, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    httpH.NewHealthHandler(db),
		Auth:      httpH.NewAuthHandler(services.Auth),
		User:      httpH.NewUserHandler(services.Auth),
		Interview: httpH.NewInterviewHandler(log, services.Interview, services.Reports, services.Email, services.Canvas),
		Voice:     httpH.NewVoiceHandler(log, cat, services.Registry, services.Voices, services.Transcription, services.Interview),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireRouter(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:              log,
		ServiceName:      serviceName,
		AllowedOrigins:   cfg.AllowedOrigins,
		Metrics:          metrics,
		HealthHandler:    handlers.Health,
		AuthHandler:      handlers.Auth,
		AuthMiddleware:   middleware.Auth,
		UserHandler:      handlers.User,
		InterviewHandler: handlers.Interview,
		VoiceHandler:     handlers.Voice,
	})
}
