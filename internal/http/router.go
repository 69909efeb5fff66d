package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/undercurrent-backend/internal/http/handlers"
	httpMW "github.com/yungbote/undercurrent-backend/internal/http/middleware"
	"github.com/yungbote/undercurrent-backend/internal/observability"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	Metrics        *observability.Metrics

	AuthHandler    *httpH.AuthHandler
	AuthMiddleware *httpMW.AuthMiddleware
	UserHandler    *httpH.UserHandler

	InterviewHandler *httpH.InterviewHandler
	VoiceHandler     *httpH.VoiceHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if observability.TracingEnabled() {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			api.POST("/register", cfg.AuthHandler.Register)
			api.POST("/login", cfg.AuthHandler.Login)
			// Public so a client holding an expired token can still sign out.
			api.POST("/logout", cfg.AuthHandler.Logout)
		}
	}

	protected := api.Group("/")
	{
		// Middleware
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// User (Me)
		if cfg.UserHandler != nil {
			protected.GET("/me", cfg.UserHandler.GetMe)
		}

		// Interview
		if h := cfg.InterviewHandler; h != nil {
			protected.GET("/interview/session", h.GetSession)
			protected.POST("/interview/start", h.Start)
			protected.POST("/interview/answer", h.Answer)
			protected.POST("/interview/advance", h.Advance)
			protected.PATCH("/interview/progress", h.UpdateProgress)
			protected.POST("/interview/reset", h.Reset)

			protected.GET("/interview/odyssey", h.GetOdyssey)
			protected.POST("/interview/odyssey/path", h.SubmitPath)
			protected.PUT("/interview/odyssey/rating", h.Rate)
			protected.POST("/interview/odyssey/ratings/submit", h.SubmitRatings)

			protected.PATCH("/interview/canvas", h.EditCanvas)
			protected.POST("/interview/canvas/generate", h.GenerateCanvas)
			protected.POST("/interview/synthesis", h.GenerateSynthesis)
			protected.POST("/interview/report/email", h.EmailReport)
		}

		// Voice
		if h := cfg.VoiceHandler; h != nil {
			protected.GET("/voices", h.ListVoices)
			protected.GET("/voice/preference", h.GetPreference)
			protected.PUT("/voice/preference", h.SetPreference)
			protected.GET("/voice/state", h.State)
			protected.POST("/voice/speak", h.Speak)
			protected.POST("/voice/stop", h.Stop)
			protected.POST("/voice/unlock", h.Unlock)
			protected.POST("/voice/record/start", h.StartRecording)
			protected.POST("/voice/record/stop", h.StopRecording)
			protected.POST("/voice/playback/ended", h.PlaybackEnded)
			protected.GET("/voice/clip", h.Clip)
			protected.POST("/voice/transcribe", h.Transcribe)
		}
	}

	return r
}
