package app

import (
	"strings"
	"time"

	"github.com/yungbote/undercurrent-backend/internal/platform/envutil"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"github.com/yungbote/undercurrent-backend/internal/services"
)

type Config struct {
	Port        string
	Environment string
	Version     string

	JWTSecretKey   string
	AccessTokenTTL time.Duration

	CoachTimeout        time.Duration
	VoiceTimeout        time.Duration
	CanvasDebounce      time.Duration
	DeferFirstUtterance bool
	STTProvider         services.STTProvider

	SubmissionLockTTL time.Duration
	VoiceCacheTTL     time.Duration

	AllowedOrigins []string
}

const defaultJWTSecret = "defaultsecret"

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:                envutil.String("PORT", "8080"),
		Environment:         envutil.String("APP_ENV", "development"),
		Version:             envutil.String("APP_VERSION", ""),
		JWTSecretKey:        envutil.String("JWT_SECRET_KEY", defaultJWTSecret),
		AccessTokenTTL:      envutil.Seconds("ACCESS_TOKEN_TTL", 24*time.Hour),
		CoachTimeout:        envutil.Seconds("COACH_TIMEOUT_SECONDS", 30*time.Second),
		VoiceTimeout:        envutil.Seconds("VOICE_TIMEOUT_SECONDS", 30*time.Second),
		CanvasDebounce:      envutil.Millis("CANVAS_DEBOUNCE_MS", 500*time.Millisecond),
		DeferFirstUtterance: envutil.Bool("VOICE_DEFER_FIRST_UTTERANCE", false),
		STTProvider:         services.ParseSTTProvider(envutil.String("STT_PROVIDER", "auto")),
		SubmissionLockTTL:   envutil.Seconds("SUBMISSION_LOCK_TTL_SECONDS", 2*time.Minute),
		VoiceCacheTTL:       envutil.Seconds("VOICE_PREF_CACHE_TTL_SECONDS", time.Hour),
		AllowedOrigins:      envutil.CSV("CORS_ALLOWED_ORIGINS"),
	}
	if cfg.JWTSecretKey == defaultJWTSecret && !strings.EqualFold(cfg.Environment, "development") {
		log.Warn("JWT_SECRET_KEY is unset; tokens are signed with the development default")
	}
	return cfg
}
