package app

import (
	"github.com/yungbote/undercurrent-backend/internal/catalog"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"github.com/yungbote/undercurrent-backend/internal/platform/redis"
	"github.com/yungbote/undercurrent-backend/internal/services"
	"github.com/yungbote/undercurrent-backend/internal/voice"
)

type Services struct {
	Auth          services.AuthService
	Interview     services.InterviewService
	Registry      *services.ConversationRegistry
	Canvas        *services.CanvasCoalescer
	Reports       services.ReportGenerator
	Email         services.EmailService
	Voices        services.VoicePreferenceService
	Transcription services.TranscriptionService
}

func wireServices(log *logger.Logger, cfg Config, cat *catalog.Catalog, reposet Repos, clients Clients) Services {
	log.Info("Wiring services...")

	var (
		guard      *redis.SubmissionGuard
		voiceCache *redis.StringCache
	)
	if clients.Redis != nil {
		guard = redis.NewSubmissionGuard(clients.Redis, clients.RedisPrefix, cfg.SubmissionLockTTL)
		voiceCache = redis.NewStringCache(clients.Redis, clients.RedisPrefix, "voice", cfg.VoiceCacheTTL)
	}

	auth := services.NewAuthService(log, reposet.User, cfg.JWTSecretKey, cfg.AccessTokenTTL)
	canvas := services.NewCanvasCoalescer(log, cat, reposet.Session, cfg.CanvasDebounce)
	voices := services.NewVoicePreferenceService(log, cat, reposet.VoicePreference, voiceCache)

	var whisper voice.Transcriber
	if clients.OpenAI != nil {
		whisper = clients.OpenAI
	}
	stt := services.NewTranscriptionService(log, services.TranscriptionConfig{
		Provider: cfg.STTProvider,
		Speech:   clients.GcpSpeech,
		Whisper:  whisper,
		Archive:  clients.VoiceBucket,
	})

	var synth voice.Synthesizer
	if clients.ElevenLabs != nil {
		synth = clients.ElevenLabs
	}
	registry := services.NewConversationRegistry(log, services.RegistryConfig{
		Catalog:             cat,
		Store:               &services.InterviewStore{Sessions: reposet.Session, Answers: reposet.Answer},
		Coach:               services.NewCoachingService(log, cat, clients.OpenAI),
		Synthesizer:         synth,
		Transcriber:         stt,
		VoiceID:             voices.VoiceID,
		Sessions:            reposet.Session,
		Canvas:              canvas,
		Recordings:          stt,
		CoachTimeout:        cfg.CoachTimeout,
		VoiceTimeout:        cfg.VoiceTimeout,
		DeferFirstUtterance: cfg.DeferFirstUtterance,
	})

	return Services{
		Auth:          auth,
		Interview:     services.NewInterviewService(log, cat, reposet.Session, reposet.Answer, registry, guard, canvas),
		Registry:      registry,
		Canvas:        canvas,
		Reports:       services.NewReportGenerator(log, cat, clients.OpenAI, reposet.User, reposet.Session, reposet.Answer, canvas),
		Email:         services.NewEmailService(log, cat, clients.SendGrid, reposet.User, reposet.Session, canvas),
		Voices:        voices,
		Transcription: stt,
	}
}
