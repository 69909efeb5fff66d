package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/undercurrent-backend/internal/platform/ctxutil"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
	"github.com/yungbote/undercurrent-backend/internal/platform/gcp"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"github.com/yungbote/undercurrent-backend/internal/platform/openai"
	"github.com/yungbote/undercurrent-backend/internal/voice"
)

const defaultRecordingMime = "audio/m4a"

var ErrTranscriptionUnavailable = errors.New("transcription not configured")

type STTProvider string

const (
	STTAuto   STTProvider = "auto"
	STTGCP    STTProvider = "gcp"
	STTOpenAI STTProvider = "openai"
)

func ParseSTTProvider(s string) STTProvider {
	switch STTProvider(strings.ToLower(strings.TrimSpace(s))) {
	case STTGCP:
		return STTGCP
	case STTOpenAI:
		return STTOpenAI
	default:
		return STTAuto
	}
}

// TranscriptionService routes recordings to Cloud Speech or Whisper and
// archives the raw audio when a bucket is configured. It is the
// voice.Transcriber for every user's controller.
type TranscriptionService interface {
	voice.Transcriber
	// Enabled reports whether any recognizer is available.
	Enabled() bool
	// PurgeRecordings deletes every archived recording owned by userID.
	PurgeRecordings(ctx context.Context, userID uuid.UUID) error
	// Wait blocks until in-flight archive uploads finish.
	Wait()
}

type transcriptionService struct {
	log      *logger.Logger
	provider STTProvider
	speech   gcp.Speech
	whisper  voice.Transcriber
	archive  gcp.BucketService
	now      func() time.Time

	uploads sync.WaitGroup
}

type TranscriptionConfig struct {
	Provider STTProvider
	Speech   gcp.Speech
	Whisper  voice.Transcriber
	Archive  gcp.BucketService
}

func NewTranscriptionService(log *logger.Logger, cfg TranscriptionConfig) TranscriptionService {
	provider := cfg.Provider
	if provider == "" {
		provider = STTAuto
	}
	return &transcriptionService{
		log:      log.With("service", "TranscriptionService"),
		provider: provider,
		speech:   cfg.Speech,
		whisper:  cfg.Whisper,
		archive:  cfg.Archive,
		now:      time.Now,
	}
}

func (s *transcriptionService) Enabled() bool {
	return s != nil && (s.speech != nil || s.whisper != nil)
}

func (s *transcriptionService) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", voice.ErrNoRecording
	}
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = defaultRecordingMime
	}
	s.archiveRecording(ctx, audio, mimeType)

	useSpeech := s.speech != nil && s.speech.Supports(mimeType)
	switch s.provider {
	case STTOpenAI:
		useSpeech = false
	case STTGCP:
		if s.speech == nil {
			return "", ErrTranscriptionUnavailable
		}
		return s.speech.Transcribe(ctx, audio, mimeType)
	}

	if useSpeech {
		text, err := s.speech.Transcribe(ctx, audio, mimeType)
		if err == nil || s.whisper == nil {
			return text, err
		}
		s.log.Warn("Cloud Speech failed; retrying with Whisper", "mime_type", mimeType, "error", err)
	}
	if s.whisper == nil {
		return "", ErrTranscriptionUnavailable
	}
	text, err := s.whisper.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return text, nil
}

func (s *transcriptionService) archiveRecording(ctx context.Context, audio []byte, mimeType string) {
	if s.archive == nil {
		return
	}
	owner := "anonymous"
	if id := ctxutil.UserID(ctx); id != uuid.Nil {
		owner = id.String()
	}
	key := gcp.VoiceKey(owner, s.now(), openai.FileExtension(mimeType))
	contentType := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	data := append([]byte(nil), audio...)
	uctx := context.WithoutCancel(ctx)

	s.uploads.Add(1)
	go func() {
		defer s.uploads.Done()
		if err := s.archive.UploadFile(dbctx.New(uctx), key, contentType, bytes.NewReader(data)); err != nil {
			s.log.With(ctxutil.LogFields(uctx)...).Warn("Voice archive upload failed", "key", key, "error", err)
		}
	}()
}

func (s *transcriptionService) Wait() {
	s.uploads.Wait()
}

// PurgeRecordings lets pending uploads land first so none of them outlive
// the purge.
func (s *transcriptionService) PurgeRecordings(ctx context.Context, userID uuid.UUID) error {
	if s.archive == nil || userID == uuid.Nil {
		return nil
	}
	s.uploads.Wait()
	n, err := s.archive.DeletePrefix(dbctx.New(ctx), gcp.VoicePrefix(userID.String()))
	if err != nil {
		return fmt.Errorf("purge recordings: %w", err)
	}
	s.log.Debug("Recordings purged", "user_id", userID, "count", n)
	return nil
}
