package gcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/undercurrent-backend/internal/observability"
	"github.com/yungbote/undercurrent-backend/internal/platform/envutil"
	"github.com/yungbote/undercurrent-backend/internal/platform/httpx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

// ErrUnsupportedEncoding means the recording's container cannot be decoded by
// Cloud Speech and should be routed to another recognizer.
var ErrUnsupportedEncoding = errors.New("gcp speech: unsupported audio encoding")

type Speech interface {
	Supports(mimeType string) bool
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Close() error
}

type SpeechConfig struct {
	LanguageCode string
	Model        string
	Timeout      time.Duration
	MaxRetries   int
}

func SpeechConfigFromEnv() SpeechConfig {
	return SpeechConfig{
		LanguageCode: envutil.String("GCP_SPEECH_LANGUAGE", "en-US"),
		Model:        envutil.String("GCP_SPEECH_MODEL", "latest_short"),
		Timeout:      envutil.Seconds("GCP_SPEECH_TIMEOUT_SECONDS", 60*time.Second),
		MaxRetries:   envutil.Int("GCP_SPEECH_MAX_RETRIES", 0),
	}
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

type speechService struct {
	log        *logger.Logger
	cfg        SpeechConfig
	recognize  recognizeFunc
	closeFn    func() error
	maxRetries int
}

// NewSpeech dials Cloud Speech with credentials from the environment.
func NewSpeech(ctx context.Context, log *logger.Logger, cfg SpeechConfig) (Speech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := speech.NewClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	recognize := func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return c.Recognize(ctx, req)
	}
	return newSpeechService(log, cfg, recognize, c.Close), nil
}

func newSpeechService(log *logger.Logger, cfg SpeechConfig, recognize recognizeFunc, closeFn func() error) *speechService {
	if strings.TrimSpace(cfg.LanguageCode) == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &speechService{
		log:        log.With("client", "SpeechClient"),
		cfg:        cfg,
		recognize:  recognize,
		closeFn:    closeFn,
		maxRetries: httpx.ClampRetries(cfg.MaxRetries),
	}
}

func (s *speechService) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

func (s *speechService) Supports(mimeType string) bool {
	_, _, ok := EncodingFor(mimeType)
	return ok
}

// EncodingFor maps a recording mime type to a Cloud Speech encoding and its
// sample rate (zero lets the service read it from the header).
func EncodingFor(mimeType string) (speechpb.RecognitionConfig_AudioEncoding, int32, bool) {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS, 48000, true
	case strings.Contains(m, "ogg"):
		return speechpb.RecognitionConfig_OGG_OPUS, 48000, true
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16, 0, true
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC, 0, true
	case strings.Contains(m, "mpeg"), strings.Contains(m, "mp3"):
		return speechpb.RecognitionConfig_MP3, 0, true
	default:
		// m4a/aac recordings from mobile clients
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, 0, false
	}
}

func (s *speechService) buildRequest(audio []byte, mimeType string) (*speechpb.RecognizeRequest, error) {
	enc, rate, ok := EncodingFor(mimeType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, mimeType)
	}
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   enc,
			SampleRateHertz:            rate,
			LanguageCode:               s.cfg.LanguageCode,
			Model:                      s.cfg.Model,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}, nil
}

func (s *speechService) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio is empty")
	}
	req, err := s.buildRequest(audio, mimeType)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "gcp.speech.recognize", attribute.String("stt.mime_type", mimeType))
	start := time.Now()
	resp, err := s.retry(ctx, req)
	observability.EndSpan(span, err)
	if err != nil {
		observability.Current().ObserveCollaborator("stt_gcp", "recognize", status.Code(err).String(), time.Since(start))
		return "", fmt.Errorf("speech recognize: %w", err)
	}
	observability.Current().ObserveCollaborator("stt_gcp", "recognize", "ok", time.Since(start))
	return joinTranscript(resp), nil
}

func (s *speechService) retry(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := s.recognize(ctx, req)
		if err == nil {
			return resp, nil
		}
		last = err
		if !retryableCode(status.Code(err)) || attempt == s.maxRetries {
			break
		}
		s.log.Warn("Speech request retrying", "attempt", attempt+1, "error", err.Error())
		if sErr := httpx.Sleep(ctx, httpx.JitterSleep(backoff)); sErr != nil {
			return nil, sErr
		}
		backoff *= 2
	}
	return nil, last
}

func retryableCode(code codes.Code) bool {
	return code == codes.Unavailable || code == codes.ResourceExhausted || code == codes.DeadlineExceeded
}

func joinTranscript(resp *speechpb.RecognizeResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		t := strings.TrimSpace(alts[0].GetTranscript())
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(t)
	}
	return b.String()
}
