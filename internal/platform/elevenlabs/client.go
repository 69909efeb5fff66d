package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/undercurrent-backend/internal/observability"
	"github.com/yungbote/undercurrent-backend/internal/platform/envutil"
	"github.com/yungbote/undercurrent-backend/internal/platform/httpx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

// DefaultVoiceID is Rachel.
const DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

type Client interface {
	// Synthesize returns MPEG audio for text.
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	DefaultVoiceID string
	Settings       VoiceSettings
	Timeout        time.Duration
	MaxRetries     int
}

func DefaultSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.45, SimilarityBoost: 0.82, Style: 0.3, UseSpeakerBoost: true}
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:         envutil.String("ELEVENLABS_API_KEY", ""),
		BaseURL:        envutil.String("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		Model:          envutil.String("ELEVENLABS_MODEL", "eleven_turbo_v2_5"),
		DefaultVoiceID: envutil.String("ELEVENLABS_VOICE_ID", DefaultVoiceID),
		Settings:       DefaultSettings(),
		Timeout:        envutil.Seconds("ELEVENLABS_TIMEOUT_SECONDS", 30*time.Second),
		MaxRetries:     envutil.Int("ELEVENLABS_MAX_RETRIES", 0),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing ELEVENLABS_API_KEY")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Model == "" {
		cfg.Model = "eleven_turbo_v2_5"
	}
	if cfg.DefaultVoiceID == "" {
		cfg.DefaultVoiceID = DefaultVoiceID
	}
	if cfg.Settings == (VoiceSettings{}) {
		cfg.Settings = DefaultSettings()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{
		log:        log.With("client", "ElevenLabsClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: httpx.ClampRetries(cfg.MaxRetries),
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	maxRetries int
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("elevenlabs http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

func (c *client) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text is empty")
	}
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		voiceID = c.cfg.DefaultVoiceID
	}
	body, err := json.Marshal(ttsRequest{Text: text, ModelID: c.cfg.Model, VoiceSettings: c.cfg.Settings})
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "elevenlabs.tts", attribute.String("tts.voice_id", voiceID))
	start := time.Now()
	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		audio, resp, err := c.doOnce(ctx, voiceID, body)
		if err == nil {
			observability.Current().ObserveCollaborator("tts", "synthesize", "ok", time.Since(start))
			observability.EndSpan(span, nil)
			return audio, nil
		}
		lastErr = err
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			break
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 5*time.Second))
		c.log.Warn("ElevenLabs request retrying", "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
		if sErr := httpx.Sleep(ctx, sleepFor); sErr != nil {
			lastErr = sErr
			break
		}
		backoff *= 2
	}
	observability.Current().ObserveCollaborator("tts", "synthesize", statusLabel(lastErr), time.Since(start))
	observability.EndSpan(span, lastErr)
	return nil, lastErr
}

func (c *client) doOnce(ctx context.Context, voiceID string, body []byte) ([]byte, *http.Response, error) {
	url := c.cfg.BaseURL + "/v1/text-to-speech/" + voiceID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: httpx.ReadLimited(resp.Body, 4096)}
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, err
	}
	return audio, resp, nil
}

func statusLabel(err error) string {
	var sc httpx.HTTPStatusCoder
	if errors.As(err, &sc) {
		return strconv.Itoa(sc.HTTPStatusCode())
	}
	return "error"
}
