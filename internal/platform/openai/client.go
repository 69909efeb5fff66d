package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/undercurrent-backend/internal/observability"
	"github.com/yungbote/undercurrent-backend/internal/platform/envutil"
	"github.com/yungbote/undercurrent-backend/internal/platform/httpx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

// Client is the OpenAI API client used by the coaching, synthesis and
// transcription paths.
type Client interface {
	// Plain text (no schema)
	GenerateText(ctx context.Context, system string, user string) (string, error)

	// Structured outputs (json_schema, strict)
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)

	// Whisper transcription of a complete recording.
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	TranscribeModel string
	Language        string
	Timeout         time.Duration
	MaxRetries      int
	// Temperature is omitted from requests when nil.
	Temperature *float64
}

func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:          envutil.String("OPENAI_API_KEY", ""),
		BaseURL:         envutil.String("OPENAI_BASE_URL", "https://api.openai.com"),
		Model:           envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		TranscribeModel: envutil.String("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
		Language:        envutil.String("OPENAI_TRANSCRIBE_LANGUAGE", "en"),
		Timeout:         envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 60*time.Second),
		MaxRetries:      envutil.Int("OPENAI_MAX_RETRIES", 0),
	}
	switch t := strings.ToLower(envutil.String("OPENAI_TEMPERATURE", "0.7")); t {
	case "off", "none", "false":
	default:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			cfg.Temperature = &f
		}
	}
	return cfg
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.TranscribeModel == "" {
		cfg.TranscribeModel = "whisper-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &client{
		log:        log.With("client", "OpenAIClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: httpx.ClampRetries(cfg.MaxRetries),
		noTemp:     map[string]bool{},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	maxRetries int

	// Models that rejected the temperature parameter.
	noTempMu sync.RWMutex
	noTemp   map[string]bool
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// -------------------- transport --------------------

type rawRequest struct {
	path        string
	contentType string
	body        []byte
}

func (c *client) doOnce(ctx context.Context, r rawRequest) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+r.path, bytes.NewReader(r.body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", r.contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// do sends r with at most maxRetries extra attempts on transient failures.
func (c *client) do(ctx context.Context, model string, r rawRequest, out any) error {
	ctx, span := observability.StartSpan(ctx, "openai "+r.path,
		attribute.String("llm.model", model),
	)
	backoff := 500 * time.Millisecond
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			observability.EndSpan(span, ctx.Err())
			return ctx.Err()
		}
		resp, raw, err := c.doOnce(ctx, r)
		if err == nil {
			inTok, outTok := extractUsageFromRaw(raw)
			observability.Current().ObserveLLMRequest(model, r.path, statusFromResp(resp), time.Since(start), inTok, outTok)
			if out != nil {
				if uErr := json.Unmarshal(raw, out); uErr != nil {
					err = fmt.Errorf("openai decode error: %w", uErr)
					observability.EndSpan(span, err)
					return err
				}
			}
			observability.EndSpan(span, nil)
			return nil
		}
		lastErr = err
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			break
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 5*time.Second))
		c.log.Warn("OpenAI request retrying",
			"path", r.path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if sErr := httpx.Sleep(ctx, sleepFor); sErr != nil {
			lastErr = sErr
			break
		}
		backoff *= 2
	}
	observability.Current().ObserveLLMRequest(model, r.path, statusFromErr(lastErr), time.Since(start), 0, 0)
	observability.EndSpan(span, lastErr)
	return lastErr
}

// -------------------- Responses API --------------------

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model string         `json:"model"`
	Input []inputMessage `json:"input"`
	Text  *struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func (c *client) newResponsesRequest(system, user string) *responsesRequest {
	req := &responsesRequest{
		Model: c.cfg.Model,
		Input: []inputMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if c.cfg.Temperature != nil && !c.modelIsNoTemp(req.Model) {
		req.Temperature = c.cfg.Temperature
	}
	return req
}

// respond posts req and retries exactly once without temperature if the
// model rejects it.
func (c *client) respond(ctx context.Context, req *responsesRequest) (string, error) {
	var resp responsesResponse
	err := c.postJSON(ctx, req, &resp)
	if err != nil && req.Temperature != nil && isUnsupportedTemperature(err) {
		c.noteNoTempModel(req.Model)
		req.Temperature = nil
		resp = responsesResponse{}
		err = c.postJSON(ctx, req, &resp)
	}
	if err != nil {
		return "", err
	}
	if resp.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", resp.Refusal)
	}
	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no output_text found in response")
	}
	return text, nil
}

func (c *client) postJSON(ctx context.Context, req *responsesRequest, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.do(ctx, req.Model, rawRequest{path: "/v1/responses", contentType: "application/json", body: body}, out)
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	return c.respond(ctx, c.newResponsesRequest(system, user))
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}
	req := c.newResponsesRequest(system, user)
	req.Text = &struct {
		Format map[string]any `json:"format,omitempty"`
	}{Format: map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}}
	jsonText, err := c.respond(ctx, req)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonText), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return obj, nil
}

// -------------------- Audio transcription --------------------

func (c *client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("audio is empty")
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "recording."+FileExtension(mimeType))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := w.WriteField("model", c.cfg.TranscribeModel); err != nil {
		return "", err
	}
	if c.cfg.Language != "" {
		if err := w.WriteField("language", c.cfg.Language); err != nil {
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var out struct {
		Text string `json:"text"`
	}
	r := rawRequest{path: "/v1/audio/transcriptions", contentType: w.FormDataContentType(), body: buf.Bytes()}
	if err := c.do(ctx, c.cfg.TranscribeModel, r, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

// FileExtension maps a recording mime type to the upload file extension.
func FileExtension(mimeType string) string {
	if strings.Contains(strings.ToLower(mimeType), "webm") {
		return "webm"
	}
	return "m4a"
}

// -------------------- helpers --------------------

func isUnsupportedTemperature(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(httpErr.Body)
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, s := range []string{"unsupported", "unknown parameter", "not supported", "does not support", "only the default"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *client) modelIsNoTemp(model string) bool {
	c.noTempMu.RLock()
	defer c.noTempMu.RUnlock()
	return c.noTemp[strings.ToLower(model)]
}

func (c *client) noteNoTempModel(model string) {
	c.noTempMu.Lock()
	c.noTemp[strings.ToLower(model)] = true
	c.noTempMu.Unlock()
	c.log.Info("Model rejected temperature; omitting from now on", "model", model)
}

func extractUsageFromRaw(raw []byte) (int, int) {
	var payload struct {
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &payload) != nil {
		return 0, 0
	}
	return payload.Usage.InputTokens, payload.Usage.OutputTokens
}

func statusFromResp(resp *http.Response) string {
	if resp == nil {
		return "unknown"
	}
	return strconv.Itoa(resp.StatusCode)
}

func statusFromErr(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return strconv.Itoa(httpErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
