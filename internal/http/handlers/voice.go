package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	"github.com/yungbote/undercurrent-backend/internal/http/response"
	"github.com/yungbote/undercurrent-backend/internal/platform/ctxutil"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"github.com/yungbote/undercurrent-backend/internal/services"
	"github.com/yungbote/undercurrent-backend/internal/voice"
)

// Roughly two minutes of compressed speech.
const maxRecordingBytes = 10 << 20

type VoiceHandler struct {
	log       *logger.Logger
	cat       *catalog.Catalog
	registry  *services.ConversationRegistry
	prefs     services.VoicePreferenceService
	stt       services.TranscriptionService
	interview services.InterviewService
}

func NewVoiceHandler(
	log *logger.Logger,
	cat *catalog.Catalog,
	registry *services.ConversationRegistry,
	prefs services.VoicePreferenceService,
	stt services.TranscriptionService,
	interviewService services.InterviewService,
) *VoiceHandler {
	return &VoiceHandler{
		log:       log.With("handler", "VoiceHandler"),
		cat:       cat,
		registry:  registry,
		prefs:     prefs,
		stt:       stt,
		interview: interviewService,
	}
}

func (h *VoiceHandler) controller(c *gin.Context) (*voice.Controller, bool) {
	conv, err := h.registry.Get(ctxutil.UserID(c.Request.Context()))
	if err != nil {
		respondServiceError(c, err)
		return nil, false
	}
	return conv.Voice, true
}

// GET /api/voices
func (h *VoiceHandler) ListVoices(c *gin.Context) {
	response.RespondOK(c, gin.H{
		"voices":  h.cat.Voices(),
		"default": h.cat.DefaultVoice().ID,
	})
}

// GET /api/voice/preference
func (h *VoiceHandler) GetPreference(c *gin.Context) {
	ctx := c.Request.Context()
	v, err := h.prefs.Get(ctx, ctxutil.UserID(ctx))
	if err != nil {
		h.log.Warn("Voice preference lookup failed", "error", err)
	}
	response.RespondOK(c, gin.H{"voice": v})
}

// PUT /api/voice/preference
// body: { "voice_id": "..." }
func (h *VoiceHandler) SetPreference(c *gin.Context) {
	var req struct {
		VoiceID string `json:"voice_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctx := c.Request.Context()
	v, err := h.prefs.Set(ctx, ctxutil.UserID(ctx), req.VoiceID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"voice": v})
}

// GET /api/voice/state
func (h *VoiceHandler) State(c *gin.Context) {
	vc, ok := h.controller(c)
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{"state": vc.Snapshot()})
}

// POST /api/voice/speak
// body: { "text": "...", "voice_id": "optional" }
func (h *VoiceHandler) Speak(c *gin.Context) {
	var req struct {
		Text    string `json:"text"`
		VoiceID string `json:"voice_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	vc, ok := h.controller(c)
	if !ok {
		return
	}
	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID != "" && !h.cat.HasVoice(voiceID) {
		response.RespondError(c, http.StatusBadRequest, "unknown_voice", fmt.Errorf("unknown voice %q", voiceID))
		return
	}
	err := vc.Say(c.Request.Context(), req.Text, voiceID)
	if errors.Is(err, voice.ErrNoAudio) {
		// Text stays usable without audio.
		response.RespondOK(c, gin.H{
			"audio":    nil,
			"state":    vc.Snapshot(),
			"warnings": []string{"audio unavailable: " + err.Error()},
		})
		return
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}
	clip, playing := vc.Clip()
	if !playing {
		// Deferred until unlock.
		response.RespondOK(c, gin.H{"audio": nil, "state": vc.Snapshot()})
		return
	}
	response.RespondOK(c, gin.H{
		"audio":     base64.StdEncoding.EncodeToString(clip.Audio),
		"mime_type": clip.MimeType,
		"clip_id":   clip.ID,
		"state":     vc.Snapshot(),
	})
}

// POST /api/voice/stop
func (h *VoiceHandler) Stop(c *gin.Context) {
	vc, ok := h.controller(c)
	if !ok {
		return
	}
	snap, err := vc.Stop(c.Request.Context())
	if err != nil && !errors.Is(err, voice.ErrNoRecording) {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"state": snap})
}

// POST /api/voice/unlock
func (h *VoiceHandler) Unlock(c *gin.Context) {
	vc, ok := h.controller(c)
	if !ok {
		return
	}
	var warnings []string
	if err := vc.Unlock(c.Request.Context()); err != nil {
		if !errors.Is(err, voice.ErrNoAudio) {
			respondServiceError(c, err)
			return
		}
		warnings = append(warnings, "audio unavailable: "+err.Error())
	}
	out := gin.H{"state": vc.Snapshot()}
	if clip, playing := vc.Clip(); playing {
		out["clip_id"] = clip.ID
	}
	if len(warnings) > 0 {
		out["warnings"] = warnings
	}
	response.RespondOK(c, out)
}

// POST /api/voice/record/start
func (h *VoiceHandler) StartRecording(c *gin.Context) {
	vc, ok := h.controller(c)
	if !ok {
		return
	}
	if err := vc.StartRecording(); err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"state": vc.Snapshot()})
}

// POST /api/voice/record/stop
// body: { "audio": "<base64>", "mime_type": "audio/webm", "submit": false }
// or multipart/form-data with field "file".
func (h *VoiceHandler) StopRecording(c *gin.Context) {
	rec, submit, err := readRecording(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	vc, ok := h.controller(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	text, err := vc.StopRecording(ctx, rec)
	if errors.Is(err, voice.ErrNotListening) {
		respondServiceError(c, err)
		return
	}
	if err != nil {
		// The client falls back to typed input.
		status, code := statusFor(err)
		if status == http.StatusInternalServerError {
			status, code = http.StatusBadGateway, "transcription_failed"
		}
		c.JSON(status, gin.H{
			"error": response.APIError{Message: err.Error(), Code: code},
			"state": vc.Snapshot(),
		})
		return
	}
	if !submit {
		response.RespondOK(c, gin.H{"transcript": text, "state": vc.Snapshot()})
		return
	}
	res, err := h.interview.Submit(ctx, ctxutil.UserID(ctx), text)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"transcript": text, "result": res, "state": vc.Snapshot()})
}

// POST /api/voice/playback/ended
// body: { "clip_id": "..." }
func (h *VoiceHandler) PlaybackEnded(c *gin.Context) {
	var req struct {
		ClipID string `json:"clip_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	clipID, err := uuid.Parse(strings.TrimSpace(req.ClipID))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_clip_id", err)
		return
	}
	vc, ok := h.controller(c)
	if !ok {
		return
	}
	ended := vc.PlaybackEnded(clipID)
	response.RespondOK(c, gin.H{"ended": ended, "state": vc.Snapshot()})
}

// GET /api/voice/clip
func (h *VoiceHandler) Clip(c *gin.Context) {
	vc, ok := h.controller(c)
	if !ok {
		return
	}
	clip, playing := vc.Clip()
	if !playing {
		response.RespondError(c, http.StatusNotFound, "no_clip", errors.New("nothing is playing"))
		return
	}
	c.Header("X-Clip-Id", clip.ID.String())
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, clip.MimeType, clip.Audio)
}

// POST /api/voice/transcribe
// Same body as record/stop; does not touch the voice controller.
func (h *VoiceHandler) Transcribe(c *gin.Context) {
	rec, _, err := readRecording(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(rec.Audio) == 0 {
		respondServiceError(c, voice.ErrNoRecording)
		return
	}
	text, err := h.stt.Transcribe(c.Request.Context(), rec.Audio, rec.MimeType)
	if err != nil {
		if errors.Is(err, services.ErrTranscriptionUnavailable) {
			respondServiceError(c, err)
			return
		}
		response.RespondError(c, http.StatusBadGateway, "transcription_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"transcript": strings.TrimSpace(text)})
}

func readRecording(c *gin.Context) (voice.Recording, bool, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return voice.Recording{}, false, fmt.Errorf("missing file: %w", err)
		}
		f, err := fh.Open()
		if err != nil {
			return voice.Recording{}, false, err
		}
		defer f.Close()
		raw, err := io.ReadAll(io.LimitReader(f, maxRecordingBytes+1))
		if err != nil {
			return voice.Recording{}, false, err
		}
		if len(raw) > maxRecordingBytes {
			return voice.Recording{}, false, errors.New("recording too large")
		}
		mime := c.PostForm("mime_type")
		if mime == "" {
			mime = fh.Header.Get("Content-Type")
		}
		return voice.Recording{Audio: raw, MimeType: mime}, c.PostForm("submit") == "true", nil
	}

	var req struct {
		Audio    string `json:"audio"`
		MimeType string `json:"mime_type"`
		Submit   bool   `json:"submit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		return voice.Recording{}, false, err
	}
	if base64.StdEncoding.DecodedLen(len(req.Audio)) > maxRecordingBytes {
		return voice.Recording{}, false, errors.New("recording too large")
	}
	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		return voice.Recording{}, false, fmt.Errorf("audio must be base64: %w", err)
	}
	return voice.Recording{Audio: audio, MimeType: req.MimeType}, req.Submit, nil
}
