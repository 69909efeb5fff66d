package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/undercurrent-backend/internal/http/response"
	"github.com/yungbote/undercurrent-backend/internal/interview"
	"github.com/yungbote/undercurrent-backend/internal/platform/apierr"
	"github.com/yungbote/undercurrent-backend/internal/services"
	"github.com/yungbote/undercurrent-backend/internal/voice"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{interview.ErrEmptyAnswer, http.StatusBadRequest, "empty_answer"},
	{interview.ErrSubmissionInFlight, http.StatusConflict, "submission_in_flight"},
	{interview.ErrNotStarted, http.StatusConflict, "not_started"},
	{interview.ErrNoActiveQuestion, http.StatusConflict, "no_active_question"},
	{interview.ErrWrongPhase, http.StatusConflict, "wrong_phase"},
	{interview.ErrInvalidRating, http.StatusBadRequest, "invalid_rating"},
	{interview.ErrUnknownDimension, http.StatusBadRequest, "unknown_dimension"},
	{interview.ErrNotAllRated, http.StatusConflict, "not_all_rated"},
	{interview.ErrSessionUnavailable, http.StatusServiceUnavailable, "session_unavailable"},
	{interview.ErrOdysseyNotSaved, http.StatusServiceUnavailable, "odyssey_not_saved"},
	{interview.ErrAnswerNotSaved, http.StatusServiceUnavailable, "answer_not_saved"},

	{voice.ErrBusy, http.StatusConflict, "voice_busy"},
	{voice.ErrNotListening, http.StatusConflict, "not_listening"},
	{voice.ErrNoRecording, http.StatusBadRequest, "empty_recording"},
	{voice.ErrEmptyText, http.StatusBadRequest, "empty_text"},

	{services.ErrUnknownCanvasKey, http.StatusBadRequest, "invalid_canvas_key"},
	{services.ErrEmailUnavailable, http.StatusServiceUnavailable, "email_unavailable"},
	{services.ErrEmailDelivery, http.StatusBadGateway, "email_failed"},
	{services.ErrGeneratorUnavailable, http.StatusServiceUnavailable, "generation_unavailable"},
	{services.ErrTranscriptionUnavailable, http.StatusServiceUnavailable, "transcription_unavailable"},
}

// statusFor maps a service error onto an HTTP status and stable code.
func statusFor(err error) (int, string) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return apierr.From(err)
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func respondServiceError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.RespondError(c, status, code, err)
}
