package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/undercurrent-backend/internal/domain"
	"github.com/yungbote/undercurrent-backend/internal/http/response"
	"github.com/yungbote/undercurrent-backend/internal/interview"
	"github.com/yungbote/undercurrent-backend/internal/platform/ctxutil"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"github.com/yungbote/undercurrent-backend/internal/services"
)

type InterviewHandler struct {
	log       *logger.Logger
	interview services.InterviewService
	reports   services.ReportGenerator
	email     services.EmailService
	canvas    *services.CanvasCoalescer
}

func NewInterviewHandler(
	log *logger.Logger,
	interviewService services.InterviewService,
	reports services.ReportGenerator,
	email services.EmailService,
	canvas *services.CanvasCoalescer,
) *InterviewHandler {
	return &InterviewHandler{
		log:       log.With("handler", "InterviewHandler"),
		interview: interviewService,
		reports:   reports,
		email:     email,
		canvas:    canvas,
	}
}

func (h *InterviewHandler) respondResult(c *gin.Context, res interview.Result, err error) {
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/interview/session
func (h *InterviewHandler) GetSession(c *gin.Context) {
	view, err := h.interview.GetSession(c.Request.Context(), ctxutil.UserID(c.Request.Context()))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// POST /api/interview/start
func (h *InterviewHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := h.interview.Start(ctx, ctxutil.UserID(ctx))
	h.respondResult(c, res, err)
}

// POST /api/interview/answer
// body: { "text": "..." }
func (h *InterviewHandler) Answer(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctx := c.Request.Context()
	res, err := h.interview.Submit(ctx, ctxutil.UserID(ctx), req.Text)
	h.respondResult(c, res, err)
}

// POST /api/interview/advance
func (h *InterviewHandler) Advance(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := h.interview.Advance(ctx, ctxutil.UserID(ctx))
	h.respondResult(c, res, err)
}

// PATCH /api/interview/progress
func (h *InterviewHandler) UpdateProgress(c *gin.Context) {
	var req services.ProgressPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctx := c.Request.Context()
	sess, err := h.interview.UpdateProgress(ctx, ctxutil.UserID(ctx), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": sess})
}

// POST /api/interview/reset
func (h *InterviewHandler) Reset(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.interview.Reset(ctx, ctxutil.UserID(ctx)); err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// GET /api/interview/odyssey
func (h *InterviewHandler) GetOdyssey(c *gin.Context) {
	ctx := c.Request.Context()
	snap, err := h.interview.Odyssey(ctx, ctxutil.UserID(ctx))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"odyssey": snap})
}

// POST /api/interview/odyssey/path
// body: { "text": "..." }
func (h *InterviewHandler) SubmitPath(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctx := c.Request.Context()
	res, err := h.interview.SubmitPath(ctx, ctxutil.UserID(ctx), req.Text)
	h.respondResult(c, res, err)
}

// PUT /api/interview/odyssey/rating
// body: { "dimension": "confidence", "value": 4 }
func (h *InterviewHandler) Rate(c *gin.Context) {
	var req struct {
		Dimension string `json:"dimension"`
		Value     int    `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctx := c.Request.Context()
	snap, err := h.interview.Rate(ctx, ctxutil.UserID(ctx), strings.TrimSpace(req.Dimension), req.Value)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"state": snap})
}

// POST /api/interview/odyssey/ratings/submit
func (h *InterviewHandler) SubmitRatings(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := h.interview.CompleteRatings(ctx, ctxutil.UserID(ctx))
	h.respondResult(c, res, err)
}

// PATCH /api/interview/canvas
// body: { "edits": { "key_partners": "..." } }
func (h *InterviewHandler) EditCanvas(c *gin.Context) {
	var req struct {
		Edits types.CareerCanvas `json:"edits"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(req.Edits) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("no canvas edits provided"))
		return
	}
	ctx := c.Request.Context()
	if err := h.canvas.Edit(ctx, ctxutil.UserID(ctx), req.Edits); err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondAccepted(c)
}

// POST /api/interview/canvas/generate
func (h *InterviewHandler) GenerateCanvas(c *gin.Context) {
	ctx := c.Request.Context()
	canvas, err := h.reports.GenerateCanvas(ctx, ctxutil.UserID(ctx))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"career_canvas": canvas})
}

// POST /api/interview/synthesis
// body (optional): { "include_canvas": true }
func (h *InterviewHandler) GenerateSynthesis(c *gin.Context) {
	var req struct {
		IncludeCanvas bool `json:"include_canvas"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctx := c.Request.Context()
	userID := ctxutil.UserID(ctx)
	var (
		res *services.SynthesisResult
		err error
	)
	if req.IncludeCanvas {
		res, err = h.reports.GenerateReport(ctx, userID)
	} else {
		res, err = h.reports.GenerateSynthesis(ctx, userID)
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/interview/report/email
func (h *InterviewHandler) EmailReport(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := h.email.SendReport(ctx, ctxutil.UserID(ctx))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, res)
}
