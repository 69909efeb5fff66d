package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	"github.com/yungbote/undercurrent-backend/internal/data/repos"
	types "github.com/yungbote/undercurrent-backend/internal/domain"
	"github.com/yungbote/undercurrent-backend/internal/interview"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"github.com/yungbote/undercurrent-backend/internal/platform/openai"
)

var ErrGeneratorUnavailable = errors.New("report generation not configured")

// CanvasFlusher writes any buffered canvas edits for a user.
type CanvasFlusher interface {
	Flush(ctx context.Context, userID uuid.UUID) error
}

// ReportGenerator turns a finished interview into a synthesis, a suggested
// canvas and the combined report.
type ReportGenerator interface {
	GenerateSynthesis(ctx context.Context, userID uuid.UUID) (*SynthesisResult, error)
	GenerateCanvas(ctx context.Context, userID uuid.UUID) (types.CareerCanvas, error)
	GenerateReport(ctx context.Context, userID uuid.UUID) (*SynthesisResult, error)
}

type reportGenerator struct {
	log      *logger.Logger
	cat      *catalog.Catalog
	llm      openai.Client
	users    repos.UserRepo
	sessions repos.SessionRepo
	answers  repos.AnswerRepo
	canvas   CanvasFlusher
}

func NewReportGenerator(
	log *logger.Logger,
	cat *catalog.Catalog,
	llm openai.Client,
	users repos.UserRepo,
	sessions repos.SessionRepo,
	answers repos.AnswerRepo,
	canvas CanvasFlusher,
) ReportGenerator {
	return &reportGenerator{
		log:      log.With("service", "ReportGenerator"),
		cat:      cat,
		llm:      llm,
		users:    users,
		sessions: sessions,
		answers:  answers,
		canvas:   canvas,
	}
}

type SynthesisResult struct {
	Synthesis types.Synthesis    `json:"synthesis"`
	Canvas    types.CareerCanvas `json:"career_canvas,omitempty"`
	Warnings  []string           `json:"warnings,omitempty"`
}

// turns loads the session's answers in question order after flushing
// pending canvas edits.
func (g *reportGenerator) turns(ctx context.Context, userID uuid.UUID) (*types.Session, []interview.Turn, error) {
	if g.canvas != nil {
		if err := g.canvas.Flush(ctx, userID); err != nil {
			g.log.Warn("Canvas flush before generation failed", "error", err)
		}
	}
	dbc := dbctx.New(ctx)
	sess, err := g.sessions.GetOrCreate(dbc, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", interview.ErrSessionUnavailable, err)
	}
	answers, err := g.answers.ListBySession(dbc, sess.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list answers: %w", err)
	}
	sort.SliceStable(answers, func(i, j int) bool { return answers[i].QuestionID < answers[j].QuestionID })
	out := make([]interview.Turn, 0, len(answers))
	for _, a := range answers {
		if a == nil {
			continue
		}
		t := interview.Turn{QuestionID: a.QuestionID, Answer: a.Text, FollowUpReply: a.FollowUpReply}
		if q, ok := g.cat.Question(a.QuestionID); ok {
			t.Frameworks = q.Frameworks
		}
		out = append(out, t)
	}
	return sess, out, nil
}

// GenerateSynthesis builds the six-part narrative and stores it on the
// session. A failed write is reported as a warning.
func (g *reportGenerator) GenerateSynthesis(ctx context.Context, userID uuid.UUID) (*SynthesisResult, error) {
	if g.llm == nil {
		return nil, ErrGeneratorUnavailable
	}
	_, turns, err := g.turns(ctx, userID)
	if err != nil {
		return nil, err
	}
	syn, err := g.synthesize(ctx, userID, turns)
	if err != nil {
		return nil, err
	}
	res := &SynthesisResult{Synthesis: syn}
	if err := g.sessions.Update(dbctx.New(ctx), userID, types.SessionPatch{Synthesis: &syn}); err != nil {
		g.log.Warn("Saving synthesis failed", "error", err)
		res.Warnings = append(res.Warnings, "synthesis could not be saved")
	}
	return res, nil
}

// GenerateCanvas returns eight-block canvas suggestions. Nothing is saved;
// the user edits and keeps what they want.
func (g *reportGenerator) GenerateCanvas(ctx context.Context, userID uuid.UUID) (types.CareerCanvas, error) {
	if g.llm == nil {
		return nil, ErrGeneratorUnavailable
	}
	_, turns, err := g.turns(ctx, userID)
	if err != nil {
		return nil, err
	}
	return g.suggestCanvas(ctx, turns)
}

// GenerateReport runs both generators concurrently over one answer read.
func (g *reportGenerator) GenerateReport(ctx context.Context, userID uuid.UUID) (*SynthesisResult, error) {
	if g.llm == nil {
		return nil, ErrGeneratorUnavailable
	}
	_, turns, err := g.turns(ctx, userID)
	if err != nil {
		return nil, err
	}
	var (
		syn    types.Synthesis
		canvas types.CareerCanvas
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var gErr error
		syn, gErr = g.synthesize(egCtx, userID, turns)
		return gErr
	})
	eg.Go(func() error {
		var gErr error
		canvas, gErr = g.suggestCanvas(egCtx, turns)
		return gErr
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	res := &SynthesisResult{Synthesis: syn, Canvas: canvas}
	if err := g.sessions.Update(dbctx.New(ctx), userID, types.SessionPatch{Synthesis: &syn}); err != nil {
		g.log.Warn("Saving synthesis failed", "error", err)
		res.Warnings = append(res.Warnings, "synthesis could not be saved")
	}
	return res, nil
}

func (g *reportGenerator) synthesize(ctx context.Context, userID uuid.UUID, turns []interview.Turn) (types.Synthesis, error) {
	name := ""
	if u, err := g.users.GetByID(dbctx.New(ctx), userID); err == nil && u != nil {
		name = strings.TrimSpace(u.Name)
	}
	obj, err := g.llm.GenerateJSON(ctx, synthesisSystemPrompt, synthesisUserPrompt(g.cat, name, turns), "synthesis_report", stringObjectSchema(synthesisKeys))
	if err != nil {
		return types.Synthesis{}, fmt.Errorf("generate synthesis: %w", err)
	}
	return types.Synthesis{
		HedgehogOverlap:        textField(obj, "hedgehog_overlap"),
		ZoneOfGenius:           textField(obj, "zone_of_genius"),
		IkigaiSweetSpot:        textField(obj, "ikigai_sweet_spot"),
		EnergyPatternsPositive: textField(obj, "energy_patterns_positive"),
		EnergyPatternsDraining: textField(obj, "energy_patterns_draining"),
		KeyInsight:             textField(obj, "key_insight"),
	}, nil
}

func (g *reportGenerator) suggestCanvas(ctx context.Context, turns []interview.Turn) (types.CareerCanvas, error) {
	keys := g.cat.CanvasKeys()
	obj, err := g.llm.GenerateJSON(ctx, canvasSystemPrompt, canvasUserPrompt(g.cat, turns), "career_canvas", stringObjectSchema(keys))
	if err != nil {
		return nil, fmt.Errorf("generate canvas: %w", err)
	}
	out := make(types.CareerCanvas, len(keys))
	for _, k := range keys {
		if v := textField(obj, k); v != "" {
			out[k] = v
		}
	}
	return out, nil
}

// textField reads a model field, joining list values with newlines.
func textField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}
