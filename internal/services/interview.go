package services

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	"github.com/yungbote/undercurrent-backend/internal/data/repos"
	types "github.com/yungbote/undercurrent-backend/internal/domain"
	"github.com/yungbote/undercurrent-backend/internal/interview"
	apperr "github.com/yungbote/undercurrent-backend/internal/pkg/errors"
	"github.com/yungbote/undercurrent-backend/internal/platform/apierr"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"github.com/yungbote/undercurrent-backend/internal/platform/redis"
)

const maxNextSteps = 3

// SessionView is everything the client needs to render the interview.
type SessionView struct {
	Session *types.Session             `json:"session"`
	Answers []*types.Answer            `json:"answers"`
	State   interview.Snapshot         `json:"state"`
	Odyssey *interview.OdysseySnapshot `json:"odyssey,omitempty"`
}

// ProgressPatch is a client-supplied partial session update. Absent fields
// are left alone.
type ProgressPatch struct {
	CurrentQuestionID *int                  `json:"currentQuestionId,omitempty"`
	CompletedSections *[]int                `json:"completedSections,omitempty"`
	OdysseyPaths      *types.OdysseyPaths   `json:"odysseyPaths,omitempty"`
	OdysseyRatings    *types.OdysseyRatings `json:"odysseyRatings,omitempty"`
	CareerCanvas      *types.CareerCanvas   `json:"careerCanvas,omitempty"`
	NextSteps         *[]types.NextStep     `json:"nextSteps,omitempty"`
	IsComplete        *bool                 `json:"isComplete,omitempty"`
}

// touchesFlow reports whether the patch moves state the in-memory flow owns.
func (p ProgressPatch) touchesFlow() bool {
	return p.CurrentQuestionID != nil || p.CompletedSections != nil || p.OdysseyPaths != nil || p.OdysseyRatings != nil
}

type InterviewService interface {
	GetSession(ctx context.Context, userID uuid.UUID) (*SessionView, error)
	Odyssey(ctx context.Context, userID uuid.UUID) (*interview.OdysseySnapshot, error)
	UpdateProgress(ctx context.Context, userID uuid.UUID, p ProgressPatch) (*types.Session, error)
	Reset(ctx context.Context, userID uuid.UUID) error

	Start(ctx context.Context, userID uuid.UUID) (interview.Result, error)
	Submit(ctx context.Context, userID uuid.UUID, text string) (interview.Result, error)
	Advance(ctx context.Context, userID uuid.UUID) (interview.Result, error)
	SubmitPath(ctx context.Context, userID uuid.UUID, text string) (interview.Result, error)
	CompleteRatings(ctx context.Context, userID uuid.UUID) (interview.Result, error)
	Rate(ctx context.Context, userID uuid.UUID, dimension string, value int) (interview.Snapshot, error)
}

type interviewService struct {
	log      *logger.Logger
	cat      *catalog.Catalog
	sessions repos.SessionRepo
	answers  repos.AnswerRepo
	registry *ConversationRegistry
	guard    *redis.SubmissionGuard
	canvas   *CanvasCoalescer
}

func NewInterviewService(
	log *logger.Logger,
	cat *catalog.Catalog,
	sessions repos.SessionRepo,
	answers repos.AnswerRepo,
	registry *ConversationRegistry,
	guard *redis.SubmissionGuard,
	canvas *CanvasCoalescer,
) InterviewService {
	return &interviewService{
		log:      log.With("service", "InterviewService"),
		cat:      cat,
		sessions: sessions,
		answers:  answers,
		registry: registry,
		guard:    guard,
		canvas:   canvas,
	}
}

func (s *interviewService) GetSession(ctx context.Context, userID uuid.UUID) (*SessionView, error) {
	if s.canvas != nil {
		if err := s.canvas.Flush(ctx, userID); err != nil {
			s.log.Warn("Canvas flush before read failed", "error", err)
		}
	}
	dbc := dbctx.New(ctx)
	sess, err := s.sessions.GetOrCreate(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interview.ErrSessionUnavailable, err)
	}
	answers, err := s.answers.ListBySession(dbc, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	sort.SliceStable(answers, func(i, j int) bool { return answers[i].QuestionID < answers[j].QuestionID })
	conv, err := s.registry.Get(userID)
	if err != nil {
		return nil, err
	}
	view := &SessionView{Session: sess, Answers: answers, State: conv.Flow.Snapshot()}
	view.Odyssey = view.State.Odyssey
	if view.Odyssey == nil {
		snap := interview.RestoreOdyssey(s.cat, sess.OdysseyPaths.Data(), sess.OdysseyRatings.Data()).Snapshot()
		view.Odyssey = &snap
	}
	return view, nil
}

// Odyssey returns the live sub-flow snapshot, or one rebuilt from storage
// when the flow has not reached it.
func (s *interviewService) Odyssey(ctx context.Context, userID uuid.UUID) (*interview.OdysseySnapshot, error) {
	conv, err := s.registry.Get(userID)
	if err != nil {
		return nil, err
	}
	if snap := conv.Flow.Snapshot().Odyssey; snap != nil {
		return snap, nil
	}
	sess, err := s.sessions.GetOrCreate(dbctx.New(ctx), userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interview.ErrSessionUnavailable, err)
	}
	snap := interview.RestoreOdyssey(s.cat, sess.OdysseyPaths.Data(), sess.OdysseyRatings.Data()).Snapshot()
	return &snap, nil
}

func (s *interviewService) validate(p ProgressPatch) error {
	bad := func(code, format string, args ...any) error {
		return apierr.New(http.StatusBadRequest, code, fmt.Errorf("%w: %s", apperr.ErrInvalidArgument, fmt.Sprintf(format, args...)))
	}
	if p.CurrentQuestionID != nil {
		if _, ok := s.cat.Question(*p.CurrentQuestionID); !ok {
			return bad("invalid_question", "unknown question %d", *p.CurrentQuestionID)
		}
	}
	if p.CompletedSections != nil {
		for _, id := range *p.CompletedSections {
			if _, ok := s.cat.Section(id); !ok {
				return bad("invalid_section", "unknown section %d", id)
			}
		}
	}
	if p.OdysseyPaths != nil {
		for id := range *p.OdysseyPaths {
			if _, ok := s.cat.Path(id); !ok {
				return bad("invalid_path", "unknown odyssey path %q", id)
			}
		}
	}
	if p.OdysseyRatings != nil {
		for id, scores := range *p.OdysseyRatings {
			if _, ok := s.cat.Path(id); !ok {
				return bad("invalid_path", "unknown odyssey path %q", id)
			}
			for dim, v := range scores {
				if !s.cat.HasDimension(dim) {
					return bad("invalid_dimension", "unknown dimension %q", dim)
				}
				if v < 0 || v > 5 {
					return bad("invalid_rating", "rating for %s/%s must be between 0 and 5", id, dim)
				}
			}
		}
	}
	if p.CareerCanvas != nil {
		for k := range *p.CareerCanvas {
			if !s.cat.HasCanvasKey(k) {
				return bad("invalid_canvas_key", "unknown career canvas block %q", k)
			}
		}
	}
	if p.NextSteps != nil && len(*p.NextSteps) > maxNextSteps {
		return bad("too_many_next_steps", "at most %d next steps", maxNextSteps)
	}
	return nil
}

// UpdateProgress applies a partial update. Marking the session complete is
// refused unless every section is done, the final main question answered and
// every odyssey path fully rated once the patch is applied.
func (s *interviewService) UpdateProgress(ctx context.Context, userID uuid.UUID, p ProgressPatch) (*types.Session, error) {
	if err := s.validate(p); err != nil {
		return nil, err
	}
	if s.canvas != nil && p.CareerCanvas != nil {
		// A full canvas write replaces anything still buffered.
		s.canvas.Discard(userID)
	}
	dbc := dbctx.New(ctx)
	sess, err := s.sessions.GetOrCreate(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interview.ErrSessionUnavailable, err)
	}
	patch := types.SessionPatch{
		CurrentQuestionID: p.CurrentQuestionID,
		CompletedSections: p.CompletedSections,
		OdysseyPaths:      p.OdysseyPaths,
		OdysseyRatings:    p.OdysseyRatings,
		CareerCanvas:      p.CareerCanvas,
		NextSteps:         p.NextSteps,
		IsComplete:        p.IsComplete,
	}
	if p.NextSteps != nil {
		steps := make([]types.NextStep, 0, len(*p.NextSteps))
		for _, st := range *p.NextSteps {
			steps = append(steps, types.NextStep{Action: strings.TrimSpace(st.Action), Deadline: strings.TrimSpace(st.Deadline)})
		}
		patch.NextSteps = &steps
	}
	if p.IsComplete != nil && *p.IsComplete {
		answers, err := s.answers.ListBySession(dbc, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("update progress: list answers: %w", err)
		}
		if !interview.CompletionReady(s.cat, projected(sess, patch), answers) {
			return nil, apierr.New(http.StatusConflict, "not_complete", fmt.Errorf("%w: every section, the final question and every odyssey rating must be finished first", apperr.ErrConflict))
		}
	}
	if patch.IsEmpty() {
		return sess, nil
	}
	if err := s.sessions.Update(dbc, userID, patch); err != nil {
		return nil, fmt.Errorf("update progress: %w", err)
	}
	if p.touchesFlow() {
		s.registry.Drop(userID)
	}
	return s.sessions.GetOrCreate(dbc, userID)
}

// projected is sess with the completion-relevant fields of patch applied.
func projected(sess *types.Session, patch types.SessionPatch) *types.Session {
	cp := *sess
	if patch.CompletedSections != nil {
		cp.CompletedSections = datatypes.NewJSONType(*patch.CompletedSections)
	}
	if patch.OdysseyRatings != nil {
		cp.OdysseyRatings = datatypes.NewJSONType(*patch.OdysseyRatings)
	}
	return &cp
}

func (s *interviewService) Reset(ctx context.Context, userID uuid.UUID) error {
	return s.registry.Reset(ctx, userID)
}

// guarded runs fn while holding the user's cross-instance submission lock.
func (s *interviewService) guarded(ctx context.Context, userID uuid.UUID, fn func(*interview.Flow) (interview.Result, error)) (interview.Result, error) {
	release, ok, err := s.guard.Acquire(ctx, userID.String())
	if err != nil {
		s.log.Warn("Submission guard unavailable; continuing with local serialization", "error", err)
		release, ok = func() {}, true
	}
	if !ok {
		return interview.Result{}, interview.ErrSubmissionInFlight
	}
	defer release()
	conv, err := s.registry.Get(userID)
	if err != nil {
		return interview.Result{}, err
	}
	return fn(conv.Flow)
}

func (s *interviewService) Start(ctx context.Context, userID uuid.UUID) (interview.Result, error) {
	return s.guarded(ctx, userID, func(f *interview.Flow) (interview.Result, error) { return f.Start(ctx) })
}

func (s *interviewService) Submit(ctx context.Context, userID uuid.UUID, text string) (interview.Result, error) {
	return s.guarded(ctx, userID, func(f *interview.Flow) (interview.Result, error) { return f.Submit(ctx, text) })
}

func (s *interviewService) Advance(ctx context.Context, userID uuid.UUID) (interview.Result, error) {
	return s.guarded(ctx, userID, func(f *interview.Flow) (interview.Result, error) { return f.Advance(ctx) })
}

func (s *interviewService) SubmitPath(ctx context.Context, userID uuid.UUID, text string) (interview.Result, error) {
	return s.guarded(ctx, userID, func(f *interview.Flow) (interview.Result, error) { return f.SubmitPath(ctx, text) })
}

func (s *interviewService) CompleteRatings(ctx context.Context, userID uuid.UUID) (interview.Result, error) {
	return s.guarded(ctx, userID, func(f *interview.Flow) (interview.Result, error) { return f.CompleteRatings(ctx) })
}

func (s *interviewService) Rate(ctx context.Context, userID uuid.UUID, dimension string, value int) (interview.Snapshot, error) {
	conv, err := s.registry.Get(userID)
	if err != nil {
		return interview.Snapshot{}, err
	}
	return conv.Flow.Rate(dimension, value)
}
