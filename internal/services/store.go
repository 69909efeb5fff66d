package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/undercurrent-backend/internal/data/repos"
	types "github.com/yungbote/undercurrent-backend/internal/domain"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
)

// InterviewStore adapts the session and answer repos to interview.Store.
type InterviewStore struct {
	Sessions repos.SessionRepo
	Answers  repos.AnswerRepo
}

func (s *InterviewStore) GetOrCreate(ctx context.Context, userID uuid.UUID) (*types.Session, error) {
	return s.Sessions.GetOrCreate(dbctx.New(ctx), userID)
}

func (s *InterviewStore) Update(ctx context.Context, userID uuid.UUID, patch types.SessionPatch) error {
	return s.Sessions.Update(dbctx.New(ctx), userID, patch)
}

func (s *InterviewStore) UpsertAnswer(ctx context.Context, sessionID uuid.UUID, questionID int, text string) error {
	return s.Answers.Upsert(dbctx.New(ctx), sessionID, questionID, text)
}

func (s *InterviewStore) AmendFollowUp(ctx context.Context, sessionID uuid.UUID, questionID int, reply string) error {
	return s.Answers.AmendFollowUp(dbctx.New(ctx), sessionID, questionID, reply)
}

func (s *InterviewStore) SetAIResponse(ctx context.Context, sessionID uuid.UUID, questionID int, text string) error {
	return s.Answers.SetAIResponse(dbctx.New(ctx), sessionID, questionID, text)
}

func (s *InterviewStore) ListAnswers(ctx context.Context, sessionID uuid.UUID) ([]*types.Answer, error) {
	return s.Answers.ListBySession(dbctx.New(ctx), sessionID)
}
