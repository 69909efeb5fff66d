package interview

import (
	"context"

	"github.com/google/uuid"
	"github.com/yungbote/undercurrent-backend/internal/catalog"
	types "github.com/yungbote/undercurrent-backend/internal/domain"
)

// Store is the durable session and answer record the flow reads and writes.
type Store interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*types.Session, error)
	Update(ctx context.Context, userID uuid.UUID, patch types.SessionPatch) error
	// UpsertAnswer replaces the answer text and clears any coaching tied
	// to the previous text.
	UpsertAnswer(ctx context.Context, sessionID uuid.UUID, questionID int, text string) error
	AmendFollowUp(ctx context.Context, sessionID uuid.UUID, questionID int, reply string) error
	SetAIResponse(ctx context.Context, sessionID uuid.UUID, questionID int, text string) error
	ListAnswers(ctx context.Context, sessionID uuid.UUID) ([]*types.Answer, error)
}

// Turn is one answered main question as seen by the coach.
type Turn struct {
	QuestionID    int      `json:"question_id"`
	Frameworks    []string `json:"frameworks"`
	Answer        string   `json:"answer"`
	FollowUpReply string   `json:"follow_up_reply,omitempty"`
	CoachReply    string   `json:"coach_reply,omitempty"`
}

type CoachingRequest struct {
	Question catalog.Question
	Section  catalog.Section
	Answer   string
	History  []Turn
}

// Coach produces the short spoken reflection after a main answer.
type Coach interface {
	Respond(ctx context.Context, req CoachingRequest) (string, error)
}

// Speaker voices text for the user. A returned error is reported as a
// warning; the text itself is always returned to the caller.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}
