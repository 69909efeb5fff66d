package interview

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/undercurrent-backend/internal/domain"
	apperr "github.com/yungbote/undercurrent-backend/internal/pkg/errors"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

type AnswerRepo interface {
	Upsert(dbc dbctx.Context, sessionID uuid.UUID, questionID int, text string) error
	AmendFollowUp(dbc dbctx.Context, sessionID uuid.UUID, questionID int, reply string) error
	SetAIResponse(dbc dbctx.Context, sessionID uuid.UUID, questionID int, text string) error
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.Answer, error)
}

type answerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnswerRepo(db *gorm.DB, baseLog *logger.Logger) AnswerRepo {
	return &answerRepo{db: db, log: baseLog.With("repo", "AnswerRepo")}
}

// Upsert writes the primary answer text. Replacing an answer clears the
// coaching response and follow-up reply that belonged to the old text.
func (r *answerRepo) Upsert(dbc dbctx.Context, sessionID uuid.UUID, questionID int, text string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	now := time.Now().UTC()
	row := &types.Answer{
		ID:         uuid.New(),
		SessionID:  sessionID,
		QuestionID: questionID,
		Text:       text,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}, {Name: "question_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"answer":          text,
				"follow_up_reply": "",
				"ai_response":     "",
				"updated_at":      now,
			}),
		}).
		Create(row).Error
}

func (r *answerRepo) AmendFollowUp(dbc dbctx.Context, sessionID uuid.UUID, questionID int, reply string) error {
	return r.updateColumn(dbc, sessionID, questionID, "follow_up_reply", reply)
}

func (r *answerRepo) SetAIResponse(dbc dbctx.Context, sessionID uuid.UUID, questionID int, text string) error {
	return r.updateColumn(dbc, sessionID, questionID, "ai_response", text)
}

func (r *answerRepo) updateColumn(dbc dbctx.Context, sessionID uuid.UUID, questionID int, column, value string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.Answer{}).
		Where("session_id = ? AND question_id = ?", sessionID, questionID).
		Updates(map[string]interface{}{
			column:       value,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *answerRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.Answer, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Answer
	if sessionID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("question_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
