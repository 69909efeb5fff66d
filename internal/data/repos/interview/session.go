package interview

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/undercurrent-backend/internal/domain"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

type SessionRepo interface {
	GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.Session, error)
	GetOrCreate(dbc dbctx.Context, userID uuid.UUID) (*types.Session, error)
	Update(dbc dbctx.Context, userID uuid.UUID, patch types.SessionPatch) error
	Reset(dbc dbctx.Context, userID uuid.UUID) error
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.Session, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if userID == uuid.Nil {
		return nil, nil
	}
	var row types.Session
	if err := t.WithContext(dbc.Ctx).Where("user_id = ?", userID).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// GetOrCreate inserts the initial session if none exists. Concurrent callers
// converge on the same row through the unique user_id index.
func (r *sessionRepo) GetOrCreate(dbc dbctx.Context, userID uuid.UUID) (*types.Session, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if userID == uuid.Nil {
		return nil, fmt.Errorf("get or create session: missing user id")
	}
	existing, err := r.GetByUserID(dbctx.Context{Ctx: dbc.Ctx, Tx: t}, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	row := types.NewSession(userID)
	if err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	created, err := r.GetByUserID(dbctx.Context{Ctx: dbc.Ctx, Tx: t}, userID)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("get or create session: row missing after insert")
	}
	return created, nil
}

func (r *sessionRepo) Update(dbc dbctx.Context, userID uuid.UUID, patch types.SessionPatch) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if userID == uuid.Nil || patch.IsEmpty() {
		return nil
	}
	updates := patchColumns(patch)
	updates["updated_at"] = time.Now().UTC()
	return t.WithContext(dbc.Ctx).
		Model(&types.Session{}).
		Where("user_id = ?", userID).
		Updates(updates).Error
}

func patchColumns(p types.SessionPatch) map[string]interface{} {
	out := map[string]interface{}{}
	if p.CurrentQuestionID != nil {
		out["current_question_id"] = *p.CurrentQuestionID
	}
	if p.CompletedSections != nil {
		out["completed_sections"] = datatypes.NewJSONType(*p.CompletedSections)
	}
	if p.OdysseyPaths != nil {
		out["odyssey_paths"] = datatypes.NewJSONType(*p.OdysseyPaths)
	}
	if p.OdysseyRatings != nil {
		out["odyssey_ratings"] = datatypes.NewJSONType(*p.OdysseyRatings)
	}
	if p.CareerCanvas != nil {
		out["career_canvas"] = datatypes.NewJSONType(*p.CareerCanvas)
	}
	if p.NextSteps != nil {
		out["next_steps"] = datatypes.NewJSONType(*p.NextSteps)
	}
	if p.Synthesis != nil {
		out["synthesis"] = datatypes.NewJSONType(*p.Synthesis)
	}
	if p.IsComplete != nil {
		out["is_complete"] = *p.IsComplete
	}
	if p.EmailSent != nil {
		out["email_sent"] = *p.EmailSent
	}
	if p.EmailSentAt != nil {
		out["email_sent_at"] = *p.EmailSentAt
	}
	return out
}

// Reset deletes every answer and returns the session to its initial state.
func (r *sessionRepo) Reset(dbc dbctx.Context, userID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		var row types.Session
		if err := tx.Where("user_id = ?", userID).Limit(1).Find(&row).Error; err != nil {
			return err
		}
		if row.ID == uuid.Nil {
			return nil
		}
		if err := tx.Where("session_id = ?", row.ID).Delete(&types.Answer{}).Error; err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
		fresh := types.NewSession(userID)
		return tx.Model(&types.Session{}).
			Where("id = ?", row.ID).
			Updates(map[string]interface{}{
				"current_question_id": 1,
				"completed_sections":  fresh.CompletedSections,
				"odyssey_paths":       fresh.OdysseyPaths,
				"odyssey_ratings":     fresh.OdysseyRatings,
				"career_canvas":       fresh.CareerCanvas,
				"next_steps":          fresh.NextSteps,
				"synthesis":           fresh.Synthesis,
				"is_complete":         false,
				"email_sent":          false,
				"email_sent_at":       gorm.Expr("NULL"),
				"updated_at":          time.Now().UTC(),
			}).Error
	})
}
