package interview

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/undercurrent-backend/internal/domain"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

type VoicePreferenceRepo interface {
	GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.VoicePreference, error)
	Upsert(dbc dbctx.Context, userID uuid.UUID, voiceID string) error
}

type voicePreferenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVoicePreferenceRepo(db *gorm.DB, baseLog *logger.Logger) VoicePreferenceRepo {
	return &voicePreferenceRepo{db: db, log: baseLog.With("repo", "VoicePreferenceRepo")}
}

func (r *voicePreferenceRepo) GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.VoicePreference, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if userID == uuid.Nil {
		return nil, nil
	}
	var row types.VoicePreference
	if err := t.WithContext(dbc.Ctx).Where("user_id = ?", userID).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.UserID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *voicePreferenceRepo) Upsert(dbc dbctx.Context, userID uuid.UUID, voiceID string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if userID == uuid.Nil {
		return nil
	}
	row := &types.VoicePreference{UserID: userID, VoiceID: voiceID, UpdatedAt: time.Now().UTC()}
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"voice_id", "updated_at"}),
		}).
		Create(row).Error
}
