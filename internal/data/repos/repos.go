package repos

import (
	"github.com/yungbote/undercurrent-backend/internal/data/repos/interview"
	"github.com/yungbote/undercurrent-backend/internal/data/repos/user"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type UserRepo = user.UserRepo

type SessionRepo = interview.SessionRepo
type AnswerRepo = interview.AnswerRepo
type VoicePreferenceRepo = interview.VoicePreferenceRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return user.NewUserRepo(db, baseLog)
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return interview.NewSessionRepo(db, baseLog)
}

func NewAnswerRepo(db *gorm.DB, baseLog *logger.Logger) AnswerRepo {
	return interview.NewAnswerRepo(db, baseLog)
}

func NewVoicePreferenceRepo(db *gorm.DB, baseLog *logger.Logger) VoicePreferenceRepo {
	return interview.NewVoicePreferenceRepo(db, baseLog)
}
