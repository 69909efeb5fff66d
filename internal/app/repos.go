package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/undercurrent-backend/internal/data/repos"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

type Repos struct {
	User            repos.UserRepo
	Session         repos.SessionRepo
	Answer          repos.AnswerRepo
	VoicePreference repos.VoicePreferenceRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:            repos.NewUserRepo(db, log),
		Session:         repos.NewSessionRepo(db, log),
		Answer:          repos.NewAnswerRepo(db, log),
		VoicePreference: repos.NewVoicePreferenceRepo(db, log),
	}
}
