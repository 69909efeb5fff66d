package db

import (
	types "github.com/yungbote/undercurrent-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.User{},

		&types.Session{},
		&types.Answer{},
		&types.VoicePreference{},
	)
}
