package interview

import (
	"time"

	"github.com/google/uuid"
)

// VoicePreference records the user's chosen TTS voice. The stored id may
// outlive the catalog; readers resolve it against the current voice list.
type VoicePreference struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	VoiceID   string    `gorm:"column:voice_id;not null" json:"voice_id"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (VoicePreference) TableName() string { return "voice_preference" }
