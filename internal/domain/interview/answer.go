package interview

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Answer is the single slot for one question in a session. A follow-up reply
// amends the same row rather than adding one.
type Answer struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_answer_session_question,priority:1" json:"session_id"`
	QuestionID int       `gorm:"column:question_id;not null;uniqueIndex:idx_answer_session_question,priority:2" json:"question_id"`

	Text          string `gorm:"column:answer;type:text;not null" json:"answer"`
	FollowUpReply string `gorm:"column:follow_up_reply;type:text" json:"follow_up_reply,omitempty"`
	AIResponse    string `gorm:"column:ai_response;type:text" json:"ai_response,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Answer) TableName() string { return "interview_answer" }

func (a *Answer) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
