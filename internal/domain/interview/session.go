package interview

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OdysseyPaths maps a path id (path_a, path_b, path_c) to the user's description.
type OdysseyPaths map[string]string

// OdysseyRatings maps a path id to dimension scores. 0 means unrated.
type OdysseyRatings map[string]map[string]int

// CareerCanvas maps a canvas block id to free text.
type CareerCanvas map[string]string

type NextStep struct {
	Action   string `json:"action"`
	Deadline string `json:"deadline"`
}

// Synthesis is the six-field narrative report. Empty fields are omitted when rendered.
type Synthesis struct {
	HedgehogOverlap        string `json:"hedgehog_overlap,omitempty"`
	ZoneOfGenius           string `json:"zone_of_genius,omitempty"`
	IkigaiSweetSpot        string `json:"ikigai_sweet_spot,omitempty"`
	EnergyPatternsPositive string `json:"energy_patterns_positive,omitempty"`
	EnergyPatternsDraining string `json:"energy_patterns_draining,omitempty"`
	KeyInsight             string `json:"key_insight,omitempty"`
}

func (s Synthesis) IsZero() bool {
	return s == Synthesis{}
}

// Session is the durable per-user interview record. One row per user.
type Session struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`

	CurrentQuestionID int `gorm:"column:current_question_id;not null;default:1" json:"current_question_id"`

	CompletedSections datatypes.JSONType[[]int]          `gorm:"column:completed_sections;type:jsonb" json:"completed_sections"`
	OdysseyPaths      datatypes.JSONType[OdysseyPaths]   `gorm:"column:odyssey_paths;type:jsonb" json:"odyssey_paths"`
	OdysseyRatings    datatypes.JSONType[OdysseyRatings] `gorm:"column:odyssey_ratings;type:jsonb" json:"odyssey_ratings"`
	CareerCanvas      datatypes.JSONType[CareerCanvas]   `gorm:"column:career_canvas;type:jsonb" json:"career_canvas"`
	NextSteps         datatypes.JSONType[[]NextStep]     `gorm:"column:next_steps;type:jsonb" json:"next_steps"`
	Synthesis         datatypes.JSONType[Synthesis]      `gorm:"column:synthesis;type:jsonb" json:"synthesis"`

	IsComplete  bool       `gorm:"column:is_complete;not null;default:false" json:"is_complete"`
	EmailSent   bool       `gorm:"column:email_sent;not null;default:false" json:"email_sent"`
	EmailSentAt *time.Time `gorm:"column:email_sent_at" json:"email_sent_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (Session) TableName() string { return "interview_session" }

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CurrentQuestionID == 0 {
		s.CurrentQuestionID = 1
	}
	return nil
}

// NewSession returns the initial state for a user.
func NewSession(userID uuid.UUID) *Session {
	return &Session{
		ID:                uuid.New(),
		UserID:            userID,
		CurrentQuestionID: 1,
		CompletedSections: datatypes.NewJSONType([]int{}),
		OdysseyPaths:      datatypes.NewJSONType(OdysseyPaths{}),
		OdysseyRatings:    datatypes.NewJSONType(OdysseyRatings{}),
		CareerCanvas:      datatypes.NewJSONType(CareerCanvas{}),
		NextSteps:         datatypes.NewJSONType([]NextStep{}),
		Synthesis:         datatypes.NewJSONType(Synthesis{}),
	}
}

// SessionPatch is a partial update. Nil fields are left untouched.
type SessionPatch struct {
	CurrentQuestionID *int
	CompletedSections *[]int
	OdysseyPaths      *OdysseyPaths
	OdysseyRatings    *OdysseyRatings
	CareerCanvas      *CareerCanvas
	NextSteps         *[]NextStep
	Synthesis         *Synthesis
	IsComplete        *bool
	EmailSent         *bool
	EmailSentAt       *time.Time
}

func (p SessionPatch) IsEmpty() bool {
	return p == SessionPatch{}
}
