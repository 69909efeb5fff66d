package domain

import (
	"github.com/google/uuid"
	"github.com/yungbote/undercurrent-backend/internal/domain/interview"
	"github.com/yungbote/undercurrent-backend/internal/domain/user"
)

type (
	User = user.User

	Session         = interview.Session
	SessionPatch    = interview.SessionPatch
	Answer          = interview.Answer
	VoicePreference = interview.VoicePreference

	OdysseyPaths   = interview.OdysseyPaths
	OdysseyRatings = interview.OdysseyRatings
	CareerCanvas   = interview.CareerCanvas
	NextStep       = interview.NextStep
	Synthesis      = interview.Synthesis
)

func NewSession(userID uuid.UUID) *Session { return interview.NewSession(userID) }
