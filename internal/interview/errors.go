package interview

import "errors"

var (
	ErrEmptyAnswer        = errors.New("answer is empty")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrNotStarted         = errors.New("interview not started")
	ErrNoActiveQuestion   = errors.New("no active question")
	ErrWrongPhase         = errors.New("operation not allowed in the current phase")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrUnknownDimension   = errors.New("unknown rating dimension")
	ErrNotAllRated        = errors.New("every dimension must be rated before continuing")
	ErrSessionUnavailable = errors.New("session store unavailable")
	ErrOdysseyNotSaved    = errors.New("odyssey results could not be saved")
	ErrAnswerNotSaved     = errors.New("answer could not be saved")
)
