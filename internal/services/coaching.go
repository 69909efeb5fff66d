package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	"github.com/yungbote/undercurrent-backend/internal/interview"
	"github.com/yungbote/undercurrent-backend/internal/observability"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"github.com/yungbote/undercurrent-backend/internal/platform/openai"
)

var ErrCoachUnavailable = errors.New("coaching model not configured")

// CoachingService is the LLM-backed interview.Coach.
type CoachingService interface {
	Respond(ctx context.Context, req interview.CoachingRequest) (string, error)
}

type coachingService struct {
	log *logger.Logger
	cat *catalog.Catalog
	llm openai.Client
}

func NewCoachingService(log *logger.Logger, cat *catalog.Catalog, llm openai.Client) CoachingService {
	return &coachingService{log: log.With("service", "CoachingService"), cat: cat, llm: llm}
}

func (s *coachingService) Respond(ctx context.Context, req interview.CoachingRequest) (string, error) {
	if s == nil || s.llm == nil {
		observability.Current().IncCoachingFallback("disabled")
		return "", ErrCoachUnavailable
	}
	system := coachSystemPrompt + answerContext(s.cat, req.History)
	reply, err := s.llm.GenerateText(ctx, system, coachUserPrompt(req))
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		observability.Current().IncCoachingFallback(reason)
		return "", fmt.Errorf("coaching response: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		observability.Current().IncCoachingFallback("empty")
	}
	return reply, nil
}
