package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	"github.com/yungbote/undercurrent-backend/internal/data/repos"
	types "github.com/yungbote/undercurrent-backend/internal/domain"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"github.com/yungbote/undercurrent-backend/internal/platform/pointers"
	"github.com/yungbote/undercurrent-backend/internal/platform/sendgrid"
)

var (
	ErrEmailUnavailable = errors.New("email delivery not configured")
	ErrEmailDelivery    = errors.New("email delivery failed")
)

type EmailResult struct {
	Success  bool     `json:"success"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type EmailService interface {
	SendReport(ctx context.Context, userID uuid.UUID) (*EmailResult, error)
}

type emailService struct {
	log      *logger.Logger
	cat      *catalog.Catalog
	mailer   sendgrid.Client
	users    repos.UserRepo
	sessions repos.SessionRepo
	canvas   CanvasFlusher
	now      func() time.Time
}

func NewEmailService(
	log *logger.Logger,
	cat *catalog.Catalog,
	mailer sendgrid.Client,
	users repos.UserRepo,
	sessions repos.SessionRepo,
	canvas CanvasFlusher,
) EmailService {
	return &emailService{
		log:      log.With("service", "EmailService"),
		cat:      cat,
		mailer:   mailer,
		users:    users,
		sessions: sessions,
		canvas:   canvas,
		now:      time.Now,
	}
}

// SendReport mails the rendered report to the user's address on file. A
// delivery failure leaves the session untouched so the call can be retried.
func (s *emailService) SendReport(ctx context.Context, userID uuid.UUID) (*EmailResult, error) {
	if s.canvas != nil {
		if err := s.canvas.Flush(ctx, userID); err != nil {
			s.log.Warn("Canvas flush before email failed", "error", err)
		}
	}
	dbc := dbctx.New(ctx)
	user, err := s.users.GetByID(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil || strings.TrimSpace(user.Email) == "" {
		return &EmailResult{Success: false, Reason: "No email on file"}, nil
	}
	if s.mailer == nil {
		return nil, ErrEmailUnavailable
	}
	sess, err := s.sessions.GetOrCreate(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	report, err := RenderReport(s.cat, ReportInput{
		Name:           user.Name,
		Synthesis:      sess.Synthesis.Data(),
		CareerCanvas:   sess.CareerCanvas.Data(),
		NextSteps:      sess.NextSteps.Data(),
		OdysseyPaths:   sess.OdysseyPaths.Data(),
		OdysseyRatings: sess.OdysseyRatings.Data(),
	})
	if err != nil {
		return nil, err
	}
	res, err := s.mailer.Send(ctx, sendgrid.SendEmailRequest{
		To:         []sendgrid.EmailAddress{{Email: user.Email, Name: user.Name}},
		Subject:    report.Subject,
		Text:       report.Text,
		HTML:       report.HTML,
		Categories: []string{"career_report"},
		CustomArgs: map[string]string{"session_id": sess.ID.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}
	s.log.Info("Report emailed", "user_id", userID, "message_id", res.MessageID)

	out := &EmailResult{Success: true}
	patch := types.SessionPatch{EmailSent: pointers.Bool(true)}
	if sess.EmailSentAt == nil {
		at := s.now().UTC()
		patch.EmailSentAt = &at
	}
	if err := s.sessions.Update(dbc, userID, patch); err != nil {
		s.log.Warn("Recording email delivery failed", "error", err)
		out.Warnings = append(out.Warnings, "delivery could not be recorded")
	}
	return out, nil
}
