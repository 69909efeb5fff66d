package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	types "github.com/yungbote/undercurrent-backend/internal/domain"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
)

func TestRenderReportOmitsEmptySections(t *testing.T) {
	out, err := RenderReport(catalog.Default(), ReportInput{
		Synthesis: types.Synthesis{KeyInsight: "You teach by building."},
	})
	if err != nil {
		t.Fatalf("RenderReport: %v", err)
	}
	if out.Subject != "Your Career Discovery Report" {
		t.Fatalf("subject=%q", out.Subject)
	}
	for _, absent := range []string{"The Hedgehog Overlap", "Energy Patterns", "Three Odyssey Paths", "Career Canvas</h2>", "Your Next Steps"} {
		if strings.Contains(out.HTML, absent) {
			t.Fatalf("html contains empty section %q", absent)
		}
	}
	if !strings.Contains(out.HTML, "Key Insight") || !strings.Contains(out.HTML, "Hi there,") {
		t.Fatalf("html missing content:\n%s", out.HTML)
	}
	want := "Your Career Discovery Report\n\nHi there,\n\nYou teach by building.\n\n" + reportQuote + " Archilochus"
	if out.Text != want {
		t.Fatalf("text=%q", out.Text)
	}
}

func TestRenderReportFullSections(t *testing.T) {
	out, err := RenderReport(catalog.Default(), ReportInput{
		Name:           "Avery",
		Synthesis:      types.Synthesis{HedgehogOverlap: "Craft <and> care", EnergyPatternsDraining: "Status meetings"},
		CareerCanvas:   types.CareerCanvas{"key_resources": "Design", "cost_structure": "  "},
		NextSteps:      []types.NextStep{{Action: "Coffee chat", Deadline: "Friday"}, {Action: " "}, {Action: "Ship side project"}},
		OdysseyPaths:   types.OdysseyPaths{"path_a": "Lead design", "path_c": ""},
		OdysseyRatings: types.OdysseyRatings{"path_a": {"engagement": 4, "energy": 5}},
	})
	if err != nil {
		t.Fatalf("RenderReport: %v", err)
	}
	if out.Subject != "Avery's Career Discovery Report" {
		t.Fatalf("subject=%q", out.Subject)
	}
	for _, want := range []string{
		"Craft &lt;and&gt; care",
		"Drains Your Energy",
		"Path A — The Tweaked Path",
		"Engagement: 4/5",
		"Energy: 5/5",
		"KEY RESOURCES",
		"1. Coffee chat",
		"By: Friday",
		"2. Ship side project",
		"Career Discovery Interview",
	} {
		if !strings.Contains(out.HTML, want) {
			t.Fatalf("html missing %q", want)
		}
	}
	for _, absent := range []string{"The Wildcard", "COST STRUCTURE", "Gives You Energy", "Confidence:"} {
		if strings.Contains(out.HTML, absent) {
			t.Fatalf("html contains %q", absent)
		}
	}
}

func TestSendReportNoEmail(t *testing.T) {
	e := newEnv(t)
	u := e.seedUser(t, "", "")
	mailer := &fakeMailer{}
	svc := NewEmailService(e.log, e.cat, mailer, e.users, e.sessions, nil)
	res, err := svc.SendReport(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("SendReport: %v", err)
	}
	if res.Success || res.Reason != "No email on file" || len(mailer.sent) != 0 {
		t.Fatalf("res=%+v sent=%d", res, len(mailer.sent))
	}
}

func TestSendReportMarksSentOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.seedUser(t, "avery@example.com", "Avery")
	syn := types.Synthesis{KeyInsight: "You teach by building."}
	e.session(t, u.ID)
	if err := e.sessions.Update(dbctx.New(ctx), u.ID, types.SessionPatch{Synthesis: &syn}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	mailer := &fakeMailer{}
	svc := NewEmailService(e.log, e.cat, mailer, e.users, e.sessions, nil).(*emailService)
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return first }

	res, err := svc.SendReport(ctx, u.ID)
	if err != nil || !res.Success {
		t.Fatalf("SendReport: res=%+v err=%v", res, err)
	}
	req := mailer.sent[0]
	if req.To[0].Email != "avery@example.com" || req.Subject != "Avery's Career Discovery Report" || !strings.Contains(req.Text, "You teach by building.") {
		t.Fatalf("request=%+v", req)
	}

	svc.now = func() time.Time { return first.Add(time.Hour) }
	if _, err := svc.SendReport(ctx, u.ID); err != nil {
		t.Fatalf("SendReport again: %v", err)
	}
	sess := e.session(t, u.ID)
	if !sess.EmailSent || sess.EmailSentAt == nil || !sess.EmailSentAt.Equal(first) {
		t.Fatalf("email_sent=%v at=%v", sess.EmailSent, sess.EmailSentAt)
	}
	if len(mailer.sent) != 2 {
		t.Fatalf("sent=%d", len(mailer.sent))
	}
}

func TestSendReportFailureIsRetryable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.seedUser(t, "retry@example.com", "")
	e.session(t, u.ID)
	mailer := &fakeMailer{err: errors.New("503")}
	svc := NewEmailService(e.log, e.cat, mailer, e.users, e.sessions, nil)
	if _, err := svc.SendReport(ctx, u.ID); err == nil {
		t.Fatalf("expected error")
	}
	if e.session(t, u.ID).EmailSent {
		t.Fatalf("email flagged sent after failure")
	}
	svc = NewEmailService(e.log, e.cat, nil, e.users, e.sessions, nil)
	if _, err := svc.SendReport(ctx, u.ID); !errors.Is(err, ErrEmailUnavailable) {
		t.Fatalf("err=%v", err)
	}
}
