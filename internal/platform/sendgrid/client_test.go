package sendgrid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

func TestSendBuildsMailPayload(t *testing.T) {
	var got mailSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" || r.Header.Get("Authorization") != "Bearer sg-key" {
			t.Errorf("path=%s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("X-Message-Id", "msg-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := New(logger.Nop(), Config{
		APIKey:           "sg-key",
		BaseURL:          srv.URL,
		DefaultFromEmail: "coach@undercurrent.test",
		DefaultFromName:  "Career Discovery",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := c.Send(context.Background(), SendEmailRequest{
		To:      []EmailAddress{{Email: "avery@example.com", Name: "Avery"}},
		Subject: " Avery's Career Discovery Report ",
		Text:    "plain",
		HTML:    "<p>html</p>",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.StatusCode != http.StatusAccepted || res.MessageID != "msg-1" {
		t.Fatalf("result=%+v", res)
	}
	if got.From.Email != "coach@undercurrent.test" || got.From.Name != "Career Discovery" {
		t.Fatalf("from=%+v", got.From)
	}
	if got.Subject != "Avery's Career Discovery Report" {
		t.Fatalf("subject=%q", got.Subject)
	}
	if len(got.Content) != 2 || got.Content[0].Type != "text/plain" || got.Content[1].Type != "text/html" {
		t.Fatalf("content=%+v", got.Content)
	}
	if len(got.Personalizations) != 1 || got.Personalizations[0].To[0].Email != "avery@example.com" {
		t.Fatalf("personalizations=%+v", got.Personalizations)
	}
	if got.MailSettings != nil || got.TrackingSettings.ClickTracking.Enable || got.ReplyTo != nil {
		t.Fatalf("settings=%+v tracking=%+v reply_to=%+v", got.MailSettings, got.TrackingSettings, got.ReplyTo)
	}
}

func TestSendSandboxAndDefaultReplyTo(t *testing.T) {
	var got mailSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := New(logger.Nop(), Config{
		APIKey:           "k",
		BaseURL:          srv.URL,
		DefaultFromEmail: "f@b.c",
		DefaultReplyTo:   "hello@undercurrent.test",
		Sandbox:          true,
	})
	if _, err := c.Send(context.Background(), SendEmailRequest{To: []EmailAddress{{Email: "a@b.c"}}, Subject: "s", Text: "t"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.MailSettings == nil || !got.MailSettings.SandboxMode.Enable {
		t.Fatalf("mail_settings=%+v", got.MailSettings)
	}
	if got.ReplyTo == nil || got.ReplyTo.Email != "hello@undercurrent.test" {
		t.Fatalf("reply_to=%+v", got.ReplyTo)
	}
}

func TestSendValidation(t *testing.T) {
	c, _ := New(logger.Nop(), Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	tests := []struct {
		name string
		req  SendEmailRequest
	}{
		{"no from", SendEmailRequest{To: []EmailAddress{{Email: "a@b.c"}}, Subject: "s", Text: "t"}},
		{"no to", SendEmailRequest{From: EmailAddress{Email: "f@b.c"}, Subject: "s", Text: "t"}},
		{"no subject", SendEmailRequest{From: EmailAddress{Email: "f@b.c"}, To: []EmailAddress{{Email: "a@b.c"}}, Text: "t"}},
		{"no content", SendEmailRequest{From: EmailAddress{Email: "f@b.c"}, To: []EmailAddress{{Email: "a@b.c"}}, Subject: "s"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.Send(context.Background(), tc.req); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSendSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"The from address does not match a verified Sender Identity."}]}`))
	}))
	defer srv.Close()

	c, _ := New(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL, DefaultFromEmail: "f@b.c"})
	_, err := c.Send(context.Background(), SendEmailRequest{To: []EmailAddress{{Email: "a@b.c"}}, Subject: "s", HTML: "h"})
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusBadRequest || len(he.Errors) != 1 {
		t.Fatalf("err=%v", err)
	}
}
