package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/undercurrent-backend/internal/platform/ctxutil"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"github.com/yungbote/undercurrent-backend/internal/voice"
)

func TestTranscriptionRouting(t *testing.T) {
	tests := []struct {
		name        string
		provider    STTProvider
		supports    bool
		speechErr   error
		wantText    string
		wantSpeech  int
		wantWhisper int
	}{
		{name: "auto supported", provider: STTAuto, supports: true, wantText: "gcp", wantSpeech: 1},
		{name: "auto unsupported", provider: STTAuto, wantText: "whisper", wantWhisper: 1},
		{name: "auto falls back", provider: STTAuto, supports: true, speechErr: errors.New("unavailable"), wantText: "whisper", wantSpeech: 1, wantWhisper: 1},
		{name: "forced openai", provider: STTOpenAI, supports: true, wantText: "whisper", wantWhisper: 1},
		{name: "forced gcp", provider: STTGCP, wantText: "gcp", wantSpeech: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sp := &fakeSpeech{supports: tc.supports, text: "gcp", err: tc.speechErr}
			wh := &fakeWhisper{text: "whisper"}
			svc := NewTranscriptionService(logger.Nop(), TranscriptionConfig{Provider: tc.provider, Speech: sp, Whisper: wh})
			got, err := svc.Transcribe(context.Background(), []byte("audio"), "audio/webm")
			if err != nil {
				t.Fatalf("Transcribe: %v", err)
			}
			if got != tc.wantText || sp.calls != tc.wantSpeech || wh.calls != tc.wantWhisper {
				t.Fatalf("text=%q speech=%d whisper=%d", got, sp.calls, wh.calls)
			}
		})
	}
}

func TestTranscriptionDefaultsAndErrors(t *testing.T) {
	wh := &fakeWhisper{text: "hi"}
	svc := NewTranscriptionService(logger.Nop(), TranscriptionConfig{Whisper: wh})
	if _, err := svc.Transcribe(context.Background(), []byte("a"), ""); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if wh.mime != "audio/m4a" {
		t.Fatalf("default mime=%q", wh.mime)
	}
	if _, err := svc.Transcribe(context.Background(), nil, "audio/webm"); !errors.Is(err, voice.ErrNoRecording) {
		t.Fatalf("err=%v", err)
	}
	none := NewTranscriptionService(logger.Nop(), TranscriptionConfig{})
	if none.Enabled() {
		t.Fatalf("empty service reports enabled")
	}
	if _, err := none.Transcribe(context.Background(), []byte("a"), "audio/webm"); !errors.Is(err, ErrTranscriptionUnavailable) {
		t.Fatalf("err=%v", err)
	}
}

func TestTranscriptionArchivesRecording(t *testing.T) {
	bucket := &fakeBucket{}
	svc := NewTranscriptionService(logger.Nop(), TranscriptionConfig{Whisper: &fakeWhisper{text: "ok"}, Archive: bucket}).(*transcriptionService)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	userID := uuid.New()
	ctx := ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: userID})

	if _, err := svc.Transcribe(ctx, []byte("opus"), "audio/webm;codecs=opus"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	svc.Wait()
	if len(bucket.keys) != 1 {
		t.Fatalf("uploads=%v", bucket.keys)
	}
	if want := "voice/" + userID.String() + "/1700000000000.webm"; bucket.keys[0] != want {
		t.Fatalf("key=%q want %q", bucket.keys[0], want)
	}
	if bucket.types[0] != "audio/webm" || string(bucket.uploads[bucket.keys[0]]) != "opus" {
		t.Fatalf("type=%q data=%q", bucket.types[0], bucket.uploads[bucket.keys[0]])
	}
	if ParseSTTProvider(" GCP ") != STTGCP || ParseSTTProvider("x") != STTAuto {
		t.Fatalf("ParseSTTProvider mismatch")
	}
}

func TestPurgeRecordings(t *testing.T) {
	bucket := &fakeBucket{}
	svc := NewTranscriptionService(logger.Nop(), TranscriptionConfig{Whisper: &fakeWhisper{text: "ok"}, Archive: bucket})
	userID := uuid.New()
	ctx := ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: userID})

	if _, err := svc.Transcribe(ctx, []byte("opus"), "audio/webm"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	// No Wait: the purge itself must let the upload land first.
	if err := svc.PurgeRecordings(context.Background(), userID); err != nil {
		t.Fatalf("PurgeRecordings: %v", err)
	}
	if len(bucket.uploads) != 0 {
		t.Fatalf("left behind: %v", bucket.uploads)
	}
	if want := "voice/" + userID.String() + "/"; len(bucket.purged) != 1 || bucket.purged[0] != want {
		t.Fatalf("purged=%v want %q", bucket.purged, want)
	}

	if err := svc.PurgeRecordings(context.Background(), uuid.Nil); err != nil || len(bucket.purged) != 1 {
		t.Fatalf("nil user: err=%v purged=%v", err, bucket.purged)
	}
	bucket.purgeErr = errors.New("gcs down")
	if err := svc.PurgeRecordings(context.Background(), userID); !errors.Is(err, bucket.purgeErr) {
		t.Fatalf("err=%v", err)
	}
	if err := NewTranscriptionService(logger.Nop(), TranscriptionConfig{}).PurgeRecordings(context.Background(), userID); err != nil {
		t.Fatalf("no archive: %v", err)
	}
}
