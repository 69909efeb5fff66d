package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeSynth struct {
	mu      sync.Mutex
	audio   []byte
	err     error
	calls   []string
	voices  []string
	started chan struct{}
	release chan struct{}
}

func (s *fakeSynth) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.voices = append(s.voices, voiceID)
	started, release := s.started, s.release
	audio, err := s.audio, s.err
	s.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return audio, err
}

type fakeTranscriber struct {
	text string
	err  error
	mime string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	f.mime = mimeType
	return f.text, f.err
}

func newController(synth Synthesizer, tr Transcriber, deferred bool) *Controller {
	return NewController(Config{
		Synthesizer:         synth,
		Transcriber:         tr,
		Voice:               func(context.Context) string { return "rachel-id" },
		DeferFirstUtterance: deferred,
	})
}

func TestSpeakPlaybackEnded(t *testing.T) {
	synth := &fakeSynth{audio: []byte("mp3")}
	c := newController(synth, nil, false)
	ctx := context.Background()

	if err := c.Speak(ctx, "Tell me about where you are."); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != StateSpeaking || snap.ClipID == nil {
		t.Fatalf("after Speak: %+v", snap)
	}
	if synth.voices[0] != "rachel-id" {
		t.Fatalf("voice=%q want resolved default", synth.voices[0])
	}
	clip, ok := c.Clip()
	if !ok || string(clip.Audio) != "mp3" || clip.MimeType != "audio/mpeg" {
		t.Fatalf("Clip: %+v ok=%v", clip, ok)
	}
	if c.PlaybackEnded(clip.ID) != true || c.State() != StateIdle {
		t.Fatalf("PlaybackEnded did not return to idle")
	}
	if _, ok := c.Clip(); ok {
		t.Fatalf("clip still reported after playback ended")
	}
}

func TestPlaybackEndedIgnoresStaleClip(t *testing.T) {
	c := newController(&fakeSynth{audio: []byte("a")}, nil, false)
	ctx := context.Background()
	_ = c.Speak(ctx, "first")
	first, _ := c.Clip()
	_ = c.Speak(ctx, "second")
	if c.PlaybackEnded(first.ID) {
		t.Fatalf("stale clip ended current playback")
	}
	if c.State() != StateSpeaking {
		t.Fatalf("state=%s want speaking", c.State())
	}
}

func TestSpeakWithoutAudioFallsBackToIdle(t *testing.T) {
	tests := []struct {
		name  string
		synth Synthesizer
	}{
		{"nil audio", &fakeSynth{}},
		{"provider error", &fakeSynth{err: errors.New("quota exceeded")}},
		{"disabled", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newController(tc.synth, nil, false)
			err := c.Speak(context.Background(), "hello")
			if !errors.Is(err, ErrNoAudio) {
				t.Fatalf("Speak: err=%v want ErrNoAudio", err)
			}
			if c.State() != StateIdle {
				t.Fatalf("state=%s want idle", c.State())
			}
		})
	}
}

func TestStopFromSpeakingAndIdle(t *testing.T) {
	c := newController(&fakeSynth{audio: []byte("a")}, nil, false)
	ctx := context.Background()

	snap, err := c.Stop(ctx)
	if err != nil || snap.State != StateIdle {
		t.Fatalf("Stop from idle: %+v err=%v", snap, err)
	}
	_ = c.Speak(ctx, "hello")
	snap, err = c.Stop(ctx)
	if err != nil || snap.State != StateIdle || snap.ClipID != nil {
		t.Fatalf("Stop from speaking: %+v err=%v", snap, err)
	}
	if _, ok := c.Clip(); ok {
		t.Fatalf("audio still reported as playing")
	}
}

func TestStopDuringThinkingIsNoop(t *testing.T) {
	synth := &fakeSynth{audio: []byte("a"), started: make(chan struct{}, 1), release: make(chan struct{})}
	c := newController(synth, nil, false)
	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- c.Speak(ctx, "hello") }()
	<-synth.started

	snap, err := c.Stop(ctx)
	if err != nil || snap.State != StateThinking {
		t.Fatalf("Stop while thinking: %+v err=%v", snap, err)
	}
	if err := c.StartRecording(); !errors.Is(err, ErrBusy) {
		t.Fatalf("StartRecording while thinking: err=%v want ErrBusy", err)
	}
	if err := c.Speak(ctx, "again"); !errors.Is(err, ErrBusy) {
		t.Fatalf("Speak while thinking: err=%v want ErrBusy", err)
	}
	close(synth.release)
	if err := <-done; err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if c.State() != StateSpeaking {
		t.Fatalf("state=%s want speaking", c.State())
	}
}

func TestRecordingStopsPlaybackAndTranscribes(t *testing.T) {
	tr := &fakeTranscriber{text: " I am a product manager "}
	var got string
	var order []State
	c := NewController(Config{
		Synthesizer: &fakeSynth{audio: []byte("a")},
		Transcriber: tr,
	})
	c.onTranscript = func(ctx context.Context, text string) {
		got = text
		order = append(order, c.State())
	}
	ctx := context.Background()
	_ = c.Speak(ctx, "question")

	if err := c.StartRecording(); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if c.State() != StateListening {
		t.Fatalf("state=%s want listening", c.State())
	}
	if _, ok := c.Clip(); ok {
		t.Fatalf("playback still active while listening")
	}
	if err := c.Speak(ctx, "interrupt"); !errors.Is(err, ErrBusy) {
		t.Fatalf("Speak while listening: err=%v want ErrBusy", err)
	}

	text, err := c.StopRecording(ctx, Recording{Audio: []byte("webm"), MimeType: "audio/webm"})
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if text != "I am a product manager" || got != text || tr.mime != "audio/webm" {
		t.Fatalf("transcript=%q callback=%q mime=%q", text, got, tr.mime)
	}
	if len(order) != 1 || order[0] != StateThinking {
		t.Fatalf("callback should fire before returning to idle, saw %v", order)
	}
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle", c.State())
	}
}

func TestTranscriptionFailureReportsError(t *testing.T) {
	var cbErr error
	c := NewController(Config{
		Transcriber: &fakeTranscriber{err: errors.New("stt down")},
		OnError:     func(ctx context.Context, err error) { cbErr = err },
	})
	ctx := context.Background()
	_ = c.StartRecording()
	if _, err := c.StopRecording(ctx, Recording{Audio: []byte("x")}); err == nil {
		t.Fatalf("StopRecording: expected error")
	}
	if cbErr == nil || c.State() != StateIdle {
		t.Fatalf("error callback=%v state=%s", cbErr, c.State())
	}

	_ = c.StartRecording()
	snap, err := c.Stop(ctx)
	if !errors.Is(err, ErrNoRecording) || snap.State != StateIdle {
		t.Fatalf("Stop from listening without audio: %+v err=%v", snap, err)
	}
	if _, err := c.StopRecording(ctx, Recording{Audio: []byte("x")}); !errors.Is(err, ErrNotListening) {
		t.Fatalf("StopRecording from idle: err=%v want ErrNotListening", err)
	}
}

func TestDeferredFirstUtterance(t *testing.T) {
	synth := &fakeSynth{audio: []byte("a")}
	c := newController(synth, nil, true)
	ctx := context.Background()

	if err := c.Speak(ctx, "Welcome to Undercurrent."); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != StateIdle || !snap.Locked || !snap.Deferred {
		t.Fatalf("deferred snapshot %+v", snap)
	}
	if len(synth.calls) != 0 {
		t.Fatalf("synthesized before unlock")
	}
	if err := c.Speak(ctx, "Second line."); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if err := c.Unlock(ctx); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	clip, ok := c.Clip()
	if !ok || clip.Text != "Second line." {
		t.Fatalf("unlock should play the latest queued utterance, got %+v", clip)
	}
	if c.Snapshot().Locked {
		t.Fatalf("still locked after Unlock")
	}
	if err := c.Unlock(ctx); err != nil {
		t.Fatalf("Unlock twice: %v", err)
	}
}

func TestResetDiscardsInFlightSynthesis(t *testing.T) {
	synth := &fakeSynth{audio: []byte("a"), started: make(chan struct{}, 1), release: make(chan struct{})}
	c := newController(synth, nil, false)
	done := make(chan error, 1)
	go func() { done <- c.Speak(context.Background(), "hello") }()
	<-synth.started
	c.Reset()
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle after reset", c.State())
	}
	close(synth.release)
	if err := <-done; !errors.Is(err, ErrNoAudio) {
		t.Fatalf("Speak: err=%v want ErrNoAudio", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("stale synthesis changed state to %s", c.State())
	}
}

func TestSpeakRejectsEmptyText(t *testing.T) {
	c := newController(&fakeSynth{audio: []byte("a")}, nil, false)
	if err := c.Speak(context.Background(), "  "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("Speak: err=%v want ErrEmptyText", err)
	}
}
