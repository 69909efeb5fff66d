package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateThinking  State = "thinking"
	StateSpeaking  State = "speaking"
)

var (
	ErrBusy         = errors.New("voice controller busy")
	ErrNoAudio      = errors.New("no audio produced")
	ErrNotListening = errors.New("not recording")
	ErrNoRecording  = errors.New("recording is empty")
	ErrEmptyText    = errors.New("nothing to speak")
)

const defaultTimeout = 20 * time.Second

// Synthesizer turns text into audio. A nil slice with a nil error means the
// provider produced nothing, which is an expected outcome.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type Recording struct {
	Audio    []byte
	MimeType string
}

// Clip is the synthesized audio handed to the client for playback.
type Clip struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	VoiceID   string    `json:"voice_id"`
	MimeType  string    `json:"mime_type"`
	Audio     []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type Snapshot struct {
	State    State      `json:"state"`
	ClipID   *uuid.UUID `json:"clip_id,omitempty"`
	Locked   bool       `json:"locked"`
	Deferred bool       `json:"deferred"`
}

type Config struct {
	Synthesizer Synthesizer
	Transcriber Transcriber
	// Voice resolves the voice used when a caller does not name one.
	Voice func(ctx context.Context) string
	// DeferFirstUtterance queues speech until Unlock is called.
	DeferFirstUtterance bool
	Timeout             time.Duration
	OnTranscript        func(ctx context.Context, text string)
	OnError             func(ctx context.Context, err error)
	Log                 *logger.Logger
}

type pendingSpeech struct {
	text    string
	voiceID string
}

// Controller owns one user's speaker and microphone. Exactly one state is
// active; playback and capture never overlap.
type Controller struct {
	mu sync.Mutex

	synth        Synthesizer
	transcriber  Transcriber
	voice        func(ctx context.Context) string
	timeout      time.Duration
	onTranscript func(ctx context.Context, text string)
	onError      func(ctx context.Context, err error)
	log          *logger.Logger

	state    State
	clip     *Clip
	locked   bool
	pending  *pendingSpeech
	gen      uint64
	capStart time.Time
}

func NewController(cfg Config) *Controller {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Controller{
		synth:        cfg.Synthesizer,
		transcriber:  cfg.Transcriber,
		voice:        cfg.Voice,
		timeout:      timeout,
		onTranscript: cfg.OnTranscript,
		onError:      cfg.OnError,
		log:          log.With("service", "VoiceController"),
		state:        StateIdle,
		locked:       cfg.DeferFirstUtterance,
	}
}

// Speak voices text with the resolved voice.
func (c *Controller) Speak(ctx context.Context, text string) error {
	return c.Say(ctx, text, "")
}

// Say synthesizes text and hands the clip over for playback. Anything still
// playing is replaced. While locked the utterance is queued and the state
// stays idle.
func (c *Controller) Say(ctx context.Context, text, voiceID string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	if voiceID == "" && c.voice != nil {
		voiceID = c.voice(ctx)
	}

	c.mu.Lock()
	switch c.state {
	case StateListening, StateThinking:
		c.mu.Unlock()
		return ErrBusy
	case StateSpeaking:
		c.stopPlaybackLocked()
	}
	if c.locked {
		c.pending = &pendingSpeech{text: text, voiceID: voiceID}
		c.mu.Unlock()
		c.log.Debug("Utterance deferred until unlock", "chars", len(text))
		return nil
	}
	return c.synthesizeLocked(ctx, text, voiceID)
}

// synthesizeLocked expects c.mu held and releases it.
func (c *Controller) synthesizeLocked(ctx context.Context, text, voiceID string) error {
	if c.synth == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: speech synthesis disabled", ErrNoAudio)
	}
	c.state = StateThinking
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	audio, err := c.synth.Synthesize(sctx, text, voiceID)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// Reset while synthesizing; the result is stale.
		return ErrNoAudio
	}
	if err != nil || len(audio) == 0 {
		c.state = StateIdle
		if err != nil {
			c.log.Warn("Speech synthesis failed", "voice_id", voiceID, "error", err)
			return fmt.Errorf("%w: %v", ErrNoAudio, err)
		}
		return ErrNoAudio
	}
	c.clip = &Clip{
		ID:        uuid.New(),
		Text:      text,
		VoiceID:   voiceID,
		MimeType:  "audio/mpeg",
		Audio:     audio,
		CreatedAt: time.Now().UTC(),
	}
	c.state = StateSpeaking
	c.log.Debug("Clip ready", "clip_id", c.clip.ID, "bytes", len(audio))
	return nil
}

// Unlock is the user-initiated trigger that releases deferred speech.
func (c *Controller) Unlock(ctx context.Context) error {
	c.mu.Lock()
	c.locked = false
	p := c.pending
	c.pending = nil
	if p == nil || c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	return c.synthesizeLocked(ctx, p.text, p.voiceID)
}

// PlaybackEnded is reported by the client when a clip finishes. Reports for
// any clip other than the current one are ignored.
func (c *Controller) PlaybackEnded(clipID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSpeaking || c.clip == nil || c.clip.ID != clipID {
		return false
	}
	c.stopPlaybackLocked()
	return true
}

// Stop interrupts playback or ends capture. From idle or thinking it does
// nothing. Ending capture without audio surfaces ErrNoRecording.
func (c *Controller) Stop(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	switch c.state {
	case StateSpeaking:
		c.stopPlaybackLocked()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, nil
	case StateListening:
		c.mu.Unlock()
		_, err := c.StopRecording(ctx, Recording{})
		return c.Snapshot(), err
	default:
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, nil
	}
}

// StartRecording opens capture. Playback is stopped first; queued speech is
// dropped since the user chose to talk instead.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateThinking:
		return ErrBusy
	case StateListening:
		return nil
	case StateSpeaking:
		c.stopPlaybackLocked()
	}
	c.locked = false
	c.pending = nil
	c.state = StateListening
	c.capStart = time.Now()
	return nil
}

// StopRecording ends capture and transcribes rec. The transcript callback
// fires before the state returns to idle; on failure the error callback fires
// and the caller falls back to typed input.
func (c *Controller) StopRecording(ctx context.Context, rec Recording) (string, error) {
	c.mu.Lock()
	if c.state != StateListening {
		c.mu.Unlock()
		return "", ErrNotListening
	}
	c.state = StateThinking
	c.gen++
	gen := c.gen
	dur := time.Since(c.capStart)
	c.mu.Unlock()

	text, err := c.transcribe(ctx, rec)
	if err == nil {
		c.log.Debug("Transcribed recording", "transcript", text, "capture_ms", dur.Milliseconds())
		if c.onTranscript != nil {
			c.onTranscript(ctx, text)
		}
	} else {
		c.log.Warn("Transcription failed", "error", err)
		if c.onError != nil {
			c.onError(ctx, err)
		}
	}

	c.mu.Lock()
	if gen == c.gen {
		c.state = StateIdle
	}
	c.mu.Unlock()
	return text, err
}

func (c *Controller) transcribe(ctx context.Context, rec Recording) (string, error) {
	if len(rec.Audio) == 0 {
		return "", ErrNoRecording
	}
	if c.transcriber == nil {
		return "", errors.New("transcription disabled")
	}
	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	text, err := c.transcriber.Transcribe(tctx, rec.Audio, rec.MimeType)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty transcript")
	}
	return text, nil
}

// Reset returns to idle and discards any clip, queued speech or in-flight
// result.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.clip = nil
	c.pending = nil
	c.state = StateIdle
}

// Clip returns the clip currently playing.
func (c *Controller) Clip() (Clip, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSpeaking || c.clip == nil {
		return Clip{}, false
	}
	return *c.clip, true
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{State: c.state, Locked: c.locked, Deferred: c.pending != nil}
	if c.state == StateSpeaking && c.clip != nil {
		id := c.clip.ID
		snap.ClipID = &id
	}
	return snap
}

func (c *Controller) stopPlaybackLocked() {
	c.clip = nil
	c.state = StateIdle
}
