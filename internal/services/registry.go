package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	"github.com/yungbote/undercurrent-backend/internal/data/repos"
	"github.com/yungbote/undercurrent-backend/internal/interview"
	"github.com/yungbote/undercurrent-backend/internal/observability"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"github.com/yungbote/undercurrent-backend/internal/voice"
)

// Conversation is one user's live interview: the flow and the voice
// controller that speaks for it.
type Conversation struct {
	Flow  *interview.Flow
	Voice *voice.Controller
}

type RegistryConfig struct {
	Catalog     *catalog.Catalog
	Store       interview.Store
	Coach       interview.Coach
	Synthesizer voice.Synthesizer
	Transcriber voice.Transcriber
	// VoiceID resolves the user's preferred voice at speak time.
	VoiceID             func(ctx context.Context, userID uuid.UUID) string
	Sessions            repos.SessionRepo
	Canvas              *CanvasCoalescer
	// Recordings, when set, drops the user's archived audio on reset.
	Recordings          RecordingPurger
	CoachTimeout        time.Duration
	VoiceTimeout        time.Duration
	DeferFirstUtterance bool
}

type RecordingPurger interface {
	PurgeRecordings(ctx context.Context, userID uuid.UUID) error
}

// ConversationRegistry keeps one Conversation per user in memory.
// Concurrent first requests for a user share a single construction.
type ConversationRegistry struct {
	log *logger.Logger
	cfg RegistryConfig

	mu    sync.Mutex
	convs map[uuid.UUID]*Conversation
	group singleflight.Group
}

func NewConversationRegistry(log *logger.Logger, cfg RegistryConfig) *ConversationRegistry {
	return &ConversationRegistry{
		log:   log.With("service", "ConversationRegistry"),
		cfg:   cfg,
		convs: map[uuid.UUID]*Conversation{},
	}
}

func (r *ConversationRegistry) lookup(userID uuid.UUID) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.convs[userID]
}

// Get returns the user's conversation, building it on first use.
func (r *ConversationRegistry) Get(userID uuid.UUID) (*Conversation, error) {
	if c := r.lookup(userID); c != nil {
		return c, nil
	}
	v, err, _ := r.group.Do(userID.String(), func() (interface{}, error) {
		if c := r.lookup(userID); c != nil {
			return c, nil
		}
		c, err := r.build(userID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.convs[userID] = c
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Conversation), nil
}

func (r *ConversationRegistry) build(userID uuid.UUID) (*Conversation, error) {
	log := r.log.With("user_id", userID)
	ctrl := voice.NewController(voice.Config{
		Synthesizer: r.cfg.Synthesizer,
		Transcriber: r.cfg.Transcriber,
		Voice: func(ctx context.Context) string {
			if r.cfg.VoiceID == nil {
				return r.cfg.Catalog.DefaultVoice().ID
			}
			return r.cfg.VoiceID(ctx, userID)
		},
		DeferFirstUtterance: r.cfg.DeferFirstUtterance,
		Timeout:             r.cfg.VoiceTimeout,
		OnTranscript: func(ctx context.Context, text string) {
			observability.Current().IncVoiceEvent("transcript")
		},
		OnError: func(ctx context.Context, err error) {
			observability.Current().IncVoiceEvent("transcription_failed")
		},
		Log: log,
	})
	flow, err := interview.NewFlow(interview.FlowConfig{
		Catalog:      r.cfg.Catalog,
		Store:        r.cfg.Store,
		Coach:        r.cfg.Coach,
		Speaker:      ctrl,
		Log:          log,
		UserID:       userID,
		CoachTimeout: r.cfg.CoachTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build interview flow: %w", err)
	}
	return &Conversation{Flow: flow, Voice: ctrl}, nil
}

// Reset wipes the stored session and answers, discards buffered canvas
// edits and drops the in-memory conversation so the next call starts fresh.
// Archived recordings go too; a failed purge is logged, not returned.
func (r *ConversationRegistry) Reset(ctx context.Context, userID uuid.UUID) error {
	if r.cfg.Canvas != nil {
		r.cfg.Canvas.Discard(userID)
	}
	if err := r.cfg.Sessions.Reset(dbctx.New(ctx), userID); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	r.mu.Lock()
	c := r.convs[userID]
	delete(r.convs, userID)
	r.mu.Unlock()
	if c != nil {
		c.Voice.Reset()
	}
	if r.cfg.Recordings != nil {
		if err := r.cfg.Recordings.PurgeRecordings(ctx, userID); err != nil {
			r.log.Warn("Recording purge failed", "user_id", userID, "error", err)
		}
	}
	r.log.Info("Session reset", "user_id", userID)
	return nil
}

// Drop forgets the in-memory conversation without touching storage.
func (r *ConversationRegistry) Drop(userID uuid.UUID) {
	r.mu.Lock()
	c := r.convs[userID]
	delete(r.convs, userID)
	r.mu.Unlock()
	if c != nil {
		c.Voice.Reset()
	}
}

func (r *ConversationRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.convs)
}
