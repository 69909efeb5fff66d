package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	"github.com/yungbote/undercurrent-backend/internal/data/repos"
	apperr "github.com/yungbote/undercurrent-backend/internal/pkg/errors"
	"github.com/yungbote/undercurrent-backend/internal/platform/apierr"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"github.com/yungbote/undercurrent-backend/internal/platform/redis"
)

// VoicePreferenceService reads through a Redis cache in front of the
// voice_preference table. Stored ids are always resolved against the
// current catalog, so a retired voice falls back to the default.
type VoicePreferenceService interface {
	Get(ctx context.Context, userID uuid.UUID) (catalog.Voice, error)
	VoiceID(ctx context.Context, userID uuid.UUID) string
	Set(ctx context.Context, userID uuid.UUID, voiceID string) (catalog.Voice, error)
}

type voicePreferenceService struct {
	log   *logger.Logger
	cat   *catalog.Catalog
	repo  repos.VoicePreferenceRepo
	cache *redis.StringCache
}

func NewVoicePreferenceService(log *logger.Logger, cat *catalog.Catalog, repo repos.VoicePreferenceRepo, cache *redis.StringCache) VoicePreferenceService {
	return &voicePreferenceService{
		log:   log.With("service", "VoicePreferenceService"),
		cat:   cat,
		repo:  repo,
		cache: cache,
	}
}

func (s *voicePreferenceService) Get(ctx context.Context, userID uuid.UUID) (catalog.Voice, error) {
	if id, ok, err := s.cache.Get(ctx, userID.String()); err != nil {
		s.log.Warn("Voice preference cache read failed", "error", err)
	} else if ok {
		v, _ := s.cat.ResolveVoice(id)
		return v, nil
	}
	row, err := s.repo.GetByUserID(dbctx.New(ctx), userID)
	if err != nil {
		return s.cat.DefaultVoice(), fmt.Errorf("load voice preference: %w", err)
	}
	id := ""
	if row != nil {
		id = row.VoiceID
	}
	v, _ := s.cat.ResolveVoice(id)
	if id != "" {
		if err := s.cache.Set(ctx, userID.String(), id); err != nil {
			s.log.Warn("Voice preference cache write failed", "error", err)
		}
	}
	return v, nil
}

// VoiceID never fails; lookup errors resolve to the default voice.
func (s *voicePreferenceService) VoiceID(ctx context.Context, userID uuid.UUID) string {
	v, err := s.Get(ctx, userID)
	if err != nil {
		s.log.Warn("Voice preference lookup failed; using default", "error", err)
	}
	return v.ID
}

// Set stores a catalog voice for the user. Ids outside the catalog are rejected.
func (s *voicePreferenceService) Set(ctx context.Context, userID uuid.UUID, voiceID string) (catalog.Voice, error) {
	voiceID = strings.TrimSpace(voiceID)
	v, ok := s.cat.ResolveVoice(voiceID)
	if !ok {
		return catalog.Voice{}, apierr.New(http.StatusBadRequest, "unknown_voice", fmt.Errorf("%w: unknown voice %q", apperr.ErrInvalidArgument, voiceID))
	}
	if err := s.repo.Upsert(dbctx.New(ctx), userID, v.ID); err != nil {
		return catalog.Voice{}, fmt.Errorf("save voice preference: %w", err)
	}
	if err := s.cache.Set(ctx, userID.String(), v.ID); err != nil {
		s.log.Warn("Voice preference cache write failed", "error", err)
		_ = s.cache.Delete(ctx, userID.String())
	}
	return v, nil
}
