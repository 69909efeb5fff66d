package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/undercurrent-backend/internal/platform/elevenlabs"
	"github.com/yungbote/undercurrent-backend/internal/platform/envutil"
	"github.com/yungbote/undercurrent-backend/internal/platform/gcp"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"github.com/yungbote/undercurrent-backend/internal/platform/openai"
	"github.com/yungbote/undercurrent-backend/internal/platform/redis"
	"github.com/yungbote/undercurrent-backend/internal/platform/sendgrid"
)

// Clients holds the external collaborators. Any of them may be nil when its
// credentials are absent; the features they back degrade instead.
type Clients struct {
	OpenAI      openai.Client
	ElevenLabs  elevenlabs.Client
	SendGrid    sendgrid.Client
	GcpSpeech   gcp.Speech
	VoiceBucket gcp.BucketService
	Redis       *goredis.Client
	RedisPrefix string
}

func wireClients(ctx context.Context, log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Openai
	if oaCfg := openai.ConfigFromEnv(); oaCfg.APIKey != "" {
		c, err := openai.New(log, oaCfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
		out.OpenAI = c
	} else {
		log.Warn("OPENAI_API_KEY not set; coaching and report generation disabled")
	}

	// ElevenLabs
	if elCfg := elevenlabs.ConfigFromEnv(); elCfg.APIKey != "" {
		c, err := elevenlabs.New(log, elCfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init elevenlabs client: %w", err)
		}
		out.ElevenLabs = c
	} else {
		log.Warn("ELEVENLABS_API_KEY not set; running text-only")
	}

	// SendGrid
	if sgCfg := sendgrid.ConfigFromEnv(); sgCfg.APIKey != "" {
		c, err := sendgrid.New(log, sgCfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init sendgrid client: %w", err)
		}
		out.SendGrid = c
	} else {
		log.Warn("SENDGRID_API_KEY not set; report email disabled")
	}

	// Gcp
	if gcp.CredentialsConfigured() && envutil.Bool("GCP_SPEECH_ENABLED", true) {
		sp, err := gcp.NewSpeech(ctx, log, gcp.SpeechConfigFromEnv())
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init speech client: %w", err)
		}
		out.GcpSpeech = sp
	}
	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init bucket client: %w", err)
	}
	out.VoiceBucket = bucket

	// Redis
	if rCfg := redis.ConfigFromEnv(); rCfg.Configured() {
		rdb, err := redis.New(log, rCfg)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init redis client: %w", err)
		}
		out.Redis = rdb
		out.RedisPrefix = rCfg.Prefix
	}

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.GcpSpeech != nil {
		_ = c.GcpSpeech.Close()
	}
	if c.VoiceBucket != nil {
		_ = c.VoiceBucket.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
