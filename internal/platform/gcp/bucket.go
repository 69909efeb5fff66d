package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

// BucketService archives voice recordings and removes them again when a
// user resets their interview.
type BucketService interface {
	UploadFile(dbc dbctx.Context, key string, contentType string, file io.Reader) error
	DeleteFile(dbc dbctx.Context, key string) error
	// DeletePrefix removes every object under prefix and returns how many
	// were deleted.
	DeletePrefix(dbc dbctx.Context, prefix string) (int, error)
	Close() error
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	storageMode   ObjectStorageMode
	bucket        string
}

// NewBucketService returns nil, nil when GCS_VOICE_BUCKET is unset so that
// archiving is simply skipped.
func NewBucketService(log *logger.Logger) (BucketService, error) {
	name := strings.TrimSpace(os.Getenv("GCS_VOICE_BUCKET"))
	if name == "" {
		return nil, nil
	}
	storageCfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	return NewBucketServiceWithConfig(log, name, storageCfg)
}

func NewBucketServiceWithConfig(log *logger.Logger, bucket string, storageCfg ObjectStorageConfig) (BucketService, error) {
	if err := ValidateObjectStorageConfig(storageCfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("missing env var GCS_VOICE_BUCKET")
	}
	serviceLog := log.With("service", "BucketService")

	stClient, err := newStorageClientForMode(context.Background(), storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info(
		"Voice archive initialized",
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"bucket", bucket,
	)

	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		storageMode:   storageCfg.Mode,
		bucket:        bucket,
	}, nil
}

func newStorageClientForMode(ctx context.Context, storageCfg ObjectStorageConfig) (*storage.Client, error) {
	switch storageCfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{
			Code: ObjectStorageConfigErrorInvalidMode,
			Mode: string(storageCfg.Mode),
		}
	}
}

// VoicePrefix is the archive folder holding one user's recordings.
func VoicePrefix(userID string) string {
	return "voice/" + userID + "/"
}

// VoiceKey builds the archive object key for a recording.
func VoiceKey(userID string, at time.Time, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "m4a"
	}
	return fmt.Sprintf("%s%d.%s", VoicePrefix(userID), at.UnixMilli(), ext)
}

func (bs *bucketService) UploadFile(dbc dbctx.Context, key string, contentType string, file io.Reader) error {
	ctx, cancel := context.WithTimeout(dbc.Ctx, 2*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(bs.bucket).Object(key).NewWriter(ctx)
	if contentType = strings.TrimSpace(contentType); contentType != "" {
		w.ContentType = contentType
	} else if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".webm"):
		return "audio/webm"
	case strings.HasSuffix(s, ".m4a"):
		return "audio/mp4"
	case strings.HasSuffix(s, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(s, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(s, ".mp3"):
		return "audio/mpeg"
	default:
		return ""
	}
}

// DeleteFile treats an already missing object as deleted.
func (bs *bucketService) DeleteFile(dbc dbctx.Context, key string) error {
	ctx, cancel := context.WithTimeout(dbc.Ctx, 30*time.Second)
	defer cancel()
	err := bs.storageClient.Bucket(bs.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, bs.bucket, err)
	}
	return nil
}

func (bs *bucketService) DeletePrefix(dbc dbctx.Context, prefix string) (int, error) {
	prefix = strings.TrimLeft(strings.TrimSpace(prefix), "/")
	if prefix == "" || prefix == "voice/" {
		return 0, fmt.Errorf("refusing to delete under prefix %q", prefix)
	}
	ctx, cancel := context.WithTimeout(dbc.Ctx, 2*time.Minute)
	defer cancel()

	it := bs.storageClient.Bucket(bs.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	deleted := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return deleted, fmt.Errorf("failed to list GCS objects under %q: %w", prefix, err)
		}
		if err := bs.DeleteFile(dbctx.New(ctx), attrs.Name); err != nil {
			return deleted, err
		}
		deleted++
	}
	bs.log.Info("Voice recordings deleted", "prefix", prefix, "count", deleted)
	return deleted, nil
}

func (bs *bucketService) Close() error {
	if bs == nil || bs.storageClient == nil {
		return nil
	}
	return bs.storageClient.Close()
}
