package services

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	"github.com/yungbote/undercurrent-backend/internal/data/repos"
	"github.com/yungbote/undercurrent-backend/internal/data/repos/testutil"
	types "github.com/yungbote/undercurrent-backend/internal/domain"
	"github.com/yungbote/undercurrent-backend/internal/platform/dbctx"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
	"github.com/yungbote/undercurrent-backend/internal/platform/sendgrid"
)

type fakeLLM struct {
	mu      sync.Mutex
	text    string
	textErr error
	json    map[string]map[string]any
	jsonErr error
	systems []string
	users   []string
	schemas []string
}

func (f *fakeLLM) GenerateText(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	return f.text, f.textErr
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, user)
	f.schemas = append(f.schemas, schemaName)
	if f.jsonErr != nil {
		return nil, f.jsonErr
	}
	return f.json[schemaName], nil
}

func (f *fakeLLM) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return f.text, f.textErr
}

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []sendgrid.SendEmailRequest
}

func (f *fakeMailer) Send(ctx context.Context, req sendgrid.SendEmailRequest) (*sendgrid.SendEmailResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, req)
	return &sendgrid.SendEmailResult{StatusCode: 202, MessageID: "msg-1"}, nil
}

type fakeSpeech struct {
	mu       sync.Mutex
	supports bool
	text     string
	err      error
	calls    int
}

func (f *fakeSpeech) Supports(string) bool { return f.supports }
func (f *fakeSpeech) Close() error         { return nil }
func (f *fakeSpeech) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, f.err
}

type fakeWhisper struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	mime  string
}

func (f *fakeWhisper) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.mime = mimeType
	return f.text, f.err
}

type fakeBucket struct {
	mu      sync.Mutex
	keys    []string
	types   []string
	uploads map[string][]byte

	purged   []string
	purgeErr error
}

func (b *fakeBucket) UploadFile(dbc dbctx.Context, key, contentType string, file io.Reader) error {
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploads == nil {
		b.uploads = map[string][]byte{}
	}
	b.keys = append(b.keys, key)
	b.types = append(b.types, contentType)
	b.uploads[key] = data
	return nil
}

func (b *fakeBucket) DeleteFile(dbc dbctx.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.uploads, key)
	return nil
}

func (b *fakeBucket) DeletePrefix(dbc dbctx.Context, prefix string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purged = append(b.purged, prefix)
	n := 0
	for key := range b.uploads {
		if strings.HasPrefix(key, prefix) {
			delete(b.uploads, key)
			n++
		}
	}
	return n, b.purgeErr
}

func (b *fakeBucket) Close() error { return nil }

type fakeSynth struct {
	audio []byte
	err   error
	calls int
	mu    sync.Mutex
}

func (s *fakeSynth) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.audio, s.err
}

// failingSessions wraps a SessionRepo and fails Update while fail is set.
type failingSessions struct {
	repos.SessionRepo
	mu   sync.Mutex
	fail error
}

func (f *failingSessions) setFail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

func (f *failingSessions) Update(dbc dbctx.Context, userID uuid.UUID, patch types.SessionPatch) error {
	f.mu.Lock()
	err := f.fail
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.SessionRepo.Update(dbc, userID, patch)
}

type env struct {
	db       *gorm.DB
	log      *logger.Logger
	cat      *catalog.Catalog
	users    repos.UserRepo
	sessions repos.SessionRepo
	answers  repos.AnswerRepo
	prefs    repos.VoicePreferenceRepo
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	return &env{
		db:       db,
		log:      log,
		cat:      catalog.Default(),
		users:    repos.NewUserRepo(db, log),
		sessions: repos.NewSessionRepo(db, log),
		answers:  repos.NewAnswerRepo(db, log),
		prefs:    repos.NewVoicePreferenceRepo(db, log),
	}
}

func (e *env) seedUser(t *testing.T, email, name string) *types.User {
	t.Helper()
	u, err := e.users.Create(dbctx.New(context.Background()), &types.User{ID: uuid.New(), Email: email, Name: name, Password: "x"})
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	return u
}

func (e *env) session(t *testing.T, userID uuid.UUID) *types.Session {
	t.Helper()
	s, err := e.sessions.GetOrCreate(dbctx.New(context.Background()), userID)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	return s
}

func (e *env) answer(t *testing.T, sessionID uuid.UUID, questionID int, text string) {
	t.Helper()
	if err := e.answers.Upsert(dbctx.New(context.Background()), sessionID, questionID, text); err != nil {
		t.Fatalf("Upsert answer: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
