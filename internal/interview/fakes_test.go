package interview

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	types "github.com/yungbote/undercurrent-backend/internal/domain"
	"gorm.io/datatypes"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*types.Session
	answers  map[uuid.UUID]map[int]*types.Answer
	updates  []types.SessionPatch

	failGetOrCreate error
	failList        error
	failUpdate      error
	failUpsert      error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: map[uuid.UUID]*types.Session{},
		answers:  map[uuid.UUID]map[int]*types.Answer{},
	}
}

func (m *memStore) GetOrCreate(ctx context.Context, userID uuid.UUID) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGetOrCreate != nil {
		return nil, m.failGetOrCreate
	}
	s, ok := m.sessions[userID]
	if !ok {
		s = types.NewSession(userID)
		m.sessions[userID] = s
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) session(userID uuid.UUID) *types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[userID]
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

func (m *memStore) Update(ctx context.Context, userID uuid.UUID, p types.SessionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return m.failUpdate
	}
	s := m.sessions[userID]
	if s == nil {
		return errors.New("no session")
	}
	m.updates = append(m.updates, p)
	if p.CurrentQuestionID != nil {
		s.CurrentQuestionID = *p.CurrentQuestionID
	}
	if p.CompletedSections != nil {
		s.CompletedSections = datatypes.NewJSONType(*p.CompletedSections)
	}
	if p.OdysseyPaths != nil {
		s.OdysseyPaths = datatypes.NewJSONType(*p.OdysseyPaths)
	}
	if p.OdysseyRatings != nil {
		s.OdysseyRatings = datatypes.NewJSONType(*p.OdysseyRatings)
	}
	if p.IsComplete != nil {
		s.IsComplete = *p.IsComplete
	}
	return nil
}

func (m *memStore) UpsertAnswer(ctx context.Context, sessionID uuid.UUID, questionID int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert != nil {
		return m.failUpsert
	}
	if m.answers[sessionID] == nil {
		m.answers[sessionID] = map[int]*types.Answer{}
	}
	if a, ok := m.answers[sessionID][questionID]; ok {
		a.Text, a.FollowUpReply, a.AIResponse = text, "", ""
		return nil
	}
	m.answers[sessionID][questionID] = &types.Answer{ID: uuid.New(), SessionID: sessionID, QuestionID: questionID, Text: text}
	return nil
}

func (m *memStore) amend(sessionID uuid.UUID, questionID int, fn func(a *types.Answer)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[sessionID][questionID]
	if !ok {
		return errors.New("answer not found")
	}
	fn(a)
	return nil
}

func (m *memStore) AmendFollowUp(ctx context.Context, sessionID uuid.UUID, questionID int, reply string) error {
	return m.amend(sessionID, questionID, func(a *types.Answer) { a.FollowUpReply = reply })
}

func (m *memStore) SetAIResponse(ctx context.Context, sessionID uuid.UUID, questionID int, text string) error {
	return m.amend(sessionID, questionID, func(a *types.Answer) { a.AIResponse = text })
}

func (m *memStore) ListAnswers(ctx context.Context, sessionID uuid.UUID) ([]*types.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	var out []*types.Answer
	for _, a := range m.answers[sessionID] {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (m *memStore) answerCount(sessionID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.answers[sessionID])
}

type fakeCoach struct {
	mu      sync.Mutex
	calls   []CoachingRequest
	reply   string
	err     error
	started chan struct{}
	release chan struct{}
}

func (c *fakeCoach) Respond(ctx context.Context, req CoachingRequest) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	started, release := c.started, c.release
	reply, err := c.reply, c.err
	c.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return reply, err
}

func (c *fakeCoach) lastCall() CoachingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[len(c.calls)-1]
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	err    error
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return s.err
}

func (s *fakeSpeaker) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.spoken) == 0 {
		return ""
	}
	return s.spoken[len(s.spoken)-1]
}
