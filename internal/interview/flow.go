package interview

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	types "github.com/yungbote/undercurrent-backend/internal/domain"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

type Mode string

const (
	ModeMain     Mode = "main"
	ModeFollowUp Mode = "followup"
)

const defaultCoachTimeout = 30 * time.Second

type FlowConfig struct {
	Catalog      *catalog.Catalog
	Store        Store
	Coach        Coach
	Speaker      Speaker
	Log          *logger.Logger
	UserID       uuid.UUID
	CoachTimeout time.Duration
}

// Flow is one user's interview conversation. All transitions are serialized;
// collaborator calls run without the lock held while the inflight flag
// rejects competing submissions and advances.
type Flow struct {
	mu sync.Mutex

	cat          *catalog.Catalog
	store        Store
	coach        Coach
	speaker      Speaker
	log          *logger.Logger
	userID       uuid.UUID
	coachTimeout time.Duration

	started      bool
	sessionID    uuid.UUID
	index        int
	mode         Mode
	pendingNext  int
	inflight     bool
	mainFinished bool
	complete     bool
	history      []Turn
	odyssey      *Odyssey
}

type Snapshot struct {
	Started          bool              `json:"started"`
	SessionID        uuid.UUID         `json:"session_id"`
	Index            int               `json:"index"`
	MainCount        int               `json:"main_count"`
	Mode             Mode              `json:"mode"`
	Question         *catalog.Question `json:"question,omitempty"`
	Section          *catalog.Section  `json:"section,omitempty"`
	Prompt           string            `json:"prompt,omitempty"`
	PendingNextIndex *int              `json:"pending_next_index,omitempty"`
	InFlight         bool              `json:"in_flight"`
	MainFinished     bool              `json:"main_finished"`
	Odyssey          *OdysseySnapshot  `json:"odyssey,omitempty"`
	Complete         bool              `json:"complete"`
}

type Result struct {
	Snapshot       Snapshot `json:"state"`
	Prompt         string   `json:"prompt,omitempty"`
	CoachReply     string   `json:"coach_reply,omitempty"`
	CoachingFailed bool     `json:"coaching_failed,omitempty"`
	Advanced       bool     `json:"advanced,omitempty"`
	OdysseyStarted bool     `json:"odyssey_started,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

func NewFlow(cfg FlowConfig) (*Flow, error) {
	if cfg.Catalog == nil || cfg.Store == nil || cfg.Coach == nil {
		return nil, fmt.Errorf("interview flow: catalog, store and coach are required")
	}
	if cfg.UserID == uuid.Nil {
		return nil, fmt.Errorf("interview flow: missing user id")
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	timeout := cfg.CoachTimeout
	if timeout <= 0 {
		timeout = defaultCoachTimeout
	}
	return &Flow{
		cat:          cfg.Catalog,
		store:        cfg.Store,
		coach:        cfg.Coach,
		speaker:      cfg.Speaker,
		log:          log.With("service", "InterviewFlow", "user_id", cfg.UserID),
		userID:       cfg.UserID,
		coachTimeout: timeout,
		mode:         ModeMain,
	}, nil
}

// Start loads the session and positions the flow where the user left off.
// Only a failure to obtain the session is fatal.
func (f *Flow) Start(ctx context.Context) (Result, error) {
	f.mu.Lock()
	if f.inflight {
		f.mu.Unlock()
		return Result{}, ErrSubmissionInFlight
	}
	var res Result
	sess, err := f.store.GetOrCreate(ctx, f.userID)
	if err != nil {
		f.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	answers, err := f.store.ListAnswers(ctx, sess.ID)
	if err != nil {
		f.log.Warn("List answers failed; resuming from session pointer", "error", err)
		res.Warnings = append(res.Warnings, "previous answers could not be loaded")
		answers = nil
	}

	f.sessionID = sess.ID
	f.mode = ModeMain
	f.pendingNext = 0
	f.history = f.historyFrom(answers)
	f.index = f.resumeIndex(sess, answers)
	f.mainFinished = f.index >= f.cat.MainCount() || f.allSectionsComplete(sess.CompletedSections.Data())
	f.complete = sess.IsComplete
	f.odyssey = nil
	if f.mainFinished {
		f.index = f.cat.MainCount()
		f.odyssey = RestoreOdyssey(f.cat, sess.OdysseyPaths.Data(), sess.OdysseyRatings.Data())
	}
	f.started = true

	prompt := f.promptLocked()
	res.Prompt = prompt
	res.OdysseyStarted = f.mainFinished
	f.log.Info("Interview started", "index", f.index, "main_finished", f.mainFinished, "answers", len(answers))
	return f.speakAndFinish(ctx, prompt, res), nil
}

// Submit handles a main answer or a follow-up reply depending on the mode.
func (f *Flow) Submit(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyAnswer
	}
	f.mu.Lock()
	if err := f.checkMainLocked(); err != nil {
		f.mu.Unlock()
		return Result{}, err
	}
	q, _ := f.cat.MainAt(f.index)

	if f.mode == ModeFollowUp {
		return f.submitFollowUpLocked(ctx, q, text)
	}

	// The next question is fixed now so a slow coach cannot desync it.
	pending := f.index + 1
	if err := f.store.UpsertAnswer(ctx, f.sessionID, q.ID, text); err != nil {
		f.mu.Unlock()
		f.log.Error("Answer upsert failed", "question_id", q.ID, "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrAnswerNotSaved, err)
	}
	f.inflight = true
	req := CoachingRequest{
		Question: q,
		Answer:   text,
		History:  append([]Turn(nil), f.history...),
	}
	if sec, ok := f.cat.Section(q.SectionID); ok {
		req.Section = sec
	}
	f.mu.Unlock()

	// The round trip outlives a dropped client so the session stays consistent.
	bg := context.WithoutCancel(ctx)
	cctx, cancel := context.WithTimeout(bg, f.coachTimeout)
	reply, coachErr := f.coach.Respond(cctx, req)
	cancel()
	reply = strings.TrimSpace(reply)
	if coachErr == nil && reply == "" {
		coachErr = errors.New("empty coaching response")
	}

	f.mu.Lock()
	turn := Turn{QuestionID: q.ID, Frameworks: q.Frameworks, Answer: text}
	var res Result
	if coachErr != nil {
		f.log.Warn("Coaching failed; advancing", "question_id", q.ID, "error", coachErr)
		f.recordTurnLocked(turn)
		res.CoachingFailed = true
		res.Warnings = append(res.Warnings, "coaching response unavailable, moved to the next question")
		res = f.advanceLocked(bg, pending, res)
		return f.speakAndFinish(bg, res.Prompt, res), nil
	}

	if err := f.store.SetAIResponse(bg, f.sessionID, q.ID, reply); err != nil {
		f.log.Warn("Saving coaching response failed", "question_id", q.ID, "error", err)
		res.Warnings = append(res.Warnings, "coaching response could not be saved")
	}
	turn.CoachReply = reply
	f.recordTurnLocked(turn)
	f.mode = ModeFollowUp
	f.pendingNext = pending
	res.CoachReply = reply
	return f.speakAndFinish(bg, reply, res), nil
}

// recordTurnLocked replaces any earlier turn for the same question, so a
// re-answer never leaves the old text or coaching in the history.
func (f *Flow) recordTurnLocked(turn Turn) {
	kept := f.history[:0]
	for _, t := range f.history {
		if t.QuestionID != turn.QuestionID {
			kept = append(kept, t)
		}
	}
	f.history = append(kept, turn)
}

func (f *Flow) submitFollowUpLocked(ctx context.Context, q catalog.Question, reply string) (Result, error) {
	var res Result
	if err := f.store.AmendFollowUp(ctx, f.sessionID, q.ID, reply); err != nil {
		f.log.Warn("Saving follow-up reply failed", "question_id", q.ID, "error", err)
		res.Warnings = append(res.Warnings, "follow-up reply could not be saved")
	}
	if n := len(f.history); n > 0 && f.history[n-1].QuestionID == q.ID {
		f.history[n-1].FollowUpReply = reply
	}
	f.inflight = true
	res = f.advanceLocked(ctx, f.pendingNext, res)
	return f.speakAndFinish(ctx, res.Prompt, res), nil
}

// Advance moves to the next question. From follow-up mode it uses the index
// captured when the answer was submitted; from main mode it skips the
// current question.
func (f *Flow) Advance(ctx context.Context) (Result, error) {
	f.mu.Lock()
	if err := f.checkMainLocked(); err != nil {
		f.mu.Unlock()
		return Result{}, err
	}
	next := f.index + 1
	if f.mode == ModeFollowUp {
		next = f.pendingNext
	}
	f.inflight = true
	res := f.advanceLocked(ctx, next, Result{})
	return f.speakAndFinish(ctx, res.Prompt, res), nil
}

func (f *Flow) checkMainLocked() error {
	if !f.started {
		return ErrNotStarted
	}
	if f.inflight {
		return ErrSubmissionInFlight
	}
	if f.mainFinished {
		return ErrNoActiveQuestion
	}
	if _, ok := f.cat.MainAt(f.index); !ok {
		return ErrNoActiveQuestion
	}
	return nil
}

// advanceLocked applies the transition to next and persists the pointer.
// Persistence failures become warnings.
func (f *Flow) advanceLocked(ctx context.Context, next int, res Result) Result {
	f.mode = ModeMain
	f.pendingNext = 0
	res.Advanced = true

	if next >= f.cat.MainCount() {
		f.mainFinished = true
		f.index = f.cat.MainCount()
		if f.odyssey == nil {
			f.odyssey = NewOdyssey(f.cat)
		}
		qid := f.cat.OdysseyPlansQuestion().ID
		all := f.allSectionIDs()
		if err := f.store.Update(ctx, f.userID, types.SessionPatch{CurrentQuestionID: &qid, CompletedSections: &all}); err != nil {
			f.log.Warn("Saving odyssey handoff failed", "error", err)
			res.Warnings = append(res.Warnings, "progress could not be saved")
		}
		res.OdysseyStarted = true
		res.Prompt = f.odyssey.Prompt()
		f.log.Info("Main interview finished; odyssey started")
		return res
	}

	f.index = next
	q, _ := f.cat.MainAt(next)
	done := f.completedSectionsBefore(next)
	if err := f.store.Update(ctx, f.userID, types.SessionPatch{CurrentQuestionID: &q.ID, CompletedSections: &done}); err != nil {
		f.log.Warn("Saving progress failed", "question_id", q.ID, "error", err)
		res.Warnings = append(res.Warnings, "progress could not be saved")
	}
	res.Prompt = f.promptLocked()
	return res
}

// speakAndFinish voices text with the lock released, clears the inflight
// flag and fills in the snapshot. It expects f.mu held and releases it.
func (f *Flow) speakAndFinish(ctx context.Context, text string, res Result) Result {
	if f.speaker != nil && strings.TrimSpace(text) != "" {
		f.inflight = true
		f.mu.Unlock()
		err := f.speaker.Speak(context.WithoutCancel(ctx), text)
		f.mu.Lock()
		if err != nil {
			f.log.Warn("Speech unavailable", "error", err)
			res.Warnings = append(res.Warnings, "audio unavailable: "+err.Error())
		}
	}
	f.inflight = false
	res.Snapshot = f.snapshotLocked()
	f.mu.Unlock()
	return res
}

// SubmitPath records the current Odyssey path description.
func (f *Flow) SubmitPath(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyAnswer
	}
	f.mu.Lock()
	if err := f.checkOdysseyLocked(); err != nil {
		f.mu.Unlock()
		return Result{}, err
	}
	if err := f.odyssey.SubmitPath(text); err != nil {
		f.mu.Unlock()
		return Result{}, err
	}
	var res Result
	paths := f.odyssey.Texts()
	if err := f.store.Update(ctx, f.userID, types.SessionPatch{OdysseyPaths: &paths}); err != nil {
		f.log.Warn("Saving odyssey paths failed", "error", err)
		res.Warnings = append(res.Warnings, "odyssey path could not be saved")
	}
	res.Prompt = f.odyssey.Prompt()
	return f.speakAndFinish(ctx, res.Prompt, res), nil
}

// Rate sets one dimension score on the current Odyssey path.
func (f *Flow) Rate(dimension string, value int) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOdysseyLocked(); err != nil {
		return Snapshot{}, err
	}
	if err := f.odyssey.Rate(dimension, value); err != nil {
		return Snapshot{}, err
	}
	return f.snapshotLocked(), nil
}

// CompleteRatings closes the current path's ratings. After the last path the
// full record is persisted and the interview marked complete; a failed write
// leaves the path open for retry.
func (f *Flow) CompleteRatings(ctx context.Context) (Result, error) {
	f.mu.Lock()
	if err := f.checkOdysseyLocked(); err != nil {
		f.mu.Unlock()
		return Result{}, err
	}
	last, err := f.odyssey.CompleteRatings()
	if err != nil {
		f.mu.Unlock()
		return Result{}, err
	}
	var res Result
	paths, ratings := f.odyssey.Texts(), f.odyssey.Ratings()
	patch := types.SessionPatch{OdysseyPaths: &paths, OdysseyRatings: &ratings}
	if !last {
		if err := f.store.Update(ctx, f.userID, patch); err != nil {
			f.log.Warn("Saving odyssey ratings failed", "error", err)
			res.Warnings = append(res.Warnings, "ratings could not be saved")
		}
		res.Prompt = f.odyssey.Prompt()
		return f.speakAndFinish(ctx, res.Prompt, res), nil
	}

	done := f.mainFinished && f.lastMainAnsweredLocked() && f.odysseyRatedLocked(ratings)
	if done {
		patch.IsComplete = &done
	} else {
		res.Warnings = append(res.Warnings, "interview not complete: the final question has no answer")
	}
	if err := f.store.Update(ctx, f.userID, patch); err != nil {
		f.odyssey.reopenLast()
		f.mu.Unlock()
		f.log.Error("Saving odyssey results failed", "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrOdysseyNotSaved, err)
	}
	f.complete = done
	f.log.Info("Odyssey completed", "complete", done)
	return f.speakAndFinish(ctx, "", res), nil
}

func (f *Flow) checkOdysseyLocked() error {
	if !f.started {
		return ErrNotStarted
	}
	if f.inflight {
		return ErrSubmissionInFlight
	}
	if !f.mainFinished || f.odyssey == nil {
		return ErrWrongPhase
	}
	if f.odyssey.Done() {
		return ErrWrongPhase
	}
	return nil
}

// lastMainAnsweredLocked reports whether the final main question has a
// recorded answer. Skipping it keeps the interview incomplete.
func (f *Flow) lastMainAnsweredLocked() bool {
	last, ok := f.cat.MainAt(f.cat.MainCount() - 1)
	if !ok {
		return false
	}
	for _, t := range f.history {
		if t.QuestionID == last.ID && strings.TrimSpace(t.Answer) != "" {
			return true
		}
	}
	return false
}

func (f *Flow) odysseyRatedLocked(ratings types.OdysseyRatings) bool {
	dims := f.cat.DimensionIDs()
	for _, id := range f.cat.PathIDs() {
		if !AllRated(ratings[id], dims) {
			return false
		}
	}
	return true
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Flow) snapshotLocked() Snapshot {
	snap := Snapshot{
		Started:      f.started,
		SessionID:    f.sessionID,
		Index:        f.index,
		MainCount:    f.cat.MainCount(),
		Mode:         f.mode,
		InFlight:     f.inflight,
		MainFinished: f.mainFinished,
		Complete:     f.complete,
	}
	if f.mode == ModeFollowUp {
		p := f.pendingNext
		snap.PendingNextIndex = &p
	}
	if !f.mainFinished {
		if q, ok := f.cat.MainAt(f.index); ok {
			snap.Question = &q
			if sec, ok := f.cat.Section(q.SectionID); ok {
				snap.Section = &sec
			}
		}
	}
	if f.started {
		snap.Prompt = f.promptLocked()
	}
	if f.odyssey != nil {
		o := f.odyssey.Snapshot()
		snap.Odyssey = &o
	}
	return snap
}

// promptLocked is the line spoken for the current position. The first
// question carries the welcome and the section introduction.
func (f *Flow) promptLocked() string {
	if f.mainFinished {
		if f.odyssey == nil {
			return ""
		}
		return f.odyssey.Prompt()
	}
	q, ok := f.cat.MainAt(f.index)
	if !ok {
		return ""
	}
	if f.index == 0 {
		if sec, ok := f.cat.Section(q.SectionID); ok {
			return fmt.Sprintf("%s Let's start with %s. %s. Here's your first question: %s",
				f.cat.Welcome(), sec.Title, sec.Subtitle, q.Prompt)
		}
	}
	return q.Prompt
}

// resumeIndex is the later of the answered count and the stored pointer so a
// skipped question is not asked again.
func (f *Flow) resumeIndex(sess *types.Session, answers []*types.Answer) int {
	answered := 0
	for _, a := range answers {
		if _, ok := f.cat.MainIndexOf(a.QuestionID); ok && strings.TrimSpace(a.Text) != "" {
			answered++
		}
	}
	idx := answered
	if p, ok := f.cat.MainIndexOf(sess.CurrentQuestionID); ok && p > idx {
		idx = p
	}
	if idx > f.cat.MainCount() {
		idx = f.cat.MainCount()
	}
	return idx
}

func (f *Flow) historyFrom(answers []*types.Answer) []Turn {
	sorted := append([]*types.Answer(nil), answers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ii, _ := f.cat.MainIndexOf(sorted[i].QuestionID)
		jj, _ := f.cat.MainIndexOf(sorted[j].QuestionID)
		return ii < jj
	})
	out := make([]Turn, 0, len(sorted))
	for _, a := range sorted {
		q, ok := f.cat.Question(a.QuestionID)
		if !ok || q.OdysseyRating || strings.TrimSpace(a.Text) == "" {
			continue
		}
		out = append(out, Turn{
			QuestionID:    a.QuestionID,
			Frameworks:    q.Frameworks,
			Answer:        a.Text,
			FollowUpReply: a.FollowUpReply,
			CoachReply:    a.AIResponse,
		})
	}
	return out
}

func (f *Flow) allSectionIDs() []int {
	secs := f.cat.Sections()
	out := make([]int, len(secs))
	for i, s := range secs {
		out[i] = s.ID
	}
	return out
}

func (f *Flow) allSectionsComplete(done []int) bool {
	have := make(map[int]bool, len(done))
	for _, id := range done {
		have[id] = true
	}
	for _, id := range f.allSectionIDs() {
		if !have[id] {
			return false
		}
	}
	return true
}

// completedSectionsBefore lists sections whose main questions all precede next.
func (f *Flow) completedSectionsBefore(next int) []int {
	remaining := map[int]bool{}
	seen := map[int]bool{}
	for i, q := range f.cat.MainQuestions() {
		seen[q.SectionID] = true
		if i >= next {
			remaining[q.SectionID] = true
		}
	}
	out := []int{}
	for _, s := range f.cat.Sections() {
		if seen[s.ID] && !remaining[s.ID] {
			out = append(out, s.ID)
		}
	}
	return out
}

// CompletionReady reports whether a persisted session satisfies the
// completion rule: every section done, the final main question answered and
// every path fully rated.
func CompletionReady(cat *catalog.Catalog, sess *types.Session, answers []*types.Answer) bool {
	if sess == nil || !LastMainAnswered(cat, answers) {
		return false
	}
	have := map[int]bool{}
	for _, id := range sess.CompletedSections.Data() {
		have[id] = true
	}
	for _, s := range cat.Sections() {
		if !have[s.ID] {
			return false
		}
	}
	ratings := sess.OdysseyRatings.Data()
	dims := cat.DimensionIDs()
	for _, id := range cat.PathIDs() {
		if !AllRated(ratings[id], dims) {
			return false
		}
	}
	return true
}

// LastMainAnswered reports whether answers hold a non-blank answer to the
// final main question.
func LastMainAnswered(cat *catalog.Catalog, answers []*types.Answer) bool {
	last, ok := cat.MainAt(cat.MainCount() - 1)
	if !ok {
		return false
	}
	for _, a := range answers {
		if a != nil && a.QuestionID == last.ID && strings.TrimSpace(a.Text) != "" {
			return true
		}
	}
	return false
}
