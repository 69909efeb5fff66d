package interview

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/undercurrent-backend/internal/catalog"
)

func newTestFlow(t *testing.T, store *memStore, coach *fakeCoach, speaker Speaker) (*Flow, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	f, err := NewFlow(FlowConfig{
		Catalog:      catalog.Default(),
		Store:        store,
		Coach:        coach,
		Speaker:      speaker,
		UserID:       userID,
		CoachTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewFlow: %v", err)
	}
	return f, userID
}

func TestFlowAnswerFollowUpAdvance(t *testing.T) {
	store := newMemStore()
	coach := &fakeCoach{reply: "Feeling stuck as a PM often means the scope stopped growing with you."}
	speaker := &fakeSpeaker{}
	f, userID := newTestFlow(t, store, coach, speaker)
	ctx := context.Background()

	start, err := f.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if start.Snapshot.Index != 0 || start.Snapshot.Question == nil || start.Snapshot.Question.ID != 1 {
		t.Fatalf("Start: unexpected snapshot %+v", start.Snapshot)
	}
	if !strings.HasPrefix(speaker.last(), "Welcome to Undercurrent.") || !strings.Contains(speaker.last(), "The Warm-Up") {
		t.Fatalf("Start: first prompt=%q", speaker.last())
	}

	res, err := f.Submit(ctx, "  I am a product manager feeling stuck ")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Snapshot.Mode != ModeFollowUp || res.CoachReply == "" || res.CoachingFailed {
		t.Fatalf("Submit: unexpected result %+v", res)
	}
	if res.Snapshot.PendingNextIndex == nil || *res.Snapshot.PendingNextIndex != 1 {
		t.Fatalf("Submit: pending next=%v", res.Snapshot.PendingNextIndex)
	}
	if speaker.last() != coach.reply {
		t.Fatalf("Submit: coach reply not spoken, last=%q", speaker.last())
	}
	answers, _ := store.ListAnswers(ctx, res.Snapshot.SessionID)
	if len(answers) != 1 || answers[0].Text != "I am a product manager feeling stuck" || answers[0].AIResponse != coach.reply {
		t.Fatalf("Submit: stored answers %+v", answers)
	}

	res, err = f.Submit(ctx, "yes exactly")
	if err != nil {
		t.Fatalf("Submit (follow-up): %v", err)
	}
	if !res.Advanced || res.Snapshot.Mode != ModeMain || res.Snapshot.Question.ID != 2 {
		t.Fatalf("Submit (follow-up): unexpected result %+v", res)
	}
	if len(coach.calls) != 1 {
		t.Fatalf("follow-up reply must not call the coach, calls=%d", len(coach.calls))
	}
	answers, _ = store.ListAnswers(ctx, res.Snapshot.SessionID)
	if len(answers) != 1 || answers[0].FollowUpReply != "yes exactly" || answers[0].Text != "I am a product manager feeling stuck" {
		t.Fatalf("follow-up must amend the same row: %+v", answers)
	}
	if got := store.session(userID).CurrentQuestionID; got != 2 {
		t.Fatalf("pointer=%d want 2", got)
	}
	if speaker.last() != res.Snapshot.Question.Prompt {
		t.Fatalf("next prompt not spoken: %q", speaker.last())
	}
}

func TestFlowCoachFailureAdvances(t *testing.T) {
	store := newMemStore()
	coach := &fakeCoach{err: errors.New("llm down")}
	f, userID := newTestFlow(t, store, coach, nil)
	ctx := context.Background()
	if _, err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := f.Submit(ctx, "honest version: bored")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.CoachingFailed || !res.Advanced || len(res.Warnings) == 0 {
		t.Fatalf("Submit: unexpected result %+v", res)
	}
	if res.Snapshot.Mode != ModeMain || res.Snapshot.Index != 1 {
		t.Fatalf("Submit: snapshot %+v", res.Snapshot)
	}
	if got := store.session(userID).CurrentQuestionID; got != 2 {
		t.Fatalf("pointer=%d want 2", got)
	}
	if store.answerCount(res.Snapshot.SessionID) != 1 {
		t.Fatalf("answer must be kept when coaching fails")
	}
}

func TestFlowBlankCoachReplyCountsAsFailure(t *testing.T) {
	store := newMemStore()
	f, _ := newTestFlow(t, store, &fakeCoach{reply: "   "}, nil)
	ctx := context.Background()
	if _, err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := f.Submit(ctx, "answer")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.CoachingFailed || res.Snapshot.Mode != ModeMain {
		t.Fatalf("Submit: %+v", res)
	}
}

func TestFlowRejectsEmptyAnswerBeforeAnyCall(t *testing.T) {
	store := newMemStore()
	coach := &fakeCoach{reply: "ok"}
	f, _ := newTestFlow(t, store, coach, nil)
	ctx := context.Background()
	start, err := f.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.Submit(ctx, " \n\t "); !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("Submit: err=%v want ErrEmptyAnswer", err)
	}
	if len(coach.calls) != 0 || store.answerCount(start.Snapshot.SessionID) != 0 {
		t.Fatalf("empty answer reached collaborators")
	}
}

func TestFlowRejectsConcurrentSubmission(t *testing.T) {
	store := newMemStore()
	coach := &fakeCoach{
		reply:   "That says a lot.",
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	f, userID := newTestFlow(t, store, coach, nil)
	ctx := context.Background()
	if _, err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan Result, 1)
	go func() {
		res, err := f.Submit(ctx, "first answer")
		if err != nil {
			t.Errorf("Submit: %v", err)
		}
		done <- res
	}()
	<-coach.started

	if _, err := f.Submit(ctx, "second answer"); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("concurrent Submit: err=%v want ErrSubmissionInFlight", err)
	}
	if _, err := f.Advance(ctx); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("concurrent Advance: err=%v want ErrSubmissionInFlight", err)
	}
	if !f.Snapshot().InFlight {
		t.Fatalf("snapshot should report in-flight submission")
	}
	close(coach.release)
	res := <-done

	if res.Snapshot.Mode != ModeFollowUp || res.Snapshot.Question.ID != 1 {
		t.Fatalf("first submission result %+v", res.Snapshot)
	}
	if got := store.session(userID).CurrentQuestionID; got != 1 {
		t.Fatalf("pointer moved during in-flight submission: %d", got)
	}
	answers, _ := store.ListAnswers(ctx, res.Snapshot.SessionID)
	if len(answers) != 1 || answers[0].Text != "first answer" {
		t.Fatalf("second submission leaked into the store: %+v", answers)
	}
}

func TestRecordTurnReplacesEarlierAnswer(t *testing.T) {
	f, _ := newTestFlow(t, newMemStore(), &fakeCoach{}, &fakeSpeaker{})
	f.history = []Turn{
		{QuestionID: 1, Answer: "old", FollowUpReply: "old reply", CoachReply: "old coaching"},
		{QuestionID: 2, Answer: "two"},
	}
	f.recordTurnLocked(Turn{QuestionID: 1, Answer: "new"})

	if len(f.history) != 2 {
		t.Fatalf("history=%+v", f.history)
	}
	last := f.history[1]
	if last.QuestionID != 1 || last.Answer != "new" || last.FollowUpReply != "" || last.CoachReply != "" {
		t.Fatalf("replaced turn=%+v", last)
	}
	if f.history[0].QuestionID != 2 {
		t.Fatalf("other turn lost: %+v", f.history)
	}
}

func TestFlowSkipFromMainAndFollowUp(t *testing.T) {
	store := newMemStore()
	f, userID := newTestFlow(t, store, &fakeCoach{reply: "Noted."}, nil)
	ctx := context.Background()
	if _, err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := f.Advance(ctx)
	if err != nil {
		t.Fatalf("Advance (skip): %v", err)
	}
	if res.Snapshot.Index != 1 {
		t.Fatalf("skip index=%d want 1", res.Snapshot.Index)
	}
	if _, err := f.Submit(ctx, "dread"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res, err = f.Advance(ctx)
	if err != nil {
		t.Fatalf("Advance (follow-up skip): %v", err)
	}
	if res.Snapshot.Index != 2 || res.Snapshot.Mode != ModeMain {
		t.Fatalf("follow-up skip snapshot %+v", res.Snapshot)
	}
	if got := store.session(userID).CurrentQuestionID; got != 3 {
		t.Fatalf("pointer=%d want 3", got)
	}
}

func TestFlowResumesWhereLeftOff(t *testing.T) {
	store := newMemStore()
	coach := &fakeCoach{reply: "Interesting pattern."}
	f, userID := newTestFlow(t, store, coach, nil)
	ctx := context.Background()

	sess, _ := store.GetOrCreate(ctx, userID)
	for qid, text := range map[int]string{1: "pm", 2: "dread", 3: "my aunt"} {
		_ = store.UpsertAnswer(ctx, sess.ID, qid, text)
	}
	_ = store.AmendFollowUp(ctx, sess.ID, 2, "mostly the meetings")

	res, err := f.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Snapshot.Index != 3 || res.Snapshot.Question.ID != 4 {
		t.Fatalf("resume snapshot %+v", res.Snapshot)
	}
	if res.Prompt != res.Snapshot.Question.Prompt {
		t.Fatalf("resume prompt must not repeat the welcome: %q", res.Prompt)
	}

	if _, err := f.Submit(ctx, "coding late at night"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	call := coach.lastCall()
	if len(call.History) != 3 || call.History[0].QuestionID != 1 || call.History[1].FollowUpReply != "mostly the meetings" {
		t.Fatalf("coach history %+v", call.History)
	}
	if call.Question.ID != 4 || call.Section.ID != 2 {
		t.Fatalf("coach request question=%d section=%d", call.Question.ID, call.Section.ID)
	}
}

func TestFlowResumeHonorsSkippedPointer(t *testing.T) {
	store := newMemStore()
	f, userID := newTestFlow(t, store, &fakeCoach{reply: "ok"}, nil)
	ctx := context.Background()
	sess, _ := store.GetOrCreate(ctx, userID)
	_ = store.UpsertAnswer(ctx, sess.ID, 1, "pm")
	store.sessions[userID].CurrentQuestionID = 6

	res, err := f.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Snapshot.Question.ID != 6 {
		t.Fatalf("resume question=%d want 6", res.Snapshot.Question.ID)
	}
}

func TestFlowStartFailsWithoutSession(t *testing.T) {
	store := newMemStore()
	store.failGetOrCreate = errors.New("db down")
	f, _ := newTestFlow(t, store, &fakeCoach{reply: "ok"}, nil)
	if _, err := f.Start(context.Background()); !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("Start: err=%v want ErrSessionUnavailable", err)
	}
	if _, err := f.Submit(context.Background(), "x"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Submit before start: err=%v want ErrNotStarted", err)
	}
}

func TestFlowProgressWriteFailureIsWarning(t *testing.T) {
	store := newMemStore()
	f, _ := newTestFlow(t, store, &fakeCoach{reply: "ok"}, nil)
	ctx := context.Background()
	if _, err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	store.failUpdate = errors.New("write timeout")
	res, err := f.Advance(ctx)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if res.Snapshot.Index != 1 || len(res.Warnings) == 0 {
		t.Fatalf("Advance: %+v", res)
	}
}

func TestFlowAnswerSaveFailureLeavesStateUntouched(t *testing.T) {
	store := newMemStore()
	coach := &fakeCoach{reply: "ok"}
	f, _ := newTestFlow(t, store, coach, nil)
	ctx := context.Background()
	if _, err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	store.failUpsert = errors.New("db down")
	if _, err := f.Submit(ctx, "pm"); !errors.Is(err, ErrAnswerNotSaved) {
		t.Fatalf("Submit: err=%v want ErrAnswerNotSaved", err)
	}
	snap := f.Snapshot()
	if snap.Index != 0 || snap.Mode != ModeMain || snap.InFlight || len(coach.calls) != 0 {
		t.Fatalf("state changed after failed save: %+v", snap)
	}
}

func TestFlowSpeechFailureKeepsFollowUp(t *testing.T) {
	store := newMemStore()
	speaker := &fakeSpeaker{err: errors.New("no audio")}
	f, _ := newTestFlow(t, store, &fakeCoach{reply: "Tell me more about that."}, speaker)
	ctx := context.Background()
	if _, err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := f.Submit(ctx, "pm")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Snapshot.Mode != ModeFollowUp || res.CoachReply != "Tell me more about that." {
		t.Fatalf("Submit: %+v", res)
	}
	if len(res.Warnings) == 0 {
		t.Fatalf("speech failure should be reported as a warning")
	}
}

func TestFlowFinalMainQuestionHandsOffToOdyssey(t *testing.T) {
	store := newMemStore()
	f, userID := newTestFlow(t, store, &fakeCoach{reply: "A coffee chat is a great start."}, nil)
	ctx := context.Background()
	_, _ = store.GetOrCreate(ctx, userID)
	store.sessions[userID].CurrentQuestionID = 19

	res, err := f.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Snapshot.Question.ID != 19 {
		t.Fatalf("start question=%d want 19", res.Snapshot.Question.ID)
	}
	if _, err := f.Submit(ctx, "coffee with a designer"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res, err = f.Advance(ctx)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !res.OdysseyStarted || !res.Snapshot.MainFinished || res.Snapshot.Odyssey == nil {
		t.Fatalf("Advance: %+v", res)
	}
	if res.Snapshot.Odyssey.PathID != "path_a" || res.Snapshot.Odyssey.Phase != PhasePathEntry {
		t.Fatalf("odyssey start %+v", res.Snapshot.Odyssey)
	}
	stored := store.session(userID)
	if stored.CurrentQuestionID != 17 || len(stored.CompletedSections.Data()) != 8 {
		t.Fatalf("handoff persisted %d %v", stored.CurrentQuestionID, stored.CompletedSections.Data())
	}
	if _, err := f.Advance(ctx); !errors.Is(err, ErrNoActiveQuestion) {
		t.Fatalf("Advance after handoff: err=%v want ErrNoActiveQuestion", err)
	}
	if _, err := f.Submit(ctx, "more"); !errors.Is(err, ErrNoActiveQuestion) {
		t.Fatalf("Submit after handoff: err=%v want ErrNoActiveQuestion", err)
	}
}

func TestFlowFullRunNeverExceedsMainCount(t *testing.T) {
	store := newMemStore()
	f, _ := newTestFlow(t, store, &fakeCoach{reply: "Go on."}, nil)
	ctx := context.Background()
	start, err := f.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	mainCount := catalog.Default().MainCount()
	for i := 0; i < mainCount; i++ {
		if _, err := f.Submit(ctx, "answer"); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		if _, err := f.Submit(ctx, "reply"); err != nil {
			t.Fatalf("Submit reply %d: %v", i, err)
		}
	}
	if got := store.answerCount(start.Snapshot.SessionID); got != mainCount {
		t.Fatalf("answers=%d want %d", got, mainCount)
	}
	if !f.Snapshot().MainFinished {
		t.Fatalf("main sequence should be finished")
	}
}

func TestFlowOdysseyRatingsToCompletion(t *testing.T) {
	store := newMemStore()
	speaker := &fakeSpeaker{}
	f, userID := newTestFlow(t, store, &fakeCoach{reply: "ok"}, speaker)
	ctx := context.Background()
	_, _ = store.GetOrCreate(ctx, userID)
	store.sessions[userID].CurrentQuestionID = 19
	if _, err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.Submit(ctx, "talk to a founder"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.Advance(ctx); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if _, err := f.Rate("energy", 3); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("Rate during path entry: err=%v want ErrWrongPhase", err)
	}
	res, err := f.SubmitPath(ctx, "Staff PM at a climate company")
	if err != nil {
		t.Fatalf("SubmitPath: %v", err)
	}
	if res.Snapshot.Odyssey.Phase != PhasePathRating || !strings.Contains(speaker.last(), "rate Path A") {
		t.Fatalf("SubmitPath: %+v spoken=%q", res.Snapshot.Odyssey, speaker.last())
	}
	if store.session(userID).OdysseyPaths.Data()["path_a"] == "" {
		t.Fatalf("path text not persisted")
	}

	for dim, v := range map[string]int{"engagement": 5, "energy": 0, "confidence": 4, "coherence": 3} {
		_, err := f.Rate(dim, v)
		if v == 0 {
			if !errors.Is(err, ErrInvalidRating) {
				t.Fatalf("Rate 0: err=%v want ErrInvalidRating", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Rate %s: %v", dim, err)
		}
	}
	if f.Snapshot().Odyssey.AllRated {
		t.Fatalf("all rated with energy unset")
	}
	if _, err := f.CompleteRatings(ctx); !errors.Is(err, ErrNotAllRated) {
		t.Fatalf("CompleteRatings: err=%v want ErrNotAllRated", err)
	}
	snap, err := f.Rate("energy", 2)
	if err != nil || !snap.Odyssey.AllRated {
		t.Fatalf("Rate energy: snap=%+v err=%v", snap.Odyssey, err)
	}
	if _, err := f.Rate("energy", 6); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("Rate 6: err=%v want ErrInvalidRating", err)
	}
	if _, err := f.Rate("joy", 3); !errors.Is(err, ErrUnknownDimension) {
		t.Fatalf("Rate unknown: err=%v want ErrUnknownDimension", err)
	}
	res, err = f.CompleteRatings(ctx)
	if err != nil {
		t.Fatalf("CompleteRatings: %v", err)
	}
	if res.Snapshot.Odyssey.PathID != "path_b" || res.Snapshot.Odyssey.Phase != PhasePathEntry {
		t.Fatalf("after path_a: %+v", res.Snapshot.Odyssey)
	}

	for _, id := range []string{"path_b", "path_c"} {
		if _, err := f.SubmitPath(ctx, "description for "+id); err != nil {
			t.Fatalf("SubmitPath %s: %v", id, err)
		}
		for _, dim := range catalog.Default().DimensionIDs() {
			if _, err := f.Rate(dim, 4); err != nil {
				t.Fatalf("Rate %s/%s: %v", id, dim, err)
			}
		}
		if id == "path_c" {
			store.failUpdate = errors.New("db down")
			if _, err := f.CompleteRatings(ctx); !errors.Is(err, ErrOdysseyNotSaved) {
				t.Fatalf("CompleteRatings (failing store): err=%v", err)
			}
			if f.Snapshot().Odyssey.Phase != PhasePathRating {
				t.Fatalf("failed final write must leave the path open")
			}
			store.failUpdate = nil
		}
		if _, err := f.CompleteRatings(ctx); err != nil {
			t.Fatalf("CompleteRatings %s: %v", id, err)
		}
	}

	final := f.Snapshot()
	if !final.Complete || !final.Odyssey.Done {
		t.Fatalf("final snapshot %+v", final)
	}
	stored := store.session(userID)
	answers, _ := store.ListAnswers(ctx, stored.ID)
	if !stored.IsComplete || !CompletionReady(catalog.Default(), stored, answers) {
		t.Fatalf("completion not persisted: %+v", stored)
	}
	if stored.OdysseyRatings.Data()["path_a"]["energy"] != 2 {
		t.Fatalf("ratings %+v", stored.OdysseyRatings.Data())
	}
	if _, err := f.Rate("energy", 3); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("Rate after done: err=%v want ErrWrongPhase", err)
	}
}

func TestFlowSkippingEveryQuestionNeverCompletes(t *testing.T) {
	store := newMemStore()
	f, userID := newTestFlow(t, store, &fakeCoach{reply: "ok"}, nil)
	ctx := context.Background()
	start, err := f.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cat := catalog.Default()
	for i := 0; i < cat.MainCount(); i++ {
		if _, err := f.Advance(ctx); err != nil {
			t.Fatalf("Advance %d: %v", i, err)
		}
	}
	if !f.Snapshot().MainFinished {
		t.Fatalf("main sequence should be finished after skipping")
	}

	var last Result
	for _, id := range cat.PathIDs() {
		if _, err := f.SubmitPath(ctx, "plan for "+id); err != nil {
			t.Fatalf("SubmitPath %s: %v", id, err)
		}
		for _, dim := range cat.DimensionIDs() {
			if _, err := f.Rate(dim, 3); err != nil {
				t.Fatalf("Rate %s/%s: %v", id, dim, err)
			}
		}
		if last, err = f.CompleteRatings(ctx); err != nil {
			t.Fatalf("CompleteRatings %s: %v", id, err)
		}
	}

	if got := store.answerCount(start.Snapshot.SessionID); got != 0 {
		t.Fatalf("answers=%d want 0", got)
	}
	if last.Snapshot.Complete || !last.Snapshot.Odyssey.Done {
		t.Fatalf("final snapshot %+v", last.Snapshot)
	}
	if len(last.Warnings) != 1 || !strings.Contains(last.Warnings[0], "not complete") {
		t.Fatalf("warnings=%v", last.Warnings)
	}
	if store.session(userID).IsComplete {
		t.Fatalf("skip-only session persisted as complete")
	}
}

func TestOdysseyOperationsRequireHandoff(t *testing.T) {
	f, _ := newTestFlow(t, newMemStore(), &fakeCoach{reply: "ok"}, nil)
	ctx := context.Background()
	if _, err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.SubmitPath(ctx, "something"); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("SubmitPath before handoff: err=%v want ErrWrongPhase", err)
	}
}
