package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/medcase/medcase-backend/internal/srs"
	"github.com/medcase/medcase-backend/internal/types"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newReviewService(t *testing.T, f *fixture, policy srs.Policy) *reviewService {
	t.Helper()
	svc := NewReviewService(f.db, f.log, f.attempts, f.states, f.cases, policy, nil).(*reviewService)
	svc.now = func() time.Time { return testNow }
	return svc
}

func boolPtr(v bool) *bool { return &v }

func TestRecordAttemptCorrectMastersQuestion(t *testing.T) {
	f := newFixture(t)
	svc := newReviewService(t, f, srs.TriagePolicy{})
	caseID := f.seedCase(t, "AFib workup", types.CaseStatusPublished, 2)

	result, err := svc.RecordAttempt(testDBC(), "learner-1", RecordAttemptInput{
		CaseID:        caseID,
		QuestionIndex: 0,
		Score:         92,
		IsCorrect:     boolPtr(true),
	})
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if !result.IsMastered {
		t.Fatal("correct attempt should master the question")
	}
	if result.NextReviewAt != nil {
		t.Fatalf("mastered question must have no review date, got %v", result.NextReviewAt)
	}

	var state types.ReviewState
	if err := f.db.Where("learner_id = ? AND case_id = ? AND question_index = ?",
		"learner-1", caseID, 0).First(&state).Error; err != nil {
		t.Fatalf("load state: %v", err)
	}
	if !state.IsMastered || state.NextReviewAt != nil {
		t.Fatalf("state = %+v, want mastered with nil date", state)
	}
	if state.ConsecutiveCorrect != 1 {
		t.Fatalf("consecutive = %d, want 1", state.ConsecutiveCorrect)
	}

	var attempts int64
	if err := f.db.Model(&types.AttemptRecord{}).Count(&attempts).Error; err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempt count = %d, want 1", attempts)
	}
}

func TestRecordAttemptIncorrectAwaitsTriage(t *testing.T) {
	f := newFixture(t)
	svc := newReviewService(t, f, srs.TriagePolicy{})
	caseID := f.seedCase(t, "AFib workup", types.CaseStatusPublished, 1)

	result, err := svc.RecordAttempt(testDBC(), "learner-1", RecordAttemptInput{
		CaseID:        caseID,
		QuestionIndex: 0,
		Score:         30,
		IsCorrect:     boolPtr(false),
	})
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if result.IsMastered {
		t.Fatal("incorrect attempt must not master")
	}
	if result.NextReviewAt != nil {
		t.Fatal("incorrect attempt must leave the date unset for triage")
	}

	progress, err := svc.GetProgress(testDBC(), "learner-1", caseID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	p := progress[0]
	if p.State != QuestionStateAwaitingTriage || !p.IsDue {
		t.Fatalf("progress = %+v, want awaiting_triage and due", p)
	}
}

func TestRecordAttemptGradedPolicySchedules(t *testing.T) {
	f := newFixture(t)
	svc := newReviewService(t, f, srs.GradedPolicy{})
	caseID := f.seedCase(t, "Sepsis bundle", types.CaseStatusPublished, 1)

	result, err := svc.RecordAttempt(testDBC(), "learner-1", RecordAttemptInput{
		CaseID:        caseID,
		QuestionIndex: 0,
		Score:         65,
	})
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if result.IsMastered {
		t.Fatal("score 65 must not master")
	}
	want := testNow.AddDate(0, 0, srs.LongIntervalDays)
	if result.NextReviewAt == nil || !result.NextReviewAt.Equal(want) {
		t.Fatalf("next review = %v, want %v", result.NextReviewAt, want)
	}
}

func TestRecordAttemptCorrectnessFallbacks(t *testing.T) {
	cases := []struct {
		name string
		in   RecordAttemptInput
		want bool
	}{
		{"explicit_flag_wins", RecordAttemptInput{Score: 0, IsCorrect: boolPtr(true)}, true},
		{"feedback_flag", RecordAttemptInput{Score: 0, Feedback: json.RawMessage(`{"isCorrect":true}`)}, true},
		{"feedback_flag_false", RecordAttemptInput{Score: 100, Feedback: json.RawMessage(`{"isCorrect":false}`)}, false},
		{"perfect_score", RecordAttemptInput{Score: 100}, true},
		{"imperfect_score", RecordAttemptInput{Score: 99}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveCorrect(tc.in); got != tc.want {
				t.Fatalf("resolveCorrect = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRecordAttemptValidation(t *testing.T) {
	f := newFixture(t)
	svc := newReviewService(t, f, srs.TriagePolicy{})
	caseID := f.seedCase(t, "AFib workup", types.CaseStatusPublished, 1)

	bad := []RecordAttemptInput{
		{CaseID: caseID, QuestionIndex: 0, Score: -1},
		{CaseID: caseID, QuestionIndex: 0, Score: 101},
		{CaseID: caseID, QuestionIndex: -1, Score: 50},
		{CaseID: 0, QuestionIndex: 0, Score: 50},
	}
	for _, in := range bad {
		if _, err := svc.RecordAttempt(testDBC(), "learner-1", in); err == nil {
			t.Fatalf("RecordAttempt(%+v) should fail", in)
		}
	}

	// Unknown case and unknown question are not found, not stored.
	if _, err := svc.RecordAttempt(testDBC(), "learner-1", RecordAttemptInput{
		CaseID: 9999, QuestionIndex: 0, Score: 50,
	}); err == nil {
		t.Fatal("unknown case should fail")
	}
	if _, err := svc.RecordAttempt(testDBC(), "learner-1", RecordAttemptInput{
		CaseID: caseID, QuestionIndex: 5, Score: 50,
	}); err == nil {
		t.Fatal("unknown question index should fail")
	}

	var attempts int64
	if err := f.db.Model(&types.AttemptRecord{}).Count(&attempts).Error; err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if attempts != 0 {
		t.Fatalf("attempt count = %d, want 0", attempts)
	}
}

// The attempt insert and the state upsert share one transaction: when the
// state write cannot land, the attempt must roll back with it.
func TestRecordAttemptAtomicity(t *testing.T) {
	f := newFixture(t)
	svc := newReviewService(t, f, srs.TriagePolicy{})
	caseID := f.seedCase(t, "AFib workup", types.CaseStatusPublished, 1)

	if err := f.db.Migrator().DropTable(&types.ReviewState{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	if _, err := svc.RecordAttempt(testDBC(), "learner-1", RecordAttemptInput{
		CaseID: caseID, QuestionIndex: 0, Score: 80, IsCorrect: boolPtr(true),
	}); err == nil {
		t.Fatal("RecordAttempt should fail without the state table")
	}

	var attempts int64
	if err := f.db.Model(&types.AttemptRecord{}).Count(&attempts).Error; err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if attempts != 0 {
		t.Fatalf("attempt count = %d, want 0 after rollback", attempts)
	}
}

func TestConsecutiveCorrectResets(t *testing.T) {
	f := newFixture(t)
	svc := newReviewService(t, f, srs.TriagePolicy{})
	caseID := f.seedCase(t, "AFib workup", types.CaseStatusPublished, 1)

	record := func(correct bool) {
		t.Helper()
		if _, err := svc.RecordAttempt(testDBC(), "learner-1", RecordAttemptInput{
			CaseID: caseID, QuestionIndex: 0, Score: 50, IsCorrect: boolPtr(correct),
		}); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}
	record(true)
	record(true)
	record(false)

	var state types.ReviewState
	if err := f.db.Where("learner_id = ?", "learner-1").First(&state).Error; err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state.ConsecutiveCorrect != 0 {
		t.Fatalf("consecutive = %d, want 0 after a miss", state.ConsecutiveCorrect)
	}
}

func TestGetProgressThreeWayStates(t *testing.T) {
	f := newFixture(t)
	svc := newReviewService(t, f, srs.TriagePolicy{})
	caseID := f.seedCase(t, "AFib workup", types.CaseStatusPublished, 4)

	future := testNow.AddDate(0, 0, 7)
	f.seedState(t, "learner-1", caseID, 1, false, nil)     // awaiting triage
	f.seedState(t, "learner-1", caseID, 2, false, &future) // scheduled, not due
	f.seedState(t, "learner-1", caseID, 3, true, nil)      // mastered

	progress, err := svc.GetProgress(testDBC(), "learner-1", caseID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if len(progress) != 4 {
		t.Fatalf("progress size = %d, want 4", len(progress))
	}

	checks := []struct {
		index int
		state string
		due   bool
	}{
		{0, QuestionStateUnseen, true},
		{1, QuestionStateAwaitingTriage, true},
		{2, QuestionStateScheduled, false},
		{3, QuestionStateMastered, false},
	}
	for _, c := range checks {
		p := progress[c.index]
		if p.State != c.state || p.IsDue != c.due {
			t.Fatalf("question %d: got %+v, want state=%s due=%v", c.index, p, c.state, c.due)
		}
	}
}

func TestGetProgressDueWhenDateArrives(t *testing.T) {
	f := newFixture(t)
	svc := newReviewService(t, f, srs.TriagePolicy{})
	caseID := f.seedCase(t, "AFib workup", types.CaseStatusPublished, 1)

	due := testNow.Add(-time.Minute)
	f.seedState(t, "learner-1", caseID, 0, false, &due)

	progress, err := svc.GetProgress(testDBC(), "learner-1", caseID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if p := progress[0]; p.State != QuestionStateScheduled || !p.IsDue {
		t.Fatalf("progress = %+v, want scheduled and due", p)
	}
}

func TestApplyTriageDecision(t *testing.T) {
	f := newFixture(t)
	svc := newReviewService(t, f, srs.TriagePolicy{})
	caseID := f.seedCase(t, "AFib workup", types.CaseStatusPublished, 3)
	for i := 0; i < 3; i++ {
		f.seedState(t, "learner-1", caseID, i, false, nil)
	}

	short, err := svc.ApplyTriageDecision(testDBC(), "learner-1", caseID, 0, TriageActionShortTerm)
	if err != nil {
		t.Fatalf("short_term: %v", err)
	}
	if short.Days != srs.ShortIntervalDays || short.ScheduledFor == nil {
		t.Fatalf("short_term result = %+v", short)
	}

	long, err := svc.ApplyTriageDecision(testDBC(), "learner-1", caseID, 1, TriageActionLongTerm)
	if err != nil {
		t.Fatalf("long_term: %v", err)
	}
	if long.Days != srs.LongIntervalDays {
		t.Fatalf("long_term days = %d", long.Days)
	}

	dismiss, err := svc.ApplyTriageDecision(testDBC(), "learner-1", caseID, 2, TriageActionDismiss)
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if !dismiss.IsMastered || dismiss.ScheduledFor != nil {
		t.Fatalf("dismiss result = %+v", dismiss)
	}

	if _, err := svc.ApplyTriageDecision(testDBC(), "learner-1", caseID, 0, "later"); err == nil {
		t.Fatal("unknown action should fail")
	}
	if _, err := svc.ApplyTriageDecision(testDBC(), "learner-1", caseID, 99, TriageActionDismiss); err == nil {
		t.Fatal("missing state should fail")
	}
}

func TestUpdateAttemptNote(t *testing.T) {
	f := newFixture(t)
	svc := newReviewService(t, f, srs.TriagePolicy{})
	caseID := f.seedCase(t, "AFib workup", types.CaseStatusPublished, 1)

	// No attempt yet: nothing to annotate, no error.
	if err := svc.UpdateAttemptNote(testDBC(), "learner-1", caseID, 0, "early note"); err != nil {
		t.Fatalf("note without attempt: %v", err)
	}

	if _, err := svc.RecordAttempt(testDBC(), "learner-1", RecordAttemptInput{
		CaseID: caseID, QuestionIndex: 0, Score: 40, IsCorrect: boolPtr(false),
	}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	// A later retry becomes the annotation target.
	svc.now = func() time.Time { return testNow.Add(time.Hour) }
	if _, err := svc.RecordAttempt(testDBC(), "learner-1", RecordAttemptInput{
		CaseID: caseID, QuestionIndex: 0, Score: 60, IsCorrect: boolPtr(false),
	}); err != nil {
		t.Fatalf("RecordAttempt retry: %v", err)
	}

	if err := svc.UpdateAttemptNote(testDBC(), "learner-1", caseID, 0, "missed the rate control step"); err != nil {
		t.Fatalf("UpdateAttemptNote: %v", err)
	}

	var attempts []types.AttemptRecord
	if err := f.db.Where("learner_id = ?", "learner-1").Order("attempted_at ASC").Find(&attempts).Error; err != nil {
		t.Fatalf("load attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
	if attempts[0].Note != nil {
		t.Fatalf("older attempt annotated: %v", *attempts[0].Note)
	}
	if attempts[1].Note == nil || *attempts[1].Note != "missed the rate control step" {
		t.Fatalf("note = %v", attempts[1].Note)
	}
}
