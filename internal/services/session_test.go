package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medcase/medcase-backend/internal/pkg/apierr"
	"github.com/medcase/medcase-backend/internal/repos"
	"github.com/medcase/medcase-backend/internal/srs"
	"github.com/medcase/medcase-backend/internal/types"
)

func newSessionService(t *testing.T, f *fixture) *sessionService {
	t.Helper()
	queue := newQueueService(t, f)
	svc := NewSessionService(f.db, f.log, f.sessions, f.prefs, f.states, queue, f.taxonomy).(*sessionService)
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestCreateSessionSnapshotsQueue(t *testing.T) {
	f := newFixture(t)
	svc := newSessionService(t, f)

	f.seedCase(t, "Case A", types.CaseStatusPublished, 2)
	f.seedCase(t, "Case B", types.CaseStatusPublished, 3)

	view, err := svc.Create(testDBC(), "learner-1", CreateSessionInput{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if view.Status != types.SessionStatusActive {
		t.Fatalf("status = %q, want active", view.Status)
	}
	if view.SessionID == nil {
		t.Fatal("expected session id")
	}
	if view.Progress.TotalQuestions != 5 {
		t.Fatalf("total = %d, want 5", view.Progress.TotalQuestions)
	}

	var row types.StudySession
	if err := f.db.Where("id = ?", *view.SessionID).First(&row).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	stored := decodeQueueState(t, row.QueueState)
	if len(stored) != len(view.Queue) {
		t.Fatalf("stored queue length = %d, want %d", len(stored), len(view.Queue))
	}
}

func TestCreateSessionAbandonsPriorActive(t *testing.T) {
	f := newFixture(t)
	svc := newSessionService(t, f)
	f.seedCase(t, "Case A", types.CaseStatusPublished, 1)

	first, err := svc.Create(testDBC(), "learner-1", CreateSessionInput{})
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	second, err := svc.Create(testDBC(), "learner-1", CreateSessionInput{})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}

	var old types.StudySession
	if err := f.db.Where("id = ?", *first.SessionID).First(&old).Error; err != nil {
		t.Fatalf("load first session: %v", err)
	}
	if old.Status != types.SessionStatusAbandoned {
		t.Fatalf("first session status = %q, want abandoned", old.Status)
	}

	var active int64
	if err := f.db.Model(&types.StudySession{}).
		Where("learner_id = ? AND status = ?", "learner-1", types.SessionStatusActive).
		Count(&active).Error; err != nil {
		t.Fatalf("count active: %v", err)
	}
	if active != 1 {
		t.Fatalf("active sessions = %d, want 1 (%s)", active, *second.SessionID)
	}
}

func TestCreateSessionPersistsPreferences(t *testing.T) {
	f := newFixture(t)
	svc := newSessionService(t, f)

	leafID, err := f.taxonomy.UpsertPath(testDBC(), "Cardiology")
	if err != nil {
		t.Fatalf("UpsertPath: %v", err)
	}
	caseID := f.seedCase(t, "Case A", types.CaseStatusPublished, 1)
	f.tagCase(t, caseID, leafID)

	if _, err := svc.Create(testDBC(), "learner-1", CreateSessionInput{TagIDs: []int64{leafID}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Abandon(testDBC(), "learner-1"); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	view, err := svc.Get(testDBC(), "learner-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.Status != "idle" {
		t.Fatalf("status = %q, want idle", view.Status)
	}
	if view.LastPreferences == nil || len(view.LastPreferences.TagIDs) != 1 || view.LastPreferences.TagIDs[0] != leafID {
		t.Fatalf("preferences = %+v", view.LastPreferences)
	}
}

func TestCreateSessionEmptyQueueStillActive(t *testing.T) {
	f := newFixture(t)
	svc := newSessionService(t, f)

	view, err := svc.Create(testDBC(), "learner-1", CreateSessionInput{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if view.Status != types.SessionStatusActive {
		t.Fatalf("status = %q, want active even with nothing to study", view.Status)
	}
	if view.Progress.TotalQuestions != 0 || len(view.Queue) != 0 {
		t.Fatalf("view = %+v, want empty queue", view)
	}
}

func TestGetSessionRefiltersFrozenQueue(t *testing.T) {
	f := newFixture(t)
	svc := newSessionService(t, f)
	review := newReviewService(t, f, srs.TriagePolicy{})

	caseID := f.seedCase(t, "Case A", types.CaseStatusPublished, 2)

	if _, err := svc.Create(testDBC(), "learner-1", CreateSessionInput{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Master one question mid-session; the live view must drop it while
	// the stored snapshot stays frozen.
	if _, err := review.RecordAttempt(testDBC(), "learner-1", RecordAttemptInput{
		CaseID: caseID, QuestionIndex: 0, Score: 95, IsCorrect: boolPtr(true),
	}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	view, err := svc.Get(testDBC(), "learner-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(view.Queue) != 1 {
		t.Fatalf("queue length = %d, want 1", len(view.Queue))
	}
	got := view.Queue[0].ActiveQuestionIndices
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("indices = %v, want [1]", got)
	}

	var row types.StudySession
	if err := f.db.Where("learner_id = ?", "learner-1").First(&row).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	stored := decodeQueueState(t, row.QueueState)
	if len(stored) != 1 || len(stored[0].ActiveQuestionIndices) != 2 {
		t.Fatalf("stored snapshot changed: %+v", stored)
	}
}

func TestAdvanceWalksToCompletion(t *testing.T) {
	f := newFixture(t)
	svc := newSessionService(t, f)
	f.seedCase(t, "Case A", types.CaseStatusPublished, 2)

	if _, err := svc.Create(testDBC(), "learner-1", CreateSessionInput{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := svc.Advance(testDBC(), "learner-1")
	if err != nil {
		t.Fatalf("first Advance: %v", err)
	}
	if first.NewIndex != 1 || first.IsCompleted {
		t.Fatalf("first advance = %+v", first)
	}

	second, err := svc.Advance(testDBC(), "learner-1")
	if err != nil {
		t.Fatalf("second Advance: %v", err)
	}
	if second.NewIndex != 2 || !second.IsCompleted {
		t.Fatalf("second advance = %+v, want completion", second)
	}

	// Advancing a completed session is a no-op reporting the terminal
	// state, not a further increment.
	third, err := svc.Advance(testDBC(), "learner-1")
	if err != nil {
		t.Fatalf("third Advance: %v", err)
	}
	if third.NewIndex != 2 || !third.IsCompleted {
		t.Fatalf("third advance = %+v, want unchanged terminal state", third)
	}

	var row types.StudySession
	if err := f.db.Where("learner_id = ?", "learner-1").First(&row).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	if row.Status != types.SessionStatusCompleted || row.CurrentIndex != 2 {
		t.Fatalf("session row = %+v", row)
	}
}

// contendedSessionRepo slips a competing advance in ahead of the first
// delegated call, so the caller's compare-and-swap loses the race.
type contendedSessionRepo struct {
	repos.StudySessionRepo
	tripped bool
}

func (r *contendedSessionRepo) Advance(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedIndex int, complete bool, now time.Time) (int64, error) {
	if !r.tripped {
		r.tripped = true
		if rows, err := r.StudySessionRepo.Advance(ctx, tx, id, expectedIndex, complete, now); err != nil || rows == 0 {
			return rows, err
		}
	}
	return r.StudySessionRepo.Advance(ctx, tx, id, expectedIndex, complete, now)
}

func TestAdvanceSingleIncrementUnderContention(t *testing.T) {
	f := newFixture(t)
	svc := newSessionService(t, f)
	f.seedCase(t, "Case A", types.CaseStatusPublished, 3)

	if _, err := svc.Create(testDBC(), "learner-1", CreateSessionInput{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	svc.sessions = &contendedSessionRepo{StudySessionRepo: f.sessions}

	// Both racers read current_index = 0; only the first conditional
	// update fires, the loser re-reads and reports the winner's state.
	result, err := svc.Advance(testDBC(), "learner-1")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if result.NewIndex != 1 || result.IsCompleted {
		t.Fatalf("losing racer result = %+v, want the winner's state", result)
	}

	var row types.StudySession
	if err := f.db.Where("learner_id = ?", "learner-1").First(&row).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	if row.CurrentIndex != 1 {
		t.Fatalf("current_index = %d, want exactly one increment from two attempts", row.CurrentIndex)
	}
	if row.Status != types.SessionStatusActive {
		t.Fatalf("status = %q, want active", row.Status)
	}
}

func TestAdvanceWithoutSession(t *testing.T) {
	f := newFixture(t)
	svc := newSessionService(t, f)

	_, err := svc.Advance(testDBC(), "learner-1")
	if err == nil {
		t.Fatal("advance without a session should fail")
	}
	if !apierr.IsKind(err, apierr.KindState) {
		t.Fatalf("error kind = %v, want state error", err)
	}
}

func TestAdvanceAbandonedSession(t *testing.T) {
	f := newFixture(t)
	svc := newSessionService(t, f)
	f.seedCase(t, "Case A", types.CaseStatusPublished, 1)

	if _, err := svc.Create(testDBC(), "learner-1", CreateSessionInput{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Abandon(testDBC(), "learner-1"); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	if _, err := svc.Advance(testDBC(), "learner-1"); err == nil {
		t.Fatal("advance on an abandoned session should fail")
	}
}

func TestAbandonIsIdempotent(t *testing.T) {
	f := newFixture(t)
	svc := newSessionService(t, f)
	f.seedCase(t, "Case A", types.CaseStatusPublished, 1)

	if _, err := svc.Create(testDBC(), "learner-1", CreateSessionInput{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Abandon(testDBC(), "learner-1"); err != nil {
		t.Fatalf("first Abandon: %v", err)
	}
	if err := svc.Abandon(testDBC(), "learner-1"); err != nil {
		t.Fatalf("second Abandon should be a no-op: %v", err)
	}
	if err := svc.Abandon(testDBC(), "learner-2"); err != nil {
		t.Fatalf("Abandon with no session should be a no-op: %v", err)
	}
}
