package services

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/medcase/medcase-backend/internal/pkg/apierr"
	"github.com/medcase/medcase-backend/internal/pkg/dbctx"
	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/platform/cache"
	"github.com/medcase/medcase-backend/internal/repos"
	"github.com/medcase/medcase-backend/internal/srs"
	"github.com/medcase/medcase-backend/internal/types"
)

const (
	QuestionStateUnseen         = "unseen"
	QuestionStateAwaitingTriage = "awaiting_triage"
	QuestionStateScheduled      = "scheduled"
	QuestionStateMastered       = "mastered"
)

const (
	TriageActionShortTerm = "short_term"
	TriageActionLongTerm  = "long_term"
	TriageActionDismiss   = "dismiss"
)

type RecordAttemptInput struct {
	CaseID        int64           `json:"caseId"`
	QuestionIndex int             `json:"questionIndex"`
	Score         int             `json:"score"`
	IsCorrect     *bool           `json:"isCorrect"`
	Feedback      json.RawMessage `json:"feedback"`
	Note          *string         `json:"note"`
}

type AttemptResult struct {
	AttemptID    int64      `json:"attemptId"`
	Status       string     `json:"status"`
	IsMastered   bool       `json:"isMastered"`
	NextReviewAt *time.Time `json:"nextReview"`
}

// QuestionProgress is the learner-facing due state of one question.
type QuestionProgress struct {
	State        string     `json:"state"`
	IsDue        bool       `json:"isDue"`
	IsMastered   bool       `json:"isMastered"`
	NextReviewAt *time.Time `json:"nextReview"`
	LastScore    *int       `json:"lastScore"`
}

type TriageDecisionResult struct {
	Action       string     `json:"action"`
	Days         int        `json:"days"`
	IsMastered   bool       `json:"isMastered"`
	ScheduledFor *time.Time `json:"scheduledFor"`
}

type ReviewService interface {
	RecordAttempt(dbc dbctx.Context, learnerID string, in RecordAttemptInput) (*AttemptResult, error)
	GetProgress(dbc dbctx.Context, learnerID string, caseID int64) (map[int]QuestionProgress, error)
	ApplyTriageDecision(dbc dbctx.Context, learnerID string, caseID int64, questionIndex int, action string) (*TriageDecisionResult, error)
	UpdateAttemptNote(dbc dbctx.Context, learnerID string, caseID int64, questionIndex int, note string) error
}

type reviewService struct {
	db       *gorm.DB
	log      *logger.Logger
	attempts repos.AttemptRepo
	states   repos.ReviewStateRepo
	cases    repos.ClinicalCaseRepo
	policy   srs.Policy
	cache    *cache.Cache
	now      func() time.Time
}

func NewReviewService(
	db *gorm.DB,
	baseLog *logger.Logger,
	attempts repos.AttemptRepo,
	states repos.ReviewStateRepo,
	cases repos.ClinicalCaseRepo,
	policy srs.Policy,
	c *cache.Cache,
) ReviewService {
	return &reviewService{
		db:       db,
		log:      baseLog.With("service", "ReviewService"),
		attempts: attempts,
		states:   states,
		cases:    cases,
		policy:   policy,
		cache:    c,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// resolveCorrect falls back from the explicit flag to the feedback payload
// and finally to a perfect score.
func resolveCorrect(in RecordAttemptInput) bool {
	if in.IsCorrect != nil {
		return *in.IsCorrect
	}
	if len(in.Feedback) > 0 {
		var fb struct {
			IsCorrect *bool `json:"isCorrect"`
		}
		if err := json.Unmarshal(in.Feedback, &fb); err == nil && fb.IsCorrect != nil {
			return *fb.IsCorrect
		}
	}
	return in.Score >= 100
}

// RecordAttempt appends the attempt and reconciles the review state in a
// single transaction. Either both rows land or neither does.
func (s *reviewService) RecordAttempt(dbc dbctx.Context, learnerID string, in RecordAttemptInput) (*AttemptResult, error) {
	if in.CaseID <= 0 {
		return nil, apierr.Validation("case_id", "case_id must be positive")
	}
	if in.QuestionIndex < 0 {
		return nil, apierr.Validation("question_index", "question_index must not be negative")
	}
	if in.Score < 0 || in.Score > 100 {
		return nil, apierr.Validation("score", "score must be between 0 and 100")
	}

	clinicalCase, err := s.cases.GetPublished(dbc.Ctx, dbc.Tx, in.CaseID)
	if err != nil {
		return nil, apierr.Storage("resolve case", err)
	}
	if clinicalCase == nil {
		return nil, apierr.NotFound("case_id", "unknown case")
	}
	question, err := s.cases.QuestionByCaseAndIndex(dbc.Ctx, dbc.Tx, in.CaseID, in.QuestionIndex)
	if err != nil {
		return nil, apierr.Storage("resolve question", err)
	}
	if question == nil {
		return nil, apierr.NotFound("question_index", "unknown question")
	}

	now := s.now()
	isCorrect := resolveCorrect(in)

	run := func(inner dbctx.Context) (*AttemptResult, error) {
		attempt := &types.AttemptRecord{
			LearnerID:     learnerID,
			CaseID:        in.CaseID,
			QuestionIndex: in.QuestionIndex,
			Score:         in.Score,
			IsCorrect:     isCorrect,
			Note:          in.Note,
			AttemptedAt:   now,
		}
		if len(in.Feedback) > 0 {
			attempt.Feedback = datatypes.JSON(in.Feedback)
		}
		if err := s.attempts.Create(inner.Ctx, inner.Tx, attempt); err != nil {
			return nil, apierr.Storage("record attempt", err)
		}

		prior, err := s.states.Get(inner.Ctx, inner.Tx, learnerID, in.CaseID, in.QuestionIndex)
		if err != nil {
			return nil, apierr.Storage("load review state", err)
		}

		var snapshot *srs.Snapshot
		consecutive := 0
		if prior != nil {
			snapshot = &srs.Snapshot{
				IsMastered:         prior.IsMastered,
				NextReviewAt:       prior.NextReviewAt,
				ConsecutiveCorrect: prior.ConsecutiveCorrect,
			}
			consecutive = prior.ConsecutiveCorrect
		}
		if isCorrect {
			consecutive++
		} else {
			consecutive = 0
		}

		result := s.policy.Evaluate(snapshot, srs.Outcome{Score: in.Score, IsCorrect: isCorrect}, now)

		score := in.Score
		state := &types.ReviewState{
			LearnerID:          learnerID,
			CaseID:             in.CaseID,
			QuestionIndex:      in.QuestionIndex,
			NextReviewAt:       result.NextReviewAt,
			IsMastered:         result.IsMastered,
			LearningStatus:     result.LearningStatus,
			LastScore:          &score,
			ConsecutiveCorrect: consecutive,
			UpdatedAt:          now,
		}
		if prior != nil {
			state.EaseFactor = prior.EaseFactor
		}
		if err := s.states.Upsert(inner.Ctx, inner.Tx, state); err != nil {
			return nil, apierr.Storage("upsert review state", err)
		}

		return &AttemptResult{
			AttemptID:    attempt.ID,
			Status:       result.LearningStatus,
			IsMastered:   result.IsMastered,
			NextReviewAt: result.NextReviewAt,
		}, nil
	}

	if dbc.Tx != nil {
		return run(dbc)
	}

	var out *AttemptResult
	if err := s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		res, err := run(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
		if err != nil {
			return err
		}
		out = res
		return nil
	}); err != nil {
		s.log.Warn("RecordAttempt transaction error", "learner_id", learnerID, "case_id", in.CaseID, "error", err)
		return nil, err
	}
	s.cache.Invalidate(dbc.Ctx, availabilityKey(learnerID))
	return out, nil
}

func dueStateOf(row *types.ReviewState, now time.Time) (string, bool) {
	if row == nil {
		return QuestionStateUnseen, true
	}
	if row.IsMastered {
		return QuestionStateMastered, false
	}
	if row.NextReviewAt == nil {
		return QuestionStateAwaitingTriage, true
	}
	return QuestionStateScheduled, !row.NextReviewAt.After(now)
}

// GetProgress reports the due state of every question in a case, including
// questions the learner has never attempted.
func (s *reviewService) GetProgress(dbc dbctx.Context, learnerID string, caseID int64) (map[int]QuestionProgress, error) {
	clinicalCase, err := s.cases.GetPublished(dbc.Ctx, dbc.Tx, caseID)
	if err != nil {
		return nil, apierr.Storage("resolve case", err)
	}
	if clinicalCase == nil {
		return nil, apierr.NotFound("case_id", "unknown case")
	}

	questions, err := s.cases.QuestionsByCaseID(dbc.Ctx, dbc.Tx, caseID)
	if err != nil {
		return nil, apierr.Storage("list questions", err)
	}
	rows, err := s.states.ListByLearnerAndCase(dbc.Ctx, dbc.Tx, learnerID, caseID)
	if err != nil {
		return nil, apierr.Storage("list review states", err)
	}

	byIndex := make(map[int]*types.ReviewState, len(rows))
	for _, row := range rows {
		byIndex[row.QuestionIndex] = row
	}

	now := s.now()
	progress := make(map[int]QuestionProgress, len(questions))
	for _, q := range questions {
		row := byIndex[q.OrderIndex]
		state, due := dueStateOf(row, now)
		p := QuestionProgress{State: state, IsDue: due}
		if row != nil {
			p.IsMastered = row.IsMastered
			p.NextReviewAt = row.NextReviewAt
			p.LastScore = row.LastScore
		}
		progress[q.OrderIndex] = p
	}
	return progress, nil
}

// ApplyTriageDecision resolves an awaiting-triage item either into a
// scheduled date or straight to mastered.
func (s *reviewService) ApplyTriageDecision(dbc dbctx.Context, learnerID string, caseID int64, questionIndex int, action string) (*TriageDecisionResult, error) {
	now := s.now()

	updates := map[string]any{"updated_at": now}
	result := &TriageDecisionResult{Action: action}
	switch action {
	case TriageActionShortTerm:
		due := now.AddDate(0, 0, srs.ShortIntervalDays)
		updates["next_review_at"] = due
		updates["is_mastered"] = false
		updates["learning_status"] = srs.StatusLearning
		result.Days = srs.ShortIntervalDays
		result.ScheduledFor = &due
	case TriageActionLongTerm:
		due := now.AddDate(0, 0, srs.LongIntervalDays)
		updates["next_review_at"] = due
		updates["is_mastered"] = false
		updates["learning_status"] = srs.StatusLearning
		result.Days = srs.LongIntervalDays
		result.ScheduledFor = &due
	case TriageActionDismiss:
		updates["next_review_at"] = nil
		updates["is_mastered"] = true
		updates["learning_status"] = srs.StatusMastered
		result.IsMastered = true
	default:
		return nil, apierr.Validation("action", "action must be short_term, long_term or dismiss")
	}

	rows, err := s.states.UpdateFields(dbc.Ctx, dbc.Tx, learnerID, caseID, questionIndex, updates)
	if err != nil {
		return nil, apierr.Storage("apply triage decision", err)
	}
	if rows == 0 {
		return nil, apierr.NotFound("question_index", "no review state for item")
	}
	s.cache.Invalidate(dbc.Ctx, availabilityKey(learnerID))
	return result, nil
}

// UpdateAttemptNote patches the note on the most recent attempt for the
// question. Without any attempt there is nothing to annotate and the call
// is a no-op.
func (s *reviewService) UpdateAttemptNote(dbc dbctx.Context, learnerID string, caseID int64, questionIndex int, note string) error {
	latest, err := s.attempts.LatestByQuestion(dbc.Ctx, dbc.Tx, learnerID, caseID, questionIndex)
	if err != nil {
		return apierr.Storage("resolve latest attempt", err)
	}
	if latest == nil {
		return nil
	}
	if err := s.attempts.UpdateNote(dbc.Ctx, dbc.Tx, latest.ID, note); err != nil {
		return apierr.Storage("update attempt note", err)
	}
	return nil
}
