package services

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/medcase/medcase-backend/internal/pkg/apierr"
	"github.com/medcase/medcase-backend/internal/pkg/dbctx"
	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/repos"
	"github.com/medcase/medcase-backend/internal/types"
)

type SessionPreferences struct {
	TagIDs []int64 `json:"tagIds"`
}

type SessionProgress struct {
	CurrentIndex   int `json:"currentIndex"`
	TotalQuestions int `json:"totalQuestions"`
}

// SessionView is what the client renders: either an active session with
// its live queue, or an idle shell carrying the last preferences.
type SessionView struct {
	Status          string              `json:"status"`
	SessionID       *uuid.UUID          `json:"sessionId,omitempty"`
	Queue           []types.QueueItem   `json:"queue,omitempty"`
	Progress        *SessionProgress    `json:"progress,omitempty"`
	LastPreferences *SessionPreferences `json:"lastPreferences,omitempty"`
}

type AdvanceResult struct {
	SessionID   uuid.UUID `json:"sessionId"`
	NewIndex    int       `json:"newIndex"`
	IsCompleted bool      `json:"isCompleted"`
}

type CreateSessionInput struct {
	TagIDs []int64 `json:"tagIds"`
	Limit  int     `json:"quantity"`
}

type SessionService interface {
	Create(dbc dbctx.Context, learnerID string, in CreateSessionInput) (*SessionView, error)
	Get(dbc dbctx.Context, learnerID string) (*SessionView, error)
	Advance(dbc dbctx.Context, learnerID string) (*AdvanceResult, error)
	Abandon(dbc dbctx.Context, learnerID string) error
}

type sessionService struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions repos.StudySessionRepo
	prefs    repos.PreferenceRepo
	states   repos.ReviewStateRepo
	queue    QueueService
	taxonomy TaxonomyService
	now      func() time.Time
}

func NewSessionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	sessions repos.StudySessionRepo,
	prefs repos.PreferenceRepo,
	states repos.ReviewStateRepo,
	queue QueueService,
	taxonomy TaxonomyService,
) SessionService {
	return &sessionService{
		db:       db,
		log:      baseLog.With("service", "SessionService"),
		sessions: sessions,
		prefs:    prefs,
		states:   states,
		queue:    queue,
		taxonomy: taxonomy,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create abandons any active session, persists the tag selection as the
// learner's preferences, snapshots a fresh queue and opens the session,
// all in one transaction.
func (s *sessionService) Create(dbc dbctx.Context, learnerID string, in CreateSessionInput) (*SessionView, error) {
	now := s.now()

	run := func(inner dbctx.Context) (*SessionView, error) {
		if _, err := s.sessions.AbandonActive(inner.Ctx, inner.Tx, learnerID, now); err != nil {
			return nil, apierr.Storage("abandon active session", err)
		}

		tagIDs := in.TagIDs
		if tagIDs == nil {
			tagIDs = []int64{}
		}
		rawTags, err := json.Marshal(tagIDs)
		if err != nil {
			return nil, apierr.Storage("encode preferences", err)
		}
		pref := &types.LearnerPreference{
			LearnerID:      learnerID,
			SelectedTagIDs: datatypes.JSON(rawTags),
			UpdatedAt:      now,
		}
		if err := s.prefs.Upsert(inner.Ctx, inner.Tx, pref); err != nil {
			return nil, apierr.Storage("save preferences", err)
		}

		slugs, err := s.taxonomy.SlugsForIDs(inner, tagIDs)
		if err != nil {
			return nil, err
		}
		queue, err := s.queue.Generate(inner, learnerID, slugs, in.Limit)
		if err != nil {
			return nil, err
		}

		total := 0
		for _, item := range queue {
			total += len(item.ActiveQuestionIndices)
		}
		rawQueue, err := json.Marshal(queue)
		if err != nil {
			return nil, apierr.Storage("encode queue", err)
		}

		session := &types.StudySession{
			ID:             uuid.New(),
			LearnerID:      learnerID,
			Status:         types.SessionStatusActive,
			CurrentIndex:   0,
			TotalQuestions: total,
			QueueState:     datatypes.JSON(rawQueue),
			CreatedAt:      now,
			LastActivityAt: now,
		}
		if err := s.sessions.Create(inner.Ctx, inner.Tx, session); err != nil {
			return nil, apierr.Storage("create session", err)
		}

		id := session.ID
		return &SessionView{
			Status:    types.SessionStatusActive,
			SessionID: &id,
			Queue:     queue,
			Progress: &SessionProgress{
				CurrentIndex:   session.CurrentIndex,
				TotalQuestions: session.TotalQuestions,
			},
		}, nil
	}

	if dbc.Tx != nil {
		return run(dbc)
	}

	var out *SessionView
	if err := s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		view, err := run(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
		if err != nil {
			return err
		}
		out = view
		return nil
	}); err != nil {
		s.log.Warn("Create transaction error", "learner_id", learnerID, "error", err)
		return nil, err
	}
	return out, nil
}

func decodeQueue(raw datatypes.JSON) ([]types.QueueItem, error) {
	var queue []types.QueueItem
	if len(raw) == 0 {
		return queue, nil
	}
	if err := json.Unmarshal(raw, &queue); err != nil {
		return nil, err
	}
	return queue, nil
}

// Get returns the active session with its frozen queue re-filtered against
// live review state, or an idle view with the learner's last preferences.
func (s *sessionService) Get(dbc dbctx.Context, learnerID string) (*SessionView, error) {
	active, err := s.sessions.GetActive(dbc.Ctx, dbc.Tx, learnerID)
	if err != nil {
		return nil, apierr.Storage("load session", err)
	}

	if active == nil {
		view := &SessionView{Status: "idle"}
		pref, err := s.prefs.Get(dbc.Ctx, dbc.Tx, learnerID)
		if err != nil {
			return nil, apierr.Storage("load preferences", err)
		}
		if pref != nil {
			var tagIDs []int64
			if len(pref.SelectedTagIDs) > 0 {
				if err := json.Unmarshal(pref.SelectedTagIDs, &tagIDs); err != nil {
					s.log.Warn("corrupt preference payload", "learner_id", learnerID, "error", err)
				}
			}
			view.LastPreferences = &SessionPreferences{TagIDs: tagIDs}
		}
		return view, nil
	}

	queue, err := decodeQueue(active.QueueState)
	if err != nil {
		return nil, apierr.Storage("decode queue", err)
	}

	caseIDs := make([]int64, 0, len(queue))
	for _, item := range queue {
		caseIDs = append(caseIDs, item.CaseID)
	}
	rows, err := s.states.ListByLearnerAndCases(dbc.Ctx, dbc.Tx, learnerID, caseIDs)
	if err != nil {
		return nil, apierr.Storage("list review states", err)
	}
	byKey := make(map[stateKey]*types.ReviewState, len(rows))
	for _, row := range rows {
		byKey[stateKey{caseID: row.CaseID, index: row.QuestionIndex}] = row
	}

	now := s.now()
	filtered := make([]types.QueueItem, 0, len(queue))
	for _, item := range queue {
		indices := make([]int, 0, len(item.ActiveQuestionIndices))
		for _, idx := range item.ActiveQuestionIndices {
			if eligibleForReview(byKey[stateKey{caseID: item.CaseID, index: idx}], now) {
				indices = append(indices, idx)
			}
		}
		if len(indices) == 0 {
			continue
		}
		filtered = append(filtered, types.QueueItem{
			CaseID:                item.CaseID,
			ActiveQuestionIndices: indices,
		})
	}

	id := active.ID
	return &SessionView{
		Status:    active.Status,
		SessionID: &id,
		Queue:     filtered,
		Progress: &SessionProgress{
			CurrentIndex:   active.CurrentIndex,
			TotalQuestions: active.TotalQuestions,
		},
	}, nil
}

// Advance moves the cursor forward by one under a compare-and-swap guard.
// Advancing a completed session is a no-op that reports the terminal
// state; with no session at all it is a state error.
func (s *sessionService) Advance(dbc dbctx.Context, learnerID string) (*AdvanceResult, error) {
	latest, err := s.sessions.GetActive(dbc.Ctx, dbc.Tx, learnerID)
	if err != nil {
		return nil, apierr.Storage("load session", err)
	}
	if latest == nil {
		// No active session. A just-completed one still answers the
		// duplicate advance idempotently; anything else is a state error.
		terminal, err := s.sessions.GetLatest(dbc.Ctx, dbc.Tx, learnerID)
		if err != nil {
			return nil, apierr.Storage("load session", err)
		}
		if terminal == nil {
			return nil, apierr.State("no study session to advance")
		}
		if terminal.Status == types.SessionStatusCompleted {
			return &AdvanceResult{
				SessionID:   terminal.ID,
				NewIndex:    terminal.CurrentIndex,
				IsCompleted: true,
			}, nil
		}
		return nil, apierr.State("session is " + terminal.Status)
	}

	expected := latest.CurrentIndex
	complete := expected+1 >= latest.TotalQuestions
	rows, err := s.sessions.Advance(dbc.Ctx, dbc.Tx, latest.ID, expected, complete, s.now())
	if err != nil {
		return nil, apierr.Storage("advance session", err)
	}
	if rows == 0 {
		// Lost a race with a concurrent advance or abandon. Report the
		// row as it now stands instead of double-incrementing.
		current, err := s.sessions.GetByID(dbc.Ctx, dbc.Tx, latest.ID)
		if err != nil {
			return nil, apierr.Storage("reload session", err)
		}
		if current == nil {
			return nil, apierr.State("session disappeared during advance")
		}
		return &AdvanceResult{
			SessionID:   current.ID,
			NewIndex:    current.CurrentIndex,
			IsCompleted: current.Status == types.SessionStatusCompleted,
		}, nil
	}

	return &AdvanceResult{
		SessionID:   latest.ID,
		NewIndex:    expected + 1,
		IsCompleted: complete,
	}, nil
}

// Abandon closes the active session. Without one it is a no-op.
func (s *sessionService) Abandon(dbc dbctx.Context, learnerID string) error {
	if _, err := s.sessions.AbandonActive(dbc.Ctx, dbc.Tx, learnerID, s.now()); err != nil {
		return apierr.Storage("abandon session", err)
	}
	return nil
}
