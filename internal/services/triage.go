package services

import (
	"encoding/json"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/medcase/medcase-backend/internal/pkg/apierr"
	"github.com/medcase/medcase-backend/internal/pkg/dbctx"
	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/repos"
	"github.com/medcase/medcase-backend/internal/types"
)

// TriageItem is one unresolved question awaiting a scheduling decision,
// decorated with its latest attempt for review.
type TriageItem struct {
	CaseID        int64           `json:"caseId"`
	CaseTitle     string          `json:"caseTitle"`
	QuestionIndex int             `json:"questionIndex"`
	QuestionText  string          `json:"questionText"`
	LastScore     *int            `json:"lastScore"`
	LastFeedback  json.RawMessage `json:"lastFeedback,omitempty"`
	LastNote      *string         `json:"lastNote,omitempty"`
	AttemptedAt   *time.Time      `json:"attemptedAt,omitempty"`
}

type TriageService interface {
	List(dbc dbctx.Context, learnerID string) ([]TriageItem, error)
}

type triageService struct {
	db       *gorm.DB
	log      *logger.Logger
	states   repos.ReviewStateRepo
	attempts repos.AttemptRepo
	cases    repos.ClinicalCaseRepo
}

func NewTriageService(
	db *gorm.DB,
	baseLog *logger.Logger,
	states repos.ReviewStateRepo,
	attempts repos.AttemptRepo,
	cases repos.ClinicalCaseRepo,
) TriageService {
	return &triageService{
		db:       db,
		log:      baseLog.With("service", "TriageService"),
		states:   states,
		attempts: attempts,
		cases:    cases,
	}
}

// List returns the learner's triage backlog ordered by most recent attempt
// first. Items whose case is no longer published are dropped.
func (s *triageService) List(dbc dbctx.Context, learnerID string) ([]TriageItem, error) {
	rows, err := s.states.ListAwaitingTriage(dbc.Ctx, dbc.Tx, learnerID)
	if err != nil {
		return nil, apierr.Storage("list triage backlog", err)
	}
	if len(rows) == 0 {
		return []TriageItem{}, nil
	}

	caseSet := make(map[int64]struct{}, len(rows))
	caseIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		if _, ok := caseSet[row.CaseID]; ok {
			continue
		}
		caseSet[row.CaseID] = struct{}{}
		caseIDs = append(caseIDs, row.CaseID)
	}

	cases, err := s.cases.GetPublishedByIDs(dbc.Ctx, dbc.Tx, caseIDs)
	if err != nil {
		return nil, apierr.Storage("resolve cases", err)
	}
	titles := make(map[int64]string, len(cases))
	for _, c := range cases {
		titles[c.ID] = c.Title
	}

	pairs, err := s.cases.PublishedQuestionPairs(dbc.Ctx, dbc.Tx, caseIDs)
	if err != nil {
		return nil, apierr.Storage("resolve questions", err)
	}
	texts := make(map[stateKey]string, len(pairs))
	for _, q := range pairs {
		texts[stateKey{caseID: q.CaseID, index: q.OrderIndex}] = q.QuestionText
	}

	attempts, err := s.attempts.ListByLearnerDesc(dbc.Ctx, dbc.Tx, learnerID)
	if err != nil {
		return nil, apierr.Storage("list attempts", err)
	}
	latest := make(map[stateKey]*types.AttemptRecord, len(rows))
	for _, attempt := range attempts {
		key := stateKey{caseID: attempt.CaseID, index: attempt.QuestionIndex}
		if _, ok := latest[key]; !ok {
			latest[key] = attempt
		}
	}

	items := make([]TriageItem, 0, len(rows))
	for _, row := range rows {
		title, ok := titles[row.CaseID]
		if !ok {
			continue
		}
		key := stateKey{caseID: row.CaseID, index: row.QuestionIndex}
		item := TriageItem{
			CaseID:        row.CaseID,
			CaseTitle:     title,
			QuestionIndex: row.QuestionIndex,
			QuestionText:  texts[key],
			LastScore:     row.LastScore,
		}
		if attempt := latest[key]; attempt != nil {
			if len(attempt.Feedback) > 0 {
				item.LastFeedback = json.RawMessage(attempt.Feedback)
			}
			item.LastNote = attempt.Note
			at := attempt.AttemptedAt
			item.AttemptedAt = &at
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := items[i].AttemptedAt, items[j].AttemptedAt
		if ti == nil {
			return false
		}
		if tj == nil {
			return true
		}
		return ti.After(*tj)
	})
	return items, nil
}
