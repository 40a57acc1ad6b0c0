package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/medcase/medcase-backend/internal/pkg/apierr"
	"github.com/medcase/medcase-backend/internal/pkg/dbctx"
	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/platform/cache"
	"github.com/medcase/medcase-backend/internal/repos"
	"github.com/medcase/medcase-backend/internal/types"
)

// statsCacheTTL keeps availability snapshots hot between rapid UI
// refreshes without letting them go stale for long.
const statsCacheTTL = 10 * time.Second

// CaseAvailability reports how many questions of one case are currently
// reviewable for the learner.
type CaseAvailability struct {
	CaseID           int64   `json:"caseId"`
	DueQuestionCount int     `json:"dueQuestionCount"`
	TagIDs           []int64 `json:"tagIds"`
}

type StatsService interface {
	AvailabilityMap(dbc dbctx.Context, learnerID string) ([]CaseAvailability, error)
	AvailableCount(dbc dbctx.Context, learnerID string, tagIDs []int64) (int, error)
}

type statsService struct {
	db       *gorm.DB
	log      *logger.Logger
	cases    repos.ClinicalCaseRepo
	states   repos.ReviewStateRepo
	tags     repos.TagRepo
	taxonomy TaxonomyService
	cache    *cache.Cache
	now      func() time.Time
}

func NewStatsService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cases repos.ClinicalCaseRepo,
	states repos.ReviewStateRepo,
	tags repos.TagRepo,
	taxonomy TaxonomyService,
	c *cache.Cache,
) StatsService {
	return &statsService{
		db:       db,
		log:      baseLog.With("service", "StatsService"),
		cases:    cases,
		states:   states,
		tags:     tags,
		taxonomy: taxonomy,
		cache:    c,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *statsService) loadPairsAndStates(dbc dbctx.Context, learnerID string, caseIDs []int64) ([]*types.CaseQuestion, []*types.ReviewState, error) {
	var (
		pairs  []*types.CaseQuestion
		states []*types.ReviewState
	)
	if dbc.Tx != nil {
		var err error
		if pairs, err = s.cases.PublishedQuestionPairs(dbc.Ctx, dbc.Tx, caseIDs); err != nil {
			return nil, nil, apierr.Storage("list questions", err)
		}
		if len(caseIDs) == 0 {
			states, err = s.states.ListByLearner(dbc.Ctx, dbc.Tx, learnerID)
		} else {
			states, err = s.states.ListByLearnerAndCases(dbc.Ctx, dbc.Tx, learnerID, caseIDs)
		}
		if err != nil {
			return nil, nil, apierr.Storage("list review states", err)
		}
		return pairs, states, nil
	}

	g, gctx := errgroup.WithContext(dbc.Ctx)
	g.Go(func() error {
		rows, err := s.cases.PublishedQuestionPairs(gctx, nil, caseIDs)
		if err != nil {
			return apierr.Storage("list questions", err)
		}
		pairs = rows
		return nil
	})
	g.Go(func() error {
		var (
			rows []*types.ReviewState
			err  error
		)
		if len(caseIDs) == 0 {
			rows, err = s.states.ListByLearner(gctx, nil, learnerID)
		} else {
			rows, err = s.states.ListByLearnerAndCases(gctx, nil, learnerID, caseIDs)
		}
		if err != nil {
			return apierr.Storage("list review states", err)
		}
		states = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return pairs, states, nil
}

// AvailabilityMap reports, per published case, how many questions are due
// for the learner right now, with the case's tag ids for client-side
// filtering.
func (s *statsService) AvailabilityMap(dbc dbctx.Context, learnerID string) ([]CaseAvailability, error) {
	cacheKey := availabilityKey(learnerID)
	var cached []CaseAvailability
	if s.cache.GetJSON(dbc.Ctx, cacheKey, &cached) {
		return cached, nil
	}

	pairs, states, err := s.loadPairsAndStates(dbc, learnerID, nil)
	if err != nil {
		return nil, err
	}

	byKey := make(map[stateKey]*types.ReviewState, len(states))
	for _, row := range states {
		byKey[stateKey{caseID: row.CaseID, index: row.QuestionIndex}] = row
	}

	now := s.now()
	counts := make(map[int64]int)
	var order []int64
	for _, pair := range pairs {
		if _, ok := counts[pair.CaseID]; !ok {
			counts[pair.CaseID] = 0
			order = append(order, pair.CaseID)
		}
		if eligibleForReview(byKey[stateKey{caseID: pair.CaseID, index: pair.OrderIndex}], now) {
			counts[pair.CaseID]++
		}
	}

	tagsByCase, err := s.tags.TagIDsForCases(dbc.Ctx, dbc.Tx, order)
	if err != nil {
		return nil, apierr.Storage("resolve case tags", err)
	}

	out := make([]CaseAvailability, 0, len(order))
	for _, caseID := range order {
		tagIDs := tagsByCase[caseID]
		if tagIDs == nil {
			tagIDs = []int64{}
		}
		sort.Slice(tagIDs, func(i, j int) bool { return tagIDs[i] < tagIDs[j] })
		out = append(out, CaseAvailability{
			CaseID:           caseID,
			DueQuestionCount: counts[caseID],
			TagIDs:           tagIDs,
		})
	}

	s.cache.SetJSON(dbc.Ctx, cacheKey, out, statsCacheTTL)
	return out, nil
}

// AvailableCount counts the questions currently reviewable under a tag
// selection. An empty selection counts across all published cases.
func (s *statsService) AvailableCount(dbc dbctx.Context, learnerID string, tagIDs []int64) (int, error) {
	cacheKey := availableCountKey(learnerID, tagIDs)
	var cached int
	if s.cache.GetJSON(dbc.Ctx, cacheKey, &cached) {
		return cached, nil
	}

	var caseIDs []int64
	if len(tagIDs) > 0 {
		slugs, err := s.taxonomy.SlugsForIDs(dbc, tagIDs)
		if err != nil {
			return 0, err
		}
		ids, err := s.taxonomy.CaseIDsUnderTags(dbc, slugs)
		if err != nil {
			return 0, err
		}
		if len(ids) == 0 {
			return 0, nil
		}
		caseIDs = ids
	}

	pairs, states, err := s.loadPairsAndStates(dbc, learnerID, caseIDs)
	if err != nil {
		return 0, err
	}

	byKey := make(map[stateKey]*types.ReviewState, len(states))
	for _, row := range states {
		byKey[stateKey{caseID: row.CaseID, index: row.QuestionIndex}] = row
	}

	now := s.now()
	count := 0
	for _, pair := range pairs {
		if eligibleForReview(byKey[stateKey{caseID: pair.CaseID, index: pair.OrderIndex}], now) {
			count++
		}
	}

	s.cache.SetJSON(dbc.Ctx, cacheKey, count, statsCacheTTL)
	return count, nil
}

func availabilityKey(learnerID string) string {
	return "availability:" + learnerID
}

func availableCountKey(learnerID string, tagIDs []int64) string {
	if len(tagIDs) == 0 {
		return fmt.Sprintf("available-count:%s:all", learnerID)
	}
	sorted := append([]int64(nil), tagIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "available-count:" + learnerID + ":" + strings.Join(parts, ",")
}
