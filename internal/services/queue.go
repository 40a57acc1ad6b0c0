package services

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/medcase/medcase-backend/internal/pkg/apierr"
	"github.com/medcase/medcase-backend/internal/pkg/dbctx"
	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/repos"
	"github.com/medcase/medcase-backend/internal/types"
)

// DefaultQueueLimit caps the number of distinct cases in one study queue.
const DefaultQueueLimit = 20

type QueueService interface {
	Generate(dbc dbctx.Context, learnerID string, tagSlugs []string, limit int) ([]types.QueueItem, error)
}

type queueService struct {
	db           *gorm.DB
	log          *logger.Logger
	cases        repos.ClinicalCaseRepo
	states       repos.ReviewStateRepo
	taxonomy     TaxonomyService
	defaultLimit int
	now          func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewQueueService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cases repos.ClinicalCaseRepo,
	states repos.ReviewStateRepo,
	taxonomy TaxonomyService,
	defaultLimit int,
) QueueService {
	if defaultLimit <= 0 {
		defaultLimit = DefaultQueueLimit
	}
	return &queueService{
		db:           db,
		log:          baseLog.With("service", "QueueService"),
		cases:        cases,
		states:       states,
		taxonomy:     taxonomy,
		defaultLimit: defaultLimit,
		now:          func() time.Time { return time.Now().UTC() },
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type stateKey struct {
	caseID int64
	index  int
}

// eligibleForReview is the single due predicate: never attempted, or not
// yet mastered with no date or a date that has arrived.
func eligibleForReview(row *types.ReviewState, now time.Time) bool {
	if row == nil {
		return true
	}
	if row.IsMastered {
		return false
	}
	if row.NextReviewAt == nil {
		return true
	}
	return !row.NextReviewAt.After(now)
}

// Generate builds a study queue: eligible questions grouped by case with
// indices ascending, case order shuffled, capped at limit distinct cases.
func (s *queueService) Generate(dbc dbctx.Context, learnerID string, tagSlugs []string, limit int) ([]types.QueueItem, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}

	var caseIDs []int64
	if len(tagSlugs) > 0 {
		ids, err := s.taxonomy.CaseIDsUnderTags(dbc, tagSlugs)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return []types.QueueItem{}, nil
		}
		caseIDs = ids
	}

	var (
		pairs  []*types.CaseQuestion
		states []*types.ReviewState
	)
	if dbc.Tx != nil {
		// Inside a caller's transaction both reads must share its
		// connection, so they run sequentially.
		var err error
		if pairs, err = s.cases.PublishedQuestionPairs(dbc.Ctx, dbc.Tx, caseIDs); err != nil {
			return nil, apierr.Storage("list questions", err)
		}
		if len(caseIDs) == 0 {
			states, err = s.states.ListByLearner(dbc.Ctx, dbc.Tx, learnerID)
		} else {
			states, err = s.states.ListByLearnerAndCases(dbc.Ctx, dbc.Tx, learnerID, caseIDs)
		}
		if err != nil {
			return nil, apierr.Storage("list review states", err)
		}
	} else {
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
			return nil, err
		}
	}

	byKey := make(map[stateKey]*types.ReviewState, len(states))
	for _, row := range states {
		byKey[stateKey{caseID: row.CaseID, index: row.QuestionIndex}] = row
	}

	now := s.now()
	grouped := make(map[int64][]int)
	var order []int64
	for _, pair := range pairs {
		if !eligibleForReview(byKey[stateKey{caseID: pair.CaseID, index: pair.OrderIndex}], now) {
			continue
		}
		if _, ok := grouped[pair.CaseID]; !ok {
			order = append(order, pair.CaseID)
		}
		grouped[pair.CaseID] = append(grouped[pair.CaseID], pair.OrderIndex)
	}

	s.rngMu.Lock()
	s.rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	s.rngMu.Unlock()

	if len(order) > limit {
		order = order[:limit]
	}

	queue := make([]types.QueueItem, 0, len(order))
	for _, caseID := range order {
		indices := grouped[caseID]
		sort.Ints(indices)
		queue = append(queue, types.QueueItem{
			CaseID:                caseID,
			ActiveQuestionIndices: indices,
		})
	}
	return queue, nil
}
