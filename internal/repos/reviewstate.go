package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/types"
)

type ReviewStateRepo interface {
	Get(ctx context.Context, tx *gorm.DB, learnerID string, caseID int64, questionIndex int) (*types.ReviewState, error)
	ListByLearnerAndCase(ctx context.Context, tx *gorm.DB, learnerID string, caseID int64) ([]*types.ReviewState, error)
	ListByLearnerAndCases(ctx context.Context, tx *gorm.DB, learnerID string, caseIDs []int64) ([]*types.ReviewState, error)
	ListByLearner(ctx context.Context, tx *gorm.DB, learnerID string) ([]*types.ReviewState, error)
	ListAwaitingTriage(ctx context.Context, tx *gorm.DB, learnerID string) ([]*types.ReviewState, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.ReviewState) error
	UpdateFields(ctx context.Context, tx *gorm.DB, learnerID string, caseID int64, questionIndex int, updates map[string]any) (int64, error)
}

type reviewStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewStateRepo(db *gorm.DB, baseLog *logger.Logger) ReviewStateRepo {
	repoLog := baseLog.With("repo", "ReviewStateRepo")
	return &reviewStateRepo{db: db, log: repoLog}
}

func (r *reviewStateRepo) Get(ctx context.Context, tx *gorm.DB, learnerID string, caseID int64, questionIndex int) (*types.ReviewState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.ReviewState
	err := transaction.WithContext(ctx).
		Where("learner_id = ? AND case_id = ? AND question_index = ?", learnerID, caseID, questionIndex).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *reviewStateRepo) ListByLearnerAndCase(ctx context.Context, tx *gorm.DB, learnerID string, caseID int64) ([]*types.ReviewState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ReviewState
	if err := transaction.WithContext(ctx).
		Where("learner_id = ? AND case_id = ?", learnerID, caseID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *reviewStateRepo) ListByLearnerAndCases(ctx context.Context, tx *gorm.DB, learnerID string, caseIDs []int64) ([]*types.ReviewState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ReviewState
	if len(caseIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("learner_id = ? AND case_id IN ?", learnerID, caseIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *reviewStateRepo) ListByLearner(ctx context.Context, tx *gorm.DB, learnerID string) ([]*types.ReviewState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ReviewState
	if err := transaction.WithContext(ctx).
		Where("learner_id = ?", learnerID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListAwaitingTriage returns unmastered rows with no scheduled date: the
// learner's triage backlog.
func (r *reviewStateRepo) ListAwaitingTriage(ctx context.Context, tx *gorm.DB, learnerID string) ([]*types.ReviewState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ReviewState
	if err := transaction.WithContext(ctx).
		Where("learner_id = ? AND is_mastered = ? AND next_review_at IS NULL", learnerID, false).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *reviewStateRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.ReviewState) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "learner_id"},
				{Name: "case_id"},
				{Name: "question_index"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"next_review_at",
				"is_mastered",
				"learning_status",
				"last_score",
				"consecutive_correct",
				"updated_at",
			}),
		}).
		Create(row).Error
}

func (r *reviewStateRepo) UpdateFields(ctx context.Context, tx *gorm.DB, learnerID string, caseID int64, questionIndex int, updates map[string]any) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.ReviewState{}).
		Where("learner_id = ? AND case_id = ? AND question_index = ?", learnerID, caseID, questionIndex).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
