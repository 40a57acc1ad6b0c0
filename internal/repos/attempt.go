package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/types"
)

type AttemptRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.AttemptRecord) error
	LatestByQuestion(ctx context.Context, tx *gorm.DB, learnerID string, caseID int64, questionIndex int) (*types.AttemptRecord, error)
	ListByLearnerDesc(ctx context.Context, tx *gorm.DB, learnerID string) ([]*types.AttemptRecord, error)
	UpdateNote(ctx context.Context, tx *gorm.DB, id int64, note string) error
}

type attemptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttemptRepo(db *gorm.DB, baseLog *logger.Logger) AttemptRepo {
	repoLog := baseLog.With("repo", "AttemptRepo")
	return &attemptRepo{db: db, log: repoLog}
}

func (r *attemptRepo) Create(ctx context.Context, tx *gorm.DB, row *types.AttemptRecord) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}

	return transaction.WithContext(ctx).Create(row).Error
}

func (r *attemptRepo) LatestByQuestion(ctx context.Context, tx *gorm.DB, learnerID string, caseID int64, questionIndex int) (*types.AttemptRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.AttemptRecord
	err := transaction.WithContext(ctx).
		Where("learner_id = ? AND case_id = ? AND question_index = ?", learnerID, caseID, questionIndex).
		Order("attempted_at DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *attemptRepo) ListByLearnerDesc(ctx context.Context, tx *gorm.DB, learnerID string) ([]*types.AttemptRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.AttemptRecord
	if err := transaction.WithContext(ctx).
		Where("learner_id = ?", learnerID).
		Order("attempted_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *attemptRepo) UpdateNote(ctx context.Context, tx *gorm.DB, id int64, note string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.AttemptRecord{}).
		Where("id = ?", id).
		Update("note", note).Error
}
