package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/types"
)

type PreferenceRepo interface {
	Get(ctx context.Context, tx *gorm.DB, learnerID string) (*types.LearnerPreference, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.LearnerPreference) error
}

type preferenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPreferenceRepo(db *gorm.DB, baseLog *logger.Logger) PreferenceRepo {
	repoLog := baseLog.With("repo", "PreferenceRepo")
	return &preferenceRepo{db: db, log: repoLog}
}

func (r *preferenceRepo) Get(ctx context.Context, tx *gorm.DB, learnerID string) (*types.LearnerPreference, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.LearnerPreference
	err := transaction.WithContext(ctx).
		Where("learner_id = ?", learnerID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *preferenceRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.LearnerPreference) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "learner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"selected_tag_ids",
				"updated_at",
			}),
		}).
		Create(row).Error
}
