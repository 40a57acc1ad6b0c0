package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/types"
)

type StudySessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.StudySession) error
	GetActive(ctx context.Context, tx *gorm.DB, learnerID string) (*types.StudySession, error)
	GetLatest(ctx context.Context, tx *gorm.DB, learnerID string) (*types.StudySession, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.StudySession, error)
	AbandonActive(ctx context.Context, tx *gorm.DB, learnerID string, now time.Time) (int64, error)
	Advance(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedIndex int, complete bool, now time.Time) (int64, error)
}

type studySessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudySessionRepo(db *gorm.DB, baseLog *logger.Logger) StudySessionRepo {
	repoLog := baseLog.With("repo", "StudySessionRepo")
	return &studySessionRepo{db: db, log: repoLog}
}

func (r *studySessionRepo) Create(ctx context.Context, tx *gorm.DB, row *types.StudySession) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}

	return transaction.WithContext(ctx).Create(row).Error
}

func (r *studySessionRepo) GetActive(ctx context.Context, tx *gorm.DB, learnerID string) (*types.StudySession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.StudySession
	err := transaction.WithContext(ctx).
		Where("learner_id = ? AND status = ?", learnerID, types.SessionStatusActive).
		Order("last_activity_at DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *studySessionRepo) GetLatest(ctx context.Context, tx *gorm.DB, learnerID string) (*types.StudySession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.StudySession
	err := transaction.WithContext(ctx).
		Where("learner_id = ?", learnerID).
		Order("last_activity_at DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *studySessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.StudySession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.StudySession
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// AbandonActive marks any active session of the learner abandoned. Returns
// the number of rows touched; zero is a valid no-op.
func (r *studySessionRepo) AbandonActive(ctx context.Context, tx *gorm.DB, learnerID string, now time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.StudySession{}).
		Where("learner_id = ? AND status = ?", learnerID, types.SessionStatusActive).
		Updates(map[string]any{
			"status":           types.SessionStatusAbandoned,
			"last_activity_at": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// Advance performs the compare-and-swap increment: it only fires when the
// session is still active and the cursor still equals expectedIndex. A zero
// RowsAffected means a concurrent advance (or completion) won the race.
func (r *studySessionRepo) Advance(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedIndex int, complete bool, now time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	updates := map[string]any{
		"current_index":    expectedIndex + 1,
		"last_activity_at": now,
	}
	if complete {
		updates["status"] = types.SessionStatusCompleted
	}

	res := transaction.WithContext(ctx).
		Model(&types.StudySession{}).
		Where("id = ? AND status = ? AND current_index = ?", id, types.SessionStatusActive, expectedIndex).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
