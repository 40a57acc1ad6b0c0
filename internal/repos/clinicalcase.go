package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/types"
)

// ClinicalCaseRepo is the read-only view onto the content store. Authoring
// and publication happen outside this service.
type ClinicalCaseRepo interface {
	GetPublished(ctx context.Context, tx *gorm.DB, id int64) (*types.ClinicalCase, error)
	GetPublishedByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*types.ClinicalCase, error)
	QuestionsByCaseID(ctx context.Context, tx *gorm.DB, caseID int64) ([]*types.CaseQuestion, error)
	QuestionByCaseAndIndex(ctx context.Context, tx *gorm.DB, caseID int64, orderIndex int) (*types.CaseQuestion, error)
	PublishedQuestionPairs(ctx context.Context, tx *gorm.DB, caseIDs []int64) ([]*types.CaseQuestion, error)
}

type clinicalCaseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClinicalCaseRepo(db *gorm.DB, baseLog *logger.Logger) ClinicalCaseRepo {
	repoLog := baseLog.With("repo", "ClinicalCaseRepo")
	return &clinicalCaseRepo{db: db, log: repoLog}
}

func (r *clinicalCaseRepo) GetPublished(ctx context.Context, tx *gorm.DB, id int64) (*types.ClinicalCase, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.ClinicalCase
	err := transaction.WithContext(ctx).
		Where("id = ? AND status = ?", id, types.CaseStatusPublished).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *clinicalCaseRepo) GetPublishedByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*types.ClinicalCase, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ClinicalCase
	if len(ids) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ? AND status = ?", ids, types.CaseStatusPublished).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *clinicalCaseRepo) QuestionsByCaseID(ctx context.Context, tx *gorm.DB, caseID int64) ([]*types.CaseQuestion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.CaseQuestion
	if err := transaction.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("order_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *clinicalCaseRepo) QuestionByCaseAndIndex(ctx context.Context, tx *gorm.DB, caseID int64, orderIndex int) (*types.CaseQuestion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.CaseQuestion
	err := transaction.WithContext(ctx).
		Where("case_id = ? AND order_index = ?", caseID, orderIndex).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// PublishedQuestionPairs returns every (case, question) pair of published
// cases, restricted to caseIDs when non-nil. A nil slice means "all
// published"; an empty non-nil slice means "none".
func (r *clinicalCaseRepo) PublishedQuestionPairs(ctx context.Context, tx *gorm.DB, caseIDs []int64) ([]*types.CaseQuestion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.CaseQuestion
	if caseIDs != nil && len(caseIDs) == 0 {
		return results, nil
	}

	query := transaction.WithContext(ctx).
		Model(&types.CaseQuestion{}).
		Joins("JOIN clinical_cases ON clinical_cases.id = case_questions.case_id").
		Where("clinical_cases.status = ?", types.CaseStatusPublished)
	if caseIDs != nil {
		query = query.Where("case_questions.case_id IN ?", caseIDs)
	}

	if err := query.
		Order("case_questions.case_id ASC, case_questions.order_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
