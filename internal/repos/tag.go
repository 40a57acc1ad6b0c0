package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/types"
)

type TagRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.Tag) error
	GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.Tag, error)
	SlugExists(ctx context.Context, tx *gorm.DB, slug string) (bool, error)
	FindChildByName(ctx context.Context, tx *gorm.DB, parentID *int64, name string) (*types.Tag, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*types.Tag, error)
	ListBySlugs(ctx context.Context, tx *gorm.DB, slugs []string) ([]*types.Tag, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Tag, error)
	CaseIDsUnderPath(ctx context.Context, tx *gorm.DB, path string) ([]int64, error)
	TagIDsForCases(ctx context.Context, tx *gorm.DB, caseIDs []int64) (map[int64][]int64, error)
}

type tagRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTagRepo(db *gorm.DB, baseLog *logger.Logger) TagRepo {
	repoLog := baseLog.With("repo", "TagRepo")
	return &tagRepo{db: db, log: repoLog}
}

func (r *tagRepo) Create(ctx context.Context, tx *gorm.DB, row *types.Tag) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}

	return transaction.WithContext(ctx).Create(row).Error
}

func (r *tagRepo) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.Tag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.Tag
	err := transaction.WithContext(ctx).
		Where("slug = ?", slug).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *tagRepo) SlugExists(ctx context.Context, tx *gorm.DB, slug string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Tag{}).
		Where("slug = ?", slug).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *tagRepo) FindChildByName(ctx context.Context, tx *gorm.DB, parentID *int64, name string) (*types.Tag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	query := transaction.WithContext(ctx).Where("name = ?", name)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}

	var row types.Tag
	err := query.First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *tagRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*types.Tag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Tag
	if len(ids) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *tagRepo) ListBySlugs(ctx context.Context, tx *gorm.DB, slugs []string) ([]*types.Tag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Tag
	if len(slugs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("slug IN ?", slugs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *tagRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Tag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Tag
	if err := transaction.WithContext(ctx).
		Order("name ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// CaseIDsUnderPath resolves all published cases tagged anywhere in the
// subtree rooted at path, via the materialized-path prefix test.
func (r *tagRepo) CaseIDsUnderPath(ctx context.Context, tx *gorm.DB, path string) ([]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var ids []int64
	err := transaction.WithContext(ctx).
		Model(&types.CaseTag{}).
		Distinct().
		Joins("JOIN tags ON tags.id = cases_tags.tag_id").
		Joins("JOIN clinical_cases ON clinical_cases.id = cases_tags.case_id").
		Where("clinical_cases.status = ?", types.CaseStatusPublished).
		Where("tags.path = ? OR tags.path LIKE ?", path, path+types.PathSeparator+"%").
		Pluck("cases_tags.case_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *tagRepo) TagIDsForCases(ctx context.Context, tx *gorm.DB, caseIDs []int64) (map[int64][]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	result := make(map[int64][]int64)
	if len(caseIDs) == 0 {
		return result, nil
	}

	var rows []types.CaseTag
	if err := transaction.WithContext(ctx).
		Where("case_id IN ?", caseIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.CaseID] = append(result[row.CaseID], row.TagID)
	}
	return result, nil
}
