package services

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/medcase/medcase-backend/internal/pkg/apierr"
	"github.com/medcase/medcase-backend/internal/pkg/dbctx"
	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/repos"
	"github.com/medcase/medcase-backend/internal/types"
)

// TagTreeItem is one node of the rendered tag forest.
type TagTreeItem struct {
	ID       int64          `json:"id"`
	Label    string         `json:"label"`
	Slug     string         `json:"slug"`
	Path     string         `json:"path"`
	Category string         `json:"category"`
	Children []*TagTreeItem `json:"children"`
}

type TaxonomyService interface {
	UpsertPath(dbc dbctx.Context, path string) (int64, error)
	IsDescendant(candidate, root *types.Tag) bool
	CaseIDsUnderTag(dbc dbctx.Context, slug string) ([]int64, error)
	CaseIDsUnderTags(dbc dbctx.Context, slugs []string) ([]int64, error)
	TagPath(dbc dbctx.Context, slug string) ([]*types.Tag, error)
	SlugsForIDs(dbc dbctx.Context, ids []int64) ([]string, error)
	BuildForest(dbc dbctx.Context) ([]*TagTreeItem, error)
}

type taxonomyService struct {
	db   *gorm.DB
	log  *logger.Logger
	tags repos.TagRepo
}

func NewTaxonomyService(db *gorm.DB, baseLog *logger.Logger, tags repos.TagRepo) TaxonomyService {
	return &taxonomyService{
		db:   db,
		log:  baseLog.With("service", "TaxonomyService"),
		tags: tags,
	}
}

var slugFolder = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a", "å", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n",
)

// baseSlug lowercases, folds common accented letters, maps separators to
// underscores and strips everything else.
func baseSlug(name string) string {
	lowered := slugFolder.Replace(strings.ToLower(strings.TrimSpace(name)))

	var b strings.Builder
	b.Grow(len(lowered))
	lastUnderscore := false
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case r == ' ', r == '-', r == '_', r == '/', r == ',':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// splitPathInput trims segments, drops empties and turns underscores into
// spaces for the display name.
func splitPathInput(path string) []string {
	parts := strings.Split(path, types.PathDelimiter)
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(strings.ReplaceAll(part, "_", " "))
		if name == "" {
			continue
		}
		segments = append(segments, name)
	}
	return segments
}

// UpsertPath resolves or creates every node along a "Parent::Child::Leaf"
// path and returns the leaf tag id. Existing nodes are matched by name
// under their parent, so repeated calls are idempotent.
func (s *taxonomyService) UpsertPath(dbc dbctx.Context, path string) (int64, error) {
	segments := splitPathInput(path)
	if len(segments) == 0 {
		return 0, apierr.Validation("path", "tag path must contain at least one segment")
	}

	run := func(inner dbctx.Context) (int64, error) {
		var parent *types.Tag
		for _, name := range segments {
			existing, err := s.tags.FindChildByName(inner.Ctx, inner.Tx, parentIDOf(parent), name)
			if err != nil {
				return 0, apierr.Storage("resolve tag segment", err)
			}
			if existing != nil {
				parent = existing
				continue
			}

			created, err := s.createNode(inner, parent, name)
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// A concurrent writer claimed the slug between our
				// uniqueness probe and the insert. Retry once with a
				// freshly derived slug before giving up.
				created, err = s.createNode(inner, parent, name)
			}
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return 0, apierr.Conflict("path", "tag slug contention on "+name, err)
			}
			if err != nil {
				return 0, err
			}
			parent = created
		}
		return parent.ID, nil
	}

	if dbc.Tx != nil {
		return run(dbc)
	}

	var leafID int64
	if err := s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		id, err := run(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
		if err != nil {
			return err
		}
		leafID = id
		return nil
	}); err != nil {
		s.log.Warn("UpsertPath transaction error", "path", path, "error", err)
		return 0, err
	}
	return leafID, nil
}

func parentIDOf(parent *types.Tag) *int64 {
	if parent == nil {
		return nil
	}
	return &parent.ID
}

func (s *taxonomyService) createNode(inner dbctx.Context, parent *types.Tag, name string) (*types.Tag, error) {
	base := baseSlug(name)
	if base == "" {
		return nil, apierr.Validation("path", "tag segment "+name+" has no usable characters")
	}

	slug := base
	taken, err := s.tags.SlugExists(inner.Ctx, inner.Tx, slug)
	if err != nil {
		return nil, apierr.Storage("probe tag slug", err)
	}
	if taken && parent != nil {
		slug = parent.Slug + "_" + base
		taken, err = s.tags.SlugExists(inner.Ctx, inner.Tx, slug)
		if err != nil {
			return nil, apierr.Storage("probe tag slug", err)
		}
	}
	for i := 1; taken; i++ {
		candidate := slug + "_" + strconv.Itoa(i)
		taken, err = s.tags.SlugExists(inner.Ctx, inner.Tx, candidate)
		if err != nil {
			return nil, apierr.Storage("probe tag slug", err)
		}
		if !taken {
			slug = candidate
		}
	}

	tagPath := slug
	if parent != nil {
		tagPath = parent.Path + types.PathSeparator + slug
	}

	row := &types.Tag{
		Slug:     slug,
		Name:     name,
		ParentID: parentIDOf(parent),
		Path:     tagPath,
		Category: "other",
	}
	// The insert gets its own savepoint: on postgres a unique violation
	// aborts the surrounding transaction otherwise, and the retry's
	// probe queries would fail before a fresh slug could be derived.
	if err := inner.Tx.Transaction(func(tx *gorm.DB) error {
		return s.tags.Create(inner.Ctx, tx, row)
	}); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		return nil, apierr.Storage("create tag", err)
	}
	return row, nil
}

// IsDescendant reports whether candidate sits in the subtree rooted at
// root. Every tag is a descendant of itself.
func (s *taxonomyService) IsDescendant(candidate, root *types.Tag) bool {
	if candidate == nil || root == nil {
		return false
	}
	if candidate.ID == root.ID {
		return true
	}
	return strings.HasPrefix(candidate.Path, root.Path+types.PathSeparator)
}

func (s *taxonomyService) CaseIDsUnderTag(dbc dbctx.Context, slug string) ([]int64, error) {
	tag, err := s.tags.GetBySlug(dbc.Ctx, dbc.Tx, slug)
	if err != nil {
		return nil, apierr.Storage("resolve tag", err)
	}
	if tag == nil {
		return nil, apierr.NotFound("tag", "unknown tag "+slug)
	}
	ids, err := s.tags.CaseIDsUnderPath(dbc.Ctx, dbc.Tx, tag.Path)
	if err != nil {
		return nil, apierr.Storage("resolve cases under tag", err)
	}
	return ids, nil
}

// CaseIDsUnderTags unions the subtrees of every named tag. Unknown slugs
// are skipped rather than failing the whole selection.
func (s *taxonomyService) CaseIDsUnderTags(dbc dbctx.Context, slugs []string) ([]int64, error) {
	seen := make(map[int64]struct{})
	var union []int64
	for _, slug := range slugs {
		tag, err := s.tags.GetBySlug(dbc.Ctx, dbc.Tx, slug)
		if err != nil {
			return nil, apierr.Storage("resolve tag", err)
		}
		if tag == nil {
			continue
		}
		ids, err := s.tags.CaseIDsUnderPath(dbc.Ctx, dbc.Tx, tag.Path)
		if err != nil {
			return nil, apierr.Storage("resolve cases under tag", err)
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			union = append(union, id)
		}
	}
	sort.Slice(union, func(i, j int) bool { return union[i] < union[j] })
	return union, nil
}

// TagPath returns the chain of tags from root to the named tag, resolved
// from the materialized path.
func (s *taxonomyService) TagPath(dbc dbctx.Context, slug string) ([]*types.Tag, error) {
	tag, err := s.tags.GetBySlug(dbc.Ctx, dbc.Tx, slug)
	if err != nil {
		return nil, apierr.Storage("resolve tag", err)
	}
	if tag == nil {
		return nil, apierr.NotFound("tag", "unknown tag "+slug)
	}

	chainSlugs := strings.Split(tag.Path, types.PathSeparator)
	rows, err := s.tags.ListBySlugs(dbc.Ctx, dbc.Tx, chainSlugs)
	if err != nil {
		return nil, apierr.Storage("resolve tag chain", err)
	}

	bySlug := make(map[string]*types.Tag, len(rows))
	for _, row := range rows {
		bySlug[row.Slug] = row
	}
	chain := make([]*types.Tag, 0, len(chainSlugs))
	for _, link := range chainSlugs {
		if row, ok := bySlug[link]; ok {
			chain = append(chain, row)
		}
	}
	return chain, nil
}

func (s *taxonomyService) SlugsForIDs(dbc dbctx.Context, ids []int64) ([]string, error) {
	rows, err := s.tags.GetByIDs(dbc.Ctx, dbc.Tx, ids)
	if err != nil {
		return nil, apierr.Storage("resolve tags", err)
	}
	slugs := make([]string, 0, len(rows))
	for _, row := range rows {
		slugs = append(slugs, row.Slug)
	}
	return slugs, nil
}

// BuildForest assembles the full tag tree. A node whose parent row is
// missing is promoted to a root rather than dropped.
func (s *taxonomyService) BuildForest(dbc dbctx.Context) ([]*TagTreeItem, error) {
	rows, err := s.tags.List(dbc.Ctx, dbc.Tx)
	if err != nil {
		return nil, apierr.Storage("list tags", err)
	}

	items := make(map[int64]*TagTreeItem, len(rows))
	for _, row := range rows {
		items[row.ID] = &TagTreeItem{
			ID:       row.ID,
			Label:    row.Name,
			Slug:     row.Slug,
			Path:     row.Path,
			Category: row.Category,
			Children: []*TagTreeItem{},
		}
	}

	var roots []*TagTreeItem
	for _, row := range rows {
		item := items[row.ID]
		if row.ParentID == nil {
			roots = append(roots, item)
			continue
		}
		parent, ok := items[*row.ParentID]
		if !ok {
			roots = append(roots, item)
			continue
		}
		parent.Children = append(parent.Children, item)
	}
	return roots, nil
}
