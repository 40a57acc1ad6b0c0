package types

// Tag is a node in the topic hierarchy. Path is a materialized chain of
// ancestor slugs joined by ".", recomputed only on insert; tags are never
// reparented.
type Tag struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Slug     string `gorm:"column:slug;not null;uniqueIndex:idx_tags_slug" json:"slug"`
	Name     string `gorm:"column:name;not null;index:idx_tags_parent_name,unique,priority:2" json:"name"`
	ParentID *int64 `gorm:"column:parent_id;index:idx_tags_parent_name,unique,priority:1" json:"parent_id,omitempty"`
	Path     string `gorm:"column:path;not null;uniqueIndex:idx_tags_path" json:"path"`
	Category string `gorm:"column:category;not null;default:'other'" json:"category"`
}

func (Tag) TableName() string { return "tags" }

// PathSeparator joins slugs inside a materialized path.
const PathSeparator = "."

// PathDelimiter separates segments of an ingestion path string.
const PathDelimiter = "::"
