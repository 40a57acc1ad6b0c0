package types

import (
	"time"

	"gorm.io/datatypes"
)

// LearnerPreference remembers the last tag selection so the UI can
// pre-populate the next session form. Persisted on every session create,
// independent of the session outcome.
type LearnerPreference struct {
	LearnerID      string         `gorm:"column:learner_id;primaryKey" json:"learner_id"`
	SelectedTagIDs datatypes.JSON `gorm:"column:selected_tag_ids" json:"selected_tag_ids"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (LearnerPreference) TableName() string { return "learner_preferences" }
