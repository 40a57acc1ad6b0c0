package types

import (
	"time"

	"gorm.io/datatypes"
)

// AttemptRecord is the append-only attempt log. Note is the single mutable
// field: learners may annotate their latest attempt after the fact.
type AttemptRecord struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	LearnerID     string         `gorm:"column:learner_id;not null;index:idx_attempts_recent,priority:1" json:"learner_id"`
	CaseID        int64          `gorm:"column:case_id;not null;index:idx_attempts_recent,priority:2" json:"case_id"`
	QuestionIndex int            `gorm:"column:question_index;not null" json:"question_index"`
	Score         int            `gorm:"column:score;not null" json:"score"`
	IsCorrect     bool           `gorm:"column:is_correct;not null" json:"is_correct"`
	Feedback      datatypes.JSON `gorm:"column:feedback" json:"feedback,omitempty"`
	Note          *string        `gorm:"column:note" json:"note,omitempty"`
	AttemptedAt   time.Time      `gorm:"column:attempted_at;not null;index:idx_attempts_recent,priority:3" json:"attempted_at"`
}

func (AttemptRecord) TableName() string { return "attempt_records" }
