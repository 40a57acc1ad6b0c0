package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusAbandoned = "abandoned"
)

// QueueItem is one entry of a session's frozen queue snapshot.
type QueueItem struct {
	CaseID                int64 `json:"caseId"`
	ActiveQuestionIndices []int `json:"activeQuestionIndices"`
}

// StudySession holds a learner's study run. The queue is frozen at creation;
// consumers re-filter it against live progress rather than rewriting the row.
// At most one non-terminal session exists per learner.
type StudySession struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	LearnerID      string         `gorm:"column:learner_id;not null;index:idx_sessions_learner_status,priority:1" json:"learner_id"`
	Status         string         `gorm:"column:status;not null;default:'active';index:idx_sessions_learner_status,priority:2" json:"status"`
	CurrentIndex   int            `gorm:"column:current_index;not null;default:0" json:"current_index"`
	TotalQuestions int            `gorm:"column:total_questions;not null" json:"total_questions"`
	QueueState     datatypes.JSON `gorm:"column:queue_state;not null" json:"queue_state"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	LastActivityAt time.Time      `gorm:"column:last_activity_at;not null" json:"last_activity_at"`
}

func (StudySession) TableName() string { return "study_sessions" }
