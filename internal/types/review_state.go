package types

import (
	"time"
)

const (
	LearningStatusLearning = "learning"
	LearningStatusMastered = "mastered"
)

// ReviewState tracks per-(learner, case, question) mastery. A nil
// NextReviewAt on an unmastered row means the item awaits a triage decision;
// absence of the row means the question was never attempted. Callers must
// not conflate the two.
type ReviewState struct {
	LearnerID          string     `gorm:"column:learner_id;primaryKey" json:"learner_id"`
	CaseID             int64      `gorm:"column:case_id;primaryKey" json:"case_id"`
	QuestionIndex      int        `gorm:"column:question_index;primaryKey" json:"question_index"`
	NextReviewAt       *time.Time `gorm:"column:next_review_at;index:idx_review_state_next,priority:2" json:"next_review_at,omitempty"`
	IsMastered         bool       `gorm:"column:is_mastered;not null;default:false" json:"is_mastered"`
	LearningStatus     string     `gorm:"column:learning_status;not null;default:'learning'" json:"learning_status"`
	LastScore          *int       `gorm:"column:last_score" json:"last_score,omitempty"`
	ConsecutiveCorrect int        `gorm:"column:consecutive_correct;not null;default:0" json:"consecutive_correct"`
	// EaseFactor is reserved for an adaptive policy; nothing reads it yet.
	EaseFactor float64   `gorm:"column:ease_factor;not null;default:2.5" json:"ease_factor"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (ReviewState) TableName() string { return "review_states" }
