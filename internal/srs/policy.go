package srs

import (
	"fmt"
	"strings"
	"time"
)

const (
	StatusLearning = "learning"
	StatusMastered = "mastered"
)

// Outcome is a single graded attempt.
type Outcome struct {
	Score     int
	IsCorrect bool
}

// Snapshot is the prior review state, when one exists.
type Snapshot struct {
	IsMastered         bool
	NextReviewAt       *time.Time
	ConsecutiveCorrect int
}

// Result is the new review state derived from an outcome.
type Result struct {
	IsMastered     bool
	NextReviewAt   *time.Time
	LearningStatus string
}

// Policy maps an attempt outcome to a new review state. Implementations are
// pure: no I/O, and the clock is always injected.
type Policy interface {
	Name() string
	Evaluate(prior *Snapshot, outcome Outcome, now time.Time) Result
}

// ByName resolves the configured policy. Exactly one policy is active per
// deployment; mixing them desynchronizes the triage inbox.
func ByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyNameTriage:
		return TriagePolicy{}, nil
	case PolicyNameGraded:
		return GradedPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown srs policy %q", name)
	}
}
