package srs

import "time"

const PolicyNameGraded = "graded"

// Interval rules for the graded policy.
const (
	ShortIntervalDays = 10
	LongIntervalDays  = 45
	MasteryThreshold  = 80
	PassThreshold     = 50
)

// GradedPolicy schedules from the score alone. A score of exactly 80 is not
// mastery (strict >); a score of exactly 50 lands in the long bucket.
type GradedPolicy struct{}

func (GradedPolicy) Name() string { return PolicyNameGraded }

func (GradedPolicy) Evaluate(prior *Snapshot, outcome Outcome, now time.Time) Result {
	if outcome.Score > MasteryThreshold {
		return Result{
			IsMastered:     true,
			NextReviewAt:   nil,
			LearningStatus: StatusMastered,
		}
	}

	days := ShortIntervalDays
	if outcome.Score >= PassThreshold {
		days = LongIntervalDays
	}
	next := now.AddDate(0, 0, days)
	return Result{
		IsMastered:     false,
		NextReviewAt:   &next,
		LearningStatus: StatusLearning,
	}
}
