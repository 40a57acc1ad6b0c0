package srs

import "time"

const PolicyNameTriage = "triage"

// TriagePolicy is the default: it never schedules automatically. A correct
// attempt masters the item; an incorrect one parks it with no date, where it
// stays until the learner makes an explicit triage decision.
type TriagePolicy struct{}

func (TriagePolicy) Name() string { return PolicyNameTriage }

func (TriagePolicy) Evaluate(prior *Snapshot, outcome Outcome, now time.Time) Result {
	if outcome.IsCorrect {
		return Result{
			IsMastered:     true,
			NextReviewAt:   nil,
			LearningStatus: StatusMastered,
		}
	}
	return Result{
		IsMastered:     false,
		NextReviewAt:   nil,
		LearningStatus: StatusLearning,
	}
}
