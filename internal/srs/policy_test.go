package srs

import (
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestTriagePolicy(t *testing.T) {
	cases := []struct {
		name       string
		outcome    Outcome
		wantMaster bool
		wantStatus string
	}{
		{
			name:       "correct_masters",
			outcome:    Outcome{Score: 100, IsCorrect: true},
			wantMaster: true,
			wantStatus: StatusMastered,
		},
		{
			name:       "incorrect_parks_for_triage",
			outcome:    Outcome{Score: 40, IsCorrect: false},
			wantMaster: false,
			wantStatus: StatusLearning,
		},
		{
			name:       "high_score_but_marked_incorrect_still_parks",
			outcome:    Outcome{Score: 95, IsCorrect: false},
			wantMaster: false,
			wantStatus: StatusLearning,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TriagePolicy{}.Evaluate(nil, tc.outcome, testNow)
			if got.IsMastered != tc.wantMaster {
				t.Fatalf("IsMastered=%v, want %v", got.IsMastered, tc.wantMaster)
			}
			if got.NextReviewAt != nil {
				t.Fatalf("NextReviewAt=%v, want nil (triage never schedules)", got.NextReviewAt)
			}
			if got.LearningStatus != tc.wantStatus {
				t.Fatalf("LearningStatus=%q, want %q", got.LearningStatus, tc.wantStatus)
			}
		})
	}
}

func TestGradedPolicyBuckets(t *testing.T) {
	p := GradedPolicy{}
	for score := 0; score <= 100; score++ {
		got := p.Evaluate(nil, Outcome{Score: score, IsCorrect: score > MasteryThreshold}, testNow)

		switch {
		case score > MasteryThreshold:
			if !got.IsMastered || got.NextReviewAt != nil {
				t.Fatalf("score %d: got mastered=%v next=%v, want mastered with no date", score, got.IsMastered, got.NextReviewAt)
			}
			if got.LearningStatus != StatusMastered {
				t.Fatalf("score %d: status %q, want %q", score, got.LearningStatus, StatusMastered)
			}
		case score >= PassThreshold:
			want := testNow.AddDate(0, 0, LongIntervalDays)
			if got.IsMastered || got.NextReviewAt == nil || !got.NextReviewAt.Equal(want) {
				t.Fatalf("score %d: got mastered=%v next=%v, want %v", score, got.IsMastered, got.NextReviewAt, want)
			}
		default:
			want := testNow.AddDate(0, 0, ShortIntervalDays)
			if got.IsMastered || got.NextReviewAt == nil || !got.NextReviewAt.Equal(want) {
				t.Fatalf("score %d: got mastered=%v next=%v, want %v", score, got.IsMastered, got.NextReviewAt, want)
			}
		}
	}
}

func TestGradedPolicyBoundaries(t *testing.T) {
	p := GradedPolicy{}

	// Exactly 80 is not mastered.
	at80 := p.Evaluate(nil, Outcome{Score: 80}, testNow)
	if at80.IsMastered {
		t.Fatal("score 80 must not be mastered")
	}
	if at80.NextReviewAt == nil || !at80.NextReviewAt.Equal(testNow.AddDate(0, 0, LongIntervalDays)) {
		t.Fatalf("score 80: next=%v, want now+%dd", at80.NextReviewAt, LongIntervalDays)
	}

	// Exactly 50 falls into the long bucket.
	at50 := p.Evaluate(nil, Outcome{Score: 50}, testNow)
	if at50.NextReviewAt == nil || !at50.NextReviewAt.Equal(testNow.AddDate(0, 0, LongIntervalDays)) {
		t.Fatalf("score 50: next=%v, want now+%dd", at50.NextReviewAt, LongIntervalDays)
	}

	at49 := p.Evaluate(nil, Outcome{Score: 49}, testNow)
	if at49.NextReviewAt == nil || !at49.NextReviewAt.Equal(testNow.AddDate(0, 0, ShortIntervalDays)) {
		t.Fatalf("score 49: next=%v, want now+%dd", at49.NextReviewAt, ShortIntervalDays)
	}
}

func TestByName(t *testing.T) {
	cases := []struct {
		name    string
		arg     string
		want    string
		wantErr bool
	}{
		{name: "default_is_triage", arg: "", want: PolicyNameTriage},
		{name: "triage", arg: "triage", want: PolicyNameTriage},
		{name: "graded", arg: "graded", want: PolicyNameGraded},
		{name: "case_insensitive", arg: "Graded", want: PolicyNameGraded},
		{name: "unknown", arg: "sm2", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ByName(tc.arg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ByName(%q) expected error", tc.arg)
				}
				return
			}
			if err != nil {
				t.Fatalf("ByName(%q): %v", tc.arg, err)
			}
			if got.Name() != tc.want {
				t.Fatalf("ByName(%q).Name()=%q, want %q", tc.arg, got.Name(), tc.want)
			}
		})
	}
}
