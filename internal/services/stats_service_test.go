package services

import (
	"testing"

	"github.com/brightclass/assessment-engine/internal/models"
)

func TestAggregateStatistics(t *testing.T) {
	passingMarks := 10.0

	test := &models.TestDefinition{
		ID:           1,
		Title:        "Weekly quiz",
		TotalMarks:   20,
		PassingMarks: &passingMarks,
	}

	t.Run("empty attempt set keeps aggregates undefined", func(t *testing.T) {
		stats := aggregateStatistics(test, nil)

		if stats.TotalAttempts != 0 {
			t.Errorf("TotalAttempts = %d, want 0", stats.TotalAttempts)
		}
		if stats.AvgScore != nil {
			t.Errorf("AvgScore = %v, want nil", *stats.AvgScore)
		}
		if stats.PassRate != nil {
			t.Errorf("PassRate = %v, want nil", *stats.PassRate)
		}
		if stats.HighestScore != nil || stats.LowestScore != nil {
			t.Error("score extremes should be nil with no evaluated attempts")
		}
	})

	t.Run("submitted but unevaluated attempts carry no averages", func(t *testing.T) {
		attempts := []*models.Attempt{
			{ID: 1, TestID: 1, Status: models.AttemptSubmitted, TotalScore: 12},
			{ID: 2, TestID: 1, Status: models.AttemptSubmitted, TotalScore: 4},
		}

		stats := aggregateStatistics(test, attempts)

		if stats.Submitted != 2 || stats.Evaluated != 0 {
			t.Errorf("Submitted/Evaluated = %d/%d, want 2/0", stats.Submitted, stats.Evaluated)
		}
		if stats.AvgScore != nil || stats.PassRate != nil {
			t.Error("averages must stay nil until attempts are evaluated")
		}
	})

	t.Run("evaluated attempts produce averages and pass rate", func(t *testing.T) {
		attempts := []*models.Attempt{
			{ID: 1, Status: models.AttemptEvaluated, TotalScore: 16, Percentage: float64Ptr(80)},
			{ID: 2, Status: models.AttemptEvaluated, TotalScore: 8, Percentage: float64Ptr(40)},
			{ID: 3, Status: models.AttemptSubmitted, TotalScore: 20},
		}

		stats := aggregateStatistics(test, attempts)

		if stats.TotalAttempts != 3 {
			t.Errorf("TotalAttempts = %d, want 3", stats.TotalAttempts)
		}
		if stats.AvgScore == nil || *stats.AvgScore != 60 {
			t.Errorf("AvgScore = %v, want 60", fmtFloatPtr(stats.AvgScore))
		}
		// One of two evaluated attempts cleared the threshold
		if stats.PassRate == nil || *stats.PassRate != 50 {
			t.Errorf("PassRate = %v, want 50", fmtFloatPtr(stats.PassRate))
		}
		if stats.HighestScore == nil || *stats.HighestScore != 16 {
			t.Errorf("HighestScore = %v, want 16 (submitted attempts excluded)", fmtFloatPtr(stats.HighestScore))
		}
		if stats.LowestScore == nil || *stats.LowestScore != 8 {
			t.Errorf("LowestScore = %v, want 8", fmtFloatPtr(stats.LowestScore))
		}
	})

	t.Run("no passing threshold means no pass rate", func(t *testing.T) {
		unthresholded := &models.TestDefinition{ID: 2, Title: "Practice", TotalMarks: 20}
		attempts := []*models.Attempt{
			{ID: 1, Status: models.AttemptEvaluated, TotalScore: 16, Percentage: float64Ptr(80)},
		}

		stats := aggregateStatistics(unthresholded, attempts)

		if stats.PassRate != nil {
			t.Errorf("PassRate = %v, want nil", *stats.PassRate)
		}
		if stats.AvgScore == nil || *stats.AvgScore != 80 {
			t.Errorf("AvgScore = %v, want 80", fmtFloatPtr(stats.AvgScore))
		}
	})

	t.Run("deterministic across runs", func(t *testing.T) {
		attempts := []*models.Attempt{
			{ID: 1, Status: models.AttemptEvaluated, TotalScore: 16, Percentage: float64Ptr(80)},
			{ID: 2, Status: models.AttemptEvaluated, TotalScore: 8, Percentage: float64Ptr(40)},
		}

		first := aggregateStatistics(test, attempts)
		second := aggregateStatistics(test, attempts)

		if *first.AvgScore != *second.AvgScore || *first.PassRate != *second.PassRate {
			t.Error("same input must yield identical aggregates")
		}
	})
}
