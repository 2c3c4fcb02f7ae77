package models

import (
	"testing"
	"time"

	"gorm.io/datatypes"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from TestStatus
		to   TestStatus
		want bool
	}{
		{StatusDraft, StatusScheduled, true},
		{StatusDraft, StatusActive, true},
		{StatusDraft, StatusArchived, true},
		{StatusDraft, StatusClosed, false},
		{StatusScheduled, StatusDraft, true},
		{StatusScheduled, StatusActive, true},
		{StatusScheduled, StatusClosed, true},
		{StatusScheduled, StatusArchived, false},
		{StatusActive, StatusClosed, true},
		{StatusActive, StatusArchived, true},
		{StatusActive, StatusDraft, false},
		{StatusClosed, StatusArchived, true},
		{StatusClosed, StatusActive, false},
		{StatusArchived, StatusDraft, false},
		{StatusArchived, StatusClosed, false},
	}

	for _, tt := range tests {
		test := &TestDefinition{Status: tt.from}
		if got := test.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestWindowChecks(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	t.Run("missing bounds are open ended", func(t *testing.T) {
		test := &TestDefinition{Status: StatusActive}
		if !test.WindowOpen(now) {
			t.Error("window without bounds should be open")
		}
		if test.WindowExpired(now) {
			t.Error("window without end should never expire")
		}
	})

	t.Run("closed before start", func(t *testing.T) {
		test := &TestDefinition{Status: StatusActive, StartTime: &after}
		if test.AcceptsAttempts(now) {
			t.Error("attempts must not start before the window opens")
		}
	})

	t.Run("closed after end", func(t *testing.T) {
		test := &TestDefinition{Status: StatusActive, EndTime: &before}
		if test.AcceptsAttempts(now) {
			t.Error("attempts must not start after the window closed")
		}
		if !test.WindowExpired(now) {
			t.Error("window past its end is expired")
		}
	})

	t.Run("only active tests accept attempts", func(t *testing.T) {
		test := &TestDefinition{Status: StatusScheduled}
		if test.AcceptsAttempts(now) {
			t.Error("scheduled tests do not accept attempts yet")
		}
	})
}

func TestQuestionHelpers(t *testing.T) {
	key := "Paris"

	t.Run("multi select detection", func(t *testing.T) {
		single := Question{Type: MultipleChoice, CorrectAnswer: &key}
		multi := Question{Type: MultipleChoice, CorrectAnswers: []string{"2", "3"}}

		if single.IsMultiSelect() {
			t.Error("single-key question flagged multi-select")
		}
		if !multi.IsMultiSelect() {
			t.Error("multi-key question not flagged multi-select")
		}
	})

	t.Run("objective question without key is not auto gradable", func(t *testing.T) {
		q := Question{Type: ShortAnswer}
		if q.AutoGradable() {
			t.Error("keyless short answer cannot be auto graded")
		}
	})

	t.Run("sanitized strips the key", func(t *testing.T) {
		q := Question{Type: MultipleChoice, Text: "Capital?", Options: []string{"Paris", "Lyon"}, CorrectAnswer: &key}
		clean := q.Sanitized()

		if clean.CorrectAnswer != nil || clean.CorrectAnswers != nil {
			t.Error("sanitized question still carries the answer key")
		}
		if q.CorrectAnswer == nil {
			t.Error("sanitizing must not mutate the original")
		}
	})
}

func TestAttemptHelpers(t *testing.T) {
	t.Run("pending grading spots nil marks", func(t *testing.T) {
		marks := 2.0
		attempt := &Attempt{
			Answers: datatypes.NewJSONType([]AttemptAnswer{
				{QuestionNumber: 1, MarksAwarded: &marks},
				{QuestionNumber: 2},
			}),
		}
		if !attempt.PendingManualGrading() {
			t.Error("ungraded answer should flag pending")
		}
	})

	t.Run("expiry only applies to timed attempts", func(t *testing.T) {
		now := time.Now()
		if (&Attempt{}).Expired(now) {
			t.Error("untimed attempt can never expire")
		}

		past := now.Add(-time.Minute)
		if !(&Attempt{ExpiresAt: &past}).Expired(now) {
			t.Error("attempt past its deadline should be expired")
		}
	})
}
