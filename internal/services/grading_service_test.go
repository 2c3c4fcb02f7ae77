package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"gorm.io/datatypes"

	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/validator"
)

func newTestGradingService() GradingService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGradingService(nil, logger, validator.New(), nil, nil)
}

func strPtr(s string) *string { return &s }

func TestScoreQuestion(t *testing.T) {
	svc := newTestGradingService()

	mcSingle := models.Question{
		Number:          1,
		Type:            models.MultipleChoice,
		Text:            "Capital of France?",
		Options:         []string{"Paris", "Lyon", "Nice"},
		CorrectAnswer:   strPtr("Paris"),
		Marks:           4,
		NegativeMarking: 1,
	}
	mcMulti := models.Question{
		Number:          2,
		Type:            models.MultipleChoice,
		Text:            "Prime numbers?",
		Options:         []string{"2", "3", "4", "5"},
		CorrectAnswers:  []string{"2", "3", "5"},
		Marks:           3,
		NegativeMarking: 0.5,
	}
	trueFalse := models.Question{
		Number:          3,
		Type:            models.TrueFalse,
		Text:            "Water boils at 100C at sea level.",
		Options:         []string{"True", "False"},
		CorrectAnswer:   strPtr("True"),
		Marks:           1,
		NegativeMarking: 0.25,
	}
	shortAnswer := models.Question{
		Number:        4,
		Type:          models.ShortAnswer,
		Text:          "Chemical symbol for gold?",
		CorrectAnswer: strPtr("Au"),
		Marks:         2,
	}
	essay := models.Question{
		Number: 5,
		Type:   models.Essay,
		Text:   "Discuss the causes of World War I.",
		Marks:  10,
	}

	tests := []struct {
		name        string
		question    models.Question
		answer      *models.AttemptAnswer
		wantCorrect *bool
		wantMarks   *float64
	}{
		{
			name:        "single choice correct",
			question:    mcSingle,
			answer:      &models.AttemptAnswer{QuestionNumber: 1, Value: strPtr("Paris")},
			wantCorrect: boolPtr(true),
			wantMarks:   float64Ptr(4),
		},
		{
			name:        "single choice wrong costs negative marking",
			question:    mcSingle,
			answer:      &models.AttemptAnswer{QuestionNumber: 1, Value: strPtr("Lyon")},
			wantCorrect: boolPtr(false),
			wantMarks:   float64Ptr(-1),
		},
		{
			name:        "single choice is case sensitive",
			question:    mcSingle,
			answer:      &models.AttemptAnswer{QuestionNumber: 1, Value: strPtr("paris")},
			wantCorrect: boolPtr(false),
			wantMarks:   float64Ptr(-1),
		},
		{
			name:        "unanswered scores zero without penalty",
			question:    mcSingle,
			answer:      nil,
			wantCorrect: nil,
			wantMarks:   float64Ptr(0),
		},
		{
			name:        "empty answer entry counts as unanswered",
			question:    mcSingle,
			answer:      &models.AttemptAnswer{QuestionNumber: 1},
			wantCorrect: nil,
			wantMarks:   float64Ptr(0),
		},
		{
			name:        "multi select exact set",
			question:    mcMulti,
			answer:      &models.AttemptAnswer{QuestionNumber: 2, Values: []string{"5", "2", "3"}},
			wantCorrect: boolPtr(true),
			wantMarks:   float64Ptr(3),
		},
		{
			name:        "multi select ignores duplicate selections",
			question:    mcMulti,
			answer:      &models.AttemptAnswer{QuestionNumber: 2, Values: []string{"2", "2", "3", "5"}},
			wantCorrect: boolPtr(true),
			wantMarks:   float64Ptr(3),
		},
		{
			name:        "multi select partial is wrong",
			question:    mcMulti,
			answer:      &models.AttemptAnswer{QuestionNumber: 2, Values: []string{"2", "3"}},
			wantCorrect: boolPtr(false),
			wantMarks:   float64Ptr(-0.5),
		},
		{
			name:        "multi select superset is wrong",
			question:    mcMulti,
			answer:      &models.AttemptAnswer{QuestionNumber: 2, Values: []string{"2", "3", "4", "5"}},
			wantCorrect: boolPtr(false),
			wantMarks:   float64Ptr(-0.5),
		},
		{
			name:        "true false correct",
			question:    trueFalse,
			answer:      &models.AttemptAnswer{QuestionNumber: 3, Value: strPtr("True")},
			wantCorrect: boolPtr(true),
			wantMarks:   float64Ptr(1),
		},
		{
			name:        "true false wrong",
			question:    trueFalse,
			answer:      &models.AttemptAnswer{QuestionNumber: 3, Value: strPtr("False")},
			wantCorrect: boolPtr(false),
			wantMarks:   float64Ptr(-0.25),
		},
		{
			name:        "short answer is case insensitive and trimmed",
			question:    shortAnswer,
			answer:      &models.AttemptAnswer{QuestionNumber: 4, Value: strPtr("  au ")},
			wantCorrect: boolPtr(true),
			wantMarks:   float64Ptr(2),
		},
		{
			name:        "wrong short answer is never penalized",
			question:    shortAnswer,
			answer:      &models.AttemptAnswer{QuestionNumber: 4, Value: strPtr("Ag")},
			wantCorrect: boolPtr(false),
			wantMarks:   float64Ptr(0),
		},
		{
			name:        "essay needs manual grading",
			question:    essay,
			answer:      &models.AttemptAnswer{QuestionNumber: 5, Value: strPtr("Long answer...")},
			wantCorrect: nil,
			wantMarks:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotCorrect, gotMarks := svc.ScoreQuestion(&tt.question, tt.answer)

			if !equalBoolPtr(gotCorrect, tt.wantCorrect) {
				t.Errorf("IsCorrect = %v, want %v", fmtBoolPtr(gotCorrect), fmtBoolPtr(tt.wantCorrect))
			}
			if !equalFloatPtr(gotMarks, tt.wantMarks) {
				t.Errorf("MarksAwarded = %v, want %v", fmtFloatPtr(gotMarks), fmtFloatPtr(tt.wantMarks))
			}
		})
	}
}

func TestScoreAttempt(t *testing.T) {
	svc := newTestGradingService()

	test := &models.TestDefinition{
		ID:         1,
		Title:      "Mixed paper",
		Type:       models.TestMixed,
		TotalMarks: 7,
		Questions: datatypes.NewJSONType([]models.Question{
			{Number: 1, Type: models.MultipleChoice, Text: "Q1", Options: []string{"A", "B"}, CorrectAnswer: strPtr("A"), Marks: 2, NegativeMarking: 3},
			{Number: 2, Type: models.TrueFalse, Text: "Q2", Options: []string{"True", "False"}, CorrectAnswer: strPtr("False"), Marks: 2},
			{Number: 3, Type: models.Essay, Text: "Q3", Marks: 3},
		}),
	}

	t.Run("skipped questions get zero entries and essays stay pending", func(t *testing.T) {
		answers := []models.AttemptAnswer{
			{QuestionNumber: 1, Value: strPtr("A")},
		}

		graded, total, pending := svc.ScoreAttempt(test, answers)

		if len(graded) != 3 {
			t.Fatalf("graded entries = %d, want 3", len(graded))
		}
		if total != 2 {
			t.Errorf("total = %v, want 2", total)
		}
		if !pending {
			t.Error("pending = false, want true (essay ungraded)")
		}
		if graded[1].MarksAwarded == nil || *graded[1].MarksAwarded != 0 {
			t.Errorf("skipped question marks = %v, want 0", fmtFloatPtr(graded[1].MarksAwarded))
		}
		if graded[2].MarksAwarded != nil {
			t.Errorf("essay marks = %v, want nil", fmtFloatPtr(graded[2].MarksAwarded))
		}
	})

	t.Run("negative marking never drives the total below zero", func(t *testing.T) {
		answers := []models.AttemptAnswer{
			{QuestionNumber: 1, Value: strPtr("B")}, // -3
			{QuestionNumber: 2, Value: strPtr("False")}, // +2
		}

		_, total, _ := svc.ScoreAttempt(test, answers)

		if total != 0 {
			t.Errorf("total = %v, want 0 (clamped)", total)
		}
	})

	t.Run("paper without embedded questions is always pending", func(t *testing.T) {
		pdfTest := &models.TestDefinition{
			ID:         2,
			Title:      "PDF paper",
			Type:       models.TestPDFBased,
			TotalMarks: 50,
		}
		answers := []models.AttemptAnswer{
			{QuestionNumber: 1, Value: strPtr("see uploaded sheet")},
		}

		graded, total, pending := svc.ScoreAttempt(pdfTest, answers)

		if !pending {
			t.Error("pending = false, want true")
		}
		if total != 0 {
			t.Errorf("total = %v, want 0", total)
		}
		if len(graded) != 1 {
			t.Errorf("graded entries = %d, want 1 (answers pass through)", len(graded))
		}
	})
}

func TestTotalFromAnswers(t *testing.T) {
	tests := []struct {
		name    string
		answers []models.AttemptAnswer
		want    float64
	}{
		{name: "empty", answers: nil, want: 0},
		{
			name: "sums graded entries only",
			answers: []models.AttemptAnswer{
				{QuestionNumber: 1, MarksAwarded: float64Ptr(3)},
				{QuestionNumber: 2},
				{QuestionNumber: 3, MarksAwarded: float64Ptr(1.5)},
			},
			want: 4.5,
		},
		{
			name: "clamps at zero",
			answers: []models.AttemptAnswer{
				{QuestionNumber: 1, MarksAwarded: float64Ptr(1)},
				{QuestionNumber: 2, MarksAwarded: float64Ptr(-4)},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := totalFromAnswers(tt.answers); got != tt.want {
				t.Errorf("totalFromAnswers() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPercentageOf(t *testing.T) {
	if got := percentageOf(5, 0); got != nil {
		t.Errorf("percentageOf(5, 0) = %v, want nil", *got)
	}
	if got := percentageOf(5, 20); got == nil || *got != 25 {
		t.Errorf("percentageOf(5, 20) = %v, want 25", fmtFloatPtr(got))
	}
}

func TestApplyManualGrade(t *testing.T) {
	question := &models.Question{Number: 5, Type: models.Essay, Text: "Q", Marks: 10}

	t.Run("overwrites an existing entry", func(t *testing.T) {
		answers := []models.AttemptAnswer{
			{QuestionNumber: 5, Value: strPtr("essay text")},
		}

		got := applyManualGrade(answers, QuestionGrade{QuestionNumber: 5, Marks: 10}, question)

		if len(got) != 1 {
			t.Fatalf("entries = %d, want 1", len(got))
		}
		if got[0].MarksAwarded == nil || *got[0].MarksAwarded != 10 {
			t.Errorf("marks = %v, want 10", fmtFloatPtr(got[0].MarksAwarded))
		}
		if got[0].IsCorrect == nil || !*got[0].IsCorrect {
			t.Error("full marks should flag the answer correct")
		}
	})

	t.Run("creates an entry for a skipped question", func(t *testing.T) {
		got := applyManualGrade(nil, QuestionGrade{QuestionNumber: 5, Marks: 4}, question)

		if len(got) != 1 {
			t.Fatalf("entries = %d, want 1", len(got))
		}
		if got[0].IsCorrect == nil || *got[0].IsCorrect {
			t.Error("partial marks should not flag the answer correct")
		}
	})
}

// ===== TEST HELPERS =====

func equalBoolPtr(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fmtBoolPtr(p *bool) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func fmtFloatPtr(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func TestAutoGradeAttempt(t *testing.T) {
	svc := newTestGradingService()

	t.Run("objective attempt evaluates immediately", func(t *testing.T) {
		test := &models.TestDefinition{
			Questions: datatypes.NewJSONType([]models.Question{
				{Number: 1, Type: models.MultipleChoice, Options: []string{"1", "2"}, CorrectAnswer: strPtr("2"), Marks: 2},
				{Number: 2, Type: models.TrueFalse, Options: []string{"true", "false"}, CorrectAnswer: strPtr("true"), Marks: 1},
			}),
			TotalMarks: 3,
		}
		attempt := &models.Attempt{
			Status: models.AttemptSubmitted,
			Answers: datatypes.NewJSONType([]models.AttemptAnswer{
				{QuestionNumber: 1, Value: strPtr("2")},
				{QuestionNumber: 2, Value: strPtr("false")},
			}),
		}

		result, err := svc.AutoGradeAttempt(context.Background(), attempt, test)
		if err != nil {
			t.Fatalf("AutoGradeAttempt() error = %v", err)
		}
		if attempt.Status != models.AttemptEvaluated {
			t.Errorf("status = %s, want evaluated", attempt.Status)
		}
		if attempt.GradedAt == nil {
			t.Error("evaluated attempt must carry a grading time")
		}
		if attempt.TotalScore != 2 {
			t.Errorf("total score = %v, want 2", attempt.TotalScore)
		}
		if result.Pending {
			t.Error("objective attempt must not wait for manual review")
		}
	})

	t.Run("subjective question keeps the attempt submitted", func(t *testing.T) {
		test := &models.TestDefinition{
			Questions: datatypes.NewJSONType([]models.Question{
				{Number: 1, Type: models.MultipleChoice, Options: []string{"1", "2"}, CorrectAnswer: strPtr("2"), Marks: 2},
				{Number: 2, Type: models.Essay, Marks: 5},
			}),
			TotalMarks: 7,
		}
		attempt := &models.Attempt{
			Status: models.AttemptSubmitted,
			Answers: datatypes.NewJSONType([]models.AttemptAnswer{
				{QuestionNumber: 1, Value: strPtr("2")},
				{QuestionNumber: 2, Value: strPtr("The proof follows by induction.")},
			}),
		}

		result, err := svc.AutoGradeAttempt(context.Background(), attempt, test)
		if err != nil {
			t.Fatalf("AutoGradeAttempt() error = %v", err)
		}
		if attempt.Status != models.AttemptSubmitted {
			t.Errorf("status = %s, want submitted until graded", attempt.Status)
		}
		if attempt.GradedAt != nil {
			t.Error("pending attempt must not carry a grading time")
		}
		if !result.Pending {
			t.Error("essay answer must flag manual review")
		}
	})
}
