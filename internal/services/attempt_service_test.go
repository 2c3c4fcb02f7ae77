package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/validator"
)

func newTestAttemptService() *attemptService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewAttemptService(nil, logger, validator.New(), nil, nil, nil, 30*time.Second)
	return svc.(*attemptService)
}

func TestAttemptLimit(t *testing.T) {
	svc := newTestAttemptService()

	tests := []struct {
		name string
		test models.TestDefinition
		want int
	}{
		{
			name: "single attempt by default",
			test: models.TestDefinition{MaxAttempts: 5},
			want: 1,
		},
		{
			name: "multiple attempts honor the budget",
			test: models.TestDefinition{AllowMultipleAttempts: true, MaxAttempts: 3},
			want: 3,
		},
		{
			name: "zero budget still allows one",
			test: models.TestDefinition{AllowMultipleAttempts: true},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.attemptLimit(&tt.test); got != tt.want {
				t.Errorf("attemptLimit() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUpsertAnswer(t *testing.T) {
	t.Run("appends a new answer", func(t *testing.T) {
		got := upsertAnswer(nil, &SubmitAnswerRequest{QuestionNumber: 1, Value: strPtr("A")})

		if len(got) != 1 {
			t.Fatalf("entries = %d, want 1", len(got))
		}
		if got[0].Value == nil || *got[0].Value != "A" {
			t.Errorf("value = %v, want A", got[0].Value)
		}
	})

	t.Run("replaces an existing answer and wipes its grading", func(t *testing.T) {
		answers := []models.AttemptAnswer{
			{QuestionNumber: 1, Value: strPtr("A"), IsCorrect: boolPtr(true), MarksAwarded: float64Ptr(2)},
			{QuestionNumber: 2, Value: strPtr("B")},
		}

		got := upsertAnswer(answers, &SubmitAnswerRequest{QuestionNumber: 1, Value: strPtr("C")})

		if len(got) != 2 {
			t.Fatalf("entries = %d, want 2", len(got))
		}
		if *got[0].Value != "C" {
			t.Errorf("value = %q, want C", *got[0].Value)
		}
		if got[0].IsCorrect != nil || got[0].MarksAwarded != nil {
			t.Error("re-answering must clear the earlier grading")
		}
	})
}

func TestTimeRemaining(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("untimed attempt has no clock", func(t *testing.T) {
		if got := timeRemaining(&models.Attempt{}, now); got != nil {
			t.Errorf("timeRemaining() = %v, want nil", *got)
		}
	})

	t.Run("counts down", func(t *testing.T) {
		expires := now.Add(90 * time.Second)
		got := timeRemaining(&models.Attempt{ExpiresAt: &expires}, now)
		if got == nil || *got != 90 {
			t.Errorf("timeRemaining() = %v, want 90", got)
		}
	})

	t.Run("clamps at zero after expiry", func(t *testing.T) {
		expires := now.Add(-time.Minute)
		got := timeRemaining(&models.Attempt{ExpiresAt: &expires}, now)
		if got == nil || *got != 0 {
			t.Errorf("timeRemaining() = %v, want 0", got)
		}
	})
}

func TestStripGrades(t *testing.T) {
	answers := []models.AttemptAnswer{
		{QuestionNumber: 1, Value: strPtr("A"), IsCorrect: boolPtr(true), MarksAwarded: float64Ptr(2)},
		{QuestionNumber: 2, Values: []string{"B", "C"}, IsCorrect: boolPtr(false), MarksAwarded: float64Ptr(-1)},
	}

	got := stripGrades(answers)

	for i, ans := range got {
		if ans.IsCorrect != nil || ans.MarksAwarded != nil {
			t.Errorf("answer %d still carries grading", i)
		}
	}
	// The original slice must stay intact; results may be released later
	if answers[0].IsCorrect == nil {
		t.Error("stripGrades must not mutate its input")
	}
}

func newFakeAttemptService(repo *fakeRepository) AttemptService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAttemptService(repo, logger, validator.New(), nil, nil, nil, 30*time.Second)
}

func seedStartableTest(repo *fakeRepository) *models.TestDefinition {
	repo.users.users["s-1"] = &models.User{ID: "s-1", Role: models.RoleStudent}

	test := &models.TestDefinition{
		Title: "Geometry quiz",
		Type:  models.TestMultipleChoice,
		Questions: datatypes.NewJSONType([]models.Question{
			{Number: 1, Type: models.MultipleChoice, Text: "Angles of a triangle?", Options: []string{"90", "180"}, CorrectAnswer: strPtr("180"), Marks: 2},
		}),
		TotalMarks:  2,
		Duration:    30,
		MaxAttempts: 1,
		Audience:    models.AudienceAll,
		Status:      models.StatusActive,
		CreatedBy:   "t-1",
		Version:     1,
	}
	repo.tests.put(test)
	return test
}

func TestStartAdmission(t *testing.T) {
	ctx := context.Background()

	t.Run("starts the first attempt", func(t *testing.T) {
		repo := newFakeRepository()
		test := seedStartableTest(repo)

		svc := newFakeAttemptService(repo)
		got, err := svc.Start(ctx, &StartAttemptRequest{TestID: test.ID}, "s-1")
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if got.AttemptNumber != 1 {
			t.Errorf("attempt number = %d, want 1", got.AttemptNumber)
		}
		if got.Status != models.AttemptInProgress {
			t.Errorf("status = %s, want in_progress", got.Status)
		}
		if got.ExpiresAt == nil {
			t.Error("timed test must set a deadline")
		}
	})

	t.Run("closed test reads as missing", func(t *testing.T) {
		repo := newFakeRepository()
		test := seedStartableTest(repo)
		test.Status = models.StatusClosed
		repo.tests.put(test)

		svc := newFakeAttemptService(repo)
		_, err := svc.Start(ctx, &StartAttemptRequest{TestID: test.ID}, "s-1")
		if !errors.Is(err, ErrTestNotFound) {
			t.Fatalf("Start() error = %v, want ErrTestNotFound", err)
		}
	})

	t.Run("audience exclusion is forbidden, not hidden", func(t *testing.T) {
		repo := newFakeRepository()
		test := seedStartableTest(repo)
		test.Audience = models.AudienceBatches
		test.BatchIDs = datatypes.NewJSONSlice([]string{"batch-9"})
		repo.tests.put(test)

		svc := newFakeAttemptService(repo)
		_, err := svc.Start(ctx, &StartAttemptRequest{TestID: test.ID}, "s-1")

		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Fatalf("Start() error = %v, want PermissionError", err)
		}
	})

	t.Run("open attempt blocks a second start", func(t *testing.T) {
		repo := newFakeRepository()
		test := seedStartableTest(repo)
		now := time.Now()
		expires := now.Add(30 * time.Minute)
		repo.attempts.put(&models.Attempt{
			TestID:    test.ID,
			StudentID: "s-1",
			Status:    models.AttemptInProgress,
			StartedAt: &now,
			ExpiresAt: &expires,
			Version:   1,
		})

		svc := newFakeAttemptService(repo)
		_, err := svc.Start(ctx, &StartAttemptRequest{TestID: test.ID}, "s-1")
		if !errors.Is(err, ErrAttemptAlreadyActive) {
			t.Fatalf("Start() error = %v, want ErrAttemptAlreadyActive", err)
		}
	})

	t.Run("exhausted budget blocks a new start", func(t *testing.T) {
		repo := newFakeRepository()
		test := seedStartableTest(repo)
		test.AllowMultipleAttempts = true
		test.MaxAttempts = 2
		repo.tests.put(test)
		now := time.Now()
		for i := 1; i <= 2; i++ {
			repo.attempts.put(&models.Attempt{
				TestID:        test.ID,
				StudentID:     "s-1",
				AttemptNumber: i,
				Status:        models.AttemptSubmitted,
				StartedAt:     &now,
				SubmittedAt:   &now,
				Version:       1,
			})
		}

		svc := newFakeAttemptService(repo)
		_, err := svc.Start(ctx, &StartAttemptRequest{TestID: test.ID}, "s-1")
		if !errors.Is(err, ErrAttemptLimitReached) {
			t.Fatalf("Start() error = %v, want ErrAttemptLimitReached", err)
		}
	})

	t.Run("lost insert race reads as an active attempt", func(t *testing.T) {
		repo := newFakeRepository()
		test := seedStartableTest(repo)
		repo.attempts.duplicateOnCreate = true

		svc := newFakeAttemptService(repo)
		_, err := svc.Start(ctx, &StartAttemptRequest{TestID: test.ID}, "s-1")
		if !errors.Is(err, ErrAttemptAlreadyActive) {
			t.Fatalf("Start() error = %v, want ErrAttemptAlreadyActive", err)
		}
	})
}
