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

func newFakeTestService(repo *fakeRepository) TestService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTestService(repo, logger, validator.New(), nil)
}

func seedAttemptedTest(repo *fakeRepository) *models.TestDefinition {
	repo.users.users["t-1"] = &models.User{ID: "t-1", Role: models.RoleTeacher}
	repo.users.users["s-1"] = &models.User{ID: "s-1", Role: models.RoleStudent}

	test := &models.TestDefinition{
		Title: "Algebra unit test",
		Type:  models.TestMixed,
		Questions: datatypes.NewJSONType([]models.Question{
			{Number: 1, Type: models.MultipleChoice, Text: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: strPtr("4"), Marks: 5},
		}),
		TotalMarks:  5,
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

func TestUpdateEditLock(t *testing.T) {
	three := 3
	students := models.AudienceStudents
	endTime := time.Now().Add(time.Hour)

	patches := []struct {
		name string
		req  UpdateTestRequest
	}{
		{"title", UpdateTestRequest{Title: strPtr("Renamed")}},
		{"description", UpdateTestRequest{Description: strPtr("New notes")}},
		{"max_attempts", UpdateTestRequest{MaxAttempts: &three}},
		{"audience", UpdateTestRequest{Audience: &students, StudentIDs: []string{"s-1"}}},
		{"end_time", UpdateTestRequest{EndTime: &endTime}},
		{"questions", UpdateTestRequest{Questions: []QuestionRequest{
			{Number: 1, Type: models.MultipleChoice, Text: "3+3?", Options: []string{"5", "6"}, CorrectAnswer: strPtr("6"), Marks: 5},
		}}},
	}

	for _, tt := range patches {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepository()
			test := seedAttemptedTest(repo)
			now := time.Now()
			repo.attempts.put(&models.Attempt{
				TestID:      test.ID,
				StudentID:   "s-1",
				Status:      models.AttemptSubmitted,
				StartedAt:   &now,
				SubmittedAt: &now,
				Version:     1,
			})

			svc := newFakeTestService(repo)
			_, err := svc.Update(context.Background(), test.ID, &tt.req, "t-1")
			if !errors.Is(err, ErrTestNotEditable) {
				t.Fatalf("Update() error = %v, want ErrTestNotEditable", err)
			}

			stored, _ := repo.tests.GetByID(context.Background(), nil, test.ID)
			if stored.Title != "Algebra unit test" {
				t.Errorf("title = %q, stored row must stay untouched", stored.Title)
			}
		})
	}

	t.Run("same patch passes without attempts", func(t *testing.T) {
		repo := newFakeRepository()
		test := seedAttemptedTest(repo)

		svc := newFakeTestService(repo)
		updated, err := svc.Update(context.Background(), test.ID, &UpdateTestRequest{Title: strPtr("Renamed")}, "t-1")
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if updated.Title != "Renamed" {
			t.Errorf("title = %q, want %q", updated.Title, "Renamed")
		}
	})
}
