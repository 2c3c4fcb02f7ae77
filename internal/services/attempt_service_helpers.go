package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/repositories"
)

// ===== LOOKUP HELPERS =====

func (s *attemptService) getTestByID(ctx context.Context, id uint) (*models.TestDefinition, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return test, nil
}

// getOwnedAttempt loads the attempt and checks it belongs to the student.
// Foreign attempts read as not found; their existence is not disclosed.
func (s *attemptService) getOwnedAttempt(ctx context.Context, attemptID uint, studentID string) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *attemptService) inAudience(test *models.TestDefinition, student *models.User) bool {
	switch test.Audience {
	case models.AudienceBatches:
		return student.InBatch(test.BatchIDs)
	case models.AudienceStudents:
		for _, id := range test.StudentIDs {
			if id == student.ID {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// attemptLimit is how many attempts, finished or abandoned, the test budget
// allows per student.
func (s *attemptService) attemptLimit(test *models.TestDefinition) int {
	if !test.AllowMultipleAttempts {
		return 1
	}
	return max(test.MaxAttempts, 1)
}

func (s *attemptService) checkReviewPermission(ctx context.Context, test *models.TestDefinition, userID string) error {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve user: %w", err)
	}
	if user.Role == models.RoleAdmin {
		return nil
	}
	if !user.CanAuthor() || test.CreatedBy != userID {
		return NewPermissionError(userID, test.ID, "attempt", "review", "not the test owner")
	}
	return nil
}

// upsertAnswer replaces the stored answer for the question or appends a new
// one. A save wipes any earlier grading of that answer.
func upsertAnswer(answers []models.AttemptAnswer, req *SubmitAnswerRequest) []models.AttemptAnswer {
	entry := models.AttemptAnswer{
		QuestionNumber: req.QuestionNumber,
		Value:          req.Value,
		Values:         req.Values,
	}
	for i := range answers {
		if answers[i].QuestionNumber == req.QuestionNumber {
			answers[i] = entry
			return answers
		}
	}
	return append(answers, entry)
}

// timeRemaining is seconds left on the clock, clamped at zero, or nil for
// untimed attempts.
func timeRemaining(attempt *models.Attempt, now time.Time) *int {
	if attempt.ExpiresAt == nil {
		return nil
	}
	seconds := int(attempt.ExpiresAt.Sub(now).Seconds())
	if seconds < 0 {
		seconds = 0
	}
	return &seconds
}

// ===== RESPONSE BUILDING =====

// buildActiveAttemptResponse serves an in-progress attempt: sanitized
// questions, no grading fields.
func (s *attemptService) buildActiveAttemptResponse(attempt *models.Attempt, test *models.TestDefinition) *AttemptResponse {
	questions := test.Questions.Data()
	sanitized := make([]models.Question, len(questions))
	for i, q := range questions {
		sanitized[i] = q.Sanitized()
	}

	return &AttemptResponse{
		Attempt:       attempt,
		CanSubmit:     true,
		CanResume:     true,
		TimeRemaining: timeRemaining(attempt, time.Now()),
		Questions:     sanitized,
	}
}

// buildResultResponse serves a finished attempt back to its student. Scores
// are withheld until the test releases results.
func (s *attemptService) buildResultResponse(attempt *models.Attempt, test *models.TestDefinition) *AttemptResponse {
	response := &AttemptResponse{
		Attempt:        attempt,
		IsPendingGrade: attempt.PendingManualGrading(),
	}

	resultsVisible := test.ShowResultsImmediately || attempt.Status == models.AttemptEvaluated
	if !resultsVisible {
		hidden := *attempt
		hidden.TotalScore = 0
		hidden.Percentage = nil
		hidden.Feedback = nil
		hidden.Answers = datatypes.NewJSONType(stripGrades(attempt.Answers.Data()))
		response.Attempt = &hidden
	}

	return response
}

// buildReviewResponse serves any attempt to the test owner with full
// grading detail.
func (s *attemptService) buildReviewResponse(attempt *models.Attempt, test *models.TestDefinition) *AttemptResponse {
	return &AttemptResponse{
		Attempt:        attempt,
		IsPendingGrade: attempt.IsFinished() && attempt.PendingManualGrading(),
	}
}

func stripGrades(answers []models.AttemptAnswer) []models.AttemptAnswer {
	stripped := make([]models.AttemptAnswer, len(answers))
	for i, ans := range answers {
		ans.IsCorrect = nil
		ans.MarksAwarded = nil
		stripped[i] = ans
	}
	return stripped
}
