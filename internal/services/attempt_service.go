package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/brightclass/assessment-engine/internal/events"
	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/repositories"
	"github.com/brightclass/assessment-engine/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.Publisher
	grading   GradingService
	stats     StatsService

	// Late submissions inside the grace period are accepted as on time.
	grace time.Duration
}

func NewAttemptService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.Publisher, grading GradingService, stats StatsService, grace time.Duration) AttemptService {
	return &attemptService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		grading:   grading,
		stats:     stats,
		grace:     grace,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, studentID string) (*AttemptResponse, error) {
	s.logger.Info("Starting attempt", "test_id", req.TestID, "student_id", studentID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	student, err := s.repo.User().GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve student: %w", err)
	}

	test, err := s.getTestByID(ctx, req.TestID)
	if err != nil {
		return nil, err
	}

	// Admission checks in order: visibility, window, audience, active
	// attempt, attempt budget.
	switch test.Status {
	case models.StatusDraft, models.StatusClosed, models.StatusArchived:
		// A test that cannot be taken is not disclosed to the student
		return nil, ErrTestNotFound
	}

	now := time.Now()
	if !test.AcceptsAttempts(now) {
		if test.WindowExpired(now) {
			return nil, ErrTestWindowClosed
		}
		return nil, ErrTestNotPublished
	}

	if !s.inAudience(test, student) {
		return nil, NewPermissionError(studentID, test.ID, "test", "attempt", "student is not in the test audience")
	}

	if active, err := s.repo.Attempt().GetActiveAttempt(ctx, nil, test.ID, studentID); err == nil {
		if !active.Expired(now) {
			return nil, ErrAttemptAlreadyActive
		}
		// An expired leftover attempt is finalized before a new one starts
		if err := s.HandleTimeout(ctx, active.ID); err != nil {
			return nil, fmt.Errorf("failed to finalize expired attempt: %w", err)
		}
	} else if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check active attempt: %w", err)
	}

	count, err := s.repo.Attempt().CountByTestAndStudent(ctx, nil, test.ID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	if count >= s.attemptLimit(test) {
		return nil, ErrAttemptLimitReached
	}

	attempt := &models.Attempt{
		TestID:        test.ID,
		StudentID:     studentID,
		AttemptNumber: count + 1,
		Status:        models.AttemptInProgress,
		Answers:       datatypes.NewJSONType([]models.AttemptAnswer{}),
		StartedAt:     &now,
		Version:       1,
	}
	if !test.Untimed && test.Duration > 0 {
		expires := now.Add(time.Duration(test.Duration) * time.Minute)
		attempt.ExpiresAt = &expires
	}

	if err := s.repo.Attempt().Create(ctx, nil, attempt); err != nil {
		// The partial unique index rejects a concurrent second start
		if repositories.IsDuplicateError(err) {
			return nil, ErrAttemptAlreadyActive
		}
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	publishAudit(ctx, s.logger, s.publisher, events.NewEvent(events.ActionAttemptStarted, studentID, "student", "attempt", attempt.ID, true))

	s.logger.Info("Attempt started",
		"attempt_id", attempt.ID,
		"test_id", test.ID,
		"attempt_number", attempt.AttemptNumber)

	return s.buildActiveAttemptResponse(attempt, test), nil
}

func (s *attemptService) Resume(ctx context.Context, attemptID uint, studentID string) (*AttemptResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	if attempt.IsActive() && attempt.Expired(time.Now()) {
		if err := s.HandleTimeout(ctx, attempt.ID); err != nil {
			return nil, fmt.Errorf("failed to finalize expired attempt: %w", err)
		}
		return nil, ErrAttemptTimeExpired
	}
	if !attempt.IsActive() {
		return nil, ErrAttemptNotActive
	}

	test, err := s.getTestByID(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}

	return s.buildActiveAttemptResponse(attempt, test), nil
}

func (s *attemptService) SaveAnswer(ctx context.Context, attemptID uint, req *SubmitAnswerRequest, studentID string) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}

	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return err
	}
	if !attempt.IsActive() {
		return ErrAttemptNotActive
	}
	if attempt.Expired(time.Now()) {
		if err := s.HandleTimeout(ctx, attempt.ID); err != nil {
			return fmt.Errorf("failed to finalize expired attempt: %w", err)
		}
		return ErrAttemptTimeExpired
	}

	test, err := s.getTestByID(ctx, attempt.TestID)
	if err != nil {
		return err
	}
	if _, ok := test.QuestionByNumber(req.QuestionNumber); !ok && len(test.Questions.Data()) > 0 {
		return NewValidationError("question_number", "question does not exist", req.QuestionNumber)
	}

	attempt.Answers = datatypes.NewJSONType(upsertAnswer(attempt.Answers.Data(), req))

	if err := s.repo.Attempt().UpdateVersioned(ctx, nil, attempt); err != nil {
		if errors.Is(err, repositories.ErrStaleVersion) {
			return ErrAttemptStale
		}
		return fmt.Errorf("failed to save answer: %w", err)
	}

	return nil
}

func (s *attemptService) Submit(ctx context.Context, req *SubmitAttemptRequest, studentID string) (*AttemptResponse, error) {
	s.logger.Info("Submitting attempt", "attempt_id", req.AttemptID, "student_id", studentID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.getOwnedAttempt(ctx, req.AttemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.IsFinished() {
		return nil, ErrAttemptAlreadySubmitted
	}

	now := time.Now()

	// Past the grace period the attempt is sealed with whatever answers
	// were already saved; the submission payload arrived too late to count.
	if attempt.Expired(now.Add(-s.grace)) {
		if err := s.HandleTimeout(ctx, attempt.ID); err != nil {
			return nil, fmt.Errorf("failed to finalize expired attempt: %w", err)
		}
		return nil, ErrAttemptTimeExpired
	}

	test, err := s.getTestByID(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}

	answers := attempt.Answers.Data()
	for i := range req.Answers {
		answers = upsertAnswer(answers, &req.Answers[i])
	}
	attempt.Answers = datatypes.NewJSONType(answers)
	attempt.SubmittedAt = &now
	if req.TimeSpent != nil {
		attempt.TimeSpent = *req.TimeSpent
	} else if attempt.StartedAt != nil {
		attempt.TimeSpent = int(now.Sub(*attempt.StartedAt).Seconds())
	}

	if _, err := s.grading.AutoGradeAttempt(ctx, attempt, test); err != nil {
		return nil, fmt.Errorf("failed to grade attempt: %w", err)
	}

	if err := s.repo.Attempt().UpdateVersioned(ctx, nil, attempt); err != nil {
		if errors.Is(err, repositories.ErrStaleVersion) {
			return nil, ErrAttemptStale
		}
		return nil, fmt.Errorf("failed to submit attempt: %w", err)
	}

	if err := s.stats.RecomputeTestAggregates(ctx, test.ID); err != nil {
		s.logger.Warn("failed to recompute test aggregates after submit", "test_id", test.ID, "error", err)
	}

	publishAudit(ctx, s.logger, s.publisher, events.NewEvent(events.ActionAttemptSubmit, studentID, "student", "attempt", attempt.ID, true))

	s.logger.Info("Attempt submitted",
		"attempt_id", attempt.ID,
		"status", attempt.Status,
		"total_score", attempt.TotalScore)

	return s.buildResultResponse(attempt, test), nil
}

// ===== GET OPERATIONS =====

func (s *attemptService) GetByID(ctx context.Context, id uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	test, err := s.getTestByID(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}

	if attempt.StudentID != userID {
		if err := s.checkReviewPermission(ctx, test, userID); err != nil {
			return nil, err
		}
		return s.buildReviewResponse(attempt, test), nil
	}

	if attempt.IsActive() {
		return s.buildActiveAttemptResponse(attempt, test), nil
	}
	return s.buildResultResponse(attempt, test), nil
}

func (s *attemptService) GetCurrentAttempt(ctx context.Context, testID uint, studentID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetActiveAttempt(ctx, nil, testID, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get active attempt: %w", err)
	}

	return s.Resume(ctx, attempt.ID, studentID)
}

// ===== LIST OPERATIONS =====

func (s *attemptService) GetByStudent(ctx context.Context, studentID string, filters repositories.AttemptFilters) (*AttemptListResponse, error) {
	attempts, total, err := s.repo.Attempt().GetByStudent(ctx, nil, studentID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	response := &AttemptListResponse{
		Attempts: make([]*AttemptResponse, len(attempts)),
		Total:    total,
		Page:     (filters.Offset / max(filters.Limit, 1)) + 1,
		Size:     filters.Limit,
	}
	for i, attempt := range attempts {
		test, err := s.getTestByID(ctx, attempt.TestID)
		if err != nil {
			return nil, err
		}
		if attempt.IsActive() {
			response.Attempts[i] = s.buildActiveAttemptResponse(attempt, test)
		} else {
			response.Attempts[i] = s.buildResultResponse(attempt, test)
		}
	}
	return response, nil
}

func (s *attemptService) GetByTest(ctx context.Context, testID uint, filters repositories.AttemptFilters, userID string) (*AttemptListResponse, error) {
	test, err := s.getTestByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	if err := s.checkReviewPermission(ctx, test, userID); err != nil {
		return nil, err
	}

	attempts, total, err := s.repo.Attempt().GetByTest(ctx, nil, testID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	response := &AttemptListResponse{
		Attempts: make([]*AttemptResponse, len(attempts)),
		Total:    total,
		Page:     (filters.Offset / max(filters.Limit, 1)) + 1,
		Size:     filters.Limit,
	}
	for i, attempt := range attempts {
		response.Attempts[i] = s.buildReviewResponse(attempt, test)
	}
	return response, nil
}

// ===== TIME MANAGEMENT =====

func (s *attemptService) GetTimeRemaining(ctx context.Context, attemptID uint, studentID string) (*int, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsActive() {
		return nil, ErrAttemptNotActive
	}

	return timeRemaining(attempt, time.Now()), nil
}

// HandleTimeout seals an expired attempt with the answers saved so far.
// There is no background sweeper; expiry is enforced lazily whenever the
// attempt is touched.
func (s *attemptService) HandleTimeout(ctx context.Context, attemptID uint) error {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("failed to get attempt: %w", err)
	}

	if !attempt.IsActive() || !attempt.Expired(time.Now()) {
		return nil
	}

	test, err := s.getTestByID(ctx, attempt.TestID)
	if err != nil {
		return err
	}

	attempt.SubmittedAt = attempt.ExpiresAt
	if attempt.StartedAt != nil && attempt.ExpiresAt != nil {
		attempt.TimeSpent = int(attempt.ExpiresAt.Sub(*attempt.StartedAt).Seconds())
	}

	if _, err := s.grading.AutoGradeAttempt(ctx, attempt, test); err != nil {
		return fmt.Errorf("failed to grade attempt: %w", err)
	}

	if err := s.repo.Attempt().UpdateVersioned(ctx, nil, attempt); err != nil {
		if errors.Is(err, repositories.ErrStaleVersion) {
			// Someone else already finalized it
			return nil
		}
		return fmt.Errorf("failed to finalize attempt: %w", err)
	}

	if err := s.stats.RecomputeTestAggregates(ctx, test.ID); err != nil {
		s.logger.Warn("failed to recompute test aggregates after timeout", "test_id", test.ID, "error", err)
	}

	publishAudit(ctx, s.logger, s.publisher, events.NewEvent(events.ActionAttemptSubmit, attempt.StudentID, "student", "attempt", attempt.ID, true))

	s.logger.Info("Attempt auto-submitted on expiry", "attempt_id", attempt.ID)
	return nil
}

// ===== VALIDATION =====

func (s *attemptService) CanStart(ctx context.Context, testID uint, studentID string) (bool, error) {
	student, err := s.repo.User().GetByID(ctx, studentID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve student: %w", err)
	}

	test, err := s.getTestByID(ctx, testID)
	if err != nil {
		return false, err
	}

	if !test.AcceptsAttempts(time.Now()) || !s.inAudience(test, student) {
		return false, nil
	}

	if _, err := s.repo.Attempt().GetActiveAttempt(ctx, nil, testID, studentID); err == nil {
		return false, nil
	} else if !repositories.IsNotFoundError(err) {
		return false, fmt.Errorf("failed to check active attempt: %w", err)
	}

	count, err := s.repo.Attempt().CountByTestAndStudent(ctx, nil, testID, studentID)
	if err != nil {
		return false, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count < s.attemptLimit(test), nil
}

func (s *attemptService) GetAttemptCount(ctx context.Context, testID uint, studentID string) (int, error) {
	count, err := s.repo.Attempt().CountByTestAndStudent(ctx, nil, testID, studentID)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}
