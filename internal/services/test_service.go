package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brightclass/assessment-engine/internal/events"
	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/repositories"
	"github.com/brightclass/assessment-engine/internal/validator"
)

type testService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.Publisher
}

func NewTestService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.Publisher) TestService {
	return &testService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *testService) Create(ctx context.Context, req *CreateTestRequest, creatorID string) (*TestResponse, error) {
	s.logger.Info("Creating test", "creator_id", creatorID, "title", req.Title)

	// Validate request with business rules
	if errs := s.validator.GetBusinessValidator().ValidateTestCreate(req); len(errs) > 0 {
		return nil, errs
	}

	// Check user permissions
	creator, err := s.repo.User().GetByID(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("permission check failed: %w", err)
	}
	if !creator.CanAuthor() {
		return nil, NewPermissionError(creatorID, 0, "test", "create", "insufficient role permissions")
	}

	test := s.buildTestFromRequest(req, creatorID)

	if err := s.repo.Test().Create(ctx, nil, test); err != nil {
		return nil, fmt.Errorf("failed to create test: %w", err)
	}

	s.logger.Info("Test created successfully", "test_id", test.ID)

	return s.buildTestResponse(ctx, test, creatorID), nil
}

func (s *testService) GetByID(ctx context.Context, id uint, userID string) (*TestResponse, error) {
	test, err := s.getTestByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	if user.Role == models.RoleStudent {
		// Drafts and archived tests do not exist for students
		if !test.IsVisibleToStudents() || !s.inAudience(test, user) {
			return nil, ErrTestNotFound
		}
		return s.buildStudentTestResponse(ctx, test, user), nil
	}

	if user.Role == models.RoleTeacher && test.CreatedBy != userID {
		return nil, NewPermissionError(userID, id, "test", "read", "not the test owner")
	}

	return s.buildTestResponse(ctx, test, userID), nil
}

func (s *testService) Update(ctx context.Context, id uint, req *UpdateTestRequest, userID string) (*TestResponse, error) {
	s.logger.Info("Updating test", "test_id", id, "user_id", userID)

	test, err := s.getTestByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.checkOwnership(ctx, test, userID, "update"); err != nil {
		return nil, err
	}

	// Validate request with business rules
	if errs := s.validator.GetBusinessValidator().ValidateTestUpdate(req, test); len(errs) > 0 {
		return nil, errs
	}

	// The attempt count check and the write share one transaction so a
	// concurrent first attempt cannot slip between them.
	var updated *models.TestDefinition
	err = s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		current, err := r.Test().GetByID(ctx, nil, id)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrTestNotFound
			}
			return fmt.Errorf("failed to get test: %w", err)
		}

		// Any existing attempt locks the whole test; no field is exempt
		_, total, err := r.Attempt().List(ctx, nil, repositories.AttemptFilters{TestID: &id, Limit: 1})
		if err != nil {
			return fmt.Errorf("failed to count attempts: %w", err)
		}
		if total > 0 {
			return ErrTestNotEditable
		}

		s.applyTestUpdates(current, req)

		if err := r.Test().Update(ctx, nil, current); err != nil {
			return fmt.Errorf("failed to update test: %w", err)
		}

		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Test updated successfully", "test_id", id)

	return s.buildTestResponse(ctx, updated, userID), nil
}

func (s *testService) Delete(ctx context.Context, id uint, userID string) error {
	s.logger.Info("Deleting test", "test_id", id, "user_id", userID)

	test, err := s.getTestByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.checkOwnership(ctx, test, userID, "delete"); err != nil {
		return err
	}

	err = s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		_, total, err := r.Attempt().List(ctx, nil, repositories.AttemptFilters{TestID: &id, Limit: 1})
		if err != nil {
			return fmt.Errorf("failed to count attempts: %w", err)
		}
		if total > 0 {
			return NewBusinessRuleError("test_has_attempts", "tests with student attempts must be archived, not deleted")
		}

		if err := r.Test().Delete(ctx, nil, id); err != nil {
			return fmt.Errorf("failed to delete test: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Test deleted successfully", "test_id", id)
	return nil
}

// ===== LIST AND SEARCH OPERATIONS =====

func (s *testService) List(ctx context.Context, filters repositories.TestFilters, userID string) (*TestListResponse, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	switch user.Role {
	case models.RoleStudent:
		return s.GetAvailable(ctx, userID, filters)

	case models.RoleTeacher:
		return s.GetByCreator(ctx, userID, filters)

	case models.RoleAdmin:
		// Admins see everything

	default:
		return &TestListResponse{
			Tests: []*TestResponse{},
			Total: 0,
			Page:  1,
			Size:  filters.Limit,
		}, nil
	}

	tests, total, err := s.repo.Test().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}

	return s.buildTestListResponse(ctx, tests, total, filters, userID), nil
}

func (s *testService) GetByCreator(ctx context.Context, creatorID string, filters repositories.TestFilters) (*TestListResponse, error) {
	filters.CreatedBy = &creatorID

	tests, total, err := s.repo.Test().GetByCreator(ctx, nil, creatorID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get tests by creator: %w", err)
	}

	return s.buildTestListResponse(ctx, tests, total, filters, creatorID), nil
}

func (s *testService) GetAvailable(ctx context.Context, studentID string, filters repositories.TestFilters) (*TestListResponse, error) {
	student, err := s.repo.User().GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	tests, _, err := s.repo.Test().GetVisibleToStudents(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}

	// Audience filtering happens here because batch membership lives in the
	// identity provider, not in the tests table.
	visible := make([]*models.TestDefinition, 0, len(tests))
	for _, test := range tests {
		test = s.closeIfWindowExpired(ctx, test)
		if s.inAudience(test, student) {
			visible = append(visible, test)
		}
	}

	response := &TestListResponse{
		Tests: make([]*TestResponse, len(visible)),
		Total: int64(len(visible)),
		Page:  (filters.Offset / max(filters.Limit, 1)) + 1,
		Size:  filters.Limit,
	}
	for i, test := range visible {
		response.Tests[i] = s.buildStudentTestResponse(ctx, test, student)
	}

	return response, nil
}

// ===== LIFECYCLE MANAGEMENT =====

func (s *testService) UpdateStatus(ctx context.Context, id uint, req *UpdateStatusRequest, userID string) error {
	s.logger.Info("Updating test status", "test_id", id, "new_status", req.Status, "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return err
	}

	test, err := s.getTestByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.checkOwnership(ctx, test, userID, "update_status"); err != nil {
		return err
	}

	err = s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		current, err := r.Test().GetByID(ctx, nil, id)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrTestNotFound
			}
			return fmt.Errorf("failed to get test: %w", err)
		}

		hasAttempts := false
		if current.Status == models.StatusScheduled && req.Status == models.StatusDraft {
			_, total, err := r.Attempt().List(ctx, nil, repositories.AttemptFilters{TestID: &id, Limit: 1})
			if err != nil {
				return fmt.Errorf("failed to count attempts: %w", err)
			}
			hasAttempts = total > 0
		}

		if errs := s.validator.GetBusinessValidator().ValidateStatusTransition(current, req.Status, hasAttempts); len(errs) > 0 {
			return errs
		}

		if err := r.Test().UpdateStatus(ctx, nil, id, req.Status); err != nil {
			return fmt.Errorf("failed to update test status: %w", err)
		}

		// Archival keeps the attempt rows but flags them as belonging to an
		// archived test.
		if req.Status == models.StatusArchived {
			if err := r.Attempt().MarkArchivedByTest(ctx, nil, id); err != nil {
				return fmt.Errorf("failed to archive attempts: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.emitStatusEvent(ctx, test, req.Status, userID)

	s.logger.Info("Test status updated successfully",
		"test_id", id,
		"new_status", req.Status,
		"reason", req.Reason)

	return nil
}

func (s *testService) Publish(ctx context.Context, id uint, userID string) error {
	test, err := s.getTestByID(ctx, id)
	if err != nil {
		return err
	}

	// A future start time publishes into scheduled; otherwise straight to
	// active.
	target := models.StatusActive
	if test.StartTime != nil && test.StartTime.After(time.Now()) {
		target = models.StatusScheduled
	}

	return s.UpdateStatus(ctx, id, &UpdateStatusRequest{
		Status: target,
		Reason: stringPtr("published by user"),
	}, userID)
}

func (s *testService) Unpublish(ctx context.Context, id uint, userID string) error {
	return s.UpdateStatus(ctx, id, &UpdateStatusRequest{
		Status: models.StatusDraft,
		Reason: stringPtr("unpublished by user"),
	}, userID)
}

func (s *testService) Close(ctx context.Context, id uint, userID string) error {
	return s.UpdateStatus(ctx, id, &UpdateStatusRequest{
		Status: models.StatusClosed,
		Reason: stringPtr("closed by user"),
	}, userID)
}

func (s *testService) Archive(ctx context.Context, id uint, userID string) error {
	return s.UpdateStatus(ctx, id, &UpdateStatusRequest{
		Status: models.StatusArchived,
		Reason: stringPtr("archived by user"),
	}, userID)
}

// ===== STATISTICS =====

func (s *testService) GetCreatorStats(ctx context.Context, creatorID string) (*repositories.CreatorStats, error) {
	stats, err := s.repo.Test().GetCreatorStats(ctx, nil, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get creator stats: %w", err)
	}
	return stats, nil
}

// ===== PERMISSION CHECKS =====

func (s *testService) CanEdit(ctx context.Context, testID uint, userID string) (bool, error) {
	test, err := s.getTestByID(ctx, testID)
	if err != nil {
		return false, err
	}

	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve user: %w", err)
	}
	if user.Role == models.RoleAdmin {
		return true, nil
	}

	return test.CreatedBy == userID && user.CanAuthor(), nil
}

func (s *testService) CanTake(ctx context.Context, testID uint, studentID string) (bool, error) {
	test, err := s.getTestByID(ctx, testID)
	if err != nil {
		return false, err
	}
	test = s.closeIfWindowExpired(ctx, test)

	student, err := s.repo.User().GetByID(ctx, studentID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve user: %w", err)
	}

	if !test.AcceptsAttempts(time.Now()) {
		return false, nil
	}
	return s.inAudience(test, student), nil
}

func stringPtr(s string) *string {
	return &s
}
