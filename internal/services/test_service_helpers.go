package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/brightclass/assessment-engine/internal/events"
	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/repositories"
)

// ===== LOOKUP HELPERS =====

func (s *testService) getTestByID(ctx context.Context, id uint) (*models.TestDefinition, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return test, nil
}

func (s *testService) checkOwnership(ctx context.Context, test *models.TestDefinition, userID, action string) error {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve user: %w", err)
	}
	if user.Role == models.RoleAdmin {
		return nil
	}
	if test.CreatedBy != userID {
		return NewPermissionError(userID, test.ID, "test", action, "not the test owner")
	}
	return nil
}

// inAudience reports whether the student falls inside the test's audience
// scope.
func (s *testService) inAudience(test *models.TestDefinition, student *models.User) bool {
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

// closeIfWindowExpired closes an active test whose end time has passed. The
// transition runs lazily on read; there is no background sweeper.
func (s *testService) closeIfWindowExpired(ctx context.Context, test *models.TestDefinition) *models.TestDefinition {
	if test.Status != models.StatusActive || !test.WindowExpired(time.Now()) {
		return test
	}

	if err := s.repo.Test().UpdateStatus(ctx, nil, test.ID, models.StatusClosed); err != nil {
		s.logger.Warn("failed to close expired test", "test_id", test.ID, "error", err)
		return test
	}

	s.logger.Info("Test closed on window expiry", "test_id", test.ID)
	test.Status = models.StatusClosed
	s.emitStatusEvent(ctx, test, models.StatusClosed, "system")
	return test
}

// ===== REQUEST MAPPING =====

func (s *testService) buildTestFromRequest(req *CreateTestRequest, creatorID string) *models.TestDefinition {
	test := &models.TestDefinition{
		Title:        req.Title,
		Description:  req.Description,
		Instructions: req.Instructions,
		Type:         req.Type,
		CourseID:     req.CourseID,
		SubjectName:  req.SubjectName,
		ModuleNumber: req.ModuleNumber,

		Questions: datatypes.NewJSONType(questionsFromRequests(req.Questions)),

		PassingMarks: req.PassingMarks,
		Duration:     req.Duration,
		Untimed:      req.Untimed,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,

		ShowResultsImmediately: true,

		AllowMultipleAttempts: req.AllowMultipleAttempts,
		MaxAttempts:           1,

		Audience:   models.AudienceAll,
		BatchIDs:   datatypes.NewJSONSlice(req.BatchIDs),
		StudentIDs: datatypes.NewJSONSlice(req.StudentIDs),

		PDFURL:       req.PDFURL,
		AnswerKeyURL: req.AnswerKeyURL,

		Status:    models.StatusDraft,
		CreatedBy: creatorID,
		Version:   1,
	}

	if req.TotalMarks != nil {
		test.TotalMarks = *req.TotalMarks
	} else {
		test.TotalMarks = questionMarksSum(test.Questions.Data())
	}

	if req.ShowResultsImmediately != nil {
		test.ShowResultsImmediately = *req.ShowResultsImmediately
	}
	if req.ShowCorrectAnswers != nil {
		test.ShowCorrectAnswers = *req.ShowCorrectAnswers
	}
	if req.ShuffleQuestions != nil {
		test.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.ShuffleOptions != nil {
		test.ShuffleOptions = *req.ShuffleOptions
	}
	if req.MaxAttempts > 0 {
		test.MaxAttempts = req.MaxAttempts
	}
	if req.Audience != "" {
		test.Audience = req.Audience
	}

	return test
}

func (s *testService) applyTestUpdates(test *models.TestDefinition, req *UpdateTestRequest) {
	if req.Title != nil {
		test.Title = *req.Title
	}
	if req.Description != nil {
		test.Description = req.Description
	}
	if req.Instructions != nil {
		test.Instructions = req.Instructions
	}

	if req.Questions != nil {
		test.Questions = datatypes.NewJSONType(questionsFromRequests(req.Questions))
		if req.TotalMarks == nil {
			test.TotalMarks = questionMarksSum(test.Questions.Data())
		}
	}
	if req.TotalMarks != nil {
		test.TotalMarks = *req.TotalMarks
	}
	if req.PassingMarks != nil {
		test.PassingMarks = req.PassingMarks
	}

	if req.Duration != nil {
		test.Duration = *req.Duration
	}
	if req.Untimed != nil {
		test.Untimed = *req.Untimed
	}
	if req.StartTime != nil {
		test.StartTime = req.StartTime
	}
	if req.EndTime != nil {
		test.EndTime = req.EndTime
	}

	if req.ShowResultsImmediately != nil {
		test.ShowResultsImmediately = *req.ShowResultsImmediately
	}
	if req.ShowCorrectAnswers != nil {
		test.ShowCorrectAnswers = *req.ShowCorrectAnswers
	}
	if req.ShuffleQuestions != nil {
		test.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.ShuffleOptions != nil {
		test.ShuffleOptions = *req.ShuffleOptions
	}

	if req.AllowMultipleAttempts != nil {
		test.AllowMultipleAttempts = *req.AllowMultipleAttempts
	}
	if req.MaxAttempts != nil {
		test.MaxAttempts = *req.MaxAttempts
	}

	if req.Audience != nil {
		test.Audience = *req.Audience
	}
	if req.BatchIDs != nil {
		test.BatchIDs = datatypes.NewJSONSlice(req.BatchIDs)
	}
	if req.StudentIDs != nil {
		test.StudentIDs = datatypes.NewJSONSlice(req.StudentIDs)
	}

	if req.PDFURL != nil {
		test.PDFURL = req.PDFURL
	}
	if req.AnswerKeyURL != nil {
		test.AnswerKeyURL = req.AnswerKeyURL
	}
}

func questionsFromRequests(reqs []QuestionRequest) []models.Question {
	questions := make([]models.Question, len(reqs))
	for i, q := range reqs {
		questions[i] = models.Question{
			Number:          q.Number,
			Type:            q.Type,
			Text:            q.Text,
			ImageURL:        q.ImageURL,
			Options:         q.Options,
			CorrectAnswer:   q.CorrectAnswer,
			CorrectAnswers:  q.CorrectAnswers,
			Marks:           q.Marks,
			NegativeMarking: q.NegativeMarking,
			Difficulty:      q.Difficulty,
		}
	}
	return questions
}

func questionMarksSum(questions []models.Question) float64 {
	var sum float64
	for _, q := range questions {
		sum += q.Marks
	}
	return sum
}

// ===== RESPONSE BUILDING =====

func (s *testService) buildTestResponse(ctx context.Context, test *models.TestDefinition, userID string) *TestResponse {
	canEdit, _ := s.CanEdit(ctx, test.ID, userID)
	return &TestResponse{
		TestDefinition: test,
		CanEdit:        canEdit,
		CanDelete:      canEdit && test.TotalAttempts == 0,
		CanTake:        false,
	}
}

// buildStudentTestResponse strips answer keys before the payload leaves the
// service.
func (s *testService) buildStudentTestResponse(ctx context.Context, test *models.TestDefinition, student *models.User) *TestResponse {
	clean := *test

	questions := test.Questions.Data()
	sanitized := make([]models.Question, len(questions))
	for i, q := range questions {
		sanitized[i] = q.Sanitized()
	}
	clean.Questions = datatypes.NewJSONType(sanitized)
	clean.AnswerKeyURL = nil

	return &TestResponse{
		TestDefinition: &clean,
		CanEdit:        false,
		CanDelete:      false,
		CanTake:        clean.AcceptsAttempts(time.Now()) && s.inAudience(test, student),
	}
}

func (s *testService) buildTestListResponse(ctx context.Context, tests []*models.TestDefinition, total int64, filters repositories.TestFilters, userID string) *TestListResponse {
	response := &TestListResponse{
		Tests: make([]*TestResponse, len(tests)),
		Total: total,
		Page:  (filters.Offset / max(filters.Limit, 1)) + 1,
		Size:  filters.Limit,
	}
	for i, test := range tests {
		response.Tests[i] = s.buildTestResponse(ctx, test, userID)
	}
	return response
}

// ===== AUDIT EVENTS =====

func (s *testService) emitStatusEvent(ctx context.Context, test *models.TestDefinition, status models.TestStatus, actorID string) {
	var action string
	switch status {
	case models.StatusScheduled, models.StatusActive:
		action = events.ActionTestPublished
	case models.StatusClosed:
		action = events.ActionTestClosed
	case models.StatusArchived:
		action = events.ActionTestArchived
	case models.StatusDraft:
		action = events.ActionTestUnpublished
	default:
		return
	}

	publishAudit(ctx, s.logger, s.publisher, events.NewEvent(action, actorID, "teacher", "test", test.ID, true))
}
