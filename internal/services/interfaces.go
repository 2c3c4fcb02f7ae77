package services

import (
	"context"
	"io"

	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/repositories"
	"github.com/brightclass/assessment-engine/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type CreateTestRequest = validator.TestCreateRequest
type UpdateTestRequest = validator.TestUpdateRequest
type QuestionRequest = validator.QuestionRequest

type TestResponse struct {
	*models.TestDefinition
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
	CanTake   bool `json:"can_take"`
}

type TestListResponse struct {
	Tests []*TestResponse `json:"tests"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Size  int             `json:"size"`
}

type UpdateStatusRequest struct {
	Status models.TestStatus `json:"status" validate:"required,oneof=draft scheduled active closed archived"`
	Reason *string           `json:"reason" validate:"omitempty,max=500"`
}

// ===== ATTEMPT RELATED DTOs =====

type StartAttemptRequest struct {
	TestID uint `json:"test_id" validate:"required"`
}

type SubmitAnswerRequest struct {
	QuestionNumber int      `json:"question_number" validate:"required,min=1"`
	Value          *string  `json:"value"`
	Values         []string `json:"values"`
}

type SubmitAttemptRequest struct {
	AttemptID uint                  `json:"attempt_id" validate:"required"`
	Answers   []SubmitAnswerRequest `json:"answers" validate:"omitempty,dive"`
	TimeSpent *int                  `json:"time_spent"`
}

type AttemptResponse struct {
	*models.Attempt
	CanSubmit      bool `json:"can_submit"`
	CanResume      bool `json:"can_resume"`
	IsPendingGrade bool `json:"is_pending_grade"`
	// TimeRemaining is seconds until expiry; nil for untimed tests.
	TimeRemaining *int `json:"time_remaining,omitempty"`
	// Questions carries the sanitized question list for an active attempt.
	Questions []models.Question `json:"questions,omitempty"`
}

type AttemptListResponse struct {
	Attempts []*AttemptResponse `json:"attempts"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	Size     int                `json:"size"`
}

// ===== GRADING RELATED DTOs =====

type QuestionGrade struct {
	QuestionNumber int     `json:"question_number" validate:"required,min=1"`
	Marks          float64 `json:"marks" validate:"min=0"`
}

type GradeAttemptRequest struct {
	Grades   []QuestionGrade `json:"grades" validate:"required,min=1,dive"`
	Feedback *string         `json:"feedback" validate:"omitempty,max=2000"`
}

type QuestionScore struct {
	QuestionNumber int      `json:"question_number"`
	IsCorrect      *bool    `json:"is_correct"`
	MarksAwarded   *float64 `json:"marks_awarded"`
	MaxMarks       float64  `json:"max_marks"`
}

type AttemptGradingResult struct {
	AttemptID  uint            `json:"attempt_id"`
	TotalScore float64         `json:"total_score"`
	MaxScore   float64         `json:"max_score"`
	Percentage *float64        `json:"percentage"`
	IsPassing  *bool           `json:"is_passing"`
	Pending    bool            `json:"pending_manual_grading"`
	Questions  []QuestionScore `json:"questions"`
}

// ===== STATISTICS DTOs =====

type TestStatistics struct {
	TestID        uint     `json:"test_id"`
	TotalAttempts int      `json:"total_attempts"`
	Submitted     int      `json:"submitted"`
	Evaluated     int      `json:"evaluated"`
	AvgScore      *float64 `json:"avg_score"`
	PassRate      *float64 `json:"pass_rate"`
	HighestScore  *float64 `json:"highest_score"`
	LowestScore   *float64 `json:"lowest_score"`
}

// ===== SERVICE INTERFACES =====

type TestService interface {
	// Core CRUD operations
	Create(ctx context.Context, req *CreateTestRequest, creatorID string) (*TestResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*TestResponse, error)
	Update(ctx context.Context, id uint, req *UpdateTestRequest, userID string) (*TestResponse, error)
	Delete(ctx context.Context, id uint, userID string) error

	// List and search operations
	List(ctx context.Context, filters repositories.TestFilters, userID string) (*TestListResponse, error)
	GetByCreator(ctx context.Context, creatorID string, filters repositories.TestFilters) (*TestListResponse, error)
	GetAvailable(ctx context.Context, studentID string, filters repositories.TestFilters) (*TestListResponse, error)

	// Lifecycle management
	UpdateStatus(ctx context.Context, id uint, req *UpdateStatusRequest, userID string) error
	Publish(ctx context.Context, id uint, userID string) error
	Unpublish(ctx context.Context, id uint, userID string) error
	Close(ctx context.Context, id uint, userID string) error
	Archive(ctx context.Context, id uint, userID string) error

	// Statistics
	GetCreatorStats(ctx context.Context, creatorID string) (*repositories.CreatorStats, error)

	// Permission checks
	CanEdit(ctx context.Context, testID uint, userID string) (bool, error)
	CanTake(ctx context.Context, testID uint, studentID string) (bool, error)
}

type AttemptService interface {
	// Core attempt operations
	Start(ctx context.Context, req *StartAttemptRequest, studentID string) (*AttemptResponse, error)
	Resume(ctx context.Context, attemptID uint, studentID string) (*AttemptResponse, error)
	SaveAnswer(ctx context.Context, attemptID uint, req *SubmitAnswerRequest, studentID string) error
	Submit(ctx context.Context, req *SubmitAttemptRequest, studentID string) (*AttemptResponse, error)

	// Get operations
	GetByID(ctx context.Context, id uint, userID string) (*AttemptResponse, error)
	GetCurrentAttempt(ctx context.Context, testID uint, studentID string) (*AttemptResponse, error)

	// List operations
	GetByStudent(ctx context.Context, studentID string, filters repositories.AttemptFilters) (*AttemptListResponse, error)
	GetByTest(ctx context.Context, testID uint, filters repositories.AttemptFilters, userID string) (*AttemptListResponse, error)

	// Time management
	GetTimeRemaining(ctx context.Context, attemptID uint, studentID string) (*int, error)
	HandleTimeout(ctx context.Context, attemptID uint) error

	// Validation
	CanStart(ctx context.Context, testID uint, studentID string) (bool, error)
	GetAttemptCount(ctx context.Context, testID uint, studentID string) (int, error)
}

type GradingService interface {
	// Auto grading
	AutoGradeAttempt(ctx context.Context, attempt *models.Attempt, test *models.TestDefinition) (*AttemptGradingResult, error)

	// Manual grading
	GradeAttempt(ctx context.Context, attemptID uint, req *GradeAttemptRequest, graderID string) (*AttemptGradingResult, error)

	// Pure scoring helpers
	ScoreQuestion(question *models.Question, answer *models.AttemptAnswer) (isCorrect *bool, marks *float64)
	ScoreAttempt(test *models.TestDefinition, answers []models.AttemptAnswer) ([]models.AttemptAnswer, float64, bool)
}

type StatsService interface {
	GetTestStatistics(ctx context.Context, testID uint, userID string) (*TestStatistics, error)
	RecomputeTestAggregates(ctx context.Context, testID uint) error
}

type ReportService interface {
	// ExportResults writes an xlsx workbook of a test's finished attempts.
	ExportResults(ctx context.Context, testID uint, userID string, w io.Writer) error
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	// Core service getters
	Test() TestService
	Attempt() AttemptService
	Grading() GradingService
	Stats() StatsService
	Report() ReportService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
