package validator

import (
	"time"

	"github.com/brightclass/assessment-engine/internal/models"
)

// QuestionRequest carries one embedded question on create/update.
type QuestionRequest struct {
	Number          int                    `json:"number" validate:"required,min=1"`
	Type            models.QuestionType    `json:"type" validate:"required,question_type"`
	Text            string                 `json:"text" validate:"required,min=1,max=2000"`
	ImageURL        *string                `json:"image_url" validate:"omitempty,max=500"`
	Options         []string               `json:"options" validate:"omitempty,max=10,dive,min=1,max=500"`
	CorrectAnswer   *string                `json:"correct_answer" validate:"omitempty,max=500"`
	CorrectAnswers  []string               `json:"correct_answers" validate:"omitempty,dive,max=500"`
	Marks           float64                `json:"marks" validate:"min=0"`
	NegativeMarking float64                `json:"negative_marking" validate:"min=0"`
	Difficulty      models.DifficultyLevel `json:"difficulty" validate:"omitempty,difficulty_level"`
}

// TestCreateRequest creates a draft test.
type TestCreateRequest struct {
	Title        string          `json:"title" validate:"required,test_title"`
	Description  *string         `json:"description" validate:"omitempty,max=2000"`
	Instructions *string         `json:"instructions" validate:"omitempty,max=5000"`
	Type         models.TestType `json:"type" validate:"required,test_type"`

	CourseID     *uint   `json:"course_id"`
	SubjectName  *string `json:"subject_name" validate:"omitempty,max=200"`
	ModuleNumber *int    `json:"module_number" validate:"omitempty,min=1"`

	Questions []QuestionRequest `json:"questions" validate:"omitempty,dive"`

	// TotalMarks is required for pdf_based and subjective tests; for tests
	// with embedded questions it defaults to the marks sum and, when given,
	// must equal it.
	TotalMarks   *float64 `json:"total_marks" validate:"omitempty,min=0"`
	PassingMarks *float64 `json:"passing_marks" validate:"omitempty,min=0"`

	Duration int  `json:"duration" validate:"test_duration"`
	Untimed  bool `json:"untimed"`

	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`

	ShowResultsImmediately *bool `json:"show_results_immediately"`
	ShowCorrectAnswers     *bool `json:"show_correct_answers"`
	ShuffleQuestions       *bool `json:"shuffle_questions"`
	ShuffleOptions         *bool `json:"shuffle_options"`

	AllowMultipleAttempts bool `json:"allow_multiple_attempts"`
	MaxAttempts           int  `json:"max_attempts" validate:"omitempty,max_attempts"`

	Audience   models.AudienceScope `json:"audience" validate:"omitempty,oneof=all batches students"`
	BatchIDs   []string             `json:"batch_ids" validate:"omitempty,dive,min=1"`
	StudentIDs []string             `json:"student_ids" validate:"omitempty,dive,min=1"`

	PDFURL       *string `json:"pdf_url" validate:"omitempty,max=500"`
	AnswerKeyURL *string `json:"answer_key_url" validate:"omitempty,max=500"`
}

// TestUpdateRequest updates a test in place. Nil fields stay unchanged;
// a non-nil Questions slice replaces the whole embedded list.
type TestUpdateRequest struct {
	Title        *string `json:"title" validate:"omitempty,test_title"`
	Description  *string `json:"description" validate:"omitempty,max=2000"`
	Instructions *string `json:"instructions" validate:"omitempty,max=5000"`

	Questions []QuestionRequest `json:"questions" validate:"omitempty,dive"`

	TotalMarks   *float64 `json:"total_marks" validate:"omitempty,min=0"`
	PassingMarks *float64 `json:"passing_marks" validate:"omitempty,min=0"`

	Duration *int  `json:"duration" validate:"omitempty,test_duration"`
	Untimed  *bool `json:"untimed"`

	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`

	ShowResultsImmediately *bool `json:"show_results_immediately"`
	ShowCorrectAnswers     *bool `json:"show_correct_answers"`
	ShuffleQuestions       *bool `json:"shuffle_questions"`
	ShuffleOptions         *bool `json:"shuffle_options"`

	AllowMultipleAttempts *bool `json:"allow_multiple_attempts"`
	MaxAttempts           *int  `json:"max_attempts" validate:"omitempty,max_attempts"`

	Audience   *models.AudienceScope `json:"audience" validate:"omitempty,oneof=all batches students"`
	BatchIDs   []string              `json:"batch_ids" validate:"omitempty,dive,min=1"`
	StudentIDs []string              `json:"student_ids" validate:"omitempty,dive,min=1"`

	PDFURL       *string `json:"pdf_url" validate:"omitempty,max=500"`
	AnswerKeyURL *string `json:"answer_key_url" validate:"omitempty,max=500"`
}
