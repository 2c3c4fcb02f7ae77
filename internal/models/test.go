package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TestStatus string

const (
	StatusDraft     TestStatus = "draft"
	StatusScheduled TestStatus = "scheduled"
	StatusActive    TestStatus = "active"
	StatusClosed    TestStatus = "closed"
	StatusArchived  TestStatus = "archived"
)

type TestType string

const (
	TestMultipleChoice TestType = "multiple_choice"
	TestMixed          TestType = "mixed"
	TestPDFBased       TestType = "pdf_based"
	TestSubjective     TestType = "subjective"
)

type AudienceScope string

const (
	AudienceAll      AudienceScope = "all"
	AudienceBatches  AudienceScope = "batches"
	AudienceStudents AudienceScope = "students"
)

type TestDefinition struct {
	ID           uint    `json:"id" gorm:"primaryKey"`
	Title        string  `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description  *string `json:"description" gorm:"type:text" validate:"omitempty,max=2000"`
	Instructions *string `json:"instructions" gorm:"type:text" validate:"omitempty,max=5000"`
	Type         TestType `json:"type" gorm:"not null;index" validate:"required,test_type"`

	// Catalog context, denormalized at creation time
	CourseID     *uint   `json:"course_id" gorm:"index"`
	SubjectName  *string `json:"subject_name" gorm:"size:200"`
	ModuleNumber *int    `json:"module_number"`

	// Embedded question list; never rows of their own
	Questions datatypes.JSONType[[]Question] `json:"questions" gorm:"type:jsonb"`

	TotalMarks   float64  `json:"total_marks" gorm:"not null" validate:"min=0"`
	PassingMarks *float64 `json:"passing_marks" validate:"omitempty,min=0"`

	// Duration in minutes; untimed tests carry Untimed=true and Duration 0
	Duration int  `json:"duration" gorm:"default:0" validate:"min=0,max=600"`
	Untimed  bool `json:"untimed" gorm:"default:false"`

	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`

	// Grading policy
	ShowResultsImmediately bool `json:"show_results_immediately" gorm:"default:true"`
	ShowCorrectAnswers     bool `json:"show_correct_answers" gorm:"default:false"`
	ShuffleQuestions       bool `json:"shuffle_questions" gorm:"default:false"`
	ShuffleOptions         bool `json:"shuffle_options" gorm:"default:false"`

	// Attempt policy
	AllowMultipleAttempts bool `json:"allow_multiple_attempts" gorm:"default:false"`
	MaxAttempts           int  `json:"max_attempts" gorm:"default:1" validate:"min=1,max=10"`

	// Audience
	Audience   AudienceScope                  `json:"audience" gorm:"default:all;size:20"`
	BatchIDs   datatypes.JSONSlice[string]    `json:"batch_ids" gorm:"type:jsonb"`
	StudentIDs datatypes.JSONSlice[string]    `json:"student_ids" gorm:"type:jsonb"`

	// PDF-based tests reference uploaded files by opaque URL
	PDFURL       *string `json:"pdf_url" gorm:"size:500" validate:"omitempty,max=500"`
	AnswerKeyURL *string `json:"answer_key_url" gorm:"size:500" validate:"omitempty,max=500"`

	Status TestStatus `json:"status" gorm:"default:draft;index"`

	// Cached aggregates, recomputed from the attempt set. Nil means
	// undefined (no evaluated attempts), never zero.
	TotalAttempts int      `json:"total_attempts" gorm:"default:0"`
	AvgScore      *float64 `json:"avg_score"`
	PassRate      *float64 `json:"pass_rate"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Version int `json:"version" gorm:"default:1"`
}

func (TestDefinition) TableName() string {
	return "tests"
}

// IsVisibleToStudents reports whether students may see this test at all.
// Draft and archived tests behave as if they do not exist.
func (t *TestDefinition) IsVisibleToStudents() bool {
	switch t.Status {
	case StatusScheduled, StatusActive, StatusClosed:
		return true
	default:
		return false
	}
}

// AcceptsAttempts reports whether new attempts may be started right now.
func (t *TestDefinition) AcceptsAttempts(now time.Time) bool {
	if t.Status != StatusActive {
		return false
	}
	return t.WindowOpen(now)
}

// WindowOpen reports whether now falls inside the optional availability
// window. Missing bounds are open-ended.
func (t *TestDefinition) WindowOpen(now time.Time) bool {
	if t.StartTime != nil && now.Before(*t.StartTime) {
		return false
	}
	if t.EndTime != nil && now.After(*t.EndTime) {
		return false
	}
	return true
}

// WindowExpired reports whether the availability window has closed for good.
func (t *TestDefinition) WindowExpired(now time.Time) bool {
	return t.EndTime != nil && now.After(*t.EndTime)
}

// CanTransitionTo encodes the lifecycle table. Archived is terminal;
// scheduled→draft is additionally gated on zero attempts by the service.
func (t *TestDefinition) CanTransitionTo(target TestStatus) bool {
	allowed := map[TestStatus][]TestStatus{
		StatusDraft:     {StatusScheduled, StatusActive, StatusArchived},
		StatusScheduled: {StatusDraft, StatusActive, StatusClosed},
		StatusActive:    {StatusClosed, StatusArchived},
		StatusClosed:    {StatusArchived},
		StatusArchived:  {},
	}
	for _, s := range allowed[t.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// QuestionByNumber returns the embedded question with the given number.
func (t *TestDefinition) QuestionByNumber(number int) (*Question, bool) {
	questions := t.Questions.Data()
	for i := range questions {
		if questions[i].Number == number {
			return &questions[i], true
		}
	}
	return nil, false
}

// HasSubjectiveQuestions reports whether any embedded question needs manual
// grading. PDF-based tests are always subjective.
func (t *TestDefinition) HasSubjectiveQuestions() bool {
	if t.Type == TestPDFBased || t.Type == TestSubjective {
		return true
	}
	for _, q := range t.Questions.Data() {
		if !q.AutoGradable() {
			return true
		}
	}
	return false
}

func IsValidTestType(t TestType) bool {
	switch t {
	case TestMultipleChoice, TestMixed, TestPDFBased, TestSubjective:
		return true
	}
	return false
}

func IsValidTestStatus(s TestStatus) bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusActive, StatusClosed, StatusArchived:
		return true
	}
	return false
}
