package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptEvaluated  AttemptStatus = "evaluated"
)

// AttemptAnswer is one answered question inside the attempt's answers
// column. IsCorrect and MarksAwarded stay nil until the answer is graded;
// nil MarksAwarded on a submitted attempt means manual review is pending.
type AttemptAnswer struct {
	QuestionNumber int      `json:"question_number"`
	Value          *string  `json:"value,omitempty"`
	Values         []string `json:"values,omitempty"`
	IsCorrect      *bool    `json:"is_correct,omitempty"`
	MarksAwarded   *float64 `json:"marks_awarded,omitempty"`
}

// Attempt is one student run at a test. It lives independently of the test
// row and survives test archival; ArchivedWithTest flips instead of delete.
type Attempt struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	TestID        uint          `json:"test_id" gorm:"not null;index:idx_attempts_test_student"`
	StudentID     string        `json:"student_id" gorm:"not null;index:idx_attempts_test_student;size:255"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null"`
	Status        AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	Answers datatypes.JSONType[[]AttemptAnswer] `json:"answers" gorm:"type:jsonb"`

	// Scoring. Percentage is nil when the test has zero total marks.
	TotalScore float64  `json:"total_score"`
	Percentage *float64 `json:"percentage"`

	// Timing
	StartedAt   *time.Time `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
	TimeSpent   int        `json:"time_spent"` // seconds

	// Manual grading trail
	Feedback *string    `json:"feedback" gorm:"type:text"`
	GradedAt *time.Time `json:"graded_at"`
	GradedBy *string    `json:"graded_by" gorm:"size:255"`

	ArchivedWithTest bool `json:"archived_with_test" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Optimistic lock for concurrent grading
	Version int `json:"version" gorm:"default:1"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// IsActive reports whether the attempt is still open for answering.
func (a *Attempt) IsActive() bool {
	return a.Status == AttemptInProgress
}

// IsFinished reports whether the attempt has been handed in.
func (a *Attempt) IsFinished() bool {
	return a.Status == AttemptSubmitted || a.Status == AttemptEvaluated
}

// Expired reports whether a timed attempt has run past its deadline.
func (a *Attempt) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// AnswerFor returns the stored answer for a question number.
func (a *Attempt) AnswerFor(number int) (*AttemptAnswer, bool) {
	answers := a.Answers.Data()
	for i := range answers {
		if answers[i].QuestionNumber == number {
			return &answers[i], true
		}
	}
	return nil, false
}

// PendingManualGrading reports whether any answer is still ungraded.
func (a *Attempt) PendingManualGrading() bool {
	for _, ans := range a.Answers.Data() {
		if ans.MarksAwarded == nil {
			return true
		}
	}
	return false
}
