package models

import "strings"

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// Question is a value object embedded in the owning test's questions column.
// It has no identity of its own; Number is the 1-based position key that
// answers and grading refer to.
type Question struct {
	Number          int             `json:"number" validate:"required,min=1"`
	Type            QuestionType    `json:"type" validate:"required,question_type"`
	Text            string          `json:"text" validate:"required,min=1,max=2000"`
	ImageURL        *string         `json:"image_url,omitempty" validate:"omitempty,max=500"`
	Options         []string        `json:"options,omitempty" validate:"omitempty,max=10,dive,max=500"`
	CorrectAnswer   *string         `json:"correct_answer,omitempty"`
	CorrectAnswers  []string        `json:"correct_answers,omitempty"`
	Marks           float64         `json:"marks" validate:"min=0"`
	NegativeMarking float64         `json:"negative_marking" validate:"min=0"`
	Difficulty      DifficultyLevel `json:"difficulty,omitempty" validate:"omitempty,difficulty_level"`
}

// IsObjective reports whether the question type has a machine-checkable key.
func (q *Question) IsObjective() bool {
	switch q.Type {
	case MultipleChoice, TrueFalse, ShortAnswer:
		return true
	default:
		return false
	}
}

// IsMultiSelect reports whether the question expects a set of selected
// options rather than a single value.
func (q *Question) IsMultiSelect() bool {
	return q.Type == MultipleChoice && q.CorrectAnswer == nil && len(q.CorrectAnswers) > 0
}

// HasAnswerKey reports whether an answer key is present. Objective questions
// without a key fall back to manual grading.
func (q *Question) HasAnswerKey() bool {
	return q.CorrectAnswer != nil || len(q.CorrectAnswers) > 0
}

// AutoGradable reports whether the scoring engine can grade this question
// without teacher intervention.
func (q *Question) AutoGradable() bool {
	return q.IsObjective() && q.HasAnswerKey()
}

// Sanitized returns a copy with the answer key stripped, for payloads served
// to students before results are released.
func (q *Question) Sanitized() Question {
	clean := *q
	clean.CorrectAnswer = nil
	clean.CorrectAnswers = nil
	return clean
}

// MatchesShortAnswer checks a short-answer value against the accepted
// answers, case-insensitive and whitespace-trimmed.
func (q *Question) MatchesShortAnswer(value string) bool {
	given := strings.ToLower(strings.TrimSpace(value))
	if q.CorrectAnswer != nil && strings.ToLower(strings.TrimSpace(*q.CorrectAnswer)) == given {
		return true
	}
	for _, accepted := range q.CorrectAnswers {
		if strings.ToLower(strings.TrimSpace(accepted)) == given {
			return true
		}
	}
	return false
}

func IsValidQuestionType(t QuestionType) bool {
	switch t {
	case MultipleChoice, TrueFalse, ShortAnswer, Essay:
		return true
	}
	return false
}

func IsValidDifficulty(d DifficultyLevel) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}
