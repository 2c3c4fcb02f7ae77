package validator

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/brightclass/assessment-engine/internal/models"
)

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	validate := validator.New()

	bv := &BusinessValidator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates struct tags for any struct
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	if err := bv.validate.Struct(s); err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateTestCreate validates test creation business rules
func (bv *BusinessValidator) ValidateTestCreate(req *TestCreateRequest) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)
	errors = append(errors, bv.validateQuestionSet(req.Type, req.Questions, req.TotalMarks)...)
	errors = append(errors, bv.validateWindow(req.StartTime, req.EndTime)...)
	errors = append(errors, bv.validateAudience(req.Audience, req.BatchIDs, req.StudentIDs)...)

	if req.Untimed && req.Duration != 0 {
		errors = append(errors, ValidationError{
			Field:   "duration",
			Message: "must be zero for untimed tests",
			Value:   req.Duration,
			Rule:    "business_logic",
		})
	}

	if req.Type == models.TestPDFBased {
		if req.PDFURL == nil || *req.PDFURL == "" {
			errors = append(errors, ValidationError{
				Field:   "pdf_url",
				Message: "is required for pdf-based tests",
				Rule:    "business_logic",
			})
		}
		if req.TotalMarks == nil {
			errors = append(errors, ValidationError{
				Field:   "total_marks",
				Message: "must be stated explicitly for pdf-based tests",
				Rule:    "business_logic",
			})
		}
	}
	if req.Type == models.TestSubjective && req.TotalMarks == nil && len(req.Questions) == 0 {
		errors = append(errors, ValidationError{
			Field:   "total_marks",
			Message: "must be stated explicitly for subjective tests without questions",
			Rule:    "business_logic",
		})
	}

	if req.PassingMarks != nil {
		total := sumMarks(req.Questions)
		if req.TotalMarks != nil {
			total = *req.TotalMarks
		}
		if total > 0 && *req.PassingMarks > total {
			errors = append(errors, ValidationError{
				Field:   "passing_marks",
				Message: "cannot exceed total marks",
				Value:   *req.PassingMarks,
				Rule:    "business_logic",
			})
		}
	}

	return errors
}

// ValidateTestUpdate validates test update business rules against the
// stored row.
func (bv *BusinessValidator) ValidateTestUpdate(req *TestUpdateRequest, existing *models.TestDefinition) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)

	if req.Questions != nil {
		errors = append(errors, bv.validateQuestionSet(existing.Type, req.Questions, req.TotalMarks)...)
	} else if req.TotalMarks != nil {
		// A lone total_marks patch still has to agree with the stored
		// question set
		var sum float64
		for _, q := range existing.Questions.Data() {
			sum += q.Marks
		}
		if len(existing.Questions.Data()) > 0 && *req.TotalMarks != sum {
			errors = append(errors, ValidationError{
				Field:   "total_marks",
				Message: fmt.Sprintf("must equal the question marks sum %.2f", sum),
				Value:   *req.TotalMarks,
				Rule:    "business_logic",
			})
		}
	}

	start, end := existing.StartTime, existing.EndTime
	if req.StartTime != nil {
		start = req.StartTime
	}
	if req.EndTime != nil {
		end = req.EndTime
	}
	errors = append(errors, bv.validateWindow(start, end)...)

	if req.Audience != nil {
		errors = append(errors, bv.validateAudience(*req.Audience, req.BatchIDs, req.StudentIDs)...)
	}

	return errors
}

// ValidatePublish checks the publish preconditions: at least one question
// (or a PDF reference), and a positive duration unless explicitly untimed.
func (bv *BusinessValidator) ValidatePublish(test *models.TestDefinition) ValidationErrors {
	var errors ValidationErrors

	questionCount := len(test.Questions.Data())
	hasPDF := test.PDFURL != nil && *test.PDFURL != ""

	if questionCount == 0 && !hasPDF {
		errors = append(errors, ValidationError{
			Field:   "questions",
			Message: "test must have at least one question or a pdf reference before publishing",
			Value:   questionCount,
			Rule:    "business_logic",
		})
	}

	if !test.Untimed && test.Duration <= 0 {
		errors = append(errors, ValidationError{
			Field:   "duration",
			Message: "test must have a positive duration or be marked untimed before publishing",
			Value:   test.Duration,
			Rule:    "business_logic",
		})
	}

	return errors
}

// ValidateStatusTransition validates test lifecycle transitions.
func (bv *BusinessValidator) ValidateStatusTransition(test *models.TestDefinition, newStatus models.TestStatus, hasAttempts bool) ValidationErrors {
	var errors ValidationErrors

	if !test.CanTransitionTo(newStatus) {
		errors = append(errors, ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot transition from %s to %s", test.Status, newStatus),
			Value:   newStatus,
			Rule:    "status_transition",
		})
		return errors
	}

	// scheduled -> draft is only open while nobody has attempted the test
	if test.Status == models.StatusScheduled && newStatus == models.StatusDraft && hasAttempts {
		errors = append(errors, ValidationError{
			Field:   "status",
			Message: "cannot unpublish a test with student attempts",
			Value:   newStatus,
			Rule:    "business_logic",
		})
	}

	if newStatus == models.StatusScheduled || newStatus == models.StatusActive {
		errors = append(errors, bv.ValidatePublish(test)...)
	}

	return errors
}

// validateQuestionSet enforces per-question structure, unique numbering and
// the marks-sum invariant.
func (bv *BusinessValidator) validateQuestionSet(testType models.TestType, questions []QuestionRequest, totalMarks *float64) ValidationErrors {
	var errors ValidationErrors

	seen := make(map[int]bool, len(questions))
	var sum float64

	for i, q := range questions {
		field := fmt.Sprintf("questions[%d]", i)

		if seen[q.Number] {
			errors = append(errors, ValidationError{
				Field:   field + ".number",
				Message: fmt.Sprintf("duplicate question number %d", q.Number),
				Value:   q.Number,
				Rule:    "business_logic",
			})
		}
		seen[q.Number] = true
		sum += q.Marks

		switch q.Type {
		case models.MultipleChoice:
			if len(q.Options) < 2 {
				errors = append(errors, ValidationError{
					Field:   field + ".options",
					Message: "multiple choice questions need at least two options",
					Value:   len(q.Options),
					Rule:    "business_logic",
				})
			}
			errors = append(errors, bv.validateKeyInOptions(field, q)...)
		case models.TrueFalse:
			if len(q.Options) != 2 {
				errors = append(errors, ValidationError{
					Field:   field + ".options",
					Message: "true/false questions need exactly two options",
					Value:   len(q.Options),
					Rule:    "business_logic",
				})
			}
			errors = append(errors, bv.validateKeyInOptions(field, q)...)
		case models.Essay:
			if len(q.Options) > 0 {
				errors = append(errors, ValidationError{
					Field:   field + ".options",
					Message: "essay questions cannot have options",
					Rule:    "business_logic",
				})
			}
			if q.NegativeMarking > 0 {
				errors = append(errors, ValidationError{
					Field:   field + ".negative_marking",
					Message: "essay questions cannot carry negative marking",
					Value:   q.NegativeMarking,
					Rule:    "business_logic",
				})
			}
		case models.ShortAnswer:
			if q.NegativeMarking > 0 {
				errors = append(errors, ValidationError{
					Field:   field + ".negative_marking",
					Message: "short answer questions cannot carry negative marking",
					Value:   q.NegativeMarking,
					Rule:    "business_logic",
				})
			}
		}

		if testType == models.TestMultipleChoice && q.Type != models.MultipleChoice && q.Type != models.TrueFalse {
			errors = append(errors, ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("question type %s is not allowed in a multiple choice test", q.Type),
				Value:   q.Type,
				Rule:    "business_logic",
			})
		}
	}

	if len(questions) > 0 && totalMarks != nil && *totalMarks != sum {
		errors = append(errors, ValidationError{
			Field:   "total_marks",
			Message: fmt.Sprintf("must equal the question marks sum %.2f", sum),
			Value:   *totalMarks,
			Rule:    "business_logic",
		})
	}

	return errors
}

func (bv *BusinessValidator) validateKeyInOptions(field string, q QuestionRequest) ValidationErrors {
	var errors ValidationErrors

	inOptions := func(value string) bool {
		for _, opt := range q.Options {
			if opt == value {
				return true
			}
		}
		return false
	}

	if q.CorrectAnswer != nil && !inOptions(*q.CorrectAnswer) {
		errors = append(errors, ValidationError{
			Field:   field + ".correct_answer",
			Message: "must be one of the options",
			Value:   *q.CorrectAnswer,
			Rule:    "business_logic",
		})
	}
	for _, key := range q.CorrectAnswers {
		if !inOptions(key) {
			errors = append(errors, ValidationError{
				Field:   field + ".correct_answers",
				Message: "every correct answer must be one of the options",
				Value:   key,
				Rule:    "business_logic",
			})
		}
	}

	return errors
}

func (bv *BusinessValidator) validateWindow(start, end *time.Time) ValidationErrors {
	if start != nil && end != nil && !end.After(*start) {
		return ValidationErrors{{
			Field:   "end_time",
			Message: "must be after start_time",
			Value:   end,
			Rule:    "business_logic",
		}}
	}
	return nil
}

func (bv *BusinessValidator) validateAudience(audience models.AudienceScope, batchIDs, studentIDs []string) ValidationErrors {
	var errors ValidationErrors

	switch audience {
	case models.AudienceBatches:
		if len(batchIDs) == 0 {
			errors = append(errors, ValidationError{
				Field:   "batch_ids",
				Message: "are required when audience is batches",
				Rule:    "business_logic",
			})
		}
	case models.AudienceStudents:
		if len(studentIDs) == 0 {
			errors = append(errors, ValidationError{
				Field:   "student_ids",
				Message: "are required when audience is students",
				Rule:    "business_logic",
			})
		}
	}

	return errors
}

func sumMarks(questions []QuestionRequest) float64 {
	var sum float64
	for _, q := range questions {
		sum += q.Marks
	}
	return sum
}

// registerBusinessRules registers custom field validators
func (bv *BusinessValidator) registerBusinessRules() {
	// Duration in minutes; zero is reserved for untimed tests
	bv.validate.RegisterValidation("test_duration", func(fl validator.FieldLevel) bool {
		duration := fl.Field().Int()
		return duration >= 0 && duration <= 600
	})

	bv.validate.RegisterValidation("max_attempts", func(fl validator.FieldLevel) bool {
		attempts := fl.Field().Int()
		return attempts >= 1 && attempts <= 10
	})

	bv.validate.RegisterValidation("test_title", func(fl validator.FieldLevel) bool {
		title := strings.TrimSpace(fl.Field().String())
		return len(title) >= 1 && len(title) <= 200
	})

	bv.validate.RegisterValidation("test_type", func(fl validator.FieldLevel) bool {
		return models.IsValidTestType(models.TestType(fl.Field().String()))
	})

	bv.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return models.IsValidQuestionType(models.QuestionType(fl.Field().String()))
	})

	bv.validate.RegisterValidation("difficulty_level", func(fl validator.FieldLevel) bool {
		return models.IsValidDifficulty(models.DifficultyLevel(fl.Field().String()))
	})

	bv.validate.RegisterValidation("future_date", func(fl validator.FieldLevel) bool {
		field := fl.Field()

		if field.Kind() == reflect.Ptr && field.IsNil() {
			return true // Optional field
		}

		var value time.Time
		if field.Kind() == reflect.Ptr {
			value = field.Elem().Interface().(time.Time)
		} else {
			value = field.Interface().(time.Time)
		}

		return value.After(time.Now())
	})
}
