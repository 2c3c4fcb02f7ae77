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

type gradingService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.Publisher
	stats     StatsService
}

func NewGradingService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.Publisher, stats StatsService) GradingService {
	return &gradingService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		stats:     stats,
	}
}

// ===== AUTO GRADING =====

// AutoGradeAttempt scores every auto-gradable answer in place and fills the
// attempt's totals. Answers the engine cannot grade keep nil MarksAwarded
// and leave the attempt in submitted status for manual review.
func (s *gradingService) AutoGradeAttempt(ctx context.Context, attempt *models.Attempt, test *models.TestDefinition) (*AttemptGradingResult, error) {
	graded, total, pending := s.ScoreAttempt(test, attempt.Answers.Data())

	attempt.Answers = datatypes.NewJSONType(graded)
	attempt.TotalScore = total
	attempt.Percentage = percentageOf(total, test.TotalMarks)

	if pending {
		attempt.Status = models.AttemptSubmitted
	} else {
		attempt.Status = models.AttemptEvaluated
		now := time.Now()
		attempt.GradedAt = &now
	}

	return s.buildGradingResult(attempt, test), nil
}

// ===== MANUAL GRADING =====

// GradeAttempt applies teacher-assigned marks to pending (or already graded)
// answers. Regrading overwrites previous marks and recomputes totals from
// scratch, so repeating the same request is idempotent.
func (s *gradingService) GradeAttempt(ctx context.Context, attemptID uint, req *GradeAttemptRequest, graderID string) (*AttemptGradingResult, error) {
	s.logger.Info("Manually grading attempt", "attempt_id", attemptID, "grader_id", graderID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if !attempt.IsFinished() {
		return nil, ErrGradingNotAllowed
	}

	test, err := s.repo.Test().GetByID(ctx, nil, attempt.TestID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	if err := s.checkGradingPermission(ctx, test, graderID); err != nil {
		return nil, err
	}

	answers := attempt.Answers.Data()
	for _, grade := range req.Grades {
		question, ok := test.QuestionByNumber(grade.QuestionNumber)
		if !ok && test.Type != models.TestPDFBased && test.Type != models.TestSubjective {
			return nil, NewValidationError("grades", fmt.Sprintf("question %d does not exist", grade.QuestionNumber), grade.QuestionNumber)
		}
		if question != nil && grade.Marks > question.Marks {
			return nil, NewValidationError("grades", fmt.Sprintf("marks for question %d exceed the maximum %.2f", grade.QuestionNumber, question.Marks), grade.Marks)
		}

		answers = applyManualGrade(answers, grade, question)
	}

	attempt.Answers = datatypes.NewJSONType(answers)
	attempt.TotalScore = totalFromAnswers(answers)
	attempt.Percentage = percentageOf(attempt.TotalScore, test.TotalMarks)
	attempt.Feedback = req.Feedback
	now := time.Now()
	attempt.GradedAt = &now
	attempt.GradedBy = &graderID

	if attempt.PendingManualGrading() {
		attempt.Status = models.AttemptSubmitted
	} else {
		attempt.Status = models.AttemptEvaluated
	}

	if err := s.repo.Attempt().UpdateVersioned(ctx, nil, attempt); err != nil {
		if errors.Is(err, repositories.ErrStaleVersion) {
			return nil, ErrAttemptStale
		}
		return nil, fmt.Errorf("failed to save grades: %w", err)
	}

	if err := s.stats.RecomputeTestAggregates(ctx, test.ID); err != nil {
		s.logger.Warn("failed to recompute test aggregates after grading", "test_id", test.ID, "error", err)
	}

	publishAudit(ctx, s.logger, s.publisher, events.NewEvent(events.ActionAttemptGraded, graderID, "teacher", "attempt", attemptID, true))

	s.logger.Info("Attempt graded successfully",
		"attempt_id", attemptID,
		"total_score", attempt.TotalScore,
		"status", attempt.Status)

	return s.buildGradingResult(attempt, test), nil
}

// ===== SCORING ENGINE =====

// ScoreQuestion grades one answer against its question. A nil marks result
// means the engine cannot decide and a teacher has to. Wrong objective
// answers cost the question's negative marking; unanswered questions score
// zero without penalty.
func (s *gradingService) ScoreQuestion(question *models.Question, answer *models.AttemptAnswer) (*bool, *float64) {
	if !question.AutoGradable() {
		return nil, nil
	}

	// Unanswered: zero, never penalized
	if answer == nil || (answer.Value == nil && len(answer.Values) == 0) {
		return nil, float64Ptr(0)
	}

	var correct bool
	switch question.Type {
	case models.MultipleChoice:
		if question.IsMultiSelect() {
			correct = sameAnswerSet(answer.Values, question.CorrectAnswers)
		} else {
			correct = answer.Value != nil && *answer.Value == *question.CorrectAnswer
		}
	case models.TrueFalse:
		correct = answer.Value != nil && question.CorrectAnswer != nil && *answer.Value == *question.CorrectAnswer
	case models.ShortAnswer:
		correct = answer.Value != nil && question.MatchesShortAnswer(*answer.Value)
		if !correct {
			// Short answers are never penalized
			return boolPtr(false), float64Ptr(0)
		}
	default:
		return nil, nil
	}

	if correct {
		return boolPtr(true), float64Ptr(question.Marks)
	}
	return boolPtr(false), float64Ptr(-question.NegativeMarking)
}

// ScoreAttempt grades every question of the test against the submitted
// answers. Questions without a stored answer get a zero-mark entry so the
// result covers the whole paper. Returns the graded answers, the clamped
// total, and whether any answer still needs manual grading.
func (s *gradingService) ScoreAttempt(test *models.TestDefinition, answers []models.AttemptAnswer) ([]models.AttemptAnswer, float64, bool) {
	questions := test.Questions.Data()

	byNumber := make(map[int]*models.AttemptAnswer, len(answers))
	for i := range answers {
		byNumber[answers[i].QuestionNumber] = &answers[i]
	}

	graded := make([]models.AttemptAnswer, 0, len(questions))
	pending := false

	for i := range questions {
		q := &questions[i]

		entry := models.AttemptAnswer{QuestionNumber: q.Number}
		if stored, ok := byNumber[q.Number]; ok {
			entry = *stored
		}

		entry.IsCorrect, entry.MarksAwarded = s.ScoreQuestion(q, byNumber[q.Number])
		if entry.MarksAwarded == nil {
			pending = true
		}
		graded = append(graded, entry)
	}

	// PDF-based papers carry no embedded questions; the submission itself
	// is the answer and grading is always manual.
	if len(questions) == 0 {
		graded = append(graded, answers...)
		pending = true
	}

	return graded, totalFromAnswers(graded), pending
}

// ===== HELPERS =====

func (s *gradingService) checkGradingPermission(ctx context.Context, test *models.TestDefinition, graderID string) error {
	grader, err := s.repo.User().GetByID(ctx, graderID)
	if err != nil {
		return fmt.Errorf("failed to resolve grader: %w", err)
	}
	if grader.Role == models.RoleAdmin {
		return nil
	}
	if !grader.CanAuthor() || test.CreatedBy != graderID {
		return NewPermissionError(graderID, test.ID, "attempt", "grade", "not the test owner")
	}
	return nil
}

func (s *gradingService) buildGradingResult(attempt *models.Attempt, test *models.TestDefinition) *AttemptGradingResult {
	answers := attempt.Answers.Data()

	result := &AttemptGradingResult{
		AttemptID:  attempt.ID,
		TotalScore: attempt.TotalScore,
		MaxScore:   test.TotalMarks,
		Percentage: attempt.Percentage,
		Pending:    attempt.PendingManualGrading(),
		Questions:  make([]QuestionScore, 0, len(answers)),
	}

	if test.PassingMarks != nil && !result.Pending {
		passing := attempt.TotalScore >= *test.PassingMarks
		result.IsPassing = &passing
	}

	for _, ans := range answers {
		maxMarks := 0.0
		if q, ok := test.QuestionByNumber(ans.QuestionNumber); ok {
			maxMarks = q.Marks
		}
		result.Questions = append(result.Questions, QuestionScore{
			QuestionNumber: ans.QuestionNumber,
			IsCorrect:      ans.IsCorrect,
			MarksAwarded:   ans.MarksAwarded,
			MaxMarks:       maxMarks,
		})
	}

	return result
}

// applyManualGrade overwrites the stored mark for one question, creating the
// answer entry if the student skipped it.
func applyManualGrade(answers []models.AttemptAnswer, grade QuestionGrade, question *models.Question) []models.AttemptAnswer {
	marks := grade.Marks
	correct := question != nil && marks == question.Marks

	for i := range answers {
		if answers[i].QuestionNumber == grade.QuestionNumber {
			answers[i].MarksAwarded = &marks
			answers[i].IsCorrect = &correct
			return answers
		}
	}

	return append(answers, models.AttemptAnswer{
		QuestionNumber: grade.QuestionNumber,
		MarksAwarded:   &marks,
		IsCorrect:      &correct,
	})
}

// totalFromAnswers sums awarded marks, ignoring ungraded entries, and clamps
// the result at zero. Negative marking never drives a total below zero.
func totalFromAnswers(answers []models.AttemptAnswer) float64 {
	var total float64
	for _, ans := range answers {
		if ans.MarksAwarded != nil {
			total += *ans.MarksAwarded
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

// percentageOf is nil when the test carries no marks; a 0/0 paper has no
// meaningful percentage.
func percentageOf(score, totalMarks float64) *float64 {
	if totalMarks <= 0 {
		return nil
	}
	p := score / totalMarks * 100
	return &p
}

// sameAnswerSet compares selections ignoring order and duplicates.
func sameAnswerSet(given, expected []string) bool {
	if len(given) == 0 || len(expected) == 0 {
		return false
	}
	want := make(map[string]bool, len(expected))
	for _, v := range expected {
		want[v] = true
	}
	got := make(map[string]bool, len(given))
	for _, v := range given {
		got[v] = true
	}
	if len(got) != len(want) {
		return false
	}
	for v := range want {
		if !got[v] {
			return false
		}
	}
	return true
}

func boolPtr(b bool) *bool { return &b }

func float64Ptr(f float64) *float64 { return &f }
