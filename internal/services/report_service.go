package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/repositories"
)

type reportService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewReportService(repo repositories.Repository, logger *slog.Logger) ReportService {
	return &reportService{
		repo:   repo,
		logger: logger,
	}
}

const resultsSheet = "Results"

// ExportResults writes every finished attempt of the test as one row of an
// xlsx workbook, with one column per question.
func (s *reportService) ExportResults(ctx context.Context, testID uint, userID string, w io.Writer) error {
	s.logger.Info("Exporting test results", "test_id", testID, "user_id", userID)

	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrTestNotFound
		}
		return fmt.Errorf("failed to get test: %w", err)
	}

	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve user: %w", err)
	}
	if user.Role != models.RoleAdmin && test.CreatedBy != userID {
		return NewPermissionError(userID, testID, "report", "export", "not the test owner")
	}

	attempts, err := s.repo.Attempt().GetFinishedByTest(ctx, nil, testID)
	if err != nil {
		return fmt.Errorf("failed to load attempts: %w", err)
	}

	students := s.resolveStudents(ctx, attempts)

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close workbook", "error", err)
		}
	}()
	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	questions := test.Questions.Data()
	headers := []interface{}{"Student", "Email", "Attempt", "Status", "Total Score", "Percentage", "Started At", "Submitted At", "Time Spent (s)"}
	for _, q := range questions {
		headers = append(headers, fmt.Sprintf("Q%d (%.4g)", q.Number, q.Marks))
	}
	if err := writeRow(f, 1, headers); err != nil {
		return err
	}

	for i, attempt := range attempts {
		row := make([]interface{}, 0, len(headers))

		name, email := attempt.StudentID, ""
		if student, ok := students[attempt.StudentID]; ok {
			name, email = student.FullName, student.Email
		}

		row = append(row, name, email, attempt.AttemptNumber, string(attempt.Status), attempt.TotalScore)
		if attempt.Percentage != nil {
			row = append(row, fmt.Sprintf("%.2f%%", *attempt.Percentage))
		} else {
			row = append(row, "")
		}
		row = append(row, formatTime(attempt.StartedAt), formatTime(attempt.SubmittedAt), attempt.TimeSpent)

		for _, q := range questions {
			ans, ok := attempt.AnswerFor(q.Number)
			if !ok || ans.MarksAwarded == nil {
				row = append(row, "pending")
				continue
			}
			row = append(row, *ans.MarksAwarded)
		}

		if err := writeRow(f, i+2, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("Test results exported", "test_id", testID, "rows", len(attempts))
	return nil
}

// resolveStudents looks up display names in one batch; missing accounts fall
// back to the raw student id.
func (s *reportService) resolveStudents(ctx context.Context, attempts []*models.Attempt) map[string]*models.User {
	seen := make(map[string]bool, len(attempts))
	ids := make([]string, 0, len(attempts))
	for _, attempt := range attempts {
		if !seen[attempt.StudentID] {
			seen[attempt.StudentID] = true
			ids = append(ids, attempt.StudentID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	users, err := s.repo.User().GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to resolve students for export", "error", err)
		return nil
	}

	byID := make(map[string]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID
}

func writeRow(f *excelize.File, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to build cell name: %w", err)
	}
	if err := f.SetSheetRow(resultsSheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
