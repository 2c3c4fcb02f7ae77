package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/brightclass/assessment-engine/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type TestFilters struct {
	Status    *models.TestStatus `json:"status"`
	Type      *models.TestType   `json:"type"`
	CourseID  *uint              `json:"course_id"`
	CreatedBy *string            `json:"created_by"`
	Query     *string            `json:"query"`
	DateFrom  *time.Time         `json:"date_from"`
	DateTo    *time.Time         `json:"date_to"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
	SortBy    string             `json:"sort_by"`    // "created_at", "title", "start_time"
	SortOrder string             `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	Status    *models.AttemptStatus `json:"status"`
	TestID    *uint                 `json:"test_id"`
	StudentID *string               `json:"student_id"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type UserFilters struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// ===== SHARED STATISTICS STRUCTS =====

// TestStats is the recomputable aggregate view of a test's attempts.
// AvgScore and PassRate are nil when no evaluated attempts exist, or, for
// PassRate, when the test has no passing threshold. Nil means undefined.
type TestStats struct {
	TotalAttempts int      `json:"total_attempts"`
	AvgScore      *float64 `json:"avg_score"`
	PassRate      *float64 `json:"pass_rate"`
}

type CreatorStats struct {
	TotalTests    int `json:"total_tests"`
	ActiveTests   int `json:"active_tests"`
	DraftTests    int `json:"draft_tests"`
	TotalAttempts int `json:"total_attempts"`
}

// ===== REPOSITORY INTERFACES =====

// TestRepository persists test definitions with their embedded questions.
type TestRepository interface {
	Create(ctx context.Context, tx *gorm.DB, test *models.TestDefinition) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestDefinition, error)
	Update(ctx context.Context, tx *gorm.DB, test *models.TestDefinition) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	List(ctx context.Context, tx *gorm.DB, filters TestFilters) ([]*models.TestDefinition, int64, error)
	GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters TestFilters) ([]*models.TestDefinition, int64, error)
	GetVisibleToStudents(ctx context.Context, tx *gorm.DB, filters TestFilters) ([]*models.TestDefinition, int64, error)

	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.TestStatus) error
	UpdateAggregates(ctx context.Context, tx *gorm.DB, id uint, stats TestStats) error

	GetCreatorStats(ctx context.Context, tx *gorm.DB, creatorID string) (*CreatorStats, error)
}

// AttemptRepository persists student attempts independently of their test.
type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error

	// UpdateVersioned writes the attempt only if the stored version still
	// matches attempt.Version, then bumps it. Returns ErrStaleVersion on a
	// lost race.
	UpdateVersioned(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error

	GetActiveAttempt(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (*models.Attempt, error)
	CountByTestAndStudent(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (int, error)
	CountFinishedByTest(ctx context.Context, tx *gorm.DB, testID uint) (int, error)

	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.Attempt, int64, error)
	GetByTest(ctx context.Context, tx *gorm.DB, testID uint, filters AttemptFilters) ([]*models.Attempt, int64, error)
	GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters AttemptFilters) ([]*models.Attempt, int64, error)

	// GetFinishedByTest returns every submitted or evaluated attempt, for
	// statistics recomputation and exports.
	GetFinishedByTest(ctx context.Context, tx *gorm.DB, testID uint) ([]*models.Attempt, error)

	MarkArchivedByTest(ctx context.Context, tx *gorm.DB, testID uint) error
}

// UserRepository reads accounts and enrollment groups from the identity
// provider. The engine never writes users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
	HasRole(ctx context.Context, id string, role models.UserRole) (bool, error)
	List(ctx context.Context, filters UserFilters) ([]*models.User, int64, error)
}
