package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/repositories"
)

// In-memory repositories for service tests. Reads hand out copies so the
// fakes behave like row scans, and attempt creation enforces the same
// one-in-progress constraint the partial unique index does.

type fakeRepository struct {
	tests    *fakeTestRepo
	attempts *fakeAttemptRepo
	users    *fakeUserRepo
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		tests:    &fakeTestRepo{tests: map[uint]*models.TestDefinition{}},
		attempts: &fakeAttemptRepo{attempts: map[uint]*models.Attempt{}},
		users:    &fakeUserRepo{users: map[string]*models.User{}},
	}
}

func (f *fakeRepository) Test() repositories.TestRepository { return f.tests }

func (f *fakeRepository) Attempt() repositories.AttemptRepository { return f.attempts }

func (f *fakeRepository) User() repositories.UserRepository { return f.users }

func (f *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}

func (f *fakeRepository) Ping(ctx context.Context) error { return nil }

func (f *fakeRepository) Close() error { return nil }

// ===== TESTS =====

type fakeTestRepo struct {
	nextID uint
	tests  map[uint]*models.TestDefinition
}

func (f *fakeTestRepo) put(test *models.TestDefinition) *models.TestDefinition {
	if test.ID == 0 {
		f.nextID++
		test.ID = f.nextID
	} else if test.ID > f.nextID {
		f.nextID = test.ID
	}
	stored := *test
	f.tests[test.ID] = &stored
	return f.tests[test.ID]
}

func (f *fakeTestRepo) Create(ctx context.Context, tx *gorm.DB, test *models.TestDefinition) error {
	f.put(test)
	return nil
}

func (f *fakeTestRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestDefinition, error) {
	stored, ok := f.tests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	row := *stored
	return &row, nil
}

func (f *fakeTestRepo) Update(ctx context.Context, tx *gorm.DB, test *models.TestDefinition) error {
	if _, ok := f.tests[test.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.put(test)
	return nil
}

func (f *fakeTestRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(f.tests, id)
	return nil
}

func (f *fakeTestRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.TestFilters) ([]*models.TestDefinition, int64, error) {
	var out []*models.TestDefinition
	for _, stored := range f.tests {
		if filters.Status != nil && stored.Status != *filters.Status {
			continue
		}
		if filters.CreatedBy != nil && stored.CreatedBy != *filters.CreatedBy {
			continue
		}
		row := *stored
		out = append(out, &row)
	}
	return out, int64(len(out)), nil
}

func (f *fakeTestRepo) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.TestFilters) ([]*models.TestDefinition, int64, error) {
	filters.CreatedBy = &creatorID
	return f.List(ctx, tx, filters)
}

func (f *fakeTestRepo) GetVisibleToStudents(ctx context.Context, tx *gorm.DB, filters repositories.TestFilters) ([]*models.TestDefinition, int64, error) {
	var out []*models.TestDefinition
	for _, stored := range f.tests {
		if !stored.IsVisibleToStudents() {
			continue
		}
		row := *stored
		out = append(out, &row)
	}
	return out, int64(len(out)), nil
}

func (f *fakeTestRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.TestStatus) error {
	stored, ok := f.tests[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.Status = status
	return nil
}

func (f *fakeTestRepo) UpdateAggregates(ctx context.Context, tx *gorm.DB, id uint, stats repositories.TestStats) error {
	stored, ok := f.tests[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.TotalAttempts = stats.TotalAttempts
	stored.AvgScore = stats.AvgScore
	stored.PassRate = stats.PassRate
	return nil
}

func (f *fakeTestRepo) GetCreatorStats(ctx context.Context, tx *gorm.DB, creatorID string) (*repositories.CreatorStats, error) {
	return &repositories.CreatorStats{}, nil
}

// ===== ATTEMPTS =====

type fakeAttemptRepo struct {
	nextID   uint
	attempts map[uint]*models.Attempt

	// Simulates losing the insert race against a concurrent start
	duplicateOnCreate bool
}

func (f *fakeAttemptRepo) put(attempt *models.Attempt) {
	if attempt.ID == 0 {
		f.nextID++
		attempt.ID = f.nextID
	} else if attempt.ID > f.nextID {
		f.nextID = attempt.ID
	}
	stored := *attempt
	f.attempts[attempt.ID] = &stored
}

func (f *fakeAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	if f.duplicateOnCreate {
		return gorm.ErrDuplicatedKey
	}
	if attempt.Status == models.AttemptInProgress {
		for _, stored := range f.attempts {
			if stored.TestID == attempt.TestID && stored.StudentID == attempt.StudentID && stored.Status == models.AttemptInProgress {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	f.put(attempt)
	return nil
}

func (f *fakeAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	stored, ok := f.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	row := *stored
	return &row, nil
}

func (f *fakeAttemptRepo) Update(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	if _, ok := f.attempts[attempt.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.put(attempt)
	return nil
}

func (f *fakeAttemptRepo) UpdateVersioned(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	stored, ok := f.attempts[attempt.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if stored.Version != attempt.Version {
		return repositories.ErrStaleVersion
	}
	attempt.Version++
	f.put(attempt)
	return nil
}

func (f *fakeAttemptRepo) GetActiveAttempt(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (*models.Attempt, error) {
	for _, stored := range f.attempts {
		if stored.TestID == testID && stored.StudentID == studentID && stored.Status == models.AttemptInProgress {
			row := *stored
			return &row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAttemptRepo) CountByTestAndStudent(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (int, error) {
	count := 0
	for _, stored := range f.attempts {
		if stored.TestID == testID && stored.StudentID == studentID {
			count++
		}
	}
	return count, nil
}

func (f *fakeAttemptRepo) CountFinishedByTest(ctx context.Context, tx *gorm.DB, testID uint) (int, error) {
	count := 0
	for _, stored := range f.attempts {
		if stored.TestID == testID && stored.Status != models.AttemptInProgress {
			count++
		}
	}
	return count, nil
}

func (f *fakeAttemptRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	var out []*models.Attempt
	for _, stored := range f.attempts {
		if filters.TestID != nil && stored.TestID != *filters.TestID {
			continue
		}
		if filters.StudentID != nil && stored.StudentID != *filters.StudentID {
			continue
		}
		if filters.Status != nil && stored.Status != *filters.Status {
			continue
		}
		row := *stored
		out = append(out, &row)
	}
	return out, int64(len(out)), nil
}

func (f *fakeAttemptRepo) GetByTest(ctx context.Context, tx *gorm.DB, testID uint, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	filters.TestID = &testID
	return f.List(ctx, tx, filters)
}

func (f *fakeAttemptRepo) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	filters.StudentID = &studentID
	return f.List(ctx, tx, filters)
}

func (f *fakeAttemptRepo) GetFinishedByTest(ctx context.Context, tx *gorm.DB, testID uint) ([]*models.Attempt, error) {
	var out []*models.Attempt
	for _, stored := range f.attempts {
		if stored.TestID == testID && stored.Status != models.AttemptInProgress {
			row := *stored
			out = append(out, &row)
		}
	}
	return out, nil
}

func (f *fakeAttemptRepo) MarkArchivedByTest(ctx context.Context, tx *gorm.DB, testID uint) error {
	for _, stored := range f.attempts {
		if stored.TestID == testID {
			stored.ArchivedWithTest = true
		}
	}
	return nil
}

// ===== USERS =====

type fakeUserRepo struct {
	users map[string]*models.User
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	stored, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	row := *stored
	return &row, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, stored := range f.users {
		if stored.Email == email {
			row := *stored
			return &row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	var out []*models.User
	for _, id := range ids {
		if stored, ok := f.users[id]; ok {
			row := *stored
			out = append(out, &row)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, ok := f.users[id]
	return ok, nil
}

func (f *fakeUserRepo) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	stored, ok := f.users[id]
	if !ok {
		return false, nil
	}
	return stored.Role == role, nil
}

func (f *fakeUserRepo) List(ctx context.Context, filters repositories.UserFilters) ([]*models.User, int64, error) {
	var out []*models.User
	for _, stored := range f.users {
		row := *stored
		out = append(out, &row)
	}
	return out, int64(len(out)), nil
}
