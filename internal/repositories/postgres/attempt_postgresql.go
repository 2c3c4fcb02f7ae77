package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/brightclass/assessment-engine/internal/cache"
	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/repositories"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// Create inserts a new attempt. The partial unique index on
// (test_id, student_id) WHERE status = 'in_progress' settles concurrent
// starts; the loser surfaces gorm.ErrDuplicatedKey.
func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := a.getDB(tx)
	err := retryOnce(ctx, func() error {
		return db.WithContext(ctx).Save(attempt).Error
	})
	if err != nil {
		return err
	}
	cache.InvalidateAttemptCache(ctx, a.cacheManager, attempt.ID, attempt.TestID)
	return nil
}

// UpdateVersioned writes the attempt only if its version column still holds
// the value the caller read, then bumps it. Concurrent graders serialize on
// this check; the loser gets ErrStaleVersion and must re-read.
func (a *AttemptPostgreSQL) UpdateVersioned(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := a.getDB(tx)

	result := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND version = ?", attempt.ID, attempt.Version).
		Updates(map[string]interface{}{
			"answers":      attempt.Answers,
			"status":       attempt.Status,
			"total_score":  attempt.TotalScore,
			"percentage":   attempt.Percentage,
			"feedback":     attempt.Feedback,
			"submitted_at": attempt.SubmittedAt,
			"time_spent":   attempt.TimeSpent,
			"graded_at":    attempt.GradedAt,
			"graded_by":    attempt.GradedBy,
			"version":      gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish a lost race from a missing row
		var exists int64
		if err := db.WithContext(ctx).Model(&models.Attempt{}).Where("id = ?", attempt.ID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return gorm.ErrRecordNotFound
		}
		return repositories.ErrStaleVersion
	}

	attempt.Version++
	cache.InvalidateAttemptCache(ctx, a.cacheManager, attempt.ID, attempt.TestID)
	return nil
}

func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	err := db.WithContext(ctx).
		Where("test_id = ? AND student_id = ? AND status = ?", testID, studentID, models.AttemptInProgress).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// CountByTestAndStudent counts every prior attempt regardless of status;
// abandoned runs still consume the attempt budget.
func (a *AttemptPostgreSQL) CountByTestAndStudent(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (int, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("test_id = ? AND student_id = ?", testID, studentID).
		Count(&count).Error
	return int(count), err
}

func (a *AttemptPostgreSQL) CountFinishedByTest(ctx context.Context, tx *gorm.DB, testID uint) (int, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("test_id = ? AND status IN ?", testID, []models.AttemptStatus{models.AttemptSubmitted, models.AttemptEvaluated}).
		Count(&count).Error
	return int(count), err
}

func (a *AttemptPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.Attempt
	var total int64

	query := db.WithContext(ctx).Model(&models.Attempt{})
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetByTest(ctx context.Context, tx *gorm.DB, testID uint, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	filters.TestID = &testID
	return a.List(ctx, tx, filters)
}

func (a *AttemptPostgreSQL) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	filters.StudentID = &studentID
	return a.List(ctx, tx, filters)
}

// GetFinishedByTest loads the full handed-in attempt set, ordered for
// deterministic recomputation.
func (a *AttemptPostgreSQL) GetFinishedByTest(ctx context.Context, tx *gorm.DB, testID uint) ([]*models.Attempt, error) {
	db := a.getDB(tx)
	var attempts []*models.Attempt
	err := retryOnce(ctx, func() error {
		attempts = attempts[:0]
		return db.WithContext(ctx).
			Where("test_id = ? AND status IN ?", testID, []models.AttemptStatus{models.AttemptSubmitted, models.AttemptEvaluated}).
			Order("id ASC").
			Find(&attempts).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load finished attempts: %w", err)
	}
	return attempts, nil
}

// MarkArchivedByTest flags every attempt of an archived test. Attempts are
// never deleted.
func (a *AttemptPostgreSQL) MarkArchivedByTest(ctx context.Context, tx *gorm.DB, testID uint) error {
	db := a.getDB(tx)
	err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("test_id = ?", testID).
		Update("archived_with_test", true).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return nil
}
