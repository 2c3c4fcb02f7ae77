package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/brightclass/assessment-engine/internal/cache"
	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/repositories"
)

type TestPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewTestPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.TestRepository {
	return &TestPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (t *TestPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return t.db
}

func (t *TestPostgreSQL) Create(ctx context.Context, tx *gorm.DB, test *models.TestDefinition) error {
	db := t.getDB(tx)
	return retryOnce(ctx, func() error {
		return db.WithContext(ctx).Create(test).Error
	})
}

func (t *TestPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestDefinition, error) {
	db := t.getDB(tx)

	// Cached reads only outside transactions; a transactional read must see
	// the row the transaction sees.
	if tx == nil {
		cacheKey := fmt.Sprintf("id:%d", id)
		var test models.TestDefinition
		err := t.cacheManager.Test.CacheOrExecute(ctx, cacheKey, &test, cache.TestCacheConfig.TTL, func() (interface{}, error) {
			var row models.TestDefinition
			if err := db.WithContext(ctx).First(&row, id).Error; err != nil {
				return nil, err
			}
			return &row, nil
		})
		if err != nil {
			return nil, err
		}
		return &test, nil
	}

	var test models.TestDefinition
	if err := db.WithContext(ctx).First(&test, id).Error; err != nil {
		return nil, err
	}
	return &test, nil
}

func (t *TestPostgreSQL) Update(ctx context.Context, tx *gorm.DB, test *models.TestDefinition) error {
	db := t.getDB(tx)
	err := retryOnce(ctx, func() error {
		return db.WithContext(ctx).Save(test).Error
	})
	if err != nil {
		return err
	}
	cache.InvalidateTestCache(ctx, t.cacheManager, test.ID, test.CreatedBy)
	return nil
}

func (t *TestPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := t.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.TestDefinition{}, id).Error; err != nil {
		return err
	}
	cache.SafeDelete(ctx, t.cacheManager.Test, fmt.Sprintf("id:%d", id))
	return nil
}

func (t *TestPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.TestFilters) ([]*models.TestDefinition, int64, error) {
	db := t.getDB(tx)
	var tests []*models.TestDefinition
	var total int64

	query := db.WithContext(ctx).Model(&models.TestDefinition{})
	query = t.helpers.ApplyTestFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = t.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&tests).Error; err != nil {
		return nil, 0, err
	}

	return tests, total, nil
}

func (t *TestPostgreSQL) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.TestFilters) ([]*models.TestDefinition, int64, error) {
	filters.CreatedBy = &creatorID
	return t.List(ctx, tx, filters)
}

// GetVisibleToStudents lists tests in the student-facing statuses; draft and
// archived rows behave as if they do not exist.
func (t *TestPostgreSQL) GetVisibleToStudents(ctx context.Context, tx *gorm.DB, filters repositories.TestFilters) ([]*models.TestDefinition, int64, error) {
	db := t.getDB(tx)
	var tests []*models.TestDefinition
	var total int64

	query := db.WithContext(ctx).Model(&models.TestDefinition{}).
		Where("status IN ?", []models.TestStatus{models.StatusScheduled, models.StatusActive, models.StatusClosed})
	query = t.helpers.ApplyTestFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = t.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&tests).Error; err != nil {
		return nil, 0, err
	}

	return tests, total, nil
}

func (t *TestPostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.TestStatus) error {
	db := t.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.TestDefinition{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":  status,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	cache.SafeDelete(ctx, t.cacheManager.Test, fmt.Sprintf("id:%d", id))
	return nil
}

// UpdateAggregates writes the cached stats columns. A nil pointer clears the
// column, keeping "no evaluated attempts" distinct from zero.
func (t *TestPostgreSQL) UpdateAggregates(ctx context.Context, tx *gorm.DB, id uint, stats repositories.TestStats) error {
	db := t.getDB(tx)
	err := retryOnce(ctx, func() error {
		return db.WithContext(ctx).
			Model(&models.TestDefinition{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"total_attempts": stats.TotalAttempts,
				"avg_score":      stats.AvgScore,
				"pass_rate":      stats.PassRate,
			}).Error
	})
	if err != nil {
		return err
	}
	cache.SafeDelete(ctx, t.cacheManager.Test, fmt.Sprintf("id:%d", id))
	cache.SafeInvalidatePattern(ctx, t.cacheManager.Stats, fmt.Sprintf("test:%d:*", id))
	return nil
}

func (t *TestPostgreSQL) GetCreatorStats(ctx context.Context, tx *gorm.DB, creatorID string) (*repositories.CreatorStats, error) {
	db := t.getDB(tx)
	stats := &repositories.CreatorStats{}

	type statusCount struct {
		Status models.TestStatus
		Count  int
	}
	var counts []statusCount
	if err := db.WithContext(ctx).
		Model(&models.TestDefinition{}).
		Select("status, count(*) as count").
		Where("created_by = ?", creatorID).
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count tests by status: %w", err)
	}

	for _, c := range counts {
		stats.TotalTests += c.Count
		switch c.Status {
		case models.StatusActive:
			stats.ActiveTests += c.Count
		case models.StatusDraft:
			stats.DraftTests += c.Count
		}
	}

	var attempts int64
	if err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Joins("JOIN tests ON tests.id = attempts.test_id").
		Where("tests.created_by = ?", creatorID).
		Count(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	stats.TotalAttempts = int(attempts)

	return stats, nil
}
