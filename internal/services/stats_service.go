package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brightclass/assessment-engine/internal/cache"
	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/repositories"
)

type statsService struct {
	repo         repositories.Repository
	logger       *slog.Logger
	cacheManager *cache.CacheManager
}

func NewStatsService(repo repositories.Repository, logger *slog.Logger, cacheManager *cache.CacheManager) StatsService {
	return &statsService{
		repo:         repo,
		logger:       logger,
		cacheManager: cacheManager,
	}
}

// GetTestStatistics returns the aggregate view of a test's attempts. The
// result is cached briefly; RecomputeTestAggregates invalidates it.
func (s *statsService) GetTestStatistics(ctx context.Context, testID uint, userID string) (*TestStatistics, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	if user.Role != models.RoleAdmin && test.CreatedBy != userID {
		return nil, NewPermissionError(userID, testID, "statistics", "read", "not the test owner")
	}

	var stats TestStatistics
	cacheKey := fmt.Sprintf("test:%d", testID)
	err = s.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		computed, err := s.computeStatistics(ctx, test)
		if err != nil {
			return nil, err
		}
		return computed, nil
	})
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// RecomputeTestAggregates rebuilds the cached aggregates on the test row
// from the full attempt set. The rebuild is deterministic: running it twice
// yields the same row.
func (s *statsService) RecomputeTestAggregates(ctx context.Context, testID uint) error {
	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrTestNotFound
		}
		return fmt.Errorf("failed to get test: %w", err)
	}

	stats, err := s.computeStatistics(ctx, test)
	if err != nil {
		return err
	}

	aggregates := repositories.TestStats{
		TotalAttempts: stats.TotalAttempts,
		AvgScore:      stats.AvgScore,
		PassRate:      stats.PassRate,
	}
	if err := s.repo.Test().UpdateAggregates(ctx, nil, testID, aggregates); err != nil {
		return fmt.Errorf("failed to update test aggregates: %w", err)
	}

	cache.SafeDelete(ctx, s.cacheManager.Stats, fmt.Sprintf("test:%d", testID))

	s.logger.Debug("Test aggregates recomputed",
		"test_id", testID,
		"total_attempts", stats.TotalAttempts)

	return nil
}

// computeStatistics derives every aggregate from the finished attempt set.
// Averages and rates stay nil, not zero, while no evaluated attempts exist;
// an empty set has no meaningful average.
func (s *statsService) computeStatistics(ctx context.Context, test *models.TestDefinition) (*TestStatistics, error) {
	attempts, err := s.repo.Attempt().GetFinishedByTest(ctx, nil, test.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}

	return aggregateStatistics(test, attempts), nil
}

// aggregateStatistics folds the finished attempt set into one summary.
func aggregateStatistics(test *models.TestDefinition, attempts []*models.Attempt) *TestStatistics {
	stats := &TestStatistics{
		TestID:        test.ID,
		TotalAttempts: len(attempts),
	}

	var (
		percentageSum float64
		percentages   int
		passed        int
		evaluated     int
	)

	for _, attempt := range attempts {
		switch attempt.Status {
		case models.AttemptSubmitted:
			stats.Submitted++
		case models.AttemptEvaluated:
			stats.Evaluated++
			evaluated++

			if attempt.Percentage != nil {
				percentageSum += *attempt.Percentage
				percentages++
			}
			if test.PassingMarks != nil && attempt.TotalScore >= *test.PassingMarks {
				passed++
			}

			score := attempt.TotalScore
			if stats.HighestScore == nil || score > *stats.HighestScore {
				stats.HighestScore = &score
			}
			if stats.LowestScore == nil || score < *stats.LowestScore {
				stats.LowestScore = &score
			}
		}
	}

	if percentages > 0 {
		avg := percentageSum / float64(percentages)
		stats.AvgScore = &avg
	}
	if evaluated > 0 && test.PassingMarks != nil {
		rate := float64(passed) / float64(evaluated) * 100
		stats.PassRate = &rate
	}

	return stats
}
