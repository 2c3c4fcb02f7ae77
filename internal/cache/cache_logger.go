package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern invalidates a cache pattern, logging instead of
// propagating failures. Cache misses must never fail the write path.
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete deletes cache keys, logging instead of propagating failures.
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateTestCache drops every cache entry derived from a test row,
// including its stats.
func InvalidateTestCache(ctx context.Context, cm *CacheManager, testID uint, creatorID string) {
	SafeDelete(ctx, cm.Test, fmt.Sprintf("id:%d", testID))

	SafeInvalidatePattern(ctx, cm.Test, fmt.Sprintf("creator:%s:*", creatorID))
	SafeInvalidatePattern(ctx, cm.Test, "list:*")
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("test:%d:*", testID))
}

// InvalidateAttemptCache drops attempt entries plus the stats that depend
// on them.
func InvalidateAttemptCache(ctx context.Context, cm *CacheManager, attemptID, testID uint) {
	SafeDelete(ctx, cm.Attempt, fmt.Sprintf("id:%d", attemptID))
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("test:%d:*", testID))
}
