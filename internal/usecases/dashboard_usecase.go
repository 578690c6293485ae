package usecases

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

const (
	DefaultTrendDays = 30
	MaxTrendDays     = 90
)

// DashboardUsecase serves the per-user aggregates behind the dashboard and analytics pages.
// Results are cached under the user's current cache version.
type DashboardUsecase struct {
	stats interfaces.StatsStore
	cache interfaces.Cache
	clock clock.Clock
}

func NewDashboardUsecase(stats interfaces.StatsStore, cache interfaces.Cache, clk clock.Clock) *DashboardUsecase {
	return &DashboardUsecase{stats: stats, cache: cache, clock: clk}
}

// cached returns the value under key or loads it and stores it under the version
// seen by the miss.
func cached[T any](u *DashboardUsecase, userID int64, key string, load func() (T, error)) (T, error) {
	cachedValue, ver, ok := u.cache.Get(userID, key)
	if ok {
		if t, ok := cachedValue.(T); ok {
			return t, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	u.cache.Set(userID, ver, key, v)
	return v, nil
}

func clampDays(days int) int {
	if days <= 0 {
		return DefaultTrendDays
	}
	if days > MaxTrendDays {
		return MaxTrendDays
	}
	return days
}

func (u *DashboardUsecase) Stats(ctx context.Context, userID int64) (*entities.DashboardStats, error) {
	return cached(u, userID, "dashboard:stats", func() (*entities.DashboardStats, error) {
		return u.stats.DashboardStats(ctx, userID, u.clock.Now())
	})
}

func (u *DashboardUsecase) ClientsByStatus(ctx context.Context, userID int64) ([]entities.CountBucket, error) {
	return cached(u, userID, "analytics:clients-by-status", func() ([]entities.CountBucket, error) {
		return u.stats.ClientsByStatus(ctx, userID)
	})
}

func (u *DashboardUsecase) ClientsBySource(ctx context.Context, userID int64) ([]entities.CountBucket, error) {
	return cached(u, userID, "analytics:clients-by-source", func() ([]entities.CountBucket, error) {
		return u.stats.ClientsBySource(ctx, userID)
	})
}

// FollowUpTrends returns daily created/completed counts over the last days days (at most 90).
func (u *DashboardUsecase) FollowUpTrends(ctx context.Context, userID int64, days int) ([]entities.TrendPoint, error) {
	days = clampDays(days)
	return cached(u, userID, fmt.Sprintf("analytics:follow-up-trends:%d", days), func() ([]entities.TrendPoint, error) {
		return u.stats.FollowUpTrends(ctx, userID, u.clock.Now().AddDate(0, 0, -(days-1)))
	})
}

func (u *DashboardUsecase) InteractionsByType(ctx context.Context, userID int64, days int) ([]entities.CountBucket, error) {
	days = clampDays(days)
	return cached(u, userID, fmt.Sprintf("analytics:interactions-by-type:%d", days), func() ([]entities.CountBucket, error) {
		return u.stats.InteractionsByType(ctx, userID, u.clock.Now().AddDate(0, 0, -days))
	})
}
