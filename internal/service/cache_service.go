package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/Elvismn/Scholalink3.0/pkg/errors"
)

// User statistics payloads live under the user_stats: namespace. Any account
// mutation drops the whole namespace; login telemetry does not.
const (
	userStatsPattern     = "user_stats:*"
	userStatsSummaryKey  = "user_stats:summary"
	userStatsAnalytics   = "user_stats:analytics"
	userStatsSystemStats = "user_stats:system"
)

// CacheRepository is the key/value backend for the user statistics cache.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService caches the admin dashboard aggregates (summary, system stats,
// analytics). A nil or disabled service computes every payload on demand.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs the user statistics cache. ttl falls back to five
// minutes, matching USER_STATS_CACHE_TTL's default.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled reports whether user statistics are served from cache.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get loads the payload stored under key into dest and reports a hit.
// Backend errors are logged and returned as a miss.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	}
	s.logger.Warn("user stats cache read failed", zap.String("key", key), zap.Error(err))
	return false, err
}

// Set stores a payload for the configured TTL, or ttl when positive.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("user stats cache write failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// InvalidateUserStats drops every cached user statistics payload.
func (s *CacheService) InvalidateUserStats(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, userStatsPattern); err != nil {
		s.logger.Warn("user stats cache invalidation failed", zap.Error(err))
		return err
	}
	return nil
}

// cachedUserStat returns the payload cached under key, or computes it with
// load and caches the result.
func cachedUserStat[T any](ctx context.Context, cache *CacheService, key string, load func() (*T, error)) (*T, error) {
	var cached T
	if hit, _ := cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}
	value, err := load()
	if err != nil {
		return nil, err
	}
	_ = cache.Set(ctx, key, value, 0)
	return value, nil
}
