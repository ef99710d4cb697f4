package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	analyticsvc "github.com/hmcelik/telegram-moderator-bot-sub001/internal/services/analytics"
)

const (
	groupStatsPrefix = "stats:group:"
	defaultCacheTTL  = time.Minute
)

// StatsCacheRepo is a read-through cache for group stats. Entries expire
// quickly; the audit log stays the source of truth.
type StatsCacheRepo struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewStatsCacheRepo(client *goredis.Client, ttl time.Duration) *StatsCacheRepo {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &StatsCacheRepo{client: client, ttl: ttl}
}

func (r *StatsCacheRepo) GetGroupStats(ctx context.Context, groupID string, start, end time.Time) (analyticsvc.GroupStats, bool, error) {
	if r.client == nil {
		return analyticsvc.GroupStats{}, false, fmt.Errorf("redis client is nil")
	}

	raw, err := r.client.Get(ctx, groupStatsKey(groupID, start, end)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return analyticsvc.GroupStats{}, false, nil
		}
		return analyticsvc.GroupStats{}, false, fmt.Errorf("get cached group stats: %w", err)
	}

	var stats analyticsvc.GroupStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return analyticsvc.GroupStats{}, false, fmt.Errorf("decode cached group stats: %w", err)
	}
	return stats, true, nil
}

func (r *StatsCacheRepo) SetGroupStats(ctx context.Context, groupID string, start, end time.Time, stats analyticsvc.GroupStats) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode group stats: %w", err)
	}

	if err := r.client.Set(ctx, groupStatsKey(groupID, start, end), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache group stats: %w", err)
	}
	return nil
}

func groupStatsKey(groupID string, start, end time.Time) string {
	return fmt.Sprintf("%s%s:%d:%d", groupStatsPrefix, groupID, start.Unix(), end.Unix())
}
