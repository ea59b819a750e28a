package media

import (
	"context"
	"time"

	"codequiz-publisher/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// urlCacheTTL keeps the mapping short-lived; the task row stays the source
// of truth and cache loss only costs a re-read.
const urlCacheTTL = 24 * time.Hour

// URLCache is the advisory task-id → media-URL cache.
type URLCache struct {
	rdb *redis.Client
}

type URLCacheParams struct {
	fx.In
	Redis *redis.Client
}

func NewURLCache(p URLCacheParams) *URLCache {
	return &URLCache{rdb: p.Redis}
}

// GetImageURL returns the cached image URL or "" on miss. Cache errors are
// treated as misses.
func (c *URLCache) GetImageURL(ctx context.Context, taskID int64) string {
	return c.get(ctx, rediskey.BuildTaskImageURLKey(taskID))
}

func (c *URLCache) GetVideoURL(ctx context.Context, taskID int64) string {
	return c.get(ctx, rediskey.BuildTaskVideoURLKey(taskID))
}

func (c *URLCache) SetImageURL(ctx context.Context, taskID int64, url string) {
	c.set(ctx, rediskey.BuildTaskImageURLKey(taskID), url)
}

func (c *URLCache) SetVideoURL(ctx context.Context, taskID int64, url string) {
	c.set(ctx, rediskey.BuildTaskVideoURLKey(taskID), url)
}

// Invalidate drops both entries for a task, forcing re-reads after media
// regeneration.
func (c *URLCache) Invalidate(ctx context.Context, taskID int64) {
	if err := c.rdb.Del(ctx,
		rediskey.BuildTaskImageURLKey(taskID),
		rediskey.BuildTaskVideoURLKey(taskID),
	).Err(); err != nil {
		zap.L().Warn("url cache invalidate failed", zap.Int64("task_id", taskID), zap.Error(err))
	}
}

func (c *URLCache) get(ctx context.Context, key string) string {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return ""
	}
	return val
}

func (c *URLCache) set(ctx context.Context, key, url string) {
	if err := c.rdb.Set(ctx, key, url, urlCacheTTL).Err(); err != nil {
		zap.L().Warn("url cache write failed", zap.String("key", key), zap.Error(err))
	}
}
