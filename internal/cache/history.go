// Package cache holds the Redis-backed read models.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cardvault/apiserver/config"
	"github.com/cardvault/apiserver/types"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const historyTTL = 10 * time.Minute

// HistoryCache caches transfer history pages per profile in Redis.
//
// Each profile has a version counter; page keys embed the current version,
// so invalidation is a single INCR that orphans every cached page at once.
// Orphaned pages expire via TTL.
type HistoryCache struct {
	client *redis.Client
	log    *logrus.Logger
}

type historyPage struct {
	Items []types.TransferView `json:"items"`
	Total int                  `json:"total"`
}

func NewHistoryCache(cfg config.RedisConfig, log *logrus.Logger) *HistoryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &HistoryCache{client: client, log: log}
}

// Ping verifies the Redis connection.
func (c *HistoryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *HistoryCache) Close() error {
	return c.client.Close()
}

// Get returns a cached history page if present. Any Redis failure is
// treated as a miss.
func (c *HistoryCache) Get(ctx context.Context, profileID uuid.UUID, page, size int) ([]types.TransferView, int, bool) {
	key, err := c.pageKey(ctx, profileID, page, size)
	if err != nil {
		return nil, 0, false
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warnf("history cache get %s: %v", key, err)
		}
		return nil, 0, false
	}

	var cached historyPage
	if err := json.Unmarshal(raw, &cached); err != nil {
		c.log.Warnf("history cache decode %s: %v", key, err)
		return nil, 0, false
	}
	return cached.Items, cached.Total, true
}

// Set stores a history page. Failures are logged and otherwise ignored;
// the database already answered the request.
func (c *HistoryCache) Set(ctx context.Context, profileID uuid.UUID, page, size int, items []types.TransferView, total int) {
	key, err := c.pageKey(ctx, profileID, page, size)
	if err != nil {
		return
	}

	raw, err := json.Marshal(historyPage{Items: items, Total: total})
	if err != nil {
		c.log.Warnf("history cache encode %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, key, raw, historyTTL).Err(); err != nil {
		c.log.Warnf("history cache set %s: %v", key, err)
	}
}

// Invalidate drops every cached page for the given profiles by bumping
// their version counters.
func (c *HistoryCache) Invalidate(ctx context.Context, profileIDs ...uuid.UUID) {
	for _, id := range profileIDs {
		if err := c.client.Incr(ctx, versionKey(id)).Err(); err != nil {
			c.log.Warnf("history cache invalidate %s: %v", id, err)
		}
	}
}

func (c *HistoryCache) pageKey(ctx context.Context, profileID uuid.UUID, page, size int) (string, error) {
	version, err := c.client.Get(ctx, versionKey(profileID)).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("history:%s:v%d:p%d:s%d", profileID, version, page, size), nil
}

func versionKey(profileID uuid.UUID) string {
	return "history:" + profileID.String() + ":version"
}
