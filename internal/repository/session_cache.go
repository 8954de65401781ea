// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dietchat-go/internal/model"

	"github.com/go-redis/redis/v8"
)

const sessionCacheTTL = 30 * time.Minute

// SessionCacheRepository 定义了用户会话列表在 Redis 中的快照缓存。
// 缓存以旁路方式使用：写路径在持久化成功后刷新，读路径未命中时回源数据库。
type SessionCacheRepository interface {
	CacheSessions(ctx context.Context, userID uint, records []model.SessionRecord) error
	GetCachedSessions(ctx context.Context, userID uint) ([]model.SessionRecord, bool, error)
	Invalidate(ctx context.Context, userID uint) error
}

type redisSessionCache struct {
	redisClient *redis.Client
}

// NewSessionCacheRepository 创建一个新的 SessionCacheRepository 实例。
func NewSessionCacheRepository(redisClient *redis.Client) SessionCacheRepository {
	return &redisSessionCache{redisClient: redisClient}
}

func sessionCacheKey(userID uint) string {
	return fmt.Sprintf("user:%d:sessions", userID)
}

// CacheSessions 将用户的会话列表快照写入 Redis。
func (r *redisSessionCache) CacheSessions(ctx context.Context, userID uint, records []model.SessionRecord) error {
	jsonData, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}
	err = r.redisClient.Set(ctx, sessionCacheKey(userID), jsonData, sessionCacheTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set session snapshot: %w", err)
	}
	return nil
}

// GetCachedSessions 读取用户的会话列表快照，未命中时第二个返回值为 false。
func (r *redisSessionCache) GetCachedSessions(ctx context.Context, userID uint) ([]model.SessionRecord, bool, error) {
	jsonData, err := r.redisClient.Get(ctx, sessionCacheKey(userID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get session snapshot: %w", err)
	}
	var records []model.SessionRecord
	if err := json.Unmarshal([]byte(jsonData), &records); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal session snapshot: %w", err)
	}
	return records, true, nil
}

// Invalidate 删除用户的会话列表快照。
func (r *redisSessionCache) Invalidate(ctx context.Context, userID uint) error {
	return r.redisClient.Del(ctx, sessionCacheKey(userID)).Err()
}
