package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenBlacklist 记录已登出的 token，直至其自然过期。
type TokenBlacklist interface {
	Add(ctx context.Context, tokenID string, ttl time.Duration) error
	Contains(ctx context.Context, tokenID string) (bool, error)
}

type redisTokenBlacklist struct {
	redisClient *redis.Client
}

// NewTokenBlacklist 创建基于 Redis 的 token 黑名单。
func NewTokenBlacklist(redisClient *redis.Client) TokenBlacklist {
	return &redisTokenBlacklist{redisClient: redisClient}
}

func blacklistKey(tokenID string) string {
	return "blacklist:" + tokenID
}

func (r *redisTokenBlacklist) Add(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.redisClient.Set(ctx, blacklistKey(tokenID), "1", ttl).Err()
}

func (r *redisTokenBlacklist) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.redisClient.Exists(ctx, blacklistKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
