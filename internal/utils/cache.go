package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cached history pages invalidated on a balance mutation.
const historyPagesToDrop = 5

// WalletCacheKey is the Redis key for a user's cached wallet.
func WalletCacheKey(userID uint) string {
	return fmt.Sprintf("wallet:user:%d", userID)
}

// HistoryCacheKey is the Redis key for one page of a user's ledger history.
func HistoryCacheKey(userID uint, page, pageSize int) string {
	return fmt.Sprintf("txhistory:user:%d:page:%d:size:%d", userID, page, pageSize)
}

// GetCache retrieves a value from Redis and unmarshals it into dest. The
// first return reports whether the key existed.
func GetCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	val, err := rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(val), dest)
}

// SetCache stores value as JSON under key with a TTL.
func SetCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, b, ttl).Err()
}

// DeleteCache removes a key.
func DeleteCache(ctx context.Context, rdb *redis.Client, key string) error {
	return rdb.Del(ctx, key).Err()
}

// InvalidateWalletCaches drops the cached wallet and the leading history
// pages for each user after a balance mutation. Best effort: a stale miss
// costs one DB read.
func InvalidateWalletCaches(ctx context.Context, rdb *redis.Client, userIDs ...uint) {
	if rdb == nil {
		return
	}
	for _, id := range userIDs {
		_ = DeleteCache(ctx, rdb, WalletCacheKey(id))
		for page := 1; page <= historyPagesToDrop; page++ {
			_ = DeleteCache(ctx, rdb, HistoryCacheKey(id, page, 20))
		}
	}
}
