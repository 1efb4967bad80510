package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	LockKeyPrefix        = "lock"
	IdempotencyKeyPrefix = "idem"
	DefaultLockTTL       = 5 * time.Second
	DefaultIdemTTL       = 24 * time.Hour
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`)

// DistLock 基于 SETNX 的分布式锁，token 防止误删他人的锁
type DistLock struct {
	RDB *redis.Client
	TTL time.Duration
}

func lockKey(name string, id uint64) string {
	return fmt.Sprintf("%s:%s:%d", LockKeyPrefix, name, id)
}

// Acquire 请求加分布式锁
func (l *DistLock) Acquire(ctx context.Context, name string, id uint64, token string) (bool, error) {
	ttl := l.TTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return l.RDB.SetNX(ctx, lockKey(name, id), token, ttl).Result()
}

// Release 用lua保证原子性
func (l *DistLock) Release(ctx context.Context, name string, id uint64, token string) error {
	return releaseScript.Run(ctx, l.RDB, []string{lockKey(name, id)}, token).Err()
}

// IdempotencyRepository 请求去重：同一个 key 只允许一个请求进入
type IdempotencyRepository struct {
	RDB *redis.Client
	TTL time.Duration
}

func idemKey(scope string, userID uint64, key string) string {
	return fmt.Sprintf("%s:%s:%d:%s", IdempotencyKeyPrefix, scope, userID, key)
}

// Claim 首次出现返回 true
func (r *IdempotencyRepository) Claim(ctx context.Context, scope string, userID uint64, key string) (bool, error) {
	ttl := r.TTL
	if ttl <= 0 {
		ttl = DefaultIdemTTL
	}
	return r.RDB.SetNX(ctx, idemKey(scope, userID, key), "1", ttl).Result()
}

// Forget 处理失败时释放，允许客户端重试
func (r *IdempotencyRepository) Forget(ctx context.Context, scope string, userID uint64, key string) error {
	return r.RDB.Del(ctx, idemKey(scope, userID, key)).Err()
}
