package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/shopcart/pkg/cache"
)

// ErrLockNotHeld 锁已过期或被其他持有者占用
var ErrLockNotHeld = errors.New("lock not held")

// 只删除自己持有的锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock 基于 SET NX PX 的分布式互斥锁
type RedisLock struct {
	cache  *cache.RedisCache
	prefix string
}

// NewRedisLock 创建分布式锁
func NewRedisLock(c *cache.RedisCache) *RedisLock {
	return &RedisLock{cache: c, prefix: "lock:"}
}

// TryLock 非阻塞加锁，成功时返回持有者令牌
func (l *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.cache.SetNX(ctx, l.prefix+key, token, ttl)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock 释放锁；令牌不匹配时返回 ErrLockNotHeld
func (l *RedisLock) Unlock(ctx context.Context, key, token string) error {
	n, err := unlockScript.Run(ctx, l.cache.Client(), []string{l.prefix + key}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
