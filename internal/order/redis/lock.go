package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Lock serializes mutations of a single order. The value stored under the
// lock key is an owner token so a holder can only release its own lock;
// the TTL bounds how long a crashed holder can block others.
type Lock struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewLock(client *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Lock{Client: client, TTL: ttl}
}

func lockKey(orderID string) string {
	return "order_lock:" + orderID
}

// Acquire takes the mutation lock for an order. It returns false without
// error when another owner already holds it.
func (l *Lock) Acquire(ctx context.Context, orderID, owner string) (bool, error) {
	return l.Client.SetNX(ctx, lockKey(orderID), owner, l.TTL).Result()
}

// Release drops the lock if and only if owner still holds it. Releasing an
// expired or foreign lock is a no-op.
func (l *Lock) Release(ctx context.Context, orderID, owner string) error {
	key := lockKey(orderID)
	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == owner {
		_, err = l.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

// IsLocked reports whether any owner currently holds the order lock.
func (l *Lock) IsLocked(ctx context.Context, orderID string) (bool, error) {
	_, err := l.Client.Get(ctx, lockKey(orderID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
