package voice

import (
	"context"
	"fmt"
	"time"

	"voicedesk/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLocker serializes conversations across API nodes with a TTL'd
// exclusive key. The TTL bounds how long a crashed holder can stall a
// conversation; releases are token-checked so an expired holder cannot free
// a successor's lock.
type RedisLocker struct {
	rdb *redis.Client

	TTL           time.Duration
	RetryInterval time.Duration
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{
		rdb:           rdb,
		TTL:           15 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	}
}

func lockKey(conversationID int64) string {
	return fmt.Sprintf("voice:conversation_lock:%d", conversationID)
}

func (l *RedisLocker) Lock(ctx context.Context, conversationID int64) (func(), error) {
	key := lockKey(conversationID)
	token := uuid.NewString()

	for {
		ok, err := utils.AcquireLock(ctx, l.rdb, key, token, l.TTL)
		if err != nil {
			return nil, fmt.Errorf("voice: lock acquire failed: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.RetryInterval):
		}
	}

	release := func() {
		// Release must not inherit a cancelled request context.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = utils.ReleaseLock(ctx, l.rdb, key, token)
	}
	return release, nil
}
