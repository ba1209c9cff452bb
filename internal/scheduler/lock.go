package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/adjustly/adjustly/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient returns nil when no redis address is configured; the
// scheduler then runs unlocked, which is fine for a single instance.
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
	})
}

// Locker serializes job passes across scheduler replicas with a redis
// advisory lock.
type Locker struct {
	client *redis.Client
	log    *zap.Logger
}

func NewLocker(client *redis.Client, log *zap.Logger) *Locker {
	return &Locker{client: client, log: log.Named("scheduler.lock")}
}

// Acquire takes the named lock for ttl. It returns false when another holder
// has it, and a release func when it succeeds.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, func(), error) {
	if l == nil || l.client == nil {
		return true, func() {}, nil
	}

	key := "adjustly:lock:" + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		// Redis being down must not stop billing; log and run unlocked.
		l.log.Warn("lock acquire failed, proceeding unlocked", zap.String("lock", name), zap.Error(err))
		return true, func() {}, nil
	}
	if !ok {
		return false, nil, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Only the holder may release; an expired lock taken over by another
		// replica keeps its new token.
		held, err := l.client.Get(releaseCtx, key).Result()
		if err != nil || held != token {
			return
		}
		if err := l.client.Del(releaseCtx, key).Err(); err != nil {
			l.log.Warn("lock release failed", zap.String("lock", name), zap.Error(err))
		}
	}
	return true, release, nil
}
