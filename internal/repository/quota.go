package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"collab_workspace/pkg/logger"
)

const (
	connCountKeyPrefix = "quota:addr:%s:conns"

	// TTL страхует от утечки счётчика при аварийном завершении узла
	connCountTTL = 10 * time.Minute
)

// QuotaRepository - счётчики допуска в Redis: лимит соединений на адрес
// и оконный лимит для HTTP.
type QuotaRepository interface {
	AcquireConn(ctx context.Context, addr string, max int) (bool, error)
	ReleaseConn(ctx context.Context, addr string) error
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

type quotaRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewQuotaRepository(rdb *redis.Client, log logger.Logger) QuotaRepository {
	return &quotaRepository{rdb: rdb, log: log}
}

func (r *quotaRepository) connKey(addr string) string {
	return fmt.Sprintf(connCountKeyPrefix, addr)
}

func (r *quotaRepository) AcquireConn(ctx context.Context, addr string, max int) (bool, error) {
	key := r.connKey(addr)

	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		r.log.Error("Failed to increment connection counter", "error", err, "addr", addr)
		return false, err
	}
	r.rdb.Expire(ctx, key, connCountTTL)

	if count > int64(max) {
		// Превышение: откатываем инкремент
		if err := r.rdb.Decr(ctx, key).Err(); err != nil {
			r.log.Warn("Failed to roll back connection counter", "error", err, "addr", addr)
		}
		return false, nil
	}

	return true, nil
}

func (r *quotaRepository) ReleaseConn(ctx context.Context, addr string) error {
	key := r.connKey(addr)
	count, err := r.rdb.Decr(ctx, key).Result()
	if err != nil {
		r.log.Error("Failed to decrement connection counter", "error", err, "addr", addr)
		return err
	}
	if count < 0 {
		// Счётчик не должен уходить в минус; защищаемся от рассинхронизации
		r.rdb.Set(ctx, key, 0, connCountTTL)
	}
	return nil
}

func (r *quotaRepository) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.rdb.Get(ctx, key).Int()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		r.log.Error("Failed to check rate limit", "error", err)
		return false, err
	}

	return count < limit, nil
}

func (r *quotaRepository) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		r.log.Error("Failed to increment rate limit", "error", err)
		return 0, err
	}

	if count == 1 {
		r.rdb.Expire(ctx, key, window)
	}

	return count, nil
}
