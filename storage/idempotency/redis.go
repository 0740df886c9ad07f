// Package idempotency stores wizard-session creation keys so a retried
// create request resolves to the application the first attempt produced.
package idempotency

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/uniroute/uniroute/core"
)

const keyPrefix = "idem:application:"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(conf core.RedisConfig) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:         conf.Address,
			Password:     conf.Password,
			DB:           conf.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}),
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// PutIfAbsent claims key for applicationID. When another request already
// claimed it, the winner's application ID is returned with stored = false.
func (s *RedisStore) PutIfAbsent(ctx context.Context, key, applicationID string, ttl time.Duration) (string, bool, error) {
	stored, err := s.client.SetNX(ctx, keyPrefix+key, applicationID, ttl).Result()
	if err != nil {
		return "", false, errors.Wrap(err, "claiming idempotency key")
	}
	if stored {
		return applicationID, true, nil
	}

	winnerID, err := s.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if err == redis.Nil {
			// the winner's key expired between SetNX and Get; ours is the
			// only live claim now
			return s.PutIfAbsent(ctx, key, applicationID, ttl)
		}
		return "", false, errors.Wrap(err, "reading idempotency key")
	}
	return winnerID, false, nil
}
