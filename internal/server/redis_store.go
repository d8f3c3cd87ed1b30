package server

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisLoginStore counts login attempts in Redis so the throttle holds
// across panel restarts and replicas.
type redisLoginStore struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func newRedisLoginStore(addr, password string, timeout time.Duration) *redisLoginStore {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{addr},
		Password:     password,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	return &redisLoginStore{client: client, timeout: timeout}
}

func (s *redisLoginStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= int64(limit) {
		return true, 0, nil
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl < 0 {
		return false, window, nil
	}
	return false, ttl, nil
}
