package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateWindowRepository keeps fixed-window request counters in Redis.
type RateWindowRepository interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type rateWindowRepository struct {
	client *redis.Client
}

func NewRateWindowRepository(client *redis.Client) RateWindowRepository {
	return &rateWindowRepository{client: client}
}

func (r *rateWindowRepository) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if r.client == nil {
		return 0, 0, errors.New("redis client is nil")
	}
	if key == "" || window <= 0 {
		return 0, 0, errors.New("invalid rate window")
	}

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("increment rate key: %w", err)
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("read rate key ttl: %w", err)
	}

	// A first hit, or a key left without expiry by an interrupted caller.
	if count == 1 || ttl < 0 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("set rate key ttl: %w", err)
		}
		ttl = window
	}

	return count, ttl, nil
}
