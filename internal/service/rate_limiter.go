package service

import (
	"context"
	"errors"
	"time"

	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/repository"
)

// RateLimiter is a fixed-window counter per caller credential. It never
// waits: a caller over its budget gets a RateLimitError immediately.
type RateLimiter struct {
	store    repository.RateWindowRepository
	requests int
	window   time.Duration
}

func NewRateLimiter(store repository.RateWindowRepository, requests int, window time.Duration) *RateLimiter {
	if requests < 0 {
		requests = 0
	}
	return &RateLimiter{store: store, requests: requests, window: window}
}

// Allow counts one request for key and reports the remaining budget.
func (l *RateLimiter) Allow(ctx context.Context, key string) (int, error) {
	if l.requests == 0 {
		return 0, nil
	}
	if l.store == nil {
		return 0, errors.New("rate limiter store is nil")
	}

	count, ttl, err := l.store.IncrementWindow(ctx, "rate:api:"+key, l.window)
	if err != nil {
		return 0, err
	}
	if count > int64(l.requests) {
		return 0, &common.RateLimitError{RetryAfter: ceilSecond(ttl), Limit: l.requests}
	}
	return l.requests - int(count), nil
}

func (l *RateLimiter) Limit() int {
	return l.requests
}

func ceilSecond(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}
