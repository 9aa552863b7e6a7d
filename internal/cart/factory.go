package cart

import (
	"context"
	"strings"
	"time"
)

// NewStore creates a redis-backed store when an address is configured, otherwise in-memory.
func NewStore(ctx context.Context, redisAddr string, ttl time.Duration) (Store, error) {
	if strings.TrimSpace(redisAddr) == "" {
		return NewInMemoryStore(), nil
	}
	return NewRedisStore(ctx, redisAddr, ttl)
}
