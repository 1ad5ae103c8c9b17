package rungate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "macadamia:running:"

// defaultClaimTTL caps how long a crashed worker can hold a claim.
const defaultClaimTTL = 30 * time.Minute

// RedisGate shares the running set across workers through Redis.
type RedisGate struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGate creates a gate backed by the given Redis URL.
func NewRedisGate(redisURL string) (*RedisGate, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &RedisGate{
		client: redis.NewClient(opts),
		ttl:    defaultClaimTTL,
	}, nil
}

func (g *RedisGate) key(workflowID string) string {
	return keyPrefix + workflowID
}

func (g *RedisGate) Acquire(ctx context.Context, workflowID string) (bool, error) {
	acquired, err := g.client.SetNX(ctx, g.key(workflowID), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run claim for %s: %w", workflowID, err)
	}

	return acquired, nil
}

func (g *RedisGate) Release(ctx context.Context, workflowID string) error {
	if err := g.client.Del(ctx, g.key(workflowID)).Err(); err != nil {
		return fmt.Errorf("failed to release run claim for %s: %w", workflowID, err)
	}

	return nil
}

func (g *RedisGate) IsRunning(ctx context.Context, workflowID string) (bool, error) {
	count, err := g.client.Exists(ctx, g.key(workflowID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check run claim for %s: %w", workflowID, err)
	}

	return count > 0, nil
}

// Close releases the underlying Redis connection.
func (g *RedisGate) Close() error {
	return g.client.Close()
}
