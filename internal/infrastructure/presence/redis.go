package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"coursehub/internal/domain/service"
)

const defaultPresenceTTL = 24 * time.Hour

// RedisRegistry keeps one set of connection ids per user so that every
// gateway instance shares the same view of who is online. The key expiry
// bounds the damage of an instance dying without cleaning up.
type RedisRegistry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{
		client: client,
		prefix: "presence:",
		ttl:    defaultPresenceTTL,
	}
}

var _ service.PresenceRegistry = (*RedisRegistry)(nil)

func (r *RedisRegistry) key(userID string) string {
	return r.prefix + userID
}

func (r *RedisRegistry) Add(ctx context.Context, userID, connID string) (bool, error) {
	key := r.key(userID)

	var added *redis.IntCmd
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, key, connID)
		card = pipe.SCard(ctx, key)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("presence add %s: %w", userID, err)
	}
	return added.Val() == 1 && card.Val() == 1, nil
}

func (r *RedisRegistry) Remove(ctx context.Context, userID, connID string) (bool, error) {
	key := r.key(userID)

	var removed *redis.IntCmd
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, key, connID)
		card = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("presence remove %s: %w", userID, err)
	}
	return removed.Val() == 1 && card.Val() == 0, nil
}

func (r *RedisRegistry) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.SCard(ctx, r.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("presence lookup %s: %w", userID, err)
	}
	return n > 0, nil
}
