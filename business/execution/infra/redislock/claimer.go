// Package redislock claims candidates across scanner processes with a Redis
// SET NX lock per candidate id.
package redislock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLua deletes the key only while it still holds our token, so an
// expired claim taken over by another process is never released by us.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const keyPrefix = "arb:claim:"

// Claimer implements the orchestrator's cross-process claim.
type Claimer struct {
	rdb     redis.UniversalClient
	release *redis.Script
	ttl     time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

// Connect dials addr and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Claimer, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return New(rdb, ttl), nil
}

// New wraps an existing client. ttl bounds how long a crashed holder can
// block a candidate.
func New(rdb redis.UniversalClient, ttl time.Duration) *Claimer {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Claimer{
		rdb:     rdb,
		release: redis.NewScript(releaseLua),
		ttl:     ttl,
		tokens:  make(map[string]string),
	}
}

func (c *Claimer) Claim(ctx context.Context, candidateID string) (bool, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, keyPrefix+candidateID, token, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim %s: %w", candidateID, err)
	}
	if !ok {
		return false, nil
	}

	c.mu.Lock()
	c.tokens[candidateID] = token
	c.mu.Unlock()
	return true, nil
}

// Release drops a claim taken by this Claimer. Releasing an unknown id is a
// no-op.
func (c *Claimer) Release(ctx context.Context, candidateID string) error {
	c.mu.Lock()
	token, ok := c.tokens[candidateID]
	delete(c.tokens, candidateID)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	if err := c.release.Run(ctx, c.rdb, []string{keyPrefix + candidateID}, token).Err(); err != nil {
		return fmt.Errorf("redis: release %s: %w", candidateID, err)
	}
	return nil
}

func (c *Claimer) Close() error { return c.rdb.Close() }
