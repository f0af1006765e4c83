// Package redisstore backs the webhook replay cache with Redis so multiple
// engine instances share one de-duplication window.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/flowdesk/automation_layer/internal/app/storage"
)

const replayKeyPrefix = "workflow:webhook:replay:"

// ReplayStore implements storage.ReplayStore on a Redis client.
type ReplayStore struct {
	client *redis.Client
}

var _ storage.ReplayStore = (*ReplayStore)(nil)

// NewReplayStore wraps an existing Redis client.
func NewReplayStore(client *redis.Client) *ReplayStore {
	return &ReplayStore{client: client}
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, addr, password string, db int) (*ReplayStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewReplayStore(client), nil
}

// CheckAndInsert uses SET NX PX, which is atomic on the server: exactly one
// concurrent caller for a key wins the insert.
func (s *ReplayStore) CheckAndInsert(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	inserted, err := s.client.SetNX(ctx, replayKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay check: %w", err)
	}
	return !inserted, nil
}

// Close releases the underlying client.
func (s *ReplayStore) Close() error {
	return s.client.Close()
}
