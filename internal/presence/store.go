package presence

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// onlineTTL bounds how stale a cross-instance online marker may get before
// the next heartbeat refreshes it.
const onlineTTL = 60 * time.Second

// LastSeenStore caches online markers and last-seen timestamps so presence
// reads do not hit the user table.
type LastSeenStore interface {
	Touch(ctx context.Context, userID int) error
	MarkOffline(ctx context.Context, userID int, at time.Time) error
	LastSeen(ctx context.Context, userID int) (time.Time, bool, error)
}

// RedisStore is a go-redis implementation of LastSeenStore.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func onlineKey(userID int) string   { return fmt.Sprintf("presence:online:%d", userID) }
func lastSeenKey(userID int) string { return fmt.Sprintf("presence:last_seen:%d", userID) }

// Touch refreshes the online marker.
func (s *RedisStore) Touch(ctx context.Context, userID int) error {
	return s.client.Set(ctx, onlineKey(userID), "1", onlineTTL).Err()
}

// MarkOffline clears the online marker and records the last-seen time.
func (s *RedisStore) MarkOffline(ctx context.Context, userID int, at time.Time) error {
	if err := s.client.Del(ctx, onlineKey(userID)).Err(); err != nil {
		return err
	}
	return s.client.Set(ctx, lastSeenKey(userID), at.Unix(), 0).Err()
}

// LastSeen returns the cached last-seen time, if any.
func (s *RedisStore) LastSeen(ctx context.Context, userID int) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, lastSeenKey(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(unix, 0), true, nil
}

// NewLastSeenStore returns a redis-backed store, or a noop store when the
// address is empty or the server is unreachable.
func NewLastSeenStore(addr string) LastSeenStore {
	if addr == "" {
		log.Printf("redis disabled, presence cache using noop: empty redis addr")
		return noopStore{}
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("redis disabled, presence cache using noop: %v", err)
		return noopStore{}
	}
	log.Printf("redis connected addr=%s", addr)
	return NewRedisStore(client)
}

type noopStore struct{}

func (noopStore) Touch(ctx context.Context, userID int) error                      { return nil }
func (noopStore) MarkOffline(ctx context.Context, userID int, at time.Time) error  { return nil }
func (noopStore) LastSeen(ctx context.Context, userID int) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
