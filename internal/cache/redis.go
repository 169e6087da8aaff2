package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyEntry            = "relay:cache:%s"
	keyEntryScan        = "relay:cache:*"
	invalidateScanBatch = 100
)

// RedisStore implements Store using Redis, the shared tier between
// replicas.
type RedisStore struct {
	client *redis.Client
}

// creates a new Redis-backed cache store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// creates a new Redis-backed cache store from a URL
func NewRedisStoreFromURL(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Name() string {
	return "redis"
}

// retrieves an entry; redis TTL handles expiry, the stored expires_at is
// double-checked for entries written with an explicit timestamp
func (s *RedisStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	key := fmt.Sprintf(keyEntry, fingerprint)

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}

	if entry.Expired(time.Now()) {
		s.client.Del(ctx, key) //nolint:errcheck // best-effort purge
		return nil, nil
	}

	return &entry, nil
}

// stores an entry with its remaining TTL
func (s *RedisStore) Set(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	var ttl time.Duration
	if !entry.ExpiresAt.IsZero() {
		ttl = time.Until(entry.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}

	return s.client.Set(ctx, fmt.Sprintf(keyEntry, entry.Fingerprint), data, ttl).Err()
}

// removes matching entries. A bare fingerprint predicate deletes directly;
// anything else scans the keyspace.
func (s *RedisStore) Invalidate(ctx context.Context, pred Predicate) (int, error) {
	if pred.Empty() {
		return 0, nil
	}

	if pred.BackendID == "" && pred.TaskCategory == "" {
		n, err := s.client.Del(ctx, fmt.Sprintf(keyEntry, pred.Fingerprint)).Result()
		return int(n), err
	}

	count := 0
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyEntryScan, invalidateScanBatch).Result()
		if err != nil {
			return count, err
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}

			if err != nil {
				return count, err
			}

			var entry Entry
			if err := json.Unmarshal(data, &entry); err != nil {
				continue
			}

			if pred.Matches(&entry) {
				if err := s.client.Del(ctx, key).Err(); err != nil {
					return count, err
				}
				count++
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return count, nil
}

// closes the redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
