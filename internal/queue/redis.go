package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the job snapshot as one JSON list under a single key.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ SnapshotStore = (*RedisStore)(nil)

// OpenRedis connects to the server at url (redis://host:port/db) and pings it.
func OpenRedis(ctx context.Context, url, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client, key), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "kiln:jobs"
	}
	return &RedisStore{client: client, key: key}
}

// Load returns the stored jobs, or none when the key is absent.
func (s *RedisStore) Load(ctx context.Context) ([]Job, error) {
	data, err := s.client.Get(ensureContext(ctx), s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Save overwrites the key with jobs encoded as JSON.
func (s *RedisStore) Save(ctx context.Context, jobs []Job) error {
	data, err := encodeSnapshot(jobs)
	if err != nil {
		return err
	}
	if err := s.client.Set(ensureContext(ctx), s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func encodeSnapshot(jobs []Job) ([]byte, error) {
	if jobs == nil {
		jobs = []Job{}
	}
	data, err := json.Marshal(jobs)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) ([]Job, error) {
	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return jobs, nil
}
