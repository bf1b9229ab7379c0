package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-training/gcal-oauth/pkg/core"
	"github.com/redis/rueidis"
)

// DefaultRedisKey is the key holding the token record.
const DefaultRedisKey = "gcal_oauth:token"

// RedisStore implements the core.Store interface using Redis via rueidis.
type RedisStore struct {
	client rueidis.Client
	key    string
}

// NewRedisStore creates a new instance of RedisStore with the provided rueidis client.
// An empty key uses DefaultRedisKey.
func NewRedisStore(client rueidis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{
		client: client,
		key:    key,
	}
}

// RedisOptions contains configuration for Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// NewRedisStoreFromOptions creates a new RedisStore with simplified options.
func NewRedisStoreFromOptions(opts RedisOptions) (*RedisStore, error) {
	clientOpts := rueidis.ClientOption{
		InitAddress: []string{opts.Addr},
		Password:    opts.Password,
		SelectDB:    opts.DB,
	}
	client, err := rueidis.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return NewRedisStore(client, opts.Key), nil
}

// NewRedisStoreFromClientOption creates a new RedisStore with full rueidis client options.
func NewRedisStoreFromClientOption(opts rueidis.ClientOption, key string) (*RedisStore, error) {
	client, err := rueidis.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return NewRedisStore(client, key), nil
}

// Close closes the Redis client connection.
func (r *RedisStore) Close() error {
	r.client.Close()
	return nil
}

// Load retrieves the token record from the server, uncached.
// It returns ErrRecordNotFound if the key does not exist.
func (r *RedisStore) Load(ctx context.Context) (*core.Record, error) {
	cmd := r.client.B().Get().Key(r.key).Build()
	result, err := r.client.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get token record from redis: %w", err)
	}

	var record core.Record
	if err := json.Unmarshal([]byte(result), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token record: %w", err)
	}
	return &record, nil
}

// Save stores the token record without expiry; the refresh token outlives
// the access token.
func (r *RedisStore) Save(ctx context.Context, record *core.Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal token record: %w", err)
	}

	cmd := r.client.B().Set().Key(r.key).Value(string(data)).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save token record to redis: %w", err)
	}
	return nil
}

// Delete removes the token record. It returns ErrRecordNotFound if the key
// does not exist.
func (r *RedisStore) Delete(ctx context.Context) error {
	cmd := r.client.B().Del().Key(r.key).Build()
	result, err := r.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to delete token record from redis: %w", err)
	}
	if result == 0 {
		return ErrRecordNotFound
	}
	return nil
}
