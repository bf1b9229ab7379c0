package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a throwaway Redis and returns its address.
// The container is terminated when the test finishes.
func setupRedisContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Failed to setup Redis container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Skipf("Failed to get Redis container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Skipf("Failed to get Redis container port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port())
}

// setupRedisStore creates a test Redis store backed by a container.
// Skip tests if Docker is not available.
func setupRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	addr := setupRedisContainer(t)
	store, err := NewRedisStoreFromClientOption(rueidis.ClientOption{
		InitAddress: []string{addr},
	}, "gcal_oauth:test")
	if err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}

	ctx := context.Background()
	if err := store.client.Do(ctx, store.client.B().Ping().Build()).Error(); err != nil {
		_ = store.Close()
		t.Skipf("Cannot connect to Redis, skipping test: %v", err)
	}

	t.Cleanup(func() {
		_ = store.client.Do(ctx, store.client.B().Del().Key(store.key).Build()).Error()
		_ = store.Close()
	})
	return store
}

func TestRedisStore_Contract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testStoreContract(t, setupRedisStore(t))
}

func TestRedisStore_DefaultKey(t *testing.T) {
	store := NewRedisStore(nil, "")
	assert.Equal(t, DefaultRedisKey, store.key)
}

func TestRedisStore_SaveValidation(t *testing.T) {
	// validation runs before any command is issued, so no client is needed
	store := NewRedisStore(nil, "")
	assert.ErrorIs(t, store.Save(context.Background(), nil), ErrNilRecord)
}
