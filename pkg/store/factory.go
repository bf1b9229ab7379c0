package store

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-training/gcal-oauth/pkg/core"
)

// StoreType represents the type of store backend.
type StoreType string

const (
	// StoreTypeMemory represents in-memory storage.
	StoreTypeMemory StoreType = "memory"
	// StoreTypeRedis represents Redis storage.
	StoreTypeRedis StoreType = "redis"
	// StoreTypeBolt represents a local bbolt file.
	StoreTypeBolt StoreType = "bolt"
	// StoreTypeKeyring represents the OS keyring.
	StoreTypeKeyring StoreType = "keyring"
)

// Config contains configuration for creating a store.
type Config struct {
	// Type specifies the store type.
	Type StoreType
	// Redis contains Redis-specific configuration.
	Redis RedisOptions
	// Bolt contains bbolt-specific configuration.
	Bolt BoltOptions
	// Keyring contains keyring-specific configuration.
	Keyring KeyringOptions
}

// Factory creates store instances based on configuration.
type Factory struct {
	config Config
}

// NewFactory creates a new store factory with the provided configuration.
func NewFactory(config Config) *Factory {
	return &Factory{
		config: config,
	}
}

// Create creates and returns a new store instance based on the factory configuration.
// Returns an error if the store type is invalid or if store creation fails.
func (f *Factory) Create() (core.Store, error) {
	switch f.config.Type {
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeRedis:
		return NewRedisStoreFromOptions(f.config.Redis)
	case StoreTypeBolt:
		return NewBoltStore(f.config.Bolt)
	case StoreTypeKeyring:
		return NewKeyringStore(f.config.Keyring), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", f.config.Type)
	}
}

// NewStore is a convenience function that creates a store directly from configuration.
// It's equivalent to NewFactory(config).Create().
func NewStore(config Config) (core.Store, error) {
	return NewFactory(config).Create()
}

// ParseStoreType parses a string into a StoreType.
// Returns StoreTypeMemory for invalid inputs.
func ParseStoreType(s string) StoreType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "redis":
		return StoreTypeRedis
	case "bolt":
		return StoreTypeBolt
	case "keyring":
		return StoreTypeKeyring
	default:
		return StoreTypeMemory
	}
}

// String returns the string representation of a StoreType.
func (t StoreType) String() string {
	return string(t)
}

// IsValid returns true if the StoreType is valid.
func (t StoreType) IsValid() bool {
	switch t {
	case StoreTypeMemory, StoreTypeRedis, StoreTypeBolt, StoreTypeKeyring:
		return true
	default:
		return false
	}
}

// Close releases the store's resources if it holds any.
func Close(s core.Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// DefaultConfig returns the default store configuration (memory store).
func DefaultConfig() Config {
	return MemoryConfig()
}

// MemoryConfig creates a memory store configuration.
func MemoryConfig() Config {
	return Config{Type: StoreTypeMemory}
}

// RedisConfig creates a Redis store configuration with the provided options.
func RedisConfig(redisOpts RedisOptions) Config {
	return Config{
		Type:  StoreTypeRedis,
		Redis: redisOpts,
	}
}

// BoltConfig creates a bbolt store configuration for the given file.
func BoltConfig(path string) Config {
	return Config{
		Type: StoreTypeBolt,
		Bolt: BoltOptions{Path: path},
	}
}

// KeyringConfig creates a keyring store configuration.
func KeyringConfig(opts KeyringOptions) Config {
	return Config{
		Type:    StoreTypeKeyring,
		Keyring: opts,
	}
}
