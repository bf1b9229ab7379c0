package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-training/gcal-oauth/pkg/core"
	bolt "go.etcd.io/bbolt"
)

var (
	tokenBucket = []byte("oauth_tokens")
	recordKey   = []byte("default")
)

// BoltOptions contains configuration for the bbolt file store.
type BoltOptions struct {
	// Path is the database file. Its directory is created with 0700.
	Path string
	// Timeout bounds how long Open waits for the file lock.
	Timeout time.Duration
}

// BoltStore implements the core.Store interface on a local bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file and its bucket.
func NewBoltStore(opts BoltOptions) (*BoltStore, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("bolt store path cannot be empty")
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create bolt store directory: %w", err)
	}

	db, err := bolt.Open(opts.Path, 0o600, &bolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store %s: %w", opts.Path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tokenBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bolt bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database file.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

// Load reads the token record or returns ErrRecordNotFound.
func (b *BoltStore) Load(ctx context.Context) (*core.Record, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(tokenBucket)
		if bucket == nil {
			return nil
		}
		if v := bucket.Get(recordKey); v != nil {
			// v is only valid inside the transaction.
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read token record from bolt: %w", err)
	}
	if data == nil {
		return nil, ErrRecordNotFound
	}

	var record core.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token record: %w", err)
	}
	return &record, nil
}

// Save writes the token record.
func (b *BoltStore) Save(ctx context.Context, record *core.Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal token record: %w", err)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(tokenBucket)
		if err != nil {
			return err
		}
		return bucket.Put(recordKey, data)
	})
	if err != nil {
		return fmt.Errorf("failed to save token record to bolt: %w", err)
	}
	return nil
}

// Delete removes the token record. It returns ErrRecordNotFound if nothing
// is stored.
func (b *BoltStore) Delete(ctx context.Context) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(tokenBucket)
		if bucket == nil || bucket.Get(recordKey) == nil {
			return ErrRecordNotFound
		}
		return bucket.Delete(recordKey)
	})
}
