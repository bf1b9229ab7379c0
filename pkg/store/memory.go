package store

import (
	"context"
	"errors"
	"sync"

	"github.com/go-training/gcal-oauth/pkg/core"
)

var (
	// ErrRecordNotFound is returned when no token record has been saved.
	ErrRecordNotFound = core.ErrRecordNotFound
	// ErrNilRecord is returned when attempting to save a nil record.
	ErrNilRecord = errors.New("token record cannot be nil")
	// ErrEmptyClientID is returned when the record has no client ID.
	ErrEmptyClientID = errors.New("client ID cannot be empty")
	// ErrEmptyAccessToken is returned when the record has no access token.
	ErrEmptyAccessToken = errors.New("access token cannot be empty")
)

// validateRecord checks the fields every backend requires.
func validateRecord(record *core.Record) error {
	if record == nil {
		return ErrNilRecord
	}
	if record.ClientID == "" {
		return ErrEmptyClientID
	}
	if record.AccessToken == "" {
		return ErrEmptyAccessToken
	}
	return nil
}

// MemoryStore implements the core.Store interface in memory.
// It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	record *core.Record
}

// NewMemoryStore creates a new instance of MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored record or ErrRecordNotFound.
func (m *MemoryStore) Load(ctx context.Context) (*core.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.record == nil {
		return nil, ErrRecordNotFound
	}
	cp := *m.record
	return &cp, nil
}

// Save replaces the stored record.
func (m *MemoryStore) Save(ctx context.Context, record *core.Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *record
	m.record = &cp
	return nil
}

// Delete removes the stored record. It returns ErrRecordNotFound if
// nothing is stored.
func (m *MemoryStore) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.record == nil {
		return ErrRecordNotFound
	}
	m.record = nil
	return nil
}
