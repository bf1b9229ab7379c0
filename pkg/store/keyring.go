package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-training/gcal-oauth/pkg/core"
	"github.com/zalando/go-keyring"
)

const (
	// DefaultKeyringService is the OS keyring service name.
	DefaultKeyringService = "gcal-oauth"
	// DefaultKeyringUser is the account name the record is stored under.
	DefaultKeyringUser = "default"
)

// KeyringOptions contains configuration for the OS keyring store.
type KeyringOptions struct {
	Service string
	User    string
}

// KeyringStore implements the core.Store interface on the OS keyring
// (Keychain, Secret Service, WinCred).
type KeyringStore struct {
	service string
	user    string
}

// NewKeyringStore creates a keyring store, filling empty options with defaults.
func NewKeyringStore(opts KeyringOptions) *KeyringStore {
	if opts.Service == "" {
		opts.Service = DefaultKeyringService
	}
	if opts.User == "" {
		opts.User = DefaultKeyringUser
	}
	return &KeyringStore{
		service: opts.Service,
		user:    opts.User,
	}
}

// Load reads the token record or returns ErrRecordNotFound.
func (k *KeyringStore) Load(ctx context.Context) (*core.Record, error) {
	secret, err := keyring.Get(k.service, k.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get token record from keyring: %w", err)
	}

	var record core.Record
	if err := json.Unmarshal([]byte(secret), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token record: %w", err)
	}
	return &record, nil
}

// Save writes the token record as a JSON secret.
func (k *KeyringStore) Save(ctx context.Context, record *core.Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal token record: %w", err)
	}

	if err := keyring.Set(k.service, k.user, string(data)); err != nil {
		return fmt.Errorf("failed to store token record in keyring: %w", err)
	}
	return nil
}

// Delete removes the token record. It returns ErrRecordNotFound if nothing
// is stored.
func (k *KeyringStore) Delete(ctx context.Context) error {
	if err := keyring.Delete(k.service, k.user); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("failed to delete token record from keyring: %w", err)
	}
	return nil
}
