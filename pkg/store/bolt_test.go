package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltStore_Contract(t *testing.T) {
	store, err := NewBoltStore(BoltOptions{Path: filepath.Join(t.TempDir(), "tokens.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	testStoreContract(t, store)
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.db")
	ctx := context.Background()

	store, err := NewBoltStore(BoltOptions{Path: path})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, testRecord()))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(BoltOptions{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, testRecord().RefreshToken, got.RefreshToken)
}

func TestNewBoltStore_EmptyPath(t *testing.T) {
	_, err := NewBoltStore(BoltOptions{})
	assert.Error(t, err)
}
