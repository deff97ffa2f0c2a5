package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "tokens")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "tokens", []byte(`{"a":1}`), time.Hour))

	v, ok, err := s.Get(ctx, "tokens")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"a":1}`), v)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreOverwrite(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("old"), 0))
	require.NoError(t, s.Put(ctx, "k", []byte("new"), 0))

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), v)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "tokens")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "tokens", []byte(`{"accessToken":"x"}`), time.Hour))

	v, ok, err := s.Get(ctx, "tokens")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"accessToken":"x"}`), v)

	// Overwrite replaces the record.
	require.NoError(t, s.Put(ctx, "tokens", []byte(`{"accessToken":"y"}`), time.Hour))
	v, ok, err = s.Get(ctx, "tokens")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"accessToken":"y"}`), v)
}

func TestSQLiteStoreExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
