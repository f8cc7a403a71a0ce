package securestore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"myfinances/internal/securestore"
	"myfinances/internal/storage"
	"myfinances/internal/storage/memory"
)

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip does not store plain text", func(t *testing.T) {
		inner := memory.New()
		s, err := securestore.Open(ctx, inner, "a long enough passphrase", "")
		require.NoError(t, err)
		require.NoError(t, s.Set(ctx, "session.token", []byte("abc")))

		raw, err := inner.Get(ctx, "session.token")
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "abc")

		got, err := s.Get(ctx, "session.token")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), got)
	})
	t.Run("same passphrase reopens values", func(t *testing.T) {
		inner := memory.New()
		s1, err := securestore.Open(ctx, inner, "a long enough passphrase", "")
		require.NoError(t, err)
		require.NoError(t, s1.Set(ctx, "k", []byte("v")))

		s2, err := securestore.Open(ctx, inner, "a long enough passphrase", "")
		require.NoError(t, err)
		got, err := s2.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)
	})
	t.Run("wrong key reports corrupt value", func(t *testing.T) {
		inner := memory.New()
		s1, err := securestore.Open(ctx, inner, "a long enough passphrase", "")
		require.NoError(t, err)
		require.NoError(t, s1.Set(ctx, "k", []byte("v")))

		s2, err := securestore.Open(ctx, inner, "another long passphrase", "")
		require.NoError(t, err)
		_, err = s2.Get(ctx, "k")
		assert.ErrorIs(t, err, securestore.ErrCorrupt)
	})
	t.Run("garbage reports corrupt value", func(t *testing.T) {
		inner := memory.New()
		require.NoError(t, inner.Set(ctx, "k", []byte("not sealed")))
		s := securestore.New(inner, [32]byte{1})
		_, err := s.Get(ctx, "k")
		assert.ErrorIs(t, err, securestore.ErrCorrupt)
	})
	t.Run("missing key passes through", func(t *testing.T) {
		s := securestore.New(memory.New(), [32]byte{1})
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
	t.Run("salt key is reserved", func(t *testing.T) {
		s := securestore.New(memory.New(), [32]byte{1})
		assert.Error(t, s.Set(ctx, "securestore.salt", []byte("x")))
	})
}

func TestLoadOrGenerateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "secure.key")

	k1, err := securestore.LoadOrGenerateKey(path)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	k2, err := securestore.LoadOrGenerateKey(path)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, [32]byte{}, k1)

	require.NoError(t, os.WriteFile(path, []byte("short"), 0600))
	_, err = securestore.LoadOrGenerateKey(path)
	assert.Error(t, err)
}
