package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storages(t *testing.T) map[string]Storage {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"file":   fs,
	}
}

func TestStorage_Contract(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Get(ctx, "goldium_wallet_a")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "goldium_wallet_a", []byte(`{"n":1}`)))
			got, err := s.Get(ctx, "goldium_wallet_a")
			require.NoError(t, err)
			assert.JSONEq(t, `{"n":1}`, string(got))

			err = s.Update(ctx, "goldium_wallet_b", func(current []byte) ([]byte, error) {
				assert.Nil(t, current)
				return []byte(`{"n":2}`), nil
			})
			require.NoError(t, err)

			boom := errors.New("boom")
			err = s.Update(ctx, "goldium_wallet_b", func(current []byte) ([]byte, error) {
				assert.JSONEq(t, `{"n":2}`, string(current))
				return nil, boom
			})
			assert.ErrorIs(t, err, boom)
			got, err = s.Get(ctx, "goldium_wallet_b")
			require.NoError(t, err)
			assert.JSONEq(t, `{"n":2}`, string(got), "failed update leaves value untouched")

			require.NoError(t, s.Delete(ctx, "goldium_wallet_b"))
			require.NoError(t, s.Delete(ctx, "goldium_wallet_b"))
			_, err = s.Get(ctx, "goldium_wallet_b")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFileStorage_RejectsUnsafeKeys(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"../escape", "a/b", "", "with space"} {
		assert.Error(t, fs.Put(ctx, key, []byte("{}")), key)
	}
}

func TestFileStorage_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStorage(dir)
	require.NoError(t, err)

	require.NoError(t, fs.Put(context.Background(), WalletKey("abc"), []byte("{}")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "goldium_wallet_abc.json", entries[0].Name())
	_, err = os.Stat(filepath.Join(dir, "goldium_wallet_abc.json"))
	assert.NoError(t, err)
}

func TestFileStorage_Keys(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStorage(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.Put(ctx, WalletKey("b"), []byte("{}")))
	require.NoError(t, fs.Put(ctx, WalletKey("a"), []byte("{}")))
	require.NoError(t, fs.Put(ctx, StakingKey("a"), []byte("{}")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	keys, err := fs.Keys(ctx, "goldium_wallet_")
	require.NoError(t, err)
	assert.Equal(t, []string{WalletKey("a"), WalletKey("b")}, keys)

	addr, ok := AddressFromWalletKey(keys[0])
	assert.True(t, ok)
	assert.Equal(t, "a", addr)
	_, ok = AddressFromWalletKey(StakingKey("a"))
	assert.False(t, ok)
}
