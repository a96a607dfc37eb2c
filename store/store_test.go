package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(ctx, "api_key", "sk-one"))
	v, err := kv.Get(ctx, "api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-one", v)

	require.NoError(t, kv.Set(ctx, "api_key", "sk-two"))
	v, err = kv.Get(ctx, "api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-two", v)

	require.NoError(t, kv.Delete(ctx, "api_key"))
	_, err = kv.Get(ctx, "api_key")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Delete(ctx, "api_key"), "deleting a missing key is not an error")
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemoryKV())
}

func TestSQLiteKV(t *testing.T) {
	kv, err := NewSQLite(filepath.Join(t.TempDir(), "data", "voicechat.db"))
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Ping(context.Background()))
	exerciseKV(t, kv)
}

func TestSQLiteKV_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicechat.db")
	ctx := context.Background()

	kv, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "api_key", "sk-persisted"))
	require.NoError(t, kv.Close())

	kv, err = NewSQLite(path)
	require.NoError(t, err)
	defer kv.Close()

	v, err := kv.Get(ctx, "api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-persisted", v)
}

func TestFileKV(t *testing.T) {
	kv, err := NewFileKV(filepath.Join(t.TempDir(), "kv.json"))
	require.NoError(t, err)
	exerciseKV(t, kv)
}

func TestFileKV_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kv.json")
	ctx := context.Background()

	kv, err := NewFileKV(path)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "api_key", "sk-persisted"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewFileKV(path)
	require.NoError(t, err)
	v, err := reopened.Get(ctx, "api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-persisted", v)
}

func TestFileKV_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileKV(path)
	assert.Error(t, err)
}
