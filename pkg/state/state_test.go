package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpnetwork/mpnode/pkg/types"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	dir := t.TempDir()
	storage, err := Open(Config{
		DBPath:        filepath.Join(dir, "state.db"),
		StateRootPath: filepath.Join(dir, "roots"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestInitialStateRoot(t *testing.T) {
	storage := openTestStorage(t)
	root, err := storage.StateRoot()
	require.NoError(t, err)
	assert.Equal(t, initialRoot, root)
}

func TestApplyDiffInsertAndDelete(t *testing.T) {
	storage := openTestStorage(t)

	diff := NewDiff(initialRoot)
	diff.Insert("users/u1", "alice")
	diff.Insert("users/u2", "bob")
	diff.NewRoot = "root-1"
	require.NoError(t, storage.ApplyDiff(diff))

	keys, err := storage.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"users/u1", "users/u2"}, keys)

	second := NewDiff("root-1")
	second.Delete("users/u1")
	second.Insert("users/u3", "carol")
	second.NewRoot = "root-2"
	require.NoError(t, storage.ApplyDiff(second))

	// The flat key set equals insert-minus-delete.
	keys, err = storage.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"users/u2", "users/u3"}, keys)

	value, ok, err := storage.Get("users/u3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "carol", value)

	_, ok, err = storage.Get("users/u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyDiffUnknownPrevRootIsAtomic(t *testing.T) {
	storage := openTestStorage(t)

	diff := NewDiff("no-such-root")
	diff.Insert("key", "value")
	diff.NewRoot = "next"
	require.Error(t, storage.ApplyDiff(diff))

	// Nothing leaked out of the rejected diff.
	keys, err := storage.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	root, err := storage.StateRoot()
	require.NoError(t, err)
	assert.Equal(t, initialRoot, root)
}

func TestCheckpoint(t *testing.T) {
	storage := openTestStorage(t)
	checkpoint, err := storage.Checkpoint()
	require.NoError(t, err)
	assert.Equal(t, initialRoot, checkpoint.PrevRoot)
	assert.Equal(t, initialRoot, checkpoint.NewRoot)
	assert.Empty(t, checkpoint.Operations)
}

func TestApplyTransaction(t *testing.T) {
	storage := openTestStorage(t)

	agent := types.AgentIDFromName("echo")
	tx := types.NewTransaction(types.RequestKind(agent, "greet"), []byte(`{"hi":1}`), "sender-1", "POST", nil)
	tx.LogIndex = 7

	require.NoError(t, storage.ApplyTransaction(tx))

	var kind, sender string
	err := storage.db.QueryRow("SELECT type, sender FROM transactions WHERE id = ?", tx.ID.String()).Scan(&kind, &sender)
	require.NoError(t, err)
	assert.Equal(t, tx.Kind.String(), kind)
	assert.Equal(t, "sender-1", sender)

	// Replaying the same committed transaction is harmless.
	require.NoError(t, storage.ApplyTransaction(tx))
}
