package gateway

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyStoreLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	store, err := OpenAPIKeyStore(path)
	require.NoError(t, err)

	apiKey, err := store.GenerateKey("ci", "0xabc")
	require.NoError(t, err)

	address, nonce, err := store.Lookup(apiKey)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", address)
	assert.Equal(t, uint64(0), nonce)

	require.NoError(t, store.IncrementNonce(apiKey))
	require.NoError(t, store.IncrementNonce(apiKey))
	_, nonce, err = store.Lookup(apiKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), nonce)

	// The store survives a reload.
	reloaded, err := OpenAPIKeyStore(path)
	require.NoError(t, err)
	address, nonce, err = reloaded.Lookup(apiKey)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", address)
	assert.Equal(t, uint64(2), nonce)

	require.NoError(t, reloaded.RevokeKey(apiKey))
	_, _, err = reloaded.Lookup(apiKey)
	assert.Error(t, err)
}

func TestKeyStoreUnknownKey(t *testing.T) {
	store, err := OpenAPIKeyStore(filepath.Join(t.TempDir(), "keys.json"))
	require.NoError(t, err)

	_, _, err = store.Lookup("missing")
	assert.Error(t, err)
	assert.Error(t, store.IncrementNonce("missing"))
	assert.Error(t, store.RevokeKey("missing"))
}

func TestKeyStoreAll(t *testing.T) {
	store, err := OpenAPIKeyStore(filepath.Join(t.TempDir(), "keys.json"))
	require.NoError(t, err)

	first, err := store.GenerateKey("a", "0x1")
	require.NoError(t, err)
	second, err := store.GenerateKey("b", "0x2")
	require.NoError(t, err)

	all := store.All()
	require.Len(t, all, 2)
	assert.Equal(t, "0x1", all[first].Address)
	assert.Equal(t, "0x2", all[second].Address)
}
