package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpnetwork/mpnode/pkg/container"
	"github.com/mpnetwork/mpnode/pkg/container/cvm"
)

func newTestAdmin(t *testing.T) *Admin {
	t.Helper()
	keys, err := OpenAPIKeyStore(filepath.Join(t.TempDir(), "keys.json"))
	require.NoError(t, err)
	quote := NewPoCQuote(container.TdxQuoteResponse{
		Quote:         "deadbeef",
		HashAlgorithm: "keccak256",
	}, []byte{0x01, 0x02})
	return NewAdmin(keys, cvm.NewSimulatedTappd(), quote)
}

func TestAdminKeyLifecycle(t *testing.T) {
	admin := newTestAdmin(t)
	router := admin.Router()

	// Create.
	body, _ := json.Marshal(map[string]string{"name": "ci", "address": "0xabc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api-keys", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created generateKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.APIKey)
	assert.Equal(t, "0xabc", created.Address)

	// List.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api-keys", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed listKeysResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Keys, 1)
	assert.Equal(t, created.APIKey, listed.Keys[0].APIKey)

	// Revoke.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api-keys/"+created.APIKey, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Revoking again is a 404.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api-keys/"+created.APIKey, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRejectsMissingAddress(t *testing.T) {
	admin := newTestAdmin(t)
	rec := httptest.NewRecorder()
	admin.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api-keys", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminPoCQuote(t *testing.T) {
	admin := newTestAdmin(t)
	rec := httptest.NewRecorder()
	admin.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/poc-quote", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var quote PoCQuote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	assert.Equal(t, "deadbeef", quote.Quote)
	assert.Equal(t, "0x0102", quote.AggregatePublicKey)
}

func TestAdminNodeInfoAndHealth(t *testing.T) {
	admin := newTestAdmin(t)

	rec := httptest.NewRecorder()
	admin.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/node-info", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info container.WorkerInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.NotEmpty(t, info.AppName)

	rec = httptest.NewRecorder()
	admin.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
