package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mpnetwork/mpnode/pkg/container"
	"github.com/mpnetwork/mpnode/pkg/log"
	"github.com/mpnetwork/mpnode/pkg/metrics"
)

// PoCQuote is the attestation blob over the node's aggregate public key,
// captured once at startup.
type PoCQuote struct {
	Quote              string `json:"quote"`
	EventLog           string `json:"event_log"`
	HashAlgorithm      string `json:"hash_algorithm"`
	Prefix             string `json:"prefix"`
	AggregatePublicKey string `json:"aggregate_public_key"`
}

// NewPoCQuote combines a TDX quote with the aggregate public key it covers.
func NewPoCQuote(quote container.TdxQuoteResponse, aggregatePublicKey []byte) PoCQuote {
	return PoCQuote{
		Quote:              quote.Quote,
		EventLog:           quote.EventLog,
		HashAlgorithm:      quote.HashAlgorithm,
		Prefix:             quote.Prefix,
		AggregatePublicKey: "0x" + hex.EncodeToString(aggregatePublicKey),
	}
}

// Admin serves the key-management and attestation endpoints.
type Admin struct {
	keys        *APIKeyStore
	attestation container.AttestationClient
	pocQuote    PoCQuote
	logger      zerolog.Logger
}

// NewAdmin creates the admin interface.
func NewAdmin(keys *APIKeyStore, attestation container.AttestationClient, pocQuote PoCQuote) *Admin {
	return &Admin{
		keys:        keys,
		attestation: attestation,
		pocQuote:    pocQuote,
		logger:      log.WithComponent("admin"),
	}
}

type generateKeyRequest struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

type generateKeyResponse struct {
	APIKey  string `json:"api_key"`
	Address string `json:"address"`
}

type keyInfo struct {
	APIKey    string `json:"api_key"`
	Name      string `json:"name,omitempty"`
	Address   string `json:"address"`
	Nonce     uint64 `json:"nonce"`
	CreatedAt string `json:"created_at"`
}

type listKeysResponse struct {
	Keys []keyInfo `json:"keys"`
}

// Router builds the admin router.
func (a *Admin) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api-keys", a.handleGenerateKey).Methods(http.MethodPost)
	r.HandleFunc("/api-keys", a.handleListKeys).Methods(http.MethodGet)
	r.HandleFunc("/api-keys/{key}", a.handleRevokeKey).Methods(http.MethodDelete)
	r.HandleFunc("/poc-quote", a.handlePoCQuote).Methods(http.MethodGet)
	r.HandleFunc("/node-info", a.handleNodeInfo).Methods(http.MethodGet)
	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (a *Admin) handleGenerateKey(w http.ResponseWriter, r *http.Request) {
	var req generateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	apiKey, err := a.keys.GenerateKey(req.Name, req.Address)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to generate API key")
		writeError(w, http.StatusInternalServerError, "Failed to generate API key")
		return
	}

	writeJSON(w, http.StatusCreated, generateKeyResponse{APIKey: apiKey, Address: req.Address})
}

func (a *Admin) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	apiKey := mux.Vars(r)["key"]
	if err := a.keys.RevokeKey(apiKey); err != nil {
		writeError(w, http.StatusNotFound, "API key not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Admin) handleListKeys(w http.ResponseWriter, r *http.Request) {
	accounts := a.keys.All()
	keys := make([]keyInfo, 0, len(accounts))
	for apiKey, info := range accounts {
		keys = append(keys, keyInfo{
			APIKey:    apiKey,
			Name:      info.Name,
			Address:   info.Address,
			Nonce:     info.Nonce,
			CreatedAt: info.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, listKeysResponse{Keys: keys})
}

func (a *Admin) handlePoCQuote(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.pocQuote)
}

func (a *Admin) handleNodeInfo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	info, err := a.attestation.Info(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Attestation worker unavailable, serving mock info")
		info = container.WorkerInfo{AppID: "mock", InstanceID: "mock", AppName: "mpnode-mock-worker"}
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *Admin) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Admin interface is healthy"))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
