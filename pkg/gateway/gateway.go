// Package gateway serves the node's HTTP surfaces: the synchronous ingress
// that turns any request into a transaction and awaits its proof-carrying
// result, the admin interface, and the JSON-RPC transaction-status API.
package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mpnetwork/mpnode/pkg/log"
	"github.com/mpnetwork/mpnode/pkg/metrics"
	"github.com/mpnetwork/mpnode/pkg/pool"
	"github.com/mpnetwork/mpnode/pkg/types"
)

// pocHeader carries the serialised proof on successful responses.
const pocHeader = "X-PoC"

// Dispatcher hands a transaction to the orchestrator together with the
// one-shot completion channel the ingress awaits. The orchestrator records
// the transaction in the pool, forwards it to the execution bridge and owns
// the send side of the channel, keyed by transaction ID, signalling exactly
// once. A nil channel makes the submission observable only through status
// polling.
type Dispatcher interface {
	Dispatch(tx types.Transaction, notify chan types.StatusWithProof) error
}

// Config holds gateway configuration
type Config struct {
	BindAddr      string
	AdminBindAddr string
	KeyStorePath  string
}

// Gateway is the HTTP ingress.
type Gateway struct {
	cfg        Config
	pool       *pool.Pool
	dispatcher Dispatcher
	keys       *APIKeyStore
	admin      *Admin
	nodeInfo   NodeInfoProvider
	logger     zerolog.Logger
}

// New creates the gateway.
func New(cfg Config, txPool *pool.Pool, dispatcher Dispatcher, keys *APIKeyStore, admin *Admin, nodeInfo NodeInfoProvider) *Gateway {
	if nodeInfo == nil {
		nodeInfo = func() NodeInfo { return NodeInfo{} }
	}
	return &Gateway{
		cfg:        cfg,
		pool:       txPool,
		dispatcher: dispatcher,
		keys:       keys,
		admin:      admin,
		nodeInfo:   nodeInfo,
		logger:     log.WithComponent("gateway"),
	}
}

// Router builds the ingress router: the RPC endpoint plus the catch-all
// transaction handler.
func (g *Gateway) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/rpc", g.handleRPC).Methods(http.MethodPost)
	r.PathPrefix("/").HandlerFunc(g.handleTransaction)
	return r
}

// Start serves the ingress and admin listeners until either fails.
func (g *Gateway) Start() error {
	errCh := make(chan error, 2)
	go func() {
		g.logger.Info().Str("addr", g.cfg.BindAddr).Msg("Ingress listening")
		errCh <- http.ListenAndServe(g.cfg.BindAddr, g.Router())
	}()
	go func() {
		g.logger.Info().Str("addr", g.cfg.AdminBindAddr).Msg("Admin interface listening")
		errCh <- http.ListenAndServe(g.cfg.AdminBindAddr, g.admin.Router())
	}()
	return <-errCh
}

// handleTransaction is the synchronous ingress path: any method, any path.
func (g *Gateway) handleTransaction(w http.ResponseWriter, r *http.Request) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.IngressRequestDuration, r.Method)

	kind, ok := types.ParseKind(r.URL.Path)
	if !ok {
		g.countRequest(r.Method, http.StatusInternalServerError)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to parse request path: %s", r.URL.Path))
		return
	}

	var sender string
	if !kind.IsRequest() {
		apiKey, ok := extractAPIKey(r)
		if !ok {
			g.countRequest(r.Method, http.StatusUnauthorized)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		address, nonce, err := g.keys.Lookup(apiKey)
		if err != nil {
			g.countRequest(r.Method, http.StatusUnauthorized)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		g.logger.Debug().Str("address", address).Uint64("nonce", nonce).Msg("Authenticated management request")
		if err := g.keys.IncrementNonce(apiKey); err != nil {
			g.logger.Error().Err(err).Msg("Failed to increment nonce")
		}
		sender = address
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		g.countRequest(r.Method, http.StatusInternalServerError)
		writeError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}

	tx := types.NewTransaction(kind, body, sender, r.Method, r.Header.Clone())

	// The completion channel is buffered so the orchestrator's single send
	// never blocks on a departed client.
	notify := make(chan types.StatusWithProof, 1)

	if err := g.dispatcher.Dispatch(tx, notify); err != nil {
		g.countRequest(r.Method, http.StatusInternalServerError)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("transaction submission failed: %v", err))
		return
	}

	g.logger.Debug().Str("tx_id", tx.ID.String()).Str("kind", kind.String()).Msg("Awaiting execution result")

	// The synchronous path has no internal timeout; an upstream HTTP
	// timeout bounds the wait.
	status := <-notify
	g.writeStatus(w, r.Method, status)
}

// writeStatus maps a transaction status to the HTTP response.
func (g *Gateway) writeStatus(w http.ResponseWriter, method string, status types.StatusWithProof) {
	switch status.State {
	case types.StateConfirmed, types.StateFailed:
		for key, values := range status.Headers {
			if strings.EqualFold(key, "Content-Length") {
				continue
			}
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		if len(status.Proof) > 0 {
			w.Header().Set(pocHeader, string(status.Proof))
		}
		g.countRequest(method, status.HTTPStatus)
		w.WriteHeader(status.HTTPStatus)
		w.Write(status.Body)
	default:
		// Non-terminal statuses only surface on asynchronous queries.
		g.countRequest(method, http.StatusAccepted)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": string(status.State)})
	}
}

func (g *Gateway) countRequest(method string, status int) {
	metrics.IngressRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// extractAPIKey pulls the key from Authorization: Bearer or X-API-Key.
// Query-string keys are never accepted.
func extractAPIKey(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer "), true
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, true
	}
	return "", false
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
