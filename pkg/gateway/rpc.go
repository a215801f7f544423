package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/mpnetwork/mpnode/pkg/types"
)

// NodeInfo is the get_node_info payload.
type NodeInfo struct {
	NodeID     string            `json:"node_id"`
	IsLeader   bool              `json:"is_leader"`
	LeaderAddr string            `json:"leader_addr,omitempty"`
	Stats      map[string]string `json:"stats,omitempty"`
}

// NodeInfoProvider resolves the current node information for the RPC
// surface.
type NodeInfoProvider func() NodeInfo

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

const (
	rpcParseError     = -32700
	rpcInvalidParams  = -32602
	rpcMethodNotFound = -32601
	rpcInternalError  = -32000
)

type apiRequestParams struct {
	Method  string      `json:"method"`
	Path    string      `json:"path"`
	Headers [][2]string `json:"headers"`
	Body    string      `json:"body"`
}

type submitTransactionParams struct {
	TxType  types.TransactionKind `json:"tx_type"`
	Payload string                `json:"payload"`
	Sender  string                `json:"sender,omitempty"`
}

type contractRequestParams struct {
	ContractID string `json:"contract_id"`
	Endpoint   string `json:"endpoint"`
	Method     string `json:"method,omitempty"`
	Payload    string `json:"payload"`
}

type txStatusParams struct {
	TxID string `json:"tx_id"`
}

type txAck struct {
	TxID   string `json:"tx_id"`
	Status string `json:"status"`
}

type txStatusResult struct {
	TxID   string          `json:"tx_id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Proof  json.RawMessage `json:"proof,omitempty"`
}

// handleRPC serves the JSON-RPC transaction-status API.
func (g *Gateway) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: rpcParseError, Message: "parse error"}})
		return
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	result, rpcErr := g.dispatchRPC(req)
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	writeRPC(w, resp)
}

func (g *Gateway) dispatchRPC(req rpcRequest) (interface{}, *rpcError) {
	switch req.Method {
	case "submitApiRequest":
		var params apiRequestParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, &rpcError{Code: rpcInvalidParams, Message: err.Error()}
		}
		return g.rpcSubmitAPIRequest(params)

	case "getTransactionStatus":
		var params txStatusParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, &rpcError{Code: rpcInvalidParams, Message: err.Error()}
		}
		return g.rpcTransactionStatus(params)

	case "get_node_info":
		return g.nodeInfo(), nil

	case "submit_transaction":
		var params submitTransactionParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, &rpcError{Code: rpcInvalidParams, Message: err.Error()}
		}
		return g.rpcSubmitTransaction(params)

	case "api_request":
		var params contractRequestParams
		if err := unmarshalParams(req.Params, &params); err != nil {
			return nil, &rpcError{Code: rpcInvalidParams, Message: err.Error()}
		}
		return g.rpcContractRequest(params)

	default:
		return nil, &rpcError{Code: rpcMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

// unmarshalParams accepts the params object directly or as a single-element
// positional array.
func unmarshalParams(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing params")
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return err
		}
		if len(list) != 1 {
			return fmt.Errorf("expected a single params object")
		}
		raw = list[0]
	}
	return json.Unmarshal(raw, out)
}

func (g *Gateway) rpcSubmitAPIRequest(params apiRequestParams) (interface{}, *rpcError) {
	kind, ok := types.ParseKind(params.Path)
	if !ok {
		return nil, &rpcError{Code: rpcInvalidParams, Message: fmt.Sprintf("invalid path %q", params.Path)}
	}
	body, err := base64.StdEncoding.DecodeString(params.Body)
	if err != nil {
		return nil, &rpcError{Code: rpcInvalidParams, Message: "body is not valid base64"}
	}

	header := http.Header{}
	for _, pair := range params.Headers {
		header.Add(pair[0], pair[1])
	}

	txID, rpcErr := g.submitAsync(kind, body, "", params.Method, header)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return txAck{TxID: txID.String(), Status: string(types.StatusPending)}, nil
}

func (g *Gateway) rpcSubmitTransaction(params submitTransactionParams) (interface{}, *rpcError) {
	payload, err := base64.StdEncoding.DecodeString(params.Payload)
	if err != nil {
		return nil, &rpcError{Code: rpcInvalidParams, Message: "payload is not valid base64"}
	}
	txID, rpcErr := g.submitAsync(params.TxType, payload, params.Sender, http.MethodPost, nil)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]string{"tx_id": txID.String()}, nil
}

func (g *Gateway) rpcContractRequest(params contractRequestParams) (interface{}, *rpcError) {
	agent, err := types.ParseAgentID(params.ContractID)
	if err != nil {
		return nil, &rpcError{Code: rpcInvalidParams, Message: err.Error()}
	}
	payload, err := base64.StdEncoding.DecodeString(params.Payload)
	if err != nil {
		return nil, &rpcError{Code: rpcInvalidParams, Message: "payload is not valid base64"}
	}
	method := params.Method
	if method == "" {
		method = http.MethodPost
	}

	txID, rpcErr := g.submitAsync(types.RequestKind(agent, params.Endpoint), payload, "", method, nil)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return txAck{TxID: txID.String(), Status: string(types.StatusPending)}, nil
}

// submitAsync records the transaction and dispatches it without waiting for
// completion; callers poll getTransactionStatus.
func (g *Gateway) submitAsync(kind types.TransactionKind, payload []byte, sender, method string, header http.Header) (uuid.UUID, *rpcError) {
	tx := types.NewTransaction(kind, payload, sender, method, header)
	if err := g.dispatcher.Dispatch(tx, nil); err != nil {
		return uuid.Nil, &rpcError{Code: rpcInternalError, Message: err.Error()}
	}
	return tx.ID, nil
}

func (g *Gateway) rpcTransactionStatus(params txStatusParams) (interface{}, *rpcError) {
	txID, err := uuid.Parse(params.TxID)
	if err != nil {
		return nil, &rpcError{Code: rpcInvalidParams, Message: "invalid tx_id"}
	}
	status, err := g.pool.GetStatus(txID)
	if err != nil {
		return nil, &rpcError{Code: rpcInternalError, Message: err.Error()}
	}

	result := txStatusResult{TxID: params.TxID}
	switch status.State {
	case types.StatePending:
		result.Status = string(types.StatusPending)
	case types.StateProcessing:
		result.Status = string(types.StatusProcessing)
	case types.StateConfirmed:
		result.Status = string(types.StatusSuccess)
		result.Result = status.Body
		result.Proof = status.Proof
	case types.StateFailed:
		result.Status = "failed"
		result.Result = status.Body
		result.Proof = status.Proof
	}
	return result, nil
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
