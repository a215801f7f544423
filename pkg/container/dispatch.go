package container

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mpnetwork/mpnode/pkg/log"
	"github.com/mpnetwork/mpnode/pkg/types"
)

// Execute implements the shared dispatch table over an Environment. The
// response — agent output or management result — is serialised back into a
// transaction; backend and parse failures become a 500 envelope rather than
// an error so every outcome flows through the same result path.
func Execute(ctx context.Context, env Environment, client *http.Client, tx types.Transaction) (types.Transaction, error) {
	if client == nil {
		client = http.DefaultClient
	}
	logger := log.WithComponent("container")

	switch {
	case tx.Kind.IsRequest():
		detail, err := env.GetContainer(ctx, tx.Kind.Agent.UUID())
		if err != nil {
			return internalError(tx, err.Error()), nil
		}
		if detail.Info.Status.State != StateRunning {
			return internalError(tx, ErrNotRunning.Error()), nil
		}
		resp, err := forwardRequest(ctx, client, detail.Info.Address, tx)
		if err != nil {
			logger.Error().Err(err).Str("tx_id", tx.ID.String()).Msg("Failed to forward request to agent")
			return internalError(tx, err.Error()), nil
		}
		return wrapAgentResponse(tx, resp), nil

	case tx.Kind.Verb == types.VerbCreateContainer:
		var req CreateVMRequest
		if err := json.Unmarshal(tx.Payload, &req); err != nil {
			return internalError(tx, err.Error()), nil
		}
		if req.Agent == nil {
			return internalError(tx, "external hosting is not supported"), nil
		}
		info, err := env.CreateContainer(ctx, *req.Agent)
		if err != nil {
			return internalError(tx, err.Error()), nil
		}
		return internalResponse(tx, info), nil

	case tx.Kind.Verb == types.VerbStartContainer:
		req, err := parseRequestID(tx.Payload)
		if err != nil {
			return internalError(tx, err.Error()), nil
		}
		info, err := env.StartContainer(ctx, req.UUID())
		if err != nil {
			return internalError(tx, err.Error()), nil
		}
		return internalResponse(tx, info), nil

	case tx.Kind.Verb == types.VerbStopContainer:
		req, err := parseRequestID(tx.Payload)
		if err != nil {
			return internalError(tx, err.Error()), nil
		}
		if err := env.StopContainer(ctx, req.UUID()); err != nil {
			return internalError(tx, err.Error()), nil
		}
		return internalResponse(tx, fmt.Sprintf("Container %s stopped successfully", req.UUID())), nil

	case tx.Kind.Verb == types.VerbRemoveContainer:
		req, err := parseRequestID(tx.Payload)
		if err != nil {
			return internalError(tx, err.Error()), nil
		}
		if err := env.RemoveContainer(ctx, req.UUID()); err != nil {
			return internalError(tx, err.Error()), nil
		}
		return internalResponse(tx, fmt.Sprintf("Container %s removed successfully", req.UUID())), nil

	case tx.Kind.Verb == types.VerbListContainers:
		containers, err := env.GetRunningContainers(ctx)
		if err != nil {
			return internalError(tx, err.Error()), nil
		}
		return internalResponse(tx, containers), nil

	default:
		// State changes and scheduled tasks are ordered through the log but
		// have no container-side effect here.
		logger.Warn().Str("tx_id", tx.ID.String()).Str("kind", tx.Kind.String()).Msg("Unsupported transaction kind, passing through")
		return tx, nil
	}
}

func parseRequestID(payload []byte) (RequestID, error) {
	var req RequestID
	if err := json.Unmarshal(payload, &req); err != nil {
		return RequestID{}, fmt.Errorf("failed to parse request id: %w", err)
	}
	return req, nil
}

// agentResponse captures the forwarded HTTP exchange.
type agentResponse struct {
	status  int
	header  http.Header
	body    []byte
	decoded types.StructuredResponse
	isJSON  bool
}

func forwardRequest(ctx context.Context, client *http.Client, address string, tx types.Transaction) (agentResponse, error) {
	url := fmt.Sprintf("http://%s/%s", address, tx.Kind.Subpath)
	req, err := http.NewRequestWithContext(ctx, tx.Method, url, bytes.NewReader(tx.Payload))
	if err != nil {
		return agentResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	for key, values := range tx.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return agentResponse{}, fmt.Errorf("failed to reach agent: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return agentResponse{}, fmt.Errorf("failed to read agent response: %w", err)
	}

	out := agentResponse{status: resp.StatusCode, header: resp.Header.Clone(), body: body}
	var decoded types.StructuredResponse
	if err := json.Unmarshal(body, &decoded); err == nil {
		out.decoded = decoded
		out.isJSON = true
	}
	return out, nil
}

// wrapAgentResponse serialises the agent's answer back into a transaction.
// Structured bodies keep their exact status code; non-object bodies are
// wrapped raw under the transport status.
func wrapAgentResponse(tx types.Transaction, resp agentResponse) types.Transaction {
	var payload []byte
	if resp.isJSON {
		decoded := resp.decoded
		if decoded.StatusCode == nil {
			status := resp.status
			decoded.StatusCode = &status
		}
		payload, _ = json.Marshal(decoded)
	} else {
		raw, _ := json.Marshal(string(resp.body))
		payload, _ = json.Marshal(map[string]json.RawMessage{
			"status_code": json.RawMessage(fmt.Sprintf("%d", resp.status)),
			"output":      raw,
		})
	}
	return types.NewTransaction(tx.Kind, payload, "", tx.Method, resp.header)
}

func internalError(tx types.Transaction, reason string) types.Transaction {
	payload, _ := json.Marshal(map[string]interface{}{
		"status_code": 500,
		"error":       reason,
	})
	return types.NewTransaction(tx.Kind, payload, "", tx.Method, nil)
}

func internalResponse(tx types.Transaction, result interface{}) types.Transaction {
	payload, _ := json.Marshal(map[string]interface{}{
		"status_code": 200,
		"result":      result,
	})
	return types.NewTransaction(tx.Kind, payload, "", tx.Method, nil)
}
