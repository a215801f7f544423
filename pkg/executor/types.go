package executor

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mpnetwork/mpnode/pkg/poc"
	"github.com/mpnetwork/mpnode/pkg/types"
)

// ExecutionRequest is one unit of work handed to the bridge.
type ExecutionRequest struct {
	Kind   types.TransactionKind
	Input  []byte
	TxID   uuid.UUID
	Method string
	Header http.Header
}

// ExecutionMetadata carries accounting for a completed execution.
type ExecutionMetadata struct {
	TxID       uuid.UUID `json:"tx_id"`
	ExecutedAt time.Time `json:"executed_at"`
	GasUsed    uint64    `json:"gas_used"`
}

// ExecutionResult is the outcome of one execution: the agent's structured
// output plus the echoed input the proof is computed over.
type ExecutionResult struct {
	Input    []byte
	Output   types.StructuredResponse
	Headers  http.Header
	Metadata ExecutionMetadata
}

// ExecutionResponse pairs a result with its signed aggregate once the
// orchestrator has attested it.
type ExecutionResponse struct {
	Result          ExecutionResult
	SignedAggregate poc.SignedAggregate
}
