package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mpnetwork/mpnode/pkg/container"
	"github.com/mpnetwork/mpnode/pkg/types"
)

// gasPerExecution is the flat gas accounting applied to every execution.
const gasPerExecution = 1000

// Engine executes a single request and returns its result.
type Engine interface {
	Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
}

// ContainerEngine executes requests against a container environment.
type ContainerEngine struct {
	env container.Environment
}

// NewContainerEngine creates an engine over the given environment.
func NewContainerEngine(env container.Environment) *ContainerEngine {
	return &ContainerEngine{env: env}
}

// Execute packages the request as a transaction, runs it through the
// container environment and parses the response envelope.
func (e *ContainerEngine) Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error) {
	tx := types.NewTransaction(req.Kind, req.Input, uuid.New().String(), req.Method, req.Header)

	resultTx, err := e.env.ExecuteTransaction(ctx, tx)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to execute transaction %s: %w", req.TxID, err)
	}

	var output types.StructuredResponse
	if err := json.Unmarshal(resultTx.Payload, &output); err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to parse execution response for %s: %w", req.TxID, err)
	}

	return ExecutionResult{
		Input:   req.Input,
		Output:  output,
		Headers: resultTx.Header,
		Metadata: ExecutionMetadata{
			TxID:       req.TxID,
			ExecutedAt: time.Now().UTC(),
			GasUsed:    gasPerExecution,
		},
	}, nil
}
