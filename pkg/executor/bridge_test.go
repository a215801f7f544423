package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpnetwork/mpnode/pkg/types"
)

// fakeEngine answers with a canned structured response and records which
// transactions it saw.
type fakeEngine struct {
	mu   sync.Mutex
	seen []uuid.UUID
	fail map[uuid.UUID]bool
}

func (f *fakeEngine) Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error) {
	f.mu.Lock()
	f.seen = append(f.seen, req.TxID)
	shouldFail := f.fail[req.TxID]
	f.mu.Unlock()

	if shouldFail {
		return ExecutionResult{}, fmt.Errorf("engine failure for %s", req.TxID)
	}

	status := 200
	return ExecutionResult{
		Input:  req.Input,
		Output: types.StructuredResponse{StatusCode: &status},
		Metadata: ExecutionMetadata{
			TxID:       req.TxID,
			ExecutedAt: time.Now().UTC(),
			GasUsed:    gasPerExecution,
		},
	}, nil
}

func newRequest() ExecutionRequest {
	agent := types.AgentIDFromName("echo")
	return ExecutionRequest{
		Kind:   types.RequestKind(agent, "greet"),
		Input:  []byte(`{"hi":1}`),
		TxID:   uuid.New(),
		Method: "POST",
	}
}

func TestBridgeCompletesAllRequests(t *testing.T) {
	engine := &fakeEngine{}
	bridge := NewBridge(engine, Config{WorkerThreads: 3})
	results := bridge.Start(context.Background())

	const total = 20
	want := make(map[uuid.UUID]bool, total)
	for i := 0; i < total; i++ {
		req := newRequest()
		want[req.TxID] = true
		require.NoError(t, bridge.Submit(context.Background(), req))
	}

	got := make(map[uuid.UUID]bool, total)
	for i := 0; i < total; i++ {
		select {
		case result := <-results:
			got[result.Metadata.TxID] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d results arrived", len(got), total)
		}
	}
	assert.Equal(t, want, got, "every submission completes exactly once, keyed by tx id")
}

func TestBridgeEngineErrorBecomesEnvelope(t *testing.T) {
	req := newRequest()
	engine := &fakeEngine{fail: map[uuid.UUID]bool{req.TxID: true}}
	bridge := NewBridge(engine, Config{WorkerThreads: 1})
	results := bridge.Start(context.Background())

	require.NoError(t, bridge.Submit(context.Background(), req))

	select {
	case result := <-results:
		assert.Equal(t, req.TxID, result.Metadata.TxID)
		require.NotNil(t, result.Output.StatusCode)
		assert.Equal(t, 500, *result.Output.StatusCode)
		var msg string
		require.NoError(t, json.Unmarshal(result.Output.Output["error"], &msg))
		assert.Contains(t, msg, "engine failure")
	case <-time.After(5 * time.Second):
		t.Fatal("no result for failed execution")
	}
}

func TestBridgeShutdownDrains(t *testing.T) {
	engine := &fakeEngine{}
	bridge := NewBridge(engine, Config{WorkerThreads: 2})
	results := bridge.Start(context.Background())

	const total = 8
	for i := 0; i < total; i++ {
		require.NoError(t, bridge.Submit(context.Background(), newRequest()))
	}
	bridge.Stop()

	// All queued requests drain, then the result channel closes.
	received := 0
	for range results {
		received++
	}
	assert.Equal(t, total, received)
}

func TestBridgeDefaultsToOneWorker(t *testing.T) {
	bridge := NewBridge(&fakeEngine{}, Config{WorkerThreads: 0})
	assert.Equal(t, 1, bridge.cfg.WorkerThreads)
	assert.Equal(t, defaultQueueSize, bridge.cfg.QueueSize)
}
