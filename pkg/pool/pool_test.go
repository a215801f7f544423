package pool

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpnetwork/mpnode/pkg/poc"
	"github.com/mpnetwork/mpnode/pkg/types"
)

func newTx(t *testing.T) types.Transaction {
	t.Helper()
	agent := types.AgentIDFromName("echo")
	return types.NewTransaction(types.RequestKind(agent, "greet"), []byte(`{"hi":1}`), "", "POST", nil)
}

func TestSubmitRecordsPending(t *testing.T) {
	p := New(Config{})
	tx := newTx(t)

	resp, err := p.Submit(tx)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, resp.TxID)
	assert.Equal(t, types.StatusPending, resp.Status)

	status, err := p.GetStatus(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatePending, status.State)
}

func TestDispatchUpgradesToProcessing(t *testing.T) {
	p := New(Config{})
	p.Start()
	defer p.Stop()

	rx := p.PendingRx()
	tx := newTx(t)
	_, err := p.Submit(tx)
	require.NoError(t, err)

	select {
	case got := <-rx:
		assert.Equal(t, tx.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("transaction was not dispatched")
	}

	// The status upgrade races the handoff by one loop iteration.
	require.Eventually(t, func() bool {
		status, err := p.GetStatus(tx.ID)
		return err == nil && status.State == types.StateProcessing
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpdateResultStoresProofAndOutput(t *testing.T) {
	p := New(Config{})
	tx := newTx(t)
	_, err := p.Submit(tx)
	require.NoError(t, err)

	output := json.RawMessage(`{"echo":{"hi":1}}`)
	set := poc.NewMockValidatorSet()
	agg, err := set.GenerateAggregate([]poc.Pair{{Input: tx.Payload, Output: output}})
	require.NoError(t, err)

	require.NoError(t, p.UpdateResult(tx.ID, output, agg))

	status, err := p.GetStatus(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateConfirmed, status.State)
	assert.Equal(t, 200, status.HTTPStatus)
	assert.Equal(t, output, status.Body)
	require.NotEmpty(t, status.Proof)

	var proof poc.PoC
	require.NoError(t, json.Unmarshal(status.Proof, &proof))
	ok, err := proof.Verify()
	require.NoError(t, err)
	assert.True(t, ok)

	// get_result returns the output bytes untouched.
	result, proofJSON, err := p.GetResult(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte(output), []byte(result))
	assert.Equal(t, status.Proof, proofJSON)
}

func TestUpdateResultWithoutProof(t *testing.T) {
	p := New(Config{})
	tx := newTx(t)
	_, err := p.Submit(tx)
	require.NoError(t, err)

	output := json.RawMessage(`{"ok":true}`)
	require.NoError(t, p.UpdateResult(tx.ID, output, poc.SignedAggregate{}))

	result, proofJSON, err := p.GetResult(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, output, result)
	assert.Nil(t, proofJSON)
}

func TestUpdateResultCreatesMissingEntry(t *testing.T) {
	p := New(Config{})
	txID := uuid.New()

	require.NoError(t, p.UpdateResult(txID, json.RawMessage(`{}`), poc.SignedAggregate{}))
	status, err := p.GetStatus(txID)
	require.NoError(t, err)
	assert.Equal(t, types.StateConfirmed, status.State)
}

func TestFailResult(t *testing.T) {
	p := New(Config{})
	tx := newTx(t)
	_, err := p.Submit(tx)
	require.NoError(t, err)

	p.FailResult(tx.ID, json.RawMessage(`{"error":"boom"}`))

	status, err := p.GetStatus(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateFailed, status.State)
	assert.Equal(t, 500, status.HTTPStatus)
}

func TestGetStatusUnknownTx(t *testing.T) {
	p := New(Config{})
	_, err := p.GetStatus(uuid.New())
	assert.ErrorIs(t, err, ErrTxNotFound)

	_, _, err = p.GetResult(uuid.New())
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestSecondPendingRxTake(t *testing.T) {
	p := New(Config{})
	first := p.PendingRx()
	require.NotNil(t, first)

	// The second take must not panic; it returns a closed channel.
	second := p.PendingRx()
	_, open := <-second
	assert.False(t, open)
}

func TestTerminalAccounting(t *testing.T) {
	p := New(Config{})
	p.Start()
	defer p.Stop()
	rx := p.PendingRx()

	const total = 5
	ids := make([]uuid.UUID, 0, total)
	for i := 0; i < total; i++ {
		tx := newTx(t)
		_, err := p.Submit(tx)
		require.NoError(t, err)
		ids = append(ids, tx.ID)
	}

	for i := 0; i < total; i++ {
		select {
		case <-rx:
		case <-time.After(2 * time.Second):
			t.Fatal("dispatch stalled")
		}
	}

	for i, id := range ids {
		if i%2 == 0 {
			require.NoError(t, p.UpdateResult(id, json.RawMessage(`{}`), poc.SignedAggregate{}))
		} else {
			p.FailResult(id, json.RawMessage(`{"error":"x"}`))
		}
	}

	confirmed, failed := 0, 0
	for _, id := range ids {
		status, err := p.GetStatus(id)
		require.NoError(t, err)
		switch status.State {
		case types.StateConfirmed:
			confirmed++
		case types.StateFailed:
			failed++
		default:
			t.Fatalf("transaction %s is not terminal: %s", id, status.State)
		}
	}
	assert.Equal(t, total, confirmed+failed)
}
