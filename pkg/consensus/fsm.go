package consensus

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
	"github.com/rs/zerolog"

	"github.com/mpnetwork/mpnode/pkg/metrics"
	"github.com/mpnetwork/mpnode/pkg/types"
)

// logFSM implements the Raft finite state machine for the ordered
// transaction log. Applying a committed entry assigns the transaction its
// log index and publishes it on the confirmed channel exactly once, in
// commit order.
type logFSM struct {
	mu          sync.Mutex
	lastApplied uint64
	confirmedCh chan types.Transaction
	logger      zerolog.Logger
}

func newLogFSM(confirmedCh chan types.Transaction, logger zerolog.Logger) *logFSM {
	return &logFSM{confirmedCh: confirmedCh, logger: logger}
}

// Apply is called by Raft when a log entry is committed.
func (f *logFSM) Apply(l *raft.Log) interface{} {
	var tx types.Transaction
	if err := json.Unmarshal(l.Data, &tx); err != nil {
		return fmt.Errorf("failed to unmarshal transaction: %w", err)
	}

	tx.LogIndex = l.Index

	f.mu.Lock()
	f.lastApplied = l.Index
	f.mu.Unlock()
	metrics.RaftAppliedIndex.Set(float64(l.Index))

	// A full confirmed channel must not stall the raft apply loop; dropped
	// sends are logged and the durable log still holds the entry.
	select {
	case f.confirmedCh <- tx:
	default:
		f.logger.Warn().Str("tx_id", tx.ID.String()).Uint64("log_index", l.Index).
			Msg("Confirmed channel full, dropping notification")
	}

	return types.PoolResponse{TxID: tx.ID, Status: types.StatusSuccess}
}

// Snapshot captures the applied index. The transaction log itself is
// persisted by the Raft log store; the confirmed stream is transient.
func (f *logFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &fsmSnapshot{LastApplied: f.lastApplied}, nil
}

// Restore rebuilds the FSM from a snapshot.
func (f *logFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var snap fsmSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	f.mu.Lock()
	f.lastApplied = snap.LastApplied
	f.mu.Unlock()
	return nil
}

type fsmSnapshot struct {
	LastApplied uint64 `json:"last_applied"`
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s); err != nil {
		sink.Cancel()
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
