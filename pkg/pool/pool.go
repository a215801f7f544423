// Package pool implements the node's transaction pool: a FIFO pending queue
// with per-transaction status, result and proof tracking.
package pool

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mpnetwork/mpnode/pkg/log"
	"github.com/mpnetwork/mpnode/pkg/metrics"
	"github.com/mpnetwork/mpnode/pkg/poc"
	"github.com/mpnetwork/mpnode/pkg/types"
)

// ErrTxNotFound is returned when a transaction is unknown to the pool.
var ErrTxNotFound = errors.New("transaction not found")

const defaultDispatchCapacity = 1000

// Config holds pool configuration
type Config struct {
	// DispatchCapacity bounds the handoff channel to the executor pipeline.
	DispatchCapacity int
}

// Pool tracks submitted transactions until their results are stored. The
// pending queue, active map, result map and proof map each have their own
// lock; no lock is ever held across a channel operation.
type Pool struct {
	pendingMu sync.Mutex
	pending   []types.Transaction

	activeMu sync.Mutex
	active   map[uuid.UUID]types.Transaction

	resultsMu sync.Mutex
	results   map[uuid.UUID]types.PoolResponse

	proofsMu sync.Mutex
	proofs   map[uuid.UUID]json.RawMessage

	dispatchCh chan types.Transaction
	takenMu    sync.Mutex
	taken      bool

	logger zerolog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a pool. Start must be called before transactions are
// dispatched.
func New(cfg Config) *Pool {
	capacity := cfg.DispatchCapacity
	if capacity <= 0 {
		capacity = defaultDispatchCapacity
	}
	return &Pool{
		active:     make(map[uuid.UUID]types.Transaction),
		results:    make(map[uuid.UUID]types.PoolResponse),
		proofs:     make(map[uuid.UUID]json.RawMessage),
		dispatchCh: make(chan types.Transaction, capacity),
		logger:     log.WithComponent("pool"),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the background dispatcher that drains the pending queue into
// the handoff channel.
func (p *Pool) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop terminates the dispatcher.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// Submit records a transaction as pending and queues it for dispatch. The
// returned response is the initial pending record.
func (p *Pool) Submit(tx types.Transaction) (types.PoolResponse, error) {
	p.pendingMu.Lock()
	p.pending = append(p.pending, tx)
	depth := len(p.pending)
	p.pendingMu.Unlock()

	p.activeMu.Lock()
	p.active[tx.ID] = tx
	activeCount := len(p.active)
	p.activeMu.Unlock()

	resp := types.PoolResponse{TxID: tx.ID, Status: types.StatusPending}
	p.resultsMu.Lock()
	p.results[tx.ID] = resp
	p.resultsMu.Unlock()

	metrics.TransactionsSubmitted.Inc()
	metrics.PendingQueueDepth.Set(float64(depth))
	metrics.ActiveTransactions.Set(float64(activeCount))

	p.logger.Debug().Str("tx_id", tx.ID.String()).Str("kind", tx.Kind.String()).Msg("Transaction submitted")
	return resp, nil
}

// PendingRx returns the handoff channel carrying dispatched transactions.
// The channel can be taken at most once; subsequent calls return a closed
// dummy channel so callers fail fast instead of silently splitting the
// stream.
func (p *Pool) PendingRx() <-chan types.Transaction {
	p.takenMu.Lock()
	defer p.takenMu.Unlock()
	if p.taken {
		p.logger.Warn().Msg("Pending channel already taken, returning closed dummy")
		dummy := make(chan types.Transaction)
		close(dummy)
		return dummy
	}
	p.taken = true
	return p.dispatchCh
}

// run pops pending transactions, forwards them to the dispatch channel and
// upgrades their status to processing. A transaction that cannot be handed
// off is pushed back for retry.
func (p *Pool) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			for {
				tx, ok := p.popPending()
				if !ok {
					break
				}
				select {
				case p.dispatchCh <- tx:
					p.markProcessing(tx.ID)
				case <-p.stopCh:
					p.pushFront(tx)
					return
				}
			}
		}
	}
}

func (p *Pool) popPending() (types.Transaction, bool) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	if len(p.pending) == 0 {
		return types.Transaction{}, false
	}
	tx := p.pending[0]
	p.pending = p.pending[1:]
	metrics.PendingQueueDepth.Set(float64(len(p.pending)))
	return tx, true
}

func (p *Pool) pushFront(tx types.Transaction) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	p.pending = append([]types.Transaction{tx}, p.pending...)
	metrics.PendingQueueDepth.Set(float64(len(p.pending)))
}

func (p *Pool) markProcessing(txID uuid.UUID) {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()
	resp, ok := p.results[txID]
	if !ok {
		resp = types.PoolResponse{TxID: txID}
	}
	resp.Status = types.StatusProcessing
	p.results[txID] = resp
}

// UpdateResult stores a successful execution output and derives the proof
// from the signed aggregate. The transaction is removed from the active map;
// a missing result entry is created so late results are still queryable.
func (p *Pool) UpdateResult(txID uuid.UUID, output json.RawMessage, aggregate poc.SignedAggregate) error {
	// An empty aggregate means attestation was skipped or failed; the
	// result is stored without a proof.
	var proofJSON json.RawMessage
	if len(aggregate.Validators) > 0 {
		proof, err := poc.FromAggregate(aggregate)
		if err != nil {
			return fmt.Errorf("derive proof for %s: %w", txID, err)
		}
		proofJSON, err = json.Marshal(proof)
		if err != nil {
			return fmt.Errorf("encode proof for %s: %w", txID, err)
		}
	}

	p.resultsMu.Lock()
	p.results[txID] = types.PoolResponse{TxID: txID, Status: types.StatusSuccess, Result: output}
	p.resultsMu.Unlock()

	if proofJSON != nil {
		p.proofsMu.Lock()
		p.proofs[txID] = proofJSON
		p.proofsMu.Unlock()
	}

	p.removeActive(txID)
	metrics.TransactionsTerminal.WithLabelValues(string(types.StatusSuccess)).Inc()
	p.logger.Debug().Str("tx_id", txID.String()).Msg("Result stored")
	return nil
}

// FailResult stores an error output for a transaction. The proof is optional;
// submission failures have none.
func (p *Pool) FailResult(txID uuid.UUID, output json.RawMessage) {
	p.resultsMu.Lock()
	p.results[txID] = types.PoolResponse{TxID: txID, Status: types.StatusError, Result: output}
	p.resultsMu.Unlock()

	p.removeActive(txID)
	metrics.TransactionsTerminal.WithLabelValues(string(types.StatusError)).Inc()
}

func (p *Pool) removeActive(txID uuid.UUID) {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	delete(p.active, txID)
	metrics.ActiveTransactions.Set(float64(len(p.active)))
}

// GetStatus resolves the externally observable status of a transaction. The
// result map is consulted first; transactions known only to the active map
// report pending. Unknown transactions return ErrTxNotFound.
func (p *Pool) GetStatus(txID uuid.UUID) (types.StatusWithProof, error) {
	p.resultsMu.Lock()
	resp, ok := p.results[txID]
	p.resultsMu.Unlock()
	if ok {
		switch resp.Status {
		case types.StatusPending:
			return types.Pending(), nil
		case types.StatusProcessing:
			return types.Processing(), nil
		case types.StatusSuccess:
			return types.Confirmed(resp.Result, 200, nil, p.proofFor(txID)), nil
		case types.StatusError:
			return types.Failed(resp.Result, 500, nil, p.proofFor(txID)), nil
		}
	}

	p.activeMu.Lock()
	_, active := p.active[txID]
	p.activeMu.Unlock()
	if active {
		return types.Pending(), nil
	}
	return types.StatusWithProof{}, fmt.Errorf("%w: %s", ErrTxNotFound, txID)
}

// GetResult returns the stored output and proof for a transaction, without
// status interpretation.
func (p *Pool) GetResult(txID uuid.UUID) (json.RawMessage, json.RawMessage, error) {
	p.resultsMu.Lock()
	resp, ok := p.results[txID]
	p.resultsMu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrTxNotFound, txID)
	}
	return resp.Result, p.proofFor(txID), nil
}

func (p *Pool) proofFor(txID uuid.UUID) json.RawMessage {
	p.proofsMu.Lock()
	defer p.proofsMu.Unlock()
	return p.proofs[txID]
}
