// Package node wires the pool, consensus log, container environment,
// execution bridge and gateway into one running node, and runs the result
// fan-out that ties them together.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mpnetwork/mpnode/pkg/config"
	"github.com/mpnetwork/mpnode/pkg/consensus"
	"github.com/mpnetwork/mpnode/pkg/container"
	"github.com/mpnetwork/mpnode/pkg/container/cvm"
	"github.com/mpnetwork/mpnode/pkg/container/docker"
	"github.com/mpnetwork/mpnode/pkg/executor"
	"github.com/mpnetwork/mpnode/pkg/gateway"
	"github.com/mpnetwork/mpnode/pkg/log"
	"github.com/mpnetwork/mpnode/pkg/metrics"
	"github.com/mpnetwork/mpnode/pkg/poc"
	"github.com/mpnetwork/mpnode/pkg/pool"
	"github.com/mpnetwork/mpnode/pkg/state"
	"github.com/mpnetwork/mpnode/pkg/types"
)

const (
	propagateCapacity = 1000
	updateRetryDelay  = 100 * time.Millisecond
)

// Node is a running mpnode instance.
type Node struct {
	cfg    config.Config
	logger zerolog.Logger

	pool       *pool.Pool
	engine     *consensus.Engine
	storage    *state.Storage
	env        container.Environment
	attest     container.AttestationClient
	bridge     *executor.Bridge
	gateway    *gateway.Gateway
	validators *poc.ValidatorSet

	// senders holds the one-shot completion channels keyed by transaction
	// ID; the orchestrator owns the send side only. direct tracks
	// transactions already forwarded to the bridge at dispatch time so the
	// pending loop does not execute them a second time.
	sendersMu sync.Mutex
	senders   map[uuid.UUID]chan types.StatusWithProof
	direct    map[uuid.UUID]struct{}

	// propagateCh mirrors execution responses to secondary consumers; not
	// on the critical path.
	propagateCh chan executor.ExecutionResponse

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles a node from configuration.
func New(cfg config.Config) (*Node, error) {
	n := &Node{
		cfg:         cfg,
		logger:      log.WithComponent("node"),
		senders:     make(map[uuid.UUID]chan types.StatusWithProof),
		direct:      make(map[uuid.UUID]struct{}),
		propagateCh: make(chan executor.ExecutionResponse, propagateCapacity),
	}

	// Validator signer set: one key per configured validator, or the
	// reference three-key set when none are configured.
	if len(cfg.Security.Validators) > 0 {
		set, err := poc.NewValidatorSet(cfg.Security.Validators)
		if err != nil {
			return nil, err
		}
		n.validators = set
	} else {
		n.validators = poc.NewMockValidatorSet()
	}

	n.pool = pool.New(pool.Config{DispatchCapacity: cfg.Pool.QueueCapacity})

	n.engine = consensus.New(consensus.Config{
		NodeID:             cfg.Node.ID,
		BindAddr:           cfg.Consensus.BindAddr,
		DataDir:            cfg.Consensus.DataDir,
		Bootstrap:          cfg.Consensus.Bootstrap,
		Peers:              peersFromConfig(cfg.Consensus.Peers),
		HeartbeatInterval:  cfg.Consensus.HeartbeatInterval(),
		ElectionTimeoutMin: cfg.Consensus.ElectionTimeoutMin(),
		ElectionTimeoutMax: cfg.Consensus.ElectionTimeoutMax(),
	})

	storage, err := state.Open(state.Config{
		DBPath:        cfg.State.DBPath,
		StateRootPath: cfg.State.StateRootPath,
	})
	if err != nil {
		return nil, err
	}
	n.storage = storage

	switch cfg.Container.Mode {
	case config.ModeCVM:
		n.env = cvm.Connect(cfg.Container.TeepodHost)
		if cfg.Container.TappdHost != "" {
			n.attest = cvm.NewTappdClient(cfg.Container.TappdHost, nil)
		} else {
			n.attest = cvm.NewSimulatedTappd()
		}
	default:
		backend, err := docker.Connect(cfg.Container.ContainerdSocket)
		if err != nil {
			return nil, err
		}
		n.env = backend
		n.attest = cvm.NewSimulatedTappd()
	}

	n.bridge = executor.NewBridge(executor.NewContainerEngine(n.env), executor.Config{
		WorkerThreads: cfg.Executor.WorkerThreads,
		QueueSize:     cfg.Executor.QueueSize,
	})

	keys, err := gateway.OpenAPIKeyStore(cfg.Gateway.KeyStorePath)
	if err != nil {
		return nil, err
	}

	pocQuote, err := n.buildPoCQuote()
	if err != nil {
		return nil, err
	}
	admin := gateway.NewAdmin(keys, n.attest, pocQuote)
	n.gateway = gateway.New(gateway.Config{
		BindAddr:      cfg.Gateway.BindAddr,
		AdminBindAddr: cfg.Gateway.AdminBindAddr,
		KeyStorePath:  cfg.Gateway.KeyStorePath,
	}, n.pool, n, keys, admin, n.nodeInfo)

	return n, nil
}

func peersFromConfig(peers []config.Peer) []consensus.Peer {
	out := make([]consensus.Peer, 0, len(peers))
	for _, p := range peers {
		out = append(out, consensus.Peer{ID: p.ID, Addr: p.Addr})
	}
	return out
}

// buildPoCQuote captures the attestation blob over the aggregate public key.
func (n *Node) buildPoCQuote() (gateway.PoCQuote, error) {
	aggregateKey, err := n.validators.AggregatePublicKey()
	if err != nil {
		return gateway.PoCQuote{}, fmt.Errorf("failed to aggregate validator keys: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	quote, err := n.attest.TdxQuote(ctx, container.TdxQuoteArgs{
		ReportData:    aggregateKey,
		HashAlgorithm: "keccak256",
	})
	if err != nil {
		return gateway.PoCQuote{}, fmt.Errorf("failed to obtain attestation quote: %w", err)
	}
	return gateway.NewPoCQuote(quote, aggregateKey), nil
}

func (n *Node) nodeInfo() gateway.NodeInfo {
	return gateway.NodeInfo{
		NodeID:     n.cfg.Node.ID,
		IsLeader:   n.engine.IsLeader(),
		LeaderAddr: n.engine.LeaderAddr(),
		Stats:      n.engine.Stats(),
	}
}

// Dispatch records a transaction in the pool and forwards it to the bridge,
// registering the one-shot completion channel when one is supplied. Marking
// the transaction as directly dispatched before the pool submission keeps
// the pending loop from executing it a second time.
func (n *Node) Dispatch(tx types.Transaction, notify chan types.StatusWithProof) error {
	n.sendersMu.Lock()
	n.direct[tx.ID] = struct{}{}
	if notify != nil {
		n.senders[tx.ID] = notify
	}
	n.sendersMu.Unlock()

	if _, err := n.pool.Submit(tx); err != nil {
		n.dropDispatchState(tx.ID)
		return err
	}

	req := executor.ExecutionRequest{
		Kind:   tx.Kind,
		Input:  tx.Payload,
		TxID:   tx.ID,
		Method: tx.Method,
		Header: tx.Header,
	}
	if err := n.bridge.Submit(context.Background(), req); err != nil {
		n.dropDispatchState(tx.ID)
		return err
	}
	return nil
}

func (n *Node) dropDispatchState(txID uuid.UUID) {
	n.sendersMu.Lock()
	defer n.sendersMu.Unlock()
	delete(n.senders, txID)
	delete(n.direct, txID)
}

// takeSender removes and returns the one-shot sender for a transaction.
func (n *Node) takeSender(txID uuid.UUID) chan types.StatusWithProof {
	n.sendersMu.Lock()
	defer n.sendersMu.Unlock()
	sender, ok := n.senders[txID]
	if !ok {
		return nil
	}
	delete(n.senders, txID)
	return sender
}

// Propagation returns the auxiliary execution-response stream for secondary
// consumers.
func (n *Node) Propagation() <-chan executor.ExecutionResponse {
	return n.propagateCh
}

// Start brings up every subsystem and the orchestration pipelines, then
// serves HTTP until the context is cancelled or a listener fails.
func (n *Node) Start(ctx context.Context) error {
	ctx, n.cancel = context.WithCancel(ctx)

	if err := n.engine.Start(); err != nil {
		return err
	}
	n.pool.Start()
	results := n.bridge.Start(ctx)

	n.wg.Add(3)
	go n.runPendingDispatch(ctx)
	go n.runResultIngest(ctx, results)
	go n.runConfirmedApplier(ctx)

	n.logger.Info().Str("node_id", n.cfg.Node.ID).Msg("Node is running")
	return n.gateway.Start()
}

// Stop tears the node down.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.bridge.Stop()
	n.pool.Stop()
	if err := n.engine.Shutdown(); err != nil {
		n.logger.Error().Err(err).Msg("Failed to shut down consensus engine")
	}
	if err := n.storage.Close(); err != nil {
		n.logger.Error().Err(err).Msg("Failed to close state storage")
	}
	n.wg.Wait()
}

// runPendingDispatch forwards pool-dispatched transactions to the bridge and
// submits them to the consensus log for ordering in parallel. The log is off
// the response latency path.
func (n *Node) runPendingDispatch(ctx context.Context) {
	defer n.wg.Done()
	pending := n.pool.PendingRx()
	for {
		select {
		case <-ctx.Done():
			return
		case tx, ok := <-pending:
			if !ok {
				return
			}
			if _, err := n.engine.SubmitTransaction(tx); err != nil {
				n.logger.Error().Err(err).Str("tx_id", tx.ID.String()).Msg("Failed to submit transaction to consensus")
			}

			// Transactions dispatched through the gateway already reached
			// the bridge; only out-of-band submissions are forwarded here.
			if n.takeDirect(tx.ID) {
				continue
			}
			req := executor.ExecutionRequest{
				Kind:   tx.Kind,
				Input:  tx.Payload,
				TxID:   tx.ID,
				Method: tx.Method,
				Header: tx.Header,
			}
			if err := n.bridge.Submit(ctx, req); err != nil {
				n.logger.Error().Err(err).Str("tx_id", tx.ID.String()).Msg("Failed to forward transaction to executor")
			}
		}
	}
}

// takeDirect consumes the direct-dispatch mark for a transaction.
func (n *Node) takeDirect(txID uuid.UUID) bool {
	n.sendersMu.Lock()
	defer n.sendersMu.Unlock()
	_, ok := n.direct[txID]
	if ok {
		delete(n.direct, txID)
	}
	return ok
}

// runResultIngest consumes bridge results: attest, notify the waiting
// ingress first, then persist into the pool, then mirror to secondary
// consumers.
func (n *Node) runResultIngest(ctx context.Context, results <-chan executor.ExecutionResult) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-results:
			if !ok {
				return
			}
			n.ingestResult(result)
		}
	}
}

func (n *Node) ingestResult(result executor.ExecutionResult) {
	txID := result.Metadata.TxID
	outputJSON := result.Output.OutputJSON()

	aggregate, proofJSON := n.attestResult(result, outputJSON)
	response := executor.ExecutionResponse{Result: result, SignedAggregate: aggregate}

	// Active notification precedes the pool update so a waiting ingress
	// never observes a stored result before its one-shot fires.
	if sender := n.takeSender(txID); sender != nil {
		status := 200
		if result.Output.StatusCode != nil {
			status = *result.Output.StatusCode
		}
		var notification types.StatusWithProof
		if status >= 200 && status < 300 {
			notification = types.Confirmed(outputJSON, status, result.Headers, proofJSON)
		} else {
			notification = types.Failed(outputJSON, status, result.Headers, proofJSON)
		}
		select {
		case sender <- notification:
		default:
			// The ingress dropped its receiver; the pool update below still
			// records the result.
			n.logger.Warn().Str("tx_id", txID.String()).Msg("Completion channel abandoned")
		}
	}

	if err := n.pool.UpdateResult(txID, outputJSON, aggregate); err != nil {
		n.logger.Warn().Err(err).Str("tx_id", txID.String()).Msg("Pool update failed, retrying")
		time.Sleep(updateRetryDelay)
		if err := n.pool.UpdateResult(txID, outputJSON, aggregate); err != nil {
			n.logger.Error().Err(err).Str("tx_id", txID.String()).Msg("Pool update failed after retry")
		}
	}

	select {
	case n.propagateCh <- response:
	default:
		// Secondary consumers are best-effort.
	}
}

// attestResult signs the (input, output) pair with the validator set. On
// aggregation failure the result is still delivered, without a proof.
func (n *Node) attestResult(result executor.ExecutionResult, outputJSON json.RawMessage) (poc.SignedAggregate, json.RawMessage) {
	if !n.cfg.Security.EnablePoC {
		return poc.SignedAggregate{}, nil
	}
	aggregate, err := n.validators.GenerateAggregate([]poc.Pair{{Input: result.Input, Output: outputJSON}})
	if err != nil {
		metrics.ProofFailures.Inc()
		n.logger.Error().Err(err).Str("tx_id", result.Metadata.TxID.String()).Msg("Proof aggregation failed")
		return poc.SignedAggregate{}, nil
	}
	proof, err := poc.FromAggregate(aggregate)
	if err != nil {
		metrics.ProofFailures.Inc()
		n.logger.Error().Err(err).Str("tx_id", result.Metadata.TxID.String()).Msg("Proof derivation failed")
		return aggregate, nil
	}
	proofJSON, err := json.Marshal(proof)
	if err != nil {
		return aggregate, nil
	}
	metrics.ProofsGenerated.Inc()
	return aggregate, proofJSON
}

// runConfirmedApplier tails the consensus commit stream and records each
// committed transaction durably, in commit order.
func (n *Node) runConfirmedApplier(ctx context.Context) {
	defer n.wg.Done()
	confirmed := n.engine.ConfirmedRx()
	for {
		select {
		case <-ctx.Done():
			return
		case tx, ok := <-confirmed:
			if !ok {
				return
			}
			if err := n.storage.ApplyTransaction(tx); err != nil {
				n.logger.Error().Err(err).Str("tx_id", tx.ID.String()).Msg("Failed to persist committed transaction")
			}
		}
	}
}
