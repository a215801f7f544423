// Package consensus provides the crash-fault ordered transaction log on top
// of hashicorp/raft. The leader accepts submissions, replication and
// elections are handled by the library, and every committed entry is
// published once, in commit order, with its log index assigned.
package consensus

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"

	"github.com/mpnetwork/mpnode/pkg/log"
	"github.com/mpnetwork/mpnode/pkg/metrics"
	"github.com/mpnetwork/mpnode/pkg/types"
)

const (
	confirmedCapacity = 1000
	applyTimeout      = 10 * time.Second
)

// Peer identifies another voter in the cluster.
type Peer struct {
	ID   string `yaml:"id" json:"id"`
	Addr string `yaml:"addr" json:"addr"`
}

// Config holds configuration for the consensus engine.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
	// Bootstrap starts a fresh single-node cluster (plus Peers, if any).
	Bootstrap bool
	Peers     []Peer

	HeartbeatInterval  time.Duration
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
}

// Engine is the consensus-ordered log.
type Engine struct {
	cfg    Config
	raft   *raft.Raft
	fsm    *logFSM
	logger zerolog.Logger

	confirmedCh chan types.Transaction
	takenMu     sync.Mutex
	taken       bool
}

// New creates an engine; Start brings up Raft.
func New(cfg Config) *Engine {
	logger := log.WithComponent("consensus")
	confirmedCh := make(chan types.Transaction, confirmedCapacity)
	return &Engine{
		cfg:         cfg,
		fsm:         newLogFSM(confirmedCh, logger),
		logger:      logger,
		confirmedCh: confirmedCh,
	}
}

// Start initialises the Raft node and, when configured, bootstraps the
// cluster.
func (e *Engine) Start() error {
	if err := os.MkdirAll(e.cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(e.cfg.NodeID)
	config.LogOutput = os.Stderr

	// Raft randomises the election timer within [timeout, 2*timeout]; the
	// configured minimum maps to the lower bound of that window.
	if e.cfg.ElectionTimeoutMin > 0 {
		config.HeartbeatTimeout = e.cfg.ElectionTimeoutMin
		config.ElectionTimeout = e.cfg.ElectionTimeoutMin
	}
	if e.cfg.HeartbeatInterval > 0 && e.cfg.HeartbeatInterval <= config.HeartbeatTimeout {
		config.LeaderLeaseTimeout = e.cfg.HeartbeatInterval
	} else {
		config.LeaderLeaseTimeout = config.HeartbeatTimeout / 2
	}
	config.CommitTimeout = 50 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", e.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(e.cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(e.cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	boltStore, err := raftboltdb.NewBoltStore(filepath.Join(e.cfg.DataDir, "raft.db"))
	if err != nil {
		return fmt.Errorf("failed to create bolt store: %w", err)
	}

	r, err := raft.NewRaft(config, e.fsm, boltStore, boltStore, snapshots, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}
	e.raft = r

	if e.cfg.Bootstrap {
		servers := []raft.Server{{
			ID:      raft.ServerID(e.cfg.NodeID),
			Address: transport.LocalAddr(),
		}}
		for _, peer := range e.cfg.Peers {
			servers = append(servers, raft.Server{
				ID:      raft.ServerID(peer.ID),
				Address: raft.ServerAddress(peer.Addr),
			})
		}
		f := r.BootstrapCluster(raft.Configuration{Servers: servers})
		if err := f.Error(); err != nil && err != raft.ErrCantBootstrap {
			return fmt.Errorf("failed to bootstrap cluster: %w", err)
		}
	}

	go e.watchLeadership()

	e.logger.Info().Str("node_id", e.cfg.NodeID).Str("bind_addr", e.cfg.BindAddr).Msg("Consensus engine started")
	return nil
}

func (e *Engine) watchLeadership() {
	for isLeader := range e.raft.LeaderCh() {
		if isLeader {
			metrics.RaftLeader.Set(1)
			e.logger.Info().Msg("Became leader")
		} else {
			metrics.RaftLeader.Set(0)
			e.logger.Info().Msg("Lost leadership")
		}
	}
}

// SubmitTransaction appends a transaction to the replicated log and returns
// a provisional success acknowledgement. The commit outcome is observed on
// the confirmed channel; apply errors are logged, not returned.
func (e *Engine) SubmitTransaction(tx types.Transaction) (types.PoolResponse, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return types.PoolResponse{}, fmt.Errorf("failed to marshal transaction: %w", err)
	}

	future := e.raft.Apply(data, applyTimeout)
	go func() {
		if err := future.Error(); err != nil {
			e.logger.Error().Err(err).Str("tx_id", tx.ID.String()).Msg("Raft apply failed")
		}
	}()

	return types.PoolResponse{TxID: tx.ID, Status: types.StatusSuccess}, nil
}

// ConfirmedRx returns the channel of committed transactions with their log
// indices assigned. Like the pool's pending channel it can be taken once;
// later takes get a closed dummy channel.
func (e *Engine) ConfirmedRx() <-chan types.Transaction {
	e.takenMu.Lock()
	defer e.takenMu.Unlock()
	if e.taken {
		e.logger.Warn().Msg("Confirmed channel already taken, returning closed dummy")
		dummy := make(chan types.Transaction)
		close(dummy)
		return dummy
	}
	e.taken = true
	return e.confirmedCh
}

// IsLeader reports whether this node currently leads the cluster.
func (e *Engine) IsLeader() bool {
	return e.raft != nil && e.raft.State() == raft.Leader
}

// LeaderAddr returns the current leader's address, empty when unknown.
func (e *Engine) LeaderAddr() string {
	if e.raft == nil {
		return ""
	}
	addr, _ := e.raft.LeaderWithID()
	return string(addr)
}

// Stats exposes the underlying Raft statistics.
func (e *Engine) Stats() map[string]string {
	if e.raft == nil {
		return nil
	}
	return e.raft.Stats()
}

// AddVoter adds a voting member to the cluster (leader only).
func (e *Engine) AddVoter(nodeID, address string) error {
	f := e.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := f.Error(); err != nil {
		return fmt.Errorf("failed to add voter %s: %w", nodeID, err)
	}
	return nil
}

// Shutdown stops the Raft node.
func (e *Engine) Shutdown() error {
	if e.raft == nil {
		return nil
	}
	if err := e.raft.Shutdown().Error(); err != nil {
		return fmt.Errorf("failed to shutdown raft: %w", err)
	}
	return nil
}
