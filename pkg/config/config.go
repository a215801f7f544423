// Package config loads node configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ContainerMode selects the container backend.
type ContainerMode string

const (
	ModeDocker ContainerMode = "docker"
	ModeCVM    ContainerMode = "cvm"
)

// NodeSettings identifies this node.
type NodeSettings struct {
	ID       string `yaml:"id"`
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// ConsensusSettings configures the replicated log.
type ConsensusSettings struct {
	DataDir              string `yaml:"data_dir"`
	BindAddr             string `yaml:"bind_addr"`
	Bootstrap            bool   `yaml:"bootstrap"`
	HeartbeatIntervalMS  int    `yaml:"heartbeat_interval_ms"`
	ElectionTimeoutMinMS int    `yaml:"election_timeout_min_ms"`
	ElectionTimeoutMaxMS int    `yaml:"election_timeout_max_ms"`
	Peers                []Peer `yaml:"peers,omitempty"`
}

// Peer is another cluster member.
type Peer struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
}

// HeartbeatInterval returns the configured heartbeat cadence.
func (c ConsensusSettings) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
}

// ElectionTimeoutMin returns the election timeout lower bound.
func (c ConsensusSettings) ElectionTimeoutMin() time.Duration {
	return time.Duration(c.ElectionTimeoutMinMS) * time.Millisecond
}

// ElectionTimeoutMax returns the election timeout upper bound.
func (c ConsensusSettings) ElectionTimeoutMax() time.Duration {
	return time.Duration(c.ElectionTimeoutMaxMS) * time.Millisecond
}

// PoolSettings configures the transaction pool.
type PoolSettings struct {
	QueueCapacity int `yaml:"queue_capacity"`
}

// ExecutorSettings configures the execution bridge.
type ExecutorSettings struct {
	WorkerThreads int `yaml:"worker_threads"`
	QueueSize     int `yaml:"queue_size"`
}

// ContainerSettings configures the container backend.
type ContainerSettings struct {
	Mode             ContainerMode `yaml:"mode"`
	ContainerdSocket string        `yaml:"containerd_socket,omitempty"`
	TeepodHost       string        `yaml:"teepod_host,omitempty"`
	TappdHost        string        `yaml:"tappd_host,omitempty"`
}

// StateSettings configures the state database.
type StateSettings struct {
	DBPath        string `yaml:"db_path"`
	StateRootPath string `yaml:"state_root_path"`
}

// GatewaySettings configures the HTTP surfaces.
type GatewaySettings struct {
	BindAddr      string `yaml:"bind_addr"`
	AdminBindAddr string `yaml:"admin_bind_addr"`
	KeyStorePath  string `yaml:"key_store_path"`
}

// SecuritySettings toggles attestation behaviour.
type SecuritySettings struct {
	EnablePoC  bool     `yaml:"enable_poc"`
	Validators []string `yaml:"validators,omitempty"`
}

// Config is the full node configuration.
type Config struct {
	Node      NodeSettings      `yaml:"node"`
	Consensus ConsensusSettings `yaml:"consensus"`
	Pool      PoolSettings      `yaml:"pool"`
	Executor  ExecutorSettings  `yaml:"executor"`
	Container ContainerSettings `yaml:"container"`
	State     StateSettings     `yaml:"state"`
	Gateway   GatewaySettings   `yaml:"gateway"`
	Security  SecuritySettings  `yaml:"security"`
}

// Default returns a runnable single-node configuration.
func Default() Config {
	return Config{
		Node: NodeSettings{ID: "node-1", LogLevel: "info"},
		Consensus: ConsensusSettings{
			DataDir:              "./data/raft",
			BindAddr:             "127.0.0.1:7000",
			Bootstrap:            true,
			HeartbeatIntervalMS:  100,
			ElectionTimeoutMinMS: 500,
			ElectionTimeoutMaxMS: 1000,
		},
		Pool:     PoolSettings{QueueCapacity: 1000},
		Executor: ExecutorSettings{WorkerThreads: 4, QueueSize: 1000},
		Container: ContainerSettings{
			Mode: ModeDocker,
		},
		State: StateSettings{
			DBPath:        "./data/state/state.db",
			StateRootPath: "./data/state_root",
		},
		Gateway: GatewaySettings{
			BindAddr:      "127.0.0.1:8545",
			AdminBindAddr: "127.0.0.1:8546",
			KeyStorePath:  "./data/api_keys.json",
		},
		Security: SecuritySettings{EnablePoC: true},
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("node.id is required")
	}
	if c.Executor.WorkerThreads < 1 {
		return fmt.Errorf("executor.worker_threads must be at least 1")
	}
	if c.Consensus.ElectionTimeoutMinMS > c.Consensus.ElectionTimeoutMaxMS {
		return fmt.Errorf("consensus election timeout bounds are inverted")
	}
	switch c.Container.Mode {
	case ModeDocker, ModeCVM:
	default:
		return fmt.Errorf("container.mode must be %q or %q", ModeDocker, ModeCVM)
	}
	if c.Container.Mode == ModeCVM && c.Container.TeepodHost == "" {
		return fmt.Errorf("container.teepod_host is required in cvm mode")
	}
	return nil
}
