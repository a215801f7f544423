// Package docker is the local container backend. It provisions agent
// containers through containerd, keyed by content-addressed agent IDs, and
// serves the shared lifecycle surface against an in-memory registry.
package docker

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mpnetwork/mpnode/pkg/compose"
	"github.com/mpnetwork/mpnode/pkg/container"
	"github.com/mpnetwork/mpnode/pkg/log"
	"github.com/mpnetwork/mpnode/pkg/metrics"
	"github.com/mpnetwork/mpnode/pkg/types"
)

const (
	containerNamePrefix = "mp-"
	hostPortLabel       = "mpnode/host-port"
	agentNameLabel      = "mpnode/agent-name"
	stopTimeout         = 10 * time.Second
)

// Backend is the local containerd-backed container environment.
type Backend struct {
	runtime    Runtime
	httpClient *http.Client
	logger     zerolog.Logger

	mu         sync.Mutex
	containers map[uuid.UUID]container.ContainerDetail
}

// New creates a backend on top of the given runtime.
func New(runtime Runtime) *Backend {
	return &Backend{
		runtime:    runtime,
		httpClient: &http.Client{},
		logger:     log.WithComponent("docker"),
		containers: make(map[uuid.UUID]container.ContainerDetail),
	}
}

// Connect creates a backend connected to the local containerd socket.
func Connect(socketPath string) (*Backend, error) {
	rt, err := NewContainerdRuntime(socketPath)
	if err != nil {
		return nil, err
	}
	return New(rt), nil
}

func containerName(agentName string) string {
	return containerNamePrefix + agentName
}

// CreateContainer provisions an agent from its Compose document. Creation is
// idempotent on the agent name: an existing record is returned unchanged,
// restarting the underlying container first if it had stopped.
func (b *Backend) CreateContainer(ctx context.Context, cfg container.AgentConfiguration) (container.ContainerInfo, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ContainerOperationDuration, "create")

	if cfg.Name == "" {
		return container.ContainerInfo{}, fmt.Errorf("agent name is required")
	}

	doc, err := compose.Parse(cfg.DockerCompose)
	if err != nil {
		return container.ContainerInfo{}, err
	}
	if err := doc.Validate(); err != nil {
		return container.ContainerInfo{}, err
	}
	_, svc := doc.First()
	ports := svc.Ports[0]

	id := types.AgentIDFromName(cfg.Name).UUID()

	b.mu.Lock()
	if detail, ok := b.containers[id]; ok {
		b.mu.Unlock()
		b.logger.Info().Str("agent", cfg.Name).Msg("Container already exists")
		if detail.Info.Status.State == container.StateStopped {
			return b.StartContainer(ctx, id)
		}
		return detail.Info, nil
	}
	b.mu.Unlock()

	if err := b.runtime.EnsureImage(ctx, svc.Image); err != nil {
		return container.ContainerInfo{}, err
	}

	name := containerName(cfg.Name)
	env := make([]string, 0, len(svc.Environment))
	for key, value := range svc.Environment {
		env = append(env, key+"="+value)
	}
	labels := map[string]string{
		agentNameLabel: cfg.Name,
		hostPortLabel:  strconv.Itoa(ports.HostPort),
	}
	if err := b.runtime.CreateContainer(ctx, name, svc.Image, env, labels); err != nil {
		return container.ContainerInfo{}, err
	}
	if err := b.runtime.StartContainer(ctx, name); err != nil {
		return container.ContainerInfo{}, err
	}

	info := container.ContainerInfo{
		ContractID: types.AgentIDFromUUID(id),
		Name:       cfg.Name,
		Address:    fmt.Sprintf("127.0.0.1:%d", ports.HostPort),
		Status:     container.Running(),
		ID:         id,
		InstanceID: id.String(),
	}
	detail := container.ContainerDetail{
		AgentName:         cfg.Name,
		Description:       "docker",
		Pricing:           container.PricingFree,
		DailyCallQuote:    100,
		Access:            container.AccessPublic,
		AuthorizationType: container.AuthAPIKey,
		Info:              info,
	}

	b.mu.Lock()
	b.containers[id] = detail
	running := b.countRunning()
	b.mu.Unlock()
	metrics.AgentsRunning.Set(float64(running))

	b.logger.Info().Str("agent", cfg.Name).Str("address", info.Address).Msg("Container created")
	return info, nil
}

// StartContainer starts a stopped container and refreshes its address from
// the runtime's recorded port binding.
func (b *Backend) StartContainer(ctx context.Context, id uuid.UUID) (container.ContainerInfo, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ContainerOperationDuration, "start")

	b.mu.Lock()
	detail, ok := b.containers[id]
	b.mu.Unlock()
	if !ok {
		return container.ContainerInfo{}, fmt.Errorf("%w: %s", container.ErrNotFound, types.AgentIDFromUUID(id))
	}

	if detail.Info.Status.State != container.StateRunning {
		name := containerName(detail.AgentName)
		if err := b.runtime.StartContainer(ctx, name); err != nil {
			return container.ContainerInfo{}, err
		}
		labels, err := b.runtime.ContainerLabels(ctx, name)
		if err != nil {
			return container.ContainerInfo{}, err
		}
		port, err := strconv.Atoi(labels[hostPortLabel])
		if err != nil {
			return container.ContainerInfo{}, fmt.Errorf("container %s has no recorded host port", name)
		}
		detail.Info.Status = container.Running()
		detail.Info.Address = fmt.Sprintf("127.0.0.1:%d", port)

		b.mu.Lock()
		b.containers[id] = detail
		running := b.countRunning()
		b.mu.Unlock()
		metrics.AgentsRunning.Set(float64(running))
		b.logger.Info().Str("agent", detail.AgentName).Msg("Container started")
	}

	return detail.Info, nil
}

// StopContainer stops a running container; stopping a non-running container
// is a no-op.
func (b *Backend) StopContainer(ctx context.Context, id uuid.UUID) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ContainerOperationDuration, "stop")

	b.mu.Lock()
	detail, ok := b.containers[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", container.ErrNotFound, types.AgentIDFromUUID(id))
	}
	if detail.Info.Status.State != container.StateRunning {
		return nil
	}

	if err := b.runtime.StopContainer(ctx, containerName(detail.AgentName), stopTimeout); err != nil {
		return err
	}

	detail.Info.Status = container.Stopped()
	b.mu.Lock()
	b.containers[id] = detail
	running := b.countRunning()
	b.mu.Unlock()
	metrics.AgentsRunning.Set(float64(running))
	b.logger.Info().Str("agent", detail.AgentName).Msg("Container stopped")
	return nil
}

// RemoveContainer stops the container if needed and deletes it from the
// runtime and the registry.
func (b *Backend) RemoveContainer(ctx context.Context, id uuid.UUID) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ContainerOperationDuration, "remove")

	b.mu.Lock()
	detail, ok := b.containers[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", container.ErrNotFound, types.AgentIDFromUUID(id))
	}

	name := containerName(detail.AgentName)
	if detail.Info.Status.State == container.StateRunning {
		if err := b.runtime.StopContainer(ctx, name, stopTimeout); err != nil {
			return err
		}
		detail.Info.Status = container.Stopping()
	}

	if err := b.runtime.DeleteContainer(ctx, name); err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.containers, id)
	running := b.countRunning()
	b.mu.Unlock()
	metrics.AgentsRunning.Set(float64(running))
	b.logger.Info().Str("agent", detail.AgentName).Msg("Container removed")
	return nil
}

// GetContainer returns the registry record for a container.
func (b *Backend) GetContainer(ctx context.Context, id uuid.UUID) (container.ContainerDetail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	detail, ok := b.containers[id]
	if !ok {
		return container.ContainerDetail{}, fmt.Errorf("%w: %s", container.ErrNotFound, types.AgentIDFromUUID(id))
	}
	return detail, nil
}

// GetContainerStatus returns the registry status for a container.
func (b *Backend) GetContainerStatus(ctx context.Context, id uuid.UUID) (container.ContainerStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	detail, ok := b.containers[id]
	if !ok {
		return container.ContainerStatus{}, fmt.Errorf("%w: %s", container.ErrNotFound, types.AgentIDFromUUID(id))
	}
	return detail.Info.Status, nil
}

// GetRunningContainers snapshots the running agents.
func (b *Backend) GetRunningContainers(ctx context.Context) ([]container.ContainerDetail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	running := make([]container.ContainerDetail, 0, len(b.containers))
	for _, detail := range b.containers {
		if detail.Info.Status.State == container.StateRunning {
			running = append(running, detail)
		}
	}
	return running, nil
}

// ExecuteTransaction routes a transaction through the shared dispatch table.
func (b *Backend) ExecuteTransaction(ctx context.Context, tx types.Transaction) (types.Transaction, error) {
	return container.Execute(ctx, b, b.httpClient, tx)
}

// countRunning must be called with the lock held.
func (b *Backend) countRunning() int {
	count := 0
	for _, detail := range b.containers {
		if detail.Info.Status.State == container.StateRunning {
			count++
		}
	}
	return count
}

// Close releases the runtime connection.
func (b *Backend) Close() error {
	return b.runtime.Close()
}
