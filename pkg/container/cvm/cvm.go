// Package cvm is the confidential-VM container backend. The same lifecycle
// surface as the local backend is served by delegating to a remote pod
// service that provisions TEE-enabled VMs and reports their overlay
// addresses.
package cvm

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mpnetwork/mpnode/pkg/container"
	"github.com/mpnetwork/mpnode/pkg/log"
	"github.com/mpnetwork/mpnode/pkg/metrics"
	"github.com/mpnetwork/mpnode/pkg/types"
)

// Backend provisions agents as confidential VMs through a pod service.
type Backend struct {
	pod        PodService
	httpClient *http.Client
	logger     zerolog.Logger

	// Poll cadence for VM initialisation and network discovery; the
	// defaults match the pod service's provisioning envelope.
	InfoAttempts    int
	InfoInterval    time.Duration
	NetworkAttempts int
	NetworkInterval time.Duration

	mu         sync.Mutex
	containers map[uuid.UUID]container.ContainerDetail
}

// New creates a backend over the given pod service.
func New(pod PodService) *Backend {
	return &Backend{
		pod:             pod,
		httpClient:      &http.Client{},
		logger:          log.WithComponent("cvm"),
		InfoAttempts:    infoPollAttempts,
		InfoInterval:    infoPollInterval,
		NetworkAttempts: networkPollAttempts,
		NetworkInterval: networkPollInterval,
		containers:      make(map[uuid.UUID]container.ContainerDetail),
	}
}

// Connect creates a backend for the pod service at teepodHost.
func Connect(teepodHost string) *Backend {
	return New(NewPodClient(teepodHost, nil))
}

// CreateContainer provisions a VM for the agent and waits for it to boot and
// acquire its overlay address. Idempotent on the agent name; an existing
// stopped VM is restarted instead.
func (b *Backend) CreateContainer(ctx context.Context, cfg container.AgentConfiguration) (container.ContainerInfo, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ContainerOperationDuration, "create")

	vmCfg, err := ConfigurationFromAgent(cfg)
	if err != nil {
		return container.ContainerInfo{}, err
	}

	id := types.AgentIDFromName(cfg.Name).UUID()

	b.mu.Lock()
	existing, ok := b.containers[id]
	b.mu.Unlock()
	if ok {
		b.logger.Info().Str("agent", cfg.Name).Msg("Container already exists")
		if existing.Info.Status.State != container.StateRunning {
			return b.StartContainer(ctx, id)
		}
		return existing.Info, nil
	}

	vmID, err := b.pod.CreateVM(ctx, vmCfg)
	if err != nil {
		return container.ContainerInfo{}, fmt.Errorf("failed to create VM: %w", err)
	}

	info, err := b.awaitBoot(ctx, vmID)
	if err != nil {
		return container.ContainerInfo{}, err
	}
	address, err := b.awaitNetwork(ctx, vmID)
	if err != nil {
		return container.ContainerInfo{}, err
	}

	containerInfo := container.ContainerInfo{
		ContractID: types.AgentIDFromUUID(id),
		Name:       cfg.Name,
		Address:    fmt.Sprintf("%s:%d", address, vmCfg.ContainerPort()),
		Status:     container.Running(),
		ID:         id,
		InstanceID: info.InstanceID,
	}
	detail := container.ContainerDetail{
		AgentName:         cfg.Name,
		Pricing:           container.PricingFree,
		Access:            container.AccessPublic,
		AuthorizationType: container.AuthNone,
		Info:              containerInfo,
	}

	b.mu.Lock()
	b.containers[id] = detail
	b.mu.Unlock()

	b.logger.Info().Str("agent", cfg.Name).Str("address", containerInfo.Address).
		Str("instance_id", info.InstanceID).Msg("Confidential VM created")
	return containerInfo, nil
}

// awaitBoot polls GetInfo until the VM reports an instance ID or a boot
// error, up to the configured cap.
func (b *Backend) awaitBoot(ctx context.Context, vmID string) (*VMInfo, error) {
	for attempt := 1; attempt <= b.InfoAttempts; attempt++ {
		info, err := b.pod.GetInfo(ctx, vmID)
		if err != nil {
			return nil, fmt.Errorf("failed to query VM info: %w", err)
		}
		if info != nil {
			if info.BootError != "" {
				return nil, fmt.Errorf("VM creation failed: %s", info.BootError)
			}
			if info.InstanceID != "" {
				b.logger.Info().Int("attempts", attempt).Msg("VM initialised")
				return info, nil
			}
		}
		b.logger.Debug().Int("attempt", attempt).Int("max", b.InfoAttempts).Msg("Waiting for VM to initialise")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.InfoInterval):
		}
	}
	return nil, fmt.Errorf("timeout waiting for VM to initialise after %d attempts", b.InfoAttempts)
}

// awaitNetwork polls NetworkInfo until the wg0 overlay address resolves, up
// to the configured cap.
func (b *Backend) awaitNetwork(ctx context.Context, vmID string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= b.NetworkAttempts; attempt++ {
		interfaces, err := b.pod.NetworkInfo(ctx, vmID)
		if err == nil {
			for _, iface := range interfaces {
				if iface.Name != wireguardInterface || len(iface.Addresses) == 0 {
					continue
				}
				return iface.Addresses[0].Address, nil
			}
			lastErr = fmt.Errorf("no %s address reported", wireguardInterface)
		} else {
			lastErr = err
		}
		b.logger.Warn().Err(lastErr).Int("attempt", attempt).Int("max", b.NetworkAttempts).
			Msg("Failed to get network info")
		if attempt == b.NetworkAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(b.NetworkInterval):
		}
	}
	return "", fmt.Errorf("failed to get network info after %d attempts: %w", b.NetworkAttempts, lastErr)
}

// StartContainer starts a stopped VM.
func (b *Backend) StartContainer(ctx context.Context, id uuid.UUID) (container.ContainerInfo, error) {
	b.mu.Lock()
	detail, ok := b.containers[id]
	b.mu.Unlock()
	if !ok {
		return container.ContainerInfo{}, fmt.Errorf("%w: %s", container.ErrNotFound, types.AgentIDFromUUID(id))
	}

	if detail.Info.Status.State != container.StateRunning {
		if err := b.pod.StartVM(ctx, detail.Info.InstanceID); err != nil {
			return container.ContainerInfo{}, fmt.Errorf("failed to start VM: %w", err)
		}
		detail.Info.Status = container.Running()
		b.mu.Lock()
		b.containers[id] = detail
		b.mu.Unlock()
		b.logger.Info().Str("agent", detail.AgentName).Msg("Confidential VM started")
	}
	return detail.Info, nil
}

// StopContainer stops a running VM; stopping a stopped VM is a no-op.
func (b *Backend) StopContainer(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	detail, ok := b.containers[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", container.ErrNotFound, types.AgentIDFromUUID(id))
	}
	if detail.Info.Status.State != container.StateRunning {
		return nil
	}
	if err := b.pod.StopVM(ctx, detail.Info.InstanceID); err != nil {
		return fmt.Errorf("failed to stop VM: %w", err)
	}
	detail.Info.Status = container.Stopped()
	b.mu.Lock()
	b.containers[id] = detail
	b.mu.Unlock()
	b.logger.Info().Str("agent", detail.AgentName).Msg("Confidential VM stopped")
	return nil
}

// RemoveContainer stops the VM if needed and removes it.
func (b *Backend) RemoveContainer(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	detail, ok := b.containers[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", container.ErrNotFound, types.AgentIDFromUUID(id))
	}

	if detail.Info.Status.State == container.StateRunning {
		if err := b.pod.StopVM(ctx, detail.Info.InstanceID); err != nil {
			return fmt.Errorf("failed to stop VM: %w", err)
		}
	}
	if err := b.pod.RemoveVM(ctx, detail.Info.InstanceID); err != nil {
		return fmt.Errorf("failed to remove VM: %w", err)
	}

	b.mu.Lock()
	delete(b.containers, id)
	b.mu.Unlock()
	b.logger.Info().Str("agent", detail.AgentName).Msg("Confidential VM removed")
	return nil
}

// GetContainer returns the registry record.
func (b *Backend) GetContainer(ctx context.Context, id uuid.UUID) (container.ContainerDetail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	detail, ok := b.containers[id]
	if !ok {
		return container.ContainerDetail{}, fmt.Errorf("%w: %s", container.ErrNotFound, types.AgentIDFromUUID(id))
	}
	return detail, nil
}

// GetContainerStatus returns the registry status.
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
