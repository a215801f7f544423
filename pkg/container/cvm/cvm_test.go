package cvm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpnetwork/mpnode/pkg/container"
)

// fakePod scripts the pod service's answers.
type fakePod struct {
	infoCalls     int
	infoReadyAt   int
	bootError     string
	networkCalls  int
	networkErrors int
	started       []string
	stopped       []string
	removed       []string
}

func (f *fakePod) CreateVM(ctx context.Context, cfg VMConfiguration) (string, error) {
	return "vm-1", nil
}

func (f *fakePod) StartVM(ctx context.Context, id string) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakePod) StopVM(ctx context.Context, id string) error {
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakePod) RemoveVM(ctx context.Context, id string) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakePod) GetInfo(ctx context.Context, id string) (*VMInfo, error) {
	f.infoCalls++
	if f.bootError != "" {
		return &VMInfo{ID: id, BootError: f.bootError}, nil
	}
	if f.infoCalls >= f.infoReadyAt {
		return &VMInfo{ID: id, InstanceID: "instance-1", Status: "running"}, nil
	}
	return &VMInfo{ID: id}, nil
}

func (f *fakePod) NetworkInfo(ctx context.Context, id string) ([]networkInterface, error) {
	f.networkCalls++
	if f.networkCalls <= f.networkErrors {
		return nil, fmt.Errorf("network not ready")
	}
	return []networkInterface{
		{Name: "eth0", Addresses: []struct {
			Address string `json:"address"`
		}{{Address: "10.0.0.5"}}},
		{Name: "wg0", Addresses: []struct {
			Address string `json:"address"`
		}{{Address: "10.10.0.7"}}},
	}, nil
}

func (f *fakePod) Status(ctx context.Context) ([]VMInfo, error) {
	return nil, nil
}

const cvmCompose = `services:
  agent:
    image: agent:latest
    ports:
    - "8100:8100"
`

func fastBackend(pod PodService) *Backend {
	b := New(pod)
	b.InfoInterval = time.Millisecond
	b.NetworkInterval = time.Millisecond
	return b
}

func intPtr(v int) *int { return &v }

func agentCfg() container.AgentConfiguration {
	return container.AgentConfiguration{
		Name:          "agent",
		DockerCompose: cvmCompose,
		VCPUsRaw:      intPtr(2),
		MemoryRaw:     intPtr(2),
		StorageRaw:    intPtr(20),
	}
}

func TestConfigurationFromAgentValid(t *testing.T) {
	cfg, err := ConfigurationFromAgent(agentCfg())
	require.NoError(t, err)
	assert.Equal(t, "agent", cfg.Name)
	assert.Equal(t, "agent:latest", cfg.Image)
	assert.Equal(t, 2, cfg.VCPU)
	assert.Equal(t, 2048, cfg.Memory)
	assert.Equal(t, 20, cfg.DiskSize)
	assert.Equal(t, "8100:8100", cfg.Ports)
	assert.Equal(t, 8100, cfg.ContainerPort())
}

func TestConfigurationValidationBounds(t *testing.T) {
	base := agentCfg()

	tests := []struct {
		name   string
		mutate func(*container.AgentConfiguration)
	}{
		{name: "empty name", mutate: func(c *container.AgentConfiguration) { c.Name = "" }},
		{name: "missing compose", mutate: func(c *container.AgentConfiguration) { c.DockerCompose = "" }},
		{name: "vcpu zero", mutate: func(c *container.AgentConfiguration) { c.VCPUsRaw = intPtr(0) }},
		{name: "vcpu too high", mutate: func(c *container.AgentConfiguration) { c.VCPUsRaw = intPtr(33) }},
		{name: "memory too low", mutate: func(c *container.AgentConfiguration) { c.MemoryRaw = intPtr(0) }},
		{name: "memory too high", mutate: func(c *container.AgentConfiguration) { c.MemoryRaw = intPtr(7) }},
		{name: "disk too small", mutate: func(c *container.AgentConfiguration) { c.StorageRaw = intPtr(9) }},
		{name: "disk too large", mutate: func(c *container.AgentConfiguration) { c.StorageRaw = intPtr(101) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := ConfigurationFromAgent(cfg)
			assert.Error(t, err)
		})
	}
}

func TestConfigurationPortPolicy(t *testing.T) {
	cfg := agentCfg()
	cfg.DockerCompose = `services:
  agent:
    image: agent:latest
    ports:
    - "80:8100"
`
	_, err := ConfigurationFromAgent(cfg)
	assert.Error(t, err)

	cfg.DockerCompose = `services:
  agent:
    image: agent:latest
    ports:
    - "8100:8100"
    - "8200:8200"
`
	_, err = ConfigurationFromAgent(cfg)
	assert.Error(t, err)
}

func TestCreateContainerPollsUntilReady(t *testing.T) {
	pod := &fakePod{infoReadyAt: 3, networkErrors: 2}
	backend := fastBackend(pod)

	info, err := backend.CreateContainer(context.Background(), agentCfg())
	require.NoError(t, err)

	assert.Equal(t, 3, pod.infoCalls)
	assert.Equal(t, 3, pod.networkCalls)
	assert.Equal(t, "10.10.0.7:8100", info.Address)
	assert.Equal(t, "instance-1", info.InstanceID)
	assert.Equal(t, container.StateRunning, info.Status.State)
}

func TestCreateContainerBootError(t *testing.T) {
	pod := &fakePod{bootError: "kernel panic"}
	backend := fastBackend(pod)

	_, err := backend.CreateContainer(context.Background(), agentCfg())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kernel panic")
	assert.Equal(t, 1, pod.infoCalls)
}

func TestCreateContainerInfoPollCap(t *testing.T) {
	pod := &fakePod{infoReadyAt: 1000}
	backend := fastBackend(pod)
	backend.InfoAttempts = 5

	_, err := backend.CreateContainer(context.Background(), agentCfg())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Equal(t, 5, pod.infoCalls, "polling must exhaust exactly at the cap")
}

func TestCreateContainerNetworkPollCap(t *testing.T) {
	pod := &fakePod{infoReadyAt: 1, networkErrors: 1000}
	backend := fastBackend(pod)
	backend.NetworkAttempts = 4

	_, err := backend.CreateContainer(context.Background(), agentCfg())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network info")
	assert.Equal(t, 4, pod.networkCalls, "polling must exhaust exactly at the cap")
}

func TestCreateContainerIdempotent(t *testing.T) {
	pod := &fakePod{infoReadyAt: 1}
	backend := fastBackend(pod)

	first, err := backend.CreateContainer(context.Background(), agentCfg())
	require.NoError(t, err)
	infoCalls := pod.infoCalls

	second, err := backend.CreateContainer(context.Background(), agentCfg())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, infoCalls, pod.infoCalls, "no second provisioning round")
}

func TestLifecycle(t *testing.T) {
	pod := &fakePod{infoReadyAt: 1}
	backend := fastBackend(pod)

	info, err := backend.CreateContainer(context.Background(), agentCfg())
	require.NoError(t, err)

	require.NoError(t, backend.StopContainer(context.Background(), info.ID))
	status, err := backend.GetContainerStatus(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, container.StateStopped, status.State)
	assert.Equal(t, []string{"instance-1"}, pod.stopped)

	restarted, err := backend.StartContainer(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, container.StateRunning, restarted.Status.State)
	assert.Equal(t, []string{"instance-1"}, pod.started)

	require.NoError(t, backend.RemoveContainer(context.Background(), info.ID))
	assert.Equal(t, []string{"instance-1"}, pod.removed)
	_, err = backend.GetContainer(context.Background(), info.ID)
	assert.ErrorIs(t, err, container.ErrNotFound)
}
