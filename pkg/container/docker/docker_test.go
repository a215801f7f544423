package docker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpnetwork/mpnode/pkg/container"
	"github.com/mpnetwork/mpnode/pkg/types"
)

// fakeRuntime records runtime calls without a containerd daemon.
type fakeRuntime struct {
	images   map[string]bool
	labels   map[string]map[string]string
	running  map[string]bool
	created  []string
	startErr error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		images:  make(map[string]bool),
		labels:  make(map[string]map[string]string),
		running: make(map[string]bool),
	}
}

func (f *fakeRuntime) EnsureImage(ctx context.Context, ref string) error {
	f.images[ref] = true
	return nil
}

func (f *fakeRuntime) CreateContainer(ctx context.Context, id, image string, env []string, labels map[string]string) error {
	if _, ok := f.labels[id]; ok {
		return fmt.Errorf("container %s already exists", id)
	}
	f.created = append(f.created, id)
	f.labels[id] = labels
	return nil
}

func (f *fakeRuntime) StartContainer(ctx context.Context, id string) error {
	if f.startErr != nil {
		return f.startErr
	}
	if _, ok := f.labels[id]; !ok {
		return fmt.Errorf("container %s not found", id)
	}
	f.running[id] = true
	return nil
}

func (f *fakeRuntime) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	f.running[id] = false
	return nil
}

func (f *fakeRuntime) DeleteContainer(ctx context.Context, id string) error {
	delete(f.labels, id)
	delete(f.running, id)
	return nil
}

func (f *fakeRuntime) ContainerLabels(ctx context.Context, id string) (map[string]string, error) {
	labels, ok := f.labels[id]
	if !ok {
		return nil, fmt.Errorf("container %s not found", id)
	}
	return labels, nil
}

func (f *fakeRuntime) IsRunning(ctx context.Context, id string) bool {
	return f.running[id]
}

func (f *fakeRuntime) Close() error { return nil }

const echoCompose = `services:
  echo:
    image: echo:latest
    ports:
    - "8080:8080"
`

func echoConfig() container.AgentConfiguration {
	return container.AgentConfiguration{Name: "echo", DockerCompose: echoCompose}
}

func TestCreateContainer(t *testing.T) {
	rt := newFakeRuntime()
	backend := New(rt)

	info, err := backend.CreateContainer(context.Background(), echoConfig())
	require.NoError(t, err)

	assert.Equal(t, "echo", info.Name)
	assert.Equal(t, "127.0.0.1:8080", info.Address)
	assert.Equal(t, container.StateRunning, info.Status.State)
	assert.Equal(t, types.AgentIDFromName("echo").UUID(), info.ID)

	assert.True(t, rt.images["echo:latest"])
	assert.Equal(t, []string{"mp-echo"}, rt.created)
	assert.True(t, rt.running["mp-echo"])
	assert.Equal(t, "8080", rt.labels["mp-echo"][hostPortLabel])
}

func TestCreateContainerIdempotent(t *testing.T) {
	rt := newFakeRuntime()
	backend := New(rt)

	first, err := backend.CreateContainer(context.Background(), echoConfig())
	require.NoError(t, err)

	second, err := backend.CreateContainer(context.Background(), echoConfig())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, rt.created, 1, "no second runtime container may be created")
}

func TestCreateContainerRestartsStopped(t *testing.T) {
	rt := newFakeRuntime()
	backend := New(rt)

	info, err := backend.CreateContainer(context.Background(), echoConfig())
	require.NoError(t, err)
	require.NoError(t, backend.StopContainer(context.Background(), info.ID))
	assert.False(t, rt.running["mp-echo"])

	again, err := backend.CreateContainer(context.Background(), echoConfig())
	require.NoError(t, err)
	assert.Equal(t, container.StateRunning, again.Status.State)
	assert.Equal(t, "127.0.0.1:8080", again.Address)
	assert.True(t, rt.running["mp-echo"])
}

func TestCreateContainerValidation(t *testing.T) {
	rt := newFakeRuntime()
	backend := New(rt)

	tests := []struct {
		name string
		cfg  container.AgentConfiguration
	}{
		{name: "empty name", cfg: container.AgentConfiguration{DockerCompose: echoCompose}},
		{name: "bad yaml", cfg: container.AgentConfiguration{Name: "x", DockerCompose: "services: ["}},
		{
			name: "two services",
			cfg: container.AgentConfiguration{Name: "x", DockerCompose: `services:
  a:
    image: a
    ports: ["8001:80"]
  b:
    image: b
    ports: ["8002:80"]
`},
		},
		{
			name: "reserved host port",
			cfg: container.AgentConfiguration{Name: "x", DockerCompose: `services:
  a:
    image: a
    ports: ["80:8080"]
`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := backend.CreateContainer(context.Background(), tt.cfg)
			assert.Error(t, err)
		})
	}

	// Registry untouched by failed creations.
	running, err := backend.GetRunningContainers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, running)
	assert.Empty(t, rt.created)
}

func TestStopStartLifecycle(t *testing.T) {
	rt := newFakeRuntime()
	backend := New(rt)

	info, err := backend.CreateContainer(context.Background(), echoConfig())
	require.NoError(t, err)

	require.NoError(t, backend.StopContainer(context.Background(), info.ID))
	status, err := backend.GetContainerStatus(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, container.StateStopped, status.State)

	// Stopping again is a no-op.
	require.NoError(t, backend.StopContainer(context.Background(), info.ID))

	restarted, err := backend.StartContainer(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, container.StateRunning, restarted.Status.State)
	assert.Equal(t, "127.0.0.1:8080", restarted.Address)
}

func TestRemoveContainer(t *testing.T) {
	rt := newFakeRuntime()
	backend := New(rt)

	info, err := backend.CreateContainer(context.Background(), echoConfig())
	require.NoError(t, err)

	require.NoError(t, backend.RemoveContainer(context.Background(), info.ID))

	_, err = backend.GetContainer(context.Background(), info.ID)
	assert.ErrorIs(t, err, container.ErrNotFound)
	assert.NotContains(t, rt.labels, "mp-echo")
}

func TestUnknownContainerOperations(t *testing.T) {
	backend := New(newFakeRuntime())
	ghost := types.AgentIDFromName("ghost").UUID()

	_, err := backend.StartContainer(context.Background(), ghost)
	assert.ErrorIs(t, err, container.ErrNotFound)
	assert.ErrorIs(t, backend.StopContainer(context.Background(), ghost), container.ErrNotFound)
	assert.ErrorIs(t, backend.RemoveContainer(context.Background(), ghost), container.ErrNotFound)
	_, err = backend.GetContainerStatus(context.Background(), ghost)
	assert.ErrorIs(t, err, container.ErrNotFound)
}

func TestGetRunningContainers(t *testing.T) {
	rt := newFakeRuntime()
	backend := New(rt)

	first, err := backend.CreateContainer(context.Background(), echoConfig())
	require.NoError(t, err)

	other := container.AgentConfiguration{Name: "other", DockerCompose: `services:
  other:
    image: other:latest
    ports: ["9090:9090"]
`}
	_, err = backend.CreateContainer(context.Background(), other)
	require.NoError(t, err)

	require.NoError(t, backend.StopContainer(context.Background(), first.ID))

	running, err := backend.GetRunningContainers(context.Background())
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "other", running[0].AgentName)
}
