package docker

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
)

const (
	// DefaultNamespace is the containerd namespace for agent containers
	DefaultNamespace = "mpnode"

	// DefaultSocketPath is the default containerd socket
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// Runtime abstracts the container runtime operations the backend needs, so
// the registry logic can be exercised against a fake in tests.
type Runtime interface {
	EnsureImage(ctx context.Context, ref string) error
	CreateContainer(ctx context.Context, id, image string, env []string, labels map[string]string) error
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, timeout time.Duration) error
	DeleteContainer(ctx context.Context, id string) error
	ContainerLabels(ctx context.Context, id string) (map[string]string, error)
	IsRunning(ctx context.Context, id string) bool
	Close() error
}

// ContainerdRuntime implements Runtime using containerd
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdRuntime creates a new containerd runtime client
func NewContainerdRuntime(socketPath string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdRuntime{
		client:    client,
		namespace: DefaultNamespace,
	}, nil
}

// Close closes the containerd client connection
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// EnsureImage makes the image available locally, pulling it if missing
func (r *ContainerdRuntime) EnsureImage(ctx context.Context, ref string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	if _, err := r.client.GetImage(ctx, ref); err == nil {
		return nil
	}

	if _, err := r.client.Pull(ctx, ref, containerd.WithPullUnpack); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// CreateContainer creates a container with the given environment and labels
func (r *ContainerdRuntime) CreateContainer(ctx context.Context, id, imageRef string, env []string, labels map[string]string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	image, err := r.client.GetImage(ctx, imageRef)
	if err != nil {
		return fmt.Errorf("failed to get image %s: %w", imageRef, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
	}

	_, err = r.client.NewContainer(
		ctx,
		id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(opts...),
		containerd.WithContainerLabels(labels),
	)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	return nil
}

// StartContainer creates and starts the container's task
func (r *ContainerdRuntime) StartContainer(ctx context.Context, id string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", id, err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task: %w", err)
	}
	return nil
}

// StopContainer stops a running container, SIGTERM first, SIGKILL on timeout
func (r *ContainerdRuntime) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", id, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		// No task means the container is not running
		return nil
	}

	exitCh, err := task.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait on task: %w", err)
	}

	if err := task.Kill(ctx, syscall.SIGTERM); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to signal task: %w", err)
	}

	select {
	case <-exitCh:
	case <-time.After(timeout):
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to force-kill task: %w", err)
		}
		<-exitCh
	}

	if _, err := task.Delete(ctx); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// DeleteContainer removes the container and its snapshot
func (r *ContainerdRuntime) DeleteContainer(ctx context.Context, id string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		// Container might not exist
		return nil
	}

	if err := r.StopContainer(ctx, id, 10*time.Second); err != nil {
		return fmt.Errorf("failed to stop container before delete: %w", err)
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("failed to delete container: %w", err)
	}
	return nil
}

// ContainerLabels returns the labels stored on a container
func (r *ContainerdRuntime) ContainerLabels(ctx context.Context, id string) (map[string]string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load container %s: %w", id, err)
	}
	labels, err := container.Labels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels for %s: %w", id, err)
	}
	return labels, nil
}

// IsRunning checks if a container has a running task
func (r *ContainerdRuntime) IsRunning(ctx context.Context, id string) bool {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return false
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return false
	}
	status, err := task.Status(ctx)
	if err != nil {
		return false
	}
	return status.Status == containerd.Running
}
