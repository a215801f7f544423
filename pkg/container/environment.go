// Package container defines the agent lifecycle manager: the environment
// interface shared by the local and confidential-VM backends, the registry
// record types, and the transaction dispatch that routes request and
// management kinds to a backend.
package container

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mpnetwork/mpnode/pkg/types"
)

var (
	// ErrNotFound is returned when no container is registered for an ID.
	ErrNotFound = errors.New("container not found")
	// ErrNotRunning is returned when a request targets a stopped agent.
	ErrNotRunning = errors.New("container is not running")
)

// Environment is the surface every container backend exposes. The two
// implementations are the local containerd backend and the confidential-VM
// pod backend; callers pick one at construction time.
type Environment interface {
	// CreateContainer provisions an agent. Creating an agent whose name is
	// already registered returns the cached record; a stopped cached record
	// is started first and the refreshed record is returned.
	CreateContainer(ctx context.Context, cfg AgentConfiguration) (ContainerInfo, error)

	// StartContainer starts a stopped container and refreshes its address.
	StartContainer(ctx context.Context, id uuid.UUID) (ContainerInfo, error)

	// StopContainer stops a running container. Stopping a stopped container
	// is a no-op.
	StopContainer(ctx context.Context, id uuid.UUID) error

	// RemoveContainer stops the container if needed and deletes it.
	RemoveContainer(ctx context.Context, id uuid.UUID) error

	// GetContainer returns the registry record.
	GetContainer(ctx context.Context, id uuid.UUID) (ContainerDetail, error)

	// GetContainerStatus returns the current status.
	GetContainerStatus(ctx context.Context, id uuid.UUID) (ContainerStatus, error)

	// GetRunningContainers snapshots the registry's running agents.
	GetRunningContainers(ctx context.Context) ([]ContainerDetail, error)

	// ExecuteTransaction routes a transaction through the dispatch table and
	// returns the response serialised as a transaction.
	ExecuteTransaction(ctx context.Context, tx types.Transaction) (types.Transaction, error)
}
