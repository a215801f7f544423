package cvm

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mpnetwork/mpnode/pkg/compose"
	"github.com/mpnetwork/mpnode/pkg/container"
)

const (
	infoPollAttempts    = 150
	infoPollInterval    = 5 * time.Second
	networkPollAttempts = 30
	networkPollInterval = 2 * time.Second

	wireguardInterface = "wg0"
)

// VMConfiguration is the provisioning request sent to the pod service.
type VMConfiguration struct {
	Name        string `json:"name"`
	Image       string `json:"image"`
	ComposeFile string `json:"compose_file"`
	VCPU        int    `json:"vcpu"`
	Memory      int    `json:"memory"`
	DiskSize    int    `json:"disk_size"`
	Ports       string `json:"ports"`
}

// ConfigurationFromAgent builds and validates the VM configuration for an
// agent: at least one service, exactly one port pair under the node's port
// policy, and resource requests within the pod service's bounds.
func ConfigurationFromAgent(cfg container.AgentConfiguration) (VMConfiguration, error) {
	if cfg.Name == "" {
		return VMConfiguration{}, fmt.Errorf("CVM name is required")
	}
	if cfg.DockerCompose == "" {
		return VMConfiguration{}, fmt.Errorf("compose file is required")
	}

	doc, err := compose.Parse(cfg.DockerCompose)
	if err != nil {
		return VMConfiguration{}, err
	}
	if len(doc.Services) == 0 {
		return VMConfiguration{}, compose.ErrNoService
	}
	_, svc := doc.First()
	if svc.Image == "" {
		return VMConfiguration{}, fmt.Errorf("image is required")
	}
	if len(svc.Ports) != 1 {
		return VMConfiguration{}, fmt.Errorf("exactly one port mapping is required, got %d", len(svc.Ports))
	}
	if err := compose.ValidatePorts(svc.Ports[0]); err != nil {
		return VMConfiguration{}, err
	}

	vm := VMConfiguration{
		Name:        cfg.Name,
		Image:       svc.Image,
		ComposeFile: cfg.DockerCompose,
		VCPU:        cfg.VCPUs(),
		Memory:      cfg.Memory() * 1024,
		DiskSize:    cfg.Storage(),
		Ports:       svc.Ports[0].String(),
	}
	if err := vm.Validate(); err != nil {
		return VMConfiguration{}, err
	}
	return vm, nil
}

// Validate enforces the pod service's resource bounds.
func (c VMConfiguration) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("CVM name is required")
	}
	if c.Image == "" {
		return fmt.Errorf("image is required")
	}
	if c.VCPU < 1 || c.VCPU > 32 {
		return fmt.Errorf("vcpu must be between 1 and 32")
	}
	if c.Memory < 1024 || c.Memory > 1024*6 {
		return fmt.Errorf("memory must be between 1024 and 6144")
	}
	if c.DiskSize < 10 || c.DiskSize > 100 {
		return fmt.Errorf("disk_size must be between 10 and 100")
	}
	return nil
}

// ContainerPort extracts the container side of the port pair.
func (c VMConfiguration) ContainerPort() int {
	_, containerPort, found := strings.Cut(c.Ports, ":")
	if !found {
		return 0
	}
	port, err := strconv.Atoi(containerPort)
	if err != nil {
		return 0
	}
	return port
}

// VMInfo is the pod service's view of a provisioned VM.
type VMInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	InstanceID string `json:"instance_id"`
	BootError  string `json:"boot_error"`
	Address    string `json:"-"`
}

type createVMResponse struct {
	ID string `json:"id"`
}

type getInfoResponse struct {
	Info *VMInfo `json:"info"`
}

type statusResponse struct {
	VMs []VMInfo `json:"vms"`
}

type networkInterface struct {
	Name      string `json:"name"`
	Addresses []struct {
		Address string `json:"address"`
	} `json:"addresses"`
}

type networkInfoResponse struct {
	Interfaces []networkInterface `json:"interfaces"`
}

type vmID struct {
	ID string `json:"id"`
}

// PodService is the RPC surface of the remote pod manager.
type PodService interface {
	CreateVM(ctx context.Context, cfg VMConfiguration) (string, error)
	StartVM(ctx context.Context, id string) error
	StopVM(ctx context.Context, id string) error
	RemoveVM(ctx context.Context, id string) error
	GetInfo(ctx context.Context, id string) (*VMInfo, error)
	NetworkInfo(ctx context.Context, id string) ([]networkInterface, error)
	Status(ctx context.Context) ([]VMInfo, error)
}

// PodClient talks to the pod service over the PRPC framing.
type PodClient struct {
	rpc *prpcClient
}

// NewPodClient creates a client for the pod service at baseURL.
func NewPodClient(baseURL string, httpClient *http.Client) *PodClient {
	return &PodClient{rpc: newPRPCClient(baseURL, httpClient)}
}

func (c *PodClient) CreateVM(ctx context.Context, cfg VMConfiguration) (string, error) {
	var resp createVMResponse
	if err := c.rpc.call(ctx, "CreateVm", cfg, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *PodClient) StartVM(ctx context.Context, id string) error {
	return c.rpc.call(ctx, "StartVm", vmID{ID: id}, nil)
}

func (c *PodClient) StopVM(ctx context.Context, id string) error {
	return c.rpc.call(ctx, "StopVm", vmID{ID: id}, nil)
}

func (c *PodClient) RemoveVM(ctx context.Context, id string) error {
	return c.rpc.call(ctx, "RemoveVm", vmID{ID: id}, nil)
}

func (c *PodClient) GetInfo(ctx context.Context, id string) (*VMInfo, error) {
	var resp getInfoResponse
	if err := c.rpc.call(ctx, "GetInfo", vmID{ID: id}, &resp); err != nil {
		return nil, err
	}
	return resp.Info, nil
}

func (c *PodClient) NetworkInfo(ctx context.Context, id string) ([]networkInterface, error) {
	var resp networkInfoResponse
	if err := c.rpc.call(ctx, "NetworkInfo", vmID{ID: id}, &resp); err != nil {
		return nil, err
	}
	return resp.Interfaces, nil
}

func (c *PodClient) Status(ctx context.Context) ([]VMInfo, error) {
	var resp statusResponse
	if err := c.rpc.call(ctx, "Status", nil, &resp); err != nil {
		return nil, err
	}
	return resp.VMs, nil
}
