package container

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mpnetwork/mpnode/pkg/types"
)

// ContainerStatus represents the current state of an agent container.
type ContainerStatus struct {
	State  ContainerState
	Reason string
}

// ContainerState enumerates the lifecycle states.
type ContainerState string

const (
	StateStarting ContainerState = "starting"
	StateRunning  ContainerState = "running"
	StateStopping ContainerState = "stopping"
	StateStopped  ContainerState = "stopped"
	StateError    ContainerState = "error"
)

// Running is the healthy steady state.
func Running() ContainerStatus { return ContainerStatus{State: StateRunning} }

// Stopped is the halted state.
func Stopped() ContainerStatus { return ContainerStatus{State: StateStopped} }

// Starting is the transitional boot state.
func Starting() ContainerStatus { return ContainerStatus{State: StateStarting} }

// Stopping is the transitional halt state.
func Stopping() ContainerStatus { return ContainerStatus{State: StateStopping} }

// Errored carries the failure reason.
func Errored(reason string) ContainerStatus {
	return ContainerStatus{State: StateError, Reason: reason}
}

// MarshalJSON renders plain states as their name and errors with the reason.
func (s ContainerStatus) MarshalJSON() ([]byte, error) {
	if s.State == StateError {
		return json.Marshal(map[string]string{"error": s.Reason})
	}
	return json.Marshal(string(s.State))
}

// UnmarshalJSON accepts both forms.
func (s *ContainerStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*s = ContainerStatus{State: ContainerState(name)}
		return nil
	}
	var errForm map[string]string
	if err := json.Unmarshal(data, &errForm); err != nil {
		return err
	}
	*s = Errored(errForm["error"])
	return nil
}

func (s ContainerStatus) String() string {
	if s.State == StateError {
		return fmt.Sprintf("error(%s)", s.Reason)
	}
	return string(s.State)
}

// ContainerInfo is the network-facing record of an agent container.
type ContainerInfo struct {
	ContractID types.AgentID   `json:"contract_id"`
	Name       string          `json:"name"`
	Address    string          `json:"address"`
	Status     ContainerStatus `json:"status"`
	ID         uuid.UUID       `json:"id"`
	InstanceID string          `json:"instance_id"`
}

// PricingModel describes how an agent charges for calls.
type PricingModel string

const (
	PricingFree       PricingModel = "Free"
	PricingPerAPICall PricingModel = "PerAPICall"
)

// AccessControl describes who may call an agent.
type AccessControl string

const (
	AccessPublic     AccessControl = "Public"
	AccessPrivate    AccessControl = "Private"
	AccessRestricted AccessControl = "Restricted"
)

// AuthorizationType describes how callers authenticate to an agent.
type AuthorizationType string

const (
	AuthNone   AuthorizationType = "None"
	AuthAPIKey AuthorizationType = "APIKEY"
	AuthOAuth2 AuthorizationType = "OAuth2"
	AuthJWT    AuthorizationType = "JWT"
)

// ContainerDetail is the registry record for an agent: the network info plus
// the descriptive and access metadata supplied at creation.
type ContainerDetail struct {
	AgentName         string            `json:"agent_name"`
	Description       string            `json:"description"`
	Tags              []string          `json:"tags,omitempty"`
	Pricing           PricingModel      `json:"pricing"`
	DailyCallQuote    int               `json:"daily_call_quote"`
	Access            AccessControl     `json:"access"`
	AuthorizationType AuthorizationType `json:"authorization_type"`
	Info              ContainerInfo     `json:"info"`
}

const (
	defaultVCPUs   = 1
	defaultMemory  = 2
	defaultStorage = 10
)

// AgentConfiguration describes the agent workload to provision.
type AgentConfiguration struct {
	Name          string `json:"name"`
	DockerCompose string `json:"docker_compose"`
	AppID         string `json:"app_id,omitempty"`
	EncryptedEnv  []byte `json:"encrypted_env,omitempty"`
	VCPUsRaw      *int   `json:"v_cpus,omitempty"`
	MemoryRaw     *int   `json:"memory,omitempty"`
	StorageRaw    *int   `json:"storage,omitempty"`
	Path          string `json:"path,omitempty"`
}

// VCPUs returns the requested vCPU count or the default.
func (c AgentConfiguration) VCPUs() int {
	if c.VCPUsRaw != nil {
		return *c.VCPUsRaw
	}
	return defaultVCPUs
}

// Memory returns the requested memory in GiB or the default.
func (c AgentConfiguration) Memory() int {
	if c.MemoryRaw != nil {
		return *c.MemoryRaw
	}
	return defaultMemory
}

// Storage returns the requested disk size in GiB or the default.
func (c AgentConfiguration) Storage() int {
	if c.StorageRaw != nil {
		return *c.StorageRaw
	}
	return defaultStorage
}

// HostingExternal points an agent at an externally hosted endpoint instead
// of a managed container.
type HostingExternal struct {
	Domain   string `json:"domain"`
	Protocol string `json:"protocol"`
}

// CreateVMRequest is the payload of a create_container transaction. Exactly
// one of Agent or External is set, distinguished by the fields present.
type CreateVMRequest struct {
	AgentName         string            `json:"agent_name"`
	Description       string            `json:"description"`
	Tags              []string          `json:"tags,omitempty"`
	AuthorizationType AuthorizationType `json:"authorization_type"`
	Pricing           PricingModel      `json:"pricing,omitempty"`
	DailyCallQuote    int               `json:"daily_call_quote"`
	Access            AccessControl     `json:"access,omitempty"`

	Agent    *AgentConfiguration `json:"-"`
	External *HostingExternal    `json:"-"`
}

type createVMRequestWire struct {
	AgentName         string            `json:"agent_name"`
	Description       string            `json:"description"`
	Tags              []string          `json:"tags,omitempty"`
	AuthorizationType AuthorizationType `json:"authorization_type"`
	Pricing           PricingModel      `json:"pricing,omitempty"`
	DailyCallQuote    int               `json:"daily_call_quote"`
	Access            AccessControl     `json:"access,omitempty"`

	// Agent branch
	Name          string `json:"name,omitempty"`
	DockerCompose string `json:"docker_compose,omitempty"`
	AppID         string `json:"app_id,omitempty"`
	EncryptedEnv  []byte `json:"encrypted_env,omitempty"`
	VCPUsRaw      *int   `json:"v_cpus,omitempty"`
	MemoryRaw     *int   `json:"memory,omitempty"`
	StorageRaw    *int   `json:"storage,omitempty"`
	Path          string `json:"path,omitempty"`

	// External branch
	Domain   string `json:"domain,omitempty"`
	Protocol string `json:"protocol,omitempty"`
}

// UnmarshalJSON decodes the flattened wire form, selecting the agent branch
// when a compose document is present and the external branch on a domain.
func (r *CreateVMRequest) UnmarshalJSON(data []byte) error {
	var wire createVMRequestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = CreateVMRequest{
		AgentName:         wire.AgentName,
		Description:       wire.Description,
		Tags:              wire.Tags,
		AuthorizationType: wire.AuthorizationType,
		Pricing:           wire.Pricing,
		DailyCallQuote:    wire.DailyCallQuote,
		Access:            wire.Access,
	}
	switch {
	case wire.DockerCompose != "" || wire.Name != "":
		r.Agent = &AgentConfiguration{
			Name:          wire.Name,
			DockerCompose: wire.DockerCompose,
			AppID:         wire.AppID,
			EncryptedEnv:  wire.EncryptedEnv,
			VCPUsRaw:      wire.VCPUsRaw,
			MemoryRaw:     wire.MemoryRaw,
			StorageRaw:    wire.StorageRaw,
			Path:          wire.Path,
		}
	case wire.Domain != "":
		r.External = &HostingExternal{Domain: wire.Domain, Protocol: wire.Protocol}
	default:
		return fmt.Errorf("create request carries neither an agent configuration nor an external host")
	}
	return nil
}

// MarshalJSON encodes the flattened wire form.
func (r CreateVMRequest) MarshalJSON() ([]byte, error) {
	wire := createVMRequestWire{
		AgentName:         r.AgentName,
		Description:       r.Description,
		Tags:              r.Tags,
		AuthorizationType: r.AuthorizationType,
		Pricing:           r.Pricing,
		DailyCallQuote:    r.DailyCallQuote,
		Access:            r.Access,
	}
	if r.Agent != nil {
		wire.Name = r.Agent.Name
		wire.DockerCompose = r.Agent.DockerCompose
		wire.AppID = r.Agent.AppID
		wire.EncryptedEnv = r.Agent.EncryptedEnv
		wire.VCPUsRaw = r.Agent.VCPUsRaw
		wire.MemoryRaw = r.Agent.MemoryRaw
		wire.StorageRaw = r.Agent.StorageRaw
		wire.Path = r.Agent.Path
	}
	if r.External != nil {
		wire.Domain = r.External.Domain
		wire.Protocol = r.External.Protocol
	}
	return json.Marshal(wire)
}

// RequestID addresses a container by agent ID or by name.
type RequestID struct {
	raw string
}

// RequestIDFromName builds a by-name request id.
func RequestIDFromName(name string) RequestID {
	return RequestID{raw: name}
}

// RequestIDFromAgent builds a by-id request id.
func RequestIDFromAgent(id types.AgentID) RequestID {
	return RequestID{raw: id.String()}
}

// UUID resolves the request id to the container UUID: 0x-hex forms are
// parsed directly, anything else is hashed as an agent name.
func (r RequestID) UUID() uuid.UUID {
	if agent, err := types.ParseAgentID(r.raw); err == nil {
		return agent.UUID()
	}
	return types.AgentIDFromName(r.raw).UUID()
}

type requestIDWire struct {
	ID string `json:"id"`
}

// UnmarshalJSON decodes {"id": "<0x-hex or name>"}.
func (r *RequestID) UnmarshalJSON(data []byte) error {
	var wire requestIDWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.ID == "" {
		return fmt.Errorf("request id is empty")
	}
	r.raw = wire.ID
	return nil
}

// MarshalJSON encodes the wire form.
func (r RequestID) MarshalJSON() ([]byte, error) {
	return json.Marshal(requestIDWire{ID: r.raw})
}
