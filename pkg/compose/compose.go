// Package compose parses the agent Compose document and enforces the
// single-service, single-port constraints required before a container is
// provisioned. Fields beyond the validated surface are carried through
// untouched.
package compose

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// MinHostPort is the lowest publishable host port, exclusive.
	MinHostPort = 1000
)

var (
	// ErrNoService is returned when the document defines no services.
	ErrNoService = errors.New("no service defined in compose document")
	// ErrMultipleServices is returned when more than one service is defined.
	ErrMultipleServices = errors.New("compose document must define exactly one service")
)

// PortMapping is one host:container port pair.
type PortMapping struct {
	HostPort      int
	ContainerPort int
}

// UnmarshalYAML accepts the "host:container" string form.
func (p *PortMapping) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	host, container, found := strings.Cut(raw, ":")
	if !found {
		return fmt.Errorf("port mapping %q: expected host:container", raw)
	}
	hostPort, err := strconv.Atoi(host)
	if err != nil {
		return fmt.Errorf("port mapping %q: invalid host port", raw)
	}
	containerPort, err := strconv.Atoi(container)
	if err != nil {
		return fmt.Errorf("port mapping %q: invalid container port", raw)
	}
	p.HostPort = hostPort
	p.ContainerPort = containerPort
	return nil
}

// MarshalYAML renders the "host:container" string form.
func (p PortMapping) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("%d:%d", p.HostPort, p.ContainerPort), nil
}

func (p PortMapping) String() string {
	return fmt.Sprintf("%d:%d", p.HostPort, p.ContainerPort)
}

// Service is the subset of a Compose service the node validates and acts on.
type Service struct {
	Image       string            `yaml:"image"`
	Ports       []PortMapping     `yaml:"ports"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Restart     string            `yaml:"restart,omitempty"`
}

// Document is an agent's Compose file.
type Document struct {
	Version  string             `yaml:"version,omitempty"`
	Services map[string]Service `yaml:"services"`
}

// Parse decodes a Compose document from YAML.
func Parse(raw string) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse compose document: %w", err)
	}
	return &doc, nil
}

// First returns the single service and its name. Validate must have passed.
func (d *Document) First() (string, Service) {
	for name, svc := range d.Services {
		return name, svc
	}
	return "", Service{}
}

// Validate enforces the provisioning constraints: exactly one service with
// exactly one exposed port pair, host port above 1000 and container port in
// {80, 443} or [1000, 65535].
func (d *Document) Validate() error {
	switch len(d.Services) {
	case 0:
		return ErrNoService
	case 1:
	default:
		return ErrMultipleServices
	}

	name, svc := d.First()
	if svc.Image == "" {
		return fmt.Errorf("service %q: image is required", name)
	}
	if len(svc.Ports) != 1 {
		return fmt.Errorf("service %q: exactly one port mapping is required, got %d", name, len(svc.Ports))
	}
	return ValidatePorts(svc.Ports[0])
}

// ValidatePorts checks the port policy for a single mapping.
func ValidatePorts(p PortMapping) error {
	if p.HostPort <= MinHostPort {
		return fmt.Errorf("host port %d: must be greater than %d", p.HostPort, MinHostPort)
	}
	if validContainerPort(p.ContainerPort) {
		return nil
	}
	return fmt.Errorf("container port %d: must be 80, 443 or within [1000, 65535]", p.ContainerPort)
}

func validContainerPort(port int) bool {
	if port == 80 || port == 443 {
		return true
	}
	return port >= 1000 && port <= 65535
}
