// Package node defines the static registration record of a search node.
package node

import (
	"fmt"
	"strings"

	"github.com/grantmesh/grantmesh/internal/domain"
)

// Registration identifies a search node within the mesh. Registered once
// at startup and never mutated at runtime; the node's index grows via
// ingest calls but the registration record is static.
type Registration struct {
	id           string
	name         string
	domainTag    string
	silo         string
	capabilities []string
}

// NewRegistration creates a registration record. Capability tags are
// normalized to lowercase for keyword routing.
func NewRegistration(id, name, domainTag, silo string, capabilities []string) (Registration, error) {
	if strings.TrimSpace(id) == "" {
		return Registration{}, fmt.Errorf("node id is required: %w", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(domainTag) == "" {
		return Registration{}, fmt.Errorf("node %q: domain tag is required: %w", id, domain.ErrInvalidArgument)
	}
	caps := make([]string, 0, len(capabilities))
	for _, c := range capabilities {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			caps = append(caps, c)
		}
	}
	return Registration{
		id:           id,
		name:         name,
		domainTag:    domainTag,
		silo:         strings.ToUpper(strings.TrimSpace(silo)),
		capabilities: caps,
	}, nil
}

// ID returns the node identifier.
func (r Registration) ID() string { return r.id }

// Name returns the human-readable node name.
func (r Registration) Name() string { return r.name }

// Domain returns the domain tag (e.g. "innovate_uk").
func (r Registration) Domain() string { return r.domainTag }

// Silo returns the geographic silo tag (e.g. "UK", "EU").
func (r Registration) Silo() string { return r.silo }

// Capabilities returns the lowercase keyword tags used for routing.
func (r Registration) Capabilities() []string { return r.capabilities }

// Status is a point-in-time view of a node, returned by status requests.
type Status struct {
	Registration Registration
	Indexed      int
	Queries      uint64
}
