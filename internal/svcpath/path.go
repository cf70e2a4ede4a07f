// Package svcpath defines the two-part service identifier shared by the
// restarter and the graph engine, and the synthetic paths used to embed
// dependency groups into the same namespace as real nodes.
package svcpath

import "fmt"

// Path identifies a service, or a specific instance of a service, by value.
// Instance is empty for a bare service path.
type Path struct {
	Service  string
	Instance string
}

// New returns a service-level path.
func New(service string) Path { return Path{Service: service} }

// NewInstance returns an instance-level path.
func NewInstance(service, instance string) Path {
	return Path{Service: service, Instance: instance}
}

// IsInstance reports whether p names an instance rather than a bare service.
func (p Path) IsInstance() bool { return p.Instance != "" }

// String renders the path as "service" or "service/instance".
func (p Path) String() string {
	if p.Instance == "" {
		return p.Service
	}
	return p.Service + "/" + p.Instance
}

// DepGroup synthesizes the path of the n-th dependency group owned by p:
// (service, "<base>#depgroups/<n>") where base is p's own instance (empty
// for a bare service path). Group paths live in the same namespace as real
// nodes but are never returned by a repository lookup.
func (p Path) DepGroup(n int) Path {
	return Path{
		Service:  p.Service,
		Instance: fmt.Sprintf("%s#depgroups/%d", p.Instance, n),
	}
}

// IsDepGroup reports whether p was synthesized by DepGroup.
func (p Path) IsDepGroup() bool {
	return containsDepGroupMarker(p.Instance)
}

func containsDepGroupMarker(instance string) bool {
	const marker = "#depgroups/"
	for i := 0; i+len(marker) <= len(instance); i++ {
		if instance[i:i+len(marker)] == marker {
			return true
		}
	}
	return false
}
