// Copyright 2021 Nick Tolhurst
// Licensed under the AGPLv3, see LICENCE file for details.

package topology

import (
	"net/netip"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/naturalsort"
)

// Graph is a set of resource descriptors indexed by name. The zero
// value is not usable; construct with NewGraph.
type Graph struct {
	resources []Resource
	byName    map[string]Resource
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{byName: make(map[string]Resource)}
}

// Add appends a resource to the graph. Names are unique across the
// whole deployment, not per kind.
func (g *Graph) Add(resources ...Resource) error {
	for _, r := range resources {
		if r.Name() == "" {
			return errors.NotValidf("%s resource with empty name", r.Kind())
		}
		if _, ok := g.byName[r.Name()]; ok {
			return errors.AlreadyExistsf("resource %q", r.Name())
		}
		g.resources = append(g.resources, r)
		g.byName[r.Name()] = r
	}
	return nil
}

// Resource returns the named resource, if declared.
func (g *Graph) Resource(name string) (Resource, bool) {
	r, ok := g.byName[name]
	return r, ok
}

// Len returns the number of declared resources.
func (g *Graph) Len() int {
	return len(g.resources)
}

// Resources returns the resources in declaration order. The returned
// slice is a copy.
func (g *Graph) Resources() []Resource {
	out := make([]Resource, len(g.resources))
	copy(out, g.resources)
	return out
}

// Validate checks that the graph is submittable: every dependency
// names a declared resource of the kind the referent expects, the
// dependency relation is acyclic, and peered networks occupy disjoint
// address spaces. A resource removed while something still references
// it surfaces here as a dangling dependency, before anything reaches
// the provider.
func (g *Graph) Validate() error {
	for _, r := range g.resources {
		for _, dep := range r.DependsOn() {
			if _, ok := g.byName[dep]; !ok {
				return errors.NotValidf("resource %q depends on undeclared resource %q", r.Name(), dep)
			}
		}
		if err := g.checkReferenceKinds(r); err != nil {
			return errors.Trace(err)
		}
		if p, ok := r.(Peering); ok {
			if err := g.checkPeeringAddressSpaces(p); err != nil {
				return errors.Trace(err)
			}
		}
	}
	if _, err := g.Sorted(); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// checkReferenceKinds verifies that each typed reference field points
// at a resource of the kind it is meant for.
func (g *Graph) checkReferenceKinds(r Resource) error {
	check := func(name string, want Kind) error {
		if name == "" {
			return nil
		}
		ref, ok := g.byName[name]
		if !ok {
			// Reported by Validate as a dangling dependency.
			return nil
		}
		if ref.Kind() != want {
			return errors.NotValidf(
				"resource %q references %q as a %s but it is a %s",
				r.Name(), name, want, ref.Kind())
		}
		return nil
	}
	var err error
	switch r := r.(type) {
	case VirtualNetwork:
		err = check(r.ResourceGroup, KindResourceGroup)
	case Subnet:
		for _, c := range []error{
			check(r.ResourceGroup, KindResourceGroup),
			check(r.VirtualNetwork, KindVirtualNetwork),
			check(r.SecurityGroup, KindSecurityGroup),
		} {
			if c != nil {
				return errors.Trace(c)
			}
		}
	case NetworkInterface:
		for _, c := range []error{
			check(r.ResourceGroup, KindResourceGroup),
			check(r.Subnet, KindSubnet),
			check(r.PublicIP, KindPublicIP),
			check(r.SecurityGroup, KindSecurityGroup),
		} {
			if c != nil {
				return errors.Trace(c)
			}
		}
	case FileShare:
		err = check(r.StorageAccount, KindStorageAccount)
	case NetworkProfile:
		err = check(r.Subnet, KindSubnet)
	case ContainerGroup:
		if err := check(r.NetworkProfile, KindNetworkProfile); err != nil {
			return errors.Trace(err)
		}
		for _, v := range r.Volumes {
			if err := check(v.Share, KindFileShare); err != nil {
				return errors.Trace(err)
			}
		}
	case VirtualMachine:
		err = check(r.NetworkInterface, KindNetworkInterface)
	case Peering:
		for _, c := range []error{
			check(r.Network, KindVirtualNetwork),
			check(r.RemoteNetwork, KindVirtualNetwork),
		} {
			if c != nil {
				return errors.Trace(c)
			}
		}
	case DNSRecord:
		for _, c := range []error{
			check(r.Zone, KindPrivateDNSZone),
			check(r.AddressFrom, KindContainerGroup),
		} {
			if c != nil {
				return errors.Trace(c)
			}
		}
	case DNSZoneLink:
		for _, c := range []error{
			check(r.Zone, KindPrivateDNSZone),
			check(r.Network, KindVirtualNetwork),
		} {
			if c != nil {
				return errors.Trace(c)
			}
		}
	}
	return errors.Trace(err)
}

// checkPeeringAddressSpaces rejects peerings whose networks share any
// address range; traffic between overlapping peered networks is
// undeliverable.
func (g *Graph) checkPeeringAddressSpaces(p Peering) error {
	local, err := g.networkPrefixes(p.Network)
	if err != nil {
		return errors.Trace(err)
	}
	remote, err := g.networkPrefixes(p.RemoteNetwork)
	if err != nil {
		return errors.Trace(err)
	}
	for _, l := range local {
		for _, r := range remote {
			if l.Overlaps(r) {
				return errors.NotValidf(
					"peering %q: address space %s of network %q overlaps %s of network %q",
					p.PeeringName, l, p.Network, r, p.RemoteNetwork)
			}
		}
	}
	return nil
}

func (g *Graph) networkPrefixes(name string) ([]netip.Prefix, error) {
	r, ok := g.byName[name]
	if !ok {
		return nil, nil
	}
	vnet, ok := r.(VirtualNetwork)
	if !ok {
		return nil, nil
	}
	prefixes := make([]netip.Prefix, 0, len(vnet.AddressSpaces))
	for _, cidr := range vnet.AddressSpaces {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, errors.NotValidf("network %q address space %q", name, cidr)
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, nil
}

// Sorted returns the resources in an order where every resource
// follows all of its dependencies. The order is total and stable:
// ready resources are emitted in natural name order, so the same graph
// always sorts the same way regardless of declaration order.
func (g *Graph) Sorted() ([]Resource, error) {
	dependants := make(map[string][]string, len(g.resources))
	indegree := make(map[string]int, len(g.resources))
	for _, r := range g.resources {
		deps := set.NewStrings()
		for _, dep := range r.DependsOn() {
			if _, ok := g.byName[dep]; !ok {
				return nil, errors.NotValidf("resource %q depends on undeclared resource %q", r.Name(), dep)
			}
			deps.Add(dep)
		}
		indegree[r.Name()] = deps.Size()
		for _, dep := range deps.Values() {
			dependants[dep] = append(dependants[dep], r.Name())
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	naturalsort.Sort(ready)

	sorted := make([]Resource, 0, len(g.resources))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		sorted = append(sorted, g.byName[name])
		var released []string
		for _, dep := range dependants[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				released = append(released, dep)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			naturalsort.Sort(ready)
		}
	}
	if len(sorted) != len(g.resources) {
		remaining := set.NewStrings()
		for name, n := range indegree {
			if n > 0 {
				remaining.Add(name)
			}
		}
		return nil, errors.NotValidf("dependency cycle involving %v", remaining.SortedValues())
	}
	return sorted, nil
}
