// Copyright 2021 Nick Tolhurst
// Licensed under the AGPLv3, see LICENCE file for details.

package topology_test

import (
	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/nicktolhurst/private-rmq/internal/topology"
)

type graphSuite struct {
	jujutesting.IsolationSuite
}

var _ = gc.Suite(&graphSuite{})

// fakeResource lets tests shape arbitrary dependency structures,
// including ones the real descriptors cannot express (cycles).
type fakeResource struct {
	name string
	deps []string
}

func (r fakeResource) Name() string        { return r.name }
func (r fakeResource) Kind() topology.Kind { return topology.Kind("fake") }
func (r fakeResource) DependsOn() []string { return r.deps }

func (s *graphSuite) TestAddDuplicateName(c *gc.C) {
	g := topology.NewGraph()
	err := g.Add(
		topology.ResourceGroup{GroupName: "rg", Location: "westeurope"},
		topology.ResourceGroup{GroupName: "rg", Location: "westeurope"},
	)
	c.Assert(err, jc.Satisfies, errors.IsAlreadyExists)
	c.Assert(err, gc.ErrorMatches, `resource "rg" already exists`)
}

func (s *graphSuite) TestAddEmptyName(c *gc.C) {
	g := topology.NewGraph()
	err := g.Add(topology.ResourceGroup{Location: "westeurope"})
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
}

func (s *graphSuite) TestValidateDanglingReference(c *gc.C) {
	g := topology.NewGraph()
	err := g.Add(
		topology.ResourceGroup{GroupName: "rg", Location: "westeurope"},
		topology.Subnet{
			SubnetName:     "subnet",
			ResourceGroup:  "rg",
			VirtualNetwork: "vnet",
			Prefix:         "10.1.0.0/24",
		},
	)
	c.Assert(err, jc.ErrorIsNil)
	err = g.Validate()
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
	c.Assert(err, gc.ErrorMatches,
		`resource "subnet" depends on undeclared resource "vnet" not valid`)
}

func (s *graphSuite) TestValidateKindMismatch(c *gc.C) {
	g := topology.NewGraph()
	err := g.Add(
		topology.ResourceGroup{GroupName: "rg", Location: "westeurope"},
		topology.ResourceGroup{GroupName: "not-a-vnet", Location: "westeurope"},
		topology.Subnet{
			SubnetName:     "subnet",
			ResourceGroup:  "rg",
			VirtualNetwork: "not-a-vnet",
			Prefix:         "10.1.0.0/24",
		},
	)
	c.Assert(err, jc.ErrorIsNil)
	err = g.Validate()
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
	c.Assert(err, gc.ErrorMatches,
		`resource "subnet" references "not-a-vnet" as a virtual-network but it is a resource-group not valid`)
}

func (s *graphSuite) TestValidateCycle(c *gc.C) {
	g := topology.NewGraph()
	err := g.Add(
		fakeResource{name: "a", deps: []string{"b"}},
		fakeResource{name: "b", deps: []string{"a"}},
	)
	c.Assert(err, jc.ErrorIsNil)
	err = g.Validate()
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
	c.Assert(err, gc.ErrorMatches, `dependency cycle involving \[a b\] not valid`)
}

func (s *graphSuite) TestSortedDependenciesFirst(c *gc.C) {
	g := simpleNetwork(c, "10.1.0.0/16")
	sorted, err := g.Sorted()
	c.Assert(err, jc.ErrorIsNil)

	position := make(map[string]int)
	for i, r := range sorted {
		position[r.Name()] = i
	}
	for _, r := range sorted {
		for _, dep := range r.DependsOn() {
			c.Check(position[dep] < position[r.Name()], jc.IsTrue,
				gc.Commentf("%q sorted before its dependency %q", r.Name(), dep))
		}
	}
}

func (s *graphSuite) TestSortedStableAcrossDeclarationOrder(c *gc.C) {
	forward := topology.NewGraph()
	err := forward.Add(
		topology.ResourceGroup{GroupName: "rg", Location: "westeurope"},
		topology.StorageAccount{AccountName: "store", ResourceGroup: "rg"},
		topology.PublicIP{IPName: "pip", ResourceGroup: "rg"},
	)
	c.Assert(err, jc.ErrorIsNil)

	reversed := topology.NewGraph()
	err = reversed.Add(
		topology.PublicIP{IPName: "pip", ResourceGroup: "rg"},
		topology.StorageAccount{AccountName: "store", ResourceGroup: "rg"},
		topology.ResourceGroup{GroupName: "rg", Location: "westeurope"},
	)
	c.Assert(err, jc.ErrorIsNil)

	a, err := forward.Sorted()
	c.Assert(err, jc.ErrorIsNil)
	b, err := reversed.Sorted()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(a, jc.DeepEquals, b)
}

func (s *graphSuite) TestPeeringOverlappingAddressSpaces(c *gc.C) {
	g := peeredNetworks(c, "10.1.0.0/16", "10.1.128.0/17")
	err := g.Validate()
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
	c.Assert(err, gc.ErrorMatches,
		`peering "peer": address space 10.1.0.0/16 of network "net-a" overlaps 10.1.128.0/17 of network "net-b" not valid`)
}

func (s *graphSuite) TestPeeringDisjointAddressSpaces(c *gc.C) {
	g := peeredNetworks(c, "10.1.0.0/16", "10.2.0.0/16")
	c.Assert(g.Validate(), jc.ErrorIsNil)
}

func (s *graphSuite) TestPeeringMalformedAddressSpace(c *gc.C) {
	g := peeredNetworks(c, "10.1.0.0/16", "10.2.0.0")
	err := g.Validate()
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
	c.Assert(err, gc.ErrorMatches,
		`network "net-b" address space "10.2.0.0" not valid`)
}

func (s *graphSuite) TestRecordMustReferenceContainerGroup(c *gc.C) {
	g := topology.NewGraph()
	err := g.Add(
		topology.ResourceGroup{GroupName: "rg", Location: "westeurope"},
		topology.PrivateDNSZone{ZoneName: "zone", ResourceGroup: "rg"},
		topology.StorageAccount{AccountName: "store", ResourceGroup: "rg"},
		topology.DNSRecord{
			RecordName:    "record",
			ResourceGroup: "rg",
			Zone:          "zone",
			RelativeName:  "rabbit",
			TTL:           300,
			AddressFrom:   "store",
		},
	)
	c.Assert(err, jc.ErrorIsNil)
	err = g.Validate()
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
	c.Assert(err, gc.ErrorMatches,
		`resource "record" references "store" as a container-group but it is a storage-account not valid`)
}

func simpleNetwork(c *gc.C, addressSpace string) *topology.Graph {
	g := topology.NewGraph()
	err := g.Add(
		topology.ResourceGroup{GroupName: "rg", Location: "westeurope"},
		topology.NetworkSecurityGroup{SecurityGroupName: "nsg", ResourceGroup: "rg"},
		topology.VirtualNetwork{
			NetworkName:   "vnet",
			ResourceGroup: "rg",
			AddressSpaces: []string{addressSpace},
		},
		topology.Subnet{
			SubnetName:     "subnet",
			ResourceGroup:  "rg",
			VirtualNetwork: "vnet",
			Prefix:         "10.1.0.0/24",
			SecurityGroup:  "nsg",
		},
		topology.PublicIP{IPName: "pip", ResourceGroup: "rg"},
		topology.NetworkInterface{
			InterfaceName: "nic",
			ResourceGroup: "rg",
			Subnet:        "subnet",
			PublicIP:      "pip",
			SecurityGroup: "nsg",
		},
	)
	c.Assert(err, jc.ErrorIsNil)
	return g
}

func peeredNetworks(c *gc.C, spaceA, spaceB string) *topology.Graph {
	g := topology.NewGraph()
	err := g.Add(
		topology.ResourceGroup{GroupName: "rg", Location: "westeurope"},
		topology.VirtualNetwork{
			NetworkName:   "net-a",
			ResourceGroup: "rg",
			AddressSpaces: []string{spaceA},
		},
		topology.VirtualNetwork{
			NetworkName:   "net-b",
			ResourceGroup: "rg",
			AddressSpaces: []string{spaceB},
		},
		topology.Peering{
			PeeringName:   "peer",
			ResourceGroup: "rg",
			Network:       "net-a",
			RemoteNetwork: "net-b",
		},
	)
	c.Assert(err, jc.ErrorIsNil)
	return g
}
