// Copyright 2021 Nick Tolhurst
// Licensed under the AGPLv3, see LICENCE file for details.

package stack_test

import (
	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/nicktolhurst/private-rmq/internal/config"
	"github.com/nicktolhurst/private-rmq/internal/stack"
	"github.com/nicktolhurst/private-rmq/internal/topology"
)

type stackSuite struct {
	jujutesting.IsolationSuite
}

var _ = gc.Suite(&stackSuite{})

var testSecrets = stack.Secrets{
	AdminPassword: "s3cret-password",
	ErlangCookie:  "ABCDEFGHIJKLMNOPQRST",
}

func (s *stackSuite) testConfig(c *gc.C) *config.Config {
	cfg, err := config.New(map[string]interface{}{
		"location": "westeurope",
		"dns-zone": "rmq.internal",
	})
	c.Assert(err, jc.ErrorIsNil)
	return cfg
}

func (s *stackSuite) build(c *gc.C) *stack.Stack {
	st, err := stack.Build(s.testConfig(c), testSecrets)
	c.Assert(err, jc.ErrorIsNil)
	return st
}

func (s *stackSuite) TestBuildValidates(c *gc.C) {
	st := s.build(c)
	c.Assert(st.Graph.Validate(), jc.ErrorIsNil)
	c.Assert(st.Graph.Len(), gc.Equals, 24)
}

func (s *stackSuite) TestBuildDeterministic(c *gc.C) {
	a := s.build(c)
	b := s.build(c)
	c.Assert(a.Outputs, jc.DeepEquals, b.Outputs)
	c.Assert(a.Graph.Resources(), jc.DeepEquals, b.Graph.Resources())

	sortedA, err := a.Graph.Sorted()
	c.Assert(err, jc.ErrorIsNil)
	sortedB, err := b.Graph.Sorted()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(sortedA, jc.DeepEquals, sortedB)
}

func (s *stackSuite) TestBuildRejectsEmptySecrets(c *gc.C) {
	_, err := stack.Build(s.testConfig(c), stack.Secrets{})
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
}

func (s *stackSuite) TestAddressSpacesDisjoint(c *gc.C) {
	st := s.build(c)
	broker := s.virtualNetwork(c, st, "rmq-broker-vnet")
	vm := s.virtualNetwork(c, st, "rmq-vm-vnet")
	c.Assert(broker.AddressSpaces, jc.DeepEquals, []string{"10.1.0.0/16"})
	c.Assert(vm.AddressSpaces, jc.DeepEquals, []string{"10.2.0.0/16"})
}

func (s *stackSuite) TestBrokerSubnetDelegated(c *gc.C) {
	st := s.build(c)
	r, ok := st.Graph.Resource("rmq-broker-subnet")
	c.Assert(ok, jc.IsTrue)
	subnet := r.(topology.Subnet)
	c.Assert(subnet.Delegation, gc.Equals, "Microsoft.ContainerInstance/containerGroups")
	c.Assert(subnet.SecurityGroup, gc.Equals, "rmq-broker-nsg")
	c.Assert(subnet.Prefix, gc.Equals, "10.1.0.0/24")
}

func (s *stackSuite) TestBrokerCommandDefersLaunch(c *gc.C) {
	broker := s.containerGroup(c, s.build(c))
	c.Assert(broker.Command, jc.DeepEquals, []string{
		"/bin/bash", "-c", "sleep 30; rabbitmq-server",
	})
}

func (s *stackSuite) TestBrokerEnvironment(c *gc.C) {
	broker := s.containerGroup(c, s.build(c))
	c.Assert(broker.Env, jc.DeepEquals, []topology.EnvVar{
		{Name: "RABBITMQ_DEFAULT_USER", Value: "rabbitadmin"},
		{Name: "RABBITMQ_DEFAULT_PASS", Value: testSecrets.AdminPassword, Secure: true},
		{Name: "RABBITMQ_ERLANG_COOKIE", Value: testSecrets.ErlangCookie, Secure: true},
	})
}

func (s *stackSuite) TestBrokerPersistenceMounts(c *gc.C) {
	broker := s.containerGroup(c, s.build(c))
	c.Assert(broker.Volumes, jc.DeepEquals, []topology.VolumeMount{
		{Share: "rabbitmq-data", MountPath: "/var/lib/rabbitmq"},
		{Share: "rabbitmq-log", MountPath: "/var/log/rabbitmq"},
		{Share: "rabbitmq-conf", MountPath: "/etc/rabbitmq"},
	})
}

func (s *stackSuite) TestBrokerPorts(c *gc.C) {
	broker := s.containerGroup(c, s.build(c))
	c.Assert(broker.Ports, jc.DeepEquals, []int32{5672, 15672})
}

func (s *stackSuite) TestRecordTracksBrokerAddress(c *gc.C) {
	st := s.build(c)
	r, ok := st.Graph.Resource("rmq-broker-record")
	c.Assert(ok, jc.IsTrue)
	record := r.(topology.DNSRecord)
	c.Assert(record.AddressFrom, gc.Equals, "rmq-broker")
	c.Assert(record.Zone, gc.Equals, "rmq.internal")
	c.Assert(record.RelativeName, gc.Equals, "rabbit")
}

func (s *stackSuite) TestZoneLinkedToBothNetworks(c *gc.C) {
	st := s.build(c)
	for name, network := range map[string]string{
		"rmq-broker-link": "rmq-broker-vnet",
		"rmq-vm-link":     "rmq-vm-vnet",
	} {
		r, ok := st.Graph.Resource(name)
		c.Assert(ok, jc.IsTrue, gc.Commentf("link %q", name))
		link := r.(topology.DNSZoneLink)
		c.Check(link.Zone, gc.Equals, "rmq.internal")
		c.Check(link.Network, gc.Equals, network)
	}
}

func (s *stackSuite) TestOutputs(c *gc.C) {
	st := s.build(c)
	c.Assert(st.Outputs, jc.DeepEquals, stack.Outputs{
		BrokerFQDN:     "rabbit.rmq.internal",
		VMPublicIPFrom: "rmq-vm-pip",
	})
}

func (s *stackSuite) TestPeeringBothDirections(c *gc.C) {
	st := s.build(c)
	a, ok := st.Graph.Resource("rmq-broker-to-vm")
	c.Assert(ok, jc.IsTrue)
	b, ok := st.Graph.Resource("rmq-vm-to-broker")
	c.Assert(ok, jc.IsTrue)
	peerA := a.(topology.Peering)
	peerB := b.(topology.Peering)
	c.Assert(peerA.Network, gc.Equals, peerB.RemoteNetwork)
	c.Assert(peerA.RemoteNetwork, gc.Equals, peerB.Network)
}

func (s *stackSuite) TestVMCredentialsFromSecrets(c *gc.C) {
	st := s.build(c)
	r, ok := st.Graph.Resource("rmq-vm")
	c.Assert(ok, jc.IsTrue)
	vm := r.(topology.VirtualMachine)
	c.Assert(vm.AdminUsername, gc.Equals, "rabbitadmin")
	c.Assert(vm.AdminPassword, gc.Equals, testSecrets.AdminPassword)
	c.Assert(vm.NetworkInterface, gc.Equals, "rmq-vm-nic")
}

func (s *stackSuite) virtualNetwork(c *gc.C, st *stack.Stack, name string) topology.VirtualNetwork {
	r, ok := st.Graph.Resource(name)
	c.Assert(ok, jc.IsTrue)
	return r.(topology.VirtualNetwork)
}

func (s *stackSuite) containerGroup(c *gc.C, st *stack.Stack) topology.ContainerGroup {
	r, ok := st.Graph.Resource("rmq-broker")
	c.Assert(ok, jc.IsTrue)
	return r.(topology.ContainerGroup)
}
