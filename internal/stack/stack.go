// Copyright 2021 Nick Tolhurst
// Licensed under the AGPLv3, see LICENCE file for details.

// Package stack declares the private-rmq deployment: a RabbitMQ broker
// in a container group on its own virtual network, a client virtual
// machine on a second network, file-share backed broker persistence,
// security groups, network peering, and a private DNS zone resolving
// the broker from both networks. Build is pure; nothing here talks to
// a cloud provider.
package stack

import (
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/nicktolhurst/private-rmq/internal/config"
	"github.com/nicktolhurst/private-rmq/internal/topology"
)

const (
	// brokerStartupDelay is how long the container command sleeps
	// before launching the broker. Starting rabbitmq-server before
	// the group's network attachment has settled loses the first
	// cluster port bind, so the launch is deferred by a fixed,
	// deliberately generous interval.
	brokerStartupDelay = 30 * time.Second

	brokerAddressSpace = "10.1.0.0/16"
	brokerSubnetPrefix = "10.1.0.0/24"
	vmAddressSpace     = "10.2.0.0/16"
	vmSubnetPrefix     = "10.2.1.0/24"

	amqpPort       = 5672
	managementPort = 15672

	brokerRecordName = "rabbit"
	brokerRecordTTL  = 300

	aciDelegation = "Microsoft.ContainerInstance/containerGroups"
)

var brokerShares = []struct {
	name  string
	mount string
}{
	{"rabbitmq-data", "/var/lib/rabbitmq"},
	{"rabbitmq-log", "/var/log/rabbitmq"},
	{"rabbitmq-conf", "/etc/rabbitmq"},
}

// Outputs names the values surfaced to downstream consumers once the
// stack has been applied. BrokerFQDN is known at build time; the VM's
// public address is only assigned by the provider, so it is named by
// the resource it will be read from.
type Outputs struct {
	BrokerFQDN     string
	VMPublicIPFrom string
}

// Stack is an immutable built deployment: the resource graph plus its
// outputs record.
type Stack struct {
	Graph   *topology.Graph
	Outputs Outputs
}

// Build assembles and validates the full resource graph for the given
// configuration and secret set. It is deterministic: equal inputs
// produce an identical graph, so a rebuilt declaration can be compared
// against a previous one.
func Build(cfg *config.Config, secrets Secrets) (*Stack, error) {
	if err := secrets.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	n := names(cfg.NamePrefix)
	g := topology.NewGraph()

	err := g.Add(
		topology.ResourceGroup{GroupName: n.dnsGroup, Location: cfg.Location},
		topology.ResourceGroup{GroupName: n.brokerGroup, Location: cfg.Location},
		topology.ResourceGroup{GroupName: n.vmGroup, Location: cfg.Location},
	)
	if err != nil {
		return nil, errors.Trace(err)
	}

	if err := addStorage(g, n); err != nil {
		return nil, errors.Trace(err)
	}
	if err := addBrokerNetwork(g, n); err != nil {
		return nil, errors.Trace(err)
	}
	if err := addBroker(g, n, cfg, secrets); err != nil {
		return nil, errors.Trace(err)
	}
	if err := addVM(g, n, cfg, secrets); err != nil {
		return nil, errors.Trace(err)
	}
	if err := addPeering(g, n); err != nil {
		return nil, errors.Trace(err)
	}
	if err := addDNS(g, n, cfg); err != nil {
		return nil, errors.Trace(err)
	}

	if err := g.Validate(); err != nil {
		return nil, errors.Annotate(err, "validating deployment graph")
	}
	return &Stack{
		Graph: g,
		Outputs: Outputs{
			BrokerFQDN:     brokerRecordName + "." + cfg.DNSZone,
			VMPublicIPFrom: n.vmPublicIP,
		},
	}, nil
}

// resourceNames fixes the name of every resource in the deployment.
// Names are derived from the configured prefix alone, with no random
// component, to keep Build deterministic.
type resourceNames struct {
	dnsGroup    string
	brokerGroup string
	vmGroup     string

	storageAccount string

	brokerNetwork string
	brokerSubnet  string
	brokerNSG     string
	brokerProfile string
	broker        string

	vmNetwork  string
	vmSubnet   string
	vmNSG      string
	vmPublicIP string
	vmNIC      string
	vm         string

	brokerToVMPeering string
	vmToBrokerPeering string

	dnsRecord  string
	brokerLink string
	vmLink     string
}

func names(prefix string) resourceNames {
	// Storage account names must be lowercase alphanumeric.
	account := strings.ReplaceAll(prefix, "-", "") + "brokerstore"
	return resourceNames{
		dnsGroup:          prefix + "-dns-rg",
		brokerGroup:       prefix + "-broker-rg",
		vmGroup:           prefix + "-vm-rg",
		storageAccount:    account,
		brokerNetwork:     prefix + "-broker-vnet",
		brokerSubnet:      prefix + "-broker-subnet",
		brokerNSG:         prefix + "-broker-nsg",
		brokerProfile:     prefix + "-broker-netprofile",
		broker:            prefix + "-broker",
		vmNetwork:         prefix + "-vm-vnet",
		vmSubnet:          prefix + "-vm-subnet",
		vmNSG:             prefix + "-vm-nsg",
		vmPublicIP:        prefix + "-vm-pip",
		vmNIC:             prefix + "-vm-nic",
		vm:                prefix + "-vm",
		brokerToVMPeering: prefix + "-broker-to-vm",
		vmToBrokerPeering: prefix + "-vm-to-broker",
		dnsRecord:         prefix + "-broker-record",
		brokerLink:        prefix + "-broker-link",
		vmLink:            prefix + "-vm-link",
	}
}

func addStorage(g *topology.Graph, n resourceNames) error {
	if err := g.Add(topology.StorageAccount{
		AccountName:   n.storageAccount,
		ResourceGroup: n.brokerGroup,
		SKU:           "Standard_LRS",
		AccountKind:   "StorageV2",
	}); err != nil {
		return errors.Trace(err)
	}
	for _, share := range brokerShares {
		if err := g.Add(topology.FileShare{
			ShareName:      share.name,
			ResourceGroup:  n.brokerGroup,
			StorageAccount: n.storageAccount,
			QuotaGB:        5,
		}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func addBrokerNetwork(g *topology.Graph, n resourceNames) error {
	return errors.Trace(g.Add(
		topology.NetworkSecurityGroup{
			SecurityGroupName: n.brokerNSG,
			ResourceGroup:     n.brokerGroup,
			Rules: []topology.SecurityRule{{
				RuleName:             "allow-amqp",
				Description:          "AMQP from the client network",
				Priority:             300,
				Direction:            "Inbound",
				Access:               "Allow",
				Protocol:             "Tcp",
				SourcePrefix:         vmAddressSpace,
				SourcePortRange:      "*",
				DestinationPrefix:    "*",
				DestinationPortRange: fmt.Sprint(amqpPort),
			}, {
				RuleName:             "allow-management",
				Description:          "management UI from the client network",
				Priority:             310,
				Direction:            "Inbound",
				Access:               "Allow",
				Protocol:             "Tcp",
				SourcePrefix:         vmAddressSpace,
				SourcePortRange:      "*",
				DestinationPrefix:    "*",
				DestinationPortRange: fmt.Sprint(managementPort),
			}},
		},
		topology.VirtualNetwork{
			NetworkName:   n.brokerNetwork,
			ResourceGroup: n.brokerGroup,
			AddressSpaces: []string{brokerAddressSpace},
		},
		topology.Subnet{
			SubnetName:     n.brokerSubnet,
			ResourceGroup:  n.brokerGroup,
			VirtualNetwork: n.brokerNetwork,
			Prefix:         brokerSubnetPrefix,
			Delegation:     aciDelegation,
			SecurityGroup:  n.brokerNSG,
		},
		topology.NetworkProfile{
			ProfileName:   n.brokerProfile,
			ResourceGroup: n.brokerGroup,
			Subnet:        n.brokerSubnet,
		},
	))
}

func addBroker(g *topology.Graph, n resourceNames, cfg *config.Config, secrets Secrets) error {
	launch := fmt.Sprintf("sleep %d; rabbitmq-server", int(brokerStartupDelay.Seconds()))
	volumes := make([]topology.VolumeMount, len(brokerShares))
	for i, share := range brokerShares {
		volumes[i] = topology.VolumeMount{
			Share:     share.name,
			MountPath: share.mount,
		}
	}
	return errors.Trace(g.Add(topology.ContainerGroup{
		ContainerGroupName: n.broker,
		ResourceGroup:      n.brokerGroup,
		Image:              cfg.BrokerImage,
		Command:            []string{"/bin/bash", "-c", launch},
		CPU:                1,
		MemoryGB:           2,
		Ports:              []int32{amqpPort, managementPort},
		Env: []topology.EnvVar{
			{Name: "RABBITMQ_DEFAULT_USER", Value: cfg.AdminUsername},
			{Name: "RABBITMQ_DEFAULT_PASS", Value: secrets.AdminPassword, Secure: true},
			{Name: "RABBITMQ_ERLANG_COOKIE", Value: secrets.ErlangCookie, Secure: true},
		},
		Volumes:        volumes,
		NetworkProfile: n.brokerProfile,
	}))
}

func addVM(g *topology.Graph, n resourceNames, cfg *config.Config, secrets Secrets) error {
	return errors.Trace(g.Add(
		topology.NetworkSecurityGroup{
			SecurityGroupName: n.vmNSG,
			ResourceGroup:     n.vmGroup,
			Rules: []topology.SecurityRule{{
				RuleName:             "allow-ssh",
				Description:          "operator SSH",
				Priority:             300,
				Direction:            "Inbound",
				Access:               "Allow",
				Protocol:             "Tcp",
				SourcePrefix:         "*",
				SourcePortRange:      "*",
				DestinationPrefix:    "*",
				DestinationPortRange: "22",
			}},
		},
		topology.VirtualNetwork{
			NetworkName:   n.vmNetwork,
			ResourceGroup: n.vmGroup,
			AddressSpaces: []string{vmAddressSpace},
		},
		topology.Subnet{
			SubnetName:     n.vmSubnet,
			ResourceGroup:  n.vmGroup,
			VirtualNetwork: n.vmNetwork,
			Prefix:         vmSubnetPrefix,
		},
		topology.PublicIP{
			IPName:        n.vmPublicIP,
			ResourceGroup: n.vmGroup,
		},
		topology.NetworkInterface{
			InterfaceName: n.vmNIC,
			ResourceGroup: n.vmGroup,
			Subnet:        n.vmSubnet,
			PublicIP:      n.vmPublicIP,
			SecurityGroup: n.vmNSG,
		},
		topology.VirtualMachine{
			MachineName:   n.vm,
			ResourceGroup: n.vmGroup,
			Size:          cfg.VMSize,
			Image: topology.ImageReference{
				Publisher: "Canonical",
				Offer:     "UbuntuServer",
				SKU:       "18.04-LTS",
				Version:   "latest",
			},
			AdminUsername:    cfg.AdminUsername,
			AdminPassword:    secrets.AdminPassword,
			NetworkInterface: n.vmNIC,
		},
	))
}

func addPeering(g *topology.Graph, n resourceNames) error {
	return errors.Trace(g.Add(
		topology.Peering{
			PeeringName:   n.brokerToVMPeering,
			ResourceGroup: n.brokerGroup,
			Network:       n.brokerNetwork,
			RemoteNetwork: n.vmNetwork,
		},
		topology.Peering{
			PeeringName:   n.vmToBrokerPeering,
			ResourceGroup: n.vmGroup,
			Network:       n.vmNetwork,
			RemoteNetwork: n.brokerNetwork,
		},
	))
}

func addDNS(g *topology.Graph, n resourceNames, cfg *config.Config) error {
	return errors.Trace(g.Add(
		topology.PrivateDNSZone{
			ZoneName:      cfg.DNSZone,
			ResourceGroup: n.dnsGroup,
		},
		topology.DNSRecord{
			RecordName:    n.dnsRecord,
			ResourceGroup: n.dnsGroup,
			Zone:          cfg.DNSZone,
			RelativeName:  brokerRecordName,
			TTL:           brokerRecordTTL,
			AddressFrom:   n.broker,
		},
		topology.DNSZoneLink{
			LinkName:      n.brokerLink,
			ResourceGroup: n.dnsGroup,
			Zone:          cfg.DNSZone,
			Network:       n.brokerNetwork,
		},
		topology.DNSZoneLink{
			LinkName:      n.vmLink,
			ResourceGroup: n.dnsGroup,
			Zone:          cfg.DNSZone,
			Network:       n.vmNetwork,
		},
	))
}
