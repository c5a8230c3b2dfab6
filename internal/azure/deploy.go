// Copyright 2021 Nick Tolhurst
// Licensed under the AGPLv3, see LICENCE file for details.

package azure

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/privatedns/armprivatedns"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"

	"github.com/nicktolhurst/private-rmq/internal/stack"
	"github.com/nicktolhurst/private-rmq/internal/topology"
)

var logger = loggo.GetLogger("private-rmq.azure")

const (
	// Dynamic addresses are assigned some time after the owning
	// resource reports created; poll until they appear.
	addressPollDelay    = 5 * time.Second
	addressPollAttempts = 24
)

// Deployer submits a built stack to ARM, resource by resource in
// dependency order.
type Deployer struct {
	clients *Clients
	clock   clock.Clock
}

// NewDeployer returns a Deployer using the given client bundle.
func NewDeployer(clients *Clients) *Deployer {
	return &Deployer{clients: clients, clock: clock.WallClock}
}

// Results are the values surfaced once a deployment completes.
type Results struct {
	BrokerFQDN string
	VMPublicIP string
}

// deployState accumulates the provider-assigned values later resources
// consume: storage access keys for volume mounts and container group
// private addresses for DNS records.
type deployState struct {
	storageKeys  map[string]string
	containerIPs map[string]string
}

// Deploy validates the stack, then creates every resource in
// topological order. Each created descriptor's runtime values are
// resolved before the resources that consume them are submitted.
func (d *Deployer) Deploy(ctx context.Context, st *stack.Stack) (Results, error) {
	if err := st.Graph.Validate(); err != nil {
		return Results{}, errors.Annotate(err, "refusing to deploy invalid graph")
	}
	sorted, err := st.Graph.Sorted()
	if err != nil {
		return Results{}, errors.Trace(err)
	}
	state := &deployState{
		storageKeys:  make(map[string]string),
		containerIPs: make(map[string]string),
	}
	for _, r := range sorted {
		logger.Infof("creating %s %q", r.Kind(), r.Name())
		if err := d.applyOne(ctx, st.Graph, state, r); err != nil {
			return Results{}, errors.Annotatef(err, "creating %s %q", r.Kind(), r.Name())
		}
	}
	publicIP, err := d.waitPublicIP(ctx, st.Graph, st.Outputs.VMPublicIPFrom)
	if err != nil {
		return Results{}, errors.Trace(err)
	}
	return Results{
		BrokerFQDN: st.Outputs.BrokerFQDN,
		VMPublicIP: publicIP,
	}, nil
}

// Destroy tears the deployment down by deleting its resource groups in
// reverse creation order; everything inside a group goes with it.
func (d *Deployer) Destroy(ctx context.Context, st *stack.Stack) error {
	sorted, err := st.Graph.Sorted()
	if err != nil {
		return errors.Trace(err)
	}
	var groups []string
	for _, r := range sorted {
		if r.Kind() == topology.KindResourceGroup {
			groups = append(groups, r.Name())
		}
	}
	for i := len(groups) - 1; i >= 0; i-- {
		logger.Infof("deleting resource group %q", groups[i])
		poller, err := d.clients.ResourceGroups.BeginDelete(ctx, groups[i], nil)
		if err != nil {
			return errors.Annotatef(err, "deleting resource group %q", groups[i])
		}
		if _, err := poller.PollUntilDone(ctx, nil); err != nil {
			return errors.Annotatef(err, "deleting resource group %q", groups[i])
		}
	}
	return nil
}

func (d *Deployer) applyOne(ctx context.Context, g *topology.Graph, state *deployState, r topology.Resource) error {
	switch r := r.(type) {
	case topology.ResourceGroup:
		_, err := d.clients.ResourceGroups.CreateOrUpdate(ctx, r.GroupName, resourceGroupParams(r), nil)
		return errors.Trace(err)
	case topology.VirtualNetwork:
		location, err := groupLocation(g, r.ResourceGroup)
		if err != nil {
			return errors.Trace(err)
		}
		poller, err := d.clients.VirtualNetworks.BeginCreateOrUpdate(
			ctx, r.ResourceGroup, r.NetworkName, virtualNetworkParams(r, location), nil)
		if err != nil {
			return errors.Trace(err)
		}
		_, err = poller.PollUntilDone(ctx, nil)
		return errors.Trace(err)
	case topology.Subnet:
		var nsgID string
		if r.SecurityGroup != "" {
			nsg, err := lookup[topology.NetworkSecurityGroup](g, r.SecurityGroup)
			if err != nil {
				return errors.Trace(err)
			}
			nsgID = securityGroupID(d.clients.SubscriptionID, nsg.ResourceGroup, nsg.SecurityGroupName)
		}
		poller, err := d.clients.Subnets.BeginCreateOrUpdate(
			ctx, r.ResourceGroup, r.VirtualNetwork, r.SubnetName, subnetParams(r, nsgID), nil)
		if err != nil {
			return errors.Trace(err)
		}
		_, err = poller.PollUntilDone(ctx, nil)
		return errors.Trace(err)
	case topology.NetworkSecurityGroup:
		location, err := groupLocation(g, r.ResourceGroup)
		if err != nil {
			return errors.Trace(err)
		}
		poller, err := d.clients.SecurityGroups.BeginCreateOrUpdate(
			ctx, r.ResourceGroup, r.SecurityGroupName, securityGroupParams(r, location), nil)
		if err != nil {
			return errors.Trace(err)
		}
		_, err = poller.PollUntilDone(ctx, nil)
		return errors.Trace(err)
	case topology.PublicIP:
		location, err := groupLocation(g, r.ResourceGroup)
		if err != nil {
			return errors.Trace(err)
		}
		poller, err := d.clients.PublicIPs.BeginCreateOrUpdate(
			ctx, r.ResourceGroup, r.IPName, publicIPParams(location), nil)
		if err != nil {
			return errors.Trace(err)
		}
		_, err = poller.PollUntilDone(ctx, nil)
		return errors.Trace(err)
	case topology.NetworkInterface:
		return errors.Trace(d.applyInterface(ctx, g, r))
	case topology.StorageAccount:
		return errors.Trace(d.applyStorageAccount(ctx, g, state, r))
	case topology.FileShare:
		_, err := d.clients.FileShares.Create(
			ctx, r.ResourceGroup, r.StorageAccount, r.ShareName, fileShareParams(r), nil)
		return errors.Trace(err)
	case topology.NetworkProfile:
		return errors.Trace(d.applyNetworkProfile(ctx, g, r))
	case topology.ContainerGroup:
		return errors.Trace(d.applyContainerGroup(ctx, g, state, r))
	case topology.VirtualMachine:
		return errors.Trace(d.applyVirtualMachine(ctx, g, r))
	case topology.Peering:
		remote, err := lookup[topology.VirtualNetwork](g, r.RemoteNetwork)
		if err != nil {
			return errors.Trace(err)
		}
		remoteID := virtualNetworkID(d.clients.SubscriptionID, remote.ResourceGroup, remote.NetworkName)
		poller, err := d.clients.Peerings.BeginCreateOrUpdate(
			ctx, r.ResourceGroup, r.Network, r.PeeringName, peeringParams(remoteID), nil)
		if err != nil {
			return errors.Trace(err)
		}
		_, err = poller.PollUntilDone(ctx, nil)
		return errors.Trace(err)
	case topology.PrivateDNSZone:
		poller, err := d.clients.PrivateZones.BeginCreateOrUpdate(
			ctx, r.ResourceGroup, r.ZoneName, privateZoneParams(), nil)
		if err != nil {
			return errors.Trace(err)
		}
		_, err = poller.PollUntilDone(ctx, nil)
		return errors.Trace(err)
	case topology.DNSRecord:
		address, ok := state.containerIPs[r.AddressFrom]
		if !ok || address == "" {
			return errors.NotFoundf("address of container group %q", r.AddressFrom)
		}
		_, err := d.clients.RecordSets.CreateOrUpdate(
			ctx, r.ResourceGroup, r.Zone, armprivatedns.RecordTypeA, r.RelativeName,
			recordSetParams(r, address), nil)
		return errors.Trace(err)
	case topology.DNSZoneLink:
		network, err := lookup[topology.VirtualNetwork](g, r.Network)
		if err != nil {
			return errors.Trace(err)
		}
		networkID := virtualNetworkID(d.clients.SubscriptionID, network.ResourceGroup, network.NetworkName)
		poller, err := d.clients.ZoneLinks.BeginCreateOrUpdate(
			ctx, r.ResourceGroup, r.Zone, r.LinkName, zoneLinkParams(r, networkID), nil)
		if err != nil {
			return errors.Trace(err)
		}
		_, err = poller.PollUntilDone(ctx, nil)
		return errors.Trace(err)
	default:
		return errors.NotSupportedf("resource kind %q", r.Kind())
	}
}

func (d *Deployer) applyInterface(ctx context.Context, g *topology.Graph, r topology.NetworkInterface) error {
	location, err := groupLocation(g, r.ResourceGroup)
	if err != nil {
		return errors.Trace(err)
	}
	subnet, err := lookup[topology.Subnet](g, r.Subnet)
	if err != nil {
		return errors.Trace(err)
	}
	subID := subnetID(d.clients.SubscriptionID, subnet.ResourceGroup, subnet.VirtualNetwork, subnet.SubnetName)
	var pipID, nsgID string
	if r.PublicIP != "" {
		pip, err := lookup[topology.PublicIP](g, r.PublicIP)
		if err != nil {
			return errors.Trace(err)
		}
		pipID = publicIPID(d.clients.SubscriptionID, pip.ResourceGroup, pip.IPName)
	}
	if r.SecurityGroup != "" {
		nsg, err := lookup[topology.NetworkSecurityGroup](g, r.SecurityGroup)
		if err != nil {
			return errors.Trace(err)
		}
		nsgID = securityGroupID(d.clients.SubscriptionID, nsg.ResourceGroup, nsg.SecurityGroupName)
	}
	poller, err := d.clients.Interfaces.BeginCreateOrUpdate(
		ctx, r.ResourceGroup, r.InterfaceName, interfaceParams(location, subID, pipID, nsgID), nil)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return errors.Trace(err)
}

func (d *Deployer) applyStorageAccount(ctx context.Context, g *topology.Graph, state *deployState, r topology.StorageAccount) error {
	location, err := groupLocation(g, r.ResourceGroup)
	if err != nil {
		return errors.Trace(err)
	}
	poller, err := d.clients.StorageAccounts.BeginCreate(
		ctx, r.ResourceGroup, r.AccountName, storageAccountParams(r, location), nil)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return errors.Trace(err)
	}
	keys, err := d.clients.StorageAccounts.ListKeys(ctx, r.ResourceGroup, r.AccountName, nil)
	if err != nil {
		return errors.Annotate(err, "listing storage account keys")
	}
	if len(keys.Keys) == 0 || keys.Keys[0].Value == nil {
		return errors.NotFoundf("access keys for storage account %q", r.AccountName)
	}
	state.storageKeys[r.AccountName] = *keys.Keys[0].Value
	return nil
}

func (d *Deployer) applyNetworkProfile(ctx context.Context, g *topology.Graph, r topology.NetworkProfile) error {
	location, err := groupLocation(g, r.ResourceGroup)
	if err != nil {
		return errors.Trace(err)
	}
	subnet, err := lookup[topology.Subnet](g, r.Subnet)
	if err != nil {
		return errors.Trace(err)
	}
	subID := subnetID(d.clients.SubscriptionID, subnet.ResourceGroup, subnet.VirtualNetwork, subnet.SubnetName)
	_, err = d.clients.Profiles.CreateOrUpdate(
		ctx, r.ResourceGroup, r.ProfileName, networkProfileParams(location, subID), nil)
	return errors.Trace(err)
}

func (d *Deployer) applyContainerGroup(ctx context.Context, g *topology.Graph, state *deployState, r topology.ContainerGroup) error {
	location, err := groupLocation(g, r.ResourceGroup)
	if err != nil {
		return errors.Trace(err)
	}
	profile, err := lookup[topology.NetworkProfile](g, r.NetworkProfile)
	if err != nil {
		return errors.Trace(err)
	}
	profileID := networkProfileID(d.clients.SubscriptionID, profile.ResourceGroup, profile.ProfileName)

	sources := make(map[string]azureFileSource, len(r.Volumes))
	for _, vol := range r.Volumes {
		share, err := lookup[topology.FileShare](g, vol.Share)
		if err != nil {
			return errors.Trace(err)
		}
		key, ok := state.storageKeys[share.StorageAccount]
		if !ok {
			return errors.NotFoundf("access key for storage account %q", share.StorageAccount)
		}
		sources[vol.Share] = azureFileSource{account: share.StorageAccount, key: key}
	}

	poller, err := d.clients.ContainerGroups.BeginCreateOrUpdate(
		ctx, r.ResourceGroup, r.ContainerGroupName,
		containerGroupParams(r, location, profileID, sources), nil)
	if err != nil {
		return errors.Trace(err)
	}
	created, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return errors.Trace(err)
	}

	ip := ""
	if created.Properties != nil && created.Properties.IPAddress != nil && created.Properties.IPAddress.IP != nil {
		ip = *created.Properties.IPAddress.IP
	}
	if ip == "" {
		ip, err = d.waitContainerGroupAddress(ctx, r)
		if err != nil {
			return errors.Trace(err)
		}
	}
	state.containerIPs[r.ContainerGroupName] = ip
	return nil
}

// waitContainerGroupAddress polls until the provider has assigned the
// group its private address.
func (d *Deployer) waitContainerGroupAddress(ctx context.Context, r topology.ContainerGroup) (string, error) {
	var ip string
	err := retry.Call(retry.CallArgs{
		Clock:    d.clock,
		Attempts: addressPollAttempts,
		Delay:    addressPollDelay,
		Func: func() error {
			resp, err := d.clients.ContainerGroups.Get(ctx, r.ResourceGroup, r.ContainerGroupName, nil)
			if err != nil {
				return errors.Trace(err)
			}
			if resp.Properties == nil || resp.Properties.IPAddress == nil ||
				resp.Properties.IPAddress.IP == nil || *resp.Properties.IPAddress.IP == "" {
				return errors.NotProvisionedf("container group %q address", r.ContainerGroupName)
			}
			ip = *resp.Properties.IPAddress.IP
			return nil
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("waiting for container group %q address (attempt %d): %v",
				r.ContainerGroupName, attempt, err)
		},
	})
	if err != nil {
		return "", errors.Annotatef(err, "waiting for container group %q address", r.ContainerGroupName)
	}
	return ip, nil
}

func (d *Deployer) applyVirtualMachine(ctx context.Context, g *topology.Graph, r topology.VirtualMachine) error {
	location, err := groupLocation(g, r.ResourceGroup)
	if err != nil {
		return errors.Trace(err)
	}
	nic, err := lookup[topology.NetworkInterface](g, r.NetworkInterface)
	if err != nil {
		return errors.Trace(err)
	}
	nicID := interfaceID(d.clients.SubscriptionID, nic.ResourceGroup, nic.InterfaceName)
	poller, err := d.clients.VirtualMachines.BeginCreateOrUpdate(
		ctx, r.ResourceGroup, r.MachineName, virtualMachineParams(r, location, nicID), nil)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return errors.Trace(err)
}

// waitPublicIP reads the address of a dynamically allocated public IP,
// which is only assigned once the machine holding it has started.
func (d *Deployer) waitPublicIP(ctx context.Context, g *topology.Graph, name string) (string, error) {
	pip, err := lookup[topology.PublicIP](g, name)
	if err != nil {
		return "", errors.Trace(err)
	}
	var address string
	err = retry.Call(retry.CallArgs{
		Clock:    d.clock,
		Attempts: addressPollAttempts,
		Delay:    addressPollDelay,
		Func: func() error {
			resp, err := d.clients.PublicIPs.Get(ctx, pip.ResourceGroup, pip.IPName, nil)
			if err != nil {
				return errors.Trace(err)
			}
			if resp.Properties == nil || resp.Properties.IPAddress == nil || *resp.Properties.IPAddress == "" {
				return errors.NotProvisionedf("public IP %q address", pip.IPName)
			}
			address = *resp.Properties.IPAddress
			return nil
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("waiting for public IP %q (attempt %d): %v", pip.IPName, attempt, err)
		},
	})
	if err != nil {
		return "", errors.Annotatef(err, "waiting for public IP %q", pip.IPName)
	}
	return address, nil
}

// groupLocation returns the location of the named resource group.
func groupLocation(g *topology.Graph, name string) (string, error) {
	group, err := lookup[topology.ResourceGroup](g, name)
	if err != nil {
		return "", errors.Trace(err)
	}
	return group.Location, nil
}

// lookup fetches a declared resource by name, asserting its descriptor
// type. Validation has already checked reference kinds, so a failure
// here means the graph was mutated after validation.
func lookup[T topology.Resource](g *topology.Graph, name string) (T, error) {
	var zero T
	r, ok := g.Resource(name)
	if !ok {
		return zero, errors.NotFoundf("resource %q", name)
	}
	typed, ok := r.(T)
	if !ok {
		return zero, errors.NotValidf("resource %q of kind %s", name, r.Kind())
	}
	return typed, nil
}
