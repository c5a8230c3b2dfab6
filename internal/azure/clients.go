// Copyright 2021 Nick Tolhurst
// Licensed under the AGPLv3, see LICENCE file for details.

// Package azure submits a built topology to the Azure Resource
// Manager. All provisioning semantics (long-running operation polling,
// throttling retries, rollback) belong to ARM and the SDK; this
// package only translates descriptors into SDK calls in dependency
// order and resolves the handful of values that are unknown until the
// provider assigns them.
package azure

import (
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/containerinstance/armcontainerinstance"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/privatedns/armprivatedns"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"
	"github.com/juju/errors"
)

// Clients bundles one ARM client per resource family, all sharing the
// same credential and client options.
type Clients struct {
	SubscriptionID string

	ResourceGroups  *armresources.ResourceGroupsClient
	VirtualNetworks *armnetwork.VirtualNetworksClient
	Subnets         *armnetwork.SubnetsClient
	SecurityGroups  *armnetwork.SecurityGroupsClient
	PublicIPs       *armnetwork.PublicIPAddressesClient
	Interfaces      *armnetwork.InterfacesClient
	Profiles        *armnetwork.ProfilesClient
	Peerings        *armnetwork.VirtualNetworkPeeringsClient
	StorageAccounts *armstorage.AccountsClient
	FileShares      *armstorage.FileSharesClient
	ContainerGroups *armcontainerinstance.ContainerGroupsClient
	VirtualMachines *armcompute.VirtualMachinesClient
	PrivateZones    *armprivatedns.PrivateZonesClient
	RecordSets      *armprivatedns.RecordSetsClient
	ZoneLinks       *armprivatedns.VirtualNetworkLinksClient
}

// DefaultCredential returns whichever ambient Azure credential is
// available: environment variables, managed identity or the CLI.
func DefaultCredential() (azcore.TokenCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, errors.Annotate(err, "obtaining Azure credential")
	}
	return cred, nil
}

// NewClients constructs the client bundle for a subscription. Request
// retries for transient control-plane failures are handled by the
// SDK's retry policy.
func NewClients(subscriptionID string, cred azcore.TokenCredential) (*Clients, error) {
	if subscriptionID == "" {
		return nil, errors.NotValidf("empty subscription ID")
	}
	opts := &arm.ClientOptions{
		ClientOptions: policy.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: 4},
		},
	}
	c := &Clients{SubscriptionID: subscriptionID}
	var err error
	if c.ResourceGroups, err = armresources.NewResourceGroupsClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	if c.VirtualNetworks, err = armnetwork.NewVirtualNetworksClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	if c.Subnets, err = armnetwork.NewSubnetsClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	if c.SecurityGroups, err = armnetwork.NewSecurityGroupsClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	if c.PublicIPs, err = armnetwork.NewPublicIPAddressesClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	if c.Interfaces, err = armnetwork.NewInterfacesClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	if c.Profiles, err = armnetwork.NewProfilesClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	if c.Peerings, err = armnetwork.NewVirtualNetworkPeeringsClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	if c.StorageAccounts, err = armstorage.NewAccountsClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	if c.FileShares, err = armstorage.NewFileSharesClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	if c.ContainerGroups, err = armcontainerinstance.NewContainerGroupsClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	if c.VirtualMachines, err = armcompute.NewVirtualMachinesClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	if c.PrivateZones, err = armprivatedns.NewPrivateZonesClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	if c.RecordSets, err = armprivatedns.NewRecordSetsClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	if c.ZoneLinks, err = armprivatedns.NewVirtualNetworkLinksClient(subscriptionID, cred, opts); err != nil {
		return nil, errors.Trace(err)
	}
	return c, nil
}
