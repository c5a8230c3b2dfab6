// Copyright 2021 Nick Tolhurst
// Licensed under the AGPLv3, see LICENCE file for details.

package azure

import "fmt"

// ARM resource ID builders. The SDK accepts cross-resource references
// only as fully qualified IDs, so these are needed as soon as one
// resource points at another.

func resourceID(subscription, group, provider, typ, name string) string {
	return fmt.Sprintf(
		"/subscriptions/%s/resourceGroups/%s/providers/%s/%s/%s",
		subscription, group, provider, typ, name,
	)
}

func virtualNetworkID(subscription, group, vnet string) string {
	return resourceID(subscription, group, "Microsoft.Network", "virtualNetworks", vnet)
}

func subnetID(subscription, group, vnet, subnet string) string {
	return virtualNetworkID(subscription, group, vnet) + "/subnets/" + subnet
}

func securityGroupID(subscription, group, nsg string) string {
	return resourceID(subscription, group, "Microsoft.Network", "networkSecurityGroups", nsg)
}

func publicIPID(subscription, group, name string) string {
	return resourceID(subscription, group, "Microsoft.Network", "publicIPAddresses", name)
}

func interfaceID(subscription, group, name string) string {
	return resourceID(subscription, group, "Microsoft.Network", "networkInterfaces", name)
}

func networkProfileID(subscription, group, name string) string {
	return resourceID(subscription, group, "Microsoft.Network", "networkProfiles", name)
}
