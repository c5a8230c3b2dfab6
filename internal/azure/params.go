// Copyright 2021 Nick Tolhurst
// Licensed under the AGPLv3, see LICENCE file for details.

package azure

import (
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/containerinstance/armcontainerinstance"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/privatedns/armprivatedns"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"

	"github.com/nicktolhurst/private-rmq/internal/topology"
)

// The functions below translate descriptors into SDK parameter
// structs. They are pure: anything only the provider knows (IDs of
// already-created resources, storage keys, assigned addresses) is
// passed in by the deployer.

func resourceGroupParams(r topology.ResourceGroup) armresources.ResourceGroup {
	return armresources.ResourceGroup{
		Location: to.Ptr(r.Location),
	}
}

func virtualNetworkParams(r topology.VirtualNetwork, location string) armnetwork.VirtualNetwork {
	prefixes := make([]*string, len(r.AddressSpaces))
	for i, p := range r.AddressSpaces {
		prefixes[i] = to.Ptr(p)
	}
	return armnetwork.VirtualNetwork{
		Location: to.Ptr(location),
		Properties: &armnetwork.VirtualNetworkPropertiesFormat{
			AddressSpace: &armnetwork.AddressSpace{
				AddressPrefixes: prefixes,
			},
		},
	}
}

func subnetParams(r topology.Subnet, nsgID string) armnetwork.Subnet {
	props := &armnetwork.SubnetPropertiesFormat{
		AddressPrefix: to.Ptr(r.Prefix),
	}
	if r.Delegation != "" {
		props.Delegations = []*armnetwork.Delegation{{
			Name: to.Ptr("delegation"),
			Properties: &armnetwork.ServiceDelegationPropertiesFormat{
				ServiceName: to.Ptr(r.Delegation),
			},
		}}
	}
	if nsgID != "" {
		props.NetworkSecurityGroup = &armnetwork.SecurityGroup{
			ID: to.Ptr(nsgID),
		}
	}
	return armnetwork.Subnet{
		Name:       to.Ptr(r.SubnetName),
		Properties: props,
	}
}

func securityGroupParams(r topology.NetworkSecurityGroup, location string) armnetwork.SecurityGroup {
	rules := make([]*armnetwork.SecurityRule, len(r.Rules))
	for i, rule := range r.Rules {
		rules[i] = &armnetwork.SecurityRule{
			Name: to.Ptr(rule.RuleName),
			Properties: &armnetwork.SecurityRulePropertiesFormat{
				Description:              to.Ptr(rule.Description),
				Protocol:                 to.Ptr(armnetwork.SecurityRuleProtocol(rule.Protocol)),
				Access:                   to.Ptr(armnetwork.SecurityRuleAccess(rule.Access)),
				Direction:                to.Ptr(armnetwork.SecurityRuleDirection(rule.Direction)),
				Priority:                 to.Ptr(rule.Priority),
				SourceAddressPrefix:      to.Ptr(rule.SourcePrefix),
				SourcePortRange:          to.Ptr(rule.SourcePortRange),
				DestinationAddressPrefix: to.Ptr(rule.DestinationPrefix),
				DestinationPortRange:     to.Ptr(rule.DestinationPortRange),
			},
		}
	}
	return armnetwork.SecurityGroup{
		Location: to.Ptr(location),
		Properties: &armnetwork.SecurityGroupPropertiesFormat{
			SecurityRules: rules,
		},
	}
}

func publicIPParams(location string) armnetwork.PublicIPAddress {
	return armnetwork.PublicIPAddress{
		Location: to.Ptr(location),
		SKU: &armnetwork.PublicIPAddressSKU{
			Name: to.Ptr(armnetwork.PublicIPAddressSKUNameBasic),
		},
		Properties: &armnetwork.PublicIPAddressPropertiesFormat{
			PublicIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethodDynamic),
		},
	}
}

func interfaceParams(location, subnetID, publicIPID, nsgID string) armnetwork.Interface {
	ipConfig := &armnetwork.InterfaceIPConfiguration{
		Name: to.Ptr("primary"),
		Properties: &armnetwork.InterfaceIPConfigurationPropertiesFormat{
			Subnet:                    &armnetwork.Subnet{ID: to.Ptr(subnetID)},
			PrivateIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethodDynamic),
		},
	}
	if publicIPID != "" {
		ipConfig.Properties.PublicIPAddress = &armnetwork.PublicIPAddress{
			ID: to.Ptr(publicIPID),
		}
	}
	props := &armnetwork.InterfacePropertiesFormat{
		IPConfigurations: []*armnetwork.InterfaceIPConfiguration{ipConfig},
	}
	if nsgID != "" {
		props.NetworkSecurityGroup = &armnetwork.SecurityGroup{
			ID: to.Ptr(nsgID),
		}
	}
	return armnetwork.Interface{
		Location:   to.Ptr(location),
		Properties: props,
	}
}

func networkProfileParams(location, subnetID string) armnetwork.Profile {
	return armnetwork.Profile{
		Location: to.Ptr(location),
		Properties: &armnetwork.ProfilePropertiesFormat{
			ContainerNetworkInterfaceConfigurations: []*armnetwork.ContainerNetworkInterfaceConfiguration{{
				Name: to.Ptr("eth0"),
				Properties: &armnetwork.ContainerNetworkInterfaceConfigurationPropertiesFormat{
					IPConfigurations: []*armnetwork.IPConfigurationProfile{{
						Name: to.Ptr("ipconfig"),
						Properties: &armnetwork.IPConfigurationProfilePropertiesFormat{
							Subnet: &armnetwork.Subnet{ID: to.Ptr(subnetID)},
						},
					}},
				},
			}},
		},
	}
}

func peeringParams(remoteNetworkID string) armnetwork.VirtualNetworkPeering {
	return armnetwork.VirtualNetworkPeering{
		Properties: &armnetwork.VirtualNetworkPeeringPropertiesFormat{
			RemoteVirtualNetwork: &armnetwork.SubResource{
				ID: to.Ptr(remoteNetworkID),
			},
			AllowVirtualNetworkAccess: to.Ptr(true),
			AllowForwardedTraffic:     to.Ptr(true),
		},
	}
}

func storageAccountParams(r topology.StorageAccount, location string) armstorage.AccountCreateParameters {
	return armstorage.AccountCreateParameters{
		Location: to.Ptr(location),
		SKU: &armstorage.SKU{
			Name: to.Ptr(armstorage.SKUName(r.SKU)),
		},
		Kind: to.Ptr(armstorage.Kind(r.AccountKind)),
	}
}

func fileShareParams(r topology.FileShare) armstorage.FileShare {
	return armstorage.FileShare{
		FileShareProperties: &armstorage.FileShareProperties{
			ShareQuota: to.Ptr(r.QuotaGB),
		},
	}
}

// azureFileSource is the storage account and access key backing one
// mounted file share.
type azureFileSource struct {
	account string
	key     string
}

func containerGroupParams(
	r topology.ContainerGroup,
	location, profileID string,
	sources map[string]azureFileSource,
) armcontainerinstance.ContainerGroup {
	command := make([]*string, len(r.Command))
	for i, c := range r.Command {
		command[i] = to.Ptr(c)
	}

	containerPorts := make([]*armcontainerinstance.ContainerPort, len(r.Ports))
	groupPorts := make([]*armcontainerinstance.Port, len(r.Ports))
	for i, p := range r.Ports {
		containerPorts[i] = &armcontainerinstance.ContainerPort{
			Port:     to.Ptr(p),
			Protocol: to.Ptr(armcontainerinstance.ContainerNetworkProtocolTCP),
		}
		groupPorts[i] = &armcontainerinstance.Port{
			Port:     to.Ptr(p),
			Protocol: to.Ptr(armcontainerinstance.ContainerGroupNetworkProtocolTCP),
		}
	}

	env := make([]*armcontainerinstance.EnvironmentVariable, len(r.Env))
	for i, e := range r.Env {
		v := &armcontainerinstance.EnvironmentVariable{
			Name: to.Ptr(e.Name),
		}
		// Secure values are withheld from GETs by the provider.
		if e.Secure {
			v.SecureValue = to.Ptr(e.Value)
		} else {
			v.Value = to.Ptr(e.Value)
		}
		env[i] = v
	}

	mounts := make([]*armcontainerinstance.VolumeMount, len(r.Volumes))
	volumes := make([]*armcontainerinstance.Volume, len(r.Volumes))
	for i, vol := range r.Volumes {
		source := sources[vol.Share]
		mounts[i] = &armcontainerinstance.VolumeMount{
			Name:      to.Ptr(vol.Share),
			MountPath: to.Ptr(vol.MountPath),
			ReadOnly:  to.Ptr(vol.ReadOnly),
		}
		volumes[i] = &armcontainerinstance.Volume{
			Name: to.Ptr(vol.Share),
			AzureFile: &armcontainerinstance.AzureFileVolume{
				ShareName:          to.Ptr(vol.Share),
				StorageAccountName: to.Ptr(source.account),
				StorageAccountKey:  to.Ptr(source.key),
				ReadOnly:           to.Ptr(vol.ReadOnly),
			},
		}
	}

	return armcontainerinstance.ContainerGroup{
		Location: to.Ptr(location),
		Properties: &armcontainerinstance.ContainerGroupProperties{
			OSType:        to.Ptr(armcontainerinstance.OperatingSystemTypesLinux),
			RestartPolicy: to.Ptr(armcontainerinstance.ContainerGroupRestartPolicyAlways),
			Containers: []*armcontainerinstance.Container{{
				Name: to.Ptr(r.ContainerGroupName),
				Properties: &armcontainerinstance.ContainerProperties{
					Image:                to.Ptr(r.Image),
					Command:              command,
					Ports:                containerPorts,
					EnvironmentVariables: env,
					VolumeMounts:         mounts,
					Resources: &armcontainerinstance.ResourceRequirements{
						Requests: &armcontainerinstance.ResourceRequests{
							CPU:        to.Ptr(r.CPU),
							MemoryInGB: to.Ptr(r.MemoryGB),
						},
					},
				},
			}},
			IPAddress: &armcontainerinstance.IPAddress{
				Type:  to.Ptr(armcontainerinstance.ContainerGroupIPAddressTypePrivate),
				Ports: groupPorts,
			},
			Volumes: volumes,
			NetworkProfile: &armcontainerinstance.ContainerGroupNetworkProfile{
				ID: to.Ptr(profileID),
			},
		},
	}
}

func virtualMachineParams(r topology.VirtualMachine, location, nicID string) armcompute.VirtualMachine {
	return armcompute.VirtualMachine{
		Location: to.Ptr(location),
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{
				VMSize: to.Ptr(armcompute.VirtualMachineSizeTypes(r.Size)),
			},
			StorageProfile: &armcompute.StorageProfile{
				ImageReference: &armcompute.ImageReference{
					Publisher: to.Ptr(r.Image.Publisher),
					Offer:     to.Ptr(r.Image.Offer),
					SKU:       to.Ptr(r.Image.SKU),
					Version:   to.Ptr(r.Image.Version),
				},
				OSDisk: &armcompute.OSDisk{
					CreateOption: to.Ptr(armcompute.DiskCreateOptionTypesFromImage),
					ManagedDisk: &armcompute.ManagedDiskParameters{
						StorageAccountType: to.Ptr(armcompute.StorageAccountTypesStandardLRS),
					},
				},
			},
			OSProfile: &armcompute.OSProfile{
				ComputerName:  to.Ptr(r.MachineName),
				AdminUsername: to.Ptr(r.AdminUsername),
				AdminPassword: to.Ptr(r.AdminPassword),
			},
			NetworkProfile: &armcompute.NetworkProfile{
				NetworkInterfaces: []*armcompute.NetworkInterfaceReference{{
					ID: to.Ptr(nicID),
				}},
			},
		},
	}
}

func privateZoneParams() armprivatedns.PrivateZone {
	// Private DNS zones are a global resource.
	return armprivatedns.PrivateZone{
		Location: to.Ptr("global"),
	}
}

func recordSetParams(r topology.DNSRecord, address string) armprivatedns.RecordSet {
	return armprivatedns.RecordSet{
		Properties: &armprivatedns.RecordSetProperties{
			TTL: to.Ptr(r.TTL),
			ARecords: []*armprivatedns.ARecord{{
				IPv4Address: to.Ptr(address),
			}},
		},
	}
}

func zoneLinkParams(r topology.DNSZoneLink, networkID string) armprivatedns.VirtualNetworkLink {
	return armprivatedns.VirtualNetworkLink{
		Location: to.Ptr("global"),
		Properties: &armprivatedns.VirtualNetworkLinkProperties{
			VirtualNetwork: &armprivatedns.SubResource{
				ID: to.Ptr(networkID),
			},
			RegistrationEnabled: to.Ptr(r.RegistrationEnabled),
		},
	}
}
