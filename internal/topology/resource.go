// Copyright 2021 Nick Tolhurst
// Licensed under the AGPLv3, see LICENCE file for details.

// Package topology models a deployment as typed resource descriptors
// connected by explicit dependency references. Descriptors carry no
// provider state; they are plain records that a deployer translates
// into control-plane calls, in an order determined by a topological
// sort of the graph rather than by declaration order.
package topology

// Kind identifies the family a resource descriptor belongs to.
type Kind string

const (
	KindResourceGroup    Kind = "resource-group"
	KindVirtualNetwork   Kind = "virtual-network"
	KindSubnet           Kind = "subnet"
	KindSecurityGroup    Kind = "network-security-group"
	KindPublicIP         Kind = "public-ip"
	KindNetworkInterface Kind = "network-interface"
	KindStorageAccount   Kind = "storage-account"
	KindFileShare        Kind = "file-share"
	KindNetworkProfile   Kind = "network-profile"
	KindContainerGroup   Kind = "container-group"
	KindVirtualMachine   Kind = "virtual-machine"
	KindPeering          Kind = "virtual-network-peering"
	KindPrivateDNSZone   Kind = "private-dns-zone"
	KindDNSRecord        Kind = "dns-record"
	KindDNSZoneLink      Kind = "dns-zone-link"
)

// Resource is a single declared cloud resource. Name must be unique
// within a graph. DependsOn lists the names of every resource this one
// references; it is derived from the descriptor's reference fields so
// the graph never relies on the order resources were declared in.
type Resource interface {
	Name() string
	Kind() Kind
	DependsOn() []string
}

// ResourceGroup is a logical container for the resources declared
// inside it.
type ResourceGroup struct {
	GroupName string
	Location  string
}

func (r ResourceGroup) Name() string        { return r.GroupName }
func (r ResourceGroup) Kind() Kind          { return KindResourceGroup }
func (r ResourceGroup) DependsOn() []string { return nil }

// VirtualNetwork is an isolated address space in one resource group.
type VirtualNetwork struct {
	NetworkName   string
	ResourceGroup string
	AddressSpaces []string
}

func (r VirtualNetwork) Name() string        { return r.NetworkName }
func (r VirtualNetwork) Kind() Kind          { return KindVirtualNetwork }
func (r VirtualNetwork) DependsOn() []string { return []string{r.ResourceGroup} }

// Subnet is a subdivision of a virtual network. Delegation, when set,
// hands the subnet to a specific service (for example
// "Microsoft.ContainerInstance/containerGroups"). SecurityGroup
// optionally names a network security group to associate.
type Subnet struct {
	SubnetName     string
	ResourceGroup  string
	VirtualNetwork string
	Prefix         string
	Delegation     string
	SecurityGroup  string
}

func (r Subnet) Name() string { return r.SubnetName }
func (r Subnet) Kind() Kind   { return KindSubnet }

func (r Subnet) DependsOn() []string {
	deps := []string{r.ResourceGroup, r.VirtualNetwork}
	if r.SecurityGroup != "" {
		deps = append(deps, r.SecurityGroup)
	}
	return deps
}

// SecurityRule is a single firewall rule inside a security group.
// Direction, Access and Protocol use the provider's spelling
// ("Inbound", "Allow", "Tcp", ...).
type SecurityRule struct {
	RuleName             string
	Description          string
	Priority             int32
	Direction            string
	Access               string
	Protocol             string
	SourcePrefix         string
	SourcePortRange      string
	DestinationPrefix    string
	DestinationPortRange string
}

// NetworkSecurityGroup is a stateful firewall rule set applied to a
// subnet or a network interface.
type NetworkSecurityGroup struct {
	SecurityGroupName string
	ResourceGroup     string
	Rules             []SecurityRule
}

func (r NetworkSecurityGroup) Name() string        { return r.SecurityGroupName }
func (r NetworkSecurityGroup) Kind() Kind          { return KindSecurityGroup }
func (r NetworkSecurityGroup) DependsOn() []string { return []string{r.ResourceGroup} }

// PublicIP is a dynamically allocated public address.
type PublicIP struct {
	IPName        string
	ResourceGroup string
}

func (r PublicIP) Name() string        { return r.IPName }
func (r PublicIP) Kind() Kind          { return KindPublicIP }
func (r PublicIP) DependsOn() []string { return []string{r.ResourceGroup} }

// NetworkInterface attaches a machine to a subnet, optionally with a
// public address and a security group.
type NetworkInterface struct {
	InterfaceName string
	ResourceGroup string
	Subnet        string
	PublicIP      string
	SecurityGroup string
}

func (r NetworkInterface) Name() string { return r.InterfaceName }
func (r NetworkInterface) Kind() Kind   { return KindNetworkInterface }

func (r NetworkInterface) DependsOn() []string {
	deps := []string{r.ResourceGroup, r.Subnet}
	if r.PublicIP != "" {
		deps = append(deps, r.PublicIP)
	}
	if r.SecurityGroup != "" {
		deps = append(deps, r.SecurityGroup)
	}
	return deps
}

// StorageAccount holds the file shares backing container volumes.
type StorageAccount struct {
	AccountName   string
	ResourceGroup string
	SKU           string
	AccountKind   string
}

func (r StorageAccount) Name() string        { return r.AccountName }
func (r StorageAccount) Kind() Kind          { return KindStorageAccount }
func (r StorageAccount) DependsOn() []string { return []string{r.ResourceGroup} }

// FileShare is an SMB share in a storage account.
type FileShare struct {
	ShareName      string
	ResourceGroup  string
	StorageAccount string
	QuotaGB        int32
}

func (r FileShare) Name() string        { return r.ShareName }
func (r FileShare) Kind() Kind          { return KindFileShare }
func (r FileShare) DependsOn() []string { return []string{r.ResourceGroup, r.StorageAccount} }

// NetworkProfile places container groups on a subnet.
type NetworkProfile struct {
	ProfileName   string
	ResourceGroup string
	Subnet        string
}

func (r NetworkProfile) Name() string        { return r.ProfileName }
func (r NetworkProfile) Kind() Kind          { return KindNetworkProfile }
func (r NetworkProfile) DependsOn() []string { return []string{r.ResourceGroup, r.Subnet} }

// EnvVar is a container environment variable. Secure values are passed
// to the provider out of band of the plain environment block and are
// not echoed back by the control plane.
type EnvVar struct {
	Name   string
	Value  string
	Secure bool
}

// VolumeMount mounts a file share into a container.
type VolumeMount struct {
	Share     string
	MountPath string
	ReadOnly  bool
}

// ContainerGroup is a co-located set of containers sharing a network
// namespace; here always a single broker container joined to a subnet
// through a network profile.
type ContainerGroup struct {
	ContainerGroupName string
	ResourceGroup      string
	Image              string
	Command            []string
	CPU                float64
	MemoryGB           float64
	Ports              []int32
	Env                []EnvVar
	Volumes            []VolumeMount
	NetworkProfile     string
}

func (r ContainerGroup) Name() string { return r.ContainerGroupName }
func (r ContainerGroup) Kind() Kind   { return KindContainerGroup }

func (r ContainerGroup) DependsOn() []string {
	deps := []string{r.ResourceGroup, r.NetworkProfile}
	for _, v := range r.Volumes {
		deps = append(deps, v.Share)
	}
	return deps
}

// ImageReference selects a marketplace OS image.
type ImageReference struct {
	Publisher string
	Offer     string
	SKU       string
	Version   string
}

// VirtualMachine is a single machine attached to one network
// interface. AdminPassword is injected at build time from the
// deployment's secret set; it never appears as a literal in a
// declaration.
type VirtualMachine struct {
	MachineName      string
	ResourceGroup    string
	Size             string
	Image            ImageReference
	AdminUsername    string
	AdminPassword    string
	NetworkInterface string
}

func (r VirtualMachine) Name() string { return r.MachineName }
func (r VirtualMachine) Kind() Kind   { return KindVirtualMachine }

func (r VirtualMachine) DependsOn() []string {
	return []string{r.ResourceGroup, r.NetworkInterface}
}

// Peering is one direction of a routing link between two virtual
// networks; declare one in each network's resource group for a
// bidirectional link. The peered address spaces must not overlap.
type Peering struct {
	PeeringName   string
	ResourceGroup string
	Network       string
	RemoteNetwork string
}

func (r Peering) Name() string { return r.PeeringName }
func (r Peering) Kind() Kind   { return KindPeering }

func (r Peering) DependsOn() []string {
	return []string{r.ResourceGroup, r.Network, r.RemoteNetwork}
}

// PrivateDNSZone is a private name-resolution scope.
type PrivateDNSZone struct {
	ZoneName      string
	ResourceGroup string
}

func (r PrivateDNSZone) Name() string        { return r.ZoneName }
func (r PrivateDNSZone) Kind() Kind          { return KindPrivateDNSZone }
func (r PrivateDNSZone) DependsOn() []string { return []string{r.ResourceGroup} }

// DNSRecord is an address record in a private zone. The record's
// address is not known at declaration time: AddressFrom names a
// container group whose private IP becomes the record value once the
// group has been created.
type DNSRecord struct {
	RecordName    string
	ResourceGroup string
	Zone          string
	RelativeName  string
	TTL           int64
	AddressFrom   string
}

func (r DNSRecord) Name() string { return r.RecordName }
func (r DNSRecord) Kind() Kind   { return KindDNSRecord }

func (r DNSRecord) DependsOn() []string {
	return []string{r.ResourceGroup, r.Zone, r.AddressFrom}
}

// DNSZoneLink binds a private zone to a virtual network so hosts on
// that network resolve the zone's records.
type DNSZoneLink struct {
	LinkName            string
	ResourceGroup       string
	Zone                string
	Network             string
	RegistrationEnabled bool
}

func (r DNSZoneLink) Name() string { return r.LinkName }
func (r DNSZoneLink) Kind() Kind   { return KindDNSZoneLink }

func (r DNSZoneLink) DependsOn() []string {
	return []string{r.ResourceGroup, r.Zone, r.Network}
}
