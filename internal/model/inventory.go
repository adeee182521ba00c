package model

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Assignment types an IP address can point at.
const (
	AssignedToInterface   = "dcim.interface"
	AssignedToVMInterface = "virtualization.vminterface"
)

// VRF is a routing/forwarding domain
type VRF struct {
	ID          int64     `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	RD          string    `json:"rd,omitempty" yaml:"rd,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Created     time.Time `json:"created" yaml:"-"`
}

// Device is a physical device of the inventory
type Device struct {
	ID          int64     `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Created     time.Time `json:"created" yaml:"-"`
}

// VirtualMachine is a virtual machine of the inventory
type VirtualMachine struct {
	ID          int64     `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Created     time.Time `json:"created" yaml:"-"`
}

// Interface belongs to a device
type Interface struct {
	ID       int64  `json:"id" yaml:"id"`
	DeviceID int64  `json:"device" yaml:"device"`
	Name     string `json:"name" yaml:"name"`
}

// VMInterface belongs to a virtual machine
type VMInterface struct {
	ID               int64  `json:"id" yaml:"id"`
	VirtualMachineID int64  `json:"virtual_machine" yaml:"virtual_machine"`
	Name             string `json:"name" yaml:"name"`
}

// IPAddress is an address with prefix length, optionally in a VRF and
// optionally assigned to an interface.
type IPAddress struct {
	ID                 int64          `json:"id" yaml:"id"`
	Address            string         `json:"address" yaml:"address"` // e.g. "10.0.0.1/24"
	VRFID              *int64         `json:"vrf" yaml:"vrf"`
	AssignedObjectType string         `json:"assigned_object_type,omitempty" yaml:"assigned_object_type,omitempty"`
	AssignedObjectID   *int64         `json:"assigned_object_id" yaml:"assigned_object_id"`
	CustomFieldData    map[string]any `json:"custom_fields" yaml:"custom_fields"`
	Description        string         `json:"description,omitempty" yaml:"description,omitempty"`
	Created            time.Time      `json:"created" yaml:"-"`
}

func (ip *IPAddress) String() string {
	return ip.Address
}

// Validate normalises the address and checks the assignment pair.
func (ip *IPAddress) Validate() error {
	errs := &ValidationErrors{}

	addr, err := NormalizeAddress(ip.Address)
	if err != nil {
		errs.AddField("address", err.Error())
	} else {
		ip.Address = addr
	}

	if (ip.AssignedObjectType == "") != (ip.AssignedObjectID == nil) {
		errs.Add("assigned_object_type and assigned_object_id must be set together")
	}

	return errs.Err()
}

// NormalizeAddress accepts "10.0.0.1/24" or a bare address, which gets a
// host prefix length.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("address is required")
	}
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return "", fmt.Errorf("invalid address: %s", s)
		}
		return p.String(), nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return "", fmt.Errorf("invalid address: %s", s)
	}
	return netip.PrefixFrom(a, a.BitLen()).String(), nil
}

// InventoryFilter narrows inventory listings by name or address substring.
type InventoryFilter struct {
	Query string
	VRFID *int64
}
