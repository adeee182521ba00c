package model

import (
	"strings"
	"time"
)

// ImpactObjectType identifies Impact records in the change log.
const ImpactObjectType = "gestion_impacts.impact"

// Validation messages shared by every submission path.
const (
	MsgNoAssociation        = "You must select a device, an IP address, or a VM."
	MsgMultipleAssociations = "You cannot select more than one of device, IP address, or VM."
	MsgRequired             = "This field is required."
	MsgIPAddressNoVRF       = "The selected IP address has no VRF."
)

// DefaultImpactText is the text of an Impact created for an IP address by a
// bulk edit that leaves the impact text unchanged.
const DefaultImpactText = "À qualifier"

// Impact is an impact note and redundancy flag attached to exactly one
// device, IP address or virtual machine. VRFID mirrors the VRF of the
// IP address and is never set independently.
type Impact struct {
	ID          int64     `json:"id" yaml:"id"`
	Impact      string    `json:"impact" yaml:"impact"`
	Description string    `json:"description" yaml:"description"`
	Redundancy  bool      `json:"redundancy" yaml:"redundancy"`
	DeviceID    *int64    `json:"device" yaml:"device"`
	IPAddressID *int64    `json:"ip_address" yaml:"ip_address"`
	VMID        *int64    `json:"vm" yaml:"vm"`
	VRFID       *int64    `json:"vrf" yaml:"vrf"`
	Created     time.Time `json:"created" yaml:"created"`
	LastUpdated time.Time `json:"last_updated" yaml:"last_updated"`
}

func (i *Impact) String() string {
	return i.Impact
}

// Associations counts how many of device, IP address and VM are set.
func (i *Impact) Associations() int {
	n := 0
	for _, ref := range []*int64{i.DeviceID, i.IPAddressID, i.VMID} {
		if ref != nil {
			n++
		}
	}
	return n
}

// Validate checks the field-level rules of an Impact. It returns nil or a
// *ValidationErrors.
func (i *Impact) Validate() error {
	errs := &ValidationErrors{}

	if strings.TrimSpace(i.Impact) == "" {
		errs.AddField("impact", MsgRequired)
	}

	switch n := i.Associations(); {
	case n == 0:
		errs.Add(MsgNoAssociation)
	case n > 1:
		errs.Add(MsgMultipleAssociations)
	}

	return errs.Err()
}

// Clone returns a deep copy, pointers included.
func (i *Impact) Clone() *Impact {
	c := *i
	c.DeviceID = cloneID(i.DeviceID)
	c.IPAddressID = cloneID(i.IPAddressID)
	c.VMID = cloneID(i.VMID)
	c.VRFID = cloneID(i.VRFID)
	return &c
}

// ImpactFilter holds filter criteria for listing impacts
type ImpactFilter struct {
	IDs         []int64
	Query       string // impact or description, case-insensitive
	IPAddressID *int64
	DeviceID    *int64
	VMID        *int64
	VRFID       *int64
	Redundancy  *bool
	VRFIn       []int64 // object-level constraint, empty means unconstrained
	Limit       int
	Offset      int
}

// ID returns a pointer to v, for optional references.
func ID(v int64) *int64 {
	return &v
}

func cloneID(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// SameID reports whether two optional references point to the same row.
func SameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
