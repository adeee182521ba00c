package model

import (
	"errors"
	"fmt"
	"slices"
)

// BulkTarget tells what the selected ids of a bulk edit refer to.
type BulkTarget string

const (
	BulkTargetImpacts     BulkTarget = "impacts"
	BulkTargetIPAddresses BulkTarget = "ip_addresses"
)

// Bulk-editable field names.
const (
	FieldImpact      = "impact"
	FieldDescription = "description"
	FieldRedundancy  = "redundancy"
	FieldDevice      = "device"
	FieldIPAddress   = "ip_address"
	FieldVM          = "vm"
)

// NullableFields can be cleared by a bulk edit.
var NullableFields = []string{FieldDevice, FieldIPAddress, FieldVM, FieldDescription}

// BulkEdit applies the same changes to every selected record. A nil
// pointer means "unchanged"; a name in Nullify means "clear it", and wins
// over a value for the same field.
type BulkEdit struct {
	Target      BulkTarget `json:"target"`
	IDs         []int64    `json:"pk"`
	Impact      *string    `json:"impact,omitempty"`
	Description *string    `json:"description,omitempty"`
	Redundancy  *bool      `json:"redundancy,omitempty"`
	DeviceID    *int64     `json:"device,omitempty"`
	IPAddressID *int64     `json:"ip_address,omitempty"`
	VMID        *int64     `json:"vm,omitempty"`
	Nullify     []string   `json:"_nullify,omitempty"`
}

// Check validates the request shape, not the records.
func (b *BulkEdit) Check() error {
	if len(b.IDs) == 0 {
		return errors.New("no objects selected")
	}
	switch b.Target {
	case "", BulkTargetImpacts, BulkTargetIPAddresses:
	default:
		return fmt.Errorf("unknown bulk edit target: %s", b.Target)
	}
	for _, name := range b.Nullify {
		if !slices.Contains(NullableFields, name) {
			return fmt.Errorf("field %s cannot be cleared", name)
		}
	}
	return nil
}

// Changed lists the fields this edit touches, nullified ones included.
func (b *BulkEdit) Changed() []string {
	var changed []string
	add := func(name string, set bool) {
		if set || slices.Contains(b.Nullify, name) {
			changed = append(changed, name)
		}
	}
	add(FieldImpact, b.Impact != nil)
	add(FieldDescription, b.Description != nil)
	add(FieldRedundancy, b.Redundancy != nil)
	add(FieldDevice, b.DeviceID != nil)
	add(FieldIPAddress, b.IPAddressID != nil)
	add(FieldVM, b.VMID != nil)
	return changed
}

// Restrict drops every change to a denied field.
func (b *BulkEdit) Restrict(denied []string) {
	for _, name := range denied {
		switch name {
		case FieldImpact:
			b.Impact = nil
		case FieldDescription:
			b.Description = nil
		case FieldRedundancy:
			b.Redundancy = nil
		case FieldDevice:
			b.DeviceID = nil
		case FieldIPAddress:
			b.IPAddressID = nil
		case FieldVM:
			b.VMID = nil
		}
	}
	b.Nullify = slices.DeleteFunc(b.Nullify, func(name string) bool {
		return slices.Contains(denied, name)
	})
}

// Apply writes the changed fields onto impact. VRF consistency is the
// caller's job.
func (b *BulkEdit) Apply(impact *Impact) {
	nullify := func(name string) bool { return slices.Contains(b.Nullify, name) }

	if b.Impact != nil {
		impact.Impact = *b.Impact
	}
	if b.Redundancy != nil {
		impact.Redundancy = *b.Redundancy
	}
	switch {
	case nullify(FieldDescription):
		impact.Description = ""
	case b.Description != nil:
		impact.Description = *b.Description
	}
	switch {
	case nullify(FieldDevice):
		impact.DeviceID = nil
	case b.DeviceID != nil:
		impact.DeviceID = cloneID(b.DeviceID)
	}
	switch {
	case nullify(FieldIPAddress):
		impact.IPAddressID = nil
	case b.IPAddressID != nil:
		impact.IPAddressID = cloneID(b.IPAddressID)
	}
	switch {
	case nullify(FieldVM):
		impact.VMID = nil
	case b.VMID != nil:
		impact.VMID = cloneID(b.VMID)
	}
}
