package model

// NotAssigned is the assigned_to value of addresses nobody owns.
const NotAssigned = "Not Assigned"

// LongNameField is the IP address custom field used as a last resort
// owner name.
const LongNameField = "nom_long"

// IPAddressImpact is one row of the IP-address-centric listing. Everything
// except the address columns is derived per request.
type IPAddressImpact struct {
	IPAddressID int64   `json:"id" yaml:"id"`
	Address     string  `json:"ip_address" yaml:"ip_address"`
	VRFID       *int64  `json:"vrf" yaml:"vrf"`
	VRFName     *string `json:"vrf_name" yaml:"vrf_name"`
	DeviceName  *string `json:"device_name" yaml:"device_name"`
	VMName      *string `json:"vm_name" yaml:"vm_name"`
	AssignedTo  string  `json:"assigned_to" yaml:"assigned_to"`
	ImpactID    *int64  `json:"impact_id" yaml:"impact_id"`
	Impact      *string `json:"impact" yaml:"impact"`
	Redundancy  *bool   `json:"redundancy" yaml:"redundancy"`
}

// ListingFilter is built from each request's query string.
type ListingFilter struct {
	Query      string // address, impact or assigned_to, case-insensitive
	Address    string // address substring
	VRFID      *int64
	HasImpact  *bool
	Redundancy *bool
	VRFIn      []int64 // object-level constraint, empty means unconstrained
	Limit      int
	Offset     int
}
