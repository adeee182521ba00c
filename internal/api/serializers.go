package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

// ImpactResponse is the REST representation of an Impact.
type ImpactResponse struct {
	ID          int64     `json:"id"`
	URL         string    `json:"url"`
	Display     string    `json:"display"`
	Impact      string    `json:"impact"`
	Description string    `json:"description"`
	Redundancy  bool      `json:"redundancy"`
	Device      *int64    `json:"device"`
	IPAddress   *int64    `json:"ip_address"`
	VM          *int64    `json:"vm"`
	VRF         *int64    `json:"vrf"`
	Created     time.Time `json:"created"`
	LastUpdated time.Time `json:"last_updated"`
}

func serializeImpact(r *http.Request, impact *model.Impact) ImpactResponse {
	return ImpactResponse{
		ID:          impact.ID,
		URL:         absoluteURL(r, BasePath+"impact/"+strconv.FormatInt(impact.ID, 10)+"/"),
		Display:     impact.String(),
		Impact:      impact.Impact,
		Description: impact.Description,
		Redundancy:  impact.Redundancy,
		Device:      impact.DeviceID,
		IPAddress:   impact.IPAddressID,
		VM:          impact.VMID,
		VRF:         impact.VRFID,
		Created:     impact.Created,
		LastUpdated: impact.LastUpdated,
	}
}

func serializeImpacts(r *http.Request, impacts []model.Impact) []ImpactResponse {
	out := make([]ImpactResponse, 0, len(impacts))
	for i := range impacts {
		out = append(out, serializeImpact(r, &impacts[i]))
	}
	return out
}

// ref is an optional foreign key in a request body. It accepts an id, a
// nested object with an id, or null, and remembers whether it was present.
type ref struct {
	Set bool
	ID  *int64
}

func (r *ref) UnmarshalJSON(data []byte) error {
	r.Set = true
	if string(data) == "null" {
		r.ID = nil
		return nil
	}

	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		r.ID = &id
		return nil
	}

	var nested struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &nested); err != nil || nested.ID == 0 {
		return fmt.Errorf("invalid reference: %s", data)
	}
	r.ID = &nested.ID
	return nil
}

// impactWrite is the body of create and update requests. The VRF is
// derived from the IP address and cannot be written.
type impactWrite struct {
	ID          int64   `json:"id"`
	Impact      *string `json:"impact"`
	Description *string `json:"description"`
	Redundancy  *bool   `json:"redundancy"`
	Device      ref     `json:"device"`
	IPAddress   ref     `json:"ip_address"`
	VM          ref     `json:"vm"`
}

// apply copies the body onto impact. A partial write only touches the
// fields present in the body; a full write resets the absent ones.
func (b *impactWrite) apply(impact *model.Impact, partial bool) {
	if b.Impact != nil || !partial {
		impact.Impact = deref(b.Impact)
	}
	if b.Description != nil || !partial {
		impact.Description = deref(b.Description)
	}
	if b.Redundancy != nil || !partial {
		impact.Redundancy = deref(b.Redundancy)
	}
	if b.Device.Set || !partial {
		impact.DeviceID = b.Device.ID
	}
	if b.IPAddress.Set || !partial {
		impact.IPAddressID = b.IPAddress.ID
	}
	if b.VM.Set || !partial {
		impact.VMID = b.VM.ID
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
