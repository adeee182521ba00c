package storage

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

func TestListIPAddressImpacts_AssignedTo(t *testing.T) {
	store := setupTestStorage(t)
	f := seedFixture(t, store)
	ctx := context.Background()

	impact := &model.Impact{Impact: "Billing", Redundancy: true, IPAddressID: model.ID(f.ipVM.ID)}
	if err := store.CreateImpact(ctx, impact, WriteOptions{}); err != nil {
		t.Fatal(err)
	}

	rows, count, err := store.ListIPAddressImpacts(ctx, nil)
	if err != nil {
		t.Fatalf("ListIPAddressImpacts() error = %v", err)
	}

	// ipOther is assigned to something that is neither kind of interface
	if count != 5 || len(rows) != 5 {
		t.Fatalf("Expected 5 rows, got %d (count %d)", len(rows), count)
	}

	byID := map[int64]model.IPAddressImpact{}
	for _, r := range rows {
		if _, dup := byID[r.IPAddressID]; dup {
			t.Fatalf("IP address %d listed twice", r.IPAddressID)
		}
		byID[r.IPAddressID] = r
	}

	want := map[int64]string{
		f.ipDevice.ID:   "sw-core-01",
		f.ipVM.ID:       "vm-billing",
		f.ipLongName.ID: "Legacy billing host",
		f.ipFree.ID:     model.NotAssigned,
		f.ipNoVRF.ID:    model.NotAssigned,
	}
	for id, assigned := range want {
		r, ok := byID[id]
		if !ok {
			t.Errorf("IP address %d missing from listing", id)
			continue
		}
		if r.AssignedTo != assigned {
			t.Errorf("IP address %d: expected assigned_to %q, got %q", id, assigned, r.AssignedTo)
		}
	}

	vmRow := byID[f.ipVM.ID]
	if vmRow.ImpactID == nil || *vmRow.ImpactID != impact.ID {
		t.Errorf("Expected impact %d on VM row, got %v", impact.ID, vmRow.ImpactID)
	}
	if vmRow.Impact == nil || *vmRow.Impact != "Billing" || vmRow.Redundancy == nil || !*vmRow.Redundancy {
		t.Errorf("Impact columns not derived: %+v", vmRow)
	}
	if vmRow.VRFName == nil || *vmRow.VRFName != "PROD" {
		t.Errorf("Expected VRF name PROD, got %v", vmRow.VRFName)
	}
	if vmRow.DeviceName != nil {
		t.Errorf("VM row has a device name: %s", *vmRow.DeviceName)
	}

	freeRow := byID[f.ipFree.ID]
	if freeRow.ImpactID != nil || freeRow.Impact != nil || freeRow.Redundancy != nil {
		t.Errorf("Expected empty impact columns, got %+v", freeRow)
	}
}

func TestListIPAddressImpacts_Filters(t *testing.T) {
	store := setupTestStorage(t)
	f := seedFixture(t, store)
	ctx := context.Background()

	if err := store.CreateImpact(ctx, &model.Impact{Impact: "Payroll", IPAddressID: model.ID(f.ipDevice.ID)}, WriteOptions{}); err != nil {
		t.Fatal(err)
	}

	yes, no := true, false
	tests := []struct {
		name   string
		filter model.ListingFilter
		want   int
	}{
		{"Query on assigned_to", model.ListingFilter{Query: "legacy"}, 1},
		{"Query on impact", model.ListingFilter{Query: "payroll"}, 1},
		{"Query on address", model.ListingFilter{Query: "10.0.0."}, 4},
		{"Address", model.ListingFilter{Address: "192.168"}, 1},
		{"VRF", model.ListingFilter{VRFID: model.ID(f.vrf.ID)}, 4},
		{"With impact", model.ListingFilter{HasImpact: &yes}, 1},
		{"Without impact", model.ListingFilter{HasImpact: &no}, 4},
		{"Not redundant", model.ListingFilter{Redundancy: &no}, 1},
		{"Wildcards are literal", model.ListingFilter{Query: "%"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := tt.filter
			rows, count, err := store.ListIPAddressImpacts(ctx, &filter)
			if err != nil {
				t.Fatalf("ListIPAddressImpacts() error = %v", err)
			}
			if len(rows) != tt.want || count != tt.want {
				t.Errorf("Expected %d rows, got %d (count %d)", tt.want, len(rows), count)
			}
		})
	}

	rows, count, err := store.ListIPAddressImpacts(ctx, &model.ListingFilter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || count != 5 {
		t.Errorf("Expected last page of 1 row out of 5, got %d of %d", len(rows), count)
	}
}

func TestListIPAddressImpacts_FallbackProperty(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	n := 0

	rapid.Check(t, func(rt *rapid.T) {
		n++
		address := fmt.Sprintf("172.16.%d.%d/32", n/250, n%250+1)
		ip := &model.IPAddress{Address: address}

		deviceName := rapid.StringMatching(`dev-[a-z]{4}`).Draw(rt, "device")
		vmName := rapid.StringMatching(`vm-[a-z]{4}`).Draw(rt, "vm")
		longName := rapid.StringMatching(`[A-Z][a-z]{3,8}`).Draw(rt, "long_name")
		withLongName := rapid.Bool().Draw(rt, "with_long_name")

		var want string
		switch kind := rapid.IntRange(0, 2).Draw(rt, "assignment"); kind {
		case 0:
			d := &model.Device{Name: fmt.Sprintf("%s-%d", deviceName, n)}
			if err := store.CreateDevice(ctx, d); err != nil {
				rt.Fatal(err)
			}
			iface := &model.Interface{DeviceID: d.ID, Name: "eth0"}
			if err := store.CreateInterface(ctx, iface); err != nil {
				rt.Fatal(err)
			}
			ip.AssignedObjectType, ip.AssignedObjectID = model.AssignedToInterface, model.ID(iface.ID)
			want = d.Name
		case 1:
			vm := &model.VirtualMachine{Name: fmt.Sprintf("%s-%d", vmName, n)}
			if err := store.CreateVirtualMachine(ctx, vm); err != nil {
				rt.Fatal(err)
			}
			iface := &model.VMInterface{VirtualMachineID: vm.ID, Name: "ens3"}
			if err := store.CreateVMInterface(ctx, iface); err != nil {
				rt.Fatal(err)
			}
			ip.AssignedObjectType, ip.AssignedObjectID = model.AssignedToVMInterface, model.ID(iface.ID)
			want = vm.Name
		default:
			want = model.NotAssigned
		}

		if withLongName {
			ip.CustomFieldData = map[string]any{model.LongNameField: longName}
			if want == model.NotAssigned {
				want = longName
			}
		}

		if err := store.CreateIPAddress(ctx, ip); err != nil {
			rt.Fatal(err)
		}

		rows, _, err := store.ListIPAddressImpacts(ctx, &model.ListingFilter{Address: address})
		if err != nil {
			rt.Fatal(err)
		}
		if len(rows) != 1 {
			rt.Fatalf("expected exactly one row for %s, got %d", address, len(rows))
		}
		if rows[0].AssignedTo != want {
			rt.Fatalf("%s: expected assigned_to %q, got %q", address, want, rows[0].AssignedTo)
		}
	})
}
