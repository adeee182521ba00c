package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

// setupTestStorage creates a temporary storage instance for testing
func setupTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create test storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

// fixture is a small inventory: one VRF, a device and a VM with one
// interface each, and IP addresses covering every assignment case.
type fixture struct {
	vrf        model.VRF
	device     model.Device
	vm         model.VirtualMachine
	iface      model.Interface
	vmIface    model.VMInterface
	ipDevice   model.IPAddress // on the device interface
	ipVM       model.IPAddress // on the VM interface
	ipLongName model.IPAddress // unassigned, with nom_long
	ipFree     model.IPAddress // unassigned, nothing else
	ipNoVRF    model.IPAddress // unassigned, outside any VRF
	ipOther    model.IPAddress // assigned to something else entirely
}

func seedFixture(t *testing.T, store *SQLiteStorage) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{}

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	f.vrf = model.VRF{Name: "PROD", RD: "65000:1"}
	must(store.CreateVRF(ctx, &f.vrf))

	f.device = model.Device{Name: "sw-core-01"}
	must(store.CreateDevice(ctx, &f.device))
	f.iface = model.Interface{DeviceID: f.device.ID, Name: "eth0"}
	must(store.CreateInterface(ctx, &f.iface))

	f.vm = model.VirtualMachine{Name: "vm-billing"}
	must(store.CreateVirtualMachine(ctx, &f.vm))
	f.vmIface = model.VMInterface{VirtualMachineID: f.vm.ID, Name: "ens3"}
	must(store.CreateVMInterface(ctx, &f.vmIface))

	vrfID := model.ID(f.vrf.ID)
	f.ipDevice = model.IPAddress{Address: "10.0.0.1/24", VRFID: vrfID,
		AssignedObjectType: model.AssignedToInterface, AssignedObjectID: model.ID(f.iface.ID)}
	f.ipVM = model.IPAddress{Address: "10.0.0.2/24", VRFID: vrfID,
		AssignedObjectType: model.AssignedToVMInterface, AssignedObjectID: model.ID(f.vmIface.ID)}
	f.ipLongName = model.IPAddress{Address: "10.0.0.3/24", VRFID: vrfID,
		CustomFieldData: map[string]any{model.LongNameField: "Legacy billing host"}}
	f.ipFree = model.IPAddress{Address: "10.0.0.4/24", VRFID: vrfID}
	f.ipNoVRF = model.IPAddress{Address: "192.168.0.1/24"}
	f.ipOther = model.IPAddress{Address: "10.0.0.5/24", VRFID: vrfID,
		AssignedObjectType: "ipam.fhrpgroup", AssignedObjectID: model.ID(1)}

	for _, ip := range []*model.IPAddress{&f.ipDevice, &f.ipVM, &f.ipLongName, &f.ipFree, &f.ipNoVRF, &f.ipOther} {
		must(store.CreateIPAddress(ctx, ip))
	}

	return f
}

func TestCreateImpact_CopiesVRF(t *testing.T) {
	store := setupTestStorage(t)
	f := seedFixture(t, store)
	ctx := context.Background()

	impact := &model.Impact{Impact: "Billing down", IPAddressID: model.ID(f.ipFree.ID)}
	if err := store.CreateImpact(ctx, impact, WriteOptions{Actor: "alice"}); err != nil {
		t.Fatalf("CreateImpact() error = %v", err)
	}

	if impact.ID == 0 {
		t.Fatal("Expected ID to be set")
	}
	if impact.VRFID == nil || *impact.VRFID != f.vrf.ID {
		t.Errorf("Expected VRF %d, got %v", f.vrf.ID, impact.VRFID)
	}

	retrieved, err := store.GetImpact(ctx, impact.ID)
	if err != nil {
		t.Fatalf("GetImpact() error = %v", err)
	}
	if retrieved.Impact != "Billing down" {
		t.Errorf("Expected impact 'Billing down', got %q", retrieved.Impact)
	}
	if !model.SameID(retrieved.VRFID, impact.VRFID) {
		t.Errorf("Stored VRF %v differs from returned %v", retrieved.VRFID, impact.VRFID)
	}
}

func TestCreateImpact_Errors(t *testing.T) {
	store := setupTestStorage(t)
	f := seedFixture(t, store)
	ctx := context.Background()

	existing := &model.Impact{Impact: "taken", IPAddressID: model.ID(f.ipDevice.ID)}
	if err := store.CreateImpact(ctx, existing, WriteOptions{}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		impact model.Impact
		check  func(error) bool
	}{
		{
			"No association",
			model.Impact{Impact: "x"},
			func(err error) bool {
				var verrs *model.ValidationErrors
				return errors.As(err, &verrs) && verrs.Has(model.MsgNoAssociation)
			},
		},
		{
			"Two associations",
			model.Impact{Impact: "x", DeviceID: model.ID(f.device.ID), VMID: model.ID(f.vm.ID)},
			func(err error) bool {
				var verrs *model.ValidationErrors
				return errors.As(err, &verrs) && verrs.Has(model.MsgMultipleAssociations)
			},
		},
		{
			"IP address without VRF",
			model.Impact{Impact: "x", IPAddressID: model.ID(f.ipNoVRF.ID)},
			func(err error) bool { return errors.Is(err, ErrIPAddressNoVRF) },
		},
		{
			"Unknown device",
			model.Impact{Impact: "x", DeviceID: model.ID(9999)},
			func(err error) bool {
				var fe *FieldError
				return errors.As(err, &fe) && fe.Field == model.FieldDevice && errors.Is(err, ErrReferenceNotFound)
			},
		},
		{
			"Duplicate IP address and VRF",
			model.Impact{Impact: "again", IPAddressID: model.ID(f.ipDevice.ID)},
			func(err error) bool { return errors.Is(err, ErrDuplicateImpact) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			impact := tt.impact
			err := store.CreateImpact(ctx, &impact, WriteOptions{})
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !tt.check(err) {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}

	_, count, err := store.ListImpacts(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Expected only the first impact to exist, got %d", count)
	}
}

func TestImpact_DeviceAndVMDoNotNeedVRF(t *testing.T) {
	store := setupTestStorage(t)
	f := seedFixture(t, store)
	ctx := context.Background()

	for _, impact := range []*model.Impact{
		{Impact: "core switch", DeviceID: model.ID(f.device.ID)},
		{Impact: "billing vm", VMID: model.ID(f.vm.ID)},
	} {
		if err := store.CreateImpact(ctx, impact, WriteOptions{}); err != nil {
			t.Fatalf("CreateImpact(%s) error = %v", impact.Impact, err)
		}
		if impact.VRFID != nil {
			t.Errorf("Expected no VRF for %s, got %d", impact.Impact, *impact.VRFID)
		}
	}
}

func TestUpdateDeleteImpact_ChangeLog(t *testing.T) {
	store := setupTestStorage(t)
	f := seedFixture(t, store)
	ctx := context.Background()
	opts := WriteOptions{Actor: "alice", RequestID: "req-1"}

	impact := &model.Impact{Impact: "v1", IPAddressID: model.ID(f.ipFree.ID)}
	if err := store.CreateImpact(ctx, impact, opts); err != nil {
		t.Fatal(err)
	}

	update := impact.Clone()
	update.Impact = "v2"
	update.Redundancy = true
	if err := store.UpdateImpact(ctx, update, opts); err != nil {
		t.Fatalf("UpdateImpact() error = %v", err)
	}

	got, err := store.GetImpact(ctx, impact.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Impact != "v2" || !got.Redundancy {
		t.Errorf("Update not stored: %+v", got)
	}

	if err := store.DeleteImpact(ctx, impact.ID, opts); err != nil {
		t.Fatalf("DeleteImpact() error = %v", err)
	}
	if _, err := store.GetImpact(ctx, impact.ID); !errors.Is(err, ErrImpactNotFound) {
		t.Errorf("Expected ErrImpactNotFound, got %v", err)
	}
	if err := store.DeleteImpact(ctx, impact.ID, opts); !errors.Is(err, ErrImpactNotFound) {
		t.Errorf("Expected ErrImpactNotFound on second delete, got %v", err)
	}

	changes, err := store.ListObjectChanges(ctx, model.ImpactObjectType, impact.ID)
	if err != nil {
		t.Fatalf("ListObjectChanges() error = %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("Expected 3 changes, got %d", len(changes))
	}

	actions := map[model.ChangeAction]bool{}
	for _, c := range changes {
		actions[c.Action] = true
		if c.UserName != "alice" || c.RequestID != "req-1" {
			t.Errorf("Unexpected change attribution: %+v", c)
		}
	}
	for _, a := range []model.ChangeAction{model.ChangeCreate, model.ChangeUpdate, model.ChangeDelete} {
		if !actions[a] {
			t.Errorf("Missing %s change", a)
		}
	}
}

func TestWriteOptions_PermitsRollsBack(t *testing.T) {
	store := setupTestStorage(t)
	f := seedFixture(t, store)
	ctx := context.Background()

	deny := WriteOptions{Permits: func(i *model.Impact) bool { return i.VRFID == nil }}

	impact := &model.Impact{Impact: "x", IPAddressID: model.ID(f.ipFree.ID)}
	if err := store.CreateImpact(ctx, impact, deny); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Expected ErrPermissionDenied, got %v", err)
	}

	_, count, err := store.ListImpacts(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("Expected rollback, found %d impacts", count)
	}
}

func TestListImpacts_Filters(t *testing.T) {
	store := setupTestStorage(t)
	f := seedFixture(t, store)
	ctx := context.Background()

	for _, impact := range []*model.Impact{
		{Impact: "Billing", Redundancy: true, IPAddressID: model.ID(f.ipFree.ID)},
		{Impact: "Core network", DeviceID: model.ID(f.device.ID)},
		{Impact: "Payroll", Description: "billing batch", VMID: model.ID(f.vm.ID)},
	} {
		if err := store.CreateImpact(ctx, impact, WriteOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	yes := true
	tests := []struct {
		name   string
		filter model.ImpactFilter
		want   int
	}{
		{"All", model.ImpactFilter{}, 3},
		{"Query matches impact and description", model.ImpactFilter{Query: "billing"}, 2},
		{"Device", model.ImpactFilter{DeviceID: model.ID(f.device.ID)}, 1},
		{"VRF", model.ImpactFilter{VRFID: model.ID(f.vrf.ID)}, 1},
		{"Redundant", model.ImpactFilter{Redundancy: &yes}, 1},
		{"VRF constraint", model.ImpactFilter{VRFIn: []int64{f.vrf.ID}}, 1},
		{"Paged", model.ImpactFilter{Limit: 2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := tt.filter
			impacts, count, err := store.ListImpacts(ctx, &filter)
			if err != nil {
				t.Fatalf("ListImpacts() error = %v", err)
			}
			if len(impacts) != tt.want {
				t.Errorf("Expected %d impacts, got %d", tt.want, len(impacts))
			}
			if tt.filter.Limit == 0 && count != tt.want {
				t.Errorf("Expected count %d, got %d", tt.want, count)
			}
		})
	}
}

func TestUpdateIPAddress_MovesImpactVRF(t *testing.T) {
	store := setupTestStorage(t)
	f := seedFixture(t, store)
	ctx := context.Background()

	impact := &model.Impact{Impact: "x", IPAddressID: model.ID(f.ipFree.ID)}
	if err := store.CreateImpact(ctx, impact, WriteOptions{}); err != nil {
		t.Fatal(err)
	}

	dev := &model.VRF{Name: "DEV"}
	if err := store.CreateVRF(ctx, dev); err != nil {
		t.Fatal(err)
	}

	ip := f.ipFree
	ip.VRFID = model.ID(dev.ID)
	if err := store.UpdateIPAddress(ctx, &ip); err != nil {
		t.Fatalf("UpdateIPAddress() error = %v", err)
	}

	got, err := store.GetImpact(ctx, impact.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.VRFID == nil || *got.VRFID != dev.ID {
		t.Errorf("Expected impact to follow IP address into VRF %d, got %v", dev.ID, got.VRFID)
	}

	ip.VRFID = nil
	if err := store.UpdateIPAddress(ctx, &ip); !errors.Is(err, ErrIPAddressNoVRF) {
		t.Errorf("Expected ErrIPAddressNoVRF when clearing the VRF, got %v", err)
	}
}

func TestReconcileImpactVRFs(t *testing.T) {
	store := setupTestStorage(t)
	f := seedFixture(t, store)
	ctx := context.Background()

	impact := &model.Impact{Impact: "x", IPAddressID: model.ID(f.ipFree.ID)}
	if err := store.CreateImpact(ctx, impact, WriteOptions{}); err != nil {
		t.Fatal(err)
	}

	other := &model.VRF{Name: "STALE"}
	if err := store.CreateVRF(ctx, other); err != nil {
		t.Fatal(err)
	}
	if _, err := store.db.Exec(`UPDATE impacts SET vrf_id = ? WHERE id = ?`, other.ID, impact.ID); err != nil {
		t.Fatal(err)
	}

	n, err := store.ReconcileImpactVRFs(ctx)
	if err != nil {
		t.Fatalf("ReconcileImpactVRFs() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 reconciled impact, got %d", n)
	}

	got, _ := store.GetImpact(ctx, impact.ID)
	if got.VRFID == nil || *got.VRFID != f.vrf.ID {
		t.Errorf("Expected VRF %d after reconcile, got %v", f.vrf.ID, got.VRFID)
	}

	if n, _ := store.ReconcileImpactVRFs(ctx); n != 0 {
		t.Errorf("Expected second reconcile to be a no-op, got %d", n)
	}

	changes, err := store.ListObjectChanges(ctx, model.ImpactObjectType, impact.ID)
	if err != nil {
		t.Fatalf("ListObjectChanges() error = %v", err)
	}
	var logged []model.ObjectChange
	for _, c := range changes {
		if c.UserName == ReconcileActor {
			logged = append(logged, c)
		}
	}
	if len(logged) != 1 || logged[0].Action != model.ChangeUpdate {
		t.Fatalf("Expected one reconcile update in the change log, got %+v", logged)
	}
	var post struct {
		VRF *int64 `json:"vrf"`
	}
	if err := json.Unmarshal(logged[0].PostchangeData, &post); err != nil {
		t.Fatalf("decoding postchange data: %v", err)
	}
	if post.VRF == nil || *post.VRF != f.vrf.ID {
		t.Errorf("Expected postchange VRF %d, got %v", f.vrf.ID, post.VRF)
	}
}

func TestDeleteCascades(t *testing.T) {
	store := setupTestStorage(t)
	f := seedFixture(t, store)
	ctx := context.Background()

	onDevice := &model.Impact{Impact: "x", DeviceID: model.ID(f.device.ID)}
	onIP := &model.Impact{Impact: "y", IPAddressID: model.ID(f.ipFree.ID)}
	for _, impact := range []*model.Impact{onDevice, onIP} {
		if err := store.CreateImpact(ctx, impact, WriteOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.DeleteDevice(ctx, f.device.ID); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	if err := store.DeleteIPAddress(ctx, f.ipFree.ID); err != nil {
		t.Fatalf("DeleteIPAddress() error = %v", err)
	}

	_, count, err := store.ListImpacts(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("Expected cascaded deletes, %d impacts left", count)
	}

	// the device's interface went with it, so its address is now unassigned
	ip, err := store.GetIPAddress(ctx, f.ipDevice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ip.AssignedObjectID != nil || ip.AssignedObjectType != "" {
		t.Errorf("Expected IP address to be unassigned, got %s %v", ip.AssignedObjectType, ip.AssignedObjectID)
	}
}

func TestFindIPAddress(t *testing.T) {
	store := setupTestStorage(t)
	f := seedFixture(t, store)
	ctx := context.Background()

	tests := []struct {
		name    string
		address string
		vrf     string
		wantID  int64
		wantErr error
	}{
		{"With prefix", "10.0.0.1/24", "", f.ipDevice.ID, nil},
		{"Without prefix", "10.0.0.2", "", f.ipVM.ID, nil},
		{"With VRF", "10.0.0.3", "prod", f.ipLongName.ID, nil},
		{"Wrong VRF", "10.0.0.3", "dev", 0, ErrIPAddressNotFound},
		{"Prefix not a substring match", "0.0.0.1", "", 0, ErrIPAddressNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip, err := store.FindIPAddress(ctx, tt.address, tt.vrf)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindIPAddress() error = %v", err)
			}
			if ip.ID != tt.wantID {
				t.Errorf("Expected IP address %d, got %d", tt.wantID, ip.ID)
			}
		})
	}
}
