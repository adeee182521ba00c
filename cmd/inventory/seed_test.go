package inventory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
)

const testSeed = `
vrfs:
  - name: PROD
    rd: "65000:1"
devices:
  - name: sw-core-01
    interfaces: [eth0, eth1]
virtual_machines:
  - name: vm-billing
    interfaces: [ens3]
ip_addresses:
  - address: 10.0.0.1/24
    vrf: PROD
    device: sw-core-01
    interface: eth0
  - address: 10.0.0.2/24
    vrf: PROD
    vm: vm-billing
    interface: ens3
  - address: 10.0.0.3/24
    vrf: PROD
    custom_fields:
      nom_long: Imprimante accueil
  - address: 192.168.0.1/24
`

func setupTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create test storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLoad(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	seed, err := ParseSeed(strings.NewReader(testSeed))
	if err != nil {
		t.Fatalf("ParseSeed failed: %v", err)
	}
	res, err := Load(ctx, store, seed)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := SeedResult{VRFs: 1, Devices: 1, VirtualMachines: 1, Interfaces: 3, IPAddresses: 4}
	if res != want {
		t.Errorf("Expected %+v, got %+v", want, res)
	}

	rows, _, err := store.ListIPAddressImpacts(ctx, &model.ListingFilter{})
	if err != nil {
		t.Fatalf("ListIPAddressImpacts failed: %v", err)
	}
	assigned := map[string]string{}
	for _, row := range rows {
		assigned[row.Address] = row.AssignedTo
	}
	expected := map[string]string{
		"10.0.0.1/24":    "sw-core-01",
		"10.0.0.2/24":    "vm-billing",
		"10.0.0.3/24":    "Imprimante accueil",
		"192.168.0.1/24": model.NotAssigned,
	}
	for addr, want := range expected {
		if assigned[addr] != want {
			t.Errorf("%s: expected assigned_to %q, got %q", addr, want, assigned[addr])
		}
	}

	// A second load creates nothing
	res, err = Load(ctx, store, seed)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if res != (SeedResult{}) {
		t.Errorf("Expected nothing created, got %+v", res)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		seed string
		err  error
	}{
		{
			name: "unknown VRF",
			seed: "ip_addresses:\n  - address: 10.0.0.1/24\n    vrf: NOPE\n",
			err:  storage.ErrVRFNotFound,
		},
		{
			name: "unknown interface",
			seed: "devices:\n  - name: sw1\nip_addresses:\n  - address: 10.0.0.1/24\n    device: sw1\n    interface: eth9\n",
			err:  storage.ErrInterfaceNotFound,
		},
		{
			name: "unknown device",
			seed: "ip_addresses:\n  - address: 10.0.0.1/24\n    device: sw9\n    interface: eth0\n",
			err:  storage.ErrDeviceNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed, err := ParseSeed(strings.NewReader(tt.seed))
			if err != nil {
				t.Fatalf("ParseSeed failed: %v", err)
			}
			if _, err := Load(context.Background(), setupTestStorage(t), seed); !errors.Is(err, tt.err) {
				t.Errorf("Expected %v, got %v", tt.err, err)
			}
		})
	}
}

func TestParseSeed(t *testing.T) {
	if _, err := ParseSeed(strings.NewReader("routers: []\n")); err == nil {
		t.Error("Expected an error for an unknown key")
	}
	seed, err := ParseSeed(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Expected an empty file to parse, got %v", err)
	}
	if len(seed.VRFs)+len(seed.Devices)+len(seed.IPAddresses) != 0 {
		t.Errorf("Expected an empty seed, got %+v", seed)
	}
}
