package importer

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
	"pgregory.net/rapid"
)

type inventory struct {
	store     *storage.SQLiteStorage
	prod, dev model.VRF
	device    model.Device
	vm        model.VirtualMachine
	ipProd    model.IPAddress // 10.0.0.1/24 in PROD
	ipDev     model.IPAddress // 10.0.0.1/24 in DEV
	ipUnique  model.IPAddress // 10.0.0.2/24 in PROD
	ipNoVRF   model.IPAddress
}

func setupInventory(t *testing.T) *inventory {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create test storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	inv := &inventory{store: store}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	inv.prod = model.VRF{Name: "PROD"}
	must(store.CreateVRF(ctx, &inv.prod))
	inv.dev = model.VRF{Name: "DEV"}
	must(store.CreateVRF(ctx, &inv.dev))
	inv.device = model.Device{Name: "sw-core-01"}
	must(store.CreateDevice(ctx, &inv.device))
	inv.vm = model.VirtualMachine{Name: "vm-billing"}
	must(store.CreateVirtualMachine(ctx, &inv.vm))

	inv.ipProd = model.IPAddress{Address: "10.0.0.1/24", VRFID: model.ID(inv.prod.ID)}
	inv.ipDev = model.IPAddress{Address: "10.0.0.1/24", VRFID: model.ID(inv.dev.ID)}
	inv.ipUnique = model.IPAddress{Address: "10.0.0.2/24", VRFID: model.ID(inv.prod.ID)}
	inv.ipNoVRF = model.IPAddress{Address: "192.168.0.1/24"}
	for _, ip := range []*model.IPAddress{&inv.ipProd, &inv.ipDev, &inv.ipUnique, &inv.ipNoVRF} {
		must(store.CreateIPAddress(ctx, ip))
	}
	return inv
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{`[{"impact":"a"}]`, FormatJSON},
		{"  \n{\"impact\":\"a\"}", FormatJSON},
		{"---\n- impact: a\n", FormatYAML},
		{"- impact: a\n", FormatYAML},
		{"impact;ip_address\nPaie;10.0.0.2\n", FormatCSV},
		{"\ufeffimpact,device\n", FormatCSV},
	}
	for _, tt := range tests {
		if got := DetectFormat([]byte(tt.input)); got != tt.want {
			t.Errorf("DetectFormat(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestParse_CSVDelimiters(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Comma", "Impact,IP_Address,Redundancy\nPaie,10.0.0.2,oui\n"},
		{"Semicolon", "impact;ip_address;redundancy\nPaie;10.0.0.2;true\n"},
		{"Tab", "impact\tip_address\tredundancy\nPaie\t10.0.0.2\t1\n"},
		{"Quoted delimiter", "impact;ip_address;redundancy\n\"Paie\";10.0.0.2;yes\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := Parse(strings.NewReader(tt.input), "")
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if len(recs) != 1 {
				t.Fatalf("Expected 1 record, got %d", len(recs))
			}
			if recs[0].Impact != "Paie" || recs[0].IPAddress != "10.0.0.2" || !recs[0].Redundancy {
				t.Errorf("Unexpected record %+v", recs[0])
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		format Format
	}{
		{"Empty", "  \n", ""},
		{"Header only", "impact,device\n", FormatCSV},
		{"Unknown column", "impact,owner\nPaie,bob\n", FormatCSV},
		{"Missing impact column", "device\nsw-core-01\n", FormatCSV},
		{"Duplicate column", "impact,impact\na,b\n", FormatCSV},
		{"Bad boolean", "impact,redundancy\nPaie,maybe\n", FormatCSV},
		{"Bad id", "id,impact\nx,Paie\n", FormatCSV},
		{"Bad JSON", "[{\"impact\":}]", FormatJSON},
		{"Nested reference", "[{\"impact\":\"a\",\"device\":{\"id\":1}}]", FormatJSON},
		{"YAML mapping", "impact: a\n", FormatYAML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.input), tt.format); err == nil {
				t.Error("Expected an error")
			}
		})
	}

	if _, err := Parse(strings.NewReader(""), ""); !errors.Is(err, ErrEmpty) {
		t.Errorf("Expected ErrEmpty, got %v", err)
	}
}

func TestParse_JSONAndYAML(t *testing.T) {
	recs, err := Parse(strings.NewReader(`[{"id": 4, "impact": "Paie", "device": 12}, {"impact": "Web", "vm": "vm-web"}]`), "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != 4 || recs[0].Device != "12" || recs[1].VM != "vm-web" {
		t.Errorf("Unexpected records %+v", recs)
	}

	recs, err = Parse(strings.NewReader("- impact: Paie\n  ip_address: 10.0.0.1/24\n  vrf: PROD\n  redundancy: true\n- impact: Web\n  device: 7\n  vm: null\n"), FormatYAML)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(recs) != 2 || recs[0].VRF != "PROD" || !recs[0].Redundancy || recs[1].Device != "7" || !recs[1].VM.IsZero() {
		t.Errorf("Unexpected records %+v", recs)
	}
}

func TestResolve(t *testing.T) {
	inv := setupInventory(t)
	ctx := context.Background()

	recs := []Record{
		{Impact: "Paie", IPAddress: "10.0.0.1/24", VRF: "prod"},
		{Impact: "Dev", IPAddress: "10.0.0.1", VRF: "DEV"},
		{Impact: "Unique", IPAddress: "10.0.0.2"},
		{Impact: "By id", IPAddress: Ref(itoa(inv.ipUnique.ID))},
		{Impact: "Switch", Device: "SW-CORE-01"},
		{Impact: "VM", VM: Ref(itoa(inv.vm.ID))},
	}
	impacts, err := Resolve(ctx, inv.store, recs)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	want := []struct {
		ip, device, vm *int64
	}{
		{ip: &inv.ipProd.ID},
		{ip: &inv.ipDev.ID},
		{ip: &inv.ipUnique.ID},
		{ip: &inv.ipUnique.ID},
		{device: &inv.device.ID},
		{vm: &inv.vm.ID},
	}
	for i, w := range want {
		got := impacts[i]
		if !model.SameID(got.IPAddressID, w.ip) || !model.SameID(got.DeviceID, w.device) || !model.SameID(got.VMID, w.vm) {
			t.Errorf("Record %d resolved to %+v", i+1, got)
		}
	}
}

func TestResolve_CollectsRowErrors(t *testing.T) {
	inv := setupInventory(t)

	recs := []Record{
		{Impact: "Ambiguous", IPAddress: "10.0.0.1"},
		{Impact: "Good", Device: "sw-core-01"},
		{Impact: "", Device: "sw-core-01"},
		{Impact: "Both", Device: "sw-core-01", VM: "vm-billing"},
		{Impact: "Unknown", VM: "vm-nope"},
		{Impact: "Wrong VRF", IPAddress: Ref(itoa(inv.ipNoVRF.ID)), VRF: "PROD"},
		{Impact: "VRF alone", VRF: "PROD"},
		{Impact: "Nothing"},
	}
	_, err := Resolve(context.Background(), inv.store, recs)

	var errs Errors
	if !errors.As(err, &errs) {
		t.Fatalf("Expected Errors, got %v", err)
	}

	rows := map[int]bool{}
	for _, re := range errs {
		rows[re.Row] = true
	}
	for _, row := range []int{1, 3, 4, 5, 6, 7, 8} {
		if !rows[row] {
			t.Errorf("Expected an error on row %d, got %v", row, errs)
		}
	}
	if rows[2] {
		t.Errorf("Row 2 is valid, got %v", errs)
	}
	if !strings.Contains(errs.Error(), model.MsgMultipleAssociations) {
		t.Errorf("Expected the validation message, got %q", errs.Error())
	}
}

func TestExport_IDColumn(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(&buf, FormatCSV, []Record{{Impact: "a", Device: "sw"}}); err != nil {
		t.Fatal(err)
	}
	if header, _, _ := strings.Cut(buf.String(), "\n"); header != "impact,description,redundancy,ip_address,vrf,device,vm" {
		t.Errorf("Unexpected header %q", header)
	}

	buf.Reset()
	if err := Export(&buf, FormatCSV, []Record{{ID: 3, Impact: "a", Device: "sw"}}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "id,impact,") || !strings.Contains(buf.String(), "\n3,a,") {
		t.Errorf("Expected the id column, got %q", buf.String())
	}

	if err := Export(&buf, Format("xml"), nil); err == nil {
		t.Error("Expected an error for an unknown format")
	}
}

func TestWriteListing(t *testing.T) {
	impact, vrf := "Paie", "PROD"
	rows := []model.IPAddressImpact{
		{Address: "10.0.0.1/24", VRFName: &vrf, AssignedTo: "sw-core-01", Impact: &impact, Redundancy: ptr(true)},
		{Address: "10.0.0.2/24", AssignedTo: model.NotAssigned},
	}

	var buf bytes.Buffer
	if err := WriteListing(&buf, FormatCSV, rows); err != nil {
		t.Fatal(err)
	}
	want := "ip_address,vrf,assigned_to,impact,redundancy\n10.0.0.1/24,PROD,sw-core-01,Paie,true\n10.0.0.2/24,,Not Assigned,,\n"
	if buf.String() != want {
		t.Errorf("Unexpected CSV:\n%s", buf.String())
	}

	buf.Reset()
	if err := WriteListing(&buf, FormatYAML, rows); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "assigned_to: Not Assigned") {
		t.Errorf("Unexpected YAML:\n%s", buf.String())
	}
}

// Exporting impacts and importing the result gives back the same impact
// text, redundancy and IP address, whatever the format.
func TestRoundTrip(t *testing.T) {
	inv := setupInventory(t)
	ctx := context.Background()
	ips := []int64{inv.ipProd.ID, inv.ipDev.ID, inv.ipUnique.ID, inv.ipNoVRF.ID}

	rapid.Check(t, func(t *rapid.T) {
		format := rapid.SampledFrom([]Format{FormatCSV, FormatJSON, FormatYAML}).Draw(t, "format")
		n := rapid.IntRange(1, 6).Draw(t, "n")

		impacts := make([]model.Impact, n)
		for i := range impacts {
			impacts[i] = model.Impact{
				Impact:      rapid.StringMatching(`[A-Za-zéè0-9][A-Za-zéè0-9 ,;"'-]{0,20}[A-Za-z0-9]`).Draw(t, "impact"),
				Redundancy:  rapid.Bool().Draw(t, "redundancy"),
				IPAddressID: model.ID(rapid.SampledFrom(ips).Draw(t, "ip")),
			}
		}

		recs, err := ToRecords(ctx, inv.store, impacts, false)
		if err != nil {
			t.Fatalf("ToRecords failed: %v", err)
		}
		var buf bytes.Buffer
		if err := Export(&buf, format, recs); err != nil {
			t.Fatalf("Export failed: %v", err)
		}

		parsed, err := Parse(&buf, "")
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		got, err := Resolve(ctx, inv.store, parsed)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if len(got) != n {
			t.Fatalf("Expected %d impacts, got %d", n, len(got))
		}
		for i := range impacts {
			if got[i].Impact != impacts[i].Impact || got[i].Redundancy != impacts[i].Redundancy ||
				!model.SameID(got[i].IPAddressID, impacts[i].IPAddressID) {
				t.Fatalf("Impact %d: exported %+v, imported %+v", i, impacts[i], got[i])
			}
		}
	})
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func ptr[T any](v T) *T {
	return &v
}
