package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/martinsuchenak/gestion-impacts/internal/importer"
	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

func TestHandler_ImportExport(t *testing.T) {
	env := setupTestHandler(t, nil)

	status, body := env.do(t, "POST", BasePath+"impact/import/", "impact;ip_address;vrf;redundancy\nCore;10.0.0.1/24;PROD;oui\nOrphan;;;\n")
	if status != http.StatusBadRequest {
		t.Fatalf("Expected status 400 for an invalid row, got %d: %s", status, body)
	}
	rejected := decodeJSON[errorBody](t, body)
	if len(rejected.NonFieldErrors) != 1 || !strings.Contains(rejected.NonFieldErrors[0], "row 2") {
		t.Errorf("Expected one error on row 2, got %v", rejected.NonFieldErrors)
	}
	if _, count, _ := env.store.ListImpacts(context.Background(), nil); count != 0 {
		t.Fatalf("Expected nothing imported, got %d impacts", count)
	}

	status, body = env.do(t, "POST", BasePath+"impact/import/", "impact;ip_address;vrf;redundancy;device\nCore;10.0.0.1/24;PROD;oui;\nEdge;;;non;sw-core-01\n")
	if status != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", status, body)
	}
	imported := decodeJSON[[]ImpactResponse](t, body)
	if len(imported) != 2 {
		t.Fatalf("Expected 2 impacts, got %d", len(imported))
	}
	if imported[0].VRF == nil || *imported[0].VRF != env.prod.ID || !imported[0].Redundancy {
		t.Errorf("Unexpected first impact %+v", imported[0])
	}
	if imported[1].Device == nil || *imported[1].Device != env.device.ID {
		t.Errorf("Unexpected second impact %+v", imported[1])
	}

	status, body = env.do(t, "GET", BasePath+"impact/export/?format=json", nil)
	if status != http.StatusOK {
		t.Fatalf("export: expected status 200, got %d: %s", status, body)
	}
	recs := decodeJSON[[]importer.Record](t, body)
	if len(recs) != 2 {
		t.Fatalf("Expected 2 exported records, got %d", len(recs))
	}
	if recs[0].IPAddress != "10.0.0.1/24" || recs[0].VRF != "PROD" || recs[1].Device != "sw-core-01" {
		t.Errorf("Unexpected exported records %+v", recs)
	}

	status, body = env.do(t, "GET", BasePath+"impact/export/?device_id="+itoa(env.device.ID), nil)
	if status != http.StatusOK {
		t.Fatalf("csv export: expected status 200, got %d", status)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "impact,") || !strings.HasPrefix(lines[1], "Edge,") {
		t.Errorf("Unexpected CSV export %q", body)
	}

	// Re-importing the export with ids updates in place
	status, body = env.do(t, "GET", BasePath+"impact/export/?format=yaml&with_id=true", nil)
	if status != http.StatusOK {
		t.Fatalf("yaml export: expected status 200, got %d", status)
	}
	status, body = env.do(t, "POST", BasePath+"impact/import/?format=yaml", string(body))
	if status != http.StatusCreated {
		t.Fatalf("re-import: expected status 201, got %d: %s", status, body)
	}
	if _, count, _ := env.store.ListImpacts(context.Background(), nil); count != 2 {
		t.Errorf("Expected re-import to update in place, got %d impacts", count)
	}
}

func TestHandler_ImportErrors(t *testing.T) {
	tests := []struct {
		name   string
		actor  *model.Actor
		path   string
		body   string
		status int
	}{
		{"bad format", nil, "impact/import/?format=xml", "impact\nx\n", http.StatusBadRequest},
		{"empty", nil, "impact/import/", "", http.StatusBadRequest},
		{"unknown column", nil, "impact/import/", "impact,colour\nx,red\n", http.StatusBadRequest},
		{"viewer", &model.Actor{Name: "viewer", Permission: model.Permission{Actions: []string{model.ActionView}}},
			"impact/import/", "impact,vm\nx,vm-billing\n", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestHandler(t, tt.actor)
			status, body := env.do(t, "POST", BasePath+tt.path, tt.body)
			if status != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, status, body)
			}
		})
	}

	env := setupTestHandler(t, nil)
	if status, _ := env.do(t, "GET", BasePath+"impact/export/?format=xml", nil); status != http.StatusBadRequest {
		t.Errorf("Expected status 400 for an unknown export format, got %d", status)
	}
}

func TestHandler_ImportUpdateNeedsChange(t *testing.T) {
	adder := &model.Actor{Name: "adder", Permission: model.Permission{
		Actions: []string{model.ActionView, model.ActionAdd},
	}}
	env := setupTestHandler(t, adder)
	existing := env.createImpact(t, &model.Impact{Impact: "original", IPAddressID: model.ID(env.ipProd.ID)})

	csv := "id,impact,ip_address\n" + itoa(existing.ID) + ",overwritten," + itoa(env.ipProd.ID) + "\n"
	status, body := env.do(t, "POST", BasePath+"impact/import/", csv)
	if status != http.StatusForbidden {
		t.Fatalf("Expected status 403, got %d: %s", status, body)
	}
	got, err := env.store.GetImpact(context.Background(), existing.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Impact != "original" {
		t.Errorf("Expected the impact unchanged, got %q", got.Impact)
	}

	// new rows only need add
	status, body = env.do(t, "POST", BasePath+"impact/import/", "impact,ip_address\nFresh,"+itoa(env.ipFree.ID)+"\n")
	if status != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", status, body)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
