package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/navigation"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
)

func TestHandler_ListIPAddressImpacts(t *testing.T) {
	env := setupTestHandler(t, nil)
	env.createImpact(t, &model.Impact{Impact: "Payroll", Redundancy: true, IPAddressID: model.ID(env.ipProd.ID)})

	status, body := env.do(t, "GET", BasePath+"ip-addresses/", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, body)
	}
	page := decodeJSON[Page[model.IPAddressImpact]](t, body)
	if page.Count != 4 || len(page.Results) != 4 {
		t.Fatalf("Expected 4 rows, got %d (count %d)", len(page.Results), page.Count)
	}

	for _, row := range page.Results {
		switch row.IPAddressID {
		case env.ipProd.ID:
			if row.AssignedTo != "sw-core-01" || row.Impact == nil || *row.Impact != "Payroll" {
				t.Errorf("Unexpected device row %+v", row)
			}
		default:
			if row.AssignedTo != model.NotAssigned || row.ImpactID != nil {
				t.Errorf("Unexpected unassigned row %+v", row)
			}
		}
	}

	tests := []struct {
		query string
		want  int
	}{
		{"?has_impact=true", 1},
		{"?has_impact=false", 3},
		{"?q=sw-core", 1},
		{"?limit=1&offset=3", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			status, body := env.do(t, "GET", BasePath+"ip-addresses/"+tt.query, nil)
			if status != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", status)
			}
			if page := decodeJSON[Page[model.IPAddressImpact]](t, body); len(page.Results) != tt.want {
				t.Errorf("Expected %d rows, got %d", tt.want, len(page.Results))
			}
		})
	}

	if status, _ := env.do(t, "GET", BasePath+"ip-addresses/?has_impact=maybe", nil); status != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", status)
	}
}

func TestHandler_Pagination(t *testing.T) {
	h := NewHandler(nil).WithPageSize(2, 3)

	req := httptest.NewRequest("GET", "http://impacts.example/api/x/?limit=2&offset=2&q=a", nil)
	page := newPage(req, []int{1, 2}, 5, 2, 2)
	if page.Next == nil || *page.Next != "http://impacts.example/api/x/?limit=2&offset=4&q=a" {
		t.Errorf("Unexpected next link %v", page.Next)
	}
	if page.Previous == nil || *page.Previous != "http://impacts.example/api/x/?limit=2&q=a" {
		t.Errorf("Unexpected previous link %v", page.Previous)
	}

	limit, _, err := h.pagination(req.URL.Query())
	if err != nil || limit != 2 {
		t.Errorf("Expected limit 2, got %d (%v)", limit, err)
	}
	limit, _, _ = h.pagination(map[string][]string{"limit": {"0"}})
	if limit != 3 {
		t.Errorf("Expected limit=0 to ask for the largest page, got %d", limit)
	}
	if _, _, err := h.pagination(map[string][]string{"offset": {"-1"}}); err == nil {
		t.Error("Expected an error for a negative offset")
	}

	if got := paginateSlice([]int{1, 2, 3}, 2, 2); len(got) != 1 {
		t.Errorf("Expected the last element, got %v", got)
	}
}

func TestHandler_Menu(t *testing.T) {
	viewer := &model.Actor{Name: "viewer", Permission: model.Permission{Actions: []string{model.ActionView}}}

	for _, tt := range []struct {
		name        string
		actor       *model.Actor
		wantButtons int
	}{
		{"Anonymous", nil, 2},
		{"Viewer", viewer, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestHandler(t, tt.actor)
			status, body := env.do(t, "GET", BasePath+"menu/", nil)
			if status != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", status)
			}
			items := decodeJSON[[]navigation.MenuItem](t, body)
			if len(items) != 1 || items[0].LinkText != navigation.MenuLabel {
				t.Fatalf("Unexpected menu %+v", items)
			}
			if len(items[0].Buttons) != tt.wantButtons {
				t.Errorf("Expected %d buttons, got %d", tt.wantButtons, len(items[0].Buttons))
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	verrs := &model.ValidationErrors{}
	verrs.Add(model.MsgNoAssociation)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"Validation", verrs, http.StatusBadRequest},
		{"Field", &storage.FieldError{Field: "device", Err: storage.ErrReferenceNotFound}, http.StatusBadRequest},
		{"Duplicate in batch", &storage.BatchError{Row: 2, Err: &storage.FieldError{Field: "ip_address", Err: storage.ErrDuplicateImpact}}, http.StatusConflict},
		{"Missing object in batch", &storage.BatchError{ObjectID: 4, Err: storage.ErrImpactNotFound}, http.StatusBadRequest},
		{"Not found", storage.ErrImpactNotFound, http.StatusNotFound},
		{"Permission", &storage.BatchError{ObjectID: 4, Err: storage.ErrPermissionDenied}, http.StatusForbidden},
		{"Bulk edit", storage.ErrInvalidBulkEdit, http.StatusBadRequest},
		{"Other", http.ErrHandlerTimeout, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
