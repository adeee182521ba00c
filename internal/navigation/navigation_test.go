package navigation

import (
	"testing"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

func TestMenu(t *testing.T) {
	tests := []struct {
		name        string
		actions     []string
		wantItems   int
		wantButtons int
	}{
		{"Full", model.AllActions, 1, 2},
		{"View only", []string{model.ActionView}, 1, 0},
		{"Add without view", []string{model.ActionAdd}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := Menu(model.Permission{Actions: tt.actions})
			if len(items) != tt.wantItems {
				t.Fatalf("Expected %d items, got %d", tt.wantItems, len(items))
			}
			if tt.wantItems > 0 && len(items[0].Buttons) != tt.wantButtons {
				t.Errorf("Expected %d buttons, got %d", tt.wantButtons, len(items[0].Buttons))
			}
		})
	}
}

func TestItems_Labels(t *testing.T) {
	item := Items()[0]
	if item.LinkText != "Gestion des impacts" || item.Link != BasePath {
		t.Errorf("Unexpected menu item %+v", item)
	}
	if item.Buttons[0].IconClass != "mdi mdi-plus-thick" || item.Buttons[1].IconClass != "mdi mdi-upload" {
		t.Errorf("Unexpected button icons %+v", item.Buttons)
	}
	if len(Menu(model.FullPermission())[0].Buttons) != 2 {
		t.Error("Filtering must not alter the declared buttons")
	}
}
