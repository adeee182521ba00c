// Package navigation declares the menu entry of the impacts plugin.
package navigation

import "github.com/martinsuchenak/gestion-impacts/internal/model"

const (
	MenuLabel = "Gestion des impacts"

	BasePath   = "/plugins/gestion-impacts/impacts/"
	AddPath    = BasePath + "add/"
	ImportPath = BasePath + "import/"
)

// Button is an action shortcut shown next to a menu item.
type Button struct {
	Link        string   `json:"link"`
	Title       string   `json:"title"`
	IconClass   string   `json:"icon_class"`
	Permissions []string `json:"permissions"`
}

// MenuItem is one entry of the plugin menu.
type MenuItem struct {
	Link        string   `json:"link"`
	LinkText    string   `json:"link_text"`
	Permissions []string `json:"permissions"`
	Buttons     []Button `json:"buttons"`
}

// Items returns the full menu, unfiltered.
func Items() []MenuItem {
	return []MenuItem{
		{
			Link:        BasePath,
			LinkText:    MenuLabel,
			Permissions: []string{model.ActionView},
			Buttons: []Button{
				{Link: AddPath, Title: "Ajouter un impact", IconClass: "mdi mdi-plus-thick", Permissions: []string{model.ActionAdd}},
				{Link: ImportPath, Title: "Importer des impacts", IconClass: "mdi mdi-upload", Permissions: []string{model.ActionAdd}},
			},
		},
	}
}

// Menu returns the items and buttons perm allows.
func Menu(perm model.Permission) []MenuItem {
	var items []MenuItem
	for _, item := range Items() {
		if !allowed(perm, item.Permissions) {
			continue
		}
		buttons := item.Buttons[:0:0]
		for _, b := range item.Buttons {
			if allowed(perm, b.Permissions) {
				buttons = append(buttons, b)
			}
		}
		item.Buttons = buttons
		items = append(items, item)
	}
	return items
}

func allowed(perm model.Permission, actions []string) bool {
	for _, a := range actions {
		if !perm.Can(a) {
			return false
		}
	}
	return true
}
