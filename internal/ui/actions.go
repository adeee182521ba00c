package ui

import (
	"strconv"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/navigation"
)

// Action is one link of a row's actions column.
type Action struct {
	Name  string
	Title string
	Icon  string // mdi icon name, without the mdi- prefix
	CSS   string // bootstrap button colour
	URL   string
}

// actionDef describes an action of an impact row.
type actionDef struct {
	name, title, icon, css, permission, suffix string
}

// impactActions in display order. The first permitted one is rendered as a
// button, the others in a dropdown.
var impactActions = []actionDef{
	{"edit", "Edit", "pencil", "warning", model.ActionChange, "edit/"},
	{"delete", "Delete", "trash-can-outline", "danger", model.ActionDelete, "delete/"},
	{"changelog", "Changelog", "history", "secondary", model.ActionView, "changelog/"},
}

var addAction = actionDef{"add", "Add", "plus-thick", "success", model.ActionAdd, ""}

// RowActions holds the rendered actions of one listing row.
type RowActions struct {
	Button   *Action
	Dropdown []Action
}

func (ra RowActions) Empty() bool {
	return ra.Button == nil && len(ra.Dropdown) == 0
}

// rowActions computes the actions of a listing row. Rows with an Impact
// link to its views; rows without one link to the add view for their IP
// address. Every link carries ret as return_url.
func rowActions(row model.IPAddressImpact, perm model.Permission, ret string) RowActions {
	var defs []actionDef
	if row.ImpactID != nil {
		defs = impactActions
	} else {
		defs = []actionDef{addAction}
	}

	var ra RowActions
	for _, def := range defs {
		if !perm.Can(def.permission) {
			continue
		}

		var link string
		if row.ImpactID != nil {
			link = impactURL(*row.ImpactID, def.suffix)
		} else {
			link = navigation.AddPath + "?ip_address=" + strconv.FormatInt(row.IPAddressID, 10)
		}

		action := Action{Name: def.name, Title: def.title, Icon: def.icon, CSS: def.css, URL: withReturn(link, ret)}
		if ra.Button == nil {
			ra.Button = &action
			continue
		}
		ra.Dropdown = append(ra.Dropdown, action)
	}
	return ra
}
