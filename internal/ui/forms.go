package ui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
)

// Choice is an option of a select field.
type Choice struct {
	ID    int64
	Label string
}

// choices are the select options of the impact and bulk edit forms.
type choices struct {
	Devices     []Choice
	IPAddresses []Choice
	VMs         []Choice
}

// loadChoices lists the inventory objects an impact may refer to. IP
// addresses outside the actor's VRF constraint are left out.
func (u *UI) loadChoices(ctx context.Context, perm model.Permission) (*choices, error) {
	c := &choices{}

	devices, err := u.storage.ListDevices(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		c.Devices = append(c.Devices, Choice{ID: d.ID, Label: d.Name})
	}

	vms, err := u.storage.ListVirtualMachines(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, vm := range vms {
		c.VMs = append(c.VMs, Choice{ID: vm.ID, Label: vm.Name})
	}

	vrfs, err := u.storage.ListVRFs(ctx, nil)
	if err != nil {
		return nil, err
	}
	vrfNames := make(map[int64]string, len(vrfs))
	for _, v := range vrfs {
		vrfNames[v.ID] = v.Name
	}

	ips, err := u.storage.ListIPAddresses(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if !perm.PermitsVRF(ip.VRFID) {
			continue
		}
		label := ip.Address
		if ip.VRFID != nil {
			label += " (" + vrfNames[*ip.VRFID] + ")"
		}
		c.IPAddresses = append(c.IPAddresses, Choice{ID: ip.ID, Label: label})
	}
	return c, nil
}

// impactForm is the add/edit page.
type impactForm struct {
	Impact  *model.Impact
	Choices *choices
	Action  string
	Cancel  string
}

// parseImpactForm reads the posted fields onto impact.
func parseImpactForm(r *http.Request, impact *model.Impact) *model.ValidationErrors {
	errs := &model.ValidationErrors{}

	impact.Impact = strings.TrimSpace(r.PostFormValue(model.FieldImpact))
	impact.Description = strings.TrimSpace(r.PostFormValue(model.FieldDescription))
	impact.Redundancy = checkbox(r.PostFormValue(model.FieldRedundancy))

	impact.DeviceID = formID(r, model.FieldDevice, errs)
	impact.IPAddressID = formID(r, model.FieldIPAddress, errs)
	impact.VMID = formID(r, model.FieldVM, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// formID reads an optional object id from the form.
func formID(r *http.Request, field string, errs *model.ValidationErrors) *int64 {
	v := strings.TrimSpace(r.FormValue(field))
	if v == "" {
		return nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		errs.AddField(field, msgInvalidChoice)
		return nil
	}
	return &id
}

func checkbox(v string) bool {
	switch strings.ToLower(v) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

const msgInvalidChoice = "Select a valid choice. That choice is not one of the available choices."

// bulkForm is the bulk edit and bulk delete pages.
type bulkForm struct {
	Target    model.BulkTarget
	IDs       []int64
	Choices   *choices
	Nullable  []string
	Cancel    string
	Submitted *model.BulkEdit
}

// parseSelection reads the target and the selected pk values.
func parseSelection(r *http.Request) (model.BulkTarget, []int64, error) {
	target := model.BulkTarget(r.PostFormValue("target"))
	switch target {
	case "":
		target = model.BulkTargetImpacts
	case model.BulkTargetImpacts, model.BulkTargetIPAddresses:
	default:
		return "", nil, fmt.Errorf("unknown target %q", target)
	}

	var ids []int64
	for _, v := range r.PostForm["pk"] {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return "", nil, fmt.Errorf("invalid selection %q", v)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return "", nil, errors.New("no objects were selected")
	}
	return target, ids, nil
}

// parseBulkEdit reads the bulk edit form. Empty fields are left unchanged.
func parseBulkEdit(r *http.Request, edit *model.BulkEdit) *model.ValidationErrors {
	errs := &model.ValidationErrors{}

	if v := strings.TrimSpace(r.PostFormValue(model.FieldImpact)); v != "" {
		edit.Impact = &v
	}
	if v := strings.TrimSpace(r.PostFormValue(model.FieldDescription)); v != "" {
		edit.Description = &v
	}
	switch r.PostFormValue(model.FieldRedundancy) {
	case "":
	case "true":
		edit.Redundancy = boolPtr(true)
	case "false":
		edit.Redundancy = boolPtr(false)
	default:
		errs.AddField(model.FieldRedundancy, msgInvalidChoice)
	}

	edit.DeviceID = formID(r, model.FieldDevice, errs)
	edit.IPAddressID = formID(r, model.FieldIPAddress, errs)
	edit.VMID = formID(r, model.FieldVM, errs)
	edit.Nullify = r.PostForm["_nullify"]

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func boolPtr(v bool) *bool {
	return &v
}

// formErrors turns a storage error into form messages. It returns nil for
// errors that are not the submitter's fault.
func formErrors(err error) *model.ValidationErrors {
	errs := &model.ValidationErrors{}

	var verrs *model.ValidationErrors
	var fieldErr *storage.FieldError
	var batchErr *storage.BatchError

	switch {
	case errors.As(err, &verrs):
		prefix := ""
		if errors.As(err, &batchErr) {
			prefix = batchPrefix(batchErr)
		}
		if prefix == "" {
			return verrs
		}
		errs.Add(prefix + verrs.Error())
	case errors.As(err, &batchErr):
		errs.Add(batchPrefix(batchErr) + fieldMessage(batchErr.Err))
	case errors.As(err, &fieldErr):
		errs.AddField(fieldErr.Field, fieldMessage(fieldErr.Err))
	case errors.Is(err, storage.ErrPermissionDenied):
		errs.Add("You do not have permission to modify one of these objects.")
	case errors.Is(err, storage.ErrInvalidBulkEdit), errors.Is(err, storage.ErrImpactNotFound):
		errs.Add(err.Error())
	default:
		return nil
	}
	return errs
}

func batchPrefix(e *storage.BatchError) string {
	if e.Row > 0 {
		return fmt.Sprintf("Row %d: ", e.Row)
	}
	return fmt.Sprintf("Object %d: ", e.ObjectID)
}

func fieldMessage(err error) string {
	var fieldErr *storage.FieldError
	switch {
	case errors.As(err, &fieldErr):
		return fieldErr.Field + ": " + fieldMessage(fieldErr.Err)
	case errors.Is(err, storage.ErrIPAddressNoVRF):
		return model.MsgIPAddressNoVRF
	case errors.Is(err, storage.ErrReferenceNotFound):
		return msgInvalidChoice
	case errors.Is(err, storage.ErrPermissionDenied):
		return "You do not have permission to modify this object."
	}
	return err.Error()
}
