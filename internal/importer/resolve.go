package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
)

// Resolver looks up the inventory objects records refer to.
// storage.Storage satisfies it.
type Resolver interface {
	GetIPAddress(ctx context.Context, id int64) (*model.IPAddress, error)
	FindIPAddress(ctx context.Context, address, vrfName string) (*model.IPAddress, error)
	GetVRF(ctx context.Context, id int64) (*model.VRF, error)
	GetDevice(ctx context.Context, id int64) (*model.Device, error)
	FindDeviceByName(ctx context.Context, name string) (*model.Device, error)
	GetVirtualMachine(ctx context.Context, id int64) (*model.VirtualMachine, error)
	FindVirtualMachineByName(ctx context.Context, name string) (*model.VirtualMachine, error)
}

// RowError is a problem with one record. Row is 1-based.
type RowError struct {
	Row     int
	Field   string
	Message string
}

func (e RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
}

// Errors collects every RowError of an import, so that all problems are
// reported at once.
type Errors []RowError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, re := range e {
		msgs[i] = re.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e *Errors) add(row int, field, msg string) {
	*e = append(*e, RowError{Row: row, Field: field, Message: msg})
}

func (e *Errors) addValidation(row int, verrs *model.ValidationErrors) {
	for _, msg := range verrs.NonField {
		e.add(row, "", msg)
	}
	fields := make([]string, 0, len(verrs.Fields))
	for f := range verrs.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		for _, msg := range verrs.Fields[f] {
			e.add(row, f, msg)
		}
	}
}

// Resolve turns records into Impacts. Lookups that find nothing and
// records that fail validation are collected into an Errors value; any
// other lookup failure aborts.
func Resolve(ctx context.Context, res Resolver, recs []Record) ([]model.Impact, error) {
	impacts := make([]model.Impact, 0, len(recs))
	var errs Errors

	for i, rec := range recs {
		row := i + 1
		impact := model.Impact{
			ID:          rec.ID,
			Impact:      strings.TrimSpace(rec.Impact),
			Description: strings.TrimSpace(rec.Description),
			Redundancy:  rec.Redundancy,
		}

		ok := true
		lookup := func(field string, id *int64, err error) error {
			if err == nil {
				setRef(&impact, field, id)
				return nil
			}
			if isNotFound(err) {
				errs.add(row, field, err.Error())
				ok = false
				return nil
			}
			return fmt.Errorf("row %d: resolving %s: %w", row, field, err)
		}

		if !rec.IPAddress.IsZero() {
			id, err := resolveIPAddress(ctx, res, rec.IPAddress, string(rec.VRF))
			if err := lookup(model.FieldIPAddress, id, err); err != nil {
				return nil, err
			}
		} else if !rec.VRF.IsZero() {
			errs.add(row, "vrf", "a VRF is only used together with an IP address")
			ok = false
		}
		if !rec.Device.IsZero() {
			id, err := resolveDevice(ctx, res, rec.Device)
			if err := lookup(model.FieldDevice, id, err); err != nil {
				return nil, err
			}
		}
		if !rec.VM.IsZero() {
			id, err := resolveVM(ctx, res, rec.VM)
			if err := lookup(model.FieldVM, id, err); err != nil {
				return nil, err
			}
		}

		if ok {
			var verrs *model.ValidationErrors
			if errors.As(impact.Validate(), &verrs) {
				errs.addValidation(row, verrs)
				ok = false
			}
		}
		if ok {
			impacts = append(impacts, impact)
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return impacts, nil
}

func setRef(impact *model.Impact, field string, id *int64) {
	switch field {
	case model.FieldIPAddress:
		impact.IPAddressID = id
	case model.FieldDevice:
		impact.DeviceID = id
	case model.FieldVM:
		impact.VMID = id
	}
}

func isNotFound(err error) bool {
	for _, target := range []error{
		storage.ErrIPAddressNotFound, storage.ErrDeviceNotFound, storage.ErrVMNotFound,
		storage.ErrReferenceNotFound, storage.ErrVRFNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	var ferr *storage.FieldError
	return errors.As(err, &ferr)
}

func resolveIPAddress(ctx context.Context, res Resolver, r Ref, vrfName string) (*int64, error) {
	if id, ok := r.ID(); ok {
		ip, err := res.GetIPAddress(ctx, id)
		if err != nil {
			return nil, err
		}
		if vrfName != "" {
			if err := checkVRF(ctx, res, ip, vrfName); err != nil {
				return nil, err
			}
		}
		return &ip.ID, nil
	}

	ip, err := res.FindIPAddress(ctx, string(r), strings.TrimSpace(vrfName))
	if err != nil {
		if errors.Is(err, storage.ErrIPAddressNotFound) && vrfName != "" {
			return nil, fmt.Errorf("%s in VRF %s: %w", r, vrfName, err)
		}
		return nil, err
	}
	return &ip.ID, nil
}

// checkVRF rejects an IP address given by id whose VRF is not vrfName.
func checkVRF(ctx context.Context, res Resolver, ip *model.IPAddress, vrfName string) error {
	if ip.VRFID == nil {
		return fmt.Errorf("%s is not in VRF %s: %w", ip.Address, vrfName, storage.ErrReferenceNotFound)
	}
	vrf, err := res.GetVRF(ctx, *ip.VRFID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(vrf.Name, strings.TrimSpace(vrfName)) {
		return fmt.Errorf("%s is not in VRF %s: %w", ip.Address, vrfName, storage.ErrReferenceNotFound)
	}
	return nil
}

func resolveDevice(ctx context.Context, res Resolver, r Ref) (*int64, error) {
	var d *model.Device
	var err error
	if id, ok := r.ID(); ok {
		d, err = res.GetDevice(ctx, id)
	} else {
		d, err = res.FindDeviceByName(ctx, strings.TrimSpace(string(r)))
	}
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", r, err)
	}
	return &d.ID, nil
}

func resolveVM(ctx context.Context, res Resolver, r Ref) (*int64, error) {
	var vm *model.VirtualMachine
	var err error
	if id, ok := r.ID(); ok {
		vm, err = res.GetVirtualMachine(ctx, id)
	} else {
		vm, err = res.FindVirtualMachineByName(ctx, strings.TrimSpace(string(r)))
	}
	if err != nil {
		return nil, fmt.Errorf("virtual machine %s: %w", r, err)
	}
	return &vm.ID, nil
}

// ToRecords describes impacts by address and names, ready for Export.
// IDs are kept when withID is set, so that a re-import updates in place.
func ToRecords(ctx context.Context, res Resolver, impacts []model.Impact, withID bool) ([]Record, error) {
	vrfNames := map[int64]string{}
	recs := make([]Record, 0, len(impacts))

	for _, impact := range impacts {
		rec := Record{
			Impact:      impact.Impact,
			Description: impact.Description,
			Redundancy:  impact.Redundancy,
		}
		if withID {
			rec.ID = impact.ID
		}

		switch {
		case impact.IPAddressID != nil:
			ip, err := res.GetIPAddress(ctx, *impact.IPAddressID)
			if err != nil {
				return nil, fmt.Errorf("exporting impact %d: %w", impact.ID, err)
			}
			rec.IPAddress = Ref(ip.Address)
			if ip.VRFID != nil {
				name, ok := vrfNames[*ip.VRFID]
				if !ok {
					vrf, err := res.GetVRF(ctx, *ip.VRFID)
					if err != nil {
						return nil, fmt.Errorf("exporting impact %d: %w", impact.ID, err)
					}
					name = vrf.Name
					vrfNames[*ip.VRFID] = name
				}
				rec.VRF = Ref(name)
			}
		case impact.DeviceID != nil:
			d, err := res.GetDevice(ctx, *impact.DeviceID)
			if err != nil {
				return nil, fmt.Errorf("exporting impact %d: %w", impact.ID, err)
			}
			rec.Device = Ref(d.Name)
		case impact.VMID != nil:
			vm, err := res.GetVirtualMachine(ctx, *impact.VMID)
			if err != nil {
				return nil, fmt.Errorf("exporting impact %d: %w", impact.ID, err)
			}
			rec.VM = Ref(vm.Name)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// UpdatesExisting reports whether impacts name existing rows by id, which
// needs the change action on top of add.
func UpdatesExisting(impacts []model.Impact) bool {
	for _, impact := range impacts {
		if impact.ID != 0 {
			return true
		}
	}
	return false
}
