package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/martinsuchenak/gestion-impacts/internal/log"
	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
)

// Seed is an inventory file. Objects refer to each other by name.
type Seed struct {
	VRFs            []model.VRF   `yaml:"vrfs"`
	Devices         []SeedHost    `yaml:"devices"`
	VirtualMachines []SeedHost    `yaml:"virtual_machines"`
	IPAddresses     []SeedAddress `yaml:"ip_addresses"`
}

// SeedHost is a device or virtual machine with its interface names
type SeedHost struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Interfaces  []string `yaml:"interfaces"`
}

// SeedAddress is an IP address, assigned to the interface of at most one
// of Device or VM.
type SeedAddress struct {
	Address      string         `yaml:"address"`
	VRF          string         `yaml:"vrf"`
	Device       string         `yaml:"device"`
	VM           string         `yaml:"vm"`
	Interface    string         `yaml:"interface"`
	Description  string         `yaml:"description"`
	CustomFields map[string]any `yaml:"custom_fields"`
}

// SeedResult counts the objects created by a load
type SeedResult struct {
	VRFs, Devices, VirtualMachines, Interfaces, IPAddresses int
}

func (r SeedResult) String() string {
	return fmt.Sprintf("%d VRFs, %d devices, %d virtual machines, %d interfaces, %d IP addresses",
		r.VRFs, r.Devices, r.VirtualMachines, r.Interfaces, r.IPAddresses)
}

// ParseSeed decodes an inventory file, rejecting unknown keys.
func ParseSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed Seed
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return &seed, nil
		}
		return nil, fmt.Errorf("parsing inventory: %w", err)
	}
	return &seed, nil
}

// Load creates the objects of seed that do not exist yet. Loading the same
// file twice is a no-op.
func Load(ctx context.Context, store storage.InventoryStorage, seed *Seed) (SeedResult, error) {
	var res SeedResult

	for i := range seed.VRFs {
		vrf := seed.VRFs[i]
		if _, err := store.FindVRFByName(ctx, vrf.Name); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrVRFNotFound) {
			return res, err
		}
		vrf.ID = 0
		if err := store.CreateVRF(ctx, &vrf); err != nil {
			return res, fmt.Errorf("VRF %s: %w", vrf.Name, err)
		}
		res.VRFs++
	}

	for _, h := range seed.Devices {
		device, err := store.FindDeviceByName(ctx, h.Name)
		if errors.Is(err, storage.ErrDeviceNotFound) {
			device = &model.Device{Name: h.Name, Description: h.Description}
			err = store.CreateDevice(ctx, device)
			res.Devices++
		}
		if err != nil {
			return res, fmt.Errorf("device %s: %w", h.Name, err)
		}
		existing, err := store.ListInterfaces(ctx, &device.ID)
		if err != nil {
			return res, err
		}
		for _, name := range h.Interfaces {
			if slices.ContainsFunc(existing, func(i model.Interface) bool { return strings.EqualFold(i.Name, name) }) {
				continue
			}
			if err := store.CreateInterface(ctx, &model.Interface{DeviceID: device.ID, Name: name}); err != nil {
				return res, fmt.Errorf("interface %s/%s: %w", h.Name, name, err)
			}
			res.Interfaces++
		}
	}

	for _, h := range seed.VirtualMachines {
		vm, err := store.FindVirtualMachineByName(ctx, h.Name)
		if errors.Is(err, storage.ErrVMNotFound) {
			vm = &model.VirtualMachine{Name: h.Name, Description: h.Description}
			err = store.CreateVirtualMachine(ctx, vm)
			res.VirtualMachines++
		}
		if err != nil {
			return res, fmt.Errorf("virtual machine %s: %w", h.Name, err)
		}
		existing, err := store.ListVMInterfaces(ctx, &vm.ID)
		if err != nil {
			return res, err
		}
		for _, name := range h.Interfaces {
			if slices.ContainsFunc(existing, func(i model.VMInterface) bool { return strings.EqualFold(i.Name, name) }) {
				continue
			}
			if err := store.CreateVMInterface(ctx, &model.VMInterface{VirtualMachineID: vm.ID, Name: name}); err != nil {
				return res, fmt.Errorf("interface %s/%s: %w", h.Name, name, err)
			}
			res.Interfaces++
		}
	}

	for _, a := range seed.IPAddresses {
		created, err := loadAddress(ctx, store, a)
		if err != nil {
			return res, fmt.Errorf("IP address %s: %w", a.Address, err)
		}
		if created {
			res.IPAddresses++
		}
	}

	log.Debug("Inventory loaded", "created", res.String())
	return res, nil
}

func loadAddress(ctx context.Context, store storage.InventoryStorage, a SeedAddress) (bool, error) {
	// Without a VRF name the lookup matches every VRF.
	existing, err := store.FindIPAddress(ctx, a.Address, a.VRF)
	switch {
	case err == nil && (a.VRF != "" || existing.VRFID == nil):
		return false, nil
	case err == nil, errors.Is(err, storage.ErrIPAddressNotFound):
	case a.VRF == "" && errors.Is(err, storage.ErrReferenceNotFound):
	default:
		return false, err
	}

	ip := &model.IPAddress{Address: a.Address, Description: a.Description, CustomFieldData: a.CustomFields}
	if a.VRF != "" {
		vrf, err := store.FindVRFByName(ctx, a.VRF)
		if err != nil {
			return false, err
		}
		ip.VRFID = model.ID(vrf.ID)
	}

	switch {
	case a.Device != "" && a.VM != "":
		return false, errors.New("device and vm are mutually exclusive")
	case a.Device != "":
		device, err := store.FindDeviceByName(ctx, a.Device)
		if err != nil {
			return false, err
		}
		ifaces, err := store.ListInterfaces(ctx, &device.ID)
		if err != nil {
			return false, err
		}
		i := slices.IndexFunc(ifaces, func(i model.Interface) bool { return strings.EqualFold(i.Name, a.Interface) })
		if i < 0 {
			return false, fmt.Errorf("%w: %s/%s", storage.ErrInterfaceNotFound, a.Device, a.Interface)
		}
		ip.AssignedObjectType, ip.AssignedObjectID = model.AssignedToInterface, model.ID(ifaces[i].ID)
	case a.VM != "":
		vm, err := store.FindVirtualMachineByName(ctx, a.VM)
		if err != nil {
			return false, err
		}
		ifaces, err := store.ListVMInterfaces(ctx, &vm.ID)
		if err != nil {
			return false, err
		}
		i := slices.IndexFunc(ifaces, func(i model.VMInterface) bool { return strings.EqualFold(i.Name, a.Interface) })
		if i < 0 {
			return false, fmt.Errorf("%w: %s/%s", storage.ErrInterfaceNotFound, a.VM, a.Interface)
		}
		ip.AssignedObjectType, ip.AssignedObjectID = model.AssignedToVMInterface, model.ID(ifaces[i].ID)
	}

	if err := store.CreateIPAddress(ctx, ip); err != nil {
		return false, err
	}
	return true, nil
}
