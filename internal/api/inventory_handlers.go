package api

import (
	"context"
	"net/http"

	"github.com/martinsuchenak/gestion-impacts/internal/log"
	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

// Inventory handlers. Impacts only reference these objects; they are
// managed here so that the service can run without the host application.

func (h *Handler) inventoryFilter(w http.ResponseWriter, r *http.Request) (*model.InventoryFilter, bool) {
	filter := &model.InventoryFilter{Query: r.URL.Query().Get("q")}
	vrfID, err := optionalID(r.URL.Query(), "vrf_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	filter.VRFID = vrfID
	return filter, true
}

// writeList pages an inventory listing.
func writeList[T any](h *Handler, w http.ResponseWriter, r *http.Request, items []T, err error) {
	if err != nil {
		h.internalError(w, err)
		return
	}
	limit, offset, err := h.pagination(r.URL.Query())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, newPage(r, paginateSlice(items, limit, offset), len(items), limit, offset))
}

// listVRFs handles GET /api/ipam/vrfs/
func (h *Handler) listVRFs(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionView); !ok {
		return
	}
	filter, ok := h.inventoryFilter(w, r)
	if !ok {
		return
	}
	vrfs, err := h.storage.ListVRFs(r.Context(), filter)
	writeList(h, w, r, vrfs, err)
}

// getVRF handles GET /api/ipam/vrfs/{id}/
func (h *Handler) getVRF(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionView); !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	vrf, err := h.storage.GetVRF(r.Context(), id)
	if err != nil {
		h.storageError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, vrf)
}

// createVRF handles POST /api/ipam/vrfs/
func (h *Handler) createVRF(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionAdd); !ok {
		return
	}
	var vrf model.VRF
	if !h.decode(w, r, &vrf) {
		return
	}
	if err := h.storage.CreateVRF(r.Context(), &vrf); err != nil {
		h.storageError(w, r, err)
		return
	}
	log.Info("VRF created", "id", vrf.ID, "name", vrf.Name)
	h.writeJSON(w, http.StatusCreated, vrf)
}

// deleteVRF handles DELETE /api/ipam/vrfs/{id}/
func (h *Handler) deleteVRF(w http.ResponseWriter, r *http.Request) {
	h.deleteInventory(w, r, "VRF", h.storage.DeleteVRF)
}

// listIPAddresses handles GET /api/ipam/ip-addresses/
func (h *Handler) listIPAddresses(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionView); !ok {
		return
	}
	filter, ok := h.inventoryFilter(w, r)
	if !ok {
		return
	}
	ips, err := h.storage.ListIPAddresses(r.Context(), filter)
	writeList(h, w, r, ips, err)
}

// getIPAddress handles GET /api/ipam/ip-addresses/{id}/
func (h *Handler) getIPAddress(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionView); !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ip, err := h.storage.GetIPAddress(r.Context(), id)
	if err != nil {
		h.storageError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ip)
}

// createIPAddress handles POST /api/ipam/ip-addresses/
func (h *Handler) createIPAddress(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionAdd); !ok {
		return
	}
	var ip model.IPAddress
	if !h.decode(w, r, &ip) {
		return
	}
	if err := h.storage.CreateIPAddress(r.Context(), &ip); err != nil {
		h.storageError(w, r, err)
		return
	}
	log.Info("IP address created", "id", ip.ID, "address", ip.Address)
	h.writeJSON(w, http.StatusCreated, ip)
}

// updateIPAddress handles PUT /api/ipam/ip-addresses/{id}/
func (h *Handler) updateIPAddress(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionChange); !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var ip model.IPAddress
	if !h.decode(w, r, &ip) {
		return
	}
	ip.ID = id

	if err := h.storage.UpdateIPAddress(r.Context(), &ip); err != nil {
		h.storageError(w, r, err)
		return
	}
	log.Info("IP address updated", "id", ip.ID, "address", ip.Address)
	h.writeJSON(w, http.StatusOK, ip)
}

// deleteIPAddress handles DELETE /api/ipam/ip-addresses/{id}/
func (h *Handler) deleteIPAddress(w http.ResponseWriter, r *http.Request) {
	h.deleteInventory(w, r, "IP address", h.storage.DeleteIPAddress)
}

// listDevices handles GET /api/dcim/devices/
func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionView); !ok {
		return
	}
	filter, ok := h.inventoryFilter(w, r)
	if !ok {
		return
	}
	devices, err := h.storage.ListDevices(r.Context(), filter)
	writeList(h, w, r, devices, err)
}

// getDevice handles GET /api/dcim/devices/{id}/
func (h *Handler) getDevice(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionView); !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	device, err := h.storage.GetDevice(r.Context(), id)
	if err != nil {
		h.storageError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, device)
}

// createDevice handles POST /api/dcim/devices/
func (h *Handler) createDevice(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionAdd); !ok {
		return
	}
	var device model.Device
	if !h.decode(w, r, &device) {
		return
	}
	if err := h.storage.CreateDevice(r.Context(), &device); err != nil {
		h.storageError(w, r, err)
		return
	}
	log.Info("Device created", "id", device.ID, "name", device.Name)
	h.writeJSON(w, http.StatusCreated, device)
}

// deleteDevice handles DELETE /api/dcim/devices/{id}/
func (h *Handler) deleteDevice(w http.ResponseWriter, r *http.Request) {
	h.deleteInventory(w, r, "Device", h.storage.DeleteDevice)
}

// listInterfaces handles GET /api/dcim/interfaces/
func (h *Handler) listInterfaces(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionView); !ok {
		return
	}
	deviceID, err := optionalID(r.URL.Query(), "device_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ifaces, err := h.storage.ListInterfaces(r.Context(), deviceID)
	writeList(h, w, r, ifaces, err)
}

// createInterface handles POST /api/dcim/interfaces/
func (h *Handler) createInterface(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionAdd); !ok {
		return
	}
	var iface model.Interface
	if !h.decode(w, r, &iface) {
		return
	}
	if err := h.storage.CreateInterface(r.Context(), &iface); err != nil {
		h.storageError(w, r, err)
		return
	}
	log.Info("Interface created", "id", iface.ID, "device", iface.DeviceID)
	h.writeJSON(w, http.StatusCreated, iface)
}

// deleteInterface handles DELETE /api/dcim/interfaces/{id}/
func (h *Handler) deleteInterface(w http.ResponseWriter, r *http.Request) {
	h.deleteInventory(w, r, "Interface", h.storage.DeleteInterface)
}

// listVirtualMachines handles GET /api/virtualization/virtual-machines/
func (h *Handler) listVirtualMachines(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionView); !ok {
		return
	}
	filter, ok := h.inventoryFilter(w, r)
	if !ok {
		return
	}
	vms, err := h.storage.ListVirtualMachines(r.Context(), filter)
	writeList(h, w, r, vms, err)
}

// getVirtualMachine handles GET /api/virtualization/virtual-machines/{id}/
func (h *Handler) getVirtualMachine(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionView); !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	vm, err := h.storage.GetVirtualMachine(r.Context(), id)
	if err != nil {
		h.storageError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, vm)
}

// createVirtualMachine handles POST /api/virtualization/virtual-machines/
func (h *Handler) createVirtualMachine(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionAdd); !ok {
		return
	}
	var vm model.VirtualMachine
	if !h.decode(w, r, &vm) {
		return
	}
	if err := h.storage.CreateVirtualMachine(r.Context(), &vm); err != nil {
		h.storageError(w, r, err)
		return
	}
	log.Info("Virtual machine created", "id", vm.ID, "name", vm.Name)
	h.writeJSON(w, http.StatusCreated, vm)
}

// deleteVirtualMachine handles DELETE /api/virtualization/virtual-machines/{id}/
func (h *Handler) deleteVirtualMachine(w http.ResponseWriter, r *http.Request) {
	h.deleteInventory(w, r, "Virtual machine", h.storage.DeleteVirtualMachine)
}

// listVMInterfaces handles GET /api/virtualization/interfaces/
func (h *Handler) listVMInterfaces(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionView); !ok {
		return
	}
	vmID, err := optionalID(r.URL.Query(), "virtual_machine_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ifaces, err := h.storage.ListVMInterfaces(r.Context(), vmID)
	writeList(h, w, r, ifaces, err)
}

// createVMInterface handles POST /api/virtualization/interfaces/
func (h *Handler) createVMInterface(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.require(w, r, model.ActionAdd); !ok {
		return
	}
	var iface model.VMInterface
	if !h.decode(w, r, &iface) {
		return
	}
	if err := h.storage.CreateVMInterface(r.Context(), &iface); err != nil {
		h.storageError(w, r, err)
		return
	}
	log.Info("VM interface created", "id", iface.ID, "virtual_machine", iface.VirtualMachineID)
	h.writeJSON(w, http.StatusCreated, iface)
}

// deleteVMInterface handles DELETE /api/virtualization/interfaces/{id}/
func (h *Handler) deleteVMInterface(w http.ResponseWriter, r *http.Request) {
	h.deleteInventory(w, r, "VM interface", h.storage.DeleteVMInterface)
}

func (h *Handler) deleteInventory(w http.ResponseWriter, r *http.Request, kind string, del func(ctx context.Context, id int64) error) {
	if _, ok := h.require(w, r, model.ActionDelete); !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := del(r.Context(), id); err != nil {
		h.storageError(w, r, err)
		return
	}
	log.Info(kind+" deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}
