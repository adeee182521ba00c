package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

var (
	ErrImpactNotFound    = errors.New("impact not found")
	ErrIPAddressNotFound = errors.New("IP address not found")
	ErrVRFNotFound       = errors.New("VRF not found")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrVMNotFound        = errors.New("virtual machine not found")
	ErrInterfaceNotFound = errors.New("interface not found")
	ErrReferenceNotFound = errors.New("referenced object not found")
	ErrIPAddressNoVRF    = errors.New("the selected IP address has no VRF")
	ErrDuplicateImpact   = errors.New("an impact already exists for this IP address and VRF")
	ErrDuplicateName     = errors.New("name already exists")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidBulkEdit   = errors.New("invalid bulk edit")
)

// FieldError ties a sentinel error to the submitted field that caused it.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// BatchError reports the record that aborted a multi-record write. Row is
// 1-based and set for imports; ObjectID is set for bulk edits and deletes.
type BatchError struct {
	Row      int
	ObjectID int64
	Err      error
}

func (e *BatchError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("object %d: %v", e.ObjectID, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// WriteOptions carries the request context of a write into the change log
// and the post-write permission check.
type WriteOptions struct {
	Actor     string
	RequestID string
	// Permits is evaluated on every written Impact before commit. A false
	// result rolls the whole write back with ErrPermissionDenied.
	Permits func(*model.Impact) bool
	// Can reports whether the actor holds an action. Imports need add for
	// new rows and change for rows carrying an ID.
	Can func(action string) bool
}

func (o WriteOptions) permits(impact *model.Impact) bool {
	return o.Permits == nil || o.Permits(impact)
}

func (o WriteOptions) can(action string) bool {
	return o.Can == nil || o.Can(action)
}

// ImpactStorage manages Impact records.
type ImpactStorage interface {
	ListImpacts(ctx context.Context, filter *model.ImpactFilter) ([]model.Impact, int, error)
	GetImpact(ctx context.Context, id int64) (*model.Impact, error)
	CreateImpact(ctx context.Context, impact *model.Impact, opts WriteOptions) error
	UpdateImpact(ctx context.Context, impact *model.Impact, opts WriteOptions) error
	DeleteImpact(ctx context.Context, id int64, opts WriteOptions) error
	BulkEditImpacts(ctx context.Context, edit *model.BulkEdit, opts WriteOptions) ([]model.Impact, error)
	BulkDeleteImpacts(ctx context.Context, target model.BulkTarget, ids []int64, opts WriteOptions) (int, error)
	ImportImpacts(ctx context.Context, rows []model.Impact, opts WriteOptions) ([]model.Impact, error)
	ReconcileImpactVRFs(ctx context.Context) (int, error)
}

// ListingStorage serves the derived IP address listing.
type ListingStorage interface {
	ListIPAddressImpacts(ctx context.Context, filter *model.ListingFilter) ([]model.IPAddressImpact, int, error)
}

// ChangeLogStorage reads the change log written alongside Impact writes.
type ChangeLogStorage interface {
	ListObjectChanges(ctx context.Context, objectType string, objectID int64) ([]model.ObjectChange, error)
}

// InventoryStorage manages the inventory objects Impacts refer to.
type InventoryStorage interface {
	ListVRFs(ctx context.Context, filter *model.InventoryFilter) ([]model.VRF, error)
	GetVRF(ctx context.Context, id int64) (*model.VRF, error)
	FindVRFByName(ctx context.Context, name string) (*model.VRF, error)
	CreateVRF(ctx context.Context, vrf *model.VRF) error
	DeleteVRF(ctx context.Context, id int64) error

	ListDevices(ctx context.Context, filter *model.InventoryFilter) ([]model.Device, error)
	GetDevice(ctx context.Context, id int64) (*model.Device, error)
	FindDeviceByName(ctx context.Context, name string) (*model.Device, error)
	CreateDevice(ctx context.Context, device *model.Device) error
	DeleteDevice(ctx context.Context, id int64) error

	ListVirtualMachines(ctx context.Context, filter *model.InventoryFilter) ([]model.VirtualMachine, error)
	GetVirtualMachine(ctx context.Context, id int64) (*model.VirtualMachine, error)
	FindVirtualMachineByName(ctx context.Context, name string) (*model.VirtualMachine, error)
	CreateVirtualMachine(ctx context.Context, vm *model.VirtualMachine) error
	DeleteVirtualMachine(ctx context.Context, id int64) error

	ListInterfaces(ctx context.Context, deviceID *int64) ([]model.Interface, error)
	CreateInterface(ctx context.Context, iface *model.Interface) error
	DeleteInterface(ctx context.Context, id int64) error

	ListVMInterfaces(ctx context.Context, vmID *int64) ([]model.VMInterface, error)
	CreateVMInterface(ctx context.Context, iface *model.VMInterface) error
	DeleteVMInterface(ctx context.Context, id int64) error

	ListIPAddresses(ctx context.Context, filter *model.InventoryFilter) ([]model.IPAddress, error)
	GetIPAddress(ctx context.Context, id int64) (*model.IPAddress, error)
	FindIPAddress(ctx context.Context, address, vrfName string) (*model.IPAddress, error)
	CreateIPAddress(ctx context.Context, ip *model.IPAddress) error
	UpdateIPAddress(ctx context.Context, ip *model.IPAddress) error
	DeleteIPAddress(ctx context.Context, id int64) error
}

// Storage is everything the service persists.
type Storage interface {
	ImpactStorage
	ListingStorage
	ChangeLogStorage
	InventoryStorage
	Close() error
}
