package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

// ListVRFs returns all VRFs ordered by name
func (ss *SQLiteStorage) ListVRFs(ctx context.Context, filter *model.InventoryFilter) ([]model.VRF, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	query := `SELECT id, name, rd, description, created_at FROM vrfs`
	var args []any
	if filter != nil && filter.Query != "" {
		query += ` WHERE name LIKE ? ESCAPE '\' OR rd LIKE ? ESCAPE '\'`
		args = append(args, likeArg(filter.Query), likeArg(filter.Query))
	}
	query += ` ORDER BY name, id`

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying VRFs: %w", err)
	}
	defer rows.Close()

	vrfs := []model.VRF{}
	for rows.Next() {
		vrf, err := scanVRF(rows)
		if err != nil {
			return nil, err
		}
		vrfs = append(vrfs, *vrf)
	}
	return vrfs, rows.Err()
}

// GetVRF retrieves a VRF by ID
func (ss *SQLiteStorage) GetVRF(ctx context.Context, id int64) (*model.VRF, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	return ss.queryVRF(ctx, `SELECT id, name, rd, description, created_at FROM vrfs WHERE id = ?`, id)
}

// FindVRFByName returns the first VRF with the given name, case-insensitively
func (ss *SQLiteStorage) FindVRFByName(ctx context.Context, name string) (*model.VRF, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	return ss.queryVRF(ctx, `SELECT id, name, rd, description, created_at FROM vrfs
		WHERE LOWER(name) = LOWER(?) ORDER BY id LIMIT 1`, name)
}

func (ss *SQLiteStorage) queryVRF(ctx context.Context, query string, args ...any) (*model.VRF, error) {
	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying VRF: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrVRFNotFound
	}
	return scanVRF(rows)
}

func scanVRF(rows *sql.Rows) (*model.VRF, error) {
	var vrf model.VRF
	var rd sql.NullString
	if err := rows.Scan(&vrf.ID, &vrf.Name, &rd, &vrf.Description, &vrf.Created); err != nil {
		return nil, fmt.Errorf("scanning VRF: %w", err)
	}
	vrf.RD = rd.String
	return &vrf, nil
}

// CreateVRF adds a new VRF
func (ss *SQLiteStorage) CreateVRF(ctx context.Context, vrf *model.VRF) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	vrf.Name = strings.TrimSpace(vrf.Name)
	if vrf.Name == "" {
		return requiredError("name")
	}

	var rd any
	if vrf.RD != "" {
		rd = vrf.RD
	}

	vrf.Created = time.Now().UTC()
	result, err := ss.db.ExecContext(ctx, `INSERT INTO vrfs (name, rd, description, created_at) VALUES (?, ?, ?, ?)`,
		vrf.Name, rd, vrf.Description, vrf.Created)
	if err != nil {
		if isUniqueViolation(err) {
			return &FieldError{Field: "rd", Err: ErrDuplicateName}
		}
		return fmt.Errorf("inserting VRF: %w", err)
	}
	vrf.ID, err = result.LastInsertId()
	return err
}

// DeleteVRF removes a VRF. Impacts in it are removed, its IP addresses are
// kept without VRF.
func (ss *SQLiteStorage) DeleteVRF(ctx context.Context, id int64) error {
	return ss.deleteRow(ctx, "vrfs", id, ErrVRFNotFound)
}

// ListDevices returns all devices ordered by name
func (ss *SQLiteStorage) ListDevices(ctx context.Context, filter *model.InventoryFilter) ([]model.Device, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.queryNamed(ctx, "devices", filter)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []model.Device{}
	for rows.Next() {
		var d model.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.Created); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// GetDevice retrieves a device by ID
func (ss *SQLiteStorage) GetDevice(ctx context.Context, id int64) (*model.Device, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var d model.Device
	err := ss.db.QueryRowContext(ctx, `SELECT id, name, description, created_at FROM devices WHERE id = ?`, id).
		Scan(&d.ID, &d.Name, &d.Description, &d.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return &d, nil
}

// FindDeviceByName looks a device up by name, case-insensitively
func (ss *SQLiteStorage) FindDeviceByName(ctx context.Context, name string) (*model.Device, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var d model.Device
	err := ss.db.QueryRowContext(ctx, `SELECT id, name, description, created_at FROM devices
		WHERE LOWER(name) = LOWER(?) LIMIT 1`, name).Scan(&d.ID, &d.Name, &d.Description, &d.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return &d, nil
}

// CreateDevice adds a new device
func (ss *SQLiteStorage) CreateDevice(ctx context.Context, device *model.Device) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	id, created, err := ss.insertNamed(ctx, "devices", device.Name, device.Description)
	if err != nil {
		return err
	}
	device.ID, device.Created = id, created
	return nil
}

// DeleteDevice removes a device, its interfaces and its impacts
func (ss *SQLiteStorage) DeleteDevice(ctx context.Context, id int64) error {
	return ss.deleteRow(ctx, "devices", id, ErrDeviceNotFound)
}

// ListVirtualMachines returns all virtual machines ordered by name
func (ss *SQLiteStorage) ListVirtualMachines(ctx context.Context, filter *model.InventoryFilter) ([]model.VirtualMachine, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.queryNamed(ctx, "virtual_machines", filter)
	if err != nil {
		return nil, fmt.Errorf("querying virtual machines: %w", err)
	}
	defer rows.Close()

	vms := []model.VirtualMachine{}
	for rows.Next() {
		var vm model.VirtualMachine
		if err := rows.Scan(&vm.ID, &vm.Name, &vm.Description, &vm.Created); err != nil {
			return nil, fmt.Errorf("scanning virtual machine: %w", err)
		}
		vms = append(vms, vm)
	}
	return vms, rows.Err()
}

// GetVirtualMachine retrieves a virtual machine by ID
func (ss *SQLiteStorage) GetVirtualMachine(ctx context.Context, id int64) (*model.VirtualMachine, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var vm model.VirtualMachine
	err := ss.db.QueryRowContext(ctx, `SELECT id, name, description, created_at FROM virtual_machines WHERE id = ?`, id).
		Scan(&vm.ID, &vm.Name, &vm.Description, &vm.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVMNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying virtual machine: %w", err)
	}
	return &vm, nil
}

// FindVirtualMachineByName looks a virtual machine up by name, case-insensitively
func (ss *SQLiteStorage) FindVirtualMachineByName(ctx context.Context, name string) (*model.VirtualMachine, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var vm model.VirtualMachine
	err := ss.db.QueryRowContext(ctx, `SELECT id, name, description, created_at FROM virtual_machines
		WHERE LOWER(name) = LOWER(?) LIMIT 1`, name).Scan(&vm.ID, &vm.Name, &vm.Description, &vm.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVMNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying virtual machine: %w", err)
	}
	return &vm, nil
}

// CreateVirtualMachine adds a new virtual machine
func (ss *SQLiteStorage) CreateVirtualMachine(ctx context.Context, vm *model.VirtualMachine) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	id, created, err := ss.insertNamed(ctx, "virtual_machines", vm.Name, vm.Description)
	if err != nil {
		return err
	}
	vm.ID, vm.Created = id, created
	return nil
}

// DeleteVirtualMachine removes a virtual machine, its interfaces and its impacts
func (ss *SQLiteStorage) DeleteVirtualMachine(ctx context.Context, id int64) error {
	return ss.deleteRow(ctx, "virtual_machines", id, ErrVMNotFound)
}

// ListInterfaces returns device interfaces, optionally of one device
func (ss *SQLiteStorage) ListInterfaces(ctx context.Context, deviceID *int64) ([]model.Interface, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	query := `SELECT id, device_id, name FROM interfaces`
	var args []any
	if deviceID != nil {
		query += ` WHERE device_id = ?`
		args = append(args, *deviceID)
	}
	query += ` ORDER BY device_id, name`

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying interfaces: %w", err)
	}
	defer rows.Close()

	ifaces := []model.Interface{}
	for rows.Next() {
		var iface model.Interface
		if err := rows.Scan(&iface.ID, &iface.DeviceID, &iface.Name); err != nil {
			return nil, fmt.Errorf("scanning interface: %w", err)
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces, rows.Err()
}

// CreateInterface adds an interface to a device
func (ss *SQLiteStorage) CreateInterface(ctx context.Context, iface *model.Interface) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	id, err := ss.insertInterface(ctx, "interfaces", "device_id", iface.DeviceID, iface.Name)
	if err != nil {
		return err
	}
	iface.ID = id
	return nil
}

// DeleteInterface removes an interface and unassigns its IP addresses
func (ss *SQLiteStorage) DeleteInterface(ctx context.Context, id int64) error {
	return ss.deleteRow(ctx, "interfaces", id, ErrInterfaceNotFound)
}

// ListVMInterfaces returns VM interfaces, optionally of one virtual machine
func (ss *SQLiteStorage) ListVMInterfaces(ctx context.Context, vmID *int64) ([]model.VMInterface, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	query := `SELECT id, virtual_machine_id, name FROM vm_interfaces`
	var args []any
	if vmID != nil {
		query += ` WHERE virtual_machine_id = ?`
		args = append(args, *vmID)
	}
	query += ` ORDER BY virtual_machine_id, name`

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying VM interfaces: %w", err)
	}
	defer rows.Close()

	ifaces := []model.VMInterface{}
	for rows.Next() {
		var iface model.VMInterface
		if err := rows.Scan(&iface.ID, &iface.VirtualMachineID, &iface.Name); err != nil {
			return nil, fmt.Errorf("scanning VM interface: %w", err)
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces, rows.Err()
}

// CreateVMInterface adds an interface to a virtual machine
func (ss *SQLiteStorage) CreateVMInterface(ctx context.Context, iface *model.VMInterface) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	id, err := ss.insertInterface(ctx, "vm_interfaces", "virtual_machine_id", iface.VirtualMachineID, iface.Name)
	if err != nil {
		return err
	}
	iface.ID = id
	return nil
}

// DeleteVMInterface removes a VM interface and unassigns its IP addresses
func (ss *SQLiteStorage) DeleteVMInterface(ctx context.Context, id int64) error {
	return ss.deleteRow(ctx, "vm_interfaces", id, ErrInterfaceNotFound)
}

const ipAddressColumns = `id, address, vrf_id, assigned_object_type, assigned_object_id, custom_field_data, description, created_at`

// ListIPAddresses returns IP addresses, optionally filtered by address substring and VRF
func (ss *SQLiteStorage) ListIPAddresses(ctx context.Context, filter *model.InventoryFilter) ([]model.IPAddress, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	query := `SELECT ` + ipAddressColumns + ` FROM ip_addresses`
	var where []string
	var args []any
	if filter != nil {
		if filter.Query != "" {
			where = append(where, `address LIKE ? ESCAPE '\'`)
			args = append(args, likeArg(filter.Query))
		}
		if filter.VRFID != nil {
			where = append(where, `vrf_id = ?`)
			args = append(args, *filter.VRFID)
		}
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY address, id`

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying IP addresses: %w", err)
	}
	defer rows.Close()

	ips := []model.IPAddress{}
	for rows.Next() {
		ip, err := scanIPAddress(rows)
		if err != nil {
			return nil, err
		}
		ips = append(ips, *ip)
	}
	return ips, rows.Err()
}

// GetIPAddress retrieves an IP address by ID
func (ss *SQLiteStorage) GetIPAddress(ctx context.Context, id int64) (*model.IPAddress, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	return getIPAddress(ctx, ss.db, id)
}

// FindIPAddress looks an address up, with or without prefix length. A
// non-empty vrfName restricts the match to that VRF; otherwise the address
// must be unambiguous.
func (ss *SQLiteStorage) FindIPAddress(ctx context.Context, address, vrfName string) (*model.IPAddress, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	address = strings.TrimSpace(address)
	query := `SELECT ip.id, ip.address, ip.vrf_id, ip.assigned_object_type, ip.assigned_object_id,
			ip.custom_field_data, ip.description, ip.created_at
		FROM ip_addresses ip LEFT JOIN vrfs v ON v.id = ip.vrf_id`
	var args []any
	if strings.Contains(address, "/") {
		norm, err := model.NormalizeAddress(address)
		if err != nil {
			return nil, &FieldError{Field: model.FieldIPAddress, Err: err}
		}
		query += ` WHERE ip.address = ?`
		args = append(args, norm)
	} else {
		query += ` WHERE (ip.address = ? OR ip.address LIKE ? ESCAPE '\')`
		args = append(args, address, likeEscaper.Replace(address)+"/%")
	}
	if vrfName != "" {
		query += ` AND LOWER(v.name) = LOWER(?)`
		args = append(args, vrfName)
	}
	query += ` ORDER BY ip.id LIMIT 2`

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying IP address: %w", err)
	}
	defer rows.Close()

	var found []*model.IPAddress
	for rows.Next() {
		ip, err := scanIPAddress(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, ip)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, ErrIPAddressNotFound
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("address %s matches several IP addresses, give its VRF: %w", address, ErrReferenceNotFound)
}

// CreateIPAddress adds a new IP address
func (ss *SQLiteStorage) CreateIPAddress(ctx context.Context, ip *model.IPAddress) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if err := ip.Validate(); err != nil {
		return err
	}

	return ss.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkIPReferences(ctx, tx, ip); err != nil {
			return err
		}

		cf, err := encodeCustomFields(ip.CustomFieldData)
		if err != nil {
			return err
		}

		ip.Created = time.Now().UTC()
		result, err := tx.ExecContext(ctx, `
			INSERT INTO ip_addresses (address, vrf_id, assigned_object_type, assigned_object_id, custom_field_data, description, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, ip.Address, idArg(ip.VRFID), nullIfEmpty(ip.AssignedObjectType), idArg(ip.AssignedObjectID), cf,
			ip.Description, ip.Created)
		if err != nil {
			return fmt.Errorf("inserting IP address: %w", err)
		}
		ip.ID, err = result.LastInsertId()
		return err
	})
}

// UpdateIPAddress replaces an IP address. The VRF of the impacts on it
// follows; clearing the VRF of an address that carries an impact fails.
func (ss *SQLiteStorage) UpdateIPAddress(ctx context.Context, ip *model.IPAddress) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if err := ip.Validate(); err != nil {
		return err
	}

	return ss.inTx(ctx, func(tx *sql.Tx) error {
		prev, err := getIPAddress(ctx, tx, ip.ID)
		if err != nil {
			return err
		}
		if err := checkIPReferences(ctx, tx, ip); err != nil {
			return err
		}

		if ip.VRFID == nil {
			var n int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM impacts WHERE ip_address_id = ?`, ip.ID).Scan(&n); err != nil {
				return fmt.Errorf("counting impacts: %w", err)
			}
			if n > 0 {
				return &FieldError{Field: "vrf", Err: ErrIPAddressNoVRF}
			}
		}

		cf, err := encodeCustomFields(ip.CustomFieldData)
		if err != nil {
			return err
		}

		ip.Created = prev.Created
		_, err = tx.ExecContext(ctx, `
			UPDATE ip_addresses
			SET address = ?, vrf_id = ?, assigned_object_type = ?, assigned_object_id = ?, custom_field_data = ?, description = ?
			WHERE id = ?
		`, ip.Address, idArg(ip.VRFID), nullIfEmpty(ip.AssignedObjectType), idArg(ip.AssignedObjectID), cf,
			ip.Description, ip.ID)
		if err != nil {
			return fmt.Errorf("updating IP address: %w", err)
		}

		if !model.SameID(prev.VRFID, ip.VRFID) {
			_, err = tx.ExecContext(ctx, `UPDATE impacts SET vrf_id = ?, updated_at = ? WHERE ip_address_id = ?`,
				idArg(ip.VRFID), time.Now().UTC(), ip.ID)
			if err != nil {
				return impactWriteError("moving impacts to VRF", err)
			}
		}
		return nil
	})
}

// DeleteIPAddress removes an IP address and its impacts
func (ss *SQLiteStorage) DeleteIPAddress(ctx context.Context, id int64) error {
	return ss.deleteRow(ctx, "ip_addresses", id, ErrIPAddressNotFound)
}

func getIPAddress(ctx context.Context, q querier, id int64) (*model.IPAddress, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+ipAddressColumns+` FROM ip_addresses WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying IP address: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrIPAddressNotFound
	}
	return scanIPAddress(rows)
}

func scanIPAddress(rows *sql.Rows) (*model.IPAddress, error) {
	var ip model.IPAddress
	var vrfID, assignedID sql.NullInt64
	var assignedType sql.NullString
	var cf string
	if err := rows.Scan(&ip.ID, &ip.Address, &vrfID, &assignedType, &assignedID, &cf, &ip.Description, &ip.Created); err != nil {
		return nil, fmt.Errorf("scanning IP address: %w", err)
	}
	ip.VRFID = nullID(vrfID)
	ip.AssignedObjectType = assignedType.String
	ip.AssignedObjectID = nullID(assignedID)
	if cf != "" && cf != "{}" {
		if err := json.Unmarshal([]byte(cf), &ip.CustomFieldData); err != nil {
			return nil, fmt.Errorf("decoding custom fields of IP address %d: %w", ip.ID, err)
		}
	}
	return &ip, nil
}

func checkIPReferences(ctx context.Context, q querier, ip *model.IPAddress) error {
	if ip.VRFID != nil {
		if err := exists(ctx, q, "vrfs", *ip.VRFID); err != nil {
			return &FieldError{Field: "vrf", Err: err}
		}
	}
	switch ip.AssignedObjectType {
	case model.AssignedToInterface:
		if err := exists(ctx, q, "interfaces", *ip.AssignedObjectID); err != nil {
			return &FieldError{Field: "assigned_object_id", Err: err}
		}
	case model.AssignedToVMInterface:
		if err := exists(ctx, q, "vm_interfaces", *ip.AssignedObjectID); err != nil {
			return &FieldError{Field: "assigned_object_id", Err: err}
		}
	}
	return nil
}

func encodeCustomFields(cf map[string]any) (string, error) {
	if len(cf) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(cf)
	if err != nil {
		return "", fmt.Errorf("encoding custom fields: %w", err)
	}
	return string(data), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func requiredError(field string) error {
	errs := &model.ValidationErrors{}
	errs.AddField(field, model.MsgRequired)
	return errs
}

// queryNamed lists rows of a (id, name, description, created_at) table.
func (ss *SQLiteStorage) queryNamed(ctx context.Context, table string, filter *model.InventoryFilter) (*sql.Rows, error) {
	query := `SELECT id, name, description, created_at FROM ` + table
	var args []any
	if filter != nil && filter.Query != "" {
		query += ` WHERE name LIKE ? ESCAPE '\'`
		args = append(args, likeArg(filter.Query))
	}
	query += ` ORDER BY name, id`
	return ss.db.QueryContext(ctx, query, args...)
}

func (ss *SQLiteStorage) insertNamed(ctx context.Context, table, name, description string) (int64, time.Time, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, time.Time{}, requiredError("name")
	}

	created := time.Now().UTC()
	result, err := ss.db.ExecContext(ctx, `INSERT INTO `+table+` (name, description, created_at) VALUES (?, ?, ?)`,
		name, description, created)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, time.Time{}, &FieldError{Field: "name", Err: ErrDuplicateName}
		}
		return 0, time.Time{}, fmt.Errorf("inserting into %s: %w", table, err)
	}
	id, err := result.LastInsertId()
	return id, created, err
}

func (ss *SQLiteStorage) insertInterface(ctx context.Context, table, parentColumn string, parentID int64, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, requiredError("name")
	}

	result, err := ss.db.ExecContext(ctx, `INSERT INTO `+table+` (`+parentColumn+`, name) VALUES (?, ?)`, parentID, name)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return 0, &FieldError{Field: "name", Err: ErrDuplicateName}
		case isForeignKeyViolation(err):
			return 0, &FieldError{Field: strings.TrimSuffix(parentColumn, "_id"), Err: ErrReferenceNotFound}
		}
		return 0, fmt.Errorf("inserting into %s: %w", table, err)
	}
	return result.LastInsertId()
}

func (ss *SQLiteStorage) deleteRow(ctx context.Context, table string, id int64, notFound error) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result, err := ss.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return notFound
	}
	return nil
}
