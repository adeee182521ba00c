package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

// listingBase derives one row per IP address that is assigned to a device
// interface, a VM interface or to nothing. Each correlated lookup returns at
// most one value and NULL when nothing matches.
const listingBase = `
WITH base AS (
	SELECT
		ip.id AS ip_id,
		ip.address AS address,
		ip.vrf_id AS vrf_id,
		v.name AS vrf_name,
		CASE WHEN ip.assigned_object_type = 'dcim.interface' THEN (
			SELECT d.name FROM interfaces i JOIN devices d ON d.id = i.device_id
			WHERE i.id = ip.assigned_object_id LIMIT 1
		) END AS device_name,
		CASE WHEN ip.assigned_object_type = 'virtualization.vminterface' THEN (
			SELECT vm.name FROM vm_interfaces vi JOIN virtual_machines vm ON vm.id = vi.virtual_machine_id
			WHERE vi.id = ip.assigned_object_id LIMIT 1
		) END AS vm_name,
		CAST(json_extract(ip.custom_field_data, '$.` + model.LongNameField + `') AS TEXT) AS long_name,
		(SELECT im.id FROM impacts im WHERE im.ip_address_id = ip.id ORDER BY im.id LIMIT 1) AS impact_id,
		(SELECT im.impact FROM impacts im WHERE im.ip_address_id = ip.id ORDER BY im.id LIMIT 1) AS impact,
		(SELECT im.redundancy FROM impacts im WHERE im.ip_address_id = ip.id ORDER BY im.id LIMIT 1) AS redundancy
	FROM ip_addresses ip
	LEFT JOIN vrfs v ON v.id = ip.vrf_id
	WHERE ip.assigned_object_type IN ('dcim.interface', 'virtualization.vminterface')
	   OR ip.assigned_object_type IS NULL
),
listing AS (
	SELECT base.*, COALESCE(device_name, vm_name, long_name, '` + model.NotAssigned + `') AS assigned_to
	FROM base
)
`

// ListIPAddressImpacts returns a page of the derived IP address listing and
// the total number of rows matching filter. The statement is composed on
// every call from that call's filter only.
func (ss *SQLiteStorage) ListIPAddressImpacts(ctx context.Context, filter *model.ListingFilter) ([]model.IPAddressImpact, int, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if filter == nil {
		filter = &model.ListingFilter{}
	}

	clause, args := listingWhere(filter)

	var count int
	if err := ss.db.QueryRowContext(ctx, listingBase+"SELECT COUNT(*) FROM listing"+clause, args...).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("counting IP address listing: %w", err)
	}

	query := listingBase + `
		SELECT ip_id, address, vrf_id, vrf_name, device_name, vm_name, assigned_to, impact_id, impact, redundancy
		FROM listing` + clause + `
		ORDER BY COALESCE(vrf_name, ''), address, ip_id`
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying IP address listing: %w", err)
	}
	defer rows.Close()

	result := []model.IPAddressImpact{}
	for rows.Next() {
		var row model.IPAddressImpact
		var vrfID, impactID sql.NullInt64
		var vrfName, deviceName, vmName, impact sql.NullString
		var redundancy sql.NullBool
		if err := rows.Scan(&row.IPAddressID, &row.Address, &vrfID, &vrfName, &deviceName, &vmName,
			&row.AssignedTo, &impactID, &impact, &redundancy); err != nil {
			return nil, 0, fmt.Errorf("scanning IP address listing: %w", err)
		}
		row.VRFID = nullID(vrfID)
		row.VRFName = nullString(vrfName)
		row.DeviceName = nullString(deviceName)
		row.VMName = nullString(vmName)
		row.ImpactID = nullID(impactID)
		row.Impact = nullString(impact)
		row.Redundancy = nullBool(redundancy)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating IP address listing: %w", err)
	}

	return result, count, nil
}

func listingWhere(filter *model.ListingFilter) (string, []any) {
	var where []string
	var args []any

	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, `(address LIKE ? ESCAPE '\' OR impact LIKE ? ESCAPE '\' OR assigned_to LIKE ? ESCAPE '\')`)
		args = append(args, likeArg(q), likeArg(q), likeArg(q))
	}
	if a := strings.TrimSpace(filter.Address); a != "" {
		where = append(where, `address LIKE ? ESCAPE '\'`)
		args = append(args, likeArg(a))
	}
	if filter.VRFID != nil {
		where = append(where, "vrf_id = ?")
		args = append(args, *filter.VRFID)
	}
	if filter.HasImpact != nil {
		if *filter.HasImpact {
			where = append(where, "impact_id IS NOT NULL")
		} else {
			where = append(where, "impact_id IS NULL")
		}
	}
	if filter.Redundancy != nil {
		where = append(where, "redundancy = ?")
		args = append(args, *filter.Redundancy)
	}
	if len(filter.VRFIn) > 0 {
		in, inArgs := inClause(filter.VRFIn)
		where = append(where, "vrf_id IN "+in)
		args = append(args, inArgs...)
	}

	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}
