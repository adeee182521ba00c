package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

const impactColumns = `i.id, i.impact, i.description, i.redundancy, i.device_id, i.ip_address_id,
	i.vm_id, i.vrf_id, i.created_at, i.updated_at`

// ListImpacts returns a page of impacts and the total number matching filter
func (ss *SQLiteStorage) ListImpacts(ctx context.Context, filter *model.ImpactFilter) ([]model.Impact, int, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if filter == nil {
		filter = &model.ImpactFilter{}
	}

	var where []string
	var args []any
	if len(filter.IDs) > 0 {
		in, inArgs := inClause(filter.IDs)
		where = append(where, "i.id IN "+in)
		args = append(args, inArgs...)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, `(i.impact LIKE ? ESCAPE '\' OR i.description LIKE ? ESCAPE '\')`)
		args = append(args, likeArg(q), likeArg(q))
	}
	for col, id := range map[string]*int64{
		"i.ip_address_id": filter.IPAddressID,
		"i.device_id":     filter.DeviceID,
		"i.vm_id":         filter.VMID,
		"i.vrf_id":        filter.VRFID,
	} {
		if id != nil {
			where = append(where, col+" = ?")
			args = append(args, *id)
		}
	}
	if filter.Redundancy != nil {
		where = append(where, "i.redundancy = ?")
		args = append(args, *filter.Redundancy)
	}
	if len(filter.VRFIn) > 0 {
		in, inArgs := inClause(filter.VRFIn)
		where = append(where, "i.vrf_id IN "+in)
		args = append(args, inArgs...)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var count int
	if err := ss.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM impacts i"+clause, args...).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("counting impacts: %w", err)
	}

	query := "SELECT " + impactColumns + " FROM impacts i" + clause + " ORDER BY i.id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying impacts: %w", err)
	}
	defer rows.Close()

	impacts := []model.Impact{}
	for rows.Next() {
		impact, err := scanImpact(rows)
		if err != nil {
			return nil, 0, err
		}
		impacts = append(impacts, *impact)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating impacts: %w", err)
	}

	return impacts, count, nil
}

// GetImpact retrieves an impact by ID
func (ss *SQLiteStorage) GetImpact(ctx context.Context, id int64) (*model.Impact, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	return getImpact(ctx, ss.db, id)
}

// CreateImpact validates and inserts impact, copying the VRF of its IP
// address. impact.ID and the timestamps are set on success.
func (ss *SQLiteStorage) CreateImpact(ctx context.Context, impact *model.Impact, opts WriteOptions) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	return ss.inTx(ctx, func(tx *sql.Tx) error {
		return saveImpact(ctx, tx, impact, nil, opts)
	})
}

// UpdateImpact replaces the stored fields of impact.ID.
func (ss *SQLiteStorage) UpdateImpact(ctx context.Context, impact *model.Impact, opts WriteOptions) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	return ss.inTx(ctx, func(tx *sql.Tx) error {
		prev, err := getImpact(ctx, tx, impact.ID)
		if err != nil {
			return err
		}
		if !opts.permits(prev) {
			return ErrPermissionDenied
		}
		return saveImpact(ctx, tx, impact, prev, opts)
	})
}

// DeleteImpact removes an impact
func (ss *SQLiteStorage) DeleteImpact(ctx context.Context, id int64, opts WriteOptions) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	return ss.inTx(ctx, func(tx *sql.Tx) error {
		return deleteImpact(ctx, tx, id, opts)
	})
}

// ReconcileActor is the change-log user of VRF reconcile writes.
const ReconcileActor = "reconcile"

// ReconcileImpactVRFs re-copies the VRF of each IP-bound impact from its IP
// address and returns how many impacts changed. Impacts whose IP address
// lost its VRF are left alone, as are moves that would collide with another
// impact of the same IP address and VRF. Each move is logged as an update.
func (ss *SQLiteStorage) ReconcileImpactVRFs(ctx context.Context) (int, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	n := 0
	err := ss.inTx(ctx, func(tx *sql.Tx) error {
		n = 0
		stale, err := staleImpactVRFs(ctx, tx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, prev := range stale {
			next := prev.impact.Clone()
			next.VRFID = model.ID(prev.vrfID)
			next.LastUpdated = now

			result, err := tx.ExecContext(ctx,
				`UPDATE OR IGNORE impacts SET vrf_id = ?, updated_at = ? WHERE id = ?`,
				prev.vrfID, now, next.ID)
			if err != nil {
				return fmt.Errorf("reconciling impact VRF: %w", err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("reading reconciled rows: %w", err)
			}
			if affected == 0 {
				continue
			}
			if err := recordChange(ctx, tx, model.ChangeUpdate, prev.impact, next, WriteOptions{Actor: ReconcileActor}); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

type staleImpactVRF struct {
	impact *model.Impact
	vrfID  int64
}

func staleImpactVRFs(ctx context.Context, q querier) ([]staleImpactVRF, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+impactColumns+`, ip.vrf_id
		FROM impacts i JOIN ip_addresses ip ON ip.id = i.ip_address_id
		WHERE ip.vrf_id IS NOT NULL AND ip.vrf_id IS NOT i.vrf_id
		ORDER BY i.id`)
	if err != nil {
		return nil, fmt.Errorf("querying stale impact VRFs: %w", err)
	}
	defer rows.Close()

	var stale []staleImpactVRF
	for rows.Next() {
		var s staleImpactVRF
		if s.impact, err = scanImpact(rows, &s.vrfID); err != nil {
			return nil, err
		}
		stale = append(stale, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stale impact VRFs: %w", err)
	}
	return stale, nil
}

func getImpact(ctx context.Context, q querier, id int64) (*model.Impact, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+impactColumns+" FROM impacts i WHERE i.id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("querying impact: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying impact: %w", err)
		}
		return nil, ErrImpactNotFound
	}
	return scanImpact(rows)
}

func findImpactByIPAddress(ctx context.Context, q querier, ipID int64) (*model.Impact, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+impactColumns+" FROM impacts i WHERE i.ip_address_id = ? ORDER BY i.id LIMIT 1", ipID)
	if err != nil {
		return nil, fmt.Errorf("querying impact by IP address: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrImpactNotFound
	}
	return scanImpact(rows)
}

// scanImpact reads impactColumns, then any extra columns into extra.
func scanImpact(rows *sql.Rows, extra ...any) (*model.Impact, error) {
	var impact model.Impact
	var deviceID, ipID, vmID, vrfID sql.NullInt64
	dest := []any{&impact.ID, &impact.Impact, &impact.Description, &impact.Redundancy,
		&deviceID, &ipID, &vmID, &vrfID, &impact.Created, &impact.LastUpdated}
	err := rows.Scan(append(dest, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("scanning impact: %w", err)
	}
	impact.DeviceID = nullID(deviceID)
	impact.IPAddressID = nullID(ipID)
	impact.VMID = nullID(vmID)
	impact.VRFID = nullID(vrfID)
	return &impact, nil
}

// saveImpact is the single write path for impacts: validation, reference
// resolution, VRF copy, permission check, write and change log. prev is
// nil for creates.
func saveImpact(ctx context.Context, q querier, impact *model.Impact, prev *model.Impact, opts WriteOptions) error {
	impact.Impact = strings.TrimSpace(impact.Impact)
	if err := impact.Validate(); err != nil {
		return err
	}

	if err := resolveReferences(ctx, q, impact); err != nil {
		return err
	}

	if !opts.permits(impact) {
		return ErrPermissionDenied
	}

	now := time.Now().UTC()
	impact.LastUpdated = now

	if prev == nil {
		impact.Created = now
		result, err := q.ExecContext(ctx, `
			INSERT INTO impacts (impact, description, redundancy, device_id, ip_address_id, vm_id, vrf_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, impact.Impact, impact.Description, impact.Redundancy, idArg(impact.DeviceID),
			idArg(impact.IPAddressID), idArg(impact.VMID), idArg(impact.VRFID), impact.Created, impact.LastUpdated)
		if err != nil {
			return impactWriteError("inserting impact", err)
		}
		impact.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading impact id: %w", err)
		}
		return recordChange(ctx, q, model.ChangeCreate, nil, impact, opts)
	}

	impact.ID = prev.ID
	impact.Created = prev.Created
	_, err := q.ExecContext(ctx, `
		UPDATE impacts
		SET impact = ?, description = ?, redundancy = ?, device_id = ?, ip_address_id = ?, vm_id = ?, vrf_id = ?, updated_at = ?
		WHERE id = ?
	`, impact.Impact, impact.Description, impact.Redundancy, idArg(impact.DeviceID),
		idArg(impact.IPAddressID), idArg(impact.VMID), idArg(impact.VRFID), impact.LastUpdated, impact.ID)
	if err != nil {
		return impactWriteError("updating impact", err)
	}
	return recordChange(ctx, q, model.ChangeUpdate, prev, impact, opts)
}

// resolveReferences checks that every referenced object exists and copies
// the VRF of the IP address.
func resolveReferences(ctx context.Context, q querier, impact *model.Impact) error {
	if impact.DeviceID != nil {
		if err := exists(ctx, q, "devices", *impact.DeviceID); err != nil {
			return &FieldError{Field: model.FieldDevice, Err: err}
		}
	}
	if impact.VMID != nil {
		if err := exists(ctx, q, "virtual_machines", *impact.VMID); err != nil {
			return &FieldError{Field: model.FieldVM, Err: err}
		}
	}

	impact.VRFID = nil
	if impact.IPAddressID != nil {
		var vrfID sql.NullInt64
		err := q.QueryRowContext(ctx, "SELECT vrf_id FROM ip_addresses WHERE id = ?", *impact.IPAddressID).Scan(&vrfID)
		if errors.Is(err, sql.ErrNoRows) {
			return &FieldError{Field: model.FieldIPAddress, Err: ErrReferenceNotFound}
		}
		if err != nil {
			return fmt.Errorf("querying IP address: %w", err)
		}
		if !vrfID.Valid {
			return &FieldError{Field: model.FieldIPAddress, Err: ErrIPAddressNoVRF}
		}
		impact.VRFID = nullID(vrfID)
	}
	return nil
}

func exists(ctx context.Context, q querier, table string, id int64) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrReferenceNotFound
	}
	if err != nil {
		return fmt.Errorf("querying %s: %w", table, err)
	}
	return nil
}

func deleteImpact(ctx context.Context, q querier, id int64, opts WriteOptions) error {
	prev, err := getImpact(ctx, q, id)
	if err != nil {
		return err
	}
	if !opts.permits(prev) {
		return ErrPermissionDenied
	}

	if _, err := q.ExecContext(ctx, "DELETE FROM impacts WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting impact: %w", err)
	}
	return recordChange(ctx, q, model.ChangeDelete, prev, nil, opts)
}

func impactWriteError(op string, err error) error {
	switch {
	case isUniqueViolation(err):
		return &FieldError{Field: model.FieldIPAddress, Err: ErrDuplicateImpact}
	case isForeignKeyViolation(err):
		return ErrReferenceNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
