package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

// BulkEditImpacts applies edit to every selected object in one transaction.
// When edit targets IP addresses, the impact of each address is obtained or
// created first. Any failure rolls the whole batch back and is reported as
// a *BatchError naming the object it came from.
func (ss *SQLiteStorage) BulkEditImpacts(ctx context.Context, edit *model.BulkEdit, opts WriteOptions) ([]model.Impact, error) {
	if err := edit.Check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBulkEdit, err)
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	var updated []model.Impact
	err := ss.inTx(ctx, func(tx *sql.Tx) error {
		updated = updated[:0]
		for _, id := range dedupe(edit.IDs) {
			impact, err := bulkEditOne(ctx, tx, edit, id, opts)
			if err != nil {
				return &BatchError{ObjectID: id, Err: err}
			}
			updated = append(updated, *impact)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func bulkEditOne(ctx context.Context, q querier, edit *model.BulkEdit, id int64, opts WriteOptions) (*model.Impact, error) {
	if edit.Target == model.BulkTargetIPAddresses {
		prev, err := obtainImpactForIPAddress(ctx, q, id)
		if err != nil {
			return nil, err
		}
		next := &model.Impact{Impact: model.DefaultImpactText, IPAddressID: model.ID(id)}
		if prev != nil {
			if !opts.permits(prev) {
				return nil, ErrPermissionDenied
			}
			next = prev.Clone()
		}
		edit.Apply(next)
		if err := saveImpact(ctx, q, next, prev, opts); err != nil {
			return nil, err
		}
		return next, nil
	}

	prev, err := getImpact(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if !opts.permits(prev) {
		return nil, ErrPermissionDenied
	}
	next := prev.Clone()
	edit.Apply(next)
	if err := saveImpact(ctx, q, next, prev, opts); err != nil {
		return nil, err
	}
	return next, nil
}

// obtainImpactForIPAddress returns the impact already attached to the IP
// address, or nil when a new one has to be created for it.
func obtainImpactForIPAddress(ctx context.Context, q querier, ipID int64) (*model.Impact, error) {
	if _, err := getIPAddress(ctx, q, ipID); err != nil {
		return nil, err
	}
	impact, err := findImpactByIPAddress(ctx, q, ipID)
	if errors.Is(err, ErrImpactNotFound) {
		return nil, nil
	}
	return impact, err
}

// BulkDeleteImpacts deletes the selected impacts, or the impacts of the
// selected IP addresses, in one transaction and returns how many were
// deleted.
func (ss *SQLiteStorage) BulkDeleteImpacts(ctx context.Context, target model.BulkTarget, ids []int64, opts WriteOptions) (int, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no objects selected", ErrInvalidBulkEdit)
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	deleted := 0
	err := ss.inTx(ctx, func(tx *sql.Tx) error {
		deleted = 0
		impactIDs := dedupe(ids)
		if target == model.BulkTargetIPAddresses {
			var err error
			impactIDs, err = impactIDsForIPAddresses(ctx, tx, impactIDs)
			if err != nil {
				return err
			}
		}
		for _, id := range impactIDs {
			if err := deleteImpact(ctx, tx, id, opts); err != nil {
				return &BatchError{ObjectID: id, Err: err}
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func impactIDsForIPAddresses(ctx context.Context, q querier, ipIDs []int64) ([]int64, error) {
	in, args := inClause(ipIDs)
	rows, err := q.QueryContext(ctx, "SELECT id FROM impacts WHERE ip_address_id IN "+in+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("querying impacts of IP addresses: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning impact id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ImportImpacts creates each row, or updates the impact named by its ID, in
// one transaction. The first failing row aborts the import, including a row
// whose action opts.Can refuses.
func (ss *SQLiteStorage) ImportImpacts(ctx context.Context, rows []model.Impact, opts WriteOptions) ([]model.Impact, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	var saved []model.Impact
	err := ss.inTx(ctx, func(tx *sql.Tx) error {
		saved = saved[:0]
		for i := range rows {
			impact := rows[i].Clone()

			action := model.ActionAdd
			if impact.ID != 0 {
				action = model.ActionChange
			}
			if !opts.can(action) {
				return &BatchError{Row: i + 1, Err: fmt.Errorf("%w: %s required", ErrPermissionDenied, action)}
			}

			var prev *model.Impact
			if impact.ID != 0 {
				var err error
				prev, err = getImpact(ctx, tx, impact.ID)
				if err != nil {
					return &BatchError{Row: i + 1, Err: err}
				}
				if !opts.permits(prev) {
					return &BatchError{Row: i + 1, Err: ErrPermissionDenied}
				}
			}

			if err := saveImpact(ctx, tx, impact, prev, opts); err != nil {
				return &BatchError{Row: i + 1, Err: err}
			}
			saved = append(saved, *impact)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func dedupe(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
