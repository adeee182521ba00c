package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

// ListObjectChanges returns the change log of one object, newest first
func (ss *SQLiteStorage) ListObjectChanges(ctx context.Context, objectType string, objectID int64) ([]model.ObjectChange, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.db.QueryContext(ctx, `
		SELECT id, time, user_name, request_id, action, changed_object_type, changed_object_id,
		       object_repr, prechange_data, postchange_data
		FROM object_changes
		WHERE changed_object_type = ? AND changed_object_id = ?
		ORDER BY time DESC, id DESC
	`, objectType, objectID)
	if err != nil {
		return nil, fmt.Errorf("querying object changes: %w", err)
	}
	defer rows.Close()

	changes := []model.ObjectChange{}
	for rows.Next() {
		var c model.ObjectChange
		var pre, post sql.NullString
		if err := rows.Scan(&c.ID, &c.Time, &c.UserName, &c.RequestID, &c.Action, &c.ObjectType,
			&c.ObjectID, &c.ObjectRepr, &pre, &post); err != nil {
			return nil, fmt.Errorf("scanning object change: %w", err)
		}
		if pre.Valid {
			c.PrechangeData = json.RawMessage(pre.String)
		}
		if post.Valid {
			c.PostchangeData = json.RawMessage(post.String)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// recordChange writes a change log entry in the same transaction as the
// change itself.
func recordChange(ctx context.Context, q querier, action model.ChangeAction, prev, next *model.Impact, opts WriteOptions) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating change id: %w", err)
	}

	subject := next
	if subject == nil {
		subject = prev
	}

	pre, err := changeData(prev)
	if err != nil {
		return err
	}
	post, err := changeData(next)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO object_changes (id, time, user_name, request_id, action, changed_object_type,
			changed_object_id, object_repr, prechange_data, postchange_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id.String(), time.Now().UTC(), opts.Actor, opts.RequestID, string(action), model.ImpactObjectType,
		subject.ID, subject.String(), pre, post)
	if err != nil {
		return fmt.Errorf("recording change: %w", err)
	}
	return nil
}

func changeData(impact *model.Impact) (any, error) {
	if impact == nil {
		return nil, nil
	}
	data, err := json.Marshal(impact)
	if err != nil {
		return nil, fmt.Errorf("encoding change data: %w", err)
	}
	return string(data), nil
}
