package model

import (
	"encoding/json"
	"time"
)

type ChangeAction string

const (
	ChangeCreate ChangeAction = "create"
	ChangeUpdate ChangeAction = "update"
	ChangeDelete ChangeAction = "delete"
)

// ObjectChange is one change-log entry
type ObjectChange struct {
	ID             string          `json:"id"`
	Time           time.Time       `json:"time"`
	UserName       string          `json:"user_name"`
	RequestID      string          `json:"request_id"`
	Action         ChangeAction    `json:"action"`
	ObjectType     string          `json:"changed_object_type"`
	ObjectID       int64           `json:"changed_object_id"`
	ObjectRepr     string          `json:"object_repr"`
	PrechangeData  json.RawMessage `json:"prechange_data"`
	PostchangeData json.RawMessage `json:"postchange_data"`
}
