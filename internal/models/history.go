package models

import (
	"encoding/json"
	"time"
)

// PlayRecord is one track start in a group's play history.
type PlayRecord struct {
	ID          int             `db:"id" json:"id"`
	GroupID     string          `db:"group_id" json:"groupId"`
	QueueItemID string          `db:"queue_item_id" json:"queueItemId"`
	Song        json.RawMessage `db:"song" json:"song"`
	AddedBy     string          `db:"added_by" json:"addedBy"`
	Reason      string          `db:"reason" json:"reason"`
	StartedAt   time.Time       `db:"started_at" json:"startedAt"`
}
