package models

import "encoding/json"

// QueueItem is one insertion into a group's queue. The same song may be
// queued more than once; each insertion gets its own ID.
type QueueItem struct {
	ID      string          `json:"id"`
	Song    json.RawMessage `json:"song"`
	AddedBy Member          `json:"addedBy"`
	AddedAt int64           `json:"addedAt"`
}
