package models

import "encoding/json"

// Member is a user taking part in a listening group. Identity is the UserID.
type Member struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	ProfilePic string `json:"profilePic"`
}

// Group is the full snapshot of a listening group as sent to (re)joining clients.
type Group struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	CreatedBy         string        `json:"createdBy"`
	CreatedAt         int64         `json:"createdAt"`
	Members           []Member      `json:"members"`
	PlaybackState     PlaybackState `json:"playbackState"`
	Queue             []QueueItem   `json:"queue"`
	CurrentQueueIndex int           `json:"currentQueueIndex"`
	QRCode            string        `json:"qrCode,omitempty"`
}

// HasMember reports whether userID is part of the snapshot's member list.
func (g Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// ChatMessage is relayed to a group as-is; Extra carries client fields the
// server does not interpret.
type ChatMessage struct {
	GroupID   string                     `json:"groupId"`
	SenderID  string                     `json:"senderId"`
	Message   string                     `json:"message"`
	Timestamp int64                      `json:"timestamp"`
	Extra     map[string]json.RawMessage `json:"-"`
}

// MarshalJSON flattens Extra next to the known fields.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+4)
	for k, v := range m.Extra {
		out[k] = v
	}
	var err error
	if out["groupId"], err = json.Marshal(m.GroupID); err != nil {
		return nil, err
	}
	if out["senderId"], err = json.Marshal(m.SenderID); err != nil {
		return nil, err
	}
	if out["message"], err = json.Marshal(m.Message); err != nil {
		return nil, err
	}
	if out["timestamp"], err = json.Marshal(m.Timestamp); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}
