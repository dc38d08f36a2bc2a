package models

import "time"

type MessageKind string

const (
	MessageKindText     MessageKind = "text"
	MessageKindImage    MessageKind = "image"
	MessageKindLocation MessageKind = "location"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindLocation:
		return true
	}
	return false
}

// Message is a chat message as broadcast to a room. It is transient; the
// ephemeral store and the archive keep best-effort copies.
type Message struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"roomId"`
	SenderID  string      `json:"senderId"`
	Content   string      `json:"content"`
	Type      MessageKind `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// PresenceSnapshot is the last reported status of a user. Snapshots expire
// in the ephemeral store; a missing snapshot means the user is offline.
type PresenceSnapshot struct {
	UserID   string    `json:"userId"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)
