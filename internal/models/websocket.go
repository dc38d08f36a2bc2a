package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type EventType string

// Inbound events (client -> gateway).
const (
	EventJoin     EventType = "join"
	EventLeave    EventType = "leave"
	EventMessage  EventType = "message"
	EventTyping   EventType = "typing"
	EventPresence EventType = "presence"
)

// Outbound events (gateway -> client). Message, typing and presence reuse the
// inbound names.
const (
	EventUserJoined EventType = "userJoined"
	EventUserLeft   EventType = "userLeft"
	EventError      EventType = "error"
	EventHistory    EventType = "history"
)

// Envelope is the JSON frame exchanged over the websocket in both directions.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// InboundEvent is a decoded client frame. Only the fields relevant to Type
// are populated.
type InboundEvent struct {
	Type        EventType
	RoomID      string
	Content     string
	MessageType MessageKind
	IsTyping    bool
	Status      string
	LastSeen    *time.Time
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type MessagePayload struct {
	RoomID  string      `json:"roomId"`
	Content string      `json:"content"`
	Type    MessageKind `json:"type"`
}

type TypingPayload struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

type PresencePayload struct {
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// MembershipEvent is the payload of userJoined and userLeft.
type MembershipEvent struct {
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingEvent struct {
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	IsTyping  bool      `json:"isTyping"`
	Timestamp time.Time `json:"timestamp"`
}

type PresenceEvent struct {
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	LastSeen  time.Time `json:"lastSeen"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type HistoryEvent struct {
	RoomID   string     `json:"roomId"`
	Messages []*Message `json:"messages"`
}

var ErrMalformedFrame = errors.New("malformed frame")

// DecodeInbound parses a client frame into an InboundEvent. Unknown event
// names are returned as-is so the caller can reject them.
func DecodeInbound(raw []byte) (InboundEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return InboundEvent{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Event == "" {
		return InboundEvent{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}

	ev := InboundEvent{Type: env.Event}
	switch env.Event {
	case EventJoin, EventLeave:
		var p RoomPayload
		if err := decodeData(env.Data, &p); err != nil {
			return InboundEvent{}, err
		}
		ev.RoomID = p.RoomID
	case EventMessage:
		var p MessagePayload
		if err := decodeData(env.Data, &p); err != nil {
			return InboundEvent{}, err
		}
		ev.RoomID, ev.Content, ev.MessageType = p.RoomID, p.Content, p.Type
	case EventTyping:
		var p TypingPayload
		if err := decodeData(env.Data, &p); err != nil {
			return InboundEvent{}, err
		}
		ev.RoomID, ev.IsTyping = p.RoomID, p.IsTyping
	case EventPresence:
		var p PresencePayload
		if err := decodeData(env.Data, &p); err != nil {
			return InboundEvent{}, err
		}
		ev.Status, ev.LastSeen = p.Status, p.LastSeen
	}
	return ev, nil
}

func decodeData(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

// Encode wraps payload in an Envelope and marshals it.
func Encode(event EventType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
