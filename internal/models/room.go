package models

import "time"

// User is the read-only view of an application user needed by the realtime
// layer. Profiles are owned by the rest of the application.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
}

type ParticipantsResponse struct {
	RoomID       string   `json:"room_id"`
	Participants []string `json:"participants"`
	Count        int      `json:"count"`
}

type HistoryResponse struct {
	RoomID   string     `json:"room_id"`
	Messages []*Message `json:"messages"`
	Source   string     `json:"source"`
}
