package domain

import "time"

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "ONLINE"
	PresenceOffline PresenceStatus = "OFFLINE"
)

type PresenceEvent struct {
	UserID     string         `json:"user_id"`
	Status     PresenceStatus `json:"status"`
	OccurredAt int64          `json:"occurred_at"`
}
