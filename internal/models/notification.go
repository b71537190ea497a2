package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification in-app уведомление, которое также доставляется по WebSocket.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"userId"`
	Type      string          `db:"type" json:"type"`
	Title     string          `db:"title" json:"title"`
	Body      string          `db:"body" json:"body"`
	Data      json.RawMessage `db:"data" json:"data,omitempty"`
	IsRead    bool            `db:"is_read" json:"isRead"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}
