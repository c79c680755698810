package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// NotificationTypeSubstitution tags notifications produced by the
// substitution engine.
const NotificationTypeSubstitution = "substitution"

// Notification is an in-app message for one recipient. Data carries a
// structured payload referencing the triggering entity (substitution id,
// date, slot) so clients can deep-link.
type Notification struct {
	ID          string         `db:"id" json:"id"`
	RecipientID string         `db:"recipient_id" json:"recipient_id"`
	Type        string         `db:"type" json:"type"`
	Title       string         `db:"title" json:"title"`
	Message     string         `db:"message" json:"message"`
	Data        types.JSONText `db:"data" json:"data,omitempty"`
	Read        bool           `db:"read" json:"read"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// NotificationFilter describes listing criteria for a recipient's inbox.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Page        int
	PageSize    int
}
