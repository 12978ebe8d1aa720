package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Notification type constants. These are the wire values persisted in the
// notifications table and returned to clients.
const (
	NotificationNewRequest      = "NEW_REQUEST"
	NotificationRequestAccepted = "REQUEST_ACCEPTED"
	NotificationRequestDenied   = "REQUEST_DENIED"
	NotificationRequestDeleted  = "REQUEST_DELETED"
)

// Notification is an at-least-once event record informing an identity of a
// lifecycle change affecting it. Rows are append-only; the only mutation is
// the read flag. Rows disappear only when the recipient identity is deleted.
type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID        string     `bun:"id,pk,type:uuid"`
	Owner     string     `bun:"owner,notnull,type:uuid"` // recipient identity
	Type      string     `bun:"type,notnull"`
	Context   ContextMap `bun:"context,type:jsonb"`
	Read      bool       `bun:"read,notnull,default:false"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}
