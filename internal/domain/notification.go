package domain

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	NotificationEliteExpiryWarning NotificationType = "elite_expiry_warning"
)

type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Payload   json.RawMessage
	Read      bool
	CreatedAt time.Time
}

// DayBucket is the UTC day index used by the store's uniqueness backstop.
func DayBucket(t time.Time) int64 {
	return t.UTC().Unix() / 86400
}
