package models

import "time"

type ShareEventType string

const (
	ShareEventShare ShareEventType = "share"
	ShareEventClick ShareEventType = "click"
)

// ShareEvent is a raw share or link click reported by the client apps
type ShareEvent struct {
	ID                string         `gorm:"primaryKey;size:36" json:"id"`
	ReferrerAccountID string         `gorm:"index;not null" json:"referrer_account_id"`
	Channel           string         `gorm:"size:64;index" json:"channel"`
	EventType         ShareEventType `gorm:"size:16;not null;index" json:"event_type"`
	CreatedAt         time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}
