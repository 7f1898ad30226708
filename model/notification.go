package model

import (
	"time"

	"gorm.io/datatypes"
)

const NotificationTournamentDeleted = "tournament_deleted"

// Notification is a durable message for a user who may be offline.
type Notification struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string         `gorm:"size:64;not null;index:idx_notification_user" json:"user_id"`
	Type      string         `gorm:"size:32;not null" json:"type"`
	Title     string         `gorm:"size:128" json:"title"`
	Message   string         `gorm:"type:text" json:"message"`
	Payload   datatypes.JSON `json:"payload"`
	Read      bool           `gorm:"column:is_read;default:false;index" json:"read"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
