package models

import "time"

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// Notification is an entry in the dashboard's bell feed.
type Notification struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	Title     string           `gorm:"not null" json:"title"`
	Desc      string           `gorm:"column:description" json:"desc"`
	Type      NotificationType `gorm:"not null" json:"type"`
	Read      bool             `gorm:"column:is_read;not null;index" json:"read"`
	CreatedAt time.Time        `gorm:"index" json:"createdAt"`
}
