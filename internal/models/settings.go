package models

import "time"

// GlobalSettingsID is the primary key of the only settings row.
const GlobalSettingsID = "global"

// SystemSettings is the operator-editable configuration row.
type SystemSettings struct {
	ID             string    `gorm:"primaryKey;size:32" json:"id"`
	WebhookURL     string    `json:"webhookUrl"`
	FallbackNumber string    `json:"fallbackNumber"`
	EmailAlerts    bool      `gorm:"not null" json:"emailAlerts"`
	WhatsappAlerts bool      `gorm:"not null" json:"whatsappAlerts"`
	WebhookLogs    bool      `gorm:"not null" json:"webhookLogs"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TableName keeps the table name stable regardless of naming strategy.
func (SystemSettings) TableName() string { return "system_settings" }

// DefaultSettings is what a fresh install starts with.
func DefaultSettings() SystemSettings {
	return SystemSettings{
		ID:          GlobalSettingsID,
		EmailAlerts: true,
		WebhookLogs: true,
	}
}
