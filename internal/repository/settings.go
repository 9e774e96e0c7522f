package repository

import (
	"context"

	"admissions-go/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Load returns the global settings row, creating it with defaults on first use.
func (r *SettingsRepository) Load(ctx context.Context) (*models.SystemSettings, error) {
	defaults := models.DefaultSettings()
	var s models.SystemSettings
	err := r.db.WithContext(ctx).
		Where("id = ?", models.GlobalSettingsID).
		Attrs(defaults).
		FirstOrCreate(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes every field of the global settings row.
func (r *SettingsRepository) Save(ctx context.Context, s *models.SystemSettings) (*models.SystemSettings, error) {
	s.ID = models.GlobalSettingsID
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"webhook_url", "fallback_number", "email_alerts", "whatsapp_alerts", "webhook_logs", "updated_at"}),
	}).Create(s).Error
	if err != nil {
		return nil, err
	}
	return r.Load(ctx)
}
