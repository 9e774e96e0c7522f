package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type StatusCount struct {
	Status string `json:"status"`
	Total  int64  `json:"total"`
}

type NurtureTotals struct {
	Emails     int64 `json:"emails"`
	WhatsApps  int64 `json:"whatsapps"`
	VoiceCalls int64 `json:"voiceCalls"`
	Registered int64 `json:"registered"`
}

type DailyCount struct {
	Day   string `json:"day"`
	Total int64  `json:"total"`
}

// ReportRepository runs the aggregate queries behind the dashboard charts.
type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// scoped restricts a query to one test type when one is given.
func scoped(q *gorm.DB, testType string) *gorm.DB {
	if testType != "" {
		return q.Where("test_type = ?", testType)
	}
	return q
}

func (r *ReportRepository) StatusCounts(ctx context.Context, testType string) ([]StatusCount, error) {
	var data []StatusCount
	q := r.db.WithContext(ctx).Table("attendees").
		Select("status, COUNT(*) AS total").
		Group("status").
		Order("status")
	err := scoped(q, testType).Scan(&data).Error
	return data, err
}

func (r *ReportRepository) NurtureTotals(ctx context.Context, testType string) (NurtureTotals, error) {
	var totals NurtureTotals
	q := r.db.WithContext(ctx).Table("attendees").Select(`
		COALESCE(SUM(email_sent), 0) AS emails,
		COALESCE(SUM(whatsapp_sent), 0) AS whats_apps,
		COALESCE(SUM(voice_call_count), 0) AS voice_calls,
		COALESCE(SUM(CASE WHEN is_registered THEN 1 ELSE 0 END), 0) AS registered`)
	err := scoped(q, testType).Scan(&totals).Error
	return totals, err
}

// DailySubmissions counts new attendees per calendar day since the given time.
func (r *ReportRepository) DailySubmissions(ctx context.Context, testType string, since time.Time) ([]DailyCount, error) {
	var data []DailyCount
	q := r.db.WithContext(ctx).Table("attendees").
		Select("CAST(DATE(created_at) AS TEXT) AS day, COUNT(*) AS total").
		Where("created_at >= ?", since).
		Group("DATE(created_at)").
		Order("day")
	err := scoped(q, testType).Scan(&data).Error
	return data, err
}
