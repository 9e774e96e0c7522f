package repository

import (
	"context"
	"fmt"

	"admissions-go/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CouponPolicy tells Upsert what to do with an existing coupon code when the
// email already has a row.
type CouponPolicy int

const (
	// CouponKeep keeps a stored code and only fills it in when empty.
	CouponKeep CouponPolicy = iota
	// CouponReplace overwrites the stored code with the incoming one.
	CouponReplace
	// CouponClear removes any stored code.
	CouponClear
)

// Counter columns that nurture dispatches may increment.
const (
	CounterEmail    = "email_sent"
	CounterWhatsApp = "whatsapp_sent"
	CounterVoice    = "voice_call_count"
)

var counterColumns = map[string]bool{
	CounterEmail:    true,
	CounterWhatsApp: true,
	CounterVoice:    true,
}

type AttendeeRepository struct {
	db *gorm.DB
}

func NewAttendeeRepository(db *gorm.DB) *AttendeeRepository {
	return &AttendeeRepository{db: db}
}

// Upsert inserts the attendee or, when the email already exists, overwrites
// the listed columns in a single INSERT ... ON CONFLICT statement. The stored
// row is read back so callers always see the persisted coupon.
func (r *AttendeeRepository) Upsert(ctx context.Context, a *models.Attendee, columns []string, coupon CouponPolicy) (*models.Attendee, error) {
	set := clause.AssignmentColumns(append(append([]string{}, columns...), "updated_at"))

	couponCol := clause.Column{Name: "coupon_code"}
	switch coupon {
	case CouponReplace:
		set = append(set, clause.Assignment{Column: couponCol, Value: clause.Column{Table: "excluded", Name: "coupon_code"}})
	case CouponClear:
		set = append(set, clause.Assignment{Column: couponCol, Value: gorm.Expr("NULL")})
	default:
		set = append(set, clause.Assignment{Column: couponCol, Value: gorm.Expr("COALESCE(attendees.coupon_code, excluded.coupon_code)")})
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: set,
	}).Create(a).Error
	if err != nil {
		return nil, err
	}
	return r.FindByEmail(ctx, a.Email)
}

func (r *AttendeeRepository) FindByEmail(ctx context.Context, email string) (*models.Attendee, error) {
	var a models.Attendee
	err := r.db.WithContext(ctx).First(&a, "email = ?", email).Error
	return &a, err
}

func (r *AttendeeRepository) FindByID(ctx context.Context, id string) (*models.Attendee, error) {
	var a models.Attendee
	err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error
	return &a, err
}

// List returns attendees newest first, optionally restricted to one test type.
func (r *AttendeeRepository) List(ctx context.Context, testType models.TestType) ([]models.Attendee, error) {
	var out []models.Attendee
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if testType != "" {
		q = q.Where("test_type = ?", testType)
	}
	err := q.Find(&out).Error
	return out, err
}

// Clear deletes every attendee row and reports how many were removed.
func (r *AttendeeRepository) Clear(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Attendee{})
	return res.RowsAffected, res.Error
}

// IncrementCounter atomically adds one to a nurture counter.
func (r *AttendeeRepository) IncrementCounter(ctx context.Context, id, column string) error {
	if !counterColumns[column] {
		return fmt.Errorf("unknown counter column %q", column)
	}
	res := r.db.WithContext(ctx).Model(&models.Attendee{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClaimAutoCall flips auto_call_attempted for an attendee that has never been
// called. Exactly one caller can win the claim; the rest get false.
func (r *AttendeeRepository) ClaimAutoCall(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Attendee{}).
		Where("id = ? AND auto_call_attempted = ? AND voice_call_count = 0", id, false).
		UpdateColumn("auto_call_attempted", true)
	return res.RowsAffected == 1, res.Error
}

// PendingAutoCalls lists attendees of a test type that are still eligible for
// an automatic call, oldest first.
func (r *AttendeeRepository) PendingAutoCalls(ctx context.Context, testType models.TestType, limit int) ([]models.Attendee, error) {
	var out []models.Attendee
	q := r.db.WithContext(ctx).
		Where("auto_call_attempted = ? AND voice_call_count = 0 AND status <> ?", false, models.StatusDisqualified).
		Order("created_at ASC").
		Limit(limit)
	if testType != "" {
		q = q.Where("test_type = ?", testType)
	}
	err := q.Find(&out).Error
	return out, err
}
