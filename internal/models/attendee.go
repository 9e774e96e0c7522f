package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status is the outcome of an attendee's most recent test.
type Status string

const (
	StatusPending      Status = "pending"
	StatusPassed       Status = "passed"
	StatusFailed       Status = "failed"
	StatusDisqualified Status = "disqualified"
)

// ParseStatus is deliberately lenient: test clients send "PASSED", "Passed"
// or nothing at all. Anything unrecognised is pending.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPassed:
		return StatusPassed
	case StatusFailed:
		return StatusFailed
	case StatusDisqualified:
		return StatusDisqualified
	default:
		return StatusPending
	}
}

// TestType distinguishes the scholarship test from the hiring aptitude test.
type TestType string

const (
	TestTypeScholarship TestType = "scholarship"
	TestTypeAptitude    TestType = "aptitude"
)

func ParseTestType(s string) TestType {
	if TestType(strings.ToLower(strings.TrimSpace(s))) == TestTypeAptitude {
		return TestTypeAptitude
	}
	return TestTypeScholarship
}

// TestResponse is one answered question as reported by the test client.
type TestResponse struct {
	Question      string `json:"question"`
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
}

// Attendee is a test taker. Email is the natural key; ID is what the
// dashboard and the nurture endpoint address.
type Attendee struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	FullName    string `json:"fullName"`
	Phone       string `json:"phone"`
	CountryCode string `json:"countryCode"`

	Status         Status                            `gorm:"index;not null" json:"status"`
	Score          int                               `gorm:"not null" json:"score"`
	CheatWarnings  int                               `gorm:"not null" json:"cheatWarnings"`
	TestType       TestType                          `gorm:"index;not null" json:"testType"`
	TotalQuestions int                               `json:"totalQuestions"`
	TestResponses  datatypes.JSONSlice[TestResponse] `json:"testResponses,omitempty"`

	PlanName        string  `json:"planName"`
	DiscountPercent int     `gorm:"not null" json:"discountPercent"`
	CouponCode      *string `gorm:"uniqueIndex" json:"couponCode"`

	Qualification string `json:"qualification,omitempty"`
	CollegeName   string `json:"collegeName,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	Address       string `json:"address,omitempty"`
	Pincode       string `json:"pincode,omitempty"`
	FatherName    string `json:"fatherName,omitempty"`
	MotherName    string `json:"motherName,omitempty"`
	ParentPhone   string `json:"parentPhone,omitempty"`

	EmailSent         int  `gorm:"not null" json:"emailSent"`
	WhatsappSent      int  `gorm:"not null" json:"whatsappSent"`
	VoiceCallCount    int  `gorm:"not null" json:"voiceCallCount"`
	IsRegistered      bool `gorm:"not null" json:"isRegistered"`
	AutoCallAttempted bool `gorm:"not null" json:"autoCallAttempted"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (a *Attendee) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Coupon returns the coupon code or "" when none was issued.
func (a *Attendee) Coupon() string {
	if a.CouponCode == nil {
		return ""
	}
	return *a.CouponCode
}

// FirstName is used to personalise greetings.
func (a *Attendee) FirstName() string {
	name := strings.TrimSpace(a.FullName)
	if name == "" {
		return "there"
	}
	return strings.Fields(name)[0]
}
