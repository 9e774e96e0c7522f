package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"admissions-go/internal/config"
	"admissions-go/internal/models"
	"admissions-go/internal/repository"
	"admissions-go/internal/scholarship"
	"admissions-go/internal/utils"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultCountryCode = "+91"
	passMark           = 40
	maxCouponAttempts  = 3
)

// Submission is a test result as reported by the test client, already
// coerced to Go types.
type Submission struct {
	Email          string
	FullName       string
	Phone          string
	CountryCode    string
	Status         string
	TestType       string
	PlanName       string
	Score          int
	Discount       int
	CheatWarnings  int
	TotalQuestions int
	TestResponses  []models.TestResponse

	Qualification string
	CollegeName   string
	City          string
	State         string
	Address       string
	Pincode       string
	FatherName    string
	MotherName    string
	ParentPhone   string
}

// Lead is the first capture of a scored candidate, before the final result.
type Lead struct {
	Email       string
	FullName    string
	Phone       string
	CountryCode string
	PlanName    string
	Score       int
}

type SubmissionResult struct {
	Attendee     *models.Attendee       `json:"attendee"`
	Breakdown    *scholarship.Breakdown `json:"breakdown,omitempty"`
	EmailsSent   int                    `json:"emailsSent"`
	EmailsFailed int                    `json:"emailsFailed"`
	Message      string                 `json:"message"`
}

// SubmissionService turns test results into attendee rows and the mails that
// go with them.
type SubmissionService struct {
	conf      config.Source
	attendees *repository.AttendeeRepository
	settings  *repository.SettingsRepository
	notifier  *Notifier
	mailer    Mailer
	catalog   *models.Catalog
	log       *zap.Logger
}

func NewSubmissionService(
	conf config.Source,
	attendees *repository.AttendeeRepository,
	settings *repository.SettingsRepository,
	notifier *Notifier,
	mailer Mailer,
	catalog *models.Catalog,
	log *zap.Logger,
) *SubmissionService {
	return &SubmissionService{
		conf:      conf,
		attendees: attendees,
		settings:  settings,
		notifier:  notifier,
		mailer:    mailer,
		catalog:   catalog,
		log:       log.Named("submissions"),
	}
}

// outgoingMail is one message queued after persistence.
type outgoingMail struct {
	template string
	subject  string
	to       []mail.Address
}

// Submit records a final test result. Mail failures are counted in the
// result, never returned as errors.
func (s *SubmissionService) Submit(ctx context.Context, sub Submission) (*SubmissionResult, error) {
	email := utils.NormalizeEmail(sub.Email)
	if email == "" {
		return nil, errors.Wrap(ErrValidation, "email is required")
	}

	a := s.attendeeFrom(email, sub)
	columns := submissionColumns(sub)

	// A payload without testType keeps the type already on record.
	if strings.TrimSpace(sub.TestType) == "" {
		existing, err := s.attendees.FindByEmail(ctx, email)
		switch {
		case err == nil:
			a.TestType = existing.TestType
		case !errors.Is(err, gorm.ErrRecordNotFound):
			s.log.Error("Failed to load attendee", zap.String("email", email), zap.Error(err))
			return nil, errors.Wrapf(ErrPersistence, "load attendee: %v", err)
		}
	}

	var (
		stored    *models.Attendee
		breakdown *scholarship.Breakdown
		err       error
	)
	switch {
	case a.Status == models.StatusDisqualified:
		a.DiscountPercent = 0
		a.CouponCode = nil
		stored, err = s.attendees.Upsert(ctx, a, columns, repository.CouponClear)
	case a.TestType == models.TestTypeAptitude:
		a.DiscountPercent = 0
		stored, err = s.attendees.Upsert(ctx, a, columns, repository.CouponKeep)
	default:
		a.DiscountPercent = scholarship.ClampDiscount(sub.Discount)
		stored, err = s.upsertWithCoupon(ctx, a, columns)
		if err == nil {
			b := scholarship.Calculate(s.catalog.Lookup(stored.PlanName), stored.DiscountPercent)
			breakdown = &b
		}
	}
	if err != nil {
		s.log.Error("Failed to persist submission", zap.String("email", email), zap.Error(err))
		return nil, errors.Wrapf(ErrPersistence, "upsert attendee: %v", err)
	}
	submissionsTotal.WithLabelValues(string(stored.TestType), string(stored.Status)).Inc()

	settings := loadSettings(ctx, s.settings, s.log)
	data := mailData{Brand: s.conf().Catalog.Brand, Attendee: stored}
	if breakdown != nil {
		data.Breakdown = *breakdown
	}
	if settings.WhatsappAlerts {
		data.WhatsAppLink, _ = WhatsAppLink(stored.CountryCode, stored.Phone, "")
	}

	result := &SubmissionResult{Attendee: stored, Breakdown: breakdown}
	for _, m := range s.mailsFor(stored, breakdown, settings) {
		if err := s.deliver(ctx, m, data); err != nil {
			result.EmailsFailed++
			s.log.Warn("Submission email failed",
				zap.String("template", m.template),
				zap.String("attendee_id", stored.ID),
				zap.Error(err),
			)
			continue
		}
		result.EmailsSent++
	}

	name := displayName(stored)
	switch {
	case stored.Status == models.StatusDisqualified:
		result.Message = "Disqualification recorded."
		_, _ = s.notifier.Notify(ctx, "Candidate Disqualified",
			fmt.Sprintf("%s was disqualified after %d integrity warning(s).", name, stored.CheatWarnings),
			models.NotificationWarning)
	case stored.TestType == models.TestTypeAptitude:
		result.Message = "Assessment recorded."
		_, _ = s.notifier.Notify(ctx, "Aptitude Test Completed",
			fmt.Sprintf("%s finished the aptitude test with %d/%d.", name, stored.Score, stored.TotalQuestions),
			models.NotificationInfo)
	default:
		result.Message = "Scholarship recorded."
		_, _ = s.notifier.Notify(ctx, "New Scholarship Lead",
			fmt.Sprintf("%s scored %d and unlocked a %d%% scholarship (%s).", name, stored.Score, stored.DiscountPercent, stored.Coupon()),
			models.NotificationSuccess)
	}
	return result, nil
}

// Capture records the initial scored capture. The discount comes from the
// score formula and the status from the pass mark.
func (s *SubmissionService) Capture(ctx context.Context, lead Lead) (*SubmissionResult, error) {
	email := utils.NormalizeEmail(lead.Email)
	if email == "" {
		return nil, errors.Wrap(ErrValidation, "email is required")
	}

	if lead.Score < 0 {
		lead.Score = 0
	}
	status := models.StatusFailed
	if lead.Score >= passMark {
		status = models.StatusPassed
	}
	a := &models.Attendee{
		Email:           email,
		FullName:        strings.TrimSpace(lead.FullName),
		Phone:           strings.TrimSpace(lead.Phone),
		CountryCode:     orDefault(lead.CountryCode, defaultCountryCode),
		Status:          status,
		Score:           lead.Score,
		DiscountPercent: scholarship.DiscountFromScore(lead.Score),
		TestType:        models.TestTypeScholarship,
		TotalQuestions:  s.conf().Catalog.TotalQuestions,
		PlanName:        s.catalog.Lookup(lead.PlanName).Name,
	}
	columns := []string{"status", "score", "discount_percent"}
	columns = appendIfSet(columns, "full_name", a.FullName)
	columns = appendIfSet(columns, "phone", a.Phone)
	columns = appendIfSet(columns, "plan_name", strings.TrimSpace(lead.PlanName))

	stored, err := s.upsertWithCoupon(ctx, a, columns)
	if err != nil {
		s.log.Error("Failed to persist lead", zap.String("email", email), zap.Error(err))
		return nil, errors.Wrapf(ErrPersistence, "upsert lead: %v", err)
	}
	b := scholarship.Calculate(s.catalog.Lookup(stored.PlanName), stored.DiscountPercent)

	_, _ = s.notifier.Notify(ctx, "New Lead Captured",
		fmt.Sprintf("%s scored %d and was offered %d%% (%s).", displayName(stored), stored.Score, stored.DiscountPercent, stored.Coupon()),
		models.NotificationInfo)

	return &SubmissionResult{Attendee: stored, Breakdown: &b, Message: "Score captured."}, nil
}

// upsertWithCoupon issues a coupon only when the stored attendee has none or
// requalifies with a different score or discount. Otherwise the stored code
// is kept. Collisions with another attendee's code are retried.
func (s *SubmissionService) upsertWithCoupon(ctx context.Context, a *models.Attendee, columns []string) (*models.Attendee, error) {
	policy := repository.CouponKeep
	needCode := true

	existing, err := s.attendees.FindByEmail(ctx, a.Email)
	switch {
	case err == nil && existing.Coupon() != "":
		if existing.Score == a.Score && existing.DiscountPercent == a.DiscountPercent {
			needCode = false
		} else {
			policy = repository.CouponReplace
		}
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	for attempt := 1; attempt <= maxCouponAttempts; attempt++ {
		a.CouponCode = nil
		if needCode {
			code, err := scholarship.NewCouponCode(s.conf().Catalog.CouponPrefix)
			if err != nil {
				return nil, err
			}
			a.CouponCode = &code
		}
		stored, err := s.attendees.Upsert(ctx, a, columns, policy)
		if err == nil {
			return stored, nil
		}
		if !needCode || !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		s.log.Warn("Coupon code collision, regenerating", zap.Int("attempt", attempt))
	}
	return nil, errors.New("could not allocate a unique coupon code")
}

func (s *SubmissionService) attendeeFrom(email string, sub Submission) *models.Attendee {
	cheats := sub.CheatWarnings
	if cheats < 0 {
		cheats = 0
	}
	score := sub.Score
	if score < 0 {
		score = 0
	}
	total := sub.TotalQuestions
	if total <= 0 {
		total = s.conf().Catalog.TotalQuestions
	}
	return &models.Attendee{
		Email:          email,
		FullName:       strings.TrimSpace(sub.FullName),
		Phone:          strings.TrimSpace(sub.Phone),
		CountryCode:    orDefault(sub.CountryCode, defaultCountryCode),
		Status:         models.ParseStatus(sub.Status),
		Score:          score,
		CheatWarnings:  cheats,
		TestType:       models.ParseTestType(sub.TestType),
		TotalQuestions: total,
		TestResponses:  sub.TestResponses,
		PlanName:       s.catalog.Lookup(sub.PlanName).Name,
		Qualification:  strings.TrimSpace(sub.Qualification),
		CollegeName:    strings.TrimSpace(sub.CollegeName),
		City:           strings.TrimSpace(sub.City),
		State:          strings.TrimSpace(sub.State),
		Address:        strings.TrimSpace(sub.Address),
		Pincode:        strings.TrimSpace(sub.Pincode),
		FatherName:     strings.TrimSpace(sub.FatherName),
		MotherName:     strings.TrimSpace(sub.MotherName),
		ParentPhone:    strings.TrimSpace(sub.ParentPhone),
	}
}

// submissionColumns lists what an update overwrites: the outcome always,
// everything else only when the payload carried it.
func submissionColumns(sub Submission) []string {
	cols := []string{"status", "score", "discount_percent", "cheat_warnings"}
	cols = appendIfSet(cols, "test_type", sub.TestType)
	cols = appendIfSet(cols, "plan_name", sub.PlanName)
	cols = appendIfSet(cols, "full_name", sub.FullName)
	cols = appendIfSet(cols, "phone", sub.Phone)
	cols = appendIfSet(cols, "country_code", sub.CountryCode)
	cols = appendIfSet(cols, "qualification", sub.Qualification)
	cols = appendIfSet(cols, "college_name", sub.CollegeName)
	cols = appendIfSet(cols, "city", sub.City)
	cols = appendIfSet(cols, "state", sub.State)
	cols = appendIfSet(cols, "address", sub.Address)
	cols = appendIfSet(cols, "pincode", sub.Pincode)
	cols = appendIfSet(cols, "father_name", sub.FatherName)
	cols = appendIfSet(cols, "mother_name", sub.MotherName)
	cols = appendIfSet(cols, "parent_phone", sub.ParentPhone)
	if sub.TotalQuestions > 0 {
		cols = append(cols, "total_questions")
	}
	if len(sub.TestResponses) > 0 {
		cols = append(cols, "test_responses")
	}
	return cols
}

func (s *SubmissionService) mailsFor(a *models.Attendee, b *scholarship.Breakdown, settings *models.SystemSettings) []outgoingMail {
	student := []mail.Address{{Name: a.FullName, Address: a.Email}}
	ops := []mail.Address{{Name: "Operations", Address: s.conf().Mail.OpsAddress}}
	name := displayName(a)

	var out []outgoingMail
	switch {
	case a.Status == models.StatusDisqualified:
		out = append(out, outgoingMail{tmplDisqualified, "Update on your scholarship test", student})
		if settings.EmailAlerts {
			out = append(out, outgoingMail{tmplSecurityAlert, "Security alert: " + name + " disqualified", ops})
		}
	case a.TestType == models.TestTypeAptitude:
		out = append(out, outgoingMail{tmplAptitudeAck, "We received your aptitude assessment", student})
		if settings.EmailAlerts {
			out = append(out, outgoingMail{tmplHiringAlert, "New aptitude candidate: " + name, ops})
		}
	default:
		out = append(out, outgoingMail{tmplCongratulations,
			fmt.Sprintf("Congratulations! You have earned a %d%% scholarship", b.DiscountPercent), student})
		if settings.EmailAlerts {
			to := ops
			if addr := s.conf().Mail.AdmissionsAddress; addr != "" && addr != s.conf().Mail.OpsAddress {
				to = append(to, mail.Address{Name: "Admissions", Address: addr})
			}
			out = append(out, outgoingMail{tmplLeadAlert,
				fmt.Sprintf("New lead: %s (%d%%)", name, b.DiscountPercent), to})
		}
	}
	return out
}

func (s *SubmissionService) deliver(ctx context.Context, m outgoingMail, data mailData) error {
	text, html, err := renderMail(m.template, data)
	if err != nil {
		emailSendTotal.WithLabelValues(m.template, "error").Inc()
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, config.Timeout(s.conf().Mail.TimeoutSeconds, 15*time.Second))
	defer cancel()

	if err := s.mailer.Send(ctx, Message{To: m.to, Subject: m.subject, Text: text, HTML: html}); err != nil {
		emailSendTotal.WithLabelValues(m.template, "error").Inc()
		return err
	}
	emailSendTotal.WithLabelValues(m.template, "sent").Inc()
	return nil
}

// loadSettings never fails; a store error yields the defaults.
func loadSettings(ctx context.Context, repo *repository.SettingsRepository, log *zap.Logger) *models.SystemSettings {
	settings, err := repo.Load(ctx)
	if err != nil {
		log.Warn("Falling back to default settings", zap.Error(err))
		d := models.DefaultSettings()
		return &d
	}
	return settings
}

func displayName(a *models.Attendee) string {
	if a.FullName != "" {
		return a.FullName
	}
	return a.Email
}

func appendIfSet(cols []string, column, value string) []string {
	if strings.TrimSpace(value) != "" {
		return append(cols, column)
	}
	return cols
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
