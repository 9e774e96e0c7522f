package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"admissions-go/internal/config"
	"admissions-go/internal/models"
	"admissions-go/internal/repository"
	"admissions-go/internal/testdb"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message{}, m.sent...)
}

type fakeDrafter struct {
	text  string
	err   error
	calls int32
}

func (d *fakeDrafter) Draft(context.Context, string) (string, error) {
	atomic.AddInt32(&d.calls, 1)
	return d.text, d.err
}

type fakeDialer struct {
	mu    sync.Mutex
	calls []CallRequest
	err   error
	delay time.Duration
}

func (d *fakeDialer) Dial(_ context.Context, req CallRequest) error {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, req)
	return nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type fixture struct {
	conf          *config.Config
	attendees     *repository.AttendeeRepository
	notifications *repository.NotificationRepository
	settings      *repository.SettingsRepository
	mailer        *fakeMailer
	drafter       *fakeDrafter
	dialer        *fakeDialer
	submissions   *SubmissionService
	orchestrator  *Orchestrator
	logs          *observer.ObservedLogs
	log           *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testdb.Open(t)
	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)

	f := &fixture{
		conf:          config.Default(),
		attendees:     repository.NewAttendeeRepository(db),
		notifications: repository.NewNotificationRepository(db),
		settings:      repository.NewSettingsRepository(db),
		mailer:        &fakeMailer{},
		drafter:       &fakeDrafter{text: "Drafted by the model."},
		dialer:        &fakeDialer{},
		logs:          logs,
		log:           log,
	}
	notifier := NewNotifier(f.notifications, nil, log)
	f.submissions = NewSubmissionService(config.Static(f.conf), f.attendees, f.settings, notifier, f.mailer, models.DefaultCatalog(), log)
	f.orchestrator = f.newOrchestrator()
	return f
}

// newOrchestrator builds a fresh orchestrator over the same store, as a
// restarted process would.
func (f *fixture) newOrchestrator() *Orchestrator {
	notifier := NewNotifier(f.notifications, nil, f.log)
	return NewOrchestrator(config.Static(f.conf), f.attendees, f.settings, notifier, f.drafter, f.mailer, ClickToChat{}, f.dialer, f.log)
}

func (f *fixture) seed(t *testing.T, sub Submission) *models.Attendee {
	t.Helper()
	res, err := f.submissions.Submit(context.Background(), sub)
	require.NoError(t, err)
	return res.Attendee
}

func (f *fixture) reload(t *testing.T, id string) *models.Attendee {
	t.Helper()
	a, err := f.attendees.FindByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (f *fixture) notificationTitles(t *testing.T) []string {
	t.Helper()
	notes, err := f.notifications.List(context.Background(), 100)
	require.NoError(t, err)
	titles := make([]string, 0, len(notes))
	for _, n := range notes {
		titles = append(titles, n.Title)
	}
	return titles
}

func scholarshipSubmission(email string) Submission {
	return Submission{
		Email:    email,
		FullName: "Asha Rao",
		Phone:    "98765 43210",
		Status:   "PASSED",
		Score:    38,
		Discount: 25,
		PlanName: "Foundation",
	}
}
