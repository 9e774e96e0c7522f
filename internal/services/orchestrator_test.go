package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"admissions-go/internal/config"
	"admissions-go/internal/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_UsesModelOutput(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, scholarshipSubmission("asha@example.com"))

	d, err := f.orchestrator.Generate(context.Background(), a.ID, ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, "Drafted by the model.", d.Content)
	assert.False(t, d.Degraded)
	assert.Contains(t, d.Subject, "25% Scholarship")
}

func TestGenerate_FallsBackWhenModelFails(t *testing.T) {
	for _, ch := range []Channel{ChannelEmail, ChannelWhatsApp, ChannelCall} {
		t.Run(string(ch), func(t *testing.T) {
			f := newFixture(t)
			f.drafter.err = errors.New("429 quota exceeded")
			a := f.seed(t, scholarshipSubmission("asha@example.com"))

			d, err := f.orchestrator.Generate(context.Background(), a.ID, ch)
			require.NoError(t, err)
			assert.True(t, d.Degraded)
			assert.NotEmpty(t, d.Content)
			assert.Equal(t, 1, f.logs.FilterMessage("Draft generation degraded to template").Len())
		})
	}
}

func TestGenerate_FallsBackOnTimeout(t *testing.T) {
	f := newFixture(t)
	f.drafter.err = context.DeadlineExceeded
	a := f.seed(t, scholarshipSubmission("asha@example.com"))

	d, err := f.orchestrator.Generate(context.Background(), a.ID, ChannelCall)
	require.NoError(t, err)
	assert.True(t, d.Degraded)
	assert.Contains(t, d.Content, "25%")
}

func TestGenerate_BlankModelOutputFallsBack(t *testing.T) {
	f := newFixture(t)
	f.drafter.text = "   "
	a := f.seed(t, scholarshipSubmission("asha@example.com"))

	d, err := f.orchestrator.Generate(context.Background(), a.ID, ChannelWhatsApp)
	require.NoError(t, err)
	assert.True(t, d.Degraded)
	assert.Contains(t, d.Content, a.Coupon())
}

func TestGenerate_DisqualifiedCopyHasNoCoupon(t *testing.T) {
	f := newFixture(t)
	f.drafter.err = errors.New("offline")
	a := f.seed(t, Submission{Email: "x@example.com", FullName: "Xavier", Status: "disqualified", CheatWarnings: 2})

	d, err := f.orchestrator.Generate(context.Background(), a.ID, ChannelEmail)
	require.NoError(t, err)
	assert.Contains(t, d.Content, "not eligible for a scholarship")
	assert.NotContains(t, d.Content, "SCHOLAR")
}

func TestGenerate_UnknownAttendee(t *testing.T) {
	f := newFixture(t)

	_, err := f.orchestrator.Generate(context.Background(), "does-not-exist", ChannelEmail)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSend_IncrementsMatchingCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, scholarshipSubmission("asha@example.com"))
	mailsBefore := len(f.mailer.messages())

	_, err := f.orchestrator.Send(ctx, a.ID, ChannelEmail, "Edited by operator", "ops@example.com")
	require.NoError(t, err)
	res, err := f.orchestrator.Send(ctx, a.ID, ChannelWhatsApp, "Hi Asha & team", "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://wa.me/919876543210?text=Hi%20Asha%20%26%20team", res.Link)
	_, err = f.orchestrator.Send(ctx, a.ID, ChannelCall, "Hello Asha", "ops@example.com")
	require.NoError(t, err)

	got := f.reload(t, a.ID)
	assert.Equal(t, 1, got.EmailSent)
	assert.Equal(t, 1, got.WhatsappSent)
	assert.Equal(t, 1, got.VoiceCallCount)

	msgs := f.mailer.messages()
	require.Len(t, msgs, mailsBefore+1)
	assert.Equal(t, "Edited by operator", msgs[mailsBefore].Text)

	require.Equal(t, 1, f.dialer.count())
	assert.Equal(t, "+919876543210", f.dialer.calls[0].To)

	titles := f.notificationTitles(t)
	assert.Contains(t, titles, "Email Nurtured")
	assert.Contains(t, titles, "WhatsApp Sync")
	assert.Contains(t, titles, "AI Voice Call Triggered")
}

func TestSend_EmptyContentDraftsFirst(t *testing.T) {
	f := newFixture(t)
	f.drafter.err = errors.New("offline")
	a := f.seed(t, scholarshipSubmission("asha@example.com"))

	res, err := f.orchestrator.Send(context.Background(), a.ID, ChannelWhatsApp, "", "ops@example.com")
	require.NoError(t, err)
	require.NotNil(t, res.Draft)
	assert.True(t, res.Draft.Degraded)
	assert.Contains(t, res.Link, "?text=")
}

func TestSend_TransportFailureLeavesCounterUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, scholarshipSubmission("asha@example.com"))
	notesBefore := len(f.notificationTitles(t))

	f.mailer.err = errors.New("smtp timeout")
	_, err := f.orchestrator.Send(ctx, a.ID, ChannelEmail, "hello", "ops@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDispatch)

	f.dialer.err = errors.New("engine unreachable")
	_, err = f.orchestrator.Send(ctx, a.ID, ChannelCall, "hello", "ops@example.com")
	assert.ErrorIs(t, err, ErrDispatch)

	got := f.reload(t, a.ID)
	assert.Zero(t, got.EmailSent)
	assert.Zero(t, got.VoiceCallCount)
	assert.Len(t, f.notificationTitles(t), notesBefore, "failed sends are not recorded as dispatched")
}

func TestSend_WhatsAppWithoutPhoneFails(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, Submission{Email: "nophone@example.com", Status: "passed", Discount: 10})

	_, err := f.orchestrator.Send(context.Background(), a.ID, ChannelWhatsApp, "hi", "ops@example.com")
	assert.ErrorIs(t, err, ErrDispatch)
	assert.Zero(t, f.reload(t, a.ID).WhatsappSent)
}

func TestSend_CallUsesSettingsWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := models.DefaultSettings()
	s.WebhookURL = "https://pbx.example.com/trigger"
	s.FallbackNumber = "+911234567890"
	_, err := f.settings.Save(ctx, &s)
	require.NoError(t, err)
	a := f.seed(t, scholarshipSubmission("asha@example.com"))

	_, err = f.orchestrator.Send(ctx, a.ID, ChannelCall, "script", "ops@example.com")
	require.NoError(t, err)

	require.Equal(t, 1, f.dialer.count())
	call := f.dialer.calls[0]
	assert.Equal(t, "https://pbx.example.com/trigger", call.WebhookURL)
	assert.Equal(t, "+911234567890", call.FallbackNumber)
	assert.True(t, call.LogExchange)
}

func TestAutoCall_FiresOncePerAttendee(t *testing.T) {
	f := newFixture(t)
	f.dialer.delay = 20 * time.Millisecond
	a := f.seed(t, Submission{Email: "cand@example.com", FullName: "Cand", Phone: "9000000001", Status: "passed", TestType: "aptitude"})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orchestrator.AutoCall(context.Background(), a.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	res, err := f.orchestrator.AutoCall(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyCalled)

	assert.Equal(t, 1, f.dialer.count())
	got := f.reload(t, a.ID)
	assert.Equal(t, 1, got.VoiceCallCount)
	assert.True(t, got.AutoCallAttempted)
	assert.Contains(t, f.notificationTitles(t), "Autonomous Call Placed")
}

func TestAutoCall_SurvivesRestart(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, Submission{Email: "cand@example.com", Phone: "9000000001", Status: "passed", TestType: "aptitude"})

	_, err := f.orchestrator.AutoCall(context.Background(), a.ID)
	require.NoError(t, err)

	restarted := f.newOrchestrator()
	res, err := restarted.AutoCall(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyCalled)
	assert.Equal(t, 1, f.dialer.count())
}

func TestAutoCall_SkipsManuallyCalledAttendee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, Submission{Email: "cand@example.com", Phone: "9000000001", Status: "passed", TestType: "aptitude"})

	_, err := f.orchestrator.Send(ctx, a.ID, ChannelCall, "manual", "ops@example.com")
	require.NoError(t, err)

	res, err := f.orchestrator.AutoCall(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyCalled)
	assert.Equal(t, 1, f.dialer.count())
}

func TestAutoCall_FailedDialIsNotRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, Submission{Email: "cand@example.com", Phone: "9000000001", Status: "passed", TestType: "aptitude"})

	f.dialer.err = errors.New("busy")
	_, err := f.orchestrator.AutoCall(ctx, a.ID)
	assert.ErrorIs(t, err, ErrDispatch)
	assert.Zero(t, f.reload(t, a.ID).VoiceCallCount)

	f.dialer.err = nil
	res, err := f.orchestrator.AutoCall(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyCalled)
	assert.Zero(t, f.dialer.count())
}

func TestScheduler_SweepCallsEachAttendeeOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, Submission{Email: "c1@example.com", Phone: "9000000001", Status: "passed", TestType: "aptitude"})
	f.seed(t, Submission{Email: "c2@example.com", Phone: "9000000002", Status: "failed", TestType: "aptitude"})
	f.seed(t, Submission{Email: "c3@example.com", Phone: "9000000003", Status: "disqualified", TestType: "aptitude"})
	f.seed(t, scholarshipSubmission("s1@example.com"))

	sched := NewScheduler(config.Static(f.conf), f.attendees, f.orchestrator, f.log)
	assert.Zero(t, sched.RunSweep(context.Background()), "auto call is off by default")

	f.conf.Nurture.AutoCall = true
	assert.Equal(t, 2, sched.RunSweep(context.Background()))
	assert.Equal(t, 0, sched.RunSweep(context.Background()))
	assert.Equal(t, 2, f.dialer.count())
}
