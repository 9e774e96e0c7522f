package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"admissions-go/internal/config"
	"admissions-go/internal/models"
	"admissions-go/internal/repository"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SystemActor attributes autonomous actions in notifications.
const SystemActor = "system"

// Draft is generated nurture copy. Degraded means the LLM could not be used
// and the text came from a fixed template.
type Draft struct {
	Channel  Channel `json:"channel"`
	Subject  string  `json:"subject,omitempty"`
	Content  string  `json:"content"`
	Degraded bool    `json:"degraded"`
}

// DispatchResult describes a completed send or auto call.
type DispatchResult struct {
	Draft         *Draft `json:"draft,omitempty"`
	Link          string `json:"link,omitempty"`
	AlreadyCalled bool   `json:"alreadyCalled,omitempty"`
	Message       string `json:"message"`
}

// Orchestrator drafts and dispatches nurture messages.
type Orchestrator struct {
	conf      config.Source
	attendees *repository.AttendeeRepository
	settings  *repository.SettingsRepository
	notifier  *Notifier
	drafter   Drafter
	mailer    Mailer
	whatsapp  WhatsAppSender
	dialer    Dialer
	log       *zap.Logger

	// inflight short-circuits repeated auto-call requests for the same
	// attendee inside this process. The persisted flag is authoritative.
	inflight sync.Map
}

func NewOrchestrator(
	conf config.Source,
	attendees *repository.AttendeeRepository,
	settings *repository.SettingsRepository,
	notifier *Notifier,
	drafter Drafter,
	mailer Mailer,
	whatsapp WhatsAppSender,
	dialer Dialer,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		conf:      conf,
		attendees: attendees,
		settings:  settings,
		notifier:  notifier,
		drafter:   drafter,
		mailer:    mailer,
		whatsapp:  whatsapp,
		dialer:    dialer,
		log:       log.Named("nurture"),
	}
}

func (o *Orchestrator) load(ctx context.Context, id string) (*models.Attendee, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.Wrap(ErrValidation, "attendee id is required")
	}
	a, err := o.attendees.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "attendee "+id)
	}
	return a, nil
}

// Generate drafts copy for the attendee and channel. LLM problems never
// surface as errors; the fallback template is returned instead.
func (o *Orchestrator) Generate(ctx context.Context, id string, ch Channel) (*Draft, error) {
	a, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.draft(ctx, a, ch), nil
}

func (o *Orchestrator) draft(ctx context.Context, a *models.Attendee, ch Channel) *Draft {
	start := time.Now()
	defer func() { draftDuration.Observe(time.Since(start).Seconds()) }()

	tmpl := draftFor(a, ch)
	brand := o.conf().Catalog.Brand
	d := &Draft{Channel: ch}
	if tmpl.subject != nil {
		d.Subject = tmpl.subject(a)
	}

	ctx, cancel := context.WithTimeout(ctx, config.Timeout(o.conf().LLM.TimeoutSeconds, 20*time.Second))
	defer cancel()

	text, err := o.drafter.Draft(ctx, tmpl.prompt(a, brand))
	if err == nil && strings.TrimSpace(text) != "" {
		draftTotal.WithLabelValues(string(ch), "llm").Inc()
		d.Content = strings.TrimSpace(text)
		return d
	}
	if err != nil && !errors.Is(err, errLLMDisabled) {
		o.log.Warn("Draft generation degraded to template",
			zap.String("attendee_id", a.ID),
			zap.String("channel", string(ch)),
			zap.Error(err),
		)
	}
	draftTotal.WithLabelValues(string(ch), "fallback").Inc()
	d.Content = tmpl.fallback(a, brand)
	d.Degraded = true
	return d
}

// Send dispatches content on a channel and bumps the matching counter. An
// empty content drafts first. Transport failures leave counters untouched and
// return ErrDispatch.
func (o *Orchestrator) Send(ctx context.Context, id string, ch Channel, content, actor string) (*DispatchResult, error) {
	a, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &DispatchResult{}
	subject := ""
	if strings.TrimSpace(content) == "" {
		d := o.draft(ctx, a, ch)
		res.Draft = d
		content, subject = d.Content, d.Subject
	} else if tmpl := draftFor(a, ch); tmpl.subject != nil {
		subject = tmpl.subject(a)
	}

	settings := loadSettings(ctx, o.settings, o.log)
	link, err := o.dispatch(ctx, a, ch, subject, content, settings)
	if err != nil {
		dispatchTotal.WithLabelValues(string(ch), "failed").Inc()
		o.log.Error("Nurture dispatch failed",
			zap.String("attendee_id", a.ID),
			zap.String("channel", string(ch)),
			zap.Error(err),
		)
		return nil, errors.Wrapf(ErrDispatch, "%s to %s: %v", ch, a.ID, err)
	}
	dispatchTotal.WithLabelValues(string(ch), "sent").Inc()
	res.Link = link

	if err := o.attendees.IncrementCounter(ctx, a.ID, counterFor(ch)); err != nil {
		return nil, storeErr(err, "increment "+counterFor(ch))
	}

	title, desc, typ := sentNotification(a, ch, actor)
	_, _ = o.notifier.Notify(ctx, title, desc, typ)
	res.Message = fmt.Sprintf("%s nurture sent to %s.", strings.ToUpper(string(ch)), displayName(a))
	return res, nil
}

// AutoCall places the one automatic call an attendee may ever receive. The
// claim on auto_call_attempted is taken before dialing, so a failed dial is
// not retried automatically.
func (o *Orchestrator) AutoCall(ctx context.Context, id string) (*DispatchResult, error) {
	if _, busy := o.inflight.LoadOrStore(id, struct{}{}); busy {
		return &DispatchResult{AlreadyCalled: true, Message: "Auto call already in progress."}, nil
	}
	defer o.inflight.Delete(id)

	a, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	claimed, err := o.attendees.ClaimAutoCall(ctx, a.ID)
	if err != nil {
		return nil, storeErr(err, "claim auto call")
	}
	if !claimed {
		return &DispatchResult{AlreadyCalled: true, Message: "Attendee was already called."}, nil
	}

	d := o.draft(ctx, a, ChannelCall)
	settings := loadSettings(ctx, o.settings, o.log)
	if _, err := o.dispatch(ctx, a, ChannelCall, "", d.Content, settings); err != nil {
		dispatchTotal.WithLabelValues("auto_call", "failed").Inc()
		o.log.Error("Auto call failed", zap.String("attendee_id", a.ID), zap.Error(err))
		return nil, errors.Wrapf(ErrDispatch, "auto call to %s: %v", a.ID, err)
	}
	dispatchTotal.WithLabelValues("auto_call", "sent").Inc()

	if err := o.attendees.IncrementCounter(ctx, a.ID, repository.CounterVoice); err != nil {
		return nil, storeErr(err, "increment voice_call_count")
	}
	_, _ = o.notifier.Notify(ctx, "Autonomous Call Placed",
		fmt.Sprintf("Manee AI called %s automatically (by %s).", displayName(a), SystemActor),
		models.NotificationWarning)

	return &DispatchResult{Draft: d, Message: "Auto call placed for " + displayName(a) + "."}, nil
}

// dispatch hands content to the channel's transport within the channel's
// timeout. It returns the WhatsApp link for that channel.
func (o *Orchestrator) dispatch(ctx context.Context, a *models.Attendee, ch Channel, subject, content string, settings *models.SystemSettings) (string, error) {
	switch ch {
	case ChannelEmail:
		ctx, cancel := context.WithTimeout(ctx, config.Timeout(o.conf().Mail.TimeoutSeconds, 15*time.Second))
		defer cancel()
		if subject == "" {
			subject = "A note from " + o.conf().Catalog.Brand
		}
		return "", o.mailer.Send(ctx, Message{
			To:      []mail.Address{{Name: a.FullName, Address: a.Email}},
			Subject: subject,
			Text:    content,
		})
	case ChannelWhatsApp:
		return o.whatsapp.Send(ctx, a.CountryCode, a.Phone, content)
	case ChannelCall:
		ctx, cancel := context.WithTimeout(ctx, config.Timeout(o.conf().Telephony.TimeoutSeconds, 10*time.Second))
		defer cancel()
		return "", o.dialer.Dial(ctx, CallRequest{
			AttendeeID:     a.ID,
			Name:           a.FullName,
			To:             dialNumber(a.CountryCode, a.Phone),
			Script:         content,
			FallbackNumber: settings.FallbackNumber,
			WebhookURL:     settings.WebhookURL,
			LogExchange:    settings.WebhookLogs,
		})
	}
	return "", errors.Wrapf(ErrValidation, "unknown channel %q", ch)
}

func counterFor(ch Channel) string {
	switch ch {
	case ChannelWhatsApp:
		return repository.CounterWhatsApp
	case ChannelCall:
		return repository.CounterVoice
	default:
		return repository.CounterEmail
	}
}

func sentNotification(a *models.Attendee, ch Channel, actor string) (string, string, models.NotificationType) {
	if actor == "" {
		actor = "an operator"
	}
	name := displayName(a)
	switch ch {
	case ChannelWhatsApp:
		return "WhatsApp Sync", fmt.Sprintf("Lead %s has been reached via WhatsApp (by %s).", name, actor), models.NotificationInfo
	case ChannelCall:
		return "AI Voice Call Triggered", fmt.Sprintf("Outbound script generated and call initiated for %s (by %s).", name, actor), models.NotificationWarning
	default:
		return "Email Nurtured", fmt.Sprintf("A personalized scholarship email was sent to %s (by %s).", name, actor), models.NotificationSuccess
	}
}
