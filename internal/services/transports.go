package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"admissions-go/internal/config"
	"admissions-go/internal/utils"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CallRequest is the trigger sent to the telephony engine.
type CallRequest struct {
	AttendeeID     string `json:"attendeeId"`
	Name           string `json:"name"`
	To             string `json:"to"`
	Script         string `json:"script"`
	FallbackNumber string `json:"fallbackNumber,omitempty"`

	// WebhookURL overrides the configured endpoint for this call.
	WebhookURL string `json:"-"`
	// LogExchange logs the payload and the engine's reply.
	LogExchange bool `json:"-"`
}

// Dialer places an outbound call.
type Dialer interface {
	Dial(ctx context.Context, req CallRequest) error
}

// WebhookDialer posts call triggers to a telephony engine over HTTP.
type WebhookDialer struct {
	client     *http.Client
	defaultURL string
	authToken  string
	log        *zap.Logger
}

func NewWebhookDialer(conf config.TelephonyConfig, log *zap.Logger) *WebhookDialer {
	return &WebhookDialer{
		client:     &http.Client{Timeout: config.Timeout(conf.TimeoutSeconds, 10*time.Second)},
		defaultURL: conf.WebhookURL,
		authToken:  conf.AuthToken,
		log:        log.Named("dialer"),
	}
}

func (d *WebhookDialer) Dial(ctx context.Context, req CallRequest) error {
	endpoint := req.WebhookURL
	if endpoint == "" {
		endpoint = d.defaultURL
	}
	if endpoint == "" {
		return errors.New("no telephony webhook configured")
	}
	if req.To == "" {
		return errors.New("attendee has no phone number")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "marshal call request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create call request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.authToken)
	}

	if req.LogExchange {
		d.log.Info("Telephony webhook request",
			zap.String("url", RedactURL(endpoint)),
			zap.String("attendee_id", req.AttendeeID),
			zap.String("to", req.To),
		)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "telephony webhook")
	}
	defer resp.Body.Close()
	reply, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if req.LogExchange {
		d.log.Info("Telephony webhook response",
			zap.String("attendee_id", req.AttendeeID),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", reply),
		)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("telephony webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// WhatsAppSender hands a message to WhatsApp and returns the link used.
type WhatsAppSender interface {
	Send(ctx context.Context, countryCode, phone, text string) (string, error)
}

// ClickToChat produces wa.me links for the operator to open. It does not
// talk to any API, so it only fails on an unusable number.
type ClickToChat struct{}

func (ClickToChat) Send(_ context.Context, countryCode, phone, text string) (string, error) {
	return WhatsAppLink(countryCode, phone, text)
}

// WhatsAppLink builds https://wa.me/<digits>?text=<text>. Ten digit local
// numbers get the country code prepended.
func WhatsAppLink(countryCode, phone, text string) (string, error) {
	digits := fullNumber(countryCode, phone)
	if digits == "" {
		return "", errors.New("attendee has no phone number")
	}
	link := "https://wa.me/" + digits
	if text != "" {
		link += "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	}
	return link, nil
}

// dialNumber formats the attendee's number in E.164 style for the engine.
func dialNumber(countryCode, phone string) string {
	if digits := fullNumber(countryCode, phone); digits != "" {
		return "+" + digits
	}
	return ""
}

func fullNumber(countryCode, phone string) string {
	digits := utils.DigitsOnly(phone)
	if len(digits) == 10 {
		cc := utils.DigitsOnly(countryCode)
		if cc == "" {
			cc = "91"
		}
		digits = cc + digits
	}
	return digits
}
