package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"admissions-go/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultEventsTimeout    = 10 * time.Second
	defaultEventsWorkers    = 2
	defaultEventsBufferSize = 100
	maxEventRetries         = 2
	eventsUserAgent         = "admissions-backoffice/v1"
)

// EventEnvelope is the JSON payload posted for each notification.
type EventEnvelope struct {
	Type          string              `json:"type"`
	SchemaVersion string              `json:"schemaVersion"`
	Timestamp     string              `json:"timestamp"`
	Data          models.Notification `json:"data"`
}

// EventForwarder mirrors notifications to an external webhook. Deliveries
// happen on a small worker pool; Enqueue never blocks.
type EventForwarder struct {
	httpClient *http.Client
	log        *zap.Logger
	url        string
	authToken  string
	workers    int
	sendCh     chan EventEnvelope
	wg         sync.WaitGroup
	backoff    time.Duration
}

// NewEventForwarder validates the URL and builds a forwarder. Call Start
// before enqueueing.
func NewEventForwarder(log *zap.Logger, rawURL, authToken string, workers int, timeout time.Duration) (*EventForwarder, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid events webhook URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("events webhook URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("events webhook URL must include a host")
	}
	if workers <= 0 {
		workers = defaultEventsWorkers
	}
	if timeout <= 0 {
		timeout = defaultEventsTimeout
	}
	return &EventForwarder{
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Named("events-webhook"),
		url:        rawURL,
		authToken:  authToken,
		workers:    workers,
		sendCh:     make(chan EventEnvelope, defaultEventsBufferSize),
		backoff:    time.Second,
	}, nil
}

// Start launches the workers. They exit once ctx is cancelled and the buffer
// has been drained.
func (f *EventForwarder) Start(ctx context.Context) {
	for i := 0; i < f.workers; i++ {
		f.wg.Add(1)
		go f.worker(ctx)
	}
	f.log.Info("Events webhook started",
		zap.String("url", RedactURL(f.url)),
		zap.Int("workers", f.workers),
	)
}

// Close waits for the workers. Call after the Start context is cancelled.
func (f *EventForwarder) Close() {
	f.wg.Wait()
}

// Enqueue queues a notification for delivery, dropping it if the buffer is full.
func (f *EventForwarder) Enqueue(n models.Notification) error {
	env := EventEnvelope{
		Type:          "admissions.notification",
		SchemaVersion: "1",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Data:          n,
	}
	select {
	case f.sendCh <- env:
		return nil
	default:
		webhookSendTotal.WithLabelValues("dropped").Inc()
		f.log.Warn("Events webhook buffer full, dropping notification", zap.String("title", n.Title))
		return errors.New("events webhook buffer full")
	}
}

func (f *EventForwarder) worker(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case env := <-f.sendCh:
					drainCtx, cancel := context.WithTimeout(context.Background(), f.httpClient.Timeout)
					if err := f.deliver(drainCtx, env); err != nil {
						f.log.Warn("Events webhook send failed during shutdown drain", zap.Error(err))
					}
					cancel()
				default:
					return
				}
			}
		case env := <-f.sendCh:
			if err := f.deliver(ctx, env); err != nil {
				f.log.Error("Events webhook send failed",
					zap.String("url", RedactURL(f.url)),
					zap.Error(err),
				)
			}
		}
	}
}

// deliver posts the envelope, retrying transport errors and 5xx replies with
// a linear backoff.
func (f *EventForwarder) deliver(ctx context.Context, env EventEnvelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		webhookSendTotal.WithLabelValues("error").Inc()
		return errors.Wrap(err, "marshal events payload")
	}

	var lastErr error
	for attempt := 0; attempt <= maxEventRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * f.backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				webhookSendTotal.WithLabelValues("error").Inc()
				return errors.Wrap(ctx.Err(), "cancelled during backoff")
			}
			webhookSendTotal.WithLabelValues("retry").Inc()
		}

		lastErr = f.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		var we *eventsError
		if errors.As(lastErr, &we) && !we.retryable {
			webhookSendTotal.WithLabelValues("error").Inc()
			return lastErr
		}
	}
	webhookSendTotal.WithLabelValues("error").Inc()
	return errors.Wrapf(lastErr, "events webhook failed after %d attempts", maxEventRetries+1)
}

func (f *EventForwarder) post(ctx context.Context, body []byte) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return &eventsError{err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", eventsUserAgent)
	if f.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.authToken)
	}

	resp, err := f.httpClient.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		webhookSendDuration.WithLabelValues("error").Observe(duration)
		return &eventsError{err: err, retryable: true}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		webhookSendTotal.WithLabelValues("success").Inc()
		webhookSendDuration.WithLabelValues("success").Observe(duration)
		return nil
	}
	webhookSendDuration.WithLabelValues("error").Observe(duration)
	return &eventsError{
		err:       errors.Errorf("events webhook returned HTTP %d", resp.StatusCode),
		retryable: resp.StatusCode >= 500,
	}
}

type eventsError struct {
	err       error
	retryable bool
}

func (e *eventsError) Error() string { return e.err.Error() }
func (e *eventsError) Unwrap() error { return e.err }

// RedactURL masks credentials and query values in a URL for logging.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			q.Set(key, "REDACTED")
		}
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}
