package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admissions_submissions_total",
			Help: "Submissions persisted, by test type and status.",
		},
		[]string{"test_type", "status"},
	)
	emailSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admissions_email_send_total",
			Help: "Outbound email attempts by template and result.",
		},
		[]string{"template", "result"},
	)
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admissions_nurture_dispatch_total",
			Help: "Nurture dispatches by channel and result.",
		},
		[]string{"channel", "result"},
	)
	draftTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admissions_draft_total",
			Help: "Draft generations by channel and source (llm or fallback).",
		},
		[]string{"channel", "source"},
	)
	draftDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "admissions_draft_duration_seconds",
			Help:    "Latency of draft generation including fallbacks.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	webhookSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admissions_events_webhook_send_total",
			Help: "Notification webhook deliveries by status.",
		},
		[]string{"status"},
	)
	webhookSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admissions_events_webhook_send_duration_seconds",
			Help:    "Duration of notification webhook HTTP requests.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)
)
