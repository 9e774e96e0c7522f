package services

import (
	"context"

	"admissions-go/internal/models"
	"admissions-go/internal/repository"

	"go.uber.org/zap"
)

// Notifier records dashboard notifications and mirrors them to the events
// webhook when one is running.
type Notifier struct {
	repo      *repository.NotificationRepository
	forwarder *EventForwarder
	log       *zap.Logger
}

// NewNotifier builds a notifier. forwarder may be nil.
func NewNotifier(repo *repository.NotificationRepository, forwarder *EventForwarder, log *zap.Logger) *Notifier {
	return &Notifier{repo: repo, forwarder: forwarder, log: log.Named("notifier")}
}

// Notify appends a notification. Failures are logged and returned but callers
// on the submission and nurture paths treat them as non-fatal.
func (n *Notifier) Notify(ctx context.Context, title, desc string, typ models.NotificationType) (*models.Notification, error) {
	note := &models.Notification{Title: title, Desc: desc, Type: typ}
	if err := n.repo.Create(ctx, note); err != nil {
		n.log.Error("Failed to create notification", zap.String("title", title), zap.Error(err))
		return nil, storeErr(err, "create notification")
	}
	if n.forwarder != nil {
		_ = n.forwarder.Enqueue(*note)
	}
	return note, nil
}
