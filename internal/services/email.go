package services

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"

	"admissions-go/internal/config"

	"go.uber.org/zap"
)

// Message is a single outbound email.
type Message struct {
	To      []mail.Address
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers a message or reports why it could not.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer picks the transport named in the mail config.
func NewMailer(conf config.MailConfig, log *zap.Logger) Mailer {
	if strings.EqualFold(conf.Provider, "sendgrid") {
		if conf.SendgridAPIKey == "" {
			log.Warn("mail.provider is sendgrid but no API key is set, falling back to console mailer")
		} else {
			return NewSendgridMailer(conf, log)
		}
	}
	return NewConsoleMailer(log, os.Stdout)
}

// ConsoleMailer prints mail instead of sending it. Used in development.
type ConsoleMailer struct {
	log *zap.Logger
	out io.Writer
}

func NewConsoleMailer(log *zap.Logger, out io.Writer) *ConsoleMailer {
	return &ConsoleMailer{log: log.Named("mailer"), out: out}
}

func (m *ConsoleMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, a.String())
	}
	m.log.Info("Sending email",
		zap.Strings("to", to),
		zap.String("subject", msg.Subject),
	)
	_, err := fmt.Fprintf(m.out, "--- SIMULATING EMAIL ---\nTo: %s\nSubject: %s\n\n%s\n\n", strings.Join(to, ", "), msg.Subject, msg.Text)
	return err
}
