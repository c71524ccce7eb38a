package mailer

import (
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"

	"regflow/internal/dto"
)

// Config carries SMTP settings; credentials are injected, never hardcoded.
type Config struct {
	Host string
	Port string
	From string
	Pass string
}

type Mailer struct {
	cfg Config
	log *zerolog.Logger

	// send is swappable in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func New(cfg Config, log *zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log, send: smtp.SendMail}
}

// Send renders the template for the intent's kind and delivers it. Failure
// is returned for the caller to log; nothing here retries.
func (m *Mailer) Send(intent dto.NotificationIntent) error {
	subject, body := render(intent)
	if subject == "" {
		return fmt.Errorf("unknown notification kind %q", intent.Kind)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.cfg.From, intent.Email, subject, body,
	)

	addr := m.cfg.Host + ":" + m.cfg.Port
	auth := smtp.PlainAuth("", m.cfg.From, m.cfg.Pass, m.cfg.Host)

	if err := m.send(addr, auth, m.cfg.From, []string{intent.Email}, []byte(msg)); err != nil {
		m.log.Warn().Err(err).Str("email", intent.Email).Msg("failed to send email")
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Info().Str("email", intent.Email).Str("kind", intent.Kind).Msg("email sent")
	return nil
}

func render(intent dto.NotificationIntent) (subject, body string) {
	switch intent.Kind {
	case dto.NotifySubmission:
		subject = fmt.Sprintf("Registration received for %s", intent.EventName)
		body = fmt.Sprintf(
			"Hello!\n\nWe received your registration for %s.\nCategory: %s.\nPackage: %s (%d %s).\nYou will receive a payment link shortly.",
			intent.EventName, intent.Category, intent.Package, intent.Amount, intent.Currency,
		)
	case dto.NotifyPaymentLink:
		subject = fmt.Sprintf("Payment link for %s", intent.EventName)
		body = fmt.Sprintf(
			"Hello!\n\nYour payment link for %s (%s, %d %s):\n%s\n\nThe link is valid for 3 days.",
			intent.EventName, intent.Package, intent.Amount, intent.Currency, intent.PayURL,
		)
	case dto.NotifyPaid:
		subject = fmt.Sprintf("Payment confirmed for %s", intent.EventName)
		body = fmt.Sprintf(
			"Hello!\n\nYour payment for %s (%s, %d %s) is confirmed.\nSee you there!",
			intent.EventName, intent.Package, intent.Amount, intent.Currency,
		)
	case dto.NotifyFree:
		subject = fmt.Sprintf("Registration confirmed for %s", intent.EventName)
		body = fmt.Sprintf(
			"Hello!\n\nYour registration for %s is confirmed. No payment is required.",
			intent.EventName,
		)
	}
	return subject, body
}
