package mailer

import (
	"net/smtp"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"regflow/internal/dto"
)

func newTestMailer() (*Mailer, *[]string) {
	log := zerolog.Nop()
	m := New(Config{Host: "smtp.local", Port: "587", From: "noreply@regflow.local"}, &log)
	var sent []string
	m.send = func(_ string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		sent = append(sent, string(msg))
		return nil
	}
	return m, &sent
}

func TestSend_RendersTemplatePerKind(t *testing.T) {
	m, sent := newTestMailer()

	err := m.Send(dto.NotificationIntent{
		Email:     "jane@example.com",
		Kind:      dto.NotifyPaymentLink,
		EventName: "Spring Webinar",
		Package:   "Tier1",
		Amount:    100,
		Currency:  "INR",
		PayURL:    "https://pay/x",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(*sent))
	}
	msg := (*sent)[0]
	if !strings.Contains(msg, "Payment link for Spring Webinar") {
		t.Errorf("missing subject, got: %s", msg)
	}
	if !strings.Contains(msg, "https://pay/x") {
		t.Errorf("missing pay URL, got: %s", msg)
	}
}

func TestSend_RejectsUnknownKind(t *testing.T) {
	m, sent := newTestMailer()

	if err := m.Send(dto.NotificationIntent{Email: "jane@example.com", Kind: "nonsense"}); err == nil {
		t.Error("expected error for unknown kind")
	}
	if len(*sent) != 0 {
		t.Error("nothing may be sent for unknown kind")
	}
}
