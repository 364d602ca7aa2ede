package mail

import (
	"context"
	"strings"
	"testing"

	"github.com/dinepoint/dinepoint/internal/config"
)

func TestNewPicksSender(t *testing.T) {
	sender, errNew := New(config.SMTPConfig{})
	if errNew != nil {
		t.Fatalf("new: %v", errNew)
	}
	if _, ok := sender.(LogSender); !ok {
		t.Fatalf("expected log sender without smtp host, got %T", sender)
	}
	if errSend := sender.Send(context.Background(), Message{To: "a@example.com", Subject: "hi"}); errSend != nil {
		t.Fatalf("log send: %v", errSend)
	}

	smtp, errSMTP := New(config.SMTPConfig{Host: "localhost", Port: 2525, From: "noreply@dinepoint.test"})
	if errSMTP != nil {
		t.Fatalf("new smtp: %v", errSMTP)
	}
	if _, ok := smtp.(*SMTPSender); !ok {
		t.Fatalf("expected smtp sender, got %T", smtp)
	}

	if _, err := NewSMTPSender(config.SMTPConfig{Host: "localhost"}); err == nil {
		t.Fatalf("expected missing from address to fail")
	}
}

func TestPasswordResetMessage(t *testing.T) {
	msg := PasswordReset("sam@example.com", "Sam", "4f1c2a9e-code")
	if msg.To != "sam@example.com" || msg.ToName != "Sam" {
		t.Fatalf("unexpected recipient %+v", msg)
	}
	if !strings.Contains(msg.Body, "4f1c2a9e-code") || !strings.HasPrefix(msg.Body, "Hi Sam,") {
		t.Fatalf("unexpected body %q", msg.Body)
	}
}
