// Package mail delivers account emails. SMTP delivery is used when a host is
// configured; otherwise messages are written to the log.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dinepoint/dinepoint/internal/config"
	"github.com/dinepoint/dinepoint/internal/util"
	log "github.com/sirupsen/logrus"
	gomail "github.com/wneessen/go-mail"
)

// Message is a plain-text email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New returns an SMTP sender when cfg names a host and a log sender otherwise.
func New(cfg config.SMTPConfig) (Sender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return LogSender{}, nil
	}
	return NewSMTPSender(cfg)
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	from   string
	client *gomail.Client
}

// NewSMTPSender builds an SMTPSender. Authentication is enabled when a
// username is configured.
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mail: smtp from address is required")
	}
	opts := []gomail.Option{gomail.WithTLSPolicy(gomail.TLSOpportunistic)}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, errClient := gomail.NewClient(cfg.Host, opts...)
	if errClient != nil {
		return nil, fmt.Errorf("mail: smtp client: %w", errClient)
	}
	return &SMTPSender{from: cfg.From, client: client}, nil
}

// Send delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if errFrom := m.From(s.from); errFrom != nil {
		return fmt.Errorf("mail: from: %w", errFrom)
	}
	if errTo := m.AddToFormat(msg.ToName, msg.To); errTo != nil {
		return fmt.Errorf("mail: to: %w", errTo)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	if errSend := s.client.DialAndSendWithContext(ctx, m); errSend != nil {
		return fmt.Errorf("mail: send: %w", errSend)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct{}

// Send logs msg without its body.
func (LogSender) Send(_ context.Context, msg Message) error {
	log.WithFields(log.Fields{"to": msg.To, "subject": msg.Subject}).Info("mail: smtp disabled, message not sent")
	return nil
}

// PasswordReset renders the password reset email carrying code.
func PasswordReset(to, name, code string) Message {
	body := fmt.Sprintf("Hi %s,\n\n"+
		"A password reset was requested for the account registered to this address. "+
		"If you did not ask for it, ignore this message.\n\n"+
		"Your reset code is %s\n", name, code)
	log.WithFields(log.Fields{"to": to, "code": util.MaskCode(code)}).Debug("mail: rendered password reset")
	return Message{To: to, ToName: name, Subject: "Reset your password", Body: body}
}
