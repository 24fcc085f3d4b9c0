package workflow

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/domodwyer/mailyak/v3"
)

// SMTPConfig holds mail relay settings.
type SMTPConfig struct {
	// Addr is the relay in host:port form
	Addr string

	// From is the sender address on outgoing mail
	From string

	// Username and Password authenticate against the relay; empty skips auth
	Username string
	Password string
}

// DefaultSMTPConfig returns a localhost relay configuration.
func DefaultSMTPConfig() SMTPConfig {
	return SMTPConfig{
		Addr: "localhost:25",
		From: "no-reply@variants.local",
	}
}

// SMTPSender delivers mail over a plain SMTP relay.
type SMTPSender struct {
	cfg  SMTPConfig
	auth smtp.Auth
}

// NewSMTPSender builds a sender for the given relay.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		host, _, _ := splitAddr(cfg.Addr)
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return &SMTPSender{cfg: cfg, auth: auth}
}

// Send delivers one plain-text message. The SMTP dial has no context hook;
// the activity's start-to-close timeout bounds it instead.
func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	mail := mailyak.New(s.cfg.Addr, s.auth)
	mail.From(s.cfg.From)
	mail.To(to)
	mail.Subject(subject)
	mail.Plain().Set(body)

	if err := mail.Send(); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

func splitAddr(addr string) (host, port string, ok bool) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], true
		}
	}
	return addr, "", false
}
