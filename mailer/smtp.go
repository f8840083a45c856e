package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/MrEthical07/storeauth"
)

// SMTPConfig describes the outbound mail server.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
	// TLSMode is "auto" (STARTTLS when offered), "ssl" or "none".
	TLSMode            string
	InsecureSkipVerify bool
	Brand              string
}

// Sender is the part of *mail.Dialer used by SMTP.
type Sender interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTP implements storeauth.Notifier over SMTP.
type SMTP struct {
	from   string
	brand  string
	sender Sender
	log    *zap.Logger
}

var _ storeauth.Notifier = (*SMTP)(nil)

// NewSMTP builds a notifier that dials cfg for every message.
func NewSMTP(cfg SMTPConfig, log *zap.Logger) (*SMTP, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New("mailer: smtp host and port required")
	}
	if cfg.From == "" {
		return nil, errors.New("mailer: from address required")
	}

	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: cfg.InsecureSkipVerify}
	switch cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	case "", "auto", "starttls":
	default:
		return nil, fmt.Errorf("mailer: unknown tls mode %q", cfg.TLSMode)
	}

	return NewSMTPWithSender(cfg.From, cfg.Brand, d, log), nil
}

// NewSMTPWithSender uses sender instead of dialing a server.
func NewSMTPWithSender(from, brand string, sender Sender, log *zap.Logger) *SMTP {
	if log == nil {
		log = zap.NewNop()
	}
	if brand == "" {
		brand = "Store"
	}
	return &SMTP{from: from, brand: brand, sender: sender, log: log.Named("mailer")}
}

func (s *SMTP) SendEmailVerification(ctx context.Context, email, link string) error {
	return s.send(ctx, KindVerifyEmail, email, link)
}

func (s *SMTP) SendPasswordRecovery(ctx context.Context, email, link string) error {
	return s.send(ctx, KindRecoverAccount, email, link)
}

func (s *SMTP) SendReactivation(ctx context.Context, email, link string) error {
	return s.send(ctx, KindReactivateAccount, email, link)
}

func (s *SMTP) send(ctx context.Context, kind Kind, to, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, text, html, err := render(kind, templateData{Email: to, Link: link, Brand: s.brand})
	if err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", html)

	if err := s.sender.DialAndSend(m); err != nil {
		s.log.Error("smtp send failed", zap.String("template", string(kind)), zap.Error(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	s.log.Info("smtp send ok", zap.String("template", string(kind)))
	return nil
}
