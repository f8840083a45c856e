package mailer

import (
	"context"

	"go.uber.org/zap"

	"github.com/MrEthical07/storeauth"
)

// Log writes links to a logger instead of sending mail.
type Log struct {
	log *zap.Logger
}

var _ storeauth.Notifier = (*Log)(nil)

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("mailer")}
}

func (l *Log) SendEmailVerification(_ context.Context, email, link string) error {
	l.write(KindVerifyEmail, email, link)
	return nil
}

func (l *Log) SendPasswordRecovery(_ context.Context, email, link string) error {
	l.write(KindRecoverAccount, email, link)
	return nil
}

func (l *Log) SendReactivation(_ context.Context, email, link string) error {
	l.write(KindReactivateAccount, email, link)
	return nil
}

func (l *Log) write(kind Kind, email, link string) {
	l.log.Info("mail not sent", zap.String("template", string(kind)), zap.String("to", email), zap.String("link", link))
}
