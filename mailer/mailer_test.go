package mailer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	mail "github.com/go-mail/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type captureSender struct {
	msgs []*mail.Message
	err  error
}

func (c *captureSender) DialAndSend(m ...*mail.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m...)
	return nil
}

func TestSMTPRendersEachTemplate(t *testing.T) {
	sender := &captureSender{}
	n := NewSMTPWithSender("no-reply@shop.test", "Shop", sender, nil)
	ctx := context.Background()
	link := "http://localhost:3000/auth/confirm-email?token=a.b.c"

	require.NoError(t, n.SendEmailVerification(ctx, "jane@example.com", link))
	require.NoError(t, n.SendPasswordRecovery(ctx, "jane@example.com", "http://localhost:3000/auth/reset-password?token=x"))
	require.NoError(t, n.SendReactivation(ctx, "jane@example.com", "http://localhost:3000/auth/reactivate?token=y"))
	require.Len(t, sender.msgs, 3)

	first := sender.msgs[0]
	assert.Equal(t, []string{"no-reply@shop.test"}, first.GetHeader("From"))
	assert.Equal(t, []string{"jane@example.com"}, first.GetHeader("To"))
	assert.Equal(t, []string{"Verify your email address"}, first.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := first.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "text/html")
	assert.Contains(t, buf.String(), "Shop")

	assert.Equal(t, []string{"Reset your password"}, sender.msgs[1].GetHeader("Subject"))
	assert.Equal(t, []string{"Reactivate your account"}, sender.msgs[2].GetHeader("Subject"))
}

func TestSMTPPropagatesSendErrors(t *testing.T) {
	n := NewSMTPWithSender("no-reply@shop.test", "", &captureSender{err: errors.New("421 try later")}, nil)

	err := n.SendPasswordRecovery(context.Background(), "jane@example.com", "http://x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "421")
}

func TestSMTPHonorsCanceledContext(t *testing.T) {
	sender := &captureSender{}
	n := NewSMTPWithSender("no-reply@shop.test", "", sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, n.SendEmailVerification(ctx, "a@b.c", "http://x"), context.Canceled)
	assert.Empty(t, sender.msgs)
}

func TestNewSMTPValidates(t *testing.T) {
	_, err := NewSMTP(SMTPConfig{Port: 587, From: "a@b.c"}, nil)
	assert.Error(t, err)
	_, err = NewSMTP(SMTPConfig{Host: "smtp.test", Port: 587}, nil)
	assert.Error(t, err)
	_, err = NewSMTP(SMTPConfig{Host: "smtp.test", Port: 587, From: "a@b.c", TLSMode: "weird"}, nil)
	assert.Error(t, err)

	n, err := NewSMTP(SMTPConfig{Host: "smtp.test", Port: 465, From: "a@b.c", TLSMode: "ssl"}, nil)
	require.NoError(t, err)
	d, ok := n.sender.(*mail.Dialer)
	require.True(t, ok)
	assert.True(t, d.SSL)
}

func TestLogNotifierWritesLink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLog(zap.New(core))

	require.NoError(t, n.SendReactivation(context.Background(), "jane@example.com", "http://localhost:3000/auth/reactivate?token=t"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "reactivate_account", fields["template"])
	assert.Equal(t, "http://localhost:3000/auth/reactivate?token=t", fields["link"])
}
