package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeEncodesHeaders(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := string(Compose("Mimic", "noreply@example.com", "taro@example.com", "パスワード再設定", "一行目\n二行目", at))

	assert.Contains(t, msg, "From: Mimic <noreply@example.com>\r\n")
	assert.Contains(t, msg, "To: taro@example.com\r\n")
	assert.Contains(t, msg, "Subject: =?UTF-8?b?")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\n一行目\r\n二行目"))
}

func TestSMTPSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotAuth smtp.Auth
	s := &SMTP{
		cfg: Config{Host: "smtp.example.com", Port: 587, User: "u", Pass: "p", FromAddress: "noreply@example.com"},
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotAuth, gotFrom, gotTo = addr, a, from, to
			return nil
		},
	}
	require.NoError(t, s.Send(context.Background(), "taro@example.com", "件名", "本文"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"taro@example.com"}, gotTo)

	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421") }
	assert.ErrorContains(t, s.Send(context.Background(), "taro@example.com", "件名", "本文"), "smtp send")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, "taro@example.com", "件名", "本文"), context.Canceled)
}

func TestNewWithoutHostLogs(t *testing.T) {
	s := New(Config{}, nil)
	require.IsType(t, &Log{}, s)
	assert.NoError(t, s.Send(context.Background(), "a@example.com", "s", "b"))
	assert.IsType(t, &SMTP{}, New(Config{Host: "smtp.example.com", Port: 25}, nil))
}
