// Package mailer delivers one-time codes straight over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/samandr77/microservices/identity/internal/entity"
)

type Config struct {
	Host     string
	Port     int
	Login    string
	Password string
	From     string
	FromName string
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Mailer struct {
	cfg    Config
	dialer sender
	now    func() time.Time
}

func New(cfg Config) *Mailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Login, cfg.Password)

	dialer.TLSConfig = &tls.Config{
		ServerName: cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	return &Mailer{
		cfg:    cfg,
		dialer: dialer,
		now:    time.Now,
	}
}

func (m *Mailer) Deliver(ctx context.Context, d entity.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := m.message(d)

	err := m.dialer.DialAndSend(msg)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func (m *Mailer) message(d entity.Delivery) *gomail.Message {
	msg := gomail.NewMessage(
		gomail.SetCharset("UTF-8"),
		gomail.SetEncoding(gomail.Base64),
	)

	msg.SetAddressHeader("From", m.cfg.From, m.cfg.FromName)
	msg.SetHeader("To", d.Email)
	msg.SetHeader("Subject", d.Subject())
	msg.SetHeader("X-Challenge-Id", d.ChallengeID.String())
	msg.SetBody("text/plain", d.Body(m.now()))

	return msg
}
