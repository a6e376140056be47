package mailer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/samandr77/microservices/identity/internal/entity"
)

type fakeSender struct {
	sent []*gomail.Message
	err  error
}

func (s *fakeSender) DialAndSend(m ...*gomail.Message) error {
	if s.err != nil {
		return s.err
	}

	s.sent = append(s.sent, m...)

	return nil
}

func TestMailer_Deliver(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &fakeSender{}
	m := &Mailer{
		cfg:    Config{From: "noreply@example.com", FromName: "Marketplace"},
		dialer: s,
		now:    func() time.Time { return now },
	}

	id := uuid.Must(uuid.NewV4())

	err := m.Deliver(context.Background(), entity.Delivery{
		ChallengeID: id,
		Email:       "user@example.com",
		Purpose:     entity.PurposeOAuthBootstrap,
		Code:        "654321",
		ExpiresAt:   now.Add(10 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, s.sent, 1)

	msg := s.sent[0]
	require.Equal(t, []string{"user@example.com"}, msg.GetHeader("To"))
	require.Equal(t, []string{id.String()}, msg.GetHeader("X-Challenge-Id"))
	require.Equal(t, []string{entity.Delivery{Purpose: entity.PurposeOAuthBootstrap}.Subject()}, msg.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
}

func TestMailer_DeliverErrors(t *testing.T) {
	t.Parallel()

	t.Run("smtp failure", func(t *testing.T) {
		t.Parallel()

		m := &Mailer{dialer: &fakeSender{err: errors.New("connection refused")}, now: time.Now}

		err := m.Deliver(context.Background(), entity.Delivery{Email: "a@example.com", Purpose: entity.PurposeLogin})
		require.ErrorContains(t, err, "connection refused")
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		s := &fakeSender{}
		m := &Mailer{dialer: s, now: time.Now}

		require.ErrorIs(t, m.Deliver(ctx, entity.Delivery{Email: "a@example.com"}), context.Canceled)
		require.Empty(t, s.sent)
	})
}
