package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/samandr77/microservices/identity/internal/entity"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}

	w.msgs = append(w.msgs, msgs...)

	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducer_Deliver(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	w := &fakeWriter{}
	p := &Producer{
		l:                  slog.New(slog.NewTextHandler(io.Discard, nil)),
		w:                  w,
		notificationsTopic: "notifications",
		now:                func() time.Time { return now },
	}

	id := uuid.Must(uuid.NewV4())

	err := p.Deliver(context.Background(), entity.Delivery{
		ChallengeID: id,
		Email:       "User@Example.com",
		Purpose:     entity.PurposeLogin,
		Code:        "012345",
		ExpiresAt:   now.Add(10 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	require.Equal(t, "notifications", w.msgs[0].Topic)
	require.Equal(t, "user@example.com", string(w.msgs[0].Key))

	var event SendEmailVerificationCodeEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	require.Equal(t, "email", event.Type)
	require.Equal(t, []string{"User@Example.com"}, event.Recipients)
	require.Equal(t, id.String(), event.ChallengeID)
	require.Equal(t, entity.PurposeLogin, event.Purpose)
	require.Contains(t, event.Message, "012345")
	require.Contains(t, event.Message, "10 minutes")
}

func TestProducer_DeliverError(t *testing.T) {
	t.Parallel()

	p := &Producer{
		l:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		w:   &fakeWriter{err: errors.New("broker down")},
		now: time.Now,
	}

	err := p.Deliver(context.Background(), entity.Delivery{Email: "a@example.com", Purpose: entity.PurposeLogin})
	require.ErrorContains(t, err, "broker down")
}
