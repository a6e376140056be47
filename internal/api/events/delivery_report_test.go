package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/samandr77/microservices/identity/internal/api/events"
	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/internal/otp"
	"github.com/samandr77/microservices/identity/internal/repository/memory"
)

type nopDeliverer struct{}

func (nopDeliverer) Deliver(context.Context, entity.Delivery) error { return nil }

func TestEventHandler_DeliveryReport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewChallengeStore()
	engine := otp.New(store, nopDeliverer{}, otp.Config{TTL: time.Minute})
	h := events.NewEventHandler(engine)

	c, err := engine.Send(ctx, "user@example.com", entity.PurposeLogin)
	require.NoError(t, err)

	t.Run("sent report keeps the challenge", func(t *testing.T) {
		msg := kafka.Message{Value: []byte(`{"challengeId":"` + c.ID.String() +
			`","email":"user@example.com","purpose":"login","status":"sent"}`)}

		require.NoError(t, h.DeliveryReport(ctx, msg))

		_, err := store.Get(ctx, "user@example.com", entity.PurposeLogin)
		require.NoError(t, err)
	})

	t.Run("report for a replaced challenge is ignored", func(t *testing.T) {
		msg := kafka.Message{Value: []byte(`{"challengeId":"` + uuid.Must(uuid.NewV4()).String() +
			`","email":"user@example.com","purpose":"login","status":"failed"}`)}

		require.NoError(t, h.DeliveryReport(ctx, msg))

		_, err := store.Get(ctx, "user@example.com", entity.PurposeLogin)
		require.NoError(t, err)
	})

	t.Run("failed report rolls back", func(t *testing.T) {
		msg := kafka.Message{Value: []byte(`{"challengeId":"` + c.ID.String() +
			`","email":"user@example.com","purpose":"login","status":"failed","reason":"mailbox unavailable"}`)}

		require.NoError(t, h.DeliveryReport(ctx, msg))

		_, err := store.Get(ctx, "user@example.com", entity.PurposeLogin)
		require.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("malformed payload", func(t *testing.T) {
		require.Error(t, h.DeliveryReport(ctx, kafka.Message{Value: []byte("{")}))
		require.ErrorIs(t, h.DeliveryReport(ctx, kafka.Message{Value: []byte(`{"purpose":"signup"}`)}),
			entity.ErrInvalidPurpose)
	})
}
