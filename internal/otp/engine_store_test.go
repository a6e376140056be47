package otp_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/internal/mocks"
	"github.com/samandr77/microservices/identity/internal/otp"
)

func TestEngine_StoreFailures(t *testing.T) {
	t.Parallel()

	errConn := errors.New("connection reset by peer")

	t.Run("transient upsert is retried once", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		store := mocks.NewMockChallengeStore(ctrl)
		deliverer := mocks.NewMockDeliverer(ctrl)

		gomock.InOrder(
			store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(errConn),
			store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil),
			deliverer.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil),
		)

		c, err := otp.New(store, deliverer, otp.Config{}).Send(context.Background(), "a@example.com", entity.PurposeLogin)
		require.NoError(t, err)
		require.Equal(t, otp.DefaultAttempts, c.AttemptsRemaining)
		require.WithinDuration(t, c.CreatedAt.Add(otp.DefaultTTL), c.ExpiresAt, time.Millisecond)
	})

	t.Run("persistent upsert failure sends nothing", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		store := mocks.NewMockChallengeStore(ctrl)
		deliverer := mocks.NewMockDeliverer(ctrl)

		store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(errConn).Times(2)

		_, err := otp.New(store, deliverer, otp.Config{}).Send(context.Background(), "a@example.com", entity.PurposeLogin)
		require.ErrorIs(t, err, errConn)
	})

	t.Run("verify outcomes are not retried", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		store := mocks.NewMockChallengeStore(ctrl)

		store.EXPECT().Consume(gomock.Any(), "a@example.com", entity.PurposeLogin, gomock.Any(), gomock.Any()).
			Return(entity.Challenge{}, &entity.MismatchError{AttemptsRemaining: 2})

		_, err := otp.New(store, mocks.NewMockDeliverer(ctrl), otp.Config{}).
			Verify(context.Background(), "a@example.com", entity.PurposeLogin, "123456")
		require.ErrorIs(t, err, entity.ErrMismatch)
	})

	t.Run("failed rollback keeps the delivery error", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		store := mocks.NewMockChallengeStore(ctrl)
		deliverer := mocks.NewMockDeliverer(ctrl)

		store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
		deliverer.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
		store.EXPECT().DeleteIfID(gomock.Any(), "a@example.com", entity.PurposeLogin, gomock.Any()).Return(errConn).Times(2)

		_, err := otp.New(store, deliverer, otp.Config{}).Send(context.Background(), "a@example.com", entity.PurposeLogin)
		require.ErrorIs(t, err, entity.ErrDeliveryFailed)
	})

	t.Run("invalid purpose touches nothing", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		engine := otp.New(mocks.NewMockChallengeStore(ctrl), mocks.NewMockDeliverer(ctrl), otp.Config{})

		_, err := engine.Send(context.Background(), "a@example.com", "password-reset")
		require.ErrorIs(t, err, entity.ErrInvalidPurpose)

		_, err = engine.Verify(context.Background(), "a@example.com", "password-reset", "123456")
		require.ErrorIs(t, err, entity.ErrInvalidPurpose)
	})
}
