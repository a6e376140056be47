package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/internal/repository/memory"
)

func TestChallengeStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	store := memory.NewChallengeStore()

	first := entity.Challenge{
		ID:                uuid.Must(uuid.NewV4()),
		Email:             "A@x.com",
		Purpose:           entity.PurposeLogin,
		CodeHash:          "first",
		AttemptsRemaining: 5,
		ExpiresAt:         now.Add(10 * time.Minute),
		CreatedAt:         now,
	}

	require.NoError(t, store.Upsert(ctx, first))

	second := first
	second.ID = uuid.Must(uuid.NewV4())
	second.CodeHash = "second"
	second.Registration = &entity.Registration{ID: uuid.Must(uuid.NewV4()), PasswordHash: "hash", DisplayName: "Ann"}
	require.NoError(t, store.Upsert(ctx, second))

	got, err := store.Get(ctx, "a@x.com", entity.PurposeLogin)
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)
	require.Equal(t, "first", got.SupersededHash)

	_, err = store.Get(ctx, "a@x.com", entity.PurposeOAuthBootstrap)
	require.ErrorIs(t, err, entity.ErrNotFound)

	require.ErrorIs(t, store.DeleteIfID(ctx, "a@x.com", entity.PurposeLogin, first.ID), entity.ErrNotFound)

	_, err = store.Consume(ctx, "a@x.com", entity.PurposeLogin, "first", now)
	require.ErrorIs(t, err, entity.ErrNotFound)

	_, err = store.Consume(ctx, "a@x.com", entity.PurposeLogin, "wrong", now)
	require.ErrorIs(t, err, entity.ErrMismatch)

	got, err = store.Get(ctx, "a@x.com", entity.PurposeLogin)
	require.NoError(t, err)
	require.Equal(t, 4, got.AttemptsRemaining)

	consumed, err := store.Consume(ctx, "a@x.com", entity.PurposeLogin, "second", now)
	require.NoError(t, err)
	require.Equal(t, second.Registration, consumed.Registration)

	_, err = store.Consume(ctx, "a@x.com", entity.PurposeLogin, "second", now)
	require.ErrorIs(t, err, entity.ErrNotFound)
}

func TestChallengeStore_DeleteExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	store := memory.NewChallengeStore()

	require.NoError(t, store.Upsert(ctx, entity.Challenge{Email: "old@x.com", Purpose: entity.PurposeLogin, ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.Upsert(ctx, entity.Challenge{Email: "new@x.com", Purpose: entity.PurposeLogin, ExpiresAt: now.Add(time.Minute)}))

	n, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = store.Get(ctx, "new@x.com", entity.PurposeLogin)
	require.NoError(t, err)
}
