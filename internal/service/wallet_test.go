package service_test

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/internal/mocks"
	"github.com/samandr77/microservices/identity/internal/service"
	"github.com/samandr77/microservices/identity/internal/signature"
)

func walletProof(t *testing.T, key *secp256k1.PrivateKey, message string) entity.WalletProof {
	t.Helper()

	compact := ecdsa.SignCompact(key, signature.HashPersonalMessage(message), false)

	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]

	return entity.WalletProof{
		Address:   "0x" + strings.ToUpper(signature.Address(key.PubKey())[2:]),
		Message:   message,
		Signature: "0x" + hex.EncodeToString(sig),
	}
}

func TestLinkWallet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t, nil)
	e.signIn(t, "holder@example.com")

	first, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	second, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	t.Run("mismatched signer writes nothing", func(t *testing.T) {
		proof := walletProof(t, second, "link me")
		proof.Address = signature.Address(first.PubKey())

		_, err := e.svc.LinkWallet(ctx, "holder@example.com", proof)
		require.ErrorIs(t, err, entity.ErrSignatureInvalid)

		i, err := e.identities.FindByEmail(ctx, "holder@example.com")
		require.NoError(t, err)
		require.Nil(t, i.WalletAddress)
	})

	t.Run("malformed signature", func(t *testing.T) {
		proof := walletProof(t, first, "link me")
		proof.Signature = "0xdeadbeef"

		_, err := e.svc.LinkWallet(ctx, "holder@example.com", proof)
		require.ErrorIs(t, err, entity.ErrSignatureInvalid)
	})

	t.Run("valid proof stores lower-case address", func(t *testing.T) {
		proof := walletProof(t, first, "link me")
		i, err := e.svc.LinkWallet(ctx, "holder@example.com", proof)
		require.NoError(t, err)
		require.Equal(t, signature.Address(first.PubKey()), *i.WalletAddress)
		require.Equal(t, "link me", *i.WalletMessage)
	})

	t.Run("last wallet wins", func(t *testing.T) {
		e.clock.Advance(time.Minute)

		proof := walletProof(t, second, "link second")
		i, err := e.svc.LinkWallet(ctx, "holder@example.com", proof)
		require.NoError(t, err)
		require.Equal(t, signature.Address(second.PubKey()), *i.WalletAddress)
		require.Equal(t, "link second", *i.WalletMessage)
	})

	t.Run("bad proof keeps the linked wallet", func(t *testing.T) {
		before, err := e.identities.FindByEmail(ctx, "holder@example.com")
		require.NoError(t, err)
		require.NotNil(t, before.WalletAddress)

		other, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)

		e.clock.Advance(time.Minute)

		proof := walletProof(t, other, "link other")
		proof.Address = signature.Address(first.PubKey())

		_, err = e.svc.LinkWallet(ctx, "holder@example.com", proof)
		require.ErrorIs(t, err, entity.ErrSignatureInvalid)

		after, err := e.identities.FindByEmail(ctx, "holder@example.com")
		require.NoError(t, err)
		require.Equal(t, signature.Address(second.PubKey()), *after.WalletAddress)
		require.Equal(t, "link second", *after.WalletMessage)
		require.Equal(t, before.WalletLinkedAt, after.WalletLinkedAt)
	})

	t.Run("unknown identity", func(t *testing.T) {
		proof := walletProof(t, first, "link me")

		_, err := e.svc.LinkWallet(ctx, "ghost@example.com", proof)
		require.ErrorIs(t, err, entity.ErrUnauthorized)
	})
}

func TestLinkWallet_VerifierRejects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIdentityStore(ctrl)
	verifier := mocks.NewMockSignatureVerifier(ctrl)

	store.EXPECT().FindByEmail(gomock.Any(), "a@example.com").Return(entity.Identity{Email: "a@example.com"}, nil)
	verifier.EXPECT().Verify("msg", "0xsig", "0xabc").Return(false, nil)
	store.EXPECT().SetWallet(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	svc, err := service.NewService(testConfig(t), store, nil, nil, verifier, nil)
	require.NoError(t, err)

	_, err = svc.LinkWallet(ctx, "a@example.com", entity.WalletProof{Address: "0xabc", Message: "msg", Signature: "0xsig"})
	require.ErrorIs(t, err, entity.ErrSignatureInvalid)
}
