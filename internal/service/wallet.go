package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/internal/retryable"
)

// LinkWallet stores the wallet address after checking that the submitted
// signature over message was produced by it. A failed check writes nothing.
func (s *Service) LinkWallet(ctx context.Context, email string, proof entity.WalletProof) (entity.Identity, error) {
	_, err := s.findIdentity(ctx, email)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return entity.Identity{}, entity.ErrUnauthorized
		}

		return entity.Identity{}, err
	}

	if len(proof.Message) > WalletMessageMax {
		return entity.Identity{}, fmt.Errorf("message too long: %w", entity.ErrSignatureInvalid)
	}

	ok, err := s.verifier.Verify(proof.Message, proof.Signature, proof.Address)
	if err != nil || !ok {
		slog.WarnContext(ctx, "wallet signature rejected", "email", email, "address", proof.Address, "error", err)

		if err != nil {
			return entity.Identity{}, fmt.Errorf("verify signature: %w", err)
		}

		return entity.Identity{}, entity.ErrSignatureInvalid
	}

	link := entity.WalletLink{
		Address:  strings.ToLower(proof.Address),
		LinkedAt: s.now(),
		Message:  proof.Message,
	}

	i, err := retryable.Value(ctx, func(ctx context.Context) (entity.Identity, error) {
		return s.identities.SetWallet(ctx, email, link)
	})
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return entity.Identity{}, entity.ErrUnauthorized
		}

		return entity.Identity{}, fmt.Errorf("set wallet: %w", err)
	}

	slog.InfoContext(ctx, "wallet linked", "email", email, "user_id", i.ID, "address", link.Address)

	return i, nil
}
