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

// Bootstrap resolves a federated profile to exactly one identity, using the
// email as the merge key. An existing identity keeps its role, password and
// wallet; it only gains the provider and fills an empty name or avatar.
func (s *Service) Bootstrap(ctx context.Context, profile entity.FederatedProfile) (entity.Identity, error) {
	profile.Email = strings.TrimSpace(profile.Email)
	profile.DisplayName = strings.TrimSpace(profile.DisplayName)

	if profile.Email == "" {
		return entity.Identity{}, entity.ErrProviderNoEmail
	}

	existing, err := s.findIdentity(ctx, profile.Email)
	if err == nil {
		return s.attachProvider(ctx, existing, profile)
	}

	if !errors.Is(err, entity.ErrNotFound) {
		return entity.Identity{}, err
	}

	created, err := s.identities.Create(ctx, entity.IdentitySeed{
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
		AvatarURI:   optional(profile.AvatarURI),
		Provider:    profile.Provider,
	})

	switch {
	case err == nil:
		slog.InfoContext(ctx, "identity created", "email", created.Email, "provider", profile.Provider, "user_id", created.ID)
		return created, nil
	case errors.Is(err, entity.ErrConflict):
		slog.InfoContext(ctx, "identity created concurrently, attaching provider", "email", profile.Email)

		existing, err = s.findIdentity(ctx, profile.Email)
		if err != nil {
			return entity.Identity{}, err
		}

		return s.attachProvider(ctx, existing, profile)
	default:
		return entity.Identity{}, fmt.Errorf("create identity: %w", err)
	}
}

func (s *Service) attachProvider(ctx context.Context, i entity.Identity, profile entity.FederatedProfile) (entity.Identity, error) {
	if profile.Provider != "" && !i.HasProvider(profile.Provider) {
		linked, err := retryable.Value(ctx, func(ctx context.Context) (entity.Identity, error) {
			return s.identities.AddProvider(ctx, i.Email, profile.Provider)
		})
		if err != nil {
			return entity.Identity{}, fmt.Errorf("add provider: %w", err)
		}

		slog.InfoContext(ctx, "provider linked", "email", i.Email, "provider", profile.Provider, "user_id", i.ID)

		i = linked
	}

	var patch entity.IdentityPatch

	if i.DisplayName == "" && profile.DisplayName != "" {
		patch.DisplayName = &profile.DisplayName
	}

	if (i.AvatarURI == nil || *i.AvatarURI == "") && profile.AvatarURI != "" {
		patch.AvatarURI = &profile.AvatarURI
	}

	if patch.IsEmpty() {
		return i, nil
	}

	return s.updateIdentity(ctx, i.Email, patch)
}
