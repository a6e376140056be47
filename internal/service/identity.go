package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/internal/retryable"
)

func (s *Service) findIdentity(ctx context.Context, email string) (entity.Identity, error) {
	i, err := retryable.Value(ctx, func(ctx context.Context) (entity.Identity, error) {
		return s.identities.FindByEmail(ctx, email)
	})
	if err != nil {
		return entity.Identity{}, fmt.Errorf("find identity: %w", err)
	}

	return i, nil
}

func (s *Service) updateIdentity(ctx context.Context, email string, patch entity.IdentityPatch) (entity.Identity, error) {
	i, err := retryable.Value(ctx, func(ctx context.Context) (entity.Identity, error) {
		return s.identities.Update(ctx, email, patch)
	})
	if err != nil {
		return entity.Identity{}, fmt.Errorf("update identity: %w", err)
	}

	return i, nil
}

// Identity returns the stored record for an authenticated principal.
func (s *Service) Identity(ctx context.Context, email string) (entity.Identity, error) {
	i, err := s.findIdentity(ctx, email)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return entity.Identity{}, entity.ErrUnauthorized
		}

		return entity.Identity{}, err
	}

	return i, nil
}

// UpdateProfile changes the self-service fields. Nil arguments are left as they are.
func (s *Service) UpdateProfile(ctx context.Context, email string, displayName, avatarURI *string) (entity.Identity, error) {
	var patch entity.IdentityPatch

	if displayName != nil {
		name := strings.TrimSpace(*displayName)
		if err := ValidateName(name); err != nil {
			return entity.Identity{}, err
		}

		patch.DisplayName = &name
	}

	if avatarURI != nil {
		avatar := strings.TrimSpace(*avatarURI)
		patch.AvatarURI = &avatar
	}

	i, err := s.updateIdentity(ctx, email, patch)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return entity.Identity{}, entity.ErrUnauthorized
		}

		return entity.Identity{}, err
	}

	return i, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
