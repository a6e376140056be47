package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/internal/retryable"
	"github.com/samandr77/microservices/identity/pkg/logger"
)

// AssignRole moves an identity to freelancer or client. Replacing a role that
// was already selected is allowed and logged as an override.
func (s *Service) AssignRole(ctx context.Context, email string, role entity.Role, source entity.RoleSource) (entity.Identity, error) {
	if !role.IsTerminal() {
		return entity.Identity{}, entity.ErrInvalidRole
	}

	change, err := retryable.Value(ctx, func(ctx context.Context) (entity.RoleChange, error) {
		return s.identities.SetRole(ctx, email, role)
	})
	if err != nil {
		return entity.Identity{}, fmt.Errorf("set role: %w", err)
	}

	if change.IsOverride() {
		ctx = logger.SetLogType(ctx, logger.LogTypeSecurity)

		slog.WarnContext(ctx, "role override",
			"email", email,
			"user_id", change.Identity.ID,
			"source", source,
			"previous_role", change.PreviousRole,
			"role", role,
		)
	} else {
		slog.InfoContext(ctx, "role assigned", "email", email, "user_id", change.Identity.ID, "source", source, "role", role)
	}

	return change.Identity, nil
}

// SelectRole is the self-service path: it only moves a pending identity.
func (s *Service) SelectRole(ctx context.Context, email string, role entity.Role) (entity.Identity, error) {
	if !role.IsTerminal() {
		return entity.Identity{}, entity.ErrInvalidRole
	}

	i, err := s.findIdentity(ctx, email)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return entity.Identity{}, entity.ErrUnauthorized
		}

		return entity.Identity{}, err
	}

	if i.Role.IsTerminal() {
		return entity.Identity{}, entity.ErrRoleSelected
	}

	return s.AssignRole(ctx, email, role, entity.RoleSourceSelfService)
}
