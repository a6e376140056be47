package service

import (
	"context"
	"log/slog"

	"github.com/samandr77/microservices/identity/internal/entity"
)

// ComposeSession projects the current identity record onto the principal.
// When the store cannot be read the values carried by the token are used.
func (s *Service) ComposeSession(ctx context.Context, claims entity.SessionClaims) entity.Principal {
	i, err := s.findIdentity(ctx, claims.Email)
	if err != nil {
		slog.WarnContext(ctx, "compose session from token claims", "email", claims.Email, "error", err)

		return entity.Principal{
			ID:        claims.UserID,
			Email:     claims.Email,
			Name:      claims.Name,
			Role:      normalizeRole(claims.Role),
			AvatarURI: claims.AvatarURI,
		}
	}

	p := entity.PrincipalFromIdentity(i)
	p.Role = normalizeRole(p.Role)

	return p
}

func normalizeRole(r entity.Role) entity.Role {
	if !r.Valid() {
		return entity.RolePending
	}

	return r
}
