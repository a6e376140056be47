package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samandr77/microservices/identity/internal/entity"
)

func TestAssignRole(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t, nil)

	tokens := e.signIn(t, "worker@example.com")

	t.Run("pending before selection", func(t *testing.T) {
		p, err := e.svc.ValidateToken(ctx, tokens.AccessToken)
		require.NoError(t, err)
		require.Equal(t, entity.RolePending, p.Role)
		require.True(t, p.RequiresRoleSelection())
	})

	t.Run("invalid roles", func(t *testing.T) {
		for _, role := range []entity.Role{entity.RolePending, "admin", ""} {
			_, err := e.svc.AssignRole(ctx, "worker@example.com", role, entity.RoleSourceAdmin)
			require.ErrorIs(t, err, entity.ErrInvalidRole)
		}
	})

	t.Run("unknown identity", func(t *testing.T) {
		_, err := e.svc.AssignRole(ctx, "ghost@example.com", entity.RoleClient, entity.RoleSourceAdmin)
		require.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("selection visible in next composition", func(t *testing.T) {
		i, err := e.svc.SelectRole(ctx, "Worker@Example.com", entity.RoleFreelancer)
		require.NoError(t, err)
		require.Equal(t, entity.RoleFreelancer, i.Role)
		require.NotNil(t, i.RoleAssignedAt)

		p, err := e.svc.ValidateToken(ctx, tokens.AccessToken)
		require.NoError(t, err)
		require.Equal(t, entity.RoleFreelancer, p.Role)
		require.False(t, p.RequiresRoleSelection())
	})

	t.Run("self-service cannot change a selected role", func(t *testing.T) {
		_, err := e.svc.SelectRole(ctx, "worker@example.com", entity.RoleClient)
		require.ErrorIs(t, err, entity.ErrRoleSelected)
		require.ErrorIs(t, err, entity.ErrConflict)
	})

	t.Run("admin override", func(t *testing.T) {
		i, err := e.svc.AssignRole(ctx, "worker@example.com", entity.RoleClient, entity.RoleSourceAdmin)
		require.NoError(t, err)
		require.Equal(t, entity.RoleClient, i.Role)

		p, err := e.svc.ValidateToken(ctx, tokens.AccessToken)
		require.NoError(t, err)
		require.Equal(t, entity.RoleClient, p.Role)
	})
}
