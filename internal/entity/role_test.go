package entity_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samandr77/microservices/identity/internal/entity"
)

func TestParseRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		want     entity.Role
		terminal bool
		wantErr  require.ErrorAssertionFunc
	}{
		{name: "pending", in: "pending", want: entity.RolePending, wantErr: require.NoError},
		{name: "freelancer", in: "freelancer", want: entity.RoleFreelancer, terminal: true, wantErr: require.NoError},
		{name: "client", in: "client", want: entity.RoleClient, terminal: true, wantErr: require.NoError},
		{name: "empty", in: "", wantErr: require.Error},
		{name: "admin", in: "admin", wantErr: require.Error},
		{name: "upper case", in: "Client", wantErr: require.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := entity.ParseRole(tt.in)
			tt.wantErr(t, err)

			if err != nil {
				require.ErrorIs(t, err, entity.ErrInvalidRole)
				return
			}

			require.Equal(t, tt.want, got)
			require.Equal(t, tt.terminal, got.IsTerminal())
		})
	}
}

func TestMismatchError(t *testing.T) {
	t.Parallel()

	var err error = &entity.MismatchError{AttemptsRemaining: 3}

	require.ErrorIs(t, err, entity.ErrMismatch)
	require.NotErrorIs(t, err, entity.ErrExhausted)
	require.True(t, entity.IsDomain(err))
}

func TestEmailKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a@x.com", entity.EmailKey("  A@X.com "))
}
