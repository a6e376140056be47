package service_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/internal/mocks"
	"github.com/samandr77/microservices/identity/internal/service"
)

// authState starts a sign-in and returns the state from the provider URL
// together with the browser binding issued for it.
func authState(t *testing.T, e *env, provider string) (string, string) {
	t.Helper()

	start, err := e.svc.AuthorizeURL(context.Background(), provider)
	require.NoError(t, err)
	require.NotEmpty(t, start.Binding)

	u, err := url.Parse(start.URL)
	require.NoError(t, err)

	return u.Query().Get("state"), start.Binding
}

func TestOAuthCallback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctrl := gomock.NewController(t)

	google := mocks.NewMockOAuthProvider(ctrl)
	google.EXPECT().AuthCodeURL(gomock.Any()).DoAndReturn(func(state string) string {
		return "https://accounts.example.com/auth?" + url.Values{"state": {state}}.Encode()
	}).AnyTimes()

	e := newEnv(t, map[string]service.OAuthProvider{"google": google})

	require.Equal(t, []string{"google"}, e.svc.Providers())

	t.Run("unknown provider", func(t *testing.T) {
		_, err := e.svc.AuthorizeURL(ctx, "facebook")
		require.ErrorIs(t, err, entity.ErrProviderUnknown)

		_, err = e.svc.OAuthCallback(ctx, "facebook", "code", "state", "binding")
		require.ErrorIs(t, err, entity.ErrProviderUnknown)
	})

	t.Run("forged state", func(t *testing.T) {
		_, err := e.svc.OAuthCallback(ctx, "google", "code", "forged", "binding")
		require.ErrorIs(t, err, entity.ErrProviderInvalidState)
		require.Zero(t, e.identities.Len())
	})

	t.Run("provider failure", func(t *testing.T) {
		google.EXPECT().Profile(gomock.Any(), "bad-code").Return(entity.FederatedProfile{}, entity.ErrProviderInvalidCode)

		state, binding := authState(t, e, "google")

		_, err := e.svc.OAuthCallback(ctx, "google", "bad-code", state, binding)
		require.ErrorIs(t, err, entity.ErrProviderInvalidCode)
		require.Zero(t, e.identities.Len())
	})

	t.Run("bootstrap then step-up", func(t *testing.T) {
		google.EXPECT().Profile(gomock.Any(), "good-code").Return(entity.FederatedProfile{
			Email: "oauth@example.com", DisplayName: "OAuth User", Provider: "spoofed",
		}, nil)

		state, binding := authState(t, e, "google")

		stepUp, err := e.svc.OAuthCallback(ctx, "google", "good-code", state, binding)
		require.NoError(t, err)
		require.Equal(t, entity.PurposeOAuthBootstrap, stepUp.Purpose)

		i, err := e.identities.FindByEmail(ctx, "oauth@example.com")
		require.NoError(t, err)
		require.Equal(t, entity.RolePending, i.Role)
		require.True(t, i.HasProvider("google"))
		require.False(t, i.HasProvider("spoofed"))

		claims, err := e.svc.ParseStepUp(stepUp.Token)
		require.NoError(t, err)
		require.Equal(t, "google", claims.Provider)

		tokens, err := e.svc.VerifyCode(ctx, claims, e.outbox.code(t, "oauth@example.com", entity.PurposeOAuthBootstrap))
		require.NoError(t, err)

		p, err := e.svc.ValidateToken(ctx, tokens.AccessToken)
		require.NoError(t, err)
		require.True(t, p.RequiresRoleSelection())
	})

	t.Run("login code does not satisfy the bootstrap step-up", func(t *testing.T) {
		google.EXPECT().Profile(gomock.Any(), "again").Return(entity.FederatedProfile{Email: "oauth@example.com"}, nil)

		state, binding := authState(t, e, "google")

		stepUp, err := e.svc.OAuthCallback(ctx, "google", "again", state, binding)
		require.NoError(t, err)

		claims, err := e.svc.ParseStepUp(stepUp.Token)
		require.NoError(t, err)

		claims.Purpose = entity.PurposeLogin

		_, err = e.svc.VerifyCode(ctx, claims, e.outbox.code(t, "oauth@example.com", entity.PurposeOAuthBootstrap))
		require.ErrorIs(t, err, entity.ErrNotFound)
		require.Equal(t, 1, e.identities.Len())
	})
}

func TestOAuthCallback_StateBoundToProvider(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)

	google := mocks.NewMockOAuthProvider(ctrl)
	google.EXPECT().AuthCodeURL(gomock.Any()).DoAndReturn(func(state string) string {
		return "https://google.example.com/auth?state=" + url.QueryEscape(state)
	})

	github := mocks.NewMockOAuthProvider(ctrl)

	e := newEnv(t, map[string]service.OAuthProvider{"google": google, "github": github})

	state, binding := authState(t, e, "google")

	_, err := e.svc.OAuthCallback(context.Background(), "github", "code", state, binding)
	require.ErrorIs(t, err, entity.ErrProviderInvalidState)
}

func TestOAuthCallback_StateBoundToBrowser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctrl := gomock.NewController(t)

	google := mocks.NewMockOAuthProvider(ctrl)
	google.EXPECT().AuthCodeURL(gomock.Any()).DoAndReturn(func(state string) string {
		return "https://google.example.com/auth?state=" + url.QueryEscape(state)
	}).Times(2)

	e := newEnv(t, map[string]service.OAuthProvider{"google": google})

	state, _ := authState(t, e, "google")
	_, otherBinding := authState(t, e, "google")

	_, err := e.svc.OAuthCallback(ctx, "google", "code", state, otherBinding)
	require.ErrorIs(t, err, entity.ErrProviderInvalidState)

	_, err = e.svc.OAuthCallback(ctx, "google", "code", state, "")
	require.ErrorIs(t, err, entity.ErrProviderInvalidState)

	require.Zero(t, e.identities.Len())
}
