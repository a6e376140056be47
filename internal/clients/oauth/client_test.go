package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/pkg/config"
)

func newTestClient(kind, baseURL string) *Client {
	return NewClient("test", config.ProviderConfig{
		Kind:          kind,
		AuthURL:       baseURL + "/authorize",
		TokenURL:      baseURL + "/token",
		UserInfoURL:   baseURL + "/userinfo",
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		RedirectURI:   "https://app.example.com/callback",
		Scope:         "openid email profile",
		Timeout:       time.Second,
		RetryAttempts: 0,
	})
}

func TestClient_AuthCodeURL(t *testing.T) {
	t.Parallel()

	c := newTestClient(KindOIDC, "https://idp.example.com")

	u, err := url.Parse(c.AuthCodeURL("signed-state"))
	require.NoError(t, err)
	require.Equal(t, "/authorize", u.Path)

	q := u.Query()
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "client-id", q.Get("client_id"))
	require.Equal(t, "signed-state", q.Get("state"))
	require.Equal(t, "openid email profile", q.Get("scope"))
	require.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
}

func TestClient_ExchangeCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		serverResponse func(w http.ResponseWriter, r *http.Request)
		expectError    error
	}{
		{
			name: "successful token exchange",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
					t.Error("Wrong Content-Type header")
				}

				if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "valid-code" {
					t.Error("Missing authorization code")
				}

				_, _ = w.Write([]byte(`{"access_token":"at","token_type":"bearer","expires_in":60}`))
			},
		},
		{
			name: "invalid authorization code",
			serverResponse: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Bad code"}`))
			},
			expectError: entity.ErrProviderInvalidCode,
		},
		{
			name: "error document with status 200",
			serverResponse: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
			},
			expectError: entity.ErrProviderInvalidCode,
		},
		{
			name: "invalid client credentials",
			serverResponse: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			},
			expectError: entity.ErrProviderInvalidClient,
		},
		{
			name: "rate limit exceeded",
			serverResponse: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`not json`))
			},
			expectError: entity.ErrProviderRateLimit,
		},
		{
			name: "service unavailable",
			serverResponse: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			expectError: entity.ErrProviderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(tt.serverResponse))
			defer server.Close()

			resp, err := newTestClient(KindOIDC, server.URL).ExchangeCode(context.Background(), "valid-code")

			if tt.expectError != nil {
				require.ErrorIs(t, err, tt.expectError)
				return
			}

			require.NoError(t, err)
			require.Equal(t, "at", resp.AccessToken)
		})
	}
}

func TestClient_Profile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		kind        string
		userInfo    string
		expected    entity.FederatedProfile
		expectError error
	}{
		{
			name:     "oidc profile",
			kind:     KindOIDC,
			userInfo: `{"sub":"1","email":"User@Example.com","email_verified":true,"name":"Ann Lee","picture":"https://img/1"}`,
			expected: entity.FederatedProfile{
				Email: "User@Example.com", DisplayName: "Ann Lee", AvatarURI: "https://img/1", Provider: "test",
			},
		},
		{
			name:     "oidc name from parts",
			kind:     KindOIDC,
			userInfo: `{"sub":"1","email":"a@example.com","given_name":"Ann","family_name":"Lee"}`,
			expected: entity.FederatedProfile{Email: "a@example.com", DisplayName: "Ann Lee", Provider: "test"},
		},
		{
			name:        "oidc unverified email",
			kind:        KindOIDC,
			userInfo:    `{"sub":"1","email":"a@example.com","email_verified":false}`,
			expectError: entity.ErrProviderNoEmail,
		},
		{
			name:     "github falls back to login",
			kind:     KindGitHub,
			userInfo: `{"login":"annlee","email":"a@example.com","avatar_url":"https://gh/1","role":"admin"}`,
			expected: entity.FederatedProfile{
				Email: "a@example.com", DisplayName: "annlee", AvatarURI: "https://gh/1", Provider: "test",
			},
		},
		{
			name:        "github private email",
			kind:        KindGitHub,
			userInfo:    `{"login":"annlee","email":null}`,
			expectError: entity.ErrProviderNoEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mux := http.NewServeMux()
			mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"access_token":"at"}`))
			})
			mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer at" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}

				_, _ = w.Write([]byte(tt.userInfo))
			})

			server := httptest.NewServer(mux)
			defer server.Close()

			profile, err := newTestClient(tt.kind, server.URL).Profile(context.Background(), "code")

			if tt.expectError != nil {
				require.ErrorIs(t, err, tt.expectError)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.expected, profile)
		})
	}
}

func TestClient_Unavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	_, err := newTestClient(KindOIDC, server.URL).ExchangeCode(context.Background(), "code")
	require.ErrorIs(t, err, entity.ErrProviderUnavailable)
}

func TestNewProviders(t *testing.T) {
	t.Parallel()

	providers := NewProviders(config.OAuthConfig{
		GitHub: config.ProviderConfig{ClientID: "id", TokenURL: "https://t", UserInfoURL: "https://u"},
	})

	require.Len(t, providers, 1)
	require.Equal(t, KindGitHub, providers["github"].kind)
	require.Equal(t, "github", providers["github"].Name())
}
