// Package oauth talks to external identity providers using the
// authorization code flow.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/pkg/config"
)

const (
	KindOIDC   = "oidc"
	KindGitHub = "github"

	defaultRetryWaitMax = time.Second * 5
	maxBodySize         = 1 << 20
)

type Client struct {
	name         string
	kind         string
	client       *http.Client
	authURL      string
	tokenURL     string
	userInfoURL  string
	clientID     string
	clientSecret string
	redirectURI  string
	scope        string
}

func NewClient(name string, cfg config.ProviderConfig) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryAttempts
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = defaultRetryWaitMax
	retryClient.HTTPClient.Timeout = cfg.Timeout

	retryClient.Logger = nil

	// Answered requests are never replayed: authorization codes are single use.
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}

		return false, nil
	}

	kind := cfg.Kind
	if kind == "" {
		kind = KindOIDC
	}

	return &Client{
		name:         name,
		kind:         kind,
		client:       retryClient.StandardClient(),
		authURL:      cfg.AuthURL,
		tokenURL:     cfg.TokenURL,
		userInfoURL:  cfg.UserInfoURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		scope:        cfg.Scope,
	}
}

// NewProviders builds a client for every configured provider.
func NewProviders(cfg config.OAuthConfig) map[string]*Client {
	providers := make(map[string]*Client)

	if cfg.Google.Enabled() {
		providers["google"] = NewClient("google", cfg.Google)
	}

	if cfg.GitHub.Enabled() {
		gh := cfg.GitHub
		if gh.Kind == "" {
			gh.Kind = KindGitHub
		}

		providers["github"] = NewClient("github", gh)
	}

	return providers
}

func (c *Client) Name() string {
	return c.name
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	IDToken     string `json:"id_token"`
}

type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

type oidcUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

type githubUser struct {
	Login     string `json:"login"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// AuthCodeURL returns the provider page the browser is sent to.
func (c *Client) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", c.redirectURI)
	q.Set("state", state)

	if c.scope != "" {
		q.Set("scope", c.scope)
	}

	sep := "?"
	if strings.Contains(c.authURL, "?") {
		sep = "&"
	}

	return c.authURL + sep + q.Encode()
}

// Profile exchanges the authorization code and reads the user profile.
func (c *Client) Profile(ctx context.Context, authCode string) (entity.FederatedProfile, error) {
	tokens, err := c.ExchangeCode(ctx, authCode)
	if err != nil {
		return entity.FederatedProfile{}, fmt.Errorf("exchange code: %w", err)
	}

	profile, err := c.UserInfo(ctx, tokens.AccessToken)
	if err != nil {
		return entity.FederatedProfile{}, fmt.Errorf("get user info: %w", err)
	}

	return profile, nil
}

func (c *Client) ExchangeCode(ctx context.Context, authCode string) (*TokenResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", authCode)
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	data.Set("redirect_uri", c.redirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewBufferString(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// Some providers answer 200 with an error document.
	if tokenResp.AccessToken == "" {
		return nil, ParseProviderError(http.StatusBadRequest, body)
	}

	return &tokenResp, nil
}

func (c *Client) UserInfo(ctx context.Context, accessToken string) (entity.FederatedProfile, error) {
	if err := ctx.Err(); err != nil {
		return entity.FederatedProfile{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return entity.FederatedProfile{}, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return entity.FederatedProfile{}, err
	}

	var profile entity.FederatedProfile

	switch c.kind {
	case KindGitHub:
		profile, err = mapGitHub(body)
	default:
		profile, err = mapOIDC(body)
	}

	if err != nil {
		return entity.FederatedProfile{}, err
	}

	profile.Provider = c.name

	if profile.Email == "" {
		return entity.FederatedProfile{}, entity.ErrProviderNoEmail
	}

	return profile, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		if isUnavailable(err) {
			return nil, fmt.Errorf("%w: %w", entity.ErrProviderUnavailable, err)
		}

		return nil, fmt.Errorf("send request: %w", err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ParseProviderError(resp.StatusCode, body)
	}

	return body, nil
}

func mapOIDC(body []byte) (entity.FederatedProfile, error) {
	var info oidcUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return entity.FederatedProfile{}, fmt.Errorf("decode response: %w", err)
	}

	if info.EmailVerified != nil && !*info.EmailVerified {
		return entity.FederatedProfile{}, entity.ErrProviderNoEmail
	}

	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = strings.TrimSpace(info.GivenName + " " + info.FamilyName)
	}

	return entity.FederatedProfile{
		Email:       strings.TrimSpace(info.Email),
		DisplayName: name,
		AvatarURI:   info.Picture,
	}, nil
}

func mapGitHub(body []byte) (entity.FederatedProfile, error) {
	var user githubUser
	if err := json.Unmarshal(body, &user); err != nil {
		return entity.FederatedProfile{}, fmt.Errorf("decode response: %w", err)
	}

	name := strings.TrimSpace(user.Name)
	if name == "" {
		name = user.Login
	}

	return entity.FederatedProfile{
		Email:       strings.TrimSpace(user.Email),
		DisplayName: name,
		AvatarURI:   user.AvatarURL,
	}, nil
}

func isUnavailable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()

	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "giving up after")
}

func ParseProviderError(statusCode int, body []byte) error {
	var errorResp ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err != nil {
		return mapHTTPStatusToError(statusCode)
	}

	switch errorResp.Error {
	case "invalid_grant", "bad_verification_code", "invalid_request":
		return entity.ErrProviderInvalidCode
	case "invalid_client", "unauthorized_client", "incorrect_client_credentials":
		return entity.ErrProviderInvalidClient
	case "slow_down", "rate_limit_exceeded":
		return entity.ErrProviderRateLimit
	case "temporarily_unavailable", "server_error":
		return entity.ErrProviderUnavailable
	default:
		return mapHTTPStatusToError(statusCode)
	}
}

func mapHTTPStatusToError(statusCode int) error {
	switch statusCode {
	case http.StatusBadRequest:
		return entity.ErrProviderInvalidCode
	case http.StatusUnauthorized, http.StatusForbidden:
		return entity.ErrProviderInvalidClient
	case http.StatusTooManyRequests:
		return entity.ErrProviderRateLimit
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return entity.ErrProviderUnavailable
	default:
		return fmt.Errorf("identity provider error: status %d", statusCode)
	}
}
