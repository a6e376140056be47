package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/pkg/config"
)

// bindingBytes is the entropy of the browser value an OAuth state is bound to.
const bindingBytes = 32

type signingKeys struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

func parseKeys(cfg config.JWTConfig) (signingKeys, error) {
	pKey, err := decodeKey(cfg.PrivateKey)
	if err != nil {
		return signingKeys{}, fmt.Errorf("decode private key: %w", err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(pKey)
	if err != nil {
		return signingKeys{}, fmt.Errorf("parse private key: %w", err)
	}

	pubKey, err := decodeKey(cfg.PublicKey)
	if err != nil {
		return signingKeys{}, fmt.Errorf("decode public key: %w", err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(pubKey)
	if err != nil {
		return signingKeys{}, fmt.Errorf("parse public key: %w", err)
	}

	return signingKeys{private: privateKey, public: publicKey}, nil
}

// decodeKey accepts a PEM block as is or base64 encoded, padded or not.
func decodeKey(key string) ([]byte, error) {
	if strings.Contains(key, "-----BEGIN") {
		return []byte(key), nil
	}

	cleaned := cleanKey(key)

	b, err := base64.StdEncoding.DecodeString(cleaned)
	if err == nil {
		return b, nil
	}

	return base64.RawStdEncoding.DecodeString(cleaned)
}

func cleanKey(key string) string {
	return strings.TrimSpace(strings.NewReplacer(
		`\`, "", `"`, "", " ", "", "\n", "", "\r", "", "{", "", "}", "",
	).Replace(key))
}

func (s *Service) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.keys.private)
}

func (s *Service) parse(token string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (any, error) {
		_, ok := token.Method.(*jwt.SigningMethodRSA)
		if !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return s.keys.public, nil
	},
		jwt.WithIssuer(s.cfg.JWT.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("token expired: %w", entity.ErrTokenExpired)
		}

		return fmt.Errorf("%w: %w", entity.ErrTokenInvalid, err)
	}

	return nil
}

func (s *Service) registered(id string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.now()

	return jwt.RegisteredClaims{
		ID:        id,
		Issuer:    s.cfg.JWT.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// issueTokens signs an access and refresh pair sharing one jti. The refresh
// token is stored; revoking it also invalidates the access token.
func (s *Service) issueTokens(ctx context.Context, i entity.Identity) (entity.UserTokens, error) {
	jti := uuid.Must(uuid.NewV4()).String()
	p := entity.PrincipalFromIdentity(i)

	claims := entity.SessionClaims{
		UserID:    p.ID,
		Email:     p.Email,
		Name:      p.Name,
		Role:      p.Role,
		AvatarURI: p.AvatarURI,
	}

	refreshClaims := claims
	refreshClaims.Type = entity.TokenTypeRefresh
	refreshClaims.RegisteredClaims = s.registered(jti, s.cfg.JWT.RefreshTokenExpiry)

	refreshToken, err := s.sign(refreshClaims)
	if err != nil {
		return entity.UserTokens{}, fmt.Errorf("sign refresh token: %w", err)
	}

	accessClaims := claims
	accessClaims.Type = entity.TokenTypeAccess
	accessClaims.RegisteredClaims = s.registered(jti, s.cfg.JWT.AccessTokenExpiry)

	accessToken, err := s.sign(accessClaims)
	if err != nil {
		return entity.UserTokens{}, fmt.Errorf("sign access token: %w", err)
	}

	err = s.tokens.Save(ctx, jti, i.ID, refreshToken, refreshClaims.ExpiresAt.Time)
	if err != nil {
		return entity.UserTokens{}, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return entity.UserTokens{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		RefreshTokenTTL: s.cfg.JWT.RefreshTokenExpiry,
	}, nil
}

// RefreshToken rotates a refresh token: the presented one is consumed and a
// new pair is issued with the identity's current values.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (entity.UserTokens, error) {
	var claims entity.SessionClaims

	err := s.parse(refreshToken, &claims)
	if err != nil {
		return entity.UserTokens{}, fmt.Errorf("parse refresh token: %w", err)
	}

	if claims.Type != entity.TokenTypeRefresh {
		return entity.UserTokens{}, fmt.Errorf("refresh token type %q: %w", claims.Type, entity.ErrTokenInvalid)
	}

	err = s.tokens.Consume(ctx, claims.ID, refreshToken)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return entity.UserTokens{}, fmt.Errorf("refresh token not found or revoked: %w", entity.ErrTokenRevoked)
		}

		return entity.UserTokens{}, fmt.Errorf("consume refresh token: %w", err)
	}

	i, err := s.findIdentity(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return entity.UserTokens{}, entity.ErrUnauthorized
		}

		return entity.UserTokens{}, err
	}

	return s.issueTokens(ctx, i)
}

// Authenticate checks an access token and that its session was not revoked.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (entity.SessionClaims, error) {
	var claims entity.SessionClaims

	err := s.parse(accessToken, &claims)
	if err != nil {
		return entity.SessionClaims{}, err
	}

	if claims.Type != entity.TokenTypeAccess {
		return entity.SessionClaims{}, fmt.Errorf("access token type %q: %w", claims.Type, entity.ErrTokenInvalid)
	}

	if claims.ID == "" {
		return entity.SessionClaims{}, fmt.Errorf("access token missing JTI: %w", entity.ErrTokenInvalid)
	}

	err = s.tokens.Active(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return entity.SessionClaims{}, fmt.Errorf("refresh token not found or revoked: %w", entity.ErrTokenRevoked)
		}

		return entity.SessionClaims{}, fmt.Errorf("check session: %w", err)
	}

	return claims, nil
}

// ValidateToken authenticates an access token and composes the principal
// from the current identity record.
func (s *Service) ValidateToken(ctx context.Context, accessToken string) (entity.Principal, error) {
	claims, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return entity.Principal{}, err
	}

	return s.ComposeSession(ctx, claims), nil
}

// DestroyToken ends the session the refresh token belongs to.
func (s *Service) DestroyToken(ctx context.Context, refreshToken string) error {
	var claims entity.SessionClaims

	err := s.parse(refreshToken, &claims)
	if err != nil && !errors.Is(err, entity.ErrTokenExpired) {
		return fmt.Errorf("parse refresh token: %w", err)
	}

	if claims.ID == "" {
		return fmt.Errorf("refresh token missing JTI: %w", entity.ErrTokenInvalid)
	}

	err = s.tokens.Delete(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}

	slog.InfoContext(ctx, "session destroyed", "user_id", claims.UserID)

	return nil
}

func (s *Service) RevokeToken(ctx context.Context, identityID uuid.UUID) error {
	if err := s.tokens.DeleteByIdentityID(ctx, identityID); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return nil
}

func (s *Service) DeleteExpiredTokens(ctx context.Context) error {
	n, err := s.tokens.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	slog.DebugContext(ctx, "expired refresh tokens purged", "count", n)

	return nil
}

// stepUpTTL outlives the code itself so an expired code can still be resent.
func (s *Service) stepUpTTL() time.Duration {
	return 2 * s.otp.TTL()
}

func (s *Service) issueStepUp(c entity.Challenge, provider string) (entity.StepUp, error) {
	claims := entity.StepUpClaims{
		Type:             entity.TokenTypeStepUp,
		Email:            c.Email,
		Purpose:          c.Purpose,
		Provider:         provider,
		RegisteredClaims: s.registered(c.ID.String(), s.stepUpTTL()),
	}

	if c.Registration != nil {
		claims.Registration = c.Registration.ID.String()
	}

	token, err := s.sign(claims)
	if err != nil {
		return entity.StepUp{}, fmt.Errorf("sign step-up token: %w", err)
	}

	return entity.StepUp{Token: token, Purpose: c.Purpose, ExpiresAt: c.ExpiresAt}, nil
}

func (s *Service) ParseStepUp(token string) (entity.StepUpClaims, error) {
	var claims entity.StepUpClaims

	err := s.parse(token, &claims)
	if err != nil {
		return entity.StepUpClaims{}, err
	}

	if claims.Type != entity.TokenTypeStepUp || !claims.Purpose.Valid() || claims.Email == "" {
		return entity.StepUpClaims{}, fmt.Errorf("step-up token: %w", entity.ErrTokenInvalid)
	}

	return claims, nil
}

func (s *Service) issueState(provider string) (state, binding string, err error) {
	raw := make([]byte, bindingBytes)

	_, err = rand.Read(raw)
	if err != nil {
		return "", "", fmt.Errorf("generate binding: %w", err)
	}

	binding = base64.RawURLEncoding.EncodeToString(raw)

	claims := entity.StateClaims{
		Type:             entity.TokenTypeState,
		Provider:         provider,
		Binding:          hashBinding(binding),
		RegisteredClaims: s.registered(uuid.Must(uuid.NewV4()).String(), s.cfg.JWT.StateTokenExpiry),
	}

	state, err = s.sign(claims)
	if err != nil {
		return "", "", fmt.Errorf("sign state: %w", err)
	}

	return state, binding, nil
}

func (s *Service) checkState(state, provider, binding string) error {
	var claims entity.StateClaims

	err := s.parse(state, &claims)
	if err != nil {
		return fmt.Errorf("%w: %w", entity.ErrProviderInvalidState, err)
	}

	if claims.Type != entity.TokenTypeState || claims.Provider != provider {
		return entity.ErrProviderInvalidState
	}

	if binding == "" || subtle.ConstantTimeCompare([]byte(claims.Binding), []byte(hashBinding(binding))) != 1 {
		return fmt.Errorf("%w: browser binding mismatch", entity.ErrProviderInvalidState)
	}

	return nil
}

func hashBinding(binding string) string {
	sum := sha256.Sum256([]byte(binding))
	return hex.EncodeToString(sum[:])
}
