package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/pkg/config"
)

//go:generate go run go.uber.org/mock/mockgen@latest -source=service.go -destination=../mocks/service.go -package=mocks

type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (entity.Identity, error)
	Create(ctx context.Context, seed entity.IdentitySeed) (entity.Identity, error)
	Update(ctx context.Context, email string, patch entity.IdentityPatch) (entity.Identity, error)
	SetRole(ctx context.Context, email string, role entity.Role) (entity.RoleChange, error)
	SetWallet(ctx context.Context, email string, link entity.WalletLink) (entity.Identity, error)
	AddProvider(ctx context.Context, email, provider string) (entity.Identity, error)
}

type RefreshTokenStore interface {
	Save(ctx context.Context, jti string, identityID uuid.UUID, token string, expiresAt time.Time) error
	Consume(ctx context.Context, jti, token string) error
	Active(ctx context.Context, jti string) error
	Delete(ctx context.Context, jti string) error
	DeleteByIdentityID(ctx context.Context, identityID uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type OTP interface {
	Send(ctx context.Context, email string, purpose entity.Purpose) (entity.Challenge, error)
	SendRegistration(ctx context.Context, email string, purpose entity.Purpose, reg entity.Registration) (entity.Challenge, error)
	Verify(ctx context.Context, email string, purpose entity.Purpose, code string) (entity.Challenge, error)
	Current(ctx context.Context, email string, purpose entity.Purpose) (entity.Challenge, error)
	TTL() time.Duration
}

type SignatureVerifier interface {
	Verify(message, signature, claimedAddress string) (bool, error)
}

type OAuthProvider interface {
	AuthCodeURL(state string) string
	Profile(ctx context.Context, authCode string) (entity.FederatedProfile, error)
}

type Service struct {
	cfg        config.Config
	identities IdentityStore
	tokens     RefreshTokenStore
	otp        OTP
	verifier   SignatureVerifier
	providers  map[string]OAuthProvider
	keys       signingKeys
	now        func() time.Time
}

func NewService(
	cfg config.Config,
	identities IdentityStore,
	tokens RefreshTokenStore,
	otp OTP,
	verifier SignatureVerifier,
	providers map[string]OAuthProvider,
) (*Service, error) {
	keys, err := parseKeys(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("parse jwt keys: %w", err)
	}

	if providers == nil {
		providers = make(map[string]OAuthProvider)
	}

	return &Service{
		cfg:        cfg,
		identities: identities,
		tokens:     tokens,
		otp:        otp,
		verifier:   verifier,
		providers:  providers,
		keys:       keys,
		now:        time.Now,
	}, nil
}

// Providers lists the names of the configured identity providers.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
