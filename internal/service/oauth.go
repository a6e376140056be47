package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samandr77/microservices/identity/internal/entity"
)

func (s *Service) provider(name string) (OAuthProvider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, entity.ErrProviderUnknown
	}

	return p, nil
}

// AuthorizeURL returns the provider sign-in page with a signed state and the
// binding value the caller's browser has to keep until the callback.
func (s *Service) AuthorizeURL(_ context.Context, providerName string) (entity.OAuthStart, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return entity.OAuthStart{}, err
	}

	state, binding, err := s.issueState(providerName)
	if err != nil {
		return entity.OAuthStart{}, err
	}

	return entity.OAuthStart{
		URL:       p.AuthCodeURL(state),
		Binding:   binding,
		ExpiresAt: s.now().Add(s.cfg.JWT.StateTokenExpiry),
	}, nil
}

// OAuthCallback finishes the authorization code flow, bootstraps the
// identity and starts the OTP step-up for it. The state must come back with
// the binding issued alongside it.
func (s *Service) OAuthCallback(ctx context.Context, providerName, code, state, binding string) (entity.StepUp, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return entity.StepUp{}, err
	}

	err = s.checkState(state, providerName, binding)
	if err != nil {
		slog.WarnContext(ctx, "oauth state rejected", "provider", providerName, "error", err)
		return entity.StepUp{}, err
	}

	profile, err := p.Profile(ctx, code)
	if err != nil {
		return entity.StepUp{}, fmt.Errorf("%s profile: %w", providerName, err)
	}

	profile.Provider = providerName

	i, err := s.Bootstrap(ctx, profile)
	if err != nil {
		return entity.StepUp{}, fmt.Errorf("bootstrap identity: %w", err)
	}

	return s.startStepUp(ctx, i.Email, entity.PurposeOAuthBootstrap, providerName, nil)
}
