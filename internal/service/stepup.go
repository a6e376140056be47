package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/pkg/logger"
)

func (s *Service) startStepUp(
	ctx context.Context,
	email string,
	purpose entity.Purpose,
	provider string,
	reg *entity.Registration,
) (entity.StepUp, error) {
	var (
		c   entity.Challenge
		err error
	)

	if reg != nil {
		c, err = s.otp.SendRegistration(ctx, email, purpose, *reg)
	} else {
		c, err = s.otp.Send(ctx, email, purpose)
	}

	if err != nil {
		return entity.StepUp{}, fmt.Errorf("send code: %w", err)
	}

	return s.issueStepUp(c, provider)
}

// ResendCode replaces the pending challenge unless the current one is
// younger than the resend cooldown. A sign-up started by the same holder is
// carried over to the new code; once its challenge is gone the holder has to
// register again.
func (s *Service) ResendCode(ctx context.Context, claims entity.StepUpClaims) (entity.StepUp, error) {
	var reg *entity.Registration

	current, err := s.otp.Current(ctx, claims.Email, claims.Purpose)

	switch {
	case err == nil:
		if wait := s.cfg.OTP.ResendCooldown - s.now().Sub(current.CreatedAt); wait > 0 {
			return entity.StepUp{}, &entity.CooldownError{RetryAfter: wait}
		}

		if ownRegistration(current, claims) {
			reg = current.Registration
		}
	case errors.Is(err, entity.ErrNotFound):
	default:
		return entity.StepUp{}, err
	}

	if claims.Registration != "" && reg == nil {
		return entity.StepUp{}, entity.ErrRegistrationExpired
	}

	return s.startStepUp(ctx, claims.Email, claims.Purpose, claims.Provider, reg)
}

// VerifyCode is the only place session tokens are issued. A sign-up riding
// on the verified challenge is written only when the holder started it.
func (s *Service) VerifyCode(ctx context.Context, claims entity.StepUpClaims, code string) (entity.UserTokens, error) {
	c, err := s.otp.Verify(ctx, claims.Email, claims.Purpose, code)
	if err != nil {
		return entity.UserTokens{}, err
	}

	switch {
	case ownRegistration(c, claims):
		err = s.completeRegistration(ctx, claims.Email, *c.Registration)
		if err != nil {
			return entity.UserTokens{}, err
		}
	case c.Registration != nil:
		secCtx := logger.SetLogType(ctx, logger.LogTypeSecurity)
		slog.WarnContext(secCtx, "sign-up dropped, code verified by another step-up",
			"email", claims.Email, "registration_id", c.Registration.ID)
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

func ownRegistration(c entity.Challenge, claims entity.StepUpClaims) bool {
	return c.Registration != nil && claims.Registration != "" && c.Registration.ID.String() == claims.Registration
}

// IssueSession signs a fresh token pair for an identity that is already
// authenticated, used after a role change.
func (s *Service) IssueSession(ctx context.Context, i entity.Identity) (entity.UserTokens, error) {
	return s.issueTokens(ctx, i)
}
