package entity

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("already exists")
	ErrInvalidRole      = errors.New("invalid role")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrRoleRequired     = errors.New("role selection required")
	ErrRoleSelected     = fmt.Errorf("role already selected: %w", ErrConflict)
)

var (
	ErrExpired        = errors.New("code expired")
	ErrExhausted      = errors.New("code attempts exhausted")
	ErrMismatch       = errors.New("code mismatch")
	ErrDeliveryFailed = errors.New("code delivery failed")
	ErrCooldown       = errors.New("code resend cooldown")
	ErrInvalidPurpose = errors.New("invalid code purpose")

	ErrRegistrationExpired = errors.New("registration expired")
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenRevoked       = errors.New("token revoked")
)

var (
	ErrPasswordInvalidLen  = errors.New("password must be from 8 to 72 symbols")
	ErrPasswordNoUpperCase = errors.New("password must contains minimum one upper-case letter")
	ErrPasswordNoDigit     = errors.New("password must contains minimum one digit")
	ErrEmailInvalidLen     = errors.New("email length exceeds 255 characters")
	ErrEmailInvalidFormat  = errors.New("incorrect email format")
	ErrNameInvalidLen      = errors.New("name must be between 1 and 100 characters")
)

var (
	ErrProviderUnknown       = errors.New("unknown identity provider")
	ErrProviderInvalidCode   = errors.New("invalid authorization code")
	ErrProviderInvalidState  = errors.New("invalid oauth state")
	ErrProviderInvalidClient = errors.New("invalid client credentials")
	ErrProviderRateLimit     = errors.New("rate limit exceeded")
	ErrProviderUnavailable   = errors.New("identity provider unavailable")
	ErrProviderNoEmail       = errors.New("identity provider returned no email")
)

// MismatchError reports a wrong code together with the budget left on the challenge.
type MismatchError struct {
	AttemptsRemaining int
}

func (e *MismatchError) Error() string { return ErrMismatch.Error() }

func (e *MismatchError) Is(target error) bool { return target == ErrMismatch }

type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string { return ErrCooldown.Error() }

func (e *CooldownError) Is(target error) bool { return target == ErrCooldown }

// IsDomain reports whether err is one of the enumerated identity failures.
// Anything else coming out of a store is treated as transient.
func IsDomain(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrConflict, ErrInvalidRole, ErrSignatureInvalid, ErrUnauthorized,
		ErrExpired, ErrExhausted, ErrMismatch, ErrInvalidPurpose,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
