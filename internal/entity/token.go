package entity

import (
	"time"

	"github.com/gofrs/uuid/v5"
	jwt "github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
	TokenTypeStepUp  TokenType = "step_up"
	TokenTypeState   TokenType = "oauth_state"
)

type UserTokens struct {
	AccessToken     string        `json:"accessToken"`
	RefreshToken    string        `json:"refreshToken"`
	RefreshTokenTTL time.Duration `json:"-"`
}

// SessionClaims are carried by access and refresh tokens. Name, role and
// avatar are only a fallback: the live values are read from the store.
type SessionClaims struct {
	Type      TokenType `json:"typ"`
	UserID    uuid.UUID `json:"uid"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	AvatarURI string    `json:"avatarUri,omitempty"`
	jwt.RegisteredClaims
}

// StepUpClaims prove the first factor passed and an OTP challenge is pending.
// Registration names the password sign-up the holder started, if any.
type StepUpClaims struct {
	Type         TokenType `json:"typ"`
	Email        string    `json:"email"`
	Purpose      Purpose   `json:"purpose"`
	Provider     string    `json:"provider,omitempty"`
	Registration string    `json:"reg,omitempty"`
	jwt.RegisteredClaims
}

// StateClaims carry the provider and a hash of the browser binding value, so
// a state is accepted only from the browser that started the sign-in.
type StateClaims struct {
	Type     TokenType `json:"typ"`
	Provider string    `json:"provider"`
	Binding  string    `json:"bnd"`
	jwt.RegisteredClaims
}

// OAuthStart is a started provider sign-in. Binding goes to the browser as a
// cookie and has to come back with the callback.
type OAuthStart struct {
	URL       string
	Binding   string
	ExpiresAt time.Time
}

type StepUp struct {
	Token     string    `json:"stepUpToken"`
	Purpose   Purpose   `json:"purpose"`
	ExpiresAt time.Time `json:"expiresAt"`
}
