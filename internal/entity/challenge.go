package entity

import (
	"crypto/subtle"
	"fmt"
	"math"
	"time"

	"github.com/gofrs/uuid/v5"
)

type Purpose string

const (
	PurposeLogin          Purpose = "login"
	PurposeOAuthBootstrap Purpose = "oauth-bootstrap"
)

func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(s)
	if !p.Valid() {
		return "", ErrInvalidPurpose
	}

	return p, nil
}

func (p Purpose) Valid() bool {
	return p == PurposeLogin || p == PurposeOAuthBootstrap
}

// Registration is a password sign-up waiting for its code. It is written to
// the identity store only after the code is verified.
type Registration struct {
	ID           uuid.UUID
	PasswordHash string
	DisplayName  string
}

// Challenge is the live one-time code for an (email, purpose) pair.
type Challenge struct {
	ID       uuid.UUID
	Email    string
	Purpose  Purpose
	CodeHash string
	// SupersededHash is the code hash of the challenge this one replaced.
	SupersededHash    string
	Registration      *Registration
	AttemptsRemaining int
	ExpiresAt         time.Time
	CreatedAt         time.Time
}

func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Check applies one verification attempt to c. keep reports whether the
// returned challenge must be stored back; otherwise it has to be removed.
// A code that was replaced by a resend is reported as ErrNotFound and costs
// no attempt.
func (c Challenge) Check(codeHash string, now time.Time) (next Challenge, keep bool, err error) {
	if c.Expired(now) {
		return c, false, ErrExpired
	}

	if hashEqual(c.CodeHash, codeHash) {
		return c, false, nil
	}

	if c.SupersededHash != "" && hashEqual(c.SupersededHash, codeHash) {
		return c, true, ErrNotFound
	}

	c.AttemptsRemaining--
	if c.AttemptsRemaining <= 0 {
		c.AttemptsRemaining = 0
		return c, false, ErrExhausted
	}

	return c, true, &MismatchError{AttemptsRemaining: c.AttemptsRemaining}
}

func hashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Delivery is handed to the delivery collaborator after a challenge is stored.
type Delivery struct {
	ChallengeID uuid.UUID
	Email       string
	Purpose     Purpose
	Code        string
	ExpiresAt   time.Time
}

func (d Delivery) Subject() string {
	if d.Purpose == PurposeOAuthBootstrap {
		return "Confirm your email to finish signing up"
	}

	return "Your sign-in code"
}

func (d Delivery) Body(now time.Time) string {
	minutes := int(math.Ceil(d.ExpiresAt.Sub(now).Minutes()))

	return fmt.Sprintf("Your verification code: %s\n\nThe code is valid for %d minutes. "+
		"If you did not request it, ignore this email.", d.Code, minutes)
}

type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// DeliveryReport is sent back by the notification service.
type DeliveryReport struct {
	ChallengeID uuid.UUID      `json:"challengeId"`
	Email       string         `json:"email"`
	Purpose     Purpose        `json:"purpose"`
	Status      DeliveryStatus `json:"status"`
	Reason      string         `json:"reason,omitempty"`
}
