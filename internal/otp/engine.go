// Package otp issues and checks the one-time codes of the sign-in step-up.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/internal/retryable"
)

const (
	maxCodeValue = 1000000

	DefaultTTL      = 10 * time.Minute
	DefaultAttempts = 5
)

//go:generate go run go.uber.org/mock/mockgen@latest -source=engine.go -destination=../mocks/otp.go -package=mocks

// ChallengeStore keeps at most one challenge per (email, purpose). Upsert and
// Consume must be atomic per key. Upsert records the code hash of the
// challenge it replaces as SupersededHash; Consume returns the removed
// challenge when the code matched.
type ChallengeStore interface {
	Upsert(ctx context.Context, c entity.Challenge) error
	Get(ctx context.Context, email string, purpose entity.Purpose) (entity.Challenge, error)
	Consume(
		ctx context.Context,
		email string,
		purpose entity.Purpose,
		codeHash string,
		now time.Time,
	) (entity.Challenge, error)
	DeleteIfID(ctx context.Context, email string, purpose entity.Purpose, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, d entity.Delivery) error
}

type Config struct {
	TTL      time.Duration
	Attempts int
	Now      func() time.Time
}

type Engine struct {
	store     ChallengeStore
	deliverer Deliverer
	ttl       time.Duration
	attempts  int
	now       func() time.Time
}

func New(store ChallengeStore, deliverer Deliverer, cfg Config) *Engine {
	e := &Engine{
		store:     store,
		deliverer: deliverer,
		ttl:       cfg.TTL,
		attempts:  cfg.Attempts,
		now:       cfg.Now,
	}

	if e.ttl <= 0 {
		e.ttl = DefaultTTL
	}

	if e.attempts <= 0 {
		e.attempts = DefaultAttempts
	}

	if e.now == nil {
		e.now = time.Now
	}

	return e
}

// Send replaces the live challenge for (email, purpose) with a fresh code and
// hands the code to the deliverer. When delivery fails the new challenge is
// removed again and ErrDeliveryFailed is returned.
func (e *Engine) Send(ctx context.Context, email string, purpose entity.Purpose) (entity.Challenge, error) {
	return e.send(ctx, email, purpose, nil)
}

// SendRegistration is Send for a password sign-up; the registration travels
// with the challenge until its code is verified.
func (e *Engine) SendRegistration(
	ctx context.Context,
	email string,
	purpose entity.Purpose,
	reg entity.Registration,
) (entity.Challenge, error) {
	return e.send(ctx, email, purpose, &reg)
}

func (e *Engine) send(
	ctx context.Context,
	email string,
	purpose entity.Purpose,
	reg *entity.Registration,
) (entity.Challenge, error) {
	if !purpose.Valid() {
		return entity.Challenge{}, entity.ErrInvalidPurpose
	}

	code, err := GenerateCode()
	if err != nil {
		return entity.Challenge{}, fmt.Errorf("generate code: %w", err)
	}

	now := e.now()
	c := entity.Challenge{
		ID:                uuid.Must(uuid.NewV4()),
		Email:             email,
		Purpose:           purpose,
		CodeHash:          HashCode(email, purpose, code),
		Registration:      reg,
		AttemptsRemaining: e.attempts,
		ExpiresAt:         now.Add(e.ttl),
		CreatedAt:         now,
	}

	err = retryable.Once(ctx, func(ctx context.Context) error {
		return e.store.Upsert(ctx, c)
	})
	if err != nil {
		return entity.Challenge{}, fmt.Errorf("upsert challenge: %w", err)
	}

	err = e.deliverer.Deliver(ctx, entity.Delivery{
		ChallengeID: c.ID,
		Email:       email,
		Purpose:     purpose,
		Code:        code,
		ExpiresAt:   c.ExpiresAt,
	})
	if err != nil {
		slog.ErrorContext(ctx, "otp delivery failed", "email", email, "purpose", purpose, "error", err)

		rbErr := e.Rollback(ctx, email, purpose, c.ID)
		if rbErr != nil {
			slog.ErrorContext(ctx, "otp rollback failed", "email", email, "purpose", purpose, "error", rbErr)
		}

		return entity.Challenge{}, fmt.Errorf("%w: %w", entity.ErrDeliveryFailed, err)
	}

	slog.InfoContext(ctx, "otp challenge sent", "email", email, "purpose", purpose, "challenge_id", c.ID)

	return c, nil
}

// Verify consumes one attempt of the live challenge. A matching code removes
// the challenge so it can be used only once, and the removed challenge is
// returned.
func (e *Engine) Verify(ctx context.Context, email string, purpose entity.Purpose, code string) (entity.Challenge, error) {
	if !purpose.Valid() {
		return entity.Challenge{}, entity.ErrInvalidPurpose
	}

	c, err := e.store.Consume(ctx, email, purpose, HashCode(email, purpose, code), e.now())

	var mismatch *entity.MismatchError

	switch {
	case err == nil:
		slog.InfoContext(ctx, "otp challenge verified", "email", email, "purpose", purpose)
		return c, nil
	case errors.As(err, &mismatch):
		slog.WarnContext(ctx, "otp code mismatch", "email", email, "purpose", purpose,
			"attempts_remaining", mismatch.AttemptsRemaining)

		return entity.Challenge{}, err
	case errors.Is(err, entity.ErrExhausted), errors.Is(err, entity.ErrExpired):
		slog.WarnContext(ctx, "otp challenge purged", "email", email, "purpose", purpose, "reason", err.Error())
		return entity.Challenge{}, err
	case errors.Is(err, entity.ErrNotFound):
		return entity.Challenge{}, err
	default:
		return entity.Challenge{}, fmt.Errorf("consume challenge: %w", err)
	}
}

// Current returns the live challenge, used by callers enforcing a resend cooldown.
func (e *Engine) Current(ctx context.Context, email string, purpose entity.Purpose) (entity.Challenge, error) {
	c, err := retryable.Value(ctx, func(ctx context.Context) (entity.Challenge, error) {
		return e.store.Get(ctx, email, purpose)
	})
	if err != nil {
		return entity.Challenge{}, fmt.Errorf("get challenge: %w", err)
	}

	return c, nil
}

// Rollback removes the challenge only if it is still the one identified by id.
func (e *Engine) Rollback(ctx context.Context, email string, purpose entity.Purpose, id uuid.UUID) error {
	err := retryable.Once(ctx, func(ctx context.Context) error {
		return e.store.DeleteIfID(ctx, email, purpose, id)
	})
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return fmt.Errorf("delete challenge: %w", err)
	}

	return nil
}

// HandleDeliveryReport rolls back challenges the notification service failed to deliver.
func (e *Engine) HandleDeliveryReport(ctx context.Context, r entity.DeliveryReport) error {
	if r.Status != entity.DeliveryStatusFailed {
		return nil
	}

	slog.WarnContext(ctx, "otp delivery reported failed", "email", r.Email, "purpose", r.Purpose,
		"challenge_id", r.ChallengeID, "reason", r.Reason)

	return e.Rollback(ctx, r.Email, r.Purpose, r.ChallengeID)
}

func (e *Engine) Purge(ctx context.Context) error {
	n, err := e.store.DeleteExpired(ctx, e.now())
	if err != nil {
		return fmt.Errorf("delete expired challenges: %w", err)
	}

	slog.DebugContext(ctx, "expired challenges purged", "count", n)

	return nil
}

func (e *Engine) TTL() time.Duration {
	return e.ttl
}

// GenerateCode returns a uniformly random 6 digit code, leading zeros included.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxCodeValue))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%06d", n.Int64()), nil
}

// HashCode binds a code to its email and purpose so a code issued for one
// purpose never matches another.
func HashCode(email string, purpose entity.Purpose, code string) string {
	sum := sha256.Sum256([]byte(entity.EmailKey(email) + "|" + string(purpose) + "|" + code))
	return hex.EncodeToString(sum[:])
}
