package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/pkg/logger"
)

// dummyHash keeps the login timing of unknown emails close to that of wrong passwords.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	return h
})

// Register starts a password sign-up. Nothing is written to the identity
// store until the code sent here is verified: a federated identity without a
// password then gets the password attached and keeps its role, and an
// identity that already has one is a conflict.
func (s *Service) Register(ctx context.Context, email, password, name string) (entity.StepUp, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return entity.StepUp{}, err
	}

	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return entity.StepUp{}, err
	}

	if err := ValidatePassword(password); err != nil {
		return entity.StepUp{}, err
	}

	existing, err := s.findIdentity(ctx, email)

	switch {
	case err == nil:
		if existing.HasPassword() {
			return entity.StepUp{}, fmt.Errorf("password already set: %w", entity.ErrConflict)
		}

		email = existing.Email
	case errors.Is(err, entity.ErrNotFound):
	default:
		return entity.StepUp{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return entity.StepUp{}, fmt.Errorf("hash password: %w", err)
	}

	reg := entity.Registration{
		ID:           uuid.Must(uuid.NewV4()),
		PasswordHash: string(hash),
		DisplayName:  name,
	}

	return s.startStepUp(ctx, email, entity.PurposeLogin, "", &reg)
}

// completeRegistration writes a verified sign-up: a new identity, or the
// password attached to an identity that has none.
func (s *Service) completeRegistration(ctx context.Context, email string, reg entity.Registration) error {
	existing, err := s.findIdentity(ctx, email)

	switch {
	case err == nil:
	case errors.Is(err, entity.ErrNotFound):
		created, err := s.identities.Create(ctx, entity.IdentitySeed{
			Email:        email,
			PasswordHash: &reg.PasswordHash,
			DisplayName:  reg.DisplayName,
		})
		if err == nil {
			slog.InfoContext(ctx, "identity registered", "email", created.Email, "user_id", created.ID)
			return nil
		}

		if !errors.Is(err, entity.ErrConflict) {
			return fmt.Errorf("create identity: %w", err)
		}

		existing, err = s.findIdentity(ctx, email)
		if err != nil {
			return err
		}
	default:
		return err
	}

	if existing.HasPassword() {
		return fmt.Errorf("password already set: %w", entity.ErrConflict)
	}

	patch := entity.IdentityPatch{PasswordHash: &reg.PasswordHash}
	if existing.DisplayName == "" {
		patch.DisplayName = &reg.DisplayName
	}

	i, err := s.updateIdentity(ctx, existing.Email, patch)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "password attached to identity", "email", i.Email, "user_id", i.ID, "role", i.Role)

	return nil
}

// Login checks the password and starts the OTP step-up. No session token is
// issued here.
func (s *Service) Login(ctx context.Context, email, password string) (entity.StepUp, error) {
	email = strings.TrimSpace(email)

	i, err := s.findIdentity(ctx, email)
	if err != nil {
		if !errors.Is(err, entity.ErrNotFound) {
			return entity.StepUp{}, err
		}

		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))

		return entity.StepUp{}, s.loginFailed(ctx, email, "unknown email")
	}

	if !i.HasPassword() {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return entity.StepUp{}, s.loginFailed(ctx, email, "no password credential")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*i.PasswordHash), []byte(password)); err != nil {
		return entity.StepUp{}, s.loginFailed(ctx, email, "wrong password")
	}

	return s.startStepUp(ctx, i.Email, entity.PurposeLogin, "", nil)
}

func (s *Service) loginFailed(ctx context.Context, email, reason string) error {
	ctx = logger.SetLogType(ctx, logger.LogTypeSecurity)
	slog.WarnContext(ctx, "login failed", "email", email, "reason", reason)

	return entity.ErrInvalidCredentials
}
