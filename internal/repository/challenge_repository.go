package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samandr77/microservices/identity/internal/entity"
)

type ChallengeRepository struct {
	db *pgxpool.Pool
}

func NewChallengeRepository(db *pgxpool.Pool) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

const challengeColumns = `id, email, purpose, code_hash, superseded_hash,
	registration_id, registration_password, registration_name,
	attempts_remaining, expires_at, created_at`

// Upsert replaces the challenge for (email, purpose) in a single statement so
// there is no moment without a live challenge. The replaced code hash is kept
// as superseded_hash.
func (r *ChallengeRepository) Upsert(ctx context.Context, c entity.Challenge) error {
	q := `
	INSERT INTO otp_challenges (id, email_key, email, purpose, code_hash, superseded_hash,
		registration_id, registration_password, registration_name,
		attempts_remaining, expires_at, created_at)
	VALUES ($1, $2, $3, $4, $5, '', $6, $7, $8, $9, $10, $11)
	ON CONFLICT (email_key, purpose) DO UPDATE SET
		id = EXCLUDED.id,
		email = EXCLUDED.email,
		superseded_hash = otp_challenges.code_hash,
		code_hash = EXCLUDED.code_hash,
		registration_id = EXCLUDED.registration_id,
		registration_password = EXCLUDED.registration_password,
		registration_name = EXCLUDED.registration_name,
		attempts_remaining = EXCLUDED.attempts_remaining,
		expires_at = EXCLUDED.expires_at,
		created_at = EXCLUDED.created_at`

	var (
		regID       *uuid.UUID
		regPassword *string
		regName     *string
	)

	if reg := c.Registration; reg != nil {
		regID, regPassword, regName = &reg.ID, &reg.PasswordHash, &reg.DisplayName
	}

	_, err := r.db.Exec(ctx, q,
		c.ID, entity.EmailKey(c.Email), c.Email, c.Purpose, c.CodeHash,
		regID, regPassword, regName,
		c.AttemptsRemaining, c.ExpiresAt, c.CreatedAt,
	)
	if err != nil {
		return err
	}

	return nil
}

func (r *ChallengeRepository) Get(ctx context.Context, email string, purpose entity.Purpose) (entity.Challenge, error) {
	q := `SELECT ` + challengeColumns + `
	FROM otp_challenges
	WHERE email_key = $1 AND purpose = $2`

	return scanChallenge(r.db.QueryRow(ctx, q, entity.EmailKey(email), purpose))
}

// Consume locks the challenge row, applies one attempt and writes the result
// back in the same transaction.
func (r *ChallengeRepository) Consume(
	ctx context.Context,
	email string,
	purpose entity.Purpose,
	codeHash string,
	now time.Time,
) (entity.Challenge, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return entity.Challenge{}, fmt.Errorf("begin tx: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck

	key := entity.EmailKey(email)

	q := `SELECT ` + challengeColumns + `
	FROM otp_challenges
	WHERE email_key = $1 AND purpose = $2
	FOR UPDATE`

	c, err := scanChallenge(tx.QueryRow(ctx, q, key, purpose))
	if err != nil {
		return entity.Challenge{}, err
	}

	next, keep, outcome := c.Check(codeHash, now)

	if keep {
		_, err = tx.Exec(ctx,
			`UPDATE otp_challenges SET attempts_remaining = $3 WHERE email_key = $1 AND purpose = $2`,
			key, purpose, next.AttemptsRemaining,
		)
	} else {
		_, err = tx.Exec(ctx, `DELETE FROM otp_challenges WHERE email_key = $1 AND purpose = $2`, key, purpose)
	}

	if err != nil {
		return entity.Challenge{}, fmt.Errorf("write challenge: %w", err)
	}

	err = tx.Commit(ctx)
	if err != nil {
		return entity.Challenge{}, fmt.Errorf("commit tx: %w", err)
	}

	if outcome != nil {
		return entity.Challenge{}, outcome
	}

	return c, nil
}

func (r *ChallengeRepository) DeleteIfID(ctx context.Context, email string, purpose entity.Purpose, id uuid.UUID) error {
	q := `DELETE FROM otp_challenges WHERE email_key = $1 AND purpose = $2 AND id = $3`

	result, err := r.db.Exec(ctx, q, entity.EmailKey(email), purpose, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return entity.ErrNotFound
	}

	return nil
}

func (r *ChallengeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}

func scanChallenge(row pgx.Row) (entity.Challenge, error) {
	var (
		c           entity.Challenge
		purpose     string
		regID       *uuid.UUID
		regPassword *string
		regName     *string
	)

	err := row.Scan(
		&c.ID, &c.Email, &purpose, &c.CodeHash, &c.SupersededHash,
		&regID, &regPassword, &regName,
		&c.AttemptsRemaining, &c.ExpiresAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.Challenge{}, entity.ErrNotFound
		}

		return entity.Challenge{}, err
	}

	c.Purpose = entity.Purpose(purpose)

	if regID != nil && regPassword != nil {
		c.Registration = &entity.Registration{ID: *regID, PasswordHash: *regPassword}
		if regName != nil {
			c.Registration.DisplayName = *regName
		}
	}

	return c, nil
}
