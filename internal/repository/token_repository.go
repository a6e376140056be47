package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samandr77/microservices/identity/internal/entity"
)

type RefreshTokenRepository struct {
	db *pgxpool.Pool
}

func NewRefreshTokenRepository(db *pgxpool.Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Save(ctx context.Context, jti string, identityID uuid.UUID, token string, expiresAt time.Time) error {
	q := `INSERT INTO refresh_tokens (jti, identity_id, token_hash, expires_at) VALUES ($1, $2, $3, $4)`

	_, err := r.db.Exec(ctx, q, jti, identityID, hashToken(token), expiresAt)
	if err != nil {
		return err
	}

	return nil
}

// Consume deletes the refresh token and fails with ErrNotFound if it was
// already used, revoked or expired.
func (r *RefreshTokenRepository) Consume(ctx context.Context, jti, token string) error {
	q := `DELETE FROM refresh_tokens WHERE jti = $1 AND token_hash = $2 AND expires_at > NOW()`

	result, err := r.db.Exec(ctx, q, jti, hashToken(token))
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return entity.ErrNotFound
	}

	return nil
}

// Active reports ErrNotFound when the session identified by jti was revoked.
func (r *RefreshTokenRepository) Active(ctx context.Context, jti string) error {
	var exists bool

	q := `SELECT EXISTS(SELECT 1 FROM refresh_tokens WHERE jti = $1 AND expires_at > NOW())`

	err := r.db.QueryRow(ctx, q, jti).Scan(&exists)
	if err != nil {
		return err
	}

	if !exists {
		return entity.ErrNotFound
	}

	return nil
}

func (r *RefreshTokenRepository) Delete(ctx context.Context, jti string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE jti = $1`, jti)
	if err != nil {
		return err
	}

	return nil
}

func (r *RefreshTokenRepository) DeleteByIdentityID(ctx context.Context, identityID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE identity_id = $1`, identityID)
	if err != nil {
		return err
	}

	return nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
