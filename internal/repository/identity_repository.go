package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/gofrs/uuid/v5"
	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samandr77/microservices/identity/internal/entity"
)

const uniqueViolationCode = "23505"

var identityColumns = []string{
	"id", "email", "password_hash", "role", "display_name", "avatar_uri", "provider_linked", "providers",
	"wallet_address", "wallet_linked_at", "wallet_message", "role_assigned_at", "created_at", "updated_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type IdentityRepository struct {
	db *pgxpool.Pool
}

func NewIdentityRepository(db *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func columns(alias string) string {
	if alias == "" {
		return strings.Join(identityColumns, ", ")
	}

	qualified := make([]string, len(identityColumns))
	for i, c := range identityColumns {
		qualified[i] = alias + "." + c
	}

	return strings.Join(qualified, ", ")
}

func identityDest(i *entity.Identity, role *string) []any {
	return []any{
		&i.ID, &i.Email, &i.PasswordHash, role, &i.DisplayName, &i.AvatarURI, &i.ProviderLinked, &i.Providers,
		&i.WalletAddress, &i.WalletLinkedAt, &i.WalletMessage, &i.RoleAssignedAt, &i.CreatedAt, &i.UpdatedAt,
	}
}

func scanIdentity(row pgx.Row, extra ...any) (entity.Identity, error) {
	var (
		i    entity.Identity
		role string
	)

	err := row.Scan(append(extra, identityDest(&i, &role)...)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.Identity{}, entity.ErrNotFound
		}

		return entity.Identity{}, err
	}

	i.Role, err = entity.ParseRole(role)
	if err != nil {
		return entity.Identity{}, fmt.Errorf("stored role %q: %w", role, err)
	}

	return i, nil
}

func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (entity.Identity, error) {
	q := `SELECT ` + columns("") + ` FROM identities WHERE LOWER(email) = LOWER($1)`

	return scanIdentity(r.db.QueryRow(ctx, q, strings.TrimSpace(email)))
}

func (r *IdentityRepository) Create(ctx context.Context, seed entity.IdentitySeed) (entity.Identity, error) {
	providers := []string{}
	if seed.Provider != "" {
		providers = append(providers, seed.Provider)
	}

	q, args, err := psql.Insert("identities").
		Columns("id", "email", "password_hash", "role", "display_name", "avatar_uri", "provider_linked", "providers").
		Values(
			uuid.Must(uuid.NewV4()), strings.TrimSpace(seed.Email), seed.PasswordHash, entity.RolePending,
			seed.DisplayName, seed.AvatarURI, seed.Provider != "", providers,
		).
		Suffix("RETURNING " + columns("")).
		ToSql()
	if err != nil {
		return entity.Identity{}, fmt.Errorf("build query: %w", err)
	}

	i, err := scanIdentity(r.db.QueryRow(ctx, q, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return entity.Identity{}, entity.ErrConflict
		}

		return entity.Identity{}, err
	}

	return i, nil
}

// Update writes only the fields set in patch.
func (r *IdentityRepository) Update(ctx context.Context, email string, patch entity.IdentityPatch) (entity.Identity, error) {
	if patch.IsEmpty() {
		return r.FindByEmail(ctx, email)
	}

	b := psql.Update("identities").
		Set("updated_at", sq.Expr("NOW()")).
		Where("LOWER(email) = LOWER(?)", strings.TrimSpace(email)).
		Suffix("RETURNING " + columns(""))

	if patch.PasswordHash != nil {
		b = b.Set("password_hash", *patch.PasswordHash)
	}

	if patch.DisplayName != nil {
		b = b.Set("display_name", *patch.DisplayName)
	}

	if patch.AvatarURI != nil {
		b = b.Set("avatar_uri", *patch.AvatarURI)
	}

	q, args, err := b.ToSql()
	if err != nil {
		return entity.Identity{}, fmt.Errorf("build query: %w", err)
	}

	return scanIdentity(r.db.QueryRow(ctx, q, args...))
}

// SetRole changes the role in one statement and reports the role it replaced.
func (r *IdentityRepository) SetRole(ctx context.Context, email string, role entity.Role) (entity.RoleChange, error) {
	if !role.Valid() {
		return entity.RoleChange{}, entity.ErrInvalidRole
	}

	q := `
	UPDATE identities AS i
	SET role = $2, role_assigned_at = NOW(), updated_at = NOW()
	FROM (
		SELECT id, role FROM identities WHERE LOWER(email) = LOWER($1) FOR UPDATE
	) AS prev
	WHERE i.id = prev.id
	RETURNING prev.role, ` + columns("i")

	var prev string

	i, err := scanIdentity(r.db.QueryRow(ctx, q, strings.TrimSpace(email), role), &prev)
	if err != nil {
		return entity.RoleChange{}, err
	}

	prevRole, err := entity.ParseRole(prev)
	if err != nil {
		return entity.RoleChange{}, fmt.Errorf("stored role %q: %w", prev, err)
	}

	change := entity.RoleChange{Identity: i, PreviousRole: prevRole}
	if i.RoleAssignedAt != nil {
		change.ChangedAt = *i.RoleAssignedAt
	}

	return change, nil
}

func (r *IdentityRepository) SetWallet(ctx context.Context, email string, link entity.WalletLink) (entity.Identity, error) {
	q, args, err := psql.Update("identities").
		SetMap(map[string]any{
			"wallet_address":   link.Address,
			"wallet_linked_at": link.LinkedAt,
			"wallet_message":   link.Message,
			"updated_at":       sq.Expr("NOW()"),
		}).
		Where("LOWER(email) = LOWER(?)", strings.TrimSpace(email)).
		Suffix("RETURNING " + columns("")).
		ToSql()
	if err != nil {
		return entity.Identity{}, fmt.Errorf("build query: %w", err)
	}

	return scanIdentity(r.db.QueryRow(ctx, q, args...))
}

func (r *IdentityRepository) AddProvider(ctx context.Context, email, provider string) (entity.Identity, error) {
	q := `
	UPDATE identities
	SET provider_linked = TRUE,
		providers = CASE WHEN $2::TEXT = ANY(providers) THEN providers ELSE array_append(providers, $2::TEXT) END,
		updated_at = NOW()
	WHERE LOWER(email) = LOWER($1)
	RETURNING ` + columns("")

	return scanIdentity(r.db.QueryRow(ctx, q, strings.TrimSpace(email), provider))
}
