// Package rediscache keeps OTP challenges in Redis hashes.
package rediscache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"

	"github.com/samandr77/microservices/identity/internal/entity"
)

const (
	keyPrefix = "otp:"

	// expiryGrace keeps an expired challenge around long enough for Consume
	// to report ErrExpired instead of ErrNotFound.
	expiryGrace = time.Minute

	fieldID             = "id"
	fieldEmail          = "email"
	fieldPurpose        = "purpose"
	fieldCodeHash       = "code_hash"
	fieldSupersededHash = "superseded_hash"
	fieldAttempts       = "attempts"
	fieldExpiresAt      = "expires_at"
	fieldCreatedAt      = "created_at"
	fieldRegID          = "registration_id"
	fieldRegPassword    = "registration_password"
	fieldRegName        = "registration_name"
)

// upsertScript replaces the hash and keeps the code hash it replaced.
// ARGV[1] is the expiry in unix milliseconds, the rest are field/value pairs.
var upsertScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[1], 'code_hash')
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
if prev then
	redis.call('HSET', KEYS[1], 'superseded_hash', prev)
end
redis.call('PEXPIREAT', KEYS[1], ARGV[1])
return 1
`)

var consumeScript = redis.NewScript(`
local h = redis.call('HMGET', KEYS[1], 'code_hash', 'attempts', 'expires_at', 'superseded_hash')
if not h[1] then
	return {'not_found', 0}
end
if tonumber(ARGV[2]) > tonumber(h[3]) then
	redis.call('DEL', KEYS[1])
	return {'expired', 0}
end
if h[1] == ARGV[1] then
	local all = redis.call('HGETALL', KEYS[1])
	redis.call('DEL', KEYS[1])
	return {'ok', 0, all}
end
if h[4] == ARGV[1] then
	return {'not_found', 0}
end
local n = tonumber(h[2]) - 1
if n <= 0 then
	redis.call('DEL', KEYS[1])
	return {'exhausted', 0}
end
redis.call('HSET', KEYS[1], 'attempts', n)
return {'mismatch', n}
`)

var deleteIfIDScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type ChallengeStore struct {
	client *redis.Client
}

func NewChallengeStore(client *redis.Client) *ChallengeStore {
	return &ChallengeStore{client: client}
}

func key(email string, purpose entity.Purpose) string {
	return keyPrefix + entity.EmailKey(email) + ":" + string(purpose)
}

// Upsert replaces the whole hash in one script so readers never see a mix of
// the old and the new challenge.
func (s *ChallengeStore) Upsert(ctx context.Context, c entity.Challenge) error {
	args := []any{
		c.ExpiresAt.Add(expiryGrace).UnixMilli(),
		fieldID, c.ID.String(),
		fieldEmail, c.Email,
		fieldPurpose, string(c.Purpose),
		fieldCodeHash, c.CodeHash,
		fieldAttempts, c.AttemptsRemaining,
		fieldExpiresAt, c.ExpiresAt.UnixMilli(),
		fieldCreatedAt, c.CreatedAt.UnixMilli(),
	}

	if reg := c.Registration; reg != nil {
		args = append(args,
			fieldRegID, reg.ID.String(),
			fieldRegPassword, reg.PasswordHash,
			fieldRegName, reg.DisplayName,
		)
	}

	err := upsertScript.Run(ctx, s.client, []string{key(c.Email, c.Purpose)}, args...).Err()
	if err != nil {
		return fmt.Errorf("redis upsert: %w", err)
	}

	return nil
}

func (s *ChallengeStore) Get(ctx context.Context, email string, purpose entity.Purpose) (entity.Challenge, error) {
	h, err := s.client.HGetAll(ctx, key(email, purpose)).Result()
	if err != nil {
		return entity.Challenge{}, fmt.Errorf("redis get: %w", err)
	}

	if len(h) == 0 {
		return entity.Challenge{}, entity.ErrNotFound
	}

	return parseChallenge(h)
}

func (s *ChallengeStore) Consume(
	ctx context.Context,
	email string,
	purpose entity.Purpose,
	codeHash string,
	now time.Time,
) (entity.Challenge, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{key(email, purpose)}, codeHash, now.UnixMilli()).Slice()
	if err != nil {
		return entity.Challenge{}, fmt.Errorf("redis consume: %w", err)
	}

	if len(res) < 2 {
		return entity.Challenge{}, fmt.Errorf("redis consume: unexpected reply %v", res)
	}

	status, _ := res[0].(string)
	remaining, _ := res[1].(int64)

	switch status {
	case "ok":
		if len(res) != 3 {
			return entity.Challenge{}, fmt.Errorf("redis consume: unexpected reply %v", res)
		}

		return parseChallenge(pairs(res[2]))
	case "not_found":
		return entity.Challenge{}, entity.ErrNotFound
	case "expired":
		return entity.Challenge{}, entity.ErrExpired
	case "exhausted":
		return entity.Challenge{}, entity.ErrExhausted
	case "mismatch":
		return entity.Challenge{}, &entity.MismatchError{AttemptsRemaining: int(remaining)}
	default:
		return entity.Challenge{}, fmt.Errorf("redis consume: unexpected status %q", status)
	}
}

// pairs turns an HGETALL reply returned from a script into a field map.
func pairs(v any) map[string]string {
	flat, _ := v.([]any)
	h := make(map[string]string, len(flat)/2)

	for i := 0; i+1 < len(flat); i += 2 {
		field, _ := flat[i].(string)
		value, _ := flat[i+1].(string)
		h[field] = value
	}

	return h
}

func (s *ChallengeStore) DeleteIfID(ctx context.Context, email string, purpose entity.Purpose, id uuid.UUID) error {
	n, err := deleteIfIDScript.Run(ctx, s.client, []string{key(email, purpose)}, id.String()).Int64()
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}

	if n == 0 {
		return entity.ErrNotFound
	}

	return nil
}

// DeleteExpired is a no-op: keys carry their own expiry.
func (s *ChallengeStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func parseChallenge(h map[string]string) (entity.Challenge, error) {
	id, err := uuid.FromString(h[fieldID])
	if err != nil {
		return entity.Challenge{}, fmt.Errorf("parse id: %w", err)
	}

	attempts, err := strconv.Atoi(h[fieldAttempts])
	if err != nil {
		return entity.Challenge{}, fmt.Errorf("parse attempts: %w", err)
	}

	expiresAt, err := parseMillis(h[fieldExpiresAt])
	if err != nil {
		return entity.Challenge{}, fmt.Errorf("parse expires_at: %w", err)
	}

	createdAt, err := parseMillis(h[fieldCreatedAt])
	if err != nil {
		return entity.Challenge{}, fmt.Errorf("parse created_at: %w", err)
	}

	purpose, err := entity.ParsePurpose(h[fieldPurpose])
	if err != nil {
		return entity.Challenge{}, fmt.Errorf("parse purpose: %w", err)
	}

	c := entity.Challenge{
		ID:                id,
		Email:             h[fieldEmail],
		Purpose:           purpose,
		CodeHash:          h[fieldCodeHash],
		SupersededHash:    h[fieldSupersededHash],
		AttemptsRemaining: attempts,
		ExpiresAt:         expiresAt,
		CreatedAt:         createdAt,
	}

	if raw, ok := h[fieldRegID]; ok {
		regID, err := uuid.FromString(raw)
		if err != nil {
			return entity.Challenge{}, fmt.Errorf("parse registration_id: %w", err)
		}

		c.Registration = &entity.Registration{
			ID:           regID,
			PasswordHash: h[fieldRegPassword],
			DisplayName:  h[fieldRegName],
		}
	}

	return c, nil
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	return time.UnixMilli(ms), nil
}
