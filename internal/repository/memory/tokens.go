package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/samandr77/microservices/identity/internal/entity"
)

type refreshToken struct {
	identityID uuid.UUID
	tokenHash  string
	expiresAt  time.Time
}

type RefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]refreshToken
	now    func() time.Time
}

func NewRefreshTokenStore() *RefreshTokenStore {
	return &RefreshTokenStore{
		tokens: make(map[string]refreshToken),
		now:    time.Now,
	}
}

func (s *RefreshTokenStore) Save(_ context.Context, jti string, identityID uuid.UUID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[jti]; ok {
		return entity.ErrConflict
	}

	s.tokens[jti] = refreshToken{identityID: identityID, tokenHash: hashToken(token), expiresAt: expiresAt}

	return nil
}

func (s *RefreshTokenStore) Consume(_ context.Context, jti, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[jti]
	if !ok || t.tokenHash != hashToken(token) || !t.expiresAt.After(s.now()) {
		return entity.ErrNotFound
	}

	delete(s.tokens, jti)

	return nil
}

func (s *RefreshTokenStore) Active(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[jti]
	if !ok || !t.expiresAt.After(s.now()) {
		return entity.ErrNotFound
	}

	return nil
}

func (s *RefreshTokenStore) Delete(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, jti)

	return nil
}

func (s *RefreshTokenStore) DeleteByIdentityID(_ context.Context, identityID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for jti, t := range s.tokens {
		if t.identityID == identityID {
			delete(s.tokens, jti)
		}
	}

	return nil
}

func (s *RefreshTokenStore) DeleteExpired(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64

	now := s.now()

	for jti, t := range s.tokens {
		if !t.expiresAt.After(now) {
			delete(s.tokens, jti)
			n++
		}
	}

	return n, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
