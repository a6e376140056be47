package memory

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/samandr77/microservices/identity/internal/entity"
)

type challengeKey struct {
	email   string
	purpose entity.Purpose
}

type ChallengeStore struct {
	mu         sync.Mutex
	challenges map[challengeKey]entity.Challenge
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{
		challenges: make(map[challengeKey]entity.Challenge),
	}
}

func keyOf(email string, purpose entity.Purpose) challengeKey {
	return challengeKey{email: entity.EmailKey(email), purpose: purpose}
}

func (s *ChallengeStore) Upsert(_ context.Context, c entity.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(c.Email, c.Purpose)

	c.SupersededHash = ""
	if prev, ok := s.challenges[key]; ok {
		c.SupersededHash = prev.CodeHash
	}

	s.challenges[key] = c

	return nil
}

func (s *ChallengeStore) Get(_ context.Context, email string, purpose entity.Purpose) (entity.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[keyOf(email, purpose)]
	if !ok {
		return entity.Challenge{}, entity.ErrNotFound
	}

	return c, nil
}

func (s *ChallengeStore) Consume(
	_ context.Context,
	email string,
	purpose entity.Purpose,
	codeHash string,
	now time.Time,
) (entity.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(email, purpose)

	c, ok := s.challenges[key]
	if !ok {
		return entity.Challenge{}, entity.ErrNotFound
	}

	next, keep, outcome := c.Check(codeHash, now)
	if keep {
		s.challenges[key] = next
	} else {
		delete(s.challenges, key)
	}

	if outcome != nil {
		return entity.Challenge{}, outcome
	}

	return c, nil
}

func (s *ChallengeStore) DeleteIfID(_ context.Context, email string, purpose entity.Purpose, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(email, purpose)

	c, ok := s.challenges[key]
	if !ok || c.ID != id {
		return entity.ErrNotFound
	}

	delete(s.challenges, key)

	return nil
}

func (s *ChallengeStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64

	for k, c := range s.challenges {
		if c.Expired(now) {
			delete(s.challenges, k)
			n++
		}
	}

	return n, nil
}
