// Package memory keeps identities and challenges in process memory. It backs
// the STORE_DRIVER=memory development mode and the service tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/samandr77/microservices/identity/internal/entity"
)

type IdentityStore struct {
	mu    sync.RWMutex
	byKey map[string]entity.Identity
	now   func() time.Time
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		byKey: make(map[string]entity.Identity),
		now:   time.Now,
	}
}

func (s *IdentityStore) FindByEmail(_ context.Context, email string) (entity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byKey[entity.EmailKey(email)]
	if !ok {
		return entity.Identity{}, entity.ErrNotFound
	}

	return clone(i), nil
}

func (s *IdentityStore) Create(_ context.Context, seed entity.IdentitySeed) (entity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entity.EmailKey(seed.Email)
	if _, ok := s.byKey[key]; ok {
		return entity.Identity{}, entity.ErrConflict
	}

	now := s.now().UTC()
	i := entity.Identity{
		ID:           uuid.Must(uuid.NewV4()),
		Email:        seed.Email,
		PasswordHash: seed.PasswordHash,
		Role:         entity.RolePending,
		DisplayName:  seed.DisplayName,
		AvatarURI:    seed.AvatarURI,
		Providers:    []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if seed.Provider != "" {
		i.ProviderLinked = true
		i.Providers = []string{seed.Provider}
	}

	s.byKey[key] = i

	return clone(i), nil
}

func (s *IdentityStore) Update(_ context.Context, email string, patch entity.IdentityPatch) (entity.Identity, error) {
	return s.modify(email, func(i *entity.Identity) error {
		if patch.PasswordHash != nil {
			i.PasswordHash = ptr(*patch.PasswordHash)
		}

		if patch.DisplayName != nil {
			i.DisplayName = *patch.DisplayName
		}

		if patch.AvatarURI != nil {
			i.AvatarURI = ptr(*patch.AvatarURI)
		}

		return nil
	})
}

func (s *IdentityStore) SetRole(_ context.Context, email string, role entity.Role) (entity.RoleChange, error) {
	if !role.Valid() {
		return entity.RoleChange{}, entity.ErrInvalidRole
	}

	var prev entity.Role

	i, err := s.modify(email, func(i *entity.Identity) error {
		prev = i.Role
		i.Role = role

		at := s.now().UTC()
		i.RoleAssignedAt = &at

		return nil
	})
	if err != nil {
		return entity.RoleChange{}, err
	}

	return entity.RoleChange{Identity: i, PreviousRole: prev, ChangedAt: *i.RoleAssignedAt}, nil
}

func (s *IdentityStore) SetWallet(_ context.Context, email string, link entity.WalletLink) (entity.Identity, error) {
	return s.modify(email, func(i *entity.Identity) error {
		linkedAt := link.LinkedAt.UTC()

		i.WalletAddress = ptr(link.Address)
		i.WalletLinkedAt = &linkedAt
		i.WalletMessage = ptr(link.Message)

		return nil
	})
}

func (s *IdentityStore) AddProvider(_ context.Context, email, provider string) (entity.Identity, error) {
	return s.modify(email, func(i *entity.Identity) error {
		i.ProviderLinked = true
		if !slices.Contains(i.Providers, provider) {
			i.Providers = append(slices.Clone(i.Providers), provider)
		}

		return nil
	})
}

// Len is the number of stored identities.
func (s *IdentityStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byKey)
}

func (s *IdentityStore) modify(email string, fn func(i *entity.Identity) error) (entity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entity.EmailKey(email)

	i, ok := s.byKey[key]
	if !ok {
		return entity.Identity{}, entity.ErrNotFound
	}

	err := fn(&i)
	if err != nil {
		return entity.Identity{}, err
	}

	i.UpdatedAt = s.now().UTC()
	s.byKey[key] = i

	return clone(i), nil
}

func clone(i entity.Identity) entity.Identity {
	i.Providers = slices.Clone(i.Providers)
	return i
}

func ptr[T any](v T) *T {
	return &v
}
