package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/internal/repository"
)

type IdentityRepositoryTestSuite struct {
	suite.Suite
	repo *repository.IdentityRepository
}

func (ts *IdentityRepositoryTestSuite) SetupTest() {
	ts.repo = repository.NewIdentityRepository(repository.SetupTestDatabase(ts.T()))
}

func TestIdentityRepositoryTestSuite(t *testing.T) { //nolint:paralleltest
	suite.Run(t, new(IdentityRepositoryTestSuite))
}

func (ts *IdentityRepositoryTestSuite) TestCreate() {
	ctx := context.Background()
	hash := "$2a$10$hash"

	created, err := ts.repo.Create(ctx, entity.IdentitySeed{
		Email:        "Worker@Example.com",
		PasswordHash: &hash,
		DisplayName:  "Worker",
	})
	ts.Require().NoError(err)
	ts.Require().Equal("Worker@Example.com", created.Email)
	ts.Require().Equal(entity.RolePending, created.Role)
	ts.Require().True(created.HasPassword())
	ts.Require().False(created.ProviderLinked)
	ts.Require().Empty(created.Providers)

	ts.Run("conflict on same email in another case", func() {
		_, err := ts.repo.Create(ctx, entity.IdentitySeed{Email: "worker@EXAMPLE.com"})
		ts.Require().ErrorIs(err, entity.ErrConflict)
	})

	ts.Run("find ignores case", func() {
		found, err := ts.repo.FindByEmail(ctx, "WORKER@example.com")
		ts.Require().NoError(err)
		ts.Require().Equal(created.ID, found.ID)
	})
}

func (ts *IdentityRepositoryTestSuite) TestCreateFederated() {
	ctx := context.Background()
	avatar := "https://avatars.example.com/u/1"

	created, err := ts.repo.Create(ctx, entity.IdentitySeed{
		Email:       "fed@example.com",
		DisplayName: "Fed",
		AvatarURI:   &avatar,
		Provider:    "google",
	})
	ts.Require().NoError(err)
	ts.Require().False(created.HasPassword())
	ts.Require().True(created.ProviderLinked)
	ts.Require().Equal([]string{"google"}, created.Providers)

	i, err := ts.repo.AddProvider(ctx, "fed@example.com", "github")
	ts.Require().NoError(err)
	ts.Require().Equal([]string{"google", "github"}, i.Providers)

	i, err = ts.repo.AddProvider(ctx, "fed@example.com", "github")
	ts.Require().NoError(err)
	ts.Require().Equal([]string{"google", "github"}, i.Providers)
}

func (ts *IdentityRepositoryTestSuite) TestUpdate() {
	ctx := context.Background()
	avatar := "https://cdn.example.com/a.png"

	_, err := ts.repo.Create(ctx, entity.IdentitySeed{Email: "a@example.com", DisplayName: "A", AvatarURI: &avatar})
	ts.Require().NoError(err)

	ts.Run("omitted fields untouched", func() {
		name := "Anna"

		updated, err := ts.repo.Update(ctx, "a@example.com", entity.IdentityPatch{DisplayName: &name})
		ts.Require().NoError(err)
		ts.Require().Equal("Anna", updated.DisplayName)
		ts.Require().NotNil(updated.AvatarURI)
		ts.Require().Equal(avatar, *updated.AvatarURI)
		ts.Require().Nil(updated.PasswordHash)
	})

	ts.Run("empty patch reads the row", func() {
		updated, err := ts.repo.Update(ctx, "a@example.com", entity.IdentityPatch{})
		ts.Require().NoError(err)
		ts.Require().Equal("Anna", updated.DisplayName)
	})

	ts.Run("missing identity", func() {
		name := "Ghost"

		_, err := ts.repo.Update(ctx, "ghost@example.com", entity.IdentityPatch{DisplayName: &name})
		ts.Require().ErrorIs(err, entity.ErrNotFound)
	})
}

func (ts *IdentityRepositoryTestSuite) TestSetRole() {
	ctx := context.Background()

	_, err := ts.repo.Create(ctx, entity.IdentitySeed{Email: "r@example.com"})
	ts.Require().NoError(err)

	change, err := ts.repo.SetRole(ctx, "R@example.com", entity.RoleFreelancer)
	ts.Require().NoError(err)
	ts.Require().Equal(entity.RolePending, change.PreviousRole)
	ts.Require().Equal(entity.RoleFreelancer, change.Identity.Role)
	ts.Require().NotNil(change.Identity.RoleAssignedAt)

	change, err = ts.repo.SetRole(ctx, "r@example.com", entity.RoleClient)
	ts.Require().NoError(err)
	ts.Require().True(change.IsOverride())

	_, err = ts.repo.SetRole(ctx, "nobody@example.com", entity.RoleClient)
	ts.Require().ErrorIs(err, entity.ErrNotFound)
}

func (ts *IdentityRepositoryTestSuite) TestSetWallet() {
	ctx := context.Background()

	_, err := ts.repo.Create(ctx, entity.IdentitySeed{Email: "w@example.com"})
	ts.Require().NoError(err)

	first := time.Now().Add(-time.Minute)

	_, err = ts.repo.SetWallet(ctx, "w@example.com", entity.WalletLink{Address: "0xaaa", LinkedAt: first, Message: "one"})
	ts.Require().NoError(err)

	i, err := ts.repo.SetWallet(ctx, "w@example.com", entity.WalletLink{Address: "0xbbb", LinkedAt: time.Now(), Message: "two"})
	ts.Require().NoError(err)
	ts.Require().Equal("0xbbb", *i.WalletAddress)
	ts.Require().Equal("two", *i.WalletMessage)
	ts.Require().True(i.WalletLinkedAt.After(first))

	_, err = ts.repo.SetWallet(ctx, "nobody@example.com", entity.WalletLink{Address: "0xccc", LinkedAt: time.Now()})
	ts.Require().ErrorIs(err, entity.ErrNotFound)
}
