package entity

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

type Identity struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	PasswordHash   *string    `json:"-"`
	Role           Role       `json:"role"`
	DisplayName    string     `json:"displayName"`
	AvatarURI      *string    `json:"avatarUri,omitempty"`
	ProviderLinked bool       `json:"providerLinked"`
	Providers      []string   `json:"providers"`
	WalletAddress  *string    `json:"walletAddress,omitempty"`
	WalletLinkedAt *time.Time `json:"walletLinkedAt,omitempty"`
	WalletMessage  *string    `json:"-"`
	RoleAssignedAt *time.Time `json:"roleAssignedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (i Identity) HasPassword() bool {
	return i.PasswordHash != nil && *i.PasswordHash != ""
}

func (i Identity) HasProvider(provider string) bool {
	for _, p := range i.Providers {
		if p == provider {
			return true
		}
	}

	return false
}

// IdentitySeed holds the fields an identity can be created with.
type IdentitySeed struct {
	Email        string
	PasswordHash *string
	DisplayName  string
	AvatarURI    *string
	Provider     string
}

// IdentityPatch is a field level update: nil fields are left untouched.
type IdentityPatch struct {
	PasswordHash *string
	DisplayName  *string
	AvatarURI    *string
}

func (p IdentityPatch) IsEmpty() bool {
	return p.PasswordHash == nil && p.DisplayName == nil && p.AvatarURI == nil
}

type WalletLink struct {
	Address  string
	LinkedAt time.Time
	Message  string
}

type WalletProof struct {
	Address   string
	Message   string
	Signature string
}

// FederatedProfile is what an identity provider tells us about a user.
// Provider role claims are never read.
type FederatedProfile struct {
	Email       string
	DisplayName string
	AvatarURI   string
	Provider    string
}

// EmailKey is the case-insensitive lookup form of an email.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
