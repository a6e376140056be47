package entity

import "github.com/gofrs/uuid/v5"

// Principal is the authenticated user as seen by the rest of the application.
type Principal struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	AvatarURI string    `json:"avatarUri,omitempty"`
}

func (p Principal) RequiresRoleSelection() bool {
	return !p.Role.IsTerminal()
}

func PrincipalFromIdentity(i Identity) Principal {
	p := Principal{
		ID:    i.ID,
		Email: i.Email,
		Name:  i.DisplayName,
		Role:  i.Role,
	}

	if i.AvatarURI != nil {
		p.AvatarURI = *i.AvatarURI
	}

	return p
}
