package entity

import "time"

type Role string

const (
	RolePending    Role = "pending"
	RoleFreelancer Role = "freelancer"
	RoleClient     Role = "client"
)

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", ErrInvalidRole
	}

	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RolePending, RoleFreelancer, RoleClient:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether r is a role a user can be assigned to.
func (r Role) IsTerminal() bool {
	return r == RoleFreelancer || r == RoleClient
}

func (r Role) String() string {
	return string(r)
}

// RoleSource tells who asked for a role change.
type RoleSource string

const (
	RoleSourceSelfService RoleSource = "self-service"
	RoleSourceAdmin       RoleSource = "admin"
)

type RoleChange struct {
	Identity     Identity
	PreviousRole Role
	ChangedAt    time.Time
}

func (c RoleChange) IsOverride() bool {
	return c.PreviousRole.IsTerminal()
}
