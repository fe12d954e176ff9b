package feed

import "strings"

// Role determines which topics a viewer subscribes to and whether
// reconciliation includes aggregate statistics.
type Role int

const (
	RoleGuest Role = iota
	RoleNamedUser
	RoleAdministrator
)

func (r Role) String() string {
	switch r {
	case RoleAdministrator:
		return "administrator"
	case RoleNamedUser:
		return "user"
	}
	return "guest"
}

// Identity is the viewer identity, immutable for the lifetime of a
// client. Construct one with Administrator, NamedUser or Guest.
type Identity struct {
	role     Role
	username string
}

// Administrator views the full persisted history plus aggregate counts.
func Administrator() Identity {
	return Identity{role: RoleAdministrator}
}

// NamedUser views broadcasts plus alerts targeted at the given
// username. An empty or "guest" username degrades to the guest role.
func NamedUser(username string) Identity {
	if username == "" || strings.EqualFold(username, "guest") {
		return Guest()
	}
	return Identity{role: RoleNamedUser, username: username}
}

// Guest views broadcasts only, regardless of any username known to the
// environment.
func Guest() Identity {
	return Identity{role: RoleGuest}
}

func (id Identity) Role() Role {
	return id.role
}

func (id Identity) Username() string {
	return id.username
}

func (id Identity) String() string {
	if id.role == RoleNamedUser {
		return "user:" + id.username
	}
	return id.role.String()
}
