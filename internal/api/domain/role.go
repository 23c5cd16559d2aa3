package domain

import "fmt"

// Role is the authorization level stored on a user.
type Role string

const (
	RoleEcho        Role = "Echo"
	RoleScribe      Role = "Scribe"
	RoleWeavemaster Role = "Weavemaster"
	RoleOverseer    Role = "Overseer"
)

// DefaultRole is assigned on registration.
const DefaultRole = RoleEcho

// Permission is a single capability checked by route middleware.
type Permission string

const (
	PermJournalCreate Permission = "journal:create"
	PermJournalRead   Permission = "journal:read"
	PermJournalUpdate Permission = "journal:update"
	PermJournalDelete Permission = "journal:delete"
	PermPoemRead      Permission = "poem:read"
	PermPoemPublish   Permission = "poem:publish"
	PermPoemEdit      Permission = "poem:edit"
	PermPoemShare     Permission = "poem:share"
	PermUserManage    Permission = "user:manage"
)

// Roles lists every role.
func Roles() []Role {
	return []Role{RoleEcho, RoleScribe, RoleWeavemaster, RoleOverseer}
}

// AllPermissions lists every permission.
func AllPermissions() []Permission {
	return []Permission{
		PermJournalCreate, PermJournalRead, PermJournalUpdate, PermJournalDelete,
		PermPoemRead, PermPoemPublish, PermPoemEdit, PermPoemShare,
		PermUserManage,
	}
}

var (
	journalCRUD = []Permission{PermJournalCreate, PermJournalRead, PermJournalUpdate, PermJournalDelete}
	poemAll     = []Permission{PermPoemRead, PermPoemPublish, PermPoemEdit, PermPoemShare}
)

// ParseRole converts a stored string to a Role.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles() {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Permissions returns the capabilities granted to r. An unknown role has none.
func (r Role) Permissions() []Permission {
	switch r {
	case RoleEcho:
		return []Permission{PermJournalRead, PermPoemRead}
	case RoleScribe:
		return append(append([]Permission{}, journalCRUD...), PermPoemRead)
	case RoleWeavemaster:
		return append([]Permission{PermJournalRead}, poemAll...)
	case RoleOverseer:
		return AllPermissions()
	}
	return nil
}

// Can reports whether r grants p.
func (r Role) Can(p Permission) bool {
	for _, granted := range r.Permissions() {
		if granted == p {
			return true
		}
	}
	return false
}
