package domain

import "strings"

// Role is the authorization claim attached to an identity out of band.
type Role string

const (
	RoleMaster           Role = "master"
	RoleAdvisor          Role = "advisor"
	RoleRegisteredClient Role = "registeredClient"
)

// Roles lists the assignable roles in a stable order.
var Roles = []Role{RoleMaster, RoleAdvisor, RoleRegisteredClient}

// ParseRole validates a raw role string. Matching is exact.
func ParseRole(raw string) (Role, bool) {
	for _, r := range Roles {
		if string(r) == raw {
			return r, true
		}
	}
	return "", false
}

// RoleList renders the valid roles for error messages.
func RoleList() string {
	names := make([]string, len(Roles))
	for i, r := range Roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

// Identity is the verified caller of a request, as supplied by the identity
// service. Anonymous sign-ins have a UID but no email.
type Identity struct {
	UID       string
	Email     string
	Anonymous bool
	Role      Role
}

// Authenticated reports whether the identity carries a verified UID.
func (i Identity) Authenticated() bool {
	return i.UID != ""
}
