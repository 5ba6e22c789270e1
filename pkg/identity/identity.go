package identity

import "slices"

type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleDivisionHead  Role = "division_head"
	RoleBudgetOfficer Role = "budget_officer"
	RoleAccountant    Role = "accountant"
	RoleDirector      Role = "director"
	RoleCashier       Role = "cashier"
)

// RequiredRoles must be provisioned before the application starts.
var RequiredRoles = []Role{
	RoleAdministrator, RoleDivisionHead, RoleBudgetOfficer, RoleAccountant, RoleDirector, RoleCashier,
}

// Identity is the authorization context of one request. It is resolved once at request entry;
// services only authorize against it and never authenticate.
type Identity struct {
	UserId   int
	Uid      string
	Username string
	Roles    []Role
}

func (i Identity) HasRole(role Role) bool {
	return slices.Contains(i.Roles, role)
}

// Satisfies reports whether the identity may act for a step requiring role.
// Administrators satisfy every role.
func (i Identity) Satisfies(role Role) bool {
	return i.HasRole(RoleAdministrator) || i.HasRole(role)
}

func (i Identity) SatisfiesAny(roles ...Role) bool {
	for _, r := range roles {
		if i.Satisfies(r) {
			return true
		}
	}
	return false
}
