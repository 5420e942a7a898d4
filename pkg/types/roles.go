package types

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type Permission string

const (
	PermissionManageUsers Permission = "MANAGE_USERS"
)

var Roles = []Role{RoleUser, RoleAdmin}

// roleRights is populated once and never written to after package initialization.
// Callers only ever receive copies of the permission slices.
var roleRights = map[Role][]Permission{
	RoleUser:  {},
	RoleAdmin: {PermissionManageUsers},
}

func RoleRights(role Role) []Permission {
	rights, ok := roleRights[role]
	if !ok {
		return []Permission{}
	}

	result := make([]Permission, len(rights))
	copy(result, rights)
	return result
}

func HasPermission(role Role, required ...Permission) bool {
	return lo.Every(roleRights[role], required)
}

func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if strings.EqualFold(string(r), s) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}
