// Package authz holds the single role policy used by every business service.
package authz

import (
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Staff is the set of roles allowed to operate on other users' data.
var Staff = []enums.Role{enums.RoleAdmin, enums.RoleAgent}

// Allow reports whether role is one of required. An empty required set allows
// any valid role.
func Allow(role enums.Role, required ...enums.Role) bool {
	if !role.IsValid() {
		return false
	}
	if len(required) == 0 {
		return true
	}
	for _, candidate := range required {
		if candidate == role {
			return true
		}
	}
	return false
}

// Require returns a FORBIDDEN error when role is not allowed.
func Require(role enums.Role, required ...enums.Role) error {
	if Allow(role, required...) {
		return nil
	}
	names := make([]string, 0, len(required))
	for _, r := range required {
		names = append(names, r.String())
	}
	msg := "insufficient role"
	if len(names) > 0 {
		msg = "requires role " + strings.Join(names, " or ")
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, msg)
}

// IsStaff reports whether role is Admin or Agente.
func IsStaff(role enums.Role) bool {
	return Allow(role, Staff...)
}
